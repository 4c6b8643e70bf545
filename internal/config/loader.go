package config

import (
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrRootConfigNotFound = errors.New("root configuration file not found")

// Extensions tried, in order, for every configuration file name.
var Extensions = []string{"yaml", "yml", "toml"}

// source is the content of one configuration file.
type source struct {
	path string
	data []byte
}

// Loader finds configuration files in a file system. The root file is looked
// up at the top of the file system; nested files, in the directories leading
// to a path, override it.
type Loader struct {
	fsys   fs.FS
	name   string
	logger *zap.Logger
}

type LoaderOption func(*Loader)

func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

func NewLoader(name string, fsys fs.FS, opts ...LoaderOption) *Loader {
	if name == "" {
		panic("config name is not set")
	}

	l := &Loader{
		fsys: fsys,
		name: name,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.logger == nil {
		l.logger = zap.NewNop()
	}

	return l
}

// Load parses the configuration chain leading to name on top of the defaults.
// Without any configuration file, the defaults are returned.
func (l *Loader) Load(name string) (*Config, error) {
	chain, err := l.findChain(name)
	if err != nil {
		return nil, err
	}

	docs := [][]byte{defaultsYAML}
	for _, src := range chain {
		data := src.data
		if path.Ext(src.path) == ".toml" {
			if data, err = tomlToYAML(data); err != nil {
				return nil, errors.Wrapf(err, "failed to read %s", src.path)
			}
		}
		docs = append(docs, data)
	}

	cfg, err := parseYAML(docs...)
	return cfg, errors.Wrapf(err, "failed to load configuration for %q", name)
}

// RootConfig returns the path and content of the root configuration file.
func (l *Loader) RootConfig() (string, []byte, error) {
	src, ok, err := l.lookup(".")
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrRootConfigNotFound
	}
	return src.path, src.data, nil
}

// FindConfigChain returns the content of the root configuration file followed
// by the nested ones found on the way to name.
func (l *Loader) FindConfigChain(name string) ([][]byte, error) {
	chain, err := l.findChain(name)
	if err != nil {
		return nil, err
	}
	var result [][]byte
	for _, src := range chain {
		result = append(result, src.data)
	}
	return result, nil
}

func (l *Loader) findChain(name string) (result []source, _ error) {
	dir, err := l.parsePath(name)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("finding config files on path", zap.String("dir", dir))

	dirs := []string{"."}
	if dir != "." {
		// Use [path.Join] instead of [filepath.Join] to support Windows paths.
		// It works well with [fs.FS].
		cur := ""
		for _, fragment := range strings.Split(filepath.ToSlash(dir), "/") {
			cur = path.Join(cur, fragment)
			dirs = append(dirs, cur)
		}
	}

	for _, d := range dirs {
		src, ok, err := l.lookup(d)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, src)
		}
	}

	paths := make([]string, 0, len(result))
	for _, src := range result {
		paths = append(paths, src.path)
	}
	l.logger.Debug("found config files on path", zap.String("dir", dir), zap.Strings("files", paths))

	return result, nil
}

// lookup returns the first configuration file in dir, trying every extension.
func (l *Loader) lookup(dir string) (source, bool, error) {
	for _, ext := range Extensions {
		p := path.Join(dir, l.name+"."+ext)
		data, err := fs.ReadFile(l.fsys, p)
		if err == nil {
			return source{path: p, data: data}, true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Debug("failed to read configuration file", zap.String("path", p), zap.Error(err))
			return source{}, false, errors.WithStack(err)
		}
	}
	return source{}, false, nil
}

func (l *Loader) parsePath(name string) (string, error) {
	if name == "" {
		name = "."
	}

	info, err := fs.Stat(l.fsys, name)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get the path info for %q", name)
	}

	if info.IsDir() {
		return path.Clean(filepath.ToSlash(name)), nil
	}
	return path.Dir(filepath.ToSlash(name)), nil
}
