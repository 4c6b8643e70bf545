package config

import (
	_ "embed"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/stateful/blocks/internal/log"
	"github.com/stateful/blocks/internal/ulid"
	"github.com/stateful/blocks/pkg/element"
)

const Version = "v1"

//go:embed defaults.yaml
var defaultsYAML []byte

// Config is the configuration of the blocks tooling.
type Config struct {
	Version  string                `yaml:"version" validate:"required,eq=v1"`
	Log      log.Options           `yaml:"log"`
	Identity Identity              `yaml:"identity"`
	Resolver Resolver              `yaml:"resolver"`
	Elements []element.TemplateDef `yaml:"elements" validate:"dive"`
	Filters  []*Filter             `yaml:"filters,omitempty" validate:"dive"`
}

type Identity struct {
	MaxIterations int    `yaml:"max_iterations" validate:"min=1"`
	Generator     string `yaml:"generator" validate:"oneof=ulid uuid"`
}

type Resolver struct {
	CacheSize   int `yaml:"cache_size" validate:"min=0"`
	Concurrency int `yaml:"concurrency" validate:"min=1"`
}

var validate = validator.New()

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := newDefault()
	if err != nil {
		panic(err)
	}
	return cfg
}

func newDefault() (*Config, error) {
	return parseYAML(defaultsYAML)
}

// ParseYAML parses data on top of the defaults.
func ParseYAML(data []byte) (*Config, error) {
	return parseYAML(defaultsYAML, data)
}

// ParseTOML parses data on top of the defaults.
func ParseTOML(data []byte) (*Config, error) {
	converted, err := tomlToYAML(data)
	if err != nil {
		return nil, err
	}
	return parseYAML(defaultsYAML, converted)
}

// Parse picks the format from the extension of name. Unknown extensions
// are parsed as YAML.
func Parse(name string, data []byte) (*Config, error) {
	if strings.EqualFold(filepath.Ext(name), ".toml") {
		return ParseTOML(data)
	}
	return ParseYAML(data)
}

// parseYAML decodes every document in order into the same config, so that
// later documents override the keys they set. Lists are replaced, not merged.
func parseYAML(data ...[]byte) (*Config, error) {
	var cfg Config
	for _, item := range data {
		if len(strings.TrimSpace(string(item))) == 0 {
			continue
		}
		if err := yaml.Unmarshal(item, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal yaml")
		}
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to validate %s config", cfg.Version)
	}
	return &cfg, nil
}

func tomlToYAML(data []byte) ([]byte, error) {
	var mmap map[string]any
	if err := toml.Unmarshal(data, &mmap); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal toml")
	}
	result, err := yaml.Marshal(mmap)
	return result, errors.Wrap(err, "failed to marshal toml to yaml")
}

func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return errors.WithStack(err)
	}

	var err error
	for i, f := range cfg.Filters {
		if cerr := f.Compile(); cerr != nil {
			err = multierr.Append(err, errors.Wrapf(cerr, "filters[%d]", i))
		}
	}
	return err
}

// Generator returns the id generator selected by the identity settings.
func (c *Config) Generator() (ulid.Generator, error) {
	return ulid.ForFormat(c.Identity.Generator)
}

// Registry builds an element registry from the configured elements.
// Every element is attempted; the returned error aggregates the failures
// and the registry holds the elements that succeeded.
func (c *Config) Registry() (*element.Registry, error) {
	r := element.NewRegistry()

	var err error
	for _, def := range c.Elements {
		el, eerr := element.FromTemplate(def)
		if eerr != nil {
			err = multierr.Append(err, eerr)
			continue
		}
		err = multierr.Append(err, r.Register(el))
	}
	return r, err
}
