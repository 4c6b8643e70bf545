package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/editor"
)

// poolFile is the on-disk form of a document: a root block and the blocks
// it references. JSON files may contain comments and trailing commas.
// A bare list of blocks is accepted too.
type poolFile struct {
	Root   *block.Block   `json:"root,omitempty" yaml:"root,omitempty"`
	Blocks []*block.Block `json:"blocks" yaml:"blocks"`
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func readPoolFile(path string) (*poolFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	f, err := parsePoolFile(path, data)
	return f, errors.Wrapf(err, "invalid pool file %s", path)
}

func parsePoolFile(path string, data []byte) (*poolFile, error) {
	var f poolFile

	if isYAML(path) {
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, errors.WithStack(err)
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			return &f, errors.WithStack(node.Content[0].Decode(&f.Blocks))
		}
		return &f, errors.WithStack(node.Decode(&f))
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, errors.Wrap(err, "invalid JSONC")
	}
	if bytes.HasPrefix(bytes.TrimSpace(standardized), []byte("[")) {
		return &f, errors.WithStack(json.Unmarshal(standardized, &f.Blocks))
	}
	return &f, errors.WithStack(json.Unmarshal(standardized, &f))
}

// pool returns the referenced blocks by id.
func (f *poolFile) pool() editor.Pool {
	p := editor.Pool{}
	p.Add(f.Blocks...)
	return p
}

// root returns the block to render: the one named id, the root of the
// file or, lacking both, the first block.
func (f *poolFile) root(id string) (*block.Block, error) {
	if id != "" {
		for _, b := range f.Blocks {
			if b.ID == id {
				return b, nil
			}
		}
		if f.Root != nil && f.Root.ID == id {
			return f.Root, nil
		}
		return nil, errors.Errorf("no block %q in pool", id)
	}
	if f.Root != nil {
		return f.Root, nil
	}
	if len(f.Blocks) == 0 {
		return nil, errors.New("empty pool")
	}
	return f.Blocks[0], nil
}

// all returns the root followed by the referenced blocks.
func (f *poolFile) all() []*block.Block {
	var result []*block.Block
	if f.Root != nil {
		result = append(result, f.Root)
	}
	return append(result, f.Blocks...)
}

func encodePoolFile(path string, f *poolFile) ([]byte, error) {
	if isYAML(path) {
		data, err := yaml.Marshal(f)
		return data, errors.WithStack(err)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return append(data, '\n'), nil
}

// writeOutput writes data to path atomically, or to the command output
// when path is empty or "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return errors.WithStack(err)
	}
	return errors.Wrapf(atomic.WriteFile(path, bytes.NewReader(data)), "failed to write %s", path)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return data, errors.WithStack(err)
	}
	data, err := os.ReadFile(path)
	return data, errors.WithStack(err)
}
