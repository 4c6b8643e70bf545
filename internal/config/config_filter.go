package config

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"

	"github.com/stateful/blocks/pkg/block"
)

const (
	FilterTypeBlock    = "FILTER_TYPE_BLOCK"
	FilterTypeDocument = "FILTER_TYPE_DOCUMENT"
)

type Filter struct {
	Type      string `yaml:"type" validate:"oneof=FILTER_TYPE_BLOCK FILTER_TYPE_DOCUMENT"`
	Condition string `yaml:"condition" validate:"required"`

	once       sync.Once
	program    *vm.Program
	compileErr error
}

// FilterDocumentEnv describes a whole set of blocks, like the content of a
// pool file, before any block is selected.
type FilterDocumentEnv struct {
	Blocks int      `expr:"blocks"`
	Types  []string `expr:"types"`
}

// FilterBlockEnv describes a single block.
//
// The `expr` tag is used to map the field to the corresponding variable.
// Without it, all variables start with capitalized letters.
type FilterBlockEnv struct {
	ID         string         `expr:"id"`
	Type       string         `expr:"type"`
	Standalone bool           `expr:"standalone"`
	Virtual    bool           `expr:"virtual"`
	Focused    string         `expr:"focused"`
	Slots      []string       `expr:"slots"`
	Data       map[string]any `expr:"data"`
	Children   int            `expr:"children"`
}

func NewFilterBlockEnv(b *block.Block) FilterBlockEnv {
	return FilterBlockEnv{
		ID:         b.ID,
		Type:       b.Type,
		Standalone: b.Standalone,
		Virtual:    b.Virtual,
		Focused:    b.Focused,
		Slots:      b.Content.Names(),
		Data:       b.Data,
		Children:   len(b.Children),
	}
}

func NewFilterDocumentEnv(blocks []*block.Block) FilterDocumentEnv {
	env := FilterDocumentEnv{Blocks: len(blocks)}
	seen := make(map[string]bool)
	for _, b := range blocks {
		if !seen[b.Type] {
			seen[b.Type] = true
			env.Types = append(env.Types, b.Type)
		}
	}
	return env
}

func (f *Filter) env() interface{} {
	if f.Type == FilterTypeDocument {
		return FilterDocumentEnv{}
	}
	return FilterBlockEnv{}
}

// Compile checks the condition against the environment of the filter type.
func (f *Filter) Compile() error {
	f.once.Do(func() {
		program, err := expr.Compile(
			f.Condition,
			expr.Env(f.env()),
			expr.AsBool(),
		)
		f.program, f.compileErr = program, errors.Wrap(err, "failed to compile filter program")
	})
	return f.compileErr
}

func (f *Filter) Evaluate(env interface{}) (bool, error) {
	if err := f.Compile(); err != nil {
		return false, err
	}

	result, err := expr.Run(f.program, env)
	if err != nil {
		return false, errors.Wrap(err, "failed to run filter program")
	}
	return result.(bool), nil
}

// Select returns the blocks passing every filter. Document filters are
// evaluated once; when one fails, nothing is selected.
func Select(filters []*Filter, blocks []*block.Block) ([]*block.Block, error) {
	doc := NewFilterDocumentEnv(blocks)
	for _, f := range filters {
		if f.Type != FilterTypeDocument {
			continue
		}
		ok, err := f.Evaluate(doc)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}

	var result []*block.Block
outer:
	for _, b := range blocks {
		env := NewFilterBlockEnv(b)
		for _, f := range filters {
			if f.Type != FilterTypeBlock {
				continue
			}
			ok, err := f.Evaluate(env)
			if err != nil {
				return nil, errors.Wrapf(err, "block %q", b.ID)
			}
			if !ok {
				continue outer
			}
		}
		result = append(result, b)
	}
	return result, nil
}
