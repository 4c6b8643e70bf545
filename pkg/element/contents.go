package element

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SlotSpec declares one named content slot.
type SlotSpec struct {
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
	// Nodes is the content expression accepted by the slot, for example "block+".
	// It is handed over to the host as is.
	Nodes string `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	// Virtual slots exist to satisfy the structure and are never persisted.
	Virtual bool `json:"virtual,omitempty" yaml:"virtual,omitempty"`
}

// Contents is the ordered list of slots of an element.
//
// When decoded, it accepts three shorthand forms:
//
//	contents: "inline*"                    # a single unnamed slot
//	contents: {id: body, nodes: "block+"}  # a single slot
//	contents:                              # a list of slots
//	  - {id: title, nodes: "inline*"}
//	  - {id: body, nodes: "block+"}
type Contents []SlotSpec

func (c *Contents) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var nodes string
		if err := value.Decode(&nodes); err != nil {
			return errors.WithStack(err)
		}
		*c = Contents{{Nodes: nodes}}
	case yaml.MappingNode:
		var spec SlotSpec
		if err := value.Decode(&spec); err != nil {
			return errors.WithStack(err)
		}
		*c = Contents{spec}
	case yaml.SequenceNode:
		var specs []SlotSpec
		if err := value.Decode(&specs); err != nil {
			return errors.WithStack(err)
		}
		*c = specs
	default:
		return errors.Errorf("unsupported contents at line %d", value.Line)
	}
	return nil
}

func (c *Contents) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = nil
		return nil
	}
	switch data[0] {
	case '"':
		var nodes string
		if err := json.Unmarshal(data, &nodes); err != nil {
			return errors.WithStack(err)
		}
		*c = Contents{{Nodes: nodes}}
	case '{':
		var spec SlotSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			return errors.WithStack(err)
		}
		*c = Contents{spec}
	default:
		var specs []SlotSpec
		if err := json.Unmarshal(data, &specs); err != nil {
			return errors.WithStack(err)
		}
		*c = specs
	}
	return nil
}

// normalize validates slot ids and reports whether the contents are unnamed.
func (c Contents) normalize() (unnamed bool, _ error) {
	seen := make(map[string]struct{}, len(c))
	for _, spec := range c {
		if _, ok := seen[spec.ID]; ok {
			if spec.ID == "" {
				return false, errors.Wrap(ErrAmbiguousContent, "more than one slot without id")
			}
			return false, errors.Wrapf(ErrInvalid, "duplicate slot %q", spec.ID)
		}
		seen[spec.ID] = struct{}{}
	}
	if _, ok := seen[""]; ok && len(c) > 1 {
		return false, errors.Wrap(ErrAmbiguousContent, "slot without id among named slots")
	}
	return len(c) == 1 && c[0].ID == "", nil
}

// IDs returns the slot names in declaration order.
func (c Contents) IDs() []string {
	ids := make([]string, len(c))
	for i, spec := range c {
		ids[i] = spec.ID
	}
	return ids
}

func (c Contents) Get(id string) (SlotSpec, bool) {
	for _, spec := range c {
		if spec.ID == id {
			return spec, true
		}
	}
	return SlotSpec{}, false
}
