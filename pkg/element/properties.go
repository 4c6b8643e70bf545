package element

import "github.com/stateful/blocks/pkg/block"

// Property describes one typed entry of a block's data.
type Property struct {
	Type        string     `json:"type,omitempty" yaml:"type,omitempty"`
	Title       string     `json:"title,omitempty" yaml:"title,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Default     any        `json:"default,omitempty" yaml:"default,omitempty"`
	Properties  Properties `json:"properties,omitempty" yaml:"properties,omitempty"`
}

type Properties map[string]*Property

// Fill materializes declared defaults into data, recursively for nested
// property schemas. Existing values are never replaced, so applying
// Fill twice yields the same result as applying it once.
func (p Properties) Fill(data map[string]any) map[string]any {
	if data == nil {
		data = map[string]any{}
	}
	for key, prop := range p {
		if prop == nil {
			continue
		}
		value, exists := data[key]
		if !exists && prop.Default != nil {
			data[key] = copyDefault(prop.Default)
			continue
		}
		if len(prop.Properties) == 0 {
			continue
		}
		switch nested := value.(type) {
		case map[string]any:
			prop.Properties.Fill(nested)
		case nil:
			filled := prop.Properties.Fill(nil)
			if len(filled) > 0 {
				data[key] = filled
			}
		}
	}
	return data
}

func copyDefault(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return block.CopyData(val)
	case []any:
		return block.CopyData(map[string]any{"": val})[""]
	default:
		return v
	}
}

// Fill applies the defaults of el to data.
func Fill(el *Element, data map[string]any) map[string]any {
	if el == nil {
		return data
	}
	return el.Properties.Fill(data)
}
