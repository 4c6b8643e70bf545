package block

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/dom"
)

// Attribute names forming the wire format between live trees and blocks.
// They must round-trip exactly.
const (
	AttrID         = "block-id"
	AttrType       = "block-type"
	AttrContent    = "block-content"
	AttrFocused    = "block-focused"
	AttrStandalone = "block-standalone"

	// AttrData carries the data of inplace elements, JSON encoded.
	AttrData = "block-data"
	// AttrPlaceholder marks nodes standing in for unresolved blocks.
	// Its value is one of PlaceholderMissing and PlaceholderPending.
	AttrPlaceholder = "block-placeholder"
)

const (
	PlaceholderMissing = "missing"
	PlaceholderPending = "pending"
)

// IsWireAttr reports whether key belongs to the block wire format.
func IsWireAttr(key string) bool {
	switch key {
	case AttrID, AttrType, AttrContent, AttrFocused, AttrStandalone, AttrData, AttrPlaceholder:
		return true
	}
	return false
}

// NodeAttrs is the identity information carried by a tree node.
type NodeAttrs struct {
	ID          string
	Type        string
	Content     string
	Focused     string
	Standalone  bool
	Data        map[string]any
	Placeholder string
}

// ReadAttrs extracts identity information from n.
func ReadAttrs(n *html.Node) (NodeAttrs, error) {
	attrs := NodeAttrs{
		ID:          dom.GetAttr(n, AttrID),
		Type:        dom.GetAttr(n, AttrType),
		Content:     dom.GetAttr(n, AttrContent),
		Focused:     dom.GetAttr(n, AttrFocused),
		Placeholder: dom.GetAttr(n, AttrPlaceholder),
	}
	if v, ok := dom.Attr(n, AttrStandalone); ok {
		standalone, err := strconv.ParseBool(v)
		if err != nil {
			return attrs, errors.Wrapf(err, "invalid %s attribute", AttrStandalone)
		}
		attrs.Standalone = standalone
	}
	if v, ok := dom.Attr(n, AttrData); ok && v != "" {
		if err := json.Unmarshal([]byte(v), &attrs.Data); err != nil {
			return attrs, errors.Wrapf(err, "invalid %s attribute", AttrData)
		}
	}
	return attrs, nil
}

// WriteAttrs sets the identity attributes of b on n. When inplace is true,
// the data is carried by the node and no id is written.
func WriteAttrs(n *html.Node, b *Block, inplace bool) error {
	if inplace {
		dom.RemoveAttr(n, AttrID)
		raw, err := json.Marshal(b.Data)
		if err != nil {
			return errors.WithStack(err)
		}
		dom.SetAttr(n, AttrData, string(raw))
	} else if b.ID != "" {
		dom.SetAttr(n, AttrID, b.ID)
	}
	if b.Type != "" {
		dom.SetAttr(n, AttrType, b.Type)
	}
	if b.Standalone {
		dom.SetAttr(n, AttrStandalone, "true")
	} else {
		dom.RemoveAttr(n, AttrStandalone)
	}
	if b.Focused != "" {
		dom.SetAttr(n, AttrFocused, b.Focused)
	} else {
		dom.RemoveAttr(n, AttrFocused)
	}
	return nil
}

// IsBoundary reports whether n starts a nested block.
func IsBoundary(n *html.Node) bool {
	return dom.IsElement(n) && (dom.HasAttr(n, AttrID) || dom.HasAttr(n, AttrType))
}

// FindSlot returns the node holding the named slot of the block rendered at n.
// Nested blocks are not searched.
func FindSlot(n *html.Node, name string) *html.Node {
	if v, ok := dom.Attr(n, AttrContent); ok && v == name {
		return n
	}
	var found *html.Node
	dom.Walk(n, func(c *html.Node) bool {
		if found != nil || !dom.IsElement(c) || IsBoundary(c) {
			return false
		}
		if v, ok := dom.Attr(c, AttrContent); ok && v == name {
			found = c
			return false
		}
		return true
	})
	return found
}

// SlotNodes returns the nodes marked with block-content that belong to the
// block rendered at n, in document order. Nested blocks are not searched.
func SlotNodes(n *html.Node) []*html.Node {
	if dom.HasAttr(n, AttrContent) {
		return []*html.Node{n}
	}
	var result []*html.Node
	dom.Walk(n, func(c *html.Node) bool {
		if !dom.IsElement(c) || IsBoundary(c) {
			return false
		}
		if dom.HasAttr(c, AttrContent) {
			result = append(result, c)
			return false
		}
		return true
	})
	return result
}
