// Package identity keeps the block nodes of a live tree uniquely identified
// while the tree is being edited.
package identity

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
	"github.com/stateful/blocks/pkg/element"
)

// DefaultMaxIterations bounds the passes of one settle cycle that keep changing the tree.
const DefaultMaxIterations = 10

// ErrRunaway is returned when passes keep changing the tree, which means
// the maintainer is caught in a feedback loop with the host.
var ErrRunaway = errors.New("identity maintenance does not settle")

// State is the identity state of a block node within one pass.
type State int

const (
	NoIDNeeded State = iota
	NeedsFreshID
	NeedsIDRemoved
	IDUnique
)

func (s State) String() string {
	switch s {
	case NoIDNeeded:
		return "no-id-needed"
	case NeedsFreshID:
		return "needs-fresh-id"
	case NeedsIDRemoved:
		return "needs-id-removed"
	case IDUnique:
		return "id-unique"
	}
	return "unknown"
}

// Sweeper forgets pending work for nodes no longer in the tree.
// The editor implements it.
type Sweeper interface {
	Sweep(root *html.Node) int
}

// Rekey records a duplicate moved to a fresh id.
type Rekey struct {
	From string
	To   string
}

// Report tells what a pass changed.
type Report struct {
	// Assigned holds the ids given to nodes lacking one.
	Assigned []string
	Rekeyed  []Rekey
	// Stripped holds the ids removed from inplace nodes.
	Stripped []string
	// Swept is the number of forgotten pending resolutions.
	Swept int
}

// Changed reports whether the tree was modified.
func (r Report) Changed() bool {
	return len(r.Assigned)+len(r.Rekeyed)+len(r.Stripped) > 0
}

func (r *Report) merge(other Report) {
	r.Assigned = append(r.Assigned, other.Assigned...)
	r.Rekeyed = append(r.Rekeyed, other.Rekeyed...)
	r.Stripped = append(r.Stripped, other.Stripped...)
	r.Swept += other.Swept
}

type Maintainer struct {
	registry      *element.Registry
	store         *block.Store
	logger        *zap.Logger
	sweeper       Sweeper
	maxIterations int
}

type Option func(*Maintainer)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Maintainer) { m.logger = logger }
}

func WithSweeper(sweeper Sweeper) Option {
	return func(m *Maintainer) { m.sweeper = sweeper }
}

func WithMaxIterations(n int) Option {
	return func(m *Maintainer) { m.maxIterations = n }
}

func New(registry *element.Registry, store *block.Store, opts ...Option) *Maintainer {
	m := &Maintainer{
		registry:      registry,
		store:         store,
		logger:        zap.NewNop(),
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxIterations <= 0 {
		m.maxIterations = DefaultMaxIterations
	}
	return m
}

// Observe settles the tree after a host mutation and logs a failure.
// It fits editor.WithObserver.
func (m *Maintainer) Observe(root *html.Node) {
	if _, err := m.Settle(root); err != nil {
		m.logger.Error("identity check failed", zap.Error(err))
	}
}

// Settle runs passes until one leaves the tree unchanged. Each call is a
// fresh cycle; a cycle whose passes keep changing the tree beyond the
// iteration limit is abandoned with ErrRunaway.
func (m *Maintainer) Settle(root *html.Node) (Report, error) {
	var total Report
	for i := 0; i <= m.maxIterations; i++ {
		report, err := m.Check(root)
		total.merge(report)
		if err != nil || !report.Changed() {
			return total, err
		}
	}

	m.logger.Error(
		"identity maintenance abandoned",
		zap.Int("passes", m.maxIterations+1),
	)
	return total, errors.Wrapf(ErrRunaway, "%d consecutive changing passes", m.maxIterations+1)
}

// Check runs one pass over the block nodes under root, in document order.
func (m *Maintainer) Check(root *html.Node) (Report, error) {
	var report Report

	claimed := make(map[string]bool)
	var nodes []*html.Node
	if block.IsBoundary(root) {
		nodes = append(nodes, root)
	}
	dom.Walk(root, func(n *html.Node) bool {
		if block.IsBoundary(n) {
			nodes = append(nodes, n)
		}
		return true
	})

	for _, n := range nodes {
		if err := m.visit(n, claimed, &report); err != nil {
			return report, err
		}
	}

	if m.sweeper != nil {
		report.Swept = m.sweeper.Sweep(root)
	}
	return report, nil
}

func (m *Maintainer) visit(n *html.Node, claimed map[string]bool, report *Report) error {
	// Placeholders stand for blocks that are not known yet.
	if dom.HasAttr(n, block.AttrPlaceholder) {
		return nil
	}

	attrs, err := block.ReadAttrs(n)
	if err != nil {
		m.logger.Warn("invalid block node", zap.Error(err))
		return nil
	}
	el := m.element(attrs)

	state := Classify(attrs, el, claimed)
	logger := m.logger.With(zap.String("id", attrs.ID), zap.Stringer("state", state))

	switch state {
	case NeedsFreshID:
		if attrs.ID == "" {
			id := m.assign(n, attrs, el)
			logger.Debug("assigned id", zap.String("fresh", id))
			report.Assigned = append(report.Assigned, id)
		} else {
			id := m.rekey(n, attrs, el)
			logger.Debug("re-keyed duplicate", zap.String("fresh", id))
			report.Rekeyed = append(report.Rekeyed, Rekey{From: attrs.ID, To: id})
		}
		claimed[dom.GetAttr(n, block.AttrID)] = true
	case NeedsIDRemoved:
		if err := m.strip(n, attrs, el); err != nil {
			return err
		}
		logger.Debug("removed id of inplace block")
		report.Stripped = append(report.Stripped, attrs.ID)
	case IDUnique:
		claimed[attrs.ID] = true
	}
	return nil
}

// Classify decides the state of a block node given the ids claimed earlier
// in the pass. el is nil when the type of the node is unknown.
func Classify(attrs block.NodeAttrs, el *element.Element, claimed map[string]bool) State {
	switch {
	case el != nil && el.Inplace:
		if attrs.ID != "" {
			return NeedsIDRemoved
		}
		return NoIDNeeded
	case attrs.ID == "":
		if el == nil || el.Inline || el.Name == block.FragmentType {
			return NoIDNeeded
		}
		return NeedsFreshID
	case claimed[attrs.ID] && !attrs.Standalone && (el == nil || !el.Standalone):
		return NeedsFreshID
	default:
		return IDUnique
	}
}

func (m *Maintainer) element(attrs block.NodeAttrs) *element.Element {
	typ := attrs.Type
	if typ == "" && attrs.ID != "" {
		if stored := m.store.Get(attrs.ID); stored != nil {
			typ = stored.Type
		}
	}
	if typ == "" {
		return nil
	}
	el, err := m.registry.Lookup(typ)
	if err != nil {
		m.logger.Debug("node of unknown type", zap.String("type", typ))
		return nil
	}
	return el
}

func (m *Maintainer) assign(n *html.Node, attrs block.NodeAttrs, el *element.Element) string {
	b := block.New(el.Name)
	b.ID = m.store.UniqueID()
	b.Data = el.Properties.Fill(block.CopyData(attrs.Data))
	b.Standalone = attrs.Standalone
	m.store.Set(b)

	dom.SetAttr(n, block.AttrID, b.ID)
	dom.SetAttr(n, block.AttrType, b.Type)
	return b.ID
}

// rekey moves the node to a fresh id holding a copy of the data of the
// block it duplicates.
func (m *Maintainer) rekey(n *html.Node, attrs block.NodeAttrs, el *element.Element) string {
	var b *block.Block
	if stored := m.store.Get(attrs.ID); stored != nil {
		b = stored.Clone()
		b.Children = nil
		if err := b.Unmount(); err != nil {
			m.logger.Warn("failed to copy content of duplicate", zap.String("id", attrs.ID), zap.Error(err))
			b.Content = block.Content{}
		}
	} else {
		typ := attrs.Type
		if el != nil {
			typ = el.Name
		}
		b = block.New(typ)
	}
	b.ID = m.store.UniqueID()
	m.store.Set(b)

	dom.SetAttr(n, block.AttrID, b.ID)
	return b.ID
}

// strip removes the id of an inplace node, moving the stored data onto the node.
func (m *Maintainer) strip(n *html.Node, attrs block.NodeAttrs, el *element.Element) error {
	b := block.New(el.Name)
	b.Data = attrs.Data
	if stored := m.store.Get(attrs.ID); stored != nil && b.Data == nil {
		b.Data = block.CopyData(stored.Data)
	}
	b.Data = el.Properties.Fill(b.Data)
	b.Standalone = attrs.Standalone
	b.Focused = attrs.Focused
	return block.WriteAttrs(n, b, true)
}
