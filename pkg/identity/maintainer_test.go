package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/internal/ulid"
	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
	"github.com/stateful/blocks/pkg/editor"
	"github.com/stateful/blocks/pkg/element"
)

func testRegistry(t *testing.T) *element.Registry {
	t.Helper()
	defs := []element.TemplateDef{
		{
			Name:       "note",
			Contents:   element.Contents{{ID: "body"}},
			Properties: element.Properties{"tone": {Type: "string", Default: "plain"}},
			Template:   `<div class="note"><div block-content="body"></div></div>`,
		},
		{
			Name:       "section",
			Standalone: true,
			Contents:   element.Contents{{Nodes: "block+"}},
			Template:   `<section block-content=""></section>`,
		},
		{
			Name:     "mention",
			Inline:   true,
			Contents: element.Contents{{ID: "label"}},
			Template: `<span block-content="label"></span>`,
		},
		{
			Name:       "badge",
			Inline:     true,
			Inplace:    true,
			Properties: element.Properties{"text": {Type: "string", Default: ""}},
			Template:   `<span class="badge">{{.Data.text}}</span>`,
		},
	}
	r := element.NewRegistry()
	for _, def := range defs {
		el, err := element.FromTemplate(def)
		require.NoError(t, err)
		require.NoError(t, r.Register(el))
	}
	return r
}

func setup(t *testing.T, opts ...Option) (*Maintainer, *block.Store, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	store := block.NewStore(block.WithGenerator(ulid.Sequence("fresh")), block.WithLogger(logger))
	m := New(testRegistry(t), store, append([]Option{WithLogger(logger)}, opts...)...)
	return m, store, logs
}

func parse(t *testing.T, markup string) *html.Node {
	t.Helper()
	n, err := dom.ParseFragment(markup)
	require.NoError(t, err)
	return n
}

func ids(root *html.Node) []string {
	var result []string
	dom.Walk(root, func(n *html.Node) bool {
		if id := dom.GetAttr(n, block.AttrID); id != "" {
			result = append(result, id)
		}
		return true
	})
	return result
}

func TestClassify(t *testing.T) {
	r := testRegistry(t)
	lookup := func(name string) *element.Element {
		el, err := r.Lookup(name)
		require.NoError(t, err)
		return el
	}
	claimed := map[string]bool{"a": true}

	tests := []struct {
		name     string
		attrs    block.NodeAttrs
		el       *element.Element
		expected State
	}{
		{"Fresh", block.NodeAttrs{ID: "b"}, lookup("note"), IDUnique},
		{"Duplicate", block.NodeAttrs{ID: "a"}, lookup("note"), NeedsFreshID},
		{"StandaloneDuplicate", block.NodeAttrs{ID: "a"}, lookup("section"), IDUnique},
		{"StandaloneNodeDuplicate", block.NodeAttrs{ID: "a", Standalone: true}, lookup("note"), IDUnique},
		{"MissingID", block.NodeAttrs{Type: "note"}, lookup("note"), NeedsFreshID},
		{"InlineWithoutID", block.NodeAttrs{Type: "mention"}, lookup("mention"), NoIDNeeded},
		{"InplaceWithID", block.NodeAttrs{ID: "c"}, lookup("badge"), NeedsIDRemoved},
		{"InplaceWithoutID", block.NodeAttrs{Type: "badge"}, lookup("badge"), NoIDNeeded},
		{"UnknownWithoutID", block.NodeAttrs{Type: "nope"}, nil, NoIDNeeded},
		{"UnknownDuplicate", block.NodeAttrs{ID: "a"}, nil, NeedsFreshID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.attrs, tt.el, claimed))
		})
	}
}

func TestCheck(t *testing.T) {
	t.Run("DuplicateRekeyed", func(t *testing.T) {
		m, store, _ := setup(t)
		store.Set(&block.Block{
			ID:      "a",
			Type:    "note",
			Data:    map[string]any{"tone": "loud"},
			Content: block.Content{"body": block.Markup("hello")},
		})

		root := parse(t, `<div block-id="a" block-type="note"></div><div block-id="a" block-type="note"></div>`)
		report, err := m.Check(root)
		require.NoError(t, err)

		assert.Equal(t, []Rekey{{From: "a", To: "fresh1"}}, report.Rekeyed)
		assert.Equal(t, []string{"a", "fresh1"}, ids(root))

		copied := store.Get("fresh1")
		require.NotNil(t, copied)
		assert.Equal(t, "note", copied.Type)
		assert.Equal(t, "hello", copied.Content["body"].String())

		copied.Data["tone"] = "quiet"
		assert.Equal(t, "loud", store.Get("a").Data["tone"])
	})

	t.Run("StandaloneDuplicateShared", func(t *testing.T) {
		m, store, _ := setup(t)
		store.Set(&block.Block{ID: "s", Type: "section"})

		root := parse(t, `<section block-id="s" block-type="section"></section><section block-id="s" block-type="section"></section>`)
		report, err := m.Check(root)
		require.NoError(t, err)

		assert.False(t, report.Changed())
		assert.Equal(t, []string{"s", "s"}, ids(root))
	})

	t.Run("FreshID", func(t *testing.T) {
		m, store, _ := setup(t)

		root := parse(t, `<div block-type="note"></div><span block-type="mention"></span>`)
		report, err := m.Check(root)
		require.NoError(t, err)

		assert.Equal(t, []string{"fresh1"}, report.Assigned)
		b := store.Get("fresh1")
		require.NotNil(t, b)
		assert.Equal(t, "note", b.Type)
		assert.Equal(t, "plain", b.Data["tone"])
		assert.Equal(t, []string{"fresh1"}, ids(root))
	})

	t.Run("InplaceStripped", func(t *testing.T) {
		m, store, _ := setup(t)
		store.Set(&block.Block{ID: "b", Type: "badge", Data: map[string]any{"text": "new"}})

		root := parse(t, `<p><span block-id="b" block-type="badge">new</span></p>`)
		report, err := m.Check(root)
		require.NoError(t, err)

		assert.Equal(t, []string{"b"}, report.Stripped)
		badge := dom.Find(root, func(n *html.Node) bool { return dom.GetAttr(n, block.AttrType) == "badge" })
		require.NotNil(t, badge)
		assert.False(t, dom.HasAttr(badge, block.AttrID))
		assert.JSONEq(t, `{"text":"new"}`, dom.GetAttr(badge, block.AttrData))
		assert.NotNil(t, store.Get("b"))
	})

	t.Run("PlaceholdersIgnored", func(t *testing.T) {
		m, _, _ := setup(t)

		root := parse(t, `<div block-id="x" block-placeholder="pending"></div><div block-id="x" block-placeholder="pending"></div>`)
		report, err := m.Check(root)
		require.NoError(t, err)
		assert.False(t, report.Changed())
	})

	t.Run("RootIncluded", func(t *testing.T) {
		m, _, _ := setup(t)

		root, err := dom.ParseElement(`<div block-type="note"><div block-content="body"></div></div>`)
		require.NoError(t, err)
		report, err := m.Check(root)
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh1"}, report.Assigned)
		assert.Equal(t, "fresh1", dom.GetAttr(root, block.AttrID))
	})
}

type countingSweeper struct{ calls int }

func (s *countingSweeper) Sweep(*html.Node) int {
	s.calls++
	return 1
}

func TestSweeper(t *testing.T) {
	sweeper := &countingSweeper{}
	m, _, _ := setup(t, WithSweeper(sweeper))

	report, err := m.Check(parse(t, `<p>text</p>`))
	require.NoError(t, err)
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 1, report.Swept)
	assert.False(t, report.Changed())
}

func TestSettle(t *testing.T) {
	m, _, _ := setup(t)
	root := parse(t, `<div block-type="note"></div><div block-id="a" block-type="note"></div><div block-id="a" block-type="note"></div>`)

	report, err := m.Settle(root)
	require.NoError(t, err)
	assert.Len(t, report.Assigned, 1)
	assert.Len(t, report.Rekeyed, 1)

	again, err := m.Check(root)
	require.NoError(t, err)
	assert.False(t, again.Changed())
}

// echoSweeper appends an id-less block node on every pass, as a host
// feeding the maintainer's own changes back would.
type echoSweeper struct{ t *testing.T }

func (s echoSweeper) Sweep(root *html.Node) int {
	dom.MoveChildren(root, parse(s.t, `<div block-type="note"></div>`))
	return 0
}

func TestRunaway(t *testing.T) {
	m, _, logs := setup(t, WithMaxIterations(3), WithSweeper(echoSweeper{t: t}))
	root := parse(t, `<div block-type="note"></div>`)

	report, err := m.Settle(root)
	require.ErrorIs(t, err, ErrRunaway)
	assert.Equal(t, []string{"fresh1", "fresh2", "fresh3", "fresh4"}, report.Assigned)
	assert.Equal(t, 1, logs.FilterMessage("identity maintenance abandoned").Len())

	// Every settle cycle starts a fresh count.
	_, err = m.Settle(root)
	require.ErrorIs(t, err, ErrRunaway)
	assert.Len(t, logs.FilterMessage("identity maintenance abandoned").All(), 2)
}

func TestSettleManyCycles(t *testing.T) {
	m, _, logs := setup(t, WithMaxIterations(2))
	root := dom.NewFragment()

	for i := 0; i < 5; i++ {
		dom.MoveChildren(root, parse(t, `<div block-type="note"></div>`))
		report, err := m.Settle(root)
		require.NoError(t, err)
		assert.Len(t, report.Assigned, 1)
	}
	assert.Len(t, ids(root), 5)
	assert.Equal(t, 0, logs.FilterMessage("identity maintenance abandoned").Len())
}

func TestObserve(t *testing.T) {
	m, _, logs := setup(t, WithMaxIterations(1), WithSweeper(echoSweeper{t: t}))

	m.Observe(parse(t, `<div block-type="note"></div>`))
	assert.Equal(t, 1, logs.FilterMessage("identity check failed").Len())
}

func TestObserveDoc(t *testing.T) {
	m, _, logs := setup(t, WithMaxIterations(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doc := editor.NewDoc(nil, editor.WithObserver(m.Observe))
	go func() { _ = doc.Run(ctx) }()

	const edits = 3*DefaultMaxIterations + 1
	for i := 0; i < edits; i++ {
		// Parsed here; the mutation runs on the loop goroutine.
		n := parse(t, `<div block-type="note"></div>`)
		require.NoError(t, doc.Apply(ctx, func(root *html.Node) {
			dom.MoveChildren(root, n)
		}))
	}

	var got []string
	require.NoError(t, doc.Do(ctx, func() { got = ids(doc.Root) }))
	assert.Len(t, got, edits)
	assert.Equal(t, 0, logs.FilterMessage("identity maintenance abandoned").Len())
	assert.Equal(t, 0, logs.FilterMessage("identity check failed").Len())
}
