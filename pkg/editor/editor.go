// Package editor keeps a block graph and a live tree in sync.
//
// [Editor.From] renders blocks into a live tree, resolving nested block
// references from a pool, the store or registered resolvers. [Editor.To]
// extracts blocks back from an edited tree. Both run on the host loop;
// resolvers run on their own goroutines and post completions to the host.
package editor

import (
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"

	"github.com/stateful/blocks/internal/lru"
	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/element"
	"github.com/stateful/blocks/pkg/schema"
)

const (
	defaultCacheSize   = 128
	defaultConcurrency = 4
)

// Pool holds candidate blocks by id for a render.
type Pool map[string]*block.Block

// Add puts blocks into the pool. Blocks without id are ignored.
func (p Pool) Add(blocks ...*block.Block) {
	for _, b := range blocks {
		if b != nil && b.ID != "" {
			p[b.ID] = b
		}
	}
}

// IDs returns the ids of the pool in alphabetical order.
func (p Pool) IDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type Editor struct {
	registry *element.Registry
	schemas  *schema.Set
	store    *block.Store
	logger   *zap.Logger

	host        Host
	resolvers   []Resolver
	cache       *lru.Cache[*block.Block]
	concurrency int
	flight      singleflight.Group

	mu      sync.Mutex
	gen     uint64
	pending map[Token]*html.Node
}

type Option func(*Editor)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Editor) { e.logger = logger }
}

// WithHost makes resolution asynchronous: completions are dispatched to host.
// Without a host, resolvers are called synchronously during the render.
func WithHost(host Host) Option {
	return func(e *Editor) { e.host = host }
}

// WithResolvers registers resolvers tried in order for unknown ids.
func WithResolvers(resolvers ...Resolver) Option {
	return func(e *Editor) { e.resolvers = append(e.resolvers, resolvers...) }
}

// WithCacheSize sets the number of resolved blocks kept for synchronous hits.
// Zero disables the cache.
func WithCacheSize(size int) Option {
	return func(e *Editor) { e.cache = lru.NewCache[*block.Block](size) }
}

// WithConcurrency bounds the number of resolver calls made by [Editor.Prefetch].
func WithConcurrency(n int) Option {
	return func(e *Editor) { e.concurrency = n }
}

func New(registry *element.Registry, schemas *schema.Set, store *block.Store, opts ...Option) *Editor {
	e := &Editor{
		registry:    registry,
		schemas:     schemas,
		store:       store,
		logger:      zap.NewNop(),
		concurrency: defaultConcurrency,
		pending:     make(map[Token]*html.Node),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = lru.NewCache[*block.Block](defaultCacheSize)
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}
	return e
}

func (e *Editor) Store() *block.Store { return e.store }

func (e *Editor) Registry() *element.Registry { return e.registry }

func (e *Editor) Schemas() *schema.Set { return e.schemas }

func (e *Editor) scope() *element.Scope {
	return &element.Scope{Registry: e.registry, Store: e.store}
}
