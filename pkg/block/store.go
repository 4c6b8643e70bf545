package block

import (
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/internal/ulid"
	"github.com/stateful/blocks/pkg/dom"
)

// maxIDAttempts bounds UniqueID when the generator keeps colliding.
const maxIDAttempts = 100

// Store is an in-memory identity-keyed map of blocks.
//
// Writes follow a last-write-wins policy: Set overwrites any existing
// entry with the same id, including one of a different type. Callers that
// must not replace a block of another type check with [Store.Get] first.
//
// The mutex only protects readers running outside the host loop,
// like resolver goroutines consulting the store.
type Store struct {
	mu     sync.RWMutex
	blocks map[string]*Block
	genID  ulid.Generator
	logger *zap.Logger
}

type StoreOption func(*Store)

func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithGenerator(gen ulid.Generator) StoreOption {
	return func(s *Store) {
		s.genID = gen
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		blocks: make(map[string]*Block),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.genID == nil {
		s.genID = ulid.DefaultGenerator
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// GenID returns a new id. Collisions are possible, see [Store.UniqueID].
func (s *Store) GenID() string {
	return s.genID()
}

// UniqueID returns an id not used by any stored block.
func (s *Store) UniqueID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id := s.genID()
	for i := 1; i < maxIDAttempts; i++ {
		if _, ok := s.blocks[id]; !ok {
			return id
		}
		id = s.genID()
	}
	s.logger.Warn("could not generate a unique id", zap.String("id", id))
	return id
}

func (s *Store) Get(id string) *Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[id]
}

func (s *Store) Has(id string) bool {
	return s.Get(id) != nil
}

// Set assigns an id to every block lacking one and upserts them by id.
func (s *Store) Set(blocks ...*Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range blocks {
		if b == nil {
			continue
		}
		if b.ID == "" {
			b.ID = s.genID()
		}
		if prev, ok := s.blocks[b.ID]; ok && prev != b && prev.Type != b.Type {
			s.logger.Debug(
				"overwriting block of a different type",
				zap.String("id", b.ID),
				zap.String("previous", prev.Type),
				zap.String("type", b.Type),
			)
		}
		s.blocks[b.ID] = b
	}
}

// Clear removes blocks by id. Without ids, the store is emptied.
func (s *Store) Clear(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		s.blocks = make(map[string]*Block)
		return
	}
	for _, id := range ids {
		if _, ok := s.blocks[id]; !ok {
			s.logger.Warn("clear of unknown block", zap.String("id", id))
			continue
		}
		delete(s.blocks, id)
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// Blocks returns all stored blocks ordered by id.
func (s *Store) Blocks() []*Block {
	return s.Query(nil)
}

// Query returns the blocks for which match returns true, ordered by id.
// A nil match selects everything.
func (s *Store) Query(match func(*Block) bool) []*Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Block, 0, len(s.blocks))
	for _, b := range s.blocks {
		if match == nil || match(b) {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// QueryOptions narrows [DomQuery].
type QueryOptions struct {
	// Focused keeps only nodes carrying the focus marker.
	Focused bool
	// All returns every match instead of the first one.
	All bool
	// Content returns the named slot node of the first match.
	Content string
}

// DomQuery locates tree nodes rendering the block with the given id.
func (s *Store) DomQuery(root *html.Node, id string, opts QueryOptions) []*html.Node {
	return DomQuery(root, id, opts)
}

func DomQuery(root *html.Node, id string, opts QueryOptions) []*html.Node {
	match := func(n *html.Node) bool {
		if !dom.IsElement(n) || dom.GetAttr(n, AttrID) != id {
			return false
		}
		return !opts.Focused || dom.HasAttr(n, AttrFocused)
	}

	var nodes []*html.Node
	if match(root) {
		nodes = append(nodes, root)
	}
	if opts.All {
		nodes = append(nodes, dom.FindAll(root, match)...)
		return nodes
	}
	if len(nodes) == 0 {
		if n := dom.Find(root, match); n != nil {
			nodes = append(nodes, n)
		}
	}
	if len(nodes) == 0 {
		return nil
	}
	if opts.Content != "" {
		if slot := FindSlot(nodes[0], opts.Content); slot != nil {
			return []*html.Node{slot}
		}
		return nil
	}
	return nodes
}
