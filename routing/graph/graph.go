package graph

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

// Snapshot is an immutable, consistent view of one chain's graph. All
// pathfinding in one invocation runs against a single snapshot, so neighbor
// sets and reserves cannot change mid-search.
type Snapshot struct {
	Chain   models.ChainID
	TakenAt time.Time

	nodes map[models.TokenRef]TokenNode
	adj   map[models.TokenRef][]*PoolEdge
	edges map[string]*PoolEdge
}

// Node returns the token node for a ref.
func (s *Snapshot) Node(ref models.TokenRef) (TokenNode, bool) {
	n, ok := s.nodes[ref]
	return n, ok
}

// Neighbors returns the edges incident to a token, ordered by descending
// liquidity then id so iteration order is deterministic.
func (s *Snapshot) Neighbors(ref models.TokenRef) []*PoolEdge {
	return s.adj[ref]
}

// Edge returns an edge by id.
func (s *Snapshot) Edge(id string) (*PoolEdge, bool) {
	e, ok := s.edges[id]
	return e, ok
}

// Size returns the node count.
func (s *Snapshot) Size() int { return len(s.nodes) }

// EdgeCount returns the edge count.
func (s *Snapshot) EdgeCount() int { return len(s.edges) }

// ChainGraph holds one chain's mutable graph. Mutation is serialized by mu;
// readers load the current snapshot without locking.
type ChainGraph struct {
	chain models.ChainID

	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[Snapshot]
}

// NewChainGraph returns an empty graph for a chain.
func NewChainGraph(chain models.ChainID) *ChainGraph {
	g := &ChainGraph{chain: chain}
	g.snap.Store(&Snapshot{
		Chain:   chain,
		TakenAt: time.Now(),
		nodes:   map[models.TokenRef]TokenNode{},
		adj:     map[models.TokenRef][]*PoolEdge{},
		edges:   map[string]*PoolEdge{},
	})
	return g
}

// Snapshot returns the current immutable view. Cheap: a pointer load.
func (g *ChainGraph) Snapshot() *Snapshot {
	return g.snap.Load()
}

// UpsertEdge inserts or replaces one edge atomically. Updates carrying a
// LastUpdated older than the stored edge are ignored, keeping the per-edge
// timestamp monotone. Node liquidity/price metadata may be supplied alongside.
func (g *ChainGraph) UpsertEdge(edge PoolEdge, nodes ...TokenNode) error {
	edge.Normalize()
	if err := edge.Validate(); err != nil {
		return err
	}
	if edge.Chain != g.chain {
		return fmt.Errorf("edge %s belongs to chain %d, graph is chain %d", edge.ID, edge.Chain, g.chain)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.snap.Load()
	if prev, ok := cur.edges[edge.ID]; ok && edge.LastUpdated.Before(prev.LastUpdated) {
		return nil
	}

	next := cur.rebuildWith(&edge, nodes)
	g.snap.Store(next)
	return nil
}

// RemoveEdge deletes an edge; unknown ids are a no-op. Only the maintenance
// path calls this, never the quote path.
func (g *ChainGraph) RemoveEdge(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.snap.Load()
	if _, ok := cur.edges[id]; !ok {
		return
	}
	next := cur.rebuildWithout(id)
	g.snap.Store(next)
}

// rebuildWith produces a new snapshot containing the upserted edge. The edge
// is cloned so callers cannot mutate snapshot state afterwards.
func (s *Snapshot) rebuildWith(edge *PoolEdge, extraNodes []TokenNode) *Snapshot {
	e := edge.clone()

	next := &Snapshot{
		Chain:   s.Chain,
		TakenAt: time.Now(),
		nodes:   make(map[models.TokenRef]TokenNode, len(s.nodes)+2),
		adj:     make(map[models.TokenRef][]*PoolEdge, len(s.adj)+2),
		edges:   make(map[string]*PoolEdge, len(s.edges)+1),
	}
	for k, v := range s.nodes {
		next.nodes[k] = v
	}
	for k, v := range s.edges {
		next.edges[k] = v
	}
	next.edges[e.ID] = e

	for _, n := range extraNodes {
		next.nodes[n.Ref] = n
	}
	for _, ref := range []models.TokenRef{e.TokenA, e.TokenB} {
		if _, ok := next.nodes[ref]; !ok {
			next.nodes[ref] = TokenNode{Ref: ref, Category: models.CategoryAlt}
		}
	}

	next.reindex()
	return next
}

func (s *Snapshot) rebuildWithout(id string) *Snapshot {
	next := &Snapshot{
		Chain:   s.Chain,
		TakenAt: time.Now(),
		nodes:   make(map[models.TokenRef]TokenNode, len(s.nodes)),
		adj:     make(map[models.TokenRef][]*PoolEdge, len(s.adj)),
		edges:   make(map[string]*PoolEdge, len(s.edges)),
	}
	for k, v := range s.nodes {
		next.nodes[k] = v
	}
	for k, v := range s.edges {
		if k != id {
			next.edges[k] = v
		}
	}
	next.reindex()
	return next
}

// reindex rebuilds adjacency from the edge table with deterministic ordering.
func (s *Snapshot) reindex() {
	for _, e := range s.edges {
		s.adj[e.TokenA] = append(s.adj[e.TokenA], e)
		s.adj[e.TokenB] = append(s.adj[e.TokenB], e)
	}
	for ref := range s.adj {
		list := s.adj[ref]
		sort.Slice(list, func(i, j int) bool {
			if !list[i].LiquidityUSD.Equal(list[j].LiquidityUSD) {
				return list[i].LiquidityUSD.GreaterThan(list[j].LiquidityUSD)
			}
			return list[i].ID < list[j].ID
		})
	}
}

// Set is the collection of per-chain graphs the process maintains.
type Set struct {
	mu     sync.RWMutex
	graphs map[models.ChainID]*ChainGraph
}

// NewSet returns an empty graph set.
func NewSet() *Set {
	return &Set{graphs: make(map[models.ChainID]*ChainGraph)}
}

// Chain returns the graph for a chain, creating it on first use.
func (s *Set) Chain(id models.ChainID) *ChainGraph {
	s.mu.RLock()
	g, ok := s.graphs[id]
	s.mu.RUnlock()
	if ok {
		return g
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok = s.graphs[id]; ok {
		return g
	}
	g = NewChainGraph(id)
	s.graphs[id] = g
	return g
}

// Ready reports whether a chain's graph has any pools loaded.
func (s *Set) Ready(id models.ChainID) bool {
	s.mu.RLock()
	g, ok := s.graphs[id]
	s.mu.RUnlock()
	return ok && g.Snapshot().EdgeCount() > 0
}

// Chains lists chains with graphs, for health reporting.
func (s *Set) Chains() []models.ChainID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChainID, 0, len(s.graphs))
	for id := range s.graphs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
