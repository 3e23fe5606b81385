package pathfind

import (
	"container/heap"
	"context"
	"math"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "pathfinder").Logger()
}

// Config tunes the search.
type Config struct {
	// MaxHops bounds path length in pool hops.
	MaxHops int
	// TopK is how many distinct paths Find returns at most.
	TopK int
	// MaxDrainBps rejects hops that would consume more than this share of the
	// input-side reserve.
	MaxDrainBps uint32
	// StaleAfter rejects edges not refreshed within the window; zero disables
	// the check.
	StaleAfter time.Duration
	// GasPerHopUSD is the flat per-hop gas estimate used for costing.
	GasPerHopUSD decimal.Decimal
	// AlternativeFloor drops alternatives delivering less than this fraction
	// of the best path's output.
	AlternativeFloor float64
}

// DefaultConfig returns the standard search tuning.
func DefaultConfig() Config {
	return Config{
		MaxHops:          4,
		TopK:             3,
		MaxDrainBps:      3000,
		StaleAfter:       30 * time.Minute,
		GasPerHopUSD:     decimal.NewFromFloat(0.5),
		AlternativeFloor: 0.95,
	}
}

// Path is one candidate route through the graph with exact simulated amounts:
// Amounts[0] is the input, Amounts[i+1] the output of Edges[i].
type Path struct {
	Tokens  []models.TokenRef
	Edges   []*graph.PoolEdge
	Amounts []*big.Int
	Impacts []float64
	Cost    float64
}

// AmountOut is the path's final simulated output.
func (p *Path) AmountOut() *big.Int {
	return p.Amounts[len(p.Amounts)-1]
}

// Hops returns the number of pool hops.
func (p *Path) Hops() int { return len(p.Edges) }

// signature joins the edge ids; used for deterministic tie-breaking.
func (p *Path) signature() string {
	ids := make([]string, len(p.Edges))
	for i, e := range p.Edges {
		ids[i] = e.ID
	}
	return strings.Join(ids, "|")
}

// Finder searches one chain's snapshot for top-K paths.
type Finder struct {
	cfg Config
	reg *registry.Registry
}

// NewFinder builds a finder; zero config fields fall back to defaults.
func NewFinder(reg *registry.Registry, cfg Config) *Finder {
	def := DefaultConfig()
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = def.MaxHops
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MaxDrainBps == 0 {
		cfg.MaxDrainBps = def.MaxDrainBps
	}
	if cfg.AlternativeFloor <= 0 || cfg.AlternativeFloor > 1 {
		cfg.AlternativeFloor = def.AlternativeFloor
	}
	if cfg.GasPerHopUSD.IsZero() {
		cfg.GasPerHopUSD = def.GasPerHopUSD
	}
	return &Finder{cfg: cfg, reg: reg}
}

// maxExpansions caps frontier pops per search. Roughly the reachable-set size
// at which exhaustive best-first search stops paying for itself.
const maxExpansions = 5000

// searchItem is one partial path on the frontier.
type searchItem struct {
	path Path
}

type frontier []*searchItem

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].path.Cost != f[j].path.Cost {
		return f[i].path.Cost < f[j].path.Cost
	}
	if f[i].path.Hops() != f[j].path.Hops() {
		return f[i].path.Hops() < f[j].path.Hops()
	}
	return f[i].path.signature() < f[j].path.signature()
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(*searchItem)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return item
}

// Find returns up to TopK paths from `from` to `to` for the given input,
// best first. An empty result with a nil error means the graph simply has no
// usable path; the caller decides whether that is an error. When the context
// expires mid-search the best paths found so far are returned.
func (f *Finder) Find(ctx context.Context, snap *graph.Snapshot, from, to models.TokenRef, amountIn *big.Int, maxHops int) []Path {
	if maxHops <= 0 || maxHops > f.cfg.MaxHops {
		maxHops = f.cfg.MaxHops
	}
	from = f.reg.NormalizeRef(from)
	to = f.reg.NormalizeRef(to)
	if from == to || amountIn == nil || amountIn.Sign() <= 0 {
		return nil
	}

	start := time.Now()
	gasTerm := f.gasTerm(snap, from, amountIn)
	staleCutoff := time.Time{}
	if f.cfg.StaleAfter > 0 {
		staleCutoff = time.Now().Add(-f.cfg.StaleAfter)
	}

	fr := &frontier{}
	heap.Init(fr)
	heap.Push(fr, &searchItem{path: Path{
		Tokens:  []models.TokenRef{from},
		Amounts: []*big.Int{amountIn},
	}})

	pops := map[models.TokenRef]int{}
	var complete []Path
	expansions := 0

	for fr.Len() > 0 && len(complete) < f.cfg.TopK {
		if ctx.Err() != nil {
			log.Debug().Dur("elapsed", time.Since(start)).Msg("Search deadline hit, returning best so far")
			break
		}
		// On very dense graphs the frontier work is bounded; past the budget
		// the search settles for the complete paths found so far.
		expansions++
		if expansions > maxExpansions {
			log.Debug().Int("complete", len(complete)).Msg("Expansion budget hit, returning best so far")
			break
		}

		item := heap.Pop(fr).(*searchItem)
		cur := item.path
		head := cur.Tokens[len(cur.Tokens)-1]

		if head == to {
			complete = append(complete, cur)
			continue
		}

		// K pops per node keeps alternatives alive without exhausting the
		// frontier on one hub token.
		if pops[head] >= f.cfg.TopK {
			continue
		}
		pops[head]++

		if cur.Hops() >= maxHops {
			continue
		}

		amount := cur.Amounts[len(cur.Amounts)-1]
		for _, e := range snap.Neighbors(head) {
			next, ok := e.Other(head)
			if !ok || f.visited(&cur, next) {
				continue
			}
			if next != to && !f.allowedIntermediary(next, from, to) {
				continue
			}
			if !staleCutoff.IsZero() && e.LastUpdated.Before(staleCutoff) {
				continue
			}
			rIn, rOut, ok := e.ReservesFor(head)
			if !ok {
				continue
			}
			if DrainBps(amount, rIn) > f.cfg.MaxDrainBps {
				continue
			}
			out := AmountOut(amount, rIn, rOut, e.FeeBps)
			if out == nil {
				continue
			}
			impact := Impact(amount, rIn, rOut, out)

			heap.Push(fr, &searchItem{
				path: Path{
					Tokens:  appendToken(cur.Tokens, next),
					Edges:   appendEdge(cur.Edges, e),
					Amounts: appendAmount(cur.Amounts, out),
					Impacts: appendImpact(cur.Impacts, impact),
					Cost:    cur.Cost + f.edgeCost(snap, head, next, amount, out, impact, gasTerm),
				},
			})
		}
	}

	return f.rank(complete)
}

// rank orders complete paths by output, applies the alternative floor, and
// caps the result at TopK.
func (f *Finder) rank(paths []Path) []Path {
	if len(paths) == 0 {
		return nil
	}
	sort.SliceStable(paths, func(i, j int) bool {
		c := paths[i].AmountOut().Cmp(paths[j].AmountOut())
		if c != 0 {
			return c > 0
		}
		if paths[i].Hops() != paths[j].Hops() {
			return paths[i].Hops() < paths[j].Hops()
		}
		return paths[i].signature() < paths[j].signature()
	})

	best := paths[0].AmountOut()
	floor := new(big.Float).Mul(new(big.Float).SetInt(best), big.NewFloat(f.cfg.AlternativeFloor))
	kept := paths[:1]
	for _, p := range paths[1:] {
		if len(kept) >= f.cfg.TopK {
			break
		}
		if new(big.Float).SetInt(p.AmountOut()).Cmp(floor) >= 0 {
			kept = append(kept, p)
		}
	}
	return kept
}

// allowedIntermediary restricts transit tokens to the liquid core of the
// chain: natives, stables, and bluechips. Endpoint tokens are always allowed.
func (f *Finder) allowedIntermediary(token, from, to models.TokenRef) bool {
	if token == from || token == to {
		return true
	}
	switch f.reg.Category(token) {
	case models.CategoryNative, models.CategoryStable, models.CategoryBluechip:
		return true
	}
	return false
}

func (f *Finder) visited(p *Path, token models.TokenRef) bool {
	for _, t := range p.Tokens {
		if t == token {
			return true
		}
	}
	return false
}

// edgeCost prices one hop for the priority queue: the negative log of the
// decimals-adjusted exchange rate, an impact penalty, and a gas term. Final
// ranking uses exact simulated amounts, so the cost only has to order the
// frontier sensibly.
func (f *Finder) edgeCost(snap *graph.Snapshot, inTok, outTok models.TokenRef, in, out *big.Int, impact, gasTerm float64) float64 {
	rate := ratFloat(out, in)
	if shift := f.decimals(snap, inTok) - f.decimals(snap, outTok); shift != 0 {
		rate *= math.Pow10(shift)
	}
	if rate <= 0 {
		return math.Inf(1)
	}
	return -math.Log(rate) + 2.0*impact + gasTerm
}

// gasTerm converts the per-hop gas estimate into cost units relative to the
// trade's USD size. Unpriced inputs get a small flat penalty so longer paths
// still lose ties.
func (f *Finder) gasTerm(snap *graph.Snapshot, from models.TokenRef, amountIn *big.Int) float64 {
	const flatHopPenalty = 0.0005

	node, ok := snap.Node(from)
	if !ok || node.PriceUSD.IsZero() {
		return flatHopPenalty
	}
	human := decimal.NewFromBigInt(amountIn, -int32(f.decimals(snap, from)))
	inputUSD := human.Mul(node.PriceUSD)
	if inputUSD.IsZero() {
		return flatHopPenalty
	}
	term, _ := f.cfg.GasPerHopUSD.Div(inputUSD).Float64()
	if term < flatHopPenalty {
		term = flatHopPenalty
	}
	return term
}

func (f *Finder) decimals(snap *graph.Snapshot, ref models.TokenRef) int {
	if n, ok := snap.Node(ref); ok && n.Decimals > 0 {
		return n.Decimals
	}
	if t, ok := f.reg.KnownToken(ref); ok {
		return t.Decimals
	}
	return 18
}

// append helpers copy so sibling frontier entries never share backing arrays.

func appendToken(s []models.TokenRef, v models.TokenRef) []models.TokenRef {
	out := make([]models.TokenRef, len(s)+1)
	copy(out, s)
	out[len(s)] = v
	return out
}

func appendEdge(s []*graph.PoolEdge, v *graph.PoolEdge) []*graph.PoolEdge {
	out := make([]*graph.PoolEdge, len(s)+1)
	copy(out, s)
	out[len(s)] = v
	return out
}

func appendAmount(s []*big.Int, v *big.Int) []*big.Int {
	out := make([]*big.Int, len(s)+1)
	copy(out, s)
	out[len(s)] = v
	return out
}

func appendImpact(s []float64, v float64) []float64 {
	out := make([]float64, len(s)+1)
	copy(out, s)
	out[len(s)] = v
	return out
}
