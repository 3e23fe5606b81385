package graph_test

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/EmediongPeter/tiwi-routing-core/routing/graph"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

func ref(chain int64, addr string) models.TokenRef {
	return models.TokenRef{Chain: models.ChainID(chain), Address: addr}
}

func edge(id string, chain int64, a, b string, r0, r1 int64, liqUSD int64) graph.PoolEdge {
	return graph.PoolEdge{
		ID:           id,
		Chain:        models.ChainID(chain),
		TokenA:       ref(chain, a),
		TokenB:       ref(chain, b),
		DEX:          "uniswap-v2",
		PairAddress:  "0xpair-" + id,
		Reserve0:     big.NewInt(r0),
		Reserve1:     big.NewInt(r1),
		FeeBps:       30,
		LiquidityUSD: decimal.NewFromInt(liqUSD),
		LastUpdated:  time.Now(),
	}
}

func TestUpsertNormalizesOrientation(t *testing.T) {
	g := graph.NewChainGraph(1)

	// Reversed pair: TokenA > TokenB by address.
	e := edge("1:uni:p1", 1, "0xbb", "0xaa", 100, 200, 500_000)
	assert.NoError(t, g.UpsertEdge(e))

	got, ok := g.Snapshot().Edge("1:uni:p1")
	assert.True(t, ok)
	assert.Equal(t, "0xaa", got.TokenA.Address)
	assert.Equal(t, "0xbb", got.TokenB.Address)
	// Reserves swapped along with the tokens.
	assert.Equal(t, int64(200), got.Reserve0.Int64())
	assert.Equal(t, int64(100), got.Reserve1.Int64())
}

func TestUpsertRejectsInvalidEdges(t *testing.T) {
	g := graph.NewChainGraph(1)

	bad := edge("1:uni:p1", 1, "0xaa", "0xbb", 0, 200, 1)
	assert.Error(t, g.UpsertEdge(bad))

	bad = edge("1:uni:p1", 1, "0xaa", "0xbb", 100, 200, 1)
	bad.FeeBps = 10001
	assert.Error(t, g.UpsertEdge(bad))

	// Chain mismatch between edge and graph.
	bad = edge("2:uni:p1", 2, "0xaa", "0xbb", 100, 200, 1)
	assert.Error(t, g.UpsertEdge(bad))
}

func TestUpsertKeepsTimestampMonotone(t *testing.T) {
	g := graph.NewChainGraph(1)
	now := time.Now()

	fresh := edge("1:uni:p1", 1, "0xaa", "0xbb", 100, 200, 500_000)
	fresh.LastUpdated = now
	assert.NoError(t, g.UpsertEdge(fresh))

	// An older reading arriving late must not clobber the newer reserves.
	stale := edge("1:uni:p1", 1, "0xaa", "0xbb", 1, 1, 500_000)
	stale.LastUpdated = now.Add(-time.Minute)
	assert.NoError(t, g.UpsertEdge(stale))

	got, _ := g.Snapshot().Edge("1:uni:p1")
	assert.Equal(t, int64(100), got.Reserve0.Int64())
}

func TestSnapshotIsolation(t *testing.T) {
	g := graph.NewChainGraph(1)
	assert.NoError(t, g.UpsertEdge(edge("1:uni:p1", 1, "0xaa", "0xbb", 100, 200, 500_000)))

	before := g.Snapshot()
	assert.Equal(t, 1, before.EdgeCount())

	// Mutations after the snapshot was taken are invisible to it.
	e2 := edge("1:uni:p2", 1, "0xbb", "0xcc", 300, 400, 500_000)
	e2.LastUpdated = time.Now().Add(time.Second)
	assert.NoError(t, g.UpsertEdge(e2))
	g.RemoveEdge("1:uni:p1")

	assert.Equal(t, 1, before.EdgeCount())
	_, ok := before.Edge("1:uni:p1")
	assert.True(t, ok)

	after := g.Snapshot()
	assert.Equal(t, 1, after.EdgeCount())
	_, ok = after.Edge("1:uni:p1")
	assert.False(t, ok)
}

func TestNeighborsDeterministicOrder(t *testing.T) {
	g := graph.NewChainGraph(1)
	// Same hub token on every edge, mixed liquidity.
	assert.NoError(t, g.UpsertEdge(edge("1:uni:p1", 1, "0xaa", "0xbb", 100, 200, 100_000)))
	assert.NoError(t, g.UpsertEdge(edge("1:uni:p2", 1, "0xaa", "0xcc", 100, 200, 900_000)))
	assert.NoError(t, g.UpsertEdge(edge("1:uni:p3", 1, "0xaa", "0xdd", 100, 200, 900_000)))

	ns := g.Snapshot().Neighbors(ref(1, "0xaa"))
	assert.Equal(t, 3, len(ns))
	// Liquidity descending, then id ascending for ties.
	assert.Equal(t, "1:uni:p2", ns[0].ID)
	assert.Equal(t, "1:uni:p3", ns[1].ID)
	assert.Equal(t, "1:uni:p1", ns[2].ID)
}

func TestSetReady(t *testing.T) {
	set := graph.NewSet()
	assert.False(t, set.Ready(1))

	g := set.Chain(1)
	assert.False(t, set.Ready(1))

	assert.NoError(t, g.UpsertEdge(edge("1:uni:p1", 1, "0xaa", "0xbb", 100, 200, 500_000)))
	assert.True(t, set.Ready(1))

	assert.Equal(t, 1, len(set.Chains()))
}

func TestReservesFor(t *testing.T) {
	e := edge("1:uni:p1", 1, "0xaa", "0xbb", 100, 200, 0)

	rIn, rOut, ok := e.ReservesFor(ref(1, "0xaa"))
	assert.True(t, ok)
	assert.Equal(t, int64(100), rIn.Int64())
	assert.Equal(t, int64(200), rOut.Int64())

	rIn, rOut, ok = e.ReservesFor(ref(1, "0xbb"))
	assert.True(t, ok)
	assert.Equal(t, int64(200), rIn.Int64())
	assert.Equal(t, int64(100), rOut.Int64())

	_, _, ok = e.ReservesFor(ref(1, "0xzz"))
	assert.False(t, ok)
}

func TestManyEdgesStayConsistent(t *testing.T) {
	g := graph.NewChainGraph(1)
	for i := 0; i < 50; i++ {
		a := fmt.Sprintf("0xa%02d", i)
		b := fmt.Sprintf("0xb%02d", i)
		assert.NoError(t, g.UpsertEdge(edge(fmt.Sprintf("1:uni:p%d", i), 1, a, b, 100, 200, int64(i)*1000)))
	}
	snap := g.Snapshot()
	assert.Equal(t, 50, snap.EdgeCount())
	assert.Equal(t, 100, snap.Size())
}
