// Package graph maintains the per-chain liquidity graph: tokens as nodes,
// pools as edges. One builder goroutine mutates a chain's graph; every reader
// works on an immutable snapshot.
package graph

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

// TokenNode is one graph node.
type TokenNode struct {
	Ref          models.TokenRef
	Decimals     int
	Symbol       string
	Category     models.TokenCategory
	LiquidityUSD decimal.Decimal
	// PriceUSD is the last observed USD price; zero when no source priced it.
	PriceUSD decimal.Decimal
}

// PoolEdge is one liquidity pool between two tokens on a chain.
// Canonical orientation: TokenA < TokenB by address.
type PoolEdge struct {
	ID           string
	Chain        models.ChainID
	TokenA       models.TokenRef
	TokenB       models.TokenRef
	DEX          string
	Factory      string
	PairAddress  string
	Reserve0     *big.Int
	Reserve1     *big.Int
	FeeBps       uint32
	LiquidityUSD decimal.Decimal
	LastUpdated  time.Time
}

// Normalize enforces canonical orientation, swapping tokens and reserves when
// the pair arrived reversed.
func (e *PoolEdge) Normalize() {
	if e.TokenA.Address > e.TokenB.Address {
		e.TokenA, e.TokenB = e.TokenB, e.TokenA
		e.Reserve0, e.Reserve1 = e.Reserve1, e.Reserve0
	}
}

// Validate checks the §3.3 edge invariants.
func (e *PoolEdge) Validate() error {
	if e.TokenA.Address >= e.TokenB.Address {
		return fmt.Errorf("edge %s: tokens not in canonical order", e.ID)
	}
	if e.Reserve0 == nil || e.Reserve1 == nil || e.Reserve0.Sign() <= 0 || e.Reserve1.Sign() <= 0 {
		return fmt.Errorf("edge %s: non-positive reserves", e.ID)
	}
	if e.FeeBps > 10000 {
		return fmt.Errorf("edge %s: fee %d bps out of range", e.ID, e.FeeBps)
	}
	if e.Chain != e.TokenA.Chain || e.Chain != e.TokenB.Chain {
		return fmt.Errorf("edge %s: token chains do not match edge chain %d", e.ID, e.Chain)
	}
	return nil
}

// Other returns the edge's opposite token, and false when the given token is
// not on the edge.
func (e *PoolEdge) Other(t models.TokenRef) (models.TokenRef, bool) {
	switch t {
	case e.TokenA:
		return e.TokenB, true
	case e.TokenB:
		return e.TokenA, true
	}
	return models.TokenRef{}, false
}

// ReservesFor orients the reserves for a swap entering with tokenIn.
func (e *PoolEdge) ReservesFor(tokenIn models.TokenRef) (rIn, rOut *big.Int, ok bool) {
	switch tokenIn {
	case e.TokenA:
		return e.Reserve0, e.Reserve1, true
	case e.TokenB:
		return e.Reserve1, e.Reserve0, true
	}
	return nil, nil, false
}

// clone copies the edge deeply enough that a snapshot holding the old value
// never observes later reserve writes.
func (e *PoolEdge) clone() *PoolEdge {
	cp := *e
	cp.Reserve0 = new(big.Int).Set(e.Reserve0)
	cp.Reserve1 = new(big.Int).Set(e.Reserve1)
	return &cp
}
