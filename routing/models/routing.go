package models

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ChainID is the canonical, process-wide stable identifier for a chain.
// It is assigned explicitly in the registry config and never derived by
// hashing a chain's native identifier.
type ChainID int64

// ChainKind describes the address/runtime family a chain belongs to.
type ChainKind string

const (
	KindEVM     ChainKind = "evm"
	KindSolana  ChainKind = "solana"
	KindCosmos  ChainKind = "cosmos"
	KindSui     ChainKind = "sui"
	KindTON     ChainKind = "ton"
	KindBitcoin ChainKind = "bitcoin"
	KindOther   ChainKind = "other"
)

// NativeAddress is the sentinel address for a chain's native currency.
const NativeAddress = "native"

// TokenRef identifies a token inside the core as (canonical chain id, address).
// EVM addresses are stored lowercased so that plain == comparison gives the
// case-insensitive equality the address format requires; other kinds keep the
// address verbatim.
type TokenRef struct {
	Chain   ChainID `json:"chain_id"`
	Address string  `json:"address"`
}

// NewTokenRef builds a TokenRef, normalizing the address for the given kind.
func NewTokenRef(chain ChainID, kind ChainKind, address string) TokenRef {
	if kind == KindEVM {
		address = strings.ToLower(address)
	}
	return TokenRef{Chain: chain, Address: address}
}

// IsNative reports whether the ref points at the chain's native currency.
func (r TokenRef) IsNative() bool {
	return r.Address == NativeAddress
}

func (r TokenRef) IsZero() bool {
	return r.Chain == 0 && r.Address == ""
}

func (r TokenRef) String() string {
	return fmt.Sprintf("%d:%s", r.Chain, r.Address)
}

// TokenCategory buckets tokens for the intermediary ranker.
type TokenCategory string

const (
	CategoryNative   TokenCategory = "native"
	CategoryStable   TokenCategory = "stable"
	CategoryBluechip TokenCategory = "bluechip"
	CategoryAlt      TokenCategory = "alt"
)

// SlippageMode distinguishes the two slippage policies.
type SlippageMode string

const (
	SlippageFixed SlippageMode = "fixed"
	SlippageAuto  SlippageMode = "auto"
)

// SlippagePolicy is either Fixed{bps} or Auto{maxBps}.
type SlippagePolicy struct {
	Mode SlippageMode `json:"mode"`
	// Bps is the tolerance for fixed mode.
	Bps uint32 `json:"bps,omitempty"`
	// MaxBps caps the source-chosen tolerance in auto mode.
	MaxBps uint32 `json:"max_bps,omitempty"`
}

func FixedSlippage(bps uint32) SlippagePolicy {
	return SlippagePolicy{Mode: SlippageFixed, Bps: bps}
}

func AutoSlippage(maxBps uint32) SlippagePolicy {
	return SlippagePolicy{Mode: SlippageAuto, MaxBps: maxBps}
}

// Clamp returns the slippage to apply given what a source chose on its own.
// Fixed policies ignore the source's choice entirely. Auto policies accept it
// up to MaxBps. The second return is true when the source's value was clamped.
func (p SlippagePolicy) Clamp(sourceBps uint32) (uint32, bool) {
	switch p.Mode {
	case SlippageAuto:
		if sourceBps == 0 {
			return p.MaxBps, false
		}
		if sourceBps > p.MaxBps {
			return p.MaxBps, true
		}
		return sourceBps, false
	default:
		return p.Bps, false
	}
}

// RouteRequest is the caller's quote request.
type RouteRequest struct {
	From      TokenRef
	To        TokenRef
	AmountIn  *big.Int
	Slippage  SlippagePolicy
	Deadline  time.Duration
	Recipient string
	// MaxHops overrides the configured hop limit when > 0.
	MaxHops int
}

// SameChain reports whether source and destination live on one chain.
func (r RouteRequest) SameChain() bool { return r.From.Chain == r.To.Chain }

// StepKind tags the RouteStep union.
type StepKind string

const (
	StepSwap   StepKind = "swap"
	StepBridge StepKind = "bridge"
	StepWrap   StepKind = "wrap"
	StepUnwrap StepKind = "unwrap"
)

// SwapStep is one same-chain swap, possibly multi-pool.
type SwapStep struct {
	Chain           ChainID
	FromToken       TokenRef
	ToToken         TokenRef
	DEX             string
	AmountIn        *big.Int
	AmountOutQuoted *big.Int
	// PoolPath lists the pool ids the swap routes through, in order.
	PoolPath []string
	// RawAmountOut is the provider's untouched output integer, recorded so
	// the executor can reproduce the exact value the provider's router
	// expects. Empty for internally simulated swaps.
	RawAmountOut string
}

// BridgeStep is one cross-chain transfer of a bridgeable token.
type BridgeStep struct {
	FromChain        ChainID
	ToChain          ChainID
	FromToken        TokenRef
	ToToken          TokenRef
	BridgeID         string
	AmountIn         *big.Int
	AmountOutQuoted  *big.Int
	FeesUSD          decimal.Decimal
	EstimatedSeconds int64
}

// WrapStep converts between a chain's native currency and its wrapped form.
// Used for both wrap and unwrap; the step kind decides the direction.
type WrapStep struct {
	Chain  ChainID
	Token  TokenRef
	Amount *big.Int
}

// RouteStep is a tagged union: exactly one of the pointers matching Kind is set.
type RouteStep struct {
	Kind   StepKind    `json:"kind"`
	Swap   *SwapStep   `json:"swap,omitempty"`
	Bridge *BridgeStep `json:"bridge,omitempty"`
	Wrap   *WrapStep   `json:"wrap,omitempty"`
	// Hint carries provider execution data verbatim; nil for steps the
	// executor can build on its own.
	Hint *ExecutionHint `json:"hint,omitempty"`
}

// InputToken returns the token the step consumes.
func (s RouteStep) InputToken() TokenRef {
	switch s.Kind {
	case StepSwap:
		return s.Swap.FromToken
	case StepBridge:
		return s.Bridge.FromToken
	case StepWrap, StepUnwrap:
		return s.Wrap.Token
	}
	return TokenRef{}
}

// OutputToken returns the token the step produces. Wrap and unwrap steps
// report their configured token; the wrapped/native translation is resolved
// by the registry, not here.
func (s RouteStep) OutputToken() TokenRef {
	switch s.Kind {
	case StepSwap:
		return s.Swap.ToToken
	case StepBridge:
		return s.Bridge.ToToken
	case StepWrap, StepUnwrap:
		return s.Wrap.Token
	}
	return TokenRef{}
}

// AmountIn returns the step's input amount.
func (s RouteStep) AmountIn() *big.Int {
	switch s.Kind {
	case StepSwap:
		return s.Swap.AmountIn
	case StepBridge:
		return s.Bridge.AmountIn
	case StepWrap, StepUnwrap:
		return s.Wrap.Amount
	}
	return nil
}

// AmountOutQuoted returns the step's pre-slippage output amount. Wrapping is
// 1:1 so wrap/unwrap steps quote their input amount.
func (s RouteStep) AmountOutQuoted() *big.Int {
	switch s.Kind {
	case StepSwap:
		return s.Swap.AmountOutQuoted
	case StepBridge:
		return s.Bridge.AmountOutQuoted
	case StepWrap, StepUnwrap:
		return s.Wrap.Amount
	}
	return nil
}

// Route is an immutable ranked quote candidate.
type Route struct {
	ID     string
	Source string
	Steps  []RouteStep

	AmountIn        *big.Int
	AmountOutQuoted *big.Int
	AmountOutMin    *big.Int

	PriceImpactBps int32
	GasEstimateUSD decimal.Decimal
	TotalFeesUSD   decimal.Decimal

	// SlippageBps is the effective tolerance AmountOutMin was computed with.
	SlippageBps uint32
	// SlippageClampedAt is non-zero when an auto-slippage source exceeded the
	// request's cap and was clamped.
	SlippageClampedAt uint32

	// RequiresExactSimulation marks routes through fee-on-transfer tokens
	// where reserve math may not match execution.
	RequiresExactSimulation bool

	ExpiresAt time.Time
}

// MinOut applies the §3.4 rule: quoted · (10000 − bps) / 10000, truncated.
func MinOut(quoted *big.Int, slippageBps uint32) *big.Int {
	if quoted == nil {
		return nil
	}
	out := new(big.Int).Mul(quoted, big.NewInt(int64(10000-slippageBps)))
	return out.Quo(out, big.NewInt(10000))
}

// Validate checks the route invariants: at least one step, step chaining
// (token continuity and pre-slippage amount threading), and the slippage
// floor. A violation is a bug, so callers abort with an internal error.
func (r *Route) Validate() error {
	if len(r.Steps) == 0 {
		return fmt.Errorf("route %s: no steps", r.ID)
	}
	if r.AmountIn == nil || r.AmountIn.Sign() <= 0 {
		return fmt.Errorf("route %s: non-positive amount in", r.ID)
	}
	for i := 0; i+1 < len(r.Steps); i++ {
		cur, next := r.Steps[i], r.Steps[i+1]
		// A bridge step's output token legitimately differs from the next
		// step's input chain only when the next step is on the bridge's
		// destination chain; token identity must still match.
		if next.Kind != StepUnwrap && next.Kind != StepWrap && cur.OutputToken() != next.InputToken() {
			return fmt.Errorf("route %s: step %d output %s != step %d input %s",
				r.ID, i, cur.OutputToken(), i+1, next.InputToken())
		}
		if cur.AmountOutQuoted().Cmp(next.AmountIn()) != 0 {
			return fmt.Errorf("route %s: step %d amount chaining broken", r.ID, i)
		}
	}
	if r.AmountOutMin != nil && r.AmountOutQuoted != nil {
		if r.AmountOutMin.Cmp(r.AmountOutQuoted) > 0 {
			return fmt.Errorf("route %s: amountOutMin above quote", r.ID)
		}
	}
	return nil
}

// RouteResponse is the caller-facing result of a quote request.
type RouteResponse struct {
	Best         *Route
	Alternatives []*Route
	Diagnostics  []AdapterError
}
