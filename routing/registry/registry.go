// Package registry is the single source of truth for chain and provider
// identity. Every translation between the core's canonical identifiers and an
// external provider's identifiers goes through here; no other package may
// carry provider-specific chain knowledge.
package registry

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "registry").Logger()
}

// Chain is the registry's view of one supported chain.
type Chain struct {
	ID             models.ChainID
	Name           string
	Kind           models.ChainKind
	NativeSymbol   string
	NativeDecimals int
	// WrappedNative is the wrapped-native token address, empty when the chain
	// has no wrapped form (e.g. Cosmos app chains).
	WrappedNative string
	// Bech32Prefix is set for Cosmos-kind chains and used to validate
	// recipient addresses.
	Bech32Prefix string
	// Metadata holds the chain's native identifier ("osmosis-1", "mainnet-beta")
	// and other descriptive fields. Never used for routing decisions.
	Metadata map[string]string
	// ProviderIDs maps a provider name to that provider's chain identifier.
	// A missing entry means the provider cannot route on this chain; that is
	// a deliberate absence, not an error.
	ProviderIDs map[string]string
}

// Token is a registered token with its category assignment.
type Token struct {
	Ref      models.TokenRef
	Symbol   string
	Decimals int
	Category models.TokenCategory
}

// BridgeToken is one canonical transit asset for a (source, dest) chain pair.
type BridgeToken struct {
	Symbol   string
	Source   models.TokenRef
	Dest     models.TokenRef
	Priority int
}

// TokenTransformer rewrites a canonical token address into the form one
// provider expects. Declared once per provider; the default is identity.
type TokenTransformer func(chain *Chain, ref models.TokenRef) (string, bool)

type chainPair struct {
	from, to models.ChainID
}

// Registry is immutable after New; it is freely shared across goroutines.
type Registry struct {
	chains        map[models.ChainID]*Chain
	providerIndex map[string]map[string]models.ChainID
	tokens        map[models.TokenRef]Token
	wrapped       map[models.ChainID]models.TokenRef
	bridgeTokens  map[chainPair][]BridgeToken
	transformers  map[string]TokenTransformer
}

// New builds and validates a registry. Chain ids must be positive and unique;
// every provider id must round-trip to exactly one chain.
func New(chains []Chain, tokens []Token, bridges []BridgeToken) (*Registry, error) {
	r := &Registry{
		chains:        make(map[models.ChainID]*Chain, len(chains)),
		providerIndex: make(map[string]map[string]models.ChainID),
		tokens:        make(map[models.TokenRef]Token, len(tokens)),
		wrapped:       make(map[models.ChainID]models.TokenRef),
		bridgeTokens:  make(map[chainPair][]BridgeToken),
		transformers:  defaultTransformers(),
	}

	for i := range chains {
		c := chains[i]
		if c.ID <= 0 {
			return nil, fmt.Errorf("chain %q: canonical id must be positive, got %d", c.Name, c.ID)
		}
		if _, dup := r.chains[c.ID]; dup {
			return nil, fmt.Errorf("duplicate canonical chain id %d", c.ID)
		}
		if c.Kind == models.KindEVM {
			c.WrappedNative = strings.ToLower(c.WrappedNative)
		}
		r.chains[c.ID] = &c

		for provider, providerID := range c.ProviderIDs {
			if providerID == "" {
				continue
			}
			key := strings.ToLower(providerID)
			if r.providerIndex[provider] == nil {
				r.providerIndex[provider] = make(map[string]models.ChainID)
			}
			if prev, dup := r.providerIndex[provider][key]; dup {
				return nil, fmt.Errorf("provider %s id %q maps to both chain %d and %d",
					provider, providerID, prev, c.ID)
			}
			r.providerIndex[provider][key] = c.ID
		}

		if c.WrappedNative != "" {
			r.wrapped[c.ID] = models.NewTokenRef(c.ID, c.Kind, c.WrappedNative)
		}
	}

	for _, t := range tokens {
		chain, ok := r.chains[t.Ref.Chain]
		if !ok {
			return nil, fmt.Errorf("token %s references unregistered chain %d", t.Ref, t.Ref.Chain)
		}
		t.Ref = models.NewTokenRef(chain.ID, chain.Kind, t.Ref.Address)
		if t.Category == "" {
			t.Category = models.CategoryAlt
		}
		r.tokens[t.Ref] = t
	}

	// Native and wrapped-native entries are always known and always category
	// native, whatever the config said.
	for id, c := range r.chains {
		native := models.TokenRef{Chain: id, Address: models.NativeAddress}
		r.tokens[native] = Token{
			Ref:      native,
			Symbol:   c.NativeSymbol,
			Decimals: c.NativeDecimals,
			Category: models.CategoryNative,
		}
		if w, ok := r.wrapped[id]; ok {
			sym := "W" + c.NativeSymbol
			if t, known := r.tokens[w]; known {
				sym = t.Symbol
			}
			r.tokens[w] = Token{Ref: w, Symbol: sym, Decimals: c.NativeDecimals, Category: models.CategoryNative}
		}
	}

	for _, b := range bridges {
		src, ok := r.chains[b.Source.Chain]
		if !ok {
			return nil, fmt.Errorf("bridge token %s references unregistered chain %d", b.Symbol, b.Source.Chain)
		}
		dst, ok := r.chains[b.Dest.Chain]
		if !ok {
			return nil, fmt.Errorf("bridge token %s references unregistered chain %d", b.Symbol, b.Dest.Chain)
		}
		b.Source = models.NewTokenRef(src.ID, src.Kind, b.Source.Address)
		b.Dest = models.NewTokenRef(dst.ID, dst.Kind, b.Dest.Address)
		key := chainPair{from: b.Source.Chain, to: b.Dest.Chain}
		r.bridgeTokens[key] = append(r.bridgeTokens[key], b)
	}
	for key := range r.bridgeTokens {
		list := r.bridgeTokens[key]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	}

	log.Info().
		Int("chains", len(r.chains)).
		Int("tokens", len(r.tokens)).
		Int("bridge_pairs", len(r.bridgeTokens)).
		Msg("Registry built")
	return r, nil
}

// ChainByID returns the chain for a canonical id.
func (r *Registry) ChainByID(id models.ChainID) (*Chain, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// ChainByProviderID resolves a provider's chain identifier back to the
// canonical chain. String ids match case-insensitively.
func (r *Registry) ChainByProviderID(provider, providerID string) (*Chain, bool) {
	ids, ok := r.providerIndex[provider]
	if !ok {
		return nil, false
	}
	id, ok := ids[strings.ToLower(providerID)]
	if !ok {
		return nil, false
	}
	return r.chains[id], true
}

// ProviderChainID returns the provider's identifier for a canonical chain.
func (r *Registry) ProviderChainID(id models.ChainID, provider string) (string, bool) {
	c, ok := r.chains[id]
	if !ok {
		return "", false
	}
	pid, ok := c.ProviderIDs[provider]
	if !ok || pid == "" {
		return "", false
	}
	return pid, true
}

// ProviderTokenAddress translates a canonical token address into the form the
// provider expects, applying the provider's transformer when one is declared.
func (r *Registry) ProviderTokenAddress(ref models.TokenRef, provider string) (string, bool) {
	c, ok := r.chains[ref.Chain]
	if !ok {
		return "", false
	}
	if _, supported := c.ProviderIDs[provider]; !supported {
		return "", false
	}
	if tf, ok := r.transformers[provider]; ok {
		return tf(c, ref)
	}
	return ref.Address, true
}

// KnownToken reports whether the token is registered, returning its metadata.
func (r *Registry) KnownToken(ref models.TokenRef) (Token, bool) {
	t, ok := r.tokens[r.NormalizeRef(ref)]
	return t, ok
}

// NormalizeRef applies the chain's address normalization (EVM lowercasing) so
// equality behaves per address format.
func (r *Registry) NormalizeRef(ref models.TokenRef) models.TokenRef {
	c, ok := r.chains[ref.Chain]
	if !ok {
		return ref
	}
	return models.NewTokenRef(c.ID, c.Kind, ref.Address)
}

// Category returns the token's ranker bucket; unregistered tokens are alt.
func (r *Registry) Category(ref models.TokenRef) models.TokenCategory {
	if t, ok := r.KnownToken(ref); ok {
		return t.Category
	}
	return models.CategoryAlt
}

// IsWrappedNative reports whether the ref is the chain's wrapped native token.
func (r *Registry) IsWrappedNative(ref models.TokenRef) bool {
	w, ok := r.wrapped[ref.Chain]
	return ok && r.NormalizeRef(ref) == w
}

// WrappedNative returns the wrapped-native token for a chain.
func (r *Registry) WrappedNative(id models.ChainID) (models.TokenRef, bool) {
	w, ok := r.wrapped[id]
	return w, ok
}

// BridgeTokens returns the ordered transit assets for a chain pair. The order
// is the order the cross-chain builder tries them in.
func (r *Registry) BridgeTokens(from, to models.ChainID) []BridgeToken {
	return r.bridgeTokens[chainPair{from: from, to: to}]
}

// TokensOnChain returns the registered tokens for one chain, ordered by
// address. This is the watchlist pool-discovery sources walk.
func (r *Registry) TokensOnChain(id models.ChainID) []Token {
	var out []Token
	for ref, t := range r.tokens {
		if ref.Chain == id {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Address < out[j].Ref.Address })
	return out
}

// Chains returns all registered chains ordered by canonical id.
func (r *Registry) Chains() []*Chain {
	out := make([]*Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidateRecipient checks that an address is plausible for the chain's
// format. EVM addresses must be hex; Cosmos addresses must bech32-decode with
// the chain's prefix. Other kinds only require a non-empty address.
func (r *Registry) ValidateRecipient(id models.ChainID, addr string) error {
	c, ok := r.chains[id]
	if !ok {
		return fmt.Errorf("chain %d not registered", id)
	}
	if addr == "" {
		return fmt.Errorf("empty recipient address")
	}
	switch c.Kind {
	case models.KindEVM:
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("recipient %q is not a valid EVM address", addr)
		}
	case models.KindCosmos:
		hrp, _, err := bech32.Decode(addr)
		if err != nil {
			return fmt.Errorf("recipient %q is not a valid bech32 address: %w", addr, err)
		}
		if c.Bech32Prefix != "" && hrp != c.Bech32Prefix {
			return fmt.Errorf("recipient prefix %q does not match chain prefix %q", hrp, c.Bech32Prefix)
		}
	}
	return nil
}
