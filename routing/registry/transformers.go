package registry

import (
	"strings"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

// evmNativePlaceholder is the pseudo-address most EVM aggregators use for the
// chain's native currency.
const evmNativePlaceholder = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// solNativeMint is the wrapped-SOL mint Jupiter expects for native SOL.
const solNativeMint = "So11111111111111111111111111111111111111112"

// defaultTransformers installs the per-provider address rewrites. Providers
// not listed here receive canonical addresses unchanged.
func defaultTransformers() map[string]TokenTransformer {
	evmStyle := func(chain *Chain, ref models.TokenRef) (string, bool) {
		if ref.IsNative() {
			if chain.Kind == models.KindEVM {
				return evmNativePlaceholder, true
			}
			// Non-EVM natives go out under the provider's chain-native symbol
			// convention: the bare native symbol lowercased.
			return strings.ToLower(chain.NativeSymbol), true
		}
		return ref.Address, true
	}

	return map[string]TokenTransformer{
		"lifi":  evmStyle,
		"relay": evmStyle,
		"squid": evmStyle,
		"jupiter": func(chain *Chain, ref models.TokenRef) (string, bool) {
			if chain.Kind != models.KindSolana {
				return "", false
			}
			if ref.IsNative() {
				return solNativeMint, true
			}
			return ref.Address, true
		},
		"dexscreener": func(chain *Chain, ref models.TokenRef) (string, bool) {
			if ref.IsNative() {
				if chain.WrappedNative == "" {
					return "", false
				}
				// DexScreener indexes pools by wrapped form only.
				return chain.WrappedNative, true
			}
			return ref.Address, true
		},
	}
}

// RegisterTransformer is available for tests and for wiring providers that
// ship outside this module. It must be called before the registry is shared.
func (r *Registry) RegisterTransformer(provider string, tf TokenTransformer) {
	r.transformers[provider] = tf
}
