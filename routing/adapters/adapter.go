// Package adapters defines the uniform surface external routing providers
// are wrapped behind. Each provider lives in its own subpackage and reports
// failures through the shared error taxonomy instead of leaking transport
// details upward.
package adapters

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/EmediongPeter/tiwi-routing-core/routing/fetch"
	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

// Capabilities describes what one provider can do, consulted during
// eligibility filtering and tie-breaking.
type Capabilities struct {
	// CrossChain providers can quote between chains in one call.
	CrossChain bool
	// SupportsExactOut providers accept exact-output requests.
	SupportsExactOut bool
	// MaxSlippageBps is the largest tolerance the provider accepts.
	MaxSlippageBps uint32
	// Priority breaks score ties between providers; lower wins.
	Priority int
}

// Adapter is one external routing provider.
type Adapter interface {
	Name() string
	// Supports reports whether the provider can even attempt the request.
	// Returning false excludes it from fan-out without an error entry.
	Supports(req models.RouteRequest) bool
	Capabilities() Capabilities
	// Quote fetches one route candidate. Exactly one return is non-nil.
	Quote(ctx context.Context, req models.RouteRequest) (*models.Route, *models.AdapterError)
}

// Classify maps a transport-level error into the adapter error taxonomy.
func Classify(adapter string, err error) *models.AdapterError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewAdapterError(adapter, models.AdapterTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return models.NewAdapterError(adapter, models.AdapterTimeout, "request cancelled")
	}

	var se *fetch.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return models.NewAdapterError(adapter, models.AdapterRateLimited, err.Error())
		case se.StatusCode == http.StatusNotFound:
			return models.NewAdapterError(adapter, models.AdapterNoRoute, err.Error())
		case se.StatusCode >= 400 && se.StatusCode < 500:
			if mentionsNoRoute(se.Body) {
				return models.NewAdapterError(adapter, models.AdapterNoRoute, err.Error())
			}
			return models.NewAdapterError(adapter, models.AdapterInvalid, err.Error())
		default:
			return models.NewAdapterError(adapter, models.AdapterTransport, err.Error())
		}
	}
	return models.NewAdapterError(adapter, models.AdapterTransport, err.Error())
}

// mentionsNoRoute catches providers that report route absence through a 4xx
// body instead of a dedicated status.
func mentionsNoRoute(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "no route") ||
		strings.Contains(lower, "no quotes") ||
		strings.Contains(lower, "not found") ||
		strings.Contains(lower, "insufficient liquidity")
}
