package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/service"
)

// maxRequestBody bounds quote request bodies; a route request is tiny.
const maxRequestBody = 1 << 16

type handlers struct {
	core *service.Core
}

func newHandlers(core *service.Core) *handlers {
	return &handlers{core: core}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// statusFor maps caller-visible error codes onto HTTP statuses.
func statusFor(code models.ErrorCode) int {
	switch code {
	case models.CodeInvalidRequest:
		return http.StatusBadRequest
	case models.CodeUnsupportedChain, models.CodeUnsupportedToken, models.CodeNoRoute:
		return http.StatusNotFound
	case models.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeRouteError(w http.ResponseWriter, rerr *models.RouteError) {
	writeJSON(w, statusFor(rerr.Code), errorResponse{
		Code:    string(rerr.Code),
		Message: rerr.Message,
		Field:   rerr.Field,
		Sources: rerr.Sources,
	})
}

// getRoute handles POST /v1/route.
func (h *handlers) getRoute(w http.ResponseWriter, r *http.Request) {
	var wire routeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		writeRouteError(w, models.InvalidRequest("body", err.Error()))
		return
	}

	amount, ok := new(big.Int).SetString(wire.AmountIn, 10)
	if !ok {
		writeRouteError(w, models.InvalidRequest("amount_in", "not a base-10 integer"))
		return
	}

	var slippage models.SlippagePolicy
	switch wire.Slippage.Mode {
	case string(models.SlippageFixed):
		slippage = models.FixedSlippage(wire.Slippage.Bps)
	case "":
		// No explicit policy: bare bps count as fixed, a fully empty
		// object leaves the aggregator's default tolerance in charge.
		if wire.Slippage.Bps > 0 {
			slippage = models.FixedSlippage(wire.Slippage.Bps)
		}
	case string(models.SlippageAuto):
		slippage = models.AutoSlippage(wire.Slippage.MaxBps)
	default:
		writeRouteError(w, models.InvalidRequest("slippage.mode", "must be fixed or auto"))
		return
	}

	req := models.RouteRequest{
		From:      h.core.MakeTokenRef(models.ChainID(wire.FromChain), wire.FromToken),
		To:        h.core.MakeTokenRef(models.ChainID(wire.ToChain), wire.ToToken),
		AmountIn:  amount,
		Slippage:  slippage,
		Deadline:  time.Duration(wire.DeadlineMs) * time.Millisecond,
		Recipient: wire.Recipient,
		MaxHops:   wire.MaxHops,
	}

	resp, rerr := h.core.GetRoute(r.Context(), req)
	if rerr != nil {
		writeRouteError(w, rerr)
		return
	}
	// Quotes expire; intermediaries must not serve them from cache.
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, toRouteResponse(resp))
}

// listChains handles GET /v1/chains.
func (h *handlers) listChains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"chains": h.core.ListSupportedChains(),
	})
}

// health reports registry, graph, and source state.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.core.HealthCheck())
}

// ready is the readiness probe: 200 once the registry is loaded.
func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	if !h.core.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
