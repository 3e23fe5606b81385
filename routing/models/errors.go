package models

import (
	"fmt"
	"strings"
)

// ErrorCode is the stable machine-readable failure classification exposed to
// callers. It is a tagged value, not an exception hierarchy: every failure a
// caller can see is one of these.
type ErrorCode string

const (
	CodeInvalidRequest   ErrorCode = "invalid_request"
	CodeUnsupportedChain ErrorCode = "unsupported_chain"
	CodeUnsupportedToken ErrorCode = "unsupported_token"
	CodeNoRoute          ErrorCode = "no_route"
	CodeTimeout          ErrorCode = "timeout"
	CodePartialFailure   ErrorCode = "partial_failure"
	CodeInternal         ErrorCode = "internal"
)

// RouteError is the caller-visible error. Message is safe to surface; internal
// details stay in logs.
type RouteError struct {
	Code    ErrorCode
	Message string
	// Field names the offending request field for invalid_request errors.
	Field string
	// Sources carries per-source diagnostics for no_route and timeout.
	Sources []AdapterError
}

func (e *RouteError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func InvalidRequest(field, reason string) *RouteError {
	return &RouteError{Code: CodeInvalidRequest, Message: reason, Field: field}
}

func UnsupportedChain(id ChainID) *RouteError {
	return &RouteError{Code: CodeUnsupportedChain, Message: fmt.Sprintf("chain %d is not registered", id)}
}

func UnsupportedToken(ref TokenRef) *RouteError {
	return &RouteError{Code: CodeUnsupportedToken, Message: fmt.Sprintf("token %s is not registered", ref)}
}

func NoRoute(sources []AdapterError) *RouteError {
	return &RouteError{Code: CodeNoRoute, Message: "no route found", Sources: sources}
}

func Timeout(elapsedMs int64, sources []AdapterError) *RouteError {
	return &RouteError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("deadline exceeded after %dms before any route", elapsedMs),
		Sources: sources,
	}
}

func Internal(detail string) *RouteError {
	return &RouteError{Code: CodeInternal, Message: detail}
}

// AdapterErrorKind classifies a single source's failure.
type AdapterErrorKind string

const (
	AdapterNoRoute               AdapterErrorKind = "no_route"
	AdapterInsufficientLiquidity AdapterErrorKind = "insufficient_liquidity"
	AdapterTimeout               AdapterErrorKind = "timeout"
	AdapterRateLimited           AdapterErrorKind = "rate_limited"
	AdapterUnsupportedChain      AdapterErrorKind = "unsupported_chain"
	AdapterUnsupportedToken      AdapterErrorKind = "unsupported_token"
	AdapterTransport             AdapterErrorKind = "transport"
	AdapterInvalid               AdapterErrorKind = "invalid"
	AdapterInternal              AdapterErrorKind = "internal"
)

// AdapterError is one source's failure, accumulated into diagnostics.
// Only timeout and rate_limited are retryable, and at most once.
type AdapterError struct {
	Adapter   string           `json:"adapter"`
	Kind      AdapterErrorKind `json:"kind"`
	Retryable bool             `json:"retryable"`
	Detail    string           `json:"detail,omitempty"`
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Adapter, e.Kind, e.Detail)
}

// NewAdapterError builds an AdapterError with Retryable derived from the kind.
func NewAdapterError(adapter string, kind AdapterErrorKind, detail string) *AdapterError {
	return &AdapterError{
		Adapter:   adapter,
		Kind:      kind,
		Retryable: kind == AdapterTimeout || kind == AdapterRateLimited,
		Detail:    detail,
	}
}

// SummarizeSources flattens diagnostics into one human-readable line.
func SummarizeSources(errs []AdapterError) string {
	if len(errs) == 0 {
		return "no sources reported"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s=%s", e.Adapter, e.Kind))
	}
	return strings.Join(parts, ", ")
}
