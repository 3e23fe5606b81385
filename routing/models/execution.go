package models

import "encoding/json"

// HintKind tags the ExecutionHint union.
type HintKind string

const (
	HintEVMCall    HintKind = "evm_call"
	HintBridgeCall HintKind = "bridge_call"
	HintSolanaTx   HintKind = "solana_tx"
)

// EVMCallPlan reproduces an EVM swap transaction. Amounts and calldata are
// the exact values the provider or the internal router math produced; the
// core never reformats them after the step is emitted.
type EVMCallPlan struct {
	RouterAddress string   `json:"router_address"`
	Calldata      string   `json:"calldata,omitempty"`
	Path          []string `json:"path,omitempty"`
	AmountIn      string   `json:"amount_in"`
	AmountOutMin  string   `json:"amount_out_min"`
	Deadline      int64    `json:"deadline"`
	Value         string   `json:"value,omitempty"`
}

// BridgeCallPlan reproduces a bridge deposit and tells the executor how to
// poll for delivery.
type BridgeCallPlan struct {
	BridgeID            string          `json:"bridge_id"`
	BridgeAddress       string          `json:"bridge_address"`
	CallParams          json.RawMessage `json:"call_params,omitempty"`
	EstimatedSeconds    int64           `json:"estimated_seconds"`
	PollIntervalSeconds int64           `json:"poll_interval_seconds"`
}

// SolanaTxPlan carries a provider-serialized transaction for non-EVM chains.
type SolanaTxPlan struct {
	SerializedTransaction string `json:"serialized_transaction"`
	BlockhashHint         string `json:"blockhash_hint,omitempty"`
	PreflightRequired     bool   `json:"preflight_required"`
}

// ExecutionHint is the typed replacement for provider "property bag" route
// data: executors switch on Kind, no string-keyed maps.
type ExecutionHint struct {
	Kind   HintKind        `json:"kind"`
	EVM    *EVMCallPlan    `json:"evm,omitempty"`
	Bridge *BridgeCallPlan `json:"bridge,omitempty"`
	Solana *SolanaTxPlan   `json:"solana,omitempty"`
}

// StepEventKind tags execution status events.
type StepEventKind string

const (
	StepStarted   StepEventKind = "step_started"
	StepConfirmed StepEventKind = "step_confirmed"
	StepFailed    StepEventKind = "step_failed"
	StepCancelled StepEventKind = "step_cancelled"
)

// StepEvent is one item on an executor's status stream. The core defines the
// event shape; emitting them is the executor's job.
type StepEvent struct {
	Kind      StepEventKind `json:"kind"`
	RouteID   string        `json:"route_id"`
	StepIndex int           `json:"step_index"`
	TxHash    string        `json:"tx_hash,omitempty"`
	Detail    string        `json:"detail,omitempty"`
}
