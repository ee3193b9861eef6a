package model

import "time"

// Field limits for client-supplied data.
const (
	MaxItems      = 5000
	MaxIDLen      = 128
	MaxNameLen    = 500
	MaxKindLen    = 64
	MaxImageBytes = 8 * 1024 * 1024
)

// APIResponse is the standard response envelope.
type APIResponse struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Success bool         `json:"success"`
	Error   ErrorDetail  `json:"error"`
	Meta    ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnknownKind       = "UNKNOWN_KIND"
	ErrCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeStoreError        = "STORE_ERROR"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeRateLimited       = "RATE_LIMITED"
)

// ReplaceStateRequest is the body of PUT /state. Menu is the key used by the
// original /api/menu clients and is treated as Items when Items is absent.
type ReplaceStateRequest struct {
	Items  []map[string]any `json:"items"`
	Menu   []map[string]any `json:"menu,omitempty"`
	Wallet map[string]any   `json:"wallet,omitempty"`
	Tasks  map[string]any   `json:"tasks,omitempty"`
}

// ReplaceStateResponse reports what a reconciliation changed.
type ReplaceStateResponse struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
}

// WalletAdjustRequest is the body of POST /wallet-adjust.
type WalletAdjustRequest struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

// WalletResponse carries the wallet after an adjustment.
type WalletResponse struct {
	Wallet Wallet `json:"wallet"`
}

// TaskCompleteRequest is the body of POST /task-complete.
type TaskCompleteRequest struct {
	Task string `json:"task"`
}

// TaskCompleteResponse carries counters and wallet after a task completion.
type TaskCompleteResponse struct {
	Tasks  Tasks  `json:"tasks"`
	Wallet Wallet `json:"wallet"`
}

// OrderAction is the operation requested on POST /order.
type OrderAction string

// Order actions.
const (
	OrderAdd      OrderAction = "add"
	OrderRemove   OrderAction = "remove"
	OrderCheckout OrderAction = "checkout"
)

// OrderRequest is the body of POST /order.
type OrderRequest struct {
	Action OrderAction `json:"action"`
	ItemID ItemID      `json:"itemId,omitempty"`
}

// OrderResponse carries the selection and wallet after an order action.
type OrderResponse struct {
	Selection Selection `json:"selection"`
	Wallet    Wallet    `json:"wallet"`
}

// HealthResponse is the response for GET /healthz.
type HealthResponse struct {
	Status      string    `json:"status"`
	Version     string    `json:"version"`
	Uptime      int64     `json:"uptime"`
	ItemCount   int       `json:"itemCount"`
	LastUpdated time.Time `json:"lastUpdated"`
	Store       string    `json:"store"`
	StoreKind   string    `json:"storeKind"`
	Subscribers int       `json:"subscribers"`
}
