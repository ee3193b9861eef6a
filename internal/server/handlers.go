package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashita-ai/menusync/internal/model"
	"github.com/ashita-ai/menusync/internal/service/menu"
	"github.com/ashita-ai/menusync/internal/state"
)

// DefaultMaxRequestBodyBytes leaves room for inline base64 item images.
const DefaultMaxRequestBodyBytes = 10 << 20

// healthPingTimeout bounds the store ping in GET /healthz.
const healthPingTimeout = 2 * time.Second

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	menu                *menu.Service
	hub                 *Hub
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Hub, OpenAPISpec.
type HandlersDeps struct {
	Menu                *menu.Service
	Hub                 *Hub
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	maxBody := d.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxRequestBodyBytes
	}
	return &Handlers{
		menu:                d.Menu,
		hub:                 d.Hub,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: maxBody,
		openapiSpec:         d.OpenAPISpec,
	}
}

// legacyState is the GET /api/menu shape: the state plus the item list
// under its original "menu" key.
type legacyState struct {
	model.State
	Menu []model.CatalogItem `json:"menu"`
}

// HandleGetState handles GET /state.
func (h *Handlers) HandleGetState(w http.ResponseWriter, r *http.Request) {
	st := h.menu.Snapshot()
	if h.notModified(w, r, st) {
		return
	}
	writeRaw(w, http.StatusOK, st)
}

// HandleLegacyGetMenu handles GET /api/menu.
func (h *Handlers) HandleLegacyGetMenu(w http.ResponseWriter, r *http.Request) {
	st := h.menu.Snapshot()
	if h.notModified(w, r, st) {
		return
	}
	writeRaw(w, http.StatusOK, legacyState{State: st, Menu: st.Items})
}

// notModified sets the ETag for st and answers 304 when the client already has it.
func (h *Handlers) notModified(w http.ResponseWriter, r *http.Request, st model.State) bool {
	tag, err := stateETag(st)
	if err != nil {
		h.logger.Warn("state etag failed", "error", err)
		return false
	}
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

// stateETag combines the content digest with the snapshot stamp so that
// selection-only changes also produce a new tag.
func stateETag(st model.State) (string, error) {
	digest, err := state.Digest(st)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`"%s-%x"`, digest[:16], st.LastUpdated.UnixNano()), nil
}

func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || candidate == tag {
			return true
		}
	}
	return false
}

// HandleReplaceState handles PUT /state and POST /api/menu.
func (h *Handlers) HandleReplaceState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes))
	if err != nil {
		handleDecodeError(w, r, err)
		return
	}
	var doc any
	if err := unmarshalNumbers(body, &doc); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	msg, err := validateStateBody(doc)
	if err != nil {
		h.writeInternalError(w, r, "schema unavailable", err)
		return
	}
	if msg != "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, msg)
		return
	}

	var req model.ReplaceStateRequest
	if err := unmarshalNumbers(body, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	items := req.Items
	if items == nil {
		items = req.Menu
	}

	resp, err := h.menu.Replace(r.Context(), menu.ReplaceInput{
		Items:  items,
		Wallet: req.Wallet,
		Tasks:  req.Tasks,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleWalletAdjust handles POST /wallet-adjust.
func (h *Handlers) HandleWalletAdjust(w http.ResponseWriter, r *http.Request) {
	var req model.WalletAdjustRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Currency == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "currency is required")
		return
	}
	wallet, err := h.menu.AdjustWallet(r.Context(), req.Currency, req.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.WalletResponse{Wallet: wallet})
}

// HandleTaskComplete handles POST /task-complete.
func (h *Handlers) HandleTaskComplete(w http.ResponseWriter, r *http.Request) {
	var req model.TaskCompleteRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Task == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "task is required")
		return
	}
	tasks, wallet, err := h.menu.CompleteTask(r.Context(), req.Task)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.TaskCompleteResponse{Tasks: tasks, Wallet: wallet})
}

// HandleOrder handles POST /order.
func (h *Handlers) HandleOrder(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	sel, wallet, err := h.menu.Order(r.Context(), req.Action, req.ItemID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.OrderResponse{Selection: sel, Wallet: wallet})
}

// HandleHealth handles GET /healthz and GET /health. The cache keeps serving
// while the store is down, so an unreachable store degrades rather than fails.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	status := "ok"
	store := "connected"
	if err := h.menu.Ping(ctx); err != nil {
		status = "degraded"
		store = "disconnected"
		h.logger.Warn("health: store ping failed", "error", err)
	}

	st := h.menu.Snapshot()
	resp := model.HealthResponse{
		Status:      status,
		Version:     h.version,
		Uptime:      int64(time.Since(h.startedAt).Seconds()),
		ItemCount:   len(st.Items),
		LastUpdated: st.LastUpdated,
		Store:       store,
		StoreKind:   h.menu.StoreKind(),
	}
	if h.hub != nil {
		resp.Subscribers = h.hub.Len()
	}
	w.Header().Set("Cache-Control", "no-store")
	writeRaw(w, http.StatusOK, resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// --- Shared helpers ---

// decodeJSON decodes a size-limited JSON request body into target.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any, maxBytes int64) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// unmarshalNumbers decodes b keeping numbers as json.Number, so numeric item
// IDs above 2^53 survive intact.
func unmarshalNumbers(b []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(b))
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// handleDecodeError maps body read and decode failures to 400 or 413.
func handleDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput,
			fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		return
	}
	if errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "request body is empty")
		return
	}
	writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
}

// writeServiceError maps a menu.Service error to a response.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *model.ValidationError
	var pe *model.PreconditionError
	var se *model.StoreError
	switch {
	case errors.As(err, &ve):
		writeError(w, r, http.StatusBadRequest, ve.Code, ve.Message)
	case errors.As(err, &pe):
		writeErrorDetails(w, r, http.StatusBadRequest, model.ErrCodeInsufficientFunds, pe.Error(), pe)
	case errors.As(err, &se):
		h.logger.Error("store operation failed",
			"op", se.Op,
			"applied", se.Applied,
			"error", se.Err,
			"request_id", RequestIDFromContext(r.Context()),
		)
		writeErrorDetails(w, r, http.StatusInternalServerError, model.ErrCodeStoreError,
			"failed to persist change", map[string]any{"op": se.Op, "applied": se.Applied})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError, "request cancelled before it could be applied")
	default:
		h.writeInternalError(w, r, "unexpected error", err)
	}
}

func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}
