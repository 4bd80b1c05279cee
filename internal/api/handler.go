package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/eugenenazirov/keyflat/internal/document"
	"github.com/eugenenazirov/keyflat/internal/flatten"
	"github.com/eugenenazirov/keyflat/internal/metrics"
	"github.com/eugenenazirov/keyflat/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const defaultMaxBodyBytes = 1 << 20

// Handler wires flattener, storage and metrics dependencies into HTTP handlers.
type Handler struct {
	flattener flatten.Flattener
	storage   storage.Storage
	metrics   *metrics.Metrics

	maxBodyBytes int64
	maxNesting   int
	maxNodes     int

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithMetrics records flatten outcomes on m.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithMaxBodyBytes limits the size of flatten request bodies.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithMaxNesting bounds container nesting while decoding request bodies.
func WithMaxNesting(depth int) HandlerOption {
	return func(h *Handler) {
		h.maxNesting = depth
	}
}

// WithMaxNodes bounds the alias-expanded size of YAML request bodies.
func WithMaxNodes(n int) HandlerOption {
	return func(h *Handler) {
		h.maxNodes = n
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(f flatten.Flattener, store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		flattener:    f,
		storage:      store,
		maxBodyBytes: defaultMaxBodyBytes,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleFlatten(w http.ResponseWriter, r *http.Request) {
	format, err := document.FormatFromContentType(r.Header.Get("Content-Type"))
	if err != nil {
		h.metrics.ObserveFlatten("unknown", metrics.OutcomeInvalid, 0, 0)
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported media type", err.Error(),
			"send application/json or application/yaml")
		return
	}

	query := r.URL.Query()
	prefix := query.Get("prefix")

	var output *document.Format
	if raw := query.Get("output"); raw != "" {
		f, err := document.ParseFormat(raw)
		if err != nil {
			h.metrics.ObserveFlatten(format.String(), metrics.OutcomeInvalid, 0, 0)
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
			return
		}
		output = &f
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.ObserveFlatten(format.String(), metrics.OutcomeTooLarge, 0, 0)
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.metrics.ObserveFlatten(format.String(), metrics.OutcomeInvalid, 0, 0)
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to read request body")
		return
	}

	start := time.Now()
	input, err := document.Decode(bytes.NewReader(body), format,
		document.WithMaxNesting(h.maxNesting),
		document.WithMaxNodes(h.maxNodes),
	)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrTooDeep):
			h.metrics.ObserveFlatten(format.String(), metrics.OutcomeTooDeep, 0, 0)
			writeError(w, http.StatusUnprocessableEntity, "Document too deep", err.Error())
		case errors.Is(err, document.ErrTooLarge):
			h.metrics.ObserveFlatten(format.String(), metrics.OutcomeTooManyEntries, 0, 0)
			writeError(w, http.StatusUnprocessableEntity, "Document too large", err.Error(),
				"avoid repeated YAML aliases")
		default:
			h.metrics.ObserveFlatten(format.String(), metrics.OutcomeInvalid, 0, 0)
			writeError(w, http.StatusBadRequest, "Invalid document", err.Error())
		}
		return
	}

	result, err := h.flattener.Flatten(input, prefix, nil)
	elapsed := time.Since(start)
	if err != nil {
		switch {
		case errors.Is(err, flatten.ErrDepthExceeded), errors.Is(err, flatten.ErrCyclicStructure):
			h.metrics.ObserveFlatten(format.String(), metrics.OutcomeTooDeep, 0, 0)
			writeError(w, http.StatusUnprocessableEntity, "Cannot flatten document", err.Error(),
				"reduce the nesting depth of the document")
		case errors.Is(err, flatten.ErrTooManyEntries):
			h.metrics.ObserveFlatten(format.String(), metrics.OutcomeTooManyEntries, 0, 0)
			writeError(w, http.StatusUnprocessableEntity, "Cannot flatten document", err.Error(),
				"split the document or avoid repeated YAML aliases")
		default:
			h.metrics.ObserveFlatten(format.String(), metrics.OutcomeError, 0, 0)
			writeInternalError(w, err)
		}
		return
	}

	rec, err := h.storage.Save(storage.Record{
		Prefix:    prefix,
		Format:    format.String(),
		Result:    result,
		CreatedAt: h.clock(),
	})
	if err != nil {
		h.metrics.ObserveFlatten(format.String(), metrics.OutcomeError, 0, 0)
		writeInternalError(w, err)
		return
	}
	h.metrics.ObserveFlatten(format.String(), metrics.OutcomeOK, result.Len(), elapsed)

	if output != nil {
		writeDocument(w, *output, rec)
		return
	}
	writeJSON(w, http.StatusOK, newFlattenResponse(rec, elapsed))
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	rec, err := h.storage.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not found", err.Error(),
				"results are kept in memory and the oldest are evicted first")
			return
		}
		writeInternalError(w, err)
		return
	}

	if raw := r.URL.Query().Get("output"); raw != "" {
		f, err := document.ParseFormat(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
			return
		}
		writeDocument(w, f, rec)
		return
	}
	writeJSON(w, http.StatusOK, newFlattenResponse(rec, 0))
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type flattenResponse struct {
	ID            string          `json:"id"`
	Prefix        string          `json:"prefix"`
	Format        string          `json:"format"`
	Keys          int             `json:"keys"`
	Result        *flatten.Object `json:"result"`
	CreatedAt     time.Time       `json:"createdAt"`
	FlattenTimeMs int64           `json:"flattenTimeMs"`
}

func newFlattenResponse(rec storage.Record, elapsed time.Duration) flattenResponse {
	return flattenResponse{
		ID:            rec.ID,
		Prefix:        rec.Prefix,
		Format:        rec.Format,
		Keys:          rec.Result.Len(),
		Result:        rec.Result,
		CreatedAt:     rec.CreatedAt,
		FlattenTimeMs: elapsed.Milliseconds(),
	}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// writeJSON encodes payload before committing status, so an encoding
// failure still produces a 500.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		if _, isError := payload.(errorResponse); isError {
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		writeInternalError(w, fmt.Errorf("encode response: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, _ = w.Write(append(data, '\n'))
}

// writeDocument responds with the bare flattened document in format f.
func writeDocument(w http.ResponseWriter, f document.Format, rec storage.Record) {
	var buf bytes.Buffer
	if err := document.Encode(&buf, f, rec.Result, document.EncodeOptions{}); err != nil {
		writeInternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("X-Result-ID", rec.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
