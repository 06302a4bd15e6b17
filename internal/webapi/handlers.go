package webapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tallyd/tally/internal/batch"
	"github.com/tallyd/tally/internal/ledger"
	"github.com/tallyd/tally/internal/metrics"
	"github.com/tallyd/tally/internal/models"
	"github.com/tallyd/tally/internal/validation"
)

// Version is set at build time or defaults to dev.
var Version = "0.3.0"

// Handlers holds the HTTP handler methods for the ledger API.
type Handlers struct {
	store    ledger.Store
	executor *batch.Executor
	validate *validator.Validate
	logger   *slog.Logger
}

// Options configures optional handler collaborators.
type Options struct {
	// Batch tunes the import executor (chunk size, hard max, delays).
	Batch batch.Config
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewHandlers creates Handlers backed by the given store.
func NewHandlers(store ledger.Store, opts Options) *Handlers {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Batch.Logger == nil {
		opts.Batch.Logger = opts.Logger
	}
	return &Handlers{
		store:    store,
		executor: batch.New(&stepImporter{store: store}, opts.Batch),
		validate: validator.New(),
		logger:   opts.Logger,
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// HandleStartSession explicitly creates a session. Re-posting the same
// session id returns the stored session unchanged.
func (h *Handlers) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	var spec SessionSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&spec); err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, err.Error())
		return
	}

	sess, err := h.store.EnsureSession(r.Context(), sessionParams(&spec))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleListSessions returns sessions, optionally filtered by ?status=.
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	status := models.SessionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.SessionInProgress, models.SessionSubmitted, models.SessionAbandoned:
	default:
		writeError(w, http.StatusBadRequest, ReasonValidation, "unknown status "+strconv.Quote(string(status)))
		return
	}

	sessions, err := h.store.ListSessions(r.Context(), status)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// HandleRecordStep upserts one step completion. The write is idempotent:
// replaying a delivery lands on the same (session, step index) key and
// produces an equivalent response.
func (h *Handlers) HandleRecordStep(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	stepIndex, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, "step index must be an integer")
		return
	}

	var req RecordStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, err.Error())
		return
	}

	if req.Session != nil {
		params := sessionParams(req.Session)
		if params.ID == "" {
			params.ID = sessionID
		}
		if params.ID != sessionID {
			writeError(w, http.StatusBadRequest, ReasonValidation, "session id in body does not match path")
			return
		}
		if _, err := h.store.EnsureSession(r.Context(), params); err != nil {
			h.writeStoreError(w, err)
			return
		}
	}

	rec, replaced, err := h.store.RecordStep(r.Context(), sessionID, stepIndex, req.RawScore)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	metrics.StepsRecorded.Inc()
	if replaced {
		metrics.StepReplays.Inc()
		h.logger.Debug("step record replaced", "session", sessionID, "step", stepIndex)
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleProgress returns the session with all of its step records.
func (h *Handlers) HandleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.store.FetchProgress(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if progress.Records == nil {
		progress.Records = []models.StepRecord{}
	}
	writeJSON(w, http.StatusOK, progress)
}

// HandleFinalize moves the session to submitted. Finalizing twice yields an
// already_submitted error, which clients treat as success.
func (h *Handlers) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Finalize(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	metrics.SessionsFinalized.Inc()
	writeJSON(w, http.StatusOK, sess)
}

// HandleAbandon moves the session to abandoned.
func (h *Handlers) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Abandon(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleBatchImport runs a bulk of step writes through the chunked
// executor. An oversized batch is rejected outright; a failing item fails
// only its own result slot.
func (h *Handlers) HandleBatchImport(w http.ResponseWriter, r *http.Request) {
	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, "invalid request body: "+err.Error())
		return
	}
	if err := validation.ValidateBatchImport(raw); err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, err.Error())
		return
	}

	var req BatchImportRequest
	if err := decodeValidated(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, ReasonValidation, err.Error())
		return
	}
	if req.DefaultSession != nil {
		applyDefaultSession(req.Items, *req.DefaultSession)
	}

	results, err := h.executor.Submit(r.Context(), req.Items)
	if err != nil {
		var tooLarge *batch.BatchTooLargeError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ReasonBatchTooLarge, tooLarge.Error())
			return
		}
		h.writeStoreError(w, err)
		return
	}
	metrics.BatchJobs.Inc()

	resp := BatchImportResponse{
		Total:   len(results),
		Results: make([]BatchItemResult, len(results)),
	}
	for i, res := range results {
		item := BatchItemResult{Index: res.Index, OK: res.Err == nil}
		if res.Err != nil {
			item.Error = res.Err.Error()
			resp.Failed++
			metrics.BatchItemsFailed.Inc()
		} else {
			if rec, ok := res.Value.(models.StepRecord); ok {
				item.Step = &rec
			}
			resp.Succeeded++
		}
		resp.Results[i] = item
	}
	h.logger.Info("batch import finished",
		"source", req.Source,
		"total", resp.Total,
		"failed", resp.Failed)
	writeJSON(w, http.StatusOK, resp)
}

// decodeValidated re-marshals a schema-validated document into its typed
// request form.
func decodeValidated(raw any, dst any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func sessionParams(spec *SessionSpec) ledger.SessionParams {
	return ledger.SessionParams{
		ID:            spec.SessionID,
		ParticipantID: spec.ParticipantID,
		StepCount:     spec.StepCount,
		ScoreBudget:   spec.ScoreBudget,
		MaxRawScore:   spec.MaxRawScore,
	}
}

// writeStoreError maps ledger errors onto the wire taxonomy.
func (h *Handlers) writeStoreError(w http.ResponseWriter, err error) {
	var rangeErr *ledger.OutOfRangeError
	var valErr *ledger.ValidationError
	switch {
	case errors.Is(err, ledger.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, ReasonNotFound, "session not found")
	case errors.Is(err, ledger.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, ReasonAlreadySubmitted, "session already submitted")
	case errors.Is(err, ledger.ErrSessionAbandoned):
		writeError(w, http.StatusConflict, ReasonInvalidState, "session abandoned")
	case errors.As(err, &rangeErr), errors.As(err, &valErr):
		writeError(w, http.StatusBadRequest, ReasonValidation, err.Error())
	default:
		h.logger.Error("store error", "error", err)
		writeError(w, http.StatusInternalServerError, ReasonInternal, err.Error())
	}
}

// RegisterRoutes registers all ledger API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /api/health", timed("health", h.HandleHealth))
	mux.HandleFunc("POST /api/sessions", timed("start_session", h.HandleStartSession))
	mux.HandleFunc("GET /api/sessions", timed("list_sessions", h.HandleListSessions))
	mux.HandleFunc("PUT /api/sessions/{id}/steps/{index}", timed("record_step", h.HandleRecordStep))
	mux.HandleFunc("GET /api/sessions/{id}/progress", timed("progress", h.HandleProgress))
	mux.HandleFunc("POST /api/sessions/{id}/submit", timed("finalize", h.HandleFinalize))
	mux.HandleFunc("POST /api/sessions/{id}/abandon", timed("abandon", h.HandleAbandon))
	mux.HandleFunc("POST /api/batch/import", timed("batch_import", h.HandleBatchImport))
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for the request histogram.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func timed(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RequestDuration.
			WithLabelValues(route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, reason, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code, Reason: reason})
}
