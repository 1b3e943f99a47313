package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/planet-overlap/internal/catalog"
	"github.com/robert-malhotra/planet-overlap/internal/progress"
	"github.com/robert-malhotra/planet-overlap/internal/runstore"
	"github.com/robert-malhotra/planet-overlap/internal/search"
)

// Handlers serves search runs.
type Handlers struct {
	service *search.Service
	store   runstore.Store
	logger  *slog.Logger

	// Background runs outlive their request and stop when ctx is cancelled.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHandlers creates handlers that start searches on service and keep their
// state in store.
func NewHandlers(service *search.Service, store runstore.Store, logger *slog.Logger) *Handlers {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handlers{
		service: service,
		store:   store,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Shutdown cancels background runs and waits for them to record their final
// state, or for ctx to end.
func (h *Handlers) Shutdown(ctx context.Context) error {
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateSearch validates a search request and runs it.
// POST /searches
//
// By default the run continues in the background and the reply is 202 with
// the run record. With ?wait=true the handler blocks and replies with the
// report.
func (h *Handlers) CreateSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	plan, err := h.service.Prepare(req)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	id := search.NewID()

	if wait {
		report, err := h.service.Execute(r.Context(), id, plan, progress.NewMetricsSink(h.service.Metrics()))
		if err != nil {
			h.writeRunError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, report)
		return
	}

	rec := newRunRecorder(h.store, h.logger, id, len(plan.Jobs))
	if err := rec.start(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to store run",
			slog.String("run_id", id),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to store run")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		sink := progress.NewAsync(progress.Multi(rec, progress.NewMetricsSink(h.service.Metrics())))
		report, err := h.service.Execute(h.ctx, id, plan, sink)
		sink.Close()

		rec.finish(context.WithoutCancel(h.ctx), report, err)
	}()

	w.Header().Set("Location", "/searches/"+id)
	WriteJSON(w, http.StatusAccepted, rec.snapshot())
}

func (h *Handlers) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := GetRequestID(r.Context())
	switch {
	case catalog.IsFatal(err):
		WriteErrorWithRequestID(w, http.StatusBadGateway, ErrCodeUpstreamError, err.Error(), reqID)
	case errors.Is(err, context.DeadlineExceeded):
		WriteErrorWithRequestID(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error(), reqID)
	default:
		h.logger.ErrorContext(r.Context(), "search failed",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		WriteErrorWithRequestID(w, http.StatusInternalServerError, ErrCodeServerError, "search failed", reqID)
	}
}

// GetSearch returns a run's status, progress and, once finished, its report.
// GET /searches/{searchId}
func (h *Handlers) GetSearch(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// GetScenes returns the scenes of a completed run as a FeatureCollection.
// GET /searches/{searchId}/scenes
func (h *Handlers) GetScenes(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	switch run.Status {
	case RunRunning:
		WriteError(w, http.StatusConflict, ErrCodeConflict, "search is still running")
		return
	case RunFailed:
		WriteError(w, http.StatusConflict, ErrCodeConflict, "search failed: "+run.Error)
		return
	}

	data, err := h.store.Load(r.Context(), scenesKey(run.ID))
	if err != nil {
		if isMissing(err) {
			WriteNotFound(w, "scenes not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to load scenes",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to load scenes")
		return
	}
	WriteRawGeoJSON(w, http.StatusOK, data)
}

func (h *Handlers) loadRun(w http.ResponseWriter, r *http.Request) (*Run, bool) {
	id := chi.URLParam(r, "searchId")
	data, err := h.store.Load(r.Context(), id)
	if err != nil {
		if isMissing(err) {
			WriteNotFound(w, "search not found")
			return nil, false
		}
		h.logger.ErrorContext(r.Context(), "failed to load run",
			slog.String("run_id", id),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to load search")
		return nil, false
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		WriteInternalError(w, "stored search is corrupt")
		return nil, false
	}
	return &run, true
}

func isMissing(err error) bool {
	return errors.Is(err, runstore.ErrNotFound) || errors.Is(err, runstore.ErrExpired)
}

// Health reports liveness and the configured backend.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": h.service.Backend(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
