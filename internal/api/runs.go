package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robert-malhotra/planet-overlap/internal/progress"
	"github.com/robert-malhotra/planet-overlap/internal/runstore"
	"github.com/robert-malhotra/planet-overlap/internal/search"
)

// RunStatus is the lifecycle state of a background search.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is the stored view of one search.
type Run struct {
	ID        string            `json:"id"`
	Status    RunStatus         `json:"status"`
	Progress  progress.Progress `json:"progress"`
	Report    *search.Report    `json:"report,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func scenesKey(id string) string {
	return id + "/scenes"
}

// runRecorder writes a run's state to the store as it changes. Update is
// called from the progress goroutine while finish runs on the search
// goroutine, so both go through mu.
type runRecorder struct {
	store  runstore.Store
	logger *slog.Logger

	mu  sync.Mutex
	run Run
}

func newRunRecorder(store runstore.Store, logger *slog.Logger, id string, total int) *runRecorder {
	now := time.Now().UTC()
	return &runRecorder{
		store:  store,
		logger: logger,
		run: Run{
			ID:        id,
			Status:    RunRunning,
			Progress:  progress.Progress{RunID: id, Total: total},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (r *runRecorder) snapshot() Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run
}

// Update implements progress.Sink.
func (r *runRecorder) Update(p progress.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run.Status != RunRunning {
		return
	}
	r.run.Progress = p
	r.saveLocked(context.Background())
}

func (r *runRecorder) start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.Marshal(r.run)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", r.run.ID, err)
	}
	return r.store.Save(ctx, r.run.ID, data)
}

func (r *runRecorder) finish(ctx context.Context, report *search.Report, runErr error) {
	if report != nil {
		scenes, err := json.Marshal(report.FeatureCollection())
		if err == nil {
			err = r.store.Save(ctx, scenesKey(report.ID), scenes)
		}
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to store run scenes",
				slog.String("run_id", report.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if runErr != nil {
		r.run.Status = RunFailed
		r.run.Error = runErr.Error()
	} else {
		r.run.Status = RunCompleted
		r.run.Report = report
		r.run.Progress.Completed = report.Completed
		r.run.Progress.Failed = len(report.Failed)
		r.run.Progress.Scenes = report.Stats.Scenes
	}
	r.saveLocked(ctx)
}

func (r *runRecorder) saveLocked(ctx context.Context) {
	r.run.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(r.run)
	if err == nil {
		err = r.store.Save(ctx, r.run.ID, data)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to store run",
			slog.String("run_id", r.run.ID),
			slog.String("error", err.Error()),
		)
	}
}
