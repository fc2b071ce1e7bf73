// Package ingest drives scrape runs: it debounces trigger events, guards
// against overlapping runs, and reports per-run progress counters.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arnasbieliauskas/ntduomenys/listings"
)

// State of the runner's current or most recent run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Status is a snapshot of the runner. Counters are live while a run is in
// flight and keep their final values afterwards, including for cancelled
// runs.
type Status struct {
	State      State     `json:"state"`
	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Found      int       `json:"found"`
	Inserted   int       `json:"inserted"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
}

// Source yields candidate records page by page. Collect must stop and return
// the context error as soon as ctx is cancelled, and must return emit's error
// unchanged.
type Source interface {
	Collect(ctx context.Context, emit func([]listings.Record) error) error
}

const defaultDebounce = 2 * time.Second

// Runner serializes ingestion: triggers arriving while a run is in flight or
// within the debounce window coalesce into at most one pending run.
type Runner struct {
	store    *listings.Store
	source   Source
	logger   *slog.Logger
	debounce time.Duration

	trigger chan struct{}

	mu        sync.Mutex
	status    Status
	cancelRun context.CancelFunc
}

func NewRunner(store *listings.Store, source Source, logger *slog.Logger, debounce time.Duration) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Runner{
		store:    store,
		source:   source,
		logger:   logger,
		debounce: debounce,
		trigger:  make(chan struct{}, 1),
		status:   Status{State: StateIdle},
	}
}

// Trigger requests a run. It never blocks; a request arriving while one is
// already pending coalesces with it and reports false.
func (r *Runner) Trigger() bool {
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Cancel aborts the in-flight run, if any. The open write transaction rolls
// back; progress counters up to the cancellation point are retained.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelRun != nil {
		r.cancelRun()
	}
}

// Status returns a snapshot of the runner.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Run is the runner's loop: wait for a trigger, debounce, run once, repeat.
// It returns when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.trigger:
		}
		if err := r.wait(ctx); err != nil {
			return err
		}
		r.runOnce(ctx)
	}
}

// wait sits out the debounce window, absorbing triggers that arrive during
// it so a burst of events produces a single run.
func (r *Runner) wait(ctx context.Context) error {
	t := time.NewTimer(r.debounce)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.trigger:
		case <-t.C:
			return nil
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := uuid.NewString()
	r.mu.Lock()
	r.cancelRun = cancel
	r.status = Status{State: StateRunning, RunID: runID, StartedAt: time.Now()}
	r.mu.Unlock()

	log := r.logger.With("run_id", runID)
	log.Info("ingestion started")

	err := r.source.Collect(runCtx, func(page []listings.Record) error {
		res, err := r.store.SaveBatch(runCtx, page)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.status.Found += len(page)
		r.status.Inserted += res.Inserted
		r.status.Skipped += res.Skipped
		r.mu.Unlock()
		return nil
	})

	r.mu.Lock()
	r.cancelRun = nil
	r.status.FinishedAt = time.Now()
	switch {
	case err == nil:
		r.status.State = StateCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.status.State = StateCancelled
	default:
		r.status.State = StateFailed
		r.status.Error = err.Error()
	}
	st := r.status
	r.mu.Unlock()

	log.Info("ingestion finished",
		"state", string(st.State),
		"found", st.Found, "inserted", st.Inserted, "skipped", st.Skipped,
		"duration", st.FinishedAt.Sub(st.StartedAt), "err", st.Error)
}
