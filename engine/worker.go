package engine

import (
	"context"
	"errors"
	"time"

	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/logkeys"
	"github.com/roomworks/roomflow/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// DefaultDuration is the default worker polling interval.
const DefaultDuration = time.Minute * 5

// StepUpdater applies a check result to a step as an ordinary payload
// update. The engine implements this.
type StepUpdater interface {
	UpdateStep(ctx context.Context, id string, i int, patch *workflow.Payload) error
}

// Checker performs one background detection check and returns the
// payload patch to apply to the check's step. A nil patch with a nil
// error means the check detected nothing actionable.
type Checker interface {
	Check(ctx context.Context, c *storage.Check) (*workflow.Payload, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, c *storage.Check) (*workflow.Payload, error)

func (f CheckerFunc) Check(ctx context.Context, c *storage.Check) (*workflow.Payload, error) {
	return f(ctx, c)
}

// Worker polls the storage backend for due detection checks on an
// interval, runs them through the checker, and applies the results.
type Worker struct {
	updater StepUpdater
	storage storage.WorkerStorage
	checker Checker
	logger  log.Logger

	// duration is the interval at which the worker wakes up to poll the
	// storage backend for due checks.
	duration time.Duration
}

type WorkerOption func(w *Worker)

func WithWorkerLogger(logger log.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithWorkerDuration configures the polling interval for the worker.
func WithWorkerDuration(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.duration = d
	}
}

func NewWorker(updater StepUpdater, storage storage.WorkerStorage, checker Checker, opts ...WorkerOption) *Worker {
	w := &Worker{
		updater:  updater,
		storage:  storage,
		checker:  checker,
		logger:   log.NopLogger,
		duration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunOnce claims the checks due now and runs each through the checker,
// applying any resulting patch to the check's step. Per-check failures
// are logged and do not stop the batch.
func (w *Worker) RunOnce(ctx context.Context) error {
	checks, err := w.storage.RetrieveDueChecks(ctx, time.Now())
	if err != nil {
		return logAndError(err, w.logger, "retrieving due checks")
	}
	for _, check := range checks {
		logger := ctxlog.Logger(ctx, w.logger).With(
			logkeys.CheckID, check.ID,
			logkeys.CheckKind, check.Kind,
			logkeys.InstanceID, check.InstanceID,
			logkeys.StepIndex, check.StepIndex,
		)
		patch, err := w.checker.Check(ctx, check)
		if err != nil {
			logger.Info(logkeys.Message, "running check", logkeys.Error, err)
			continue
		}
		if patch == nil {
			logger.Debug(logkeys.Message, "check detected nothing")
			continue
		}
		if err = w.updater.UpdateStep(ctx, check.InstanceID, check.StepIndex, patch); err != nil {
			// a completed (locked) step is normal: the operator filled
			// the data in before the check fired.
			if errors.Is(err, workflow.ErrLocked) {
				logger.Debug(logkeys.Message, "check result for locked step", logkeys.Error, err)
				continue
			}
			logger.Info(logkeys.Message, "applying check result", logkeys.Error, err)
			continue
		}
		logger.Debug(logkeys.Message, "applied check result")
	}
	return nil
}

// Run starts and runs the worker forever on an interval.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug(logkeys.Message, "starting worker", "duration", w.duration)

	ticker := time.NewTicker(w.duration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
