package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/certhub/internal/domain/pendingaction"
)

var (
	// ErrOffline marks a dispatch that never reached the backend.
	ErrOffline        = errors.New("backend unreachable")
	ErrSyncInProgress = errors.New("sync already in progress")
)

type Queue interface {
	Add(ctx context.Context, a pendingaction.PendingAction) error
	Pending(ctx context.Context) ([]pendingaction.PendingAction, error)
	UpdateStatus(ctx context.Context, id string, status pendingaction.Status, errMsg string) error
	Remove(ctx context.Context, id string) error
	ResetAllFailed(ctx context.Context) (int64, error)
	RequeueSyncing(ctx context.Context) (int64, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, a pendingaction.PendingAction) error
}

type Probe interface {
	Online(ctx context.Context) bool
}

type SyncReport struct {
	Attempted int               `json:"attempted" yaml:"attempted"`
	Synced    int               `json:"synced" yaml:"synced"`
	Failed    int               `json:"failed" yaml:"failed"`
	Errors    map[string]string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

type Runner struct {
	queue      Queue
	dispatcher Dispatcher
	log        *slog.Logger

	stopOnFailure bool
	retryFailed   bool
	onSync        func(SyncReport, error)

	mu sync.Mutex
}

type Option func(*Runner)

// WithStopOnFailure halts a run at the first failed action, leaving the
// rest of the queue untouched.
func WithStopOnFailure(v bool) Option { return func(r *Runner) { r.stopOnFailure = v } }

// WithRetryFailed resets failed actions before each run started by Watch.
func WithRetryFailed(v bool) Option { return func(r *Runner) { r.retryFailed = v } }

func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.log = l } }

// WithSyncHook is called after every run started by Watch.
func WithSyncHook(fn func(SyncReport, error)) Option { return func(r *Runner) { r.onSync = fn } }

func NewRunner(queue Queue, dispatcher Dispatcher, opts ...Option) *Runner {
	r := &Runner{
		queue:      queue,
		dispatcher: dispatcher,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sync replays pending actions oldest first. Successful actions are
// removed; failed ones keep a non-empty error message. A cancelled ctx
// stops the run before the next action starts. Actions an earlier run
// left in syncing are replayed too.
func (r *Runner) Sync(ctx context.Context) (SyncReport, error) {
	if !r.mu.TryLock() {
		return SyncReport{}, ErrSyncInProgress
	}
	defer r.mu.Unlock()

	report := SyncReport{Errors: map[string]string{}}

	// rows still syncing here were left by a run that never finished
	if n, err := r.queue.RequeueSyncing(ctx); err != nil {
		return report, fmt.Errorf("requeue interrupted actions: %w", err)
	} else if n > 0 {
		r.log.Info("interrupted actions requeued", "count", n)
	}

	actions, err := r.queue.Pending(ctx)
	if err != nil {
		return report, fmt.Errorf("load pending actions: %w", err)
	}

	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Attempted++

		if err := r.queue.UpdateStatus(ctx, a.ID, pendingaction.StatusSyncing, ""); err != nil {
			return report, fmt.Errorf("mark %s syncing: %w", a.ID, err)
		}

		dispatchErr := r.dispatcher.Dispatch(ctx, a)

		// the outcome must be recorded even if ctx was cancelled meanwhile
		bookCtx := context.WithoutCancel(ctx)

		// interrupted mid-flight: put it back rather than blame the action
		if dispatchErr != nil && ctx.Err() != nil {
			report.Attempted--
			if err := r.queue.UpdateStatus(bookCtx, a.ID, pendingaction.StatusPending, ""); err != nil {
				return report, fmt.Errorf("requeue %s: %w", a.ID, err)
			}
			return report, ctx.Err()
		}

		if dispatchErr == nil {
			if err := r.queue.Remove(bookCtx, a.ID); err != nil {
				return report, fmt.Errorf("remove %s: %w", a.ID, err)
			}
			report.Synced++
			r.log.Debug("action synced", "action_id", a.ID, "type", a.Type)
			continue
		}

		msg := failureMessage(dispatchErr)
		if err := r.queue.UpdateStatus(bookCtx, a.ID, pendingaction.StatusFailed, msg); err != nil {
			return report, fmt.Errorf("mark %s failed: %w", a.ID, err)
		}
		report.Failed++
		report.Errors[a.ID] = msg
		r.log.Warn("action sync failed", "action_id", a.ID, "type", a.Type, "err", dispatchErr)

		if r.stopOnFailure {
			break
		}
	}

	return report, nil
}

// Submit sends a right away. When the backend is unreachable the action
// is queued instead and queued is true. Any other error is returned as is
// and nothing is stored.
func (r *Runner) Submit(ctx context.Context, a pendingaction.PendingAction) (queued bool, err error) {
	if err := a.CheckRefs(); err != nil {
		return false, err
	}

	err = r.dispatcher.Dispatch(ctx, a)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrOffline) {
		return false, err
	}

	a.Status = pendingaction.StatusPending
	a.ErrorMessage = nil
	if err := r.queue.Add(ctx, a); err != nil {
		return false, fmt.Errorf("queue action: %w", err)
	}
	r.log.Info("backend unreachable, action queued", "action_id", a.ID, "type", a.Type)
	return true, nil
}

// Watch polls probe every interval and syncs whenever connectivity comes
// back, including once at start if already online. It returns when ctx is
// done.
func (r *Runner) Watch(ctx context.Context, probe Probe, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	online := false
	for {
		now := probe.Online(ctx)
		if now && !online {
			r.log.Info("connectivity restored, syncing")
			r.autoSync(ctx)
		} else if !now && online {
			r.log.Info("connectivity lost")
		}
		online = now

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) autoSync(ctx context.Context) {
	if r.retryFailed {
		n, err := r.queue.ResetAllFailed(ctx)
		if err != nil {
			r.log.Warn("reset failed actions", "err", err)
		} else if n > 0 {
			r.log.Info("failed actions requeued", "count", n)
		}
	}

	report, err := r.Sync(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn("sync run ended with error", "err", err)
	}
	r.log.Info("sync run finished",
		"attempted", report.Attempted,
		"synced", report.Synced,
		"failed", report.Failed,
	)
	if r.onSync != nil {
		r.onSync(report, err)
	}
}

func failureMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "sync failed"
}
