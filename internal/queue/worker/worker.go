package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/certhub/internal/domain/job"
	"github.com/geocoder89/certhub/internal/domain/logentry"
	"github.com/geocoder89/certhub/internal/domain/notification"
	"github.com/geocoder89/certhub/internal/notifications"
	"github.com/geocoder89/certhub/internal/observability"
	"golang.org/x/time/rate"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

type Renderer interface {
	Render(kind notification.Kind, to, name string, data map[string]string) (notifications.Message, error)
}

// LogSink receives one entry per delivery outcome. Implementations must
// not block on the logs service.
type LogSink interface {
	Record(ctx context.Context, req logentry.CreateRequest)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration
	LockTTL       time.Duration
	JobTimeout    time.Duration
	// sends per second across all goroutines; <= 0 disables throttling
	RatePerSecond float64
}

type Worker struct {
	cfg      Config
	repo     JobsRepository
	notifier notifications.Notifier
	renderer Renderer
	sink     LogSink
	limiter  *rate.Limiter
	log      *slog.Logger

	prom    *observability.Prom
	metrics *observability.JobMetrics
	db      Pinger

	readyMu sync.RWMutex
	ready   bool

	now func() time.Time
}

type Option func(*Worker)

func WithProm(p *observability.Prom) Option { return func(w *Worker) { w.prom = p } }

func WithLogSink(s LogSink) Option { return func(w *Worker) { w.sink = s } }

func WithPinger(p Pinger) Option { return func(w *Worker) { w.db = p } }

func WithLogger(l *slog.Logger) Option { return func(w *Worker) { w.log = l } }

func New(cfg Config, repo JobsRepository, notifier notifications.Notifier, renderer Renderer, opts ...Option) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 60 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker"
	}

	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(1, int(cfg.RatePerSecond))
	}

	w := &Worker{
		cfg:      cfg,
		repo:     repo,
		notifier: notifier,
		renderer: renderer,
		limiter:  rate.NewLimiter(limit, burst),
		log:      slog.Default(),
		metrics:  observability.NewJobMetrics(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) isReady() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

func (w *Worker) Metrics() observability.JobMetricsSnapshot {
	return w.metrics.Snapshot()
}

// Run polls until ctx is cancelled, then waits up to ShutdownGrace for
// in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started",
		"worker_id", w.cfg.WorkerID,
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval.String(),
	)
	w.setReady(true)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reapLoop(ctx)
	}()

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.pollLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	w.setReady(false)
	w.log.Info("worker received shutdown signal")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("worker drained")
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Warn("worker shutdown grace exceeded; stale jobs will be requeued by the next worker")
	}

	return nil
}

func (w *Worker) pollLoop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := w.ProcessOne(ctx)
		if err != nil {
			w.log.Error("process job", "slot", slot, "err", err)
		}

		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Worker) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.LockTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)
			if err != nil {
				w.log.Error("requeue stale jobs", "err", err)
				continue
			}
			if n > 0 {
				w.log.Warn("requeued stale jobs", "count", n)
			}
		}
	}
}
