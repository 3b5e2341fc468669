package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/certhub/internal/domain/job"
	"github.com/geocoder89/certhub/internal/domain/logentry"
	"github.com/geocoder89/certhub/internal/domain/notification"
	"github.com/geocoder89/certhub/internal/jobs"
)

// ProcessOne claims and executes at most one job. It reports whether a job
// was claimed so the caller can skip the poll delay.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}

	w.metrics.IncClaimed()
	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	// a claimed job finishes even if shutdown starts mid-send
	jobCtx, cancelJob := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancelJob()

	start := time.Now()
	p, err := w.execute(jobCtx, j)
	elapsed := time.Since(start)
	w.metrics.ObserveDuration(elapsed)

	if err != nil {
		result := w.handleFailure(jobCtx, j, err)
		w.observe(j, result, elapsed)
		w.record(jobCtx, j, p, result, err)
		return true, nil
	}

	if err := w.repo.MarkDone(jobCtx, j.ID); err != nil {
		_ = w.repo.MarkFailed(jobCtx, j.ID, "mark_done_failed: "+err.Error())
		return true, err
	}

	w.metrics.IncDone()
	w.observe(j, "done", elapsed)
	w.record(jobCtx, j, p, "done", nil)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) (jobs.SendNotificationPayload, error) {
	decoded, err := jobs.DecodePayload(j)
	if err != nil {
		return jobs.SendNotificationPayload{}, err
	}

	p, ok := decoded.(jobs.SendNotificationPayload)
	if !ok {
		return jobs.SendNotificationPayload{}, jobs.ErrPayloadTypeMismatch
	}

	msg, err := w.renderer.Render(notification.Kind(p.Kind), p.To, p.Name, p.Data)
	if err != nil {
		return p, err
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return p, fmt.Errorf("rate limiter: %w", err)
	}

	return p, w.notifier.Send(ctx, msg)
}

// permanent errors are not worth retrying
func isPermanent(err error) bool {
	return errors.Is(err, jobs.ErrInvalidJobPayload) ||
		errors.Is(err, jobs.ErrInvalidJobType) ||
		errors.Is(err, jobs.ErrPayloadTypeMismatch) ||
		errors.Is(err, notification.ErrUnknownKind)
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) string {
	msg := cause.Error()

	if isPermanent(cause) || j.Attempts+1 >= j.MaxAttempts {
		if err := w.repo.MarkFailed(ctx, j.ID, msg); err != nil {
			w.log.Error("mark job failed", "job_id", j.ID, "err", err)
		}
		w.metrics.IncFailed()
		w.metrics.IncDeadLettered()
		w.log.Warn("job failed permanently", "job_id", j.ID, "attempts", j.Attempts+1, "err", msg)
		return "failed"
	}

	runAt := w.now().Add(ExponentialBackoff(j.Attempts))
	if err := w.repo.Reschedule(ctx, j.ID, runAt, msg); err != nil {
		w.log.Error("reschedule job", "job_id", j.ID, "err", err)
	}
	w.metrics.IncRetried()
	w.log.Info("job rescheduled", "job_id", j.ID, "attempt", j.Attempts+1, "run_at", runAt, "err", msg)
	return "retry"
}

func (w *Worker) observe(j job.Job, result string, d time.Duration) {
	if w.prom == nil {
		return
	}
	w.prom.JobDuration.WithLabelValues(j.Type, result).Observe(d.Seconds())
	w.prom.JobResults.WithLabelValues(j.Type, result).Inc()
}

func (w *Worker) record(ctx context.Context, j job.Job, p jobs.SendNotificationPayload, result string, cause error) {
	if w.sink == nil {
		return
	}

	level := logentry.LevelInfo
	message := "notification delivered"
	switch result {
	case "retry":
		level = logentry.LevelWarn
		message = "notification delivery failed, will retry"
	case "failed":
		level = logentry.LevelError
		message = "notification delivery failed permanently"
	}

	meta := map[string]any{
		"jobId":    j.ID,
		"kind":     p.Kind,
		"attempts": j.Attempts + 1,
		"result":   result,
	}
	if cause != nil {
		meta["error"] = cause.Error()
	}
	raw, _ := json.Marshal(meta)

	var reqID *string
	if p.RequestID != "" {
		reqID = &p.RequestID
	}

	w.sink.Record(ctx, logentry.CreateRequest{
		Service:   "notifier-worker",
		Level:     level,
		Action:    "notification." + result,
		Message:   message,
		RequestID: reqID,
		Metadata:  raw,
	})
}
