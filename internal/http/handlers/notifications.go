package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/certhub/internal/config"
	"github.com/geocoder89/certhub/internal/domain/job"
	"github.com/geocoder89/certhub/internal/domain/notification"
	"github.com/geocoder89/certhub/internal/http/middlewares"
	"github.com/geocoder89/certhub/internal/jobs"
	"github.com/geocoder89/certhub/internal/repo/postgres"
	"github.com/geocoder89/certhub/internal/utils"
	"github.com/gin-gonic/gin"
)

const notificationMaxAttempts = 8

type JobsRepository interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
	GetByIdempotencyKey(ctx context.Context, key string) (job.Job, error)
	GetByID(ctx context.Context, id string) (job.Job, error)
	Retry(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[job.Status]int, error)
}

type NotificationsHandler struct {
	jobs JobsRepository
	log  *slog.Logger
}

func NewNotificationsHandler(jobsRepo JobsRepository, log *slog.Logger) *NotificationsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &NotificationsHandler{jobs: jobsRepo, log: log}
}

// POST /api/notifications/:kind
func (h *NotificationsHandler) Enqueue(ctx *gin.Context) {
	kind := notification.Kind(ctx.Param("kind"))
	if !kind.IsValid() {
		RespondNotFound(ctx, "Unknown notification kind")
		return
	}

	var req notification.Request

	if !BindJSON(ctx, &req) {
		return
	}

	raw, err := jobs.EncodePayload(jobs.JobSendNotification, jobs.SendNotificationPayload{
		Kind:        string(kind),
		To:          utils.NormalizeEmail(req.To),
		Name:        req.Name,
		Data:        req.Data,
		RequestID:   requestIDFrom(ctx),
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		RespondBadRequest(ctx, "Invalid notification payload", nil)
		return
	}

	var keyPtr *string
	if k := strings.TrimSpace(ctx.GetHeader(middlewares.IdempotencyHeader)); k != "" {
		key := "notify:" + string(kind) + ":" + k
		keyPtr = &key
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	j, err := h.jobs.Create(cctx, job.CreateRequest{
		Type:           string(jobs.JobSendNotification),
		Payload:        raw,
		RunAt:          time.Now().UTC(),
		MaxAttempts:    notificationMaxAttempts,
		IdempotencyKey: keyPtr,
	})

	alreadyEnqueued := false
	if err != nil {
		if keyPtr == nil || !postgres.IsUniqueViolation(err) {
			RespondInternal(ctx, "Could not enqueue notification")
			return
		}

		existing, gerr := h.jobs.GetByIdempotencyKey(cctx, *keyPtr)
		if gerr != nil {
			RespondInternal(ctx, "Could not enqueue notification")
			return
		}
		j = existing
		alreadyEnqueued = true
	}

	h.log.InfoContext(ctx.Request.Context(), "notification.enqueue",
		"request_id", requestIDFrom(ctx),
		"job_id", j.ID,
		"kind", kind,
		"already_enqueued", alreadyEnqueued,
	)

	ctx.JSON(http.StatusAccepted, gin.H{
		"jobId":           j.ID,
		"status":          j.Status,
		"kind":            kind,
		"alreadyEnqueued": alreadyEnqueued,
	})
}

// GET /api/notifications/jobs/:id (admin)
func (h *NotificationsHandler) GetJob(ctx *gin.Context) {
	id := ctx.Param("id")
	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "job id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	j, err := h.jobs.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			RespondNotFound(ctx, "Job not found")
			return
		}
		RespondInternal(ctx, "Could not fetch job")
		return
	}

	ctx.JSON(http.StatusOK, j)
}

// POST /api/notifications/jobs/:id/retry (admin)
func (h *NotificationsHandler) RetryJob(ctx *gin.Context) {
	id := ctx.Param("id")
	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "job id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if err := h.jobs.Retry(cctx, id); err != nil {
		switch {
		case errors.Is(err, job.ErrJobNotFound):
			RespondNotFound(ctx, "Job not found")
		case errors.Is(err, postgres.ErrJobNotFailed):
			RespondConflict(ctx, "job_not_failed", "Only failed jobs can be retried.")
		default:
			RespondInternal(ctx, "Could not retry job")
		}
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"jobId": id, "status": job.StatusPending})
}

// GET /api/notifications/stats (admin)
func (h *NotificationsHandler) Stats(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	counts, err := h.jobs.CountByStatus(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not load job stats")
		return
	}

	out := gin.H{}
	for _, s := range []job.Status{job.StatusPending, job.StatusProcessing, job.StatusDone, job.StatusFailed} {
		out[string(s)] = counts[s]
	}

	ctx.JSON(http.StatusOK, gin.H{"jobs": out})
}
