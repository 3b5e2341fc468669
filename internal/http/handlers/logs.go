package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/certhub/internal/config"
	"github.com/geocoder89/certhub/internal/domain/logentry"
	"github.com/geocoder89/certhub/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	defaultLogsLimit = 50
	maxLogsLimit     = 200
	maxUUID          = "ffffffff-ffff-ffff-ffff-ffffffffffff"
)

// newest-first paging starts after every possible row
var logsFirstPage = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

type LogsRepository interface {
	Create(ctx context.Context, req logentry.CreateRequest) (logentry.Entry, error)
	ListCursor(ctx context.Context, filters logentry.ListFilter, afterTS time.Time, afterID string) ([]logentry.Entry, *string, bool, error)
}

type LogsHandler struct {
	repo LogsRepository
}

func NewLogsHandler(repo LogsRepository) *LogsHandler {
	return &LogsHandler{repo: repo}
}

// POST /logs
func (h *LogsHandler) Create(ctx *gin.Context) {
	var req logentry.CreateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if req.RequestID == nil {
		if id := requestIDFrom(ctx); id != "" {
			req.RequestID = &id
		}
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	e, err := h.repo.Create(cctx, req)
	if err != nil {
		RespondInternal(ctx, "Could not store log entry")
		return
	}

	ctx.JSON(http.StatusCreated, e)
}

// GET /logs
func (h *LogsHandler) List(ctx *gin.Context) {
	filters := logentry.ListFilter{Limit: defaultLogsLimit}

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLogsLimit {
			RespondBadRequest(ctx, "limit must be between 1 and 200", nil)
			return
		}
		filters.Limit = n
	}

	if s := strings.TrimSpace(ctx.Query("service")); s != "" {
		filters.Service = &s
	}

	if l := strings.TrimSpace(ctx.Query("level")); l != "" {
		switch l {
		case logentry.LevelDebug, logentry.LevelInfo, logentry.LevelWarn, logentry.LevelError:
			filters.Level = &l
		default:
			RespondBadRequest(ctx, "level must be one of debug, info, warn, error", nil)
			return
		}
	}

	afterTS := logsFirstPage
	afterID := maxUUID

	if raw := ctx.Query("cursor"); raw != "" {
		cur, err := utils.DecodeLogCursor(raw)
		if err != nil {
			RespondBadRequest(ctx, "Invalid cursor", nil)
			return
		}
		afterTS = cur.Timestamp
		afterID = cur.ID
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, next, hasMore, err := h.repo.ListCursor(cctx, filters, afterTS, afterID)
	if err != nil {
		RespondInternal(ctx, "Could not list logs")
		return
	}
	if items == nil {
		items = []logentry.Entry{}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items":      items,
		"count":      len(items),
		"limit":      filters.Limit,
		"hasMore":    hasMore,
		"nextCursor": next,
	})
}
