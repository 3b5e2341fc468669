package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/certhub/internal/cache"
	"github.com/geocoder89/certhub/internal/config"
	"github.com/geocoder89/certhub/internal/domain/event"
	"github.com/geocoder89/certhub/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	defaultEventsLimit = 20
	maxEventsLimit     = 100
	zeroUUID           = "00000000-0000-0000-0000-000000000000"
)

type EventsRepository interface {
	Create(ctx context.Context, req event.CreateEventRequest) (event.Event, error)
	GetByID(ctx context.Context, id string) (event.Event, error)
	ListCursor(ctx context.Context, filters event.ListEventsFilter, afterStartAt time.Time, afterID string) ([]event.Event, *string, bool, error)
}

type EventsHandler struct {
	repo  EventsRepository
	cache *cache.Cache
}

func NewEventsHandler(repo EventsRepository) *EventsHandler {
	return &EventsHandler{repo: repo}
}

// NewEventsHandlerWithCache keeps list pages in c until they expire or an
// event is created.
func NewEventsHandlerWithCache(repo EventsRepository, c *cache.Cache) *EventsHandler {
	return &EventsHandler{repo: repo, cache: c}
}

type eventsPage struct {
	Items      []event.Event `json:"items"`
	Count      int           `json:"count"`
	Limit      int           `json:"limit"`
	HasMore    bool          `json:"hasMore"`
	NextCursor *string       `json:"nextCursor,omitempty"`
}

func (h *EventsHandler) CreateEvent(ctx *gin.Context) {
	var req event.CreateEventRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	e, err := h.repo.Create(cctx, req)
	if err != nil {
		RespondInternal(ctx, "Could not create event")
		return
	}

	if h.cache != nil {
		h.cache.Clear()
	}

	ctx.JSON(http.StatusCreated, e)
}

func (h *EventsHandler) ListEvents(ctx *gin.Context) {
	filters, ok := parseEventFilters(ctx)
	if !ok {
		return
	}

	// first page starts before every possible row
	afterStartAt := time.Unix(0, 0).UTC()
	afterID := zeroUUID

	if raw := ctx.Query("cursor"); raw != "" {
		cur, err := utils.DecodeEventCursor(raw)
		if err != nil {
			RespondBadRequest(ctx, "Invalid cursor", nil)
			return
		}
		afterStartAt = cur.StartAt
		afterID = cur.ID
	}

	cacheKey := "events:list:" + ctx.Request.URL.RawQuery
	if h.cache != nil {
		if v, ok := h.cache.Get(cacheKey); ok {
			if page, ok := v.(eventsPage); ok {
				respondWithETag(ctx, http.StatusOK, page, pageETag)
				return
			}
		}
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, next, hasMore, err := h.repo.ListCursor(cctx, filters, afterStartAt, afterID)
	if err != nil {
		RespondInternal(ctx, "Could not list events")
		return
	}

	if items == nil {
		items = []event.Event{}
	}

	page := eventsPage{
		Items:      items,
		Count:      len(items),
		Limit:      filters.Limit,
		HasMore:    hasMore,
		NextCursor: next,
	}

	if h.cache != nil {
		h.cache.Set(cacheKey, page)
	}

	respondWithETag(ctx, http.StatusOK, page, pageETag)
}

func parseEventFilters(ctx *gin.Context) (event.ListEventsFilter, bool) {
	filters := event.ListEventsFilter{Limit: defaultEventsLimit}

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventsLimit {
			RespondBadRequest(ctx, "limit must be between 1 and 100", nil)
			return filters, false
		}
		filters.Limit = n
	}

	if city := strings.TrimSpace(ctx.Query("city")); city != "" {
		filters.City = &city
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"from", &filters.From},
		{"to", &filters.To},
	} {
		raw := ctx.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondBadRequest(ctx, p.name+" must be an RFC3339 timestamp", nil)
			return filters, false
		}
		t = t.UTC()
		*p.dst = &t
	}

	if filters.From != nil && filters.To != nil && filters.To.Before(*filters.From) {
		RespondBadRequest(ctx, "to must not be before from", nil)
		return filters, false
	}

	return filters, true
}

func (h *EventsHandler) GetEventById(ctx *gin.Context) {
	id := ctx.Param("id")
	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "event id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	e, err := h.repo.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not fetch event")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, e)
}
