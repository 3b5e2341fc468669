package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/certhub/internal/config"
	"github.com/geocoder89/certhub/internal/domain/event"
	"github.com/geocoder89/certhub/internal/domain/notification"
	"github.com/geocoder89/certhub/internal/domain/registration"
	"github.com/geocoder89/certhub/internal/domain/user"
	"github.com/geocoder89/certhub/internal/http/middlewares"
	"github.com/geocoder89/certhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type RegistrationRepository interface {
	Create(ctx context.Context, req registration.CreateRegistrationRequest) (registration.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]registration.Registration, error)
	GetByID(ctx context.Context, eventID, registrationID string) (registration.Registration, error)
	Delete(ctx context.Context, eventID, registrationID string) error
	SetAttendance(ctx context.Context, eventID, registrationID string, attended bool) (registration.Registration, error)
}

// EventLookup resolves the event title for outgoing emails.
type EventLookup interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
}

type RegistrationHandler struct {
	repo     RegistrationRepository
	events   EventLookup
	notifier Notifier
}

func NewRegistrationHandler(repo RegistrationRepository, events EventLookup, notifier Notifier) *RegistrationHandler {
	return &RegistrationHandler{repo: repo, events: events, notifier: notifierOrNoop(notifier)}
}

func (h *RegistrationHandler) ids(ctx *gin.Context, withRegistration bool) (string, string, bool) {
	eventID := ctx.Param("id")
	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "event id must be a valid UUID", nil)
		return "", "", false
	}

	if !withRegistration {
		return eventID, "", true
	}

	regID := ctx.Param("registrationId")
	if !utils.IsUUID(regID) {
		RespondBadRequest(ctx, "registration id must be a valid UUID", nil)
		return "", "", false
	}
	return eventID, regID, true
}

// notify sends kind for reg. The event title is looked up best-effort.
func (h *RegistrationHandler) notify(ctx *gin.Context, kind notification.Kind, reg registration.Registration) {
	data := map[string]string{"eventId": reg.EventID}

	if h.events != nil {
		cctx, cancel := config.WithTimeout(time.Second)
		e, err := h.events.GetByID(cctx, reg.EventID)
		cancel()
		if err == nil {
			data["eventTitle"] = e.Title
			data["eventDate"] = e.StartAt.Format("January 2, 2006 15:04 MST")
			if e.City != "" {
				data["eventCity"] = e.City
			}
		}
	}

	h.notifier.Notify(ctx.Request.Context(), kind, notification.Request{
		To:   reg.Email,
		Name: reg.Name,
		Data: data,
	}, string(kind)+":"+reg.ID)
}

// POST /events/:id/registrations
func (h *RegistrationHandler) Register(ctx *gin.Context) {
	eventID, _, ok := h.ids(ctx, false)
	if !ok {
		return
	}

	var req registration.CreateRegistrationRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// URL param is the source of truth
	req.EventID = eventID
	req.Email = utils.NormalizeEmail(req.Email)

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}
	req.UserID = &userID

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	reg, err := h.repo.Create(cctx, req)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrAlreadyRegistered):
			RespondConflict(ctx, "already_registered", "this email is already registered for this event.")
		case errors.Is(err, registration.ErrEventFull):
			RespondConflict(ctx, "event_full", "this event is already at full capacity.")
		case errors.Is(err, event.ErrNotFound):
			RespondNotFound(ctx, "Event not found")
		default:
			RespondInternal(ctx, "Could not register for event")
		}
		return
	}

	h.notify(ctx, notification.KindEventRegistration, reg)

	ctx.JSON(http.StatusCreated, reg)
}

// GET /events/:id/registrations (admin)
func (h *RegistrationHandler) ListForEvent(ctx *gin.Context) {
	eventID, _, ok := h.ids(ctx, false)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	regs, err := h.repo.ListByEvent(cctx, eventID)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}

		RespondInternal(ctx, "Could not list registrations")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"eventId":       eventID,
		"count":         len(regs),
		"registrations": regs,
	})
}

// DELETE /events/:id/registrations/:registrationId
func (h *RegistrationHandler) Cancel(ctx *gin.Context) {
	eventID, regID, ok := h.ids(ctx, true)
	if !ok {
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	role, _ := middlewares.RoleFromContext(ctx)

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	reg, err := h.repo.GetByID(cctx, eventID, regID)
	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			RespondNotFound(ctx, "Registration not found")
			return
		}

		RespondInternal(ctx, "Could not cancel registration")
		return
	}

	// owner or admin
	isOwner := reg.UserID != nil && *reg.UserID == userID
	if role != user.RoleAdmin && !isOwner {
		RespondForbidden(ctx, "You can only cancel your registration")
		return
	}

	if err := h.repo.Delete(cctx, eventID, regID); err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			RespondNotFound(ctx, "Registration not found")
			return
		}

		RespondInternal(ctx, "Could not cancel registration")
		return
	}

	h.notify(ctx, notification.KindEventCancellation, reg)

	ctx.Status(http.StatusNoContent)
}

// PATCH /events/:id/registrations/:registrationId/attendance (admin)
func (h *RegistrationHandler) MarkAttendance(ctx *gin.Context) {
	eventID, regID, ok := h.ids(ctx, true)
	if !ok {
		return
	}

	var req registration.MarkAttendanceRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	reg, err := h.repo.SetAttendance(cctx, eventID, regID, *req.Attended)
	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			RespondNotFound(ctx, "Registration not found")
			return
		}

		RespondInternal(ctx, "Could not update attendance")
		return
	}

	if reg.Attended {
		h.notify(ctx, notification.KindAttendanceConfirmed, reg)
	}

	ctx.JSON(http.StatusOK, reg)
}
