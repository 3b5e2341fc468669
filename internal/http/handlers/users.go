package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/certhub/internal/config"
	"github.com/geocoder89/certhub/internal/domain/notification"
	"github.com/geocoder89/certhub/internal/domain/user"
	"github.com/geocoder89/certhub/internal/security"
	"github.com/geocoder89/certhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type UsersHandler struct {
	users    UserWriter
	notifier Notifier
}

func NewUsersHandler(users UserWriter, notifier Notifier) *UsersHandler {
	return &UsersHandler{users: users, notifier: notifierOrNoop(notifier)}
}

// POST /users (admin)
func (h *UsersHandler) Create(ctx *gin.Context) {
	var req user.CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	role := req.Role
	if role == "" {
		role = user.RoleUser
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.users.Create(cctx, utils.NormalizeEmail(req.Email), hash, req.Name, role)
	if err != nil {
		if errors.Is(err, user.ErrEmailAlreadyUsed) {
			RespondConflict(ctx, "email_taken", "Email is already in use.")
			return
		}
		RespondInternal(ctx, "Could not create user")
		return
	}

	h.notifier.Notify(ctx.Request.Context(), notification.KindAccountCreated, notification.Request{
		To:   u.Email,
		Name: u.Name,
	}, "account-created:"+u.ID)

	ctx.JSON(http.StatusCreated, u)
}
