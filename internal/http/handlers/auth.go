package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/certhub/internal/auth"
	"github.com/geocoder89/certhub/internal/config"
	"github.com/geocoder89/certhub/internal/domain/notification"
	"github.com/geocoder89/certhub/internal/domain/user"
	"github.com/geocoder89/certhub/internal/security"
	"github.com/geocoder89/certhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type UserReader interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, email, passwordHash, name, role string) (user.User, error)
}

type AuthHandler struct {
	users      UserReader
	userWriter UserWriter
	jwt        *auth.Manager
	notifier   Notifier
}

func NewAuthHandler(users UserReader, userWriter UserWriter, jwtManager *auth.Manager, notifier Notifier) *AuthHandler {
	return &AuthHandler{
		users:      users,
		userWriter: userWriter,
		jwt:        jwtManager,
		notifier:   notifierOrNoop(notifier),
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	User        user.User `json:"user"`
}

func (h *AuthHandler) issue(ctx *gin.Context, status int, u user.User) {
	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.Name, u.Role)
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	ctx.JSON(status, tokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		User:        u,
	})
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.userWriter.Create(cctx, utils.NormalizeEmail(req.Email), hash, req.Name, user.RoleUser)
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

	h.issue(ctx, http.StatusCreated, u)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// short timeout for DB lookup
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			RespondInternal(ctx, "Could not sign in")
			return
		}
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	if err := security.CheckPassword(foundUser.PasswordHash, req.Password); err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	h.issue(ctx, http.StatusOK, foundUser)
}
