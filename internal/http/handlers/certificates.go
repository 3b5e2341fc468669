package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/certhub/internal/certificates"
	"github.com/geocoder89/certhub/internal/config"
	"github.com/geocoder89/certhub/internal/domain/certificate"
	"github.com/geocoder89/certhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

const pdfContentType = "application/pdf"

type CertificateService interface {
	Issue(ctx context.Context, email, eventID string) (certificates.IssueResult, error)
	Verify(ctx context.Context, code string) (certificate.Certificate, error)
	ListForUser(ctx context.Context, email string) ([]certificate.Certificate, error)
	Render(ctx context.Context, code string) (certificate.Certificate, []byte, error)
	Revoke(ctx context.Context, code string) error
}

type CertificatesHandler struct {
	svc CertificateService
}

func NewCertificatesHandler(svc CertificateService) *CertificatesHandler {
	return &CertificatesHandler{svc: svc}
}

func wantsPDF(ctx *gin.Context) bool {
	return strings.Contains(ctx.GetHeader("Accept"), pdfContentType)
}

func sendPDF(ctx *gin.Context, status int, c certificate.Certificate, pdf []byte) {
	ctx.Header("Content-Disposition", `attachment; filename="`+c.Code+`.pdf"`)
	ctx.Data(status, pdfContentType, pdf)
}

// POST /certificates/issue
func (h *CertificatesHandler) Issue(ctx *gin.Context) {
	var req certificate.IssueRequest

	if !BindJSON(ctx, &req) {
		return
	}

	email, ok := middlewares.EmailFromContext(ctx)
	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	// request context keeps the trace and actor for the downstream calls
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()

	res, err := h.svc.Issue(cctx, email, req.EventID)
	if err != nil {
		switch {
		case errors.Is(err, certificate.ErrAlreadyIssued):
			RespondBusinessRule(ctx, "already_issued", "A certificate was already issued for this event.")
		case errors.Is(err, certificate.ErrAttendanceNotConfirmed):
			RespondBusinessRule(ctx, "attendance_not_confirmed", "Attendance for this event has not been confirmed.")
		case errors.Is(err, certificate.ErrRegistrationNotFound):
			RespondError(ctx, http.StatusNotFound, "registration_not_found", "No registration found for this event.", nil)
		default:
			RespondInternal(ctx, "Could not issue certificate")
		}
		return
	}

	if wantsPDF(ctx) {
		sendPDF(ctx, http.StatusCreated, res.Certificate, res.PDF)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"certificate": res.Certificate,
		"stage":       res.Stage,
	})
}

// GET /certificates/verify/:code
func (h *CertificatesHandler) Verify(ctx *gin.Context) {
	code := strings.TrimSpace(ctx.Param("code"))

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	c, err := h.svc.Verify(cctx, code)
	if err != nil {
		if errors.Is(err, certificate.ErrNotFound) {
			RespondNotFound(ctx, "Certificate not found")
			return
		}
		RespondInternal(ctx, "Could not verify certificate")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"valid":       true,
		"certificate": c,
	})
}

// GET /certificates/me
func (h *CertificatesHandler) Me(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)
	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, err := h.svc.ListForUser(cctx, email)
	if err != nil {
		RespondInternal(ctx, "Could not list certificates")
		return
	}
	if items == nil {
		items = []certificate.Certificate{}
	}

	respondWithETag(ctx, http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	}, ownerListETag)
}

// GET /certificates/:code/pdf
func (h *CertificatesHandler) Download(ctx *gin.Context) {
	code := strings.TrimSpace(ctx.Param("code"))

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	c, pdf, err := h.svc.Render(cctx, code)
	if err != nil {
		if errors.Is(err, certificate.ErrNotFound) {
			RespondNotFound(ctx, "Certificate not found")
			return
		}
		RespondInternal(ctx, "Could not render certificate")
		return
	}

	sendPDF(ctx, http.StatusOK, c, pdf)
}

// PATCH /certificates/:code/revoke (admin)
func (h *CertificatesHandler) Revoke(ctx *gin.Context) {
	code := strings.TrimSpace(ctx.Param("code"))

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.svc.Revoke(cctx, code); err != nil {
		if errors.Is(err, certificate.ErrNotFound) {
			RespondNotFound(ctx, "Certificate not found")
			return
		}
		RespondInternal(ctx, "Could not revoke certificate")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"code": code, "isActive": false})
}
