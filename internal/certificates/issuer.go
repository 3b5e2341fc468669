// Package certificates issues, verifies and revokes certificates of
// attendance.
package certificates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/geocoder89/certhub/internal/cache"
	"github.com/geocoder89/certhub/internal/domain/certificate"
	"github.com/geocoder89/certhub/internal/domain/logentry"
	"github.com/geocoder89/certhub/internal/domain/notification"
	"github.com/geocoder89/certhub/internal/observability"
	"github.com/geocoder89/certhub/internal/utils"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Stage is how far an issue request got.
type Stage string

const (
	StageRequested         Stage = "requested"
	StageAttendanceChecked Stage = "attendance-checked"
	StageGenerated         Stage = "generated"
	StagePersisted         Stage = "persisted"
	StageNotified          Stage = "notified"
)

type Store interface {
	FindByUserAndEvent(ctx context.Context, email, eventID string) (certificate.Certificate, error)
	Insert(ctx context.Context, c certificate.Certificate) error
	GetByCode(ctx context.Context, code string) (certificate.Certificate, error)
	ListByUser(ctx context.Context, email string) ([]certificate.Certificate, error)
	Deactivate(ctx context.Context, code string) error
}

type AttendanceReader interface {
	GetAttendance(ctx context.Context, eventID, email string) (certificate.Attendance, error)
}

type Renderer interface {
	Render(c certificate.Certificate) ([]byte, error)
}

type Notifier interface {
	Send(ctx context.Context, kind notification.Kind, req notification.Request, idempotencyKey string) error
}

type LogSink interface {
	Record(ctx context.Context, req logentry.CreateRequest)
}

type Issuer struct {
	store      Store
	attendance AttendanceReader
	renderer   Renderer
	notifier   Notifier
	sink       LogSink
	cache      cache.Store
	cacheTTL   time.Duration
	verifyURL  string
	log        *slog.Logger
	prom       *observability.Prom

	now     func() time.Time
	newCode func() string
}

type Option func(*Issuer)

func WithNotifier(n Notifier) Option { return func(i *Issuer) { i.notifier = n } }

func WithLogSink(s LogSink) Option { return func(i *Issuer) { i.sink = s } }

func WithCache(c cache.Store, ttl time.Duration) Option {
	return func(i *Issuer) {
		i.cache = c
		i.cacheTTL = ttl
	}
}

func WithLogger(l *slog.Logger) Option { return func(i *Issuer) { i.log = l } }

func WithProm(p *observability.Prom) Option { return func(i *Issuer) { i.prom = p } }

// WithVerifyURL sets the public base used in notification links.
func WithVerifyURL(base string) Option {
	return func(i *Issuer) { i.verifyURL = strings.TrimRight(base, "/") }
}

func NewIssuer(store Store, attendance AttendanceReader, renderer Renderer, opts ...Option) *Issuer {
	i := &Issuer{
		store:      store,
		attendance: attendance,
		renderer:   renderer,
		cacheTTL:   10 * time.Minute,
		log:        slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
		newCode:    NewCode,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.cache == nil {
		i.cache = cache.NewMemoryStore(i.cacheTTL)
	}
	return i
}

// NewCode returns a fresh, sortable certificate code.
func NewCode() string {
	return "CERT-" + ulid.Make().String()
}

type IssueResult struct {
	Certificate certificate.Certificate
	PDF         []byte
	Stage       Stage
}

// Issue runs requested → attendance-checked → generated → persisted →
// notified for the attendee identified by email. Notification is
// best-effort; every earlier stage must succeed.
func (i *Issuer) Issue(ctx context.Context, email, eventID string) (IssueResult, error) {
	res := IssueResult{Stage: StageRequested}
	email = utils.NormalizeEmail(email)

	existing, err := i.store.FindByUserAndEvent(ctx, email, eventID)
	switch {
	case err == nil:
		i.count("already_issued")
		return res, fmt.Errorf("%w: %s", certificate.ErrAlreadyIssued, existing.Code)
	case !errors.Is(err, certificate.ErrNotFound):
		return res, err
	}

	att, err := i.attendance.GetAttendance(ctx, eventID, email)
	if err != nil {
		if errors.Is(err, certificate.ErrRegistrationNotFound) {
			i.count("registration_not_found")
		}
		return res, err
	}
	if !att.Attended {
		i.count("attendance_not_confirmed")
		return res, certificate.ErrAttendanceNotConfirmed
	}
	res.Stage = StageAttendanceChecked

	c := certificate.Certificate{
		ID:         uuid.NewString(),
		Code:       i.newCode(),
		UserEmail:  email,
		UserName:   att.Name,
		EventID:    att.EventID,
		EventTitle: att.EventTitle,
		EventDate:  att.EventStartAt,
		IssuedAt:   i.now(),
		IsActive:   true,
	}

	pdf, err := i.renderer.Render(c)
	if err != nil {
		i.count("error")
		return res, err
	}
	res.PDF = pdf
	res.Stage = StageGenerated

	if err := i.store.Insert(ctx, c); err != nil {
		if errors.Is(err, certificate.ErrAlreadyIssued) {
			i.count("already_issued")
		} else {
			i.count("error")
		}
		return res, err
	}
	res.Certificate = c
	res.Stage = StagePersisted
	i.count("issued")

	i.log.InfoContext(ctx, "certificate issued", "code", c.Code, "event_id", c.EventID)
	i.record(ctx, c)

	if i.notify(ctx, c) {
		res.Stage = StageNotified
	}

	return res, nil
}

func (i *Issuer) notify(ctx context.Context, c certificate.Certificate) bool {
	if i.notifier == nil {
		return false
	}

	data := map[string]string{
		"eventTitle":      c.EventTitle,
		"eventDate":       c.EventDate.UTC().Format("2 January 2006"),
		"certificateCode": c.Code,
	}
	if i.verifyURL != "" {
		data["verifyUrl"] = i.verifyURL + "/certificates/verify/" + c.Code
	}

	err := i.notifier.Send(ctx, notification.KindCertificateIssued, notification.Request{
		To:   c.UserEmail,
		Name: c.UserName,
		Data: data,
	}, "certificate-issued:"+c.Code)
	if err != nil {
		i.log.WarnContext(ctx, "certificate notification failed", "code", c.Code, "err", err)
		return false
	}
	return true
}

func (i *Issuer) record(ctx context.Context, c certificate.Certificate) {
	if i.sink == nil {
		return
	}
	meta, _ := json.Marshal(map[string]string{"code": c.Code, "eventId": c.EventID})
	i.sink.Record(ctx, logentry.CreateRequest{
		Service:  "certificate-service",
		Level:    logentry.LevelInfo,
		Action:   "certificate.issue",
		Message:  "certificate issued",
		Metadata: meta,
	})
}

func (i *Issuer) count(result string) {
	if i.prom != nil {
		i.prom.CertificatesTotal.WithLabelValues(result).Inc()
	}
}

// Verify returns the active certificate for code. Unknown and revoked
// codes are both certificate.ErrNotFound.
func (i *Issuer) Verify(ctx context.Context, code string) (certificate.Certificate, error) {
	code = utils.NormalizeCertificateCode(code)
	key := utils.CertificateVerifyKey(code)

	if raw, ok, err := i.cache.Get(ctx, key); err == nil && ok {
		var c certificate.Certificate
		if json.Unmarshal(raw, &c) == nil {
			return c, nil
		}
	} else if err != nil {
		i.log.WarnContext(ctx, "verify cache get failed", "err", err)
	}

	c, err := i.store.GetByCode(ctx, code)
	if err != nil {
		return certificate.Certificate{}, err
	}
	if !c.IsActive {
		return certificate.Certificate{}, certificate.ErrNotFound
	}

	if raw, err := json.Marshal(c); err == nil {
		if err := i.cache.Set(ctx, key, raw, i.cacheTTL); err != nil {
			i.log.WarnContext(ctx, "verify cache set failed", "err", err)
		}
	}

	return c, nil
}

func (i *Issuer) ListForUser(ctx context.Context, email string) ([]certificate.Certificate, error) {
	return i.store.ListByUser(ctx, utils.NormalizeEmail(email))
}

// Render returns the PDF for an active certificate.
func (i *Issuer) Render(ctx context.Context, code string) (certificate.Certificate, []byte, error) {
	c, err := i.Verify(ctx, code)
	if err != nil {
		return certificate.Certificate{}, nil, err
	}
	pdf, err := i.renderer.Render(c)
	if err != nil {
		return certificate.Certificate{}, nil, err
	}
	return c, pdf, nil
}

// Revoke deactivates code and drops it from the verify cache.
func (i *Issuer) Revoke(ctx context.Context, code string) error {
	code = utils.NormalizeCertificateCode(code)
	if err := i.store.Deactivate(ctx, code); err != nil {
		return err
	}

	if err := i.cache.Delete(ctx, utils.CertificateVerifyKey(code)); err != nil {
		i.log.WarnContext(ctx, "verify cache delete failed", "code", code, "err", err)
	}

	if i.sink != nil {
		meta, _ := json.Marshal(map[string]string{"code": code})
		i.sink.Record(ctx, logentry.CreateRequest{
			Service:  "certificate-service",
			Level:    logentry.LevelWarn,
			Action:   "certificate.revoke",
			Message:  "certificate revoked",
			Metadata: meta,
		})
	}
	return nil
}
