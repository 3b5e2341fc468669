package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/geocoder89/certhub/internal/domain/pendingaction"
	"github.com/go-playground/validator/v10"
)

var ErrInvalidAction = errors.New("invalid action")

// StatusError is a non-2xx answer from a backend service.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// payload shape per action type, checked before anything is sent
var payloadRules = map[pendingaction.Type]map[string]any{
	pendingaction.TypeCreateUser: {
		"email":    "required,email",
		"password": "required,min=8",
		"name":     "required,min=2,max=120",
	},
	pendingaction.TypeCreateEvent: {
		"title":    "required,min=3,max=120",
		"startAt":  "required",
		"capacity": "required",
	},
	pendingaction.TypeRegisterUserToEvent: {
		"name":  "required,min=2",
		"email": "required,email",
	},
}

type HTTPDispatcher struct {
	eventsURL       string
	certificatesURL string
	token           string
	client          *http.Client
	validate        *validator.Validate
}

type DispatcherConfig struct {
	EventsURL       string
	CertificatesURL string
	Token           string
	Timeout         time.Duration
}

func NewHTTPDispatcher(cfg DispatcherConfig) *HTTPDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPDispatcher{
		eventsURL:       strings.TrimRight(cfg.EventsURL, "/"),
		certificatesURL: strings.TrimRight(cfg.CertificatesURL, "/"),
		token:           cfg.Token,
		client:          &http.Client{Timeout: cfg.Timeout},
		validate:        validator.New(),
	}
}

type route struct {
	method string
	base   string
	path   string
	body   any
}

func (d *HTTPDispatcher) route(a pendingaction.PendingAction) (route, error) {
	if err := a.CheckRefs(); err != nil {
		return route{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if err := d.checkPayload(a); err != nil {
		return route{}, err
	}

	switch a.Type {
	case pendingaction.TypeCreateUser:
		return route{http.MethodPost, d.eventsURL, "/users", a.Payload}, nil
	case pendingaction.TypeCreateEvent:
		return route{http.MethodPost, d.eventsURL, "/events", a.Payload}, nil
	case pendingaction.TypeRegisterUserToEvent:
		return route{
			http.MethodPost, d.eventsURL,
			"/events/" + url.PathEscape(*a.EventID) + "/registrations",
			a.Payload,
		}, nil
	case pendingaction.TypeMarkAttendance:
		body := map[string]any{"attended": true}
		if v, ok := a.Payload["attended"]; ok {
			body["attended"] = v
		}
		return route{
			http.MethodPatch, d.eventsURL,
			"/events/" + url.PathEscape(*a.EventID) + "/registrations/" + url.PathEscape(*a.RegistrationID) + "/attendance",
			body,
		}, nil
	case pendingaction.TypeIssueCertificate:
		return route{
			http.MethodPost, d.certificatesURL,
			"/certificates/issue",
			map[string]any{"eventId": *a.EventID},
		}, nil
	default:
		return route{}, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}
}

func (d *HTTPDispatcher) checkPayload(a pendingaction.PendingAction) error {
	rules, ok := payloadRules[a.Type]
	if !ok {
		return nil
	}

	data := make(map[string]any, len(a.Payload))
	for k, v := range a.Payload {
		data[k] = v
	}

	problems := d.validate.ValidateMap(data, rules)
	if len(problems) == 0 {
		return nil
	}

	fields := make([]string, 0, len(problems))
	for field := range problems {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fmt.Errorf("%w: %s payload has invalid fields: %s", ErrInvalidAction, a.Type, strings.Join(fields, ", "))
}

// Dispatch replays a against its backend route. Transport failures wrap
// ErrOffline; non-2xx answers come back as *StatusError.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, a pendingaction.PendingAction) error {
	rt, err := d.route(a)
	if err != nil {
		return err
	}

	body, err := json.Marshal(rt.body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, rt.method, rt.base+rt.path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	if a.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", a.IdempotencyKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	se := &StatusError{Method: rt.method, Path: rt.path, Status: resp.StatusCode}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &envelope) == nil {
		se.Code = envelope.Error.Code
		se.Message = envelope.Error.Message
	}
	return se
}

// HealthProbe treats a 2xx from GET {base}/healthz as online.
type HealthProbe struct {
	url    string
	client *http.Client
}

func NewHealthProbe(baseURL string, timeout time.Duration) *HealthProbe {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthProbe{
		url:    strings.TrimRight(baseURL, "/") + "/healthz",
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HealthProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
