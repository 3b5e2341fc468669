// Package clients holds the HTTP clients services use to reach their
// siblings. Every call is best-effort: failures are logged and counted,
// never returned to the request that triggered them.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/certhub/internal/actorctx"
	"github.com/geocoder89/certhub/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type base struct {
	target  string
	baseURL string
	http    *http.Client
	timeout time.Duration
	log     *slog.Logger
	prom    *observability.Prom
}

func newBase(target, baseURL string, timeout time.Duration, log *slog.Logger, prom *observability.Prom) base {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return base{
		target:  target,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		log:     log,
		prom:    prom,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func (b base) postJSON(ctx context.Context, path string, body any, header http.Header) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if id, ok := actorctx.RequestIDFrom(ctx); ok {
		req.Header.Set("X-Request-Id", id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := b.http.Do(req)
	if err != nil {
		b.count("error")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b.count("status_" + fmt.Sprint(resp.StatusCode/100) + "xx")
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	b.count("ok")
	return nil
}

func (b base) count(result string) {
	if b.prom != nil {
		b.prom.OutboundTotal.WithLabelValues(b.target, result).Inc()
	}
}

// detach runs fn in the background with a fresh timeout that survives the
// caller's request context.
func (b base) detach(ctx context.Context, what string, fn func(ctx context.Context) error) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	go func() {
		defer cancel()
		if err := fn(bg); err != nil {
			b.log.WarnContext(bg, "outbound call failed", "target", b.target, "call", what, "err", err)
		}
	}()
}
