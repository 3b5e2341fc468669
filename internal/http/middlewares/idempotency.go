package middlewares

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/certhub/internal/cache"
	"github.com/geocoder89/certhub/internal/utils"
	"github.com/gin-gonic/gin"
)

const IdempotencyHeader = "Idempotency-Key"

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

var inFlightMarker = []byte(`{"inFlight":true}`)

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// mutating routes. Keys are scoped per route and caller. Only 2xx responses
// are stored, so a rejected request can be retried under the same key.
func Idempotency(store cache.Store, ttl time.Duration, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		if len(key) > 128 {
			abortJSON(c, http.StatusBadRequest, "invalid_request", "Idempotency-Key must be at most 128 characters")
			return
		}

		caller, _ := UserIDFromContext(c)
		if caller == "" {
			caller = "anon:" + clientIP(c)
		}
		scope := c.Request.Method + " " + c.FullPath()
		storeKey := utils.IdempotencyKey(scope, caller, key)
		ctx := c.Request.Context()

		raw, found, err := store.Get(ctx, storeKey)
		if err != nil {
			log.WarnContext(ctx, "idempotency lookup failed", "err", err)
			c.Next()
			return
		}

		if found {
			if bytes.Equal(raw, inFlightMarker) {
				abortJSON(c, http.StatusConflict, "idempotency_in_progress", "A request with this Idempotency-Key is still being processed")
				return
			}

			var prev storedResponse
			if err := json.Unmarshal(raw, &prev); err == nil {
				c.Header("Idempotent-Replayed", "true")
				c.Data(prev.Status, prev.ContentType, prev.Body)
				c.Abort()
				return
			}
		}

		acquired, err := store.SetNX(ctx, storeKey, inFlightMarker, time.Minute)
		if err != nil {
			log.WarnContext(ctx, "idempotency reserve failed", "err", err)
			c.Next()
			return
		}
		if !acquired {
			abortJSON(c, http.StatusConflict, "idempotency_in_progress", "A request with this Idempotency-Key is still being processed")
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw

		c.Next()

		// only successes are replayed; a rejected request may succeed later
		status := cw.Status()
		if status < 200 || status >= 300 {
			if err := store.Delete(ctx, storeKey); err != nil {
				log.WarnContext(ctx, "idempotency release failed", "err", err)
			}
			return
		}

		out, err := json.Marshal(storedResponse{
			Status:      status,
			ContentType: cw.Header().Get("Content-Type"),
			Body:        cw.buf.Bytes(),
		})
		if err != nil {
			_ = store.Delete(ctx, storeKey)
			return
		}

		if err := store.Set(ctx, storeKey, out, ttl); err != nil {
			log.WarnContext(ctx, "idempotency store failed", "err", err)
		}
	}
}
