package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-doc-approvals/pkg/auth"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// CachedResponse is a stored response replayed for a repeated key.
type CachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// IdempotencyStore persists responses by key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	Put(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error
}

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// mutating requests. Keys are scoped by caller, method and path. Server
// errors are not stored so the caller can retry them. A nil store disables
// the middleware.
func Idempotency(store IdempotencyStore, ttl time.Duration, log *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			caller := "anonymous"
			if uc, err := auth.GetUserContext(r.Context()); err == nil {
				caller = uc.UserID
			}
			scoped := caller + ":" + r.Method + ":" + r.URL.Path + ":" + key

			cached, ok, err := store.Get(r.Context(), scoped)
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("idempotency: lookup failed, executing request")
			} else if ok {
				if cached.ContentType != "" {
					w.Header().Set("Content-Type", cached.ContentType)
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			cw := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(cw, r)

			if cw.status == 0 || cw.status >= 500 {
				return
			}
			resp := &CachedResponse{
				Status:      cw.status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        cw.buf.Bytes(),
			}
			if err := store.Put(context.WithoutCancel(r.Context()), scoped, resp, ttl); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("idempotency: failed to store response")
			}
		})
	}
}
