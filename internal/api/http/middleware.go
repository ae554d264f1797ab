// Package http serves the relmap API over HTTP with JSON bodies.
package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Header names carrying request metadata in both directions.
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

type metaKey struct{}

// requestMeta identifies one request. CorrelationID is shared by the
// requests of one client operation and defaults to the request id.
type requestMeta struct {
	RequestID     string
	CorrelationID string
}

func metaFrom(ctx context.Context) requestMeta {
	m, _ := ctx.Value(metaKey{}).(requestMeta)
	return m
}

// ErrorResponse is the body of every failed request. Code is the
// relmap error code when there is one.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Identify takes the request and correlation ids from the request headers,
// generating a request id when the client sent none, and echoes both.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := requestMeta{
			RequestID:     r.Header.Get(HeaderRequestID),
			CorrelationID: r.Header.Get(HeaderCorrelationID),
		}
		if m.RequestID == "" {
			m.RequestID = uuid.NewString()
		}
		if m.CorrelationID == "" {
			m.CorrelationID = m.RequestID
		}
		w.Header().Set(HeaderRequestID, m.RequestID)
		w.Header().Set(HeaderCorrelationID, m.CorrelationID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), metaKey{}, m)))
	})
}

// statusWriter remembers the status written through it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// AccessLog logs one line per request with its status and duration.
// Server errors are marked [WARN].
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}

		level := ""
		if sw.status >= http.StatusInternalServerError {
			level = "[WARN] "
		}
		log.Printf("http: %s%s %s %d %s (request %s)", level, r.Method, r.URL.Path,
			sw.status, time.Since(start).Round(time.Microsecond), GetRequestID(r.Context()))
	})
}

// Recover answers a panicking handler with a 500 and logs the stack.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				id := GetRequestID(r.Context())
				log.Printf("http: [FATAL] panic serving %s %s (request %s): %v\n%s", r.Method, r.URL.Path, id, err, debug.Stack())
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", RequestID: id})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Chain applies middleware so that the first one is outermost.
func Chain(mw ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for i := len(mw) - 1; i >= 0; i-- {
			h = mw[i](h)
		}
		return h
	}
}

// DefaultMiddleware identifies, logs and recovers every request, in that
// order, so panics and log lines carry the request id.
func DefaultMiddleware() Middleware {
	return Chain(Identify, AccessLog, Recover)
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("http: [WARN] failed to write response: %v", err)
	}
}

// GetRequestID returns the id Identify assigned to the request, or "".
func GetRequestID(ctx context.Context) string { return metaFrom(ctx).RequestID }

// GetCorrelationID returns the correlation id of the request, or "".
func GetCorrelationID(ctx context.Context) string { return metaFrom(ctx).CorrelationID }
