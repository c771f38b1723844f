// Package middleware provides HTTP middleware functions
package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Middleware defines a function to process http requests
type Middleware func(http.Handler) http.Handler

// RequestObserver records request metrics. metrics.Metrics implements it.
type RequestObserver interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

// Chain applies middlewares to a http.Handler. The last middleware is the
// outermost.
func Chain(handler http.Handler, middlewares ...Middleware) http.Handler {
	for _, middleware := range middlewares {
		handler = middleware(handler)
	}
	return handler
}

// Logger returns a middleware that logs API, websocket and health requests.
func Logger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logged(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()

			// Hijacked websocket connections have no status to report.
			if isWebSocket(r) {
				next.ServeHTTP(w, r)
				logger.Info("websocket_session",
					zap.String("path", r.URL.Path),
					zap.String("ip", r.RemoteAddr),
					zap.Duration("duration", time.Since(start)))
				return
			}

			rw := wrap(w)
			next.ServeHTTP(rw, r)
			logger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr))
		})
	}
}

// Metrics returns a router middleware that reports each request under its
// route template, so path parameters do not explode label cardinality.
func Metrics(observer RequestObserver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isWebSocket(r) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := wrap(w)
			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					path = tpl
				}
			}
			observer.ObserveHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
		})
	}
}

// Recover returns a middleware that recovers from panics
func Recover(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						zap.Any("panic", err),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS returns a middleware that handles CORS
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			corsOrigin := "*"
			if len(allowedOrigins) > 0 && origin != "" {
				corsOrigin = ""
				for _, allowed := range allowedOrigins {
					if allowed == "*" || allowed == origin {
						corsOrigin = allowed
						break
					}
				}
			}

			if corsOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", corsOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Batch-ID")
				if corsOrigin != "*" {
					w.Header().Add("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func logged(path string) bool {
	return strings.HasPrefix(path, "/api") || strings.HasPrefix(path, "/ws") || path == "/health"
}

func isWebSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// responseWriter is a wrapper for http.ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func wrap(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{w, http.StatusOK}
}

// WriteHeader captures the status code and passes it to the underlying ResponseWriter
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements the http.Hijacker interface to allow WebSocket connections
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("http.Hijacker interface is not supported by the underlying ResponseWriter")
}

// Flush implements the http.Flusher interface
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
