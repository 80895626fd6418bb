package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"mediaCompressor/api/dto"
)

// startTracker notes whether the handler has begun its response.
type startTracker struct {
	http.ResponseWriter
	started bool
}

func (t *startTracker) WriteHeader(code int) {
	t.started = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *startTracker) Write(b []byte) (int, error) {
	t.started = true
	return t.ResponseWriter.Write(b)
}

// Recovery turns a handler panic into the API's internal error body. A panic after the
// response has started can only be logged; http.ErrAbortHandler is passed on to the
// server untouched.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &startTracker{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				traceID := GetTraceID(r.Context())
				logger.Error("Panic recovered",
					zap.String("trace_id", traceID),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Bool("response_started", tw.started),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				if tw.started {
					return
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(dto.ErrorResponse{
					Error:   "Internal server error",
					Code:    "internal",
					TraceID: traceID,
				})
			}()

			next.ServeHTTP(tw, r)
		})
	}
}
