// Package httpapi defines the response envelopes and the shared error stage.
//
// Handlers return errors instead of writing them. Adapt forwards a returned
// error, or a recovered panic, to the ErrorStage installed on the request,
// which is the only place that turns errors into HTTP status codes.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/artpar/calm/core/apierr"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// HandlerFunc is an HTTP handler that reports failures by returning them.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// SuccessBody is the envelope of successful responses.
type SuccessBody struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// ErrorBody is the envelope of failed responses.
type ErrorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Success writes data in the success envelope.
func Success(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessBody{Status: StatusSuccess, Data: data})
}

// ErrorStage formats errors into the error envelope.
type ErrorStage struct {
	// Development includes stack traces and internal error messages in responses.
	Development bool

	Logger zerolog.Logger
}

// Handle writes err to w using the status code it declares, 500 otherwise.
func (s *ErrorStage) Handle(w http.ResponseWriter, r *http.Request, err error) {
	status := apierr.StatusOf(err)

	body := ErrorBody{
		Status:  apierr.Label(status),
		Message: err.Error(),
	}

	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) && !s.Development {
		body.Message = http.StatusText(status)
	} else if apiErr != nil {
		body.Message = apiErr.Message
	}

	if s.Development {
		body.Stack = apierr.Stack(err)
	}

	if status >= http.StatusInternalServerError {
		s.Logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Msg("request failed")
	} else {
		s.Logger.Debug().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Msg("request rejected")
	}

	writeJSON(w, status, body)
}

type stageKey struct{}

// Middleware installs the stage on every request so Adapt can reach it.
func (s *ErrorStage) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), stageKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var fallbackStage = &ErrorStage{Logger: zerolog.Nop()}

// StageFrom returns the stage installed on ctx, or a production stage that
// does not log.
func StageFrom(ctx context.Context) *ErrorStage {
	if s, ok := ctx.Value(stageKey{}).(*ErrorStage); ok {
		return s
	}
	return fallbackStage
}

// Adapt converts h to an http.HandlerFunc. Returned errors and panics are
// forwarded to the request's error stage.
func Adapt(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err, ok := rec.(error)
				if !ok {
					err = errors.Errorf("panic: %v", rec)
				} else {
					err = errors.WithStack(err)
				}
				StageFrom(r.Context()).Handle(w, r, err)
			}
		}()

		if err := h(w, r); err != nil {
			StageFrom(r.Context()).Handle(w, r, err)
		}
	}
}

// NotFound responds to requests that match no route.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorBody{Status: StatusError, Message: "Route not found"})
}

// MethodNotAllowed responds to requests whose path matches but method does not.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{Status: StatusFail, Message: "Method not allowed"})
}

// DecodeJSON decodes the request body into v. Malformed bodies are
// validation errors.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return apierr.Validation("Request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 10<<20)) // 10MB limit
	if err := dec.Decode(v); err != nil {
		return apierr.Wrap(err, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
