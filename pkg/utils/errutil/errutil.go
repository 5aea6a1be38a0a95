package errutil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

var sentryEnabled atomic.Bool

// InitSentry enables error reporting to Sentry. An empty dsn leaves it
// disabled.
func InitSentry(dsn, env, release string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	}); err != nil {
		return goerr.Wrap(err, "failed to initialize sentry")
	}
	sentryEnabled.Store(true)
	return nil
}

// Flush waits for buffered Sentry events
func Flush() {
	if sentryEnabled.Load() {
		sentry.Flush(2 * time.Second)
	}
}

// Handle logs the error with a message, reports it to Sentry when enabled
// and returns the correlation GUID that user-visible error views refer to.
func Handle(ctx context.Context, err error, msg string) string {
	if err == nil {
		return ""
	}

	guid := uuid.NewString()
	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"correlation_id", guid,
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error(msg, "error", err.Error(), "correlation_id", guid)
	}

	if sentryEnabled.Load() {
		hub := sentry.CurrentHub().Clone()
		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("correlation_id", guid)
			scope.SetContext("error", errorContext(msg, ge))
		})
		if evID := hub.CaptureException(err); evID != nil {
			logger.Info("error reported to sentry", slog.String("sentry_event_id", string(*evID)))
		}
	}

	return guid
}

// errorContext collects the message and goerr values attached to a Sentry
// event
func errorContext(msg string, ge *goerr.Error) sentry.Context {
	c := sentry.Context{"message": msg}
	if ge != nil {
		for k, v := range ge.Values() {
			c[k] = v
		}
	}
	return c
}

// StatusCode maps the error taxonomy to an HTTP status code
func StatusCode(err error) int {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, model.ErrStateConflict), errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRole):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON body of error responses
type ErrorBody struct {
	Detail        []model.FieldError `json:"detail,omitempty"`
	Message       string             `json:"message,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
}

// Body builds the response body of err. Validation and state conflicts carry
// their {loc, msg} list.
func Body(err error) ErrorBody {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return ErrorBody{Detail: verr.Details}
	}
	var conflict *model.StateConflictError
	if errors.As(err, &conflict) {
		return ErrorBody{Detail: []model.FieldError{{Loc: conflict.Loc, Msg: conflict.Msg}}}
	}
	switch StatusCode(err) {
	case http.StatusNotFound:
		return ErrorBody{Message: "not found"}
	case http.StatusForbidden:
		return ErrorBody{Message: "forbidden"}
	case http.StatusBadRequest:
		return ErrorBody{Message: err.Error()}
	}
	return ErrorBody{Message: "internal server error"}
}

// HandleHTTP logs the error and writes a JSON error response with the status
// code derived from the taxonomy.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	status := StatusCode(err)
	body := Body(err)
	if status >= http.StatusInternalServerError {
		body.CorrelationID = Handle(ctx, err, "HTTP error")
	} else {
		logging.From(ctx).Warn("HTTP client error", "status", status, "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		logging.From(ctx).Error("failed to write error response", "error", encErr)
	}
}
