package errutil_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/errutil"
)

func TestStatusCode(t *testing.T) {
	gt.Number(t, errutil.StatusCode(model.NewValidationError("title", "required"))).Equal(http.StatusBadRequest)
	gt.Number(t, errutil.StatusCode(model.NewPromptConflict(types.GenAITypeIncidentSummary))).Equal(http.StatusBadRequest)
	gt.Number(t, errutil.StatusCode(goerr.Wrap(model.ErrNotFound, "incident"))).Equal(http.StatusNotFound)
	gt.Number(t, errutil.StatusCode(goerr.Wrap(model.ErrRole, "restricted"))).Equal(http.StatusForbidden)
	gt.Number(t, errutil.StatusCode(errors.New("boom"))).Equal(http.StatusInternalServerError)
}

func TestHandleHTTPStateConflict(t *testing.T) {
	w := httptest.NewRecorder()
	err := goerr.Wrap(model.NewPromptConflict(types.GenAITypeIncidentSummary), "create prompt")
	errutil.HandleHTTP(context.Background(), w, err)

	gt.Number(t, w.Code).Equal(http.StatusBadRequest)
	var body errutil.ErrorBody
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &body)).Required()
	gt.Array(t, body.Detail).Length(1).Required()
	gt.Value(t, body.Detail[0].Loc).Equal("genai_type")
}

func TestHandleHTTPInternal(t *testing.T) {
	w := httptest.NewRecorder()
	errutil.HandleHTTP(context.Background(), w, errors.New("db down"))

	gt.Number(t, w.Code).Equal(http.StatusInternalServerError)
	var body errutil.ErrorBody
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &body)).Required()
	gt.String(t, body.CorrelationID).NotEqual("")
	gt.Value(t, body.Message).Equal("internal server error")
}

func TestHandleReturnsGUID(t *testing.T) {
	gt.Value(t, errutil.Handle(context.Background(), nil, "noop")).Equal("")
	gt.String(t, errutil.Handle(context.Background(), errors.New("x"), "failed")).NotEqual("")
}

func TestErrorContext(t *testing.T) {
	ge := goerr.New("provider failed", goerr.V("incident", "default-security-0001"), goerr.V("attempt", 3))
	c := errutil.ErrorContext("background task failed", ge)
	gt.Value(t, c["message"]).Equal(any("background task failed"))
	gt.Value(t, c["incident"]).Equal(any("default-security-0001"))
	gt.Value(t, c["attempt"]).Equal(any(3))

	t.Run("plain errors only carry the message", func(t *testing.T) {
		c := errutil.ErrorContext("HTTP error", nil)
		gt.Number(t, len(c)).Equal(1)
	})
}
