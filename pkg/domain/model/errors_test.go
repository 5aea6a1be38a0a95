package model_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

func errorsAs(err error, target any) bool {
	return errors.As(err, target)
}

func TestProviderErrorKind(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &model.ProviderError{
		Kind:       model.ProviderErrorRateLimited,
		Provider:   "slack",
		RetryAfter: time.Second,
		Err:        base,
	})
	gt.Value(t, model.ProviderErrorKindOf(err)).Equal(model.ProviderErrorRateLimited)
	gt.Bool(t, model.IsTransient(err)).True()
	gt.Bool(t, errors.Is(err, base)).True()

	gt.Value(t, model.ProviderErrorKindOf(base)).Equal(model.ProviderErrorFatal)
	gt.Bool(t, model.IsTransient(model.NewProviderError("x", model.ProviderErrorAuth, base))).False()
}

func TestPromptConflict(t *testing.T) {
	err := model.NewPromptConflict(types.GenAITypeIncidentSummary)
	gt.Bool(t, errors.Is(err, model.ErrStateConflict)).True()

	var conflict *model.StateConflictError
	gt.Bool(t, errors.As(err, &conflict)).True()
	gt.Value(t, conflict.Loc).Equal("genai_type")
}

func TestValidationError(t *testing.T) {
	verr := model.NewValidationError("title", "required")
	verr.Add("project", "unknown")
	gt.Bool(t, verr.HasErrors()).True()
	gt.String(t, verr.Error()).Contains("title: required")
}
