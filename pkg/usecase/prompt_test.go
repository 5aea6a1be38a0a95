package usecase_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

func TestCreatePromptConflict(t *testing.T) {
	f := newFixture(t)

	created, err := f.uc.CreatePrompt(f.ctx, testOrg, &model.Prompt{
		ProjectID: f.project.ID,
		GenAIType: types.GenAITypeIncidentSummary,
		Prompt:    "Summarize the incident for executives.",
		Enabled:   true,
	})
	gt.NoError(t, err).Required()
	gt.Bool(t, created.ID != 0).True()

	_, err = f.uc.CreatePrompt(f.ctx, testOrg, &model.Prompt{
		ProjectID: f.project.ID,
		GenAIType: types.GenAITypeIncidentSummary,
		Prompt:    "Summarize the incident in one line.",
		Enabled:   true,
	})
	gt.Error(t, err).Is(model.ErrStateConflict)
	var conflict *model.StateConflictError
	gt.Bool(t, errors.As(err, &conflict)).True()
	gt.Value(t, conflict.Loc).Equal("genai_type")

	prompts, err := f.uc.ListPrompts(f.ctx, testOrg, f.project.ID)
	gt.NoError(t, err).Required()
	gt.Array(t, prompts).Length(1)

	t.Run("disabled prompt of the same type is accepted", func(t *testing.T) {
		_, err := f.uc.CreatePrompt(f.ctx, testOrg, &model.Prompt{
			ProjectID: f.project.ID,
			GenAIType: types.GenAITypeIncidentSummary,
			Prompt:    "Draft for later.",
		})
		gt.NoError(t, err).Required()
	})

	t.Run("empty prompt is rejected", func(t *testing.T) {
		_, err := f.uc.CreatePrompt(f.ctx, testOrg, &model.Prompt{
			ProjectID: f.project.ID,
			GenAIType: types.GenAITypeTagRecommendation,
			Enabled:   true,
		})
		var verr *model.ValidationError
		gt.Bool(t, errors.As(err, &verr)).True()
	})
}
