package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

func runPromptRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	newPrompt := func(enabled bool) *model.Prompt {
		return &model.Prompt{
			ProjectID: 1,
			GenAIType: types.GenAITypeIncidentSummary,
			Prompt:    "Summarize the incident",
			Enabled:   enabled,
		}
	}

	t.Run("second enabled prompt of a type conflicts and writes nothing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Prompt().Create(ctx, testOrg, newPrompt(true))
		gt.NoError(t, err).Required()

		_, err = repo.Prompt().Create(ctx, testOrg, newPrompt(true))
		gt.Value(t, err).NotNil().Required()
		gt.Bool(t, errors.Is(err, model.ErrStateConflict)).True()

		var conflict *model.StateConflictError
		gt.Bool(t, errors.As(err, &conflict)).True()
		gt.Value(t, conflict.Loc).Equal("genai_type")

		prompts, err := repo.Prompt().List(ctx, testOrg, 1)
		gt.NoError(t, err).Required()
		gt.Array(t, prompts).Length(1)
	})

	t.Run("disabled prompts do not conflict", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Prompt().Create(ctx, testOrg, newPrompt(true))
		gt.NoError(t, err).Required()
		disabled, err := repo.Prompt().Create(ctx, testOrg, newPrompt(false))
		gt.NoError(t, err).Required()

		disabled.Enabled = true
		_, err = repo.Prompt().Update(ctx, testOrg, disabled)
		gt.Bool(t, errors.Is(err, model.ErrStateConflict)).True()

		got, err := repo.Prompt().Get(ctx, testOrg, disabled.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.Enabled).False()
	})

	t.Run("other types and projects do not conflict", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Prompt().Create(ctx, testOrg, newPrompt(true))
		gt.NoError(t, err).Required()

		other := newPrompt(true)
		other.GenAIType = types.GenAITypeSignalAnalysis
		_, err = repo.Prompt().Create(ctx, testOrg, other)
		gt.NoError(t, err).Required()

		otherProject := newPrompt(true)
		otherProject.ProjectID = 2
		_, err = repo.Prompt().Create(ctx, testOrg, otherProject)
		gt.NoError(t, err).Required()
	})

	t.Run("GetEnabled returns the enabled prompt or nil", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		none, err := repo.Prompt().GetEnabled(ctx, testOrg, 1, types.GenAITypeIncidentSummary)
		gt.NoError(t, err).Required()
		gt.Value(t, none).Nil()

		created, err := repo.Prompt().Create(ctx, testOrg, newPrompt(true))
		gt.NoError(t, err).Required()

		got, err := repo.Prompt().GetEnabled(ctx, testOrg, 1, types.GenAITypeIncidentSummary)
		gt.NoError(t, err).Required()
		gt.Value(t, got.ID).Equal(created.ID)

		gt.NoError(t, repo.Prompt().Delete(ctx, testOrg, created.ID)).Required()
		none, err = repo.Prompt().GetEnabled(ctx, testOrg, 1, types.GenAITypeIncidentSummary)
		gt.NoError(t, err).Required()
		gt.Value(t, none).Nil()
	})
}

func TestPromptRepository_Memory(t *testing.T) {
	runPromptRepositoryTest(t, newMemoryRepository)
}

func TestPromptRepository_Postgres(t *testing.T) {
	runPromptRepositoryTest(t, newPostgresRepository)
}

func TestPromptRepository_Firestore(t *testing.T) {
	runPromptRepositoryTest(t, newFirestoreRepository)
}
