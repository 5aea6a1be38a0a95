package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

func runEventRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("List orders by started_at", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		subject := model.IncidentRef(1)
		base := time.Now().UTC().Truncate(time.Second)

		for i, d := range []time.Duration{2 * time.Minute, 0, time.Minute} {
			_, err := repo.Event().Create(ctx, testOrg, &model.Event{
				Subject:     subject,
				StartedAt:   base.Add(d),
				Source:      "Dispatch Core App",
				Description: []string{"third", "first", "second"}[i],
				Type:        types.EventTypeOther,
			})
			gt.NoError(t, err).Required()
		}
		_, err := repo.Event().Create(ctx, testOrg, &model.Event{Subject: model.IncidentRef(2), Description: "elsewhere"})
		gt.NoError(t, err).Required()

		events, err := repo.Event().List(ctx, testOrg, subject)
		gt.NoError(t, err).Required()
		gt.Array(t, events).Length(3).Required()
		gt.Value(t, events[0].Description).Equal("first")
		gt.Value(t, events[1].Description).Equal("second")
		gt.Value(t, events[2].Description).Equal("third")
	})

	t.Run("Create assigns id and details survive", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Event().Create(ctx, testOrg, &model.Event{
			Subject:     model.CaseRef(9),
			Description: "summary",
			Details:     map[string]any{"kind": model.EventKindReadInSummary, "summary": "all good"},
			Type:        types.EventTypeOther,
		})
		gt.NoError(t, err).Required()
		gt.String(t, created.ID).NotEqual("")

		got, err := repo.Event().Get(ctx, testOrg, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Kind()).Equal(model.EventKindReadInSummary)
		gt.Value(t, got.Details["summary"]).Equal("all good")
	})

	t.Run("FindLatestByKind respects since", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		subject := model.IncidentRef(5)
		now := time.Now().UTC().Truncate(time.Second)

		_, err := repo.Event().Create(ctx, testOrg, &model.Event{
			Subject:   subject,
			StartedAt: now.Add(-2 * time.Hour),
			Details:   map[string]any{"kind": model.EventKindReadInSummary, "n": "old"},
		})
		gt.NoError(t, err).Required()
		_, err = repo.Event().Create(ctx, testOrg, &model.Event{
			Subject:   subject,
			StartedAt: now.Add(-5 * time.Minute),
			Details:   map[string]any{"kind": model.EventKindReadInSummary, "n": "fresh"},
		})
		gt.NoError(t, err).Required()

		got, err := repo.Event().FindLatestByKind(ctx, testOrg, subject, model.EventKindReadInSummary, now.Add(-15*time.Minute))
		gt.NoError(t, err).Required()
		gt.Value(t, got).NotNil()
		gt.Value(t, got.Details["n"]).Equal("fresh")

		none, err := repo.Event().FindLatestByKind(ctx, testOrg, subject, model.EventKindSignalAnalysis, now.Add(-24*time.Hour))
		gt.NoError(t, err).Required()
		gt.Value(t, none).Nil()
	})

	t.Run("Update and Delete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Event().Create(ctx, testOrg, &model.Event{Subject: model.IncidentRef(1), Description: "draft"})
		gt.NoError(t, err).Required()

		created.Description = "edited"
		created.Pinned = true
		_, err = repo.Event().Update(ctx, testOrg, created)
		gt.NoError(t, err).Required()

		got, err := repo.Event().Get(ctx, testOrg, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Description).Equal("edited")
		gt.Bool(t, got.Pinned).True()

		gt.NoError(t, repo.Event().Delete(ctx, testOrg, created.ID)).Required()
		_, err = repo.Event().Get(ctx, testOrg, created.ID)
		gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
	})
}

func TestEventRepository_Memory(t *testing.T) {
	runEventRepositoryTest(t, newMemoryRepository)
}

func TestEventRepository_Postgres(t *testing.T) {
	runEventRepositoryTest(t, newPostgresRepository)
}

func TestEventRepository_Firestore(t *testing.T) {
	runEventRepositoryTest(t, newFirestoreRepository)
}
