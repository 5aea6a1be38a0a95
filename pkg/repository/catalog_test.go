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

func runCatalogRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("incident types keep their typed fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.IncidentType().Create(ctx, testOrg, &model.IncidentType{
			CatalogBase:        model.CatalogBase{ProjectID: 1, Name: "Security", Default: true, Enabled: true},
			Visibility:         types.VisibilityRestricted,
			DocumentTemplateID: "tmpl-1",
			TicketLabels:       []string{"sec"},
		})
		gt.NoError(t, err).Required()
		gt.Value(t, created.ID).NotEqual(int64(0))

		got, err := repo.IncidentType().Get(ctx, testOrg, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Name).Equal("Security")
		gt.Value(t, got.Visibility).Equal(types.VisibilityRestricted)
		gt.Value(t, got.DocumentTemplateID).Equal("tmpl-1")
		gt.Array(t, got.TicketLabels).Length(1)
		gt.Bool(t, got.IsDefault()).True()
	})

	t.Run("List is scoped by project and ordered by id", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for _, name := range []string{"Low", "Medium", "High"} {
			_, err := repo.IncidentPriority().Create(ctx, testOrg, &model.IncidentPriority{
				CatalogBase: model.CatalogBase{ProjectID: 1, Name: name, Enabled: true},
			})
			gt.NoError(t, err).Required()
		}
		_, err := repo.IncidentPriority().Create(ctx, testOrg, &model.IncidentPriority{
			CatalogBase: model.CatalogBase{ProjectID: 2, Name: "Other", Enabled: true},
		})
		gt.NoError(t, err).Required()

		items, err := repo.IncidentPriority().List(ctx, testOrg, 1)
		gt.NoError(t, err).Required()
		gt.Array(t, items).Length(3).Required()
		gt.Value(t, items[0].Name).Equal("Low")
		gt.Value(t, items[2].Name).Equal("High")
	})

	t.Run("kinds do not share rows", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.CaseType().Create(ctx, testOrg, &model.CaseType{
			CatalogBase:        model.CatalogBase{ProjectID: 1, Name: "Triage", Enabled: true},
			ConversationTarget: "C-triage",
		})
		gt.NoError(t, err).Required()

		severities, err := repo.CaseSeverity().List(ctx, testOrg, 1)
		gt.NoError(t, err).Required()
		gt.Array(t, severities).Length(0)
	})

	t.Run("Update and Delete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Signal().Create(ctx, testOrg, &model.Signal{
			CatalogBase: model.CatalogBase{ProjectID: 1, Name: "impossible-travel", Enabled: true},
			CreateCase:  true,
			FilterIDs:   []int64{1},
		})
		gt.NoError(t, err).Required()

		created.Enabled = false
		created.EntityTypeIDs = []int64{4, 5}
		_, err = repo.Signal().Update(ctx, testOrg, created)
		gt.NoError(t, err).Required()

		got, err := repo.Signal().Get(ctx, testOrg, created.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.IsEnabled()).False()
		gt.Array(t, got.EntityTypeIDs).Length(2)

		gt.NoError(t, repo.Signal().Delete(ctx, testOrg, created.ID)).Required()
		_, err = repo.Signal().Get(ctx, testOrg, created.ID)
		gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
	})

	t.Run("plugin instance configuration survives", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.PluginInstance().Create(ctx, testOrg, &model.PluginInstance{
			CatalogBase:   model.CatalogBase{ProjectID: 1, Name: "slack-conversation", Enabled: true},
			Type:          types.ProviderTypeChat,
			Plugin:        "slack-conversation",
			Configuration: map[string]any{"app_user_slug": "dispatch"},
		})
		gt.NoError(t, err).Required()

		got, err := repo.PluginInstance().Get(ctx, testOrg, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Type).Equal(types.ProviderTypeChat)
		gt.Value(t, got.Configuration["app_user_slug"]).Equal("dispatch")
	})
}

func TestCatalogRepository_Memory(t *testing.T) {
	runCatalogRepositoryTest(t, newMemoryRepository)
}

func TestCatalogRepository_Postgres(t *testing.T) {
	runCatalogRepositoryTest(t, newPostgresRepository)
}

func TestCatalogRepository_Firestore(t *testing.T) {
	runCatalogRepositoryTest(t, newFirestoreRepository)
}
