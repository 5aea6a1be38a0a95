package repository_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

func runResourceRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Put replaces resource of the same type", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		subject := model.IncidentRef(1)

		first, err := repo.Resource().Put(ctx, testOrg, &model.Resource{
			Subject: subject, Type: types.ResourceTypeTicket, ResourceID: "SEC-1", Weblink: "https://tickets/SEC-1",
		})
		gt.NoError(t, err).Required()

		second, err := repo.Resource().Put(ctx, testOrg, &model.Resource{
			Subject: subject, Type: types.ResourceTypeTicket, ResourceID: "SEC-2",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, second.ID).Equal(first.ID)

		got, err := repo.Resource().Get(ctx, testOrg, subject, types.ResourceTypeTicket)
		gt.NoError(t, err).Required()
		gt.Value(t, got.ResourceID).Equal("SEC-2")

		all, err := repo.Resource().List(ctx, testOrg, subject)
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(1)
	})

	t.Run("Get returns nil when subject lacks the resource", func(t *testing.T) {
		repo := newRepo(t)
		got, err := repo.Resource().Get(context.Background(), testOrg, model.CaseRef(1), types.ResourceTypeDocument)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()
	})

	t.Run("FindConversation matches channel and thread", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Resource().Put(ctx, testOrg, &model.Resource{
			Subject: model.CaseRef(1), Type: types.ResourceTypeConversation, ChannelID: "C-triage", ThreadID: "1700000000.000100",
		})
		gt.NoError(t, err).Required()
		_, err = repo.Resource().Put(ctx, testOrg, &model.Resource{
			Subject: model.CaseRef(2), Type: types.ResourceTypeConversation, ChannelID: "C-triage", ThreadID: "1700000000.000200",
		})
		gt.NoError(t, err).Required()

		got, err := repo.Resource().FindConversation(ctx, testOrg, "C-triage", "1700000000.000200")
		gt.NoError(t, err).Required()
		gt.Value(t, got).NotNil()
		gt.Value(t, got.Subject).Equal(model.CaseRef(2))

		none, err := repo.Resource().FindConversation(ctx, testOrg, "C-triage", "")
		gt.NoError(t, err).Required()
		gt.Value(t, none).Nil()
	})

	t.Run("FindConversation prefers the incident of an escalated case", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Resource().Put(ctx, testOrg, &model.Resource{
			Subject: model.CaseRef(1), Type: types.ResourceTypeConversation, ChannelID: "C-abc",
		})
		gt.NoError(t, err).Required()
		_, err = repo.Resource().Put(ctx, testOrg, &model.Resource{
			Subject: model.IncidentRef(7), Type: types.ResourceTypeConversation, ChannelID: "C-abc",
		})
		gt.NoError(t, err).Required()

		got, err := repo.Resource().FindConversation(ctx, testOrg, "C-abc", "")
		gt.NoError(t, err).Required()
		gt.Value(t, got.Subject).Equal(model.IncidentRef(7))
	})

	t.Run("Delete removes resource", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		subject := model.IncidentRef(3)

		_, err := repo.Resource().Put(ctx, testOrg, &model.Resource{Subject: subject, Type: types.ResourceTypeStorage, ResourceID: "folder"})
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Resource().Delete(ctx, testOrg, subject, types.ResourceTypeStorage)).Required()

		got, err := repo.Resource().Get(ctx, testOrg, subject, types.ResourceTypeStorage)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()
	})
}

func TestResourceRepository_Memory(t *testing.T) {
	runResourceRepositoryTest(t, newMemoryRepository)
}

func TestResourceRepository_Postgres(t *testing.T) {
	runResourceRepositoryTest(t, newPostgresRepository)
}

func TestResourceRepository_Firestore(t *testing.T) {
	runResourceRepositoryTest(t, newFirestoreRepository)
}
