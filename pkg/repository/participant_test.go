package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

func runParticipantRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create stores roles and GetByEmail finds participant", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		subject := model.IncidentRef(1)
		now := time.Now().UTC().Truncate(time.Second)

		p := &model.Participant{Subject: subject, Email: "alice@example.com", AddedReason: "reporter"}
		p.AddRole(types.ParticipantRoleReporter, now)
		p.AddRole(types.ParticipantRoleIncidentCommander, now)
		created, err := repo.Participant().Create(ctx, testOrg, p)
		gt.NoError(t, err).Required()
		gt.Value(t, created.ID).NotEqual(int64(0))

		got, err := repo.Participant().GetByEmail(ctx, testOrg, subject, "alice@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, got).NotNil()
		gt.Array(t, got.Roles).Length(2)
		gt.Bool(t, got.HasActiveRole(types.ParticipantRoleIncidentCommander)).True()
	})

	t.Run("GetByEmail returns nil when absent", func(t *testing.T) {
		repo := newRepo(t)
		got, err := repo.Participant().GetByEmail(context.Background(), testOrg, model.IncidentRef(1), "nobody@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, got).Nil()
	})

	t.Run("Update replaces roles", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		subject := model.CaseRef(3)
		now := time.Now().UTC().Truncate(time.Second)

		p := &model.Participant{Subject: subject, Email: "bob@example.com"}
		p.AddRole(types.ParticipantRoleObserver, now)
		created, err := repo.Participant().Create(ctx, testOrg, p)
		gt.NoError(t, err).Required()

		created.Renounce(types.ParticipantRoleObserver, now.Add(time.Minute))
		created.AddRole(types.ParticipantRoleParticipant, now.Add(time.Minute))
		_, err = repo.Participant().Update(ctx, testOrg, created)
		gt.NoError(t, err).Required()

		got, err := repo.Participant().Get(ctx, testOrg, created.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, got.Roles).Length(2)
		gt.Bool(t, got.HasActiveRole(types.ParticipantRoleObserver)).False()
		gt.Bool(t, got.HasActiveRole(types.ParticipantRoleParticipant)).True()
	})

	t.Run("List and DeleteBySubject are scoped to the subject", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		now := time.Now().UTC()

		for i, s := range []model.SubjectRef{model.IncidentRef(1), model.IncidentRef(1), model.IncidentRef(2)} {
			p := &model.Participant{Subject: s, Email: fmt.Sprintf("user%d@example.com", i)}
			p.AddRole(types.ParticipantRoleParticipant, now)
			_, err := repo.Participant().Create(ctx, testOrg, p)
			gt.NoError(t, err).Required()
		}

		list, err := repo.Participant().List(ctx, testOrg, model.IncidentRef(1))
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(2)

		gt.NoError(t, repo.Participant().DeleteBySubject(ctx, testOrg, model.IncidentRef(1))).Required()
		list, err = repo.Participant().List(ctx, testOrg, model.IncidentRef(1))
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(0)

		list, err = repo.Participant().List(ctx, testOrg, model.IncidentRef(2))
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(1)
	})
}

func TestParticipantRepository_Memory(t *testing.T) {
	runParticipantRepositoryTest(t, newMemoryRepository)
}

func TestParticipantRepository_Postgres(t *testing.T) {
	runParticipantRepositoryTest(t, newPostgresRepository)
}

func TestParticipantRepository_Firestore(t *testing.T) {
	runParticipantRepositoryTest(t, newFirestoreRepository)
}
