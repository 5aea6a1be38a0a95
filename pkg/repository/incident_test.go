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

func runIncidentRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create assigns id and timestamps", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Incident().Create(ctx, testOrg, &model.Incident{
			ProjectID:  1,
			Name:       "default-security-0001",
			Title:      "Leaked credential",
			Status:     types.IncidentStatusActive,
			Visibility: types.VisibilityOpen,
			TagIDs:     []int64{3, 4},
		})
		gt.NoError(t, err).Required()
		gt.Value(t, created.ID).NotEqual(int64(0))
		gt.Bool(t, created.CreatedAt.IsZero()).False()
		gt.Bool(t, created.ReportedAt.IsZero()).False()
		gt.Array(t, created.TagIDs).Length(2)

		second, err := repo.Incident().Create(ctx, testOrg, &model.Incident{ProjectID: 1, Name: "default-security-0002"})
		gt.NoError(t, err).Required()
		gt.Value(t, second.ID).NotEqual(created.ID)
	})

	t.Run("Get and GetByName", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Incident().Create(ctx, testOrg, &model.Incident{
			ProjectID: 1,
			Name:      "default-security-0007",
			Title:     "Phishing",
			Status:    types.IncidentStatusActive,
		})
		gt.NoError(t, err).Required()

		got, err := repo.Incident().Get(ctx, testOrg, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Title).Equal("Phishing")

		byName, err := repo.Incident().GetByName(ctx, testOrg, "default-security-0007")
		gt.NoError(t, err).Required()
		gt.Value(t, byName.ID).Equal(created.ID)

		_, err = repo.Incident().Get(ctx, testOrg, created.ID+1000)
		gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
	})

	t.Run("Update persists lifecycle timestamps", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Incident().Create(ctx, testOrg, &model.Incident{ProjectID: 1, Name: "inc-1", Status: types.IncidentStatusActive})
		gt.NoError(t, err).Required()

		stable := time.Now().UTC().Truncate(time.Second)
		created.Status = types.IncidentStatusStable
		created.StableAt = &stable
		created.Cost = 1234.5
		_, err = repo.Incident().Update(ctx, testOrg, created)
		gt.NoError(t, err).Required()

		got, err := repo.Incident().Get(ctx, testOrg, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Status).Equal(types.IncidentStatusStable)
		gt.Value(t, got.StableAt).NotNil()
		gt.Bool(t, got.StableAt.Equal(stable)).True()
		gt.Value(t, got.Cost).Equal(1234.5)
	})

	t.Run("Update returns not found for unknown incident", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Incident().Update(context.Background(), testOrg, &model.Incident{ID: 999, Name: "x"})
		gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
	})

	t.Run("List filters by status and orders by reported_at desc", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
		for i, st := range []types.IncidentStatus{types.IncidentStatusActive, types.IncidentStatusClosed, types.IncidentStatusActive} {
			_, err := repo.Incident().Create(ctx, testOrg, &model.Incident{
				ProjectID:  1,
				Name:       "inc-" + string(rune('a'+i)),
				Status:     st,
				ReportedAt: base.Add(time.Duration(i) * time.Minute),
			})
			gt.NoError(t, err).Required()
		}

		active, err := repo.Incident().List(ctx, testOrg, model.IncidentQuery{
			ProjectID: 1,
			Statuses:  []types.IncidentStatus{types.IncidentStatusActive},
		})
		gt.NoError(t, err).Required()
		gt.Array(t, active).Length(2).Required()
		gt.Value(t, active[0].Name).Equal("inc-c")
		gt.Value(t, active[1].Name).Equal("inc-a")

		other, err := repo.Incident().List(ctx, testOrg, model.IncidentQuery{ProjectID: 2})
		gt.NoError(t, err).Required()
		gt.Array(t, other).Length(0)
	})

	t.Run("List ranks name over title over description", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Incident().Create(ctx, testOrg, &model.Incident{ProjectID: 1, Name: "inc-desc", Title: "other", Description: "ransomware in finance"})
		gt.NoError(t, err).Required()
		_, err = repo.Incident().Create(ctx, testOrg, &model.Incident{ProjectID: 1, Name: "ransomware-0001", Title: "other"})
		gt.NoError(t, err).Required()
		_, err = repo.Incident().Create(ctx, testOrg, &model.Incident{ProjectID: 1, Name: "inc-title", Title: "Ransomware outbreak"})
		gt.NoError(t, err).Required()
		_, err = repo.Incident().Create(ctx, testOrg, &model.Incident{ProjectID: 1, Name: "unrelated", Title: "phishing"})
		gt.NoError(t, err).Required()

		found, err := repo.Incident().List(ctx, testOrg, model.IncidentQuery{ProjectID: 1, Text: "ransomware"})
		gt.NoError(t, err).Required()
		gt.Array(t, found).Length(3).Required()
		gt.Value(t, found[0].Name).Equal("ransomware-0001")
		gt.Value(t, found[1].Name).Equal("inc-title")
		gt.Value(t, found[2].Name).Equal("inc-desc")
	})

	t.Run("Delete removes incident", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Incident().Create(ctx, testOrg, &model.Incident{ProjectID: 1, Name: "gone"})
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Incident().Delete(ctx, testOrg, created.ID)).Required()

		_, err = repo.Incident().Get(ctx, testOrg, created.ID)
		gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
	})

	t.Run("Organizations are isolated", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Incident().Create(ctx, testOrg, &model.Incident{ProjectID: 1, Name: "mine"})
		gt.NoError(t, err).Required()

		_, err = repo.Incident().GetByName(ctx, "other_org", "mine")
		gt.Value(t, err).NotNil()
	})
}

func runCaseRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create and Get round trip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Case().Create(ctx, testOrg, &model.Case{
			ProjectID:        1,
			Name:             "case-0001",
			Title:            "Suspicious login",
			Status:           types.CaseStatusNew,
			Visibility:       types.VisibilityRestricted,
			DedicatedChannel: true,
			SignalID:         5,
		})
		gt.NoError(t, err).Required()

		got, err := repo.Case().Get(ctx, testOrg, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Status).Equal(types.CaseStatusNew)
		gt.Value(t, got.Visibility).Equal(types.VisibilityRestricted)
		gt.Bool(t, got.DedicatedChannel).True()
		gt.Value(t, got.SignalID).Equal(int64(5))
	})

	t.Run("Update records escalation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Case().Create(ctx, testOrg, &model.Case{ProjectID: 1, Name: "case-0002", Status: types.CaseStatusTriage})
		gt.NoError(t, err).Required()

		now := time.Now().UTC().Truncate(time.Second)
		created.Status = types.CaseStatusEscalated
		created.EscalatedAt = &now
		created.IncidentIDs = []int64{42}
		_, err = repo.Case().Update(ctx, testOrg, created)
		gt.NoError(t, err).Required()

		got, err := repo.Case().GetByName(ctx, testOrg, "case-0002")
		gt.NoError(t, err).Required()
		gt.Value(t, got.Status).Equal(types.CaseStatusEscalated)
		gt.Bool(t, got.HasIncident(42)).True()
		gt.Value(t, got.EscalatedAt).NotNil()
	})

	t.Run("List filters by signal", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Case().Create(ctx, testOrg, &model.Case{ProjectID: 1, Name: "c1", SignalID: 1, Status: types.CaseStatusNew})
		gt.NoError(t, err).Required()
		_, err = repo.Case().Create(ctx, testOrg, &model.Case{ProjectID: 1, Name: "c2", SignalID: 2, Status: types.CaseStatusNew})
		gt.NoError(t, err).Required()

		cases, err := repo.Case().List(ctx, testOrg, model.CaseQuery{ProjectID: 1, SignalID: 2})
		gt.NoError(t, err).Required()
		gt.Array(t, cases).Length(1).Required()
		gt.Value(t, cases[0].Name).Equal("c2")
	})

	t.Run("Delete removes case", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Case().Create(ctx, testOrg, &model.Case{ProjectID: 1, Name: "gone"})
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Case().Delete(ctx, testOrg, created.ID)).Required()
		gt.Value(t, repo.Case().Delete(ctx, testOrg, created.ID)).NotNil()
	})
}

func TestIncidentRepository_Memory(t *testing.T) {
	runIncidentRepositoryTest(t, newMemoryRepository)
}

func TestIncidentRepository_Postgres(t *testing.T) {
	runIncidentRepositoryTest(t, newPostgresRepository)
}

func TestIncidentRepository_Firestore(t *testing.T) {
	runIncidentRepositoryTest(t, newFirestoreRepository)
}

func TestCaseRepository_Memory(t *testing.T) {
	runCaseRepositoryTest(t, newMemoryRepository)
}

func TestCaseRepository_Postgres(t *testing.T) {
	runCaseRepositoryTest(t, newPostgresRepository)
}

func TestCaseRepository_Firestore(t *testing.T) {
	runCaseRepositoryTest(t, newFirestoreRepository)
}
