package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

func runStoreTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("NextSequence counts per key from one", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for want := int64(1); want <= 3; want++ {
			got, err := repo.NextSequence(ctx, testOrg, "incident:1:security")
			gt.NoError(t, err).Required()
			gt.Value(t, got).Equal(want)
		}
		other, err := repo.NextSequence(ctx, testOrg, "case:1")
		gt.NoError(t, err).Required()
		gt.Value(t, other).Equal(int64(1))
	})

	t.Run("NextSequence is unique under concurrency", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const n = 20
		var (
			mu   sync.Mutex
			seen = map[int64]bool{}
			wg   sync.WaitGroup
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := repo.NextSequence(ctx, testOrg, "concurrent")
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}()
		}
		wg.Wait()
		gt.Value(t, len(seen)).Equal(n)
	})

	t.Run("Lock excludes a second holder until released", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		release, err := repo.Lock(ctx, testOrg, "incident:1")
		gt.NoError(t, err).Required()

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err = repo.Lock(waitCtx, testOrg, "incident:1")
		gt.Value(t, err).NotNil()

		release()
		again, err := repo.Lock(ctx, testOrg, "incident:1")
		gt.NoError(t, err).Required()
		again()
	})

	t.Run("WithTx passes writes through", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		err := repo.WithTx(ctx, testOrg, func(ctx context.Context) error {
			_, err := repo.Incident().Create(ctx, testOrg, &model.Incident{ProjectID: 1, Name: "tx-1"})
			return err
		})
		gt.NoError(t, err).Required()

		got, err := repo.Incident().GetByName(ctx, testOrg, "tx-1")
		gt.NoError(t, err).Required()
		gt.Value(t, got.Name).Equal("tx-1")
	})

	t.Run("organizations and users live in the core store", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		org, err := repo.Organization().Create(ctx, &model.Organization{Slug: testOrg, Name: "Acme", Default: true})
		gt.NoError(t, err).Required()
		gt.Value(t, org.ID).NotEqual(int64(0))

		got, err := repo.Organization().Get(ctx, testOrg)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.Default).True()

		_, err = repo.User().Upsert(ctx, &model.User{Email: "admin@example.com", Role: types.UserRoleOwner, Organizations: []string{testOrg}})
		gt.NoError(t, err).Required()
		merged, err := repo.User().Upsert(ctx, &model.User{Email: "admin@example.com", Organizations: []string{"beta"}})
		gt.NoError(t, err).Required()
		gt.Bool(t, merged.BelongsTo(testOrg)).True()
		gt.Bool(t, merged.BelongsTo("beta")).True()
		gt.Value(t, merged.Role).Equal(types.UserRoleOwner)

		_, err = repo.User().GetByEmail(ctx, "missing@example.com")
		gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
	})

	t.Run("projects and individuals", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		project, err := repo.Project().Create(ctx, testOrg, &model.Project{Name: "default", Default: true})
		gt.NoError(t, err).Required()

		byName, err := repo.Project().GetByName(ctx, testOrg, "default")
		gt.NoError(t, err).Required()
		gt.Value(t, byName.ID).Equal(project.ID)

		first, err := repo.Individual().Upsert(ctx, testOrg, &model.Individual{ProjectID: project.ID, Email: "bob@example.com", Name: "Bob"})
		gt.NoError(t, err).Required()
		second, err := repo.Individual().Upsert(ctx, testOrg, &model.Individual{ProjectID: project.ID, Email: "bob@example.com", Title: "SRE"})
		gt.NoError(t, err).Required()
		gt.Value(t, second.ID).Equal(first.ID)
		gt.Value(t, second.Name).Equal("Bob")
		gt.Value(t, second.Title).Equal("SRE")

		none, err := repo.Individual().GetByEmail(ctx, testOrg, project.ID, "nobody@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, none).Nil()
	})

	t.Run("signal instances and entities", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		e1, err := repo.Entity().Upsert(ctx, testOrg, &model.Entity{ProjectID: 1, EntityTypeID: 2, Value: "10.0.0.1"})
		gt.NoError(t, err).Required()
		e2, err := repo.Entity().Upsert(ctx, testOrg, &model.Entity{ProjectID: 1, EntityTypeID: 2, Value: "10.0.0.1"})
		gt.NoError(t, err).Required()
		gt.Value(t, e2.ID).Equal(e1.ID)

		base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
		for i, id := range []string{"11111111-1111-1111-1111-111111111111", "22222222-2222-2222-2222-222222222222"} {
			_, err := repo.SignalInstance().Create(ctx, testOrg, &model.SignalInstance{
				ID:          id,
				ProjectID:   1,
				SignalID:    7,
				Raw:         []byte(`{"ip":"10.0.0.1"}`),
				Fingerprint: "fp",
				EntityIDs:   []int64{e1.ID},
				CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			})
			gt.NoError(t, err).Required()
		}

		list, err := repo.SignalInstance().List(ctx, testOrg, model.SignalInstanceQuery{SignalID: 7, Fingerprint: "fp"})
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(2).Required()
		gt.Value(t, list[0].ID).Equal("22222222-2222-2222-2222-222222222222")

		since := base.Add(30 * time.Second)
		recent, err := repo.SignalInstance().List(ctx, testOrg, model.SignalInstanceQuery{SignalID: 7, Since: &since})
		gt.NoError(t, err).Required()
		gt.Array(t, recent).Length(1)

		inst := list[1]
		inst.FilterAction = types.FilterActionSnooze
		_, err = repo.SignalInstance().Update(ctx, testOrg, inst)
		gt.NoError(t, err).Required()
		got, err := repo.SignalInstance().Get(ctx, testOrg, inst.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.FilterAction).Equal(types.FilterActionSnooze)
	})

	t.Run("reminders due", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		now := time.Now().UTC()

		due, err := repo.Reminder().Create(ctx, testOrg, &model.Reminder{Subject: model.IncidentRef(1), Kind: types.ReminderKindTacticalReport, DueAt: now.Add(-time.Minute)})
		gt.NoError(t, err).Required()
		_, err = repo.Reminder().Create(ctx, testOrg, &model.Reminder{Subject: model.IncidentRef(1), Kind: types.ReminderKindExecutiveReport, DueAt: now.Add(time.Hour)})
		gt.NoError(t, err).Required()

		list, err := repo.Reminder().ListDue(ctx, testOrg, now)
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(1).Required()
		gt.Value(t, list[0].ID).Equal(due.ID)

		sent := now
		due.SentAt = &sent
		_, err = repo.Reminder().Update(ctx, testOrg, due)
		gt.NoError(t, err).Required()
		list, err = repo.Reminder().ListDue(ctx, testOrg, now)
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(0)
	})

	t.Run("tasks and reports", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		subject := model.IncidentRef(1)

		task, err := repo.Task().Create(ctx, testOrg, &model.Task{Subject: subject, Description: "rotate keys", Status: types.TaskStatusOpen, ResourceID: "T-1"})
		gt.NoError(t, err).Required()
		byRes, err := repo.Task().GetByResourceID(ctx, testOrg, "T-1")
		gt.NoError(t, err).Required()
		gt.Value(t, byRes.ID).Equal(task.ID)

		_, err = repo.Report().Create(ctx, testOrg, &model.Report{Subject: subject, Type: types.ReportTypeTactical, Details: map[string]any{"conditions": "one"}})
		gt.NoError(t, err).Required()
		_, err = repo.Report().Create(ctx, testOrg, &model.Report{Subject: subject, Type: types.ReportTypeTactical, Details: map[string]any{"conditions": "two"}})
		gt.NoError(t, err).Required()

		latest, err := repo.Report().Latest(ctx, testOrg, subject, types.ReportTypeTactical)
		gt.NoError(t, err).Required()
		gt.Value(t, latest.Details["conditions"]).Equal("two")

		none, err := repo.Report().Latest(ctx, testOrg, subject, types.ReportTypeExecutive)
		gt.NoError(t, err).Required()
		gt.Value(t, none).Nil()
	})
}

func TestStore_Memory(t *testing.T) {
	runStoreTest(t, newMemoryRepository)
}

func TestStore_Postgres(t *testing.T) {
	runStoreTest(t, newPostgresRepository)
}

func TestStore_Firestore(t *testing.T) {
	runStoreTest(t, newFirestoreRepository)
}
