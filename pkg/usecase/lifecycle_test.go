package usecase_test

import (
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

func sameTime(t *testing.T, got *time.Time, want time.Time) {
	t.Helper()
	gt.Value(t, got).NotNil().Required()
	gt.Bool(t, got.Equal(want)).True()
}

func TestTransitionIncident(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "C-inc")
	f.participant(t, inc.Ref(), "alice@example.com", types.ParticipantRoleIncidentCommander, 0)
	f.participant(t, inc.Ref(), "carol@example.com", types.ParticipantRoleParticipant, 0)
	stableAt := f.now

	inc, err := f.uc.TransitionIncident(f.ctx, testOrg, inc.ID, types.IncidentStatusStable, "alice@example.com")
	gt.NoError(t, err).Required()
	gt.Value(t, inc.Status).Equal(types.IncidentStatusStable)
	sameTime(t, inc.StableAt, stableAt)
	gt.Value(t, inc.ClosedAt).Nil()

	f.now = f.now.Add(time.Hour)
	closedAt := f.now
	inc, err = f.uc.TransitionIncident(f.ctx, testOrg, inc.ID, types.IncidentStatusClosed, "alice@example.com")
	gt.NoError(t, err).Required()
	gt.Value(t, inc.Status).Equal(types.IncidentStatusClosed)
	sameTime(t, inc.StableAt, stableAt)
	sameTime(t, inc.ClosedAt, closedAt)

	t.Run("closing archives the channel and releases participants", func(t *testing.T) {
		gt.Bool(t, f.log.index("chat.archive:C-inc") >= 0).True()
		gt.Array(t, f.chat.directs).Has("alice@example.com")
		gt.Array(t, f.chat.directs).Has("carol@example.com")

		participants, err := f.repo.Participant().List(f.ctx, testOrg, inc.Ref())
		gt.NoError(t, err).Required()
		gt.Array(t, participants.Active()).Length(0)
	})

	t.Run("repeating the transition is a no-op", func(t *testing.T) {
		f.now = f.now.Add(time.Minute)
		again, err := f.uc.TransitionIncident(f.ctx, testOrg, inc.ID, types.IncidentStatusClosed, "alice@example.com")
		gt.NoError(t, err).Required()
		sameTime(t, again.ClosedAt, closedAt)
	})

	t.Run("reactivation revives participants and allows closing again", func(t *testing.T) {
		f.now = f.now.Add(time.Hour)
		reactivatedAt := f.now
		active, err := f.uc.TransitionIncident(f.ctx, testOrg, inc.ID, types.IncidentStatusActive, "alice@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, active.Status).Equal(types.IncidentStatusActive)
		sameTime(t, active.ReactivatedAt, reactivatedAt)
		sameTime(t, active.StableAt, stableAt)
		gt.Bool(t, f.log.index("chat.unarchive:C-inc") >= 0).True()

		participants, err := f.repo.Participant().List(f.ctx, testOrg, inc.Ref())
		gt.NoError(t, err).Required()
		commanders := participants.WithActiveRole(types.ParticipantRoleIncidentCommander)
		gt.Array(t, commanders).Length(1).Required()
		gt.Value(t, commanders[0].Email).Equal("alice@example.com")

		f.now = f.now.Add(time.Hour)
		closed, err := f.uc.TransitionIncident(f.ctx, testOrg, inc.ID, types.IncidentStatusClosed, "alice@example.com")
		gt.NoError(t, err).Required()
		sameTime(t, closed.ClosedAt, f.now)
		sameTime(t, closed.StableAt, stableAt)
	})
}

func TestTransitionIncidentUnlistedPair(t *testing.T) {
	f := newFixture(t)
	inc, err := f.repo.Incident().Create(f.ctx, testOrg, &model.Incident{
		ProjectID:  f.project.ID,
		Name:       "default-security-0001",
		Title:      "Leaked credentials",
		Status:     types.IncidentStatusStable,
		TypeID:     f.security.ID,
		ReportedAt: f.now,
	})
	gt.NoError(t, err).Required()

	got, err := f.uc.TransitionIncident(f.ctx, testOrg, inc.ID, types.IncidentStatusActive, "alice@example.com")
	gt.NoError(t, err).Required()
	gt.Value(t, got.Status).Equal(types.IncidentStatusStable)
	gt.Value(t, got.ReactivatedAt).Nil()
	gt.Array(t, f.log.list()).Length(0)

	t.Run("unknown status is rejected", func(t *testing.T) {
		_, err := f.uc.TransitionIncident(f.ctx, testOrg, inc.ID, types.IncidentStatus("resolved"), "alice@example.com")
		var verr *model.ValidationError
		gt.Bool(t, errors.As(err, &verr)).True()
	})
}

func TestTransitionCase(t *testing.T) {
	f := newFixture(t)
	c := f.newCase(t, "default-phishing-0001", types.CaseStatusNew)
	triageAt := f.now

	c, err := f.uc.TransitionCase(f.ctx, testOrg, c.ID, types.CaseStatusTriage, "bob@example.com")
	gt.NoError(t, err).Required()
	gt.Value(t, c.Status).Equal(types.CaseStatusTriage)
	sameTime(t, c.TriageAt, triageAt)

	f.now = f.now.Add(time.Hour)
	closedAt := f.now
	c, err = f.uc.TransitionCase(f.ctx, testOrg, c.ID, types.CaseStatusClosed, "bob@example.com")
	gt.NoError(t, err).Required()
	gt.Value(t, c.Status).Equal(types.CaseStatusClosed)
	sameTime(t, c.ClosedAt, closedAt)

	t.Run("reopening into triage keeps the first triage time", func(t *testing.T) {
		f.now = f.now.Add(time.Hour)
		reopenedAt := f.now
		reopened, err := f.uc.TransitionCase(f.ctx, testOrg, c.ID, types.CaseStatusTriage, "bob@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, reopened.Status).Equal(types.CaseStatusTriage)
		sameTime(t, reopened.ReopenedAt, reopenedAt)
		sameTime(t, reopened.TriageAt, triageAt)

		f.now = f.now.Add(time.Hour)
		closed, err := f.uc.TransitionCase(f.ctx, testOrg, c.ID, types.CaseStatusClosed, "bob@example.com")
		gt.NoError(t, err).Required()
		sameTime(t, closed.ClosedAt, f.now)
	})

	t.Run("closed cases do not move back to escalated", func(t *testing.T) {
		closed, err := f.repo.Case().Get(f.ctx, testOrg, c.ID)
		gt.NoError(t, err).Required()
		got, err := f.uc.TransitionCase(f.ctx, testOrg, closed.ID, types.CaseStatusEscalated, "bob@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, got.Status).Equal(types.CaseStatusClosed)
		gt.Array(t, got.IncidentIDs).Length(0)
	})
}
