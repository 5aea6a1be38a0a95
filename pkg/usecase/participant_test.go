package usecase_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/slack-go/slack/slackevents"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/usecase"
)

func messageEvent(userID, channelID, text string) *slackevents.EventsAPIEvent {
	return &slackevents.EventsAPIEvent{
		Type: slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Type: "message",
			Data: &slackevents.MessageEvent{
				Type:      "message",
				User:      userID,
				Text:      text,
				TimeStamp: "1709294400.000100",
				Channel:   channelID,
			},
		},
	}
}

func TestObserverPromotion(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "C-inc")
	f.participant(t, inc.Ref(), "dave@example.com", types.ParticipantRoleObserver, model.ObserverPromotionActivity-1)

	gt.NoError(t, f.uc.HandleEvent(f.ctx, messageEvent("U-dave", "C-inc", "looking at the logs now"))).Required()

	p, err := f.repo.Participant().GetByEmail(f.ctx, testOrg, inc.Ref(), "dave@example.com")
	gt.NoError(t, err).Required()
	gt.Value(t, p).NotNil().Required()
	gt.Bool(t, p.HasActiveRole(types.ParticipantRoleObserver)).False()
	gt.Bool(t, p.HasActiveRole(types.ParticipantRoleParticipant)).True()

	updates := f.events(t, inc.Ref(), types.EventTypeFieldUpdated)
	gt.Array(t, updates).Length(1).Required()
	gt.Value(t, updates[0].Details["kind"]).Equal(any(model.EventKindRolePromotion))

	t.Run("further messages only count activity", func(t *testing.T) {
		gt.NoError(t, f.uc.HandleEvent(f.ctx, messageEvent("U-dave", "C-inc", "found it"))).Required()
		gt.Array(t, f.events(t, inc.Ref(), types.EventTypeFieldUpdated)).Length(1)

		p, err := f.repo.Participant().GetByEmail(f.ctx, testOrg, inc.Ref(), "dave@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, p.ActiveRole(types.ParticipantRoleParticipant).Activity).Equal(1)
	})
}

func TestObserverBelowThreshold(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "C-inc")
	f.participant(t, inc.Ref(), "dave@example.com", types.ParticipantRoleObserver, 3)

	p, err := f.uc.RecordActivity(f.ctx, testOrg, inc.Ref(), "dave@example.com")
	gt.NoError(t, err).Required()
	gt.Bool(t, p.HasActiveRole(types.ParticipantRoleObserver)).True()
	gt.Value(t, p.ActiveRole(types.ParticipantRoleObserver).Activity).Equal(4)
	gt.Array(t, f.events(t, inc.Ref(), types.EventTypeFieldUpdated)).Length(0)

	t.Run("unknown senders are ignored", func(t *testing.T) {
		p, err := f.uc.RecordActivity(f.ctx, testOrg, inc.Ref(), "mallory@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, p).Nil()
	})
}

func TestAssignRole(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "")
	f.participant(t, inc.Ref(), "alice@example.com", types.ParticipantRoleIncidentCommander, 0)

	result, err := f.uc.AssignRole(f.ctx, testOrg, inc.Ref(), "alice@example.com", types.ParticipantRoleIncidentCommander, "bob@example.com")
	gt.NoError(t, err).Required()
	gt.Value(t, result).Equal(types.AssignResultAssigneeHasRole)

	result, err = f.uc.AssignRole(f.ctx, testOrg, inc.Ref(), "bob@example.com", types.ParticipantRoleIncidentCommander, "alice@example.com")
	gt.NoError(t, err).Required()
	gt.Value(t, result).Equal(types.AssignResultAssigned)

	participants, err := f.repo.Participant().List(f.ctx, testOrg, inc.Ref())
	gt.NoError(t, err).Required()
	commanders := participants.WithActiveRole(types.ParticipantRoleIncidentCommander)
	gt.Array(t, commanders).Length(1).Required()
	gt.Value(t, commanders[0].Email).Equal("bob@example.com")

	t.Run("unknown role is rejected", func(t *testing.T) {
		result, err := f.uc.AssignRole(f.ctx, testOrg, inc.Ref(), "carol@example.com", types.ParticipantRole("captain"), "alice@example.com")
		var verr *model.ValidationError
		gt.Bool(t, errors.As(err, &verr)).True()
		gt.Value(t, result).Equal(types.AssignResultRoleNotAssigned)
	})
}

func TestRemoveParticipantKeepsCommander(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "C-inc")
	f.participant(t, inc.Ref(), "alice@example.com", types.ParticipantRoleIncidentCommander, 0)
	f.participant(t, inc.Ref(), "carol@example.com", types.ParticipantRoleParticipant, 0)

	removed, err := f.uc.RemoveParticipant(f.ctx, testOrg, inc.Ref(), "alice@example.com")
	gt.NoError(t, err).Required()
	gt.Bool(t, removed).False()
	gt.Array(t, f.chat.invites["C-inc"]).Has("alice@example.com")

	removed, err = f.uc.RemoveParticipant(f.ctx, testOrg, inc.Ref(), "carol@example.com")
	gt.NoError(t, err).Required()
	gt.Bool(t, removed).True()

	carol, err := f.repo.Participant().GetByEmail(f.ctx, testOrg, inc.Ref(), "carol@example.com")
	gt.NoError(t, err).Required()
	gt.Bool(t, carol.IsActive()).False()
}

func TestAddParticipantReactivates(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "")
	f.participant(t, inc.Ref(), "carol@example.com", types.ParticipantRoleParticipant, 0)

	_, err := f.uc.RemoveParticipant(f.ctx, testOrg, inc.Ref(), "carol@example.com")
	gt.NoError(t, err).Required()

	p, err := f.uc.AddParticipant(f.ctx, testOrg, inc.Ref(), usecase.AddParticipantInput{
		Email: "carol@example.com",
		Quiet: true,
	})
	gt.NoError(t, err).Required()
	gt.Bool(t, p.IsActive()).True()

	participants, err := f.repo.Participant().List(f.ctx, testOrg, inc.Ref())
	gt.NoError(t, err).Required()
	gt.Array(t, participants).Length(1)
}

func TestAssignReporterKeepsSingleReporter(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "")
	f.participant(t, inc.Ref(), "alice@example.com", types.ParticipantRoleReporter, 0)

	result, err := f.uc.AssignRole(f.ctx, testOrg, inc.Ref(), "carol@example.com", types.ParticipantRoleReporter, "bob@example.com")
	gt.NoError(t, err).Required()
	gt.Value(t, result).Equal(types.AssignResultAssigned)

	participants, err := f.repo.Participant().List(f.ctx, testOrg, inc.Ref())
	gt.NoError(t, err).Required()
	reporters := participants.WithActiveRole(types.ParticipantRoleReporter)
	gt.Array(t, reporters).Length(1).Required()
	gt.Value(t, reporters[0].Email).Equal("carol@example.com")

	alice := participants.ByEmail("alice@example.com")
	gt.Value(t, alice).NotNil().Required()
	gt.Bool(t, alice.HasActiveRole(types.ParticipantRoleParticipant)).True()

	t.Run("adding a second reporter moves the role", func(t *testing.T) {
		_, err := f.uc.AddParticipant(f.ctx, testOrg, inc.Ref(), usecase.AddParticipantInput{
			Email: "dave@example.com",
			Role:  types.ParticipantRoleReporter,
			Quiet: true,
		})
		gt.NoError(t, err).Required()

		participants, err := f.repo.Participant().List(f.ctx, testOrg, inc.Ref())
		gt.NoError(t, err).Required()
		reporters := participants.WithActiveRole(types.ParticipantRoleReporter)
		gt.Array(t, reporters).Length(1).Required()
		gt.Value(t, reporters[0].Email).Equal("dave@example.com")
	})
}

func TestRecordActivityConcurrent(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "C-inc")
	f.participant(t, inc.Ref(), "carol@example.com", types.ParticipantRoleParticipant, 0)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.uc.RecordActivity(f.ctx, testOrg, inc.Ref(), "carol@example.com")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		gt.NoError(t, err)
	}
	gt.Number(t, activity(t, f, inc.Ref(), "carol@example.com")).Equal(n)
}
