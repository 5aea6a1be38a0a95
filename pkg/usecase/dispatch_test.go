package usecase_test

import (
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/slack-go/slack/slackevents"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/usecase"
)

func threadReplyEvent(userID, channelID, threadTS, text string) *slackevents.EventsAPIEvent {
	ev := messageEvent(userID, channelID, text)
	ev.InnerEvent.Data.(*slackevents.MessageEvent).ThreadTimeStamp = threadTS
	return ev
}

func reactionEvent(userID, reaction, channelID, ts string) *slackevents.EventsAPIEvent {
	return &slackevents.EventsAPIEvent{
		Type: slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Type: "reaction_added",
			Data: &slackevents.ReactionAddedEvent{
				Type:     "reaction_added",
				User:     userID,
				Reaction: reaction,
				Item:     slackevents.Item{Type: "message", Channel: channelID, Timestamp: ts},
			},
		},
	}
}

func leftEvent(userID, channelID string) *slackevents.EventsAPIEvent {
	return &slackevents.EventsAPIEvent{
		Type: slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Type: "member_left_channel",
			Data: &slackevents.MemberLeftChannelEvent{Type: "member_left_channel", User: userID, Channel: channelID},
		},
	}
}

func activity(t *testing.T, f *fixture, ref model.SubjectRef, email string) int {
	t.Helper()
	p, err := f.repo.Participant().GetByEmail(f.ctx, testOrg, ref, email)
	gt.NoError(t, err).Required()
	gt.Value(t, p).NotNil().Required()
	total := 0
	for _, r := range p.Roles {
		total += r.Activity
	}
	return total
}

func TestThreadBan(t *testing.T) {
	const ban = "carol@example.com:Please refrain from using threads in incident channels"

	t.Run("thread replies are refused when threads are banned", func(t *testing.T) {
		f := newFixture(t)
		f.chat.config = &model.ChatConfig{BanThreads: true}
		inc := f.incident(t, "default-security-0001", "C-inc")
		f.participant(t, inc.Ref(), "carol@example.com", types.ParticipantRoleParticipant, 0)

		gt.NoError(t, f.uc.HandleEvent(f.ctx, threadReplyEvent("U-carol", "C-inc", "1709294300.000001", "replying here"))).Required()

		gt.Array(t, f.chat.ephemerals).Length(1).Required()
		gt.String(t, f.chat.ephemerals[0]).HasPrefix(ban)
		gt.Number(t, activity(t, f, inc.Ref(), "carol@example.com")).Equal(0)
	})

	t.Run("top level messages are recorded", func(t *testing.T) {
		f := newFixture(t)
		f.chat.config = &model.ChatConfig{BanThreads: true}
		inc := f.incident(t, "default-security-0001", "C-inc")
		f.participant(t, inc.Ref(), "carol@example.com", types.ParticipantRoleParticipant, 0)

		gt.NoError(t, f.uc.HandleEvent(f.ctx, messageEvent("U-carol", "C-inc", "on it"))).Required()

		gt.Array(t, f.chat.ephemerals).Length(0)
		gt.Number(t, activity(t, f, inc.Ref(), "carol@example.com")).Equal(1)
	})

	t.Run("thread replies are recorded when threads are allowed", func(t *testing.T) {
		f := newFixture(t)
		inc := f.incident(t, "default-security-0001", "C-inc")
		f.participant(t, inc.Ref(), "carol@example.com", types.ParticipantRoleParticipant, 0)

		gt.NoError(t, f.uc.HandleEvent(f.ctx, threadReplyEvent("U-carol", "C-inc", "1709294300.000001", "replying here"))).Required()

		gt.Array(t, f.chat.ephemerals).Length(0)
		gt.Number(t, activity(t, f, inc.Ref(), "carol@example.com")).Equal(1)
	})
}

func TestAfterHoursAdvisory(t *testing.T) {
	const advisory = "carol@example.com:Responders may be outside of their working hours"

	t.Run("participants are told once when the commander is off hours", func(t *testing.T) {
		f := newFixture(t)
		f.now = time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)
		inc := f.incident(t, "default-security-0001", "C-inc")
		f.participant(t, inc.Ref(), "alice@example.com", types.ParticipantRoleIncidentCommander, 0)
		f.participant(t, inc.Ref(), "carol@example.com", types.ParticipantRoleParticipant, 0)

		gt.NoError(t, f.uc.HandleEvent(f.ctx, messageEvent("U-carol", "C-inc", "anyone around?"))).Required()
		gt.Array(t, f.chat.ephemerals).Length(1).Required()
		gt.String(t, f.chat.ephemerals[0]).HasPrefix(advisory)

		p, err := f.repo.Participant().GetByEmail(f.ctx, testOrg, inc.Ref(), "carol@example.com")
		gt.NoError(t, err).Required()
		gt.Bool(t, p.AfterHoursNotification).True()

		gt.NoError(t, f.uc.HandleEvent(f.ctx, messageEvent("U-carol", "C-inc", "still here"))).Required()
		gt.Array(t, f.chat.ephemerals).Length(1)
	})

	t.Run("the commander is not told about themselves", func(t *testing.T) {
		f := newFixture(t)
		f.now = time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)
		inc := f.incident(t, "default-security-0001", "C-inc")
		f.participant(t, inc.Ref(), "alice@example.com", types.ParticipantRoleIncidentCommander, 0)

		gt.NoError(t, f.uc.HandleEvent(f.ctx, messageEvent("U-alice", "C-inc", "status update soon"))).Required()
		gt.Array(t, f.chat.ephemerals).Length(0)
	})

	t.Run("nothing is sent during working hours", func(t *testing.T) {
		f := newFixture(t)
		inc := f.incident(t, "default-security-0001", "C-inc")
		f.participant(t, inc.Ref(), "alice@example.com", types.ParticipantRoleIncidentCommander, 0)
		f.participant(t, inc.Ref(), "carol@example.com", types.ParticipantRoleParticipant, 0)

		gt.NoError(t, f.uc.HandleEvent(f.ctx, messageEvent("U-carol", "C-inc", "anyone around?"))).Required()
		gt.Array(t, f.chat.ephemerals).Length(0)
	})
}

func TestTimelineReaction(t *testing.T) {
	t.Run("reacting in an incident channel imports the message", func(t *testing.T) {
		f := newFixture(t)
		inc := f.incident(t, "default-security-0001", "C-inc")
		f.participant(t, inc.Ref(), "alice@example.com", types.ParticipantRoleIncidentCommander, 0)

		gt.NoError(t, f.uc.HandleEvent(f.ctx, reactionEvent("U-alice", model.DefaultTimelineReaction, "C-inc", "1709294400.000100"))).Required()

		imported := f.events(t, inc.Ref(), types.EventTypeImportedMessage)
		gt.Array(t, imported).Length(1).Required()
		gt.Value(t, imported[0].Description).Equal("message 1709294400.000100")
	})

	t.Run("other reactions are ignored", func(t *testing.T) {
		f := newFixture(t)
		inc := f.incident(t, "default-security-0001", "C-inc")

		gt.NoError(t, f.uc.HandleEvent(f.ctx, reactionEvent("U-alice", "+1", "C-inc", "1709294400.000100"))).Required()
		gt.Array(t, f.events(t, inc.Ref(), types.EventTypeImportedMessage)).Length(0)
	})

	t.Run("the configured reaction replaces the default", func(t *testing.T) {
		f := newFixture(t)
		f.chat.config = &model.ChatConfig{TimelineEventReaction: "pushpin"}
		inc := f.incident(t, "default-security-0001", "C-inc")

		gt.NoError(t, f.uc.HandleEvent(f.ctx, reactionEvent("U-alice", model.DefaultTimelineReaction, "C-inc", "1709294400.000100"))).Required()
		gt.Array(t, f.events(t, inc.Ref(), types.EventTypeImportedMessage)).Length(0)

		gt.NoError(t, f.uc.HandleEvent(f.ctx, reactionEvent("U-alice", "pushpin", "C-inc", "1709294400.000100"))).Required()
		gt.Array(t, f.events(t, inc.Ref(), types.EventTypeImportedMessage)).Length(1)
	})

	t.Run("replies in a case thread resolve the case", func(t *testing.T) {
		const (
			threadTS = "1709290000.000001"
			replyTS  = "1709290100.000002"
		)
		f := newFixture(t)
		c := f.newCase(t, "default-phishing-0001", types.CaseStatusTriage)
		_, err := f.repo.Resource().Put(f.ctx, testOrg, &model.Resource{
			Subject:    c.Ref(),
			Type:       types.ResourceTypeConversation,
			ResourceID: "C-cases",
			ChannelID:  "C-cases",
			ThreadID:   threadTS,
			CreatedAt:  f.now,
		})
		gt.NoError(t, err).Required()
		f.chat.threads[replyTS] = threadTS

		gt.NoError(t, f.uc.HandleEvent(f.ctx, reactionEvent("U-bob", model.DefaultTimelineReaction, "C-cases", replyTS))).Required()
		imported := f.events(t, c.Ref(), types.EventTypeImportedMessage)
		gt.Array(t, imported).Length(1).Required()
		gt.Value(t, imported[0].Description).Equal("message " + replyTS)

		// the thread parent itself carries no thread_ts
		gt.NoError(t, f.uc.HandleEvent(f.ctx, reactionEvent("U-bob", model.DefaultTimelineReaction, "C-cases", threadTS))).Required()
		gt.Array(t, f.events(t, c.Ref(), types.EventTypeImportedMessage)).Length(2)

		// a reply in another thread of the shared channel
		f.chat.threads["1709290200.000003"] = "1709290150.000009"
		gt.NoError(t, f.uc.HandleEvent(f.ctx, reactionEvent("U-bob", model.DefaultTimelineReaction, "C-cases", "1709290200.000003"))).Required()
		gt.Array(t, f.events(t, c.Ref(), types.EventTypeImportedMessage)).Length(2)
	})
}

func TestMemberLeft(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "C-inc")
	f.participant(t, inc.Ref(), "alice@example.com", types.ParticipantRoleIncidentCommander, 0)
	f.participant(t, inc.Ref(), "dave@example.com", types.ParticipantRoleParticipant, 0)

	t.Run("users who never joined are ignored", func(t *testing.T) {
		gt.NoError(t, f.uc.HandleEvent(f.ctx, leftEvent("U-carol", "C-inc")))
	})

	t.Run("participants are removed", func(t *testing.T) {
		gt.NoError(t, f.uc.HandleEvent(f.ctx, leftEvent("U-dave", "C-inc"))).Required()
		p, err := f.repo.Participant().GetByEmail(f.ctx, testOrg, inc.Ref(), "dave@example.com")
		gt.NoError(t, err).Required()
		gt.Bool(t, p.IsActive()).False()
	})

	t.Run("leaving twice is not an error", func(t *testing.T) {
		gt.NoError(t, f.uc.HandleEvent(f.ctx, leftEvent("U-dave", "C-inc")))
	})
}

func TestRestrictedCommands(t *testing.T) {
	const (
		roleError    = "Only participants with the"
		contextError = "This command must be run inside an incident or case conversation."
	)
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "C-inc")
	f.participant(t, inc.Ref(), "alice@example.com", types.ParticipantRoleIncidentCommander, 0)
	f.participant(t, inc.Ref(), "bob@example.com", types.ParticipantRoleScribe, 0)
	f.participant(t, inc.Ref(), "carol@example.com", types.ParticipantRoleParticipant, 0)

	tests := []struct {
		name    string
		cmd     usecase.SlashCommand
		wantErr error
		reply   string
	}{
		{
			name:    "participant without a privileged role",
			cmd:     usecase.SlashCommand{Command: "/dispatch-report-tactical", ChannelID: "C-inc", UserID: "U-carol"},
			wantErr: model.ErrRole,
			reply:   "carol@example.com:" + roleError,
		},
		{
			name:    "user outside the incident",
			cmd:     usecase.SlashCommand{Command: "/dispatch-update-incident", ChannelID: "C-inc", UserID: "U-dave"},
			wantErr: model.ErrRole,
			reply:   "dave@example.com:" + roleError,
		},
		{
			name:    "conversation without a subject",
			cmd:     usecase.SlashCommand{Command: "/dispatch-report-executive", ChannelID: "C-random", UserID: "U-alice"},
			wantErr: model.ErrContext,
			reply:   "alice@example.com:" + contextError,
		},
		{
			name:    "case command in an incident channel",
			cmd:     usecase.SlashCommand{Command: "/dispatch-escalate-case", ChannelID: "C-inc", UserID: "U-alice"},
			wantErr: model.ErrContext,
			reply:   "alice@example.com:" + contextError,
		},
		{
			name: "incident commander",
			cmd:  usecase.SlashCommand{Command: "/dispatch-report-tactical", ChannelID: "C-inc", UserID: "U-alice", TriggerID: "T-1"},
		},
		{
			name: "scribe",
			cmd:  usecase.SlashCommand{Command: "/dispatch-update-notifications-group", ChannelID: "C-inc", UserID: "U-bob", TriggerID: "T-2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.uc.CommandPipeline(f.ctx, tt.cmd)
			if tt.wantErr == nil {
				gt.NoError(t, err)
				return
			}
			gt.Bool(t, errors.Is(err, tt.wantErr)).True()

			before := len(f.chat.ephemerals)
			f.uc.HandleCommand(f.ctx, tt.cmd)
			gt.Array(t, f.chat.ephemerals).Length(before + 1).Required()
			gt.String(t, f.chat.ephemerals[before]).HasPrefix(tt.reply)
		})
	}

	t.Run("commander runs the report command", func(t *testing.T) {
		before := len(f.chat.ephemerals)
		f.uc.HandleCommand(f.ctx, usecase.SlashCommand{Command: "/dispatch-report-tactical", ChannelID: "C-inc", UserID: "U-alice", TriggerID: "T-3"})
		gt.Array(t, f.chat.ephemerals).Length(before)
	})
}

func TestParseRemindAgainValue(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		org     string
		rt      types.ReportType
		delay   time.Duration
		invalid bool
	}{
		{name: "tactical", value: "default-tactical_report-60", org: "default", rt: types.ReportTypeTactical, delay: time.Hour},
		{name: "dashed organization", value: "acme-corp-executive_report-30", org: "acme-corp", rt: types.ReportTypeExecutive, delay: 30 * time.Minute},
		{name: "non numeric delay", value: "default-tactical_report-soon", invalid: true},
		{name: "zero delay", value: "default-tactical_report-0", invalid: true},
		{name: "negative delay", value: "default-tactical_report--5", invalid: true},
		{name: "unknown report type", value: "default-weekly_report-60", invalid: true},
		{name: "missing organization", value: "tactical_report-60", invalid: true},
		{name: "no separator", value: "tactical_report", invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			org, rt, delay, err := usecase.ParseRemindAgainValue(tt.value)
			if tt.invalid {
				gt.Error(t, err).Is(model.ErrInvalidInput)
				return
			}
			gt.NoError(t, err).Required()
			gt.Value(t, org).Equal(tt.org)
			gt.Value(t, rt).Equal(tt.rt)
			gt.Value(t, delay).Equal(tt.delay)
		})
	}
}
