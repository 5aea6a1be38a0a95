package slack_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/slack-go/slack/slackevents"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model/slack"
)

func TestNewMessage_MessageEvent(t *testing.T) {
	event := &slackevents.EventsAPIEvent{
		Type:   slackevents.CallbackEvent,
		TeamID: "T123456",
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Type: "message",
			Data: &slackevents.MessageEvent{
				Type:           "message",
				User:           "U123456",
				Text:           "Hello, world!",
				TimeStamp:      "1700000000.500000",
				Channel:        "C123456",
				EventTimeStamp: "1700000000.500000",
			},
		},
	}

	msg := slack.NewMessage(event)
	gt.Value(t, msg).NotNil().Required()
	gt.Value(t, msg.ID()).Equal("1700000000.500000")
	gt.Value(t, msg.ChannelID()).Equal("C123456")
	gt.Value(t, msg.TeamID()).Equal("T123456")
	gt.Value(t, msg.UserID()).Equal("U123456")
	gt.Value(t, msg.Text()).Equal("Hello, world!")
	gt.Value(t, msg.ThreadTS()).Equal("")
	gt.Value(t, msg.CreatedAt()).Equal(time.Unix(1700000000, 500000000).UTC())
	gt.Bool(t, msg.IsUserMessage()).True()
	gt.Bool(t, msg.IsThreadReply()).False()
}

func TestNewMessage_ThreadReplyAndJoin(t *testing.T) {
	reply := slack.NewMessage(&slackevents.EventsAPIEvent{
		Type: slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Data: &slackevents.MessageEvent{
				User:            "U1",
				TimeStamp:       "1700000001.000000",
				ThreadTimeStamp: "1700000000.000000",
				Channel:         "C1",
			},
		},
	})
	gt.Value(t, reply).NotNil().Required()
	gt.Bool(t, reply.IsThreadReply()).True()

	join := slack.NewMessageFromData("1700000002.000000", "C1", "", "T1", "U1", "joined", "channel_join")
	gt.Bool(t, join.IsJoin()).True()
	gt.Bool(t, join.IsUserMessage()).False()
}

func TestNewMessage_NotCallback(t *testing.T) {
	gt.Value(t, slack.NewMessage(&slackevents.EventsAPIEvent{Type: slackevents.URLVerification})).Nil()
}

func TestNewReaction(t *testing.T) {
	ev := &slackevents.EventsAPIEvent{
		Type: slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Data: &slackevents.ReactionAddedEvent{
				User:     "U1",
				Reaction: "stopwatch",
				Item:     slackevents.Item{Type: "message", Channel: "C1", Timestamp: "1.2"},
			},
		},
	}
	r := slack.NewReaction(ev)
	gt.Value(t, r).NotNil().Required()
	gt.Value(t, r.Reaction).Equal("stopwatch")
	gt.Value(t, r.MessageTS).Equal("1.2")
}

func TestNewMembership(t *testing.T) {
	joined := slack.NewMembership(&slackevents.EventsAPIEvent{
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Data: &slackevents.MemberJoinedChannelEvent{User: "U1", Channel: "C1", Inviter: "U2"},
		},
	})
	gt.Value(t, joined).NotNil().Required()
	gt.Bool(t, joined.Joined).True()
	gt.Value(t, joined.InviterID).Equal("U2")

	left := slack.NewMembership(&slackevents.EventsAPIEvent{
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Data: &slackevents.MemberLeftChannelEvent{User: "U1", Channel: "C1"},
		},
	})
	gt.Bool(t, left.Joined).False()
}

func TestParseTimestamp(t *testing.T) {
	gt.Value(t, slack.ParseTimestamp("")).Equal(time.Time{})
	gt.Value(t, slack.ParseTimestamp("abc")).Equal(time.Time{})
	gt.Value(t, slack.ParseTimestamp("1700000000")).Equal(time.Unix(1700000000, 0).UTC())
	gt.Value(t, slack.ParseTimestamp("1700000000.000123")).Equal(time.Unix(1700000000, 123000).UTC())
}
