package slack

import (
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack/slackevents"
)

// Message is an inbound chat message normalized from the Events API
type Message struct {
	id        string
	channelID string
	threadTS  string
	teamID    string
	userID    string
	text      string
	subtype   string
	botID     string
	createdAt time.Time
}

// NewMessage creates a Message from a callback event. It returns nil for
// events that are not messages.
func NewMessage(ev *slackevents.EventsAPIEvent) *Message {
	if ev.Type != slackevents.CallbackEvent {
		return nil
	}

	switch evt := ev.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		threadTS := ""
		if evt.ThreadTimeStamp != "" && evt.ThreadTimeStamp != evt.TimeStamp {
			threadTS = evt.ThreadTimeStamp
		}
		return &Message{
			id:        evt.TimeStamp,
			channelID: evt.Channel,
			threadTS:  threadTS,
			teamID:    ev.TeamID,
			userID:    evt.User,
			text:      evt.Text,
			subtype:   evt.SubType,
			botID:     evt.BotID,
			createdAt: ParseTimestamp(evt.TimeStamp),
		}
	case *slackevents.AppMentionEvent:
		return &Message{
			id:        evt.TimeStamp,
			channelID: evt.Channel,
			threadTS:  evt.ThreadTimeStamp,
			teamID:    ev.TeamID,
			userID:    evt.User,
			text:      evt.Text,
			botID:     evt.BotID,
			createdAt: ParseTimestamp(evt.TimeStamp),
		}
	default:
		return nil
	}
}

func (m *Message) ID() string           { return m.id }
func (m *Message) ChannelID() string    { return m.channelID }
func (m *Message) ThreadTS() string     { return m.threadTS }
func (m *Message) TeamID() string       { return m.teamID }
func (m *Message) UserID() string       { return m.userID }
func (m *Message) Text() string         { return m.text }
func (m *Message) Subtype() string      { return m.subtype }
func (m *Message) CreatedAt() time.Time { return m.createdAt }

// IsThreadReply reports whether the message is a reply inside a thread
func (m *Message) IsThreadReply() bool {
	return m.threadTS != ""
}

// IsFromBot reports whether a bot posted the message
func (m *Message) IsFromBot() bool {
	return m.botID != "" || m.subtype == "bot_message"
}

// IsJoin reports whether the message is a channel join/leave notice
func (m *Message) IsJoin() bool {
	return m.subtype == "channel_join" || m.subtype == "channel_leave" ||
		m.subtype == "group_join" || m.subtype == "group_leave"
}

// IsUserMessage reports whether the message was typed by a human participant
func (m *Message) IsUserMessage() bool {
	return m.userID != "" && !m.IsFromBot() && (m.subtype == "" || m.subtype == "thread_broadcast" || m.subtype == "file_share")
}

// NewMessageFromData creates a Message from raw fields
func NewMessageFromData(id, channelID, threadTS, teamID, userID, text, subtype string) *Message {
	return &Message{
		id:        id,
		channelID: channelID,
		threadTS:  threadTS,
		teamID:    teamID,
		userID:    userID,
		text:      text,
		subtype:   subtype,
		createdAt: ParseTimestamp(id),
	}
}

// ParseTimestamp converts a Slack timestamp ("1700000000.000100") to UTC time.
// Invalid input yields the zero time.
func ParseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	secStr, fracStr, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var nsec int64
	if fracStr != "" {
		if len(fracStr) > 9 {
			fracStr = fracStr[:9]
		}
		fracStr += strings.Repeat("0", 9-len(fracStr))
		nsec, _ = strconv.ParseInt(fracStr, 10, 64)
	}
	return time.Unix(sec, nsec).UTC()
}

// Reaction is a reaction_added event
type Reaction struct {
	UserID    string
	Reaction  string
	ChannelID string
	MessageTS string
	ItemUser  string
}

// NewReaction extracts a Reaction from a callback event, or nil
func NewReaction(ev *slackevents.EventsAPIEvent) *Reaction {
	evt, ok := ev.InnerEvent.Data.(*slackevents.ReactionAddedEvent)
	if !ok || evt.Item.Type != "message" {
		return nil
	}
	return &Reaction{
		UserID:    evt.User,
		Reaction:  evt.Reaction,
		ChannelID: evt.Item.Channel,
		MessageTS: evt.Item.Timestamp,
		ItemUser:  evt.ItemUser,
	}
}

// Membership is a member_joined_channel or member_left_channel event
type Membership struct {
	UserID    string
	ChannelID string
	InviterID string
	Joined    bool
}

// NewMembership extracts a Membership from a callback event, or nil
func NewMembership(ev *slackevents.EventsAPIEvent) *Membership {
	switch evt := ev.InnerEvent.Data.(type) {
	case *slackevents.MemberJoinedChannelEvent:
		return &Membership{UserID: evt.User, ChannelID: evt.Channel, InviterID: evt.Inviter, Joined: true}
	case *slackevents.MemberLeftChannelEvent:
		return &Membership{UserID: evt.User, ChannelID: evt.Channel}
	}
	return nil
}
