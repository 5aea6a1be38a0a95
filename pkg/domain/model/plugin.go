package model

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// ChatConfig is the configuration of the chat plugin instance of a project
type ChatConfig struct {
	BotToken      string `json:"bot_token" masq:"secret"`
	SigningSecret string `json:"signing_secret" masq:"secret"`
	AppUserSlug   string `json:"app_user_slug,omitempty"`
	TeamID        string `json:"team_id,omitempty"`

	PrivateChannels       bool   `json:"private_channels"`
	BanThreads            bool   `json:"ban_threads"`
	TimelineEventReaction string `json:"timeline_event_reaction,omitempty"`
	ImportantReaction     string `json:"important_reaction,omitempty"`

	// Slash command names, mapped to their handlers
	Commands map[string]string `json:"commands,omitempty"`
}

// DefaultTimelineReaction is used when the chat config leaves the timeline
// reaction unset
const DefaultTimelineReaction = "stopwatch"

// TimelineReaction returns the configured timeline reaction or the default
func (c *ChatConfig) TimelineReaction() string {
	if c.TimelineEventReaction == "" {
		return DefaultTimelineReaction
	}
	return c.TimelineEventReaction
}

// DecodeConfiguration decodes a plugin instance configuration map into out
func DecodeConfiguration(conf map[string]any, out any) error {
	raw, err := json.Marshal(conf)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal plugin configuration")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return goerr.Wrap(err, "failed to decode plugin configuration")
	}
	return nil
}
