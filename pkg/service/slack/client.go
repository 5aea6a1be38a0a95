package slack

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	slackmsg "github.com/Netflix/dispatch-sub000/pkg/domain/model/slack"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

const (
	// DefaultCacheTTL is the default TTL for the user cache
	DefaultCacheTTL = 10 * time.Minute

	historyPageSize = 200
)

// userEntry holds a cached user with expiration
type userEntry struct {
	user      *model.ChatUser
	expiresAt time.Time
}

// Client is the Slack chat provider. Users are addressed by email and
// resolved to Slack user ids through a TTL cache.
type Client struct {
	api      *slack.Client
	conf     model.ChatConfig
	cacheTTL time.Duration

	mu      sync.RWMutex
	users   map[string]userEntry
	byEmail map[string]string
	teamURL string
}

var _ interfaces.ChatProvider = (*Client)(nil)

// Option is a functional option for client configuration
type Option func(*Client)

// WithCacheTTL sets the TTL of the user cache
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// WithAPIURL points the client at another Slack API endpoint
func WithAPIURL(url string) Option {
	return func(c *Client) {
		c.api = slack.New(c.conf.BotToken, slack.OptionAPIURL(url))
	}
}

// New creates a Slack chat provider from the plugin configuration
func New(conf model.ChatConfig, opts ...Option) (*Client, error) {
	if conf.BotToken == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	c := &Client{
		api:      slack.New(conf.BotToken),
		conf:     conf,
		cacheTTL: DefaultCacheTTL,
		users:    make(map[string]userEntry),
		byEmail:  make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) Slug() string             { return PluginSlug }
func (c *Client) Type() types.ProviderType { return types.ProviderTypeChat }

// Config returns the plugin configuration the client was built from
func (c *Client) Config() *model.ChatConfig {
	conf := c.conf
	return &conf
}

// teamBaseURL retrieves the workspace URL, e.g. "https://acme.slack.com/".
// The result is cached for the lifetime of the client.
func (c *Client) teamBaseURL(ctx context.Context) string {
	c.mu.RLock()
	url := c.teamURL
	c.mu.RUnlock()
	if url != "" {
		return url
	}

	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		logging.From(ctx).Warn("failed to resolve Slack workspace url", "error", err)
		return ""
	}

	c.mu.Lock()
	c.teamURL = resp.URL
	c.mu.Unlock()
	return resp.URL
}

// CreateConversation creates a channel named after the subject
func (c *Client) CreateConversation(ctx context.Context, name string, private bool) (*model.Resource, error) {
	channelName := ConversationName(name)
	channel, err := c.api.CreateConversationContext(ctx, slack.CreateConversationParams{
		ChannelName: channelName,
		IsPrivate:   private,
		TeamID:      c.conf.TeamID,
	})
	if err != nil {
		return nil, goerr.Wrap(classify(err), "failed to create Slack channel", goerr.V("channelName", channelName))
	}

	res := &model.Resource{
		Type:       types.ResourceTypeConversation,
		ResourceID: channel.ID,
		ChannelID:  channel.ID,
	}
	if base := c.teamBaseURL(ctx); base != "" {
		res.Weblink = strings.TrimRight(base, "/") + "/archives/" + channel.ID
	}
	return res, nil
}

func (c *Client) ArchiveConversation(ctx context.Context, channelID string) error {
	if err := c.api.ArchiveConversationContext(ctx, channelID); err != nil {
		if isSlackError(err, "already_archived") {
			return nil
		}
		return goerr.Wrap(classify(err), "failed to archive Slack channel", goerr.V("channelID", channelID))
	}
	return nil
}

func (c *Client) UnarchiveConversation(ctx context.Context, channelID string) error {
	if err := c.api.UnArchiveConversationContext(ctx, channelID); err != nil {
		if isSlackError(err, "not_archived") {
			return nil
		}
		return goerr.Wrap(classify(err), "failed to unarchive Slack channel", goerr.V("channelID", channelID))
	}
	return nil
}

// RenameConversation renames an existing channel
func (c *Client) RenameConversation(ctx context.Context, channelID, name string) error {
	channelName := ConversationName(name)
	if _, err := c.api.RenameConversationContext(ctx, channelID, channelName); err != nil {
		return goerr.Wrap(classify(err), "failed to rename Slack channel", goerr.V("channelID", channelID), goerr.V("channelName", channelName))
	}
	return nil
}

// InviteToConversation invites users by email. Emails without a Slack
// account are skipped.
func (c *Client) InviteToConversation(ctx context.Context, channelID string, emails []string) error {
	var userIDs []string
	for _, email := range emails {
		u, err := c.GetUserByEmail(ctx, email)
		if err != nil {
			logging.From(ctx).Warn("skip inviting unknown Slack user", "email", email, "error", err)
			continue
		}
		if !slices.Contains(userIDs, u.ID) {
			userIDs = append(userIDs, u.ID)
		}
	}
	if len(userIDs) == 0 {
		return nil
	}

	if _, err := c.api.InviteUsersToConversationContext(ctx, channelID, userIDs...); err != nil {
		if isSlackError(err, "already_in_channel") {
			return nil
		}
		return goerr.Wrap(classify(err), "failed to invite users to Slack channel", goerr.V("channelID", channelID), goerr.V("userIDs", userIDs))
	}
	return nil
}

func (c *Client) SetTopic(ctx context.Context, channelID, topic string) error {
	if _, err := c.api.SetTopicOfConversationContext(ctx, channelID, topic); err != nil {
		return goerr.Wrap(classify(err), "failed to set Slack channel topic", goerr.V("channelID", channelID))
	}
	return nil
}

func (c *Client) SetDescription(ctx context.Context, channelID, description string) error {
	if _, err := c.api.SetPurposeOfConversationContext(ctx, channelID, description); err != nil {
		return goerr.Wrap(classify(err), "failed to set Slack channel purpose", goerr.V("channelID", channelID))
	}
	return nil
}

// AddBookmark adds a link bookmark to a Slack channel
func (c *Client) AddBookmark(ctx context.Context, channelID, title, link string) error {
	_, err := c.api.AddBookmarkContext(ctx, channelID, slack.AddBookmarkParameters{
		Title: title,
		Type:  "link",
		Link:  link,
	})
	if err != nil {
		return goerr.Wrap(classify(err), "failed to add bookmark", goerr.V("channelID", channelID), goerr.V("title", title))
	}
	return nil
}

// IsBotMember reports whether the bot has joined the channel
func (c *Client) IsBotMember(ctx context.Context, channelID string) (bool, error) {
	info, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		if isSlackError(err, "channel_not_found") {
			return false, nil
		}
		return false, goerr.Wrap(classify(err), "failed to get conversation info", goerr.V("channelID", channelID))
	}
	return info.IsMember, nil
}

func messageOptions(text string, blocks []slack.Block, threadTS string) []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	return opts
}

func (c *Client) postResponseURL(ctx context.Context, url, responseType, text string, blocks []slack.Block) error {
	msg := &slack.WebhookMessage{
		Text:         text,
		ResponseType: responseType,
	}
	if len(blocks) > 0 {
		msg.Blocks = &slack.Blocks{BlockSet: blocks}
	}
	if err := slack.PostWebhookContext(ctx, url, msg); err != nil {
		return goerr.Wrap(classify(err), "failed to post to response url")
	}
	return nil
}

// SendMessage posts a message to a channel or thread and returns its
// timestamp. The text is the notification fallback of the blocks.
func (c *Client) SendMessage(ctx context.Context, channelID string, text string, blocks []slack.Block, opts model.ChatMessageOptions) (string, error) {
	if opts.ResponseURL != "" {
		return "", c.postResponseURL(ctx, opts.ResponseURL, slack.ResponseTypeInChannel, text, blocks)
	}

	_, ts, err := c.api.PostMessageContext(ctx, channelID, messageOptions(text, blocks, opts.ThreadTS)...)
	if err != nil {
		return "", goerr.Wrap(classify(err), "failed to post message", goerr.V("channelID", channelID))
	}
	return ts, nil
}

// SendDirect sends a direct message to the user with the email
func (c *Client) SendDirect(ctx context.Context, email string, text string, blocks []slack.Block) error {
	u, err := c.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if _, _, err := c.api.PostMessageContext(ctx, u.ID, messageOptions(text, blocks, "")...); err != nil {
		return goerr.Wrap(classify(err), "failed to send direct message", goerr.V("email", email))
	}
	return nil
}

// SendEphemeral posts a message only the user with the email can see
func (c *Client) SendEphemeral(ctx context.Context, channelID, email string, text string, blocks []slack.Block, opts model.ChatMessageOptions) error {
	if opts.ResponseURL != "" {
		return c.postResponseURL(ctx, opts.ResponseURL, slack.ResponseTypeEphemeral, text, blocks)
	}

	u, err := c.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if _, err := c.api.PostEphemeralContext(ctx, channelID, u.ID, messageOptions(text, blocks, opts.ThreadTS)...); err != nil {
		return goerr.Wrap(classify(err), "failed to post ephemeral message", goerr.V("channelID", channelID), goerr.V("email", email))
	}
	return nil
}

// UpdateMessage updates an existing message identified by channel and timestamp
func (c *Client) UpdateMessage(ctx context.Context, channelID, ts string, text string, blocks []slack.Block) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	if _, _, _, err := c.api.UpdateMessageContext(ctx, channelID, ts, opts...); err != nil {
		return goerr.Wrap(classify(err), "failed to update message", goerr.V("channelID", channelID), goerr.V("ts", ts))
	}
	return nil
}

func (c *Client) toChatMessage(ctx context.Context, m slack.Message) *model.ChatMessage {
	msg := &model.ChatMessage{
		TS:       m.Timestamp,
		ThreadTS: m.ThreadTimestamp,
		UserID:   m.User,
		Text:     m.Text,
	}
	msg.Timestamp = slackmsg.ParseTimestamp(m.Timestamp)
	for _, r := range m.Reactions {
		msg.Reactions = append(msg.Reactions, r.Name)
	}
	if m.User != "" {
		if u, err := c.GetUser(ctx, m.User); err == nil {
			msg.UserName = u.DisplayName()
			msg.UserEmail = u.Email
		}
	}
	return msg
}

// FetchMessage returns the single message at ts in the channel
func (c *Client) FetchMessage(ctx context.Context, channelID, ts string) (*model.ChatMessage, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return nil, goerr.Wrap(classify(err), "failed to fetch message", goerr.V("channelID", channelID), goerr.V("ts", ts))
	}
	if len(resp.Messages) == 0 || resp.Messages[0].Timestamp != ts {
		return nil, goerr.Wrap(model.ErrNotFound, "message not found", goerr.V("channelID", channelID), goerr.V("ts", ts))
	}
	return c.toChatMessage(ctx, resp.Messages[0]), nil
}

// FetchTranscript returns every message of the channel, or of the thread
// when threadTS is set, oldest first. Bot messages are skipped.
func (c *Client) FetchTranscript(ctx context.Context, channelID, threadTS string) ([]*model.ChatMessage, error) {
	var raw []slack.Message

	if threadTS != "" {
		cursor := ""
		for {
			msgs, hasMore, next, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
				ChannelID: channelID,
				Timestamp: threadTS,
				Cursor:    cursor,
				Limit:     historyPageSize,
			})
			if err != nil {
				return nil, goerr.Wrap(classify(err), "failed to fetch thread replies", goerr.V("channelID", channelID), goerr.V("threadTS", threadTS))
			}
			raw = append(raw, msgs...)
			if !hasMore || next == "" {
				break
			}
			cursor = next
		}
	} else {
		cursor := ""
		for {
			resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
				ChannelID: channelID,
				Cursor:    cursor,
				Limit:     historyPageSize,
			})
			if err != nil {
				return nil, goerr.Wrap(classify(err), "failed to fetch conversation history", goerr.V("channelID", channelID))
			}
			raw = append(raw, resp.Messages...)
			if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
				break
			}
			cursor = resp.ResponseMetaData.NextCursor
		}
		// history is returned newest first
		slices.Reverse(raw)
	}

	out := make([]*model.ChatMessage, 0, len(raw))
	for _, m := range raw {
		if m.BotID != "" || m.SubType == "bot_message" {
			continue
		}
		out = append(out, c.toChatMessage(ctx, m))
	}
	return out, nil
}

func toChatUser(u *slack.User) *model.ChatUser {
	return &model.ChatUser{
		ID:       u.ID,
		Name:     u.Name,
		RealName: u.RealName,
		Email:    strings.ToLower(u.Profile.Email),
		Title:    u.Profile.Title,
		TZ:       u.TZ,
		ImageURL: u.Profile.Image48,
		IsBot:    u.IsBot,
	}
}

func (c *Client) cached(userID string) *model.ChatUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.users[userID]; ok && e.expiresAt.After(time.Now()) {
		return e.user
	}
	return nil
}

func (c *Client) remember(u *model.ChatUser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = userEntry{user: u, expiresAt: time.Now().Add(c.cacheTTL)}
	if u.Email != "" {
		c.byEmail[u.Email] = u.ID
	}
}

// GetUser retrieves the profile of a Slack user id
func (c *Client) GetUser(ctx context.Context, userID string) (*model.ChatUser, error) {
	if u := c.cached(userID); u != nil {
		return u, nil
	}

	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(classify(err), "failed to get user info", goerr.V("user_id", userID))
	}
	u := toChatUser(user)
	c.remember(u)
	return u, nil
}

// GetUserByEmail retrieves the profile of the Slack user with the email
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*model.ChatUser, error) {
	email = strings.ToLower(email)

	c.mu.RLock()
	id, ok := c.byEmail[email]
	c.mu.RUnlock()
	if ok {
		if u := c.cached(id); u != nil {
			return u, nil
		}
	}

	user, err := c.api.GetUserByEmailContext(ctx, email)
	if err != nil {
		if isSlackError(err, "users_not_found") {
			return nil, goerr.Wrap(model.ErrNotFound, "no Slack user for email", goerr.V("email", email))
		}
		return nil, goerr.Wrap(classify(err), "failed to look up user by email", goerr.V("email", email))
	}
	u := toChatUser(user)
	c.remember(u)
	return u, nil
}

// OpenModal opens a view and returns its id
func (c *Client) OpenModal(ctx context.Context, triggerID string, view slack.ModalViewRequest) (string, error) {
	resp, err := c.api.OpenViewContext(ctx, triggerID, view)
	if err != nil {
		return "", goerr.Wrap(classify(err), "failed to open modal", goerr.V("callbackID", view.CallbackID))
	}
	return resp.View.ID, nil
}

// UpdateModal replaces the content of an open view
func (c *Client) UpdateModal(ctx context.Context, viewID string, view slack.ModalViewRequest) error {
	if _, err := c.api.UpdateViewContext(ctx, view, "", "", viewID); err != nil {
		return goerr.Wrap(classify(err), "failed to update modal", goerr.V("viewID", viewID))
	}
	return nil
}
