package slack_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/service/slack"
)

type fakeSlack struct {
	mu     sync.Mutex
	calls  map[string][]map[string]string
	result map[string]any
}

func newFakeSlack(t *testing.T, result map[string]any) (*fakeSlack, string) {
	t.Helper()
	f := &fakeSlack{calls: map[string][]map[string]string{}, result: result}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.NoError(t, r.ParseForm())
		method := strings.TrimPrefix(r.URL.Path, "/")
		form := map[string]string{}
		for k := range r.Form {
			form[k] = r.Form.Get(k)
		}

		f.mu.Lock()
		f.calls[method] = append(f.calls[method], form)
		body, ok := f.result[method]
		f.mu.Unlock()

		if !ok {
			body = map[string]any{"ok": true}
		}
		w.Header().Set("Content-Type", "application/json")
		gt.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(srv.Close)
	return f, srv.URL + "/"
}

func (f *fakeSlack) Calls(method string) []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func newClient(t *testing.T, url string) *slack.Client {
	t.Helper()
	c, err := slack.New(model.ChatConfig{BotToken: "xoxb-test", SigningSecret: "secret"}, slack.WithAPIURL(url))
	gt.NoError(t, err).Required()
	return c
}

func TestNew(t *testing.T) {
	t.Run("returns error when token is empty", func(t *testing.T) {
		_, err := slack.New(model.ChatConfig{})
		gt.Value(t, err).NotNil()
	})

	t.Run("creates provider when token is provided", func(t *testing.T) {
		c, err := slack.New(model.ChatConfig{BotToken: "test-token", PrivateChannels: true})
		gt.NoError(t, err).Required()
		gt.Value(t, c.Slug()).Equal(slack.PluginSlug)
		gt.Value(t, c.Type()).Equal(types.ProviderTypeChat)
		gt.Bool(t, c.Config().PrivateChannels).True()
	})
}

func TestCreateConversation(t *testing.T) {
	fake, url := newFakeSlack(t, map[string]any{
		"conversations.create": map[string]any{
			"ok":      true,
			"channel": map[string]any{"id": "C123", "name": "default-security-0001"},
		},
		"auth.test": map[string]any{"ok": true, "url": "https://acme.slack.com/"},
	})
	c := newClient(t, url)

	res, err := c.CreateConversation(context.Background(), "default-security-0001", true)
	gt.NoError(t, err).Required()
	gt.Value(t, res.Type).Equal(types.ResourceTypeConversation)
	gt.Value(t, res.ChannelID).Equal("C123")
	gt.Value(t, res.Weblink).Equal("https://acme.slack.com/archives/C123")

	calls := fake.Calls("conversations.create")
	gt.Array(t, calls).Length(1).Required()
	gt.Value(t, calls[0]["name"]).Equal("default-security-0001")
	gt.Value(t, calls[0]["is_private"]).Equal("true")
}

func TestInviteByEmail(t *testing.T) {
	fake, url := newFakeSlack(t, map[string]any{
		"users.lookupByEmail": map[string]any{
			"ok": true,
			"user": map[string]any{
				"id":        "U-BOB",
				"name":      "bob",
				"real_name": "Bob",
				"tz":        "America/Los_Angeles",
				"profile":   map[string]any{"email": "bob@example.com"},
			},
		},
	})
	c := newClient(t, url)
	ctx := context.Background()

	gt.NoError(t, c.InviteToConversation(ctx, "C-abc", []string{"Bob@example.com"}))

	invites := fake.Calls("conversations.invite")
	gt.Array(t, invites).Length(1).Required()
	gt.Value(t, invites[0]["channel"]).Equal("C-abc")
	gt.Value(t, invites[0]["users"]).Equal("U-BOB")

	t.Run("lookups are cached", func(t *testing.T) {
		u, err := c.GetUserByEmail(ctx, "bob@example.com")
		gt.NoError(t, err).Required()
		gt.Value(t, u.ID).Equal("U-BOB")
		gt.Value(t, u.TZ).Equal("America/Los_Angeles")
		gt.Array(t, fake.Calls("users.lookupByEmail")).Length(1)
	})
}

func TestErrorClassification(t *testing.T) {
	_, url := newFakeSlack(t, map[string]any{
		"conversations.rename":   map[string]any{"ok": false, "error": "channel_not_found"},
		"conversations.archive":  map[string]any{"ok": false, "error": "already_archived"},
		"conversations.setTopic": map[string]any{"ok": false, "error": "invalid_auth"},
		"users.lookupByEmail":    map[string]any{"ok": false, "error": "users_not_found"},
	})
	c := newClient(t, url)
	ctx := context.Background()

	t.Run("missing channel is a not found provider error", func(t *testing.T) {
		err := c.RenameConversation(ctx, "C404", "default-security-0002")
		gt.Value(t, model.ProviderErrorKindOf(err)).Equal(model.ProviderErrorNotFound)
	})

	t.Run("archiving twice succeeds", func(t *testing.T) {
		gt.NoError(t, c.ArchiveConversation(ctx, "C1"))
	})

	t.Run("auth failures are not retried", func(t *testing.T) {
		err := c.SetTopic(ctx, "C1", "topic")
		gt.Value(t, model.ProviderErrorKindOf(err)).Equal(model.ProviderErrorAuth)
		gt.Bool(t, model.IsTransient(err)).False()
	})

	t.Run("unknown email is ErrNotFound", func(t *testing.T) {
		_, err := c.GetUserByEmail(ctx, "nobody@example.com")
		gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
	})
}

func TestIntegration(t *testing.T) {
	token := os.Getenv("TEST_SLACK_BOT_TOKEN")
	if token == "" {
		t.Skip("TEST_SLACK_BOT_TOKEN is not set")
	}
	channelID := os.Getenv("TEST_SLACK_CHANNEL_ID")
	if channelID == "" {
		t.Skip("TEST_SLACK_CHANNEL_ID is not set")
	}

	ctx := context.Background()
	c, err := slack.New(model.ChatConfig{BotToken: token})
	gt.NoError(t, err).Required()

	member, err := c.IsBotMember(ctx, channelID)
	gt.NoError(t, err).Required()
	if !member {
		t.Skip("bot is not a member of TEST_SLACK_CHANNEL_ID")
	}

	ts, err := c.SendMessage(ctx, channelID, "dispatch integration test", nil, model.ChatMessageOptions{})
	gt.NoError(t, err).Required()
	gt.String(t, ts).NotEqual("")

	msg, err := c.FetchMessage(ctx, channelID, ts)
	gt.NoError(t, err).Required()
	gt.Value(t, msg.Text).Equal("dispatch integration test")
}
