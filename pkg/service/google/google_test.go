package google_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"google.golang.org/api/option"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/service/google"
)

type call struct {
	method string
	path   string
	body   map[string]any
}

type fakeGoogle struct {
	mu      sync.Mutex
	calls   []call
	respond func(c call) (int, any)
}

func (f *fakeGoogle) find(method, pathSuffix string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.method == method && strings.HasSuffix(c.path, pathSuffix) {
			out = append(out, c)
		}
	}
	return out
}

func newFakeGoogle(t *testing.T, respond func(c call) (int, any)) (*fakeGoogle, []option.ClientOption) {
	t.Helper()
	f := &fakeGoogle{respond: respond}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c := call{method: r.Method, path: r.URL.Path}
		_ = json.Unmarshal(raw, &c.body)
		f.mu.Lock()
		f.calls = append(f.calls, c)
		f.mu.Unlock()

		code, body := f.respond(c)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if body != nil {
			gt.NoError(t, json.NewEncoder(w).Encode(body))
		}
	}))
	t.Cleanup(srv.Close)
	return f, []option.ClientOption{option.WithEndpoint(srv.URL + "/"), option.WithoutAuthentication()}
}

func googleError(code int) map[string]any {
	return map[string]any{"error": map[string]any{"code": code, "message": http.StatusText(code)}}
}

func TestGroupProvider(t *testing.T) {
	fake, opts := newFakeGoogle(t, func(c call) (int, any) {
		switch {
		case c.method == http.MethodPost && strings.HasSuffix(c.path, "/groups"):
			return http.StatusOK, map[string]any{"id": "G1", "email": c.body["email"], "name": c.body["name"]}
		case c.method == http.MethodPost && strings.HasSuffix(c.path, "/members"):
			if c.body["email"] == "bob@example.com" {
				return http.StatusConflict, googleError(http.StatusConflict)
			}
			return http.StatusOK, map[string]any{"email": c.body["email"]}
		case c.method == http.MethodGet && strings.HasSuffix(c.path, "/members"):
			return http.StatusOK, map[string]any{"members": []any{
				map[string]any{"email": "Alice@example.com"},
				map[string]any{"email": "bob@example.com"},
			}}
		case c.method == http.MethodDelete:
			return http.StatusNotFound, googleError(http.StatusNotFound)
		}
		return http.StatusNotFound, googleError(http.StatusNotFound)
	})
	ctx := context.Background()

	p, err := google.NewGroupProvider(ctx, google.Config{Domain: "example.com"}, opts...)
	gt.NoError(t, err).Required()
	gt.Value(t, p.Type()).Equal(types.ProviderTypeGroup)

	res, err := p.Create(ctx, "default-security-0001-notifications", "notifications", []string{"alice@example.com", "bob@example.com"})
	gt.NoError(t, err).Required()
	gt.Value(t, res.Email).Equal("default-security-0001-notifications@example.com")
	gt.Array(t, fake.find(http.MethodPost, "/members")).Length(2)

	members, err := p.ListMembers(ctx, res.Email)
	gt.NoError(t, err).Required()
	gt.Value(t, members).Equal([]string{"alice@example.com", "bob@example.com"})

	t.Run("removing an unknown member succeeds", func(t *testing.T) {
		gt.NoError(t, p.RemoveMembers(ctx, res.Email, []string{"carol@example.com"}))
	})

	t.Run("deleting a missing group is a not found provider error", func(t *testing.T) {
		err := p.Delete(ctx, "missing@example.com")
		gt.Value(t, model.ProviderErrorKindOf(err)).Equal(model.ProviderErrorNotFound)
	})

	t.Run("domain is required", func(t *testing.T) {
		_, err := google.NewGroupProvider(ctx, google.Config{}, opts...)
		gt.Value(t, err).NotNil()
	})
}

func TestConferenceProvider(t *testing.T) {
	fake, opts := newFakeGoogle(t, func(c call) (int, any) {
		if c.method == http.MethodPost {
			return http.StatusOK, map[string]any{
				"id":          "EV1",
				"hangoutLink": "https://meet.google.com/abc-defg-hij",
				"conferenceData": map[string]any{
					"conferenceId": "abc-defg-hij",
					"entryPoints": []any{
						map[string]any{"entryPointType": "video", "uri": "https://meet.google.com/abc-defg-hij", "meetingCode": "abc-defg-hij"},
						map[string]any{"entryPointType": "phone", "uri": "tel:+1-555-0100", "pin": "1234"},
					},
				},
			}
		}
		return http.StatusNoContent, nil
	})
	ctx := context.Background()

	p, err := google.NewConferenceProvider(ctx, google.Config{}, opts...)
	gt.NoError(t, err).Required()

	res, err := p.Create(ctx, "default-security-0001", []string{"alice@example.com"})
	gt.NoError(t, err).Required()
	gt.Value(t, res.Type).Equal(types.ResourceTypeConference)
	gt.Value(t, res.ResourceID).Equal("EV1")
	gt.Value(t, res.Weblink).Equal("https://meet.google.com/abc-defg-hij")
	gt.Value(t, res.ConferenceID).Equal("abc-defg-hij")
	gt.Value(t, res.Challenge).Equal("abc-defg-hij")

	inserts := fake.find(http.MethodPost, "/calendars/primary/events")
	gt.Array(t, inserts).Length(1).Required()
	gt.Value(t, inserts[0].body["summary"]).Equal("default-security-0001")
	conf, ok := inserts[0].body["conferenceData"].(map[string]any)
	gt.Bool(t, ok).True()
	gt.Value(t, conf["createRequest"]).NotNil()

	gt.NoError(t, p.Delete(ctx, "EV1"))
}

func TestEmailProvider(t *testing.T) {
	fake, opts := newFakeGoogle(t, func(c call) (int, any) {
		return http.StatusOK, map[string]any{"id": "M1"}
	})
	ctx := context.Background()

	p, err := google.NewEmailProvider(ctx, google.Config{Subject: "dispatch@example.com"}, opts...)
	gt.NoError(t, err).Required()

	gt.NoError(t, p.Send(ctx, []string{"alice@example.com", "bob@example.com"}, "Incident notification", "<p>hello</p>"))

	sends := fake.find(http.MethodPost, "/users/me/messages/send")
	gt.Array(t, sends).Length(1).Required()
	raw, err := base64.URLEncoding.DecodeString(sends[0].body["raw"].(string))
	gt.NoError(t, err).Required()
	gt.String(t, string(raw)).Contains("To: alice@example.com, bob@example.com\r\n")
	gt.String(t, string(raw)).Contains("From: dispatch@example.com\r\n")

	t.Run("no recipients sends nothing", func(t *testing.T) {
		gt.NoError(t, p.Send(ctx, nil, "x", "y"))
		gt.Array(t, fake.find(http.MethodPost, "/users/me/messages/send")).Length(1)
	})
}

func TestBuildMessage(t *testing.T) {
	msg := google.BuildMessage("", []string{"alice@example.com"}, "Incident ✓", "<b>hi</b>")
	gt.String(t, msg).Contains("Subject: =?utf-8?q?")
	gt.String(t, msg).Contains("Content-Type: text/html")
	gt.String(t, msg).Contains(base64.StdEncoding.EncodeToString([]byte("<b>hi</b>")))
	gt.Bool(t, strings.Contains(msg, "From:")).False()
}
