package github_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/service/github"
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type fakeGitHub struct {
	mu       sync.Mutex
	requests []gqlRequest
}

func (f *fakeGitHub) find(keyword string) []gqlRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gqlRequest
	for _, r := range f.requests {
		if strings.Contains(r.Query, keyword) {
			out = append(out, r)
		}
	}
	return out
}

func issueJSON(id, title, state string) map[string]any {
	return map[string]any{
		"id":     id,
		"number": 7,
		"title":  title,
		"body":   "",
		"state":  state,
		"url":    "https://github.com/acme/ir/issues/7",
	}
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, github.Config, *http.Client) {
	t.Helper()
	f := &fakeGitHub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		gt.NoError(t, err)
		var req gqlRequest
		gt.NoError(t, json.Unmarshal(raw, &req))
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		var data any
		switch {
		case strings.Contains(req.Query, "createIssue"):
			data = map[string]any{"createIssue": map[string]any{"issue": issueJSON("I_1", "[default-security-0001] Phishing", "OPEN")}}
		case strings.Contains(req.Query, "updateIssue"):
			data = map[string]any{"updateIssue": map[string]any{"issue": issueJSON("I_1", "[default-security-0001] Phishing", "CLOSED")}}
		case strings.Contains(req.Query, "search("):
			data = map[string]any{"search": map[string]any{
				"nodes": []any{
					issueJSON("I_2", "[default-security-0001] rotate keys", "CLOSED"),
					issueJSON("I_3", "[default-security-00012] other", "OPEN"),
				},
				"pageInfo": map[string]any{"hasNextPage": false, "endCursor": ""},
			}}
		case strings.Contains(req.Query, "issueOrPullRequest"):
			data = map[string]any{"repository": map[string]any{"issueOrPullRequest": map[string]any{
				"__typename": "PullRequest",
				"title":      "Block sender",
				"state":      "CLOSED",
				"merged":     true,
			}}}
		case strings.Contains(req.Query, "repository("):
			data = map[string]any{"repository": map[string]any{
				"id": "R_1",
				"labels": map[string]any{"nodes": []any{
					map[string]any{"id": "L_SEC", "name": "Security"},
					map[string]any{"id": "L_HIGH", "name": "high"},
				}},
			}}
		}

		w.Header().Set("Content-Type", "application/json")
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
	}))
	t.Cleanup(srv.Close)

	conf := github.Config{Owner: "acme", Repo: "ir", GraphQLURL: srv.URL}
	return f, conf, srv.Client()
}

func TestNew(t *testing.T) {
	_, err := github.New(github.Config{Owner: "acme"})
	gt.Value(t, err).NotNil()

	_, err = github.New(github.Config{Owner: "acme", Repo: "ir"})
	gt.Value(t, err).NotNil()

	c, err := github.NewTicketProvider(github.Config{Owner: "acme", Repo: "ir", Token: "ghp_test"})
	gt.NoError(t, err).Required()
	gt.Value(t, c.Slug()).Equal(github.TicketPluginSlug)
	gt.Value(t, c.Type()).Equal(types.ProviderTypeTicket)
}

func TestTicketCreateAndUpdate(t *testing.T) {
	fake, conf, hc := newFakeGitHub(t)
	p, err := github.NewTicketProvider(conf, github.WithHTTPClient(hc))
	gt.NoError(t, err).Required()
	ctx := context.Background()

	res, err := p.Create(ctx, model.TicketRequest{
		Name:     "default-security-0001",
		Title:    "Phishing",
		Kind:     "security",
		Priority: "High",
		Labels:   []string{"unknown-label"},
	})
	gt.NoError(t, err).Required()
	gt.Value(t, res.Type).Equal(types.ResourceTypeTicket)
	gt.Value(t, res.ResourceID).Equal("I_1")
	gt.Value(t, res.Weblink).Equal("https://github.com/acme/ir/issues/7")

	creates := fake.find("createIssue")
	gt.Array(t, creates).Length(1).Required()
	input, ok := creates[0].Variables["input"].(map[string]any)
	gt.Bool(t, ok).True()
	gt.Value(t, input["repositoryId"]).Equal("R_1")
	gt.Value(t, input["title"]).Equal("[default-security-0001] Phishing")
	gt.Value(t, input["labelIds"]).Equal([]any{"L_SEC", "L_HIGH"})

	err = p.Update(ctx, "I_1", model.TicketUpdate{
		Name:   "default-security-0001",
		Title:  "Phishing",
		Status: "Closed",
		Cost:   1200,
		Links:  map[string]string{"document": "https://docs/1"},
	})
	gt.NoError(t, err).Required()

	updates := fake.find("updateIssue")
	gt.Array(t, updates).Length(1).Required()
	upd := updates[0].Variables["input"].(map[string]any)
	gt.Value(t, upd["state"]).Equal("CLOSED")
	gt.String(t, upd["body"].(string)).Contains("| document | https://docs/1 |")
	gt.String(t, upd["body"].(string)).Contains("$1200.00")

	t.Run("repository is queried once", func(t *testing.T) {
		gt.Array(t, fake.find("labels(first: 100)")).Length(1)
	})
}

func TestTaskList(t *testing.T) {
	_, conf, hc := newFakeGitHub(t)
	p, err := github.NewTaskProvider(conf, github.WithHTTPClient(hc))
	gt.NoError(t, err).Required()

	tasks, err := p.List(context.Background(), "default-security-0001")
	gt.NoError(t, err).Required()
	gt.Array(t, tasks).Length(1).Required()
	gt.Value(t, tasks[0].Description).Equal("rotate keys")
	gt.Value(t, tasks[0].Status).Equal(types.TaskStatusResolved)
	gt.Value(t, tasks[0].ResourceID).Equal("I_2")
}

func TestMonitorStatus(t *testing.T) {
	_, conf, hc := newFakeGitHub(t)
	p, err := github.NewMonitorProvider(conf, github.WithHTTPClient(hc))
	gt.NoError(t, err).Required()

	gt.Bool(t, p.Matchers()[0].MatchString("see https://github.com/acme/mail-filter/pull/12")).True()
	gt.Bool(t, p.Matchers()[0].MatchString("https://github.com/other/repo/pull/12")).False()

	status, err := p.Status(context.Background(), "https://github.com/acme/mail-filter/pull/12")
	gt.NoError(t, err).Required()
	gt.Value(t, status.State).Equal("MERGED")
	gt.Value(t, status.Title).Equal("Block sender")
	gt.Value(t, status.Details["number"]).Equal(12)

	_, err = p.Status(context.Background(), "https://example.com/x")
	gt.Value(t, err).NotNil()
}
