package pagerduty_test

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
	"github.com/Netflix/dispatch-sub000/pkg/service/pagerduty"
)

type fakePagerDuty struct {
	mu      sync.Mutex
	queries []string
	posted  []map[string]any
	from    []string
}

func newFakePagerDuty(t *testing.T) (*fakePagerDuty, *pagerduty.Client) {
	t.Helper()
	f := &fakePagerDuty{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.URL.Path == "/services/PSVC1":
			gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
				"service": map[string]any{"id": "PSVC1", "escalation_policy": map[string]any{"id": "PEP1"}},
			}))
		case r.URL.Path == "/services/PMISSING":
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"code":2100,"message":"Not Found"}}`)
		case r.URL.Path == "/oncalls":
			f.queries = append(f.queries, r.URL.RawQuery)
			gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{"oncalls": []any{
				map[string]any{"escalation_level": 2, "user": map[string]any{"id": "PU2", "email": "manager@example.com"}},
				map[string]any{"escalation_level": 1, "user": map[string]any{"id": "PU1"}},
			}}))
		case r.URL.Path == "/users/PU1":
			gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
				"user": map[string]any{"id": "PU1", "email": "Alice@example.com"},
			}))
		case r.URL.Path == "/incidents" && r.Method == http.MethodPost:
			var body map[string]any
			gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.posted = append(f.posted, body)
			f.from = append(f.from, r.Header.Get("From"))
			w.WriteHeader(http.StatusCreated)
			gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{"incident": map[string]any{"id": "PINC1"}}))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"code":2100,"message":"Not Found"}}`)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := pagerduty.New(pagerduty.Config{APIKey: "pd-test", FromEmail: "dispatch@example.com", APIEndpoint: srv.URL})
	gt.NoError(t, err).Required()
	return f, c
}

func TestResolveOncall(t *testing.T) {
	fake, c := newFakePagerDuty(t)

	email, err := c.ResolveOncall(context.Background(), "PSVC1")
	gt.NoError(t, err).Required()
	gt.Value(t, email).Equal("alice@example.com")

	gt.Array(t, fake.queries).Length(1).Required()
	gt.String(t, fake.queries[0]).Contains("PEP1")

	t.Run("unknown service is a not found provider error", func(t *testing.T) {
		_, err := c.ResolveOncall(context.Background(), "PMISSING")
		gt.Value(t, model.ProviderErrorKindOf(err)).Equal(model.ProviderErrorNotFound)
	})
}

func TestPage(t *testing.T) {
	fake, c := newFakePagerDuty(t)

	err := c.Page(context.Background(), "PSVC1", model.PageRequest{
		Title:       "default-security-0001: Phishing",
		Description: "Credential phishing campaign",
		Weblink:     "https://dispatch.example.com/incidents/default-security-0001",
		DedupKey:    "default-security-0001",
	})
	gt.NoError(t, err).Required()

	gt.Array(t, fake.posted).Length(1).Required()
	gt.Value(t, fake.from[0]).Equal("dispatch@example.com")
	incident := fake.posted[0]["incident"].(map[string]any)
	gt.Value(t, incident["incident_key"]).Equal("default-security-0001")
	gt.Value(t, incident["service"].(map[string]any)["id"]).Equal("PSVC1")
	details := incident["body"].(map[string]any)["details"].(string)
	gt.Bool(t, strings.HasSuffix(details, "/incidents/default-security-0001")).True()
}

func TestNew(t *testing.T) {
	_, err := pagerduty.New(pagerduty.Config{FromEmail: "x@example.com"})
	gt.Value(t, err).NotNil()
	_, err = pagerduty.New(pagerduty.Config{APIKey: "k"})
	gt.Value(t, err).NotNil()
}
