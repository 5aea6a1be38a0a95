package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Netflix/dispatch-sub000/pkg/service/metrics"
)

func TestNew(t *testing.T) {
	r, err := metrics.New("")
	gt.NoError(t, err).Required()
	gt.Value(t, r.Handler()).Nil()

	r, err = metrics.New("datadog")
	gt.Value(t, err).NotNil()
	gt.Value(t, r).Nil()

	r, err = metrics.New(" prometheus ")
	gt.NoError(t, err).Required()
	gt.Value(t, r.Handler()).NotNil()
}

func TestPrometheusExposition(t *testing.T) {
	p := metrics.NewPrometheus(prometheus.NewRegistry())
	p.SubjectTransition("incident", "active", "stable")
	p.SubjectTransition("incident", "active", "stable")
	p.ProviderCall("slack-conversation", "create_conversation", nil, 120*time.Millisecond)
	p.ProviderCall("notion-document", "create", errors.New("boom"), time.Second)
	p.SignalInstance("snooze")
	p.JobRun("incident-cost-recompute", nil, time.Second)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	gt.NoError(t, err).Required()

	gt.String(t, string(body)).Contains(`dispatch_lifecycle_transitions_total{from="active",kind="incident",to="stable"} 2`)
	gt.String(t, string(body)).Contains(`dispatch_provider_call_duration_seconds_count{operation="create",outcome="error",plugin="notion-document"} 1`)
	gt.String(t, string(body)).Contains(`dispatch_signal_instances_total{action="snooze"} 1`)
	gt.String(t, string(body)).Contains(`dispatch_scheduler_job_duration_seconds_count{job="incident-cost-recompute",outcome="success"} 1`)
}
