package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProviderPrometheus enables the Prometheus recorder in METRIC_PROVIDERS
const ProviderPrometheus = "prometheus"

const namespace = "dispatch"

// Recorder receives flow engine measurements
type Recorder interface {
	SubjectTransition(kind, from, to string)
	ProviderCall(plugin, operation string, err error, elapsed time.Duration)
	SignalInstance(action string)
	JobRun(job string, err error, elapsed time.Duration)
	ChatRequest(kind string, elapsed time.Duration)
	// Handler serves the exposition endpoint, or nil when nothing is exported
	Handler() http.Handler
}

// New creates the recorder for a comma separated METRIC_PROVIDERS value.
// Without a known provider, measurements are discarded.
func New(providers string) (Recorder, error) {
	for _, p := range strings.Split(providers, ",") {
		switch strings.TrimSpace(p) {
		case "":
		case ProviderPrometheus:
			return NewPrometheus(prometheus.NewRegistry()), nil
		default:
			return nil, goerr.New("unknown metric provider", goerr.V("provider", p))
		}
	}
	return Nop{}, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Prometheus records measurements into a registry
type Prometheus struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	providerCalls *prometheus.HistogramVec
	signals       *prometheus.CounterVec
	jobs          *prometheus.HistogramVec
	chatRequests  *prometheus.HistogramVec
}

// NewPrometheus registers the collectors on registry
func NewPrometheus(registry *prometheus.Registry) *Prometheus {
	p := &Prometheus{
		registry: registry,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Subject status transitions",
		}, []string{"kind", "from", "to"}),
		providerCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Duration of provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"plugin", "operation", "outcome"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "instances_total",
			Help:      "Signal instances by filter outcome",
		}, []string{"action"}),
		jobs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}, []string{"job", "outcome"}),
		chatRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "ack_duration_seconds",
			Help:      "Time to acknowledge chat requests",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}, []string{"kind"}),
	}
	registry.MustRegister(
		p.transitions, p.providerCalls, p.signals, p.jobs, p.chatRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) SubjectTransition(kind, from, to string) {
	p.transitions.WithLabelValues(kind, from, to).Inc()
}

func (p *Prometheus) ProviderCall(plugin, operation string, err error, elapsed time.Duration) {
	p.providerCalls.WithLabelValues(plugin, operation, outcome(err)).Observe(elapsed.Seconds())
}

func (p *Prometheus) SignalInstance(action string) {
	p.signals.WithLabelValues(action).Inc()
}

func (p *Prometheus) JobRun(job string, err error, elapsed time.Duration) {
	p.jobs.WithLabelValues(job, outcome(err)).Observe(elapsed.Seconds())
}

func (p *Prometheus) ChatRequest(kind string, elapsed time.Duration) {
	p.chatRequests.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Nop discards measurements
type Nop struct{}

func (Nop) SubjectTransition(string, string, string)          {}
func (Nop) ProviderCall(string, string, error, time.Duration) {}
func (Nop) SignalInstance(string)                             {}
func (Nop) JobRun(string, error, time.Duration)               {}
func (Nop) ChatRequest(string, time.Duration)                 {}
func (Nop) Handler() http.Handler                             { return nil }
