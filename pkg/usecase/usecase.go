package usecase

import (
	"context"
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/service/llm"
	"github.com/Netflix/dispatch-sub000/pkg/service/metrics"
	"github.com/Netflix/dispatch-sub000/pkg/utils/async"
	"github.com/Netflix/dispatch-sub000/pkg/utils/errutil"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// DefaultReadInCacheDuration is how long a generated read-in summary is reused
const DefaultReadInCacheDuration = 15 * time.Minute

// DefaultWorkerPoolSize bounds concurrently running background tasks
const DefaultWorkerPoolSize = 16

// UseCases coordinates subjects, their resources and participants on top of
// the repository and the providers configured for each project.
type UseCases struct {
	repo     interfaces.Repository
	registry interfaces.PluginRegistry
	orgs     *model.OrganizationRegistry

	metrics   metrics.Recorder
	pool      *async.Pool
	inline    bool
	now       func() time.Time
	tokenizer func(model string) (llm.Tokenizer, error)

	readInCacheDuration time.Duration
	uiURL               string
	annualEmployeeCost  float64
	businessYearHours   float64
}

type Option func(*UseCases)

// WithMetrics records transitions and provider calls
func WithMetrics(r metrics.Recorder) Option {
	return func(uc *UseCases) {
		uc.metrics = r
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

// WithTokenizer replaces the tiktoken lookup used for prompt budgeting
func WithTokenizer(fn func(model string) (llm.Tokenizer, error)) Option {
	return func(uc *UseCases) {
		uc.tokenizer = fn
	}
}

// WithReadInCacheDuration sets how long read-in summaries are reused
func WithReadInCacheDuration(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.readInCacheDuration = d
	}
}

// WithUIURL sets the base URL of the web UI used in links
func WithUIURL(url string) Option {
	return func(uc *UseCases) {
		uc.uiURL = url
	}
}

// WithCostModel sets the organization wide cost defaults used when a project
// leaves them unset
func WithCostModel(annualEmployeeCost, businessYearHours float64) Option {
	return func(uc *UseCases) {
		uc.annualEmployeeCost = annualEmployeeCost
		uc.businessYearHours = businessYearHours
	}
}

// WithWorkerPoolSize bounds background tasks
func WithWorkerPoolSize(n int) Option {
	return func(uc *UseCases) {
		uc.pool = async.NewPool(n)
	}
}

// WithInlineTasks runs background tasks synchronously in the caller
func WithInlineTasks() Option {
	return func(uc *UseCases) {
		uc.inline = true
	}
}

func New(repo interfaces.Repository, registry interfaces.PluginRegistry, orgs *model.OrganizationRegistry, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:                repo,
		registry:            registry,
		orgs:                orgs,
		metrics:             metrics.Nop{},
		pool:                async.NewPool(DefaultWorkerPoolSize),
		now:                 func() time.Time { return time.Now().UTC() },
		tokenizer:           llm.TokenizerFor,
		readInCacheDuration: DefaultReadInCacheDuration,
		annualEmployeeCost:  model.DefaultAnnualEmployeeCost,
		businessYearHours:   model.DefaultBusinessYearHours,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Repository returns the underlying repository
func (uc *UseCases) Repository() interfaces.Repository {
	return uc.repo
}

// Organizations returns the organization registry
func (uc *UseCases) Organizations() *model.OrganizationRegistry {
	return uc.orgs
}

// Wait blocks until submitted background tasks finished
func (uc *UseCases) Wait() {
	uc.pool.Wait()
}

// background runs fn after the caller returned. Errors are logged with a
// correlation id and never returned.
func (uc *UseCases) background(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx = logging.WithAttrs(ctx, "task", name)
	if uc.inline {
		defer func() {
			if r := recover(); r != nil {
				logging.From(ctx).Error("panic in background task", "panic", r)
			}
		}()
		if err := fn(ctx); err != nil {
			errutil.Handle(ctx, err, "background task failed")
		}
		return
	}
	uc.pool.Submit(ctx, fn)
}
