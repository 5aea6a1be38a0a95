package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// MaxAttempts caps provider call attempts
const MaxAttempts = 5

// Policy configures retries of provider calls
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     uint
}

// DefaultPolicy is used by Do
var DefaultPolicy = Policy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
	MaxAttempts:     MaxAttempts,
}

// Do runs op with DefaultPolicy
func Do[T any](ctx context.Context, name string, op func() (T, error)) (T, error) {
	return DoWith(ctx, DefaultPolicy, name, op)
}

// Exec runs an operation without result with DefaultPolicy
func Exec(ctx context.Context, name string, op func() error) error {
	_, err := Do(ctx, name, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// DoWith retries op while it fails with a transient provider error. Rate
// limited errors wait for the provider's hint; every other error is returned
// immediately.
func DoWith[T any](ctx context.Context, p Policy, name string, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	var lastErr error
	res, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		lastErr = err

		var pe *model.ProviderError
		if !errors.As(err, &pe) {
			return v, backoff.Permanent(err)
		}
		switch pe.Kind {
		case model.ProviderErrorTransient:
			return v, err
		case model.ProviderErrorRateLimited:
			if pe.RetryAfter > 0 {
				return v, &backoff.RetryAfterError{Duration: pe.RetryAfter}
			}
			return v, err
		default:
			return v, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.From(ctx).Warn("retrying provider call",
				"operation", name,
				"error", lastErr,
				"next", next,
			)
		}),
	)
	if err != nil {
		var ra *backoff.RetryAfterError
		if errors.As(err, &ra) && lastErr != nil {
			return res, lastErr
		}
		return res, err
	}
	return res, nil
}
