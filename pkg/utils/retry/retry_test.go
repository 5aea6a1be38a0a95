package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/utils/retry"
)

var fast = retry.Policy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxAttempts:     retry.MaxAttempts,
}

func TestTransientIsRetriedUpToCap(t *testing.T) {
	calls := 0
	_, err := retry.DoWith(context.Background(), fast, "create", func() (string, error) {
		calls++
		return "", model.NewProviderError("slack", model.ProviderErrorTransient, errors.New("503"))
	})
	gt.Error(t, err)
	gt.Number(t, calls).Equal(5)
	gt.Value(t, model.ProviderErrorKindOf(err)).Equal(model.ProviderErrorTransient)
}

func TestTransientThenSuccess(t *testing.T) {
	calls := 0
	v, err := retry.DoWith(context.Background(), fast, "create", func() (int, error) {
		calls++
		if calls < 3 {
			return 0, model.NewProviderError("slack", model.ProviderErrorTransient, errors.New("timeout"))
		}
		return 42, nil
	})
	gt.NoError(t, err).Required()
	gt.Number(t, v).Equal(42)
	gt.Number(t, calls).Equal(3)
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	for _, kind := range []model.ProviderErrorKind{model.ProviderErrorAuth, model.ProviderErrorNotFound, model.ProviderErrorFatal} {
		calls := 0
		_, err := retry.DoWith(context.Background(), fast, "op", func() (string, error) {
			calls++
			return "", model.NewProviderError("notion", kind, errors.New("nope"))
		})
		gt.Error(t, err)
		gt.Number(t, calls).Equal(1)
	}

	calls := 0
	plain := errors.New("plain")
	err := retry.Exec(context.Background(), "op", func() error {
		calls++
		return plain
	})
	gt.Error(t, err).Is(plain)
	gt.Number(t, calls).Equal(1)
}

func TestRateLimitedWaitsForHint(t *testing.T) {
	calls := 0
	started := time.Now()
	_, err := retry.DoWith(context.Background(), fast, "op", func() (string, error) {
		calls++
		if calls == 1 {
			return "", &model.ProviderError{Kind: model.ProviderErrorRateLimited, Provider: "slack", RetryAfter: 20 * time.Millisecond}
		}
		return "ok", nil
	})
	gt.NoError(t, err).Required()
	gt.Number(t, calls).Equal(2)
	gt.Bool(t, time.Since(started) >= 20*time.Millisecond).True()
}
