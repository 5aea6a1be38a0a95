package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/utils/async"
)

func TestDispatchRecoversPanic(t *testing.T) {
	done := make(chan struct{})
	async.Dispatch(context.Background(), func(ctx context.Context) error {
		defer close(done)
		panic("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := async.NewPool(2)
	var running, peak, total atomic.Int32

	for i := 0; i < 10; i++ {
		pool.Submit(context.Background(), func(ctx context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			total.Add(1)
			if n%2 == 0 {
				return errors.New("ignored")
			}
			return nil
		})
	}
	pool.Wait()

	gt.Number(t, total.Load()).Equal(int32(10))
	gt.Bool(t, peak.Load() <= 2).True()
}
