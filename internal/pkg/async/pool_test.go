package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/pkg/async"
)

func TestPoolExecute(t *testing.T) {
	pool := async.NewPool(2)

	var running, peak int32
	task := func(name string, value int) async.Task {
		return async.Task{Name: name, Execute: func(ctx context.Context) (interface{}, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return value, nil
		}}
	}

	results := pool.Execute(context.Background(), []async.Task{
		task("a", 1), task("b", 2), task("c", 3), task("d", 4),
	})

	require.Len(t, results, 4)
	assert.Equal(t, 3, results["c"].Data)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPoolReportsErrorsAndPanics(t *testing.T) {
	pool := async.NewPool(3)
	boom := errors.New("boom")

	results := pool.Execute(context.Background(), []async.Task{
		{Name: "ok", Execute: func(ctx context.Context) (interface{}, error) { return "fine", nil }},
		{Name: "err", Execute: func(ctx context.Context) (interface{}, error) { return nil, boom }},
		{Name: "panic", Execute: func(ctx context.Context) (interface{}, error) { panic("oops") }},
	})

	assert.NoError(t, results["ok"].Err)
	assert.ErrorIs(t, results["err"].Err, boom)
	assert.ErrorContains(t, results["panic"].Err, "panicked")

	// The pool is reusable
	again := pool.Execute(context.Background(), []async.Task{
		{Name: "ok", Execute: func(ctx context.Context) (interface{}, error) { return 1, nil }},
	})
	assert.Equal(t, 1, again["ok"].Data)
}

func TestPoolCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := async.NewPool(1).Execute(ctx, []async.Task{
		{Name: "skipped", Execute: func(ctx context.Context) (interface{}, error) { return 1, nil }},
	})
	assert.ErrorIs(t, results["skipped"].Err, context.Canceled)
}
