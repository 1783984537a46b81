package workers_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benedict-anokye-davies/brain/internal/workers"
	"go.uber.org/zap"
)

func testConfig(name string) *workers.PoolConfig {
	cfg := workers.DefaultPoolConfig(name)
	cfg.NumWorkers = 2
	cfg.QueueSize = 4
	cfg.TaskTimeout = 200 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestSubmitFuncRunsOnWorker(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), testConfig("test"))
	pool.Start()
	defer pool.Stop()

	done := make(chan struct{})
	if err := pool.SubmitFunc(func() error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("task never ran")
	}
}

func TestSubmitBeforeStartIsRejected(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), testConfig("test"))
	if err := pool.SubmitFunc(func() error { return nil }); !errors.Is(err, workers.ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped, got %v", err)
	}
}

func TestSubmitAfterStopIsRejected(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), testConfig("test"))
	pool.Start()
	if err := pool.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := pool.SubmitFunc(func() error { return nil }); !errors.Is(err, workers.ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped after stop, got %v", err)
	}
}

func TestQueueFullReturnsError(t *testing.T) {
	cfg := testConfig("test")
	cfg.NumWorkers = 1
	cfg.QueueSize = 1
	pool := workers.NewPool(zap.NewNop(), cfg)
	pool.Start()
	defer pool.Stop()

	block := make(chan struct{})
	if err := pool.SubmitFunc(func() error { <-block; return nil }); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	var rejected int32
	for i := 0; i < 10; i++ {
		if err := pool.SubmitFunc(func() error { return nil }); errors.Is(err, workers.ErrQueueFull) {
			atomic.AddInt32(&rejected, 1)
		}
	}
	close(block)
	if atomic.LoadInt32(&rejected) == 0 {
		t.Fatalf("expected at least one submission to be rejected with a full queue")
	}
}

func TestPoolRecoversFromTaskPanic(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), testConfig("test"))
	pool.Start()
	defer pool.Stop()

	if err := pool.SubmitFunc(func() error { panic("boom") }); err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := make(chan struct{})
	if err := pool.SubmitFunc(func() error { close(done); return nil }); err != nil {
		t.Fatalf("submit after panic: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("pool did not survive a panicking task")
	}
	if pool.Stats().PanicRecovered == 0 {
		t.Fatalf("expected PanicRecovered to be incremented")
	}
}
