package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/schoolops/caseflow/internal/domain/event"
)

func observedDispatcher() (Dispatcher, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return NewDispatcher(WithLogger(zap.New(core))), logs
}

func newTestEvent() *event.Event {
	return event.NewEvent(event.TypeTransitionAccepted, "case-1", "student_enrollment",
		map[string]interface{}{"action": "review"})
}

func TestSubscribe(t *testing.T) {
	t.Run("subscribes handler with auto-generated name", func(t *testing.T) {
		d := NewDispatcher()
		called := false

		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		if err := d.Dispatch(context.Background(), newTestEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if !called {
			t.Error("expected handler to be called")
		}
	})

	t.Run("subscribes multiple handlers to same event type", func(t *testing.T) {
		d := NewDispatcher()
		called1, called2 := false, false

		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			called1 = true
			return nil
		})
		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			called2 = true
			return nil
		})

		if err := d.Dispatch(context.Background(), newTestEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if !called1 || !called2 {
			t.Error("expected both handlers to be called")
		}
	})

	t.Run("only matching event type is delivered", func(t *testing.T) {
		d := NewDispatcher()
		called := false

		d.Subscribe(event.TypeSLABreached, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		if err := d.Dispatch(context.Background(), newTestEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if called {
			t.Error("expected handler for other event type not to be called")
		}
	})
}

func TestSubscribeNamed(t *testing.T) {
	d, logs := observedDispatcher()

	d.SubscribeNamed(event.TypeTransitionAccepted, "test-handler", func(ctx context.Context, evt *event.Event) error {
		return nil
	})

	if logs.FilterMessage("Handler registered").Len() == 0 {
		t.Error("expected registration to be logged")
	}
}

func TestDispatch(t *testing.T) {
	t.Run("dispatches to all handlers in order", func(t *testing.T) {
		d := NewDispatcher()
		var order []int

		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			order = append(order, 1)
			return nil
		})
		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			order = append(order, 2)
			return nil
		})

		if err := d.Dispatch(context.Background(), newTestEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Errorf("expected handlers to run in order [1, 2], got %v", order)
		}
	})

	t.Run("returns first error encountered", func(t *testing.T) {
		d := NewDispatcher()
		expectedErr := errors.New("handler error")
		called := false

		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			return expectedErr
		})
		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		err := d.Dispatch(context.Background(), newTestEvent())
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error to wrap %v, got %v", expectedErr, err)
		}
		if called {
			t.Error("expected second handler not to be called after first error")
		}
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		d, logs := observedDispatcher()

		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			panic("test panic")
		})

		if err := d.Dispatch(context.Background(), newTestEvent()); err == nil {
			t.Fatal("expected error from panic recovery")
		}
		if logs.FilterMessage("Handler error").Len() == 0 {
			t.Error("expected panic to be logged as error")
		}
	})

	t.Run("rejects events of unknown type", func(t *testing.T) {
		d := NewDispatcher()
		called := false
		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		bogus := event.NewEvent(event.Type("workflow.bogus"), "case-1", "student_enrollment", nil)
		if err := d.Dispatch(context.Background(), bogus); err == nil {
			t.Fatal("expected error for unknown event type")
		}
		if called {
			t.Error("expected no handler calls for unknown event type")
		}
	})

	t.Run("returns error when dispatcher is closed", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if err := d.Dispatch(context.Background(), newTestEvent()); err == nil {
			t.Fatal("expected error when dispatching to closed dispatcher")
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("runs handlers without blocking the caller", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			called.Add(1)
			return nil
		})
		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			called.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), newTestEvent())

		if called.Load() > 0 {
			t.Error("expected handlers not to have completed yet")
		}

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if called.Load() != 2 {
			t.Errorf("expected 2 handler calls, got %d", called.Load())
		}
	})

	t.Run("handler errors do not stop other handlers", func(t *testing.T) {
		d, logs := observedDispatcher()
		var called atomic.Int32

		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			return errors.New("handler error")
		})
		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), newTestEvent())

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if called.Load() != 1 {
			t.Errorf("expected second handler to be called, got %d calls", called.Load())
		}
		if logs.FilterMessage("Async handler error").Len() == 0 {
			t.Error("expected error to be logged")
		}
	})

	t.Run("drops events of unknown type", func(t *testing.T) {
		d, logs := observedDispatcher()
		var called atomic.Int32
		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		bogus := event.NewEvent(event.Type("workflow.bogus"), "case-1", "student_enrollment", nil)
		d.DispatchAsync(context.Background(), bogus)

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if called.Load() > 0 {
			t.Error("expected no handler calls for unknown event type")
		}
		if logs.FilterMessage("Dropping event of unknown type").Len() == 0 {
			t.Error("expected dropped event to be logged")
		}
	})

	t.Run("does not dispatch after close", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		d.DispatchAsync(context.Background(), newTestEvent())
		time.Sleep(50 * time.Millisecond)

		if called.Load() > 0 {
			t.Error("expected no handler calls after close")
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("waits for async handlers to complete", func(t *testing.T) {
		d := NewDispatcher()
		var completed atomic.Bool

		d.Subscribe(event.TypeTransitionAccepted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(50 * time.Millisecond)
			completed.Store(true)
			return nil
		})

		d.DispatchAsync(context.Background(), newTestEvent())

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if !completed.Load() {
			t.Error("expected async handler to complete before Close returns")
		}
	})

	t.Run("returns error on double close", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("first close failed: %v", err)
		}
		if err := d.Close(); err == nil {
			t.Fatal("expected error on second close")
		}
	})
}

func TestConcurrentSubscribeAndDispatch(t *testing.T) {
	d := NewDispatcher()
	var called atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.SubscribeNamed(event.TypeTransitionAccepted, fmt.Sprintf("handler-%d", id),
				func(ctx context.Context, evt *event.Event) error {
					called.Add(1)
					return nil
				})
		}(i)
	}
	wg.Wait()

	if err := d.Dispatch(context.Background(), newTestEvent()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if called.Load() != 10 {
		t.Errorf("expected 10 handler calls, got %d", called.Load())
	}
}
