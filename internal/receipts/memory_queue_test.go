package receipts

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryQueueDeliversToHandler(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queue := NewMemoryQueue(8)
	var handled atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(ctx, 2, func(context.Context, string) error {
			handled.Add(1)
			return nil
		})
	}()

	for _, id := range []string{"a", "b", "c"} {
		if err := queue.Publish(ctx, id); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	for handled.Load() < 3 {
		select {
		case <-ctx.Done():
			t.Fatalf("handled only %d entries", handled.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected closed queue to stop consumers, got %v", err)
	}
	if err := queue.Publish(context.Background(), "d"); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected publish after close to fail, got %v", err)
	}
}

func TestMemoryQueuePublishDoesNotBlockWhenFull(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Publish(context.Background(), "first"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- queue.Publish(context.Background(), "second") }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("expected full queue error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full queue")
	}
	if queue.Len() != 1 {
		t.Fatalf("expected 1 queued entry, got %d", queue.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := queue.Publish(ctx, "third"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled publish to fail, got %v", err)
	}
}

func TestBrokerQueuesRequireEndpoint(t *testing.T) {
	if _, err := NewRedisQueue(context.Background(), RedisQueueConfig{}); err == nil {
		t.Fatal("expected empty redis address to fail")
	}
	if _, err := NewRabbitMQQueue(RabbitMQConfig{}); err == nil {
		t.Fatal("expected empty rabbitmq url to fail")
	}
}
