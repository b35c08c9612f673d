package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishSubscribe", func(t *testing.T) {
		var mu sync.Mutex
		var received []*domain.Message

		sub, err := bus.Subscribe(ctx, tenantID, domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
			mu.Lock()
			received = append(received, msg)
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		if err := bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, []byte(`{"analysisId":"a-1"}`)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		waitFor(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(received) == 1
		})

		mu.Lock()
		msg := received[0]
		mu.Unlock()

		if msg.TenantID != tenantID {
			t.Errorf("expected tenant %s, got %s", tenantID, msg.TenantID)
		}
		if msg.Topic != domain.TopicAnalysisCompleted {
			t.Errorf("expected topic %s, got %s", domain.TopicAnalysisCompleted, msg.Topic)
		}
		if string(msg.Payload) != `{"analysisId":"a-1"}` {
			t.Errorf("unexpected payload: %s", string(msg.Payload))
		}
		if msg.ID == "" {
			t.Error("expected message to carry an id")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		var mu sync.Mutex
		count := 0

		sub, err := bus.Subscribe(ctx, "tenant-a", domain.TopicRingDetected, func(ctx context.Context, msg *domain.Message) error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		_ = bus.Publish(ctx, "tenant-b", domain.TopicRingDetected, []byte("other"))
		_ = bus.Publish(ctx, "tenant-a", domain.TopicRingDetected, []byte("mine"))

		waitFor(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return count == 1
		})

		// Give the stray message a moment to be (wrongly) delivered.
		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		got := count
		mu.Unlock()
		if got != 1 {
			t.Errorf("expected 1 message, got %d", got)
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var mu sync.Mutex
		counts := make(map[string]int)

		for _, name := range []string{"first", "second"} {
			name := name
			sub, err := bus.Subscribe(ctx, tenantID, "fanout.topic", func(ctx context.Context, msg *domain.Message) error {
				mu.Lock()
				counts[name]++
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Fatalf("Subscribe %s failed: %v", name, err)
			}
			defer sub.Unsubscribe()
		}

		_ = bus.Publish(ctx, tenantID, "fanout.topic", []byte("ping"))

		waitFor(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return counts["first"] == 1 && counts["second"] == 1
		})
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var mu sync.Mutex
		count := 0

		sub, err := bus.Subscribe(ctx, tenantID, "quiet.topic", func(ctx context.Context, msg *domain.Message) error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		if sub.Topic() != "quiet.topic" {
			t.Errorf("expected topic quiet.topic, got %s", sub.Topic())
		}

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("Unsubscribe failed: %v", err)
		}

		// The subscription is detached before Unsubscribe returns, so these
		// publishes must never be delivered.
		for i := 0; i < 10; i++ {
			_ = bus.Publish(ctx, tenantID, "quiet.topic", []byte("after"))
		}
		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		got := count
		mu.Unlock()
		if got != 0 {
			t.Errorf("expected no messages after unsubscribe, got %d", got)
		}

		// Unsubscribing twice is safe.
		if err := sub.Unsubscribe(); err != nil {
			t.Errorf("second Unsubscribe failed: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "topic", []byte("x")); err == nil {
			t.Error("Publish: expected error for empty tenantID")
		}
		if _, err := bus.Subscribe(ctx, "", "topic", nil); err == nil {
			t.Error("Subscribe: expected error for empty tenantID")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestChannelBusRequestReply(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	reqCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	// No responder publishes a reply, so the request should time out via ctx.
	if _, err := bus.Request(reqCtx, tenantID, "echo", []byte("hello")); err == nil {
		t.Error("expected timeout error when nothing replies")
	}
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(10)
	ctx := context.Background()

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := bus.Publish(ctx, "tenant-001", "topic", []byte("x")); err == nil {
		t.Error("expected error publishing to closed bus")
	}
	if _, err := bus.Subscribe(ctx, "tenant-001", "topic", nil); err == nil {
		t.Error("expected error subscribing to closed bus")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping failure on closed bus")
	}

	// Close is idempotent.
	if err := bus.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestNewBusConfig(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unsupported bus type")
	}
}
