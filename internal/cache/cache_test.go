package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, tenantID, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, tenantID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, tenantID, "expiring")
		if val == nil {
			t.Fatal("expected value before expiration")
		}

		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, tenantID, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-a", "shared-key", []byte("a-data"), time.Minute)
		_ = cache.Set(ctx, "tenant-b", "shared-key", []byte("b-data"), time.Minute)

		val, _ := cache.Get(ctx, "tenant-a", "shared-key")
		if string(val) != "a-data" {
			t.Errorf("tenant-a got wrong value: %s", string(val))
		}

		val, _ = cache.Get(ctx, "tenant-b", "shared-key")
		if string(val) != "b-data" {
			t.Errorf("tenant-b got wrong value: %s", string(val))
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("Get: expected error for empty tenantID")
		}
		if err := cache.Set(ctx, "", "key", []byte("x"), time.Minute); err == nil {
			t.Error("Set: expected error for empty tenantID")
		}
	})
}

func TestLRUEviction(t *testing.T) {
	cache := NewLRUCache(3)
	ctx := context.Background()
	tenantID := "tenant-001"

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("key-%d", i)
		_ = cache.Set(ctx, tenantID, key, []byte(key), time.Minute)
	}

	// Touch key-0 so key-1 becomes the oldest.
	_, _ = cache.Get(ctx, tenantID, "key-0")

	_ = cache.Set(ctx, tenantID, "key-3", []byte("key-3"), time.Minute)

	val, _ := cache.Get(ctx, tenantID, "key-1")
	if val != nil {
		t.Error("expected key-1 to be evicted")
	}

	for _, key := range []string{"key-0", "key-2", "key-3"} {
		val, _ := cache.Get(ctx, tenantID, key)
		if val == nil {
			t.Errorf("expected %s to survive eviction", key)
		}
	}

	size, capacity := cache.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("expected size=3 capacity=3, got size=%d capacity=%d", size, capacity)
	}
}

func TestAnalysisRoundTrip(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	result := &domain.AnalysisResult{
		ID:        "analysis-001",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		SuspiciousAccounts: []domain.SuspiciousAccount{
			{AccountID: "acct-A", Score: 45.0, Patterns: []string{"cycle_length_3"}, RingID: 1},
		},
		Rings: []domain.FraudRing{
			{ID: 1, PatternType: domain.RingCycle, Members: []string{"acct-A", "acct-B", "acct-C"}, RiskScore: 45.0},
		},
		Summary: domain.Summary{TotalAccounts: 3, FlaggedAccounts: 1, RingCount: 1},
	}

	if err := cache.SetAnalysis(ctx, tenantID, result, time.Minute); err != nil {
		t.Fatalf("SetAnalysis failed: %v", err)
	}

	got, err := cache.GetAnalysis(ctx, tenantID, "analysis-001")
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached analysis, got nil")
	}
	if got.ID != result.ID {
		t.Errorf("expected ID %s, got %s", result.ID, got.ID)
	}
	if len(got.SuspiciousAccounts) != 1 || got.SuspiciousAccounts[0].Score != 45.0 {
		t.Errorf("accounts did not round-trip: %+v", got.SuspiciousAccounts)
	}
	if len(got.Rings) != 1 || got.Rings[0].PatternType != domain.RingCycle {
		t.Errorf("rings did not round-trip: %+v", got.Rings)
	}

	// Miss returns nil, nil.
	got, err = cache.GetAnalysis(ctx, tenantID, "no-such")
	if err != nil {
		t.Fatalf("GetAnalysis miss failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for miss, got %+v", got)
	}
}

func TestIncrementCounter(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Increments", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			got, err := cache.IncrementCounter(ctx, tenantID, "batches", time.Minute)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected count %d, got %d", want, got)
			}
		}
	})

	t.Run("WindowReset", func(t *testing.T) {
		_, _ = cache.IncrementCounter(ctx, tenantID, "short", 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)

		got, err := cache.IncrementCounter(ctx, tenantID, "short", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != 1 {
			t.Errorf("expected window reset to 1, got %d", got)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		a, _ := cache.IncrementCounter(ctx, "tenant-a", "shared", time.Minute)
		b, _ := cache.IncrementCounter(ctx, "tenant-b", "shared", time.Minute)
		if a != 1 || b != 1 {
			t.Errorf("counters leaked across tenants: a=%d b=%d", a, b)
		}
	})
}
