package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/rules"
)

func tx(id, sender, receiver string, amount float64, hourOffset int) domain.Transaction {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return domain.Transaction{
		ID:        id,
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Timestamp: base.Add(time.Duration(hourOffset) * time.Hour),
	}
}

func TestRunEmptyInput(t *testing.T) {
	a := New(nil)

	result, err := a.Run(context.Background(), "tenant-001", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.ID == "" {
		t.Error("expected a result id")
	}
	if len(result.SuspiciousAccounts) != 0 {
		t.Errorf("expected no accounts, got %d", len(result.SuspiciousAccounts))
	}
	if len(result.Rings) != 0 {
		t.Errorf("expected no rings, got %d", len(result.Rings))
	}
	if result.Summary.TotalAccounts != 0 || result.Summary.FlaggedAccounts != 0 || result.Summary.RingCount != 0 {
		t.Errorf("expected zero counters, got %+v", result.Summary)
	}
	if result.Summary.ProcessingSeconds < 0 {
		t.Errorf("expected non-negative processing time, got %f", result.Summary.ProcessingSeconds)
	}
}

func TestRunFullPipeline(t *testing.T) {
	var txs []domain.Transaction
	// A triangle cycle
	txs = append(txs,
		tx("c1", "A", "B", 5000, 0),
		tx("c2", "B", "C", 5000, 1),
		tx("c3", "C", "A", 5000, 2),
	)
	// An independent fan-in cluster
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(fmt.Sprintf("f%d", i), fmt.Sprintf("src-%02d", i), "mule", 900, 50+i))
	}

	a := New(nil)
	result, err := a.Run(context.Background(), "tenant-001", txs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.TenantID != "tenant-001" {
		t.Errorf("expected tenant id on result, got %q", result.TenantID)
	}
	if result.Summary.TotalAccounts != 14 {
		t.Errorf("expected 14 total accounts, got %d", result.Summary.TotalAccounts)
	}
	// A, B, C, mule
	if result.Summary.FlaggedAccounts != 4 {
		t.Errorf("expected 4 flagged accounts, got %d", result.Summary.FlaggedAccounts)
	}
	if result.Summary.RingCount != 2 {
		t.Errorf("expected 2 rings, got %d", result.Summary.RingCount)
	}

	// Ranked descending
	for i := 1; i < len(result.SuspiciousAccounts); i++ {
		if result.SuspiciousAccounts[i].Score > result.SuspiciousAccounts[i-1].Score {
			t.Errorf("accounts not sorted by score: %v", result.SuspiciousAccounts)
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	var txs []domain.Transaction
	txs = append(txs,
		tx("c1", "A", "B", 5000, 0),
		tx("c2", "B", "C", 5000, 1),
		tx("c3", "C", "A", 5000, 2),
		tx("c4", "C", "D", 5000, 3),
		tx("c5", "D", "A", 5000, 4),
	)
	for i := 0; i < 12; i++ {
		txs = append(txs, tx(fmt.Sprintf("f%d", i), fmt.Sprintf("src-%02d", i), "mule", 900, 50+i))
	}

	a := New(nil)

	normalize := func(r *domain.AnalysisResult) string {
		// Strip run-specific fields before comparing
		r.ID = ""
		r.CreatedAt = time.Time{}
		r.Summary.ProcessingSeconds = 0
		b, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		return string(b)
	}

	first, err := a.Run(context.Background(), "tenant-001", txs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := normalize(first)

	for i := 0; i < 5; i++ {
		again, err := a.Run(context.Background(), "tenant-001", txs)
		if err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
		if got := normalize(again); got != want {
			t.Fatalf("run %d produced different output:\n%s\nvs\n%s", i, got, want)
		}
	}
}

func TestRunWithCustomRules(t *testing.T) {
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "big-mover-001",
		Name:       "Big Mover",
		Expression: "total_amount > 10000.0",
		Tag:        "big_mover",
		Points:     12,
		Enabled:    true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	a := New(engine)
	result, err := a.Run(context.Background(), "tenant-001", []domain.Transaction{
		tx("c1", "A", "B", 9000, 0),
		tx("c2", "B", "C", 9000, 1),
		tx("c3", "C", "A", 9000, 2),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Each cycle member moves 18000 total: 45 + 12 = 57.
	for _, acct := range result.SuspiciousAccounts {
		if acct.Score != 57 {
			t.Errorf("account %s: expected 57, got %.1f", acct.AccountID, acct.Score)
		}
		found := false
		for _, p := range acct.Patterns {
			if p == "big_mover" {
				found = true
			}
		}
		if !found {
			t.Errorf("account %s: expected big_mover tag, got %v", acct.AccountID, acct.Patterns)
		}
	}
}

func TestRunSingleTransaction(t *testing.T) {
	a := New(nil)
	result, err := a.Run(context.Background(), "tenant-001", []domain.Transaction{
		tx("t1", "A", "B", 100, 0),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Summary.TotalAccounts != 2 {
		t.Errorf("expected 2 accounts, got %d", result.Summary.TotalAccounts)
	}
	if result.Summary.FlaggedAccounts != 0 {
		t.Errorf("expected nothing flagged, got %d", result.Summary.FlaggedAccounts)
	}
}
