package graph

import (
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
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

func TestBuildEmpty(t *testing.T) {
	g := Build(nil)

	if len(g.Nodes) != 0 {
		t.Errorf("expected 0 nodes, got %d", len(g.Nodes))
	}
	if len(g.AccountIDs()) != 0 {
		t.Errorf("expected no account ids, got %v", g.AccountIDs())
	}
}

func TestBuildNodesAndEdges(t *testing.T) {
	g := Build([]domain.Transaction{
		tx("t1", "A", "B", 100, 0),
		tx("t2", "A", "B", 200, 1),
		tx("t3", "B", "C", 300, 2),
	})

	if len(g.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(g.Nodes))
	}

	a := g.Nodes["A"]
	if a.Outgoing["B"] != 2 {
		t.Errorf("expected A->B multiplicity 2, got %d", a.Outgoing["B"])
	}
	if a.TotalTxCount != 2 {
		t.Errorf("expected A total count 2, got %d", a.TotalTxCount)
	}
	if len(a.Sent) != 2 {
		t.Errorf("expected 2 sent transactions for A, got %d", len(a.Sent))
	}

	b := g.Nodes["B"]
	if b.Incoming["A"] != 2 {
		t.Errorf("expected B incoming from A = 2, got %d", b.Incoming["A"])
	}
	// B received twice and sent once
	if b.TotalTxCount != 3 {
		t.Errorf("expected B total count 3, got %d", b.TotalTxCount)
	}

	c := g.Nodes["C"]
	if c.TotalTxCount != 1 {
		t.Errorf("expected C total count 1, got %d", c.TotalTxCount)
	}
}

func TestAccountIDsSorted(t *testing.T) {
	g := Build([]domain.Transaction{
		tx("t1", "zeta", "alpha", 10, 0),
		tx("t2", "mike", "alpha", 10, 1),
	})

	ids := g.AccountIDs()
	want := []string{"alpha", "mike", "zeta"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], ids[i])
		}
	}
}

func TestSuccessorsSorted(t *testing.T) {
	g := Build([]domain.Transaction{
		tx("t1", "A", "zeta", 10, 0),
		tx("t2", "A", "beta", 10, 1),
		tx("t3", "A", "mike", 10, 2),
	})

	succ := g.Successors("A")
	want := []string{"beta", "mike", "zeta"}
	for i := range want {
		if succ[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], succ[i])
		}
	}

	if got := g.Successors("unknown"); got != nil {
		t.Errorf("expected nil successors for unknown account, got %v", got)
	}
}
