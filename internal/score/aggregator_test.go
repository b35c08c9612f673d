package score

import (
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/detect"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
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

func findAccount(accounts []domain.SuspiciousAccount, id string) *domain.SuspiciousAccount {
	for i := range accounts {
		if accounts[i].AccountID == id {
			return &accounts[i]
		}
	}
	return nil
}

func hasPattern(acct *domain.SuspiciousAccount, tag string) bool {
	for _, p := range acct.Patterns {
		if p == tag {
			return true
		}
	}
	return false
}

// run pushes a transaction set through the full detect+score pipeline.
func run(t *testing.T, transactions []domain.Transaction) ([]domain.SuspiciousAccount, []domain.FraudRing) {
	t.Helper()
	g := graph.Build(transactions)
	agg := Aggregate(g, detect.Cycles(g), detect.Smurfing(g), detect.ShellChains(g))
	return agg.Finalize()
}

func TestTriangleCycleScoring(t *testing.T) {
	// Three accounts passing money in a loop, nothing else.
	accounts, rings := run(t, []domain.Transaction{
		tx("t1", "A", "B", 5000, 0),
		tx("t2", "B", "C", 5000, 1),
		tx("t3", "C", "A", 5000, 2),
	})

	if len(accounts) != 3 {
		t.Fatalf("expected 3 flagged accounts, got %d", len(accounts))
	}
	for _, id := range []string{"A", "B", "C"} {
		acct := findAccount(accounts, id)
		if acct == nil {
			t.Fatalf("account %s not flagged", id)
		}
		if acct.Score != 45 {
			t.Errorf("account %s: expected score 45, got %.1f", id, acct.Score)
		}
		if !hasPattern(acct, "cycle_length_3") {
			t.Errorf("account %s: expected cycle_length_3 tag, got %v", id, acct.Patterns)
		}
		if acct.RingID != 1 {
			t.Errorf("account %s: expected ring 1, got %d", id, acct.RingID)
		}
	}

	if len(rings) != 1 {
		t.Fatalf("expected 1 ring, got %d", len(rings))
	}
	if rings[0].PatternType != domain.RingCycle {
		t.Errorf("expected ring type cycle, got %s", rings[0].PatternType)
	}
	// All members score 45: risk = 0.6*45 + 0.4*45 = 45.
	if rings[0].RiskScore != 45 {
		t.Errorf("expected ring risk 45, got %.1f", rings[0].RiskScore)
	}
}

func TestFanInScoring(t *testing.T) {
	var txs []domain.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(fmt.Sprintf("t%d", i), fmt.Sprintf("src-%02d", i), "R", 900, i))
	}
	accounts, rings := run(t, txs)

	r := findAccount(accounts, "R")
	if r == nil {
		t.Fatal("expected R flagged")
	}
	if r.Score < 30 {
		t.Errorf("expected R score >= 30, got %.1f", r.Score)
	}
	if !hasPattern(r, domain.PatternFanInSmurfing) {
		t.Errorf("expected smurfing_fan_in tag, got %v", r.Patterns)
	}

	if len(rings) != 1 || rings[0].PatternType != domain.RingFanIn {
		t.Fatalf("expected one smurfing_fan_in ring, got %v", rings)
	}
	found := false
	for _, m := range rings[0].Members {
		if m == "R" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected R among ring members, got %v", rings[0].Members)
	}
}

func TestShellChainScoring(t *testing.T) {
	// B and C have exactly two transactions each; A and D are busy.
	var txs []domain.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(fmt.Sprintf("na%d", i), "A", fmt.Sprintf("noise-a-%d", i), 50, i*30))
		txs = append(txs, tx(fmt.Sprintf("nd%d", i), "D", fmt.Sprintf("noise-d-%d", i), 50, i*30))
	}
	txs = append(txs,
		tx("c1", "A", "B", 20000, 400),
		tx("c2", "B", "C", 19900, 401),
		tx("c3", "C", "D", 19800, 402),
	)
	accounts, _ := run(t, txs)

	for _, id := range []string{"B", "C"} {
		acct := findAccount(accounts, id)
		if acct == nil {
			t.Fatalf("intermediate %s not flagged", id)
		}
		if acct.Score != 35 {
			t.Errorf("intermediate %s: expected score 35, got %.1f", id, acct.Score)
		}
		if !hasPattern(acct, domain.PatternShellIntermediary) {
			t.Errorf("intermediate %s: expected shell_intermediary tag, got %v", id, acct.Patterns)
		}
	}
	for _, id := range []string{"A", "D"} {
		acct := findAccount(accounts, id)
		if acct == nil {
			t.Fatalf("endpoint %s not flagged", id)
		}
		if acct.Score != 20 {
			t.Errorf("endpoint %s: expected score 20, got %.1f", id, acct.Score)
		}
		if !hasPattern(acct, domain.PatternShellEndpoint) {
			t.Errorf("endpoint %s: expected shell_chain tag, got %v", id, acct.Patterns)
		}
	}
}

func TestMerchantSuppressed(t *testing.T) {
	// 25 transactions evenly spread across 40 days, no structural pattern,
	// but dense enough some days to collect the velocity tag.
	var txs []domain.Transaction
	for i := 0; i < 25; i++ {
		txs = append(txs, tx(fmt.Sprintf("m%d", i), fmt.Sprintf("cust-%02d", i%9), "shop", 40, i*38))
	}
	// Give the merchant a velocity burst so it accrues a score at all.
	for i := 0; i < 5; i++ {
		txs = append(txs, tx(fmt.Sprintf("b%d", i), fmt.Sprintf("cust-%02d", i), "shop", 40, 960+i))
	}
	accounts, _ := run(t, txs)

	if acct := findAccount(accounts, "shop"); acct != nil {
		t.Errorf("expected merchant-like account suppressed, got %+v", acct)
	}
}

func TestStructuralTagOverridesSuppression(t *testing.T) {
	// A cycle member with heavy month-long volume stays in the output.
	var txs []domain.Transaction
	for i := 0; i < 30; i++ {
		txs = append(txs, tx(fmt.Sprintf("m%d", i), fmt.Sprintf("cust-%02d", i), "A", 40, i*30))
	}
	txs = append(txs,
		tx("c1", "A", "B", 5000, 900),
		tx("c2", "B", "C", 5000, 901),
		tx("c3", "C", "A", 5000, 902),
	)
	accounts, _ := run(t, txs)

	if acct := findAccount(accounts, "A"); acct == nil {
		t.Error("expected cycle member retained despite merchant-like volume")
	}
}

func TestMultiPatternBonus(t *testing.T) {
	// A is in a cycle and also fans out to 10 receivers in a tight window:
	// 45 + 30 + 15 = 90.
	var txs []domain.Transaction
	txs = append(txs,
		tx("c1", "A", "B", 5000, 0),
		tx("c2", "B", "C", 5000, 1),
		tx("c3", "C", "A", 5000, 2),
	)
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(fmt.Sprintf("f%d", i), "A", fmt.Sprintf("dst-%02d", i), 900, 200+i))
	}
	accounts, _ := run(t, txs)

	acct := findAccount(accounts, "A")
	if acct == nil {
		t.Fatal("expected A flagged")
	}
	// 45 (cycle) + 30 (fan-out) + 15 (multi-pattern); A has 13 transactions
	// but only 10 inside any 24h window boundary: the fan-out burst plus the
	// cycle hop all land within the first day? No: cycle txs are at hours
	// 0-2, the burst at 200-209, so the densest window holds 10.
	if acct.Score != 100 {
		// 45+30+15 = 90, plus velocity 10 if a 24h window holds 5+ of A's
		// transactions. The burst alone has 10 in 10 hours.
		t.Errorf("expected score 100 (90 + velocity), got %.1f", acct.Score)
	}
	if !hasPattern(acct, "cycle_length_3") || !hasPattern(acct, domain.PatternFanOutSmurfing) {
		t.Errorf("expected both structural tags, got %v", acct.Patterns)
	}
	// Ring id comes from the cycle, discovered first.
	if acct.RingID != 1 {
		t.Errorf("expected ring 1 from the cycle, got %d", acct.RingID)
	}
}

func TestCycleAndFanOutWithoutVelocity(t *testing.T) {
	// Same combination but the fan-out spread wide enough that no 24-hour
	// window holds five of A's transactions: exact 45+30+15 = 90.
	var txs []domain.Transaction
	txs = append(txs,
		tx("c1", "A", "B", 5000, 0),
		tx("c2", "B", "C", 5000, 100),
		tx("c3", "C", "A", 5000, 200),
	)
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(fmt.Sprintf("f%d", i), "A", fmt.Sprintf("dst-%02d", i), 900, 300+i*7))
	}
	accounts, _ := run(t, txs)

	acct := findAccount(accounts, "A")
	if acct == nil {
		t.Fatal("expected A flagged")
	}
	if acct.Score != 90 {
		t.Errorf("expected score 90 (45+30+15), got %.1f", acct.Score)
	}
}

func TestScoreCap(t *testing.T) {
	// A shell intermediary inside a cycle with fan-in and fan-out would
	// exceed 100; the cap holds.
	agg := &Aggregation{
		g:     graph.Build(nil),
		state: make(map[string]*accountState),
		stats: make(map[string]*accountStats),
	}
	st := agg.account("X")
	st.score = 145
	st.patterns = []string{"cycle_length_3"}
	st.seen = map[string]bool{"cycle_length_3": true}

	accounts, _ := agg.Finalize()
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	if accounts[0].Score != 100 {
		t.Errorf("expected capped score 100, got %.1f", accounts[0].Score)
	}
}

func TestOncePerStructuralType(t *testing.T) {
	// Membership in two distinct cycles still contributes 45 once (plus no
	// multi-pattern bonus: same structural type).
	accounts, _ := run(t, []domain.Transaction{
		tx("t1", "A", "B", 100, 0),
		tx("t2", "B", "C", 100, 1),
		tx("t3", "C", "A", 100, 2),
		tx("t4", "A", "D", 100, 3),
		tx("t5", "D", "E", 100, 4),
		tx("t6", "E", "A", 100, 5),
	})

	acct := findAccount(accounts, "A")
	if acct == nil {
		t.Fatal("expected A flagged")
	}
	if acct.Score != 45 {
		t.Errorf("expected 45 for membership in two cycles, got %.1f", acct.Score)
	}
}

func TestRankingStableSort(t *testing.T) {
	// Two independent triangles produce six accounts at score 45; ties keep
	// discovery order.
	accounts, _ := run(t, []domain.Transaction{
		tx("t1", "A", "B", 100, 0),
		tx("t2", "B", "C", 100, 1),
		tx("t3", "C", "A", 100, 2),
		tx("t4", "P", "Q", 100, 3),
		tx("t5", "Q", "R", 100, 4),
		tx("t6", "R", "P", 100, 5),
	})

	if len(accounts) != 6 {
		t.Fatalf("expected 6 accounts, got %d", len(accounts))
	}
	want := []string{"A", "B", "C", "P", "Q", "R"}
	for i, id := range want {
		if accounts[i].AccountID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, accounts[i].AccountID)
		}
	}
}

func TestRingPrecedenceCycleFirst(t *testing.T) {
	// A ring is created per structure in precedence order; members already
	// assigned keep their first ring.
	var txs []domain.Transaction
	txs = append(txs,
		tx("c1", "A", "B", 5000, 0),
		tx("c2", "B", "C", 5000, 1),
		tx("c3", "C", "A", 5000, 2),
	)
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(fmt.Sprintf("f%d", i), "A", fmt.Sprintf("dst-%02d", i), 900, 100+i))
	}
	accounts, rings := run(t, txs)

	acct := findAccount(accounts, "A")
	if acct == nil || acct.RingID != 1 {
		t.Fatalf("expected A in ring 1, got %+v", acct)
	}
	if rings[0].PatternType != domain.RingCycle {
		t.Errorf("expected first ring to be the cycle, got %s", rings[0].PatternType)
	}
	// Ring ids are sequential from 1.
	for i, r := range rings {
		if r.ID != i+1 {
			t.Errorf("ring %d: expected id %d, got %d", i, i+1, r.ID)
		}
	}
}

func TestLongCycleRiskBonus(t *testing.T) {
	accounts3, rings3 := run(t, []domain.Transaction{
		tx("t1", "A", "B", 100, 0),
		tx("t2", "B", "C", 100, 1),
		tx("t3", "C", "A", 100, 2),
	})
	accounts4, rings4 := run(t, []domain.Transaction{
		tx("t1", "A", "B", 100, 0),
		tx("t2", "B", "C", 100, 1),
		tx("t3", "C", "D", 100, 2),
		tx("t4", "D", "A", 100, 3),
	})

	if len(accounts3) == 0 || len(accounts4) == 0 {
		t.Fatal("expected flagged accounts in both runs")
	}
	if len(rings3) != 1 || len(rings4) != 1 {
		t.Fatalf("expected one ring each, got %d and %d", len(rings3), len(rings4))
	}
	if rings4[0].RiskScore <= rings3[0].RiskScore {
		t.Errorf("expected longer cycle to carry higher ring risk: %.1f vs %.1f",
			rings4[0].RiskScore, rings3[0].RiskScore)
	}
}

func TestSmurfRingDisplayCap(t *testing.T) {
	var txs []domain.Transaction
	for i := 0; i < 30; i++ {
		txs = append(txs, tx(fmt.Sprintf("t%d", i), fmt.Sprintf("src-%02d", i), "R", 900, i*2))
	}
	_, rings := run(t, txs)

	if len(rings) != 1 {
		t.Fatalf("expected 1 ring, got %d", len(rings))
	}
	// Report-once stops at the first window reaching ten unique senders, so
	// the ring lists the flagged account plus those ten. The display cap
	// never exceeds 21 members regardless.
	if len(rings[0].Members) != 11 {
		t.Errorf("expected 11 ring members, got %d", len(rings[0].Members))
	}
	if rings[0].Members[0] != "R" {
		t.Errorf("expected flagged account first, got %s", rings[0].Members[0])
	}
}

func TestVelocityTag(t *testing.T) {
	// Five transactions within one day plus a cycle to keep the account in
	// the output.
	var txs []domain.Transaction
	txs = append(txs,
		tx("c1", "A", "B", 100, 0),
		tx("c2", "B", "C", 100, 1),
		tx("c3", "C", "A", 100, 2),
	)
	for i := 0; i < 4; i++ {
		txs = append(txs, tx(fmt.Sprintf("v%d", i), "A", fmt.Sprintf("other-%d", i), 10, 3+i))
	}
	accounts, _ := run(t, txs)

	acct := findAccount(accounts, "A")
	if acct == nil {
		t.Fatal("expected A flagged")
	}
	if !hasPattern(acct, domain.PatternHighVelocity) {
		t.Errorf("expected high_velocity tag, got %v", acct.Patterns)
	}
	// 45 (cycle) + 10 (velocity); velocity is not structural so no bonus.
	if acct.Score != 55 {
		t.Errorf("expected score 55, got %.1f", acct.Score)
	}
}

func TestApplyRuleHit(t *testing.T) {
	g := graph.Build([]domain.Transaction{
		tx("t1", "A", "B", 100, 0),
		tx("t2", "B", "C", 100, 1),
		tx("t3", "C", "A", 100, 2),
	})
	agg := Aggregate(g, [][]string{{"A", "B", "C"}}, nil, nil)

	agg.ApplyRuleHit(domain.RuleHit{RuleID: "r1", AccountID: "A", Tag: "big_mover", Points: 12})
	// Hits for accounts the detectors never touched are ignored.
	agg.ApplyRuleHit(domain.RuleHit{RuleID: "r1", AccountID: "ghost", Tag: "big_mover", Points: 12})

	accounts, _ := agg.Finalize()
	acct := findAccount(accounts, "A")
	if acct == nil {
		t.Fatal("expected A flagged")
	}
	if acct.Score != 57 {
		t.Errorf("expected 45 + 12 = 57, got %.1f", acct.Score)
	}
	if !hasPattern(acct, "big_mover") {
		t.Errorf("expected custom tag, got %v", acct.Patterns)
	}
	if findAccount(accounts, "ghost") != nil {
		t.Error("rule hit must not create new accounts")
	}
}

func TestAccountFacts(t *testing.T) {
	g := graph.Build([]domain.Transaction{
		tx("t1", "A", "B", 100, 0),
		tx("t2", "B", "C", 200, 5),
		tx("t3", "C", "A", 300, 10),
	})
	agg := Aggregate(g, [][]string{{"A", "B", "C"}}, nil, nil)

	facts := agg.AccountFacts()
	if len(facts) != 3 {
		t.Fatalf("expected 3 fact rows, got %d", len(facts))
	}
	var a *Facts
	for i := range facts {
		if facts[i].AccountID == "A" {
			a = &facts[i]
		}
	}
	if a == nil {
		t.Fatal("expected facts for A")
	}
	if a.SentCount != 1 || a.ReceivedCount != 1 {
		t.Errorf("expected 1 sent / 1 received, got %d / %d", a.SentCount, a.ReceivedCount)
	}
	if a.TotalAmount != 400 {
		t.Errorf("expected total amount 400, got %.1f", a.TotalAmount)
	}
	if a.SpanHours != 10 {
		t.Errorf("expected span 10h, got %.1f", a.SpanHours)
	}
	if a.Score != 45 {
		t.Errorf("expected structural score 45, got %.1f", a.Score)
	}
}
