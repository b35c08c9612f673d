package domain

import (
	"time"
)

// SuspiciousAccount is an account that accumulated a positive suspicion
// score and survived the false-positive filter. Immutable once emitted.
type SuspiciousAccount struct {
	AccountID string   `json:"accountId"`
	Score     float64  `json:"score"`    // 0-100, one decimal place
	Patterns  []string `json:"patterns"` // never empty
	RingID    int      `json:"ringId,omitempty"`
}

// Ring pattern-type classifications.
const (
	RingCycle     = "cycle"
	RingFanIn     = "smurfing_fan_in"
	RingFanOut    = "smurfing_fan_out"
	RingShell     = "shell_chain"
)

// FraudRing is a coordinated account group sharing one detected structural
// pattern. Ring ids are sequential and stable within a run; rings never
// persist or merge across runs.
type FraudRing struct {
	ID          int      `json:"id"`
	PatternType string   `json:"patternType"` // cycle | smurfing_fan_in | smurfing_fan_out | shell_chain
	Members     []string `json:"members"`     // ordered; smurfing display capped at 20 counterparties
	RiskScore   float64  `json:"riskScore"`   // 0-100, one decimal place
}

// Summary holds per-run counters emitted alongside the two result lists.
type Summary struct {
	TotalAccounts     int     `json:"totalAccounts"`
	FlaggedAccounts   int     `json:"flaggedAccounts"`
	RingCount         int     `json:"ringCount"`
	ProcessingSeconds float64 `json:"processingSeconds"` // one decimal place
}

// AnalysisResult is the complete output of one analysis run: the ranked
// account list, the ring list in discovery order, and the run summary.
type AnalysisResult struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	SuspiciousAccounts []SuspiciousAccount `json:"suspiciousAccounts"`
	Rings              []FraudRing         `json:"rings"`
	Summary            Summary             `json:"summary"`
}
