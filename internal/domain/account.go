package domain

import (
	"fmt"
	"strings"
)

// AccountNode is the per-account aggregate derived from the transaction set.
// One node exists for every distinct account id appearing as sender or
// receiver. Nodes are built once per run by the graph builder and are
// read-only for every detector.
type AccountNode struct {
	ID string

	// Outgoing maps receiver id to the number of transactions sent to it.
	// Two transactions A->B make Outgoing["B"] == 2, not a boolean edge.
	Outgoing map[string]int

	// Incoming maps sender id to the number of transactions received from it.
	Incoming map[string]int

	// Sent holds the transactions where this account is the sender.
	Sent []Transaction

	// TotalTxCount counts appearances as sender plus as receiver.
	TotalTxCount int
}

// Pattern tags attached to suspicious accounts. An account may accumulate
// several distinct tags; the emitted set is never empty.
const (
	PatternFanInSmurfing     = "smurfing_fan_in"
	PatternFanOutSmurfing    = "smurfing_fan_out"
	PatternShellIntermediary = "shell_intermediary"
	PatternShellEndpoint     = "shell_chain"
	PatternHighVelocity      = "high_velocity"
)

// cyclePatternPrefix prefixes cycle membership tags ("cycle_length_3" .. "cycle_length_5").
const cyclePatternPrefix = "cycle_length_"

// CyclePattern returns the membership tag for a cycle of the given length.
func CyclePattern(length int) string {
	return fmt.Sprintf("%s%d", cyclePatternPrefix, length)
}

// IsCyclePattern reports whether a tag marks cycle membership.
func IsCyclePattern(tag string) bool {
	return strings.HasPrefix(tag, cyclePatternPrefix)
}

// IsStructuralPattern reports whether a tag comes from one of the structural
// detectors (cycle, smurfing, shell chain). Velocity, the multi-pattern
// bonus, and custom rule tags are not structural: an account carrying only
// those is still eligible for merchant suppression.
func IsStructuralPattern(tag string) bool {
	switch tag {
	case PatternFanInSmurfing, PatternFanOutSmurfing,
		PatternShellIntermediary, PatternShellEndpoint:
		return true
	}
	return IsCyclePattern(tag)
}
