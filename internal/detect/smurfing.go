package detect

import (
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/graph"
)

const (
	// smurfWindow bounds the time span of a qualifying window. The span
	// comparison is inclusive: a window spanning exactly 72 hours still
	// qualifies, only a strictly greater span evicts the left pointer.
	smurfWindow = 72 * time.Hour

	// smurfThreshold is the minimum number of unique counterparties inside
	// a single window.
	smurfThreshold = 10
)

// Direction of a smurfing flag.
const (
	FanIn  = "fan_in"
	FanOut = "fan_out"
)

// SmurfFlag marks an account as a concentration (fan-in) or dispersal
// (fan-out) point. Counterparties holds the unique counterparties of the
// first qualifying window, in order of first appearance.
type SmurfFlag struct {
	AccountID      string
	Direction      string
	Counterparties []string
}

// Smurfing flags accounts that aggregate from, or disperse to, at least
// smurfThreshold unique counterparties within any smurfWindow span.
//
// Fan-in and fan-out are evaluated independently; an account can carry both
// flags. Report-once policy: the scan for an account and direction stops at
// the first qualifying window, regardless of how many windows qualify.
// Downstream ring sizing depends on this first-window behavior.
func Smurfing(g *graph.Graph) []SmurfFlag {
	byReceiver := make(map[string][]windowTx)
	bySender := make(map[string][]windowTx)
	for _, tx := range g.Transactions {
		byReceiver[tx.Receiver] = append(byReceiver[tx.Receiver], windowTx{tx.Sender, tx.Timestamp})
		bySender[tx.Sender] = append(bySender[tx.Sender], windowTx{tx.Receiver, tx.Timestamp})
	}

	var flags []SmurfFlag
	for _, account := range sortedKeys(byReceiver) {
		if parties, ok := scanWindows(byReceiver[account]); ok {
			flags = append(flags, SmurfFlag{AccountID: account, Direction: FanIn, Counterparties: parties})
		}
	}
	for _, account := range sortedKeys(bySender) {
		if parties, ok := scanWindows(bySender[account]); ok {
			flags = append(flags, SmurfFlag{AccountID: account, Direction: FanOut, Counterparties: parties})
		}
	}
	return flags
}

type windowTx struct {
	counterparty string
	at           time.Time
}

// scanWindows slides a two-pointer window over the timestamp-sorted
// transactions of one account and returns the counterparties of the first
// window holding smurfThreshold unique counterparties.
func scanWindows(txs []windowTx) ([]string, bool) {
	if len(txs) < smurfThreshold {
		return nil, false
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].at.Before(txs[j].at)
	})

	counts := make(map[string]int)
	left := 0
	for right := range txs {
		counts[txs[right].counterparty]++

		for txs[right].at.Sub(txs[left].at) > smurfWindow {
			counts[txs[left].counterparty]--
			if counts[txs[left].counterparty] == 0 {
				delete(counts, txs[left].counterparty)
			}
			left++
		}

		if len(counts) >= smurfThreshold {
			return windowParties(txs[left:right+1], len(counts)), true
		}
	}
	return nil, false
}

// windowParties lists the window's unique counterparties in order of first
// appearance.
func windowParties(window []windowTx, unique int) []string {
	seen := make(map[string]bool, unique)
	parties := make([]string, 0, unique)
	for _, tx := range window {
		if !seen[tx.counterparty] {
			seen[tx.counterparty] = true
			parties = append(parties, tx.counterparty)
		}
	}
	return parties
}

func sortedKeys(m map[string][]windowTx) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
