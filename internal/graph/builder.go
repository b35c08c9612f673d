// Package graph builds the directed transaction multigraph consumed by the
// pattern detectors.
package graph

import (
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Graph is the immutable per-run snapshot shared by every detector: one
// account node per distinct account id, plus the full transaction list
// retained for per-account window scans.
type Graph struct {
	Nodes        map[string]*domain.AccountNode
	Transactions []domain.Transaction
}

// Build converts a validated transaction list into the account graph.
// Each transaction is processed exactly once; edge counts are multiplicities,
// so two A->B transactions make the A->B count 2. An empty input yields an
// empty node map.
func Build(transactions []domain.Transaction) *Graph {
	g := &Graph{
		Nodes:        make(map[string]*domain.AccountNode),
		Transactions: transactions,
	}

	for _, tx := range transactions {
		sender := g.node(tx.Sender)
		receiver := g.node(tx.Receiver)

		sender.Outgoing[tx.Receiver]++
		receiver.Incoming[tx.Sender]++
		sender.Sent = append(sender.Sent, tx)

		sender.TotalTxCount++
		receiver.TotalTxCount++
	}

	return g
}

func (g *Graph) node(accountID string) *domain.AccountNode {
	n, ok := g.Nodes[accountID]
	if !ok {
		n = &domain.AccountNode{
			ID:       accountID,
			Outgoing: make(map[string]int),
			Incoming: make(map[string]int),
		}
		g.Nodes[accountID] = n
	}
	return n
}

// AccountIDs returns all account ids in lexicographic order. Detectors
// iterate in this order so repeated runs over the same input enumerate
// structures identically.
func (g *Graph) AccountIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Successors returns the outgoing neighbor ids of an account in
// lexicographic order. Unknown accounts have no successors.
func (g *Graph) Successors(accountID string) []string {
	n, ok := g.Nodes[accountID]
	if !ok {
		return nil
	}
	succ := make([]string, 0, len(n.Outgoing))
	for id := range n.Outgoing {
		succ = append(succ, id)
	}
	sort.Strings(succ)
	return succ
}
