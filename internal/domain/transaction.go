package domain

import (
	"time"
)

// Transaction is a single validated ledger entry, the engine's sole input
// unit. Ingestion guarantees a unique non-empty ID, non-empty sender and
// receiver ids, a non-negative amount, and a valid timestamp. Transactions
// are never mutated after ingestion.
type Transaction struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`

	// Parties involved
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`

	// Temporal (second precision)
	Timestamp time.Time `json:"timestamp"`
}

// TransactionRecord is the API payload for a single transaction in an
// analysis request batch.
type TransactionRecord struct {
	ID        string  `json:"id"`
	Sender    string  `json:"sender"`
	Receiver  string  `json:"receiver"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency,omitempty"`
	Timestamp string  `json:"timestamp"` // RFC 3339
}

// AnalysisRequest is the API request payload for a batch analysis run.
type AnalysisRequest struct {
	Transactions []TransactionRecord `json:"transactions"`
}

// ToTransaction converts a request record to a Transaction domain object.
// The timestamp must already be validated by the caller.
func (r *TransactionRecord) ToTransaction(ts time.Time, tenantID string) Transaction {
	return Transaction{
		ID:        r.ID,
		TenantID:  tenantID,
		Sender:    r.Sender,
		Receiver:  r.Receiver,
		Amount:    r.Amount,
		Currency:  r.Currency,
		Timestamp: ts,
	}
}
