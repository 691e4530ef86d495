// Package domain defines the core types and collaborator interfaces for Kestrel.
package domain

import (
	"time"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxRoyalty TransactionType = "royalty"
	TxPayout  TransactionType = "payout"
	TxBonus   TransactionType = "bonus"
	TxRefund  TransactionType = "refund"
	TxFee     TransactionType = "fee"
)

// Transaction is an immutable credits-ledger record. Kestrel only reads
// transactions; the ledger owns them.
type Transaction struct {
	ID        string          `json:"id"`
	CreatorID string          `json:"creatorId"`
	Type      TransactionType `json:"type"`

	// Amount is in whole credits and is never negative.
	Amount int64 `json:"amount"`

	CreatedAt time.Time `json:"createdAt"`
}

// TransactionRequest is the API payload for ledger ingestion.
type TransactionRequest struct {
	CreatorID string          `json:"creatorId"`
	Type      TransactionType `json:"type"`
	Amount    int64           `json:"amount"`
	CreatedAt *time.Time      `json:"createdAt,omitempty"`
}

// ValidType reports whether t is one of the known transaction types.
func ValidType(t TransactionType) bool {
	switch t {
	case TxRoyalty, TxPayout, TxBonus, TxRefund, TxFee:
		return true
	}
	return false
}

// ToTransaction converts an ingest request to a ledger record.
func (r *TransactionRequest) ToTransaction(id string) *Transaction {
	createdAt := time.Now().UTC()
	if r.CreatedAt != nil {
		createdAt = r.CreatedAt.UTC()
	}
	return &Transaction{
		ID:        id,
		CreatorID: r.CreatorID,
		Type:      r.Type,
		Amount:    r.Amount,
		CreatedAt: createdAt,
	}
}

// GroupByCreator buckets a transaction window by creator ID.
func GroupByCreator(txs []*Transaction) map[string][]*Transaction {
	grouped := make(map[string][]*Transaction)
	for _, tx := range txs {
		grouped[tx.CreatorID] = append(grouped[tx.CreatorID], tx)
	}
	return grouped
}
