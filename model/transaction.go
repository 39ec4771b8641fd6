package model

import (
	"encoding/json"
	"time"
)

const (
	TransactionCredit = "credit"
	TransactionDebit  = "debit"

	TransactionApplied = "applied"

	ReasonReversal = "reversal"
)

// Transaction is one append-only ledger entry reconciling a user balance
// against an individual completion event. Entries are never mutated after
// creation.
type Transaction struct {
	ID            int64                  `json:"-"`
	TransactionID string                 `json:"id"`
	UserID        string                 `json:"user_id"`
	Type          string                 `json:"type"`
	Amount        int64                  `json:"amount"`
	Source        string                 `json:"source"`
	SourceID      string                 `json:"source_id"`
	Status        string                 `json:"status"`
	Reason        string                 `json:"reason,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

func (transaction *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(transaction)
}

// NewCreditEntry builds the ledger entry for a credited completion.
func NewCreditEntry(completion *OfferCompletion) *Transaction {
	return &Transaction{
		TransactionID: GenerateUUIDWithSuffix("txn"),
		UserID:        completion.UserID,
		Type:          TransactionCredit,
		Amount:        completion.Payout,
		Source:        completion.Provider.String(),
		SourceID:      completion.CompletionID,
		Status:        TransactionApplied,
		CreatedAt:     time.Now(),
	}
}

// NewReversalEntry builds the debit entry for a reversed completion. The
// amount is always the stored payout, never a value resupplied by the inbound
// reversal payload.
func NewReversalEntry(completion *OfferCompletion) *Transaction {
	return &Transaction{
		TransactionID: GenerateUUIDWithSuffix("txn"),
		UserID:        completion.UserID,
		Type:          TransactionDebit,
		Amount:        completion.Payout,
		Source:        completion.Provider.String(),
		SourceID:      completion.CompletionID,
		Status:        TransactionApplied,
		Reason:        ReasonReversal,
		CreatedAt:     time.Now(),
	}
}
