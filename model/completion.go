package model

import (
	"fmt"
	"time"
)

const (
	CompletionPending      = "pending"
	CompletionCredited     = "credited"
	CompletionReversed     = "reversed"
	CompletionFailedNoUser = "failed_no_user"
)

// OfferCompletion is the durable idempotency token for one tracking/transaction
// attempt. It is created by the offer-start flow or lazily by the
// reconciliation engine for auto-create providers, mutated only inside the
// reconciliation transaction, and never deleted.
type OfferCompletion struct {
	ID            int64                  `json:"-"`
	CompletionID  string                 `json:"completion_id"`
	UserID        string                 `json:"user_id"`
	OfferID       string                 `json:"offer_id,omitempty"`
	Provider      Provider               `json:"provider"`
	ExternalTxnID string                 `json:"external_transaction_id"`
	Payout        int64                  `json:"payout"`
	Status        string                 `json:"status"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	CreditedAt    *time.Time             `json:"credited_at,omitempty"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

// CanTransition reports whether moving the completion to the target status is
// a legal forward transition. Replays of the current terminal status are
// no-ops, not errors, and are handled by the caller before this check.
func CanTransition(from, to string) bool {
	switch from {
	case CompletionPending:
		return to == CompletionCredited || to == CompletionReversed || to == CompletionFailedNoUser
	case CompletionCredited:
		return to == CompletionReversed
	default:
		return false
	}
}

// DisambiguatedCompletionID derives a new completion key when a provider
// recycles a tracking ID across two different users. The original key stays
// attached to the first user; the new key guarantees the second user's credit
// is isolated.
func DisambiguatedCompletionID(trackingID, userID string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d", trackingID, userID, now.UnixNano())
}

// NewCompletionFromEvent synthesizes a pending completion for providers whose
// postback may legitimately arrive before any offer-start record exists.
func NewCompletionFromEvent(event *CompletionEvent, completionID string, now time.Time) *OfferCompletion {
	meta := map[string]interface{}{"auto_created": true}
	if len(event.RawFields) > 0 {
		raw := make(map[string]interface{}, len(event.RawFields))
		for k, v := range event.RawFields {
			raw[k] = v
		}
		meta["raw_payload"] = raw
	}
	return &OfferCompletion{
		CompletionID:  completionID,
		UserID:        event.UserID,
		OfferID:       event.OfferID,
		Provider:      event.Provider,
		ExternalTxnID: event.TransactionID,
		Payout:        event.Payout,
		Status:        CompletionPending,
		StartedAt:     now,
		MetaData:      meta,
	}
}
