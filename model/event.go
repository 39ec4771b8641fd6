package model

// EventStatus is the normalized status carried by a postback.
type EventStatus string

const (
	EventCompleted EventStatus = "completed"
	EventReversed  EventStatus = "reversed"
)

// CompletionEvent is the canonical form of a provider postback after the
// codec has run. It is derived, never persisted as-is; the raw payload is
// kept on the completion record for audit.
type CompletionEvent struct {
	Provider      Provider          `json:"provider"`
	TrackingID    string            `json:"tracking_id,omitempty"`
	UserID        string            `json:"user_id"`
	OfferID       string            `json:"offer_id,omitempty"`
	TransactionID string            `json:"transaction_id"`
	Payout        int64             `json:"payout"`
	Status        EventStatus       `json:"status"`
	RawFields     map[string]string `json:"-"`
}

// IsReversal reports whether the event should drive the reversal path.
func (e *CompletionEvent) IsReversal() bool {
	return e.Status == EventReversed
}
