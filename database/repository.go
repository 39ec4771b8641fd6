package database

import (
	"context"

	"github.com/earnly-app/earnly/model"
)

// completion provides access to offer completion records, the durable
// idempotency tokens for postback processing.
type completion interface {
	CreateCompletion(ctx context.Context, completion *model.OfferCompletion) error
	GetCompletion(ctx context.Context, completionID string) (*model.OfferCompletion, error)
	GetPendingCompletion(ctx context.Context, userID, offerID string) (*model.OfferCompletion, error)
	GetCompletionsByUser(ctx context.Context, userID string, limit, offset int) ([]model.OfferCompletion, error)
}

// user provides access to the points portion of user records.
type user interface {
	CreateUserBalance(ctx context.Context, balance *model.UserBalance) error
	GetUserBalance(ctx context.Context, userID string) (*model.UserBalance, error)
}

// transaction provides append-only access to the ledger.
type transaction interface {
	RecordTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	GetTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]model.Transaction, error)
}

// reconciler runs the single atomic balance-mutation transaction.
type reconciler interface {
	ApplyCompletionEvent(ctx context.Context, completionID string, event *model.CompletionEvent) (*ApplyResult, error)
}

type IDataSource interface {
	completion
	user
	transaction
	reconciler
}
