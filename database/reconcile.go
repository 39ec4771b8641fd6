/*
Copyright 2024 Earnly Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/earnly-app/earnly/internal/apierror"
	"github.com/earnly-app/earnly/model"
)

// ApplyResult reports what the reconciliation transaction actually did, so
// the engine can decide on side effects and the HTTP adapter can shape its
// response without re-reading anything.
type ApplyResult struct {
	Completion   *model.OfferCompletion
	Credited     bool
	Reversed     bool
	Debited      bool
	NoOp         bool
	FailedNoUser bool
	Entry        *model.Transaction
}

// ApplyCompletionEvent runs the single atomic transaction spanning the
// completion and the owning user's balance. Both rows are re-read under row
// locks inside the transaction; the pre-transaction read that located the
// completion is never trusted. Write conflicts (serialization failures,
// deadlocks) are retried with backoff since the transaction body is
// idempotent; any other failure aborts with no partial writes.
func (d Datasource) ApplyCompletionEvent(ctx context.Context, completionID string, event *model.CompletionEvent) (*ApplyResult, error) {
	var result *ApplyResult

	operation := func() error {
		res, err := d.applyCompletionEventOnce(ctx, completionID, event)
		if err != nil {
			if isRetryableTxError(err) {
				logrus.Warnf("retrying completion %s after write conflict: %v", completionID, err)
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return result, nil
}

func (d Datasource) applyCompletionEventOnce(ctx context.Context, completionID string, event *model.CompletionEvent) (*ApplyResult, error) {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	completion, err := getCompletionForUpdate(ctx, tx, completionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Completion with ID '%s' not found", completionID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to re-read completion", err)
	}

	var result *ApplyResult
	if event.IsReversal() {
		result, err = applyReversal(ctx, tx, completion)
	} else {
		result, err = applyCredit(ctx, tx, completion, event)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}

	return result, nil
}

// applyCredit handles a completed event inside the transaction. Replays of an
// already-credited completion no-op; a reversed completion is never
// re-credited; a missing user record is recorded as failed_no_user so the
// miss stays observable for manual recovery.
func applyCredit(ctx context.Context, tx *sql.Tx, completion *model.OfferCompletion, event *model.CompletionEvent) (*ApplyResult, error) {
	switch completion.Status {
	case model.CompletionCredited, model.CompletionReversed, model.CompletionFailedNoUser:
		return &ApplyResult{Completion: completion, NoOp: true}, nil
	}

	now := time.Now()

	balance, err := getUserBalanceForUpdate(ctx, tx, completion.UserID)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to re-read user balance", err)
		}
		completion.Status = model.CompletionFailedNoUser
		completion.CompletedAt = &now
		if err := updateCompletionStatus(ctx, tx, completion); err != nil {
			return nil, err
		}
		return &ApplyResult{Completion: completion, FailedNoUser: true}, nil
	}

	// The postback payout is authoritative at credit time; fall back to the
	// amount recorded at offer start when the payload carried none.
	if event.Payout > 0 {
		completion.Payout = event.Payout
	}

	balance.ApplyCredit(completion.Payout)
	if err := updateUserBalance(ctx, tx, balance); err != nil {
		return nil, err
	}

	completion.Status = model.CompletionCredited
	completion.CompletedAt = &now
	completion.CreditedAt = &now
	if err := updateCompletionStatus(ctx, tx, completion); err != nil {
		return nil, err
	}

	entry := model.NewCreditEntry(completion)
	if _, err := recordTransactionWithExecutor(ctx, tx, entry); err != nil {
		return nil, err
	}

	return &ApplyResult{Completion: completion, Credited: true, Entry: entry}, nil
}

// applyReversal handles a reversed event inside the transaction. The
// completion is marked reversed regardless of prior state (except replays,
// which no-op), but the user is only debited when the prior status was
// credited, and only by the stored payout, clamped at zero.
func applyReversal(ctx context.Context, tx *sql.Tx, completion *model.OfferCompletion) (*ApplyResult, error) {
	if completion.Status == model.CompletionReversed {
		return &ApplyResult{Completion: completion, NoOp: true}, nil
	}

	priorStatus := completion.Status
	now := time.Now()
	completion.Status = model.CompletionReversed
	completion.CompletedAt = &now
	if err := updateCompletionStatus(ctx, tx, completion); err != nil {
		return nil, err
	}

	result := &ApplyResult{Completion: completion, Reversed: true}
	if priorStatus != model.CompletionCredited {
		// Never credited, nothing to claw back.
		return result, nil
	}

	balance, err := getUserBalanceForUpdate(ctx, tx, completion.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			logrus.Errorf("user %s missing during reversal of %s, completion marked reversed with no debit", completion.UserID, completion.CompletionID)
			return result, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to re-read user balance", err)
	}

	balance.ApplyReversal(completion.Payout)
	if err := updateUserBalance(ctx, tx, balance); err != nil {
		return nil, err
	}

	entry := model.NewReversalEntry(completion)
	if _, err := recordTransactionWithExecutor(ctx, tx, entry); err != nil {
		return nil, err
	}

	result.Debited = true
	result.Entry = entry
	return result, nil
}

func isRetryableTxError(err error) bool {
	type causer interface{ Cause() error }
	for err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			// 40001 serialization_failure, 40P01 deadlock_detected
			if pqErr.Code == "40001" || pqErr.Code == "40P01" {
				return true
			}
		}
		if apiErr, ok := err.(apierror.APIError); ok {
			if inner, ok := apiErr.Details.(error); ok {
				err = inner
				continue
			}
			return false
		}
		if c, ok := err.(causer); ok {
			err = c.Cause()
			continue
		}
		return false
	}
	return false
}

func getCompletionForUpdate(ctx context.Context, tx *sql.Tx, completionID string) (*model.OfferCompletion, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, completion_id, user_id, COALESCE(offer_id, ''), provider, COALESCE(external_txn_id, ''), payout, status, started_at, completed_at, credited_at, meta_data
		FROM offer_completions
		WHERE completion_id = $1
		FOR UPDATE
	`, completionID)
	return scanCompletion(row)
}

func getUserBalanceForUpdate(ctx context.Context, tx *sql.Tx, userID string) (*model.UserBalance, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, user_id, points, total_points, total_earnings, created_at, meta_data
		FROM users
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	return scanUserBalance(row)
}

func updateUserBalance(ctx context.Context, tx *sql.Tx, balance *model.UserBalance) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET points = $2, total_points = $3, total_earnings = $4
		WHERE user_id = $1
	`, balance.UserID, balance.Points, balance.TotalPoints, balance.TotalEarnings)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update user balance", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("User with ID '%s' not found", balance.UserID), nil)
	}
	return nil
}

func updateCompletionStatus(ctx context.Context, tx *sql.Tx, completion *model.OfferCompletion) error {
	metaDataJSON, err := json.Marshal(completion.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE offer_completions
		SET status = $2, payout = $3, completed_at = $4, credited_at = $5, meta_data = $6
		WHERE completion_id = $1
	`, completion.CompletionID, completion.Status, completion.Payout, completion.CompletedAt, completion.CreditedAt, metaDataJSON)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update completion", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Completion with ID '%s' not found", completion.CompletionID), nil)
	}
	return nil
}
