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

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/earnly-app/earnly/internal/apierror"
	"github.com/earnly-app/earnly/model"
)

// CreateCompletion inserts a new offer completion record. The completion ID is
// the caller's idempotency key; a concurrent insert of the same key is not an
// error, since the reconciliation transaction re-reads the row anyway.
func (d Datasource) CreateCompletion(ctx context.Context, completion *model.OfferCompletion) error {
	metaDataJSON, err := json.Marshal(completion.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	if completion.StartedAt.IsZero() {
		completion.StartedAt = time.Now()
	}
	if completion.Status == "" {
		completion.Status = model.CompletionPending
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO offer_completions (completion_id, user_id, offer_id, provider, external_txn_id, payout, status, started_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (completion_id) DO NOTHING
	`, completion.CompletionID, completion.UserID, nullString(completion.OfferID), completion.Provider.String(), nullString(completion.ExternalTxnID), completion.Payout, completion.Status, completion.StartedAt, metaDataJSON)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "check_violation":
				return apierror.NewAPIError(apierror.ErrBadRequest, "Invalid completion status", err)
			default:
				return apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create completion", err)
	}

	return nil
}

// GetCompletion retrieves an offer completion by its completion ID.
func (d Datasource) GetCompletion(ctx context.Context, completionID string) (*model.OfferCompletion, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, completion_id, user_id, COALESCE(offer_id, ''), provider, COALESCE(external_txn_id, ''), payout, status, started_at, completed_at, credited_at, meta_data
		FROM offer_completions
		WHERE completion_id = $1
	`, completionID)

	completion, err := scanCompletion(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Completion with ID '%s' not found", completionID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan completion data", err)
	}
	return completion, nil
}

// GetPendingCompletion finds the most recent pending completion for a user and
// offer. Used as the locate fallback when a postback carries no tracking ID.
func (d Datasource) GetPendingCompletion(ctx context.Context, userID, offerID string) (*model.OfferCompletion, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, completion_id, user_id, COALESCE(offer_id, ''), provider, COALESCE(external_txn_id, ''), payout, status, started_at, completed_at, credited_at, meta_data
		FROM offer_completions
		WHERE user_id = $1 AND offer_id = $2 AND status = 'pending'
		ORDER BY started_at DESC
		LIMIT 1
	`, userID, offerID)

	completion, err := scanCompletion(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No pending completion for user '%s' and offer '%s'", userID, offerID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan completion data", err)
	}
	return completion, nil
}

// GetCompletionsByUser lists a user's completions, newest first.
func (d Datasource) GetCompletionsByUser(ctx context.Context, userID string, limit, offset int) ([]model.OfferCompletion, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, completion_id, user_id, COALESCE(offer_id, ''), provider, COALESCE(external_txn_id, ''), payout, status, started_at, completed_at, credited_at, meta_data
		FROM offer_completions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve completions", err)
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			logrus.Error(err)
		}
	}(rows)

	var completions []model.OfferCompletion
	for rows.Next() {
		completion, err := scanCompletion(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan completion data", err)
		}
		completions = append(completions, *completion)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over completions", err)
	}

	return completions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCompletion(row rowScanner) (*model.OfferCompletion, error) {
	completion := &model.OfferCompletion{}
	var provider string
	var completedAt, creditedAt sql.NullTime
	var metaDataJSON []byte

	err := row.Scan(
		&completion.ID,
		&completion.CompletionID,
		&completion.UserID,
		&completion.OfferID,
		&provider,
		&completion.ExternalTxnID,
		&completion.Payout,
		&completion.Status,
		&completion.StartedAt,
		&completedAt,
		&creditedAt,
		&metaDataJSON,
	)
	if err != nil {
		return nil, err
	}

	completion.Provider = model.Provider(provider)
	if completedAt.Valid {
		completion.CompletedAt = &completedAt.Time
	}
	if creditedAt.Valid {
		completion.CreditedAt = &creditedAt.Time
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &completion.MetaData); err != nil {
			return nil, err
		}
	}

	return completion, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
