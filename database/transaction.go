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
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/earnly-app/earnly/internal/apierror"
	"github.com/earnly-app/earnly/model"
)

// RecordTransaction appends one ledger entry. Entries are immutable; there is
// no update or delete counterpart.
func (d Datasource) RecordTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	txn, err := recordTransactionWithExecutor(ctx, d.Conn, txn)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func recordTransactionWithExecutor(ctx context.Context, exec executor, txn *model.Transaction) (*model.Transaction, error) {
	metaDataJSON, err := json.Marshal(txn.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	if txn.TransactionID == "" {
		txn.TransactionID = model.GenerateUUIDWithSuffix("txn")
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO transactions (transaction_id, user_id, type, amount, source, source_id, status, reason, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, txn.TransactionID, txn.UserID, txn.Type, txn.Amount, txn.Source, txn.SourceID, txn.Status, nullString(txn.Reason), txn.CreatedAt, metaDataJSON)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, apierror.NewAPIError(apierror.ErrConflict, "Transaction with this ID already exists", err)
			case "check_violation":
				return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Invalid transaction type", err)
			default:
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", err)
	}

	return txn, nil
}

// GetTransactionsByUser lists a user's ledger entries, newest first.
func (d Datasource) GetTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]model.Transaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, transaction_id, user_id, type, amount, COALESCE(source, ''), COALESCE(source_id, ''), COALESCE(status, ''), COALESCE(reason, ''), created_at, meta_data
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			logrus.Error(err)
		}
	}(rows)

	var transactions []model.Transaction
	for rows.Next() {
		txn := model.Transaction{}
		var metaDataJSON []byte

		err = rows.Scan(
			&txn.ID,
			&txn.TransactionID,
			&txn.UserID,
			&txn.Type,
			&txn.Amount,
			&txn.Source,
			&txn.SourceID,
			&txn.Status,
			&txn.Reason,
			&txn.CreatedAt,
			&metaDataJSON,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction data", err)
		}

		if len(metaDataJSON) > 0 {
			if err := json.Unmarshal(metaDataJSON, &txn.MetaData); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to parse transaction metadata", err)
			}
		}

		transactions = append(transactions, txn)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over transactions", err)
	}

	return transactions, nil
}
