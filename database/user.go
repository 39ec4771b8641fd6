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

	"github.com/earnly-app/earnly/internal/apierror"
	"github.com/earnly-app/earnly/model"
)

// CreateUserBalance inserts a fresh user balance record. User provisioning
// lives in the wider product; the engine only needs this for seeding and
// tests.
func (d Datasource) CreateUserBalance(ctx context.Context, balance *model.UserBalance) error {
	metaDataJSON, err := json.Marshal(balance.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	if balance.CreatedAt.IsZero() {
		balance.CreatedAt = time.Now()
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO users (user_id, points, total_points, total_earnings, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, balance.UserID, balance.Points, balance.TotalPoints, balance.TotalEarnings, balance.CreatedAt, metaDataJSON)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return apierror.NewAPIError(apierror.ErrConflict, "User with this ID already exists", err)
			default:
				return apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create user balance", err)
	}

	return nil
}

// GetUserBalance retrieves the points portion of a user record.
func (d Datasource) GetUserBalance(ctx context.Context, userID string) (*model.UserBalance, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, user_id, points, total_points, total_earnings, created_at, meta_data
		FROM users
		WHERE user_id = $1
	`, userID)

	balance, err := scanUserBalance(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("User with ID '%s' not found", userID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan user balance", err)
	}
	return balance, nil
}

func scanUserBalance(row rowScanner) (*model.UserBalance, error) {
	balance := &model.UserBalance{}
	var metaDataJSON []byte

	err := row.Scan(
		&balance.ID,
		&balance.UserID,
		&balance.Points,
		&balance.TotalPoints,
		&balance.TotalEarnings,
		&balance.CreatedAt,
		&metaDataJSON,
	)
	if err != nil {
		return nil, err
	}

	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &balance.MetaData); err != nil {
			return nil, err
		}
	}
	return balance, nil
}
