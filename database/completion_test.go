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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earnly-app/earnly/internal/apierror"
	"github.com/earnly-app/earnly/model"
)

func TestCreateCompletion(t *testing.T) {
	d, mock := newTestDatasource(t)

	completion := &model.OfferCompletion{
		CompletionID: gofakeit.UUID(),
		UserID:       gofakeit.UUID(),
		OfferID:      gofakeit.UUID(),
		Provider:     model.ProviderKiwiwall,
		Payout:       int64(gofakeit.Number(1, 1000)),
	}

	mock.ExpectExec("INSERT INTO offer_completions").
		WithArgs(completion.CompletionID, completion.UserID, completion.OfferID, "kiwiwall", nil, completion.Payout, model.CompletionPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := d.CreateCompletion(context.Background(), completion)
	require.NoError(t, err)
	assert.Equal(t, model.CompletionPending, completion.Status)
	assert.False(t, completion.StartedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCompletionDuplicateIsNotAnError(t *testing.T) {
	d, mock := newTestDatasource(t)

	completion := &model.OfferCompletion{
		CompletionID: gofakeit.UUID(),
		UserID:       gofakeit.UUID(),
		Provider:     model.ProviderBitLabs,
	}

	// ON CONFLICT DO NOTHING swallows the duplicate; zero rows affected.
	mock.ExpectExec("INSERT INTO offer_completions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := d.CreateCompletion(context.Background(), completion)
	assert.NoError(t, err)
}

func TestGetCompletionNotFound(t *testing.T) {
	d, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT (.+) FROM offer_completions").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := d.GetCompletion(context.Background(), "missing")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestGetPendingCompletion(t *testing.T) {
	d, mock := newTestDatasource(t)

	userID := gofakeit.UUID()
	mock.ExpectQuery("SELECT (.+) FROM offer_completions (.+) status = 'pending'").
		WithArgs(userID, "off_1").
		WillReturnRows(completionRows(model.CompletionPending, 75))

	completion, err := d.GetPendingCompletion(context.Background(), userID, "off_1")
	require.NoError(t, err)
	assert.Equal(t, model.CompletionPending, completion.Status)
	assert.Equal(t, int64(75), completion.Payout)
}

func TestCreateUserBalanceConflict(t *testing.T) {
	d, mock := newTestDatasource(t)

	balance := &model.UserBalance{UserID: gofakeit.UUID(), Points: 100, TotalPoints: 100, TotalEarnings: 100}

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505"})

	err := d.CreateUserBalance(context.Background(), balance)
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestGetUserBalance(t *testing.T) {
	d, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("u1").
		WillReturnRows(userRows(250, 250, 400))

	balance, err := d.GetUserBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance.Points)
	assert.Equal(t, int64(400), balance.TotalEarnings)
}

func TestRecordTransactionFillsDefaults(t *testing.T) {
	d, mock := newTestDatasource(t)

	txn := &model.Transaction{
		UserID: gofakeit.UUID(),
		Type:   model.TransactionCredit,
		Amount: 120,
		Source: "kiwiwall",
		Status: model.TransactionApplied,
	}

	mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	recorded, err := d.RecordTransaction(context.Background(), txn)
	require.NoError(t, err)
	assert.NotEmpty(t, recorded.TransactionID)
	assert.Contains(t, recorded.TransactionID, "txn_")
	assert.False(t, recorded.CreatedAt.IsZero())
}

func TestGetTransactionsByUser(t *testing.T) {
	d, mock := newTestDatasource(t)

	userID := gofakeit.UUID()
	rows := sqlmock.NewRows([]string{
		"id", "transaction_id", "user_id", "type", "amount", "source", "source_id", "status", "reason", "created_at", "meta_data",
	}).
		AddRow(2, "txn_2", userID, model.TransactionDebit, 50, "kiwiwall", "trk_1", model.TransactionApplied, model.ReasonReversal, time.Now(), nil).
		AddRow(1, "txn_1", userID, model.TransactionCredit, 50, "kiwiwall", "trk_1", model.TransactionApplied, "", time.Now(), nil)

	mock.ExpectQuery("SELECT (.+) FROM transactions").
		WithArgs(userID, 50, 0).
		WillReturnRows(rows)

	transactions, err := d.GetTransactionsByUser(context.Background(), userID, 50, 0)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	assert.Equal(t, model.TransactionDebit, transactions[0].Type)
	assert.Equal(t, model.ReasonReversal, transactions[0].Reason)
}
