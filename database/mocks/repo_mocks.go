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
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/earnly-app/earnly/database"
	"github.com/earnly-app/earnly/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Completion methods

func (m *MockDataSource) CreateCompletion(ctx context.Context, completion *model.OfferCompletion) error {
	args := m.Called(ctx, completion)
	return args.Error(0)
}

func (m *MockDataSource) GetCompletion(ctx context.Context, completionID string) (*model.OfferCompletion, error) {
	args := m.Called(ctx, completionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OfferCompletion), args.Error(1)
}

func (m *MockDataSource) GetPendingCompletion(ctx context.Context, userID, offerID string) (*model.OfferCompletion, error) {
	args := m.Called(ctx, userID, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OfferCompletion), args.Error(1)
}

func (m *MockDataSource) GetCompletionsByUser(ctx context.Context, userID string, limit, offset int) ([]model.OfferCompletion, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OfferCompletion), args.Error(1)
}

// User methods

func (m *MockDataSource) CreateUserBalance(ctx context.Context, balance *model.UserBalance) error {
	args := m.Called(ctx, balance)
	return args.Error(0)
}

func (m *MockDataSource) GetUserBalance(ctx context.Context, userID string) (*model.UserBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserBalance), args.Error(1)
}

// Transaction methods

func (m *MockDataSource) RecordTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockDataSource) GetTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]model.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Transaction), args.Error(1)
}

// Reconciler methods

func (m *MockDataSource) ApplyCompletionEvent(ctx context.Context, completionID string, event *model.CompletionEvent) (*database.ApplyResult, error) {
	args := m.Called(ctx, completionID, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.ApplyResult), args.Error(1)
}
