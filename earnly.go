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

package earnly

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/earnly-app/earnly/config"
	"github.com/earnly-app/earnly/database"
	redis_db "github.com/earnly-app/earnly/internal/redis-db"
	"github.com/earnly-app/earnly/model"
)

// Earnly represents the main struct for the Earnly reconciliation engine.
type Earnly struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
}

// NewEarnly initializes a new instance of Earnly with the provided database
// datasource. It fetches the configuration and initializes the Redis client
// and the side-effect queue.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *Earnly: A pointer to the newly created Earnly instance.
// - error: An error if any of the initialization steps fail.
func NewEarnly(db database.IDataSource) (*Earnly, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	newEarnly := &Earnly{datasource: db, queue: newQueue, redis: redisClient.Client()}
	return newEarnly, nil
}

// GetUserBalance retrieves the points balance for a user.
func (e *Earnly) GetUserBalance(ctx context.Context, userID string) (*model.UserBalance, error) {
	return e.datasource.GetUserBalance(ctx, userID)
}

// GetCompletion retrieves an offer completion by its completion ID.
func (e *Earnly) GetCompletion(ctx context.Context, completionID string) (*model.OfferCompletion, error) {
	return e.datasource.GetCompletion(ctx, completionID)
}

// GetCompletionsByUser lists a user's completions, newest first.
func (e *Earnly) GetCompletionsByUser(ctx context.Context, userID string, limit, offset int) ([]model.OfferCompletion, error) {
	return e.datasource.GetCompletionsByUser(ctx, userID, limit, offset)
}

// GetTransactionsByUser lists a user's ledger entries, newest first.
func (e *Earnly) GetTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]model.Transaction, error) {
	return e.datasource.GetTransactionsByUser(ctx, userID, limit, offset)
}

// CreateUserBalance seeds a fresh user balance record.
func (e *Earnly) CreateUserBalance(ctx context.Context, balance *model.UserBalance) error {
	return e.datasource.CreateUserBalance(ctx, balance)
}

// CreateCompletion records the start of an offer for a user. The completion ID
// doubles as the idempotency key for the postback that will eventually arrive.
func (e *Earnly) CreateCompletion(ctx context.Context, completion *model.OfferCompletion) error {
	return e.datasource.CreateCompletion(ctx, completion)
}
