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
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"

	"github.com/earnly-app/earnly/config"
	redis_db "github.com/earnly-app/earnly/internal/redis-db"
	"github.com/earnly-app/earnly/model"
)

// Queue represents a queue for handling side-effect tasks. Tasks are
// fire-and-forget relative to the reconciliation transaction: a failed
// enqueue or a failed worker never unwinds a committed credit.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// BonusPointsPayload represents the payload for a bonus points task.
type BonusPointsPayload struct {
	Data model.Transaction
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueBonusPoints enqueues a task notifying the bonus-points service of a
// freshly applied ledger entry. The entry's transaction ID doubles as the
// task ID, so a retried postback that somehow re-enqueues is deduplicated by
// the broker.
//
// Parameters:
// - entry *model.Transaction: The ledger entry to notify about.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) queueBonusPoints(entry *model.Transaction) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if cfg.BonusService.Url == "" {
		return nil
	}

	payload, err := json.Marshal(BonusPointsPayload{Data: *entry})
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(entry.TransactionID),
		asynq.Queue(cfg.Queue.BonusPointsQueue),
	}
	task := asynq.NewTask(cfg.Queue.BonusPointsQueue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued bonus points: %+v", entry.TransactionID)
	return nil
}

// queueWebhook enqueues a webhook notification task.
//
// Parameters:
// - newWebhook NewWebhook: The webhook notification data to enqueue.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) queueWebhook(newWebhook NewWebhook) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if cfg.Notification.Webhook.Url == "" {
		return nil
	}

	payload, err := json.Marshal(newWebhook)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{asynq.Queue(cfg.Queue.WebhookQueue)}
	task := asynq.NewTask(cfg.Queue.WebhookQueue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}
