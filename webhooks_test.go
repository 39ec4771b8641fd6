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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earnly-app/earnly/config"
	"github.com/earnly-app/earnly/model"
)

func webhookConfig(redisAddr, webhookURL string) *config.Configuration {
	cnf := &config.Configuration{
		Redis: config.RedisConfig{Dns: redisAddr},
		Queue: config.QueueConfig{
			BonusPointsQueue: "new:bonus_points",
			WebhookQueue:     "new:webhook",
		},
	}
	cnf.Notification.Webhook.Url = webhookURL
	return cnf
}

func TestQueueWebhook(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	defer mr.Close()

	config.ConfigStore.Store(webhookConfig(mr.Addr(), "https://localhost:5001/webhook"))

	conf, err := config.Fetch()
	require.NoError(t, err)
	queue := NewQueue(conf)

	testData := NewWebhook{
		Event:   EventCompletionCredited,
		Payload: &model.OfferCompletion{CompletionID: "trk_1", UserID: "u1"},
	}

	err = queue.queueWebhook(testData)
	assert.NoError(t, err)

	// Verify that the task was enqueued
	tasks := mr.Keys()
	assert.NotEmpty(t, tasks)
}

func TestQueueWebhookSkipsWhenUnconfigured(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	defer mr.Close()

	config.ConfigStore.Store(webhookConfig(mr.Addr(), ""))

	conf, err := config.Fetch()
	require.NoError(t, err)
	queue := NewQueue(conf)

	err = queue.queueWebhook(NewWebhook{Event: EventCompletionCredited})
	assert.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestProcessWebhookDeliversNotification(t *testing.T) {
	var received NewWebhook
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "secret-header", r.Header.Get("X-Earnly-Webhook"))
		err := json.NewDecoder(r.Body).Decode(&received)
		assert.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cnf := webhookConfig("localhost:6379", server.URL)
	cnf.Notification.Webhook.Headers = map[string]string{"X-Earnly-Webhook": "secret-header"}
	config.ConfigStore.Store(cnf)

	payload, err := json.Marshal(NewWebhook{
		Event:   EventCompletionReversed,
		Payload: map[string]interface{}{"completion_id": "trk_1"},
	})
	require.NoError(t, err)

	task := asynq.NewTask("new:webhook", payload)
	err = ProcessWebhook(context.Background(), task)
	assert.NoError(t, err)
	assert.Equal(t, EventCompletionReversed, received.Event)
}

func TestProcessWebhookSkipsWhenUnconfigured(t *testing.T) {
	config.ConfigStore.Store(webhookConfig("localhost:6379", ""))

	task := asynq.NewTask("new:webhook", []byte(`{"event":"completion.credited"}`))
	err := ProcessWebhook(context.Background(), task)
	assert.NoError(t, err)
}
