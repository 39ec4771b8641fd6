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
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"

	"github.com/earnly-app/earnly/config"
	"github.com/earnly-app/earnly/internal/notification"
	"github.com/earnly-app/earnly/internal/request"
	"github.com/earnly-app/earnly/model"
)

// BonusNotification is the body posted to the bonus-points service after a
// credit lands. The service runs its own streak and multiplier rules; the
// engine only reports what was applied.
type BonusNotification struct {
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	Source        string `json:"source"`
	SourceID      string `json:"source_id"`
	TransactionID string `json:"transaction_id"`
}

func notifyBonusService(entry *model.Transaction) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.BonusService.Url == "" {
		return nil
	}

	payload, err := request.ToJsonReq(&BonusNotification{
		UserID:        entry.UserID,
		Amount:        entry.Amount,
		Source:        entry.Source,
		SourceID:      entry.SourceID,
		TransactionID: entry.TransactionID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", conf.BonusService.Url, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range conf.BonusService.Headers {
		req.Header.Set(key, value)
	}

	var response map[string]interface{}
	resp, err := request.Call(req, &response)
	if err != nil {
		notification.NotifyError(err)
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("bonus service returned status %d for transaction %s", resp.StatusCode, entry.TransactionID)
		notification.NotifyError(err)
		return err
	}
	return nil
}

// ProcessBonusPoints processes a bonus points task from the queue.
//
// Parameters:
// - _ context.Context: The context for the operation.
// - task *asynq.Task: The task containing the ledger entry payload.
//
// Returns:
// - error: An error if the notification fails, so asynq retries it.
func ProcessBonusPoints(_ context.Context, task *asynq.Task) error {
	var payload BonusPointsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		log.Printf("Error unmarshaling task payload: %v", err)
		return err
	}
	return notifyBonusService(&payload.Data)
}
