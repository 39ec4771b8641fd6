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

package provider

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/earnly-app/earnly/model"
)

// Parse maps a raw postback payload onto a canonical CompletionEvent using
// the provider's field tables. It returns nil only when the payload is
// structurally unusable; the caller must treat nil as a permanent 400-class
// rejection, never a retry signal.
func Parse(p model.Provider, raw map[string]string) (event *model.CompletionEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("postback parse panic for provider %s: %v", p, r)
			event = nil
		}
	}()

	if raw == nil {
		return nil
	}

	integration := Lookup(p)
	spec := integration.Fields

	userID := first(raw, spec.UserID...)
	if userID == "" {
		// Without a user there is nothing to credit.
		return nil
	}

	transactionID := first(raw, spec.TransactionID...)
	if transactionID == "" {
		// Some networks omit their transaction id entirely. Synthesize one
		// so the completion still gets a stable external reference.
		transactionID = fmt.Sprintf("%s_%d", p, time.Now().UnixNano())
	}

	event = &model.CompletionEvent{
		Provider:      p,
		TrackingID:    first(raw, spec.TrackingID...),
		UserID:        userID,
		OfferID:       first(raw, spec.OfferID...),
		TransactionID: transactionID,
		Payout:        parsePayout(raw, spec.Payout),
		Status:        parseStatus(raw, spec),
		RawFields:     raw,
	}
	return event
}

// parsePayout takes the first candidate field that parses as an integer.
// Fractional values are truncated; missing or unparseable values default to
// zero rather than rejecting the postback.
func parsePayout(raw map[string]string, candidates []string) int64 {
	for _, key := range candidates {
		v, ok := raw[key]
		if !ok || v == "" {
			continue
		}
		if amount, err := strconv.ParseInt(v, 10, 64); err == nil {
			if amount < 0 {
				return 0
			}
			return amount
		}
		if amount, err := strconv.ParseFloat(v, 64); err == nil {
			if amount < 0 {
				return 0
			}
			return int64(amount)
		}
	}
	return 0
}

// parseStatus recognizes the provider's chargeback vocabulary. Anything not
// recognized as a reversal marker is treated as completed.
func parseStatus(raw map[string]string, spec fieldSpec) model.EventStatus {
	if spec.TypeField != "" {
		if v := strings.ToLower(raw[spec.TypeField]); v == "chargeback" || v == "reversal" {
			return model.EventReversed
		}
	}
	status := strings.ToLower(first(raw, spec.Status...))
	if status == "" {
		return model.EventCompleted
	}
	for _, marker := range spec.ReversalValues {
		if status == marker {
			return model.EventReversed
		}
	}
	return model.EventCompleted
}
