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
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/earnly-app/earnly/database"
	"github.com/earnly-app/earnly/internal/apierror"
	"github.com/earnly-app/earnly/internal/notification"
	"github.com/earnly-app/earnly/model"
	"github.com/earnly-app/earnly/provider"
)

var tracer = otel.Tracer("Reconcile postback")

// PostbackStatus classifies the outcome of processing one postback. The HTTP
// adapter maps it onto whatever response shape the provider expects.
type PostbackStatus string

const (
	PostbackAccepted         PostbackStatus = "accepted"
	PostbackNotFound         PostbackStatus = "not_found"
	PostbackInvalidSignature PostbackStatus = "invalid_signature"
	PostbackMalformed        PostbackStatus = "malformed"
	PostbackInternalError    PostbackStatus = "internal_error"
)

// PostbackResult is what ProcessPostback hands back to the transport layer.
// Credited/Reversed/NoOp/FailedNoUser refine an accepted outcome; they are
// all success from the provider's point of view, since a retried postback
// must never be answered with an error that triggers another retry.
type PostbackResult struct {
	Status       PostbackStatus
	Provider     model.Provider
	CompletionID string
	Credited     bool
	Reversed     bool
	NoOp         bool
	FailedNoUser bool
	Message      string
}

// errNotLocated is the internal signal that every locate strategy came up
// empty for a provider that does not auto-create.
var errNotLocated = errors.New("completion not located")

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// ProcessPostback runs the full reconciliation pipeline for one inbound
// postback: detect the provider, decode the payload into a canonical event,
// verify its signature, locate (or create) the completion record, apply the
// event in a single atomic store transaction, and fire side effects.
//
// Side effects are dispatched only after the transaction commits and their
// failures never change the result; the provider has already been promised
// an answer derived from committed state.
func (e *Earnly) ProcessPostback(ctx context.Context, routeProvider string, raw map[string]string) (*PostbackResult, error) {
	ctx, span := tracer.Start(ctx, "Processing postback")
	defer span.End()

	p := provider.Detect(routeProvider, raw)
	result := &PostbackResult{Provider: p}

	event := provider.Parse(p, raw)
	if event == nil {
		result.Status = PostbackMalformed
		result.Message = "postback payload is missing a user identifier"
		span.AddEvent("postback rejected as malformed")
		return result, nil
	}

	if !provider.Verify(p, raw) {
		result.Status = PostbackInvalidSignature
		result.Message = "signature verification failed"
		logrus.WithFields(logrus.Fields{
			"provider": p.String(),
			"user_id":  event.UserID,
		}).Warn("rejected postback with invalid signature")
		span.AddEvent("postback rejected, invalid signature")
		return result, nil
	}

	completionID, err := e.locateCompletion(ctx, event, time.Now())
	if err != nil {
		if errors.Is(err, errNotLocated) {
			result.Status = PostbackNotFound
			result.Message = fmt.Sprintf("no completion found for tracking ID '%s'", event.TrackingID)
			return result, nil
		}
		result.Status = PostbackInternalError
		return result, logAndRecordError(span, "failed to locate completion: ", err)
	}
	result.CompletionID = completionID

	applied, err := e.datasource.ApplyCompletionEvent(ctx, completionID, event)
	if err != nil {
		if isNotFound(err) {
			// The completion vanished between locate and apply. Treat it the
			// same as never located; the provider will retry.
			result.Status = PostbackNotFound
			result.Message = fmt.Sprintf("completion '%s' not found", completionID)
			return result, nil
		}
		result.Status = PostbackInternalError
		notification.NotifyError(err)
		return result, logAndRecordError(span, "failed to apply completion event: ", err)
	}

	result.Status = PostbackAccepted
	result.Credited = applied.Credited
	result.Reversed = applied.Reversed
	result.NoOp = applied.NoOp
	result.FailedNoUser = applied.FailedNoUser

	e.postSideEffects(applied)
	span.AddEvent("postback applied")
	return result, nil
}

// locateCompletion resolves the completion record the event should apply to,
// in order: direct lookup by tracking ID, collision disambiguation when the
// provider recycled a tracking ID across two users, fallback to the most
// recent pending completion for (user, offer), and finally auto-creation for
// providers whose postbacks legitimately precede any offer-start record.
func (e *Earnly) locateCompletion(ctx context.Context, event *model.CompletionEvent, now time.Time) (string, error) {
	if event.TrackingID != "" {
		completion, err := e.datasource.GetCompletion(ctx, event.TrackingID)
		if err == nil {
			if completion.UserID != event.UserID {
				// The provider reused a tracking ID for a different user. The
				// original record stays with the first user untouched; this
				// event gets its own completion under a derived key.
				logrus.WithFields(logrus.Fields{
					"tracking_id":   event.TrackingID,
					"existing_user": completion.UserID,
					"event_user":    event.UserID,
				}).Warn("tracking ID collision, creating disambiguated completion")
				newID := model.DisambiguatedCompletionID(event.TrackingID, event.UserID, now)
				fresh := model.NewCompletionFromEvent(event, newID, now)
				if err := e.datasource.CreateCompletion(ctx, fresh); err != nil {
					return "", err
				}
				return newID, nil
			}
			return completion.CompletionID, nil
		}
		if !isNotFound(err) {
			return "", err
		}
	}

	if event.UserID != "" && event.OfferID != "" {
		pending, err := e.datasource.GetPendingCompletion(ctx, event.UserID, event.OfferID)
		if err == nil {
			return pending.CompletionID, nil
		}
		if !isNotFound(err) {
			return "", err
		}
	}

	if provider.AutoCreate(event.Provider) {
		completionID := event.TrackingID
		if completionID == "" {
			completionID = fmt.Sprintf("%s_%s", event.Provider.String(), event.TransactionID)
		}
		fresh := model.NewCompletionFromEvent(event, completionID, now)
		if err := e.datasource.CreateCompletion(ctx, fresh); err != nil {
			return "", err
		}
		return completionID, nil
	}

	return "", errNotLocated
}

// postSideEffects dispatches the out-of-transaction consequences of an
// applied event. Everything here is best effort; failures are logged and
// reported but never propagate back to the postback response.
func (e *Earnly) postSideEffects(applied *database.ApplyResult) {
	if applied.Credited && applied.Entry != nil {
		if err := e.queue.queueBonusPoints(applied.Entry); err != nil {
			logrus.Error("failed to enqueue bonus points: ", err)
			notification.NotifyError(err)
		}
		if err := e.queue.queueWebhook(NewWebhook{Event: EventCompletionCredited, Payload: applied.Completion}); err != nil {
			logrus.Error("failed to enqueue webhook: ", err)
		}
	}

	if applied.Reversed {
		if err := e.queue.queueWebhook(NewWebhook{Event: EventCompletionReversed, Payload: applied.Completion}); err != nil {
			logrus.Error("failed to enqueue webhook: ", err)
		}
	}

	if applied.FailedNoUser {
		err := fmt.Errorf("completion %s credited against unknown user %s, marked failed_no_user", applied.Completion.CompletionID, applied.Completion.UserID)
		notification.NotifyError(err)
		if werr := e.queue.queueWebhook(NewWebhook{Event: EventCompletionFailed, Payload: applied.Completion}); werr != nil {
			logrus.Error("failed to enqueue webhook: ", werr)
		}
	}
}

func isNotFound(err error) bool {
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == apierror.ErrNotFound
	}
	return false
}
