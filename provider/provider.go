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

// Package provider maps raw reward-network postbacks onto canonical
// completion events and verifies their authenticity. Each network is
// described by a table entry, so onboarding a new network is additive.
package provider

import (
	"github.com/earnly-app/earnly/model"
)

type authScheme int

const (
	// schemeKeyedMD5 checks an MD5 digest of provider-specific fields and
	// the shared secret against a supplied signature field.
	schemeKeyedMD5 authScheme = iota
	// schemeHMACSorted checks an HMAC-SHA256 over the sorted query string.
	schemeHMACSorted
	// schemePresence has no cryptographic scheme; it only requires that
	// some signature-shaped field is present.
	schemePresence
)

// fieldSpec lists the candidate payload keys for each logical field, in
// priority order. Networks rename fields across integration versions, so the
// first non-empty candidate wins.
type fieldSpec struct {
	TrackingID    []string
	UserID        []string
	OfferID       []string
	TransactionID []string
	Payout        []string
	Signature     []string
	Status        []string
	// ReversalValues are the values of the status field (lowercased) that
	// mark a chargeback. Anything else is treated as completed.
	ReversalValues []string
	// TypeField, when set, names a secondary field whose value alone marks
	// a chargeback (e.g. type=chargeback).
	TypeField string
}

// Integration describes one reward network: how to decode its payloads, how
// to authenticate them, whether the engine may lazily create a completion on
// first contact, and how the HTTP adapter should shape the response body.
type Integration struct {
	Provider model.Provider
	Fields   fieldSpec
	Scheme   authScheme
	// Digest builds the expected keyed-hash input for schemeKeyedMD5.
	Digest func(raw map[string]string, secret string) string
	// AutoCreate marks networks whose postback may legitimately arrive
	// before any offer-start record exists.
	AutoCreate bool
	// PlainResponse marks networks that cannot inspect non-2xx responses
	// and expect a literal "1"/"0" body with HTTP 200.
	PlainResponse bool
}

// genericSignatureFields are the signature-shaped keys accepted by
// presence-only networks and used as signature material everywhere.
var genericSignatureFields = []string{"signature", "sig", "hash", "secure_hash", "token", "key"}

// registry is the closed provider set. model.ProviderOther deliberately has
// no entry; unrecognized networks fall back to the generic descriptor.
var registry = map[model.Provider]*Integration{
	model.ProviderKiwiwall: {
		Provider: model.ProviderKiwiwall,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id", "sub_id_2"},
			UserID:         []string{"sub_id", "user_id"},
			OfferID:        []string{"offer_id", "oid"},
			TransactionID:  []string{"trans_id", "transaction_id"},
			Payout:         []string{"amount", "payout"},
			Signature:      []string{"signature"},
			Status:         []string{"status"},
			ReversalValues: []string{"2"},
		},
		Scheme:        schemeKeyedMD5,
		Digest:        func(raw map[string]string, secret string) string { return first(raw, "sub_id", "user_id") + ":" + first(raw, "amount", "payout") + ":" + secret },
		AutoCreate:    true,
		PlainResponse: true,
	},
	model.ProviderAdGateMedia: {
		Provider: model.ProviderAdGateMedia,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id", "s2"},
			UserID:         []string{"userid", "user_id", "s1"},
			OfferID:        []string{"offer_id", "campaign_id"},
			TransactionID:  []string{"tx_id", "transaction_id", "point_id"},
			Payout:         []string{"point_value", "points", "payout"},
			Signature:      []string{"signature", "hash"},
			Status:         []string{"status"},
			ReversalValues: []string{"reversed"},
		},
		Scheme: schemePresence,
	},
	model.ProviderAdGem: {
		Provider: model.ProviderAdGem,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id", "c1"},
			UserID:         []string{"player_id", "user_id"},
			OfferID:        []string{"offer_id", "campaign_id"},
			TransactionID:  []string{"transaction_id", "txid"},
			Payout:         []string{"amount", "points"},
			Signature:      []string{"signature", "hash"},
			Status:         []string{"status"},
			ReversalValues: []string{"chargeback"},
			TypeField:      "type",
		},
		Scheme: schemePresence,
	},
	model.ProviderOfferToro: {
		Provider: model.ProviderOfferToro,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id"},
			UserID:         []string{"user_id", "uid"},
			OfferID:        []string{"oid", "offer_id"},
			TransactionID:  []string{"o_trans_id", "trans_id"},
			Payout:         []string{"amount", "payout"},
			Signature:      []string{"sig", "signature"},
			Status:         []string{"status"},
			ReversalValues: []string{"2"},
		},
		Scheme: schemeKeyedMD5,
		Digest: func(raw map[string]string, secret string) string {
			return first(raw, "oid", "offer_id") + "-" + first(raw, "user_id", "uid") + "-" + secret
		},
	},
	model.ProviderAyetStudios: {
		Provider: model.ProviderAyetStudios,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id", "external_identifier"},
			UserID:         []string{"uid", "user_id"},
			OfferID:        []string{"offer_id", "adslot_id"},
			TransactionID:  []string{"transaction_id", "conversion_id"},
			Payout:         []string{"currency_amount", "amount"},
			Signature:      []string{"signature", "hash"},
			Status:         []string{"status"},
			ReversalValues: []string{"chargeback", "reversed"},
		},
		Scheme: schemeHMACSorted,
	},
	model.ProviderCPXResearch: {
		Provider: model.ProviderCPXResearch,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id", "subid_1"},
			UserID:         []string{"user_id", "ext_user_id"},
			OfferID:        []string{"survey_id", "offer_id"},
			TransactionID:  []string{"trans_id", "transaction_id"},
			Payout:         []string{"amount_local", "amount"},
			Signature:      []string{"secure_hash", "hash"},
			Status:         []string{"status"},
			ReversalValues: []string{"2"},
		},
		Scheme:     schemeKeyedMD5,
		Digest:     func(raw map[string]string, secret string) string { return first(raw, "user_id", "ext_user_id") + "-" + secret },
		AutoCreate: true,
	},
	model.ProviderBitLabs: {
		Provider: model.ProviderBitLabs,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id", "tag"},
			UserID:         []string{"uid", "user_id"},
			OfferID:        []string{"survey_id", "offer_id"},
			TransactionID:  []string{"tx", "transaction_id"},
			Payout:         []string{"val", "value", "amount"},
			Signature:      []string{"hash", "signature"},
			Status:         []string{"type", "status"},
			ReversalValues: []string{"reconciliation", "chargeback", "reversed"},
		},
		Scheme:     schemeHMACSorted,
		AutoCreate: true,
	},
	model.ProviderPollfish: {
		Provider: model.ProviderPollfish,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id", "request_uuid"},
			UserID:         []string{"device_id", "user_id"},
			OfferID:        []string{"survey_id", "offer_id"},
			TransactionID:  []string{"tx_id", "transaction_id"},
			Payout:         []string{"cpa", "reward_value", "amount"},
			Signature:      []string{"signature", "sig"},
			Status:         []string{"status"},
			ReversalValues: []string{"reversed"},
		},
		Scheme: schemePresence,
	},
	model.ProviderTheoremReach: {
		Provider: model.ProviderTheoremReach,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id"},
			UserID:         []string{"user_id", "uid"},
			OfferID:        []string{"survey_id", "offer_id"},
			TransactionID:  []string{"transaction_id", "tx_id"},
			Payout:         []string{"reward", "amount"},
			Signature:      []string{"hash", "signature"},
			Status:         []string{"status"},
			ReversalValues: []string{"reversed", "chargeback"},
		},
		Scheme:     schemeKeyedMD5,
		Digest:     func(raw map[string]string, secret string) string { return first(raw, "user_id", "uid") + "-" + secret },
		AutoCreate: true,
	},
	model.ProviderWannads: {
		Provider: model.ProviderWannads,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id", "sub_id"},
			UserID:         []string{"subId", "user_id", "sub_id"},
			OfferID:        []string{"campaignId", "offer_id"},
			TransactionID:  []string{"transactionId", "transaction_id"},
			Payout:         []string{"reward", "amount"},
			Signature:      []string{"signature", "sig"},
			Status:         []string{"status"},
			ReversalValues: []string{"chargeback", "reversed"},
		},
		Scheme: schemePresence,
	},
	model.ProviderLootably: {
		Provider: model.ProviderLootably,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id"},
			UserID:         []string{"userID", "user_id"},
			OfferID:        []string{"offerID", "offer_id"},
			TransactionID:  []string{"transactionID", "transaction_id"},
			Payout:         []string{"currencyReward", "revenue", "amount"},
			Signature:      []string{"hash", "signature"},
			Status:         []string{"status"},
			ReversalValues: []string{"chargeback"},
		},
		Scheme: schemePresence,
	},
	model.ProviderRevenueUniverse: {
		Provider: model.ProviderRevenueUniverse,
		Fields: fieldSpec{
			TrackingID:     []string{"tracking_id"},
			UserID:         []string{"user_id", "uid"},
			OfferID:        []string{"offer_id", "wall_id"},
			TransactionID:  []string{"trans_id", "transaction_id"},
			Payout:         []string{"points", "amount"},
			Signature:      []string{"signature", "token"},
			Status:         []string{"status"},
			ReversalValues: []string{"reversed", "2"},
		},
		Scheme: schemePresence,
	},
}

// generic is the fallback descriptor for ProviderOther. Presence-only
// authentication, no auto-create, widest field vocabulary.
var generic = &Integration{
	Provider: model.ProviderOther,
	Fields: fieldSpec{
		TrackingID:     []string{"tracking_id", "track_id", "sub_id_2"},
		UserID:         []string{"user_id", "userid", "uid", "sub_id", "player_id"},
		OfferID:        []string{"offer_id", "oid", "campaign_id"},
		TransactionID:  []string{"transaction_id", "trans_id", "tx_id", "txid"},
		Payout:         []string{"payout", "amount", "points", "reward"},
		Signature:      genericSignatureFields,
		Status:         []string{"status"},
		ReversalValues: []string{"2", "reversed", "chargeback"},
		TypeField:      "type",
	},
	Scheme: schemePresence,
}

// Lookup returns the integration descriptor for a provider. Every provider
// resolves to a descriptor; unknown ones get the generic fallback.
func Lookup(p model.Provider) *Integration {
	if integration, ok := registry[p]; ok {
		return integration
	}
	return generic
}

// Detect resolves the provider from the merged payload. The route parameter,
// when present, wins over payload fields.
func Detect(routeProvider string, raw map[string]string) model.Provider {
	if routeProvider != "" {
		return model.ParseProvider(routeProvider)
	}
	if v := first(raw, "provider", "network"); v != "" {
		return model.ParseProvider(v)
	}
	return model.ProviderOther
}

// AutoCreate reports whether the engine may synthesize a pending completion
// for this provider on first notification.
func AutoCreate(p model.Provider) bool {
	return Lookup(p).AutoCreate
}

// PlainResponse reports whether the HTTP adapter must answer with a bare
// "1"/"0" body and HTTP 200 regardless of outcome.
func PlainResponse(p model.Provider) bool {
	return Lookup(p).PlainResponse
}

func first(raw map[string]string, candidates ...string) string {
	for _, key := range candidates {
		if v, ok := raw[key]; ok && v != "" {
			return v
		}
	}
	return ""
}
