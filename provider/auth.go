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
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/earnly-app/earnly/config"
	"github.com/earnly-app/earnly/model"
)

// Verify authenticates a raw postback against the provider's scheme and the
// configured shared secret. It never persists anything and never panics
// outward; any internal failure downgrades to false.
func Verify(p model.Provider, raw map[string]string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("postback verify panic for provider %s: %v", p, r)
			ok = false
		}
	}()

	if raw == nil {
		return false
	}

	integration := Lookup(p)

	switch integration.Scheme {
	case schemeKeyedMD5:
		return verifyKeyedMD5(integration, raw)
	case schemeHMACSorted:
		return verifyHMACSorted(integration, raw)
	default:
		return verifyPresence(integration, raw)
	}
}

// verifyKeyedMD5 compares an MD5 digest of the provider's keyed material
// against the supplied signature field. A missing secret fails open only
// outside production.
func verifyKeyedMD5(integration *Integration, raw map[string]string) bool {
	secret, observeOnly := providerSecret(integration.Provider)
	if secret == "" {
		return failOpen(integration.Provider)
	}

	supplied := first(raw, integration.Fields.Signature...)
	if supplied == "" {
		logrus.Warnf("postback for %s carries no signature field", integration.Provider)
		return false
	}

	sum := md5.Sum([]byte(integration.Digest(raw, secret)))
	expected := hex.EncodeToString(sum[:])
	if constantCompare(expected, strings.ToLower(supplied)) {
		return true
	}
	if observeOnly {
		logrus.Warnf("keyed-hash mismatch for %s accepted in observe-only mode", integration.Provider)
		return true
	}
	return false
}

// verifyHMACSorted reconstructs a deterministic key=value&... string from all
// fields except signature/provider material, sorted by key, and checks an
// HMAC-SHA256 against the supplied signature. Because the exact
// canonicalization is provider-documentation-dependent, the per-provider
// observe_only toggle logs a mismatch and accepts instead of rejecting.
func verifyHMACSorted(integration *Integration, raw map[string]string) bool {
	secret, observeOnly := providerSecret(integration.Provider)
	if secret == "" {
		return failOpen(integration.Provider)
	}

	supplied := first(raw, integration.Fields.Signature...)
	if supplied == "" {
		logrus.Warnf("postback for %s carries no signature field", integration.Provider)
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(CanonicalQueryString(raw)))
	expected := hex.EncodeToString(mac.Sum(nil))
	if constantCompare(expected, strings.ToLower(supplied)) {
		return true
	}
	if observeOnly {
		logrus.Warnf("hmac mismatch for %s accepted in observe-only mode", integration.Provider)
		return true
	}
	logrus.Warnf("hmac mismatch for %s rejected", integration.Provider)
	return false
}

// verifyPresence accepts when any signature-shaped field is present. The
// rejection is logged so missing-signature traffic stays visible.
func verifyPresence(integration *Integration, raw map[string]string) bool {
	for _, key := range genericSignatureFields {
		if raw[key] != "" {
			return true
		}
	}
	logrus.Warnf("postback for %s rejected: no signature-shaped field present", integration.Provider)
	return false
}

// CanonicalQueryString builds the deterministic signing string for HMAC
// schemes: every field except signature/hash/provider keys, sorted by key,
// joined as key=value&...
func CanonicalQueryString(raw map[string]string) string {
	excluded := map[string]bool{"provider": true, "network": true}
	for _, key := range genericSignatureFields {
		excluded[key] = true
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		if excluded[key] {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+raw[key])
	}
	return strings.Join(parts, "&")
}

func providerSecret(p model.Provider) (string, bool) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Errorf("config unavailable during postback verification: %v", err)
		return "", false
	}
	providerConf := conf.Providers.Get(p.String())
	return providerConf.Secret, providerConf.ObserveOnly
}

// failOpen decides what a missing secret means. Production always fails
// closed; anywhere else the postback is accepted so integration environments
// work before secrets are provisioned.
func failOpen(p model.Provider) bool {
	conf, err := config.Fetch()
	if err != nil {
		return false
	}
	if conf.IsProduction() {
		logrus.Errorf("no secret configured for %s in production, rejecting postback", p)
		return false
	}
	logrus.Warnf("no secret configured for %s, accepting postback in %s", p, conf.Environment)
	return true
}

func constantCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
