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
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earnly-app/earnly"
	"github.com/earnly-app/earnly/config"
	"github.com/earnly-app/earnly/internal/apierror"
	"github.com/earnly-app/earnly/model"
)

type stubService struct {
	result       *earnly.PostbackResult
	err          error
	lastProvider string
	lastRaw      map[string]string

	balance     *model.UserBalance
	completion  *model.OfferCompletion
	completions []model.OfferCompletion
	entries     []model.Transaction
}

func (s *stubService) ProcessPostback(_ context.Context, routeProvider string, raw map[string]string) (*earnly.PostbackResult, error) {
	s.lastProvider = routeProvider
	s.lastRaw = raw
	return s.result, s.err
}

func (s *stubService) CreateUserBalance(_ context.Context, balance *model.UserBalance) error {
	s.balance = balance
	return s.err
}

func (s *stubService) GetUserBalance(_ context.Context, userID string) (*model.UserBalance, error) {
	if s.balance == nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "User with ID '"+userID+"' not found", nil)
	}
	return s.balance, nil
}

func (s *stubService) CreateCompletion(_ context.Context, completion *model.OfferCompletion) error {
	s.completion = completion
	return s.err
}

func (s *stubService) GetCompletion(_ context.Context, completionID string) (*model.OfferCompletion, error) {
	if s.completion == nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Completion with ID '"+completionID+"' not found", nil)
	}
	return s.completion, nil
}

func (s *stubService) GetCompletionsByUser(_ context.Context, _ string, _, _ int) ([]model.OfferCompletion, error) {
	return s.completions, nil
}

func (s *stubService) GetTransactionsByUser(_ context.Context, _ string, _, _ int) ([]model.Transaction, error) {
	return s.entries, nil
}

func newTestRouter(t *testing.T, service *stubService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.MockConfig(&config.Configuration{
		Server: config.ServerConfig{SecretKey: "admin-secret", Port: "5002"},
	})
	a := NewAPI(service)
	require.NotNil(t, a)
	return a.Router()
}

func accepted(p model.Provider) *earnly.PostbackResult {
	return &earnly.PostbackResult{Status: earnly.PostbackAccepted, Provider: p, Credited: true}
}

func TestPostbackPlainResponseSuccess(t *testing.T) {
	service := &stubService{result: accepted(model.ProviderKiwiwall)}
	router := newTestRouter(t, service)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/postbacks/kiwiwall?sub_id=u1&amount=100&signature=abc", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Body.String())
	assert.Equal(t, "kiwiwall", service.lastProvider)
	assert.Equal(t, "u1", service.lastRaw["sub_id"])
}

func TestPostbackPlainResponseFailureStillHTTP200(t *testing.T) {
	service := &stubService{result: &earnly.PostbackResult{Status: earnly.PostbackInvalidSignature, Provider: model.ProviderKiwiwall}}
	router := newTestRouter(t, service)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/postbacks/kiwiwall?sub_id=u1&signature=bad", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Body.String())
}

func TestPostbackJSONResponses(t *testing.T) {
	cases := []struct {
		name         string
		status       earnly.PostbackStatus
		expectedCode int
	}{
		{"accepted", earnly.PostbackAccepted, http.StatusOK},
		{"not found", earnly.PostbackNotFound, http.StatusNotFound},
		{"invalid signature", earnly.PostbackInvalidSignature, http.StatusForbidden},
		{"malformed", earnly.PostbackMalformed, http.StatusBadRequest},
		{"internal error", earnly.PostbackInternalError, http.StatusInternalServerError},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			service := &stubService{result: &earnly.PostbackResult{Status: tt.status, Provider: model.ProviderAdGateMedia}}
			router := newTestRouter(t, service)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/postbacks/adgatemedia?userid=u1", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.status == earnly.PostbackAccepted {
				assert.Contains(t, w.Body.String(), `"success":true`)
			} else {
				assert.Contains(t, w.Body.String(), `"success":false`)
			}
		})
	}
}

func TestPostbackUnknownUserIsStillSuccess(t *testing.T) {
	service := &stubService{result: &earnly.PostbackResult{
		Status:       earnly.PostbackAccepted,
		Provider:     model.ProviderAdGateMedia,
		FailedNoUser: true,
	}}
	router := newTestRouter(t, service)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/postbacks/adgatemedia?userid=ghost", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestPostbackMergesBodyOverQuery(t *testing.T) {
	service := &stubService{result: accepted(model.ProviderKiwiwall)}
	router := newTestRouter(t, service)

	form := url.Values{}
	form.Set("amount", "250")
	form.Set("trans_id", "tx_9")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/postbacks/kiwiwall?sub_id=u1&amount=100", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", service.lastRaw["sub_id"])
	assert.Equal(t, "250", service.lastRaw["amount"])
	assert.Equal(t, "tx_9", service.lastRaw["trans_id"])
}

func TestPostbackJSONBody(t *testing.T) {
	service := &stubService{result: accepted(model.ProviderBitLabs)}
	router := newTestRouter(t, service)

	body := `{"uid":"u1","val":2.5,"tx":"tx_1","type":"complete"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/postbacks/bitlabs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", service.lastRaw["uid"])
	assert.Equal(t, "2.5", service.lastRaw["val"])
}

func TestPostbackToleratesJunkBody(t *testing.T) {
	service := &stubService{result: accepted(model.ProviderKiwiwall)}
	router := newTestRouter(t, service)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/postbacks/kiwiwall?sub_id=u1&amount=100", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", service.lastRaw["sub_id"])
}

func TestAdminRoutesRequireSecretKey(t *testing.T) {
	service := &stubService{balance: &model.UserBalance{UserID: "u1", Points: 100}}
	router := newTestRouter(t, service)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/users/u1/balance", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/users/u1/balance", nil)
	req.Header.Set("X-Earnly-Key", "admin-secret")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"u1"`)
}

func TestAdminCreateUserValidation(t *testing.T) {
	service := &stubService{}
	router := newTestRouter(t, service)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/users", strings.NewReader(`{"points":100}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Earnly-Key", "admin-secret")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/users", strings.NewReader(`{"user_id":"u1","points":100}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Earnly-Key", "admin-secret")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, service.balance)
	assert.Equal(t, int64(100), service.balance.Points)
}

func TestAdminGetCompletionNotFound(t *testing.T) {
	service := &stubService{}
	router := newTestRouter(t, service)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/completions/missing", nil)
	req.Header.Set("X-Earnly-Key", "admin-secret")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
