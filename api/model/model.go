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
package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/earnly-app/earnly/model"
)

// CreateUser is the admin request for seeding a user balance record.
type CreateUser struct {
	UserID   string                 `json:"user_id"`
	Points   int64                  `json:"points"`
	MetaData map[string]interface{} `json:"meta_data"`
}

func (u *CreateUser) ValidateCreateUser() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.UserID, validation.Required),
		validation.Field(&u.Points, validation.Min(0)),
	)
}

func (u *CreateUser) ToUserBalance() *model.UserBalance {
	return &model.UserBalance{
		UserID:        u.UserID,
		Points:        u.Points,
		TotalPoints:   u.Points,
		TotalEarnings: u.Points,
		MetaData:      u.MetaData,
	}
}

// CreateCompletion is the request recorded when a user starts an offer. Its
// completion ID is the tracking ID the provider will echo back.
type CreateCompletion struct {
	CompletionID string                 `json:"completion_id"`
	UserID       string                 `json:"user_id"`
	OfferID      string                 `json:"offer_id"`
	Provider     string                 `json:"provider"`
	Payout       int64                  `json:"payout"`
	MetaData     map[string]interface{} `json:"meta_data"`
}

func (cc *CreateCompletion) ValidateCreateCompletion() error {
	return validation.ValidateStruct(cc,
		validation.Field(&cc.CompletionID, validation.Required),
		validation.Field(&cc.UserID, validation.Required),
		validation.Field(&cc.Provider, validation.Required),
		validation.Field(&cc.Payout, validation.Min(0)),
	)
}

func (cc *CreateCompletion) ToCompletion() *model.OfferCompletion {
	return &model.OfferCompletion{
		CompletionID: cc.CompletionID,
		UserID:       cc.UserID,
		OfferID:      cc.OfferID,
		Provider:     model.ParseProvider(cc.Provider),
		Payout:       cc.Payout,
		Status:       model.CompletionPending,
		StartedAt:    time.Now(),
		MetaData:     cc.MetaData,
	}
}
