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

	"github.com/gin-gonic/gin"

	"github.com/earnly-app/earnly"
	"github.com/earnly-app/earnly/api/middleware"
	"github.com/earnly-app/earnly/config"
	"github.com/earnly-app/earnly/model"
)

// Service is the slice of the engine the HTTP layer needs.
type Service interface {
	ProcessPostback(ctx context.Context, routeProvider string, raw map[string]string) (*earnly.PostbackResult, error)
	CreateUserBalance(ctx context.Context, balance *model.UserBalance) error
	GetUserBalance(ctx context.Context, userID string) (*model.UserBalance, error)
	CreateCompletion(ctx context.Context, completion *model.OfferCompletion) error
	GetCompletion(ctx context.Context, completionID string) (*model.OfferCompletion, error)
	GetCompletionsByUser(ctx context.Context, userID string, limit, offset int) ([]model.OfferCompletion, error)
	GetTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]model.Transaction, error)
}

type Api struct {
	earnly Service
	router *gin.Engine
}

// Router wires the route table. Postback routes accept both GET and POST
// because networks differ on which they send; everything else is an admin
// surface behind the secret key.
func (a Api) Router() *gin.Engine {
	router := a.router

	router.GET("/postbacks", a.HandlePostback)
	router.POST("/postbacks", a.HandlePostback)
	router.GET("/postbacks/:provider", a.HandlePostback)
	router.POST("/postbacks/:provider", a.HandlePostback)

	admin := router.Group("/", middleware.SecretKeyAuthMiddleware())
	admin.POST("/users", a.CreateUser)
	admin.GET("/users/:user_id/balance", a.GetUserBalance)
	admin.GET("/users/:user_id/completions", a.GetUserCompletions)
	admin.GET("/users/:user_id/transactions", a.GetUserTransactions)
	admin.POST("/completions", a.CreateCompletion)
	admin.GET("/completions/:id", a.GetCompletion)

	return a.router
}

func NewAPI(e Service) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{earnly: e, router: r}
}
