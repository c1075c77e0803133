/*
Copyright 2024 Blnk Finance Authors.

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
	"errors"
	"net/http"

	"github.com/blnkfinance/payouts"
	"github.com/blnkfinance/payouts/api/middleware"
	"github.com/blnkfinance/payouts/config"
	"github.com/blnkfinance/payouts/internal/apierror"
	"github.com/blnkfinance/payouts/model"
	"github.com/blnkfinance/payouts/provider"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// EventQueue hands verified provider events to the workers.
type EventQueue interface {
	EnqueueProviderEvent(ctx context.Context, event model.ProviderEvent) error
}

type Api struct {
	payouts       *payouts.Payouts
	events        EventQueue
	webhookSecret string
	secure        bool
	router        *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	// Provider deliveries are signature checked instead of key checked.
	router.POST("/webhooks/provider", middleware.VerifyProviderSignature(a.webhookSecret), a.ReceiveProviderWebhook)

	authed := router.Group("/")
	if a.secure {
		authed.Use(middleware.SecretKeyAuthMiddleware())
	}
	authed.Use(middleware.Authenticate())

	authed.POST("/transactions", a.CreateTransaction)
	authed.GET("/transactions", a.ListTransactions)
	authed.GET("/transactions/:id", a.GetTransaction)
	authed.POST("/transactions/:id/cancel", a.CancelTransaction)
	authed.POST("/transactions/:id/retry", a.RetryTransaction)

	authed.POST("/transfers", a.CreateTransfer)
	authed.GET("/transfers/:id", a.GetTransfer)

	authed.POST("/funding-sources", a.AddFundingSource)
	authed.POST("/funding-sources/:id/micro-deposits", a.InitiateMicroDeposits)
	authed.POST("/funding-sources/:id/verify", a.VerifyMicroDeposits)
	authed.PUT("/funding-sources/:id/default", a.SetDefaultFundingSource)

	return a.router
}

// NewAPI builds the HTTP surface. When events is nil provider webhooks are
// reconciled inline instead of being queued.
func NewAPI(p *payouts.Payouts, events EventQueue) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{
		payouts:       p,
		events:        events,
		webhookSecret: conf.Provider.WebhookSecret,
		secure:        conf.Server.Secure,
		router:        r,
	}
}

// requestContext returns the authenticated caller or aborts with 401.
func requestContext(c *gin.Context) (model.RequestContext, bool) {
	rc, ok := middleware.GetRequestContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return model.RequestContext{}, false
	}
	return rc, true
}

// respondWithError maps a service error to its HTTP status. Provider field
// errors are passed through so the client can fix its input.
func respondWithError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	body := gin.H{"error": err.Error()}

	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		body["code"] = apiErr.Code
		body["error"] = apiErr.Message
	}
	var reqErr *provider.RequestError
	if errors.As(err, &reqErr) && len(reqErr.FieldErrors) > 0 {
		body["field_errors"] = reqErr.FieldErrors
	}
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, body)
}
