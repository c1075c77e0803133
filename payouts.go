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

package payouts

import (
	"context"
	"embed"
	"errors"
	"strings"
	"time"

	"github.com/blnkfinance/payouts/config"
	"github.com/blnkfinance/payouts/database"
	"github.com/blnkfinance/payouts/internal/cache"
	"github.com/blnkfinance/payouts/mailer"
	"github.com/blnkfinance/payouts/provider"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("payouts")

//go:embed sql/*.sql
var SQLFiles embed.FS

// WebhookPublisher delivers outgoing status webhooks to the tenant.
type WebhookPublisher interface {
	PublishWebhook(ctx context.Context, webhook NewWebhook) error
}

// Options holds the collaborators of the settlement pipeline.
type Options struct {
	Provider            provider.Client
	Notifier            mailer.Sender
	Webhooks            WebhookPublisher
	Cache               cache.Cache
	Currency            string
	MasterFundingSource string
	ProviderTimeout     time.Duration
}

// Payouts batches contractor transactions into provider transfers and
// reconciles provider status changes back onto them.
type Payouts struct {
	datasource          database.IDataSource
	provider            provider.Client
	notifier            mailer.Sender
	webhooks            WebhookPublisher
	cache               cache.Cache
	currency            string
	masterFundingSource string
	providerTimeout     time.Duration
}

// NewPayouts wires the service with its datasource and collaborators.
//
// Parameters:
// - ds database.IDataSource: The datasource for database operations.
// - opts Options: The provider client, notifier and settings. Only Provider is required.
//
// Returns:
// - *Payouts: The configured service.
// - error: An error if a required collaborator is missing.
func NewPayouts(ds database.IDataSource, opts Options) (*Payouts, error) {
	if ds == nil {
		return nil, errors.New("datasource is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("payment provider client is required")
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = mailer.LogSender{}
	}
	currency := strings.ToUpper(opts.Currency)
	if currency == "" {
		currency = config.DEFAULT_CURRENCY
	}
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = config.DEFAULT_PROVIDER_TIMEOUT * time.Second
	}

	return &Payouts{
		datasource:          ds,
		provider:            opts.Provider,
		notifier:            notifier,
		webhooks:            opts.Webhooks,
		cache:               opts.Cache,
		currency:            currency,
		masterFundingSource: opts.MasterFundingSource,
		providerTimeout:     timeout,
	}, nil
}

// Provider returns the client used for money movement.
func (p *Payouts) Provider() provider.Client {
	return p.provider
}

func (p *Payouts) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.providerTimeout)
}
