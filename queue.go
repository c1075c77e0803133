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
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/blnkfinance/payouts/config"
	redis_db "github.com/blnkfinance/payouts/internal/redis-db"
	"github.com/blnkfinance/payouts/mailer"
	"github.com/blnkfinance/payouts/model"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
)

// Queue enqueues provider events, notifications and outgoing webhooks for the workers.
type Queue struct {
	Client     *asynq.Client
	conf       config.QueueConfig
	webhookURL string
}

// NotificationPayload is a queued notification.
type NotificationPayload struct {
	Kind      model.NotificationKind `json:"kind"`
	Recipient model.Recipient        `json:"recipient"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
// - error: An error if the redis address cannot be parsed.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opts, err := redis_db.AsynqOptions(conf.Redis)
	if err != nil {
		return nil, err
	}
	return &Queue{
		Client:     asynq.NewClient(opts),
		conf:       conf.Queue,
		webhookURL: conf.Notification.Webhook.Url,
	}, nil
}

func (q *Queue) Close() error {
	return q.Client.Close()
}

// EnqueueProviderEvent queues a provider webhook event for reconciliation.
// Events are keyed by their id, so a redelivered event is only queued once.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - event model.ProviderEvent: The event received from the provider.
//
// Returns:
// - error: An error if the event could not be enqueued.
func (q *Queue) EnqueueProviderEvent(ctx context.Context, event model.ProviderEvent) error {
	ctx, span := tracer.Start(ctx, "Adding Provider Event To Redis Queue")
	defer span.End()

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{asynq.Queue(q.conf.ProviderEventQueue), asynq.MaxRetry(q.conf.MaxRetry)}
	if event.ID != "" {
		taskOptions = append(taskOptions, asynq.TaskID(event.ID))
	}
	task := asynq.NewTask(q.conf.ProviderEventQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		log.Printf(" [*] Provider event already queued: %s", event.ID)
		return nil
	}
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued provider event: %s %s", event.Topic, event.ID)
	return nil
}

// Send queues a notification for delivery by the workers, so Queue can stand in
// for a mailer.Sender. The boolean reports that the notification was queued.
func (q *Queue) Send(ctx context.Context, kind model.NotificationKind, recipient model.Recipient, data map[string]interface{}) (bool, error) {
	payload, err := json.Marshal(NotificationPayload{Kind: kind, Recipient: recipient, Data: data})
	if err != nil {
		return false, err
	}
	task := asynq.NewTask(q.conf.NotificationQueue, payload, asynq.Queue(q.conf.NotificationQueue), asynq.MaxRetry(q.conf.MaxRetry))
	if _, err := q.Client.EnqueueContext(ctx, task); err != nil {
		return false, err
	}
	return true, nil
}

// PublishWebhook queues an outgoing status webhook. Nothing is queued when no
// webhook url is configured.
func (q *Queue) PublishWebhook(ctx context.Context, webhook NewWebhook) error {
	if q.webhookURL == "" {
		return nil
	}
	payload, err := json.Marshal(webhook)
	if err != nil {
		return err
	}
	task := asynq.NewTask(q.conf.WebhookQueue, payload, asynq.Queue(q.conf.WebhookQueue), asynq.MaxRetry(q.conf.MaxRetry))
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}

// ProcessProviderEvent is the worker handler for queued provider events.
func (p *Payouts) ProcessProviderEvent(ctx context.Context, task *asynq.Task) error {
	ctx, span := tracer.Start(ctx, "ProcessProviderEvent", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var event model.ProviderEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return fmt.Errorf("decoding provider event: %v: %w", err, asynq.SkipRetry)
	}
	return p.ReconcileFromWebhook(ctx, event)
}

// ProcessNotification returns the worker handler delivering queued notifications through sender.
func ProcessNotification(sender mailer.Sender) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload NotificationPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("decoding notification: %v: %w", err, asynq.SkipRetry)
		}
		_, err := sender.Send(ctx, payload.Kind, payload.Recipient, payload.Data)
		return err
	}
}
