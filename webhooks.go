/*
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
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/blnkfinance/payouts/config"
	"github.com/blnkfinance/payouts/internal/request"
	"github.com/blnkfinance/payouts/model"
	"github.com/hibiken/asynq"
)

// NewWebhook represents the structure of a webhook notification.
// It includes an event type and associated payload data.
type NewWebhook struct {
	Event   string      `json:"event"` // The event type that triggered the webhook.
	Payload interface{} `json:"data"`  // The data associated with the event.
}

// getEventFromStatus maps a transfer status to a corresponding event string.
func getEventFromStatus(status model.Status) string {
	if !status.IsValid() {
		return "transfer.unknown"
	}
	return "transfer." + status.String()
}

// processHTTP sends a webhook notification via HTTP POST request.
//
// Parameters:
// - ctx context.Context: The context for the request.
// - data NewWebhook: The webhook notification data to send.
// - conf config.Notification: The webhook url and headers.
//
// Returns:
// - error: An error if the request fails or the receiver answers with an error status.
func processHTTP(ctx context.Context, data NewWebhook, conf config.Notification) error {
	req, err := request.NewJSONRequest(ctx, http.MethodPost, conf.Webhook.Url, data, conf.Webhook.Headers)
	if err != nil {
		log.Println("Error creating request:", err)
		return err
	}

	if _, err := request.Call(&http.Client{Timeout: 30 * time.Second}, req, nil); err != nil {
		if !request.IsTemporary(err) {
			// The receiver rejected the payload, retrying will not help.
			return fmt.Errorf("webhook %s rejected: %v: %w", data.Event, err, asynq.SkipRetry)
		}
		return err
	}

	log.Println("Webhook notification sent successfully:", data.Event)
	return nil
}

// ProcessWebhook processes a webhook notification task from the queue.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - task *asynq.Task: The task containing the webhook notification data.
//
// Returns:
// - error: An error if the webhook processing fails.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.Notification.Webhook.Url == "" {
		return nil
	}
	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		log.Printf("Error unmarshaling task payload: %v", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log.Printf("Processing webhook: %+v\n", payload.Event)
	return processHTTP(ctx, payload, conf.Notification)
}
