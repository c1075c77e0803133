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

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/blnkfinance/payouts/config"
	"github.com/blnkfinance/payouts/internal/request"
	"github.com/sirupsen/logrus"
)

// WebhookSender forwards an operator alert as an outgoing webhook event.
type WebhookSender func(event string, payload interface{}) error

var (
	webhookSender WebhookSender
	senderMu      sync.RWMutex
)

// RegisterWebhookSender lets the service forward operator alerts to the tenant webhook.
func RegisterWebhookSender(sender WebhookSender) {
	senderMu.Lock()
	defer senderMu.Unlock()
	webhookSender = sender
}

func slackMessage(systemError error) json.RawMessage {
	text, _ := json.Marshal(fmt.Sprintf("*Error:*\n%v", systemError.Error()))
	at, _ := json.Marshal(fmt.Sprintf("*Time:*\n%v", time.Now().Format(time.RFC822)))
	return json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{
				"type": "header",
				"text": {"type": "plain_text", "text": "Error From Payouts", "emoji": true}
			},
			{
				"type": "section",
				"fields": [{"type": "mrkdwn", "text": %s}]
			},
			{
				"type": "section",
				"fields": [{"type": "mrkdwn", "text": %s}]
			}
		]
	}`, text, at))
}

// SlackNotification posts systemError to the configured slack webhook.
func SlackNotification(ctx context.Context, webhookURL string, systemError error) error {
	req, err := request.NewJSONRequest(ctx, http.MethodPost, webhookURL, slackMessage(systemError), nil)
	if err != nil {
		return err
	}
	_, err = request.Call(&http.Client{Timeout: 10 * time.Second}, req, nil)
	return err
}

// NotifyError logs systemError and alerts operators through slack and the
// registered webhook sender. It does not block the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			logrus.Warn(err)
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			if err := SlackNotification(context.Background(), conf.Notification.Slack.WebhookUrl, systemError); err != nil {
				logrus.WithError(err).Warn("failed to deliver slack notification")
			}
		}

		senderMu.RLock()
		sender := webhookSender
		senderMu.RUnlock()
		if sender != nil {
			payload := map[string]interface{}{
				"error": systemError.Error(),
				"time":  time.Now().UTC(),
			}
			if err := sender("system.error", payload); err != nil {
				logrus.WithError(err).Warn("failed to forward system error webhook")
			}
		}
	}(systemError)
}
