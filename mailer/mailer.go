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

package mailer

import (
	"context"
	"net/http"
	"time"

	"github.com/blnkfinance/payouts/config"
	"github.com/blnkfinance/payouts/internal/request"
	"github.com/blnkfinance/payouts/model"
	"github.com/sirupsen/logrus"
)

// Sender delivers a templated notification. The boolean reports whether the
// message was handed to the mail service.
type Sender interface {
	Send(ctx context.Context, kind model.NotificationKind, recipient model.Recipient, data map[string]interface{}) (bool, error)
}

// Message is the body posted to the mail service.
type Message struct {
	From     string                 `json:"from,omitempty"`
	To       string                 `json:"to"`
	Name     string                 `json:"name,omitempty"`
	Template string                 `json:"template"`
	Subject  string                 `json:"subject"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

var subjects = map[model.NotificationKind]string{
	model.NotificationTransferCreated:   "A payout has been scheduled",
	model.NotificationTransferProcessed: "Your payout has been completed",
	model.NotificationTransferFailed:    "Your payout could not be completed",
}

// Subject returns the subject line used for kind.
func Subject(kind model.NotificationKind) string {
	if s, ok := subjects[kind]; ok {
		return s
	}
	return string(kind)
}

// NewMessage builds the mail service payload for a notification.
func NewMessage(from string, kind model.NotificationKind, recipient model.Recipient, data map[string]interface{}) Message {
	return Message{
		From:     from,
		To:       recipient.Email,
		Name:     recipient.Name,
		Template: string(kind),
		Subject:  Subject(kind),
		Data:     data,
	}
}

// HTTPSender posts messages to a transactional mail API.
type HTTPSender struct {
	url     string
	from    string
	headers map[string]string
	client  *http.Client
}

func NewHTTPSender(cfg config.MailerConfig) *HTTPSender {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		url:     cfg.Url,
		from:    cfg.From,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSender) Send(ctx context.Context, kind model.NotificationKind, recipient model.Recipient, data map[string]interface{}) (bool, error) {
	if recipient.Email == "" {
		logrus.WithFields(logrus.Fields{"kind": kind, "user_id": recipient.UserID}).Warn("skipping notification for recipient without an email")
		return false, nil
	}

	req, err := request.NewJSONRequest(ctx, http.MethodPost, s.url, NewMessage(s.from, kind, recipient, data), s.headers)
	if err != nil {
		return false, err
	}
	if _, err := request.Call(s.client, req, nil); err != nil {
		return false, err
	}
	return true, nil
}

// LogSender only logs messages. It is used when no mail service is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, kind model.NotificationKind, recipient model.Recipient, data map[string]interface{}) (bool, error) {
	logrus.WithFields(logrus.Fields{
		"kind":    kind,
		"to":      recipient.Email,
		"user_id": recipient.UserID,
		"data":    data,
	}).Info("notification")
	return true, nil
}

// New returns an HTTP sender when a mail service url is configured.
func New(cfg config.MailerConfig) Sender {
	if cfg.Url == "" {
		return LogSender{}
	}
	return NewHTTPSender(cfg)
}
