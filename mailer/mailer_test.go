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
	"encoding/json"
	"net/http"
	"testing"

	"github.com/blnkfinance/payouts/config"
	"github.com/blnkfinance/payouts/internal/request"
	"github.com/blnkfinance/payouts/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mailURL = "https://mail.example.com/send"

func newTestSender(t *testing.T) *HTTPSender {
	sender := NewHTTPSender(config.MailerConfig{
		Url:     mailURL,
		From:    "payouts@example.com",
		Headers: map[string]string{"X-Api-Key": "k"},
	})
	httpmock.ActivateNonDefault(sender.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return sender
}

func TestHTTPSender_Send(t *testing.T) {
	sender := newTestSender(t)
	email := gofakeit.Email()

	httpmock.RegisterResponder(http.MethodPost, mailURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "k", req.Header.Get("X-Api-Key"))
		var msg Message
		require.NoError(t, json.NewDecoder(req.Body).Decode(&msg))
		assert.Equal(t, email, msg.To)
		assert.Equal(t, "payouts@example.com", msg.From)
		assert.Equal(t, "transfer_processed", msg.Template)
		assert.Equal(t, "Your payout has been completed", msg.Subject)
		assert.Equal(t, "17.75", msg.Data["amount"])
		return httpmock.NewStringResponse(http.StatusAccepted, `{"queued":true}`), nil
	})

	sent, err := sender.Send(context.Background(), model.NotificationTransferProcessed,
		model.Recipient{UserID: "user_1", Email: email, Name: "Ada"},
		map[string]interface{}{"amount": "17.75"})
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestHTTPSender_SendFailure(t *testing.T) {
	sender := newTestSender(t)
	httpmock.RegisterResponder(http.MethodPost, mailURL, httpmock.NewStringResponder(http.StatusBadGateway, "down"))

	sent, err := sender.Send(context.Background(), model.NotificationTransferFailed, model.Recipient{Email: "a@b.c"}, nil)
	assert.False(t, sent)
	assert.True(t, request.IsTemporary(err))
}

func TestHTTPSender_SkipsRecipientWithoutEmail(t *testing.T) {
	sender := newTestSender(t)

	sent, err := sender.Send(context.Background(), model.NotificationTransferCreated, model.Recipient{UserID: "user_1"}, nil)
	assert.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestNew(t *testing.T) {
	_, ok := New(config.MailerConfig{}).(LogSender)
	assert.True(t, ok)

	_, ok = New(config.MailerConfig{Url: mailURL}).(*HTTPSender)
	assert.True(t, ok)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "A payout has been scheduled", Subject(model.NotificationTransferCreated))
	assert.Equal(t, "custom", Subject(model.NotificationKind("custom")))
}
