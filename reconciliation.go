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
	"fmt"
	"strings"
	"time"

	"github.com/blnkfinance/payouts/database"
	"github.com/blnkfinance/payouts/internal/apierror"
	"github.com/blnkfinance/payouts/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	eventDedupTTL    = 24 * time.Hour
	eventDedupPrefix = "provider_event:"
)

// webhookTopics maps provider event topics onto provider transfer statuses.
var webhookTopics = buildWebhookTopics()

func buildWebhookTopics() map[string]string {
	statuses := map[string]string{
		"transfer_completed": "completed",
		"transfer_cancelled": "cancelled",
		"transfer_failed":    "failed",
		"transfer_reclaimed": "reclaimed",
	}
	topics := make(map[string]string)
	for topic, status := range statuses {
		for _, prefix := range []string{"", "customer_", "bank_", "customer_bank_"} {
			topics[prefix+topic] = status
		}
	}
	return topics
}

// ReconcileTransfer applies a provider-reported status to a transfer and to
// every linked transaction that is not yet terminal, in one database transaction.
// Unknown statuses, redeliveries, changes to terminal records and transitions
// the lifecycle does not allow leave the records unchanged.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - transferID string: The local transfer id.
// - providerStatus string: The status in the provider's vocabulary.
//
// Returns:
// - *model.Transfer: The transfer after reconciliation, with its transactions.
// - error: An error if the transfer could not be loaded or updated.
func (p *Payouts) ReconcileTransfer(ctx context.Context, transferID, providerStatus string) (*model.Transfer, error) {
	ctx, span := tracer.Start(ctx, "ReconcileTransfer")
	defer span.End()
	span.SetAttributes(attribute.String("payouts.transfer_id", transferID), attribute.String("payouts.provider_status", providerStatus))

	status, ok := model.MapProviderStatus(providerStatus)
	if !ok {
		logrus.WithFields(logrus.Fields{"transfer_id": transferID, "provider_status": providerStatus}).Warn("unknown provider status, transfer left unchanged")
		return p.loadTransfer(ctx, transferID)
	}

	var changed *model.Transfer
	err := p.datasource.RunInTx(ctx, func(ds database.IDataSource) error {
		t, err := ds.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if !applyStatus(t.TransferID, t.Status, status) {
			return nil
		}

		t.Status = status
		if status == model.StatusFailed && t.FailureReason == "" {
			t.FailureReason = "reported failed by the payment provider"
		}
		t.UpdatedAt = time.Now().UTC()
		if err := ds.UpdateTransfer(ctx, t); err != nil {
			return err
		}
		updated, err := ds.UpdateTransactionsStatusByTransferID(ctx, t.TransferID, status)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"transfer_id": t.TransferID, "status": status, "transactions": updated}).Info("transfer reconciled")
		changed = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	transfer, err := p.loadTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if changed != nil {
		p.afterStatusChange(ctx, transfer)
	}
	return transfer, nil
}

// ReconcileTransaction applies a provider status to a single transaction. A
// batched transaction is reconciled through its transfer.
func (p *Payouts) ReconcileTransaction(ctx context.Context, transactionID, providerStatus string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "ReconcileTransaction")
	defer span.End()

	txn, err := p.datasource.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.IsLinked() {
		if _, err := p.ReconcileTransfer(ctx, txn.TransferID, providerStatus); err != nil {
			return nil, err
		}
		return p.datasource.GetTransaction(ctx, transactionID)
	}

	status, ok := model.MapProviderStatus(providerStatus)
	if !ok {
		logrus.WithFields(logrus.Fields{"transaction_id": transactionID, "provider_status": providerStatus}).Warn("unknown provider status, transaction left unchanged")
		return txn, nil
	}

	err = p.datasource.RunInTx(ctx, func(ds database.IDataSource) error {
		locked, err := ds.GetTransactionsForUpdate(ctx, txn.TenantID, []string{transactionID})
		if err != nil {
			return err
		}
		if len(locked) != 1 {
			return notFound("transaction %s not found", transactionID)
		}
		current := locked[0]
		if !applyStatus(current.TransactionID, current.Status, status) {
			return nil
		}
		current.Status = status
		current.UpdatedAt = time.Now().UTC()
		return ds.UpdateTransaction(ctx, current)
	})
	if err != nil {
		return nil, err
	}
	return p.datasource.GetTransaction(ctx, transactionID)
}

// applyStatus reports whether a record may move from current to next.
func applyStatus(id string, current, next model.Status) bool {
	fields := logrus.Fields{"id": id, "current": current, "reported": next}
	switch {
	case current == next:
		return false
	case current.IsTerminal():
		logrus.WithFields(fields).Warn("ignoring status change of a terminal record")
		return false
	case !current.CanTransitionTo(next):
		logrus.WithFields(fields).Warn("ignoring status change not allowed by the lifecycle")
		return false
	}
	return true
}

// ReconcileFromWebhook handles a provider event. Unknown topics, duplicate
// deliveries and events for resources we do not know are logged and dropped.
func (p *Payouts) ReconcileFromWebhook(ctx context.Context, event model.ProviderEvent) error {
	ctx, span := tracer.Start(ctx, "ReconcileFromWebhook")
	defer span.End()
	span.SetAttributes(attribute.String("payouts.event_topic", event.Topic))

	fields := logrus.Fields{"event_id": event.ID, "topic": event.Topic, "resource": event.Href()}
	providerStatus, ok := webhookTopics[strings.ToLower(event.Topic)]
	if !ok {
		logrus.WithFields(fields).Info("ignoring provider event with unhandled topic")
		return nil
	}

	dedupKey := ""
	if p.cache != nil && event.ID != "" {
		key := eventDedupPrefix + event.ID
		fresh, err := p.cache.Claim(ctx, key, eventDedupTTL)
		switch {
		case err != nil:
			logrus.WithError(err).WithFields(fields).Warn("could not check provider event for duplicates")
		case !fresh:
			logrus.WithFields(fields).Info("ignoring duplicate provider event")
			return nil
		default:
			dedupKey = key
		}
	}

	err := p.reconcileEvent(ctx, event, providerStatus)
	if err != nil && dedupKey != "" {
		// Release the claim so a redelivery can try again.
		if delErr := p.cache.Delete(context.WithoutCancel(ctx), dedupKey); delErr != nil {
			logrus.WithError(delErr).WithFields(fields).Warn("could not release provider event claim")
		}
	}
	return err
}

func (p *Payouts) reconcileEvent(ctx context.Context, event model.ProviderEvent, providerStatus string) error {
	transfer, err := p.findTransferForEvent(ctx, event)
	if err != nil {
		if apierror.IsNotFound(err) {
			logrus.WithFields(logrus.Fields{"event_id": event.ID, "topic": event.Topic, "resource": event.Href()}).Info("no transfer matches provider event, dropping it")
			return nil
		}
		return err
	}
	_, err = p.ReconcileTransfer(ctx, transfer.TransferID, providerStatus)
	return err
}

func (p *Payouts) findTransferForEvent(ctx context.Context, event model.ProviderEvent) (*model.Transfer, error) {
	for _, ref := range []string{event.Href(), event.ResourceID} {
		if ref == "" {
			continue
		}
		transfer, err := p.datasource.GetTransferByExternalID(ctx, ref)
		if err == nil {
			return transfer, nil
		}
		if !apierror.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, notFound("no transfer for provider resource %s", event.ResourceID)
}

// afterStatusChange runs the best-effort side effects of a committed status change.
func (p *Payouts) afterStatusChange(ctx context.Context, transfer *model.Transfer) {
	switch transfer.Status {
	case model.StatusProcessed:
		p.notifyTransfer(ctx, model.NotificationTransferProcessed, transfer)
	case model.StatusFailed:
		p.notifyTransfer(ctx, model.NotificationTransferFailed, transfer)
	}
	p.publishStatus(ctx, transfer)
}

// notifyTransfer sends kind to the transfer's recipient and admin. Failures are
// logged and never returned. It reports how many notifications were attempted.
func (p *Payouts) notifyTransfer(ctx context.Context, kind model.NotificationKind, transfer *model.Transfer) int {
	ctx = context.WithoutCancel(ctx)
	data := map[string]interface{}{
		"transfer_id":       transfer.TransferID,
		"amount":            transfer.Value.StringFixed(2),
		"currency":          transfer.Currency,
		"status":            transfer.Status,
		"transaction_count": len(transfer.Transactions),
	}
	if transfer.FailureReason != "" {
		data["failure_reason"] = transfer.FailureReason
	}

	attempted := 0
	for _, userID := range []string{transfer.UserID, transfer.AdminID} {
		if userID == "" {
			continue
		}
		attempted++
		recipient := p.recipient(ctx, transfer.TenantID, userID)
		sent, err := p.notifier.Send(ctx, kind, recipient, data)
		fields := logrus.Fields{"transfer_id": transfer.TransferID, "kind": kind, "user_id": userID}
		switch {
		case err != nil:
			logrus.WithError(err).WithFields(fields).Warn("failed to send notification")
		case !sent:
			logrus.WithFields(fields).Warn("notification was not sent")
		}
	}
	return attempted
}

func (p *Payouts) recipient(ctx context.Context, tenantID, userID string) model.Recipient {
	user, err := p.datasource.GetUser(ctx, tenantID, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("could not load notification recipient")
		return model.Recipient{UserID: userID}
	}
	return model.Recipient{UserID: user.UserID, Email: user.Email, Name: user.FullName()}
}

func (p *Payouts) publishStatus(ctx context.Context, transfer *model.Transfer) {
	if p.webhooks == nil {
		return
	}
	webhook := NewWebhook{Event: getEventFromStatus(transfer.Status), Payload: transfer}
	if err := p.webhooks.PublishWebhook(context.WithoutCancel(ctx), webhook); err != nil {
		logrus.WithError(err).WithField("transfer_id", transfer.TransferID).Warn(fmt.Sprintf("failed to publish %s webhook", webhook.Event))
	}
}
