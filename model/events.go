package model

import "time"

type Link struct {
	Href string `json:"href"`
}

// ProviderEvent is a webhook notification delivered by the payment provider.
type ProviderEvent struct {
	ID           string          `json:"id"`
	Topic        string          `json:"topic"`
	ResourceID   string          `json:"resourceId"`
	ResourceHref string          `json:"resourceHref,omitempty"`
	Links        map[string]Link `json:"_links,omitempty"`
	Created      time.Time       `json:"created"`
}

// Href returns the resource reference of the event, preferring the explicit field.
func (e ProviderEvent) Href() string {
	if e.ResourceHref != "" {
		return e.ResourceHref
	}
	if link, ok := e.Links["resource"]; ok {
		return link.Href
	}
	return ""
}

type NotificationKind string

const (
	NotificationTransferCreated   NotificationKind = "transfer_created"
	NotificationTransferProcessed NotificationKind = "transfer_processed"
	NotificationTransferFailed    NotificationKind = "transfer_failed"
)

// Recipient is the addressee of a notification.
type Recipient struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}
