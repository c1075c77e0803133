package model

import "strings"

// Status is the lifecycle state shared by transactions and transfers.
type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusReclaimed  Status = "reclaimed"
)

// Statuses lists every valid status.
var Statuses = []Status{
	StatusNew,
	StatusProcessing,
	StatusProcessed,
	StatusFailed,
	StatusCancelled,
	StatusReclaimed,
}

var transitions = map[Status][]Status{
	StatusNew:        {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusProcessed, StatusFailed, StatusCancelled, StatusReclaimed},
}

// providerStatuses maps the payment provider's status vocabulary onto ours.
var providerStatuses = map[string]Status{
	"pending":    StatusProcessing,
	"processing": StatusProcessing,
	"processed":  StatusProcessed,
	"completed":  StatusProcessed,
	"cancelled":  StatusCancelled,
	"failed":     StatusFailed,
	"reclaimed":  StatusReclaimed,
}

func ParseStatus(s string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	return status, status.IsValid()
}

func (s Status) IsValid() bool {
	for _, status := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed out of s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusProcessed, StatusFailed, StatusCancelled, StatusReclaimed:
		return true
	}
	return false
}

// CanBeCancelled reports whether a record in this status may still be cancelled.
func (s Status) CanBeCancelled() bool {
	return s == StatusNew || s == StatusProcessing
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// MapProviderStatus converts a provider-reported status into a Status.
// The second return value is false for statuses we do not recognise.
func MapProviderStatus(providerStatus string) (Status, bool) {
	status, ok := providerStatuses[strings.ToLower(strings.TrimSpace(providerStatus))]
	return status, ok
}
