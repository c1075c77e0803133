package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusNew.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusProcessed.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusReclaimed.IsTerminal())
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for _, from := range Statuses {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range Statuses {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s should be rejected", from, to)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusNew, StatusProcessing, true},
		{StatusNew, StatusCancelled, true},
		{StatusNew, StatusProcessed, false},
		{StatusProcessing, StatusProcessed, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusReclaimed, true},
		{StatusProcessing, StatusNew, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"completed", StatusProcessed, true},
		{"processed", StatusProcessed, true},
		{"Cancelled", StatusCancelled, true},
		{" failed ", StatusFailed, true},
		{"reclaimed", StatusReclaimed, true},
		{"pending", StatusProcessing, true},
		{"on_hold", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := MapProviderStatus(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestEveryTerminalStatusReachableFromProvider(t *testing.T) {
	reachable := map[Status]bool{}
	for _, status := range providerStatuses {
		reachable[status] = true
	}
	for _, status := range Statuses {
		if status.IsTerminal() {
			assert.True(t, reachable[status], "no provider status maps to %s", status)
		}
	}
}

func TestTransactionCanBeCancelled(t *testing.T) {
	assert.True(t, (&Transaction{Status: StatusNew}).CanBeCancelled())
	assert.True(t, (&Transaction{Status: StatusProcessing}).CanBeCancelled())
	assert.False(t, (&Transaction{Status: StatusProcessed}).CanBeCancelled())
	assert.False(t, (&Transaction{Status: StatusCancelled}).CanBeCancelled())
}

func TestParseStatus(t *testing.T) {
	status, ok := ParseStatus("PROCESSING")
	assert.True(t, ok)
	assert.Equal(t, StatusProcessing, status)

	_, ok = ParseStatus("settled")
	assert.False(t, ok)
}
