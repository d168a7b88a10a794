// Package notification sends out-of-band alerts when a captioning session
// fails: push services through shoutrrr URLs and desktop notifications.
package notification

import (
	"context"
	"time"
)

// Type classifies a notification.
type Type string

const (
	TypeError Type = "error"
	TypeInfo  Type = "info"
)

// Notification is one message to deliver.
type Notification struct {
	Type    Type
	Title   string
	Message string
	Time    time.Time
}

// Provider defines a push delivery backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	GetName() string
	ValidateConfig() error
	Send(ctx context.Context, n *Notification) error
	SupportsType(notifType Type) bool
	IsEnabled() bool
}
