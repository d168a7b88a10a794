package notification

import (
	"context"

	"github.com/gen2brain/beeep"
)

const appName = "Live Captions"

// DesktopProvider shows a desktop notification through the OS notifier.
type DesktopProvider struct {
	enabled bool
	notify  func(title, message, icon string) error
}

// NewDesktopProvider returns a beeep-backed provider.
func NewDesktopProvider(enabled bool) *DesktopProvider {
	return &DesktopProvider{
		enabled: enabled,
		notify: func(title, message, icon string) error {
			return beeep.Notify(title, message, icon)
		},
	}
}

func (d *DesktopProvider) GetName() string       { return "desktop" }
func (d *DesktopProvider) IsEnabled() bool       { return d.enabled }
func (d *DesktopProvider) ValidateConfig() error { return nil }

// SupportsType limits desktop popups to errors.
func (d *DesktopProvider) SupportsType(t Type) bool { return t == TypeError }

// Send shows the notification.
func (d *DesktopProvider) Send(_ context.Context, n *Notification) error {
	title := appName
	if n.Title != "" {
		title = appName + ": " + n.Title
	}
	message := n.Message
	if r := []rune(message); len(r) > 100 {
		message = string(r[:100]) + "..."
	}
	return d.notify(title, message, "")
}
