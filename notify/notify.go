// Package notify delivers change alerts over the channel each user picked
// (email, Slack webhook, or Telegram bot). Delivery is best-effort: failures
// are logged and never propagate into the check that triggered them.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/mntr/monitor"
)

// Sender delivers one alert over a single platform.
type Sender interface {
	Send(ctx context.Context, settings *monitor.NotificationSettings, page *monitor.Page, result *monitor.CheckResult) error
}

// SettingsLookup resolves a user's delivery settings. Returning (nil, nil)
// means the user never configured notifications.
type SettingsLookup func(ctx context.Context, userID string) (*monitor.NotificationSettings, error)

// Dispatcher routes alerts to the sender matching the user's channel.
// It implements monitor.Notifier.
type Dispatcher struct {
	settings SettingsLookup
	senders  map[string]Sender
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithSender registers a sender for a channel name, replacing any default.
func WithSender(channel string, s Sender) DispatcherOption {
	return func(d *Dispatcher) { d.senders[channel] = s }
}

// NewDispatcher builds a Dispatcher. Senders for channels the deployment
// does not use can simply be left unregistered; alerts for them are dropped
// with a warning.
func NewDispatcher(settings SettingsLookup, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		settings: settings,
		senders:  make(map[string]Sender),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Notify delivers a change alert to the page's owner. A missing
// configuration is a silent no-op; a delivery failure is returned so the
// caller can log it, but callers must not fail the check over it.
func (d *Dispatcher) Notify(ctx context.Context, page *monitor.Page, result *monitor.CheckResult) error {
	ns, err := d.settings(ctx, page.OwnerID)
	if err != nil {
		return fmt.Errorf("notify: settings lookup: %w", err)
	}
	if ns == nil {
		return nil
	}

	sender, ok := d.senders[ns.Channel]
	if !ok {
		d.logger.Warn("notify: no sender for channel", "channel", ns.Channel, "user_id", page.OwnerID)
		return nil
	}

	if err := sender.Send(ctx, ns, page, result); err != nil {
		return fmt.Errorf("notify: %s: %w", ns.Channel, err)
	}
	d.logger.Info("notification sent", "channel", ns.Channel, "page_id", page.ID)
	return nil
}

// maxDiffChars caps the diff excerpt included in alert bodies.
const maxDiffChars = 4000

// alertText renders the shared plain-text alert body.
func alertText(page *monitor.Page, result *monitor.CheckResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Change detected on %q\n%s\n", page.Name, page.URL)
	if result.Diff != "" {
		diff := result.Diff
		if len(diff) > maxDiffChars {
			diff = diff[:maxDiffChars] + "\n... (truncated)"
		}
		sb.WriteString("\n")
		sb.WriteString(diff)
	}
	return sb.String()
}
