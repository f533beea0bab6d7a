package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Notifier delivers a short title/body message.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// MultiNotifier fans a message out to every notifier and joins their errors.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Send(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wrapped notifiers.
func (m *MultiNotifier) Len() int { return len(m.notifiers) }

// FromConfig builds the notifier set for the daemon. Misconfigured
// channels are logged and skipped.
func FromConfig(barkURL string, barkEnabled bool, logger *slog.Logger) *MultiNotifier {
	var notifiers []Notifier
	if barkEnabled {
		bark, err := NewBarkNotifier(barkURL)
		if err != nil {
			logger.Warn("bark notifications disabled", "err", err)
		} else {
			notifiers = append(notifiers, bark)
		}
	}
	return NewMultiNotifier(notifiers...)
}
