package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campaign-signal-alerts/internal/rules"
)

// Notification bundles one owner's surviving signals for one evaluation
// cycle.
type Notification struct {
	Owner      string
	CycleID    string
	EntityDate time.Time
	Signals    []rules.Signal
}

// Notifier delivers a notification. Formatting details, retries, and rate
// limits on the delivery side are the implementation's concern.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// MultiNotifier fans a notification out to several channels, returning the
// first error after attempting all of them.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier combines notifiers. Nil entries are skipped.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	kept := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &MultiNotifier{notifiers: kept}
}

// Empty reports whether no delivery channel is configured.
func (m *MultiNotifier) Empty() bool {
	return len(m.notifiers) == 0
}

// Notify delivers to every channel.
func (m *MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, note); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var typeHeaders = []struct {
	ruleType rules.Type
	header   string
}{
	{rules.TypeStopLoss, "STOP LOSS"},
	{rules.TypeScaleUp, "SCALE UP"},
	{rules.TypeCreativeRefresh, "CREATIVE REFRESH"},
}

// renderMessage formats a notification as grouped plain text, most urgent
// rule type first.
func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Campaign Signals] %s\n", note.Owner))
	builder.WriteString(fmt.Sprintf("Date: %s\n", note.EntityDate.Format("2006-01-02")))

	for _, group := range typeHeaders {
		var matched []rules.Signal
		for _, sig := range note.Signals {
			if sig.Type == group.ruleType {
				matched = append(matched, sig)
			}
		}
		if len(matched) == 0 {
			continue
		}

		builder.WriteString(fmt.Sprintf("\n%s (%d)\n", group.header, len(matched)))
		for _, sig := range matched {
			builder.WriteString(fmt.Sprintf("- %s [%s/%s]\n", sig.SubjectName, sig.Channel, sig.Country))
			builder.WriteString(fmt.Sprintf("  %s\n", sig.Message))
			builder.WriteString(fmt.Sprintf("  -> %s\n", sig.Action))
		}
	}

	return builder.String()
}

var _ Notifier = (*MultiNotifier)(nil)
