// Package notify shows hbk notifications on a terminal.
package notify

import (
	"io"
	"sync"

	"github.com/fatih/color"

	"hbk-go/internal/hbk"
)

// Terminal writes one colored line per notification. A terminal has no
// toast lifetime, so Notification.Duration is only kept in History.
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	colors  map[hbk.Severity]*color.Color
	history []hbk.Notification
}

var _ hbk.Notifier = (*Terminal)(nil)

// NewTerminal writes to w. With noColor set, lines are plain text.
func NewTerminal(w io.Writer, noColor bool) *Terminal {
	colors := map[hbk.Severity]*color.Color{
		hbk.SeverityInfo:    color.New(color.FgCyan),
		hbk.SeveritySuccess: color.New(color.FgGreen),
		hbk.SeverityWarning: color.New(color.FgYellow),
		hbk.SeverityError:   color.New(color.FgRed, color.Bold),
	}
	for _, c := range colors {
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	return &Terminal{w: w, colors: colors}
}

func (t *Terminal) Notify(n hbk.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, n)

	c, ok := t.colors[n.Severity]
	if !ok {
		c = t.colors[hbk.SeverityInfo]
	}
	c.Fprintf(t.w, "%-7s %s\n", label(n.Severity), n.Message)
}

// History returns the notifications shown so far.
func (t *Terminal) History() []hbk.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]hbk.Notification(nil), t.history...)
}

func label(s hbk.Severity) string {
	switch s {
	case hbk.SeveritySuccess:
		return "ok"
	case hbk.SeverityWarning:
		return "warning"
	case hbk.SeverityError:
		return "error"
	default:
		return "info"
	}
}
