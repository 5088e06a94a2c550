package hbk

import "time"

// Severity of a user-facing notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a transient message for the user.
type Notification struct {
	Message  string
	Severity Severity
	Duration time.Duration
}

// Notifier displays notifications. Implementations must not block for long.
type Notifier interface {
	Notify(n Notification)
}
