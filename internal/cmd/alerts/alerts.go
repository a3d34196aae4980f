// Package alerts prints command status lines in the selected output format.
package alerts

import (
	"fmt"

	"github.com/agentstation/sails/internal/cmd/emoji"
)

// Level represents the severity of an alert.
type Level int

const (
	// LevelError indicates a failure.
	LevelError Level = iota
	// LevelWarning indicates a potential issue.
	LevelWarning
	// LevelInfo indicates general information.
	LevelInfo
	// LevelSuccess indicates a completed operation.
	LevelSuccess
)

// String returns the string representation of the alert level.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// Icon returns the symbol printed before the message.
func (l Level) Icon() string {
	switch l {
	case LevelError:
		return emoji.Error
	case LevelWarning:
		return emoji.Warning
	case LevelSuccess:
		return emoji.Success
	default:
		return emoji.Sail
	}
}

func (l Level) color() string {
	switch l {
	case LevelError:
		return "\033[31m"
	case LevelWarning:
		return "\033[33m"
	case LevelSuccess:
		return "\033[32m"
	default:
		return "\033[36m"
	}
}

// Alert is one status line with optional indented details, such as the
// next steps after a command.
type Alert struct {
	Level   Level
	Message string
	Details []string
	Err     error
}

// NewSuccess creates a success alert.
func NewSuccess(format string, args ...any) *Alert {
	return &Alert{Level: LevelSuccess, Message: fmt.Sprintf(format, args...)}
}

// NewInfo creates an info alert.
func NewInfo(format string, args ...any) *Alert {
	return &Alert{Level: LevelInfo, Message: fmt.Sprintf(format, args...)}
}

// NewWarning creates a warning alert.
func NewWarning(format string, args ...any) *Alert {
	return &Alert{Level: LevelWarning, Message: fmt.Sprintf(format, args...)}
}

// NewError creates an error alert.
func NewError(format string, args ...any) *Alert {
	return &Alert{Level: LevelError, Message: fmt.Sprintf(format, args...)}
}

// WithError adds an underlying error to the alert.
func (a *Alert) WithError(err error) *Alert {
	a.Err = err
	return a
}

// WithDetails adds detail lines to the alert.
func (a *Alert) WithDetails(details ...string) *Alert {
	a.Details = append(a.Details, details...)
	return a
}

// String returns the icon, message and error on one line.
func (a *Alert) String() string {
	s := a.Level.Icon() + " " + a.Message
	if a.Err != nil {
		s += ": " + a.Err.Error()
	}
	return s
}
