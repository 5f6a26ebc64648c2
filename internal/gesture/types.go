// Package gesture contains the pure input logic for the single user button.
// Nothing here touches GPIO or sleeps on its own: time is always injected,
// either as time.Time parameters or as now/sleep functions.
package gesture

import "time"

// Level is the debounced state of the button.
type Level string

const (
	Released Level = "RELEASED"
	Pressed  Level = "PRESSED"
)

// Edge is a debounced level change.
type Edge struct {
	Level Level
	Time  time.Time
}

// Gesture is a classified runtime input. Only the multi-click toggle is
// observable; shorter sequences produce GestureNone.
type Gesture int

const (
	GestureNone Gesture = iota
	GestureToggle
)

func (g Gesture) String() string {
	switch g {
	case GestureToggle:
		return "TOGGLE"
	default:
		return "NONE"
	}
}

// StartupAction is the outcome of the boot-time hold classifier.
// Values are ordered: a longer hold never yields a smaller action.
type StartupAction int

const (
	ActionNormal StartupAction = iota
	ActionProvisioning
	ActionOTA
	ActionFactoryReset
)

func (a StartupAction) String() string {
	switch a {
	case ActionProvisioning:
		return "PROVISIONING"
	case ActionOTA:
		return "OTA_UPDATE"
	case ActionFactoryReset:
		return "FACTORY_RESET"
	default:
		return "NORMAL_START"
	}
}

// MonitorEvent reports a change of the monitoring flag.
type MonitorEvent int

const (
	MonitorUnchanged MonitorEvent = iota
	MonitorDisabled
	MonitorResumed
)

func (e MonitorEvent) String() string {
	switch e {
	case MonitorDisabled:
		return "DISABLED"
	case MonitorResumed:
		return "RESUMED"
	default:
		return "UNCHANGED"
	}
}
