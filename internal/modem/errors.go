package modem

import (
	"errors"
	"fmt"
)

// Verdict errors. Operations wrap these with context; test with errors.Is.
var (
	ErrTimeout          = errors.New("modem: no terminator before timeout")
	ErrCommandFailed    = errors.New("modem: command failed")
	ErrNoPrompt         = errors.New("modem: prompt not received")
	ErrNotResponding    = errors.New("modem: not responding")
	ErrSIMNotReady      = errors.New("modem: SIM not ready")
	ErrNotRegistered    = errors.New("modem: not registered on network")
	ErrContextNotActive = errors.New("modem: data context not active")
	ErrNotAttached      = errors.New("modem: data context not open")
	ErrHTTPStatus       = errors.New("modem: unexpected HTTP status")
	ErrSendFailed       = errors.New("modem: send failed")
	ErrMalformedTime    = errors.New("modem: malformed clock value")
)

// CommandError is a verbose +CME ERROR / +CMS ERROR report.
type CommandError struct {
	Command string
	Kind    string // "CME" or "CMS"
	Detail  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("modem: %s: +%s ERROR: %s", e.Command, e.Kind, e.Detail)
}

// Is makes a CommandError match ErrCommandFailed.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

// HTTPStatusError carries the status the modem reported for HTTPACTION.
type HTTPStatusError struct {
	Method int
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("modem: HTTPACTION method %d returned status %d", e.Method, e.Status)
}

// Is makes an HTTPStatusError match ErrHTTPStatus.
func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}
