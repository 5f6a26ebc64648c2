// Package modem drives a SIM7000-class cellular modem over its serial AT
// command interface. Every operation is built from one primitive, the
// transaction: write a command, then read until a terminator resolves or
// the timeout elapses. Operations block the caller for at most the sum of
// their transaction timeouts; nothing here retries except the attach
// stages.
package modem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Xylopyrographer/CabinMonitor/internal/log"
	"github.com/Xylopyrographer/CabinMonitor/internal/metrics"
)

// Options configures an Engine. Zero durations take the defaults from
// DefaultOptions.
type Options struct {
	APN string

	CommandTimeout         time.Duration
	PollInterval           time.Duration
	RetryCount             int
	RegistrationRetryDelay time.Duration
	ContextRetryDelay      time.Duration
	ContextOpenTimeout     time.Duration
	TCPOpenTimeout         time.Duration
	SendTimeout            time.Duration
	HTTPActionTimeout      time.Duration

	NTPServer        string
	NTPTimezoneHours int

	// Power drives the reset and power-key lines. Nil skips the pulse.
	Power PowerControl

	Now    func() time.Time
	Sleep  func(time.Duration)
	Logger *zerolog.Logger
}

// DefaultOptions returns the stock SIM7000 timings.
func DefaultOptions() Options {
	return Options{
		APN:                    "internet",
		CommandTimeout:         3 * time.Second,
		PollInterval:           10 * time.Millisecond,
		RetryCount:             3,
		RegistrationRetryDelay: 2 * time.Second,
		ContextRetryDelay:      time.Second,
		ContextOpenTimeout:     10 * time.Second,
		TCPOpenTimeout:         20 * time.Second,
		SendTimeout:            10 * time.Second,
		HTTPActionTimeout:      30 * time.Second,
		NTPServer:              "pool.ntp.org",
	}
}

func (o *Options) fill() {
	d := DefaultOptions()
	if o.APN == "" {
		o.APN = d.APN
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = d.CommandTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.RetryCount < 1 {
		o.RetryCount = d.RetryCount
	}
	if o.RegistrationRetryDelay <= 0 {
		o.RegistrationRetryDelay = d.RegistrationRetryDelay
	}
	if o.ContextRetryDelay <= 0 {
		o.ContextRetryDelay = d.ContextRetryDelay
	}
	if o.ContextOpenTimeout <= 0 {
		o.ContextOpenTimeout = d.ContextOpenTimeout
	}
	if o.TCPOpenTimeout <= 0 {
		o.TCPOpenTimeout = d.TCPOpenTimeout
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = d.SendTimeout
	}
	if o.HTTPActionTimeout <= 0 {
		o.HTTPActionTimeout = d.HTTPActionTimeout
	}
	if o.NTPServer == "" {
		o.NTPServer = d.NTPServer
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
}

// Session is the connectivity state the engine believes the modem is in.
// Flags open in order: Registered, then ContextOpen, then TCPOpen.
type Session struct {
	Ready       bool // bring-up completed
	Registered  bool
	ContextOpen bool
	TCPOpen     bool
}

// Engine owns the serial port and the connectivity session. It is not safe
// for concurrent use; the orchestrator loop is its only caller.
type Engine struct {
	port    Port
	opts    Options
	log     zerolog.Logger
	session Session
}

// New creates an Engine on port. The port's read timeout is set to the
// poll interval.
func New(port Port, opts Options) (*Engine, error) {
	opts.fill()
	logger := log.WithComponent("modem")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if err := port.SetReadTimeout(opts.PollInterval); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &Engine{port: port, opts: opts, log: logger}, nil
}

// Session returns a snapshot of the connectivity flags.
func (e *Engine) Session() Session {
	return e.session
}

// Close releases the serial port.
func (e *Engine) Close() error {
	return e.port.Close()
}

// Transact sends cmd followed by CRLF and reads until term resolves or
// timeout elapses. It returns everything accumulated in both cases.
// Pending input is discarded before the command is written. A nil term
// means DefaultTerminator; a zero timeout means the command timeout.
func (e *Engine) Transact(ctx context.Context, cmd string, timeout time.Duration, term Terminator) (string, error) {
	if err := e.port.ResetInputBuffer(); err != nil {
		return "", fmt.Errorf("flush input: %w", err)
	}
	return e.exchange(ctx, cmd, []byte(cmd+"\r\n"), timeout, term)
}

// exchange writes out (if any) then reads until term resolves. label names
// the exchange in logs and metrics.
func (e *Engine) exchange(ctx context.Context, label string, out []byte, timeout time.Duration, term Terminator) (string, error) {
	if term == nil {
		term = DefaultTerminator
	}
	if timeout <= 0 {
		timeout = e.opts.CommandTimeout
	}

	v := verb(label)
	start := e.opts.Now()
	if len(out) > 0 {
		e.log.Debug().Str("cmd", label).Msg("AT>")
		if _, err := e.port.Write(out); err != nil {
			metrics.RecordModemTransaction(v, "error", 0)
			return "", fmt.Errorf("write %s: %w", label, err)
		}
	}

	var (
		buf   []byte
		chunk = make([]byte, 256)
	)
	for {
		n, err := e.port.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			switch term(buf) {
			case Success:
				e.finish(v, "ok", start, buf)
				return string(buf), nil
			case Failure:
				e.finish(v, "error", start, buf)
				resp := ParseResponse(label, string(buf))
				if ce := commandError(label, resp); ce != nil {
					return string(buf), ce
				}
				return string(buf), fmt.Errorf("%s: %w", label, ErrCommandFailed)
			}
		}
		if err != nil {
			e.finish(v, "error", start, buf)
			return string(buf), fmt.Errorf("read %s: %w", label, err)
		}
		if ctx.Err() != nil {
			e.finish(v, "error", start, buf)
			return string(buf), ctx.Err()
		}
		if e.opts.Now().Sub(start) >= timeout {
			e.finish(v, "timeout", start, buf)
			return string(buf), fmt.Errorf("%s after %v: %w", label, timeout, ErrTimeout)
		}
	}
}

func (e *Engine) finish(verb, verdict string, start time.Time, buf []byte) {
	d := e.opts.Now().Sub(start)
	metrics.RecordModemTransaction(verb, verdict, d)
	e.log.Debug().Str("verb", verb).Str("verdict", verdict).Dur("took", d).Str("resp", string(buf)).Msg("AT<")
}

// command runs a transaction and tokenizes the reply.
func (e *Engine) command(ctx context.Context, cmd string, timeout time.Duration) (Response, error) {
	raw, err := e.Transact(ctx, cmd, timeout, nil)
	return ParseResponse(cmd, raw), err
}

// bestEffort runs a command whose failure does not matter.
func (e *Engine) bestEffort(ctx context.Context, cmd string, timeout time.Duration) {
	if _, err := e.Transact(ctx, cmd, timeout, nil); err != nil && !errors.Is(err, context.Canceled) {
		e.log.Debug().Err(err).Str("cmd", cmd).Msg("ignored failure")
	}
}

// dropSession forgets the data context after a failed operation so the
// next one attaches again. A timeout also forgets bring-up, since the modem
// may have hung or reset. Server-side HTTP statuses, bad clock values and
// cancellation leave the session alone.
func (e *Engine) dropSession(err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMalformedTime) {
		return
	}
	var st *HTTPStatusError
	if errors.As(err, &st) && st.Status < 600 {
		return
	}
	if errors.Is(err, ErrTimeout) {
		e.session = Session{}
	} else {
		e.session.ContextOpen = false
		e.session.TCPOpen = false
	}
	e.log.Info().Err(err).Msg("session dropped, next operation reattaches")
}

// ensureAttached opens the data context if it is not already open.
func (e *Engine) ensureAttached(ctx context.Context) error {
	if e.session.ContextOpen {
		return nil
	}
	if err := e.Attach(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotAttached, err)
	}
	return nil
}
