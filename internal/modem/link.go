package modem

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Xylopyrographer/CabinMonitor/internal/gpio"
	"github.com/Xylopyrographer/CabinMonitor/internal/metrics"
)

// PowerControl drives the modem's reset and power-key inputs.
type PowerControl interface {
	SetReset(high bool) error
	SetPowerKey(high bool) error
}

// GPIOPower is a PowerControl on two output lines.
type GPIOPower struct {
	Reset gpio.Output
	Key   gpio.Output
}

func (p GPIOPower) SetReset(high bool) error    { return p.Reset.Set(high) }
func (p GPIOPower) SetPowerKey(high bool) error { return p.Key.Set(high) }

// Reset pulse timings for the SIM7000.
const (
	resetLow     = 100 * time.Millisecond
	resetRecover = 2 * time.Second
	powerKeyHold = 1500 * time.Millisecond
	bootWait     = 5 * time.Second
)

func (e *Engine) pulse() error {
	p := e.opts.Power
	if p == nil {
		return nil
	}
	steps := []struct {
		set  func(bool) error
		high bool
		wait time.Duration
	}{
		{p.SetReset, false, resetLow},
		{p.SetReset, true, resetRecover},
		{p.SetPowerKey, true, powerKeyHold},
		{p.SetPowerKey, false, bootWait},
	}
	for _, s := range steps {
		if err := s.set(s.high); err != nil {
			return fmt.Errorf("power sequence: %w", err)
		}
		e.opts.Sleep(s.wait)
	}
	return nil
}

// BringUp resets the modem, probes it and applies the base configuration.
// It fails fast when the liveness probe gets no OK; the remaining
// configuration commands are best-effort.
func (e *Engine) BringUp(ctx context.Context) error {
	e.session = Session{}
	if err := e.pulse(); err != nil {
		return err
	}

	if _, err := e.Transact(ctx, "AT", 0, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrNotResponding, err)
	}

	e.bestEffort(ctx, "AT+CMEE=2", 0)
	e.bestEffort(ctx, "AT+CFUN=1", 0)
	e.bestEffort(ctx, `AT+SAPBR=3,1,"Contype","GPRS"`, 0)
	e.bestEffort(ctx, fmt.Sprintf(`AT+SAPBR=3,1,"APN","%s"`, e.opts.APN), 0)

	e.session.Ready = true
	e.log.Info().Str("apn", e.opts.APN).Msg("modem ready")
	return nil
}

// sleepTimer is a backoff.Timer that waits with the engine's Sleep so the
// retry delays follow the injected clock.
type sleepTimer struct {
	sleep func(time.Duration)
	now   func() time.Time
	c     chan time.Time
}

func newSleepTimer(sleep func(time.Duration), now func() time.Time) *sleepTimer {
	return &sleepTimer{sleep: sleep, now: now, c: make(chan time.Time, 1)}
}

func (t *sleepTimer) Start(d time.Duration) {
	t.sleep(d)
	t.c <- t.now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time { return t.c }

// retry runs op up to RetryCount times with a fixed delay between attempts.
func (e *Engine) retry(ctx context.Context, stage string, delay time.Duration, op func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(e.opts.RetryCount-1)),
		ctx,
	)
	attempt := 0
	notify := func(err error, next time.Duration) {
		e.log.Info().Err(err).Str("stage", stage).Int("attempt", attempt).Dur("next", next).Msg("retrying")
	}
	return backoff.RetryNotifyWithTimer(func() error {
		attempt++
		return op()
	}, b, notify, newSleepTimer(e.opts.Sleep, e.opts.Now))
}

// Attach brings the data context up: SIM check, registration polling,
// signal read, context open and context verification. Registration and
// context open are retried RetryCount times. A failed stage aborts the
// attach and leaves earlier stages as they are.
func (e *Engine) Attach(ctx context.Context) error {
	if !e.session.Ready {
		if err := e.BringUp(ctx); err != nil {
			return err
		}
	}

	resp, err := e.command(ctx, "AT+CPIN?", 0)
	if err != nil || !resp.Has("READY") {
		return fmt.Errorf("%w: %w", ErrSIMNotReady, errOrResult(err, resp))
	}

	err = e.retry(ctx, "registration", e.opts.RegistrationRetryDelay, func() error {
		resp, err := e.command(ctx, "AT+CREG?", 0)
		if err != nil {
			return err
		}
		if !registered(resp) {
			return ErrNotRegistered
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("attach: %w", wrapAs(ErrNotRegistered, err))
	}
	e.session.Registered = true

	if sq, err := e.SignalQuality(ctx); err == nil {
		e.log.Info().Int("rssi", sq.RSSI).Int("ber", sq.BER).Int("dbm", sq.DBm()).Msg("signal quality")
	}

	err = e.retry(ctx, "context", e.opts.ContextRetryDelay, func() error {
		_, err := e.Transact(ctx, "AT+SAPBR=1,1", e.opts.ContextOpenTimeout, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("attach: open context: %w", err)
	}

	resp, err = e.command(ctx, "AT+SAPBR=2,1", 0)
	if err != nil {
		return fmt.Errorf("attach: %w: %w", ErrContextNotActive, err)
	}
	if f, ok := resp.Field("+SAPBR"); !ok || len(f) < 2 || f[0] != "1" || f[1] != "1" {
		return fmt.Errorf("attach: %w", ErrContextNotActive)
	}

	e.session.ContextOpen = true
	e.log.Info().Msg("data context open")
	return nil
}

// Detach closes the data context. It is a no-op when no context is open.
func (e *Engine) Detach(ctx context.Context) error {
	if !e.session.ContextOpen {
		return nil
	}
	e.session.ContextOpen = false
	e.session.TCPOpen = false
	if _, err := e.Transact(ctx, "AT+SAPBR=0,1", 0, nil); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	e.log.Info().Msg("data context closed")
	return nil
}

func registered(r Response) bool {
	f, ok := r.Field("+CREG")
	if !ok || len(f) < 2 {
		return false
	}
	// 1 = home, 5 = roaming
	return f[1] == "1" || f[1] == "5"
}

// Signal is a +CSQ reading.
type Signal struct {
	RSSI int // 0..31, 99 unknown
	BER  int // 0..7, 99 unknown
}

// DBm converts RSSI to dBm. Unknown maps to 0.
func (s Signal) DBm() int {
	if s.RSSI == 99 || s.RSSI < 0 {
		return 0
	}
	return -113 + 2*s.RSSI
}

// SignalQuality reads AT+CSQ. The value is informational only.
func (e *Engine) SignalQuality(ctx context.Context) (Signal, error) {
	resp, err := e.command(ctx, "AT+CSQ", 0)
	if err != nil {
		return Signal{}, err
	}
	f, ok := resp.Field("+CSQ")
	if !ok || len(f) < 2 {
		return Signal{}, fmt.Errorf("CSQ: %w", ErrCommandFailed)
	}
	rssi, err1 := strconv.Atoi(f[0])
	ber, err2 := strconv.Atoi(f[1])
	if err1 != nil || err2 != nil {
		return Signal{}, fmt.Errorf("CSQ %q: %w", f, ErrCommandFailed)
	}
	s := Signal{RSSI: rssi, BER: ber}
	metrics.SetSignalDBm(s.DBm())
	return s, nil
}

func errOrResult(err error, r Response) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("reply %q", r.Lines)
}

// wrapAs returns err unchanged if it already matches target.
func wrapAs(target, err error) error {
	if errors.Is(err, target) {
		return err
	}
	return fmt.Errorf("%w: %w", target, err)
}
