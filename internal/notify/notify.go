// Package notify sends SMS notifications through the modem. A circuit
// breaker stops a dead modem from stalling the control loop with one
// blocking attempt per event.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/Xylopyrographer/CabinMonitor/internal/log"
	"github.com/Xylopyrographer/CabinMonitor/internal/metrics"
)

// ErrNoRecipient is returned when no phone number is configured.
var ErrNoRecipient = errors.New("no sms recipient configured")

// Sender delivers one text message. *modem.Engine implements it.
type Sender interface {
	SendSMS(ctx context.Context, number, text string) error
}

// Options configures a Notifier.
type Options struct {
	BreakerFailures int
	BreakerOpen     time.Duration
	Logger          *zerolog.Logger
}

// Notifier sends the configured message for each Kind.
type Notifier struct {
	sender Sender
	cb     *gobreaker.CircuitBreaker
	log    zerolog.Logger

	mu   sync.Mutex
	msgs Messages
}

// New creates a Notifier with the default messages and no recipient.
func New(sender Sender, opts Options) *Notifier {
	n := &Notifier{sender: sender, msgs: DefaultMessages()}
	if opts.Logger != nil {
		n.log = *opts.Logger
	} else {
		n.log = log.WithComponent("notify")
	}
	failures := opts.BreakerFailures
	if failures < 1 {
		failures = 1
	}
	n.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "sms",
		Timeout: opts.BreakerOpen,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			n.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("sms breaker state change")
			metrics.SetCircuitBreakerState(name, to.String())
		},
	})
	metrics.SetCircuitBreakerState("sms", gobreaker.StateClosed.String())
	return n
}

// SetMessages replaces the recipient and texts.
func (n *Notifier) SetMessages(m Messages) {
	n.mu.Lock()
	n.msgs = m
	n.mu.Unlock()
}

// Messages returns the current recipient and texts.
func (n *Notifier) Messages() Messages {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.msgs
}

// Enabled reports whether a recipient is configured.
func (n *Notifier) Enabled() bool {
	return n.Messages().Phone != ""
}

// Notify sends the message for k. With no recipient it returns
// ErrNoRecipient without touching the modem; with the breaker open it
// fails fast with gobreaker.ErrOpenState.
func (n *Notifier) Notify(ctx context.Context, k Kind) error {
	m := n.Messages()
	if m.Phone == "" {
		return ErrNoRecipient
	}
	_, err := n.cb.Execute(func() (interface{}, error) {
		return nil, n.sender.SendSMS(ctx, m.Phone, m.Text(k))
	})
	metrics.RecordNotification(string(k), err == nil)
	if err != nil {
		n.log.Warn().Err(err).Str("kind", string(k)).Msg("notification failed")
		return err
	}
	n.log.Info().Str("kind", string(k)).Msg("notification sent")
	return nil
}
