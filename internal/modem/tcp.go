package modem

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// OpenTCP opens a single TCP connection to host:port, attaching first if
// needed. Any previous connection is shut down first.
func (e *Engine) OpenTCP(ctx context.Context, host string, port int) error {
	if err := e.ensureAttached(ctx); err != nil {
		return err
	}

	e.session.TCPOpen = false
	e.bestEffort(ctx, "AT+CIPSHUT", 5*time.Second)
	e.bestEffort(ctx, "AT+CIPMUX=0", 0)

	cmd := fmt.Sprintf(`AT+CIPSTART="TCP","%s",%d`, host, port)
	term := Markers(
		[]string{"CONNECT OK", "ALREADY CONNECT"},
		[]string{"CONNECT FAIL", "\r\nERROR\r\n", "+CME ERROR:"},
	)
	if _, err := e.Transact(ctx, cmd, e.opts.TCPOpenTimeout, term); err != nil {
		e.dropSession(err)
		return fmt.Errorf("open tcp %s:%d: %w", host, port, err)
	}
	e.session.TCPOpen = true
	return nil
}

// CloseTCP closes the connection and shuts the IP stack down. It is
// best-effort: a missing CLOSE OK is logged and otherwise ignored.
func (e *Engine) CloseTCP(ctx context.Context) {
	e.session.TCPOpen = false
	raw, err := e.Transact(ctx, "AT+CIPCLOSE", 5*time.Second, Markers([]string{"CLOSE OK"}, []string{"\r\nERROR\r\n"}))
	if err != nil {
		e.log.Debug().Err(err).Str("resp", raw).Msg("tcp close not confirmed")
	}
	e.bestEffort(ctx, "AT+CIPSHUT", 5*time.Second)
}

// SendTCP writes payload on the open connection and waits for SEND OK.
func (e *Engine) SendTCP(ctx context.Context, payload []byte) error {
	if !e.session.TCPOpen {
		return fmt.Errorf("send tcp: %w", ErrNotAttached)
	}

	cmd := fmt.Sprintf("AT+CIPSEND=%d", len(payload))
	if _, err := e.Transact(ctx, cmd, 5*time.Second, Markers([]string{">"}, []string{"\r\nERROR\r\n", "+CME ERROR:"})); err != nil {
		return fmt.Errorf("send tcp: %w: %w", ErrNoPrompt, err)
	}

	term := Markers([]string{"SEND OK"}, []string{"SEND FAIL", "ERROR"})
	if _, err := e.exchange(ctx, "payload", payload, e.opts.SendTimeout, term); err != nil {
		e.session.TCPOpen = false
		return fmt.Errorf("send tcp: %w: %w", ErrSendFailed, err)
	}
	return nil
}

const receivePrefix = "+CIPRCV:"

// ReceiveTCP waits up to timeout for a "+CIPRCV:<len>,<data>" line and
// returns data. On timeout it returns whatever arrived with ErrTimeout;
// callers treat that as a failed read.
func (e *Engine) ReceiveTCP(ctx context.Context, timeout time.Duration) (string, error) {
	raw, err := e.exchange(ctx, "receive", nil, timeout, LineTerminator(receivePrefix))
	if err != nil {
		return raw, err
	}
	return receivePayload(raw), nil
}

// receivePayload returns the text after the first comma following the
// receive prefix, trimmed.
func receivePayload(raw string) string {
	i := strings.Index(raw, receivePrefix)
	if i < 0 {
		return strings.TrimSpace(raw)
	}
	rest := raw[i+len(receivePrefix):]
	j := strings.Index(rest, ",")
	if j < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[j+1:])
}
