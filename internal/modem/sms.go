package modem

import (
	"context"
	"fmt"
	"time"
)

const ctrlZ = 0x1A

// SendSMS sends text to number in text mode. Length limits are the
// caller's concern; no multi-part splitting is done.
func (e *Engine) SendSMS(ctx context.Context, number, text string) (err error) {
	defer func() { e.dropSession(err) }()
	if err := e.ensureAttached(ctx); err != nil {
		return err
	}

	if _, err := e.Transact(ctx, "AT+CMGF=1", 0, nil); err != nil {
		return fmt.Errorf("sms text mode: %w", err)
	}

	cmd := fmt.Sprintf(`AT+CMGS="%s"`, number)
	if _, err := e.Transact(ctx, cmd, 5*time.Second, Markers([]string{">"}, []string{"\r\nERROR\r\n", "+CMS ERROR:", "+CME ERROR:"})); err != nil {
		return fmt.Errorf("sms recipient: %w: %w", ErrNoPrompt, err)
	}

	body := append([]byte(text), ctrlZ)
	term := Markers([]string{"+CMGS:"}, []string{"\r\nERROR\r\n", "+CMS ERROR:", "+CME ERROR:"})
	if _, err := e.exchange(ctx, "sms body", body, e.opts.SendTimeout, term); err != nil {
		return fmt.Errorf("sms: %w: %w", ErrSendFailed, err)
	}
	e.log.Info().Str("to", number).Msg("sms sent")
	return nil
}
