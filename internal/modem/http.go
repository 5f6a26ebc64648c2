package modem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	httpGet  = 0
	httpPost = 1

	httpDataWindow = 10 * time.Second
	httpReadWait   = 10 * time.Second
)

// HTTPGet fetches url through the modem's HTTP service.
func (e *Engine) HTTPGet(ctx context.Context, url string) ([]byte, error) {
	return e.http(ctx, httpGet, url, "", nil)
}

// HTTPPost posts body to url through the modem's HTTP service.
func (e *Engine) HTTPPost(ctx context.Context, url, contentType string, body []byte) ([]byte, error) {
	return e.http(ctx, httpPost, url, contentType, body)
}

// http runs init, parameters, optional payload staging, action and read.
// HTTPTERM is issued on every path once HTTPINIT has been sent. Link-level
// failures drop the session.
func (e *Engine) http(ctx context.Context, method int, url, contentType string, body []byte) (_ []byte, err error) {
	defer func() { e.dropSession(err) }()
	if err := e.ensureAttached(ctx); err != nil {
		return nil, err
	}

	defer e.bestEffort(ctx, "AT+HTTPTERM", 0)
	defer func() {
		if err != nil {
			err = fmt.Errorf("http %s: %w", url, err)
		}
	}()

	if _, err := e.Transact(ctx, "AT+HTTPINIT", 0, nil); err != nil {
		return nil, err
	}
	if _, err := e.Transact(ctx, `AT+HTTPPARA="CID",1`, 0, nil); err != nil {
		return nil, err
	}
	if _, err := e.Transact(ctx, fmt.Sprintf(`AT+HTTPPARA="URL","%s"`, url), 0, nil); err != nil {
		return nil, err
	}

	if method == httpPost {
		if contentType != "" {
			if _, err := e.Transact(ctx, fmt.Sprintf(`AT+HTTPPARA="CONTENT","%s"`, contentType), 0, nil); err != nil {
				return nil, err
			}
		}
		cmd := fmt.Sprintf("AT+HTTPDATA=%d,%d", len(body), httpDataWindow.Milliseconds())
		if _, err := e.Transact(ctx, cmd, 0, Markers([]string{"DOWNLOAD"}, []string{"\r\nERROR\r\n", "+CME ERROR:"})); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoPrompt, err)
		}
		if _, err := e.exchange(ctx, "payload", body, httpDataWindow+e.opts.CommandTimeout, nil); err != nil {
			return nil, err
		}
	}

	raw, err := e.Transact(ctx, fmt.Sprintf("AT+HTTPACTION=%d", method), e.opts.HTTPActionTimeout, LineTerminator("+HTTPACTION:"))
	if err != nil {
		return nil, err
	}
	status, length, err := parseAction(raw)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, &HTTPStatusError{Method: method, Status: status}
	}
	if length == 0 {
		return nil, nil
	}

	raw, err = e.Transact(ctx, "AT+HTTPREAD", httpReadWait, nil)
	if err != nil {
		return nil, err
	}
	return readBody(raw)
}

// parseAction extracts status and length from "+HTTPACTION: <m>,<status>,<len>".
func parseAction(raw string) (status, length int, err error) {
	f, ok := ParseResponse("", raw).Field("+HTTPACTION")
	if !ok || len(f) < 3 {
		return 0, 0, fmt.Errorf("HTTPACTION reply %q: %w", raw, ErrCommandFailed)
	}
	status, err1 := strconv.Atoi(f[1])
	length, err2 := strconv.Atoi(f[2])
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("HTTPACTION reply %q: %w", raw, ErrCommandFailed)
	}
	return status, length, nil
}

// readBody returns the bytes announced by "+HTTPREAD: <len>". The body is
// binary-safe and may itself contain CRLF.
func readBody(raw string) ([]byte, error) {
	const prefix = "+HTTPREAD:"
	i := strings.Index(raw, prefix)
	if i < 0 {
		return nil, fmt.Errorf("HTTPREAD reply: %w", ErrCommandFailed)
	}
	rest := raw[i+len(prefix):]
	eol := strings.Index(rest, "\r\n")
	if eol < 0 {
		return nil, fmt.Errorf("HTTPREAD reply: %w", ErrCommandFailed)
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest[:eol]))
	if err != nil {
		return nil, fmt.Errorf("HTTPREAD length: %w", ErrCommandFailed)
	}
	data := rest[eol+2:]
	if len(data) < n {
		return nil, fmt.Errorf("HTTPREAD short body %d/%d: %w", len(data), n, ErrCommandFailed)
	}
	return []byte(data[:n]), nil
}
