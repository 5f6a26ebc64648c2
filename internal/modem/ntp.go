package modem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const ntpWait = 10 * time.Second

// SyncTime asks the modem to fetch network time and returns the modem's
// clock afterwards. Applying it to the host is the caller's job.
func (e *Engine) SyncTime(ctx context.Context) (_ time.Time, err error) {
	defer func() { e.dropSession(err) }()
	if err := e.ensureAttached(ctx); err != nil {
		return time.Time{}, err
	}

	cmd := fmt.Sprintf(`AT+CNTP="%s",%d`, e.opts.NTPServer, e.opts.NTPTimezoneHours*4)
	if _, err := e.Transact(ctx, cmd, 0, nil); err != nil {
		return time.Time{}, fmt.Errorf("ntp server: %w", err)
	}

	raw, err := e.Transact(ctx, "AT+CNTP", ntpWait, LineTerminator("+CNTP:"))
	if err != nil {
		return time.Time{}, fmt.Errorf("ntp request: %w", err)
	}
	if f, ok := ParseResponse("AT+CNTP", raw).Field("+CNTP"); !ok || len(f) == 0 || f[0] != "1" {
		return time.Time{}, fmt.Errorf("ntp request %q: %w", raw, ErrCommandFailed)
	}

	resp, err := e.command(ctx, "AT+CCLK?", 0)
	if err != nil {
		return time.Time{}, fmt.Errorf("read clock: %w", err)
	}
	f, ok := resp.Field("+CCLK")
	if !ok || len(f) != 1 {
		return time.Time{}, fmt.Errorf("read clock %q: %w", resp.Lines, ErrMalformedTime)
	}
	return ParseClock(f[0])
}

// ParseClock parses the modem clock format "yy/MM/dd,hh:mm:ss±zz" where zz
// is the UTC offset in quarter hours. Every field is range-checked; nothing
// is returned for a malformed value.
func ParseClock(s string) (time.Time, error) {
	s = strings.Trim(s, `"`)
	if len(s) != 20 || s[2] != '/' || s[5] != '/' || s[8] != ',' || s[11] != ':' || s[14] != ':' || (s[17] != '+' && s[17] != '-') {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrMalformedTime)
	}

	num := func(i int) (int, bool) {
		n, err := strconv.Atoi(s[i : i+2])
		return n, err == nil && s[i] >= '0' && s[i] <= '9'
	}
	var v [7]int
	for k, i := range []int{0, 3, 6, 9, 12, 15, 18} {
		n, ok := num(i)
		if !ok {
			return time.Time{}, fmt.Errorf("%q: %w", s, ErrMalformedTime)
		}
		v[k] = n
	}
	year, month, day, hour, minute, sec, quarters := 2000+v[0], v[1], v[2], v[3], v[4], v[5], v[6]
	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || sec > 59 || quarters > 56 {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrMalformedTime)
	}

	offset := quarters * 15 * 60
	if s[17] == '-' {
		offset = -offset
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.FixedZone("", offset))
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("%q: day out of range: %w", s, ErrMalformedTime)
	}
	return t, nil
}
