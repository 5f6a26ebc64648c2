package modem

import (
	"strings"
)

// Response is a tokenized modem reply.
type Response struct {
	// Lines holds every non-empty line except the echoed command and the
	// final result code.
	Lines []string
	// Result is the final result code: "OK", "ERROR", "+CME ERROR: ...",
	// or empty when the reply was cut short.
	Result string
}

// ParseResponse splits raw reply text into lines. cmd, when non-empty, is
// dropped if the modem echoed it.
func ParseResponse(cmd, raw string) Response {
	var r Response
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if cmd != "" && line == cmd {
			continue
		}
		switch {
		case line == "OK", line == "ERROR",
			strings.HasPrefix(line, "+CME ERROR:"), strings.HasPrefix(line, "+CMS ERROR:"):
			r.Result = line
		default:
			r.Lines = append(r.Lines, line)
		}
	}
	return r
}

// OK reports whether the final result code was OK.
func (r Response) OK() bool {
	return r.Result == "OK"
}

// Field returns the comma-separated values of the first line starting with
// prefix, e.g. Field("+CREG") on "+CREG: 0,1" yields ["0", "1"]. Quoted
// values have their quotes removed and may contain commas.
func (r Response) Field(prefix string) ([]string, bool) {
	prefix = strings.TrimSuffix(prefix, ":")
	for _, line := range r.Lines {
		if !strings.HasPrefix(line, prefix+":") {
			continue
		}
		return splitFields(strings.TrimSpace(line[len(prefix)+1:])), true
	}
	return nil, false
}

// Has reports whether any line contains s.
func (r Response) Has(s string) bool {
	for _, line := range r.Lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func splitFields(s string) []string {
	var (
		out    []string
		cur    strings.Builder
		quoted bool
	)
	for _, c := range s {
		switch {
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	return append(out, strings.TrimSpace(cur.String()))
}

// commandError extracts a verbose error from a reply, if any.
func commandError(cmd string, r Response) *CommandError {
	for _, kind := range []string{"CME", "CMS"} {
		prefix := "+" + kind + " ERROR:"
		if strings.HasPrefix(r.Result, prefix) {
			return &CommandError{Command: cmd, Kind: kind, Detail: strings.TrimSpace(r.Result[len(prefix):])}
		}
	}
	return nil
}

// verb extracts a metrics label from a command line: "AT+CREG?" -> "CREG".
func verb(cmd string) string {
	if !strings.HasPrefix(cmd, "AT") {
		return "raw"
	}
	v := strings.TrimPrefix(cmd, "AT")
	v = strings.TrimPrefix(v, "+")
	if i := strings.IndexAny(v, "=?"); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return "AT"
	}
	return v
}
