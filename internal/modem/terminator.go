package modem

import (
	"bytes"
	"regexp"
)

// Verdict is the state of a transaction's accumulated response.
type Verdict int

const (
	Pending Verdict = iota
	Success
	Failure
)

// Terminator inspects the accumulated response after every read.
type Terminator func(buf []byte) Verdict

var (
	okSuffix    = []byte("\r\nOK\r\n")
	errorSuffix = []byte("\r\nERROR\r\n")
	verboseErr  = regexp.MustCompile(`\+CM[ES] ERROR: [^\r\n]*\r\n`)
)

// DefaultTerminator resolves on the final result code: a buffer ending in
// "\r\nOK\r\n" succeeds, one ending in "\r\nERROR\r\n" or carrying a
// verbose +CME/+CMS error line fails.
func DefaultTerminator(buf []byte) Verdict {
	switch {
	case bytes.HasSuffix(buf, okSuffix):
		return Success
	case bytes.HasSuffix(buf, errorSuffix):
		return Failure
	case verboseErr.Match(buf):
		return Failure
	}
	return Pending
}

// Markers resolves as soon as any success or failure marker appears
// anywhere in the buffer. Failure markers are checked first.
func Markers(success, failure []string) Terminator {
	return func(buf []byte) Verdict {
		for _, m := range failure {
			if bytes.Contains(buf, []byte(m)) {
				return Failure
			}
		}
		for _, m := range success {
			if bytes.Contains(buf, []byte(m)) {
				return Success
			}
		}
		return Pending
	}
}

// LineTerminator succeeds once a line starting with prefix has been
// received in full. A bare ERROR result fails early.
func LineTerminator(prefix string) Terminator {
	p := []byte(prefix)
	return func(buf []byte) Verdict {
		if i := bytes.Index(buf, p); i >= 0 && bytes.Contains(buf[i:], []byte("\r\n")) {
			return Success
		}
		if bytes.HasSuffix(buf, errorSuffix) || verboseErr.Match(buf) {
			return Failure
		}
		return Pending
	}
}
