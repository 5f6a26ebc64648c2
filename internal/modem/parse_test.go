package modem

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParseResponse(t *testing.T) {
	raw := "AT+CREG?\r\r\n+CREG: 0,5\r\n\r\nOK\r\n"
	got := ParseResponse("AT+CREG?", raw)

	want := Response{Lines: []string{"+CREG: 0,5"}, Result: "OK"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseResponse mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.OK())
}

func TestParseResponseVerboseError(t *testing.T) {
	got := ParseResponse("", "\r\n+CME ERROR: SIM busy\r\n")
	assert.Equal(t, "+CME ERROR: SIM busy", got.Result)
	assert.False(t, got.OK())

	ce := commandError("AT+CPIN?", got)
	if assert.NotNil(t, ce) {
		assert.Equal(t, "SIM busy", ce.Detail)
	}
}

func TestFieldQuoteAware(t *testing.T) {
	r := ParseResponse("", "\r\n+SAPBR: 1,1,\"10.0.0.7\"\r\n+CCLK: \"26/01/01,12:00:00+00\"\r\n\r\nOK\r\n")

	f, ok := r.Field("+SAPBR")
	assert.True(t, ok)
	assert.Equal(t, []string{"1", "1", "10.0.0.7"}, f)

	f, ok = r.Field("+CCLK:")
	assert.True(t, ok)
	assert.Equal(t, []string{"26/01/01,12:00:00+00"}, f, "comma inside quotes is kept")

	_, ok = r.Field("+CSQ")
	assert.False(t, ok)
}

func TestFieldDoesNotMatchLongerPrefix(t *testing.T) {
	r := ParseResponse("", "\r\n+CREGX: 9\r\n+CREG: 0,1\r\n\r\nOK\r\n")
	f, ok := r.Field("+CREG")
	assert.True(t, ok)
	assert.Equal(t, []string{"0", "1"}, f)
}

func TestVerb(t *testing.T) {
	assert.Equal(t, "CREG", verb("AT+CREG?"))
	assert.Equal(t, "SAPBR", verb(`AT+SAPBR=3,1,"APN","x"`))
	assert.Equal(t, "AT", verb("AT"))
	assert.Equal(t, "raw", verb("payload"))
}
