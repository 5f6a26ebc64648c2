package modem

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the serial link to the modem. Read must return (0, nil) when
// nothing arrived within the read timeout.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// OpenSerial opens the modem UART at baud, 8N1.
func OpenSerial(name string, baud int) (Port, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return p, nil
}
