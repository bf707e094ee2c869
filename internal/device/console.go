package device

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

const consoleReadTimeout = time.Millisecond

// Console is the transceiver's debug UART.
type Console struct {
	port serial.Port
	buf  []byte
}

// OpenConsole opens the UART with a short read timeout so reads never stall the loop.
func OpenConsole(path string, baud int) (*Console, error) {
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open console %s: %w", path, err)
	}
	if err := port.SetReadTimeout(consoleReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("console read timeout: %w", err)
	}
	return &Console{port: port, buf: make([]byte, 256)}, nil
}

// Read returns whatever the UART buffered, or nil when it is idle.
func (c *Console) Read() ([]byte, error) {
	n, err := c.port.Read(c.buf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, c.buf[:n])
	return out, nil
}

// Close releases the UART.
func (c *Console) Close() error {
	return c.port.Close()
}
