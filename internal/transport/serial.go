package transport

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/muurk/coopdoor/internal/logging"
)

// Serial framing constants. The HC-12 is a transparent UART bridge, so each
// frame is delimited on the byte stream as [SyncByte][length][frame...].
const (
	SyncByte = 0x7e

	// MaxSerialFrame bounds the length byte so a corrupted length cannot
	// make the reader wait for a huge frame
	MaxSerialFrame = 64

	// DefaultBaudRate is the HC-12 factory setting
	DefaultBaudRate = 9600

	// readPollInterval bounds each blocking read so ctx cancellation is
	// noticed promptly
	readPollInterval = 50 * time.Millisecond
)

// SerialConfig holds serial port settings for the radio module
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud"`
}

// serialPort is the subset of serial.Port used by SerialTransport
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// SerialTransport drives an HC-12 class radio attached to a UART. It owns
// the port exclusively.
type SerialTransport struct {
	port   serialPort
	name   string
	buf    []byte
	logger *zap.Logger
}

// OpenSerial opens the radio's serial port. Failing to open the port is an
// I/O fault: a radio that cannot be opened is not retried.
func OpenSerial(cfg SerialConfig, logger *zap.Logger) (*SerialTransport, error) {
	if cfg.Port == "" {
		return nil, NewIOFault("open", fmt.Errorf("no serial port configured"))
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, NewIOFault("open", fmt.Errorf("failed to open %s: %w", cfg.Port, err))
	}

	t := newSerialTransport(port, cfg.Port, logger)
	t.logger.Info("Serial radio opened",
		zap.String("port", cfg.Port),
		zap.Int("baud", cfg.BaudRate),
	)
	return t, nil
}

func newSerialTransport(port serialPort, name string, logger *zap.Logger) *SerialTransport {
	return &SerialTransport{
		port:   port,
		name:   name,
		logger: logging.OrDefault(logger, "serial"),
	}
}

// ListPorts returns the serial ports present on this machine
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Send implements Transport
func (s *SerialTransport) Send(ctx context.Context, frame []byte) error {
	if len(frame) == 0 || len(frame) > MaxSerialFrame {
		return NewIOFault("send", fmt.Errorf("frame of %d bytes cannot be sent", len(frame)))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := make([]byte, 0, len(frame)+2)
	out = append(out, SyncByte, byte(len(frame)))
	out = append(out, frame...)

	for len(out) > 0 {
		n, err := s.port.Write(out)
		if err != nil {
			return NewIOFault("send", err)
		}
		out = out[n:]
	}
	return nil
}

// Receive implements Transport. Bytes that do not form a delimited frame are
// skipped; bytes after a complete frame are kept for the next call.
func (s *SerialTransport) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	chunk := make([]byte, 128)

	for {
		if frame, ok := s.extractFrame(); ok {
			return frame, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, NewTimeout("receive")
		}
		if remaining > readPollInterval {
			remaining = readPollInterval
		}

		if err := s.port.SetReadTimeout(remaining); err != nil {
			return nil, NewIOFault("receive", err)
		}
		n, err := s.port.Read(chunk)
		if err != nil {
			return nil, NewIOFault("receive", err)
		}
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		}
	}
}

// extractFrame pops the first complete delimited frame from the buffer
func (s *SerialTransport) extractFrame() ([]byte, bool) {
	for {
		start := bytes.IndexByte(s.buf, SyncByte)
		if start < 0 {
			if len(s.buf) > 0 {
				logging.LogRawBytes(s.logger, "Discarding unsynchronised bytes", s.buf)
			}
			s.buf = s.buf[:0]
			return nil, false
		}
		if start > 0 {
			logging.LogRawBytes(s.logger, "Discarding unsynchronised bytes", s.buf[:start])
			s.buf = s.buf[start:]
		}

		if len(s.buf) < 2 {
			return nil, false
		}

		length := int(s.buf[1])
		if length == 0 || length > MaxSerialFrame {
			// Not a real header: resync past this sync byte
			s.buf = s.buf[1:]
			continue
		}

		if len(s.buf) < 2+length {
			return nil, false
		}

		frame := make([]byte, length)
		copy(frame, s.buf[2:2+length])
		s.buf = append(s.buf[:0], s.buf[2+length:]...)
		return frame, true
	}
}

// Close implements Transport
func (s *SerialTransport) Close() error {
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", s.name, err)
	}
	return nil
}
