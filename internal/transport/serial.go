package transport

import (
	"context"
	"io"

	serial "github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// openPort is replaced in tests.
var openPort = func(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
	return serial.Open(opts)
}

// SerialSource reads text frames from a USB serial port.
type SerialSource struct {
	opts   serial.OpenOptions
	stats  Stats
	logger *zap.SugaredLogger
}

// NewSerialSource configures an 8N1 port at the given baud rate.
func NewSerialSource(portName string, baudRate uint, logger *zap.SugaredLogger) *SerialSource {
	return &SerialSource{
		opts: serial.OpenOptions{
			PortName:              portName,
			BaudRate:              baudRate,
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		},
		logger: logger,
	}
}

func (s *SerialSource) Name() string { return "serial:" + s.opts.PortName }

// Stats returns the line counters.
func (s *SerialSource) Stats() *Stats { return &s.stats }

// Run opens the port, reports OnConnect and streams frames until ctx is done
// or the port fails. Closing the port is what unblocks the pending read.
func (s *SerialSource) Run(ctx context.Context, h Handler) error {
	port, err := openPort(s.opts)
	if err != nil {
		err = errors.Wrapf(err, "open serial port %s", s.opts.PortName)
		h.OnDisconnect(err)
		return err
	}
	s.logger.Infow("serial port opened", "port", s.opts.PortName, "baud", s.opts.BaudRate)
	h.OnConnect()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			port.Close()
		case <-stop:
		}
	}()

	err = readFrames(port, lineFilter{stats: &s.stats, logger: s.logger}, h)
	if ctx.Err() != nil {
		h.OnDisconnect(nil)
		return nil
	}
	port.Close()
	err = errors.Wrapf(err, "read serial port %s", s.opts.PortName)
	s.logger.Warnw("serial port lost", "error", err)
	h.OnDisconnect(err)
	return err
}
