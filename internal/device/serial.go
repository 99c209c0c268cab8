package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/helioz2000/1820bridge/internal/logger"
	"github.com/tarm/serial"
)

const (
	// pollChunk is the tty read timeout. A long read timeout is made of
	// several chunks so cancellation is noticed within one chunk.
	pollChunk = time.Second

	DefaultBaud        = 9600
	DefaultReadTimeout = 20 * time.Second
)

var supportedBauds = map[int]struct{}{
	300: {}, 1200: {}, 2400: {}, 4800: {}, 9600: {}, 19200: {},
}

// Baud returns b when the bridge supports it, otherwise DefaultBaud and false.
func Baud(b int) (int, bool) {
	if _, ok := supportedBauds[b]; ok {
		return b, true
	}
	return DefaultBaud, false
}

// SerialConf serial link settings.
type SerialConf struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

type opener func() (io.ReadCloser, error)

// SerialSource reads "T<channel> <value>" lines from a tty. The port is
// opened lazily and reopened after a read error.
type SerialSource struct {
	cfg     SerialConf
	log     *logger.Log
	open    opener
	port    io.ReadCloser
	reader  *bufio.Reader
	partial string
}

// NewSerialSource конструктор.
func NewSerialSource(log logger.Logger, cfg SerialConf) *SerialSource {
	l := log.With(logger.Fields{"module": "device", "port": cfg.Device})

	baud, ok := Baud(cfg.Baud)
	if !ok {
		l.Warnf("unsupported baudrate %d, using %d", cfg.Baud, baud)
	}
	cfg.Baud = baud
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	s := &SerialSource{cfg: cfg, log: l}
	s.open = func() (io.ReadCloser, error) {
		port, err := serial.OpenPort(&serial.Config{
			Name:        cfg.Device,
			Baud:        cfg.Baud,
			ReadTimeout: pollChunk,
			Size:        8,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
		})
		if err != nil {
			return nil, err
		}
		return port, nil
	}
	return s
}

func (s *SerialSource) connect(ctx context.Context) error {
	port, err := s.open()
	if err != nil {
		// Pace reopen attempts to one per poll chunk.
		t := time.NewTimer(pollChunk)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		return fmt.Errorf("open %s: %w", s.cfg.Device, err)
	}
	s.port = port
	s.reader = bufio.NewReader(port)
	s.partial = ""
	s.log.Infof("device opened at %d baud", s.cfg.Baud)
	return nil
}

// NextSample implements SampleSource.
func (s *SerialSource) NextSample(ctx context.Context) (Sample, error) {
	if s.port == nil {
		if err := s.connect(ctx); err != nil {
			return Sample{}, err
		}
	}

	deadline := time.Now().Add(s.cfg.ReadTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return Sample{}, err
		}

		line, err := s.reader.ReadString('\n')
		switch {
		case err == nil:
			full := s.partial + line
			s.partial = ""
			sample, ok, perr := ParseLine(full)
			if perr != nil {
				return Sample{}, perr
			}
			if !ok {
				s.log.Debugf("skipping non temperature line %q", full)
				continue
			}
			return sample, nil
		case errors.Is(err, io.EOF):
			// tty read timed out, keep what arrived of the line
			s.partial += line
			if time.Now().After(deadline) {
				return Sample{}, ErrTimeout
			}
		default:
			s.closePort()
			return Sample{}, fmt.Errorf("read %s: %w", s.cfg.Device, err)
		}
	}
}

func (s *SerialSource) closePort() {
	if s.port == nil {
		return
	}
	if err := s.port.Close(); err != nil {
		s.log.Warnf("close: %v", err)
	}
	s.port = nil
	s.reader = nil
	s.partial = ""
}

// Close releases the port. Must not be called while NextSample runs.
func (s *SerialSource) Close() error {
	s.closePort()
	return nil
}
