package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrTimeout no complete line arrived within the read timeout.
	ErrTimeout = errors.New("device: no data within timeout")
	// ErrMalformedLine a temperature line that does not parse.
	ErrMalformedLine = errors.New("device: malformed temperature line")
)

// Sample is one channel reading from the sensor bridge.
type Sample struct {
	Channel int
	Value   float64
}

// SampleSource yields samples from the physical link. NextSample blocks
// until a sample arrives, the read timeout passes or ctx is done.
type SampleSource interface {
	NextSample(ctx context.Context) (Sample, error)
	Close() error
}

// ParseLine parses a "T<channel> <value>" line. Lines that do not start with
// 'T' (the bridge prints a banner on start-up) are reported with ok == false.
func ParseLine(line string) (s Sample, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "T") {
		return Sample{}, false, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) != 2 {
		return Sample{}, false, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	ch, err := strconv.Atoi(fields[0])
	if err != nil {
		return Sample{}, false, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Sample{}, false, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	return Sample{Channel: ch, Value: v}, true, nil
}
