// Command tempread prints samples from a sensor bridge without a broker,
// for checking wiring and channel numbers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/helioz2000/1820bridge/internal/config"
	"github.com/helioz2000/1820bridge/internal/device"
	"github.com/helioz2000/1820bridge/internal/logger"
)

var (
	devicePath string
	baud       int
	count      int
	logLevel   string
)

func init() {
	flag.StringVar(&devicePath, "device", "/dev/ttyUSB0", "Serial device of the sensor bridge")
	flag.IntVar(&baud, "baud", device.DefaultBaud, "Baudrate")
	flag.IntVar(&count, "count", 0, "Stop after this many samples, 0 reads forever")
	flag.StringVar(&logLevel, "log-level", "info", "Log level")
}

func main() {
	flag.Parse()

	log, err := logger.NewLogger(config.LogConf{Level: logLevel})
	if err != nil {
		fmt.Printf("failed to create a logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src := device.NewSerialSource(log, device.SerialConf{Device: devicePath, Baud: baud})
	defer src.Close()

	for n := 0; count == 0 || n < count; {
		s, err := src.NextSample(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, device.ErrTimeout):
			log.Warn("no data within timeout")
			continue
		case err != nil:
			log.Errorf("read: %v", err)
			continue
		}
		fmt.Printf("T%d %g\n", s.Channel, s.Value)
		n++
	}
}
