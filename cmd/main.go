package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helioz2000/1820bridge/internal/bridge"
	"github.com/helioz2000/1820bridge/internal/clientmqtt"
	"github.com/helioz2000/1820bridge/internal/config"
	"github.com/helioz2000/1820bridge/internal/device"
	"github.com/helioz2000/1820bridge/internal/logger"
	"github.com/helioz2000/1820bridge/internal/scheduler"
	"github.com/helioz2000/1820bridge/internal/tag"
)

var (
	configFile string
	debug      bool
)

func init() {
	flag.StringVar(&configFile, "config", "/etc/1820bridge.toml", "Path to configuration file (.toml or .yaml)")
	flag.BoolVar(&debug, "debug", false, "Force debug log level")
}

func main() {
	flag.Parse()
	cfg, err := config.NewConfig(configFile)
	if err != nil {
		fmt.Printf("configuration file read error: %v\n", err)
		os.Exit(1)
	}
	if debug {
		cfg.Logger.Level = "debug"
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Printf("failed to create a logger: %v\n", err)
		os.Exit(1)
	}
	log.With(logger.Fields{"module": "logger"}).Debug("newLogger created ok")

	reg, err := tag.FromConfig(cfg.Tags)
	if err != nil {
		log.With(logger.Fields{"module": "tag"}).Errorf("tag table: %v", err)
		os.Exit(1)
	}

	sched, unassigned, err := scheduler.New(scheduler.Definitions(cfg.UpdateCycles), reg, time.Now())
	if err != nil {
		log.With(logger.Fields{"module": "scheduler"}).Errorf("update cycles: %v", err)
		os.Exit(1)
	}
	for _, ch := range unassigned {
		log.With(logger.Fields{"module": "scheduler"}).Warnf("channel %d has no valid update cycle, it is never published", ch)
	}

	src := device.NewSerialSource(log, ConvertConfigSerial(cfg.Interface))
	client := clientmqtt.NewClient(log, ConvertConfigClientMQTT(cfg.MQTT))
	log.With(logger.Fields{"module": "mqtt"}).Debugf("NewClient created ok, id %s", client.ClientID())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	b := bridge.New(log, bridge.OptionsFromConfig(cfg), reg, sched, src, client)
	if err := b.Run(ctx); err != nil {
		log.Error("bridge stopped with error: ", err.Error())
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

// ConvertConfigClientMQTT преобразует структуры.
func ConvertConfigClientMQTT(cfg config.MQTTConf) clientmqtt.MQTTConf {
	return clientmqtt.MQTTConf{
		ClientID: cfg.ClientID,
		Schema:   "tcp",
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Qos:      cfg.Qos,
		Debug:    cfg.Debug,
	}
}

// ConvertConfigSerial преобразует структуры.
func ConvertConfigSerial(cfg config.InterfaceConf) device.SerialConf {
	return device.SerialConf{
		Device:      cfg.Device,
		Baud:        cfg.Baudrate,
		ReadTimeout: time.Duration(cfg.Timeout) * time.Second,
	}
}
