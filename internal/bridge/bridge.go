// Package bridge runs the main loop: it publishes due tags, feeds transport
// events to the connection manager and tears everything down in order.
package bridge

import (
	"context"
	"time"

	"github.com/helioz2000/1820bridge/internal/clientmqtt"
	"github.com/helioz2000/1820bridge/internal/config"
	"github.com/helioz2000/1820bridge/internal/connection"
	"github.com/helioz2000/1820bridge/internal/device"
	"github.com/helioz2000/1820bridge/internal/logger"
	"github.com/helioz2000/1820bridge/internal/policy"
	"github.com/helioz2000/1820bridge/internal/scheduler"
	"github.com/helioz2000/1820bridge/internal/tag"
)

// Transport is the broker side of the bridge. *clientmqtt.ClientMQTT
// implements it.
type Transport interface {
	Connect()
	Disconnect()
	IsConnected() bool
	Publish(topic, payload string, retain bool) error
	ClearRetained(topic string) error
	Subscribe(topic string) error
	Events() <-chan clientmqtt.Event
}

// Options main loop settings.
type Options struct {
	Interval          time.Duration // Interval - main loop period, clamped to the permitted range.
	ReconnectInterval time.Duration
	NoreadOnExit      bool // NoreadOnExit - publish every tag's noread value on shutdown.
	ClearOnExit       bool // ClearOnExit - clear every retained tag topic on shutdown.
}

// OptionsFromConfig converts the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Interval:          time.Duration(cfg.MainLoopInterval) * time.Millisecond,
		ReconnectInterval: time.Duration(cfg.MQTT.ReconnectInterval) * time.Second,
		NoreadOnExit:      cfg.MQTT.NoreadOnExit,
		ClearOnExit:       cfg.MQTT.ClearOnExit,
	}
}

// Stats main loop counters. MinProcess and MaxProcess cover only the Busy
// ticks, those where at least one cycle was due.
type Stats struct {
	Ticks      uint64
	Busy       uint64
	Published  uint64
	Cleared    uint64
	Failed     uint64
	MinProcess time.Duration
	MaxProcess time.Duration
}

// Bridge owns every piece of process state. Only Run's goroutine and the
// device reader touch it; the reader only through the registry.
type Bridge struct {
	log       *logger.Log
	opts      Options
	reg       *tag.Registry
	sched     *scheduler.Scheduler
	src       device.SampleSource
	reader    *device.Reader
	transport Transport
	conn      *connection.Manager
	now       func() time.Time
	stats     Stats
}

// New конструктор.
func New(log logger.Logger, opts Options, reg *tag.Registry, sched *scheduler.Scheduler,
	src device.SampleSource, transport Transport) *Bridge {
	if opts.Interval <= 0 {
		opts.Interval = config.MainLoopIntervalDefault * time.Millisecond
	}
	ms := config.ClampMainLoopInterval(int(opts.Interval / time.Millisecond))
	opts.Interval = time.Duration(ms) * time.Millisecond

	b := &Bridge{
		log:       log.With(logger.Fields{"module": "bridge"}),
		opts:      opts,
		reg:       reg,
		sched:     sched,
		src:       src,
		reader:    device.NewReader(log, src, reg),
		transport: transport,
		conn:      connection.NewManager(log, transport, opts.ReconnectInterval),
		now:       time.Now,
	}
	b.conn.OnConnected(b.resubscribe)
	return b
}

// SetClock replaces the time source of the loop and the connection manager.
func (b *Bridge) SetClock(now func() time.Time) {
	b.now = now
	b.conn.SetClock(now)
}

// Interval returns the effective main loop period.
func (b *Bridge) Interval() time.Duration {
	return b.opts.Interval
}

// Stats returns the loop counters. Only valid once Run has returned.
func (b *Bridge) Stats() Stats {
	return b.stats
}

// Run starts the device reader, connects and loops until ctx is done, then
// shuts down.
func (b *Bridge) Run(ctx context.Context) error {
	b.log.Infof("main loop started, interval %v", b.opts.Interval)
	b.reader.Start(ctx)
	b.conn.Connect()

	timer := time.NewTimer(b.opts.Interval)
	defer timer.Stop()

	for {
		wait := b.tick()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			b.shutdown()
			return nil
		case <-timer.C:
		}
	}
}

// tick runs one main loop pass and returns how long to sleep before the next.
func (b *Bridge) tick() time.Duration {
	start := b.now()
	due := b.process(start)
	b.drainEvents()
	b.conn.Tick(b.now())

	now := b.now()
	b.stats.Ticks++
	if due > 0 {
		b.recordProcessing(now.Sub(start))
	}
	return b.wait(start, now)
}

// wait is the rest of the interval after a pass that started at start. An
// overrun yields zero.
func (b *Bridge) wait(start, now time.Time) time.Duration {
	d := b.opts.Interval - now.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

func (b *Bridge) recordProcessing(d time.Duration) {
	b.stats.Busy++
	if b.stats.Busy == 1 || d < b.stats.MinProcess {
		b.stats.MinProcess = d
	}
	if d > b.stats.MaxProcess {
		b.stats.MaxProcess = d
	}
}

func (b *Bridge) connected() bool {
	return b.conn.State() == connection.Connected
}

// process publishes every tag of every due cycle and returns the number of
// cycles that were due.
func (b *Bridge) process(now time.Time) int {
	due := b.sched.DueCycles(now)
	for _, c := range due {
		for _, ch := range c.Tags {
			st, ok := b.reg.State(ch)
			if !ok {
				continue
			}
			b.apply(st, policy.Decide(b.connected(), st, now))
		}
	}
	return len(due)
}

func (b *Bridge) apply(st tag.State, d policy.Decision) {
	var err error
	switch d.Action {
	case policy.Skip:
		return
	case policy.Publish, policy.PublishNoread:
		err = b.transport.Publish(st.Topic, clientmqtt.FormatValue(st.Format, d.Value), d.Retain)
		if err == nil {
			b.stats.Published++
		}
	case policy.ClearRetained:
		err = b.transport.ClearRetained(st.Topic)
		if err == nil {
			b.stats.Cleared++
		}
	}
	if err != nil {
		b.stats.Failed++
		b.log.Warnf("channel %d %s: %v", st.Channel, d.Action, err)
	}
}

// drainEvents handles every queued transport event without blocking.
func (b *Bridge) drainEvents() {
	events := b.transport.Events()
	for {
		select {
		case ev := <-events:
			b.handleEvent(ev)
		default:
			return
		}
	}
}

func (b *Bridge) handleEvent(ev clientmqtt.Event) {
	switch ev.Kind {
	case clientmqtt.EventConnected:
		b.conn.OnConnectSuccess()
	case clientmqtt.EventConnectFailed:
		b.conn.OnConnectFailure(ev.Err)
	case clientmqtt.EventConnectionLost:
		b.conn.OnLinkDrop(ev.Err)
	case clientmqtt.EventMessage:
		ch, ok := b.reg.ByTopic(ev.Topic)
		if !ok {
			b.log.Debugf("message on unknown topic %s", ev.Topic)
			return
		}
		if err := b.reg.SetFromPayload(ch, ev.Payload, ev.Retained); err != nil {
			b.log.Warnf("channel %d: %v", ch, err)
		}
	}
}

func (b *Bridge) resubscribe() {
	for _, t := range b.reg.Subscribed() {
		if err := b.transport.Subscribe(t.Topic); err != nil {
			b.log.Warnf("subscribe %s: %v", t.Topic, err)
		}
	}
}

// teardown sends the configured exit messages for every tag.
func (b *Bridge) teardown() {
	if !b.opts.NoreadOnExit && !b.opts.ClearOnExit {
		return
	}
	connected := b.connected()
	for _, t := range b.reg.Tags() {
		st, ok := b.reg.State(t.Channel)
		if !ok {
			continue
		}
		for _, d := range policy.Teardown(connected, st, b.opts.NoreadOnExit, b.opts.ClearOnExit) {
			b.apply(st, d)
		}
	}
}

func (b *Bridge) shutdown() {
	b.log.Info("shutting down")
	b.conn.Shutdown()
	b.teardown()

	b.reader.Wait()
	if err := b.src.Close(); err != nil {
		b.log.Warnf("close device: %v", err)
	}
	b.transport.Disconnect()

	rs := b.reader.Stats()
	b.log.With(logger.Fields{
		"ticks":       b.stats.Ticks,
		"busy":        b.stats.Busy,
		"published":   b.stats.Published,
		"cleared":     b.stats.Cleared,
		"failed":      b.stats.Failed,
		"samples":     rs.Accepted,
		"min_process": b.stats.MinProcess,
		"max_process": b.stats.MaxProcess,
	}).Info("main loop stopped")
}
