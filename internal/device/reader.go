package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/helioz2000/1820bridge/internal/logger"
)

// Store receives samples. *tag.Registry implements it.
type Store interface {
	SetRaw(channel int, value float64) bool
}

// Stats counters of a Reader.
type Stats struct {
	Accepted uint64
	Dropped  uint64
	Errors   uint64
}

// Reader runs the sample loop on its own goroutine for the process lifetime.
type Reader struct {
	src   SampleSource
	store Store
	log   *logger.Log
	wg    sync.WaitGroup

	accepted atomic.Uint64
	dropped  atomic.Uint64
	failures atomic.Uint64
}

// NewReader конструктор.
func NewReader(log logger.Logger, src SampleSource, store Store) *Reader {
	return &Reader{
		src:   src,
		store: store,
		log:   log.With(logger.Fields{"module": "reader"}),
	}
}

// Start launches the read loop. It stops when ctx is cancelled.
func (r *Reader) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Wait blocks until the read loop has returned. The source may be closed
// afterwards.
func (r *Reader) Wait() {
	r.wg.Wait()
}

// Stats returns the counters so far.
func (r *Reader) Stats() Stats {
	return Stats{
		Accepted: r.accepted.Load(),
		Dropped:  r.dropped.Load(),
		Errors:   r.failures.Load(),
	}
}

func (r *Reader) run(ctx context.Context) {
	defer r.wg.Done()
	r.log.Debug("read loop started")

	for ctx.Err() == nil {
		s, err := r.src.NextSample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			r.failures.Add(1)
			if errors.Is(err, ErrTimeout) {
				r.log.Warn("no data within timeout")
			} else {
				r.log.Errorf("read: %v", err)
			}
			continue
		}

		if !r.store.SetRaw(s.Channel, s.Value) {
			r.dropped.Add(1)
			r.log.Debugf("channel %d not configured, sample %v dropped", s.Channel, s.Value)
			continue
		}
		r.accepted.Add(1)
		r.log.Tracef("channel %d: %v", s.Channel, s.Value)
	}

	st := r.Stats()
	r.log.Infof("read loop stopped: %d accepted, %d dropped, %d errors", st.Accepted, st.Dropped, st.Errors)
}
