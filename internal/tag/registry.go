package tag

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/helioz2000/1820bridge/internal/config"
)

// Registry holds one slot per channel from 0 to the highest configured
// channel. Unconfigured slots are nil.
//
// A single lock guards every raw value/timestamp pair. Critical sections are
// O(1) and there is one writer, so a coarse lock is enough.
type Registry struct {
	mu   sync.RWMutex
	tags []*Tag
	now  func() time.Time
}

// NewRegistry creates the registry from configured tags.
func NewRegistry(tags []*Tag) (*Registry, error) {
	maxChannel := -1
	for _, t := range tags {
		if t.Channel < 0 {
			return nil, fmt.Errorf("tag channel %d out of range", t.Channel)
		}
		if t.Channel > maxChannel {
			maxChannel = t.Channel
		}
	}

	slots := make([]*Tag, maxChannel+1)
	for _, t := range tags {
		if slots[t.Channel] != nil {
			return nil, fmt.Errorf("duplicate tag channel %d", t.Channel)
		}
		slots[t.Channel] = t
	}

	return &Registry{tags: slots, now: time.Now}, nil
}

// FromConfig builds the registry from the tags section.
func FromConfig(cfg []config.TagConf) (*Registry, error) {
	tags := make([]*Tag, 0, len(cfg))
	for _, tc := range cfg {
		tags = append(tags, New(tc))
	}
	return NewRegistry(tags)
}

// SetClock replaces the time source. Call before the registry is shared.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Len returns the number of slots (highest channel + 1).
func (r *Registry) Len() int {
	return len(r.tags)
}

func (r *Registry) slot(channel int) *Tag {
	if channel < 0 || channel >= len(r.tags) {
		return nil
	}
	return r.tags[channel]
}

// SetRaw stores a new raw value stamped with the current time. Channels out
// of range or without a tag are ignored and false is returned.
func (r *Registry) SetRaw(channel int, value float64) bool {
	return r.SetRawAt(channel, value, r.now())
}

// SetRawAt is SetRaw with an explicit timestamp. The timestamp never moves
// backwards.
func (r *Registry) SetRawAt(channel int, value float64, at time.Time) bool {
	t := r.slot(channel)
	if t == nil {
		return false
	}

	r.mu.Lock()
	t.raw = value
	if at.After(t.updated) {
		t.updated = at
	}
	t.valueRetained = false
	r.mu.Unlock()
	return true
}

// SetFromPayload updates a tag from an MQTT payload: a number, or
// true/false as 1/0.
func (r *Registry) SetFromPayload(channel int, payload []byte, retained bool) error {
	t := r.slot(channel)
	if t == nil {
		return fmt.Errorf("channel %d: %w", channel, ErrUnknownChannel)
	}

	value, err := ParseValue(string(payload))
	if err != nil {
		return fmt.Errorf("topic %s: %w", t.Topic, err)
	}

	at := r.now()
	r.mu.Lock()
	t.raw = value
	if at.After(t.updated) {
		t.updated = at
	}
	t.valueRetained = retained
	r.mu.Unlock()
	return nil
}

// ParseValue converts a textual value. Numbers are parsed as floats, words
// starting with t/T or f/F are booleans.
func ParseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrBadValue
	}
	switch s[0] {
	case 't', 'T':
		return 1, nil
	case 'f', 'F':
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, s)
	}
	return v, nil
}

// ScaledValue returns raw*multiplier + offset for channel.
func (r *Registry) ScaledValue(channel int) (float64, bool) {
	st, ok := r.State(channel)
	if !ok {
		return 0, false
	}
	return st.Scaled(), true
}

// IsExpired reports whether channel's value is older than its expiry.
// Unknown channels are never expired.
func (r *Registry) IsExpired(channel int, now time.Time) bool {
	st, ok := r.State(channel)
	if !ok {
		return false
	}
	return st.Expired(now)
}

// State returns a consistent copy of the tag at channel.
func (r *Registry) State(channel int) (State, bool) {
	t := r.slot(channel)
	if t == nil {
		return State{}, false
	}

	r.mu.RLock()
	st := State{
		Tag:           *t,
		Raw:           t.raw,
		Updated:       t.updated,
		ValueRetained: t.valueRetained,
	}
	r.mu.RUnlock()
	return st, true
}

// Tags returns the configured tags in channel order.
func (r *Registry) Tags() []*Tag {
	out := make([]*Tag, 0, len(r.tags))
	for _, t := range r.tags {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Subscribed returns the tags fed from the broker.
func (r *Registry) Subscribed() []*Tag {
	var out []*Tag
	for _, t := range r.tags {
		if t != nil && t.Subscribe {
			out = append(out, t)
		}
	}
	return out
}

// ByTopic finds the subscribe tag for topic.
func (r *Registry) ByTopic(topic string) (int, bool) {
	for _, t := range r.tags {
		if t != nil && t.Subscribe && t.Topic == topic {
			return t.Channel, true
		}
	}
	return 0, false
}
