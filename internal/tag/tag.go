// Package tag holds the per-channel state published by the bridge.
//
// Configuration fields of a Tag are written once while the registry is built
// and only read afterwards. The live raw value and its timestamp are guarded
// by the registry lock.
package tag

import (
	"time"

	"github.com/helioz2000/1820bridge/internal/config"
)

// NoreadAction tells the publisher what to do with an expired tag.
type NoreadAction int

const (
	NoreadIgnore NoreadAction = iota
	NoreadPublishNull
	NoreadPublishSubstitute
)

func (a NoreadAction) String() string {
	switch a {
	case NoreadPublishNull:
		return config.NoreadPublishNull
	case NoreadPublishSubstitute:
		return config.NoreadPublishSubstitute
	default:
		return config.NoreadIgnore
	}
}

// ParseNoreadAction maps a config value onto a NoreadAction.
func ParseNoreadAction(s string) NoreadAction {
	switch s {
	case config.NoreadPublishNull:
		return NoreadPublishNull
	case config.NoreadPublishSubstitute:
		return NoreadPublishSubstitute
	default:
		return NoreadIgnore
	}
}

// Tag is one physical channel.
type Tag struct {
	Channel      int
	Topic        string // Topic - empty means never publish.
	Format       string // Format - printf verb for the payload.
	Multiplier   float64
	Offset       float64
	Expiry       time.Duration // Expiry - 0 never expires.
	NoreadValue  float64
	NoreadAction NoreadAction
	Retain       bool
	CycleID      int
	HasCycle     bool
	Subscribe    bool // Subscribe - value comes from the broker, not the device.

	raw           float64
	updated       time.Time
	valueRetained bool
}

// State is a copy of a tag taken under the registry lock.
type State struct {
	Tag
	Raw           float64
	Updated       time.Time
	ValueRetained bool
}

// Scaled returns raw*multiplier + offset.
func (s State) Scaled() float64 {
	return s.Raw*s.Multiplier + s.Offset
}

// Expired reports whether the value is older than the tag's expiry.
func (s State) Expired(now time.Time) bool {
	if s.Expiry <= 0 {
		return false
	}
	return now.Sub(s.Updated) > s.Expiry
}

// New builds a tag from its configuration entry. Defaults must
// already be applied.
func New(tc config.TagConf) *Tag {
	t := &Tag{
		Channel:      *tc.Channel,
		Topic:        tc.Topic,
		Format:       tc.Format,
		Multiplier:   1,
		Offset:       float64(tc.Offset),
		Expiry:       time.Duration(tc.Expiry) * time.Second,
		NoreadValue:  float64(tc.NoreadValue),
		NoreadAction: ParseNoreadAction(tc.NoreadAction),
		Subscribe:    tc.Mode == config.ModeSubscribe,
	}
	if tc.Multiplier != nil {
		t.Multiplier = float64(*tc.Multiplier)
	}
	if tc.Retain != nil {
		t.Retain = *tc.Retain
	}
	if tc.UpdateCycle != nil {
		t.CycleID = *tc.UpdateCycle
		t.HasCycle = true
	}
	return t
}
