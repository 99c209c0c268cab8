// Package policy decides what, if anything, is published for a tag.
package policy

import (
	"time"

	"github.com/helioz2000/1820bridge/internal/tag"
)

// Action is the outcome of a publish decision.
type Action int

const (
	Skip Action = iota
	Publish
	PublishNoread
	ClearRetained
)

func (a Action) String() string {
	switch a {
	case Publish:
		return "publish"
	case PublishNoread:
		return "publish-noread"
	case ClearRetained:
		return "clear-retained"
	default:
		return "skip"
	}
}

// Decision is what to send for one tag. Value and Retain are meaningful for
// Publish and PublishNoread only.
type Decision struct {
	Action Action
	Value  float64
	Retain bool
}

// Decide evaluates one tag at time now. Call it once per tag per due cycle.
func Decide(connected bool, st tag.State, now time.Time) Decision {
	if !connected {
		return Decision{Action: Skip}
	}
	if st.Topic == "" || st.Subscribe {
		return Decision{Action: Skip}
	}

	if !st.Expired(now) {
		return Decision{Action: Publish, Value: st.Scaled(), Retain: st.Retain}
	}

	switch st.NoreadAction {
	case tag.NoreadPublishNull:
		return Decision{Action: ClearRetained}
	case tag.NoreadPublishSubstitute:
		return Decision{Action: PublishNoread, Value: st.NoreadValue, Retain: st.Retain}
	default:
		return Decision{Action: Skip}
	}
}

// Teardown returns the messages sent for a tag on shutdown, independent of
// expiry: the noread value, a retained clear, or both in that order.
func Teardown(connected bool, st tag.State, noread, clear bool) []Decision {
	if !connected || st.Topic == "" || st.Subscribe {
		return nil
	}

	var out []Decision
	if noread {
		out = append(out, Decision{Action: PublishNoread, Value: st.NoreadValue, Retain: st.Retain})
	}
	if clear {
		out = append(out, Decision{Action: ClearRetained})
	}
	return out
}
