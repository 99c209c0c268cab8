package policy

import (
	"reflect"
	"testing"
	"time"

	"github.com/helioz2000/1820bridge/internal/tag"
)

var now = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

func state(mutate func(*tag.State)) tag.State {
	st := tag.State{
		Tag: tag.Tag{
			Channel:    3,
			Topic:      "t/3",
			Multiplier: 0.1,
			Expiry:     5 * time.Second,
		},
		Raw:     250,
		Updated: now,
	}
	if mutate != nil {
		mutate(&st)
	}
	return st
}

func TestDecide(t *testing.T) {
	stale := func(st *tag.State) { st.Updated = now.Add(-6 * time.Second) }

	tests := []struct {
		name      string
		connected bool
		st        tag.State
		want      Decision
	}{
		{
			name: "not connected",
			st:   state(nil),
			want: Decision{Action: Skip},
		},
		{
			name:      "empty topic",
			connected: true,
			st:        state(func(st *tag.State) { st.Topic = "" }),
			want:      Decision{Action: Skip},
		},
		{
			name:      "subscribe tag",
			connected: true,
			st:        state(func(st *tag.State) { st.Subscribe = true }),
			want:      Decision{Action: Skip},
		},
		{
			name:      "fresh value",
			connected: true,
			st:        state(nil),
			want:      Decision{Action: Publish, Value: 25},
		},
		{
			name:      "fresh value retained",
			connected: true,
			st:        state(func(st *tag.State) { st.Retain = true }),
			want:      Decision{Action: Publish, Value: 25, Retain: true},
		},
		{
			name:      "no expiry never stale",
			connected: true,
			st: state(func(st *tag.State) {
				st.Expiry = 0
				st.Updated = now.Add(-24 * time.Hour)
			}),
			want: Decision{Action: Publish, Value: 25},
		},
		{
			name:      "expired ignore",
			connected: true,
			st:        state(stale),
			want:      Decision{Action: Skip},
		},
		{
			name:      "expired publish null",
			connected: true,
			st: state(func(st *tag.State) {
				stale(st)
				st.NoreadAction = tag.NoreadPublishNull
			}),
			want: Decision{Action: ClearRetained},
		},
		{
			name:      "expired substitute",
			connected: true,
			st: state(func(st *tag.State) {
				stale(st)
				st.NoreadAction = tag.NoreadPublishSubstitute
				st.NoreadValue = -99
				st.Retain = true
			}),
			want: Decision{Action: PublishNoread, Value: -99, Retain: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.connected, tt.st, now); got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTeardown(t *testing.T) {
	st := state(func(st *tag.State) {
		st.NoreadValue = -99
		st.Retain = true
	})

	tests := []struct {
		name          string
		connected     bool
		noread, clear bool
		st            tag.State
		want          []Decision
	}{
		{name: "nothing", connected: true, st: st},
		{name: "offline", noread: true, clear: true, st: st},
		{
			name: "noread only", connected: true, noread: true, st: st,
			want: []Decision{{Action: PublishNoread, Value: -99, Retain: true}},
		},
		{
			name: "clear only", connected: true, clear: true, st: st,
			want: []Decision{{Action: ClearRetained}},
		},
		{
			name: "both", connected: true, noread: true, clear: true, st: st,
			want: []Decision{{Action: PublishNoread, Value: -99, Retain: true}, {Action: ClearRetained}},
		},
		{
			name: "no topic", connected: true, noread: true, clear: true,
			st: state(func(st *tag.State) { st.Topic = "" }),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Teardown(tt.connected, tt.st, tt.noread, tt.clear)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Teardown() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestActionString(t *testing.T) {
	want := map[Action]string{Skip: "skip", Publish: "publish", PublishNoread: "publish-noread", ClearRetained: "clear-retained"}
	for a, s := range want {
		if a.String() != s {
			t.Errorf("%d.String() = %q, want %q", a, a.String(), s)
		}
	}
}
