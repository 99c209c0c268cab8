// Package scheduler groups tags into update cycles and decides which cycles
// are due on each main loop tick.
//
// It is a level-triggered poll over a handful of cycles, not a priority
// queue. Only the main loop touches a Scheduler, so it is not locked.
package scheduler

import (
	"fmt"
	"time"

	"github.com/helioz2000/1820bridge/internal/config"
	"github.com/helioz2000/1820bridge/internal/tag"
)

// Cycle is a group of tags published at the same interval.
type Cycle struct {
	ID       int
	Interval time.Duration
	Tags     []int // channels, ascending

	next time.Time
}

// Next returns the time the cycle is due next.
func (c *Cycle) Next() time.Time {
	return c.next
}

// Scheduler owns the cycles in configuration order.
type Scheduler struct {
	cycles []*Cycle
}

// Definition is one configured cycle.
type Definition struct {
	ID       int
	Interval time.Duration
}

// Definitions converts the updatecycles section. Config must be validated.
func Definitions(cfg []config.UpdateCycle) []Definition {
	defs := make([]Definition, 0, len(cfg))
	for _, uc := range cfg {
		defs = append(defs, Definition{
			ID:       *uc.ID,
			Interval: time.Duration(*uc.Interval) * time.Second,
		})
	}
	return defs
}

// New groups the registry's tags by cycle id. Every cycle is first due one
// interval after start. Tags that reference no known cycle are returned as
// unassigned; subscribe tags are never assigned.
func New(defs []Definition, reg *tag.Registry, start time.Time) (*Scheduler, []int, error) {
	s := &Scheduler{cycles: make([]*Cycle, 0, len(defs))}
	byID := make(map[int]*Cycle, len(defs))

	for _, d := range defs {
		if d.Interval <= 0 {
			return nil, nil, fmt.Errorf("update cycle %d: interval %v must be positive", d.ID, d.Interval)
		}
		if _, ok := byID[d.ID]; ok {
			return nil, nil, fmt.Errorf("update cycle %d defined twice", d.ID)
		}
		c := &Cycle{ID: d.ID, Interval: d.Interval, next: start.Add(d.Interval)}
		byID[d.ID] = c
		s.cycles = append(s.cycles, c)
	}

	var unassigned []int
	for _, t := range reg.Tags() {
		if t.Subscribe {
			continue
		}
		c, ok := byID[t.CycleID]
		if !t.HasCycle || !ok {
			unassigned = append(unassigned, t.Channel)
			continue
		}
		c.Tags = append(c.Tags, t.Channel)
	}

	return s, unassigned, nil
}

// DueCycles returns every non-empty cycle whose next-due time is at or
// before now, in configuration order, and moves its next-due time to
// now + interval.
func (s *Scheduler) DueCycles(now time.Time) []*Cycle {
	var due []*Cycle
	for _, c := range s.cycles {
		if len(c.Tags) == 0 {
			continue
		}
		if now.Before(c.next) {
			continue
		}
		c.next = now.Add(c.Interval)
		due = append(due, c)
	}
	return due
}

// Cycles returns all cycles in configuration order.
func (s *Scheduler) Cycles() []*Cycle {
	return s.cycles
}
