// Package aggregator is the read model over the event stream: running
// counters and a bounded list of recent events.
package aggregator

import (
	"maps"
	"sync"

	"github.com/starlogs/starlogs/internal/queue"
	"github.com/starlogs/starlogs/pkg/core"
)

// DefaultRecent is the size of the recent event ring.
const DefaultRecent = 500

// Aggregator counts events by kind and keeps the most recent ones.
// It is safe for concurrent use; the pipeline writes while dashboards read.
type Aggregator struct {
	mu       sync.RWMutex
	counters core.Counters
	recent   *queue.Ring[core.DomainEvent]
}

// New creates an aggregator keeping up to recent events.
func New(recent int) *Aggregator {
	if recent <= 0 {
		recent = DefaultRecent
	}
	a := &Aggregator{recent: queue.NewRing[core.DomainEvent](recent)}
	a.counters = emptyCounters()
	return a
}

func emptyCounters() core.Counters {
	return core.Counters{
		DestructionsByDamage: make(map[core.DamageType]int),
		SystemInfo:           make(map[string]string),
	}
}

// CountLine records a raw line and whether any classifier rule accepted it.
func (a *Aggregator) CountLine(recognized bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.TotalLines++
	if !recognized {
		a.counters.UnrecognizedLines++
	}
}

// Add records a typed event. Unrecognized events are ignored.
func (a *Aggregator) Add(ev core.DomainEvent) {
	if ev.Kind == core.KindUnrecognized {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	c := &a.counters
	c.Events++
	if ev.CrewOf != "" {
		c.CrewAttached++
	}

	switch ev.Kind {
	case core.KindPveKill:
		c.PveKills++
	case core.KindPvpKill:
		c.PvpKills++
	case core.KindKill:
		c.NpcKills++
	case core.KindDeath:
		c.Deaths++
	case core.KindFpsPveKill:
		c.FpsPveKills++
	case core.KindFpsPvpKill:
		c.FpsPvpKills++
	case core.KindFpsDeath:
		c.FpsDeaths++
	case core.KindSuicide:
		c.Suicides++
	case core.KindCorpse:
		c.Corpses++
	case core.KindDisconnect:
		c.Disconnects++
	case core.KindActorStall:
		c.ActorStalls++
	case core.KindVehicleSoftDeath:
		c.SoftDeaths++
		c.DestructionsByDamage[damageKey(ev.DamageType)]++
	case core.KindVehicleDestruction:
		c.Destructions++
		c.DestructionsByDamage[damageKey(ev.DamageType)]++
	case core.KindSystemInfo:
		for _, kv := range ev.Info {
			if _, ok := c.SystemInfo[kv.Key]; !ok {
				c.SystemInfo[kv.Key] = kv.Value
			}
		}
	}

	a.recent.Push(ev.Clone())
}

// ApplyPatch updates the matching event in the recent ring, if it is still
// held, and counts newly affiliated crew deaths.
func (a *Aggregator) ApplyPatch(p core.Patch) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counters.Patches++
	if p.CrewOf != "" {
		a.counters.CrewAttached++
	}
	a.recent.Update(func(ev *core.DomainEvent) bool {
		if ev.Seq != p.Seq {
			return true
		}
		p.Apply(ev)
		return false
	})
}

// Snapshot returns a copy of the counters that shares nothing with the
// aggregator.
func (a *Aggregator) Snapshot() core.Counters {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := a.counters
	out.DestructionsByDamage = maps.Clone(a.counters.DestructionsByDamage)
	out.SystemInfo = maps.Clone(a.counters.SystemInfo)
	return out
}

// RecentEvents returns up to n events, newest first. n <= 0 returns every
// held event.
func (a *Aggregator) RecentEvents(n int) []core.DomainEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()

	evs := a.recent.Newest(n)
	for i := range evs {
		evs[i] = evs[i].Clone()
	}
	return evs
}

// Reset zeroes the counters and empties the ring.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters = emptyCounters()
	a.recent.Clear()
}

func damageKey(d core.DamageType) core.DamageType {
	if d == "" {
		return core.DamageUnknown
	}
	return d
}
