// Package correlator attaches crew deaths to the vehicle losses they
// belong to.
//
// A destruction opens an entry that stays open for one correlation window
// measured from its own timestamp. Crew deaths for the same vehicle within
// the window (inclusive) are attached to it, whichever of the two lines
// came first. Entries and unmatched crew deaths are evicted lazily: the
// timestamp of every processed event advances the clock, and anything
// older than the window is finalized. There is no background timer, so
// output is a pure function of the input sequence.
package correlator

import (
	"slices"
	"time"

	"github.com/starlogs/starlogs/internal/parser"
	"github.com/starlogs/starlogs/pkg/core"
)

// DefaultWindow is the correlation window used when none is configured.
const DefaultWindow = 200 * time.Millisecond

// Output is one item emitted by the correlator, either a new event or a
// patch to an earlier one.
type Output struct {
	Event *core.DomainEvent
	Patch *core.Patch
}

type entry struct {
	event core.DomainEvent
	key   string
	crew  []string
}

type pendingCrew struct {
	event core.DomainEvent
	key   string
}

// Correlator is not safe for concurrent use; it is driven by the single
// pipeline worker.
type Correlator struct {
	window  time.Duration
	now     time.Time
	open    []*entry
	pending []pendingCrew
}

// New creates a correlator. A non-positive window selects DefaultWindow.
func New(window time.Duration) *Correlator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Correlator{window: window}
}

// Window returns the configured correlation window.
func (c *Correlator) Window() time.Duration { return c.window }

// Open returns the number of destruction entries awaiting finalization.
func (c *Correlator) Open() int { return len(c.open) }

// Pending returns the number of buffered unmatched crew deaths.
func (c *Correlator) Pending() int { return len(c.pending) }

// Process consumes the next event in (timestamp, seq) order and returns
// what must be delivered downstream, in delivery order.
func (c *Correlator) Process(ev core.DomainEvent) []Output {
	if ev.Timestamp.After(c.now) {
		c.now = ev.Timestamp
	}

	out := c.evict()

	switch {
	case ev.Kind.IsDestruction():
		out = c.openEntry(ev, out)
	case ev.Kind.IsCrewDeath():
		out = c.crewDeath(ev, out)
	default:
		out = append(out, eventOutput(ev))
	}
	return out
}

// Advance moves the clock to ts without an event, finalizing whatever
// expired. Lines that carry a timestamp but no event use it.
func (c *Correlator) Advance(ts time.Time) []Output {
	if !ts.After(c.now) {
		return nil
	}
	c.now = ts
	return c.evict()
}

// Flush finalizes every open entry and drops buffered crew deaths.
func (c *Correlator) Flush() []Output {
	var out []Output
	for _, e := range c.open {
		out = append(out, finalize(e))
	}
	c.open = nil
	c.pending = nil
	return out
}

// Reset drops all state without emitting anything.
func (c *Correlator) Reset() {
	c.open = nil
	c.pending = nil
	c.now = time.Time{}
}

func (c *Correlator) expired(ts time.Time) bool {
	return c.now.Sub(ts) > c.window
}

func (c *Correlator) evict() []Output {
	var out []Output
	kept := c.open[:0]
	for _, e := range c.open {
		if c.expired(e.event.Timestamp) {
			out = append(out, finalize(e))
			continue
		}
		kept = append(kept, e)
	}
	clear(c.open[len(kept):])
	c.open = kept

	c.pending = slices.DeleteFunc(c.pending, func(p pendingCrew) bool {
		return c.expired(p.event.Timestamp)
	})
	return out
}

func (c *Correlator) openEntry(ev core.DomainEvent, out []Output) []Output {
	e := &entry{event: ev, key: parser.VehicleKey(ev.VehicleID)}

	var patches []Output
	c.pending = slices.DeleteFunc(c.pending, func(p pendingCrew) bool {
		if p.key != e.key || absDuration(ev.Timestamp.Sub(p.event.Timestamp)) > c.window {
			return false
		}
		e.attach(p.event.Victim)
		patches = append(patches, Output{Patch: &core.Patch{
			Seq:       p.event.Seq,
			Kind:      p.event.Kind,
			VehicleID: ev.VehicleID,
			CrewOf:    ev.VehicleID,
		}})
		return true
	})

	c.open = append(c.open, e)
	ev.Crew = slices.Clone(e.crew)
	out = append(out, eventOutput(ev))
	return append(out, patches...)
}

func (c *Correlator) crewDeath(ev core.DomainEvent, out []Output) []Output {
	key := crewKey(ev)
	target := c.nearest(key, ev.Timestamp)
	if target == nil {
		c.pending = append(c.pending, pendingCrew{event: ev.Clone(), key: key})
		return append(out, eventOutput(ev))
	}

	target.attach(ev.Victim)
	ev.CrewOf = target.event.VehicleID
	out = append(out, eventOutput(ev))
	return append(out, Output{Patch: &core.Patch{
		Seq:       target.event.Seq,
		Kind:      target.event.Kind,
		VehicleID: target.event.VehicleID,
		Crew:      slices.Clone(target.crew),
	}})
}

// nearest picks the open entry for key closest in time to ts. On equal
// distance the most recently opened entry wins.
func (c *Correlator) nearest(key string, ts time.Time) *entry {
	if key == "" {
		return nil
	}
	var best *entry
	var bestDist time.Duration
	for _, e := range c.open {
		if e.key != key {
			continue
		}
		dist := absDuration(ts.Sub(e.event.Timestamp))
		if dist > c.window {
			continue
		}
		if best == nil || dist <= bestDist {
			best, bestDist = e, dist
		}
	}
	return best
}

func (e *entry) attach(name string) {
	if name == "" || slices.Contains(e.crew, name) {
		return
	}
	e.crew = append(e.crew, name)
}

func finalize(e *entry) Output {
	return Output{Patch: &core.Patch{
		Seq:       e.event.Seq,
		Kind:      e.event.Kind,
		VehicleID: e.event.VehicleID,
		Crew:      slices.Clone(e.crew),
		Final:     true,
	}}
}

// crewKey is the vehicle key a crew death can be matched on: its explicit
// vehicle id when set, otherwise the zone it died in.
func crewKey(ev core.DomainEvent) string {
	if ev.VehicleID != "" {
		return parser.VehicleKey(ev.VehicleID)
	}
	if ev.Zone == "" {
		return ""
	}
	return parser.VehicleKey(ev.Zone)
}

func eventOutput(ev core.DomainEvent) Output {
	return Output{Event: &ev}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
