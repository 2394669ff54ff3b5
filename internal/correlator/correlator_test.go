package correlator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlogs/starlogs/pkg/core"
)

const paladin = "ANVL_Paladin_6763231335005"

var t0 = time.Date(2025, 1, 15, 20, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func destruction(seq uint64, ms int, id string, level int) core.DomainEvent {
	kind := core.KindVehicleSoftDeath
	if level == core.LevelDestroyed {
		kind = core.KindVehicleDestruction
	}
	return core.DomainEvent{Seq: seq, Kind: kind, Timestamp: at(ms), VehicleID: id, ToLevel: level}
}

func crewDeath(seq uint64, ms int, zone, victim string) core.DomainEvent {
	return core.DomainEvent{Seq: seq, Kind: core.KindDeath, Timestamp: at(ms), Zone: zone, Victim: victim, Killer: "PU_Pilot"}
}

func events(out []Output) []core.DomainEvent {
	var evs []core.DomainEvent
	for _, o := range out {
		if o.Event != nil {
			evs = append(evs, *o.Event)
		}
	}
	return evs
}

func patches(out []Output) []core.Patch {
	var ps []core.Patch
	for _, o := range out {
		if o.Patch != nil {
			ps = append(ps, *o.Patch)
		}
	}
	return ps
}

func finals(out []Output) []core.Patch {
	var ps []core.Patch
	for _, p := range patches(out) {
		if p.Final {
			ps = append(ps, p)
		}
	}
	return ps
}

func run(c *Correlator, evs ...core.DomainEvent) []Output {
	var out []Output
	for _, ev := range evs {
		out = append(out, c.Process(ev)...)
	}
	return out
}

func TestCorrelator_SoftThenFullDestruction(t *testing.T) {
	c := New(DefaultWindow)

	out := run(c,
		destruction(1, 1000, paladin, 1),
		crewDeath(2, 1050, paladin, "PlayerOne"),
		destruction(3, 1400, paladin, 2),
	)
	out = append(out, c.Flush()...)

	evs := events(out)
	require.Len(t, evs, 3)
	assert.Empty(t, evs[0].Crew)
	assert.Equal(t, paladin, evs[1].CrewOf)
	assert.Empty(t, evs[2].Crew)

	fin := finals(out)
	require.Len(t, fin, 2)
	assert.Equal(t, uint64(1), fin[0].Seq)
	assert.Equal(t, []string{"PlayerOne"}, fin[0].Crew)
	assert.Equal(t, uint64(3), fin[1].Seq)
	assert.Empty(t, fin[1].Crew)
}

func TestCorrelator_NoCrewInWindow(t *testing.T) {
	c := New(DefaultWindow)

	out := run(c,
		crewDeath(1, 1799, paladin, "TooEarly"),
		destruction(2, 2000, paladin, 2),
		crewDeath(3, 2201, paladin, "TooLate"),
	)

	fin := finals(out)
	require.Len(t, fin, 1)
	assert.Equal(t, uint64(2), fin[0].Seq)
	assert.Empty(t, fin[0].Crew)

	for _, ev := range events(out) {
		assert.Empty(t, ev.CrewOf)
	}
}

func TestCorrelator_WindowIsInclusive(t *testing.T) {
	c := New(DefaultWindow)

	out := run(c,
		crewDeath(1, 1800, paladin, "Before"),
		destruction(2, 2000, paladin, 2),
		crewDeath(3, 2200, paladin, "After"),
	)
	out = append(out, c.Flush()...)

	evs := events(out)
	require.Len(t, evs, 3)
	assert.Equal(t, []string{"Before"}, evs[1].Crew, "back-scanned crew is on the delivered event")
	assert.Equal(t, paladin, evs[2].CrewOf)

	fin := finals(out)
	require.Len(t, fin, 1)
	assert.Equal(t, []string{"Before", "After"}, fin[0].Crew)
}

func TestCorrelator_CrewBeforeDestructionIsPatched(t *testing.T) {
	c := New(DefaultWindow)

	out := c.Process(crewDeath(1, 1000, paladin, "PlayerOne"))
	require.Len(t, out, 1)
	assert.Empty(t, out[0].Event.CrewOf)
	assert.Equal(t, 1, c.Pending())

	out = c.Process(destruction(2, 1100, paladin, 2))
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Event)
	assert.Equal(t, []string{"PlayerOne"}, out[0].Event.Crew)
	require.NotNil(t, out[1].Patch)
	assert.Equal(t, core.Patch{Seq: 1, Kind: core.KindDeath, VehicleID: paladin, CrewOf: paladin}, *out[1].Patch)
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_CrewAttachedOnce(t *testing.T) {
	c := New(DefaultWindow)

	out := run(c,
		crewDeath(1, 1000, paladin, "PlayerOne"),
		destruction(2, 1050, paladin, 1),
		destruction(3, 1100, paladin, 2),
	)
	out = append(out, c.Flush()...)

	fin := finals(out)
	require.Len(t, fin, 2)
	assert.Equal(t, []string{"PlayerOne"}, fin[0].Crew)
	assert.Empty(t, fin[1].Crew)
}

func TestCorrelator_NearestEntryWins(t *testing.T) {
	tests := []struct {
		name    string
		crewAt  int
		wantSeq uint64
	}{
		{"closer to soft death", 1040, 1},
		{"closer to destruction", 1060, 2},
		{"equal distance picks latest", 1050, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(DefaultWindow)
			run(c,
				destruction(1, 1000, paladin, 1),
				destruction(2, 1100, paladin, 2),
			)
			// crew deaths arrive in timestamp order, so place it after
			// both entries with the clock held at the latest timestamp
			out := c.Process(crewDeath(3, tt.crewAt, paladin, "PlayerOne"))
			ps := patches(out)
			require.Len(t, ps, 1)
			assert.Equal(t, tt.wantSeq, ps[0].Seq)
		})
	}
}

func TestCorrelator_DifferentVehiclesDoNotMix(t *testing.T) {
	c := New(DefaultWindow)

	out := run(c,
		destruction(1, 1000, "AEGS_Gladius_1111111111", 2),
		crewDeath(2, 1010, paladin, "PlayerOne"),
	)
	out = append(out, c.Flush()...)

	fin := finals(out)
	require.Len(t, fin, 1)
	assert.Empty(t, fin[0].Crew)
	assert.Empty(t, events(out)[1].CrewOf)
}

func TestCorrelator_MatchesByEntityID(t *testing.T) {
	c := New(DefaultWindow)

	// the crew death zone carries only the numeric entity id
	out := run(c,
		destruction(1, 1000, paladin, 2),
		crewDeath(2, 1010, "ANVL_Paladin_Cockpit_6763231335005", "PlayerOne"),
	)

	assert.Equal(t, paladin, events(out)[1].CrewOf)
}

func TestCorrelator_OtherEventsPassThrough(t *testing.T) {
	c := New(DefaultWindow)

	ev := core.DomainEvent{Seq: 1, Kind: core.KindPveKill, Timestamp: at(0), Killer: "PlayerOne"}
	out := c.Process(ev)
	require.Len(t, out, 1)
	assert.Equal(t, ev, *out[0].Event)

	// NPC kills are not crew deaths even inside a vehicle zone
	run(c, destruction(2, 10, paladin, 2))
	out = c.Process(core.DomainEvent{Seq: 3, Kind: core.KindPveKill, Timestamp: at(20), Zone: paladin, Victim: "AI_1"})
	require.Len(t, out, 1)
	assert.Empty(t, out[0].Event.CrewOf)
}

func TestCorrelator_LazyEviction(t *testing.T) {
	c := New(DefaultWindow)

	c.Process(destruction(1, 1000, paladin, 2))
	assert.Equal(t, 1, c.Open())

	out := c.Process(core.DomainEvent{Seq: 2, Kind: core.KindDisconnect, Timestamp: at(1200)})
	assert.Empty(t, finals(out))
	assert.Equal(t, 1, c.Open())

	out = c.Process(core.DomainEvent{Seq: 3, Kind: core.KindDisconnect, Timestamp: at(1201)})
	fin := finals(out)
	require.Len(t, fin, 1)
	assert.Equal(t, uint64(1), fin[0].Seq)
	assert.Equal(t, 0, c.Open())
	require.NotNil(t, out[len(out)-1].Event, "finalization precedes the triggering event")
}

func TestCorrelator_Advance(t *testing.T) {
	c := New(DefaultWindow)
	c.Process(destruction(1, 1000, paladin, 2))

	assert.Empty(t, c.Advance(at(900)), "going backwards is a no-op")
	assert.Empty(t, c.Advance(at(1150)))

	out := c.Advance(at(1300))
	fin := finals(out)
	require.Len(t, fin, 1)
	assert.Equal(t, uint64(1), fin[0].Seq)
	assert.Empty(t, events(out))
}

func TestCorrelator_CustomWindow(t *testing.T) {
	c := New(time.Second)
	assert.Equal(t, time.Second, c.Window())

	out := run(c,
		destruction(1, 0, paladin, 2),
		crewDeath(2, 900, paladin, "PlayerOne"),
	)
	assert.Equal(t, paladin, events(out)[1].CrewOf)

	assert.Equal(t, DefaultWindow, New(0).Window())
}

func TestCorrelator_Reset(t *testing.T) {
	c := New(DefaultWindow)
	run(c,
		destruction(1, 1000, paladin, 2),
		crewDeath(2, 5000, "other", "PlayerOne"),
	)
	c.Reset()

	assert.Equal(t, 0, c.Open())
	assert.Equal(t, 0, c.Pending())
	assert.Empty(t, c.Flush())

	// the clock is reset too, so an earlier timestamp is not treated as stale
	out := run(c, destruction(3, 0, paladin, 2), crewDeath(4, 100, paladin, "PlayerTwo"))
	assert.Equal(t, paladin, events(out)[1].CrewOf)
}
