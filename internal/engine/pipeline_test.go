package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/pkg/core"
	"github.com/starlogs/starlogs/pkg/streaming"
)

const paladin = "ANVL_Paladin_6763231335005"

var base = time.Date(2025, 1, 15, 20, 0, 0, 0, time.UTC)

func stamp(ms int) string {
	return "<" + base.Add(time.Duration(ms)*time.Millisecond).Format("2006-01-02T15:04:05.000Z") + ">"
}

func destroyLine(ms int, vehicle string, from, to int) string {
	return fmt.Sprintf("%s [Notice] <Vehicle Destruction> CVehicle::OnAdvanceDestroyLevel: Vehicle '%s' [6763231335005] in zone 'OOC_Stanton_2b_Daymar' [pos x: 1.0, y: 2.0, z: 3.0 vel x: 0.0, y: 0.0, z: 0.0] driven by 'unknown' [0] advanced from destroy level %d to %d caused by 'PlayerTwo' [202] with 'Combat' [Team_VehicleFeatures][Vehicle]",
		stamp(ms), vehicle, from, to)
}

func crewLine(ms int, zone, victim string) string {
	return fmt.Sprintf("%s [Notice] <Actor Death> CActor::Kill: '%s' [201990622123] in zone '%s' killed by 'PU_Pilots-Human-Criminal-Pilot_Light_123' [300] using 'unknown' [Class unknown] with damage type 'VehicleDestruction' from direction x: 0, y: 0, z: 0 [Team_ActorTech][Actor]",
		stamp(ms), victim, zone)
}

func pveLine(ms int) string {
	return fmt.Sprintf("%s [Notice] <Actor Death> CActor::Kill: 'PU_Pilots-Human-Criminal-Pilot_Light_123' [200146297631] in zone 'ORIG_890Jump_6166775878721' killed by 'PlayerOne' [201990622123] using 'KLWE_LaserRepeater_S3_2001' [Class KLWE_LaserRepeater_S3] with damage type 'Combat' [Team_ActorTech][Actor]",
		stamp(ms))
}

func noiseLine(ms int) string {
	return stamp(ms) + " [Notice] <Context Establisher Done> establisher=\"CReplicationModel\" [Team_Network][Network]"
}

// paladinLog is the soft death, crew death, full destruction sequence.
var paladinLog = []string{
	"Logical CPU Count: 24",
	destroyLine(1000, paladin, 0, 1),
	crewLine(1050, paladin, "PlayerOne"),
	destroyLine(1400, paladin, 1, 2),
	noiseLine(1500),
	pveLine(1600),
	noiseLine(1700),
}

type recorder struct {
	msgs []streaming.Message
}

func (r *recorder) publish(m streaming.Message) { r.msgs = append(r.msgs, m) }

func (r *recorder) ofType(typ string) []streaming.Message {
	var out []streaming.Message
	for _, m := range r.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) finals() []core.Patch {
	var out []core.Patch
	for _, m := range r.ofType(streaming.TypePatch) {
		if m.Patch.Final {
			out = append(out, *m.Patch)
		}
	}
	return out
}

func newTestPipeline() (*Pipeline, *recorder) {
	rec := &recorder{}
	return NewPipeline(config.EngineConfig{}, nil, rec.publish), rec
}

func feed(p *Pipeline, lines []string) {
	for i, l := range lines {
		p.Process(core.RawLine{Text: l, Seq: uint64(i + 1)})
	}
}

func TestPipeline_PaladinExample(t *testing.T) {
	p, rec := newTestPipeline()
	feed(p, paladinLog)
	p.Flush()

	fin := rec.finals()
	require.Len(t, fin, 2)
	assert.Equal(t, uint64(2), fin[0].Seq)
	assert.Equal(t, []string{"PlayerOne"}, fin[0].Crew)
	assert.Equal(t, uint64(4), fin[1].Seq)
	assert.Empty(t, fin[1].Crew)

	c := p.Aggregator().Snapshot()
	assert.Equal(t, 1, c.SoftDeaths)
	assert.Equal(t, 1, c.Destructions)
	assert.Equal(t, 1, c.Deaths)
	assert.Equal(t, 1, c.PveKills)
	assert.Equal(t, 1, c.CrewAttached)
	assert.Equal(t, 7, c.TotalLines)
	assert.Equal(t, 2, c.UnrecognizedLines)
	assert.Equal(t, "24", c.SystemInfo["cpu_cores"])
	assert.Equal(t, 2, c.DestructionsByDamage[core.DamageCombat])

	recent := p.Aggregator().RecentEvents(0)
	require.Len(t, recent, 5)
	byKind := map[core.Kind]core.DomainEvent{}
	for _, ev := range recent {
		byKind[ev.Kind] = ev
	}
	assert.Equal(t, []string{"PlayerOne"}, byKind[core.KindVehicleSoftDeath].Crew)
	assert.Empty(t, byKind[core.KindVehicleDestruction].Crew)
	assert.Equal(t, paladin, byKind[core.KindDeath].CrewOf)
}

func TestPipeline_NoCrewInWindow(t *testing.T) {
	p, rec := newTestPipeline()
	feed(p, []string{
		crewLine(1799, paladin, "TooEarly"),
		destroyLine(2000, paladin, 0, 2),
		crewLine(2201, paladin, "TooLate"),
	})
	p.Flush()

	fin := rec.finals()
	require.Len(t, fin, 1)
	assert.Empty(t, fin[0].Crew)
	assert.Equal(t, 0, p.Aggregator().Snapshot().CrewAttached)
}

func TestPipeline_CrewBeforeDestructionIsPatched(t *testing.T) {
	p, rec := newTestPipeline()
	feed(p, []string{
		crewLine(1000, paladin, "PlayerOne"),
		destroyLine(1100, paladin, 0, 2),
	})

	patches := rec.ofType(streaming.TypePatch)
	require.Len(t, patches, 1)
	assert.Equal(t, uint64(1), patches[0].Patch.Seq)
	assert.Equal(t, paladin, patches[0].Patch.CrewOf)

	for _, ev := range p.Aggregator().RecentEvents(0) {
		if ev.Kind == core.KindDeath {
			assert.Equal(t, paladin, ev.CrewOf, "recent event is patched in place")
		}
	}
	assert.Equal(t, 1, p.Aggregator().Snapshot().CrewAttached)
}

func TestPipeline_UnrecognizedLines(t *testing.T) {
	p, rec := newTestPipeline()
	feed(p, []string{"", "garbage", noiseLine(0)})

	assert.Empty(t, rec.ofType(streaming.TypeEvent))
	lines := rec.ofType(streaming.TypeLogLine)
	require.Len(t, lines, 3)
	for _, m := range lines {
		assert.False(t, m.LogLine.HasEvent)
	}
	assert.Empty(t, p.Aggregator().RecentEvents(0))

	c := p.Aggregator().Snapshot()
	assert.Equal(t, 3, c.TotalLines)
	assert.Equal(t, 3, c.UnrecognizedLines)
	assert.Equal(t, 0, c.Events)
}

func TestPipeline_RepeatedDestroyLevelIgnored(t *testing.T) {
	p, rec := newTestPipeline()
	line := destroyLine(1000, paladin, 0, 2)
	feed(p, []string{line, line, destroyLine(1100, paladin, 2, 1)})

	lines := rec.ofType(streaming.TypeLogLine)
	require.Len(t, lines, 3)
	assert.True(t, lines[0].LogLine.HasEvent)
	assert.False(t, lines[1].LogLine.HasEvent)
	assert.False(t, lines[2].LogLine.HasEvent)

	c := p.Aggregator().Snapshot()
	assert.Equal(t, 1, c.Destructions)
	assert.Equal(t, 0, c.SoftDeaths)
	assert.Equal(t, 0, c.UnrecognizedLines)
	assert.Equal(t, 1, p.TrackedVehicles())
}

func TestPipeline_TimestampsNeverGoBackwards(t *testing.T) {
	p, rec := newTestPipeline()
	feed(p, []string{pveLine(5000), pveLine(1000), "no timestamp " + pveLine(0)[len(stamp(0)):]})

	evs := rec.ofType(streaming.TypeEvent)
	require.Len(t, evs, 3)
	want := base.Add(5 * time.Second)
	for _, m := range evs {
		assert.Equal(t, want, m.Event.Timestamp)
	}
}

func TestPipeline_SessionBoundaryResets(t *testing.T) {
	p, rec := newTestPipeline()
	feed(p, []string{destroyLine(1000, paladin, 0, 2), pveLine(1050)})

	p.Process(core.RawLine{Seq: 3, Marker: core.MarkerSessionBoundary})

	fin := rec.finals()
	require.Len(t, fin, 1, "open entries are finalized before the reset")
	resets := rec.ofType(streaming.TypeSessionReset)
	require.Len(t, resets, 1)
	assert.Equal(t, "truncated", resets[0].Reset.Reason)

	c := p.Aggregator().Snapshot()
	assert.Zero(t, c.TotalLines)
	assert.Zero(t, c.Events)
	assert.Zero(t, p.TrackedVehicles())
	assert.Empty(t, p.RawLines(0))

	// the same vehicle can be destroyed again in the new session
	feed(p, []string{destroyLine(0, paladin, 0, 2)})
	assert.Equal(t, 1, p.Aggregator().Snapshot().Destructions)
}

func TestPipeline_ReplayComplete(t *testing.T) {
	p, rec := newTestPipeline()
	feed(p, []string{"a", "b"})
	p.Process(core.RawLine{Seq: 3, Marker: core.MarkerReplayComplete})

	msgs := rec.ofType(streaming.TypeReplayComplete)
	require.Len(t, msgs, 1)
	assert.Equal(t, 2, msgs[0].ReplayComplete.Lines)
	assert.Equal(t, 2, p.Aggregator().Snapshot().TotalLines, "markers are not lines")
}

func TestPipeline_ReplayIsIdempotent(t *testing.T) {
	p, rec := newTestPipeline()
	feed(p, paladinLog)
	p.Flush()
	first := p.Aggregator().Snapshot()
	firstRecent := p.Aggregator().RecentEvents(0)
	firstCount := len(rec.msgs)

	p.Reset("reset")
	rec.msgs = nil
	feed(p, paladinLog)
	p.Flush()

	assert.Equal(t, first, p.Aggregator().Snapshot())
	assert.Equal(t, firstRecent, p.Aggregator().RecentEvents(0))
	// the second run has no leading reset message but is otherwise identical
	assert.Equal(t, firstCount, len(rec.msgs))
}

func TestPipeline_RawLinesHistory(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline(config.EngineConfig{RawLineHistory: 2}, nil, rec.publish)
	feed(p, []string{"one", pveLine(0), "three"})

	lines := p.RawLines(0)
	require.Len(t, lines, 2)
	assert.Equal(t, "three", lines[1].Line)
	assert.Equal(t, uint64(2), lines[0].Seq)
	assert.True(t, lines[0].HasEvent)
}

func TestPipeline_ConfigAppliesOnReset(t *testing.T) {
	p, _ := newTestPipeline()
	assert.Equal(t, 200*time.Millisecond, p.Window())

	p.SetConfig(config.EngineConfig{CorrelationWindow: time.Second})
	assert.Equal(t, 200*time.Millisecond, p.Window())

	p.Reset("reset")
	assert.Equal(t, time.Second, p.Window())
}
