package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlogs/starlogs/pkg/core"
)

var t0 = time.Date(2025, 1, 15, 20, 0, 0, 0, time.UTC)

func destroy(id string, to int, at time.Duration) core.DomainEvent {
	kind := core.KindVehicleSoftDeath
	if to == core.LevelDestroyed {
		kind = core.KindVehicleDestruction
	}
	return core.DomainEvent{
		Kind:       kind,
		VehicleID:  id,
		ToLevel:    to,
		Timestamp:  t0.Add(at),
		Killer:     "PlayerTwo",
		DamageType: core.DamageCombat,
		Ship:       "Paladin",
	}
}

func TestTracker_LevelsOnlyIncrease(t *testing.T) {
	tests := []struct {
		name   string
		levels []int
		want   []bool
		final  int
	}{
		{"soft then full", []int{1, 2}, []bool{true, true}, 2},
		{"direct destroy", []int{2}, []bool{true}, 2},
		{"duplicate soft", []int{1, 1}, []bool{true, false}, 1},
		{"backward", []int{2, 1}, []bool{true, false}, 2},
		{"duplicate full", []int{1, 2, 2, 1}, []bool{true, true, false, false}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New()
			for i, lvl := range tt.levels {
				_, ok := tr.Apply(destroy("ANVL_Paladin_6763231335005", lvl, time.Duration(i)*time.Second))
				assert.Equal(t, tt.want[i], ok, "transition %d", i)
			}
			rec, ok := tr.Get("ANVL_Paladin_6763231335005")
			require.True(t, ok)
			assert.Equal(t, tt.final, rec.Level)
		})
	}
}

func TestTracker_FromLevelReflectsRecord(t *testing.T) {
	tr := New()

	ev, ok := tr.Apply(destroy("V_1234567", 1, 0))
	require.True(t, ok)
	assert.Equal(t, 0, ev.FromLevel)

	ev, ok = tr.Apply(destroy("V_1234567", 2, time.Second))
	require.True(t, ok)
	assert.Equal(t, 1, ev.FromLevel)
	assert.Equal(t, 2, ev.ToLevel)
}

func TestTracker_RemembersAttacker(t *testing.T) {
	tr := New()

	_, ok := tr.Apply(destroy("V_1234567", 1, 0))
	require.True(t, ok)

	second := destroy("V_1234567", 2, time.Second)
	second.Killer = "unknown"
	second.DamageType = core.DamageUnknown
	second.Ship = ""

	ev, ok := tr.Apply(second)
	require.True(t, ok)
	assert.Equal(t, "PlayerTwo", ev.Killer)
	assert.Equal(t, core.DamageCombat, ev.DamageType)
	assert.Equal(t, "Paladin", ev.Ship)

	rec, _ := tr.Get("V_1234567")
	assert.Equal(t, "PlayerTwo", rec.LastAttacker)
	assert.Equal(t, t0, rec.Created)
	assert.Equal(t, t0.Add(time.Second), rec.Updated)
}

func TestTracker_IgnoresOtherKinds(t *testing.T) {
	tr := New()

	ev := core.DomainEvent{Kind: core.KindPveKill, VehicleID: "V_1"}
	out, ok := tr.Apply(ev)
	assert.False(t, ok)
	assert.Equal(t, ev, out)
	assert.Equal(t, 0, tr.Len())

	_, ok = tr.Apply(core.DomainEvent{Kind: core.KindVehicleDestruction, ToLevel: 2})
	assert.False(t, ok)
}

func TestTracker_Reset(t *testing.T) {
	tr := New()
	tr.Apply(destroy("A_1234567", 2, 0))
	tr.Apply(destroy("B_1234567", 1, 0))
	assert.Equal(t, 2, tr.Len())

	tr.Reset()
	assert.Equal(t, 0, tr.Len())

	_, ok := tr.Apply(destroy("A_1234567", 2, time.Second))
	assert.True(t, ok, "level history must be cleared by reset")
}
