package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starlogs/starlogs/pkg/core"
)

func TestIsNPC(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"PU_Pilots-Human-Criminal-Pilot_Light_123", true},
		{"AI_CRIM_Gunner_01", true},
		{"Kopion_NPC_Hostile_7", true},
		{"Security-Guard_4", true},
		{"Pirate-Boss", true},
		{"PlayerOne", false},
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsNPC(tt.name), tt.name)
	}
}

func TestShipName(t *testing.T) {
	tests := []struct {
		zone string
		want string
	}{
		{"ORIG_890Jump_6166775878721", "890 Jump"},
		{"AEGS_Gladius_7001234567890", "Gladius"},
		{"DRAK_Cutlass_Black_1234", "Cutlass"},
		{"RSI_Constellation_42", "Constellation"},
		{"MyCustomShip_1234567890123", "My Custom Ship"},
		{"OOC_Stanton_1_Hurston", "Hurston"},
		{"OOC_Stanton_2b_Daymar", "Stanton"},
		{"orig_890Jump_6166775878721", "890 Jump"},
		{"OOC_Stanton_1_hurston", "hurston"},
		{"OOC_12345", ""},
		{"nozone", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ShipName(tt.zone), tt.zone)
	}
}

func TestVehicleKey(t *testing.T) {
	assert.Equal(t, "6166775878721", VehicleKey("ORIG_890Jump_6166775878721"))
	assert.Equal(t, "6166775878721", VehicleKey("X_6166775878721"))
	assert.Equal(t, "ORIG_890Jump_42", VehicleKey("ORIG_890Jump_42"))
	assert.Equal(t, "ORIG_890Jump", VehicleKey("ORIG_890Jump"))
}

func TestWeaponClassOf(t *testing.T) {
	tests := []struct {
		weapon, class string
		wantClass     core.WeaponClass
		wantSize      int
	}{
		{"KLWE_LaserRepeater_S3_2001", "KLWE_LaserRepeater_S3", core.WeaponEnergy, 3},
		{"BEHR_BallisticGatling_S4", "", core.WeaponBallistic, 4},
		{"MISL_S02_IR_TALN_Dominator_5", "", core.WeaponMissile, 2},
		{"TALN_Marksman_S3", "", core.WeaponMissile, 3},
		{"MXOX_NeutronRepeater_S10_1", "", core.WeaponEnergy, 10},
		{"APAR_MassDriver_S2", "", core.WeaponBallistic, 2},
		{"ksar_pistol_energy_01", "", core.WeaponEnergy, 0},
		{"unknown", "unknown", core.WeaponUnknown, 0},
		{"XXXX_Thing_S5", "", core.WeaponUnknown, 5},
	}

	for _, tt := range tests {
		class, size := WeaponClassOf(tt.weapon, tt.class)
		assert.Equal(t, tt.wantClass, class, tt.weapon)
		assert.Equal(t, tt.wantSize, size, tt.weapon)
	}
}

func TestDirectionLabel(t *testing.T) {
	tests := []struct {
		v    core.Vector3
		want string
	}{
		{core.Vector3{X: 1}, "from Right"},
		{core.Vector3{X: -1}, "from Left"},
		{core.Vector3{Y: 0.8, X: 0.2}, "from Front"},
		{core.Vector3{Y: -0.5}, "from Behind"},
		{core.Vector3{Z: 0.9, Y: 0.1}, "from Above"},
		{core.Vector3{Z: -0.9}, "from Below"},
		{core.Vector3{X: 0.001, Y: -0.005}, ""},
		{core.Vector3{}, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DirectionLabel(tt.v), "%+v", tt.v)
	}
}
