package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/starlogs/starlogs/pkg/core"
)

// npcIndicators are substrings that only appear in AI entity names.
var npcIndicators = []string{
	"PU_Pilots",
	"PU_",
	"AI_CRIM",
	"AI_",
	"_NPC_",
	"Criminal-Pilot",
	"Security-",
	"Pirate-",
	"-Pilot_Light_",
	"-Pilot_Medium_",
	"-Pilot_Heavy_",
}

// IsNPC reports whether an entity name belongs to an AI character.
func IsNPC(name string) bool {
	for _, ind := range npcIndicators {
		if strings.Contains(name, ind) {
			return true
		}
	}
	return false
}

var (
	shipPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:ORIG|AEGS|ANVL|CRUS|MISC|RSI|DRAK|ARGO|ESPR)_([A-Za-z0-9]+)_\d+`),
		regexp.MustCompile(`(?i)([A-Za-z][A-Za-z0-9]+)_\d{10,}`),
		regexp.MustCompile(`(?i)(Crusader|Hurston|microTech|ArcCorp|Pyro)`),
	}
	digitUpperRe = regexp.MustCompile(`(\d+)([A-Z])`)
	lowerUpperRe = regexp.MustCompile(`([a-z])([A-Z])`)
	vehicleKeyRe = regexp.MustCompile(`_(\d{6,})$`)
)

// ShipName extracts a readable ship or location name from a zone or
// vehicle id, e.g. ORIG_890Jump_6166775878721 becomes "890 Jump".
// It returns "" when nothing readable is found.
func ShipName(zone string) string {
	if zone == "" {
		return ""
	}
	for _, re := range shipPatterns {
		if m := re.FindStringSubmatch(zone); m != nil {
			name := digitUpperRe.ReplaceAllString(m[1], "$1 $2")
			return lowerUpperRe.ReplaceAllString(name, "$1 $2")
		}
	}

	parts := strings.Split(zone, "_")
	if len(parts) >= 2 && parts[1] != "" {
		if _, err := strconv.ParseUint(parts[1], 10, 64); err != nil {
			return parts[1]
		}
	}
	return ""
}

// VehicleKey returns the identity used to match crew deaths to a vehicle:
// the trailing numeric entity id when there is one, otherwise the input.
func VehicleKey(id string) string {
	if m := vehicleKeyRe.FindStringSubmatch(id); m != nil {
		return m[1]
	}
	return id
}

var (
	weaponSizeRe = regexp.MustCompile(`(?i)_S(\d{1,2})(?:_|$)`)

	missileKeywords   = []string{"missile", "misl", "torpedo", "rocket"}
	energyKeywords    = []string{"laser", "energy", "plasma", "distortion", "neutron", "tachyon"}
	ballisticKeywords = []string{"ballistic", "gatling", "cannon", "rifle", "smg", "shotgun", "pistol", "sniper", "lmg", "scattergun"}

	// manufacturer prefixes that only build one weapon family
	weaponMakers = map[string]core.WeaponClass{
		"KLWE": core.WeaponEnergy,
		"AMRS": core.WeaponEnergy,
		"MXOX": core.WeaponEnergy,
		"HRST": core.WeaponEnergy,
		"ESPR": core.WeaponEnergy,
		"PRAR": core.WeaponEnergy,
		"JOKR": core.WeaponEnergy,
		"GATS": core.WeaponBallistic,
		"APAR": core.WeaponBallistic,
		"BEHR": core.WeaponBallistic,
		"TALN": core.WeaponMissile,
		"FSKI": core.WeaponMissile,
	}
)

// WeaponClassOf classifies a weapon by name and class string. size is 0
// when the name carries no _S<n> suffix.
func WeaponClassOf(weapon, class string) (wc core.WeaponClass, size int) {
	if m := weaponSizeRe.FindStringSubmatch(weapon); m != nil {
		size, _ = strconv.Atoi(m[1])
	}

	lower := strings.ToLower(weapon + " " + class)
	for _, group := range []struct {
		class    core.WeaponClass
		keywords []string
	}{
		{core.WeaponMissile, missileKeywords},
		{core.WeaponEnergy, energyKeywords},
		{core.WeaponBallistic, ballisticKeywords},
	} {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.class, size
			}
		}
	}

	for _, name := range []string{weapon, class} {
		maker, _, found := strings.Cut(name, "_")
		if !found {
			continue
		}
		if wc, ok := weaponMakers[strings.ToUpper(maker)]; ok {
			return wc, size
		}
	}
	return core.WeaponUnknown, size
}

const directionEpsilon = 0.01

// DirectionLabel names the dominant axis of an incoming direction vector.
// It returns "" for a (near) zero vector.
func DirectionLabel(v core.Vector3) string {
	ax, ay, az := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	switch {
	case math.Max(ax, math.Max(ay, az)) < directionEpsilon:
		return ""
	case ax >= ay && ax >= az:
		if v.X > 0 {
			return "from Right"
		}
		return "from Left"
	case ay >= az:
		if v.Y > 0 {
			return "from Front"
		}
		return "from Behind"
	default:
		if v.Z > 0 {
			return "from Above"
		}
		return "from Below"
	}
}
