package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starlogs/starlogs/pkg/core"
)

// killRe captures victim, victim id, zone, killer, killer id, weapon,
// weapon class, damage type and the optional direction vector.
var killRe = regexp.MustCompile(
	`(?i)<Actor Death> CActor::Kill: '([^']+)' \[(\d+)\] in zone '([^']+)' killed by '([^']+)' \[(\d+)\] using '([^']+)' \[Class ([^\]]+)\] with damage type '([^']+)'` +
		`(?: from direction x: ([-\d.eE]+), y: ([-\d.eE]+), z: ([-\d.eE]+))?`,
)

var corpseRe = regexp.MustCompile(`\bCorpse\b`)
var corpsePlayerRe = regexp.MustCompile(`Player '([^']+)'`)

var suicideRule = rule{
	name:  "suicide",
	match: killRe.FindStringSubmatch,
	extract: func(c *Classifier, ev *core.DomainEvent, m []string) bool {
		victim, killer, damage := m[1], m[4], m[8]
		if victim != killer && !strings.EqualFold(damage, "suicide") {
			return false
		}
		c.fillKill(ev, m)
		ev.Kind = core.KindSuicide
		return true
	},
}

var actorDeathRule = rule{
	name:  "actor_death",
	match: killRe.FindStringSubmatch,
	extract: func(c *Classifier, ev *core.DomainEvent, m []string) bool {
		c.fillKill(ev, m)
		ev.Kind = KillKind(ev.Killer, ev.Victim, ev.RawDamageType)
		return true
	},
}

var corpseRule = rule{
	name: "corpse",
	match: func(line string) []string {
		if strings.Contains(line, "CActor::Kill") || !corpseRe.MatchString(line) {
			return nil
		}
		if m := corpsePlayerRe.FindStringSubmatch(line); m != nil {
			return m
		}
		return []string{line, ""}
	},
	extract: func(_ *Classifier, ev *core.DomainEvent, m []string) bool {
		ev.Kind = core.KindCorpse
		ev.Victim = m[1]
		return true
	},
}

// KillKind resolves the kill matrix: who is an NPC on each side and
// whether the kill happened on foot.
func KillKind(killer, victim, damageType string) core.Kind {
	npcKiller, npcVictim := IsNPC(killer), IsNPC(victim)
	fps := strings.EqualFold(damageType, "bullet")

	switch {
	case npcKiller && npcVictim:
		return core.KindKill
	case npcKiller:
		if fps {
			return core.KindFpsDeath
		}
		return core.KindDeath
	case npcVictim:
		if fps {
			return core.KindFpsPveKill
		}
		return core.KindPveKill
	default:
		if fps {
			return core.KindFpsPvpKill
		}
		return core.KindPvpKill
	}
}

func (c *Classifier) fillKill(ev *core.DomainEvent, m []string) {
	ev.Victim = m[1]
	ev.VictimID = m[2]
	ev.Zone = m[3]
	ev.Killer = m[4]
	ev.KillerID = m[5]
	ev.Weapon = m[6]
	ev.WeaponClassRaw = m[7]
	ev.RawDamageType = m[8]
	ev.DamageType = core.ParseDamageType(m[8])
	ev.Ship = ShipName(m[3])
	ev.WeaponClass, ev.WeaponSize = WeaponClassOf(m[6], m[7])

	if m[9] == "" {
		return
	}
	x, errX := strconv.ParseFloat(m[9], 64)
	y, errY := strconv.ParseFloat(m[10], 64)
	z, errZ := strconv.ParseFloat(m[11], 64)
	if errX != nil || errY != nil || errZ != nil {
		c.logger.Debug("bad direction vector", "x", m[9], "y", m[10], "z", m[11])
		return
	}
	ev.Direction = &core.Vector3{X: x, Y: y, Z: z}
	ev.DirectionLabel = DirectionLabel(*ev.Direction)
}
