package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starlogs/starlogs/pkg/core"
)

var (
	actorStallRe = regexp.MustCompile(
		`(?i)<Actor stall>.*?Actor stall detected,\s*Player:\s*(\w+),\s*Type:\s*(\w+),\s*Length:\s*(\d+(?:\.\d+)?)`,
	)
	disconnectRe = regexp.MustCompile(`(?i)(?:^|>)\s*disconnect\s*$`)
)

var actorStallRule = rule{
	name:  "actor_stall",
	match: actorStallRe.FindStringSubmatch,
	extract: func(_ *Classifier, ev *core.DomainEvent, m []string) bool {
		length, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return false
		}
		ev.Kind = core.KindActorStall
		ev.Stall = &core.Stall{Player: m[1], Type: m[2], Length: length}
		return true
	},
}

var disconnectRule = rule{
	name:  "disconnect",
	match: disconnectRe.FindStringSubmatch,
	extract: func(_ *Classifier, ev *core.DomainEvent, _ []string) bool {
		ev.Kind = core.KindDisconnect
		return true
	},
}

// systemPatterns are checked in order; every pattern that matches a line
// contributes a SystemInfo pair.
var systemPatterns = []struct {
	key string
	re  *regexp.Regexp
}{
	{"cpu", regexp.MustCompile(`Host CPU:\s*(.+)`)},
	{"cpu_cores", regexp.MustCompile(`Logical CPU Count:\s*(\d+)`)},
	{"os", regexp.MustCompile(`(Windows \d+.*?)\s+\(build`)},
	{"ram_total", regexp.MustCompile(`(\d+)MB physical memory installed`)},
	{"ram_available", regexp.MustCompile(`(\d+)MB available`)},
	{"gpu", regexp.MustCompile(`D3D Adapter: Description:\s*(.+)`)},
	{"gpu_vram", regexp.MustCompile(`DedicatedVidMem\s*=\s*(\d+)`)},
	{"display_mode", regexp.MustCompile(`Current display mode is\s*(.+)`)},
	{"performance_cpu", regexp.MustCompile(`Performance Index:\s*([\d.]+)\s*\(CPU\)`)},
	{"performance_gpu", regexp.MustCompile(`Performance Index:.*?\(CPU\),\s*([\d.]+)\s*\(GPU\)`)},
	{"file_version", regexp.MustCompile(`FileVersion:\s*([\d.]+)`)},
	{"changelist", regexp.MustCompile(`Changelist:\s*(\d+)`)},
	{"branch", regexp.MustCompile(`Branch:\s*(.+)`)},
	{"build_date", regexp.MustCompile(`Built on\s*(.+)`)},
	{"hostname", regexp.MustCompile(`network hostname:\s*(.+)`)},
}

// SystemInfoKeys lists every key the header rule can produce.
func SystemInfoKeys() []string {
	keys := make([]string, len(systemPatterns))
	for i, p := range systemPatterns {
		keys[i] = p.key
	}
	return keys
}

var systemInfoRule = rule{
	name:   "system_info",
	header: true,
	match: func(line string) []string {
		var pairs []string
		for _, p := range systemPatterns {
			if m := p.re.FindStringSubmatch(line); m != nil {
				pairs = append(pairs, p.key, strings.TrimSpace(m[1]))
			}
		}
		return pairs
	},
	extract: func(_ *Classifier, ev *core.DomainEvent, pairs []string) bool {
		ev.Kind = core.KindSystemInfo
		for i := 0; i+1 < len(pairs); i += 2 {
			ev.Info = append(ev.Info, core.SystemInfo{Key: pairs[i], Value: pairs[i+1]})
		}
		return true
	},
}
