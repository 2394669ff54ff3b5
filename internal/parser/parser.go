// Package parser classifies Game.log lines into typed domain events.
package parser

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/starlogs/starlogs/pkg/core"
)

// HeaderLines is how many lines from the start of a session are searched
// for system information.
const HeaderLines = 200

var timestampRe = regexp.MustCompile(`<(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d{1,9})?Z)>`)

// ParseTimestamp extracts the bracketed ISO-8601 timestamp prefix of a line.
func ParseTimestamp(line string) (time.Time, bool) {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// rule is one entry of the ordered rule list. match returns the submatches
// of a candidate line or nil. extract fills in kind-specific fields and
// may reject the line, in which case later rules are tried.
type rule struct {
	name    string
	header  bool
	match   func(line string) []string
	extract func(c *Classifier, ev *core.DomainEvent, m []string) bool
}

// Classifier turns a raw line into a DomainEvent. It holds no per-line
// state and is safe for concurrent use.
type Classifier struct {
	logger *slog.Logger
	rules  []rule
}

// NewClassifier creates a classifier with the default rule order.
func NewClassifier(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		logger: logger,
		rules: []rule{
			actorStallRule,
			vehicleDestroyRule,
			corpseRule,
			suicideRule,
			actorDeathRule,
			disconnectRule,
			systemInfoRule,
		},
	}
}

// RuleNames returns the rule names in evaluation order.
func (c *Classifier) RuleNames() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.name
	}
	return names
}

// Classify classifies a line with no position information. Header-only
// rules are applied.
func (c *Classifier) Classify(line string) core.DomainEvent {
	return c.ClassifyAt(line, 0)
}

// ClassifyAt classifies a line that is the lineNo-th line (1-based) of the
// current session. Header-only rules are skipped past HeaderLines.
// A line no rule accepts yields KindUnrecognized.
func (c *Classifier) ClassifyAt(line string, lineNo int) core.DomainEvent {
	line = strings.TrimRight(line, "\r\n")
	ev := core.DomainEvent{Kind: core.KindUnrecognized, Raw: line}
	if ts, ok := ParseTimestamp(line); ok {
		ev.Timestamp = ts
	}

	for _, r := range c.rules {
		if r.header && lineNo > HeaderLines {
			continue
		}
		m := r.match(line)
		if m == nil {
			continue
		}
		if r.extract(c, &ev, m) {
			return ev
		}
	}

	return ev
}
