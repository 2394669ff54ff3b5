package engine

import (
	"log/slog"
	"time"

	"github.com/starlogs/starlogs/internal/aggregator"
	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/internal/correlator"
	"github.com/starlogs/starlogs/internal/parser"
	"github.com/starlogs/starlogs/internal/queue"
	"github.com/starlogs/starlogs/internal/tracker"
	"github.com/starlogs/starlogs/pkg/core"
	"github.com/starlogs/starlogs/pkg/streaming"
)

// DefaultRawLineHistory is how many raw lines are kept for late subscribers.
const DefaultRawLineHistory = 1000

// PublishFunc receives every message the pipeline produces, in order.
type PublishFunc func(streaming.Message)

// Pipeline runs classification, vehicle tracking, correlation and
// aggregation over a sequence of raw lines. It is deterministic: the same
// lines always produce the same messages. It is not safe for concurrent
// use; the Engine serializes access.
type Pipeline struct {
	logger  *slog.Logger
	publish PublishFunc
	cfg     config.EngineConfig

	classifier *parser.Classifier
	tracker    *tracker.Tracker
	correlator *correlator.Correlator
	agg        *aggregator.Aggregator
	history    *queue.Ring[streaming.LogLinePayload]

	// lineNo counts text lines since the last reset, for header rules.
	lineNo int
	lastTS time.Time
}

// NewPipeline creates a pipeline. A nil publish discards messages.
func NewPipeline(cfg config.EngineConfig, logger *slog.Logger, publish PublishFunc) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if publish == nil {
		publish = func(streaming.Message) {}
	}
	history := cfg.RawLineHistory
	if history <= 0 {
		history = DefaultRawLineHistory
	}
	return &Pipeline{
		logger:     logger,
		publish:    publish,
		cfg:        cfg,
		classifier: parser.NewClassifier(logger),
		tracker:    tracker.New(),
		correlator: correlator.New(cfg.CorrelationWindow),
		agg:        aggregator.New(cfg.RecentEvents),
		history:    queue.NewRing[streaming.LogLinePayload](history),
	}
}

// Aggregator returns the read model. It is safe to query concurrently.
func (p *Pipeline) Aggregator() *aggregator.Aggregator { return p.agg }

// RawLines returns up to n of the most recent raw lines, oldest first.
// n <= 0 returns all held lines.
func (p *Pipeline) RawLines(n int) []streaming.LogLinePayload {
	lines := p.history.Newest(n)
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines
}

// Process consumes one raw line or marker.
func (p *Pipeline) Process(line core.RawLine) {
	switch line.Marker {
	case core.MarkerSessionBoundary:
		p.logger.Info("log file was truncated or rotated, resetting state")
		p.Reset("truncated")
		return
	case core.MarkerReplayComplete:
		p.publish(streaming.Message{
			Type:           streaming.TypeReplayComplete,
			ReplayComplete: &streaming.ReplayCompletePayload{Lines: p.lineNo},
		})
		return
	}

	p.lineNo++
	ev := p.classifier.ClassifyAt(line.Text, p.lineNo)
	ev.Seq = line.Seq
	hasTS := !ev.Timestamp.IsZero()
	ev.Timestamp = p.clamp(ev.Timestamp)

	recognized := ev.Kind != core.KindUnrecognized
	hasEvent := false

	switch {
	case !recognized:
		p.logger.Debug("unrecognized line", "seq", line.Seq)
		if hasTS {
			p.emit(p.correlator.Advance(ev.Timestamp))
		}
	case ev.Kind.IsDestruction():
		applied, ok := p.tracker.Apply(ev)
		if !ok {
			p.logger.Debug("ignoring repeated destroy level",
				"vehicle", ev.VehicleID, "level", ev.ToLevel, "seq", line.Seq)
			p.emit(p.correlator.Advance(ev.Timestamp))
			break
		}
		hasEvent = true
		p.emit(p.correlator.Process(applied))
	default:
		hasEvent = true
		p.emit(p.correlator.Process(ev))
	}

	p.agg.CountLine(recognized)

	payload := streaming.LogLinePayload{Seq: line.Seq, Line: line.Text, HasEvent: hasEvent}
	p.history.Push(payload)
	p.publish(streaming.Message{Type: streaming.TypeLogLine, LogLine: &payload})
}

// Flush finalizes all open correlation entries.
func (p *Pipeline) Flush() {
	p.emit(p.correlator.Flush())
}

// Reset flushes open correlations, then clears every component and
// tells subscribers to drop what they hold.
func (p *Pipeline) Reset(reason string) {
	p.Flush()
	p.clear()
	p.publish(streaming.Message{
		Type:  streaming.TypeSessionReset,
		Reset: &streaming.SessionResetPayload{Reason: reason},
	})
}

// SetConfig stores cfg to be applied on the next reset. Only the
// correlation window can change; buffer sizes are fixed at construction.
func (p *Pipeline) SetConfig(cfg config.EngineConfig) {
	p.cfg = cfg
}

// Window returns the correlation window in effect.
func (p *Pipeline) Window() time.Duration { return p.correlator.Window() }

// OpenCorrelations returns the open entry and buffered crew counts.
func (p *Pipeline) OpenCorrelations() (open, pending int) {
	return p.correlator.Open(), p.correlator.Pending()
}

// TrackedVehicles returns the number of vehicles with destroy state.
func (p *Pipeline) TrackedVehicles() int { return p.tracker.Len() }

func (p *Pipeline) clear() {
	p.tracker.Reset()
	p.correlator = correlator.New(p.cfg.CorrelationWindow)
	p.agg.Reset()
	p.history.Clear()
	p.lineNo = 0
	p.lastTS = time.Time{}
}

// clamp keeps timestamps non-decreasing. A line without a timestamp takes
// the last one seen.
func (p *Pipeline) clamp(ts time.Time) time.Time {
	if ts.IsZero() || ts.Before(p.lastTS) {
		return p.lastTS
	}
	p.lastTS = ts
	return ts
}

func (p *Pipeline) emit(out []correlator.Output) {
	for _, o := range out {
		switch {
		case o.Event != nil:
			p.agg.Add(*o.Event)
			p.publish(streaming.Message{Type: streaming.TypeEvent, Event: o.Event})
		case o.Patch != nil:
			p.agg.ApplyPatch(*o.Patch)
			p.publish(streaming.Message{Type: streaming.TypePatch, Patch: o.Patch})
		}
	}
}
