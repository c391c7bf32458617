package retry

import "sync/atomic"

// TraceGate decides whether diagnostic events may be written.
//
// Some sinks are private (a file owned by this process) and some are shared
// (a multiplexed stream where interleaved writes could corrupt output or leak
// query details). Nothing here tries to detect which one is in use; the gate
// stays closed until the hosting environment says otherwise.
type TraceGate struct {
	safe atomic.Bool
}

// NewTraceGate returns a gate in the given state.
func NewTraceGate(safe bool) *TraceGate {
	g := &TraceGate{}
	g.safe.Store(safe)
	return g
}

// IsSafeToTrace reports whether diagnostics may be emitted. A nil gate is closed.
func (g *TraceGate) IsSafeToTrace() bool {
	if g == nil {
		return false
	}
	return g.safe.Load()
}

// SetSafe records the hosting environment's confirmation (or withdrawal) that the sink is private.
func (g *TraceGate) SetSafe(safe bool) {
	g.safe.Store(safe)
}
