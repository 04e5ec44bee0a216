// Package observability is the metrics/logging seam the query engine calls
// into. It deliberately does not depend on a metrics library: counting and
// exporting is a host-process concern. A host wires a real collector in
// by implementing Observer; the default is a no-op.
package observability

import "go.uber.org/zap"

// Observer receives a signal at each point worth counting: query tokens
// dropped for exceeding the per-query limit, how much a tombstone forced
// the disk tier to overfetch, how many merged candidates got truncated,
// and the shape of each compiled query.
type Observer interface {
	SearchTokenLimitExceeded()
	OverfetchDelta(n int)
	DiscardedRevisions(n int)
	CompiledQuery(textTerms, filterTerms int)
}

type nopObserver struct{}

func (nopObserver) SearchTokenLimitExceeded()          {}
func (nopObserver) OverfetchDelta(int)                 {}
func (nopObserver) DiscardedRevisions(int)              {}
func (nopObserver) CompiledQuery(int, int)              {}

// Nop is the default Observer: every call is a no-op.
var Nop Observer = nopObserver{}

// Logger wraps *zap.Logger with a guaranteed non-nil default, the pattern
// used throughout the retrieval pack for embeddable libraries: a nil
// *zap.Logger passed in becomes zap.NewNop() rather than a nil pointer
// panic at the first Info call.
func Logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// ZapObserver logs each signal as a structured zap entry, for a host
// process that wants these counters surfaced without wiring an external
// metrics library. Zero-valued counts are not logged.
type ZapObserver struct {
	log *zap.Logger
}

// NewZapObserver builds a ZapObserver over l (nil becomes a no-op logger).
func NewZapObserver(l *zap.Logger) *ZapObserver {
	return &ZapObserver{log: Logger(l)}
}

func (o *ZapObserver) SearchTokenLimitExceeded() {
	o.log.Warn("search token limit exceeded")
}

func (o *ZapObserver) OverfetchDelta(n int) {
	if n == 0 {
		return
	}
	o.log.Debug("disk overfetch sized for tombstones", zap.Int("overfetch_delta", n))
}

func (o *ZapObserver) DiscardedRevisions(n int) {
	if n == 0 {
		return
	}
	o.log.Debug("truncated merged candidates", zap.Int("discarded", n))
}

func (o *ZapObserver) CompiledQuery(textTerms, filterTerms int) {
	o.log.Debug("compiled query", zap.Int("text_terms", textTerms), zap.Int("filter_terms", filterTerms))
}

var _ Observer = (*ZapObserver)(nil)
