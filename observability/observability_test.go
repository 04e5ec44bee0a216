package observability_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dociq/searchindex/observability"
)

func newObserved() (*observability.ZapObserver, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return observability.NewZapObserver(zap.New(core)), logs
}

func TestZapObserverLogsOverfetchDelta(t *testing.T) {
	obs, logs := newObserved()
	obs.OverfetchDelta(3)

	entries := logs.FilterMessage("disk overfetch sized for tombstones").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, int64(3), entries[0].ContextMap()["overfetch_delta"])
}

func TestZapObserverSkipsZeroCounts(t *testing.T) {
	obs, logs := newObserved()
	obs.OverfetchDelta(0)
	obs.DiscardedRevisions(0)
	require.Equal(t, 0, logs.Len())
}

func TestZapObserverLogsSearchTokenLimitExceeded(t *testing.T) {
	obs, logs := newObserved()
	obs.SearchTokenLimitExceeded()

	entries := logs.FilterMessage("search token limit exceeded").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestZapObserverLogsCompiledQueryShape(t *testing.T) {
	obs, logs := newObserved()
	obs.CompiledQuery(4, 2)

	entries := logs.FilterMessage("compiled query").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	require.Equal(t, int64(4), ctx["text_terms"])
	require.Equal(t, int64(2), ctx["filter_terms"])
}

func TestNewZapObserverAcceptsNilLogger(t *testing.T) {
	obs := observability.NewZapObserver(nil)
	require.NotPanics(t, func() { obs.OverfetchDelta(1) })
}
