package queryengine_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dociq/searchindex/memindex"
	"github.com/dociq/searchindex/query"
	"github.com/dociq/searchindex/queryengine"
	"github.com/dociq/searchindex/schema"
	"github.com/dociq/searchindex/searcher"
)

type testDoc struct{ body string }

func (d testDoc) StringField(path schema.FieldPath) (string, bool) {
	if path == "body" {
		return d.body, true
	}
	return "", false
}

func (d testDoc) FilterFieldBytes(schema.FieldPath) []byte { return nil }

// stubSearcher is a disk tier with no documents of its own, used to
// exercise the engine's merge logic against a pure memory-tier match.
type stubSearcher struct {
	stats searcher.Statistics
}

func (s stubSearcher) Search(ctx context.Context, req searcher.Request) (searcher.Result, error) {
	return searcher.Result{Stats: s.stats}, nil
}

func newTestSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(schema.SearchIndexConfig{SearchField: "body"}, nil)
	require.NoError(t, err)
	return s
}

func TestEngineSearchReturnsMemoryOnlyMatch(t *testing.T) {
	s := newTestSchema(t)
	mem := memindex.New(s, 0)

	id := uuid.New()
	mem.Put(id, 1, 100, testDoc{body: "hello world"}, false)

	disk := stubSearcher{stats: searcher.Statistics{
		DocCount:    1,
		FieldStats:  map[schema.FieldID]searcher.FieldStats{},
		TermDocFreq: map[string]int64{},
	}}
	engine := queryengine.New(s, mem, disk, nil)

	compiled := query.CompiledQuery{
		TextQuery: []query.QueryTerm{query.Exact(schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte("hello")})},
	}

	results, err := engine.Search(context.Background(), compiled)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id, results[0].Revision.ID)
}

func TestEngineSearchReturnsNoMatchesForUnseenTerm(t *testing.T) {
	s := newTestSchema(t)
	mem := memindex.New(s, 0)
	mem.Put(uuid.New(), 1, 100, testDoc{body: "hello world"}, false)

	disk := stubSearcher{stats: searcher.Statistics{FieldStats: map[schema.FieldID]searcher.FieldStats{}, TermDocFreq: map[string]int64{}}}
	engine := queryengine.New(s, mem, disk, nil)

	compiled := query.CompiledQuery{
		TextQuery: []query.QueryTerm{query.Exact(schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte("goodbye")})},
	}

	results, err := engine.Search(context.Background(), compiled)
	require.NoError(t, err)
	require.Empty(t, results)
}
