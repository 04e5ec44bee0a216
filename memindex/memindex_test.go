package memindex_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dociq/searchindex/memindex"
	"github.com/dociq/searchindex/query"
	"github.com/dociq/searchindex/schema"
)

type testDoc struct {
	body   string
	status string
}

func (d testDoc) StringField(path schema.FieldPath) (string, bool) {
	if path == "body" {
		return d.body, true
	}
	return "", false
}

func (d testDoc) FilterFieldBytes(path schema.FieldPath) []byte {
	if path == "status" && d.status != "" {
		return []byte(d.status)
	}
	return nil
}

func newTestSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(schema.SearchIndexConfig{
		SearchField:  "body",
		FilterFields: []schema.FieldPath{"status"},
	}, nil)
	require.NoError(t, err)
	return s
}

func TestPutThenQueryExactMatch(t *testing.T) {
	s := newTestSchema(t)
	mem := memindex.New(s, 0)

	id := uuid.New()
	mem.Put(id, 1, 100, testDoc{body: "hello world", status: "open"}, false)

	compiled := query.CompiledQuery{
		TextQuery: []query.QueryTerm{query.Exact(schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte("hello")})},
	}
	candidates := mem.Query(compiled)
	require.Len(t, candidates, 1)
	require.Equal(t, id, candidates[0].Revision.ID)
	require.Equal(t, 1, candidates[0].MatchedExact)
}

func TestQueryWithFilterConditionNarrowsResults(t *testing.T) {
	s := newTestSchema(t)
	mem := memindex.New(s, 0)

	openID := uuid.New()
	closedID := uuid.New()
	mem.Put(openID, 1, 100, testDoc{body: "hello world", status: "open"}, false)
	mem.Put(closedID, 2, 200, testDoc{body: "hello moon", status: "closed"}, false)

	statusFieldID, ok := s.FilterFieldID("status")
	require.True(t, ok)

	compiled := query.CompiledQuery{
		TextQuery:        []query.QueryTerm{query.Exact(schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte("hello")})},
		FilterConditions: []query.FilterCondition{{Term: schema.Term{FieldID: statusFieldID, Bytes: []byte("open")}}},
	}
	candidates := mem.Query(compiled)
	require.Len(t, candidates, 1)
	require.Equal(t, openID, candidates[0].Revision.ID)
}

func TestDeleteRemovesFromLiveQueryAndTombstones(t *testing.T) {
	s := newTestSchema(t)
	mem := memindex.New(s, 0)

	id := uuid.New()
	mem.Put(id, 1, 100, testDoc{body: "hello world", status: "open"}, true)
	mem.Delete(id, 2, nil, schema.DocumentLengths{})

	compiled := query.CompiledQuery{
		TextQuery: []query.QueryTerm{query.Exact(schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte("hello")})},
	}
	require.Empty(t, mem.Query(compiled))

	filtered := mem.FilterTombstoned([]schema.InternalID{id})
	require.Empty(t, filtered)
}

func TestExpandQueryTermFindsFuzzyMatches(t *testing.T) {
	s := newTestSchema(t)
	mem := memindex.New(s, 0)

	mem.Put(uuid.New(), 1, 100, testDoc{body: "kitten"}, false)

	qt := query.FuzzyTerm(schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte("sitten")}, 1, false)
	shortlist := mem.ExpandQueryTerm(qt)
	require.Len(t, shortlist.Terms, 1)
	require.Equal(t, "kitten", string(shortlist.Terms[0].Term.Bytes))
	require.Equal(t, memindex.MatchFuzzy1, shortlist.Terms[0].Kind)
}

func TestDeleteWithDiskTermsDecrementsStats(t *testing.T) {
	s := newTestSchema(t)
	mem := memindex.New(s, 0)

	id := uuid.New()
	term := schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte("hello")}
	diskTerms := []schema.DocumentTerm{{Term: term, Position: 0}}
	diskLengths := schema.DocumentLengths{SearchFieldLen: 2}

	mem.Delete(id, 1, diskTerms, diskLengths)

	diff := mem.StatsDiff()
	require.Equal(t, int64(-1), diff.DocCountDelta)
	require.Equal(t, int64(-1), diff.TermDocFreqDelta[term.Key()])
}

func TestDrainForgetsSettledLiveDocument(t *testing.T) {
	s := newTestSchema(t)
	mem := memindex.New(s, 0)

	id := uuid.New()
	mem.Put(id, 1, 100, testDoc{body: "hello world", status: "open"}, false)
	require.Equal(t, int64(1), mem.StatsDiff().DocCountDelta)

	mem.Drain(1)

	require.Equal(t, schema.Timestamp(1), mem.CheckpointTs())
	require.Equal(t, int64(0), mem.StatsDiff().DocCountDelta)

	compiled := query.CompiledQuery{
		TextQuery: []query.QueryTerm{query.Exact(schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte("hello")})},
	}
	require.Empty(t, mem.Query(compiled))

	filtered := mem.FilterTombstoned([]schema.InternalID{id})
	require.Contains(t, filtered, id)
}

func TestDrainReversesSettledDeleteAdjustment(t *testing.T) {
	s := newTestSchema(t)
	mem := memindex.New(s, 0)

	id := uuid.New()
	term := schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte("hello")}
	diskTerms := []schema.DocumentTerm{{Term: term}}
	diskLengths := schema.DocumentLengths{SearchFieldLen: 2}
	mem.Delete(id, 1, diskTerms, diskLengths)
	require.Equal(t, int64(-1), mem.StatsDiff().DocCountDelta)

	mem.Drain(1)

	require.Equal(t, int64(0), mem.StatsDiff().DocCountDelta)
	require.Equal(t, int64(0), mem.StatsDiff().TermDocFreqDelta[term.Key()])

	filtered := mem.FilterTombstoned([]schema.InternalID{id})
	require.Contains(t, filtered, id)
}

func TestDrainLeavesDocumentsEditedAfterCheckpointUntouched(t *testing.T) {
	s := newTestSchema(t)
	mem := memindex.New(s, 0)

	id := uuid.New()
	mem.Put(id, 1, 100, testDoc{body: "hello world", status: "open"}, false)
	mem.Put(id, 2, 100, testDoc{body: "hello again", status: "open"}, false)

	mem.Drain(1)

	require.Equal(t, int64(1), mem.StatsDiff().DocCountDelta)
	compiled := query.CompiledQuery{
		TextQuery: []query.QueryTerm{query.Exact(schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte("again")})},
	}
	require.Len(t, mem.Query(compiled), 1)
}

func TestMatchingTombstonesIsConservativeWhenTermsUnknown(t *testing.T) {
	s := newTestSchema(t)
	mem := memindex.New(s, 0)

	id := uuid.New()
	mem.Delete(id, 1, nil, schema.DocumentLengths{}) // never seen via Put: terms are unknown

	compiled := query.CompiledQuery{
		TextQuery: []query.QueryTerm{query.Exact(schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte("anything")})},
	}
	bitset := mem.BuildTermListBitsetQuery(compiled)
	matches := mem.MatchingTombstones(bitset)
	require.Contains(t, matches, id)
}
