package localsearcher_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dociq/searchindex/memindex"
	"github.com/dociq/searchindex/schema"
	"github.com/dociq/searchindex/searcher"
	"github.com/dociq/searchindex/searcher/localsearcher"
)

func TestWriteThenSearchFindsExactTerm(t *testing.T) {
	root := t.TempDir()

	w, err := localsearcher.NewWriter(root, 4)
	require.NoError(t, err)

	id := uuid.New()
	searchFieldID := schema.FieldIDSearch
	terms := []schema.DocumentTerm{
		{Term: schema.Term{FieldID: searchFieldID, Bytes: []byte("hello")}, Position: 0},
		{Term: schema.Term{FieldID: searchFieldID, Bytes: []byte("world")}, Position: 1},
	}
	require.NoError(t, w.Add(id, 100, terms, schema.DocumentLengths{SearchFieldLen: 2}))
	require.NoError(t, w.Close())

	ls, err := localsearcher.Open(root, 4)
	require.NoError(t, err)
	defer ls.Close()

	bitset := memindex.TermListBitsetQuery{
		TextClauses: []memindex.TextClause{{Exact: &schema.Term{FieldID: searchFieldID, Bytes: []byte("hello")}}},
	}
	result, err := ls.Search(context.Background(), searcher.Request{Query: bitset, Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	require.Equal(t, id, result.Candidates[0].Revision.ID)

	require.EqualValues(t, 1, result.Stats.DocCount)
}

func TestSearchReturnsNoCandidatesForUnknownTerm(t *testing.T) {
	root := t.TempDir()

	w, err := localsearcher.NewWriter(root, 4)
	require.NoError(t, err)
	require.NoError(t, w.Add(uuid.New(), 1, []schema.DocumentTerm{
		{Term: schema.Term{FieldID: schema.FieldIDSearch, Bytes: []byte("hello")}},
	}, schema.DocumentLengths{SearchFieldLen: 1}))
	require.NoError(t, w.Close())

	ls, err := localsearcher.Open(root, 4)
	require.NoError(t, err)
	defer ls.Close()

	bitset := memindex.TermListBitsetQuery{
		TextClauses: []memindex.TextClause{{Exact: &schema.Term{FieldID: schema.FieldIDSearch, Bytes: []byte("nope")}}},
	}
	result, err := ls.Search(context.Background(), searcher.Request{Query: bitset, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, result.Candidates)
}
