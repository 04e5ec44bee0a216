package query_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dociq/searchindex/query"
	"github.com/dociq/searchindex/queryerr"
	"github.com/dociq/searchindex/schema"
)

func newSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(schema.SearchIndexConfig{
		SearchField:  "body",
		FilterFields: []schema.FieldPath{"status"},
	}, nil)
	require.NoError(t, err)
	return s
}

func TestCompileRejectsSearchFilterAgainstWrongField(t *testing.T) {
	s := newSchema(t)
	_, _, err := query.Compile(s, query.InternalSearch{
		IndexName: "idx",
		Filters:   []query.FilterExpression{query.SearchFilter("status", "open")},
	}, query.V2, nil)

	require.Error(t, err)
	ue, ok := queryerr.AsUserError(err)
	require.True(t, ok)
	require.Equal(t, queryerr.CodeIncorrectSearchField, ue.Code)
}

func TestCompileRejectsDuplicateSearchFilters(t *testing.T) {
	s := newSchema(t)
	_, _, err := query.Compile(s, query.InternalSearch{
		IndexName: "idx",
		Filters: []query.FilterExpression{
			query.SearchFilter("body", "a"),
			query.SearchFilter("body", "b"),
		},
	}, query.V2, nil)

	ue, ok := queryerr.AsUserError(err)
	require.True(t, ok)
	require.Equal(t, queryerr.CodeDuplicateSearchFilters, ue.Code)
}

func TestCompileRequiresASearchFilter(t *testing.T) {
	s := newSchema(t)
	_, _, err := query.Compile(s, query.InternalSearch{IndexName: "idx"}, query.V2, nil)

	ue, ok := queryerr.AsUserError(err)
	require.True(t, ok)
	require.Equal(t, queryerr.CodeMissingSearchFilter, ue.Code)
}

func TestCompileRejectsUnknownFilterField(t *testing.T) {
	s := newSchema(t)
	_, _, err := query.Compile(s, query.InternalSearch{
		IndexName: "idx",
		Filters: []query.FilterExpression{
			query.SearchFilter("body", "hello"),
			query.EqFilter("nonexistent", []byte("x")),
		},
	}, query.V2, nil)

	ue, ok := queryerr.AsUserError(err)
	require.True(t, ok)
	require.Equal(t, queryerr.CodeIncorrectFilterField, ue.Code)
}

func TestCompileV2ClassifiesTokensByLength(t *testing.T) {
	s := newSchema(t)
	compiled, _, err := query.Compile(s, query.InternalSearch{
		IndexName: "idx",
		Filters:   []query.FilterExpression{query.SearchFilter("body", "cat elephants")},
	}, query.V2, nil)
	require.NoError(t, err)
	require.Len(t, compiled.TextQuery, 2)

	// "cat" (3 chars) <= ExactSearchMaxWordLength(4) and is not the last
	// token, so it stays exact.
	require.False(t, compiled.TextQuery[0].Fuzzy)

	// "elephants" is the last token: always prefix, and long enough
	// (9 chars, >8) to tolerate 2 typos.
	last := compiled.TextQuery[1]
	require.True(t, last.Prefix)
	require.True(t, last.Fuzzy)
	require.EqualValues(t, 2, last.MaxDistance)
}

func TestCompileTooManyFilterConditions(t *testing.T) {
	s, err := schema.New(schema.SearchIndexConfig{
		SearchField:  "body",
		FilterFields: manyFilterFields(9),
	}, nil)
	require.NoError(t, err)

	var filters []query.FilterExpression
	filters = append(filters, query.SearchFilter("body", "x"))
	for _, fp := range manyFilterFields(9) {
		filters = append(filters, query.EqFilter(fp, []byte("v")))
	}

	_, _, err = query.Compile(s, query.InternalSearch{IndexName: "idx", Filters: filters}, query.V2, nil)
	ue, ok := queryerr.AsUserError(err)
	require.True(t, ok)
	require.Equal(t, queryerr.CodeTooManyFilterConditionsInSearchQuery, ue.Code)
}

func manyFilterFields(n int) []schema.FieldPath {
	out := make([]schema.FieldPath, n)
	for i := range out {
		out[i] = schema.FieldPath("f" + strings.Repeat("x", i+1))
	}
	return out
}
