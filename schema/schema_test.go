package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dociq/searchindex/schema"
)

type testDoc struct {
	strings map[schema.FieldPath]string
	filters map[schema.FieldPath][]byte
}

func (d testDoc) StringField(path schema.FieldPath) (string, bool) {
	v, ok := d.strings[path]
	return v, ok
}

func (d testDoc) FilterFieldBytes(path schema.FieldPath) []byte {
	return d.filters[path]
}

func TestNewAssignsFixedFieldIDs(t *testing.T) {
	s, err := schema.New(schema.SearchIndexConfig{
		SearchField:  "body",
		FilterFields: []schema.FieldPath{"zeta", "alpha"},
	}, nil)
	require.NoError(t, err)

	require.Equal(t, schema.FieldID(schema.SearchFieldID), s.SearchFieldID())

	alphaID, ok := s.FilterFieldID("alpha")
	require.True(t, ok)
	require.Equal(t, schema.FieldID(4), alphaID)

	zetaID, ok := s.FilterFieldID("zeta")
	require.True(t, ok)
	require.Equal(t, schema.FieldID(5), zetaID)
}

func TestNewRejectsFilterFieldDuplicatingSearchField(t *testing.T) {
	_, err := schema.New(schema.SearchIndexConfig{
		SearchField:  "body",
		FilterFields: []schema.FieldPath{"body"},
	}, nil)
	require.Error(t, err)
}

func TestIndexIntoTermsTokenizesSearchFieldAndEncodesFilters(t *testing.T) {
	s, err := schema.New(schema.SearchIndexConfig{
		SearchField:  "body",
		FilterFields: []schema.FieldPath{"status"},
	}, nil)
	require.NoError(t, err)

	doc := testDoc{
		strings: map[schema.FieldPath]string{"body": "hello world"},
		filters: map[schema.FieldPath][]byte{"status": []byte("open")},
	}

	terms := s.IndexIntoTerms(doc)
	require.Len(t, terms, 3) // two search tokens + one filter term

	var sawFilter bool
	for _, dt := range terms {
		if dt.IsFilter {
			sawFilter = true
			require.Equal(t, []byte("open"), dt.Term.Bytes)
		}
	}
	require.True(t, sawFilter)
}

func TestIndexIntoTermsEncodesMissingFilterField(t *testing.T) {
	s, err := schema.New(schema.SearchIndexConfig{
		SearchField:  "body",
		FilterFields: []schema.FieldPath{"status"},
	}, nil)
	require.NoError(t, err)

	doc := testDoc{strings: map[schema.FieldPath]string{"body": "hi"}}
	terms := s.IndexIntoTerms(doc)

	var filterTerm *schema.DocumentTerm
	for i := range terms {
		if terms[i].IsFilter {
			filterTerm = &terms[i]
		}
	}
	require.NotNil(t, filterTerm)
	require.Equal(t, schema.MissingFilterValue, filterTerm.Term.Bytes)
}
