// Package query implements the compile-query boundary: validating a
// user's InternalSearch against a Schema, tokenizing and classifying its
// search text, and producing a CompiledQuery plus the QueryReads read-set
// used to invalidate cached results.
package query

import (
	searchindex "github.com/dociq/searchindex"
	"github.com/dociq/searchindex/observability"
	"github.com/dociq/searchindex/queryerr"
	"github.com/dociq/searchindex/schema"
)

// SearchVersion selects how search text is classified into QueryTerms.
type SearchVersion int

const (
	// V1 treats every token as an Exact match — no fuzziness.
	V1 SearchVersion = iota
	// V2 classifies tokens by length into Exact/Fuzzy{1}/Fuzzy{2}, with
	// the last token always additionally marked prefix=true.
	V2
)

// FilterExpression is one clause of an InternalSearch: either the single
// full-text search clause or an equality filter.
type FilterExpression struct {
	// Search, if non-nil, is a full-text search clause against Path.
	Search *string
	// Eq, if non-nil, is the byte-encoded value of an equality filter
	// against Path. Mutually exclusive with Search.
	Eq   []byte
	Path schema.FieldPath
}

// SearchFilter builds a full-text search clause.
func SearchFilter(path schema.FieldPath, text string) FilterExpression {
	t := text
	return FilterExpression{Search: &t, Path: path}
}

// EqFilter builds an equality filter clause.
func EqFilter(path schema.FieldPath, value []byte) FilterExpression {
	return FilterExpression{Eq: value, Path: path}
}

// InternalSearch is the input to Compile: a named index and its filters.
type InternalSearch struct {
	IndexName string
	Filters   []FilterExpression
}

// QueryTerm is either an exact term or a fuzzy term with bounded edit
// distance and optional prefix expansion.
type QueryTerm struct {
	Term schema.Term

	// Fuzzy is false for an Exact term.
	Fuzzy       bool
	MaxDistance uint8 // 0, 1, or 2 when Fuzzy
	Prefix      bool
}

// Exact builds a non-fuzzy QueryTerm.
func Exact(term schema.Term) QueryTerm { return QueryTerm{Term: term} }

// FuzzyTerm builds a fuzzy QueryTerm.
func FuzzyTerm(term schema.Term, maxDistance uint8, prefix bool) QueryTerm {
	return QueryTerm{Term: term, Fuzzy: true, MaxDistance: maxDistance, Prefix: prefix}
}

// FilterCondition is a conjoined equality condition.
type FilterCondition struct {
	Term schema.Term
}

// CompiledQuery is the validated, tokenized, classified form of a user
// query: search terms preserving input order, plus conjoined filters.
type CompiledQuery struct {
	TextQuery        []QueryTerm
	FilterConditions []FilterCondition
}

// TextQueryTermRead is one (field, QueryTerm) probe a query logically
// performed against the search field.
type TextQueryTermRead struct {
	FieldPath schema.FieldPath
	Term      QueryTerm
}

// FilterConditionRead is one (field, value) probe a query logically
// performed against a filter field.
type FilterConditionRead struct {
	FieldPath schema.FieldPath
	Value     []byte
}

// QueryReads is the read-set of a compiled query: every term/field probe
// it performed, used upstream to invalidate cached query results when a
// conflicting write lands on one of these reads.
type QueryReads struct {
	TextReads   []TextQueryTermRead
	FilterReads []FilterConditionRead
}

// Compile validates search against schema and produces a CompiledQuery
// and its QueryReads. Grounded in
// original_source/crates/search/src/lib.rs (TantivySearchIndexSchema::compile).
func Compile(s *schema.Schema, search InternalSearch, version SearchVersion, obs observability.Observer) (CompiledQuery, QueryReads, error) {
	if obs == nil {
		obs = observability.Nop
	}

	var searchText *string
	var filterConditions []FilterCondition
	var filterReads []FilterConditionRead

	for _, f := range search.Filters {
		switch {
		case f.Search != nil:
			if f.Path != s.SearchField() {
				return CompiledQuery{}, QueryReads{}, queryerr.NewUserError(
					queryerr.CodeIncorrectSearchField,
					"search query against %s contains a search filter against %q, which doesn't match the indexed searchField %q",
					search.IndexName, f.Path, s.SearchField(),
				)
			}
			if searchText != nil {
				return CompiledQuery{}, QueryReads{}, queryerr.NewUserError(
					queryerr.CodeDuplicateSearchFilters,
					"search query against %s contains multiple search filters against %q; only one is allowed",
					search.IndexName, f.Path,
				)
			}
			searchText = f.Search

		default: // equality filter
			fieldID, ok := s.FilterFieldID(f.Path)
			if !ok {
				return CompiledQuery{}, QueryReads{}, queryerr.NewUserError(
					queryerr.CodeIncorrectFilterField,
					"search query against %s contains an equality filter on %q but that field isn't indexed for filtering",
					search.IndexName, f.Path,
				)
			}
			term := schema.Term{FieldID: fieldID, Bytes: f.Eq}
			filterConditions = append(filterConditions, FilterCondition{Term: term})
			filterReads = append(filterReads, FilterConditionRead{FieldPath: f.Path, Value: f.Eq})
		}
	}

	if searchText == nil {
		return CompiledQuery{}, QueryReads{}, queryerr.NewUserError(
			queryerr.CodeMissingSearchFilter,
			"search query against %s does not contain any search filters; include a search filter against %q",
			search.IndexName, s.SearchField(),
		)
	}

	tokens := s.Analyzer().AnalyzeStrings(*searchText)
	truncated := false
	if len(tokens) > searchindex.MaxQueryTerms {
		tokens = tokens[:searchindex.MaxQueryTerms]
		truncated = true
	}
	if truncated {
		obs.SearchTokenLimitExceeded()
	}

	var textQuery []QueryTerm
	switch version {
	case V1:
		for _, tok := range tokens {
			textQuery = append(textQuery, Exact(schema.Term{FieldID: s.SearchFieldID(), Bytes: []byte(tok)}))
		}
	default: // V2
		textQuery = compileTokensWithTypoTolerance(s.SearchFieldID(), tokens)
	}

	textReads := make([]TextQueryTermRead, len(textQuery))
	for i, t := range textQuery {
		textReads[i] = TextQueryTermRead{FieldPath: s.SearchField(), Term: t}
	}

	if len(filterConditions) > searchindex.MaxFilterConditions {
		return CompiledQuery{}, QueryReads{}, queryerr.NewUserError(
			queryerr.CodeTooManyFilterConditionsInSearchQuery,
			"search query against %s has too many filter conditions. Max: %d Actual: %d",
			search.IndexName, searchindex.MaxFilterConditions, len(filterConditions),
		)
	}

	compiled := CompiledQuery{TextQuery: textQuery, FilterConditions: filterConditions}
	reads := QueryReads{TextReads: textReads, FilterReads: filterReads}
	obs.CompiledQuery(len(textQuery), len(filterConditions))

	return compiled, reads, nil
}

// compileTokensWithTypoTolerance classifies tokens into QueryTerms by
// character-length threshold, marking the last token as a prefix.
func compileTokensWithTypoTolerance(searchFieldID schema.FieldID, tokens []string) []QueryTerm {
	res := make([]QueryTerm, 0, len(tokens))
	for i, text := range tokens {
		term := schema.Term{FieldID: searchFieldID, Bytes: []byte(text)}
		charCount := len([]rune(text))
		isPrefix := i == len(tokens)-1

		var numTypos uint8
		switch {
		case charCount <= searchindex.ExactSearchMaxWordLength:
			numTypos = 0
		case charCount <= searchindex.SingleTypoSearchMaxWordLength:
			numTypos = 1
		default:
			numTypos = 2
		}

		if numTypos == 0 && !isPrefix {
			res = append(res, Exact(term))
		} else {
			res = append(res, FuzzyTerm(term, numTypos, isPrefix))
		}
	}
	return res
}
