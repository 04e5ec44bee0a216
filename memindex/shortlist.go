package memindex

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	searchindex "github.com/dociq/searchindex"
	"github.com/dociq/searchindex/query"
	"github.com/dociq/searchindex/schema"
)

// candidateTerm is an intermediate result while scanning sortedSearchTerms
// for a single fuzzy QueryTerm, kept only long enough to sort and
// truncate to MaxShortlistTermsPerQueryTerm.
type candidateTerm struct {
	text string
	kind MatchKind
	rank int // distance for fuzzy matches, 0 for exact/prefix, used only to sort
}

// ExpandQueryTerm resolves one QueryTerm against this memory index's own
// term dictionary, returning the bounded TermShortlist a Ranker or
// bitset-query builder can use. An Exact, non-prefix QueryTerm always
// shortlists to at most itself.
//
// The scan walks sortedSearchTerms once, pruning by length difference
// before paying for a Levenshtein computation.
func (m *MemoryIndex) ExpandQueryTerm(qt query.QueryTerm) TermShortlist {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expandQueryTermLocked(qt)
}

// expandQueryTermLocked is ExpandQueryTerm's body, callable from other
// methods that already hold m.mu for reading. sync.RWMutex read locks are
// not recursive: a second RLock from the same goroutine can deadlock
// against a writer queued in between, so any caller already holding the
// lock must go through this instead of the exported method.
func (m *MemoryIndex) expandQueryTermLocked(qt query.QueryTerm) TermShortlist {
	needle := string(qt.Term.Bytes)

	if !qt.Fuzzy && !qt.Prefix {
		if _, ok := m.searchTermSet[needle]; !ok {
			return TermShortlist{}
		}
		return TermShortlist{Terms: []ShortlistedTerm{{Term: qt.Term, Kind: MatchExact}}}
	}

	maxDist := int(qt.MaxDistance)
	var candidates []candidateTerm

	for _, term := range m.sortedSearchTerms {
		if term == needle {
			candidates = append(candidates, candidateTerm{text: term, kind: MatchExact, rank: 0})
			continue
		}
		if qt.Fuzzy && !lengthDiffExceeds(term, needle, maxDist) {
			dist := levenshtein.ComputeDistance(term, needle)
			if dist <= maxDist {
				kind := MatchFuzzy2
				if dist == 1 {
					kind = MatchFuzzy1
				}
				candidates = append(candidates, candidateTerm{text: term, kind: kind, rank: dist})
				continue
			}
		}
		if qt.Prefix && strings.HasPrefix(term, needle) {
			candidates = append(candidates, candidateTerm{text: term, kind: MatchPrefixOnly, rank: 1})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].kind != candidates[j].kind {
			return candidates[i].kind < candidates[j].kind
		}
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank < candidates[j].rank
		}
		return candidates[i].text < candidates[j].text
	})

	if len(candidates) > searchindex.MaxShortlistTermsPerQueryTerm {
		candidates = candidates[:searchindex.MaxShortlistTermsPerQueryTerm]
	}

	terms := make([]ShortlistedTerm, len(candidates))
	for i, c := range candidates {
		terms[i] = ShortlistedTerm{Term: schema.Term{FieldID: qt.Term.FieldID, Bytes: []byte(c.text)}, Kind: c.kind}
	}
	return TermShortlist{Terms: terms}
}

// shortlistIDs builds the ShortlistIDs lookup for ts: each term's dictionary
// key mapped to its TermID, the index it occupies in ts.Terms.
func shortlistIDs(ts TermShortlist) ShortlistIDs {
	ids := make(ShortlistIDs, len(ts.Terms))
	for i, st := range ts.Terms {
		ids[st.Term.Key()] = TermID(i)
	}
	return ids
}

// lengthDiffExceeds reports whether a and b differ in rune count by more
// than maxDist, a cheap necessary condition for edit distance <= maxDist.
func lengthDiffExceeds(a, b string, maxDist int) bool {
	diff := len([]rune(a)) - len([]rune(b))
	if diff < 0 {
		diff = -diff
	}
	return diff > maxDist
}

// BuildTermListBitsetQuery resolves every text QueryTerm in compiled
// against this memory index's dictionary and pairs that with the literal
// filter terms, producing the bitset-only form a Searcher or this index's
// own postings scan can execute without any further fuzzy logic.
func (m *MemoryIndex) BuildTermListBitsetQuery(compiled query.CompiledQuery) TermListBitsetQuery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buildTermListBitsetQueryLocked(compiled)
}

// buildTermListBitsetQueryLocked is BuildTermListBitsetQuery's body for
// callers that already hold m.mu for reading.
func (m *MemoryIndex) buildTermListBitsetQueryLocked(compiled query.CompiledQuery) TermListBitsetQuery {
	out := TermListBitsetQuery{
		TextClauses:      make([]TextClause, len(compiled.TextQuery)),
		FilterConditions: make([]schema.Term, len(compiled.FilterConditions)),
	}
	for i, qt := range compiled.TextQuery {
		if !qt.Fuzzy && !qt.Prefix {
			t := qt.Term
			out.TextClauses[i] = TextClause{Exact: &t}
			continue
		}
		ts := m.expandQueryTermLocked(qt)
		out.TextClauses[i] = TextClause{Shortlist: ts.Terms, IDs: shortlistIDs(ts)}
	}
	for i, fc := range compiled.FilterConditions {
		out.FilterConditions[i] = fc.Term
	}
	return out
}
