package memindex

import "github.com/dociq/searchindex/schema"

// TermID identifies one concrete dictionary term produced by expanding a
// fuzzy QueryTerm against the memory index's term dictionary. It is only
// meaningful within the TermShortlist/ShortlistIDs pair that produced it.
type TermID uint32

// MatchKind classifies how a shortlisted term satisfies its QueryTerm,
// used by the Ranker's fuzzy-match bonus: exact beats 1-typo beats 2-typo
// beats prefix-only.
type MatchKind int

const (
	MatchExact MatchKind = iota
	MatchFuzzy1
	MatchFuzzy2
	MatchPrefixOnly
)

// ShortlistedTerm is one concrete dictionary term satisfying a fuzzy or
// prefix QueryTerm, tagged with how it matched.
type ShortlistedTerm struct {
	Term schema.Term
	Kind MatchKind
}

// TermShortlist is the bounded set of concrete terms a single fuzzy
// QueryTerm expanded to, ordered by MatchKind (exact, 1-typo, 2-typo,
// prefix-only), then by edit distance, then lexicographically.
type TermShortlist struct {
	Terms []ShortlistedTerm
}

// ShortlistIDs maps a term's dictionary key (schema.Term.Key()) back to
// its TermID within a TermShortlist, for fast membership checks while
// scanning postings.
type ShortlistIDs map[string]TermID

// TextClause is one query-term's contribution to a TermListBitsetQuery:
// either a single exact term or the disjunction of a fuzzy shortlist. IDs
// maps each Shortlist term's dictionary key back to its index in Shortlist,
// so evaluateClauseLocked can record which concrete term won a match by
// TermID instead of copying the schema.Term itself into the hot path.
type TextClause struct {
	Exact     *schema.Term
	Shortlist []ShortlistedTerm
	IDs       ShortlistIDs
}

// TermListBitsetQuery is the bitset-expressible form of a CompiledQuery
// once every fuzzy QueryTerm has been resolved to its concrete shortlist:
// a disk Searcher only ever needs to OR/AND together postings bitmaps for
// literal terms, never compute edit distance itself.
type TermListBitsetQuery struct {
	TextClauses      []TextClause
	FilterConditions []schema.Term
}

// FieldStatsDelta is the signed change this memory index makes to one
// field's aggregate statistics.
type FieldStatsDelta struct {
	TotalLengthDelta int64
}

// StatsDiff is the full signed delta a memory index contributes on top of
// a disk segment's own BM25 statistics.
type StatsDiff struct {
	DocCountDelta    int64
	FieldStats       map[schema.FieldID]FieldStatsDelta
	TermDocFreqDelta map[string]int64 // schema.Term.Key() -> delta
}
