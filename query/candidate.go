package query

import "github.com/dociq/searchindex/schema"

// Revision identifies one scored document revision.
type Revision struct {
	ID           schema.InternalID
	CreationTime schema.CreationTime
	Score        float32
}

// BM25Hit is one matched term occurrence on a candidate's search field,
// carrying what a Ranker needs to add its BM25 contribution: the
// concrete dictionary term (for IDF lookup) and how many times it
// occurs in this document (term frequency).
type BM25Hit struct {
	Term schema.Term
	TF   int
}

// Candidate is a single match produced by either tier (memory or disk),
// carrying enough information for the Ranker to score it.
type Candidate struct {
	Revision Revision

	// MatchedExact/MatchedFuzzy/MatchedPrefixOnly count, per query token,
	// how it was satisfied — used by the Ranker's fuzzy-term bonus.
	MatchedExact      int
	MatchedFuzzy      map[uint8]int // distance -> count
	MatchedPrefixOnly int

	// BM25Hits and SearchFieldLen are the raw ingredients a Ranker needs
	// to compute this candidate's BM25 score against combined (memory +
	// disk) statistics; neither tier can normalize its own contribution
	// in isolation since IDF depends on global document frequency.
	BM25Hits       []BM25Hit
	SearchFieldLen int
}

// CandidateRevision is the final, ranked form of a Candidate returned to
// the caller.
type CandidateRevision struct {
	Revision     Revision
	RankingScore float32
}

// IndexKeyBytes encodes (-ranking_score, -creation_time, id) so that
// lexicographic byte order equals descending relevance — the sort key a
// caller paginates search results by.
type IndexKeyBytes []byte
