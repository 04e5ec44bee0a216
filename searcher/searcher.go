// Package searcher defines the external contract a disk-segment
// implementation must satisfy to participate in QueryEngine's merge:
// given a CompiledQuery already resolved to literal term IDs, return a
// sorted page of Candidates plus this segment's own BM25 statistics, so
// QueryEngine can combine them with the memory tier's signed delta
// without the Searcher needing to know memory exists.
package searcher

import (
	"context"

	"github.com/dociq/searchindex/memindex"
	"github.com/dociq/searchindex/query"
	"github.com/dociq/searchindex/schema"
)

// FieldStats is one field's aggregate statistics on a disk segment, used
// for BM25 length normalization.
type FieldStats struct {
	TotalLength int64
}

// Statistics is a disk segment's own BM25 inputs: total live document
// count, per-field total length, and per-term document frequency. Its
// shape exactly mirrors memindex.StatsDiff so the two can be folded
// together by simple addition.
type Statistics struct {
	DocCount   int64
	FieldStats map[schema.FieldID]FieldStats
	TermDocFreq map[string]int64 // schema.Term.Key() -> doc frequency
}

// Combine folds a memory index's signed delta on top of this segment's
// own statistics, producing the global statistics a Ranker computes IDF
// and length normalization from.
func (s Statistics) Combine(delta memindex.StatsDiff) Statistics {
	out := Statistics{
		DocCount:    s.DocCount + delta.DocCountDelta,
		FieldStats:  make(map[schema.FieldID]FieldStats, len(s.FieldStats)),
		TermDocFreq: make(map[string]int64, len(s.TermDocFreq)),
	}
	for fieldID, fs := range s.FieldStats {
		out.FieldStats[fieldID] = fs
	}
	for fieldID, d := range delta.FieldStats {
		fs := out.FieldStats[fieldID]
		fs.TotalLength += d.TotalLengthDelta
		out.FieldStats[fieldID] = fs
	}
	for k, v := range s.TermDocFreq {
		out.TermDocFreq[k] = v
	}
	for k, v := range delta.TermDocFreqDelta {
		out.TermDocFreq[k] += v
	}
	return out
}

// Request is a disk-segment query: a literal bitset query (fuzzy terms
// already resolved to concrete dictionary terms by the caller) plus how
// many candidate revisions to return at most.
type Request struct {
	Query memindex.TermListBitsetQuery
	Limit int
}

// Result is what a Searcher returns for one Request: candidates sorted by
// the segment's own internal notion of relevance (used only to decide
// which candidates to keep under Limit, not as the final ranking), and
// the segment's own BM25 statistics at the time of the read.
type Result struct {
	Candidates []query.Candidate
	Stats      Statistics
}

// Searcher is implemented by a concrete on-disk segment reader. One
// instance is bound to one segment; the QueryEngine owns fanning a single
// logical query out to however many segments/searchers a deployment uses.
type Searcher interface {
	Search(ctx context.Context, req Request) (Result, error)
}
