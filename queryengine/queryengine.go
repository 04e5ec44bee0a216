// Package queryengine orchestrates one search across the memory delta and
// a disk segment: shortlist, stats diff, tombstone-driven overfetch
// sizing, disk dispatch, memory query against the memory-side shortlist,
// tombstone filtering, truncate, then rank.
package queryengine

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	searchindex "github.com/dociq/searchindex"
	"github.com/dociq/searchindex/memindex"
	"github.com/dociq/searchindex/observability"
	"github.com/dociq/searchindex/query"
	"github.com/dociq/searchindex/ranking"
	"github.com/dociq/searchindex/schema"
	"github.com/dociq/searchindex/searcher"
)

// Engine binds a Schema to the memory and disk tiers it searches across.
type Engine struct {
	schema  *schema.Schema
	memory  *memindex.MemoryIndex
	disk    searcher.Searcher
	obs     observability.Observer
}

// New builds an Engine. obs may be nil (defaults to observability.Nop).
func New(s *schema.Schema, memory *memindex.MemoryIndex, disk searcher.Searcher, obs observability.Observer) *Engine {
	if obs == nil {
		obs = observability.Nop
	}
	return &Engine{schema: s, memory: memory, disk: disk, obs: obs}
}

// Search executes compiled against the memory delta and the disk
// segment, and returns at most searchindex.MaxCandidateRevisions ranked
// CandidateRevisions.
func (e *Engine) Search(ctx context.Context, compiled query.CompiledQuery) ([]query.CandidateRevision, error) {
	// 1. Shortlist each fuzzy/prefix QueryTerm against the memory
	// dictionary, and build the literal bitset form of the query.
	memoryBitset := e.memory.BuildTermListBitsetQuery(compiled)

	// 2. Fetch the memory index's own signed BM25 statistics delta, which
	// covers every term it has seen, not only the shortlisted ones (folded
	// into combined stats once the disk segment responds in step 4).
	memoryStatsDiff := e.memory.StatsDiff()

	// 3. Tombstoned documents that would have matched this query drive how
	// much extra we must overfetch from disk so that after filtering we
	// still end up with enough candidates to fill MaxCandidateRevisions.
	tombstoned := e.memory.MatchingTombstones(memoryBitset)
	overfetchDelta := len(tombstoned)
	e.obs.OverfetchDelta(overfetchDelta)
	limit := searchindex.MaxCandidateRevisions + overfetchDelta

	// 4. Disk query, handed the literal bitset query and the combined
	// limit; the disk Searcher is otherwise oblivious to memory's
	// existence.
	diskResult, err := e.disk.Search(ctx, searcher.Request{Query: memoryBitset, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("queryengine: disk search: %w", err)
	}

	// 5. Memory query. Query re-resolves compiled against the memory
	// dictionary alone; the disk Result carries no shortlist, so no
	// terms that only the disk segment knows are added here.
	memoryCandidates := e.memory.Query(compiled)

	// 6. Filter tombstoned disk matches: a document the disk segment
	// still carries but that memory has since deleted or superseded.
	diskIDs := probeDiskIDs(diskResult.Candidates)
	keptIDs := make(map[schema.InternalID]struct{}, len(diskIDs))
	for _, id := range e.memory.FilterTombstoned(diskIDs) {
		keptIDs[id] = struct{}{}
	}
	diskCandidates := make([]query.Candidate, 0, len(diskResult.Candidates))
	for _, c := range diskResult.Candidates {
		if _, kept := keptIDs[c.Revision.ID]; kept {
			diskCandidates = append(diskCandidates, c)
		}
	}

	// 7. Merge, score against combined statistics, sort by the combined
	// key, and truncate BEFORE ranking — the original's behavior
	// (ranking only ever reorders within this truncated set; it never
	// gets to see candidates cut here). Building the Ranker here (rather
	// than after truncation) is what makes this pre-truncation BM25_score
	// globally consistent instead of each tier's locally-biased one.
	combinedStats := diskResult.Stats.Combine(memoryStatsDiff)
	ranker := ranking.New(combinedStats)

	merged := make([]query.Candidate, 0, len(memoryCandidates)+len(diskCandidates))
	merged = append(merged, memoryCandidates...)
	merged = append(merged, diskCandidates...)
	for i := range merged {
		merged[i].Revision.Score = float32(ranker.ScoreBM25(merged[i]))
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Revision.Score != merged[j].Revision.Score {
			return merged[i].Revision.Score > merged[j].Revision.Score
		}
		if merged[i].Revision.CreationTime != merged[j].Revision.CreationTime {
			return merged[i].Revision.CreationTime > merged[j].Revision.CreationTime
		}
		idI, idJ := merged[i].Revision.ID, merged[j].Revision.ID
		return bytes.Compare(idI[:], idJ[:]) < 0
	})

	originalLen := len(merged)
	if len(merged) > searchindex.MaxCandidateRevisions {
		merged = merged[:searchindex.MaxCandidateRevisions]
	}
	e.obs.DiscardedRevisions(originalLen - len(merged))

	// 8. Rank the truncated set against the same combined BM25 weights
	// and produce the final caller-facing order.
	return ranker.Rank(merged), nil
}

func probeDiskIDs(candidates []query.Candidate) []schema.InternalID {
	ids := make([]schema.InternalID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Revision.ID
	}
	return ids
}
