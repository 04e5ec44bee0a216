package memindex

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/dociq/searchindex/query"
	"github.com/dociq/searchindex/schema"
)

// Query executes compiled against this memory index's live postings and
// returns one query.Candidate per live document that satisfies every
// filter condition and every text clause (clauses AND together; a
// clause's own shortlist ORs together). It does not assign a ranking
// score — that is the Ranker's job once memory and disk results are
// merged against combined BM25 statistics.
func (m *MemoryIndex) Query(compiled query.CompiledQuery) []query.Candidate {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bitset := m.buildTermListBitsetQueryLocked(compiled)

	result := m.liveOrdinalsLocked()
	for _, fc := range bitset.FilterConditions {
		result = roaring.And(result, m.postingsBitmapLocked(fc))
	}

	matchByOrdinal := map[uint32]*query.Candidate{}
	for _, clause := range bitset.TextClauses {
		clauseSet, strongest, bestID := m.evaluateClauseLocked(clause)
		result = roaring.And(result, clauseSet)
		for ordinal, kind := range strongest {
			if !result.Contains(ordinal) {
				continue
			}
			c, ok := matchByOrdinal[ordinal]
			if !ok {
				c = &query.Candidate{MatchedFuzzy: map[uint8]int{}}
				matchByOrdinal[ordinal] = c
			}
			switch kind {
			case MatchExact:
				c.MatchedExact++
			case MatchFuzzy1:
				c.MatchedFuzzy[1]++
			case MatchFuzzy2:
				c.MatchedFuzzy[2]++
			case MatchPrefixOnly:
				c.MatchedPrefixOnly++
			}

			var term schema.Term
			if clause.Exact != nil {
				term = *clause.Exact
			} else {
				term = clause.Shortlist[bestID[ordinal]].Term
			}
			tf := 0
			if pl, ok := m.postings[term.Key()]; ok {
				tf = int(pl.freq[ordinal])
			}
			c.BM25Hits = append(c.BM25Hits, query.BM25Hit{Term: term, TF: tf})
		}
	}

	candidates := make([]query.Candidate, 0, result.GetCardinality())
	it := result.Iterator()
	for it.HasNext() {
		ordinal := it.Next()
		doc := m.forward[ordinal]
		if doc == nil {
			continue
		}
		c := matchByOrdinal[ordinal]
		if c == nil {
			c = &query.Candidate{MatchedFuzzy: map[uint8]int{}}
		}
		c.Revision = query.Revision{ID: doc.id, CreationTime: doc.creationTime}
		c.SearchFieldLen = doc.lengths.SearchFieldLen
		candidates = append(candidates, *c)
	}
	return candidates
}

// evaluateClauseLocked ORs together the postings of every term in clause
// and returns, per matching ordinal, the strongest MatchKind (lowest
// value: Exact beats Fuzzy1 beats Fuzzy2 beats PrefixOnly) any term in the
// clause achieved for it, plus the TermID (clause.IDs[term.Key()]) of
// whichever concrete term produced that strongest match — the term whose
// IDF a Ranker looks up, since a fuzzy clause's shortlisted terms each have
// their own document frequency. A bare exact clause carries no ShortlistIDs
// (it has exactly one candidate term), so its matches are recorded under
// the zero TermID and resolved directly against clause.Exact by the caller.
func (m *MemoryIndex) evaluateClauseLocked(clause TextClause) (*roaring.Bitmap, map[uint32]MatchKind, map[uint32]TermID) {
	set := roaring.New()
	best := map[uint32]MatchKind{}
	bestID := map[uint32]TermID{}

	add := func(term schema.Term, kind MatchKind, id TermID) {
		pl, ok := m.postings[term.Key()]
		if !ok {
			return
		}
		set.Or(pl.docs)
		it := pl.docs.Iterator()
		for it.HasNext() {
			ordinal := it.Next()
			if cur, ok := best[ordinal]; !ok || kind < cur {
				best[ordinal] = kind
				bestID[ordinal] = id
			}
		}
	}

	if clause.Exact != nil {
		add(*clause.Exact, MatchExact, 0)
	}
	for _, st := range clause.Shortlist {
		add(st.Term, st.Kind, clause.IDs[st.Term.Key()])
	}

	return set, best, bestID
}

// liveOrdinalsLocked returns the bitmap of every currently-live ordinal.
func (m *MemoryIndex) liveOrdinalsLocked() *roaring.Bitmap {
	b := roaring.New()
	for ordinal, doc := range m.forward {
		if doc != nil {
			b.Add(uint32(ordinal))
		}
	}
	return b
}

// postingsBitmapLocked returns the (possibly empty) docs bitmap for a
// literal term.
func (m *MemoryIndex) postingsBitmapLocked(term schema.Term) *roaring.Bitmap {
	pl, ok := m.postings[term.Key()]
	if !ok {
		return roaring.New()
	}
	return pl.docs
}

// FilterTombstoned filters a disk segment's matching IDs down to those
// NOT tombstoned in memory: a document the disk segment still indexes
// but that was deleted, or superseded by a newer memory revision, after
// the segment's checkpoint.
func (m *MemoryIndex) FilterTombstoned(diskIDs []schema.InternalID) []schema.InternalID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]schema.InternalID, 0, len(diskIDs))
	for _, id := range diskIDs {
		if _, tombstoned := m.tombstones[id]; tombstoned {
			continue
		}
		if _, supersededInMemory := m.forwardByID[id]; supersededInMemory {
			// The live memory copy is authoritative; the disk copy's
			// older revision must not also surface as a candidate.
			continue
		}
		out = append(out, id)
	}
	return out
}

// MatchingTombstones returns the IDs of every tombstoned document whose
// last known terms satisfy bitset (or whose terms are unknown, in which
// case it is conservatively assumed to match). This sizes how much the
// engine must overfetch from disk before the round trip happens, mirroring
// step 3 of the original search() — tombstones are checked against the
// query directly, not against whatever the disk segment eventually
// returns.
func (m *MemoryIndex) MatchingTombstones(bitset TermListBitsetQuery) []schema.InternalID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schema.InternalID
	for id, entry := range m.tombstones {
		if entry.terms == nil {
			out = append(out, id)
			continue
		}
		if tombstoneMatches(entry.terms, bitset) {
			out = append(out, id)
		}
	}
	return out
}

func tombstoneMatches(terms []schema.DocumentTerm, bitset TermListBitsetQuery) bool {
	termSet := make(map[string]bool, len(terms))
	for _, dt := range terms {
		termSet[dt.Term.Key()] = true
	}

	for _, fc := range bitset.FilterConditions {
		if !termSet[fc.Key()] {
			return false
		}
	}
	for _, clause := range bitset.TextClauses {
		if clause.Exact != nil {
			if !termSet[clause.Exact.Key()] {
				return false
			}
			continue
		}
		matched := false
		for _, st := range clause.Shortlist {
			if termSet[st.Term.Key()] {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// StatsDiff returns the signed delta this memory index contributes on top
// of a disk segment's own BM25 statistics.
func (m *MemoryIndex) StatsDiff() StatsDiff {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fieldStats := make(map[schema.FieldID]FieldStatsDelta, len(m.delta.totalLengthDelta))
	for fieldID, v := range m.delta.totalLengthDelta {
		fieldStats[fieldID] = FieldStatsDelta{TotalLengthDelta: v}
	}
	termDelta := make(map[string]int64, len(m.delta.termDocFreqDelta))
	for k, v := range m.delta.termDocFreqDelta {
		termDelta[k] = v
	}
	return StatsDiff{
		DocCountDelta:    m.delta.docCountDelta,
		FieldStats:       fieldStats,
		TermDocFreqDelta: termDelta,
	}
}
