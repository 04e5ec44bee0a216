// Package memindex implements the in-memory delta of the hybrid index:
// the inverted index of documents changed after a checkpoint timestamp,
// with tombstones and signed BM25 statistics deltas. Its
// postings/forward-array shape is a forward slice of documents indexed by
// a monotonically assigned ordinal, with per-term postings keyed off that
// ordinal, backed by roaring bitmaps and extended with an edit log,
// tombstones and BM25 deltas so it can be merged against a disk segment
// at query time. The edit log drains as a new disk segment is published
// (Drain), so memory never carries a document the disk tier already owns
// outright.
package memindex

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/dociq/searchindex/schema"
)

// docState is the folded-to-tip state of one live memory document.
type docState struct {
	id           schema.InternalID
	ordinal      uint32
	creationTime schema.CreationTime
	terms        []schema.DocumentTerm
	lengths      schema.DocumentLengths

	// countedInDocDelta records whether this document's chain of Puts
	// contributed +1 to delta.docCountDelta (true unless it was already
	// on disk the first time it was ever put into memory), so Delete and
	// Drain can undo exactly the count they added, never more.
	countedInDocDelta bool
}

// tombstoneEntry is what a MemoryIndex remembers about a document after
// deleting it: enough to answer whether a later query would have matched
// it, without keeping its postings live, and enough to undo whatever
// stats adjustment Delete made once Drain learns the new disk segment no
// longer carries it at all.
type tombstoneEntry struct {
	ts      schema.Timestamp
	terms   []schema.DocumentTerm
	lengths schema.DocumentLengths

	// docCountDecremented records whether deleting this document already
	// subtracted its contribution from delta.docCountDelta/termDocFreqDelta
	// (it did whenever the document's prior state, live or disk-supplied,
	// was known) so Drain can reverse exactly that adjustment.
	docCountDecremented bool
}

// Edit is one entry in the append-only by_ts log: a document transitioning
// from `before` to `after` at `ts`. Before==nil means an insert; after==nil
// means a delete.
type Edit struct {
	DocID  schema.InternalID
	Before *docState
	After  *docState
	Ts     schema.Timestamp
}

// postingList is the postings for one concrete term: which live doc
// ordinals contain it (a roaring bitmap) and, for search terms, each
// ordinal's term frequency and position list.
type postingList struct {
	docs      *roaring.Bitmap
	freq      map[uint32]uint32
	positions map[uint32][]uint32 // empty for filter terms
}

func newPostingList() *postingList {
	return &postingList{docs: roaring.New(), freq: map[uint32]uint32{}, positions: map[uint32][]uint32{}}
}

// bm25Delta is the signed contribution this memory state makes to global
// BM25 statistics, split by field for length normalization and by term
// for document frequency.
type bm25Delta struct {
	docCountDelta    int64
	totalLengthDelta map[schema.FieldID]int64
	termDocFreqDelta map[string]int64 // schema.Term.Key() -> delta
}

func newBM25Delta() *bm25Delta {
	return &bm25Delta{
		totalLengthDelta: map[schema.FieldID]int64{},
		termDocFreqDelta: map[string]int64{},
	}
}

// MemoryIndex is the in-RAM delta of documents changed after checkpointTs.
// Safe for concurrent readers; a single writer is assumed.
type MemoryIndex struct {
	mu sync.RWMutex

	schema       *schema.Schema
	checkpointTs schema.Timestamp

	log []Edit // append-only, strictly increasing Ts (single-writer invariant)

	// forward/forwardByID/postings describe the state folded to the tip
	// of the log (the most recently applied edit). forward grows by
	// appending a fresh ordinal for every Put; a deleted or superseded
	// slot is nilled rather than reused.
	forward     []*docState // nil entry == no longer live at this ordinal
	forwardByID map[schema.InternalID]uint32
	postings    map[string]*postingList // schema.Term.Key() -> postings

	// tombstones records documents deleted in memory: the ts of their
	// first delete and the terms they carried at that point, so a query
	// can tell whether a given tombstoned document would have matched at
	// all (needed to size disk overfetch before the disk round-trip
	// happens). A later Put clears the tombstone. A disk document
	// superseded by a live memory revision is not recorded here; it is
	// recognised through forwardByID instead (see FilterTombstoned).
	tombstones map[schema.InternalID]tombstoneEntry

	delta *bm25Delta

	// sortedSearchTerms is every distinct term string seen on the search
	// field, kept lexicographically sorted for the fuzzy shortlist scan.
	sortedSearchTerms []string
	searchTermSet     map[string]struct{}
}

// New creates a MemoryIndex rooted at checkpointTs: it holds only edits
// strictly after that timestamp.
func New(s *schema.Schema, checkpointTs schema.Timestamp) *MemoryIndex {
	return &MemoryIndex{
		schema:        s,
		checkpointTs:  checkpointTs,
		forwardByID:   map[schema.InternalID]uint32{},
		postings:      map[string]*postingList{},
		tombstones:    map[schema.InternalID]tombstoneEntry{},
		delta:         newBM25Delta(),
		searchTermSet: map[string]struct{}{},
	}
}

// CheckpointTs returns the timestamp the memory index was created from.
func (m *MemoryIndex) CheckpointTs() schema.Timestamp { return m.checkpointTs }

// Put applies an insert-or-update edit at ts: doc replaces whatever was
// previously live for id, if anything. wasOnDisk tells Put whether id
// already contributes to the disk segment's own statistics, so the
// in-memory doc-count delta doesn't double-count an update of an
// already-indexed document.
func (m *MemoryIndex) Put(id schema.InternalID, ts schema.Timestamp, creationTime schema.CreationTime, doc schema.Document, wasOnDisk bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	terms := m.schema.IndexIntoTerms(doc)
	lengths := m.schema.DocumentLengths(doc)

	before := m.detachLiveLocked(id)
	countedBefore := false
	if before != nil {
		m.applyPostingsLocked(before.ordinal, before.terms, -1)
		m.applyLengthDeltaLocked(before.lengths, -1)
		countedBefore = before.countedInDocDelta
	}
	delete(m.tombstones, id) // a live Put always supersedes any prior tombstone

	ordinal := uint32(len(m.forward))
	counted := countedBefore || (before == nil && !wasOnDisk)
	next := &docState{id: id, ordinal: ordinal, creationTime: creationTime, terms: terms, lengths: lengths, countedInDocDelta: counted}
	m.forward = append(m.forward, next)
	m.forwardByID[id] = ordinal
	m.applyPostingsLocked(ordinal, terms, +1)
	m.applyLengthDeltaLocked(lengths, +1)

	if before == nil && !wasOnDisk {
		m.delta.docCountDelta++
	}

	m.log = append(m.log, Edit{DocID: id, Before: before, After: next, Ts: ts})
}

// Delete tombstones id as of ts: it is removed from the live memory
// postings (if present) and recorded so disk-tier matches for it are
// filtered out at query time.
//
// diskTerms/diskLengths let a caller that knows id's current disk-side
// state (a document never touched by Put in this memory index, so before
// is nil) supply what the disk segment contributes, so the combined BM25
// statistics are offset correctly instead of still counting a document
// this tombstone has removed from the result set. Pass nil/zero when that
// state isn't known; MatchingTombstones then conservatively assumes the
// tombstone matches any query, which only affects overfetch sizing, never
// correctness of the final filtered result set.
func (m *MemoryIndex) Delete(id schema.InternalID, ts schema.Timestamp, diskTerms []schema.DocumentTerm, diskLengths schema.DocumentLengths) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, alreadyTombstoned := m.tombstones[id]

	before := m.detachLiveLocked(id)

	entry := tombstoneEntry{ts: ts}
	switch {
	case before != nil:
		// terms are known exactly: this document lived in memory right
		// up to its delete.
		m.applyPostingsLocked(before.ordinal, before.terms, -1)
		m.applyLengthDeltaLocked(before.lengths, -1)
		entry.terms = before.terms
		entry.lengths = before.lengths
		if before.countedInDocDelta {
			m.delta.docCountDelta--
			entry.docCountDecremented = true
		}
	case !alreadyTombstoned && diskTerms != nil:
		// Never live in memory, but the caller supplies what the disk
		// side contributes for id, so the delta can offset it directly.
		m.delta.docCountDelta--
		entry.docCountDecremented = true
		entry.terms = diskTerms
		entry.lengths = diskLengths
		seenTermKeys := map[string]bool{}
		for _, dt := range diskTerms {
			key := dt.Term.Key()
			if !seenTermKeys[key] {
				seenTermKeys[key] = true
				m.delta.termDocFreqDelta[key]--
			}
		}
		m.applyLengthDeltaLocked(diskLengths, -1)
	}

	if !alreadyTombstoned {
		m.tombstones[id] = entry
	}

	m.log = append(m.log, Edit{DocID: id, Before: before, After: nil, Ts: ts})
}

// Drain advances the checkpoint to newCheckpointTs, the timestamp of a disk
// segment that has just been published: every edit with ts <= newCheckpointTs
// is now reflected on disk, so memory forgets the documents that edit
// settled — as long as nothing touched them again after the checkpoint.
//
// A document settled live (its last edit at-or-before the checkpoint was a
// Put) is dropped from the in-memory postings/forward state entirely and its
// doc-count contribution undone, since the new disk segment now carries it.
// A document settled deleted (its last edit at-or-before the checkpoint was
// a Delete) has whatever stats adjustment that Delete made undone and its
// tombstone cleared, since the new disk segment no longer carries it either
// and there is nothing left to filter out of disk results. A document edited
// again after newCheckpointTs is left untouched; its current bookkeeping
// already accounts for everything up to its latest edit.
func (m *MemoryIndex) Drain(newCheckpointTs schema.Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newCheckpointTs <= m.checkpointTs {
		return
	}

	cut := 0
	baseline := map[schema.InternalID]*docState{}
	for i, e := range m.log {
		if e.Ts > newCheckpointTs {
			break
		}
		cut = i + 1
		baseline[e.DocID] = e.After
	}
	m.log = append([]Edit(nil), m.log[cut:]...)
	m.checkpointTs = newCheckpointTs

	for id, after := range baseline {
		ordinal, stillLive := m.forwardByID[id]
		var cur *docState
		if stillLive {
			cur = m.forward[ordinal]
		}

		if cur != after {
			continue // edited again after the checkpoint; carried forward as-is
		}

		if after != nil {
			// Settled live: the new disk segment now owns this document's
			// postings and statistics outright.
			m.applyPostingsLocked(after.ordinal, after.terms, -1)
			m.applyLengthDeltaLocked(after.lengths, -1)
			if after.countedInDocDelta {
				m.delta.docCountDelta--
			}
			delete(m.forwardByID, id)
			m.forward[after.ordinal] = nil
			delete(m.tombstones, id)
			continue
		}

		// Settled deleted: the new disk segment no longer carries this
		// document at all, so whatever Delete subtracted to offset its old
		// disk contribution is no longer needed.
		entry, tombstoned := m.tombstones[id]
		if !tombstoned {
			continue
		}
		if entry.docCountDecremented {
			m.delta.docCountDelta++
			seenTermKeys := map[string]bool{}
			for _, dt := range entry.terms {
				key := dt.Term.Key()
				if !seenTermKeys[key] {
					seenTermKeys[key] = true
					m.delta.termDocFreqDelta[key]++
				}
			}
			m.applyLengthDeltaLocked(entry.lengths, +1)
		}
		delete(m.tombstones, id)
	}
}

// detachLiveLocked removes id's current live state (if any) from forward
// and forwardByID, returning what was there. Caller holds mu.
func (m *MemoryIndex) detachLiveLocked(id schema.InternalID) *docState {
	ordinal, ok := m.forwardByID[id]
	if !ok {
		return nil
	}
	before := m.forward[ordinal]
	m.forward[ordinal] = nil
	delete(m.forwardByID, id)
	return before
}

// applyPostingsLocked adds (sign=+1) or removes (sign=-1) ordinal's terms
// from the postings index and the BM25 term-doc-frequency delta.
func (m *MemoryIndex) applyPostingsLocked(ordinal uint32, terms []schema.DocumentTerm, sign int64) {
	seenTermKeys := map[string]bool{} // doc-frequency counts a term once per doc
	for _, dt := range terms {
		key := dt.Term.Key()
		pl, ok := m.postings[key]
		if !ok {
			pl = newPostingList()
			m.postings[key] = pl
		}

		if sign > 0 {
			pl.docs.Add(ordinal)
			pl.freq[ordinal]++
			if !dt.IsFilter {
				pl.positions[ordinal] = append(pl.positions[ordinal], dt.Position)
			}
		} else {
			pl.freq[ordinal]--
			if pl.freq[ordinal] <= 0 {
				pl.docs.Remove(ordinal)
				delete(pl.freq, ordinal)
				delete(pl.positions, ordinal)
			}
		}

		if !seenTermKeys[key] {
			seenTermKeys[key] = true
			m.delta.termDocFreqDelta[key] += sign
		}

		if !dt.IsFilter {
			m.trackSearchTermLocked(string(dt.Term.Bytes))
		}
	}
}

// applyLengthDeltaLocked folds lengths into the per-field total-length
// BM25 delta, signed by sign (+1 add, -1 remove).
func (m *MemoryIndex) applyLengthDeltaLocked(lengths schema.DocumentLengths, sign int64) {
	m.delta.totalLengthDelta[m.schema.SearchFieldID()] += sign * int64(lengths.SearchFieldLen)
	for path, l := range lengths.FilterFieldLens {
		fieldID, ok := m.schema.FilterFieldID(path)
		if !ok {
			continue
		}
		m.delta.totalLengthDelta[fieldID] += sign * int64(l)
	}
}

// trackSearchTermLocked inserts term into sortedSearchTerms if new. A term
// is never removed from this set even once its last occurrence is
// deleted: the fuzzy shortlist scan over a term that no longer has live
// postings is harmless (it contributes an empty bitset) and removal would
// require an expensive re-scan of remaining postings to prove no
// occurrence survives.
func (m *MemoryIndex) trackSearchTermLocked(term string) {
	if _, ok := m.searchTermSet[term]; ok {
		return
	}
	m.searchTermSet[term] = struct{}{}
	i := sort.SearchStrings(m.sortedSearchTerms, term)
	m.sortedSearchTerms = append(m.sortedSearchTerms, "")
	copy(m.sortedSearchTerms[i+1:], m.sortedSearchTerms[i:])
	m.sortedSearchTerms[i] = term
}
