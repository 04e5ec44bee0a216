// Package localsearcher implements searcher.Searcher against a segment
// laid out as one postings file per literal term on the local
// filesystem: each term's postings are a flat file of little-endian
// (doc ordinal, term frequency) uint32 pairs, bucketed under a directory
// keyed by part of the term so no single directory gets too large. Open
// file descriptors are cached with an LRU, and postings are combined
// with github.com/rekki/go-query (iq.Term/And/Or) rather than
// hand-rolled bitmap math; term frequency is tracked alongside purely
// for BM25 scoring and plays no part in the boolean AND/OR composition.
package localsearcher

import (
	"context"
	"encoding/binary"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	iq "github.com/rekki/go-query"

	"github.com/dociq/searchindex/memindex"
	"github.com/dociq/searchindex/query"
	"github.com/dociq/searchindex/schema"
	"github.com/dociq/searchindex/searcher"
)

const statsFileName = "stats.gob"
const forwardFileName = "forward.gob"

// docMeta is one ordinal's persisted identity, the disk-segment
// counterpart of memindex's docState.
type docMeta struct {
	ID             schema.InternalID
	CreationTime   schema.CreationTime
	SearchFieldLen int
}

// segmentStats is the gob-serializable form of searcher.Statistics.
type segmentStats struct {
	DocCount    int64
	FieldStats  map[schema.FieldID]int64 // total length
	TermDocFreq map[string]int64
}

// LocalSearcher reads one published segment rooted at a directory.
type LocalSearcher struct {
	root string

	mu      sync.Mutex
	fdCache *lru.Cache[string, *os.File]

	forward []docMeta
	stats   searcher.Statistics
}

// Open loads a segment's forward table and statistics from root. The
// segment's postings files are opened lazily, on first query.
func Open(root string, maxOpenFD int) (*LocalSearcher, error) {
	cache, err := lru.NewWithEvict[string, *os.File](maxOpenFD, func(_ string, f *os.File) { _ = f.Close() })
	if err != nil {
		return nil, fmt.Errorf("localsearcher: building fd cache: %w", err)
	}

	ls := &LocalSearcher{root: root, fdCache: cache}

	if err := ls.loadForward(); err != nil {
		return nil, err
	}
	if err := ls.loadStats(); err != nil {
		return nil, err
	}
	return ls, nil
}

func (ls *LocalSearcher) loadForward() error {
	f, err := os.Open(filepath.Join(ls.root, forwardFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("localsearcher: opening forward table: %w", err)
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(&ls.forward)
}

func (ls *LocalSearcher) loadStats() error {
	f, err := os.Open(filepath.Join(ls.root, statsFileName))
	if os.IsNotExist(err) {
		ls.stats = searcher.Statistics{FieldStats: map[schema.FieldID]searcher.FieldStats{}, TermDocFreq: map[string]int64{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("localsearcher: opening stats: %w", err)
	}
	defer f.Close()

	var s segmentStats
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return fmt.Errorf("localsearcher: decoding stats: %w", err)
	}

	ls.stats = searcher.Statistics{
		DocCount:    s.DocCount,
		FieldStats:  make(map[schema.FieldID]searcher.FieldStats, len(s.FieldStats)),
		TermDocFreq: s.TermDocFreq,
	}
	for fieldID, total := range s.FieldStats {
		ls.stats.FieldStats[fieldID] = searcher.FieldStats{TotalLength: total}
	}
	return nil
}

// termPath lays out root/fieldID/bucket/term, with the term hex-encoded
// since filter-field bytes aren't necessarily valid path segments.
func termPath(root string, term schema.Term) string {
	hexTerm := hex.EncodeToString(term.Bytes)
	bucket := "_"
	if len(hexTerm) >= 2 {
		bucket = hexTerm[:2]
	}
	return filepath.Join(root, fmt.Sprintf("f%d", term.FieldID), bucket, hexTerm)
}

func (ls *LocalSearcher) openPostings(term schema.Term) (*os.File, error) {
	fn := termPath(ls.root, term)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if f, ok := ls.fdCache.Get(fn); ok {
		return f, nil
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	ls.fdCache.Add(fn, f)
	return f, nil
}

// postingEntry is one (doc ordinal, term frequency) pair as stored on
// disk: two little-endian uint32s per entry.
type postingEntry struct {
	DocID int32
	TF    uint32
}

// postingEntrySize is the on-disk width of one postingEntry.
const postingEntrySize = 8

// readPostings returns the (ordinal, tf) entries stored for term, or nil
// if the term has no postings file (never indexed).
func (ls *LocalSearcher) readPostings(term schema.Term) ([]postingEntry, error) {
	f, err := ls.openPostings(term)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0)
	buf := make([]byte, 4096)
	for {
		n, err := f.ReadAt(buf, int64(len(data)))
		data = append(data, buf[:n]...)
		if err != nil {
			break
		}
	}

	entries := make([]postingEntry, len(data)/postingEntrySize)
	for i := range entries {
		off := i * postingEntrySize
		entries[i] = postingEntry{
			DocID: int32(binary.LittleEndian.Uint32(data[off : off+4])),
			TF:    binary.LittleEndian.Uint32(data[off+4 : off+8]),
		}
	}
	return entries, nil
}

// termQuery reads term's postings and returns both the iq.Query used to
// compose this term into the boolean AND/OR tree, and a doc-ordinal to
// term-frequency lookup used afterward to attribute BM25 hits to
// whichever concrete term actually produced a match.
func (ls *LocalSearcher) termQuery(term schema.Term) (iq.Query, map[int32]uint32, error) {
	entries, err := ls.readPostings(term)
	if err != nil {
		return nil, nil, err
	}
	docIDs := make([]int32, len(entries))
	tfByDoc := make(map[int32]uint32, len(entries))
	for i, e := range entries {
		docIDs[i] = e.DocID
		tfByDoc[e.DocID] = e.TF
	}
	return iq.Term(1, termPath(ls.root, term), docIDs), tfByDoc, nil
}

// clauseTermInfo is one literal term contributing to a TextClause,
// retained alongside its match kind and per-doc term frequency so a
// matched document can be attributed BM25 hits after the boolean
// AND/OR tree has been collapsed down to a plain doc-ID stream.
type clauseTermInfo struct {
	term    schema.Term
	kind    memindex.MatchKind
	tfByDoc map[int32]uint32
}

// Search implements searcher.Searcher. It composes the literal bitset
// query with github.com/rekki/go-query (iq.And across clauses/filters,
// iq.Or within a fuzzy clause's shortlist), then walks the result to
// collect ordinals, attributing each matched document its BM25 hits by
// re-consulting the per-term postings loaded while building the query.
func (ls *LocalSearcher) Search(ctx context.Context, req searcher.Request) (searcher.Result, error) {
	var clauses []iq.Query
	var clauseTerms [][]clauseTermInfo

	for _, tc := range req.Query.TextClauses {
		type termKind struct {
			term schema.Term
			kind memindex.MatchKind
		}
		var terms []termKind
		if tc.Exact != nil {
			terms = []termKind{{term: *tc.Exact, kind: memindex.MatchExact}}
		} else {
			for _, st := range tc.Shortlist {
				terms = append(terms, termKind{term: st.Term, kind: st.Kind})
			}
		}
		if len(terms) == 0 {
			return searcher.Result{Stats: ls.stats}, nil
		}

		subQueries := make([]iq.Query, 0, len(terms))
		infos := make([]clauseTermInfo, 0, len(terms))
		for _, t := range terms {
			q, tfByDoc, err := ls.termQuery(t.term)
			if err != nil {
				return searcher.Result{}, fmt.Errorf("localsearcher: reading postings for term: %w", err)
			}
			subQueries = append(subQueries, q)
			infos = append(infos, clauseTermInfo{term: t.term, kind: t.kind, tfByDoc: tfByDoc})
		}
		clauseTerms = append(clauseTerms, infos)
		if len(subQueries) == 1 {
			clauses = append(clauses, subQueries[0])
		} else {
			clauses = append(clauses, iq.Or(subQueries...))
		}
	}

	for _, fc := range req.Query.FilterConditions {
		q, _, err := ls.termQuery(fc)
		if err != nil {
			return searcher.Result{}, fmt.Errorf("localsearcher: reading postings for filter: %w", err)
		}
		clauses = append(clauses, q)
	}

	if len(clauses) == 0 {
		return searcher.Result{Stats: ls.stats}, nil
	}

	var root iq.Query
	if len(clauses) == 1 {
		root = clauses[0]
	} else {
		root = iq.And(clauses...)
	}

	candidates := make([]query.Candidate, 0, req.Limit)
	for root.Next() != iq.NO_MORE {
		if err := ctx.Err(); err != nil {
			return searcher.Result{}, err
		}
		rawDid := root.GetDocId()
		if int(rawDid) < 0 || int(rawDid) >= len(ls.forward) {
			continue
		}
		did := int32(rawDid)
		meta := ls.forward[did]
		c := query.Candidate{
			Revision:       query.Revision{ID: meta.ID, CreationTime: meta.CreationTime},
			MatchedFuzzy:   map[uint8]int{},
			SearchFieldLen: meta.SearchFieldLen,
		}
		for _, infos := range clauseTerms {
			best, ok := strongestClauseMatch(infos, did)
			if !ok {
				continue
			}
			switch best.kind {
			case memindex.MatchExact:
				c.MatchedExact++
			case memindex.MatchFuzzy1:
				c.MatchedFuzzy[1]++
			case memindex.MatchFuzzy2:
				c.MatchedFuzzy[2]++
			case memindex.MatchPrefixOnly:
				c.MatchedPrefixOnly++
			}
			c.BM25Hits = append(c.BM25Hits, query.BM25Hit{Term: best.term, TF: int(best.tfByDoc[did])})
		}
		candidates = append(candidates, c)
		if req.Limit > 0 && len(candidates) >= req.Limit {
			break
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Revision.CreationTime > candidates[j].Revision.CreationTime
	})

	return searcher.Result{Candidates: candidates, Stats: ls.stats}, nil
}

// strongestClauseMatch returns the term in infos with the strongest
// (lowest-valued) MatchKind that actually has a postings entry for did.
func strongestClauseMatch(infos []clauseTermInfo, did int32) (clauseTermInfo, bool) {
	var best clauseTermInfo
	found := false
	for _, info := range infos {
		if _, ok := info.tfByDoc[did]; !ok {
			continue
		}
		if !found || info.kind < best.kind {
			best = info
			found = true
		}
	}
	return best, found
}

// Close flushes the fd cache.
func (ls *LocalSearcher) Close() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.fdCache.Purge()
	return nil
}
