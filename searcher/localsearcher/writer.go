package localsearcher

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dociq/searchindex/schema"
)

// Writer builds a segment on disk: one append-only postings file per
// literal term, bucketed the way termPath lays them out, plus a forward
// table and aggregate statistics file read back by Open. An open-file
// cache per term backs it, appending little-endian (doc ordinal, term
// frequency) uint32 pairs at 8-byte-aligned offsets.
type Writer struct {
	root      string
	maxOpenFD int
	fdCache   map[string]*os.File

	forward []docMeta
	stats   segmentStats
}

// NewWriter creates a segment writer rooted at root. root must be empty
// or not yet exist.
func NewWriter(root string, maxOpenFD int) (*Writer, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("localsearcher: creating segment root: %w", err)
	}
	return &Writer{
		root:      root,
		maxOpenFD: maxOpenFD,
		fdCache:   map[string]*os.File{},
		stats: segmentStats{
			FieldStats:  map[schema.FieldID]int64{},
			TermDocFreq: map[string]int64{},
		},
	}, nil
}

// Add appends one document to the segment, assigning it the next
// ordinal. A term's postings entry carries its in-document frequency
// (the count of DocumentTerm occurrences sharing that term, naturally
// produced by the analyzer emitting one occurrence per token position)
// so the Searcher can score BM25 without a second pass over the source
// document.
func (w *Writer) Add(id schema.InternalID, creationTime schema.CreationTime, terms []schema.DocumentTerm, lengths schema.DocumentLengths) error {
	did := int32(len(w.forward))
	w.forward = append(w.forward, docMeta{ID: id, CreationTime: creationTime, SearchFieldLen: lengths.SearchFieldLen})
	w.stats.DocCount++

	tf := map[string]uint32{}
	termByKey := map[string]schema.Term{}
	for _, dt := range terms {
		key := dt.Term.Key()
		tf[key]++
		termByKey[key] = dt.Term
	}
	for key, count := range tf {
		if err := w.appendPosting(termByKey[key], did, count); err != nil {
			return err
		}
		w.stats.TermDocFreq[key]++
	}

	w.stats.FieldStats[schema.FieldIDSearch] += int64(lengths.SearchFieldLen)
	return nil
}

// appendPosting writes a (did, tf) postings entry into term's postings
// file: open-or-reuse a cached fd, evicting all cached fds once the
// cache grows past maxOpenFD, then write at the next 8-byte aligned
// offset (two little-endian uint32s: doc ordinal, term frequency).
func (w *Writer) appendPosting(term schema.Term, did int32, tf uint32) error {
	fn := termPath(w.root, term)

	f, ok := w.fdCache[fn]
	if !ok {
		if len(w.fdCache) > w.maxOpenFD {
			for _, fd := range w.fdCache {
				_ = fd.Close()
			}
			w.fdCache = map[string]*os.File{}
		}
		if err := os.MkdirAll(filepath.Dir(fn), 0o700); err != nil {
			return fmt.Errorf("localsearcher: creating term bucket dir: %w", err)
		}
		var err error
		f, err = os.OpenFile(fn, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return fmt.Errorf("localsearcher: opening postings file: %w", err)
		}
		w.fdCache[fn] = f
	}

	off, err := f.Seek(0, os.SEEK_END)
	if err != nil {
		return err
	}

	b := make([]byte, postingEntrySize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(did))
	binary.LittleEndian.PutUint32(b[4:8], tf)
	_, err = f.WriteAt(b, (off/postingEntrySize)*postingEntrySize)
	return err
}

// Close flushes the forward table and statistics and closes every open
// postings file.
func (w *Writer) Close() error {
	for _, f := range w.fdCache {
		_ = f.Close()
	}

	if err := writeGob(filepath.Join(w.root, forwardFileName), w.forward); err != nil {
		return err
	}
	return writeGob(filepath.Join(w.root, statsFileName), w.stats)
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("localsearcher: creating %s: %w", path, err)
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(v)
}
