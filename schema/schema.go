// Package schema describes the fields of one search index: which field is
// tokenized for full-text search, which fields are filterable by equality,
// and the fixed field-ID assignment on-disk segments depend on.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dociq/searchindex/analyzer"
)

// Wire-visible constants. DON'T CHANGE THESE — a disk segment embeds them,
// and changing any of them silently is a breaking index-format change.
const (
	InternalIDFieldName  = "internal_id"
	TSFieldName          = "ts"
	CreationTimeFieldName = "creation_time"

	// SearchFieldID is the field ID the search field always receives,
	// regardless of how many filter fields sort before it.
	SearchFieldID = 3
)

// FieldID identifies a field within a compiled schema. 0/1/2 are reserved
// for internal_id/ts/creation_time, 3 is always the search field, and
// filter fields start at 4.
type FieldID uint32

const (
	FieldIDInternalID FieldID = 0
	FieldIDTS         FieldID = 1
	FieldIDCreationTime FieldID = 2
	FieldIDSearch     FieldID = SearchFieldID
)

// FieldPath is a dotted path into a document's nested value. Immutable
// once constructed.
type FieldPath string

// Validate reports whether the path is well-formed: non-empty, with no
// empty segment (no leading/trailing/doubled dot). The original Rust
// source treats field paths as pre-validated values from a shared value
// crate; this is the minimal validation a standalone Go port needs at
// construction time instead.
func (p FieldPath) Validate() error {
	if p == "" {
		return fmt.Errorf("field path must not be empty")
	}
	for _, seg := range strings.Split(string(p), ".") {
		if seg == "" {
			return fmt.Errorf("field path %q has an empty segment", p)
		}
	}
	return nil
}

func (p FieldPath) String() string { return string(p) }

// SearchIndexConfig is exactly one search field and a set of filter fields.
type SearchIndexConfig struct {
	SearchField  FieldPath
	FilterFields []FieldPath
}

// Term is a tagged (field, bytes) pair. For the search field the bytes are
// UTF-8 post-tokenization; for filter fields they are the byte-encoded
// filter value.
type Term struct {
	FieldID FieldID
	Bytes   []byte
}

// Key returns a canonical string form suitable for use as a map key.
func (t Term) Key() string {
	return fmt.Sprintf("%d:%s", t.FieldID, t.Bytes)
}

// DocumentTerm is either a positional search term or a positionless
// filter term.
type DocumentTerm struct {
	Term     Term
	Position uint32 // always 0 for filter terms
	IsFilter bool
}

// DocumentLengths carries the lengths used for BM25 length normalization.
type DocumentLengths struct {
	SearchFieldLen   int
	FilterFieldLens  map[FieldPath]int
}

// Document is the minimal view Schema needs of an indexed document: its
// field values by path. Document ingestion itself (the transactional
// store, WAL) is out of scope; the engine only ever reads through this
// interface.
type Document interface {
	// StringField returns the document's value at path if it is a string,
	// and whether a string value was present at all.
	StringField(path FieldPath) (string, bool)
	// FilterFieldBytes returns the canonical byte encoding of the value at
	// path, including a well-defined encoding for "missing".
	FilterFieldBytes(path FieldPath) []byte
}

// MissingFilterValue is the canonical encoding of an absent filter field.
var MissingFilterValue = []byte{0x00}

// Schema assigns stable field IDs to a SearchIndexConfig and tokenizes
// documents into DocumentTerms.
type Schema struct {
	config SearchIndexConfig

	searchFieldID  FieldID
	filterFieldIDs map[FieldPath]FieldID
	// sortedFilterFields preserves the sorted iteration order field IDs
	// were assigned in; FilterFields and IndexIntoTerms iterate in this order.
	sortedFilterFields []FieldPath

	analyzer *analyzer.Analyzer
}

// New assigns field IDs in the fixed order: internal_id=0, ts=1,
// creation_time=2, search_field=3, filter_field_i = 4+i sorted by
// FieldPath. The search field always gets ID 3 regardless of how many
// filter fields sort before it — that's the whole point of reserving it.
func New(config SearchIndexConfig, az *analyzer.Analyzer) (*Schema, error) {
	if err := config.SearchField.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search field: %w", err)
	}

	sorted := make([]FieldPath, len(config.FilterFields))
	copy(sorted, config.FilterFields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	filterIDs := make(map[FieldPath]FieldID, len(sorted))
	for i, fp := range sorted {
		if err := fp.Validate(); err != nil {
			return nil, fmt.Errorf("invalid filter field %q: %w", fp, err)
		}
		if fp == config.SearchField {
			return nil, fmt.Errorf("filter field %q duplicates the search field", fp)
		}
		filterIDs[fp] = FieldID(4 + i)
	}

	if az == nil {
		az = analyzer.Default()
	}

	return &Schema{
		config:             config,
		searchFieldID:      FieldIDSearch,
		filterFieldIDs:     filterIDs,
		sortedFilterFields: sorted,
		analyzer:           az,
	}, nil
}

// SearchField returns the configured search field path.
func (s *Schema) SearchField() FieldPath { return s.config.SearchField }

// SearchFieldID returns the field ID of the search field. Always 3.
func (s *Schema) SearchFieldID() FieldID { return s.searchFieldID }

// FilterFieldID returns the field ID assigned to a filter field, and
// whether that path is indexed for filtering at all.
func (s *Schema) FilterFieldID(path FieldPath) (FieldID, bool) {
	id, ok := s.filterFieldIDs[path]
	return id, ok
}

// FilterFields returns the filter field paths in the sorted order their
// field IDs were assigned in.
func (s *Schema) FilterFields() []FieldPath {
	out := make([]FieldPath, len(s.sortedFilterFields))
	copy(out, s.sortedFilterFields)
	return out
}

// Analyzer returns the analyzer used for both index-time and query-time
// tokenization of the search field.
func (s *Schema) Analyzer() *analyzer.Analyzer { return s.analyzer }

// IndexIntoTerms extracts the search field string (if present and of
// string type) via the analyzer, and extracts each filter field by its
// canonical byte encoding (absent values encode as MissingFilterValue).
func (s *Schema) IndexIntoTerms(doc Document) []DocumentTerm {
	var out []DocumentTerm

	if text, ok := doc.StringField(s.config.SearchField); ok {
		for _, tok := range s.analyzer.Analyze(text) {
			out = append(out, DocumentTerm{
				Term: Term{
					FieldID: s.searchFieldID,
					Bytes:   []byte(tok.Text),
				},
				Position: uint32(tok.Position),
			})
		}
	}

	for _, fp := range s.sortedFilterFields {
		value := doc.FilterFieldBytes(fp)
		if value == nil {
			value = MissingFilterValue
		}
		out = append(out, DocumentTerm{
			Term: Term{
				FieldID: s.filterFieldIDs[fp],
				Bytes:   value,
			},
			IsFilter: true,
		})
	}

	return out
}

// DocumentLengths computes the lengths used for BM25 normalization: the
// analyzed token count of the search field and, per filter field, the
// byte length of its canonical encoding.
func (s *Schema) DocumentLengths(doc Document) DocumentLengths {
	var lens DocumentLengths
	if text, ok := doc.StringField(s.config.SearchField); ok {
		lens.SearchFieldLen = len(s.analyzer.Analyze(text))
	}
	lens.FilterFieldLens = make(map[FieldPath]int, len(s.sortedFilterFields))
	for _, fp := range s.sortedFilterFields {
		value := doc.FilterFieldBytes(fp)
		if value == nil {
			value = MissingFilterValue
		}
		lens.FilterFieldLens[fp] = len(value)
	}
	return lens
}
