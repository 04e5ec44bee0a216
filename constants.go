// Package searchindex holds the tuning constants shared across every
// component of the engine. These may evolve — unlike the wire-visible
// constants in the schema package — but changing them changes observable
// ranking/behavior, so they live in one place.
package searchindex

// MaxQueryTerms bounds how many tokens a search text is compiled into.
// Extra tokens are silently dropped (a counter fires, no error).
const MaxQueryTerms = 16

// MaxFilterConditions bounds the number of equality filters a query may
// carry. Exceeding it is a user error.
const MaxFilterConditions = 8

// MaxCandidateRevisions (K) is both the disk-query base limit and the
// final truncation point: the engine always returns at most this many
// results.
const MaxCandidateRevisions = 1024

// ExactSearchMaxWordLength is the character-count threshold at or below
// which a non-terminal query token is treated as an exact match.
const ExactSearchMaxWordLength = 4

// SingleTypoSearchMaxWordLength is the character-count threshold at or
// below which a query token tolerates a single edit (otherwise two).
const SingleTypoSearchMaxWordLength = 8

// MaxShortlistTermsPerQueryTerm bounds how many concrete dictionary terms
// a single fuzzy QueryTerm can expand to on the memory side.
const MaxShortlistTermsPerQueryTerm = 128

// BM25K1 controls term-frequency saturation. 1.5 is a standard middle
// ground (Robertson et al.).
const BM25K1 = 1.5

// BM25B controls document-length normalization; 0.75 is the standard
// default.
const BM25B = 0.75
