// Package analyzer turns document/query text into a deterministic stream of
// tokens with positions. The same Analyzer is used at index time and at
// query time; any change to its behavior is a breaking index-format change.
package analyzer

import (
	"strings"
	"unicode"

	tokenize "github.com/rekki/go-query-tokenize"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Token is a single analyzed token and the position it occupied in the
// token stream (not byte offset — its ordinal among tokens).
type Token struct {
	Text     string
	Position int
}

// formatVersion is bumped whenever tokenization or normalization behavior
// changes in a way that would make old postings incomparable to new ones.
const formatVersion = 1

// Analyzer is a pure function text -> []Token. Deterministic and
// Unicode-aware: it case-folds and strips diacritics before handing the
// normalized text to a go-query-tokenize tokenizer chain.
type Analyzer struct {
	tokenizers []tokenize.Tokenizer
	foldDiacritics bool
}

// unaccent strips combining diacritical marks via Unicode NFKD
// decomposition, built on golang.org/x/text's transform chain.
var unaccentTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func unaccent(s string) string {
	out, _, err := transform.String(unaccentTransformer, s)
	if err != nil {
		return s
	}
	return out
}

// New builds an Analyzer from an ordered chain of go-query-tokenize
// tokenizers, applied after lowercasing + diacritic stripping.
func New(tokenizers ...tokenize.Tokenizer) *Analyzer {
	return &Analyzer{tokenizers: tokenizers, foldDiacritics: true}
}

// Default is the analyzer used when a Schema is not given one explicitly:
// whitespace-split, lowercased, diacritic-free tokens.
func Default() *Analyzer {
	return New(tokenize.NewWhitespace())
}

// Autocomplete additionally emits every left-edge prefix of each token.
func Autocomplete() *Analyzer {
	return New(tokenize.NewWhitespace(), tokenize.NewLeftEdge(1), tokenize.NewUnique())
}

// FormatVersion identifies the analysis behavior version. Nothing in this
// module writes it into a segment or compares it against one.
func (a *Analyzer) FormatVersion() uint32 { return formatVersion }

// Analyze tokenizes text deterministically, preserving token order.
func (a *Analyzer) Analyze(text string) []Token {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if a.foldDiacritics {
		normalized = unaccent(normalized)
	}

	raw := tokenize.TokenizeT(normalized, a.tokenizers...)
	out := make([]Token, len(raw))
	for i, t := range raw {
		out[i] = Token{Text: t.Text, Position: t.Position}
	}
	return out
}

// AnalyzeStrings is a convenience wrapper returning just the token texts,
// e.g. for building a display-only shortlist.
func (a *Analyzer) AnalyzeStrings(text string) []string {
	toks := a.Analyze(text)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Text
	}
	return out
}
