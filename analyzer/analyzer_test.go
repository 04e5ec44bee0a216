package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dociq/searchindex/analyzer"
)

func TestDefaultLowercasesAndSplitsOnWhitespace(t *testing.T) {
	a := analyzer.Default()
	toks := a.AnalyzeStrings("Hello   World")
	require.Equal(t, []string{"hello", "world"}, toks)
}

func TestDefaultStripsDiacritics(t *testing.T) {
	a := analyzer.Default()
	toks := a.AnalyzeStrings("café")
	require.Equal(t, []string{"cafe"}, toks)
}

func TestAnalyzePreservesPositions(t *testing.T) {
	a := analyzer.Default()
	toks := a.Analyze("a b c")
	require.Len(t, toks, 3)
	for i, tok := range toks {
		require.Equal(t, i, tok.Position)
	}
}

func TestAutocompleteEmitsPrefixes(t *testing.T) {
	a := analyzer.Autocomplete()
	toks := a.AnalyzeStrings("hi")
	require.Contains(t, toks, "h")
	require.Contains(t, toks, "hi")
}
