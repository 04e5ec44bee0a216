// Package ranking scores and orders Candidates once the memory and disk
// tiers have been merged. The BM25 formula and its k1/b
// constants are grounded in the BM25 index builder found in the pack's
// trace-agent-routing example (bm25.go): idf = ln((N+1)/(df+1)) + 1,
// score = idf * (tf*(k1+1)) / (tf + k1*(1 - b + b*fieldLen/avgFieldLen)).
package ranking

import (
	"math"
	"sort"

	searchindex "github.com/dociq/searchindex"
	"github.com/dociq/searchindex/query"
	"github.com/dociq/searchindex/schema"
	"github.com/dociq/searchindex/searcher"
)

// Match-tier bonuses rank exact matches above 1-typo above 2-typo above
// prefix-only. Rank adds the bonus to tanh(BM25), which stays below 1, so
// the one-point step between tiers keeps each tier above the next.
const (
	bonusExact      = 3
	bonusFuzzy1     = 2
	bonusFuzzy2     = 1
	bonusPrefixOnly = 0
)

// Weights are the precomputed per-term IDF and per-field average length
// a Ranker needs; built once per query from combined Statistics.
type Weights struct {
	idf            map[string]float64 // schema.Term.Key() -> idf
	avgFieldLength map[schema.FieldID]float64
}

// BuildWeights computes IDF and average field length from a disk
// segment's statistics combined with the memory tier's delta.
func BuildWeights(stats searcher.Statistics) Weights {
	w := Weights{
		idf:            make(map[string]float64, len(stats.TermDocFreq)),
		avgFieldLength: make(map[schema.FieldID]float64, len(stats.FieldStats)),
	}

	n := float64(stats.DocCount)
	for term, df := range stats.TermDocFreq {
		if df <= 0 {
			continue
		}
		w.idf[term] = math.Log((n+1)/(float64(df)+1)) + 1.0
	}
	for fieldID, fs := range stats.FieldStats {
		if stats.DocCount <= 0 {
			w.avgFieldLength[fieldID] = 0
			continue
		}
		w.avgFieldLength[fieldID] = float64(fs.TotalLength) / n
	}
	return w
}

// BM25Score sums the BM25 contribution of every hit against this
// document's search-field length. A hit whose term never appears in the
// combined statistics (idf unknown) contributes nothing rather than
// erroring — that happens for tombstone-derived or otherwise stale
// terms that slipped through, and treating them as zero is the
// conservative behavior.
func (w Weights) BM25Score(hits []query.BM25Hit, fieldLen int) float64 {
	var total float64
	for _, h := range hits {
		total += w.score(h.Term, h.TF, fieldLen)
	}
	return total
}

// score computes a BM25 score for one term occurrence given its
// frequency and the document's length on that field.
func (w Weights) score(term schema.Term, tf int, fieldLen int) float64 {
	idf, ok := w.idf[term.Key()]
	if !ok || tf <= 0 {
		return 0
	}
	avgLen := w.avgFieldLength[term.FieldID]
	if avgLen <= 0 {
		avgLen = float64(fieldLen)
		if avgLen <= 0 {
			avgLen = 1
		}
	}

	tff := float64(tf)
	const k1 = searchindex.BM25K1
	const b = searchindex.BM25B
	norm := k1 * (1 - b + b*float64(fieldLen)/avgLen)
	return idf * (tff * (k1 + 1)) / (tff + norm)
}

// Ranker assigns a final RankingScore to each Candidate and produces the
// IndexKeyBytes sort order the engine paginates by: descending score,
// then descending creation time, then ascending ID, as a total order.
type Ranker struct {
	weights Weights
}

// New builds a Ranker from combined statistics.
func New(stats searcher.Statistics) *Ranker {
	return &Ranker{weights: BuildWeights(stats)}
}

// matchBonus returns the strongest fuzzy-tier bonus a Candidate earned
// across all of its matched query terms: exact beats 1-typo beats 2-typo
// beats prefix-only.
func matchBonus(c query.Candidate) int {
	if c.MatchedExact > 0 {
		return bonusExact
	}
	if c.MatchedFuzzy[1] > 0 {
		return bonusFuzzy1
	}
	if c.MatchedFuzzy[2] > 0 {
		return bonusFuzzy2
	}
	return bonusPrefixOnly
}

// ScoreBM25 computes a candidate's raw BM25 score against this Ranker's
// combined-statistics weights. Exposed so QueryEngine can populate
// Revision.Score for the pre-Ranker merge-sort-truncate step (§4.6 step
// 7) with the same globally-consistent score the final Rank below uses,
// rather than comparing an always-zero field.
func (r *Ranker) ScoreBM25(c query.Candidate) float64 {
	return r.weights.BM25Score(c.BM25Hits, c.SearchFieldLen)
}

// Rank scores every candidate and returns CandidateRevisions sorted by
// descending RankingScore, with ties broken by descending CreationTime
// then ascending ID. Ranking happens on whatever set the caller already
// truncated to — the caller decides whether that's before or after a
// global sort.
func (r *Ranker) Rank(candidates []query.Candidate) []query.CandidateRevision {
	out := make([]query.CandidateRevision, len(candidates))
	for i, c := range candidates {
		bm25 := r.ScoreBM25(c)
		bonus := matchBonus(c)
		// Fuzzy-tier bonus dominates; BM25 contributes a sub-unit
		// fractional nudge within a tier via tanh, so ties inside a tier
		// still favor higher-scoring matches without ever bridging two
		// tiers (tanh is bounded to (-1, 1), the bonus steps by 1).
		score := float32(bonus) + float32(math.Tanh(bm25))
		revision := c.Revision
		revision.Score = float32(bm25)
		out[i] = query.CandidateRevision{Revision: revision, RankingScore: score}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RankingScore != out[j].RankingScore {
			return out[i].RankingScore > out[j].RankingScore
		}
		if out[i].Revision.CreationTime != out[j].Revision.CreationTime {
			return out[i].Revision.CreationTime > out[j].Revision.CreationTime
		}
		return lessID(out[i].Revision.ID, out[j].Revision.ID)
	})
	return out
}

func lessID(a, b schema.InternalID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// IndexKey encodes a CandidateRevision's sort position as bytes, for
// callers that paginate by cursor rather than by offset.
func IndexKey(c query.CandidateRevision) query.IndexKeyBytes {
	buf := make([]byte, 0, 4+8+16)

	// Floats are mapped to order-preserving bits (flip every bit of a
	// negative value, only the sign bit of a non-negative one), so that
	// unsigned big-endian byte order matches numeric order.
	var scoreBits [4]byte
	bits := math.Float32bits(-c.RankingScore)
	if bits&(1<<31) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 31
	}
	scoreBits[0] = byte(bits >> 24)
	scoreBits[1] = byte(bits >> 16)
	scoreBits[2] = byte(bits >> 8)
	scoreBits[3] = byte(bits)
	buf = append(buf, scoreBits[:]...)

	var tBits [8]byte
	tb := math.Float64bits(-float64(c.Revision.CreationTime))
	if tb&(1<<63) != 0 {
		tb = ^tb
	} else {
		tb |= 1 << 63
	}
	for i := 0; i < 8; i++ {
		tBits[i] = byte(tb >> (56 - 8*i))
	}
	buf = append(buf, tBits[:]...)

	buf = append(buf, c.Revision.ID[:]...)
	return buf
}
