// Package compare computes pairwise disagreement metrics between generations.
package compare

import (
	"fmt"

	"github.com/ashita-ai/prism/internal/metrics"
	"github.com/ashita-ai/prism/internal/model"
)

const pairNotes = "token_overlap_jaccard: 1.0 = identical; length_ratio: shorter/longer; keyword_coverage vs prompt keywords."

type entry struct {
	model  string
	tokens []string
	set    metrics.Set
}

// Compare scores every unordered pair of results that carry text, in result
// order. Fewer than two such results yield no pairs and a note.
func Compare(prompt string, results []model.ModelResult) model.CompareResult {
	var entries []entry
	for _, r := range results {
		if !r.HasText() {
			continue
		}
		tokens := metrics.Tokenize(*r.Text)
		entries = append(entries, entry{model: r.Model, tokens: tokens, set: metrics.NewSet(tokens)})
	}

	if len(entries) < 2 {
		return model.CompareResult{
			Pairs: []model.ComparePair{},
			Summary: model.CompareSummary{
				AvgSimilarity: 1.0,
				Notes:         "Not enough responses to compare; need at least two non-empty outputs.",
				Disagreement:  model.Disagreement{MaxDistance: 0, Reason: "Insufficient responses"},
			},
		}
	}

	keywords := metrics.ExtractKeywords(prompt)
	pairs := make([]model.ComparePair, 0, len(entries)*(len(entries)-1)/2)
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			pairs = append(pairs, model.ComparePair{
				A:               a.model,
				B:               b.model,
				Jaccard:         metrics.Jaccard(a.set, b.set),
				LengthRatio:     metrics.LengthRatio(a.tokens, b.tokens),
				KeywordCoverage: metrics.KeywordCoverage(keywords, a.set, b.set),
				OverlapScore:    metrics.OverlapScore(a.tokens, b.tokens),
			})
		}
	}
	return model.CompareResult{Pairs: pairs, Summary: summarize(pairs)}
}

func summarize(pairs []model.ComparePair) model.CompareSummary {
	sum := 0.0
	mostIdx := 0
	worstIdx, worstDist := -1, 0.0
	for i, p := range pairs {
		sum += p.Jaccard
		if p.Jaccard < pairs[mostIdx].Jaccard {
			mostIdx = i
		}
		if d := (1 - p.OverlapScore) + (1 - p.Jaccard); worstIdx < 0 || d > worstDist {
			worstIdx, worstDist = i, d
		}
	}
	most := pairs[mostIdx]
	worst := pairs[worstIdx]
	return model.CompareSummary{
		AvgSimilarity:       sum / float64(len(pairs)),
		MostDisagreeingPair: &most,
		Notes:               pairNotes,
		Disagreement: model.Disagreement{
			MaxDistance: metrics.Round(worstDist, 4),
			Pair:        &model.PairRef{A: worst.A, B: worst.B},
			Reason:      fmt.Sprintf("Low overlap: overlap=%.2f, jaccard=%.2f", worst.OverlapScore, worst.Jaccard),
		},
	}
}
