// Package synthesis reduces a set of generations to a single answer.
package synthesis

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashita-ai/prism/internal/metrics"
	"github.com/ashita-ai/prism/internal/model"
)

// candidate is one generation with usable text.
type candidate struct {
	model string
	text  string
}

// Synthesize applies strategy to the results that carry text. With no text
// anywhere the result is not OK and reports StrategyNone.
func Synthesize(prompt string, results []model.ModelResult, strategy model.Strategy) model.SynthesisResult {
	var pool []candidate
	for _, r := range results {
		if r.HasText() {
			pool = append(pool, candidate{model: r.Model, text: *r.Text})
		}
	}
	if len(pool) == 0 {
		return model.SynthesisResult{
			OK:        false,
			Strategy:  model.StrategyNone,
			Rationale: "No responses were available to synthesize.",
		}
	}

	switch strategy {
	case model.StrategyConsensusOverlap:
		return consensusOverlap(pool)
	case model.StrategyBestOfN:
		return bestOfN(prompt, pool)
	default:
		return longestNonempty(pool, "")
	}
}

func longestNonempty(pool []candidate, prefix string) model.SynthesisResult {
	best := 0
	bestLen := utf8.RuneCountInString(pool[0].text)
	for i := 1; i < len(pool); i++ {
		if n := utf8.RuneCountInString(pool[i].text); n > bestLen {
			best, bestLen = i, n
		}
	}
	text := pool[best].text
	return model.SynthesisResult{
		OK:       true,
		Strategy: model.StrategyLongestNonempty,
		Text:     &text,
		Rationale: prefix + fmt.Sprintf("longest_nonempty: selected %s (%d characters) from %d candidate(s).",
			pool[best].model, bestLen, len(pool)),
	}
}

func consensusOverlap(pool []candidate) model.SynthesisResult {
	type tally struct {
		sentence string
		count    int
		first    int
		models   []string
	}
	bySentence := map[string]*tally{}
	order := 0
	for _, c := range pool {
		seen := map[string]bool{}
		for _, s := range splitSentences(c.text) {
			if seen[s] {
				continue
			}
			seen[s] = true
			t, ok := bySentence[s]
			if !ok {
				t = &tally{sentence: s, first: order}
				bySentence[s] = t
				order++
			}
			t.count++
			t.models = append(t.models, c.model)
		}
	}

	var shared []*tally
	for _, t := range bySentence {
		if t.count >= 2 {
			shared = append(shared, t)
		}
	}
	if len(shared) == 0 {
		return longestNonempty(pool, "consensus_overlap: no sentence recurred across generations; fell back to ")
	}
	slices.SortFunc(shared, func(a, b *tally) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		if c := cmp.Compare(utf8.RuneCountInString(b.sentence), utf8.RuneCountInString(a.sentence)); c != 0 {
			return c
		}
		return cmp.Compare(a.first, b.first)
	})

	lines := make([]string, len(shared))
	for i, t := range shared {
		lines[i] = t.sentence
	}
	text := strings.Join(lines, "\n")
	return model.SynthesisResult{
		OK:       true,
		Strategy: model.StrategyConsensusOverlap,
		Text:     &text,
		Rationale: fmt.Sprintf("consensus_overlap: kept %d sentence(s) shared by at least 2 of %d generations; top sentence from %s.",
			len(shared), len(pool), strings.Join(shared[0].models, ", ")),
	}
}

type score struct {
	coverage    float64
	redundancy  float64
	conciseness float64
	tokens      int
}

func (s score) total() float64 { return s.coverage + (1 - s.redundancy) + s.conciseness }

func bestOfN(prompt string, pool []candidate) model.SynthesisResult {
	keywords := metrics.ExtractKeywords(prompt)
	scores := make([]score, len(pool))
	anyTokens := false
	for i, c := range pool {
		tokens := metrics.Tokenize(c.text)
		set := metrics.NewSet(tokens)
		s := score{tokens: len(tokens), conciseness: 1 / (1 + float64(len(tokens))/200)}
		if len(tokens) > 0 {
			anyTokens = true
			s.coverage = metrics.KeywordCoverage(keywords, set, set)
			s.redundancy = 1 - float64(len(set))/float64(len(tokens))
		}
		scores[i] = s
	}
	if !anyTokens {
		return longestNonempty(pool, "best_of_n: no candidate had any tokens; fell back to ")
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].total() > scores[best].total() {
			best = i
		}
	}
	s := scores[best]
	text := pool[best].text
	return model.SynthesisResult{
		OK:       true,
		Strategy: model.StrategyBestOfN,
		Text:     &text,
		Rationale: fmt.Sprintf(
			"best_of_n: selected %s with score %.3f (coverage=%.3f, redundancy=%.3f, conciseness=%.3f, tokens=%d) from %d candidate(s).",
			pool[best].model, s.total(), s.coverage, s.redundancy, s.conciseness, s.tokens, len(pool)),
	}
}

// splitSentences splits on newlines and on terminal punctuation followed by
// whitespace. Sentences are trimmed and empty ones dropped.
func splitSentences(text string) []string {
	var out []string
	flush := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		switch {
		case r == '\n':
			flush(string(runes[start:i]))
			start = i + 1
		case (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]):
			flush(string(runes[start : i+1]))
			start = i + 1
		}
	}
	flush(string(runes[start:]))
	return out
}
