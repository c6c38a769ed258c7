// Package metrics provides the pure text measurements used to compare and
// score generations. Every function is deterministic and allocation-light;
// none of them suspend or touch shared state.
package metrics

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9_]+`)

// Set is a token set.
type Set map[string]struct{}

// Tokenize lowercases text and extracts word tokens ([A-Za-z0-9_]+), in order.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// NewSet builds a set from tokens.
func NewSet(tokens []string) Set {
	s := make(Set, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// Jaccard returns |a∩b| / |a∪b|. Two empty sets are identical by convention
// and score 1.0.
func Jaccard(a, b Set) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}

// LengthRatio returns shorter/longer token count, or 0.0 if either side is empty.
func LengthRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	shorter, longer := len(a), len(b)
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	return float64(shorter) / float64(longer)
}

// LCSLength returns the length of the longest common subsequence of a and b.
func LCSLength(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// OverlapScore is the LCS length over max(len(a), len(b), 1). Two empty
// token sequences score 1.0, matching the Jaccard convention.
func OverlapScore(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	return float64(LCSLength(a, b)) / float64(max(len(a), len(b), 1))
}

// KeywordCoverage returns the fraction of prompt keywords present in a∪b.
func KeywordCoverage(keywords, a, b Set) float64 {
	if len(keywords) == 0 {
		return 0.0
	}
	hit := 0
	for k := range keywords {
		_, inA := a[k]
		_, inB := b[k]
		if inA || inB {
			hit++
		}
	}
	return float64(hit) / float64(len(keywords))
}

var stopwords = NewSet([]string{
	"the", "a", "an", "and", "or", "of", "to", "for", "in", "on", "with", "by",
	"at", "from", "that", "this", "these", "those", "is", "are", "was", "were",
	"be", "as", "it", "its", "their", "they", "you", "your",
})

// ExtractKeywords tokenizes a prompt and keeps tokens longer than two
// characters that are not stopwords.
func ExtractKeywords(prompt string) Set {
	out := make(Set)
	for _, t := range Tokenize(prompt) {
		if len(t) <= 2 {
			continue
		}
		if _, stop := stopwords[t]; stop {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}

var hedgeTerms = NewSet([]string{
	"maybe", "perhaps", "possibly", "might", "uncertain", "unclear", "likely",
	"unlikely", "could", "should", "may", "appears", "suggests",
})

// HedgeCount counts hedging words in text.
func HedgeCount(text string) int {
	n := 0
	for _, t := range Tokenize(text) {
		if _, ok := hedgeTerms[t]; ok {
			n++
		}
	}
	return n
}

var (
	bulletRequestPattern = regexp.MustCompile(`(?i)\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+(?:bullet|bullets|points|items)\b`)
	bulletLinePattern    = regexp.MustCompile(`^\s*(?:[-*]|\d+\.)\s+`)

	numberWords = map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	}
)

// BulletRequestCount extracts an explicit item count from a prompt such as
// "give me 3 bullets" or "list five points". ok is false when the prompt
// makes no such request.
func BulletRequestCount(prompt string) (n int, ok bool) {
	m := bulletRequestPattern.FindStringSubmatch(prompt)
	if m == nil {
		return 0, false
	}
	word := strings.ToLower(m[1])
	if v, err := strconv.Atoi(word); err == nil {
		return v, true
	}
	v, ok := numberWords[word]
	return v, ok
}

// CountBullets counts lines that start with "-", "*" or "N.".
func CountBullets(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if bulletLinePattern.MatchString(line) {
			n++
		}
	}
	return n
}

// FormatCompliance scores how well text matches the item count the prompt
// asked for: 1.0 when no count was requested or it matches exactly, 0.0 when
// a list was requested and none was produced, and a linear penalty on the
// relative difference otherwise.
func FormatCompliance(prompt, text string) float64 {
	expected, ok := BulletRequestCount(prompt)
	if !ok {
		return 1.0
	}
	actual := CountBullets(text)
	if actual == 0 && expected > 0 {
		return 0.0
	}
	diff := math.Abs(float64(actual - expected))
	return math.Max(0.0, 1.0-diff/float64(max(expected, 1)))
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
