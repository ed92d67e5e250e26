// Package textstat computes deterministic lexical statistics used as
// diagnostic evidence by the fluency and convergence scorers and as the
// similarity input of the action gate. Nothing here calls the judge.
package textstat

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it into word tokens, dropping
// punctuation. Numbers are kept; they carry signal for repetition.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

// RepetitionStats summarizes n-gram reuse across a set of messages.
// Surfaced alongside judge scores, never mixed into the numeric aggregate.
type RepetitionStats struct {
	TrigramCount      int `json:"trigram_count"`
	RepeatedTrigrams  int `json:"repeated_trigrams"`
	FivegramCount     int `json:"fivegram_count"`
	RepeatedFivegrams int `json:"repeated_fivegrams"`
}

// TrigramRepetitionRate is the share of trigram occurrences that are repeats.
func (s RepetitionStats) TrigramRepetitionRate() float64 {
	if s.TrigramCount == 0 {
		return 0
	}
	return float64(s.RepeatedTrigrams) / float64(s.TrigramCount)
}

// FivegramRepetitionRate is the share of fivegram occurrences that are repeats.
func (s RepetitionStats) FivegramRepetitionRate() float64 {
	if s.FivegramCount == 0 {
		return 0
	}
	return float64(s.RepeatedFivegrams) / float64(s.FivegramCount)
}

// Repetition counts trigram and fivegram reuse across all texts combined.
func Repetition(texts []string) RepetitionStats {
	tri := make(map[string]int)
	five := make(map[string]int)
	var stats RepetitionStats

	for _, text := range texts {
		tokens := Tokenize(text)
		countNGrams(tokens, 3, tri)
		countNGrams(tokens, 5, five)
	}

	for _, n := range tri {
		stats.TrigramCount += n
		if n > 1 {
			stats.RepeatedTrigrams += n - 1
		}
	}
	for _, n := range five {
		stats.FivegramCount += n
		if n > 1 {
			stats.RepeatedFivegrams += n - 1
		}
	}
	return stats
}

func countNGrams(tokens []string, n int, into map[string]int) {
	if len(tokens) < n {
		return
	}
	for i := 0; i+n <= len(tokens); i++ {
		into[strings.Join(tokens[i:i+n], " ")]++
	}
}

// Similarity returns the Jaccard similarity of two texts' token sets,
// in [0, 1]. Two empty texts are considered identical.
func Similarity(a, b string) float64 {
	return jaccard(tokenSet(Tokenize(a)), tokenSet(Tokenize(b)))
}

// MaxSimilarity returns the highest similarity between candidate and any of
// the reference texts. Zero when there are no references.
func MaxSimilarity(candidate string, references []string) float64 {
	candSet := tokenSet(Tokenize(candidate))
	var max float64
	for _, ref := range references {
		if s := jaccard(candSet, tokenSet(Tokenize(ref))); s > max {
			max = s
		}
	}
	return max
}

// VocabularyOverlap measures shared vocabulary between two message groups,
// Jaccard over the union of each group's tokens.
func VocabularyOverlap(groupA, groupB []string) float64 {
	setA := make(map[string]struct{})
	setB := make(map[string]struct{})
	for _, t := range groupA {
		for _, tok := range Tokenize(t) {
			setA[tok] = struct{}{}
		}
	}
	for _, t := range groupB {
		for _, tok := range Tokenize(t) {
			setB[tok] = struct{}{}
		}
	}
	return jaccard(setA, setB)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var inter int
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
