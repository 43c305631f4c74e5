package grading

import (
	"math"
	"regexp"
	"strings"
)

// Stateless text scoring utilities shared by the grading strategies.

const maxExtractedKeywords = 10

var (
	keywordPattern = regexp.MustCompile(`\b[a-z]{4,}\b`)
	tokenPattern   = regexp.MustCompile(`\b\w\w+\b`)
)

// extractKeywords pulls candidate keywords out of a reference answer for use
// when a rubric supplies none: lowercase words of at least four letters,
// de-duplicated, capped at maxExtractedKeywords.
func extractKeywords(text string) []string {
	words := keywordPattern.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, maxExtractedKeywords)
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == maxExtractedKeywords {
			break
		}
	}
	return out
}

// matchedKeywords returns the keywords present in text, case-insensitively.
func matchedKeywords(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			out = append(out, kw)
		}
	}
	return out
}

// keywordScore scores text against a keyword list: presence carries 80% of
// the score, keyword density adds a capped bonus. The result lies in
// [0, weight]; an empty keyword list scores 0.
func keywordScore(text string, keywords []string, weight float64) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := matchedKeywords(text, keywords)
	presence := float64(len(matched)) / float64(len(keywords))

	totalWords := len(strings.Fields(text))
	if totalWords < 1 {
		totalWords = 1
	}
	hits := 0
	for _, kw := range matched {
		hits += strings.Count(lower, strings.ToLower(kw))
	}
	density := float64(hits) / float64(totalWords)

	combined := presence*0.8 + math.Min(density*5, 0.2)
	return combined * weight
}

// similarityScore computes TF-IDF cosine similarity between two texts over a
// vector space of unigrams and bigrams with English stop words removed. If
// vectorization yields an empty vocabulary it falls back to Jaccard word
// overlap. The result lies in [0, weight].
func similarityScore(a, b string, weight float64) float64 {
	termsA := vectorTerms(a)
	termsB := vectorTerms(b)
	if len(termsA) == 0 && len(termsB) == 0 {
		return jaccardOverlap(a, b) * weight
	}
	return cosineSimilarity(termsA, termsB) * weight
}

// vectorTerms tokenizes, case-folds, strips stop words and emits unigrams
// plus bigrams of the surviving tokens.
func vectorTerms(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	words := raw[:0]
	for _, w := range raw {
		if !isStopWord(w) {
			words = append(words, w)
		}
	}
	terms := make([]string, 0, 2*len(words))
	terms = append(terms, words...)
	for i := 0; i+1 < len(words); i++ {
		terms = append(terms, words[i]+" "+words[i+1])
	}
	return terms
}

func cosineSimilarity(termsA, termsB []string) float64 {
	tfA := termCounts(termsA)
	tfB := termCounts(termsB)

	// Smoothed IDF over the two-document corpus, mirroring the usual
	// ln((1+n)/(1+df))+1 weighting with n=2.
	idf := func(term string) float64 {
		df := 0
		if tfA[term] > 0 {
			df++
		}
		if tfB[term] > 0 {
			df++
		}
		return math.Log(3.0/float64(1+df)) + 1
	}

	var dot, normA, normB float64
	for term, c := range tfA {
		w := float64(c) * idf(term)
		normA += w * w
		if cb, ok := tfB[term]; ok {
			dot += w * float64(cb) * idf(term)
		}
	}
	for term, c := range tfB {
		w := float64(c) * idf(term)
		normB += w * w
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func termCounts(terms []string) map[string]int {
	m := make(map[string]int, len(terms))
	for _, t := range terms {
		m[t]++
	}
	return m
}

// jaccardOverlap is the similarity fallback: |A∩B| / |A∪B| over lowercase
// word sets.
func jaccardOverlap(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	union := len(setB)
	inter := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		} else {
			union++
		}
	}
	if union < 1 {
		union = 1
	}
	return float64(inter) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
