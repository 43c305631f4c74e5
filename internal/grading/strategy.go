package grading

import (
	"fmt"
	"strings"

	"exam-grading-service/internal/domain"
)

// Default rubric weights, matching the behavior teachers expect when a
// question carries no explicit policy.
const (
	defaultKeywordWeight    = 0.4
	defaultSimilarityWeight = 0.6
	defaultEssayMinLength   = 100
	essayShortPenalty       = 0.3
)

const noAnswerFeedback = "No answer provided"

// strategy scores one answer for one question type.
type strategy interface {
	grade(q domain.Question, answerText string, rubric *domain.Rubric) (float64, string, error)
}

func builtinStrategies() map[domain.QuestionType]strategy {
	return map[domain.QuestionType]strategy{
		domain.QuestionMCQ:         mcqStrategy{},
		domain.QuestionShortAnswer: shortAnswerStrategy{},
		domain.QuestionEssay:       essayStrategy{},
	}
}

// effectiveRubric resolves the rubric for a grading call: an explicit
// override wins over the question's own rubric.
func effectiveRubric(q domain.Question, override *domain.Rubric) *domain.Rubric {
	if override != nil {
		return override
	}
	return q.Rubric
}

type mcqStrategy struct{}

func (mcqStrategy) grade(q domain.Question, answerText string, _ *domain.Rubric) (float64, string, error) {
	expected := strings.TrimSpace(q.CorrectAnswer)
	provided := strings.TrimSpace(answerText)

	var correct bool
	if q.CaseSensitive {
		correct = expected == provided
	} else {
		correct = strings.EqualFold(expected, provided)
	}
	if correct {
		return q.Marks, "Correct answer", nil
	}
	return 0, "Incorrect. Expected: " + expected, nil
}

type shortAnswerStrategy struct{}

func (shortAnswerStrategy) grade(q domain.Question, answerText string, rubric *domain.Rubric) (float64, string, error) {
	expected := q.CorrectAnswer
	if strings.TrimSpace(expected) == "" {
		// No reference answer to grade against.
		return q.Marks, "Manual grading required", nil
	}

	var keywords []string
	kwWeight := defaultKeywordWeight
	simWeight := defaultSimilarityWeight
	if rubric != nil {
		keywords = rubric.Keywords
		if rubric.KeywordWeight > 0 {
			kwWeight = rubric.KeywordWeight
		}
		if rubric.SimilarityWeight > 0 {
			simWeight = rubric.SimilarityWeight
		}
	}
	if len(keywords) == 0 {
		keywords = extractKeywords(expected)
	}

	kwScore := keywordScore(answerText, keywords, kwWeight)
	simScore := similarityScore(answerText, expected, simWeight)
	total := kwScore + simScore
	marks := round2(total * q.Marks)

	return marks, shortAnswerFeedback(total, kwScore, simScore, keywords, answerText), nil
}

func shortAnswerFeedback(total, kwScore, simScore float64, keywords []string, answerText string) string {
	matched := matchedKeywords(answerText, keywords)
	matchedSet := make(map[string]struct{}, len(matched))
	for _, kw := range matched {
		matchedSet[kw] = struct{}{}
	}
	missing := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if _, ok := matchedSet[kw]; !ok {
			missing = append(missing, kw)
		}
	}

	parts := []string{
		fmt.Sprintf("Overall Score: %.1f%%", total*100),
		fmt.Sprintf("Keyword Coverage: %.1f%%", kwScore*100),
		fmt.Sprintf("Content Similarity: %.1f%%", simScore*100),
	}
	if len(matched) > 0 {
		parts = append(parts, "Mentioned: "+strings.Join(matched, ", "))
	}
	if len(missing) > 0 {
		parts = append(parts, "Consider including: "+strings.Join(missing, ", "))
	}
	return strings.Join(parts, " | ")
}

type essayStrategy struct{}

func (essayStrategy) grade(q domain.Question, answerText string, rubric *domain.Rubric) (float64, string, error) {
	minLength := defaultEssayMinLength
	var keywords []string
	if rubric != nil {
		if rubric.MinLength > 0 {
			minLength = rubric.MinLength
		}
		keywords = rubric.Keywords
	}

	wordCount := len(strings.Fields(answerText))
	penalty := 0.0
	feedback := "Length requirement met. "
	if wordCount < minLength {
		penalty = essayShortPenalty
		feedback = fmt.Sprintf("Answer too short (%d words, minimum %d). ", wordCount, minLength)
	}

	if len(keywords) == 0 {
		// Policy: never silently zero-score an essay we cannot grade.
		return q.Marks, "Manual grading recommended - no rubric provided", nil
	}

	score := keywordScore(answerText, keywords, 1.0)
	marks := round2(score * q.Marks * (1 - penalty))

	matched := matchedKeywords(answerText, keywords)
	feedback += fmt.Sprintf("Covered %d/%d key concepts", len(matched), len(keywords))
	if len(matched) > 0 {
		feedback += ": " + strings.Join(matched, ", ")
	}
	return marks, feedback, nil
}
