package grading

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"exam-grading-service/internal/domain"
)

func TestParseOracleResponse(t *testing.T) {
	cases := []struct {
		name         string
		raw          string
		maxMarks     float64
		wantMarks    float64
		wantFeedback string
	}{
		{
			name:         "clean json",
			raw:          `{"marks": 7.5, "feedback": "solid"}`,
			maxMarks:     10,
			wantMarks:    7.5,
			wantFeedback: "solid",
		},
		{
			name:         "json embedded in prose",
			raw:          `Based on review: {"marks": 7.5, "feedback": "solid"} thanks`,
			maxMarks:     10,
			wantMarks:    7.5,
			wantFeedback: "solid",
		},
		{
			name:         "json in markdown fence",
			raw:          "```json\n{\"marks\": 4, \"feedback\": \"partial credit\"}\n```",
			maxMarks:     10,
			wantMarks:    4,
			wantFeedback: "partial credit",
		},
		{
			name:         "braces inside feedback string",
			raw:          `{"marks": 3, "feedback": "use {braces} carefully"}`,
			maxMarks:     10,
			wantMarks:    3,
			wantFeedback: "use {braces} carefully",
		},
		{
			name:         "missing feedback",
			raw:          `{"marks": 2}`,
			maxMarks:     10,
			wantMarks:    2,
			wantFeedback: "No feedback provided",
		},
		{
			name:         "marks clamped to max",
			raw:          `{"marks": 15, "feedback": "generous"}`,
			maxMarks:     10,
			wantMarks:    10,
			wantFeedback: "generous",
		},
		{
			name:         "negative marks clamped to zero",
			raw:          `{"marks": -3, "feedback": "harsh"}`,
			maxMarks:     10,
			wantMarks:    0,
			wantFeedback: "harsh",
		},
		{
			name:         "regex fallback without json",
			raw:          `I would give this answer marks: 6 out of 10.`,
			maxMarks:     10,
			wantMarks:    6,
			wantFeedback: `I would give this answer marks: 6 out of 10.`,
		},
		{
			name:         "unparseable text scores zero",
			raw:          `The answer shows some understanding.`,
			maxMarks:     10,
			wantMarks:    0,
			wantFeedback: `The answer shows some understanding.`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			marks, feedback := parseOracleResponse(tc.raw, tc.maxMarks)
			if marks != tc.wantMarks {
				t.Fatalf("expected %v marks, got %v", tc.wantMarks, marks)
			}
			if feedback != tc.wantFeedback {
				t.Fatalf("expected feedback %q, got %q", tc.wantFeedback, feedback)
			}
		})
	}
}

func TestParseOracleResponseTruncatesRawFeedback(t *testing.T) {
	raw := strings.Repeat("x", maxRawFeedback+100)
	marks, feedback := parseOracleResponse(raw, 10)
	if marks != 0 {
		t.Fatalf("expected zero marks, got %v", marks)
	}
	if len(feedback) != maxRawFeedback {
		t.Fatalf("expected feedback truncated to %d bytes, got %d", maxRawFeedback, len(feedback))
	}
}

func TestExtractJSONBlock(t *testing.T) {
	if _, ok := extractJSONBlock("no json here"); ok {
		t.Fatal("expected no block")
	}
	if _, ok := extractJSONBlock(`{"unterminated": true`); ok {
		t.Fatal("expected unbalanced block to be rejected")
	}
	block, ok := extractJSONBlock(`prefix {"a": {"b": 1}} suffix {"c": 2}`)
	if !ok || block != `{"a": {"b": 1}}` {
		t.Fatalf("expected first balanced block, got %q (ok=%v)", block, ok)
	}
}

func TestNewRemoteGraderConfiguration(t *testing.T) {
	var cerr *domain.ConfigurationError

	_, err := NewRemoteGrader(RemoteOptions{})
	if !asConfigErr(err, &cerr) {
		t.Fatalf("expected configuration error for missing key, got %v", err)
	}

	_, err = NewRemoteGrader(RemoteOptions{APIKey: "k", Backend: "anthropic"})
	if !asConfigErr(err, &cerr) {
		t.Fatalf("expected configuration error for unknown backend, got %v", err)
	}
	if !strings.Contains(cerr.Error(), "gemini") {
		t.Fatalf("error should list supported backends: %v", cerr)
	}

	g, err := NewRemoteGrader(RemoteOptions{APIKey: "k"})
	if err != nil {
		t.Fatalf("minimal options should construct: %v", err)
	}
	if g.backend != BackendGemini {
		t.Fatalf("expected gemini default backend, got %q", g.backend)
	}
}

func TestRemoteGraderGemini(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		prompt := req.Contents[0].Parts[0].Text
		if !strings.Contains(prompt, "Maximum Marks: 10") || !strings.Contains(prompt, "Student Answer: mostly right") {
			t.Errorf("prompt missing expected fields: %q", prompt)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{
					{"text": `{"marks": 8, "feedback": "good recall"}`},
				}}},
			},
		})
	}))
	defer srv.Close()

	g, err := NewRemoteGrader(RemoteOptions{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}

	q := domain.Question{
		ID:            "q1",
		Text:          "Describe osmosis.",
		Type:          domain.QuestionShortAnswer,
		Marks:         10,
		CorrectAnswer: "water crosses a membrane",
	}
	marks, feedback, err := g.GradeAnswer(context.Background(), q, "mostly right", nil)
	if err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	if marks != 8 || feedback != "good recall" {
		t.Fatalf("expected 8/\"good recall\", got %v %q", marks, feedback)
	}
	if gotPath != "/test-model:generateContent" {
		t.Fatalf("unexpected request path %q", gotPath)
	}
}

func TestRemoteGraderOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": `{"marks": 5.5, "feedback": "halfway there"}`}},
			},
		})
	}))
	defer srv.Close()

	g, err := NewRemoteGrader(RemoteOptions{
		Backend: BackendOpenAI,
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gpt-test",
	})
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}

	q := domain.Question{ID: "q1", Text: "Explain entropy.", Type: domain.QuestionEssay, Marks: 10}
	marks, feedback, err := g.GradeAnswer(context.Background(), q, "entropy always increases", nil)
	if err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	if marks != 5.5 || feedback != "halfway there" {
		t.Fatalf("expected 5.5/\"halfway there\", got %v %q", marks, feedback)
	}
}

func TestRemoteGraderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g, err := NewRemoteGrader(RemoteOptions{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}
	q := domain.Question{ID: "q1", Type: domain.QuestionShortAnswer, Marks: 10, CorrectAnswer: "x"}
	_, _, err = g.GradeAnswer(context.Background(), q, "answer", nil)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestRemoteGraderCorrectnessThreshold(t *testing.T) {
	marksSeq := []string{
		`{"marks": 8, "feedback": "above threshold"}`,
		`{"marks": 7.9, "feedback": "below threshold"}`,
	}
	var call int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text := marksSeq[call]
		call++
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
			},
		})
	}))
	defer srv.Close()

	g, err := NewRemoteGrader(RemoteOptions{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}

	q1 := domain.Question{ID: "q1", Type: domain.QuestionShortAnswer, Marks: 10, Order: 1, CorrectAnswer: "ref"}
	q2 := domain.Question{ID: "q2", Type: domain.QuestionShortAnswer, Marks: 10, Order: 2, CorrectAnswer: "ref"}
	sub := &domain.Submission{
		ID: "sub-1",
		Answers: []domain.Answer{
			{QuestionID: "q1", Text: "a", Question: &q1},
			{QuestionID: "q2", Text: "b", Question: &q2},
		},
	}

	if _, err := g.GradeSubmission(context.Background(), sub); err != nil {
		t.Fatalf("grade submission failed: %v", err)
	}
	if !*sub.Answers[0].IsCorrect {
		t.Fatalf("80%% of max marks should count as correct")
	}
	if *sub.Answers[1].IsCorrect {
		t.Fatalf("79%% of max marks should not count as correct")
	}
	if sub.Answers[0].GradedBy != "remote" {
		t.Fatalf("expected remote grading tag, got %q", sub.Answers[0].GradedBy)
	}
}

func asConfigErr(err error, target **domain.ConfigurationError) bool {
	if err == nil {
		return false
	}
	c, ok := err.(*domain.ConfigurationError)
	if ok {
		*target = c
	}
	return ok
}
