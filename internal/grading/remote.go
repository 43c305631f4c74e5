package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"exam-grading-service/internal/domain"
)

// RemoteBackend identifies which remote scoring API the grader talks to.
// It is resolved once at construction, never inferred from the model name.
type RemoteBackend string

const (
	BackendGemini RemoteBackend = "gemini"
	BackendOpenAI RemoteBackend = "openai"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultRemoteModel   = "gemini-1.5-flash"
	defaultRemoteTimeout = 15 * time.Second

	// remoteCorrectFraction is the correctness threshold for remote-graded
	// answers: the oracle's scoring is inexact, so 80% of max marks counts.
	remoteCorrectFraction = 0.8

	maxRawFeedback = 500
)

// RemoteOptions configures a RemoteGrader.
type RemoteOptions struct {
	Backend RemoteBackend
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// RemoteGrader delegates scoring to an external model. Responses are treated
// as untrusted: JSON is dug out of surrounding prose, marks are clamped, and
// any per-answer failure is isolated by the submission loop.
type RemoteGrader struct {
	backend RemoteBackend
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewRemoteGrader fails fast when no API credential is configured.
func NewRemoteGrader(opts RemoteOptions) (*RemoteGrader, error) {
	if opts.APIKey == "" {
		return nil, &domain.ConfigurationError{Reason: "remote grader requires an API key"}
	}
	backend := opts.Backend
	if backend == "" {
		backend = BackendGemini
	}
	baseURL := opts.BaseURL
	switch backend {
	case BackendGemini:
		if baseURL == "" {
			baseURL = defaultGeminiBaseURL
		}
	case BackendOpenAI:
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
	default:
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("unsupported remote backend %q (supported: gemini, openai)", backend)}
	}
	model := opts.Model
	if model == "" {
		model = defaultRemoteModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &RemoteGrader{
		backend: backend,
		apiKey:  opts.APIKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}, nil
}

func (g *RemoteGrader) Name() string { return "remote" }

func (g *RemoteGrader) GradeAnswer(ctx context.Context, q domain.Question, answerText string, rubric *domain.Rubric) (float64, string, error) {
	if strings.TrimSpace(answerText) == "" {
		return 0, noAnswerFeedback, nil
	}
	if err := q.Validate(); err != nil {
		return 0, "", err
	}

	prompt := buildGradingPrompt(q, answerText, effectiveRubric(q, rubric))
	raw, err := g.complete(ctx, prompt)
	if err != nil {
		return 0, "", err
	}
	marks, feedback := parseOracleResponse(raw, q.Marks)
	return round2(marks), feedback, nil
}

func (g *RemoteGrader) GradeSubmission(ctx context.Context, sub *domain.Submission) (domain.GradingResult, error) {
	return gradeAnswers(ctx, g, sub, remoteCorrectFraction, g.now)
}

// buildGradingPrompt embeds everything the oracle needs: question, marks,
// reference answer when present, and the rubric as JSON.
func buildGradingPrompt(q domain.Question, answerText string, rubric *domain.Rubric) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert academic grader. Grade the following student answer.\n\n")
	fmt.Fprintf(&b, "Question Type: %s\n", q.Type)
	fmt.Fprintf(&b, "Question: %s\n", q.Text)
	fmt.Fprintf(&b, "Maximum Marks: %g\n\n", q.Marks)
	if q.CorrectAnswer != "" {
		fmt.Fprintf(&b, "Expected Answer (for reference): %s\n\n", q.CorrectAnswer)
	}
	if rubric != nil {
		if data, err := json.Marshal(rubric); err == nil {
			fmt.Fprintf(&b, "Grading Rubric: %s\n\n", data)
		}
	}
	fmt.Fprintf(&b, "Student Answer: %s\n\n", answerText)
	fmt.Fprintf(&b, "Provide your response in JSON format:\n")
	fmt.Fprintf(&b, "{\n    \"marks\": <number between 0 and %g>,\n    \"feedback\": \"<detailed feedback explaining the grade>\"\n}\n\n", q.Marks)
	b.WriteString("Be fair but rigorous. Consider accuracy, completeness, and the understanding demonstrated. For essay questions, consider structure, clarity, and depth.\n")
	return b.String()
}

func (g *RemoteGrader) complete(ctx context.Context, prompt string) (string, error) {
	switch g.backend {
	case BackendOpenAI:
		return g.completeOpenAI(ctx, prompt)
	default:
		return g.completeGemini(ctx, prompt)
	}
}

func (g *RemoteGrader) completeGemini(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := g.do(req)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func (g *RemoteGrader) completeOpenAI(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are an expert academic grader. Always respond with valid JSON."},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.3,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	body, err := g.do(req)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (g *RemoteGrader) do(req *http.Request) ([]byte, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote scoring API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

var marksPattern = regexp.MustCompile(`(?i)marks?["']?\s*[:=]\s*([0-9.]+)`)

// parseOracleResponse extracts (marks, feedback) from free-form oracle
// output: first a balanced JSON object embedded in prose, then a bare
// "marks: <n>" scan, finally zero marks with the raw text as feedback.
// Marks are always clamped to [0, maxMarks].
func parseOracleResponse(raw string, maxMarks float64) (float64, string) {
	if block, ok := extractJSONBlock(raw); ok {
		var parsed struct {
			Marks    float64 `json:"marks"`
			Feedback string  `json:"feedback"`
		}
		if err := json.Unmarshal([]byte(block), &parsed); err == nil {
			feedback := parsed.Feedback
			if feedback == "" {
				feedback = "No feedback provided"
			}
			return clampMarks(parsed.Marks, maxMarks), feedback
		}
	}
	if m := marksPattern.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clampMarks(v, maxMarks), truncate(raw, maxRawFeedback)
		}
	}
	return 0, truncate(raw, maxRawFeedback)
}

// extractJSONBlock returns the first balanced {...} block in s.
func extractJSONBlock(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func clampMarks(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
