package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/domain"
)

// Handler exposes the submission grading operations over JSON HTTP.
type Handler struct {
	service *app.SubmissionService
	exams   app.ExamRepository
}

func NewHandler(service *app.SubmissionService, exams app.ExamRepository) *Handler {
	return &Handler{service: service, exams: exams}
}

// Register wires the routes onto a mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/submissions", h.handleSubmissions)
	mux.HandleFunc("/api/submissions/", h.handleSubmissionByID)
	mux.HandleFunc("/api/exams/", h.handleExamByID)
}

type submissionResponse struct {
	Submission domain.Submission     `json:"submission"`
	Grading    *domain.GradingResult `json:"grading,omitempty"`
	Error      string                `json:"error,omitempty"`
}

func (h *Handler) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req app.CreateSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, result, err := h.service.Create(r.Context(), req)
	if err != nil {
		// A created-but-failed submission is still reported to the caller.
		if sub.ID != "" {
			writeJSON(w, http.StatusCreated, submissionResponse{Submission: sub, Error: err.Error()})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submissionResponse{Submission: sub, Grading: result})
}

func (h *Handler) handleSubmissionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/submissions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.getSubmission(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "grade" && r.Method == http.MethodPost:
		h.gradeSubmission(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) getSubmission(w http.ResponseWriter, r *http.Request, id string) {
	sub, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionResponse{Submission: sub})
}

// gradeSubmission is the operator-triggered re-grade: it re-reads answers
// and re-derives the score. Optional ?grader= selects the backend.
func (h *Handler) gradeSubmission(w http.ResponseWriter, r *http.Request, id string) {
	result, err := h.service.Grade(r.Context(), id, r.URL.Query().Get("grader"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleExamByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/exams/"), "/")
	exam, err := h.exams.GetExam(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Students fetch exams to take them; never leak answers or rubrics.
	for i := range exam.Questions {
		exam.Questions[i].CorrectAnswer = ""
		exam.Questions[i].Rubric = nil
	}
	writeJSON(w, http.StatusOK, exam)
}

func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr *domain.ValidationError
		configErr     *domain.ConfigurationError
	)
	switch {
	case errors.Is(err, domain.ErrExamNotFound),
		errors.Is(err, domain.ErrSubmissionNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateSubmission):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrExamNotStarted),
		errors.Is(err, domain.ErrExamEnded),
		errors.Is(err, domain.ErrExamInactive):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &configErr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
