package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"exam-grading-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

// Store is the Postgres-backed durable store for exams, submissions, and
// answers. All multi-row writes run inside a transaction so that grading is
// all-or-nothing per submission.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// LoadExam fetches an exam with its questions ordered by position.
func (s *Store) LoadExam(ctx context.Context, examID string) (domain.Exam, error) {
	var (
		exam      domain.Exam
		startTime sql.NullTime
		endTime   sql.NullTime
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, description, course_code, duration_minutes,
		       total_marks, passing_marks, start_time, end_time, is_active, instructions
		FROM exams WHERE id=$1`, examID).Scan(
		&exam.ID, &exam.Title, &exam.Description, &exam.CourseCode, &exam.DurationMinutes,
		&exam.TotalMarks, &exam.PassingMarks, &startTime, &endTime, &exam.IsActive, &exam.Instructions,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load exam: %w", err)
	}
	if startTime.Valid {
		t := startTime.Time
		exam.StartTime = &t
	}
	if endTime.Valid {
		t := endTime.Time
		exam.EndTime = &t
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, exam_id, question_text, question_type, marks, ord,
		       options, correct_answer, rubric, case_sensitive
		FROM questions WHERE exam_id=$1 ORDER BY ord`, examID)
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q          domain.Question
			optionsRaw []byte
			rubricRaw  []byte
		)
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Marks, &q.Order,
			&optionsRaw, &q.CorrectAnswer, &rubricRaw, &q.CaseSensitive); err != nil {
			return domain.Exam{}, fmt.Errorf("scan question: %w", err)
		}
		if len(optionsRaw) > 0 {
			if err := json.Unmarshal(optionsRaw, &q.Options); err != nil {
				return domain.Exam{}, fmt.Errorf("unmarshal options for question %s: %w", q.ID, err)
			}
		}
		if len(rubricRaw) > 0 {
			var rubric domain.Rubric
			if err := json.Unmarshal(rubricRaw, &rubric); err != nil {
				return domain.Exam{}, fmt.Errorf("unmarshal rubric for question %s: %w", q.ID, err)
			}
			q.Rubric = &rubric
		}
		exam.Questions = append(exam.Questions, q)
	}
	return exam, rows.Err()
}

// SaveExam upserts an exam and replaces its questions, used for seeding and
// instructor imports.
func (s *Store) SaveExam(ctx context.Context, exam domain.Exam) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO exams (id, title, description, course_code, duration_minutes,
			                   total_marks, passing_marks, start_time, end_time, is_active, instructions)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (id) DO UPDATE SET
				title=EXCLUDED.title, description=EXCLUDED.description,
				course_code=EXCLUDED.course_code, duration_minutes=EXCLUDED.duration_minutes,
				total_marks=EXCLUDED.total_marks, passing_marks=EXCLUDED.passing_marks,
				start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time,
				is_active=EXCLUDED.is_active, instructions=EXCLUDED.instructions`,
			exam.ID, exam.Title, exam.Description, exam.CourseCode, exam.DurationMinutes,
			exam.TotalMarks, exam.PassingMarks, exam.StartTime, exam.EndTime, exam.IsActive, exam.Instructions)
		if err != nil {
			return fmt.Errorf("upsert exam: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id=$1`, exam.ID); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}
		for _, q := range exam.Questions {
			var optionsRaw, rubricRaw []byte
			if len(q.Options) > 0 {
				optionsRaw, _ = json.Marshal(q.Options)
			}
			if q.Rubric != nil {
				rubricRaw, _ = json.Marshal(q.Rubric)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO questions (id, exam_id, question_text, question_type, marks, ord,
				                       options, correct_answer, rubric, case_sensitive)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				q.ID, exam.ID, q.Text, q.Type, q.Marks, q.Order,
				optionsRaw, q.CorrectAnswer, rubricRaw, q.CaseSensitive); err != nil {
				return fmt.Errorf("insert question %s: %w", q.ID, err)
			}
		}
		return nil
	})
}

// CreateSubmission inserts the submission and its answers in one
// transaction. The unique (student_id, exam_id) constraint arbitrates races:
// the loser gets domain.ErrDuplicateSubmission and no row.
func (s *Store) CreateSubmission(ctx context.Context, sub *domain.Submission) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO submissions (id, student_id, exam_id, status, started_at,
			                         submitted_at, time_taken_minutes)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			sub.ID, sub.StudentID, sub.ExamID, sub.Status, sub.StartedAt,
			sub.SubmittedAt, sub.TimeTakenMinutes)
		if isUniqueViolation(err) {
			return domain.ErrDuplicateSubmission
		}
		if err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		for _, a := range sub.Answers {
			if _, err := tx.Exec(ctx, `
				INSERT INTO answers (id, submission_id, question_id, answer_text)
				VALUES ($1,$2,$3,$4)`,
				a.ID, sub.ID, a.QuestionID, a.Text); err != nil {
				return fmt.Errorf("insert answer for question %s: %w", a.QuestionID, err)
			}
		}
		return nil
	})
}

// GetSubmission loads a submission with its answers and each answer's
// question, ordered by question position.
func (s *Store) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	var (
		sub        domain.Submission
		startedAt  sql.NullTime
		gradedAt   sql.NullTime
		score      sql.NullFloat64
		percentage sql.NullFloat64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, student_id, exam_id, status, started_at, submitted_at,
		       graded_at, score, percentage, time_taken_minutes
		FROM submissions WHERE id=$1`, id).Scan(
		&sub.ID, &sub.StudentID, &sub.ExamID, &sub.Status, &startedAt, &sub.SubmittedAt,
		&gradedAt, &score, &percentage, &sub.TimeTakenMinutes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("load submission: %w", err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		sub.StartedAt = &t
	}
	if gradedAt.Valid {
		t := gradedAt.Time
		sub.GradedAt = &t
	}
	if score.Valid {
		v := score.Float64
		sub.Score = &v
	}
	if percentage.Valid {
		v := percentage.Float64
		sub.Percentage = &v
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.submission_id, a.question_id, a.answer_text,
		       a.marks_obtained, a.feedback, a.is_correct, a.graded_by, a.graded_at,
		       q.id, q.exam_id, q.question_text, q.question_type, q.marks, q.ord,
		       q.options, q.correct_answer, q.rubric, q.case_sensitive
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.submission_id=$1
		ORDER BY q.ord`, id)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a          domain.Answer
			q          domain.Question
			marks      sql.NullFloat64
			isCorrect  sql.NullBool
			gradedAt   sql.NullTime
			optionsRaw []byte
			rubricRaw  []byte
		)
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.QuestionID, &a.Text,
			&marks, &a.Feedback, &isCorrect, &a.GradedBy, &gradedAt,
			&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Marks, &q.Order,
			&optionsRaw, &q.CorrectAnswer, &rubricRaw, &q.CaseSensitive); err != nil {
			return domain.Submission{}, fmt.Errorf("scan answer: %w", err)
		}
		if marks.Valid {
			v := marks.Float64
			a.MarksObtained = &v
		}
		if isCorrect.Valid {
			v := isCorrect.Bool
			a.IsCorrect = &v
		}
		if gradedAt.Valid {
			t := gradedAt.Time
			a.GradedAt = &t
		}
		if len(optionsRaw) > 0 {
			_ = json.Unmarshal(optionsRaw, &q.Options)
		}
		if len(rubricRaw) > 0 {
			var rubric domain.Rubric
			if json.Unmarshal(rubricRaw, &rubric) == nil {
				q.Rubric = &rubric
			}
		}
		question := q
		a.Question = &question
		sub.Answers = append(sub.Answers, a)
	}
	return sub, rows.Err()
}

func (s *Store) SetStatus(ctx context.Context, id string, status domain.SubmissionStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE submissions SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubmissionNotFound
	}
	return nil
}

// CompleteGrading writes every graded answer plus the submission's final
// score, percentage, status, and graded_at in a single transaction.
func (s *Store) CompleteGrading(ctx context.Context, sub *domain.Submission) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, a := range sub.Answers {
			if _, err := tx.Exec(ctx, `
				UPDATE answers
				SET marks_obtained=$2, feedback=$3, is_correct=$4, graded_by=$5, graded_at=$6
				WHERE id=$1`,
				a.ID, a.MarksObtained, a.Feedback, a.IsCorrect, a.GradedBy, a.GradedAt); err != nil {
				return fmt.Errorf("update answer %s: %w", a.ID, err)
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE submissions
			SET status=$2, score=$3, percentage=$4, graded_at=$5
			WHERE id=$1`,
			sub.ID, sub.Status, sub.Score, sub.Percentage, sub.GradedAt)
		if err != nil {
			return fmt.Errorf("finalize submission: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrSubmissionNotFound
		}
		return nil
	})
}

// ListByExam returns submissions for an exam, most recent first.
func (s *Store) ListByExam(ctx context.Context, examID string) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, exam_id, status, started_at, submitted_at,
		       graded_at, score, percentage, time_taken_minutes
		FROM submissions WHERE exam_id=$1 ORDER BY submitted_at DESC`, examID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		var (
			sub        domain.Submission
			startedAt  sql.NullTime
			gradedAt   sql.NullTime
			score      sql.NullFloat64
			percentage sql.NullFloat64
		)
		if err := rows.Scan(&sub.ID, &sub.StudentID, &sub.ExamID, &sub.Status, &startedAt,
			&sub.SubmittedAt, &gradedAt, &score, &percentage, &sub.TimeTakenMinutes); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if startedAt.Valid {
			t := startedAt.Time
			sub.StartedAt = &t
		}
		if gradedAt.Valid {
			t := gradedAt.Time
			sub.GradedAt = &t
		}
		if score.Valid {
			v := score.Float64
			sub.Score = &v
		}
		if percentage.Valid {
			v := percentage.Float64
			sub.Percentage = &v
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
