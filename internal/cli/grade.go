package cli

import (
	"context"
	"fmt"
	"time"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/config"
	"exam-grading-service/internal/infra/memory"
	pgstore "exam-grading-service/internal/infra/postgres"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewGradeCmd re-grades a stored submission from the command line. Useful
// after fixing a rubric or switching graders without going through the API.
func NewGradeCmd(configPath *string) *cobra.Command {
	var graderKind string

	cmd := &cobra.Command{
		Use:   "grade <submission-id>",
		Short: "Re-grade a submission by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrade(cmd.Context(), *configPath, args[0], graderKind)
		},
	}
	cmd.Flags().StringVar(&graderKind, "grader", "", "grader to use (local or remote, default from config)")
	return cmd
}

func runGrade(ctx context.Context, configPath, submissionID, graderKind string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := pgstore.NewStore(pool)
	exams := memory.NewExamRepository(store, config.TTLDuration(cfg.Exam.TTL, 10*time.Minute))
	service := app.NewSubmissionService(exams, store, buildSelector(cfg.Grading), app.NewResultsFeed())

	result, err := service.Grade(ctx, submissionID, graderKind)
	if err != nil {
		return err
	}

	fmt.Printf("submission %s: %.2f / %.2f (%.1f%%)\n",
		submissionID, result.TotalScore, result.TotalPossible, result.Percentage)
	for _, d := range result.Details {
		fmt.Printf("  %s: %.2f / %.2f  %s\n", d.QuestionID, d.MarksObtained, d.MarksPossible, d.Feedback)
	}
	return nil
}
