package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/config"
	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/grading"
	"exam-grading-service/internal/infra/memory"
	pgstore "exam-grading-service/internal/infra/postgres"
	redisinfra "exam-grading-service/internal/infra/redis"
	transport "exam-grading-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the grading server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("config file not loaded (%v); using environment", err)
		cfg = config.FromEnv()
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	exams, store := buildStores(cfg, pool, redisClient)
	selector := buildSelector(cfg.Grading)
	feed := app.NewResultsFeed()
	service := app.NewSubmissionService(exams, store, selector, feed)

	handler := transport.NewHandler(service, exams)
	wsHandler := transport.NewWSHandler(feed)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("/ws/results", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // grading a submission happens inside the request
	}

	go func() {
		log.Printf("starting exam grading service on :%s (grader=%s)", finalPort, cfg.Grading.Service)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildStores picks the exam repository and submission store for the
// configured infrastructure: Postgres when available, otherwise in-memory
// with a sample exam; Redis in front of exam loads when configured.
func buildStores(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (app.ExamRepository, app.SubmissionStore) {
	examTTL := config.TTLDuration(cfg.Exam.TTL, 10*time.Minute)

	if pool != nil {
		store := pgstore.NewStore(pool)
		var exams app.ExamRepository = memory.NewExamRepository(store, examTTL)
		if redisClient != nil {
			exams = redisinfra.NewExamCache(redisClient, store, examTTL)
		}
		return exams, store
	}

	loader := memory.NewStaticExamLoader(sampleExams())
	var exams app.ExamRepository = memory.NewExamRepository(loader, examTTL)
	if redisClient != nil {
		exams = redisinfra.NewExamCache(redisClient, loader, examTTL)
	}
	return exams, memory.NewSubmissionStore(loader)
}

func buildSelector(cfg config.Grading) *grading.Selector {
	return grading.NewSelector(cfg.Service, grading.RemoteOptions{
		Backend: grading.RemoteBackend(cfg.Backend),
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: config.TTLDuration(cfg.Timeout, 0),
	})
}

// sampleExams provides a minimal exam for demo runs without a database.
func sampleExams() map[string]domain.Exam {
	return map[string]domain.Exam{
		"exam-1": {
			ID:              "exam-1",
			Title:           "Biology basics",
			CourseCode:      "BIO101",
			DurationMinutes: 30,
			TotalMarks:      100,
			PassingMarks:    40,
			IsActive:        true,
			Questions: []domain.Question{
				{
					ID:     "q1",
					ExamID: "exam-1",
					Text:   "Which of these is a mammal?",
					Type:   domain.QuestionMCQ,
					Marks:  60,
					Order:  1,
					Options: map[string]string{
						"A": "Crocodile",
						"B": "Cat",
						"C": "Salmon",
					},
					CorrectAnswer: "B",
				},
				{
					ID:            "q2",
					ExamID:        "exam-1",
					Text:          "State the class cats belong to.",
					Type:          domain.QuestionShortAnswer,
					Marks:         40,
					Order:         2,
					CorrectAnswer: "cats are mammals",
					Rubric: &domain.Rubric{
						Keywords:         []string{"cats", "mammals"},
						KeywordWeight:    0.5,
						SimilarityWeight: 0.5,
					},
				},
			},
		},
	}
}
