package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/config"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/identity"
	"quiz-room-service/internal/infra/memory"
	pgloader "quiz-room-service/internal/infra/postgres"
	redisinfra "quiz-room-service/internal/infra/redis"
	transport "quiz-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	debounce := config.TTLDuration(cfg.Room.AdvanceDebounce, 2*time.Second)
	cooldown := config.TTLDuration(cfg.Room.AdvanceCooldown, 3*time.Second)

	var store app.RoomStore
	var locks app.AdvanceLocker
	if redisClient != nil {
		store = redisinfra.NewRoomStore(redisClient, redisTTL)
		locks = redisinfra.NewAdvanceLock(redisClient, cooldown)
	} else {
		store = memory.NewRoomStore()
		locks = app.NewMemoryAdvanceLock(debounce, cooldown)
	}

	scoring := app.DefaultScoreConfig()
	if cfg.Room.BasePoints > 0 {
		scoring.BasePoints = cfg.Room.BasePoints
	}
	if cfg.Room.BonusPoints > 0 {
		scoring.BonusPoints = cfg.Room.BonusPoints
	}

	gateway := app.NewGateway(app.GatewayConfig{
		Store:    store,
		Quizzes:  quizRepo,
		Identity: identity.NewJWTProvider(cfg.Auth.JWTSecret),
		Locks:    locks,
		Scoring:  scoring,
	})
	wsHandler := transport.NewWSHandler(gateway)

	retention := config.TTLDuration(cfg.Room.Retention, 2*time.Hour)
	sweepInterval := config.TTLDuration(cfg.Room.SweepInterval, 10*time.Minute)
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go gateway.RunSweeper(sweepCtx, sweepInterval, retention)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz room service on :%s", finalPort)
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

// sampleQuizzes provides a minimal quiz set for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					Prompt:    "What is 2 + 2?",
					Options:   []string{"3", "4", "5"},
					AnswerKey: "4",
				},
				{
					Prompt:    "Which planet is known as the Red Planet?",
					Options:   []string{"Venus", "Mars", "Jupiter"},
					AnswerKey: "Mars",
				},
			},
		},
	}
}
