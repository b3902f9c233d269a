package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/config"
	"quiz-xp-service/internal/infra/memory"
	"quiz-xp-service/internal/infra/postgres"
	rediscache "quiz-xp-service/internal/infra/redis"
	"quiz-xp-service/internal/logger"
	transport "quiz-xp-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type services struct {
	quiz    *app.QuizService
	board   *app.LeaderboardService
	catalog *app.CatalogService
	store   app.Store
	closers []func()
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

type catalogSource interface {
	app.Catalog
	app.CatalogInvalidator
}

// buildServices picks Postgres or the in-memory store, and Redis or process
// caches, depending on which addresses are configured.
func buildServices(ctx context.Context, cfg config.Config) (*services, error) {
	svc := &services{}

	rules := app.ProgressionRules{
		BaseXP:       cfg.Progression.BaseXP,
		Multiplier:   cfg.Progression.Multiplier,
		XPPerCorrect: cfg.Progression.XPPerCorrect,
		Policy:       app.LevelPolicy(cfg.Progression.Policy),
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	var (
		store  app.Store
		loader app.Catalog
	)
	if cfg.Postgres.URL != "" {
		db := postgres.OpenDB(cfg.Postgres.URL)
		svc.closers = append(svc.closers, func() { _ = db.Close() })
		if err := runMigrations(ctx, db); err != nil {
			svc.close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			svc.close()
			return nil, err
		}
		svc.closers = append(svc.closers, pool.Close)
		store = postgres.NewStore(db)
		loader = postgres.NewCatalog(pool)
		log.Info().Msg("using postgres storage")
	} else {
		mem := memory.NewStore()
		store, loader = mem, mem
		log.Info().Msg("using in-memory storage")
	}
	svc.store = store

	catalogTTL := config.TTLDuration(cfg.Quiz.CatalogTTL, 10*time.Minute)
	pointerTTL := config.TTLDuration(cfg.Session.PointerTTL, 2*time.Hour)

	var (
		catalog  catalogSource
		pointers app.SessionPointers
		ranks    app.RankIndex
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		svc.closers = append(svc.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not reachable yet")
		}
		catalog = rediscache.NewCatalogCache(client, loader, catalogTTL)
		pointers = rediscache.NewSessionPointers(client, pointerTTL)
		ranks = rediscache.NewRankIndex(client)
	} else {
		catalog = memory.NewCatalogCache(loader, catalogTTL)
		pointers = memory.NewSessionPointers()
	}

	sampler := app.NewSampler(catalog, cfg.Quiz.MinQuestions, cfg.Quiz.MaxQuestions, nil)
	opts := []app.Option{
		app.WithSessionPointers(pointers),
		app.WithSecondsPerQuestion(cfg.Quiz.SecondsPerQuestion),
	}
	if ranks != nil {
		opts = append(opts, app.WithRankIndex(ranks))
	}
	svc.quiz = app.NewQuizService(store, catalog, sampler, app.NewProgression(rules), opts...)
	svc.board = app.NewLeaderboardService(store, catalog, ranks, rules, cfg.Leaderboard.GlobalLimit, cfg.Leaderboard.CategoryLimit)
	svc.catalog = app.NewCatalogService(store, catalog, catalog)
	return svc, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	svc, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	if cfg.Postgres.URL == "" {
		seed, err := loadSeed(cfg.Quiz.SeedFile)
		if err != nil {
			return err
		}
		if err := applySeed(ctx, svc.store, svc.catalog, seed); err != nil {
			return err
		}
	}

	if err := svc.board.RebuildRankIndex(ctx); err != nil {
		log.Warn().Err(err).Msg("rank index rebuild failed, ranks fall back to the store until it syncs")
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewAPI(svc.quiz, svc.board, nil).Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
