package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/funtusov/telequery/internal/ai"
	"github.com/funtusov/telequery/internal/config"
	"github.com/funtusov/telequery/internal/embedcache"
	"github.com/funtusov/telequery/internal/handler"
	"github.com/funtusov/telequery/internal/job"
	"github.com/funtusov/telequery/internal/middleware"
	"github.com/funtusov/telequery/internal/repo"
	"github.com/funtusov/telequery/internal/schedule"
	"github.com/funtusov/telequery/internal/service"
)

// app carries everything a subcommand needs after setup.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	cacheRepo *repo.EmbeddingCacheRepo
	expansion *service.ExpansionService
	index     *service.IndexService
	search    *service.SearchService
	agent     *service.AgentService
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "telequery",
		Short: "question answering over a telegram message archive",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newExpandCmd(&configPath),
		newReindexCmd(&configPath),
		newStatsCmd(&configPath),
		newResetCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func setup(configPath string, overrides ...func(*config.Config)) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	db, err := repo.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := repo.ApplyMigrations(db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	messageRepo := repo.NewMessageRepo(db)
	expansionRepo := repo.NewExpansionRepo(db)
	vectorRepo := repo.NewVectorRepo(db)
	cacheRepo := repo.NewEmbeddingCacheRepo(db)

	generator, embedder, err := buildAI(cfg, cacheRepo)
	if err != nil {
		return nil, err
	}

	aiTimeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	expansionService := service.NewExpansionService(messageRepo, expansionRepo, generator, service.ExpansionConfig{
		WindowSize: cfg.Expansion.WindowSize,
		BatchSize:  cfg.Expansion.BatchSize,
		Workers:    cfg.Expansion.Workers,
		Timeout:    aiTimeout,
	})
	indexService := service.NewIndexService(messageRepo, expansionRepo, vectorRepo, embedder, service.IndexConfig{
		Workers: cfg.Index.Workers,
		Timeout: aiTimeout,
	})
	searchService := service.NewSearchService(messageRepo, expansionRepo, vectorRepo, embedder, service.SearchConfig{
		TopK:            cfg.Query.TopK,
		OverfetchFactor: cfg.Query.OverfetchFactor,
		Timeout:         aiTimeout,
	})
	agentService := service.NewAgentService(searchService, generator, service.AgentConfig{
		RelevanceFloor:    cfg.Query.RelevanceFloor,
		MaxSourceMessages: cfg.Query.MaxSourceMessages,
		Timeout:           aiTimeout,
	})

	return &app{
		cfg:       cfg,
		db:        db,
		cacheRepo: cacheRepo,
		expansion: expansionService,
		index:     indexService,
		search:    searchService,
		agent:     agentService,
	}, nil
}

// buildAI assembles the generator and embedder chains (primary plus
// fallbacks), each entry wrapped with retry; the embedder chain additionally
// gets the LRU and database caches.
func buildAI(cfg *config.Config, cacheRepo *repo.EmbeddingCacheRepo) (ai.IGenerator, ai.IEmbedder, error) {
	retryCfg := ai.RetryConfig{MaxTries: uint(cfg.AI.MaxRetries)}

	entries := make([]ai.GeneratorEntry, 0, len(cfg.AI.Generators))
	for i, gc := range cfg.AI.Generators {
		provider, err := ai.NewProvider(gc.Provider, gc.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("init generator %d (%s): %w", i, gc.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      gc.Provider,
			Generator: ai.WrapRetryGenerator(ai.NewGenerator(provider, gc.Model), retryCfg),
		})
	}
	generator := ai.NewGroupGenerator(entries)

	embedEntries := make([]ai.EmbedderEntry, 0, len(cfg.AI.Embedders))
	for i, ec := range cfg.AI.Embedders {
		provider, err := ai.NewEmbedProvider(ec.Provider, ec.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("init embedder %d (%s): %w", i, ec.Provider, err)
		}
		embedEntries = append(embedEntries, ai.EmbedderEntry{
			Name:     ec.Provider,
			Embedder: ai.WrapRetryEmbedder(ai.NewEmbedder(provider, ec.Model), retryCfg),
		})
	}
	// Caches sit outside the chain so a fallback hit is cached the same way.
	embedder := embedcache.WrapDBCacheToEmbedder(ai.NewGroupEmbedder(embedEntries), cacheRepo)
	embedder = embedcache.WrapLruCacheToEmbedder(embedder,
		cfg.EmbedCache.LruSize,
		time.Duration(cfg.EmbedCache.LruTTLMinutes)*time.Minute,
	)
	return generator, embedder, nil
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the query server and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer a.db.Close()
			return runServer(a)
		},
	}
}

func runServer(a *app) error {
	cfg := a.cfg
	rootLogger := logutil.GetLogger(context.Background())
	rootLogger.Info("starting server", zap.Int("port", cfg.Port))

	queryHandler := handler.NewQueryHandler(a.agent)
	statusHandler := handler.NewStatusHandler(a.expansion)
	deps := handler.RouterDeps{
		Query:           queryHandler,
		Status:          statusHandler,
		CORSAllowlist:   cfg.Server.CORSAllowlist,
		RateLimitWindow: time.Duration(cfg.Server.RateLimitWindowMsecs) * time.Millisecond,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	expansionJob := job.NewExpansionJob(a.expansion, a.index)
	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(expansionJob, cfg.Expansion.Cron); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewReindexJob(a.index), cfg.Index.RebuildCron); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.EmbedCache.MaxAgeDays), cfg.EmbedCache.CleanupCron); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Expansion.RunOnStart {
		go func() {
			_ = schedule.RunNow(ctx, expansionJob)
		}()
	}

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			rootLogger.Error("server error", zap.Error(err))
		}
	}()
	rootLogger.Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	<-ctx.Done()
	rootLogger.Info("server stopping...")
	return nil
}

func newExpandCmd(configPath *string) *cobra.Command {
	var batchSize, windowSize int
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "expand one batch of pending messages and refresh their index entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*configPath, func(cfg *config.Config) {
				if batchSize > 0 {
					cfg.Expansion.BatchSize = batchSize
				}
				if windowSize > 0 {
					cfg.Expansion.WindowSize = windowSize
				}
			})
			if err != nil {
				return err
			}
			defer a.db.Close()
			return schedule.RunNow(cmd.Context(), job.NewExpansionJob(a.expansion, a.index))
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "override configured batch size")
	cmd.Flags().IntVar(&windowSize, "window-size", 0, "override configured context window size")
	return cmd
}

func newReindexCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "rebuild the full vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer a.db.Close()
			return schedule.RunNow(cmd.Context(), job.NewReindexJob(a.index))
		},
	}
}

func newStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print expansion backlog progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer a.db.Close()
			stats, err := a.expansion.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newResetCmd(configPath *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset-expansions",
		Short: "delete every stored expansion so the backlog starts over",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete expansions without --yes")
			}
			a, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer a.db.Close()
			deleted, err := a.expansion.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d expansions\n", deleted)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
