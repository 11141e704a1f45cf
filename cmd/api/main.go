package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cvlogg/musicgrabber2/internal/api"
	"github.com/cvlogg/musicgrabber2/internal/api/handlers"
	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/library"
	"github.com/cvlogg/musicgrabber2/internal/repository"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/cvlogg/musicgrabber2/internal/source/monochrome"
	"github.com/cvlogg/musicgrabber2/internal/source/slskd"
	"github.com/cvlogg/musicgrabber2/internal/source/ytdlp"
	"github.com/cvlogg/musicgrabber2/internal/worker"
	"github.com/cvlogg/musicgrabber2/pkg/logger"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(
		cfg.Logging.Level,
		cfg.Logging.Format,
		cfg.Logging.Output,
		cfg.Logging.FilePath,
	); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("starting musicgrabber API",
		zap.Int("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.Mode))

	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatal("failed to init database", zap.Error(err))
	}

	if err := repository.InitDB(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	jobRepo := repository.NewJobRepository(db)
	playlistRepo := repository.NewPlaylistRepository(db)
	importRepo := repository.NewImportRepository(db)
	blacklistRepo := repository.NewBlacklistRepository(db)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.Redis.URL,
		DB:   cfg.Redis.DB,
	})
	defer asynqClient.Close()

	aggregator := buildAggregator(cfg, blacklistRepo, log)
	placer := library.NewPlacer(&cfg.Library, log)
	enqueuer := worker.NewEnqueuer(cfg, jobRepo, aggregator, asynqClient, log)

	router := api.SetupRouter(cfg, api.Handlers{
		Jobs:      handlers.NewJobHandler(cfg, jobRepo, enqueuer, placer, log),
		Search:    handlers.NewSearchHandler(cfg, aggregator, log),
		Playlists: handlers.NewPlaylistHandler(cfg, playlistRepo, asynqClient, log),
		Imports:   handlers.NewImportHandler(cfg, importRepo, asynqClient, log),
		Blacklist: handlers.NewBlacklistHandler(blacklistRepo, log),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("server listening", zap.String("addr", addr))

	go func() {
		if err := router.Run(addr); err != nil {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
}

// buildAggregator wires every enabled source adapter into one ranked
// search front. Disabled sources simply never register.
func buildAggregator(cfg *config.Config, blacklist search.Blacklist, log *zap.Logger) *search.Aggregator {
	var adapters []search.Adapter
	if cfg.Sources.Monochrome.Enabled {
		adapters = append(adapters, monochrome.NewClient(&cfg.Sources.Monochrome, log))
	}
	if cfg.Sources.YTDLP.Enabled {
		adapters = append(adapters, ytdlp.NewClient(&cfg.Sources.YTDLP, log))
	}
	if cfg.Sources.Slskd.Enabled {
		adapters = append(adapters, slskd.NewClient(&cfg.Sources.Slskd, log))
	}

	return search.NewAggregator(
		adapters,
		blacklist,
		cfg.Aggregator.PerSourceTimeout,
		cfg.Aggregator.DurationTolerance,
		log,
	)
}

func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}
