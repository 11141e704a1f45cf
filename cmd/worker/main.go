package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/library"
	"github.com/cvlogg/musicgrabber2/internal/metadata"
	"github.com/cvlogg/musicgrabber2/internal/notify"
	"github.com/cvlogg/musicgrabber2/internal/playlist"
	"github.com/cvlogg/musicgrabber2/internal/repository"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/cvlogg/musicgrabber2/internal/service/jellyfin"
	"github.com/cvlogg/musicgrabber2/internal/service/navidrome"
	"github.com/cvlogg/musicgrabber2/internal/service/tagger"
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
	log.Info("starting musicgrabber worker",
		zap.Int("concurrency", cfg.Worker.MaxConcurrent))

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

	// Source clients. All three are constructed; the aggregator only
	// registers the enabled ones, but a job snapshot may still reference
	// a source that was enabled when it was queued.
	catalogueClient := monochrome.NewClient(&cfg.Sources.Monochrome, log)
	extractionClient := ytdlp.NewClient(&cfg.Sources.YTDLP, log)
	peerClient := slskd.NewClient(&cfg.Sources.Slskd, log)

	var adapters []search.Adapter
	if cfg.Sources.Monochrome.Enabled {
		adapters = append(adapters, catalogueClient)
	}
	if cfg.Sources.YTDLP.Enabled {
		adapters = append(adapters, extractionClient)
	}
	if cfg.Sources.Slskd.Enabled {
		adapters = append(adapters, peerClient)
	}
	aggregator := search.NewAggregator(
		adapters,
		blacklistRepo,
		cfg.Aggregator.PerSourceTimeout,
		cfg.Aggregator.DurationTolerance,
		log,
	)

	acoustID := metadata.NewAcoustIDClient(&cfg.Metadata, log)
	musicBrainz := metadata.NewMusicBrainzClient(&cfg.Metadata, log)
	resolver := metadata.NewResolver(&cfg.Metadata, acoustID, musicBrainz, log)
	lyricsClient := metadata.NewLyricsClient(&cfg.Metadata, log)

	taggerService := tagger.NewTagger(log)
	placer := library.NewPlacer(&cfg.Library, log)
	naviClient := navidrome.NewClient(&cfg.Navidrome, log)
	jellyfinClient := jellyfin.NewClient(&cfg.Jellyfin, log)
	notifier := notify.NewNotifier(&cfg.Notify, log)
	providerService := playlist.NewService(&cfg.Scheduler, extractionClient, log)

	if naviClient.Enabled() {
		if err := naviClient.Ping(); err != nil {
			log.Warn("navidrome ping failed", zap.Error(err))
		} else {
			log.Info("navidrome connection successful")
		}
	}
	if jellyfinClient.Enabled() {
		if err := jellyfinClient.Ping(); err != nil {
			log.Warn("jellyfin ping failed", zap.Error(err))
		}
	}

	if err := os.MkdirAll(cfg.Worker.WorkDir, 0755); err != nil {
		log.Fatal("failed to create work dir", zap.Error(err))
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.Redis.URL,
		DB:   cfg.Redis.DB,
	})
	defer asynqClient.Close()

	enqueuer := worker.NewEnqueuer(cfg, jobRepo, aggregator, asynqClient, log)

	downloadTask := worker.NewDownloadTask(
		cfg,
		jobRepo,
		importRepo,
		catalogueClient,
		extractionClient,
		peerClient,
		resolver,
		lyricsClient,
		taggerService,
		placer,
		naviClient,
		jellyfinClient,
		notifier,
		log,
	)
	playlistChecker := worker.NewPlaylistChecker(
		cfg,
		playlistRepo,
		jobRepo,
		providerService,
		enqueuer,
		notifier,
		log,
	)
	bulkImporter := worker.NewBulkImporter(
		cfg,
		importRepo,
		enqueuer,
		notifier,
		log,
	)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr: cfg.Redis.URL,
			DB:   cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.MaxConcurrent,
			Queues: map[string]int{
				"default": 10,
			},
			Logger: &asynqLogger{log},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TypeDownloadTrack, downloadTask.ProcessTask)
	mux.HandleFunc(worker.TypePlaylistCheck, playlistChecker.ProcessTask)
	mux.HandleFunc(worker.TypeBulkImport, bulkImporter.ProcessTask)

	// Periodic playlist checks and the stale job sweep run in-process
	schedCtx, cancelSched := context.WithCancel(context.Background())
	scheduler := worker.NewScheduler(cfg, playlistRepo, jobRepo, asynqClient, log)
	go scheduler.Run(schedCtx)

	log.Info("worker started", zap.Int("concurrency", cfg.Worker.MaxConcurrent))

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatal("failed to start worker", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancelSched()
	srv.Shutdown()
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

// asynqLogger adapts zap to the asynq logger interface.
type asynqLogger struct {
	logger *zap.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Sugar().Debug(args...)
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Sugar().Info(args...)
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Sugar().Warn(args...)
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Sugar().Error(args...)
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Sugar().Fatal(args...)
}
