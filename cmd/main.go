package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gorm.io/gorm"

	"github.com/clara-platform/clara-backend/internal/audio"
	"github.com/clara-platform/clara-backend/internal/config"
	"github.com/clara-platform/clara-backend/internal/data/db"
	"github.com/clara-platform/clara-backend/internal/data/repos"
	"github.com/clara-platform/clara-backend/internal/http/handlers"
	imagesv2 "github.com/clara-platform/clara-backend/internal/images/v2"
	"github.com/clara-platform/clara-backend/internal/jobs"
	"github.com/clara-platform/clara-backend/internal/observability"
	"github.com/clara-platform/clara-backend/internal/phonetic"
	"github.com/clara-platform/clara-backend/internal/pipeline"
	"github.com/clara-platform/clara-backend/internal/platform/envutil"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
	"github.com/clara-platform/clara-backend/internal/platform/openai"
	"github.com/clara-platform/clara-backend/internal/realtime/bus"
	"github.com/clara-platform/clara-backend/internal/render"
	"github.com/clara-platform/clara-backend/internal/server"
	"github.com/clara-platform/clara-backend/internal/services"
	"github.com/clara-platform/clara-backend/internal/tools"
)

func main() {
	cfg, err := config.Load(envutil.Str("CLARA_CONFIG", ""))
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Mode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "clara-backend",
		Environment: cfg.Mode,
	}); shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	// Database
	var gdb *gorm.DB
	if envutil.Str("CLARA_DB", "postgres") == "sqlite" {
		gdb, err = db.NewSQLite(log, envutil.Str("CLARA_SQLITE_PATH", "clara.db"))
	} else {
		var pg *db.PostgresService
		pg, err = db.NewPostgresService(log)
		if err == nil {
			gdb = pg.DB()
		}
	}
	if err != nil {
		log.Fatal("database init failed", "error", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		log.Fatal("database migration failed", "error", err)
	}
	allRepos := repos.NewAll(gdb, log)

	// File store
	var fs filestore.Store
	if cfg.FileStoreBackend == "gcs" {
		fs, err = filestore.NewGCS(ctx, log)
	} else {
		fs, err = filestore.NewLocal(cfg.FileStoreRoot)
	}
	if err != nil {
		log.Fatal("file store init failed", "error", err)
	}

	// Model clients. The OpenAI-shaped client covers text, JSON, images,
	// multimodal interpretation and TTS; DeepSeek selects itself via config.
	aiClient, err := openai.NewClient(log, cfg.AI)
	if err != nil {
		log.Fatal("model client init failed", "error", err)
	}

	// Rule tools
	toolList := []tools.Tool{tools.NewPinyinTagger(log), tools.NewTreeTagger(log)}
	if ja, jaErr := tools.NewJapaneseSegmenter(log); jaErr != nil {
		log.Warn("japanese segmenter unavailable", "error", jaErr)
	} else {
		toolList = append(toolList, ja)
	}
	registry := tools.NewRegistry(toolList...)

	// Core engines
	layers := pipeline.NewLayerStore(fs, allRepos.TextVersion, log)
	templates := pipeline.NewTemplateStore(fs, log)
	annotator := pipeline.NewAnnotator(aiClient, templates, cfg.AI.RetryLimit, cfg.AI.MaxAnnotationElements, log)
	annotation := pipeline.NewEngine(layers, templates, annotator, aiClient, registry, log)

	audioSvc := audio.NewService(allRepos.Audio, fs, log)
	phoneticSvc := phonetic.NewService(allRepos.Lexicon, log)
	imageEngine := imagesv2.NewEngine(fs, aiClient, aiClient, aiClient, cfg.Images, log)
	composer := render.NewComposer(fs, layers, audioSvc, phoneticSvc, allRepos.ImageRecord, log)

	ledgerSvc := services.NewLedgerService(allRepos.User, allRepos.Ledger, log)
	projectSvc := services.NewProjectService(fs, allRepos.Project, log)

	// Job updates cross replicas over redis when configured.
	var jobBus bus.Bus = bus.Nop{}
	if cfg.Redis.Addr != "" {
		jobBus, err = bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			log.Warn("redis bus unavailable, running single-replica", "error", err)
			jobBus = bus.Nop{}
		}
	}
	defer jobBus.Close()

	// Worker pool
	jobRegistry := jobs.Registry{}
	jobs.RegisterDefaults(jobRegistry, jobs.HandlerDeps{
		FS:       fs,
		Projects: allRepos.Project,
		Pipeline: annotation,
		Composer: composer,
		Images:   imageEngine,
		TTS:      aiClient,
	})
	pool := jobs.NewPool(allRepos.JobRun, allRepos.JobUpdate, jobRegistry,
		bus.NewJobNotifier(jobBus, log), cfg.Worker, log)
	go func() {
		if err := pool.Run(ctx); err != nil {
			log.Error("worker pool stopped", "error", err)
		}
	}()
	jobSvc := jobs.NewService(allRepos.JobRun, allRepos.JobUpdate, log)

	// Router
	router := server.NewRouter(server.RouterConfig{
		ProjectHandler: handlers.NewProjectHandler(projectSvc, ledgerSvc),
		JobHandler:     handlers.NewJobHandler(jobSvc, ledgerSvc),
		ContentHandler: handlers.NewContentHandler(fs, projectSvc),
		ImageHandler:   handlers.NewImageHandler(imageEngine, projectSvc),
		LexiconHandler: handlers.NewLexiconHandler(phoneticSvc),
		AudioHandler:   handlers.NewAudioHandler(audioSvc, layers, projectSvc),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info("server listening", "addr", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal("server failed", "error", err)
	}
}
