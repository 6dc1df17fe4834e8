package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"meetscribe/internal/config"
	"meetscribe/internal/http"
	"meetscribe/internal/llm"
	"meetscribe/internal/objectstore"
	"meetscribe/internal/pipeline"
	"meetscribe/internal/search"
	"meetscribe/internal/storage"
	"meetscribe/internal/stt"
	"meetscribe/internal/sweeper"
	"meetscribe/internal/upload"
	"meetscribe/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	sessions := storage.NewSessionRepo(db)
	meetings := storage.NewMeetingRepo(db)
	tasks := storage.NewTaskRepo(db)

	objects, err := objectstore.NewFSStore(cfg.StorageDir)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	ctx := context.Background()

	// Qdrant backs the transcript search supplement. The core pipeline runs
	// without it if the vector store is unreachable at startup.
	var (
		vectorStore vectorstore.VectorStore
		indexer     pipeline.TranscriptIndexer
		searcher    *search.Searcher
	)
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
	qdrant, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		slog.Warn("Qdrant unavailable, transcript search disabled", "error", err)
	} else if err := qdrant.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		slog.Warn("Qdrant collection not ready, transcript search disabled", "error", err)
	} else {
		vectorStore = qdrant
		indexer = search.NewIndexer(embedder, qdrant, cfg.QdrantCollection)
		searcher = search.NewSearcher(embedder, qdrant, cfg.QdrantCollection)
		slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)
	}

	// Pipeline wiring
	provider := stt.NewClient(cfg.STTBaseURL, cfg.STTAPIKey)
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
	analyzer := llm.NewAnalyzer(llmClient)

	extractor := pipeline.NewExtractor(sessions, meetings, tasks, analyzer, indexer)
	trigger := &pipeline.AsyncTrigger{Extractor: extractor}
	transcriber := pipeline.NewTranscriber(sessions, provider, trigger)
	recovery := pipeline.NewRecovery(sessions, transcriber, cfg.StuckGracePeriod)
	manager := upload.NewManager(sessions, objects, transcriber, cfg.PublicBaseURL)

	router := http.NewRouter(&http.Deps{
		DB:            db,
		Sessions:      sessions,
		Meetings:      meetings,
		Tasks:         tasks,
		Objects:       objects,
		UploadManager: manager,
		Transcriber:   transcriber,
		Provider:      provider,
		Extractor:     extractor,
		Recovery:      recovery,
		Searcher:      searcher,
		VectorStore:   vectorStore,
		Collection:    cfg.QdrantCollection,
	})

	// In-process maintenance loop. The sweep endpoints expose the same
	// operations for an external scheduler when the interval is zero.
	if cfg.SweepInterval > 0 {
		sweep := sweeper.New(cfg.SweepInterval, logger,
			sweeper.Job{Name: "fix-stuck-transcriptions", Run: func(ctx context.Context) error {
				_, err := recovery.FixStuck(ctx)
				return err
			}},
			sweeper.Job{Name: "process-unprocessed", Run: func(ctx context.Context) error {
				_, err := extractor.ProcessUnprocessed(ctx)
				return err
			}},
		)
		sweep.Start(ctx)
		slog.Info("Background sweeper started", "interval", cfg.SweepInterval)
	}

	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
