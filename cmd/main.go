package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Vovarama1992/go-utils/httputil"
	"github.com/Vovarama1992/go-utils/logger"

	"github.com/Vovarama1992/dubflow/internal/config"
	"github.com/Vovarama1992/dubflow/internal/delivery"
	"github.com/Vovarama1992/dubflow/internal/domain"
	"github.com/Vovarama1992/dubflow/internal/infra"
	"github.com/Vovarama1992/dubflow/internal/media"
	"github.com/Vovarama1992/dubflow/internal/notify"
	"github.com/Vovarama1992/dubflow/internal/pipeline"
	"github.com/Vovarama1992/dubflow/internal/speech"
	"github.com/Vovarama1992/dubflow/internal/transcribe"
	"github.com/Vovarama1992/dubflow/internal/translate"
	"github.com/Vovarama1992/dubflow/internal/watcher"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

func main() {

	// =========================================================================
	// ENV / DB INIT
	// =========================================================================

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()

	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("db ping failed: %v", err)
	}
	defer db.Close()

	baseLogger, _ := zap.NewProduction()
	defer baseLogger.Sync()
	zl := logger.NewZapLogger(baseLogger.Sugar())

	// =========================================================================
	// INFRASTRUCTURE
	// =========================================================================

	s3Client, err := infra.NewS3Client(cfg.S3)
	if err != nil {
		log.Fatalf("failed to init s3: %v", err)
	}

	jobRepo := infra.NewJobRepo(db)
	artifactRepo := infra.NewArtifactRepo(db)
	ffmpeg := media.NewFFmpeg(infra.NewRunner())

	notifier, err := notify.NewTelegramNotifier(cfg.AdminBotToken, cfg.AdminChatID)
	if err != nil {
		log.Fatalf("failed to init notifier: %v", err)
	}

	// =========================================================================
	// PROVIDERS
	// =========================================================================

	openAIClient := openai.NewClient(cfg.OpenAIKey)

	transcriber := transcribe.NewWhisperClient(openAIClient)
	translator := translate.NewService(
		translate.NewLLMTranslator(openAIClient, os.Getenv("TRANSLATE_MODEL"), keepTerms()),
		cfg.CharsPerSecond,
		cfg.TranslateParallel,
		cfg.MaxStageAttempts,
	)

	var synthesizer speech.Synthesizer
	if cfg.TTSProvider == "elevenlabs" {
		synthesizer = speech.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.TTSVoice, cfg.TargetLanguage)
	} else {
		synthesizer = speech.NewOpenAIClient(openAIClient, cfg.TTSVoice)
	}

	// =========================================================================
	// SERVICES
	// =========================================================================

	jobService := domain.NewJobService(jobRepo, s3Client, cfg.SourceLanguage, cfg.TargetLanguage)

	pipe := pipeline.New(
		jobRepo,
		artifactRepo,
		s3Client,
		transcriber,
		translator,
		synthesizer,
		ffmpeg,
		notifier,
		cfg.Workers,
		cfg.MaxStageAttempts,
		cfg.ConfidenceThreshold,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go pipe.Run(ctx)

	// =========================================================================
	// INBOX WATCHER (optional)
	// =========================================================================

	if cfg.InboxDir != "" {
		if err := os.MkdirAll(cfg.InboxDir, 0755); err != nil {
			log.Fatalf("failed to create inbox dir: %v", err)
		}

		w, err := watcher.New(cfg.InboxDir, cfg.ArchiveDir, jobService)
		if err != nil {
			log.Fatalf("failed to init watcher: %v", err)
		}
		defer w.Stop()

		go func() {
			if err := w.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("[watcher] stopped: %v", err)
			}
		}()
	}

	// =========================================================================
	// HTTP ROUTER
	// =========================================================================

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	jobHandler := delivery.NewJobHandler(jobService, zl)
	delivery.RegisterRoutes(r, jobHandler)

	r.With(httputil.RecoverMiddleware).Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("pong"))
	})

	// =========================================================================
	// START SERVER
	// =========================================================================

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		zl.Log(logger.LogEntry{
			Level:   "info",
			Message: "listening at " + addr,
			Service: "dubflow",
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// =========================================================================
	// GRACEFUL SHUTDOWN
	// =========================================================================

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("shutdown signal received")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

// keepTerms lists proper nouns the translator must pass through verbatim.
func keepTerms() []string {
	raw := os.Getenv("KEEP_TERMS")
	if raw == "" {
		return nil
	}
	var terms []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}
