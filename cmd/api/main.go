package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shankh-ai/shankh/backend/internal/analysis/symbols"
	"github.com/shankh-ai/shankh/backend/internal/app"
	"github.com/shankh-ai/shankh/backend/internal/config"
	"github.com/shankh-ai/shankh/backend/internal/handler"
	handlermarket "github.com/shankh-ai/shankh/backend/internal/handler/market"
	"github.com/shankh-ai/shankh/backend/internal/model/language"
	"github.com/shankh-ai/shankh/backend/internal/service/ai"
	"github.com/shankh-ai/shankh/backend/internal/service/artifact"
	"github.com/shankh-ai/shankh/backend/internal/service/chat"
	"github.com/shankh-ai/shankh/backend/internal/service/delivery"
	"github.com/shankh-ai/shankh/backend/internal/service/market"
	"github.com/shankh-ai/shankh/backend/internal/service/retrieval"
	"github.com/shankh-ai/shankh/backend/internal/service/speech"
	"github.com/shankh-ai/shankh/backend/internal/service/turn"
)

// runner is a session store with a background expiry loop.
type runner interface {
	chat.Store
	Run(ctx context.Context, interval time.Duration)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	sessions, err := newSessionStore(cfg.Session)
	if err != nil {
		log.Fatalf("failed to open session store: %v", err)
	}
	defer sessions.Close()
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	files, err := newFileStore(cfg.Artifacts)
	if err != nil {
		log.Fatalf("failed to open artifact store: %v", err)
	}
	artifacts := artifact.NewStore(files, cfg.Artifacts.Retention)
	go artifacts.Run(ctx, cfg.Artifacts.ReapInterval)

	openaiClient := ai.NewOpenAIClient(cfg.Generation.OpenAI.APIKey, cfg.Generation.OpenAI.BaseURL)

	generation := ai.NewRouter(cfg.Turn.ProviderTimeout, app.GenerationProviders(ctx, cfg)...)
	if generation.Len() == 0 {
		log.Println("warning: no generation providers configured, every turn will fail - 请检查 ARK_/OPENAI_/GEMINI_ 环境变量")
	}

	tts := speech.NewTTSRouter(cfg.Turn.ProviderTimeout, app.SynthesisProviders(cfg, openaiClient)...)
	asr := speech.NewASRRouter(cfg.Turn.ProviderTimeout, app.TranscriptionProviders(cfg, openaiClient)...)

	languages := language.NewMemoryStore(language.Seed())
	hub := delivery.NewHub(5 * time.Second)

	deps := turn.Deps{
		Sessions:  sessions,
		Generator: generation,
		Languages: languages,
		Retriever: retrieval.NewClient(cfg.Retrieval.ServiceURL, cfg.Retrieval.Timeout, nil),
		Symbols:   symbols.New(cfg.Market.MaxSymbols),
		Publisher: hub,
	}

	var indices handlermarket.IndexSource
	if cfg.Market.Enabled {
		marketClient := market.NewClient(cfg.Market.ServiceURL, cfg.Market.Timeout, nil)
		deps.Quotes = marketClient
		indices = marketClient
	}
	if tts.Len() > 0 {
		deps.Synthesizer = speech.NewSynthesizer(tts, artifacts, speech.SynthesizerOptions{
			MaxSegment: cfg.Speech.MaxSegmentChars,
			Format:     cfg.Speech.Format,
			Speed:      cfg.Speech.TTSSpeed,
			Volume:     cfg.Speech.TTSVolume,
		})
	} else {
		log.Println("语音合成 provider 未配置，回复将不带音频")
	}
	if asr.Len() > 0 {
		deps.Transcriber = speech.NewTranscriber(asr, cfg.Speech.MinConfidence)
	} else {
		log.Println("语音识别 provider 未配置，语音对话不可用")
	}

	orchestrator := turn.New(deps, turn.Options{
		TopK:                 cfg.Retrieval.TopK,
		Threshold:            cfg.Retrieval.Threshold,
		HistoryWindow:        cfg.Turn.HistoryWindow,
		Timeout:              cfg.Turn.Timeout,
		GenerationTimeout:    cfg.Turn.GenerationTimeout,
		SynthesisTimeout:     cfg.Turn.SynthesisTimeout,
		TranscriptionTimeout: cfg.Turn.TranscriptionTimeout,
	})

	router := handler.NewRouter(handler.Deps{
		Sessions:  sessions,
		Turns:     orchestrator,
		Artifacts: artifacts,
		Hub:       hub,
		Languages: languages,
		Market:    indices,
		Providers: map[string][]string{
			"generation":    generation.Names(),
			"synthesis":     tts.Names(),
			"transcription": asr.Names(),
		},
	})

	startServer(ctx, cfg.Server, router)
}

func newSessionStore(cfg config.SessionConfig) (runner, error) {
	opts := chat.Options{MaxTurns: cfg.MaxTurns, TTL: cfg.TTL}
	if cfg.Backend == "badger" {
		log.Printf("[session] using badger store at %s", cfg.Dir)
		return chat.NewBadgerStore(chat.BadgerOptions{Options: opts, Dir: cfg.Dir})
	}
	log.Println("[session] using in-memory store")
	return chat.NewMemoryStore(opts), nil
}

func newFileStore(cfg config.ArtifactConfig) (artifact.FileStore, error) {
	if cfg.Backend == "s3" {
		log.Printf("[artifact] using s3 bucket=%s prefix=%s", cfg.S3Bucket, cfg.S3Prefix)
		client := artifact.NewS3Client(artifact.S3Options{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		return artifact.NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil
	}
	log.Printf("[artifact] using local dir %s", cfg.Dir)
	return artifact.NewLocalStore(cfg.Dir)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Shankh backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
