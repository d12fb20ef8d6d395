package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"gaitserver/internal/analysis"
	"gaitserver/internal/http/handlers"
	httpapi "gaitserver/internal/http/httpapi"
	"gaitserver/internal/infra"
	"gaitserver/internal/pipeline"
	"gaitserver/internal/pose"
	"gaitserver/internal/storage"
	"gaitserver/internal/video"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	estimator := pose.NewHTTPEstimator(cfg.InferenceURL, cfg.InferenceTimeout)
	decoder := &video.FFmpegDecoder{FFmpegPath: cfg.FFmpegPath, FFprobePath: cfg.FFprobePath, Log: logger}
	encoder := &video.FFmpegEncoder{FFmpegPath: cfg.FFmpegPath, Log: logger}

	pipe := pipeline.New(pipeline.Options{
		Store:                    store,
		Estimator:                estimator,
		Engine:                   analysis.NewEngine(cfg.ConfidenceThreshold),
		Decoder:                  decoder,
		Encoder:                  encoder,
		Annotator:                video.NewAnnotator(cfg.ConfidenceThreshold),
		Log:                      logger,
		PresignTTL:               cfg.PresignTTL,
		MaxConcurrentEstimations: cfg.MaxConcurrentEstimations,
	})

	app := handlers.NewApp(pipe, store, logger)
	router := httpapi.NewRouter(app, logger)
	server := infra.NewHTTPServer(cfg, router)

	// Start async
	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// newStore selects the storage backend from configuration.
func newStore(ctx context.Context, cfg *infra.Config) (storage.Store, error) {
	if cfg.StorageBackend == "filesystem" {
		return storage.NewFileStore(cfg.StorageBasePath, cfg.StorageBaseURL)
	}
	return storage.NewMinioStore(ctx, storage.MinioOptions{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
}
