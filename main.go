package main

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"feedsync/config"
	"feedsync/internal/handlers"
	"feedsync/internal/media"
	"feedsync/internal/monitor"
	"feedsync/internal/phone"
	"feedsync/internal/source"
	"feedsync/internal/store"
	syncengine "feedsync/internal/sync"
	"feedsync/pkg/logger"
)

func main() {
	logger.InitLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	sourceClient, err := source.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize provider feed client")
	}

	var attachments syncengine.AttachmentStore
	if cfg.S3Enabled {
		uploader, err := media.NewUploader(media.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 attachment uploader")
		}
		attachments = uploader
	}

	sinks := []monitor.Sink{monitor.LogSink{}}
	if cfg.RabbitURL != "" {
		rabbit, err := monitor.NewRabbitSink(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Error().Err(err).Msg("RabbitMQ sink unavailable, continuing without it")
		} else {
			defer rabbit.Close()
			sinks = append(sinks, rabbit)
		}
	}
	sink := monitor.NewMultiSink(sinks...)

	normalizer := phone.NewNormalizer(cfg.DefaultCountryCode)
	classifier := syncengine.NewKeywordClassifier()
	detector := syncengine.NewDuplicateDetector(db, cfg.DuplicateWindow)
	identity := syncengine.NewIdentityResolver(db)
	conversations := syncengine.NewConversationResolver(db, classifier)
	importer := syncengine.NewMessageImporter(db, attachments)
	pipeline := syncengine.NewPipeline(normalizer, detector, identity, conversations, importer, classifier)

	orchestrator := syncengine.NewOrchestrator(syncengine.OrchestratorConfig{
		PageSize:            cfg.PageSize,
		ErrorBudget:         cfg.ErrorBudget,
		BatchInterval:       cfg.BatchInterval,
		MaxHistoryWindow:    cfg.MaxHistoryWindow,
		IncrementalLookback: cfg.IncrementalLookback,
	}, sourceClient, pipeline, db, sink)

	handler := handlers.NewHandler(pipeline, orchestrator, db, cfg.WebhookSecret)

	log.Info().Str("port", cfg.Port).Msg("Server starting")
	if err := http.ListenAndServe(":"+cfg.Port, handler.Router()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
