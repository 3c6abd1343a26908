package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"posterpro/ai"
	"posterpro/common"
	"posterpro/notify"
	"posterpro/pipelines/poster"
	"posterpro/storage"
	"posterpro/templates"
)

// app holds everything built from the configuration. close releases the
// native resources.
type app struct {
	Services
	extractor *poster.ImageExtractor
}

func (a *app) close() {
	if a.extractor != nil {
		a.extractor.Close()
	}
}

func buildApp(ctx context.Context, cfg *common.Config, logger zerolog.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := common.MustNewMetrics(reg)

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		return nil, common.IOError("create upload dir", err)
	}

	catalog, err := templates.LoadCatalog(cfg.TemplateConfigFile)
	if err != nil {
		return nil, err
	}
	library := templates.NewLibrary(cfg.TemplateLibraryDir, cfg.DefaultTemplate, catalog, nil)
	if err := library.Init(); err != nil {
		return nil, err
	}

	providers, err := ai.NewProviders(ctx, ai.ProviderConfig{
		OpenAIKey:      cfg.OpenAIKey,
		OpenAIModel:    cfg.OpenAIModel,
		AnthropicKey:   cfg.AnthropicKey,
		AnthropicModel: cfg.AnthropicModel,
		GeminiKey:      cfg.GeminiKey,
		GeminiModel:    cfg.GeminiModel,
	})
	if err != nil {
		return nil, common.ConfigError("failed to create AI clients", err)
	}
	if len(providers) == 0 {
		logger.Warn().Msg("no AI provider key set, only dummy mode will work")
	}
	requester := ai.NewRequester(providers, ai.RequesterOptions{
		MaxPromptTokens:   cfg.MaxPromptTokens,
		RequestsPerMinute: cfg.RequestsPerMin,
		Dummy:             ai.NewDummyStore(cfg.DummyDataFile),
		Metrics:           metrics,
		Logger:            &logger,
	})

	pipeline := poster.NewPipeline(requester, library, metrics, logger)
	a := &app{}
	if cfg.AutoFigures {
		if _, err := os.Stat(cfg.YOLOModelPath); err == nil {
			extractor, err := poster.NewImageExtractor(cfg.YOLOModelPath, poster.DefaultONNXLibrary(), logger)
			if err != nil {
				logger.Warn().Err(err).Msg("figure detection disabled")
			} else {
				a.extractor = extractor
				pipeline.Extractor = extractor
			}
		} else {
			logger.Warn().Str("model", cfg.YOLOModelPath).Msg("figure model not found, figure detection disabled")
		}
	}
	if cfg.OutputBucket != "" {
		archiver, err := storage.NewS3Archiver(cfg.OutputBucket, cfg.AWSRegion, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		pipeline.Archiver = archiver
	}

	cleaner := poster.NewCleaner(cfg.UploadDir, cfg.AutoCleanupUploads, cfg.KeepFinalOutput, logger)
	if _, err := cleaner.Sweep(1, time.Now()); err != nil {
		logger.Warn().Err(err).Msg("startup cleanup failed")
	}

	notifier := notify.New(notify.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		To:       cfg.AdminEmail,
	}, logger)
	if !notifier.Configured() {
		logger.Info().Msg("SMTP not configured, signups will only be logged")
	}

	a.Services = Services{
		Config:    cfg,
		Requester: requester,
		Library:   library,
		Pipeline:  pipeline,
		Cleaner:   cleaner,
		Notifier:  notifier,
		Metrics:   metrics,
		Registry:  reg,
		Logger:    logger,
	}
	return a, nil
}

// loadConfig reads the .env file, the environment and sets up logging
func loadConfig(envFile string) (*common.Config, zerolog.Logger, error) {
	envErr := common.LoadEnv(envFile)
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, common.Log, err
	}
	logger := common.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if envErr != nil {
		logger.Debug().Str("file", envFile).Msg("no .env file loaded")
	}
	if cfg.SecretKey == "your-secret-key-here" {
		logger.Warn().Msg("SECRET_KEY is the default value")
	}
	return cfg, logger, nil
}

func addrFor(port string) string {
	if port == "" {
		return ":5000"
	}
	if port[0] == ':' {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
