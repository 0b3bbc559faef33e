package app

import (
	"log/slog"

	"github.com/antoniostano/voicebridge/internal/config"
	"github.com/antoniostano/voicebridge/internal/httpapi"
	"github.com/antoniostano/voicebridge/internal/logging"
	"github.com/antoniostano/voicebridge/internal/observability"
	"github.com/antoniostano/voicebridge/internal/upstream"
)

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Build wires the upstream clients, metrics and HTTP layer from a loaded
// config. It performs no network I/O; the first upstream call happens when
// a client sends a frame.
func Build(cfg config.Config) (*BuildResult, error) {
	logger := logging.New(cfg.LogLevel).With(
		slog.String("service", Name),
		slog.String("version", Version),
		slog.String("environment", cfg.Environment),
	)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	upstreamCfg := upstream.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
	}
	chat := upstream.NewChatClient(upstreamCfg, cfg.ChatModel, cfg.ChatTimeout)
	speech := upstream.NewSpeechClient(upstreamCfg, cfg.TTSModel, cfg.TTSVoice, cfg.TTSTimeout)

	api := httpapi.New(cfg, httpapi.BuildInfo{Name: Name, Version: Version}, chat, speech, metrics,
		logging.ForComponent(logger, "gateway"))

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Metrics: metrics,
		Logger:  logger,
	}, nil
}
