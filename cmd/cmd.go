package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/pdfqa/internal/types"
	"github.com/xhad/pdfqa/pkg/config"
	"github.com/xhad/pdfqa/pkg/extract"
	"github.com/xhad/pdfqa/pkg/ingest"
	"github.com/xhad/pdfqa/pkg/llm"
	"github.com/xhad/pdfqa/pkg/qa"
	"github.com/xhad/pdfqa/pkg/search"
	"github.com/xhad/pdfqa/pkg/store"
)

var (
	configPath string
	dbURL      string
)

var rootCmd = &cobra.Command{
	Use:           "pdfqa",
	Short:         "Ask questions about your PDFs and get cited answers",
	Long:          `pdfqa ingests PDF documents into PostgreSQL and answers questions strictly from their text, citing the pages it used.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "PostgreSQL connection string (overrides config)")
}

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *store.Store
	embedder  *llm.Embedder
	ingestor  *ingest.Ingestor
	reindexer *ingest.Reindexer
	qa        *qa.Service
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}

	if verrs := cfg.Validate(); len(verrs) > 0 {
		errs := make([]error, 0, len(verrs))
		for _, v := range verrs {
			errs = append(errs, v)
		}
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	zcfg.Level = level

	return zcfg.Build()
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func chatFactory(cfg *config.Config) qa.ChatFactory {
	return func(s config.ChatSettings) (types.ChatCompleter, error) {
		engine, err := llm.NewWithConfig(llm.ChatConfig{
			Provider:    cfg.Chat.Provider,
			Model:       s.Model,
			BaseURL:     s.BaseURL,
			APIKey:      s.APIKey,
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
			Timeout:     seconds(cfg.Chat.TimeoutSecs),
		})
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}

// openApp loads configuration and connects every component.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.NewWithConfig(ctx, store.StoreConfig{
		ConnString:       cfg.Database.URL,
		VectorDim:        cfg.Database.VectorDim,
		TextSearchConfig: cfg.Database.TextSearchConfig,
	}, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey,
		Dimension: cfg.Database.VectorDim,
		Timeout:   seconds(cfg.Embeddings.TimeoutSecs),
		BatchSize: cfg.Embeddings.BatchSize,
		RateLimit: cfg.Embeddings.RateLimit,
		CacheSize: cfg.Embeddings.CacheSize,
	}, logger.Named("embeddings"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
	}

	citeAll := cfg.Answer.CiteAllWhenUncited == nil || *cfg.Answer.CiteAllWhenUncited
	service, err := qa.NewService(qa.ServiceConfig{
		DefaultTopK:        cfg.Search.DefaultTopK,
		CiteAllWhenUncited: citeAll,
	}, search.New(st, logger.Named("search")), embedder, cfg.ChatSettings(), chatFactory(cfg), logger.Named("qa"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		embedder: embedder,
		ingestor: ingest.NewIngestor(ingest.IngestorConfig{
			FilesDir:    cfg.Server.FilesDir,
			FileStorage: cfg.Server.FileStorage,
			MaxChars:    cfg.Chunker.MaxChars,
		}, st, extract.NewPDFExtractor(), embedder, logger.Named("ingest")),
		reindexer: ingest.NewReindexer(st, embedder, logger.Named("reindex")),
		qa:        service,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	_ = a.logger.Sync()
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
