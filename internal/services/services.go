// Package services wires every component from one Config value.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/streed/snap-notes/internal/compose"
	"github.com/streed/snap-notes/internal/config"
	"github.com/streed/snap-notes/internal/constants"
	"github.com/streed/snap-notes/internal/extract"
	"github.com/streed/snap-notes/internal/llm"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
	"github.com/streed/snap-notes/internal/peers"
	"github.com/streed/snap-notes/internal/pipeline"
	"github.com/streed/snap-notes/internal/scheduler"
	"github.com/streed/snap-notes/internal/search"
	"github.com/streed/snap-notes/internal/store"
	"github.com/streed/snap-notes/internal/summarize"
)

// Services contains all the service dependencies
type Services struct {
	Config     *config.Config
	Store      *store.Store
	Index      *search.Index
	Extractor  *extract.Extractor
	Router     *peers.Router
	Composer   *compose.Composer
	Pipeline   *pipeline.Orchestrator
	Summarizer *summarize.Summarizer
	Scheduler  *scheduler.Scheduler
}

// Option adjusts how services are built.
type Option func(*options)

type options struct {
	launcher peers.Launcher
}

// WithLauncher replaces how peer processes are started.
func WithLauncher(l peers.Launcher) Option { return func(o *options) { o.launcher = l } }

// NewServices creates a new services container
func NewServices(cfg *config.Config, opts ...Option) (*Services, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	st := store.New(cfg.DataDirectory)
	index, err := search.Open(cfg, st)
	if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}

	extractor, err := NewExtractor(cfg)
	if err != nil {
		index.Close()
		return nil, err
	}

	router := peers.NewRouter(cfg, o.launcher)
	composer := compose.New(cfg.DefaultTags, cfg.OCR.MinConfidence)
	orchestrator := pipeline.New(extractor, router, composer, st, index,
		pipeline.WithTimeout(cfg.PipelineTimeout.Std()))

	gen, err := llm.New(llm.SummaryOptions(cfg.Summary, constants.DefaultSummaryTimeout))
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("summary provider: %w", err)
	}
	summarizer := summarize.NewSummarizer(gen, st)

	jobs, err := scheduler.JobsFromConfig(cfg.Summary)
	if err != nil {
		index.Close()
		return nil, err
	}

	return &Services{
		Config:     cfg,
		Store:      st,
		Index:      index,
		Extractor:  extractor,
		Router:     router,
		Composer:   composer,
		Pipeline:   orchestrator,
		Summarizer: summarizer,
		Scheduler:  scheduler.New(index, summarizer, jobs),
	}, nil
}

// NewExtractor builds the OCR and VLM adapters from cfg.
func NewExtractor(cfg *config.Config) (*extract.Extractor, error) {
	ocr := extract.NewTesseract(extract.TesseractConfig{
		TesseractPath: cfg.OCR.TesseractPath,
		Languages:     cfg.OCR.Languages,
	})
	if cfg.OCR.Enabled {
		if err := ocr.Available(); err != nil {
			logger.Warn("OCR is enabled but unavailable: %v", err)
		}
	}

	gen, err := llm.New(llm.VLMOptions(cfg.VLM))
	if err != nil {
		return nil, fmt.Errorf("vlm provider: %w", err)
	}

	return extract.New(
		extract.Binding{Adapter: ocr, Enabled: cfg.OCR.Enabled, Timeout: cfg.OCR.Timeout.Std()},
		extract.Binding{Adapter: extract.NewVLM(gen, cfg.VLM.Prompt), Enabled: cfg.VLM.Enabled, Timeout: cfg.VLM.Timeout.Std()},
	), nil
}

// Summarize runs a summary over the last days outside the schedule.
func (s *Services) Summarize(ctx context.Context, kind models.PeriodKind, days int) (string, error) {
	return s.Scheduler.Fire(ctx, kind, days, time.Now())
}

// Close cleans up any resources
func (s *Services) Close() error {
	s.Router.Close()
	return s.Index.Close()
}
