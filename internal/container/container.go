// Package container wires the application's components from a Config.
package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fjacquet/stmt-ledger/internal/batch"
	"fjacquet/stmt-ledger/internal/config"
	"fjacquet/stmt-ledger/internal/importer"
	"fjacquet/stmt-ledger/internal/ledger"
	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/mbankparser"
	"fjacquet/stmt-ledger/internal/merchant"
	"fjacquet/stmt-ledger/internal/parser"
	"fjacquet/stmt-ledger/internal/report"
	"fjacquet/stmt-ledger/internal/repository"
	"fjacquet/stmt-ledger/internal/repository/sqlrepo"
	"fjacquet/stmt-ledger/internal/store"
	"fjacquet/stmt-ledger/internal/tagging"
)

// Container holds every wired dependency. Fields are private; use the
// getters.
type Container struct {
	logger    logging.Logger
	config    *config.Config
	repo      repository.Repository
	tables    *store.Tables
	parsers   *parser.Registry
	extractor *merchant.Extractor
	ledger    *ledger.Ledger
	engine    *tagging.Engine
	importer  *importer.Importer
	runner    *batch.Runner
	reports   *report.Generator
	gemini    *tagging.GeminiGenerator
}

// NewContainer opens the configured database and wires everything on top
// of it.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	logger := logging.NewLogrusAdapter(cfg.Log.Level, cfg.Log.Format)

	repo, err := sqlrepo.Open(ctx, sqlrepo.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}, logger)
	if err != nil {
		return nil, err
	}

	c, err := NewWithRepository(ctx, cfg, repo, logger)
	if err != nil {
		if cerr := repo.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}
	return c, nil
}

// NewWithRepository wires the components on an already opened repository.
// The container takes ownership of repo and closes it in Close.
func NewWithRepository(ctx context.Context, cfg *config.Config, repo repository.Repository, logger logging.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	tables, err := store.Load(cfg.Tagging.TablesFile)
	if err != nil {
		return nil, err
	}
	seeded, err := store.Seed(ctx, repo, tables, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("Seeded merchant tables",
		logging.F("merchants", seeded.Merchants),
		logging.F("patterns", seeded.Patterns),
		logging.F("default_tags", seeded.DefaultTags))

	parsers := parser.NewRegistry(mbankparser.NewParser(logger))
	extractor := merchant.NewExtractor(repo, repo, logger, merchant.Options{
		PatternConfidence: cfg.Merchant.PatternConfidence,
		CacheTTL:          time.Duration(cfg.Merchant.CacheTTLSeconds) * time.Second,
	})
	l := ledger.New(repo, logger)
	engine := tagging.NewEngine(repo, l, tables, logger, tagging.Options{
		MinApplyConfidence:    cfg.Tagging.MinApplyConfidence,
		AutoMerchantThreshold: cfg.Merchant.AutoMerchantThreshold,
	})

	c := &Container{
		logger:    logger,
		config:    cfg,
		repo:      repo,
		tables:    tables,
		parsers:   parsers,
		extractor: extractor,
		ledger:    l,
		engine:    engine,
		reports:   report.NewGenerator(logger),
	}

	if cfg.AI.Enabled {
		gen, err := tagging.NewGeminiGenerator(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			logger.WithError(err).Warn("NLP tagging disabled")
		} else {
			c.gemini = gen
			engine.AddSource(tagging.NewNLPSource(gen, repo, tagging.NLPOptions{
				MaxTags: cfg.AI.MaxTags,
				Timeout: time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
			}, logger))
			logger.Info("NLP tagging enabled", logging.F("model", cfg.AI.Model))
		}
	}

	c.importer = importer.New(repo, parsers, extractor, engine, l, logger, importer.Options{
		Format:               parser.Format(cfg.Import.Format),
		AutoEnrich:           cfg.Import.AutoEnrich,
		AutoTag:              cfg.Import.AutoTag,
		MaxRowErrorsReported: cfg.Import.MaxRowErrorsReported,
	})
	c.runner = batch.NewRunner(c.importer, logger, cfg.Import.Workers)

	logger.Info("Container initialized",
		logging.F(logging.FieldDriver, cfg.Database.Driver),
		logging.F("sources", engine.Sources()))
	return c, nil
}

// GetLogger returns the application logger.
func (c *Container) GetLogger() logging.Logger { return c.logger }

// GetConfig returns the configuration the container was built from.
func (c *Container) GetConfig() *config.Config { return c.config }

// GetRepository returns the persistence layer.
func (c *Container) GetRepository() repository.Repository { return c.repo }

// GetTables returns the loaded tagging tables.
func (c *Container) GetTables() *store.Tables { return c.tables }

// GetParsers returns the statement parser registry.
func (c *Container) GetParsers() *parser.Registry { return c.parsers }

// GetExtractor returns the merchant extractor.
func (c *Container) GetExtractor() *merchant.Extractor { return c.extractor }

// GetLedger returns the tag ledger.
func (c *Container) GetLedger() *ledger.Ledger { return c.ledger }

// GetEngine returns the auto-tagging engine.
func (c *Container) GetEngine() *tagging.Engine { return c.engine }

// GetImporter returns the import orchestrator.
func (c *Container) GetImporter() *importer.Importer { return c.importer }

// GetRunner returns the directory import runner.
func (c *Container) GetRunner() *batch.Runner { return c.runner }

// GetReportGenerator returns the batch report renderer.
func (c *Container) GetReportGenerator() *report.Generator { return c.reports }

// Close releases the language model client and the repository.
func (c *Container) Close() error {
	var errs []error
	if c.gemini != nil {
		errs = append(errs, c.gemini.Close())
	}
	if c.repo != nil {
		errs = append(errs, c.repo.Close())
	}
	c.logger.Debug("Container closed")
	return errors.Join(errs...)
}
