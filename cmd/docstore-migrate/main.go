package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/config"
	"github.com/jogardn/craft-storefront/internal/docstore"
	"github.com/jogardn/craft-storefront/internal/migration"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadMigration()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := open(ctx, cfg.SourceDriver, cfg.SourceURL, logger)
	defer source.Close()
	target := open(ctx, cfg.TargetDriver, cfg.TargetURL, logger)
	defer target.Close()

	migrator := migration.NewMigrator(source, target, logger)
	settings := migration.DefaultConfig()
	settings.Collections = cfg.Collections
	settings.BatchSize = cfg.BatchSize
	settings.Concurrency = cfg.Concurrency
	settings.DryRun = cfg.DryRun
	migrator.SetConfig(settings)

	result, err := migrator.Copy(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Migration failed")
	}
	if result.Failed > 0 {
		for _, e := range result.Errors {
			logger.WithFields(logrus.Fields{
				"collection":  e.Collection,
				"document_id": e.DocumentID,
			}).Error(e.Error)
		}
	}

	validation, err := migrator.Validate(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Validation failed")
	}
	report, err := migration.Report(validation, cfg.ReportFormat)
	if err != nil {
		logger.WithError(err).Fatal("Failed to render report")
	}
	os.Stdout.Write(report)

	if !validation.IsValid && !cfg.DryRun {
		os.Exit(1)
	}
}

func open(ctx context.Context, driver, dsn string, logger *logrus.Logger) *docstore.SQLStore {
	dialect, err := docstore.DialectFor(driver)
	if err != nil {
		logger.WithError(err).Fatal("Unsupported document store")
	}
	store, err := docstore.OpenSQL(ctx, dialect, dsn, logger)
	if err != nil {
		logger.WithError(err).WithField("driver", driver).Fatal("Failed to connect to database")
	}
	return store
}
