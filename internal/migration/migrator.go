// Package migration copies storefront collections between document-store
// backends and checks that the copy is complete.
package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/docstore"
)

// Target is a backend that accepts documents under their original ids.
type Target interface {
	docstore.Store
	docstore.Importer
}

type Config struct {
	Collections  []string      `json:"collections"`
	BatchSize    int           `json:"batch_size"`
	Concurrency  int           `json:"concurrency"`
	DelayBetween time.Duration `json:"delay_between"`
	DryRun       bool          `json:"dry_run"`
	SkipExisting bool          `json:"skip_existing"`
}

func DefaultConfig() Config {
	return Config{
		Collections:  docstore.Collections,
		BatchSize:    50,
		Concurrency:  5,
		DelayBetween: 100 * time.Millisecond,
		SkipExisting: true,
	}
}

type Result struct {
	TotalDocuments int                       `json:"total_documents"`
	Copied         int                       `json:"copied"`
	Failed         int                       `json:"failed"`
	Skipped        int                       `json:"skipped"`
	PerCollection  map[string]CollectionStat `json:"per_collection"`
	ProcessingTime time.Duration             `json:"processing_time"`
	Errors         []CopyError               `json:"errors"`
	DryRun         bool                      `json:"dry_run"`
	Timestamp      time.Time                 `json:"timestamp"`
}

type CollectionStat struct {
	Source  int `json:"source"`
	Copied  int `json:"copied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type CopyError struct {
	Collection string    `json:"collection"`
	DocumentID string    `json:"document_id"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
}

type Migrator struct {
	source docstore.Store
	target Target
	logger *logrus.Logger
	config Config
}

func NewMigrator(source docstore.Store, target Target, logger *logrus.Logger) *Migrator {
	return &Migrator{
		source: source,
		target: target,
		logger: logger,
		config: DefaultConfig(),
	}
}

func (m *Migrator) SetConfig(config Config) {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if len(config.Collections) == 0 {
		config.Collections = docstore.Collections
	}
	m.config = config
	m.logger.WithFields(logrus.Fields{
		"collections":   config.Collections,
		"batch_size":    config.BatchSize,
		"concurrency":   config.Concurrency,
		"dry_run":       config.DryRun,
		"skip_existing": config.SkipExisting,
	}).Info("Migration configuration updated")
}

// Copy writes every source document that the target lacks (or every document
// when SkipExisting is off) into the target under its original id. Listing
// failures abort the run; per-document failures are collected in the result.
func (m *Migrator) Copy(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{
		PerCollection: make(map[string]CollectionStat),
		Errors:        []CopyError{},
		DryRun:        m.config.DryRun,
		Timestamp:     start,
	}

	for _, collection := range m.config.Collections {
		stat, errs, err := m.copyCollection(ctx, collection)
		if err != nil {
			return nil, err
		}
		result.PerCollection[collection] = stat
		result.TotalDocuments += stat.Source
		result.Copied += stat.Copied
		result.Skipped += stat.Skipped
		result.Failed += stat.Failed
		result.Errors = append(result.Errors, errs...)
	}
	result.ProcessingTime = time.Since(start)

	m.logger.WithFields(logrus.Fields{
		"total":    result.TotalDocuments,
		"copied":   result.Copied,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"dry_run":  result.DryRun,
		"duration": result.ProcessingTime.Milliseconds(),
	}).Info("Migration completed")
	return result, nil
}

func (m *Migrator) copyCollection(ctx context.Context, collection string) (CollectionStat, []CopyError, error) {
	docs, err := m.source.List(ctx, collection)
	if err != nil {
		return CollectionStat{}, nil, fmt.Errorf("failed to list %s from source: %w", collection, err)
	}
	stat := CollectionStat{Source: len(docs)}

	pending := docs
	if m.config.SkipExisting {
		existing, err := m.target.List(ctx, collection)
		if err != nil {
			return stat, nil, fmt.Errorf("failed to list %s from target: %w", collection, err)
		}
		present := make(map[string]bool, len(existing))
		for _, doc := range existing {
			present[doc.ID()] = true
		}
		pending = pending[:0:0]
		for _, doc := range docs {
			if present[doc.ID()] {
				stat.Skipped++
				continue
			}
			pending = append(pending, doc)
		}
	}

	m.logger.WithFields(logrus.Fields{
		"collection": collection,
		"source":     stat.Source,
		"pending":    len(pending),
	}).Info("Copying collection")

	if m.config.DryRun {
		m.logger.WithField("collection", collection).Info("DRY RUN: would copy documents")
		stat.Copied = len(pending)
		return stat, nil, nil
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		errs      []CopyError
		semaphore = make(chan struct{}, m.config.Concurrency)
	)
	for _, batch := range createBatches(pending, m.config.BatchSize) {
		wg.Add(1)
		go func(batch []docstore.Document) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			copied, batchErrs := m.copyBatch(ctx, collection, batch)

			mu.Lock()
			stat.Copied += copied
			stat.Failed += len(batchErrs)
			errs = append(errs, batchErrs...)
			mu.Unlock()

			if m.config.DelayBetween > 0 {
				time.Sleep(m.config.DelayBetween)
			}
		}(batch)
	}
	wg.Wait()

	return stat, errs, nil
}

func (m *Migrator) copyBatch(ctx context.Context, collection string, batch []docstore.Document) (int, []CopyError) {
	var (
		copied int
		errs   []CopyError
	)
	for _, doc := range batch {
		if ctx.Err() != nil {
			errs = append(errs, CopyError{
				Collection: collection,
				DocumentID: doc.ID(),
				Error:      ctx.Err().Error(),
				Timestamp:  time.Now(),
			})
			continue
		}

		id := doc.ID()
		if err := m.target.Put(ctx, collection, id, doc); err != nil {
			errs = append(errs, CopyError{
				Collection: collection,
				DocumentID: id,
				Error:      err.Error(),
				Timestamp:  time.Now(),
			})
			m.logger.WithError(err).WithFields(logrus.Fields{
				"collection":  collection,
				"document_id": id,
			}).Error("Failed to copy document")
			continue
		}
		copied++
	}
	return copied, errs
}

func createBatches(docs []docstore.Document, size int) [][]docstore.Document {
	var batches [][]docstore.Document
	for i := 0; i < len(docs); i += size {
		end := i + size
		if end > len(docs) {
			end = len(docs)
		}
		batches = append(batches, docs[i:end])
	}
	return batches
}
