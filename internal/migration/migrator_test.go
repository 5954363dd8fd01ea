package migration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/craft-storefront/internal/docstore"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func seed(t *testing.T, store *docstore.MemoryStore, collection string, docs ...docstore.Document) []string {
	t.Helper()
	var ids []string
	for _, doc := range docs {
		id, err := store.Insert(context.Background(), collection, doc)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func quickConfig() Config {
	config := DefaultConfig()
	config.BatchSize = 2
	config.DelayBetween = 0
	return config
}

func TestMigrator_CopyKeepsIDsAndStamps(t *testing.T) {
	source, target := docstore.NewMemoryStore(), docstore.NewMemoryStore()
	productIDs := seed(t, source, docstore.Products,
		docstore.Document{"name": "Vase", "category": "Ceramics", "price": 10},
		docstore.Document{"name": "Bowl", "category": "Ceramics", "price": 20},
		docstore.Document{"name": "Tile", "category": "Marbles", "price": 30},
	)
	seed(t, source, docstore.DeliveryCharges, docstore.Document{"city": "Lahore", "charge": 10})

	m := NewMigrator(source, target, testLogger())
	m.SetConfig(quickConfig())

	result, err := m.Copy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.TotalDocuments)
	assert.Equal(t, 4, result.Copied)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 3, result.PerCollection[docstore.Products].Copied)

	for _, id := range productIDs {
		want, err := source.Get(context.Background(), docstore.Products, id)
		require.NoError(t, err)
		got, err := target.Get(context.Background(), docstore.Products, id)
		require.NoError(t, err)
		assert.Equal(t, want["createdAt"], got["createdAt"])
		assert.Equal(t, want["name"], got["name"])
	}

	validation, err := m.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, validation.IsValid)
	assert.Equal(t, 100.0, validation.SyncPercentage)
}

func TestMigrator_SkipsExistingAndDryRun(t *testing.T) {
	source, target := docstore.NewMemoryStore(), docstore.NewMemoryStore()
	ids := seed(t, source, docstore.Orders,
		docstore.Document{"status": "pending"},
		docstore.Document{"status": "shipped"},
	)
	first, err := source.Get(context.Background(), docstore.Orders, ids[0])
	require.NoError(t, err)
	require.NoError(t, target.Put(context.Background(), docstore.Orders, ids[0], first))

	m := NewMigrator(source, target, testLogger())
	config := quickConfig()
	config.Collections = []string{docstore.Orders}
	config.DryRun = true
	m.SetConfig(config)

	result, err := m.Copy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Copied)

	docs, err := target.List(context.Background(), docstore.Orders)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "a dry run writes nothing")

	validation, err := m.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, validation.IsValid)
	assert.Equal(t, []string{ids[1]}, validation.Collections[docstore.Orders].MissingInTarget)
	assert.Equal(t, 50.0, validation.SyncPercentage)
}

func TestMigrator_ValidateReportsFieldMismatch(t *testing.T) {
	source, target := docstore.NewMemoryStore(), docstore.NewMemoryStore()
	ids := seed(t, source, docstore.HeroImages, docstore.Document{"url": "https://cdn.example.com/a.jpg"})
	require.NoError(t, target.Put(context.Background(), docstore.HeroImages, ids[0], docstore.Document{"url": "https://cdn.example.com/b.jpg"}))
	require.NoError(t, target.Put(context.Background(), docstore.HeroImages, "extra", docstore.Document{"url": "https://cdn.example.com/c.jpg"}))

	m := NewMigrator(source, target, testLogger())
	config := quickConfig()
	config.Collections = []string{docstore.HeroImages}
	m.SetConfig(config)

	validation, err := m.Validate(context.Background())
	require.NoError(t, err)
	report := validation.Collections[docstore.HeroImages]
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, "url", report.Mismatches[0].Field)
	assert.Equal(t, []string{"extra"}, report.ExtraInTarget)
	assert.False(t, validation.IsValid)

	summary, err := Report(validation, "summary")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(summary), "STATUS: FAILED"))

	_, err = Report(validation, "xml")
	assert.Error(t, err)
}

type failingTarget struct {
	*docstore.MemoryStore
}

func (failingTarget) Put(ctx context.Context, collection, id string, doc docstore.Document) error {
	return docstore.ErrUnavailable
}

func TestMigrator_CollectsPerDocumentFailures(t *testing.T) {
	source := docstore.NewMemoryStore()
	seed(t, source, docstore.Gallery,
		docstore.Document{"title": "Kiln", "section": "factory"},
		docstore.Document{"title": "Lathe", "section": "machinery"},
		docstore.Document{"title": "Floor", "section": "showroom"},
	)

	m := NewMigrator(source, failingTarget{docstore.NewMemoryStore()}, testLogger())
	config := quickConfig()
	config.Collections = []string{docstore.Gallery}
	m.SetConfig(config)

	result, err := m.Copy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Failed)
	assert.Len(t, result.Errors, 3)
	assert.Zero(t, result.Copied)
}

type brokenSource struct {
	docstore.Store
}

func (brokenSource) List(ctx context.Context, collection string, constraints ...docstore.Constraint) ([]docstore.Document, error) {
	return nil, docstore.ErrUnavailable
}

func TestMigrator_SourceListFailureAborts(t *testing.T) {
	m := NewMigrator(brokenSource{}, docstore.NewMemoryStore(), testLogger())
	_, err := m.Copy(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, docstore.ErrUnavailable))
}
