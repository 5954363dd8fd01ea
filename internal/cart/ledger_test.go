package cart

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/craft-storefront/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func price(v float64) *float64 { return &v }

func vase() models.Product {
	return models.Product{ID: "A", Name: "Vase", Category: "Ceramics", Price: 100, SalePrice: price(80), Stock: 3}
}

func TestLedger_AddMergesAndClamps(t *testing.T) {
	ledger := Restore("cart-1", NewMemoryStore(), testLogger())

	ledger.Add(vase(), 1)
	ledger.Add(vase(), 1)

	lines := ledger.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 160.0, ledger.Total())

	line, ok := ledger.SetQuantity("A", 5)
	require.True(t, ok)
	assert.Equal(t, 3, line.Quantity)
	assert.Equal(t, 240.0, ledger.Total())
	assert.Equal(t, 3, ledger.ItemCount())

	line = ledger.Add(vase(), 4)
	assert.Equal(t, 3, line.Quantity)
}

func TestLedger_UnknownStockUsesDefaultCeiling(t *testing.T) {
	ledger := Restore("cart-1", NewMemoryStore(), testLogger())
	p := models.Product{ID: "B", Name: "Rug", Price: 10}

	line := ledger.Add(p, 500)
	assert.Equal(t, models.DefaultStockCeiling, line.Quantity)
}

func TestLedger_SetQuantityZeroRemoves(t *testing.T) {
	ledger := Restore("cart-1", NewMemoryStore(), testLogger())
	ledger.Add(vase(), 1)

	_, ok := ledger.SetQuantity("A", 0)
	assert.True(t, ok)
	assert.True(t, ledger.IsEmpty())

	_, ok = ledger.SetQuantity("missing", 2)
	assert.False(t, ok)
	assert.False(t, ledger.Remove("missing"))
}

func TestLedger_RemoveOrderedKeepsLaterAdditions(t *testing.T) {
	store := NewMemoryStore()
	ledger := Restore("cart-1", store, testLogger())
	ledger.Add(vase(), 1)
	ordered := ledger.Lines()

	ledger.Add(vase(), 1)
	ledger.Add(models.Product{ID: "B", Name: "Rug", Price: 10}, 2)
	ledger.RemoveOrdered(ordered)

	lines := ledger.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "A", lines[0].Product.ID)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, "B", lines[1].Product.ID)

	stored, err := store.Load("cart-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	ledger.RemoveOrdered(ledger.Lines())
	assert.True(t, ledger.IsEmpty())
}

func TestLedger_KeepsSnapshotOfFirstAdd(t *testing.T) {
	ledger := Restore("cart-1", NewMemoryStore(), testLogger())
	ledger.Add(vase(), 1)

	repriced := vase()
	repriced.SalePrice = nil
	ledger.Add(repriced, 1)

	lines := ledger.Lines()
	require.Len(t, lines, 1)
	require.NotNil(t, lines[0].Product.SalePrice)
	assert.Equal(t, 80.0, lines[0].Product.EffectivePrice())
}

func TestLedger_LinesAreCopies(t *testing.T) {
	ledger := Restore("cart-1", NewMemoryStore(), testLogger())
	p := vase()
	p.Images = []string{"https://img.example.com/a.jpg"}
	ledger.Add(p, 1)

	lines := ledger.Lines()
	lines[0].Quantity = 3
	lines[0].Product.Images[0] = "changed"
	*lines[0].Product.SalePrice = 1

	again := ledger.Lines()
	assert.Equal(t, 1, again[0].Quantity)
	assert.Equal(t, "https://img.example.com/a.jpg", again[0].Product.Images[0])
	assert.Equal(t, 80.0, *again[0].Product.SalePrice)
}

func TestLedger_PersistsEveryMutation(t *testing.T) {
	store := NewMemoryStore()
	ledger := Restore("cart-1", store, testLogger())

	ledger.Add(vase(), 2)
	restored := Restore("cart-1", store, testLogger())
	assert.Equal(t, 160.0, restored.Total())

	ledger.Clear()
	restored = Restore("cart-1", store, testLogger())
	assert.True(t, restored.IsEmpty())
}

func TestLedger_DiscardsMalformedData(t *testing.T) {
	store := NewMemoryStore()
	store.PutRaw("cart-1", []byte("{not json"))

	ledger := Restore("cart-1", store, testLogger())
	assert.True(t, ledger.IsEmpty())

	lines, err := store.Load("cart-1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	store.PutRaw("cart-2", []byte(`[{"product":{"id":"A","price":1},"quantity":0}]`))
	assert.True(t, Restore("cart-2", store, testLogger()).IsEmpty())
}

type failingPersister struct{ *MemoryStore }

func (failingPersister) Save(string, []models.CartLine) error { return errors.New("disk full") }

func TestLedger_PersistFailureKeepsState(t *testing.T) {
	ledger := Restore("cart-1", failingPersister{NewMemoryStore()}, testLogger())

	ledger.Add(vase(), 1)
	assert.Equal(t, 1, ledger.ItemCount())
}

func TestManager_OpenReturnsSameLedger(t *testing.T) {
	manager := NewManager(NewMemoryStore(), testLogger())

	created := manager.New()
	created.Add(vase(), 1)

	opened, err := manager.Open(created.ID())
	require.NoError(t, err)
	assert.Same(t, created, opened)

	_, err = manager.Open("../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidCartID)
}

func TestManager_RestoresFromPersistence(t *testing.T) {
	store := NewMemoryStore()
	first := NewManager(store, testLogger())
	ledger := first.New()
	ledger.Add(vase(), 2)

	second := NewManager(store, testLogger())
	restored, err := second.Open(ledger.ID())
	require.NoError(t, err)
	assert.Equal(t, 160.0, restored.Total())
}

func TestManager_KeepsOnlyNonEmptyCartsLive(t *testing.T) {
	store := NewMemoryStore()
	manager := NewManager(store, testLogger())

	for i := 0; i < 50; i++ {
		ledger, err := manager.Open(uuid.New().String())
		require.NoError(t, err)
		assert.True(t, ledger.IsEmpty())
		manager.New()
	}
	assert.Zero(t, manager.Live())

	id := uuid.New().String()
	ledger, err := manager.Open(id)
	require.NoError(t, err)
	ledger.Add(vase(), 1)
	assert.Equal(t, 1, manager.Live())

	opened, err := manager.Open(id)
	require.NoError(t, err)
	assert.Same(t, ledger, opened)

	ledger.Remove("A")
	assert.Zero(t, manager.Live())

	ledger.Add(vase(), 2)
	restarted := NewManager(store, testLogger())
	restored, err := restarted.Open(id)
	require.NoError(t, err)
	assert.Equal(t, 1, restarted.Live())
	assert.Equal(t, 2, restored.ItemCount())
}
