package docstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	productTable  = "acme-dev0-product"
	checkoutTable = "acme-dev0-checkout-session-completed"
)

var testSchemas = map[string]KeySchema{
	productTable:  {Partition: "id"},
	checkoutTable: {Partition: "id", Sort: "customer"},
}

func TestKeySchemaSplit(t *testing.T) {
	schema := KeySchema{Partition: "id", Sort: "customer"}
	key, attrs, err := schema.Split(Item{"id": "cs_1", "customer": "N/A", "currency": "usd"})
	require.NoError(t, err)
	assert.Equal(t, Item{"id": "cs_1", "customer": "N/A"}, key)
	assert.Equal(t, Item{"currency": "usd"}, attrs)

	_, _, err = schema.Split(Item{"id": "cs_1", "currency": "usd"})
	assert.ErrorIs(t, err, ErrMissingKeyAttribute)

	_, _, err = schema.Split(Item{"id": "cs_1", "customer": nil})
	assert.ErrorIs(t, err, ErrMissingKeyAttribute)
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory(testSchemas))
}

func TestMemoryStoreUnknownTable(t *testing.T) {
	m := NewMemory(testSchemas)
	err := m.Put(context.Background(), "nope", Item{"id": "x"})
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestGormStore(t *testing.T) {
	dsn := os.Getenv("DOCSTORE_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("DOCSTORE_TEST_MYSQL_DSN not set")
	}
	db, err := OpenMySQL(dsn)
	require.NoError(t, err)
	require.NoError(t, AutoMigrateDocuments(db))
	require.NoError(t, db.Where("collection IN ?", []string{productTable, checkoutTable}).Delete(&Document{}).Error)

	runStoreContract(t, NewGorm(db, testSchemas))
}

func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("put replaces by key", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, productTable, Item{"id": "prod_1", "name": "Widget", "active": true}))
		require.NoError(t, s.Put(ctx, productTable, Item{"id": "prod_1", "name": "Widget", "active": true}))

		rows, err := s.QueryPartition(ctx, productTable, "id", "prod_1")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, Item{"id": "prod_1", "name": "Widget", "active": true}, rows[0])
	})

	t.Run("update sets attributes and keeps others", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, productTable, Item{"id": "prod_2", "name": "Old", "metadata": map[string]any{"tier": "gold"}}))
		require.NoError(t, s.Update(ctx, productTable, Item{"id": "prod_2"}, Item{"name": "New", "unit_amount": 500}))

		rows, err := s.QueryPartition(ctx, productTable, "id", "prod_2")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "New", rows[0]["name"])
		assert.Equal(t, float64(500), rows[0]["unit_amount"])
		assert.Equal(t, map[string]any{"tier": "gold"}, rows[0]["metadata"])
	})

	t.Run("update creates missing document", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, productTable, Item{"id": "prod_3"}, Item{"name": "Fresh"}))
		rows, err := s.QueryPartition(ctx, productTable, "id", "prod_3")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, Item{"id": "prod_3", "name": "Fresh"}, rows[0])
	})

	t.Run("composite key keeps sort variants apart", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, checkoutTable, Item{"id": "cs_1", "customer": "A", "currency": "usd"}))
		require.NoError(t, s.Put(ctx, checkoutTable, Item{"id": "cs_1", "customer": "B", "currency": "eur"}))
		require.NoError(t, s.Put(ctx, checkoutTable, Item{"id": "cs_2", "customer": "A", "currency": "usd"}))

		rows, err := s.QueryPartition(ctx, checkoutTable, "id", "cs_1")
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		for _, r := range rows {
			require.NoError(t, s.Delete(ctx, checkoutTable, Item{"id": r["id"], "customer": r["customer"]}))
		}
		rows, err = s.QueryPartition(ctx, checkoutTable, "id", "cs_1")
		require.NoError(t, err)
		assert.Empty(t, rows)

		all, err := s.Scan(ctx, checkoutTable)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "cs_2", all[0]["id"])
	})

	t.Run("delete of absent key is a no-op", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, productTable, Item{"id": "missing"}))
	})

	t.Run("put requires key attributes", func(t *testing.T) {
		err := s.Put(ctx, checkoutTable, Item{"id": "cs_9"})
		assert.ErrorIs(t, err, ErrMissingKeyAttribute)
	})
}
