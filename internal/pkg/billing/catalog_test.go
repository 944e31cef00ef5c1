package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/paygate/internal/pkg/docstore"
)

func seedCatalog(t *testing.T) docstore.Store {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemory(testTables.Schemas())
	puts := []struct {
		table string
		item  docstore.Item
	}{
		{testTables.Product, docstore.Item{"id": "prod_a", "name": "Alpha", "active": true, "images": []any{"a.png"}}},
		{testTables.Product, docstore.Item{"id": "prod_b", "name": "Beta", "active": true}},
		{testTables.Product, docstore.Item{"id": "prod_c", "name": "Gamma", "active": false}},
		{testTables.Price, docstore.Item{"id": "price_a", "product": "prod_a", "active": true}},
		{testTables.Price, docstore.Item{"id": "price_old", "product": "prod_a", "active": false}},
		{testTables.Checkout, docstore.Item{"id": "cs_1", "customer": "cus_1", "line_items": []any{
			map[string]any{"quantity": 2, "price": map[string]any{"id": "price_a", "product": "prod_a"}},
			map[string]any{"quantity": 1, "price": map[string]any{"id": "price_b", "product": "prod_b"}},
		}}},
		{testTables.Checkout, docstore.Item{"id": "cs_2", "customer": "cus_2", "line_items": []any{
			map[string]any{"quantity": 2, "price": map[string]any{"id": "price_b", "product": "prod_b"}},
			map[string]any{"quantity": 3, "price": map[string]any{"id": "price_c", "product": "prod_c"}},
		}}},
		{testTables.Checkout, docstore.Item{"id": "cs_3", "customer": NoCustomer, "line_items": []any{}}},
	}
	for _, p := range puts {
		require.NoError(t, store.Put(ctx, p.table, p.item))
	}
	return store
}

func TestCatalogActiveListings(t *testing.T) {
	catalog := NewCatalog(seedCatalog(t), testTables)

	products, err := catalog.Products(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, p := range products {
		ids = append(ids, p["id"].(string))
	}
	assert.ElementsMatch(t, []string{"prod_a", "prod_b"}, ids)

	prices, err := catalog.Prices(context.Background())
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, "price_a", prices[0]["id"])
}

func TestCatalogPopularity(t *testing.T) {
	catalog := NewCatalog(seedCatalog(t), testTables)

	ranked, err := catalog.Popularity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []RankedProduct{
		{ID: "prod_b", Name: "Beta", Images: []string{}, Quantity: 3},
		{ID: "prod_c", Name: "Gamma", Images: []string{}, Quantity: 3},
		{ID: "prod_a", Name: "Alpha", Images: []string{"a.png"}, Quantity: 2},
	}, ranked)
}

func TestCatalogPastPurchases(t *testing.T) {
	catalog := NewCatalog(seedCatalog(t), testTables)

	rows, err := catalog.PastPurchases(context.Background(), "cus_2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "cs_2", rows[0]["id"])

	rows, err = catalog.PastPurchases(context.Background(), "cus_unknown")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
