package billing

import (
	"context"
	"fmt"
	"sort"

	"github.com/ManuelReschke/paygate/internal/pkg/docstore"
)

// RankedProduct is a product with the total quantity sold.
type RankedProduct struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Images   []string `json:"images"`
	Quantity int64    `json:"quantity"`
}

// Catalog reads the mirrored billing tables.
type Catalog struct {
	store  docstore.Store
	tables Tables
}

func NewCatalog(store docstore.Store, tables Tables) *Catalog {
	return &Catalog{store: store, tables: tables}
}

// Products lists active products.
func (c *Catalog) Products(ctx context.Context) ([]docstore.Item, error) {
	return c.active(ctx, c.tables.Product)
}

// Prices lists active prices.
func (c *Catalog) Prices(ctx context.Context) ([]docstore.Item, error) {
	return c.active(ctx, c.tables.Price)
}

func (c *Catalog) active(ctx context.Context, table string) ([]docstore.Item, error) {
	rows, err := c.store.Scan(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	out := make([]docstore.Item, 0, len(rows))
	for _, r := range rows {
		if active, _ := r["active"].(bool); active {
			out = append(out, r)
		}
	}
	return out, nil
}

// Popularity ranks products by quantity sold across all recorded checkout
// sessions, highest first; ties are ordered by product id.
func (c *Catalog) Popularity(ctx context.Context) ([]RankedProduct, error) {
	sessions, err := c.store.Scan(ctx, c.tables.Checkout)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.tables.Checkout, err)
	}

	sold := make(map[string]int64)
	for _, s := range sessions {
		items, _ := s["line_items"].([]any)
		for _, raw := range items {
			li, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			productID := lineItemProduct(li)
			if productID == "" {
				continue
			}
			qty, _ := li["quantity"].(float64)
			sold[productID] += int64(qty)
		}
	}

	products, err := c.store.Scan(ctx, c.tables.Product)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.tables.Product, err)
	}
	byID := make(map[string]docstore.Item, len(products))
	for _, p := range products {
		if id, ok := p["id"].(string); ok {
			byID[id] = p
		}
	}

	ranked := make([]RankedProduct, 0, len(sold))
	for id, qty := range sold {
		rp := RankedProduct{ID: id, Quantity: qty, Images: []string{}}
		if p, ok := byID[id]; ok {
			rp.Name, _ = p["name"].(string)
			if imgs, ok := p["images"].([]any); ok {
				for _, img := range imgs {
					if s, ok := img.(string); ok {
						rp.Images = append(rp.Images, s)
					}
				}
			}
		}
		ranked = append(ranked, rp)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Quantity != ranked[j].Quantity {
			return ranked[i].Quantity > ranked[j].Quantity
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked, nil
}

func lineItemProduct(li map[string]any) string {
	price, ok := li["price"].(map[string]any)
	if !ok {
		return ""
	}
	switch p := price["product"].(type) {
	case string:
		return p
	case map[string]any:
		id, _ := p["id"].(string)
		return id
	}
	return ""
}

// PastPurchases lists the completed checkout sessions of a customer.
func (c *Catalog) PastPurchases(ctx context.Context, customerID string) ([]docstore.Item, error) {
	sessions, err := c.store.Scan(ctx, c.tables.Checkout)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.tables.Checkout, err)
	}
	out := make([]docstore.Item, 0)
	for _, s := range sessions {
		if s["customer"] == customerID {
			out = append(out, s)
		}
	}
	return out, nil
}
