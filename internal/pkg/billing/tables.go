package billing

import (
	"github.com/ManuelReschke/paygate/internal/pkg/config"
	"github.com/ManuelReschke/paygate/internal/pkg/docstore"
)

// Sentinel stored as the customer of checkout sessions without one.
const NoCustomer = "N/A"

// Tables names the mirror tables.
type Tables struct {
	Product  string
	Price    string
	Customer string
	Checkout string
}

func TablesFor(cfg *config.Config) Tables {
	return Tables{
		Product:  cfg.TableName(config.KindProduct),
		Price:    cfg.TableName(config.KindPrice),
		Customer: cfg.TableName(config.KindCustomer),
		Checkout: cfg.TableName(config.KindCheckoutSession),
	}
}

// Schemas binds each table's key schema. Entities are keyed by id; checkout
// sessions additionally by customer.
func (t Tables) Schemas() map[string]docstore.KeySchema {
	return map[string]docstore.KeySchema{
		t.Product:  {Partition: "id"},
		t.Price:    {Partition: "id"},
		t.Customer: {Partition: "id"},
		t.Checkout: {Partition: "id", Sort: "customer"},
	}
}

func (t Tables) forEntity(kind string) (string, bool) {
	switch kind {
	case config.KindProduct:
		return t.Product, true
	case config.KindPrice:
		return t.Price, true
	case config.KindCustomer:
		return t.Customer, true
	}
	return "", false
}
