package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
	"github.com/ManuelReschke/paygate/internal/pkg/cache"
	"github.com/ManuelReschke/paygate/internal/pkg/docstore"
	"github.com/ManuelReschke/paygate/internal/pkg/idp"
)

var testTables = Tables{
	Product:  "acme-dev0-product",
	Price:    "acme-dev0-price",
	Customer: "acme-dev0-customer",
	Checkout: "acme-dev0-checkout-session-completed",
}

type fakeProvider struct {
	mu sync.Mutex

	lineItems     map[string][]any
	lineItemCalls []string
	products      []map[string]any
	prices        []map[string]any
	customers     []map[string]any
	sessions      []map[string]any
	listErr       error

	checkoutInputs []CheckoutSessionInput
	checkoutURL    string
	checkoutErr    error

	customerInputs []CustomerInput
	customerID     string
}

func (f *fakeProvider) ListLineItems(_ context.Context, sessionID string) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lineItemCalls = append(f.lineItemCalls, sessionID)
	return f.lineItems[sessionID], nil
}

func (f *fakeProvider) ListProducts(context.Context, int64) ([]map[string]any, error) {
	return f.products, f.listErr
}

func (f *fakeProvider) ListPrices(context.Context, int64) ([]map[string]any, error) {
	return f.prices, nil
}

func (f *fakeProvider) ListCustomers(context.Context, int64) ([]map[string]any, error) {
	return f.customers, nil
}

func (f *fakeProvider) ListCompletedCheckoutSessions(context.Context, int64) ([]map[string]any, error) {
	return f.sessions, nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, in CheckoutSessionInput) (string, error) {
	f.checkoutInputs = append(f.checkoutInputs, in)
	return f.checkoutURL, f.checkoutErr
}

func (f *fakeProvider) CreateCustomer(_ context.Context, in CustomerInput) (string, error) {
	f.customerInputs = append(f.customerInputs, in)
	return f.customerID, nil
}

// countingStore records writes on top of a memory store.
type countingStore struct {
	*docstore.Memory
	writes int
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: docstore.NewMemory(testTables.Schemas())}
}

func (s *countingStore) Put(ctx context.Context, table string, item docstore.Item) error {
	s.writes++
	return s.Memory.Put(ctx, table, item)
}

func (s *countingStore) Update(ctx context.Context, table string, key, attrs docstore.Item) error {
	s.writes++
	return s.Memory.Update(ctx, table, key, attrs)
}

func (s *countingStore) Delete(ctx context.Context, table string, key docstore.Item) error {
	s.writes++
	return s.Memory.Delete(ctx, table, key)
}

type fakeDirectory struct {
	user     *idp.User
	err      error
	setCalls [][3]string
	setErr   error
}

func (d *fakeDirectory) GetUser(context.Context, string) (*idp.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.user, nil
}

func (d *fakeDirectory) SetAttribute(_ context.Context, token, name, value string) error {
	d.setCalls = append(d.setCalls, [3]string{token, name, value})
	if d.setErr != nil {
		return d.setErr
	}
	d.user.UserAttributes = append(d.user.UserAttributes, idp.UserAttribute{Name: name, Value: value})
	return nil
}

type fakeLocker struct {
	held     bool
	released int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, cache.ErrLocked
	}
	l.held = true
	return func() {
		l.held = false
		l.released++
	}, nil
}

var errProviderDown = apperr.Wrap(apperr.KindProviderFailure, "list products failed", errors.New("connection reset"))
