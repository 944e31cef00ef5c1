package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
	"github.com/ManuelReschke/paygate/internal/pkg/cache"
	"github.com/ManuelReschke/paygate/internal/pkg/docstore"
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"

	OperationCreated = "created"
	OperationUpdated = "updated"
	OperationDeleted = "deleted"

	reconcileLockKey = "paygate:reconcile"
	reconcileLockTTL = 15 * time.Minute
)

// Locker grants exclusive runs of the reconciliation pass.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Result describes the outcome of applying one event.
type Result struct {
	Message   string `json:"message"`
	Table     string `json:"table,omitempty"`
	Operation string `json:"operation,omitempty"`
	Rows      int    `json:"rows,omitempty"`
}

// ReconcileReport summarizes a reconciliation pass.
type ReconcileReport struct {
	Updated map[string]int `json:"updated"`
	Failed  int            `json:"failed"`
	Skipped bool           `json:"skipped,omitempty"`
}

// Synchronizer mirrors provider entities into the document store.
type Synchronizer struct {
	store    docstore.Store
	provider Provider
	tables   Tables
	schemas  map[string]docstore.KeySchema
	pageSize int64
	locker   Locker
}

func NewSynchronizer(store docstore.Store, provider Provider, tables Tables, pageSize int64) *Synchronizer {
	return &Synchronizer{
		store:    store,
		provider: provider,
		tables:   tables,
		schemas:  tables.Schemas(),
		pageSize: pageSize,
	}
}

// WithLocker serializes ReconcileAll across processes.
func (s *Synchronizer) WithLocker(l Locker) *Synchronizer {
	s.locker = l
	return s
}

// ApplyEvent applies a webhook event. Only "<entity>.<operation>" events for
// mirrored entities and completed checkout sessions touch the store; every
// other type is acknowledged as not handled.
func (s *Synchronizer) ApplyEvent(ctx context.Context, eventType string, object map[string]any) (*Result, error) {
	if eventType == EventCheckoutSessionCompleted {
		return s.applyCheckoutCompleted(ctx, object)
	}

	notHandled := &Result{Message: fmt.Sprintf("event type %s not handled", eventType)}
	entity, operation, ok := strings.Cut(eventType, ".")
	if !ok || strings.Contains(operation, ".") {
		return notHandled, nil
	}
	table, ok := s.tables.forEntity(entity)
	if !ok {
		return notHandled, nil
	}

	var (
		rows int
		err  error
	)
	switch operation {
	case OperationCreated:
		rows, err = s.create(ctx, table, object)
	case OperationUpdated:
		rows, err = s.update(ctx, table, object)
	case OperationDeleted:
		rows, err = s.delete(ctx, table, object)
	default:
		return notHandled, nil
	}
	if err != nil {
		return nil, err
	}

	log.Infof("[Sync] Applied %s to %s (%d rows)", eventType, table, rows)
	return &Result{
		Message:   fmt.Sprintf("event type %s handled", eventType),
		Table:     table,
		Operation: operation,
		Rows:      rows,
	}, nil
}

func (s *Synchronizer) create(ctx context.Context, table string, object map[string]any) (int, error) {
	if _, _, err := s.schemas[table].Split(object); err != nil {
		return 0, malformed(err)
	}
	if err := s.store.Put(ctx, table, object); err != nil {
		return 0, fmt.Errorf("put into %s: %w", table, err)
	}
	return 1, nil
}

// update never mutates key attributes.
func (s *Synchronizer) update(ctx context.Context, table string, object map[string]any) (int, error) {
	key, attrs, err := s.schemas[table].Split(object)
	if err != nil {
		return 0, malformed(err)
	}
	if err := s.store.Update(ctx, table, key, attrs); err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return 1, nil
}

// delete removes every row sharing the partition value, whatever its sort key.
func (s *Synchronizer) delete(ctx context.Context, table string, object map[string]any) (int, error) {
	schema := s.schemas[table]
	value, ok := object[schema.Partition]
	if !ok || value == nil {
		return 0, malformed(fmt.Errorf("%w %q", docstore.ErrMissingKeyAttribute, schema.Partition))
	}

	rows, err := s.store.QueryPartition(ctx, table, schema.Partition, value)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", table, err)
	}
	for _, row := range rows {
		key := docstore.Item{}
		for _, attr := range schema.Attributes() {
			key[attr] = row[attr]
		}
		if err := s.store.Delete(ctx, table, key); err != nil {
			return 0, fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return len(rows), nil
}

func (s *Synchronizer) applyCheckoutCompleted(ctx context.Context, object map[string]any) (*Result, error) {
	doc, err := s.enrichCheckoutSession(ctx, object)
	if err != nil {
		return nil, err
	}
	if _, err := s.create(ctx, s.tables.Checkout, doc); err != nil {
		return nil, err
	}

	log.Infof("[Sync] Recorded completed checkout session %v for customer %v", doc["id"], doc["customer"])
	return &Result{
		Message:   fmt.Sprintf("event type %s handled", EventCheckoutSessionCompleted),
		Table:     s.tables.Checkout,
		Operation: OperationCreated,
		Rows:      1,
	}, nil
}

// enrichCheckoutSession copies object, attaches the session's line items
// fetched from the provider and substitutes the customer sentinel.
func (s *Synchronizer) enrichCheckoutSession(ctx context.Context, object map[string]any) (docstore.Item, error) {
	id, _ := object["id"].(string)
	if id == "" {
		return nil, malformed(fmt.Errorf("%w %q", docstore.ErrMissingKeyAttribute, "id"))
	}

	doc := make(docstore.Item, len(object)+1)
	for k, v := range object {
		doc[k] = v
	}
	doc["customer"] = customerRef(object["customer"])

	items, err := s.provider.ListLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []any{}
	}
	doc["line_items"] = items
	return doc, nil
}

func customerRef(v any) string {
	switch c := v.(type) {
	case string:
		if c != "" {
			return c
		}
	case map[string]any:
		if id, ok := c["id"].(string); ok && id != "" {
			return id
		}
	}
	return NoCustomer
}

func malformed(err error) error {
	return &apperr.Error{Kind: apperr.KindMalformedEvent, Message: "malformed event", Detail: err.Error(), Cause: err}
}

// ReconcileAll refreshes every mirrored entity from a full provider listing.
// Rows are only updated: deletions on the provider side are not detected.
// Per-entity failures are counted and joined into the returned error.
func (s *Synchronizer) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{Updated: make(map[string]int)}

	if s.locker != nil {
		release, err := s.locker.TryLock(ctx, reconcileLockKey+":"+s.tables.Product, reconcileLockTTL)
		if errors.Is(err, cache.ErrLocked) {
			log.Infof("[Sync] Reconciliation already running elsewhere, skipping")
			report.Skipped = true
			return report, nil
		}
		if err != nil {
			return nil, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		defer release()
	}

	var errs []error
	record := func(table string, err error) {
		if err != nil {
			report.Failed++
			errs = append(errs, err)
			log.Errorf("[Sync] Reconcile %s: %v", table, err)
			return
		}
		report.Updated[table]++
	}

	sessions, err := s.provider.ListCompletedCheckoutSessions(ctx, s.pageSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("list checkout sessions: %w", err))
	}
	for _, sess := range sessions {
		doc, err := s.enrichCheckoutSession(ctx, sess)
		if err == nil {
			_, err = s.update(ctx, s.tables.Checkout, doc)
		}
		record(s.tables.Checkout, err)
	}

	listings := []struct {
		table string
		list  func(context.Context, int64) ([]map[string]any, error)
	}{
		{s.tables.Product, s.provider.ListProducts},
		{s.tables.Price, s.provider.ListPrices},
		{s.tables.Customer, s.provider.ListCustomers},
	}
	for _, l := range listings {
		objects, err := l.list(ctx, s.pageSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s: %w", l.table, err))
			continue
		}
		for _, obj := range objects {
			_, err := s.update(ctx, l.table, obj)
			record(l.table, err)
		}
	}

	log.Infof("[Sync] Reconciliation finished: updated=%v failed=%d", report.Updated, report.Failed)
	return report, errors.Join(errs...)
}
