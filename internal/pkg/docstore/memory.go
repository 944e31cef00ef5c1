package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Memory is an in-process Store, used in tests and local runs without a database.
type Memory struct {
	mu      sync.RWMutex
	schemas map[string]KeySchema
	tables  map[string]map[string]Item
}

// NewMemory creates an empty store for the given table schemas.
func NewMemory(schemas map[string]KeySchema) *Memory {
	return &Memory{
		schemas: schemas,
		tables:  make(map[string]map[string]Item),
	}
}

func (m *Memory) schema(table string) (KeySchema, error) {
	s, ok := m.schemas[table]
	if !ok {
		return KeySchema{}, fmt.Errorf("%w %s", ErrUnknownTable, table)
	}
	return s, nil
}

func (m *Memory) Put(_ context.Context, table string, item Item) error {
	schema, err := m.schema(table)
	if err != nil {
		return err
	}
	doc, err := normalize(item)
	if err != nil {
		return err
	}
	k, err := keyString(schema, doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables[table] == nil {
		m.tables[table] = make(map[string]Item)
	}
	m.tables[table][k] = doc
	return nil
}

func (m *Memory) Update(_ context.Context, table string, key Item, attrs Item) error {
	schema, err := m.schema(table)
	if err != nil {
		return err
	}
	keyDoc, err := normalize(key)
	if err != nil {
		return err
	}
	k, err := keyString(schema, keyDoc)
	if err != nil {
		return err
	}
	set, err := normalize(attrs)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables[table] == nil {
		m.tables[table] = make(map[string]Item)
	}
	doc, ok := m.tables[table][k]
	if !ok {
		doc = keyDoc
	}
	for name, v := range set {
		if schema.IsKey(name) {
			continue
		}
		doc[name] = v
	}
	m.tables[table][k] = doc
	return nil
}

func (m *Memory) QueryPartition(_ context.Context, table, attr string, value any) ([]Item, error) {
	if _, err := m.schema(table); err != nil {
		return nil, err
	}
	want, err := normalize(Item{attr: value})
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Item
	for _, k := range sortedKeys(m.tables[table]) {
		doc := m.tables[table][k]
		if reflect.DeepEqual(doc[attr], want[attr]) {
			c, err := normalize(doc)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, table string, key Item) error {
	schema, err := m.schema(table)
	if err != nil {
		return err
	}
	keyDoc, err := normalize(key)
	if err != nil {
		return err
	}
	k, err := keyString(schema, keyDoc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables[table], k)
	return nil
}

func (m *Memory) Scan(_ context.Context, table string) ([]Item, error) {
	if _, err := m.schema(table); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Item, 0, len(m.tables[table]))
	for _, k := range sortedKeys(m.tables[table]) {
		c, err := normalize(m.tables[table][k])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func sortedKeys(docs map[string]Item) []string {
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
