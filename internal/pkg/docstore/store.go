// Package docstore persists schema-flexible documents keyed by a partition
// attribute and an optional sort attribute.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingKeyAttribute is returned when a document lacks a declared key attribute.
var ErrMissingKeyAttribute = errors.New("missing key attribute")

// ErrUnknownTable is returned for tables without a registered key schema.
var ErrUnknownTable = errors.New("unknown table")

// Item is a document: provider-defined attributes with arbitrary nesting.
type Item map[string]any

// KeySchema names the key attributes of a table. Sort is empty for tables
// keyed by partition only.
type KeySchema struct {
	Partition string
	Sort      string
}

// Attributes returns the key attribute names, partition first.
func (k KeySchema) Attributes() []string {
	if k.Sort == "" {
		return []string{k.Partition}
	}
	return []string{k.Partition, k.Sort}
}

// IsKey reports whether attr is one of the key attributes.
func (k KeySchema) IsKey(attr string) bool {
	return attr == k.Partition || (k.Sort != "" && attr == k.Sort)
}

// Split separates item into its key and the remaining attributes.
func (k KeySchema) Split(item Item) (key Item, attrs Item, err error) {
	key = Item{}
	attrs = Item{}
	for name, v := range item {
		if k.IsKey(name) {
			key[name] = v
			continue
		}
		attrs[name] = v
	}
	for _, name := range k.Attributes() {
		if v, ok := key[name]; !ok || v == nil {
			return nil, nil, fmt.Errorf("%w %q", ErrMissingKeyAttribute, name)
		}
	}
	return key, attrs, nil
}

// Store is the persistence contract of the billing mirror.
type Store interface {
	// Put writes item unconditionally, replacing any document with the same key.
	Put(ctx context.Context, table string, item Item) error
	// Update sets attrs on the document identified by key, creating it when absent.
	// Attributes not named in attrs are left untouched.
	Update(ctx context.Context, table string, key Item, attrs Item) error
	// QueryPartition returns every document whose attr equals value.
	QueryPartition(ctx context.Context, table, attr string, value any) ([]Item, error)
	// Delete removes the document identified by its full key.
	Delete(ctx context.Context, table string, key Item) error
	// Scan returns every document in table.
	Scan(ctx context.Context, table string) ([]Item, error)
}

// normalize round-trips v through JSON so stored documents hold only
// JSON-native types (numbers as float64).
func normalize(v Item) (Item, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out Item
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func keyString(schema KeySchema, item Item) (string, error) {
	parts := make([]any, 0, 2)
	for _, name := range schema.Attributes() {
		v, ok := item[name]
		if !ok || v == nil {
			return "", fmt.Errorf("%w %q", ErrMissingKeyAttribute, name)
		}
		parts = append(parts, v)
	}
	raw, err := json.Marshal(parts)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
