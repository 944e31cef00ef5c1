package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxConnectRetries = 5
	connectRetryDelay = 5 * time.Second
)

// Document is the relational row behind a Gorm store document.
type Document struct {
	ID           uint      `gorm:"primaryKey"`
	Collection   string    `gorm:"type:varchar(191);not null;uniqueIndex:idx_document_key,priority:1;index:idx_document_partition,priority:1"`
	PartitionKey string    `gorm:"type:varchar(191);not null;uniqueIndex:idx_document_key,priority:2;index:idx_document_partition,priority:2"`
	SortKey      string    `gorm:"type:varchar(191);not null;default:'';uniqueIndex:idx_document_key,priority:3"`
	Body         string    `gorm:"type:longtext;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (Document) TableName() string {
	return "documents"
}

// Gorm stores documents as JSON bodies in a single MySQL table, one
// collection per logical table.
type Gorm struct {
	db      *gorm.DB
	schemas map[string]KeySchema
}

// OpenMySQL connects to MySQL, retrying while the server comes up. The
// documents table is created by the SQL migrations (cmd/migrate up).
func OpenMySQL(dsn string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxConnectRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{})
		if err == nil {
			return db, nil
		}

		log.Warnf("[Docstore] Failed to connect to database (try %d/%d): %v", i+1, maxConnectRetries, err)
		if i < maxConnectRetries-1 {
			time.Sleep(connectRetryDelay)
		}
	}
	return nil, err
}

// AutoMigrateDocuments creates the documents table from the model. Only for
// local development; deployed databases are migrated with cmd/migrate.
func AutoMigrateDocuments(db *gorm.DB) error {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return fmt.Errorf("migrate documents: %w", err)
	}
	return nil
}

func NewGorm(db *gorm.DB, schemas map[string]KeySchema) *Gorm {
	return &Gorm{db: db, schemas: schemas}
}

func (g *Gorm) schema(table string) (KeySchema, error) {
	s, ok := g.schemas[table]
	if !ok {
		return KeySchema{}, fmt.Errorf("%w %s", ErrUnknownTable, table)
	}
	return s, nil
}

func (g *Gorm) Put(ctx context.Context, table string, item Item) error {
	schema, err := g.schema(table)
	if err != nil {
		return err
	}
	doc, err := normalize(item)
	if err != nil {
		return err
	}
	row, err := toDocument(table, schema, doc)
	if err != nil {
		return err
	}
	return g.upsert(g.db.WithContext(ctx), row)
}

func (g *Gorm) Update(ctx context.Context, table string, key Item, attrs Item) error {
	schema, err := g.schema(table)
	if err != nil {
		return err
	}
	keyDoc, err := normalize(key)
	if err != nil {
		return err
	}
	set, err := normalize(attrs)
	if err != nil {
		return err
	}
	pk, sk, err := keyColumns(schema, keyDoc)
	if err != nil {
		return err
	}

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Document
		doc := keyDoc
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND partition_key = ? AND sort_key = ?", table, pk, sk).
			First(&existing).Error
		switch {
		case err == nil:
			if err := json.Unmarshal([]byte(existing.Body), &doc); err != nil {
				return fmt.Errorf("decode stored document: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		for name, v := range set {
			if schema.IsKey(name) {
				continue
			}
			doc[name] = v
		}
		row, err := toDocument(table, schema, doc)
		if err != nil {
			return err
		}
		return g.upsert(tx, row)
	})
}

func (g *Gorm) upsert(db *gorm.DB, row *Document) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "collection"},
			{Name: "partition_key"},
			{Name: "sort_key"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"body",
			"updated_at",
		}),
	}).Create(row).Error
}

func (g *Gorm) QueryPartition(ctx context.Context, table, attr string, value any) ([]Item, error) {
	schema, err := g.schema(table)
	if err != nil {
		return nil, err
	}
	if attr != schema.Partition {
		return nil, fmt.Errorf("query %s: %s is not the partition attribute", table, attr)
	}
	pk, err := keyValue(value)
	if err != nil {
		return nil, err
	}

	var rows []Document
	if err := g.db.WithContext(ctx).
		Where("collection = ? AND partition_key = ?", table, pk).
		Order("sort_key").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromDocuments(rows)
}

func (g *Gorm) Delete(ctx context.Context, table string, key Item) error {
	schema, err := g.schema(table)
	if err != nil {
		return err
	}
	keyDoc, err := normalize(key)
	if err != nil {
		return err
	}
	pk, sk, err := keyColumns(schema, keyDoc)
	if err != nil {
		return err
	}
	return g.db.WithContext(ctx).
		Where("collection = ? AND partition_key = ? AND sort_key = ?", table, pk, sk).
		Delete(&Document{}).Error
}

func (g *Gorm) Scan(ctx context.Context, table string) ([]Item, error) {
	if _, err := g.schema(table); err != nil {
		return nil, err
	}
	var rows []Document
	if err := g.db.WithContext(ctx).
		Where("collection = ?", table).
		Order("partition_key, sort_key").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromDocuments(rows)
}

func toDocument(table string, schema KeySchema, doc Item) (*Document, error) {
	pk, sk, err := keyColumns(schema, doc)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return &Document{Collection: table, PartitionKey: pk, SortKey: sk, Body: string(body)}, nil
}

func keyColumns(schema KeySchema, doc Item) (string, string, error) {
	v, ok := doc[schema.Partition]
	if !ok || v == nil {
		return "", "", fmt.Errorf("%w %q", ErrMissingKeyAttribute, schema.Partition)
	}
	pk, err := keyValue(v)
	if err != nil {
		return "", "", err
	}
	if schema.Sort == "" {
		return pk, "", nil
	}
	v, ok = doc[schema.Sort]
	if !ok || v == nil {
		return "", "", fmt.Errorf("%w %q", ErrMissingKeyAttribute, schema.Sort)
	}
	sk, err := keyValue(v)
	if err != nil {
		return "", "", err
	}
	return pk, sk, nil
}

func keyValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64, int, int64, bool:
		return fmt.Sprint(t), nil
	default:
		return "", fmt.Errorf("key value of type %T is not a scalar", v)
	}
}

func fromDocuments(rows []Document) ([]Item, error) {
	out := make([]Item, 0, len(rows))
	for _, r := range rows {
		var doc Item
		if err := json.Unmarshal([]byte(r.Body), &doc); err != nil {
			return nil, fmt.Errorf("decode document %d: %w", r.ID, err)
		}
		out = append(out, doc)
	}
	return out, nil
}
