package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Document is one stored JSON document. Collection + DocID form the key;
// filterable fields live inside Data and are reached via JSON_EXTRACT.
type Document struct {
	Collection string `gorm:"primaryKey;size:64"`
	DocID      string `gorm:"primaryKey;size:64;column:doc_id"`
	Data       []byte `gorm:"type:json;not null"`
}

// GormStore is the MySQL-backed Store used in production deployments.
type GormStore struct {
	db *gorm.DB
}

func OpenGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("register otel plugin: %w", err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func (s *GormStore) Get(ctx context.Context, collection, id string) (Record, error) {
	var doc Document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Take(&doc).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(doc.Data)
}

// Query pushes filters down as JSON_EXTRACT predicates. Filterable fields are
// ids, statuses and RFC3339 date strings, so string comparison is exact.
func (s *GormStore) Query(ctx context.Context, collection string, filters []Filter, order *Order, limit int) ([]Record, error) {
	if err := ValidateFilters(filters); err != nil {
		return nil, err
	}
	tx := s.db.WithContext(ctx).Model(&Document{}).Where("collection = ?", collection)
	for _, f := range filters {
		if !fieldNamePattern.MatchString(f.Field) {
			return nil, fmt.Errorf("store: invalid filter field %q", f.Field)
		}
		path := "$." + f.Field
		expr := "JSON_UNQUOTE(JSON_EXTRACT(data, ?))"
		switch f.Op {
		case OpEqual:
			tx = tx.Where(expr+" = ?", path, fmt.Sprint(f.Value))
		case OpIn:
			tx = tx.Where(expr+" IN ?", path, f.Value.([]string))
		case OpGreaterEqual:
			tx = tx.Where(expr+" >= ?", path, fmt.Sprint(f.Value))
		case OpLessEqual:
			tx = tx.Where(expr+" <= ?", path, fmt.Sprint(f.Value))
		default:
			return nil, fmt.Errorf("store: unsupported filter op %q", f.Op)
		}
	}
	if order != nil {
		if !fieldNamePattern.MatchString(order.Field) {
			return nil, fmt.Errorf("store: invalid order field %q", order.Field)
		}
		direction := "ASC"
		if order.Desc {
			direction = "DESC"
		}
		tx = tx.Order(fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(data, '$.%s')) %s", order.Field, direction))
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var docs []Document
	if err := tx.Find(&docs).Error; err != nil {
		return nil, err
	}
	results := make([]Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := decodeDocument(doc.Data)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

func (s *GormStore) Set(ctx context.Context, collection, id string, data Record) error {
	return setDocument(s.db.WithContext(ctx), collection, id, data)
}

func (s *GormStore) Update(ctx context.Context, collection, id string, fields Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return updateDocument(tx, collection, id, fields)
	})
}

func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	return s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&Document{}).Error
}

func (s *GormStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	if len(ops) > MaxBatchWrite {
		return fmt.Errorf("store: batch of %d ops exceeds limit %d", len(ops), MaxBatchWrite)
	}
	// A DB transaction gives the all-or-nothing batch the contract requires.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			switch op.Kind {
			case WriteKindSet:
				if err := setDocument(tx, op.Collection, op.ID, op.Data); err != nil {
					return err
				}
			case WriteKindUpdate:
				if err := updateDocument(tx, op.Collection, op.ID, op.Data); err != nil {
					return err
				}
			case WriteKindDelete:
				if err := tx.Where("collection = ? AND doc_id = ?", op.Collection, op.ID).
					Delete(&Document{}).Error; err != nil {
					return err
				}
			default:
				return fmt.Errorf("store: unknown write kind %q", op.Kind)
			}
		}
		return nil
	})
}

func setDocument(tx *gorm.DB, collection, id string, data Record) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document %s/%s: %w", collection, id, err)
	}
	doc := Document{Collection: collection, DocID: id, Data: raw}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data"}),
	}).Create(&doc).Error
}

func updateDocument(tx *gorm.DB, collection, id string, fields Record) error {
	var doc Document
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("collection = ? AND doc_id = ?", collection, id).
		Take(&doc).Error
	if err == gorm.ErrRecordNotFound {
		return fmt.Errorf("store: update on missing document %s/%s", collection, id)
	}
	if err != nil {
		return err
	}
	rec, err := decodeDocument(doc.Data)
	if err != nil {
		return err
	}
	for k, v := range fields {
		rec[k] = v
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Model(&Document{}).
		Where("collection = ? AND doc_id = ?", collection, id).
		Update("data", raw).Error
}

func decodeDocument(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return rec, nil
}
