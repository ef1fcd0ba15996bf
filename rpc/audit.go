package rpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AuditRecord is one mutating RPC call as persisted in the audit log.
type AuditRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID      string    `gorm:"index" json:"requestId"`
	Method         string    `gorm:"index" json:"method"`
	Caller         string    `gorm:"index" json:"caller"`
	Outcome        string    `json:"outcome"`
	ErrorKind      string    `json:"errorKind,omitempty"`
	DurationMicros int64     `json:"durationMicros"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AuditSink receives audit records for mutating calls.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// AuditStore persists audit records through gorm.
type AuditStore struct {
	db *gorm.DB
}

// OpenAuditStore opens the audit database named by dsn. "file:" DSNs use
// SQLite, postgres URLs use the Postgres driver.
func OpenAuditStore(dsn string) (*AuditStore, error) {
	dsn = strings.TrimSpace(dsn)
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "file:"):
		dialector = sqlite.Open(dsn)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("rpc: unsupported audit dsn %q", dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("rpc: open audit db: %w", err)
	}
	return NewAuditStore(db)
}

// NewAuditStore migrates the audit schema on db.
func NewAuditStore(db *gorm.DB) (*AuditStore, error) {
	if err := db.AutoMigrate(&AuditRecord{}); err != nil {
		return nil, fmt.Errorf("rpc: migrate audit log: %w", err)
	}
	return &AuditStore{db: db}, nil
}

func (s *AuditStore) Record(ctx context.Context, rec AuditRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// Recent returns up to limit records, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []AuditRecord
	err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

func (s *AuditStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
