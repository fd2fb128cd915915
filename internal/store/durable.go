package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arunlm/medilab-backend/internal/platform/logger"
	"github.com/arunlm/medilab-backend/internal/types"
)

// listColumns are the fields listings return. base64_data and
// ocr_results stay in the database.
var listColumns = []string{
	"document_id", "patient_id", "filename", "file_type", "file_size",
	"document_type", "extracted_text", "text_count", "processing_method",
	"processing_time", "confidence_score", "created_at", "metadata",
}

// DurableStore persists records in a relational database through gorm.
// Region lists and metadata live in JSON columns so the record shape
// stays a single document per row.
type DurableStore struct {
	log   *logger.Logger
	db    *gorm.DB
	table string
}

// OpenDurable connects to Postgres at dsn and migrates the documents
// table. table names the collection; empty means the model default.
// Callers bound the attempt with ctx.
func OpenDurable(ctx context.Context, dsn, table string, log *logger.Logger) (*DurableStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewDurableStore(db, table, log)
	if err := db.WithContext(ctx).Table(s.table).AutoMigrate(&types.DocumentRecord{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return s, nil
}

func NewDurableStore(db *gorm.DB, table string, log *logger.Logger) *DurableStore {
	if table == "" {
		table = types.DocumentRecord{}.TableName()
	}
	return &DurableStore{
		log:   log.With("store", "DurableStore"),
		db:    db,
		table: table,
	}
}

func (s *DurableStore) StorageType() string { return types.StorageTypeDurable }

func (s *DurableStore) IsConnected(ctx context.Context) bool {
	sqlDB, err := s.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

func (s *DurableStore) Save(ctx context.Context, rec types.DocumentRecord) error {
	err := s.db.WithContext(ctx).Table(s.table).Create(&rec).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateID
	}
	s.log.Error("Save failed", "document_id", rec.DocumentID, "error", err)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (s *DurableStore) GetByID(ctx context.Context, documentID string, includePayload bool) (types.DocumentRecord, error) {
	var rec types.DocumentRecord
	q := s.db.WithContext(ctx).Table(s.table)
	if !includePayload {
		q = q.Omit("base64_data")
	}
	err := q.Where("document_id = ?", documentID).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.DocumentRecord{}, ErrNotFound
		}
		s.log.Error("GetByID failed", "document_id", documentID, "error", err)
		return types.DocumentRecord{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (s *DurableStore) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]types.DocumentRecord, error) {
	var recs []types.DocumentRecord
	q := s.db.WithContext(ctx).
		Table(s.table).
		Select(listColumns).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Order("document_id DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		s.log.Error("ListByPatient failed", "patient_id", patientID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if recs == nil {
		recs = []types.DocumentRecord{}
	}
	return recs, nil
}
