package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/arunlm/medilab-backend/internal/types"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrDuplicateID      = errors.New("document id already exists")
	ErrStoreUnavailable = errors.New("document store unavailable")
)

// DocumentStore is the persistence surface for document records. Both
// adapters satisfy it; callers never learn which one they hold beyond
// StorageType.
type DocumentStore interface {
	// Save persists a new record. Records are append-only; saving an
	// existing document_id fails with ErrDuplicateID.
	Save(ctx context.Context, rec types.DocumentRecord) error

	// GetByID returns one record. When includePayload is false the
	// base64 payload is projected away before the record leaves the
	// adapter.
	GetByID(ctx context.Context, documentID string, includePayload bool) (types.DocumentRecord, error)

	// ListByPatient returns records for a patient ordered newest first
	// (created_at desc, document_id desc as tiebreak). Payloads and
	// region lists are always projected away.
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]types.DocumentRecord, error)

	// IsConnected reports whether the backing medium is reachable.
	IsConnected(ctx context.Context) bool

	// StorageType is "durable" or "ephemeral".
	StorageType() string
}

// NewDocumentID builds a fresh identifier of the form
// doc_<unix-seconds>_<nnnn> with a 4-digit random suffix.
func NewDocumentID(now time.Time) string {
	return fmt.Sprintf("doc_%d_%04d", now.Unix(), 1000+rand.Intn(9000))
}
