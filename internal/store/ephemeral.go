package store

import (
	"context"
	"sort"
	"sync"

	"github.com/arunlm/medilab-backend/internal/platform/logger"
	"github.com/arunlm/medilab-backend/internal/types"
)

// EphemeralStore keeps records in process memory. It is the degraded
// adapter used when no durable database is reachable at startup; its
// contents do not survive a restart.
type EphemeralStore struct {
	log *logger.Logger

	mu        sync.RWMutex
	byID      map[string]types.DocumentRecord
	byPatient map[string][]string
}

func NewEphemeralStore(log *logger.Logger) *EphemeralStore {
	return &EphemeralStore{
		log:       log.With("store", "EphemeralStore"),
		byID:      make(map[string]types.DocumentRecord),
		byPatient: make(map[string][]string),
	}
}

func (s *EphemeralStore) StorageType() string { return types.StorageTypeEphemeral }

func (s *EphemeralStore) IsConnected(ctx context.Context) bool { return true }

func (s *EphemeralStore) Save(ctx context.Context, rec types.DocumentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rec.DocumentID]; ok {
		return ErrDuplicateID
	}
	s.byID[rec.DocumentID] = rec
	s.byPatient[rec.PatientID] = append(s.byPatient[rec.PatientID], rec.DocumentID)
	return nil
}

func (s *EphemeralStore) GetByID(ctx context.Context, documentID string, includePayload bool) (types.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.DocumentRecord{}, err
	}
	s.mu.RLock()
	rec, ok := s.byID[documentID]
	s.mu.RUnlock()
	if !ok {
		return types.DocumentRecord{}, ErrNotFound
	}
	if !includePayload {
		rec = rec.WithoutPayload()
	}
	return rec, nil
}

func (s *EphemeralStore) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]types.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := s.byPatient[patientID]
	recs := make([]types.DocumentRecord, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, s.byID[id])
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].DocumentID > recs[j].DocumentID
	})

	if offset >= len(recs) {
		return []types.DocumentRecord{}, nil
	}
	recs = recs[offset:]
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}

	out := make([]types.DocumentRecord, 0, len(recs))
	for _, r := range recs {
		r = r.WithoutPayload()
		r.OCRResults = nil
		out = append(out, r)
	}
	return out, nil
}
