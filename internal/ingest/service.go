package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/arunlm/medilab-backend/internal/extract"
	"github.com/arunlm/medilab-backend/internal/imaging"
	"github.com/arunlm/medilab-backend/internal/platform/apierr"
	"github.com/arunlm/medilab-backend/internal/platform/logger"
	"github.com/arunlm/medilab-backend/internal/store"
	"github.com/arunlm/medilab-backend/internal/types"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	// Attempts at a fresh id when the generated one collides.
	saveIDAttempts = 3
)

// Upload is one incoming file as the HTTP layer hands it over.
type Upload struct {
	Filename     string
	DeclaredMIME string
	PatientID    string
	Data         []byte
}

// IngestOutcome is the record plus the routing facts the caller gets back.
type IngestOutcome struct {
	Record         types.DocumentRecord
	StorageType    string
	ProcessingType string
	IsImage        bool
}

// Health reports the store the process is running on.
type Health struct {
	Status         string `json:"status"`
	StorageType    string `json:"storage_type"`
	StoreConnected bool   `json:"store_connected"`
}

// Service is the ingestion coordinator and read path. It owns
// classification, the extractor chain, record assembly, and the
// degradation to the in-memory store when the durable one stops
// accepting writes.
type Service struct {
	log      *logger.Logger
	store    store.DocumentStore
	fallback store.DocumentStore
	chain    *extract.Chain

	now   func() time.Time
	newID func(time.Time) string
}

// NewService wires the coordinator. fallback may be nil; it is only
// consulted when the primary store rejects a save as unavailable.
func NewService(log *logger.Logger, primary store.DocumentStore, fallback store.DocumentStore, chain *extract.Chain) *Service {
	return &Service{
		log:      log.With("service", "IngestService"),
		store:    primary,
		fallback: fallback,
		chain:    chain,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    store.NewDocumentID,
	}
}

func (s *Service) Ingest(ctx context.Context, up Upload) (IngestOutcome, error) {
	if len(up.Data) == 0 {
		return IngestOutcome{}, apierr.New(http.StatusBadRequest, "EMPTY_FILE", errors.New("uploaded file is empty"))
	}

	patientID := strings.TrimSpace(up.PatientID)
	if patientID == "" {
		patientID = types.AnonymousPatientID
	}

	cls, err := imaging.Classify(up.DeclaredMIME, up.Filename, up.Data)
	if err != nil {
		return IngestOutcome{}, apierr.New(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA", err)
	}

	now := s.now()
	rec := types.DocumentRecord{
		DocumentID: s.newID(now),
		PatientID:  patientID,
		Filename:   up.Filename,
		FileType:   cls.FileType,
		FileSize:   int64(len(up.Data)),
		Base64Data: base64.StdEncoding.EncodeToString(up.Data),
		OCRResults: []types.OCRRegion{},
		CreatedAt:  now,
	}
	rec.ProcessingMethod = types.ProcessingMethodNone

	meta := map[string]any{
		"upload_timestamp": now.Format(time.RFC3339),
		"file_extension":   strings.ToLower(filepath.Ext(up.Filename)),
	}

	var processingType string
	isImage := false

	switch cls.Kind {
	case imaging.KindImage:
		isImage = true
		processingType = types.ProcessingTypeImageOCR
		rec.DocumentType = types.DocumentTypeMedicalImage

		res := s.chain.Run(ctx, extract.Input{Data: up.Data, MIMEType: cls.FileType})
		rec.ExtractedText = res.Text
		if res.Regions != nil {
			rec.OCRResults = res.Regions
		}
		rec.TextCount = len(rec.OCRResults)
		rec.ProcessingMethod = res.Method
		elapsed := res.Elapsed.Seconds()
		rec.ProcessingTime = &elapsed
		rec.ConfidenceScore = res.Confidence
		for k, v := range res.Notes {
			meta[k] = v
		}
		meta["ocr_success"] = rec.ProcessingMethod != types.ProcessingMethodNone

	case imaging.KindText:
		processingType = types.ProcessingTypeTextStorage
		rec.DocumentType = types.DocumentTypeMedicalDocument
		rec.ExtractedText = string(up.Data)

	default:
		processingType = types.ProcessingTypeOpaqueStorage
		rec.DocumentType = types.DocumentTypeUnknown
	}

	meta["is_image"] = isImage
	meta["processing_type"] = processingType
	rec.Metadata = datatypes.JSONMap(meta)

	storageType, err := s.persist(ctx, &rec)
	if err != nil {
		return IngestOutcome{}, err
	}

	return IngestOutcome{
		Record:         rec,
		StorageType:    storageType,
		ProcessingType: processingType,
		IsImage:        isImage,
	}, nil
}

// persist writes the record to the primary store, regenerating the id
// on collision, and degrades to the fallback store when the primary is
// unavailable. Extraction results are never lost to a storage failure.
func (s *Service) persist(ctx context.Context, rec *types.DocumentRecord) (string, error) {
	err := s.saveWithFreshID(ctx, s.store, rec)
	if err == nil {
		return s.store.StorageType(), nil
	}
	if !errors.Is(err, store.ErrStoreUnavailable) {
		return "", apierr.New(http.StatusInternalServerError, "STORE_WRITE_FAILED", err)
	}

	if s.fallback == nil {
		return "", apierr.New(http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err)
	}
	s.log.Warn("Durable save failed; degrading to in-memory store",
		"document_id", rec.DocumentID,
		"error", err.Error(),
	)
	if fbErr := s.saveWithFreshID(ctx, s.fallback, rec); fbErr != nil {
		return "", apierr.New(http.StatusServiceUnavailable, "STORE_UNAVAILABLE", fbErr)
	}
	return s.fallback.StorageType(), nil
}

func (s *Service) saveWithFreshID(ctx context.Context, st store.DocumentStore, rec *types.DocumentRecord) error {
	var err error
	for attempt := 0; attempt < saveIDAttempts; attempt++ {
		if attempt > 0 {
			rec.DocumentID = s.newID(s.now())
		}
		err = st.Save(ctx, *rec)
		if !errors.Is(err, store.ErrDuplicateID) {
			return err
		}
	}
	return err
}

func (s *Service) GetDocument(ctx context.Context, documentID string, includePayload bool) (types.DocumentRecord, error) {
	rec, err := s.lookup(ctx, documentID, includePayload)
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return types.DocumentRecord{}, apierr.New(http.StatusNotFound, "DOCUMENT_NOT_FOUND", err)
	}
	return types.DocumentRecord{}, apierr.New(http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err)
}

// lookup consults the primary store and, on a miss, the fallback where
// degraded writes may have landed.
func (s *Service) lookup(ctx context.Context, documentID string, includePayload bool) (types.DocumentRecord, error) {
	rec, err := s.store.GetByID(ctx, documentID, includePayload)
	if err == nil || s.fallback == nil {
		return rec, err
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStoreUnavailable) {
		if fbRec, fbErr := s.fallback.GetByID(ctx, documentID, includePayload); fbErr == nil {
			return fbRec, nil
		}
	}
	return rec, err
}

type PatientListing struct {
	PatientID  string                 `json:"patient_id"`
	Documents  []types.DocumentRecord `json:"documents"`
	TotalCount int                    `json:"total_count"`
}

func (s *Service) ListPatientDocuments(ctx context.Context, patientID string, limit, offset int) (PatientListing, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var recs []types.DocumentRecord
	if s.fallback == nil {
		var err error
		recs, err = s.store.ListByPatient(ctx, patientID, limit, offset)
		if err != nil {
			return PatientListing{}, apierr.New(http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err)
		}
	} else {
		// Degraded writes may sit in the fallback store. Paging each
		// store independently would drop records from later pages, so
		// pull the full window from both, merge, then slice.
		window := offset + limit
		primary, err := s.store.ListByPatient(ctx, patientID, window, 0)
		if err != nil {
			return PatientListing{}, apierr.New(http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err)
		}
		recs = primary
		if fbRecs, fbErr := s.fallback.ListByPatient(ctx, patientID, window, 0); fbErr == nil && len(fbRecs) > 0 {
			recs = mergeListings(recs, fbRecs, window)
		}
		if offset >= len(recs) {
			recs = nil
		} else {
			recs = recs[offset:]
			if len(recs) > limit {
				recs = recs[:limit]
			}
		}
	}

	// Legacy rows written before ids were mandatory have no document_id;
	// they are unreachable by fetch and stay out of listings.
	filtered := make([]types.DocumentRecord, 0, len(recs))
	for _, r := range recs {
		if r.DocumentID == "" {
			continue
		}
		filtered = append(filtered, r)
	}

	return PatientListing{
		PatientID:  patientID,
		Documents:  filtered,
		TotalCount: len(filtered),
	}, nil
}

func mergeListings(a, b []types.DocumentRecord, limit int) []types.DocumentRecord {
	merged := make([]types.DocumentRecord, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	sort.SliceStable(merged, func(i, j int) bool { return listBefore(merged[i], merged[j]) })
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func listBefore(a, b types.DocumentRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.DocumentID > b.DocumentID
}

func (s *Service) HealthInfo(ctx context.Context) Health {
	connected := s.store.IsConnected(ctx)
	status := "healthy"
	if !connected {
		status = "degraded"
	}
	return Health{
		Status:         status,
		StorageType:    s.store.StorageType(),
		StoreConnected: connected,
	}
}
