package extract

import (
	"context"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/sync/semaphore"

	"github.com/arunlm/medilab-backend/internal/imaging"
	"github.com/arunlm/medilab-backend/internal/platform/logger"
	"github.com/arunlm/medilab-backend/internal/types"
)

// OCRStrategy wraps a single Tesseract engine. The engine is not safe
// for concurrent use, so recognition is serialized behind a mutex; the
// semaphore bounds how many requests may queue for it, and waiters
// respect context cancellation.
type OCRStrategy struct {
	log      *logger.Logger
	language string
	autoOSD  bool
	sem      *semaphore.Weighted

	mu     sync.Mutex
	client *gosseract.Client
}

func NewOCRStrategy(log *logger.Logger, language string, angleClassification bool, maxConcurrency int) (*OCRStrategy, error) {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		_ = client.Close()
		return nil, err
	}
	psm := gosseract.PSM_AUTO
	if angleClassification {
		psm = gosseract.PSM_AUTO_OSD
	}
	if err := client.SetPageSegMode(psm); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &OCRStrategy{
		log:      log.With("service", "OCRStrategy"),
		language: language,
		autoOSD:  angleClassification,
		sem:      semaphore.NewWeighted(int64(maxConcurrency)),
		client:   client,
	}, nil
}

func (s *OCRStrategy) Name() string { return types.ProcessingMethodPrimaryOCR }

func (s *OCRStrategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Close()
}

type ocrOutcome struct {
	regions []types.OCRRegion
	err     error
}

func (s *OCRStrategy) Extract(ctx context.Context, in Input) ([]types.OCRRegion, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	normalized, err := imaging.NormalizeForOCR(in.Data)
	if err != nil {
		return nil, err
	}

	// The engine call is a blocking cgo call; run it off-goroutine so
	// the request can still observe its deadline.
	done := make(chan ocrOutcome, 1)
	go func() {
		done <- s.recognize(normalized)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.regions, out.err
	}
}

func (s *OCRStrategy) recognize(data []byte) ocrOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.SetImageFromBytes(data); err != nil {
		return ocrOutcome{err: err}
	}
	boxes, err := s.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return ocrOutcome{err: err}
	}

	regions := make([]types.OCRRegion, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		x0 := float64(b.Box.Min.X)
		y0 := float64(b.Box.Min.Y)
		x1 := float64(b.Box.Max.X)
		y1 := float64(b.Box.Max.Y)
		regions = append(regions, types.OCRRegion{
			Text:       text,
			Confidence: b.Confidence / 100.0,
			BBox:       [][2]float64{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}},
		})
	}
	return ocrOutcome{regions: regions}
}
