package extract

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/arunlm/medilab-backend/internal/platform/logger"
	"github.com/arunlm/medilab-backend/internal/types"
)

// Input is one image payload handed to a strategy. MIMEType is the
// resolved type from classification, not the raw client declaration.
type Input struct {
	Data     []byte
	MIMEType string
}

// Strategy is one way of pulling text out of an image.
type Strategy interface {
	// Name is the processing_method value recorded when this strategy wins.
	Name() string
	Extract(ctx context.Context, in Input) ([]types.OCRRegion, error)
}

// Result is the chain outcome. A chain run never fails; an empty Result
// with Method "none" means every strategy came up dry.
type Result struct {
	Text       string
	Regions    []types.OCRRegion
	Method     string
	Elapsed    time.Duration
	Confidence *float64
	// Notes feeds record metadata, e.g. fallback_error.
	Notes map[string]any
}

// Chain runs the primary strategy and falls back to the secondary when
// the primary errors or finds nothing. Each strategy gets its own time
// budget carved from the request context.
type Chain struct {
	log            *logger.Logger
	primary        Strategy
	fallback       Strategy
	primaryBudget  time.Duration
	fallbackBudget time.Duration
}

func NewChain(log *logger.Logger, primary, fallback Strategy, primaryBudget, fallbackBudget time.Duration) *Chain {
	return &Chain{
		log:            log.With("service", "ExtractorChain"),
		primary:        primary,
		fallback:       fallback,
		primaryBudget:  primaryBudget,
		fallbackBudget: fallbackBudget,
	}
}

func (c *Chain) Run(ctx context.Context, in Input) Result {
	start := time.Now()
	res := Result{Method: types.ProcessingMethodNone, Notes: map[string]any{}}

	regions, err := c.runStrategy(ctx, c.primary, c.primaryBudget, in)
	if err != nil {
		c.log.Warn("Primary extraction failed", "error", err.Error())
		res.Notes["primary_error"] = err.Error()
	}
	if len(regions) > 0 {
		c.finish(&res, regions, c.primary.Name(), start)
		return res
	}

	if c.fallback == nil {
		res.Elapsed = time.Since(start)
		return res
	}

	fbRegions, fbErr := c.runStrategy(ctx, c.fallback, c.fallbackBudget, in)
	if fbErr != nil {
		c.log.Warn("Fallback extraction failed", "error", fbErr.Error())
		res.Notes["fallback_error"] = fbErr.Error()
		res.Elapsed = time.Since(start)
		return res
	}
	if len(fbRegions) == 0 {
		res.Elapsed = time.Since(start)
		return res
	}
	c.finish(&res, fbRegions, c.fallback.Name(), start)
	return res
}

func (c *Chain) runStrategy(ctx context.Context, s Strategy, budget time.Duration, in Input) ([]types.OCRRegion, error) {
	if s == nil {
		return nil, nil
	}
	runCtx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	return s.Extract(runCtx, in)
}

func (c *Chain) finish(res *Result, regions []types.OCRRegion, method string, start time.Time) {
	res.Regions = regions
	res.Method = method
	res.Text = AssembleText(regions)
	res.Confidence = meanConfidence(regions)
	res.Elapsed = time.Since(start)
}

// AssembleText joins region texts in reading order: top to bottom, then
// left to right by bounding-box origin.
func AssembleText(regions []types.OCRRegion) string {
	ordered := make([]types.OCRRegion, len(regions))
	copy(ordered, regions)
	sort.SliceStable(ordered, func(i, j int) bool {
		yi, xi := origin(ordered[i])
		yj, xj := origin(ordered[j])
		if yi != yj {
			return yi < yj
		}
		return xi < xj
	})

	parts := make([]string, 0, len(ordered))
	for _, r := range ordered {
		if t := strings.TrimSpace(r.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

func origin(r types.OCRRegion) (y, x float64) {
	if len(r.BBox) == 0 {
		return 0, 0
	}
	return r.BBox[0][1], r.BBox[0][0]
}

func meanConfidence(regions []types.OCRRegion) *float64 {
	if len(regions) == 0 {
		return nil
	}
	var sum float64
	for _, r := range regions {
		sum += r.Confidence
	}
	m := sum / float64(len(regions))
	return &m
}
