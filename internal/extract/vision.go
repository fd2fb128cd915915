package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/arunlm/medilab-backend/internal/platform/logger"
	"github.com/arunlm/medilab-backend/internal/platform/openai"
	"github.com/arunlm/medilab-backend/internal/types"
)

const (
	visionSystemPrompt = "You are a transcription assistant for medical documents. " +
		"Transcribe text exactly as it appears; do not interpret, summarize, or diagnose."
	visionUserPrompt = "Extract all visible text from this medical document image. " +
		"Preserve the reading order. Return only the transcribed text with no commentary. " +
		"If the image contains no readable text, return an empty response."

	// The model gives no per-region scores; transcriptions get a fixed
	// optimistic confidence.
	visionConfidence = 0.95
)

// VisionStrategy sends the image to a vision-language model and wraps
// the transcription in a single full-image region.
type VisionStrategy struct {
	log    *logger.Logger
	client openai.Client
}

func NewVisionStrategy(log *logger.Logger, client openai.Client) *VisionStrategy {
	return &VisionStrategy{
		log:    log.With("service", "VisionStrategy"),
		client: client,
	}
}

func (s *VisionStrategy) Name() string { return types.ProcessingMethodVisionFallback }

func (s *VisionStrategy) Extract(ctx context.Context, in Input) ([]types.OCRRegion, error) {
	mime := strings.TrimSpace(in.MIMEType)
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(in.Data))

	text, err := s.client.GenerateTextWithImages(ctx, visionSystemPrompt, visionUserPrompt, []openai.ImageInput{
		{ImageURL: dataURL, Detail: "high"},
	})
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	w, h := imageDims(in.Data)
	return []types.OCRRegion{{
		Text:       text,
		Confidence: visionConfidence,
		BBox:       [][2]float64{{0, 0}, {float64(w), 0}, {float64(w), float64(h)}, {0, float64(h)}},
	}}, nil
}

func imageDims(data []byte) (w, h int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
