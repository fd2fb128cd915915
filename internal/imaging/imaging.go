package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnclassifiable means no signal (declared type, magic bytes, text
// decode, extension) gave the payload a classification.
var ErrUnclassifiable = errors.New("content cannot be classified")

// MaxOCRDimension is the largest side an image may have before it is
// downscaled ahead of OCR. The stored payload is never the downscaled one.
const MaxOCRDimension = 2048

type Kind int

const (
	KindImage Kind = iota
	KindText
	KindOpaque
)

// Classification is the routing decision for one upload.
type Classification struct {
	Kind Kind
	// Resolved MIME-like type; falls back to the declared one.
	FileType string
}

var imageExts = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

var textExts = map[string]string{
	".txt":  "text/plain",
	".csv":  "text/csv",
	".md":   "text/markdown",
	".json": "application/json",
	".xml":  "application/xml",
	".html": "text/html",
}

// Extensions the uploaders commonly send that we store without reading.
var opaqueExts = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".zip":  "application/zip",
	".dcm":  "application/dicom",
}

// Classify decides how an upload is routed. Signals in priority order:
// declared image type, image magic bytes, textual declared type, UTF-8
// decodability, filename extension, then any usable declared type.
func Classify(declaredMIME, filename string, data []byte) (Classification, error) {
	declared := strings.ToLower(strings.TrimSpace(declaredMIME))
	ext := strings.ToLower(filepath.Ext(filename))

	if strings.HasPrefix(declared, "image/") {
		return Classification{Kind: KindImage, FileType: declared}, nil
	}
	if detected := sniffImageMIME(data); detected != "" {
		return Classification{Kind: KindImage, FileType: detected}, nil
	}
	if isTextualMIME(declared) {
		return Classification{Kind: KindText, FileType: declared}, nil
	}
	if isUTF8Text(data) {
		ft := declared
		if ft == "" || isGenericMIME(ft) {
			if mapped, ok := textExts[ext]; ok {
				ft = mapped
			} else {
				ft = "text/plain"
			}
		}
		return Classification{Kind: KindText, FileType: ft}, nil
	}

	// Declared type was missing or generic; let the extension decide.
	if mapped, ok := imageExts[ext]; ok {
		return Classification{Kind: KindImage, FileType: mapped}, nil
	}
	if mapped, ok := textExts[ext]; ok {
		return Classification{Kind: KindText, FileType: mapped}, nil
	}
	if mapped, ok := opaqueExts[ext]; ok {
		return Classification{Kind: KindOpaque, FileType: mapped}, nil
	}
	if declared != "" && !isGenericMIME(declared) {
		return Classification{Kind: KindOpaque, FileType: declared}, nil
	}
	return Classification{}, ErrUnclassifiable
}

func isGenericMIME(m string) bool {
	switch m {
	case "application/octet-stream", "binary/octet-stream", "content/unknown":
		return true
	}
	return false
}

func isTextualMIME(m string) bool {
	if strings.HasPrefix(m, "text/") {
		return true
	}
	switch m {
	case "application/json", "application/xml", "application/x-yaml", "application/yaml":
		return true
	}
	return false
}

func sniffImageMIME(data []byte) string {
	switch {
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "image/gif"
	case len(data) >= 2 && bytes.Equal(data[:2], []byte("BM")):
		return "image/bmp"
	case len(data) >= 4 && (bytes.Equal(data[:4], []byte("II*\x00")) || bytes.Equal(data[:4], []byte("MM\x00*"))):
		return "image/tiff"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	}
	return ""
}

func isUTF8Text(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if bytes.IndexByte(data, 0x00) >= 0 {
		return false
	}
	return utf8.Valid(data)
}

// NormalizeForOCR decodes the image and, when either side exceeds
// MaxOCRDimension, downscales it proportionally and re-encodes as PNG.
// Payloads already within bounds come back untouched.
func NormalizeForOCR(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= MaxOCRDimension && h <= MaxOCRDimension {
		return data, nil
	}

	scale := float64(MaxOCRDimension) / float64(w)
	if h > w {
		scale = float64(MaxOCRDimension) / float64(h)
	}
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode downscaled image: %w", err)
	}
	return buf.Bytes(), nil
}
