package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arunlm/medilab-backend/internal/platform/envutil"
	"github.com/arunlm/medilab-backend/internal/platform/logger"
)

// Config is read once at startup and never mutated afterwards.
type Config struct {
	Port    string
	LogMode string

	// Durable store. An empty DatabaseURL forces the ephemeral adapter.
	DatabaseURL       string
	DBName            string
	DBCollection      string
	StoreProbeTimeout time.Duration

	MaxUploadBytes int64

	OCRLanguage            string
	OCRAngleClassification bool
	OCRTimeout             time.Duration
	OCRMaxConcurrency      int

	VisionFallbackEnabled bool
	VisionTimeout         time.Duration
}

// Load reads CONFIG_FILE (optional YAML keyed by the same names as the
// environment variables) and then the environment; environment wins.
func Load(log *logger.Logger) (Config, error) {
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := seedFromFile(path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if log != nil {
			log.Info("Seeded configuration from file", "path", path)
		}
	}

	cfg := Config{
		Port:    envutil.Str("PORT", "8080"),
		LogMode: envutil.Str("LOG_MODE", "development"),

		DatabaseURL:       envutil.Str("DATABASE_URL", ""),
		DBName:            envutil.Str("DB_NAME", "medilab"),
		DBCollection:      envutil.Str("DB_COLLECTION", "patient_documents"),
		StoreProbeTimeout: envutil.Duration("STORE_PROBE_TIMEOUT", 5*time.Second),

		MaxUploadBytes: int64(envutil.Int("MAX_UPLOAD_BYTES", 32<<20)),

		OCRLanguage:            envutil.Str("OCR_LANGUAGE", "eng"),
		OCRAngleClassification: envutil.Bool("OCR_ANGLE_CLASSIFICATION", true),
		OCRTimeout:             envutil.Duration("OCR_TIMEOUT", 120*time.Second),
		OCRMaxConcurrency:      envutil.Int("OCR_MAX_CONCURRENCY", 2),

		VisionFallbackEnabled: envutil.Bool("VISION_FALLBACK_ENABLED", false),
		VisionTimeout:         envutil.Duration("VISION_TIMEOUT", 30*time.Second),
	}

	if cfg.VisionFallbackEnabled && strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) == "" {
		if log != nil {
			log.Warn("VISION_FALLBACK_ENABLED set without OPENAI_API_KEY; fallback disabled")
		}
		cfg.VisionFallbackEnabled = false
	}
	if cfg.OCRMaxConcurrency < 1 {
		cfg.OCRMaxConcurrency = 1
	}
	return cfg, nil
}

// seedFromFile sets file values into the environment for keys the
// environment does not already define.
func seedFromFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return err
	}
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, scalarString(v)); err != nil {
			return err
		}
	}
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
