package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/line-profile-studio/pkg/validation"
)

// Asset sources
const (
	AssetSourceHTTP  = "http"
	AssetSourceAzure = "azure"
)

// Mirror modes
const (
	MirrorModePixel        = "pixel"
	MirrorModeProportional = "proportional"
)

type Config struct {
	Host               string
	Port               string
	BackendURL         string
	RequestTimeout     time.Duration
	AssetFetchTimeout  time.Duration
	AnalysisTimeout    time.Duration
	MaxRequestBodySize int64
	MaxAssetBytes      int64
	MaxAssetPixels     int64

	AssetSource      string
	AzureAccountName string
	AzureAccountKey  string

	DecodeWorkers int
	MirrorMode    string
	LogLevel      logrus.Level
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// LoadDotEnv loads .env files into the process environment. Missing files are
// not an error; variables already set win.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		BackendURL:         strings.TrimRight(getEnvOrDefault("BACKEND_URL", "http://localhost:5000"), "/"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		AssetFetchTimeout:  parseDurationOrDefault("ASSET_FETCH_TIMEOUT", 15*time.Second),
		AnalysisTimeout:    parseDurationOrDefault("ANALYSIS_TIMEOUT", 60*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 64*1024*1024), // 64MB, several photos
		MaxAssetBytes:      parseIntOrDefault("MAX_ASSET_BYTES", 32*1024*1024),
		MaxAssetPixels:     parseIntOrDefault("MAX_ASSET_PIXELS", 50_000_000),
		AssetSource:        strings.ToLower(getEnvOrDefault("ASSET_SOURCE", AssetSourceHTTP)),
		AzureAccountName:   os.Getenv("AZURE_ACCOUNT_NAME"),
		AzureAccountKey:    os.Getenv("AZURE_ACCOUNT_KEY"),
		DecodeWorkers:      int(parseIntOrDefault("DECODE_WORKERS", 4)),
		MirrorMode:         strings.ToLower(getEnvOrDefault("MIRROR_MODE", MirrorModePixel)),
	}

	level, err := logrus.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if err := validation.NewURLValidator().ValidateBaseURL(c.BackendURL); err != nil {
		return fmt.Errorf("invalid BACKEND_URL %q: %w", c.BackendURL, err)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxAssetBytes <= 0 || c.MaxAssetPixels <= 0 {
		return fmt.Errorf("MAX_ASSET_BYTES and MAX_ASSET_PIXELS must be > 0 (got %d, %d)", c.MaxAssetBytes, c.MaxAssetPixels)
	}
	if c.RequestTimeout <= 0 || c.AssetFetchTimeout <= 0 || c.AnalysisTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, analysis=%s)",
			c.RequestTimeout, c.AssetFetchTimeout, c.AnalysisTimeout)
	}
	if c.DecodeWorkers < 1 {
		return fmt.Errorf("DECODE_WORKERS must be >= 1 (got %d)", c.DecodeWorkers)
	}

	switch c.AssetSource {
	case AssetSourceHTTP:
	case AssetSourceAzure:
		if c.AzureAccountName == "" || c.AzureAccountKey == "" {
			return fmt.Errorf("ASSET_SOURCE=azure requires AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY")
		}
	default:
		return fmt.Errorf("invalid ASSET_SOURCE: %q", c.AssetSource)
	}

	switch c.MirrorMode {
	case MirrorModePixel, MirrorModeProportional:
	default:
		return fmt.Errorf("invalid MIRROR_MODE: %q", c.MirrorMode)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
