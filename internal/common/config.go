package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Config holds all application configuration
type Config struct {
	Store   StoreConfig
	Files   FilesConfig
	OCR     OCRConfig
	Barcode BarcodeConfig
	Server  ServerConfig
	Export  ExportConfig
}

// StoreConfig holds the metadata (session index) store configuration
type StoreConfig struct {
	Driver          string // "sqlite" | "postgres"
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// FilesConfig holds durable file locations
type FilesConfig struct {
	DataDir   string
	ImagesDir string
	ExportDir string
}

// OCRConfig holds text recognizer configuration
type OCRConfig struct {
	Tesseract        string
	Lang             string
	PSM              int
	OEM              int
	TessdataDir      string
	HeicConverter    string
	ArtifactCacheDir string
	Timeout          time.Duration
}

// BarcodeConfig holds barcode recognizer and live-feed configuration
type BarcodeConfig struct {
	ZBarImg   string
	Cooldown  time.Duration
	QueueSize int
}

// ServerConfig holds transport configuration
type ServerConfig struct {
	GRPCAddr string
	HTTPAddr string
}

// ExportConfig holds the export worker configuration
type ExportConfig struct {
	Enabled   bool
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	dataDir := getEnv("FIELDCAPTURE_DATA_DIR", "./data")
	return &Config{
		Store: StoreConfig{
			Driver:          getEnv("STORE_DRIVER", "sqlite"),
			DSN:             getEnv("STORE_DSN", ""),
			MaxConns:        getEnvAsInt32("STORE_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("STORE_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("STORE_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("STORE_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("STORE_DIAL_TIMEOUT", 3*time.Second),
		},
		Files: FilesConfig{
			DataDir:   dataDir,
			ImagesDir: getEnv("IMAGES_DIR", filepath.Join(dataDir, "images")),
			ExportDir: getEnv("EXPORT_DIR", filepath.Join(dataDir, "exports")),
		},
		OCR: OCRConfig{
			Tesseract:        getEnv("TESSERACT", "tesseract"),
			Lang:             getEnv("TESSERACT_LANG", "eng"),
			PSM:              getEnvAsInt("TESSERACT_PSM", 11),
			OEM:              getEnvAsInt("TESSERACT_OEM", 0),
			TessdataDir:      getEnv("TESSDATA_PREFIX", ""),
			HeicConverter:    getEnv("HEIC_CONVERTER", "magick"),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
			Timeout:          getEnvAsDuration("OCR_TIMEOUT", 45*time.Second),
		},
		Barcode: BarcodeConfig{
			ZBarImg:   getEnv("ZBARIMG", "zbarimg"),
			Cooldown:  getEnvAsDuration("BARCODE_COOLDOWN", 1500*time.Millisecond),
			QueueSize: getEnvAsInt("BARCODE_QUEUE_SIZE", 64),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
			HTTPAddr: getEnv("HTTP_ADDR", ":8081"),
		},
		Export: ExportConfig{
			Enabled:   getEnvAsBool("EXPORT_ENABLED", true),
			Workers:   getEnvAsInt("EXPORT_WORKERS", 1),
			QueueSize: getEnvAsInt("EXPORT_QUEUE_SIZE", 64),
			Timeout:   getEnvAsDuration("EXPORT_TIMEOUT", 30*time.Second),
		},
	}
}

// fileConfig mirrors Config for YAML overlays; empty fields keep env values.
type fileConfig struct {
	Store struct {
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"store"`
	Files struct {
		DataDir   string `yaml:"data_dir"`
		ImagesDir string `yaml:"images_dir"`
		ExportDir string `yaml:"export_dir"`
	} `yaml:"files"`
	OCR struct {
		Tesseract     string `yaml:"tesseract"`
		Lang          string `yaml:"lang"`
		PSM           int    `yaml:"psm"`
		OEM           int    `yaml:"oem"`
		TessdataDir   string `yaml:"tessdata_dir"`
		HeicConverter string `yaml:"heic_converter"`
		Timeout       string `yaml:"timeout"`
	} `yaml:"ocr"`
	Barcode struct {
		ZBarImg   string `yaml:"zbarimg"`
		Cooldown  string `yaml:"cooldown"`
		QueueSize int    `yaml:"queue_size"`
	} `yaml:"barcode"`
	Server struct {
		GRPCAddr string `yaml:"grpc_addr"`
		HTTPAddr string `yaml:"http_addr"`
	} `yaml:"server"`
	Export struct {
		Enabled *bool  `yaml:"enabled"`
		Workers int    `yaml:"workers"`
		Timeout string `yaml:"timeout"`
	} `yaml:"export"`
}

// LoadConfigFile loads env configuration and overlays the YAML file at path.
// An empty path returns the env configuration unchanged.
func LoadConfigFile(path string) (*Config, error) {
	cfg := LoadConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewAppError("CONFIG_ERROR", "read config file", err)
	}
	if err := cfg.Overlay(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Overlay applies YAML document data on top of c.
func (c *Config) Overlay(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return NewAppError("CONFIG_ERROR", "parse config file", err)
	}

	setString(&c.Store.Driver, fc.Store.Driver)
	setString(&c.Store.DSN, fc.Store.DSN)
	if fc.Store.MaxConns > 0 {
		c.Store.MaxConns = fc.Store.MaxConns
	}
	if fc.Store.MinConns > 0 {
		c.Store.MinConns = fc.Store.MinConns
	}

	if fc.Files.DataDir != "" {
		c.Files.DataDir = fc.Files.DataDir
		c.Files.ImagesDir = filepath.Join(fc.Files.DataDir, "images")
		c.Files.ExportDir = filepath.Join(fc.Files.DataDir, "exports")
	}
	setString(&c.Files.ImagesDir, fc.Files.ImagesDir)
	setString(&c.Files.ExportDir, fc.Files.ExportDir)

	setString(&c.OCR.Tesseract, fc.OCR.Tesseract)
	setString(&c.OCR.Lang, fc.OCR.Lang)
	setString(&c.OCR.TessdataDir, fc.OCR.TessdataDir)
	setString(&c.OCR.HeicConverter, fc.OCR.HeicConverter)
	if fc.OCR.PSM > 0 {
		c.OCR.PSM = fc.OCR.PSM
	}
	if fc.OCR.OEM > 0 {
		c.OCR.OEM = fc.OCR.OEM
	}
	if err := setDuration(&c.OCR.Timeout, "ocr.timeout", fc.OCR.Timeout); err != nil {
		return err
	}

	setString(&c.Barcode.ZBarImg, fc.Barcode.ZBarImg)
	if err := setDuration(&c.Barcode.Cooldown, "barcode.cooldown", fc.Barcode.Cooldown); err != nil {
		return err
	}
	if fc.Barcode.QueueSize > 0 {
		c.Barcode.QueueSize = fc.Barcode.QueueSize
	}

	setString(&c.Server.GRPCAddr, fc.Server.GRPCAddr)
	setString(&c.Server.HTTPAddr, fc.Server.HTTPAddr)

	if fc.Export.Enabled != nil {
		c.Export.Enabled = *fc.Export.Enabled
	}
	if fc.Export.Workers > 0 {
		c.Export.Workers = fc.Export.Workers
	}
	return setDuration(&c.Export.Timeout, "export.timeout", fc.Export.Timeout)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("%s must be a duration", field), ErrInvalidInput)
	}
	*dst = d
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return NewAppError("CONFIG_ERROR", "STORE_DSN is required for postgres", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported STORE_DRIVER %q", c.Store.Driver), ErrInvalidInput)
	}
	if c.Files.ImagesDir == "" {
		return NewAppError("CONFIG_ERROR", "IMAGES_DIR is required", ErrInvalidInput)
	}
	if c.Barcode.Cooldown <= 0 {
		return NewAppError("CONFIG_ERROR", "BARCODE_COOLDOWN must be positive", ErrInvalidInput)
	}
	return nil
}

// SQLiteDSN returns the configured DSN or a file under the data dir.
func (c *Config) SQLiteDSN() string {
	if c.Store.DSN != "" {
		return c.Store.DSN
	}
	return "file:" + filepath.Join(c.Files.DataDir, "fieldcapture.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
