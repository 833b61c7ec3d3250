package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port    string `yaml:"port"`
	DBPath  string `yaml:"dbPath"`
	WorkDir string `yaml:"workDir"`

	// Workers is the number of concurrent pipeline slots. Kept at 1 in the
	// default deployment so only one renderer process is alive at a time.
	Workers       int `yaml:"workers"`
	MaxQueueDepth int `yaml:"maxQueueDepth"`

	SoftMemoryMB   int           `yaml:"softMemoryMB"`
	HardMemoryMB   int           `yaml:"hardMemoryMB"`
	SampleInterval time.Duration `yaml:"sampleInterval"`

	RenderTimeout    time.Duration `yaml:"renderTimeout"`
	PageCleanupDelay time.Duration `yaml:"pageCleanupDelay"`

	RetentionWindow time.Duration `yaml:"retentionWindow"`
	SweepInterval   time.Duration `yaml:"sweepInterval"`

	ChromiumPath string `yaml:"chromiumPath"`
	PDFUnitePath string `yaml:"pdfUnitePath"`

	CompressorURL   string `yaml:"compressorURL"`
	CompressorToken string `yaml:"compressorToken"`
}

// Load reads configuration from the environment, optionally overlaid with a
// YAML file named by EXPORT_CONFIG. Environment variables win over the file.
func Load() (Config, error) {
	cfg := Config{
		Port:             "8080",
		DBPath:           ":memory:",
		WorkDir:          os.TempDir(),
		Workers:          1,
		MaxQueueDepth:    3,
		SoftMemoryMB:     600,
		HardMemoryMB:     850,
		SampleInterval:   time.Minute,
		RenderTimeout:    60 * time.Second,
		PageCleanupDelay: 30 * time.Second,
		RetentionWindow:  time.Hour,
		SweepInterval:    time.Hour,
		ChromiumPath:     "chromium",
		PDFUnitePath:     "pdfunite",
	}

	if path := os.Getenv("EXPORT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.WorkDir = getEnv("EXPORT_WORK_DIR", cfg.WorkDir)
	cfg.Workers = getEnvInt("EXPORT_WORKERS", cfg.Workers)
	cfg.MaxQueueDepth = getEnvInt("EXPORT_MAX_QUEUE_DEPTH", cfg.MaxQueueDepth)
	cfg.SoftMemoryMB = getEnvInt("EXPORT_SOFT_MEMORY_MB", cfg.SoftMemoryMB)
	cfg.HardMemoryMB = getEnvInt("EXPORT_HARD_MEMORY_MB", cfg.HardMemoryMB)
	cfg.SampleInterval = getEnvDuration("EXPORT_SAMPLE_INTERVAL", cfg.SampleInterval)
	cfg.RenderTimeout = getEnvDuration("EXPORT_RENDER_TIMEOUT", cfg.RenderTimeout)
	cfg.PageCleanupDelay = getEnvDuration("EXPORT_PAGE_CLEANUP_DELAY", cfg.PageCleanupDelay)
	cfg.RetentionWindow = getEnvDuration("EXPORT_RETENTION_WINDOW", cfg.RetentionWindow)
	cfg.SweepInterval = getEnvDuration("EXPORT_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.ChromiumPath = getEnv("CHROMIUM_PATH", cfg.ChromiumPath)
	cfg.PDFUnitePath = getEnv("PDFUNITE_PATH", cfg.PDFUnitePath)
	cfg.CompressorURL = getEnv("COMPRESSOR_URL", cfg.CompressorURL)
	cfg.CompressorToken = getEnv("COMPRESSOR_API_TOKEN", cfg.CompressorToken)

	if cfg.HardMemoryMB <= cfg.SoftMemoryMB {
		return cfg, fmt.Errorf("hard memory threshold (%dMB) must exceed soft threshold (%dMB)",
			cfg.HardMemoryMB, cfg.SoftMemoryMB)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
