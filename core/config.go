package core

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ghibli_backend/sdruntime"
)

// Image backends selectable with IMAGE_BACKEND.
const (
	BackendSDCPP  = "sdcpp"
	BackendOpenAI = "openai"
)

// Config holds all configuration values
type Config struct {
	// HTTP server
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	MaxUploadMB     int           `yaml:"max_upload_mb"`
	ShutdownTimeout time.Duration `yaml:"-"`
	UIEnabled       bool          `yaml:"-"`

	// Logging
	DevMode  bool   `yaml:"dev_mode"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// Image backend selection
	ImageBackend string `yaml:"image_backend"`

	// Stable Diffusion (local img2img) configuration
	SDModelPath      string        `yaml:"sd_model_path"`
	SDDevice         string        `yaml:"sd_device"` // auto, cuda or cpu
	SDMaxConcurrent  int           `yaml:"sd_max_concurrent"`
	SDSteps          int           `yaml:"sd_steps"`
	SDTimeout        time.Duration `yaml:"-"`
	SDAcquireTimeout time.Duration `yaml:"-"`
	SDVerifyChecksum bool          `yaml:"sd_verify_checksum"`

	// OpenAI image edit backend
	OpenAIAPIKey     string `yaml:"-"`
	OpenAIBaseURL    string `yaml:"openai_base_url"`
	OpenAIImageModel string `yaml:"openai_image_model"`

	// Raw seconds from the YAML file, folded into the durations above.
	ShutdownTimeoutSeconds  int `yaml:"shutdown_timeout_seconds"`
	SDTimeoutSeconds        int `yaml:"sd_timeout_seconds"`
	SDAcquireTimeoutSeconds int `yaml:"sd_acquire_timeout_seconds"`
}

// Defaults
const (
	DefaultHost                 = "0.0.0.0"
	DefaultPort                 = 8000
	DefaultMaxUploadMB          = 20
	DefaultLogFile              = "app.log"
	DefaultModelPath            = "models/ghibli-diffusion-v1.safetensors"
	DefaultSDMaxConcurrent      = 1
	DefaultSDSteps              = 25
	DefaultSDTimeoutSeconds     = 300
	DefaultAcquireTimeoutSecond = 120
	DefaultShutdownTimeout      = 30
	DefaultOpenAIBaseURL        = "https://api.openai.com/v1"
	DefaultOpenAIImageModel     = "dall-e-2"
)

// DefaultConfig returns a Config populated with defaults only.
func DefaultConfig() *Config {
	return &Config{
		Host:             DefaultHost,
		Port:             DefaultPort,
		MaxUploadMB:      DefaultMaxUploadMB,
		ShutdownTimeout:  DefaultShutdownTimeout * time.Second,
		UIEnabled:        true,
		LogLevel:         "info",
		LogFile:          DefaultLogFile,
		ImageBackend:     BackendSDCPP,
		SDModelPath:      DefaultModelPath,
		SDDevice:         "auto",
		SDMaxConcurrent:  DefaultSDMaxConcurrent,
		SDSteps:          DefaultSDSteps,
		SDTimeout:        DefaultSDTimeoutSeconds * time.Second,
		SDAcquireTimeout: DefaultAcquireTimeoutSecond * time.Second,
		OpenAIBaseURL:    DefaultOpenAIBaseURL,
		OpenAIImageModel: DefaultOpenAIImageModel,
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by CONFIG_FILE and finally environment variables. The .env file is
// expected to have been loaded by the caller.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeYAMLFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeYAMLFile overlays values from a YAML file onto cfg.
// Zero values in the file leave the current value untouched.
func (c *Config) mergeYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigFileMissing(path)
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return ErrInvalidConfigFile(path, err)
	}

	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.MaxUploadMB != 0 {
		c.MaxUploadMB = file.MaxUploadMB
	}
	if file.DevMode {
		c.DevMode = true
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
	}
	if file.LogFile != "" {
		c.LogFile = file.LogFile
	}
	if file.ImageBackend != "" {
		c.ImageBackend = file.ImageBackend
	}
	if file.SDModelPath != "" {
		c.SDModelPath = file.SDModelPath
	}
	if file.SDDevice != "" {
		c.SDDevice = file.SDDevice
	}
	if file.SDMaxConcurrent != 0 {
		c.SDMaxConcurrent = file.SDMaxConcurrent
	}
	if file.SDSteps != 0 {
		c.SDSteps = file.SDSteps
	}
	if file.SDVerifyChecksum {
		c.SDVerifyChecksum = true
	}
	if file.OpenAIBaseURL != "" {
		c.OpenAIBaseURL = file.OpenAIBaseURL
	}
	if file.OpenAIImageModel != "" {
		c.OpenAIImageModel = file.OpenAIImageModel
	}
	if file.ShutdownTimeoutSeconds > 0 {
		c.ShutdownTimeout = time.Duration(file.ShutdownTimeoutSeconds) * time.Second
	}
	if file.SDTimeoutSeconds > 0 {
		c.SDTimeout = time.Duration(file.SDTimeoutSeconds) * time.Second
	}
	if file.SDAcquireTimeoutSeconds > 0 {
		c.SDAcquireTimeout = time.Duration(file.SDAcquireTimeoutSeconds) * time.Second
	}
	return nil
}

// applyEnv overrides values with environment variables that are set.
func (c *Config) applyEnv() {
	c.Host = GetEnvOrDefault("HOST", c.Host)
	c.Port = ParseIntEnv("PORT", c.Port)
	c.MaxUploadMB = ParseIntEnv("MAX_UPLOAD_MB", c.MaxUploadMB)
	c.ShutdownTimeout = ParseDurationEnv("SHUTDOWN_TIMEOUT_SECONDS", int(c.ShutdownTimeout/time.Second))
	c.UIEnabled = ParseBoolEnv("UI_ENABLED", c.UIEnabled)

	c.DevMode = ParseBoolEnv("DEV_MODE", c.DevMode)
	c.LogLevel = GetEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFile = GetEnvOrDefault("LOG_FILE", c.LogFile)

	c.ImageBackend = strings.ToLower(GetEnvOrDefault("IMAGE_BACKEND", c.ImageBackend))

	c.SDModelPath = GetEnvOrDefault("SD_MODEL_PATH", c.SDModelPath)
	c.SDDevice = strings.ToLower(GetEnvOrDefault("SD_DEVICE", c.SDDevice))
	c.SDMaxConcurrent = ParseIntEnv("SD_MAX_CONCURRENT", c.SDMaxConcurrent)
	c.SDSteps = ParseIntEnv("SD_STEPS", c.SDSteps)
	c.SDTimeout = ParseDurationEnv("SD_TIMEOUT_SECONDS", int(c.SDTimeout/time.Second))
	c.SDAcquireTimeout = ParseDurationEnv("SD_ACQUIRE_TIMEOUT_SECONDS", int(c.SDAcquireTimeout/time.Second))
	c.SDVerifyChecksum = ParseBoolEnv("SD_VERIFY_CHECKSUM", c.SDVerifyChecksum)

	c.OpenAIAPIKey = GetEnvOrDefault("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = GetEnvOrDefault("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIImageModel = GetEnvOrDefault("OPENAI_IMAGE_MODEL", c.OpenAIImageModel)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidValue("PORT", fmt.Sprintf("%d", c.Port), "must be between 1 and 65535")
	}
	if c.MaxUploadMB < 1 {
		return ErrInvalidValue("MAX_UPLOAD_MB", fmt.Sprintf("%d", c.MaxUploadMB), "must be at least 1")
	}

	switch c.ImageBackend {
	case BackendSDCPP:
		if c.SDMaxConcurrent < 1 {
			return ErrInvalidValue("SD_MAX_CONCURRENT", fmt.Sprintf("%d", c.SDMaxConcurrent), "must be at least 1")
		}
		if c.SDSteps < sdruntime.MinSteps || c.SDSteps > sdruntime.MaxSteps {
			return ErrInvalidValue("SD_STEPS", fmt.Sprintf("%d", c.SDSteps),
				fmt.Sprintf("must be between %d and %d", sdruntime.MinSteps, sdruntime.MaxSteps))
		}
		switch c.SDDevice {
		case "auto", "cuda", "cpu":
		default:
			return ErrInvalidValue("SD_DEVICE", c.SDDevice, "must be one of auto, cuda, cpu")
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return ErrMissingAuth("openai")
		}
	default:
		return ErrInvalidValue("IMAGE_BACKEND", c.ImageBackend, "must be sdcpp or openai")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
