package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// FormatYOLO selects ONNX exports with a [1, 4+classes, candidates] output.
	FormatYOLO = "yolo"
	// FormatSSD selects SSD style networks with a [1, 1, N, 7] output.
	FormatSSD = "ssd"
)

type Config struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	CameraDevice string `yaml:"camera_device"`
	CameraWidth  int    `yaml:"camera_width"`
	CameraHeight int    `yaml:"camera_height"`

	ModelPath           string   `yaml:"model_path"`
	ModelConfigPath     string   `yaml:"model_config_path"`
	ModelFormat         string   `yaml:"model_format"`
	ModelInputSize      int      `yaml:"model_input_size"`
	ModelWatch          bool     `yaml:"model_watch"`
	ClassNames          []string `yaml:"class_names"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	NMSThreshold        float64  `yaml:"nms_threshold"`

	JPEGQuality  int `yaml:"jpeg_quality"`
	StreamMaxFPS int `yaml:"stream_max_fps"`

	DatabasePath          string `yaml:"database_path"`
	SnapshotDirectory     string `yaml:"snapshot_dir"`
	SnapshotBufferLimit   int    `yaml:"snapshot_buffer_limit"`
	SnapshotFlushInterval int    `yaml:"snapshot_flush_interval"` // seconds
	EventCooldown         int    `yaml:"event_cooldown"`          // seconds

	LogDirectory string `yaml:"log_dir"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Host:                  "127.0.0.1",
		Port:                  5000,
		AllowedOrigins:        []string{"*"},
		CameraDevice:          "0",
		ModelPath:             "best.onnx",
		ModelFormat:           FormatYOLO,
		ModelInputSize:        640,
		ModelWatch:            true,
		ClassNames:            []string{"fall"},
		ConfidenceThreshold:   0.5,
		NMSThreshold:          0.7,
		JPEGQuality:           95,
		DatabasePath:          filepath.Join(".", "data", "events.db"),
		SnapshotDirectory:     filepath.Join(".", "snapshots"),
		SnapshotBufferLimit:   10,
		SnapshotFlushInterval: 30,
		EventCooldown:         10,
		LogDirectory:          filepath.Join(".", "logs"),
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE yaml,
// a .env file in the working directory and the process environment.
func Load() (*Config, error) {
	return LoadWithEnvFile(".env")
}

// LoadWithEnvFile is Load with an explicit dotenv path. A missing dotenv file is not an error.
func LoadWithEnvFile(envFile string) (*Config, error) {
	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
		dotenv = map[string]string{}
	}

	env := func(key string) (string, bool) {
		if value := os.Getenv(key); value != "" {
			return value, true
		}
		value, ok := dotenv[key]
		return value, ok && value != ""
	}

	cfg := Default()
	if path, ok := env("CONFIG_FILE"); ok {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("unmarshal yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(env func(string) (string, bool)) {
	c.Host = getEnv(env, "HOST", c.Host)
	c.Port = getEnvAsInt(env, "PORT", c.Port)
	c.AllowedOrigins = getEnvAsList(env, "ALLOWED_ORIGINS", c.AllowedOrigins)

	c.CameraDevice = getEnv(env, "CAMERA_DEVICE", c.CameraDevice)
	c.CameraWidth = getEnvAsInt(env, "CAMERA_WIDTH", c.CameraWidth)
	c.CameraHeight = getEnvAsInt(env, "CAMERA_HEIGHT", c.CameraHeight)

	c.ModelPath = getEnv(env, "MODEL_PATH", c.ModelPath)
	c.ModelConfigPath = getEnv(env, "MODEL_CONFIG_PATH", c.ModelConfigPath)
	c.ModelFormat = strings.ToLower(getEnv(env, "MODEL_FORMAT", c.ModelFormat))
	c.ModelInputSize = getEnvAsInt(env, "MODEL_INPUT_SIZE", c.ModelInputSize)
	c.ModelWatch = getEnvAsBool(env, "MODEL_WATCH", c.ModelWatch)
	c.ClassNames = getEnvAsList(env, "CLASS_NAMES", c.ClassNames)
	c.ConfidenceThreshold = getEnvAsFloat(env, "CONFIDENCE_THRESHOLD", c.ConfidenceThreshold)
	c.NMSThreshold = getEnvAsFloat(env, "NMS_THRESHOLD", c.NMSThreshold)

	c.JPEGQuality = getEnvAsInt(env, "JPEG_QUALITY", c.JPEGQuality)
	c.StreamMaxFPS = getEnvAsInt(env, "STREAM_MAX_FPS", c.StreamMaxFPS)

	c.DatabasePath = getEnv(env, "DATABASE_PATH", c.DatabasePath)
	c.SnapshotDirectory = getEnv(env, "SNAPSHOT_DIR", c.SnapshotDirectory)
	c.SnapshotBufferLimit = getEnvAsInt(env, "SNAPSHOT_BUFFER_LIMIT", c.SnapshotBufferLimit)
	c.SnapshotFlushInterval = getEnvAsInt(env, "SNAPSHOT_FLUSH_INTERVAL", c.SnapshotFlushInterval)
	c.EventCooldown = getEnvAsInt(env, "EVENT_COOLDOWN", c.EventCooldown)

	c.LogDirectory = getEnv(env, "LOG_DIR", c.LogDirectory)
}

// Validate checks ranges and combinations that would make the server unusable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %.2f must be within [0,1]", c.ConfidenceThreshold)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("nms threshold %.2f must be within [0,1]", c.NMSThreshold)
	}
	switch c.ModelFormat {
	case FormatYOLO:
	case FormatSSD:
		if c.ModelConfigPath == "" {
			return fmt.Errorf("model format %q requires MODEL_CONFIG_PATH", c.ModelFormat)
		}
	default:
		return fmt.Errorf("unknown model format %q", c.ModelFormat)
	}
	if c.ModelInputSize <= 0 {
		return fmt.Errorf("model input size must be positive, got %d", c.ModelInputSize)
	}
	if len(c.ClassNames) == 0 {
		return fmt.Errorf("at least one class name is required")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality %d must be within 1..100", c.JPEGQuality)
	}
	if c.CameraDevice == "" {
		return fmt.Errorf("camera device is required")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.SnapshotFlushInterval) * time.Second
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.EventCooldown) * time.Second
}

func getEnv(env func(string) (string, bool), key, defaultValue string) string {
	if value, ok := env(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(env func(string) (string, bool), key string, defaultValue int) int {
	if value, ok := env(key); ok {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(env func(string) (string, bool), key string, defaultValue float64) float64 {
	if value, ok := env(key); ok {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(env func(string) (string, bool), key string, defaultValue bool) bool {
	if value, ok := env(key); ok {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(env func(string) (string, bool), key string, defaultValue []string) []string {
	value, ok := env(key)
	if !ok {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
