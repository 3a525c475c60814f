// Package config loads process configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/example/ai-detect/internal/detection"
)

// FileEnv names the environment variable pointing at an optional YAML file.
const FileEnv = "AIDETECT_CONFIG"

type Config struct {
	Strategy        string        `yaml:"strategy" validate:"oneof=local remote"`
	HTTPAddr        string        `yaml:"http_addr" validate:"required"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	LogLevel        string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	// MaxImagePixels bounds width×height of any decoded image.
	MaxImagePixels int `yaml:"max_image_pixels" validate:"min=1"`

	Remote   RemoteConfig   `yaml:"remote"`
	Local    LocalConfig    `yaml:"local"`
	Cache    CacheConfig    `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
}

type RemoteConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url" validate:"required,url"`
	Model           string        `yaml:"model" validate:"required"`
	WarmupModel     string        `yaml:"warmup_model"`
	Warmup          bool          `yaml:"warmup"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" validate:"gt=0"`
	MaxDimension    int           `yaml:"max_dimension" validate:"gt=0"`
	JPEGQuality     int           `yaml:"jpeg_quality" validate:"min=1,max=100"`
	CandidateLabels []string      `yaml:"candidate_labels" validate:"min=2,dive,required"`

	Policy detection.ZeroShotPolicy `yaml:"policy"`

	MaxAttempts int           `yaml:"max_attempts" validate:"min=1,max=3"`
	BackoffStep time.Duration `yaml:"backoff_step" validate:"gt=0"`

	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`

	BreakerEnabled      bool          `yaml:"breaker_enabled"`
	BreakerMinRequests  uint32        `yaml:"breaker_min_requests"`
	BreakerFailureRatio float64       `yaml:"breaker_failure_ratio" validate:"gte=0,lte=1"`
	BreakerOpenTimeout  time.Duration `yaml:"breaker_open_timeout" validate:"gte=0"`
}

type LocalConfig struct {
	ModelPath        string        `yaml:"model_path"`
	ONNXLibraryPath  string        `yaml:"onnx_library_path"`
	InputSize        int           `yaml:"input_size" validate:"min=16"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	InferenceTimeout time.Duration `yaml:"inference_timeout" validate:"gte=0"`
	// MaxConcurrentInferences of zero means GOMAXPROCS.
	MaxConcurrentInferences int   `yaml:"max_concurrent_inferences" validate:"gte=0"`
	Seed                    int64 `yaml:"seed"`
}

type CacheConfig struct {
	Capacity  int           `yaml:"capacity" validate:"min=1"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisTTL  time.Duration `yaml:"redis_ttl" validate:"gte=0"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type AuthConfig struct {
	JWTSecret   string   `yaml:"jwt_secret"`
	JWTAudience string   `yaml:"jwt_audience"`
	APIKeys     []string `yaml:"api_keys"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Strategy:        "remote",
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		ShutdownTimeout: 15 * time.Second,
		MaxImagePixels:  50_000_000,
		Remote: RemoteConfig{
			BaseURL:             "https://api-inference.huggingface.co/models/",
			Model:               "openai/clip-vit-large-patch14",
			WarmupModel:         "google/vit-base-patch16-224",
			Warmup:              true,
			FetchTimeout:        8 * time.Second,
			RequestTimeout:      8 * time.Second,
			MaxDimension:        512,
			JPEGQuality:         85,
			CandidateLabels:     []string{"AI-generated image", "photograph", "digital art", "3D render", "illustration"},
			Policy:              detection.DefaultZeroShotPolicy(),
			MaxAttempts:         3,
			BackoffStep:         500 * time.Millisecond,
			BreakerEnabled:      true,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.5,
			BreakerOpenTimeout:  30 * time.Second,
		},
		Local: LocalConfig{
			ModelPath:        "models/ai_detector.onnx",
			InputSize:        224,
			FetchTimeout:     10 * time.Second,
			InferenceTimeout: 5 * time.Second,
			Seed:             1,
		},
		Cache: CacheConfig{
			Capacity: 500,
			RedisTTL: time.Hour,
		},
	}
}

// Load builds the configuration. The result is treated as immutable.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	env := &envReader{}

	env.str("AIDETECT_STRATEGY", &c.Strategy)
	env.str("HTTP_ADDR", &c.HTTPAddr)
	env.str("GRPC_ADDR", &c.GRPCAddr)
	env.str("LOG_LEVEL", &c.LogLevel)
	env.duration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
	env.integer("MAX_IMAGE_PIXELS", &c.MaxImagePixels)

	env.str("HF_API_KEY", &c.Remote.APIKey)
	env.str("HF_API_URL", &c.Remote.BaseURL)
	env.str("HF_MODEL", &c.Remote.Model)
	env.str("HF_WARMUP_MODEL", &c.Remote.WarmupModel)
	env.boolean("HF_WARMUP", &c.Remote.Warmup)
	env.duration("REMOTE_FETCH_TIMEOUT", &c.Remote.FetchTimeout)
	env.duration("HF_REQUEST_TIMEOUT", &c.Remote.RequestTimeout)
	env.integer("REMOTE_MAX_DIM", &c.Remote.MaxDimension)
	env.integer("REMOTE_JPEG_QUALITY", &c.Remote.JPEGQuality)
	env.list("CANDIDATE_LABELS", &c.Remote.CandidateLabels)
	env.float("AI_FLOOR", &c.Remote.Policy.AIFloor)
	env.float("AI_MARGIN", &c.Remote.Policy.AIMargin)
	env.integer("HF_MAX_ATTEMPTS", &c.Remote.MaxAttempts)
	env.duration("HF_BACKOFF_STEP", &c.Remote.BackoffStep)
	env.float("HF_RATE_LIMIT", &c.Remote.RequestsPerSecond)
	env.integer("HF_RATE_BURST", &c.Remote.Burst)
	env.boolean("HF_BREAKER_ENABLED", &c.Remote.BreakerEnabled)
	env.float("HF_BREAKER_FAILURE_RATIO", &c.Remote.BreakerFailureRatio)
	env.duration("HF_BREAKER_OPEN_TIMEOUT", &c.Remote.BreakerOpenTimeout)

	env.str("MODEL_PATH", &c.Local.ModelPath)
	env.str("ONNX_LIBRARY_PATH", &c.Local.ONNXLibraryPath)
	env.integer("MODEL_INPUT_SIZE", &c.Local.InputSize)
	env.duration("FETCH_TIMEOUT", &c.Local.FetchTimeout)
	env.duration("INFERENCE_TIMEOUT", &c.Local.InferenceTimeout)
	env.integer("INFERENCE_CONCURRENCY", &c.Local.MaxConcurrentInferences)

	env.integer("CACHE_CAPACITY", &c.Cache.Capacity)
	env.str("REDIS_ADDR", &c.Cache.RedisAddr)
	env.duration("REDIS_TTL", &c.Cache.RedisTTL)

	env.str("DATABASE_DSN", &c.Database.DSN)

	env.str("JWT_SECRET", &c.Auth.JWTSecret)
	env.str("JWT_AUDIENCE", &c.Auth.JWTAudience)
	env.list("API_KEYS", &c.Auth.APIKeys)

	return env.err()
}

// envReader overrides fields from non-empty environment variables and
// collects parse failures.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (r *envReader) float(key string, dst *float64) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func (r *envReader) list(key string, dst *[]string) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

func (r *envReader) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid environment: %w", errors.Join(r.errs...))
}
