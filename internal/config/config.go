// Package config loads laurel's runtime settings from defaults, an optional
// TOML file, a .env file and LAUREL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `toml:"database_url" validate:"required"` // LAUREL_DATABASE_URL
	HTTPAddr    string `toml:"http_addr" validate:"required"`    // LAUREL_HTTP_ADDR (default ":8080")
	GRPCAddr    string `toml:"grpc_addr"`                        // LAUREL_GRPC_ADDR (default ":9090", empty = disabled)
	NATSURL     string `toml:"nats_url"`                         // LAUREL_NATS_URL (optional, empty = no bus)
	JWTSecret   string `toml:"jwt_secret"`                       // LAUREL_JWT_SECRET (required by serve)
	AdminToken  string `toml:"admin_token"`                      // LAUREL_ADMIN_TOKEN (empty = admin routes disabled)
	LogLevel    string `toml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `toml:"log_format" validate:"oneof=auto text json"`

	// Job cadence
	CheckInterval    time.Duration `toml:"check_interval" validate:"gt=0"`    // LAUREL_CHECK_INTERVAL (10s)
	GoalInterval     time.Duration `toml:"goal_interval" validate:"gt=0"`     // LAUREL_GOAL_INTERVAL (15s)
	PopularInterval  time.Duration `toml:"popular_interval" validate:"gt=0"`  // LAUREL_POPULAR_INTERVAL (20s)
	RankInterval     time.Duration `toml:"rank_interval" validate:"gt=0"`     // LAUREL_RANK_INTERVAL (12h)
	ReminderInterval time.Duration `toml:"reminder_interval" validate:"gt=0"` // LAUREL_REMINDER_INTERVAL (60s)
	LikeThreshold    int64         `toml:"like_threshold" validate:"gte=1"`   // LAUREL_LIKE_THRESHOLD (50)
	Workers          int           `toml:"workers" validate:"gte=1"`          // LAUREL_WORKERS (4)

	// Notification poller
	PollInterval time.Duration `toml:"poll_interval" validate:"gt=0"` // LAUREL_POLL_INTERVAL (5s)
	PollBatch    int           `toml:"poll_batch" validate:"gte=1"`   // LAUREL_POLL_BATCH (500)
	PollTimeout  time.Duration `toml:"poll_timeout" validate:"gt=0"`  // LAUREL_POLL_TIMEOUT (10s)

	// Contest archive (enabled when the bucket is set)
	ArchiveS3Bucket   string `toml:"archive_s3_bucket"`   // LAUREL_ARCHIVE_S3_BUCKET
	ArchiveS3Endpoint string `toml:"archive_s3_endpoint"` // LAUREL_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string `toml:"archive_s3_region"`   // LAUREL_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Prefix   string `toml:"archive_s3_prefix"`   // LAUREL_ARCHIVE_S3_PREFIX (default "contests/")
}

// Default returns the built-in settings. DatabaseURL has no default.
func Default() *Config {
	return &Config{
		HTTPAddr:         ":8080",
		GRPCAddr:         ":9090",
		LogLevel:         "info",
		LogFormat:        "auto",
		CheckInterval:    10 * time.Second,
		GoalInterval:     15 * time.Second,
		PopularInterval:  20 * time.Second,
		RankInterval:     12 * time.Hour,
		ReminderInterval: 60 * time.Second,
		LikeThreshold:    50,
		Workers:          4,
		PollInterval:     5 * time.Second,
		PollBatch:        500,
		PollTimeout:      10 * time.Second,
		ArchiveS3Region:  "us-east-1",
		ArchiveS3Prefix:  "contests/",
	}
}

// Load reads .env if present, then the TOML file named by LAUREL_CONFIG, then
// LAUREL_* variables, and validates the result. Variables already set in the
// environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := Default()
	if path := os.Getenv("LAUREL_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.DatabaseURL = envOrDefault("LAUREL_DATABASE_URL", c.DatabaseURL)
	c.HTTPAddr = envOrDefault("LAUREL_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = envOrDefault("LAUREL_GRPC_ADDR", c.GRPCAddr)
	c.NATSURL = envOrDefault("LAUREL_NATS_URL", c.NATSURL)
	c.JWTSecret = envOrDefault("LAUREL_JWT_SECRET", c.JWTSecret)
	c.AdminToken = envOrDefault("LAUREL_ADMIN_TOKEN", c.AdminToken)
	c.LogLevel = strings.ToLower(envOrDefault("LAUREL_LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(envOrDefault("LAUREL_LOG_FORMAT", c.LogFormat))
	c.ArchiveS3Bucket = envOrDefault("LAUREL_ARCHIVE_S3_BUCKET", c.ArchiveS3Bucket)
	c.ArchiveS3Endpoint = envOrDefault("LAUREL_ARCHIVE_S3_ENDPOINT", c.ArchiveS3Endpoint)
	c.ArchiveS3Region = envOrDefault("LAUREL_ARCHIVE_S3_REGION", c.ArchiveS3Region)
	c.ArchiveS3Prefix = envOrDefault("LAUREL_ARCHIVE_S3_PREFIX", c.ArchiveS3Prefix)

	var errs []error
	for key, dst := range map[string]*time.Duration{
		"LAUREL_CHECK_INTERVAL":    &c.CheckInterval,
		"LAUREL_GOAL_INTERVAL":     &c.GoalInterval,
		"LAUREL_POPULAR_INTERVAL":  &c.PopularInterval,
		"LAUREL_RANK_INTERVAL":     &c.RankInterval,
		"LAUREL_REMINDER_INTERVAL": &c.ReminderInterval,
		"LAUREL_POLL_INTERVAL":     &c.PollInterval,
		"LAUREL_POLL_TIMEOUT":      &c.PollTimeout,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = d
		}
	}
	for key, dst := range map[string]*int{
		"LAUREL_WORKERS":    &c.Workers,
		"LAUREL_POLL_BATCH": &c.PollBatch,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = n
		}
	}
	if v := os.Getenv("LAUREL_LIKE_THRESHOLD"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("LAUREL_LIKE_THRESHOLD: %w", err))
		} else {
			c.LikeThreshold = n
		}
	}
	return errors.Join(errs...)
}

var validate = validator.New()

// Validate checks field constraints and reports every violation by its
// LAUREL_* name.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", envName(fe.StructField()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ArchiveEnabled reports whether contest results are archived to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveS3Bucket != ""
}

var envNames = map[string]string{
	"DatabaseURL":      "LAUREL_DATABASE_URL",
	"HTTPAddr":         "LAUREL_HTTP_ADDR",
	"LogLevel":         "LAUREL_LOG_LEVEL",
	"LogFormat":        "LAUREL_LOG_FORMAT",
	"CheckInterval":    "LAUREL_CHECK_INTERVAL",
	"GoalInterval":     "LAUREL_GOAL_INTERVAL",
	"PopularInterval":  "LAUREL_POPULAR_INTERVAL",
	"RankInterval":     "LAUREL_RANK_INTERVAL",
	"ReminderInterval": "LAUREL_REMINDER_INTERVAL",
	"LikeThreshold":    "LAUREL_LIKE_THRESHOLD",
	"Workers":          "LAUREL_WORKERS",
	"PollInterval":     "LAUREL_POLL_INTERVAL",
	"PollBatch":        "LAUREL_POLL_BATCH",
	"PollTimeout":      "LAUREL_POLL_TIMEOUT",
}

func envName(field string) string {
	if n, ok := envNames[field]; ok {
		return n
	}
	return field
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
