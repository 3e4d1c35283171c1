package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Auth     AuthConfig     `yaml:"auth"`
	Vision   VisionConfig   `yaml:"vision"`
	Match    MatchConfig    `yaml:"match"`
	Liveness LivenessConfig `yaml:"liveness"`
	Verify   VerifyConfig   `yaml:"verify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	Issuer    string        `yaml:"issuer"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	EmbeddingDim       int     `yaml:"embedding_dim"`
}

// MatchConfig holds the decision thresholds. Both are cosine distances
// in (0,1]; lower is stricter. The duplicate threshold gates enrollment
// and must be at least as strict as the verification threshold.
type MatchConfig struct {
	VerificationThreshold float64 `yaml:"verification_threshold"`
	DuplicateThreshold    float64 `yaml:"duplicate_threshold"`
}

type LivenessConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ClosedThreshold float64       `yaml:"closed_threshold"`
	OpenThreshold   float64       `yaml:"open_threshold"`
	ClosedFrames    int           `yaml:"closed_frames"`
	ReopenWindow    int           `yaml:"reopen_window"`
	BaselineFrames  int           `yaml:"baseline_frames"`
	Deadline        time.Duration `yaml:"deadline"`
}

type VerifyConfig struct {
	// Timeout bounds the whole verification attempt, including the
	// liveness phase. It is distinct from (and at least) the liveness
	// deadline.
	Timeout time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that must hold before the service starts.
func (c *Config) Validate() error {
	if c.Match.VerificationThreshold <= 0 || c.Match.VerificationThreshold > 1 {
		return fmt.Errorf("match.verification_threshold must be in (0,1], got %v", c.Match.VerificationThreshold)
	}
	if c.Match.DuplicateThreshold <= 0 || c.Match.DuplicateThreshold > 1 {
		return fmt.Errorf("match.duplicate_threshold must be in (0,1], got %v", c.Match.DuplicateThreshold)
	}
	if c.Match.DuplicateThreshold > c.Match.VerificationThreshold {
		return fmt.Errorf("match.duplicate_threshold (%v) must not exceed match.verification_threshold (%v)",
			c.Match.DuplicateThreshold, c.Match.VerificationThreshold)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Liveness.Enabled {
		if c.Liveness.OpenThreshold < c.Liveness.ClosedThreshold {
			return fmt.Errorf("liveness.open_threshold (%v) must be >= liveness.closed_threshold (%v)",
				c.Liveness.OpenThreshold, c.Liveness.ClosedThreshold)
		}
		if c.Verify.Timeout < c.Liveness.Deadline {
			return fmt.Errorf("verify.timeout (%v) must be >= liveness.deadline (%v)",
				c.Verify.Timeout, c.Liveness.Deadline)
		}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 12 * time.Hour
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "faceauth"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 512
	}
	if cfg.Match.VerificationThreshold == 0 {
		cfg.Match.VerificationThreshold = 0.25
	}
	if cfg.Match.DuplicateThreshold == 0 {
		cfg.Match.DuplicateThreshold = 0.20
	}
	if cfg.Liveness.ClosedThreshold == 0 {
		cfg.Liveness.ClosedThreshold = 0.25
	}
	if cfg.Liveness.OpenThreshold == 0 {
		cfg.Liveness.OpenThreshold = 0.30
	}
	if cfg.Liveness.ClosedFrames == 0 {
		cfg.Liveness.ClosedFrames = 2
	}
	if cfg.Liveness.ReopenWindow == 0 {
		cfg.Liveness.ReopenWindow = 15
	}
	if cfg.Liveness.BaselineFrames == 0 {
		cfg.Liveness.BaselineFrames = 3
	}
	if cfg.Liveness.Deadline == 0 {
		cfg.Liveness.Deadline = 15 * time.Second
	}
	if cfg.Verify.Timeout == 0 {
		cfg.Verify.Timeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEAUTH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEAUTH_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEAUTH_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEAUTH_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEAUTH_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEAUTH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEAUTH_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FACEAUTH_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACEAUTH_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACEAUTH_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACEAUTH_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACEAUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("FACEAUTH_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FACEAUTH_LIVENESS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Liveness.Enabled = b
		}
	}
}
