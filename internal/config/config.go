// Package config provides configuration management for the upload service
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/example/fileuploader/internal/policy"
	"github.com/example/fileuploader/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. UPLOADER_SERVER_PORT.
const EnvPrefix = "UPLOADER"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Settings holds the application configuration
type Settings struct {
	Env      string
	Server   ServerConfig
	Log      LogConfig
	Workers  WorkerConfig
	Fetch    FetchConfig
	Probe    ProbeConfig
	Mirror   storage.Config
	Policies []policy.Spec
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// MaxMemory is the multipart memory threshold; larger parts spool to ScratchDir.
	MaxMemory  int64
	ScratchDir string
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string
	Format string
}

// WorkerConfig bounds how many items of a batch run at once.
type WorkerConfig struct {
	Count int
}

// FetchConfig configures downloads of URL-valued parameters.
type FetchConfig struct {
	Timeout    time.Duration
	MaxBytes   int64
	ScratchDir string
	UserAgent  string
}

// ProbeConfig points at the media probe binary.
type ProbeConfig struct {
	Binary string
}

// Load reads configuration from an optional yaml or json file, then applies
// UPLOADER_* environment overrides on top of the defaults. A missing file is
// not an error.
func Load(configFile string) (*Settings, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("error reading config file: %w", err)
				}
			}
		}
	}

	cfg := &Settings{
		Env: v.GetString("env"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  stringList(v, "server.allowed_origins"),
			MaxMemory:       v.GetInt64("server.max_memory"),
			ScratchDir:      v.GetString("server.scratch_dir"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Workers: WorkerConfig{
			Count: v.GetInt("workers.count"),
		},
		Fetch: FetchConfig{
			Timeout:    v.GetDuration("fetch.timeout"),
			MaxBytes:   v.GetInt64("fetch.max_bytes"),
			ScratchDir: v.GetString("fetch.scratch_dir"),
			UserAgent:  v.GetString("fetch.user_agent"),
		},
		Probe: ProbeConfig{
			Binary: v.GetString("probe.binary"),
		},
	}
	if cfg.Workers.Count <= 0 {
		cfg.Workers.Count = runtime.NumCPU()
	}

	if err := v.UnmarshalKey("mirror", &cfg.Mirror); err != nil {
		return nil, fmt.Errorf("error parsing mirror settings: %w", err)
	}
	// UnmarshalKey does not see env overrides of nested keys.
	cfg.Mirror.Provider = v.GetString("mirror.provider")
	cfg.Mirror.Prefix = v.GetString("mirror.prefix")
	if err := v.UnmarshalKey("policies", &cfg.Policies); err != nil {
		return nil, fmt.Errorf("error parsing policies: %w", err)
	}
	if len(cfg.Policies) == 0 {
		cfg.Policies = []policy.Spec{defaultPolicy(v)}
	}

	if err := cfg.ensureDirectoriesExist(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Registry builds the policy registry declared by the configuration. The first
// policy is the default for undeclared fields.
func (s *Settings) Registry() (*policy.Registry, error) {
	r := policy.NewRegistry()
	if err := r.RegisterSpecs(s.Policies...); err != nil {
		return nil, err
	}
	return r, nil
}

// Address returns the address string for the server to listen on
func (s *Settings) Address() string {
	return fmt.Sprintf("%s:%d", s.Server.Host, s.Server.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDevelopment)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", "")
	v.SetDefault("server.max_memory", 32<<20)
	v.SetDefault("server.scratch_dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("workers.count", 0)

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.max_bytes", 0)
	v.SetDefault("fetch.scratch_dir", "")
	v.SetDefault("fetch.user_agent", "fileuploader/1.0")

	v.SetDefault("probe.binary", "ffprobe")

	v.SetDefault("mirror.provider", "")
	v.SetDefault("mirror.prefix", "")

	v.SetDefault("uploads.directory", "./uploads")
	v.SetDefault("uploads.allowed_types", "*")
}

// defaultPolicy is the catch-all used when the configuration declares none.
func defaultPolicy(v *viper.Viper) policy.Spec {
	return policy.Spec{
		Field:        "file",
		Kind:         string(policy.KindFile),
		Directory:    v.GetString("uploads.directory"),
		AllowedTypes: v.GetString("uploads.allowed_types"),
		MaxSize:      v.GetInt64("uploads.max_size"),
		SkipOnError:  v.GetBool("uploads.skip_on_error"),
	}
}

// ensureDirectoriesExist creates the scratch directories. Upload directories are
// prepared per batch by the uploader.
func (s *Settings) ensureDirectoriesExist() error {
	for _, dir := range []string{s.Server.ScratchDir, s.Fetch.ScratchDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Clean(dir), 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// stringList accepts both a yaml list and a comma separated string.
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return splitAndTrim(raw)
	}
	return v.GetStringSlice(key)
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
