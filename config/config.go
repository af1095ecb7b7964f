package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	ModeDirect  = "direct"
	ModeChunked = "chunked"
)

const (
	PickRandom     = "random"
	PickRoundRobin = "round-robin"
)

const (
	DefaultPort           = 8080
	DefaultWorkers        = 8
	DefaultQueueCapacity  = 1024
	DefaultMaxRequestLine = 2048
	DefaultBlockSize      = 2048

	DefaultReadTimeout = 5 * time.Second
)

type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	Workers        int    `mapstructure:"workers"`
	QueueCapacity  int    `mapstructure:"queue_capacity"`
	DocumentRoot   string `mapstructure:"document_root"`
	DefaultFile    string `mapstructure:"default_file"`
	ReadTimeout    string `mapstructure:"read_timeout"`
	WriteTimeout   string `mapstructure:"write_timeout"`
	MaxRequestLine int    `mapstructure:"max_request_line"`
}

// ReadTimeoutDuration returns ReadTimeout parsed, or DefaultReadTimeout when
// it is unset, malformed or not positive.
func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.ReadTimeout)
	if err != nil || d <= 0 {
		return DefaultReadTimeout
	}
	return d
}

// WriteTimeoutDuration returns WriteTimeout parsed, or zero when unset.
func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.WriteTimeout)
	if err != nil {
		return 0
	}
	return d
}

type TransferConfig struct {
	Mode      string `mapstructure:"mode"`
	BlockSize int    `mapstructure:"block_size"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Environment   string `mapstructure:"environment"`
	ErrorLog      string `mapstructure:"error_log"`
	ConnectionLog string `mapstructure:"connection_log"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

type SelectorConfig struct {
	Pick             string `mapstructure:"pick"`
	SampleInterval   string `mapstructure:"sample_interval"`
	BreakerThreshold int    `mapstructure:"breaker_threshold"`
	BreakerCooldown  string `mapstructure:"breaker_cooldown"`
	ProcMount        string `mapstructure:"proc_mount"`
}

// SampleIntervalDuration returns SampleInterval parsed.
func (s SelectorConfig) SampleIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(s.SampleInterval)
	return d
}

func (s SelectorConfig) BreakerCooldownDuration() time.Duration {
	d, _ := time.ParseDuration(s.BreakerCooldown)
	return d
}

type BackendConfig struct {
	Host  string   `mapstructure:"host"`
	Cores int      `mapstructure:"cores"`
	Load  *float64 `mapstructure:"load"`
}

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Transfer TransferConfig  `mapstructure:"transfer"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Selector SelectorConfig  `mapstructure:"selector"`
	Backends []BackendConfig `mapstructure:"backends"`
}

// Load reads configuration with the default search path: config.yaml in
// ./config or the working directory.
func Load() (*Config, error) {
	return LoadWith(viper.New(), "")
}

// LoadWith reads configuration into v. When path is non-empty that file is
// required; otherwise a missing config file falls back to defaults and the
// environment. Values already set on v (command-line overrides) win.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.workers", DefaultWorkers)
	v.SetDefault("server.queue_capacity", DefaultQueueCapacity)
	v.SetDefault("server.document_root", ".")
	v.SetDefault("server.default_file", "index.html")
	v.SetDefault("server.read_timeout", DefaultReadTimeout.String())
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_request_line", DefaultMaxRequestLine)
	v.SetDefault("transfer.mode", ModeDirect)
	v.SetDefault("transfer.block_size", DefaultBlockSize)
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.environment", EnvDev)
	v.SetDefault("logging.error_log", "errors.log")
	v.SetDefault("logging.connection_log", "connect.log")
	v.SetDefault("metrics.address", "")
	v.SetDefault("selector.pick", PickRandom)
	v.SetDefault("selector.sample_interval", "10s")
	v.SetDefault("selector.breaker_threshold", 3)
	v.SetDefault("selector.breaker_cooldown", "30s")
	v.SetDefault("selector.proc_mount", "/proc")
}

// normalize resolves the document root to an absolute path and strips
// leading slashes from the default file.
func (c *Config) normalize() {
	if c.Server.DocumentRoot != "" {
		if abs, err := filepath.Abs(c.Server.DocumentRoot); err == nil {
			c.Server.DocumentRoot = abs
		}
	}
	c.Server.DefaultFile = strings.TrimLeft(c.Server.DefaultFile, "/")
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Port,
						validation.Min(0),
						validation.Max(65535),
					),
					validation.Field(&sc.Workers,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&sc.QueueCapacity,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&sc.DocumentRoot,
						validation.Required,
						validation.By(validateDirectory),
					),
					validation.Field(&sc.DefaultFile,
						validation.Required,
					),
					validation.Field(&sc.ReadTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&sc.WriteTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&sc.MaxRequestLine,
						validation.Required,
						validation.Min(16),
					),
				)
			}),
		),
		validation.Field(&c.Transfer,
			validation.Required,
			validation.By(func(value interface{}) error {
				tc, ok := value.(TransferConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a TransferConfig")
				}
				return validation.ValidateStruct(&tc,
					validation.Field(&tc.Mode,
						validation.Required,
						validation.In(ModeDirect, ModeChunked),
					),
					validation.Field(&tc.BlockSize,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
					validation.Field(&lc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.Address,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Selector,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(SelectorConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a SelectorConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Pick,
						validation.Required,
						validation.In(PickRandom, PickRoundRobin),
					),
					validation.Field(&sc.SampleInterval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&sc.BreakerThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&sc.BreakerCooldown,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.Each(validation.By(validateBackendConfig)),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if addr == "" {
		return nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 500ms, 5s)")
	}

	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validateDirectory(value interface{}) error {
	dir, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !filepath.IsAbs(dir) {
		return validation.NewError("validation_not_absolute", "must be an absolute path")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return validation.NewError("validation_missing_directory", fmt.Sprintf("cannot stat %s", dir))
	}

	if !info.IsDir() {
		return validation.NewError("validation_not_directory", "must be a directory")
	}

	return nil
}

func validateBackendConfig(value interface{}) error {
	backend, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	if backend.Host == "" {
		return validation.NewError("validation_empty_host", "backend host cannot be empty")
	}

	if backend.Cores < 1 {
		return validation.NewError("validation_invalid_cores", "cores must be at least 1")
	}

	if backend.Load != nil && *backend.Load < 0 {
		return validation.NewError("validation_invalid_load", "load cannot be negative")
	}

	return nil
}
