package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	SourceRoot        string        `mapstructure:"source_root"`
	DestinationRoot   string        `mapstructure:"destination_root"`
	CheckInterval     time.Duration `mapstructure:"check_interval"`
	StableTime        time.Duration `mapstructure:"stable_time"`
	Extensions        []string      `mapstructure:"extensions"`
	IncludePatterns   []string      `mapstructure:"include_patterns"`
	ExcludePatterns   []string      `mapstructure:"exclude_patterns"`
	MinSize           int64         `mapstructure:"min_size"`
	MaxSize           int64         `mapstructure:"max_size"`
	CollisionMode     string        `mapstructure:"collision_mode"`
	RenamePattern     string        `mapstructure:"rename_pattern"`
	VerifyCopies      bool          `mapstructure:"verify_copies"`
	RetryCount        int           `mapstructure:"retry_count"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	Recursive         bool          `mapstructure:"recursive"`
	MirrorSubdirs     bool          `mapstructure:"mirror_subdirectories"`
	CopyExisting      bool          `mapstructure:"copy_existing"`
	Workers           int           `mapstructure:"workers"`
	QueueSize         int           `mapstructure:"queue_size"`
	BufferSize        int           `mapstructure:"buffer_size"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
	HistoryLimit      int           `mapstructure:"history_limit"`
	DaemonPort        int           `mapstructure:"daemon_port"`
	DBPath            string        `mapstructure:"db_path"`
}

const DefaultRenamePattern = "{name}_{n}.{ext}"

var Default = Config{
	CheckInterval:     30 * time.Second,
	StableTime:        60 * time.Second,
	Extensions:        []string{},
	IncludePatterns:   []string{},
	ExcludePatterns:   []string{"*.tmp", "*.part", "~*"},
	CollisionMode:     "rename",
	RenamePattern:     DefaultRenamePattern,
	VerifyCopies:      true,
	RetryCount:        2,
	RetryDelay:        5 * time.Second,
	Workers:           2,
	QueueSize:         256,
	BufferSize:        100,
	ReconcileInterval: 5 * time.Minute,
	ShutdownGrace:     10 * time.Second,
	HistoryLimit:      1000,
	DaemonPort:        9101,
	DBPath:            "streamwatch.db",
}

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	return filepath.Join(home, ".streamwatch"), nil
}

// Load reads configFile when given, otherwise config.yaml from the
// ~/.streamwatch directory. A missing default file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		configDir, err := Dir()
		if err != nil {
			return nil, err
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config dir: %w", err)
		}

		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}

	setDefaults(v)

	v.SetEnvPrefix("STREAMWATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Normalize()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source_root", Default.SourceRoot)
	v.SetDefault("destination_root", Default.DestinationRoot)
	v.SetDefault("check_interval", Default.CheckInterval)
	v.SetDefault("stable_time", Default.StableTime)
	v.SetDefault("extensions", Default.Extensions)
	v.SetDefault("include_patterns", Default.IncludePatterns)
	v.SetDefault("exclude_patterns", Default.ExcludePatterns)
	v.SetDefault("min_size", Default.MinSize)
	v.SetDefault("max_size", Default.MaxSize)
	v.SetDefault("collision_mode", Default.CollisionMode)
	v.SetDefault("rename_pattern", Default.RenamePattern)
	v.SetDefault("verify_copies", Default.VerifyCopies)
	v.SetDefault("retry_count", Default.RetryCount)
	v.SetDefault("retry_delay", Default.RetryDelay)
	v.SetDefault("recursive", Default.Recursive)
	v.SetDefault("mirror_subdirectories", Default.MirrorSubdirs)
	v.SetDefault("copy_existing", Default.CopyExisting)
	v.SetDefault("workers", Default.Workers)
	v.SetDefault("queue_size", Default.QueueSize)
	v.SetDefault("buffer_size", Default.BufferSize)
	v.SetDefault("reconcile_interval", Default.ReconcileInterval)
	v.SetDefault("shutdown_grace", Default.ShutdownGrace)
	v.SetDefault("history_limit", Default.HistoryLimit)
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("db_path", Default.DBPath)
}

// Normalize clamps out-of-range values and canonicalizes list entries.
func (c *Config) Normalize() {
	exts := make([]string, 0, len(c.Extensions))
	for _, ext := range c.Extensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	c.Extensions = exts

	c.IncludePatterns = trimPatterns(c.IncludePatterns)
	c.ExcludePatterns = trimPatterns(c.ExcludePatterns)

	c.CollisionMode = strings.ToLower(strings.TrimSpace(c.CollisionMode))
	c.RenamePattern = strings.TrimSpace(c.RenamePattern)
	if c.RenamePattern == "" {
		c.RenamePattern = DefaultRenamePattern
	}

	if c.CheckInterval < time.Second {
		c.CheckInterval = time.Second
	}
	c.StableTime = max(c.StableTime, 0)
	c.MinSize = max(c.MinSize, 0)
	c.MaxSize = max(c.MaxSize, 0)
	c.RetryCount = max(c.RetryCount, 0)
	c.RetryDelay = max(c.RetryDelay, 0)
	c.Workers = max(c.Workers, 1)
	c.QueueSize = max(c.QueueSize, 1)
	c.BufferSize = max(c.BufferSize, 1)
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = Default.HistoryLimit
	}
}

// Validate checks the values that make starting the pipeline impossible.
func (c *Config) Validate() error {
	if c.SourceRoot == "" || c.DestinationRoot == "" {
		return fmt.Errorf("%w: source_root and destination_root are required", ErrInvalid)
	}

	info, err := os.Stat(c.SourceRoot)
	if err != nil {
		return fmt.Errorf("%w: source root not found: %w", ErrInvalid, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: source root %s is not a directory", ErrInvalid, c.SourceRoot)
	}

	info, err = os.Stat(c.DestinationRoot)
	if err != nil {
		return fmt.Errorf("%w: destination root not found: %w", ErrInvalid, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: destination root %s is not a directory", ErrInvalid, c.DestinationRoot)
	}

	switch c.CollisionMode {
	case "overwrite", "rename", "skip":
	default:
		return fmt.Errorf("%w: unknown collision mode %q", ErrInvalid, c.CollisionMode)
	}

	if c.MaxSize > 0 && c.MinSize > c.MaxSize {
		return fmt.Errorf("%w: min_size %d exceeds max_size %d", ErrInvalid, c.MinSize, c.MaxSize)
	}

	return nil
}

// DBFile resolves a relative db_path against the config directory.
func (c *Config) DBFile() (string, error) {
	if filepath.IsAbs(c.DBPath) {
		return c.DBPath, nil
	}

	dir, err := Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, c.DBPath), nil
}

func (c *Config) MaxAttempts() int {
	return c.RetryCount + 1
}

// secondsToDurationHook lets plain numbers in the config file mean seconds,
// so `stable_time: 60` works alongside `stable_time: 1m`.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeFor[time.Duration]()

	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}

		v := reflect.ValueOf(data)
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(v.Int()) * time.Second, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(v.Uint()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(v.Float() * float64(time.Second)), nil
		case reflect.String:
			if secs, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil {
				return time.Duration(secs * float64(time.Second)), nil
			}
			return data, nil
		default:
			return data, nil
		}
	}
}

func trimPatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
