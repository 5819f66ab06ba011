package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration. Precedence: CLI flags
// (bound by the cmd layer) > VPO_* environment > config file > defaults.
type Config struct {
	DataDir      string `mapstructure:"data_dir"`
	DatabasePath string `mapstructure:"database_path"`
	TempDir      string `mapstructure:"temp_dir"`

	HTTPAddr  string `mapstructure:"http_addr"`
	AuthToken string `mapstructure:"auth_token"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	FFmpegPath      string `mapstructure:"ffmpeg_path"`
	FFprobePath     string `mapstructure:"ffprobe_path"`
	MkvMergePath    string `mapstructure:"mkvmerge_path"`
	MkvPropEditPath string `mapstructure:"mkvpropedit_path"`

	Workers            int           `mapstructure:"workers"`
	DBTimeout          time.Duration `mapstructure:"db_timeout"`
	ExecBaseTimeout    time.Duration `mapstructure:"exec_base_timeout"`
	KeepBackup         bool          `mapstructure:"keep_backup"`
	LogCompressionDays int           `mapstructure:"log_compression_days"`
	LogDeletionDays    int           `mapstructure:"log_deletion_days"`
	PluginDirs         []string      `mapstructure:"plugin_dirs"`
}

// DatabaseFile resolves the store path (explicit override or
// <data>/library.db).
func (c Config) DatabaseFile() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.DataDir, "library.db")
}

// LogsDir is the per-job log directory under the data dir.
func (c Config) LogsDir() string { return filepath.Join(c.DataDir, "logs") }

// PoliciesDir holds the policy YAML documents.
func (c Config) PoliciesDir() string { return filepath.Join(c.DataDir, "policies") }

// ProfilesDir holds alternative configurations.
func (c Config) ProfilesDir() string { return filepath.Join(c.DataDir, "profiles") }

// PluginsDir is the plugin storage root.
func (c Config) PluginsDir() string { return filepath.Join(c.DataDir, "plugins") }

// Load resolves the configuration from defaults, an optional config file
// (VPO_CONFIG_PATH or <data>/config.yaml), and VPO_* environment
// variables.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("http_addr", ":8765")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("workers", 2)
	v.SetDefault("db_timeout", "5s")
	v.SetDefault("exec_base_timeout", "30m")
	v.SetDefault("keep_backup", false)
	v.SetDefault("log_compression_days", 7)
	v.SetDefault("log_deletion_days", 30)

	// Keys without meaningful defaults still need registering so
	// AutomaticEnv surfaces them through Unmarshal.
	for _, key := range []string{
		"database_path", "temp_dir", "auth_token",
		"ffmpeg_path", "ffprobe_path", "mkvmerge_path", "mkvpropedit_path",
		"plugin_dirs",
	} {
		v.SetDefault(key, "")
	}

	v.SetEnvPrefix("VPO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	configPath := strings.TrimSpace(os.Getenv("VPO_CONFIG_PATH"))
	if configPath == "" {
		candidate := filepath.Join(v.GetString("data_dir"), "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// EnsureLayout creates the data-dir skeleton: logs/, policies/, plugins/,
// profiles/.
func (c Config) EnsureLayout() error {
	for _, dir := range []string{c.DataDir, c.LogsDir(), c.PoliciesDir(), c.PluginsDir(), c.ProfilesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".vpo")
	}
	return ".vpo"
}
