package config

import (
	"bytes"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "embed"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gosyncmovies/backend"
	"gosyncmovies/internal/jobs"
	"gosyncmovies/internal/utils"
)

var (
	configOnce   sync.Once
	globalConfig *Config
	globalErr    error

	customConfigPath string // set via --config
)

//go:embed config.sample.yaml
var sampleConfig []byte

const (
	CONFIG_DIR_PATH  = "gosyncmovies"
	CONFIG_FILE_PATH = "config.yaml"
	CONFIG_DIR_PERM  = 0755
	CONFIG_FILE_PERM = 0644

	envPrefix = "GOSYNCMOVIES_"
)

// Config represents the application configuration.
type Config struct {
	Database  DatabaseConfig       `yaml:"database"`
	Remote    backend.RemoteConfig `yaml:"remote"`
	Queue     QueueConfig          `yaml:"queue"`
	Sync      SyncConfig           `yaml:"sync"`
	Log       utils.LogConfig      `yaml:"log"`
	Metrics   MetricsConfig        `yaml:"metrics"`
	Server    ServerConfig         `yaml:"server"`
	Recommend RecommendConfig      `yaml:"recommend"`

	path string
}

// DatabaseConfig locates the local SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// QueueConfig configures the durable job queue and its runner.
type QueueConfig struct {
	Path             string             `yaml:"path"`
	PollInterval     time.Duration      `yaml:"poll_interval" validate:"gte=0"`
	RecheckInterval  time.Duration      `yaml:"recheck_interval" validate:"gte=0"`
	ProbeAddr        string             `yaml:"probe_addr" validate:"omitempty,hostname_port"`
	BatteryThreshold int                `yaml:"battery_threshold" validate:"gte=0,lte=100"`
	Backoff          jobs.BackoffPolicy `yaml:"backoff"`
}

// SyncConfig tunes background sync scheduling.
type SyncConfig struct {
	Debounce         time.Duration `yaml:"debounce" validate:"gte=0"`
	PeriodicInterval time.Duration `yaml:"periodic_interval" validate:"gte=0"`
	PeriodicFlex     time.Duration `yaml:"periodic_flex" validate:"gte=0"`
	MaxAttempts      int           `yaml:"max_attempts" validate:"gte=0,lte=20"`
	SpawnWorker      bool          `yaml:"spawn_worker"`
}

// MetricsConfig controls the Prometheus endpoint served by the worker.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// ServerConfig configures the bundled document server.
type ServerConfig struct {
	Addr       string        `yaml:"addr" validate:"omitempty,hostname_port"`
	DataDir    string        `yaml:"data_dir"`
	RateLimit  int           `yaml:"rate_limit" validate:"gte=0"`
	RateWindow time.Duration `yaml:"rate_window" validate:"gte=0"`

	// Token is read from GOSYNCMOVIES_SERVER_TOKEN only.
	Token string `yaml:"-" json:"-"`
}

// RecommendConfig selects the model behind AI recommendations.
type RecommendConfig struct {
	Provider  string `yaml:"provider" validate:"omitempty,oneof=none anthropic"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens" validate:"gte=0"`

	// APIKey is read from ANTHROPIC_API_KEY only.
	APIKey string `yaml:"-" json:"-"`
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	switch c.Remote.Type {
	case "docstore":
		if c.Remote.URL == "" {
			return utils.ErrInvalidConfig("remote.url", "required for the docstore remote")
		}
	case "badger":
	default:
		return utils.ErrInvalidConfig("remote.type", fmt.Sprintf("unknown remote type %q", c.Remote.Type))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return utils.ErrInvalidConfig("metrics.addr", "required when metrics are enabled")
	}

	if c.Recommend.Provider == "anthropic" && c.Recommend.Model == "" {
		return utils.ErrInvalidConfig("recommend.model", "required for the anthropic provider")
	}

	if c.Sync.PeriodicFlex > c.Sync.PeriodicInterval && c.Sync.PeriodicInterval > 0 {
		return utils.ErrInvalidConfig("sync.periodic_flex", "must not exceed sync.periodic_interval")
	}
	return nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// DatabasePath returns the expanded SQLite path; empty means the default location.
func (c *Config) DatabasePath() (string, error) {
	return utils.ExpandPath(c.Database.Path)
}

// QueuePath returns the job store directory.
func (c *Config) QueuePath() (string, error) {
	return dataPath(c.Queue.Path, "jobs")
}

// RemoteDataDir returns the embedded remote's directory when remote.type is badger.
func (c *Config) RemoteDataDir() (string, error) {
	return dataPath(c.Remote.Path, "remote")
}

// ServerDataDir returns the document server's data directory.
func (c *Config) ServerDataDir() (string, error) {
	return dataPath(c.Server.DataDir, "server")
}

func dataPath(configured, name string) (string, error) {
	if configured != "" {
		return utils.ExpandPath(configured)
	}
	dir, err := utils.DataDir(CONFIG_DIR_PATH)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ProbeAddr returns the host:port used for connectivity checks.
func (c *Config) ProbeAddr() string {
	if c.Queue.ProbeAddr != "" || c.Remote.Type != "docstore" {
		return c.Queue.ProbeAddr
	}
	u, err := url.Parse(c.Remote.URL)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// SetCustomConfigPath sets a custom config path to use instead of the default user config directory.
// If path is a directory, it looks for "config.yaml" inside it.
// This must be called before GetConfig() is called for the first time.
func SetCustomConfigPath(path string) {
	if path == "" {
		customConfigPath = ""
		return
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		customConfigPath = filepath.Join(path, CONFIG_FILE_PATH)
		return
	}
	customConfigPath = path
}

// GetConfigPath returns the config file location.
func GetConfigPath() (string, error) {
	if customConfigPath != "" {
		return customConfigPath, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, CONFIG_DIR_PATH, CONFIG_FILE_PATH), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(dir, CONFIG_DIR_PATH, CONFIG_FILE_PATH), nil
}

// GetConfig loads the configuration once per process.
func GetConfig() (*Config, error) {
	configOnce.Do(func() {
		path, err := GetConfigPath()
		if err != nil {
			globalErr = err
			return
		}
		globalConfig, globalErr = Load(path)
	})
	return globalConfig, globalErr
}

// Load reads the config at path. A missing file is created from the sample.
// Values from a .env file beside the config and GOSYNCMOVIES_* variables
// override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data = createConfigFromSample(path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.path = path
	utils.Debugf("Loaded config from %s (remote: %s)", path, cfg.Remote.Type)
	return cfg, nil
}

// Parse decodes YAML over the sample defaults, applies environment
// overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the configuration described by the embedded sample.
func Defaults() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(sampleConfig, &cfg); err != nil {
		return nil, fmt.Errorf("embedded sample config is invalid: %w", err)
	}
	return &cfg, nil
}

// Sample returns the embedded sample configuration.
func Sample() []byte {
	return append([]byte(nil), sampleConfig...)
}

func createConfigFromSample(configPath string) []byte {
	if err := os.MkdirAll(filepath.Dir(configPath), CONFIG_DIR_PERM); err != nil {
		utils.Warnf("could not create config directory: %v", err)
		return sampleConfig
	}
	if err := os.WriteFile(configPath, sampleConfig, CONFIG_FILE_PERM); err != nil {
		utils.Warnf("could not write sample config to %s: %v", configPath, err)
		return sampleConfig
	}
	utils.Infof("Created default config at %s", configPath)
	return sampleConfig
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("DB_PATH", &cfg.Database.Path)
	str("REMOTE_TYPE", &cfg.Remote.Type)
	str("REMOTE_URL", &cfg.Remote.URL)
	str("REMOTE_PATH", &cfg.Remote.Path)
	str("QUEUE_PATH", &cfg.Queue.Path)
	str("PROBE_ADDR", &cfg.Queue.ProbeAddr)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	str("SERVER_ADDR", &cfg.Server.Addr)
	str("SERVER_DATA_DIR", &cfg.Server.DataDir)
	str("SERVER_TOKEN", &cfg.Server.Token)
	str("RECOMMEND_PROVIDER", &cfg.Recommend.Provider)
	str("RECOMMEND_MODEL", &cfg.Recommend.Model)
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Recommend.APIKey = v
	}

	if v := os.Getenv(envPrefix + "SYNC_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return utils.ErrInvalidConfig(envPrefix+"SYNC_DEBOUNCE", err.Error())
		}
		cfg.Sync.Debounce = d
	}
	if v := os.Getenv(envPrefix + "METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return utils.ErrInvalidConfig(envPrefix+"METRICS_ENABLED", err.Error())
		}
		cfg.Metrics.Enabled = b
	}
	if v := os.Getenv(envPrefix + "SPAWN_WORKER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return utils.ErrInvalidConfig(envPrefix+"SPAWN_WORKER", err.Error())
		}
		cfg.Sync.SpawnWorker = b
	}
	return nil
}
