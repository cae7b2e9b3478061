package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Remote     RemoteConfig     `yaml:"remote"`
	LocalStore LocalStoreConfig `yaml:"local_store"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Import     ImportConfig     `yaml:"import"`
	Worker     WorkerConfig     `yaml:"worker"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RemoteConfig describes the authoritative roster/grade store API.
type RemoteConfig struct {
	BaseURL       string        `yaml:"base_url"`
	AuthEndpoint  string        `yaml:"auth_endpoint"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	TokenExpires  time.Duration `yaml:"token_expires"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	CommitTimeout time.Duration `yaml:"commit_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type LocalStoreConfig struct {
	Path     string        `yaml:"path"`
	KeyPath  string        `yaml:"key_path"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type RedisConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	EventList    string `yaml:"event_list"`
	EventListCap int64  `yaml:"event_list_cap"`
	DrainTrigger string `yaml:"drain_trigger"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type ImportConfig struct {
	MaxFileSizeBytes   int64 `yaml:"max_file_size_bytes"`
	ExistenceBatchSize int   `yaml:"existence_batch_size"`
	InsertBatchSize    int   `yaml:"insert_batch_size"`
}

type WorkerConfig struct {
	DrainInterval   time.Duration `yaml:"drain_interval"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	DrainOnStart    bool          `yaml:"drain_on_start"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills the latency and batching budgets the pipeline depends
// on when the config file leaves them unset.
func (c *Config) applyDefaults() {
	if c.Remote.LookupTimeout == 0 {
		c.Remote.LookupTimeout = 5 * time.Second
	}
	if c.Remote.CommitTimeout == 0 {
		c.Remote.CommitTimeout = 2 * time.Second
	}
	if c.Remote.RetryAttempts == 0 {
		c.Remote.RetryAttempts = 3
	}
	if c.Remote.RetryDelay == 0 {
		c.Remote.RetryDelay = time.Second
	}
	if c.LocalStore.CacheTTL == 0 {
		c.LocalStore.CacheTTL = 24 * time.Hour
	}
	if c.Import.MaxFileSizeBytes == 0 {
		c.Import.MaxFileSizeBytes = 10 << 20
	}
	if c.Import.ExistenceBatchSize == 0 {
		c.Import.ExistenceBatchSize = 10
	}
	if c.Import.InsertBatchSize == 0 {
		c.Import.InsertBatchSize = 100
	}
	if c.Worker.DrainInterval == 0 {
		c.Worker.DrainInterval = time.Minute
	}
	if c.Redis.EventListCap == 0 {
		c.Redis.EventListCap = 1000
	}
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
