package chidb

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the knobs spec.md leaves to the embedding host: a page
// size, whether to wrap the pager with an LRU cache (and how big), whether
// to use the direct-I/O backend, and a backup directory. OpenWithConfig
// applies only the backend choice and cache capacity: new files are always
// created with DefaultPageSize, and nothing in this package reads
// BackupDir (Backup takes its destination as an argument).
type Config struct {
	PageSize       uint16 `mapstructure:"page_size"`
	CacheEnabled   bool   `mapstructure:"cache_enabled"`
	CacheCapacity  int    `mapstructure:"cache_capacity"`
	DirectIO       bool   `mapstructure:"direct_io"`
	BackupDir      string `mapstructure:"backup_dir"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() Config {
	return Config{
		PageSize:      DefaultPageSize,
		CacheEnabled:  true,
		CacheCapacity: 256,
		DirectIO:      false,
		BackupDir:     "./backups",
	}
}

// LoadConfig reads configuration from configPath (if non-empty) and from
// CHIDB_-prefixed environment variables, falling back to DefaultConfig for
// anything left unset.
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("CHIDB")
	v.AutomaticEnv()
	v.SetDefault("page_size", cfg.PageSize)
	v.SetDefault("cache_enabled", cfg.CacheEnabled)
	v.SetDefault("cache_capacity", cfg.CacheCapacity)
	v.SetDefault("direct_io", cfg.DirectIO)
	v.SetDefault("backup_dir", cfg.BackupDir)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.PageSize < MinPageSize || uint32(cfg.PageSize) > MaxPageSize {
		return cfg, fmt.Errorf("%w: configured page size %d", ErrInvalidPageSize, cfg.PageSize)
	}
	return cfg, nil
}

// OpenWithConfig opens filename using the pager backend cfg selects
// (pass-through, LRU-cached, or direct I/O) and wraps it in a BTree.
func OpenWithConfig(filename string, cfg Config) (*BTree, error) {
	var store PageStore
	var err error

	switch {
	case cfg.DirectIO:
		store, err = OpenDirect(filename)
	case cfg.CacheEnabled:
		store, err = NewCachingPager(filename, cfg.CacheCapacity)
	default:
		store, err = OpenPager(filename)
	}
	if err != nil {
		return nil, err
	}
	return Open(store, nil)
}
