// Package config defines the deltasync configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/deltasync/internal/delta"
	"github.com/openmined/deltasync/internal/engine"
	"github.com/openmined/deltasync/internal/remote"
	"github.com/openmined/deltasync/internal/utils"
)

const (
	RemoteNone = "none"
	RemoteS3   = "s3"
	RemoteHTTP = "http"

	stateFileName = "state.db"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigDir  = filepath.Join(home, ".deltasync")
	DefaultConfigPath = filepath.Join(DefaultConfigDir, "config.json")

	// DefaultIgnore keeps editor, OS and tooling noise out of a sync root.
	DefaultIgnore = []string{
		"*.tmp",
		"*.temp",
		"~*",
		".DS_Store",
		"Thumbs.db",
		".git/**",
		"node_modules/**",
		"__pycache__/**",
	}

	ErrNoRoot = errors.New("config: root is required")
)

type RemoteConfig struct {
	Type string             `json:"type" mapstructure:"type"`
	S3   *remote.S3Config   `json:"s3,omitempty" mapstructure:"s3"`
	HTTP *remote.HTTPConfig `json:"http,omitempty" mapstructure:"http"`
}

type Config struct {
	Root          string        `json:"root" mapstructure:"root"`
	StatePath     string        `json:"state_path,omitempty" mapstructure:"state_path"`
	ChunkSize     int64         `json:"chunk_size,omitempty" mapstructure:"chunk_size"`
	HashCacheSize int           `json:"hash_cache_size,omitempty" mapstructure:"hash_cache_size"`
	Direction     string        `json:"direction,omitempty" mapstructure:"direction"`
	Ignore        []string      `json:"ignore,omitempty" mapstructure:"ignore"`
	LogFile       string        `json:"log_file,omitempty" mapstructure:"log_file"`
	WatchInterval time.Duration `json:"watch_interval,omitempty" mapstructure:"watch_interval"`
	Remote        RemoteConfig  `json:"remote" mapstructure:"remote"`

	Path string `json:"-" mapstructure:"-"`
}

// ApplyDefaults resolves the root and fills every unset field.
func (c *Config) ApplyDefaults() error {
	if c.Root == "" {
		return ErrNoRoot
	}
	root, err := utils.ResolvePath(c.Root)
	if err != nil {
		return fmt.Errorf("config: root: %w", err)
	}
	c.Root = root

	if c.StatePath == "" {
		c.StatePath = filepath.Join(c.Root, delta.MetadataDirName, stateFileName)
	} else if c.StatePath, err = utils.ResolvePath(c.StatePath); err != nil {
		return fmt.Errorf("config: state_path: %w", err)
	}

	if c.ChunkSize == 0 {
		c.ChunkSize = delta.DefaultChunkSize
	}
	if c.Direction == "" {
		c.Direction = engine.Bidirectional.String()
	}
	if c.Ignore == nil {
		c.Ignore = append([]string(nil), DefaultIgnore...)
	}
	if c.Remote.Type == "" {
		c.Remote.Type = RemoteNone
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Root == "" {
		return ErrNoRoot
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("config: invalid chunk_size %d", c.ChunkSize)
	}
	if c.HashCacheSize < 0 {
		return fmt.Errorf("config: invalid hash_cache_size %d", c.HashCacheSize)
	}
	if c.WatchInterval < 0 {
		return fmt.Errorf("config: invalid watch_interval %s", c.WatchInterval)
	}
	if _, err := engine.ParseDirection(c.Direction); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch c.Remote.Type {
	case "", RemoteNone:
	case RemoteS3:
		if c.Remote.S3 == nil {
			return errors.New("config: remote.s3 is required for an s3 remote")
		}
		return c.Remote.S3.Validate()
	case RemoteHTTP:
		if c.Remote.HTTP == nil {
			return errors.New("config: remote.http is required for an http remote")
		}
		return c.Remote.HTTP.Validate()
	default:
		return fmt.Errorf("config: unknown remote type %q", c.Remote.Type)
	}
	return nil
}

// ParsedDirection returns the sync direction; call after Validate.
func (c *Config) ParsedDirection() engine.Direction {
	d, _ := engine.ParseDirection(c.Direction)
	return d
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	c.Path = path
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.Path = path
	return &cfg, nil
}
