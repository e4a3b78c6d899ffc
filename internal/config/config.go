package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultOutputDir        = "downloads"
	defaultThreads          = 8
	defaultRetries          = 5
	defaultChunkSizeMB      = 10
	defaultChunkThresholdMB = 20
)

// Duration wraps time.Duration so YAML values like "30s" or "2m" decode.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config describes one mirror run. YAML fields are optional; missing values
// keep their defaults and CLI flags override the result.
type Config struct {
	OutputDir        string   `yaml:"output_dir"`
	Folder           string   `yaml:"folder"`
	Threads          int      `yaml:"threads"`
	Retries          int      `yaml:"retries"`
	Chunked          bool     `yaml:"chunked"`
	ChunkSizeMB      int      `yaml:"chunk_size_mb"`
	ChunkThresholdMB int      `yaml:"chunk_threshold_mb"`
	ProbeTimeout     Duration `yaml:"probe_timeout"`
	TransferTimeout  Duration `yaml:"transfer_timeout"`
	UserAgent        string   `yaml:"user_agent"`
}

func Default() Config {
	return Config{
		OutputDir:        defaultOutputDir,
		Threads:          defaultThreads,
		Retries:          defaultRetries,
		ChunkSizeMB:      defaultChunkSizeMB,
		ChunkThresholdMB: defaultChunkThresholdMB,
		ProbeTimeout:     Duration(10 * time.Second),
		TransferTimeout:  Duration(30 * time.Second),
	}
}

// Load reads a YAML config from path over the defaults. A missing file is
// not an error; an empty path is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("invalid threads: %d (must be >= 1)", c.Threads)
	}
	if c.Retries < 0 {
		return fmt.Errorf("invalid retries: %d (must be >= 0)", c.Retries)
	}
	if c.ChunkSizeMB < 1 {
		return fmt.Errorf("invalid chunk_size_mb: %d (must be >= 1)", c.ChunkSizeMB)
	}
	if c.ChunkThresholdMB < 1 {
		return fmt.Errorf("invalid chunk_threshold_mb: %d (must be >= 1)", c.ChunkThresholdMB)
	}
	if c.OutputDir == "" {
		return errors.New("output_dir must not be empty")
	}
	return nil
}

func (c Config) ChunkSize() int64 {
	return int64(c.ChunkSizeMB) * 1024 * 1024
}

func (c Config) ChunkThreshold() int64 {
	return int64(c.ChunkThresholdMB) * 1024 * 1024
}

// MirrorEntry is one root in a YAML mirror list.
type MirrorEntry struct {
	URL    string `yaml:"url"`
	Folder string `yaml:"folder,omitempty"`
	Output string `yaml:"output,omitempty"`
}

// ReadMirrorList parses a YAML file holding a list of mirror roots.
func ReadMirrorList(path string) ([]MirrorEntry, error) {
	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mirror list: %w", err)
	}
	var entries []MirrorEntry
	if err := yaml.Unmarshal(fileData, &entries); err != nil {
		return nil, fmt.Errorf("parse mirror list: %w", err)
	}
	for i, entry := range entries {
		if entry.URL == "" {
			return nil, fmt.Errorf("mirror list entry %d has no url", i)
		}
	}
	return entries, nil
}
