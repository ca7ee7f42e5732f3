// Package config loads the YAML configuration shared by the reader programs.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Reader Reader `yaml:"reader"`
	EMRTD  EMRTD  `yaml:"emrtd"`
	VEVR   VEVR   `yaml:"vevr"`
}

type Reader struct {
	Index *int `yaml:"index"` // PC/SC reader index; nil selects the first reader
}

type EMRTD struct {
	MRZFile string `yaml:"mrz_file"` // text file holding the MRZ lines
}

type VEVR struct {
	DumpDir string `yaml:"dump_dir"` // directory for <fid>.bin card dumps
}

// Load reads and validates a configuration file. Relative paths resolve
// against the config file's directory.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		VEVR: VEVR{DumpDir: "."},
	}
}

func (c *Config) Validate() error {
	if c.Reader.Index != nil && *c.Reader.Index < 0 {
		return fmt.Errorf("config.reader.index must be >= 0")
	}
	if c.VEVR.DumpDir == "" {
		c.VEVR.DumpDir = "."
	}
	return nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.EMRTD.MRZFile = resolvePath(configDir, c.EMRTD.MRZFile)
	c.VEVR.DumpDir = resolvePath(configDir, c.VEVR.DumpDir)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}
