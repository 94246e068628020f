// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads evidencefs configuration.
//
// Configuration comes from a single YAML file named by the --config
// flag or the EVIDENCEFS_CONFIG environment variable. There is no
// automatic discovery and no fallback search path: examiners need to
// be able to state exactly which settings were in effect when
// evidence was examined. Command-line flags override file values.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted when no --config
// flag is given.
const EnvVar = "EVIDENCEFS_CONFIG"

// Config holds the mount settings an examiner can fix in a file
// instead of repeating on every invocation.
type Config struct {
	// Mountpoint is the directory to mount at.
	Mountpoint string `yaml:"mountpoint"`

	// AllowOther permits other users to read the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other"`

	// Grace bounds the in-flight drain during unmount.
	Grace time.Duration `yaml:"grace"`

	// PassphraseFile is read for the container passphrase instead of
	// prompting. "-" means standard input.
	PassphraseFile string `yaml:"passphrase_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Grace:     5 * time.Second,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads the configuration file at path. An empty path falls
// back to the EnvVar environment variable; if that is also unset the
// defaults are returned. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values. The mountpoint is not required here
// because it may come from the command line.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: must be debug, info, warn, or error", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q: must be text or json", c.LogFormat)
	}
	if c.Grace < 0 {
		return fmt.Errorf("grace %v: must not be negative", c.Grace)
	}
	return nil
}
