// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evidencefs.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvVar, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load with no file: %v", err)
	}
	if cfg.Grace != 5*time.Second || cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("defaults %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
mountpoint: /mnt/evidence
allow_other: true
grace: 10s
log_level: debug
log_format: json
passphrase_file: /run/secrets/phrase
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mountpoint != "/mnt/evidence" || !cfg.AllowOther || cfg.Grace != 10*time.Second {
		t.Errorf("loaded %+v", cfg)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" || cfg.PassphraseFile != "/run/secrets/phrase" {
		t.Errorf("loaded %+v", cfg)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	path := writeConfig(t, "mountpoint: /mnt/from-env\n")
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mountpoint != "/mnt/from-env" {
		t.Errorf("mountpoint %q, want /mnt/from-env", cfg.Mountpoint)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "mount_point: /typo\n")
	if _, err := Load(path); err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for _, content := range []string{
		"log_level: verbose\n",
		"log_format: xml\n",
		"grace: -1s\n",
	} {
		path := writeConfig(t, content)
		if _, err := Load(path); err == nil {
			t.Errorf("config %q accepted", strings.TrimSpace(content))
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}
