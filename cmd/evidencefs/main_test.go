// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"
)

func TestRunRequiresSegments(t *testing.T) {
	err := run([]string{"--mountpoint", t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "no container segments") {
		t.Fatalf("run without segments: %v", err)
	}
}

func TestRunRequiresMountpoint(t *testing.T) {
	err := run([]string{"segment.ecf"})
	if err == nil || !strings.Contains(err.Error(), "--mountpoint") {
		t.Fatalf("run without mountpoint: %v", err)
	}
}

func TestRunVersion(t *testing.T) {
	if err := run([]string{"--version"}); err != nil {
		t.Fatalf("run --version: %v", err)
	}
}

func TestNewLoggerValidation(t *testing.T) {
	if _, err := newLogger("verbose", "text"); err == nil {
		t.Error("unknown level accepted")
	}
	if _, err := newLogger("info", "xml"); err == nil {
		t.Error("unknown format accepted")
	}
	if _, err := newLogger("debug", "json"); err != nil {
		t.Errorf("valid logger: %v", err)
	}
}
