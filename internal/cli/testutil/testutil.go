// Package testutil provides test utilities for CLI testing.
package testutil

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

// TrackerArtifact is an AttendanceTracker build artifact built with solc
// 0.8.0 and deployed on network 5777.
//
//go:embed testdata/AttendanceTracker.json
var TrackerArtifact []byte

// TrackerAddress is the deployment address recorded in TrackerArtifact.
const TrackerAddress = "0x8F510086386477235FC73e11Bc585Bfdfd748a91"

// SetupTestProject creates a temporary project whose development network
// points at host:port, with the tracker artifact in build/contracts.
func SetupTestProject(t *testing.T, host string, port int) string {
	t.Helper()

	tmpDir := t.TempDir()

	buildDir := filepath.Join(tmpDir, "build", "contracts")
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", buildDir, err)
	}
	if err := os.WriteFile(filepath.Join(buildDir, "AttendanceTracker.json"), TrackerArtifact, 0644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}

	cfg := fmt.Sprintf(`networks:
  development:
    host: %s
    port: %d
    network_id: "*"
compilers:
  solc:
    version: "0.8.0"
`, host, port)
	if err := os.WriteFile(filepath.Join(tmpDir, "attendchain.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to create attendchain.yaml: %v", err)
	}

	return tmpDir
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
