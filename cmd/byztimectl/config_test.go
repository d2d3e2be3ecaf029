package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create dir %s: %v", filepath.Dir(path), err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := LoadConfig(dir, "")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := DefaultConfig()
	if cfg != want {
		t.Errorf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestLoadConfig_FromProjectFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `{"region_path": "/tmp/custom.region"}`)

	cfg, err := LoadConfig(dir, "")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.RegionPath != "/tmp/custom.region" {
		t.Errorf("RegionPath = %q, want /tmp/custom.region", cfg.RegionPath)
	}

	if cfg.DriftPPB != DefaultConfig().DriftPPB {
		t.Errorf("DriftPPB = %d, want default %d unmodified", cfg.DriftPPB, DefaultConfig().DriftPPB)
	}
}

func TestLoadConfig_FromProjectFileWithComments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `{
		// region_path overridden for this project
		"region_path": "/tmp/commented.region",
	}`)

	cfg, err := LoadConfig(dir, "")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.RegionPath != "/tmp/commented.region" {
		t.Errorf("RegionPath = %q, want /tmp/commented.region", cfg.RegionPath)
	}
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "custom.json"), `{"region_path": "/tmp/explicit.region"}`)

	cfg, err := LoadConfig(dir, "custom.json")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.RegionPath != "/tmp/explicit.region" {
		t.Errorf("RegionPath = %q, want /tmp/explicit.region", cfg.RegionPath)
	}
}

func TestLoadConfig_ExplicitPathNotFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	if _, err := LoadConfig(dir, "nonexistent.json"); err == nil {
		t.Fatal("LoadConfig with missing explicit path: got nil error, want one")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `{invalid json}`)

	if _, err := LoadConfig(dir, ""); err == nil {
		t.Fatal("LoadConfig with invalid JSON: got nil error, want one")
	}
}

func TestLoadConfig_EmptyRegionPathRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `{"region_path": ""}`)

	if _, err := LoadConfig(dir, ""); err == nil {
		t.Fatal("LoadConfig with empty region_path: got nil error, want errRegionPathEmpty")
	}
}

func TestMergeConfig_OverlayWinsOnNonZeroFields(t *testing.T) {
	t.Parallel()

	base := Config{RegionPath: "/base", DriftPPB: 1, HistoryDir: "/base-hist"}
	overlay := Config{RegionPath: "/overlay"}

	got := mergeConfig(base, overlay)

	want := Config{RegionPath: "/overlay", DriftPPB: 1, HistoryDir: "/base-hist"}
	if got != want {
		t.Errorf("mergeConfig = %+v, want %+v", got, want)
	}
}

func TestFormatConfig_IsIndentedJSON(t *testing.T) {
	t.Parallel()

	out, err := FormatConfig(Config{RegionPath: "/run/byztime/clock.region", DriftPPB: 250_000})
	if err != nil {
		t.Fatalf("FormatConfig: %v", err)
	}

	if want := `"region_path": "/run/byztime/clock.region"`; !strings.Contains(out, want) {
		t.Errorf("FormatConfig output %q does not contain %q", out, want)
	}
}
