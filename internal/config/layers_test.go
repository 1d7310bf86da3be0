package config_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rnwood/alm4dataverse/internal/config"
)

func TestMergeLayers_ScalarOverride(t *testing.T) {
	merged := config.MergeLayers(
		config.Layer{"engine": "sync", "manifestPath": "solutions.yaml"},
		config.Layer{"engine": "durable"},
	)
	if merged["engine"] != "durable" {
		t.Errorf("engine = %v, want durable", merged["engine"])
	}
	if merged["manifestPath"] != "solutions.yaml" {
		t.Errorf("manifestPath = %v, want solutions.yaml", merged["manifestPath"])
	}
}

func TestMergeLayers_MapsMergeWithOverride(t *testing.T) {
	merged := config.MergeLayers(
		config.Layer{"settings": map[string]any{"A": "1", "B": "2"}},
		config.Layer{"settings": map[string]any{"B": "3", "C": "4"}},
	)
	settings := merged["settings"].(map[string]any)
	want := map[string]any{"A": "1", "B": "3", "C": "4"}
	if fmt.Sprint(settings) != fmt.Sprint(want) {
		t.Errorf("settings = %v, want %v", settings, want)
	}
}

func TestMergeLayers_SlicesConcatenate(t *testing.T) {
	merged := config.MergeLayers(
		config.Layer{"extra": []any{"a"}},
		config.Layer{"extra": []any{"b", "c"}},
	)
	extra := merged["extra"].([]any)
	if len(extra) != 3 || extra[0] != "a" || extra[2] != "c" {
		t.Errorf("extra = %v, want [a b c]", extra)
	}
}

func TestMergeLayers_DoesNotMutateInputs(t *testing.T) {
	base := config.Layer{"settings": map[string]any{"A": "1"}}
	_ = config.MergeLayers(base, config.Layer{"settings": map[string]any{"A": "2"}})
	if base["settings"].(map[string]any)["A"] != "1" {
		t.Error("merge mutated the base layer")
	}
}

func writeLayer(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write layer: %v", err)
	}
	return path
}

func TestResolve_LayeredFiles(t *testing.T) {
	dir := t.TempDir()
	defaults := writeLayer(t, dir, "defaults.yaml", `
development: dev
engine: sync
settings:
  ServiceAccountUpn: svc@example.com
environments:
  test:
    url: https://test.crm.example.com
`)
	overrides := writeLayer(t, dir, "overrides.yaml", `
engine: durable
environments:
  prod:
    url: https://prod.crm.example.com
`)

	cfg, err := config.Resolve(defaults, overrides)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Engine != "durable" {
		t.Errorf("Engine = %q, want durable", cfg.Engine)
	}
	if len(cfg.Environments) != 2 {
		t.Errorf("Environments = %v, want test and prod", cfg.Environments)
	}
	got, err := cfg.Setting("ServiceAccountUpn")
	if err != nil {
		t.Fatalf("Setting: %v", err)
	}
	if got != "svc@example.com" {
		t.Errorf("Setting = %q", got)
	}
	// Defaults survive when no layer overrides them.
	if cfg.ManifestPath != "solutions.yaml" {
		t.Errorf("ManifestPath = %q, want default", cfg.ManifestPath)
	}
}

func TestSetting_MissingKeyIsAnError(t *testing.T) {
	cfg := config.Config{Settings: map[string]string{}}
	if _, err := cfg.Setting("ServiceAccountUpn"); err == nil {
		t.Fatal("expected error for missing setting")
	}
}
