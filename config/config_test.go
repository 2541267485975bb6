package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestSaveLoad_RoundTripsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	cfg := DefaultConfig()
	cfg.Threshold = 0.82
	cfg.GlyphDir = "/glyphs"
	cfg.GlyphExt = "png"
	cfg.RegionW, cfg.RegionH = 120, 40
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Threshold != 0.82 || got.GlyphDir != "/glyphs" || got.RegionW != 120 || got.RegionH != 40 {
		t.Fatalf("overrides lost: %+v", got)
	}
	// Save normalizes the extension before writing.
	if got.GlyphExt != ".png" {
		t.Fatalf("expected .png, got %q", got.GlyphExt)
	}
}

func TestLoad_BadJSONReturnsDefaultsWithError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if cfg.Threshold != DefaultConfig().Threshold {
		t.Fatalf("expected default threshold, got %v", cfg.Threshold)
	}
}

func TestValidate_ClampsOutOfRange(t *testing.T) {
	cfg := &Config{Threshold: 3, DigitThreshold: -1, Tolerance: 9999, TemplateCacheSize: -4, RegionW: -1}
	_ = cfg.Validate()
	if cfg.Threshold != 0.75 || cfg.DigitThreshold != 0.90 {
		t.Fatalf("thresholds not clamped: %+v", cfg)
	}
	if cfg.Tolerance != 765 || cfg.TemplateCacheSize != 0 || cfg.RegionW != 0 {
		t.Fatalf("limits not clamped: %+v", cfg)
	}
	if cfg.GlyphExt != ".bmp" || cfg.PollIntervalMs != 200 {
		t.Fatalf("defaults not filled: %+v", cfg)
	}
}
