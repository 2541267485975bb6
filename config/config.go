package config

import (
	"encoding/json"
	"os"
	"strings"
)

// Config holds runtime configuration for matching and CLI behaviour.
// Fields may be loaded from a JSON file and overridden by command-line flags.
type Config struct {
	Debug bool `json:"debug"`
	// Matching parameters
	Threshold      float64 `json:"threshold"`
	DigitThreshold float64 `json:"digit_threshold"`
	UseRGB         bool    `json:"use_rgb"`
	Tolerance      uint32  `json:"tolerance"`
	FirstHit       bool    `json:"first_hit"`

	// Glyph library for digit recognition
	GlyphDir string `json:"glyph_dir"`
	GlyphExt string `json:"glyph_ext"`

	// Decoded templates kept across calls; 0 disables the cache.
	TemplateCacheSize int `json:"template_cache_size"`
	PollIntervalMs    int `json:"poll_interval_ms"`

	// Default search region
	RegionX int `json:"region_x"`
	RegionY int `json:"region_y"`
	RegionW int `json:"region_w"`
	RegionH int `json:"region_h"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:             false,
		Threshold:         0.75,
		DigitThreshold:    0.90,
		UseRGB:            true,
		Tolerance:         10,
		FirstHit:          false,
		GlyphDir:          "",
		GlyphExt:          ".bmp",
		TemplateCacheSize: 0,
		PollIntervalMs:    200,
		RegionX:           0,
		RegionY:           0,
		RegionW:           0,
		RegionH:           0,
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		c.Threshold = 0.75
	}
	if c.DigitThreshold <= 0 || c.DigitThreshold > 1 {
		c.DigitThreshold = 0.90
	}
	if c.Tolerance > 765 {
		c.Tolerance = 765
	}
	if c.GlyphExt == "" {
		c.GlyphExt = ".bmp"
	} else if !strings.HasPrefix(c.GlyphExt, ".") {
		c.GlyphExt = "." + c.GlyphExt
	}
	if c.TemplateCacheSize < 0 {
		c.TemplateCacheSize = 0
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = 200
	}
	if c.RegionW < 0 {
		c.RegionW = 0
	}
	if c.RegionH < 0 {
		c.RegionH = 0
	}
	return nil
}

// Load attempts to read configuration from the given JSON file path. If the file does not
// exist it returns DefaultConfig(). On JSON error it returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return DefaultConfig(), err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
