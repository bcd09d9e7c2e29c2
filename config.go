package lumen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the engine configuration. LoadConfig merges a file over
// DefaultConfig.
type Config struct {
	Window  WindowConfig  `yaml:"window" toml:"window"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Assets  AssetsConfig  `yaml:"assets" toml:"assets"`
	Render  RenderConfig  `yaml:"render" toml:"render"`
	Scenes  ScenesConfig  `yaml:"scenes" toml:"scenes"`
	Debug   bool          `yaml:"debug" toml:"debug"`
}

type WindowConfig struct {
	Title     string `yaml:"title" toml:"title"`
	Width     int    `yaml:"width" toml:"width"`
	Height    int    `yaml:"height" toml:"height"`
	Resizable bool   `yaml:"resizable" toml:"resizable"`
	TPS       int    `yaml:"tps" toml:"tps"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "json" or "console"
}

type AssetsConfig struct {
	Roots     []string `yaml:"roots" toml:"roots"`
	HotReload bool     `yaml:"hot_reload" toml:"hot_reload"`
}

type RenderConfig struct {
	// ClearColor is a hex color: "#rrggbb" or "#rrggbbaa".
	ClearColor string `yaml:"clear_color" toml:"clear_color"`
	// Layers is the number of render layers created up front.
	Layers int `yaml:"layers" toml:"layers"`
	// Ambient is the darkness of unlit areas on layers holding lights, 0 to 1.
	Ambient float64 `yaml:"ambient" toml:"ambient"`
	// ScreenshotDir receives the PNGs queued with Engine.Screenshot.
	ScreenshotDir string `yaml:"screenshot_dir" toml:"screenshot_dir"`
}

type ScenesConfig struct {
	// Entry is the scene document loaded by Run.
	Entry string `yaml:"entry" toml:"entry"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "lumen",
			Width:  1280,
			Height: 720,
			TPS:    60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Assets: AssetsConfig{
			Roots: []string{"assets"},
		},
		Render: RenderConfig{
			ClearColor:    "#000000",
			Layers:        1,
			ScreenshotDir: "screenshots",
		},
	}
}

// LoadConfig reads path and merges it over DefaultConfig. The extension
// picks the format: .yaml/.yml or .toml.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lumen: read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("lumen: config %s: unsupported format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("lumen: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lumen: config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values LoadConfig cannot default.
func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Render.Layers < 0 {
		return fmt.Errorf("render layers %d", c.Render.Layers)
	}
	if c.Render.Ambient < 0 || c.Render.Ambient > 1 {
		return fmt.Errorf("render ambient %g outside [0, 1]", c.Render.Ambient)
	}
	if _, err := ParseHexColor(c.Render.ClearColor); err != nil {
		return err
	}
	return nil
}

// ParseHexColor parses "#rrggbb" or "#rrggbbaa".
func ParseHexColor(s string) (Color, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return Color{}, fmt.Errorf("color %q: want #rrggbb or #rrggbbaa", s)
	}
	var v [4]uint8
	v[3] = 255
	for i := 0; i < len(hex)/2; i++ {
		var b uint8
		if _, err := fmt.Sscanf(hex[2*i:2*i+2], "%02x", &b); err != nil {
			return Color{}, fmt.Errorf("color %q: %w", s, err)
		}
		v[i] = b
	}
	return Color{
		R: float64(v[0]) / 255,
		G: float64(v[1]) / 255,
		B: float64(v[2]) / 255,
		A: float64(v[3]) / 255,
	}, nil
}
