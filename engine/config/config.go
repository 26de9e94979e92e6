// Package config loads the engine settings file and the pipeline records
// found in the pipelines directory.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

type WindowConfig struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
}

type LogConfig struct {
	Level core.LogLevel `toml:"level"`
}

// AssetsConfig locates the asset directories. Relative directories are
// resolved against Root.
type AssetsConfig struct {
	Root      string `toml:"root"`
	Shaders   string `toml:"shaders"`
	Pipelines string `toml:"pipelines"`
	Textures  string `toml:"textures"`
	Fonts     string `toml:"fonts"`
}

func (a AssetsConfig) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(a.Root, dir)
}

func (a AssetsConfig) ShaderDir() string   { return a.resolve(a.Shaders) }
func (a AssetsConfig) PipelineDir() string { return a.resolve(a.Pipelines) }
func (a AssetsConfig) TextureDir() string  { return a.resolve(a.Textures) }
func (a AssetsConfig) FontDir() string     { return a.resolve(a.Fonts) }

type DescriptorConfig struct {
	MaxSets               uint32 `toml:"max_sets"`
	UniformBuffers        uint32 `toml:"uniform_buffers"`
	StorageBuffers        uint32 `toml:"storage_buffers"`
	CombinedImageSamplers uint32 `toml:"combined_image_samplers"`
}

// PoolConfig converts the limits into the descriptor pool description.
func (d DescriptorConfig) PoolConfig() metadata.DescriptorPoolConfig {
	sizes := map[metadata.DescriptorType]uint32{}
	if d.UniformBuffers > 0 {
		sizes[metadata.DescriptorTypeUniformBuffer] = d.UniformBuffers
	}
	if d.StorageBuffers > 0 {
		sizes[metadata.DescriptorTypeStorageBuffer] = d.StorageBuffers
	}
	if d.CombinedImageSamplers > 0 {
		sizes[metadata.DescriptorTypeCombinedImageSampler] = d.CombinedImageSamplers
	}
	return metadata.DescriptorPoolConfig{MaxSets: d.MaxSets, Sizes: sizes}
}

type RendererConfig struct {
	ClearColor  [4]float32       `toml:"clear_color"`
	LineWidth   float32          `toml:"line_width"`
	Validation  bool             `toml:"validation"`
	Descriptors DescriptorConfig `toml:"descriptors"`
}

func (r RendererConfig) Clear() metadata.Color {
	return metadata.Color{R: r.ClearColor[0], G: r.ClearColor[1], B: r.ClearColor[2], A: r.ClearColor[3]}
}

type ReloadConfig struct {
	Enabled bool `toml:"enabled"`
	// Quiet period after the last file event before a reload is requested.
	DebounceMs uint32 `toml:"debounce_ms"`
}

/**
 * @brief The engine settings file.
 */
type EngineConfig struct {
	Window   WindowConfig   `toml:"window"`
	Log      LogConfig      `toml:"log"`
	Assets   AssetsConfig   `toml:"assets"`
	Renderer RendererConfig `toml:"renderer"`
	Reload   ReloadConfig   `toml:"reload"`
}

func Default() *EngineConfig {
	return &EngineConfig{
		Window: WindowConfig{Name: "Magma", Width: 1280, Height: 720, X: 100, Y: 100},
		Log:    LogConfig{Level: core.InfoLevel},
		Assets: AssetsConfig{
			Root:      "assets",
			Shaders:   "shaders",
			Pipelines: "pipelines",
			Textures:  "textures",
			Fonts:     "fonts",
		},
		Renderer: RendererConfig{
			ClearColor: [4]float32{0, 0, 0, 1},
			LineWidth:  1.0,
			Descriptors: DescriptorConfig{
				MaxSets:               1024,
				UniformBuffers:        1024,
				CombinedImageSamplers: 1024,
			},
		},
		Reload: ReloadConfig{Enabled: true, DebounceMs: 100},
	}
}

// Load reads the settings file at path on top of the defaults.
func Load(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*EngineConfig, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EngineConfig) Validate() error {
	switch {
	case c.Window.Width == 0 || c.Window.Height == 0:
		return fmt.Errorf("%w: window size must not be zero", core.ErrConfiguration)
	case c.Renderer.LineWidth <= 0:
		return fmt.Errorf("%w: line width must be positive", core.ErrConfiguration)
	case c.Renderer.Descriptors.MaxSets == 0:
		return fmt.Errorf("%w: descriptor pool needs at least one set", core.ErrConfiguration)
	}
	return nil
}
