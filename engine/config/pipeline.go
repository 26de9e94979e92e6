package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

type ShaderConfig struct {
	// Resource is the shader source, relative to the shaders directory.
	Resource string `toml:"resource" yaml:"resource" json:"resource"`
	Stage    string `toml:"stage" yaml:"stage" json:"stage"`
}

/**
 * @brief A named graphics pipeline and the shaders it is built from.
 */
type PipelineConfig struct {
	Name    string         `toml:"name" yaml:"name" json:"name"`
	Shaders []ShaderConfig `toml:"shaders" yaml:"shaders" json:"shaders"`
	/** @brief Rasterizer line width, the renderer default when zero. */
	LineWidth float32 `toml:"line_width" yaml:"line_width" json:"line_width"`

	/** @brief The file the record was read from, empty for records built in code. */
	Source string `toml:"-" yaml:"-" json:"-"`
}

func (p *PipelineConfig) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: pipeline without a name", core.ErrConfiguration)
	}
	vertex := 0
	for i, s := range p.Shaders {
		if s.Resource == "" {
			return fmt.Errorf("%w: pipeline `%s` shader %d has no resource", core.ErrConfiguration, p.Name, i)
		}
		stage, err := metadata.ParseShaderStage(s.Stage)
		if err != nil {
			return fmt.Errorf("%w: pipeline `%s`: %s", core.ErrConfiguration, p.Name, err)
		}
		if stage == metadata.ShaderStageVertex {
			vertex++
		}
	}
	if vertex != 1 {
		return fmt.Errorf("%w: pipeline `%s` needs exactly one vertex shader, has %d", core.ErrConfiguration, p.Name, vertex)
	}
	if p.LineWidth < 0 {
		return fmt.Errorf("%w: pipeline `%s` has a negative line width", core.ErrConfiguration, p.Name)
	}
	return nil
}

type decodeFunc func(data []byte, v interface{}) error

var pipelineDecoders = map[string]decodeFunc{
	".toml": func(data []byte, v interface{}) error {
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	},
	".yaml": decodeYAML,
	".yml":  decodeYAML,
	".json": func(data []byte, v interface{}) error {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	},
}

func decodeYAML(data []byte, v interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

// IsPipelineFile reports whether path has one of the record extensions.
func IsPipelineFile(path string) bool {
	_, ok := pipelineDecoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadPipeline reads one pipeline record. The format follows the extension.
func LoadPipeline(path string) (*PipelineConfig, error) {
	decode, ok := pipelineDecoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown pipeline record format %s", core.ErrConfiguration, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrConfiguration, err)
	}
	cfg := &PipelineConfig{}
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", core.ErrConfiguration, path, err)
	}
	cfg.Source = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPipelines reads every record in dir in file name order. Other files
// are ignored. Two records with the same name are an error.
func LoadPipelines(dir string) ([]*PipelineConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrConfiguration, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsPipelineFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	seen := make(map[string]string)
	configs := make([]*PipelineConfig, 0, len(names))
	for _, n := range names {
		cfg, err := LoadPipeline(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[cfg.Name]; ok {
			return nil, fmt.Errorf("%w: pipeline `%s` defined in %s and %s", core.ErrConfiguration, cfg.Name, prev, cfg.Source)
		}
		seen[cfg.Name] = cfg.Source
		configs = append(configs, cfg)
	}
	return configs, nil
}
