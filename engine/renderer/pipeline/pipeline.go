// Package pipeline builds graphics pipelines from shader units and rebuilds
// them in place when shaders or the target surface change.
package pipeline

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spaghettifunk/magma/engine/config"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/shader"
)

const defaultLineWidth float32 = 1.0

type Device interface {
	shader.Device
	CreateDescriptorSetLayout(bindings []metadata.LayoutBinding) (metadata.DescriptorSetLayoutHandle, error)
	DestroyDescriptorSetLayout(layout metadata.DescriptorSetLayoutHandle)
	CreatePipelineLayout(sets []metadata.DescriptorSetLayoutHandle) (metadata.PipelineLayoutHandle, error)
	DestroyPipelineLayout(layout metadata.PipelineLayoutHandle)
	CreateGraphicsPipeline(desc metadata.GraphicsPipelineDesc) (metadata.PipelineHandle, error)
	DestroyPipeline(pipeline metadata.PipelineHandle)
}

type options struct {
	shaderDir string
	compiler  shader.Compiler
	lineWidth float32
}

type Option func(*options)

// WithShaderDir sets the directory shader resources are relative to.
func WithShaderDir(dir string) Option {
	return func(o *options) {
		o.shaderDir = dir
	}
}

// WithCompiler forces one compiler for every unit.
func WithCompiler(c shader.Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithDefaultLineWidth is used by records that leave the line width unset.
func WithDefaultLineWidth(width float32) Option {
	return func(o *options) {
		o.lineWidth = width
	}
}

// objects are the device objects replaced as a whole on every compilation.
type objects struct {
	setLayouts []metadata.DescriptorSetLayoutHandle
	layout     metadata.PipelineLayoutHandle
	pipeline   metadata.PipelineHandle
}

func (o *objects) destroy(device Device) {
	if !o.pipeline.IsZero() {
		device.DestroyPipeline(o.pipeline)
	}
	if !o.layout.IsZero() {
		device.DestroyPipelineLayout(o.layout)
	}
	for _, l := range o.setLayouts {
		device.DestroyDescriptorSetLayout(l)
	}
	*o = objects{}
}

/**
 * @brief A named graphics pipeline, its layouts and the shader units it is built from.
 */
type Pipeline struct {
	/** @brief The unique pipeline name. */
	Name string

	device  Device
	opts    options
	config  *config.PipelineConfig
	units   []*shader.Unit
	objects objects

	vertex    metadata.VertexLayout
	groups    []metadata.BindingGroup
	lineWidth float32
	format    metadata.Format
	extent    metadata.Extent2D
	// bumped by every successful compilation
	generation uint64
}

// New creates an empty pipeline from a record. Nothing touches the device
// until Compile.
func New(device Device, cfg *config.PipelineConfig, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{device: device}
	for _, o := range opts {
		o(&p.opts)
	}
	units, err := p.newUnits(cfg)
	if err != nil {
		return nil, err
	}
	p.Name = cfg.Name
	p.config = cfg
	p.units = units
	p.lineWidth = p.lineWidthFor(cfg)
	return p, nil
}

func (p *Pipeline) lineWidthFor(cfg *config.PipelineConfig) float32 {
	switch {
	case cfg.LineWidth > 0:
		return cfg.LineWidth
	case p.opts.lineWidth > 0:
		return p.opts.lineWidth
	default:
		return defaultLineWidth
	}
}

func (p *Pipeline) newUnits(cfg *config.PipelineConfig) ([]*shader.Unit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var unitOpts []shader.Option
	if p.opts.compiler != nil {
		unitOpts = append(unitOpts, shader.WithCompiler(p.opts.compiler))
	}
	units := make([]*shader.Unit, 0, len(cfg.Shaders))
	for _, s := range cfg.Shaders {
		stage, err := metadata.ParseShaderStage(s.Stage)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", core.ErrConfiguration, err)
		}
		path := s.Resource
		if p.opts.shaderDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(p.opts.shaderDir, path)
		}
		units = append(units, shader.NewUnit(p.device, path, stage, unitOpts...))
	}
	// the vertex unit always comes first
	slices.SortStableFunc(units, func(a, b *shader.Unit) int {
		return int(a.Stage) - int(b.Stage)
	})
	return units, nil
}

// Compile recompiles every unit and rebuilds the layouts and the pipeline for
// the given color format and extent. The previous objects are destroyed only
// once all new objects exist; on failure the pipeline keeps them.
func (p *Pipeline) Compile(format metadata.Format, extent metadata.Extent2D) error {
	return p.compile(p.units, p.lineWidth, format, extent)
}

// Reconfigure swaps in the shaders of cfg and compiles them. On failure the
// pipeline keeps its current shaders and objects.
func (p *Pipeline) Reconfigure(cfg *config.PipelineConfig, format metadata.Format, extent metadata.Extent2D) error {
	if cfg.Name != p.Name {
		return fmt.Errorf("%w: cannot rename pipeline `%s` to `%s`", core.ErrConfiguration, p.Name, cfg.Name)
	}
	units, err := p.newUnits(cfg)
	if err != nil {
		return err
	}
	if err := p.compile(units, p.lineWidthFor(cfg), format, extent); err != nil {
		for _, u := range units {
			u.Destroy()
		}
		return err
	}
	old := p.units
	p.units = units
	p.config = cfg
	for _, u := range old {
		u.Destroy()
	}
	return nil
}

func (p *Pipeline) compile(units []*shader.Unit, lineWidth float32, format metadata.Format, extent metadata.Extent2D) error {
	if extent.IsZero() {
		return fmt.Errorf("%w: pipeline `%s`: zero extent", core.ErrConfiguration, p.Name)
	}
	for _, u := range units {
		if err := u.Compile(); err != nil {
			return fmt.Errorf("%w: `%s`: %w", core.ErrPipelineCreation, p.Name, err)
		}
	}

	vertex, err := units[0].ReflectInputs()
	if err != nil {
		return fmt.Errorf("%w: `%s`: %w", core.ErrPipelineCreation, p.Name, err)
	}
	perUnit := make([][]metadata.BindingGroup, 0, len(units))
	for _, u := range units {
		groups, err := u.ReflectBindings()
		if err != nil {
			return fmt.Errorf("%w: `%s`: %w", core.ErrPipelineCreation, p.Name, err)
		}
		perUnit = append(perUnit, groups)
	}
	groups, err := mergeGroups(perUnit)
	if err != nil {
		return fmt.Errorf("%w: `%s`: %w", core.ErrPipelineCreation, p.Name, err)
	}

	next, err := p.createObjects(units, vertex, groups, lineWidth, format, extent)
	if err != nil {
		err = fmt.Errorf("%w: `%s`: %w", core.ErrPipelineCreation, p.Name, err)
		core.LogError("%s", err)
		return err
	}

	p.objects.destroy(p.device)
	p.objects = next
	p.lineWidth = lineWidth
	p.vertex = vertex
	p.groups = groups
	p.format = format
	p.extent = extent
	p.generation++
	core.LogDebug("pipeline `%s` compiled for %s %s (%d sets, stride %d)", p.Name, format, extent, len(groups), vertex.Stride)
	return nil
}

func (p *Pipeline) createObjects(units []*shader.Unit, vertex metadata.VertexLayout, groups []metadata.BindingGroup,
	lineWidth float32, format metadata.Format, extent metadata.Extent2D) (objects, error) {
	var next objects
	for _, g := range groups {
		l, err := p.device.CreateDescriptorSetLayout(g.Bindings)
		if err != nil {
			next.destroy(p.device)
			return objects{}, fmt.Errorf("failed to create descriptor set layout %d: %w", g.Set, err)
		}
		next.setLayouts = append(next.setLayouts, l)
	}

	layout, err := p.device.CreatePipelineLayout(next.setLayouts)
	if err != nil {
		next.destroy(p.device)
		return objects{}, fmt.Errorf("failed to create pipeline layout: %w", err)
	}
	next.layout = layout

	stages := make([]metadata.ShaderStageDesc, len(units))
	for i, u := range units {
		stages[i] = u.StageDesc()
	}
	handle, err := p.device.CreateGraphicsPipeline(metadata.GraphicsPipelineDesc{
		Name:        p.Name,
		Stages:      stages,
		Vertex:      vertex,
		Layout:      layout,
		ColorFormat: format,
		Extent:      extent,
		LineWidth:   lineWidth,
	})
	if err != nil {
		next.destroy(p.device)
		return objects{}, fmt.Errorf("failed to create graphics pipeline: %w", err)
	}
	next.pipeline = handle
	return next, nil
}

// mergeGroups folds the per stage groups into one list indexed by set number.
// A binding used by several stages keeps one entry with all their flags.
func mergeGroups(perUnit [][]metadata.BindingGroup) ([]metadata.BindingGroup, error) {
	var merged []metadata.BindingGroup
	for _, groups := range perUnit {
		for _, g := range groups {
			if g.Set >= metadata.MaxDescriptorSets {
				return nil, fmt.Errorf("%w: set %d is past the limit of %d", core.ErrConfiguration, g.Set, metadata.MaxDescriptorSets)
			}
			for uint32(len(merged)) <= g.Set {
				merged = append(merged, metadata.BindingGroup{Set: uint32(len(merged))})
			}
			target := &merged[g.Set]
			for _, b := range g.Bindings {
				i := slices.IndexFunc(target.Bindings, func(e metadata.LayoutBinding) bool { return e.Binding == b.Binding })
				if i < 0 {
					target.Bindings = append(target.Bindings, b)
					continue
				}
				existing := &target.Bindings[i]
				if existing.Type != b.Type || existing.Count != b.Count {
					return nil, fmt.Errorf("%w: binding %d.%d is %s[%d] in %s and %s[%d] in %s", core.ErrConfiguration,
						g.Set, b.Binding, existing.Type, existing.Count, existing.Stages, b.Type, b.Count, b.Stages)
				}
				existing.Stages |= b.Stages
			}
		}
	}
	for i := range merged {
		slices.SortFunc(merged[i].Bindings, func(a, b metadata.LayoutBinding) int {
			return int(a.Binding) - int(b.Binding)
		})
	}
	return merged, nil
}

// Bind records the pipeline on a command buffer.
func (p *Pipeline) Bind(recorder metadata.CommandRecorder) error {
	if p.objects.pipeline.IsZero() {
		return fmt.Errorf("%w: pipeline `%s` has not been compiled", core.ErrConfiguration, p.Name)
	}
	recorder.BindPipeline(p.objects.pipeline)
	return nil
}

func (p *Pipeline) Handle() metadata.PipelineHandle {
	return p.objects.pipeline
}

func (p *Pipeline) Layout() metadata.PipelineLayoutHandle {
	return p.objects.layout
}

// SetLayout returns the layout of descriptor set index.
func (p *Pipeline) SetLayout(index uint32) (metadata.DescriptorSetLayoutHandle, bool) {
	if int(index) >= len(p.objects.setLayouts) {
		return metadata.DescriptorSetLayoutHandle{}, false
	}
	return p.objects.setLayouts[index], true
}

// Groups returns the merged binding layout, indexed by set number.
func (p *Pipeline) Groups() []metadata.BindingGroup {
	return p.groups
}

func (p *Pipeline) VertexLayout() metadata.VertexLayout {
	return p.vertex
}

func (p *Pipeline) LineWidth() float32 {
	return p.lineWidth
}

func (p *Pipeline) Extent() metadata.Extent2D {
	return p.extent
}

// Generation changes every time the device objects are replaced. Descriptor
// sets allocated against an older generation use stale layouts.
func (p *Pipeline) Generation() uint64 {
	return p.generation
}

func (p *Pipeline) Config() *config.PipelineConfig {
	return p.config
}

func (p *Pipeline) Destroy() {
	p.objects.destroy(p.device)
	for _, u := range p.units {
		u.Destroy()
	}
	p.groups = nil
}
