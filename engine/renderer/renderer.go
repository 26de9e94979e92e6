// Package renderer ties the pipeline registry, the descriptor allocator, the
// batcher and the frame controller together behind one context.
package renderer

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/spaghettifunk/magma/engine/assets"
	"github.com/spaghettifunk/magma/engine/config"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/batch"
	"github.com/spaghettifunk/magma/engine/renderer/descriptor"
	"github.com/spaghettifunk/magma/engine/renderer/frame"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/pipeline"
	"github.com/spaghettifunk/magma/engine/renderer/shader"
)

type options struct {
	compiler shader.Compiler
	workers  int
}

type Option func(*options)

// WithCompiler replaces the compilers picked from shader file extensions.
func WithCompiler(c shader.Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithCompileWorkers sets how many shaders compile in parallel on a reload.
func WithCompileWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

/**
 * @brief The renderer context. All of its methods run on the render thread.
 */
type Renderer struct {
	device  Device
	surface Surface
	config  *config.EngineConfig

	pipelines *pipeline.Registry
	shaders   *shader.Cache
	allocator *descriptor.Allocator
	batcher   *batch.Batcher
	frame     *frame.Controller
	textures  map[string]*metadata.Texture

	// the extent the pipelines were last compiled for
	compiled      metadata.Extent2D
	loaded        bool
	resizePending bool
	stats         []batch.Stats
}

func New(device Device, surface Surface, cfg *config.EngineConfig, opts ...Option) (*Renderer, error) {
	o := &options{workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(o)
	}
	cache := shader.NewCache(o.compiler, o.workers)
	pipelineOpts := []pipeline.Option{
		pipeline.WithShaderDir(cfg.Assets.ShaderDir()),
		pipeline.WithDefaultLineWidth(cfg.Renderer.LineWidth),
		pipeline.WithCompiler(cache),
	}

	allocator, err := descriptor.NewAllocator(device, cfg.Renderer.Descriptors.PoolConfig())
	if err != nil {
		return nil, err
	}
	r := &Renderer{
		device:    device,
		surface:   surface,
		config:    cfg,
		pipelines: pipeline.NewRegistry(device, pipelineOpts...),
		shaders:   cache,
		allocator: allocator,
		textures:  make(map[string]*metadata.Texture),
	}
	r.batcher = batch.NewBatcher(device, r.pipelines, allocator)

	r.frame, err = frame.NewController(device, surface,
		frame.WithClearColor(cfg.Renderer.Clear()),
		frame.WithFlush(r.flush),
		frame.WithFrameDone(r.batcher.Release),
	)
	if err != nil {
		allocator.Destroy()
		return nil, err
	}
	surface.OnResize(r.OnResize)

	if err := r.loadPipelines(); err != nil {
		if core.IsFatal(err) {
			r.Shutdown()
			return nil, err
		}
		core.LogWarn("some pipelines failed to compile: %s", err)
	}
	core.LogInfo("renderer initialized with %d pipelines", r.pipelines.Len())
	return r, nil
}

// loadPipelines creates or recompiles every pipeline found in the pipeline
// directory. Compilation failures keep the previous pipeline and are joined.
func (r *Renderer) loadPipelines() error {
	extent := r.frame.Extent()
	if extent.IsZero() {
		core.LogDebug("no drawable surface yet, pipelines will be loaded later")
		r.loaded = false
		return nil
	}
	configs, err := config.LoadPipelines(r.config.Assets.PipelineDir())
	if err != nil {
		return err
	}
	// failures show up again, with their pipeline, in Upsert
	if err := r.shaders.Warm(r.sources(configs)); err != nil {
		core.LogDebug("shader warm-up: %s", err)
	}

	var errs []error
	for _, cfg := range configs {
		if _, err := r.pipelines.Upsert(cfg, r.frame.Format(), extent); err != nil {
			if core.IsFatal(err) {
				return err
			}
			core.LogWarn("%s", err)
			errs = append(errs, err)
		}
		r.batcher.Invalidate(cfg.Name)
	}
	r.compiled = extent
	r.loaded = true
	return errors.Join(errs...)
}

// sources lists the shader files of configs the way the pipelines resolve them.
func (r *Renderer) sources(configs []*config.PipelineConfig) []shader.Source {
	dir := r.config.Assets.ShaderDir()
	var sources []shader.Source
	for _, cfg := range configs {
		for _, s := range cfg.Shaders {
			stage, err := metadata.ParseShaderStage(s.Stage)
			if err != nil {
				continue
			}
			path := s.Resource
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			sources = append(sources, shader.Source{Path: path, Stage: stage})
		}
	}
	return sources
}

// syncPipelines recompiles the pipelines when the swapchain extent changed
// since they were compiled.
func (r *Renderer) syncPipelines() error {
	if !r.loaded {
		return r.loadPipelines()
	}
	extent := r.frame.Extent()
	if extent == r.compiled || extent.IsZero() {
		return nil
	}
	core.LogDebug("swapchain extent changed %s -> %s, recompiling pipelines", r.compiled, extent)
	err := r.pipelines.CompileAll(r.frame.Format(), extent)
	for _, name := range r.pipelines.Names() {
		r.batcher.Invalidate(name)
	}
	r.compiled = extent
	if err != nil && core.IsFatal(err) {
		return err
	}
	if err != nil {
		core.LogWarn("%s", err)
	}
	return err
}

// Reload rebuilds the swapchain. With recompile set it also walks the
// pipeline directory again, creating new pipelines and recompiling the
// existing ones.
func (r *Renderer) Reload(recompile bool) error {
	if err := r.frame.Reload(); err != nil {
		return err
	}
	if recompile {
		return r.loadPipelines()
	}
	return r.syncPipelines()
}

// Begin starts a frame. False means the frame is skipped and nothing may be
// recorded.
func (r *Renderer) Begin() (bool, error) {
	if r.resizePending {
		r.resizePending = false
		if err := r.Reload(false); err != nil && core.IsFatal(err) {
			return false, err
		}
	}
	return r.frame.Begin()
}

func (r *Renderer) Clear(color metadata.Color) error {
	return r.frame.Clear(color)
}

// Recorder returns the command buffer of the current frame for drawing
// outside the batcher.
func (r *Renderer) Recorder() (metadata.CommandRecorder, error) {
	return r.frame.Recorder()
}

// End flushes the batcher and presents. Pipelines are recompiled when the
// swapchain had to be rebuilt at a new size.
func (r *Renderer) End() (bool, error) {
	presented, err := r.frame.End()
	if err != nil {
		return false, err
	}
	if err := r.syncPipelines(); err != nil && core.IsFatal(err) {
		return presented, err
	}
	return presented, nil
}

func (r *Renderer) flush(recorder metadata.CommandRecorder) error {
	stats, err := r.batcher.Flush(recorder)
	r.stats = stats
	return err
}

// Stats describes the draws of the last flushed frame.
func (r *Renderer) Stats() []batch.Stats {
	return r.stats
}

func (r *Renderer) FindPipeline(name string) (*pipeline.Pipeline, error) {
	return r.pipelines.Find(name)
}

// Allocate allocates a descriptor set for set index setIndex of the named pipeline.
func (r *Renderer) Allocate(pipelineName string, setIndex uint32) (*descriptor.Set, error) {
	p, err := r.pipelines.Find(pipelineName)
	if err != nil {
		return nil, err
	}
	return r.allocator.Allocate(p, setIndex)
}

func (r *Renderer) Batcher() *batch.Batcher {
	return r.batcher
}

func (r *Renderer) Frame() *frame.Controller {
	return r.frame
}

// LoadTexture decodes and uploads the image at path. Textures are cached by path.
func (r *Renderer) LoadTexture(path string) (*metadata.Texture, error) {
	key := filepath.Clean(path)
	if t, ok := r.textures[key]; ok {
		return t, nil
	}
	img, err := assets.LoadImage(key)
	if err != nil {
		return nil, err
	}
	t, err := r.device.CreateTexture(key, img)
	if err != nil {
		err = fmt.Errorf("failed to create texture %s: %w", key, err)
		core.LogError("%s", err)
		return nil, err
	}
	r.textures[key] = t
	core.LogDebug("loaded texture %s (%dx%d)", key, t.Width, t.Height)
	return t, nil
}

func (r *Renderer) DestroyTexture(texture *metadata.Texture) {
	r.batcher.ForgetTexture(texture)
	delete(r.textures, texture.Name)
	r.device.DestroyTexture(texture)
}

// OnResize marks the swapchain for rebuilding at the start of the next frame.
func (r *Renderer) OnResize(extent metadata.Extent2D) {
	core.LogDebug("surface resized to %s", extent)
	r.resizePending = true
}

func (r *Renderer) Shutdown() {
	if err := r.device.WaitIdle(); err != nil {
		core.LogWarn("failed to wait for device idle: %s", err)
	}
	r.batcher.Destroy()
	for _, t := range r.textures {
		r.device.DestroyTexture(t)
	}
	r.textures = make(map[string]*metadata.Texture)
	r.pipelines.Destroy()
	r.allocator.Destroy()
	r.frame.Destroy()
	core.LogInfo("renderer shut down")
}
