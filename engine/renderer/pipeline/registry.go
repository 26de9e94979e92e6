package pipeline

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/spaghettifunk/magma/engine/config"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

// Registry owns every pipeline, keyed by name.
type Registry struct {
	device    Device
	opts      []Option
	pipelines map[string]*Pipeline
}

func NewRegistry(device Device, opts ...Option) *Registry {
	return &Registry{
		device:    device,
		opts:      opts,
		pipelines: make(map[string]*Pipeline),
	}
}

func (r *Registry) Find(name string) (*Pipeline, error) {
	p, ok := r.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: `%s`", core.ErrPipelineNotFound, name)
	}
	return p, nil
}

// Upsert creates the pipeline named by cfg, or reconfigures the existing one,
// and compiles it. A pipeline whose first compilation fails is not kept.
func (r *Registry) Upsert(cfg *config.PipelineConfig, format metadata.Format, extent metadata.Extent2D) (*Pipeline, error) {
	if p, ok := r.pipelines[cfg.Name]; ok {
		if err := p.Reconfigure(cfg, format, extent); err != nil {
			return p, err
		}
		return p, nil
	}

	p, err := New(r.device, cfg, r.opts...)
	if err != nil {
		return nil, err
	}
	if err := p.Compile(format, extent); err != nil {
		p.Destroy()
		return nil, err
	}
	r.pipelines[cfg.Name] = p
	core.LogInfo("pipeline `%s` created", cfg.Name)
	return p, nil
}

// CompileAll recompiles every pipeline, e.g. after the surface format or
// extent changed. Failures do not stop the others and are returned joined.
func (r *Registry) CompileAll(format metadata.Format, extent metadata.Extent2D) error {
	var errs []error
	for _, name := range r.Names() {
		if err := r.pipelines[name].Compile(format, extent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Names returns the pipeline names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.pipelines))
}

func (r *Registry) Len() int {
	return len(r.pipelines)
}

// Remove destroys the named pipeline.
func (r *Registry) Remove(name string) bool {
	p, ok := r.pipelines[name]
	if !ok {
		return false
	}
	p.Destroy()
	delete(r.pipelines, name)
	return true
}

func (r *Registry) Destroy() {
	for _, name := range r.Names() {
		r.pipelines[name].Destroy()
	}
	r.pipelines = make(map[string]*Pipeline)
}
