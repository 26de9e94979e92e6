// Package descriptor allocates descriptor sets from the renderer's shared
// pool and writes resources into them.
package descriptor

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

type Device interface {
	CreateDescriptorPool(config metadata.DescriptorPoolConfig) (metadata.DescriptorPoolHandle, error)
	DestroyDescriptorPool(pool metadata.DescriptorPoolHandle)
	AllocateDescriptorSet(pool metadata.DescriptorPoolHandle, layout metadata.DescriptorSetLayoutHandle) (metadata.DescriptorSetHandle, error)
	FreeDescriptorSet(pool metadata.DescriptorPoolHandle, set metadata.DescriptorSetHandle) error
	UpdateDescriptorSet(writes ...metadata.DescriptorWrite) error
}

// Layouts exposes the descriptor set layouts of a pipeline.
type Layouts interface {
	Groups() []metadata.BindingGroup
	SetLayout(index uint32) (metadata.DescriptorSetLayoutHandle, bool)
}

// Allocator owns the descriptor pool every set is allocated from.
type Allocator struct {
	device Device
	pool   metadata.DescriptorPoolHandle
	live   map[uuid.UUID]*Set
}

func NewAllocator(device Device, config metadata.DescriptorPoolConfig) (*Allocator, error) {
	pool, err := device.CreateDescriptorPool(config)
	if err != nil {
		err = fmt.Errorf("failed to create descriptor pool: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	core.LogDebug("descriptor pool created (max %d sets)", config.MaxSets)
	return &Allocator{
		device: device,
		pool:   pool,
		live:   make(map[uuid.UUID]*Set),
	}, nil
}

// Allocate creates a set for group setIndex of layouts.
func (a *Allocator) Allocate(layouts Layouts, setIndex uint32) (*Set, error) {
	groups := layouts.Groups()
	if int(setIndex) >= len(groups) {
		return nil, fmt.Errorf("%w: set %d, pipeline has %d", core.ErrInvalidSetIndex, setIndex, len(groups))
	}
	layout, ok := layouts.SetLayout(setIndex)
	if !ok {
		return nil, fmt.Errorf("%w: set %d has no layout", core.ErrInvalidSetIndex, setIndex)
	}
	handle, err := a.device.AllocateDescriptorSet(a.pool, layout)
	if err != nil {
		err = fmt.Errorf("failed to allocate descriptor set %d: %w", setIndex, err)
		core.LogError("%s", err)
		return nil, err
	}
	s := &Set{
		ID:        uuid.New(),
		Index:     setIndex,
		allocator: a,
		handle:    handle,
		bindings:  append([]metadata.LayoutBinding(nil), groups[setIndex].Bindings...),
	}
	a.live[s.ID] = s
	return s, nil
}

// Live returns the number of sets not yet released.
func (a *Allocator) Live() int {
	return len(a.live)
}

// Destroy releases the pool and with it every outstanding set.
func (a *Allocator) Destroy() {
	if n := len(a.live); n > 0 {
		core.LogWarn("destroying descriptor pool with %d outstanding sets", n)
	}
	for _, s := range a.live {
		s.released = true
	}
	a.live = make(map[uuid.UUID]*Set)
	if !a.pool.IsZero() {
		a.device.DestroyDescriptorPool(a.pool)
		a.pool = metadata.DescriptorPoolHandle{}
	}
}

/**
 * @brief A descriptor set allocated for one group of a pipeline layout.
 */
type Set struct {
	/** @brief The unique set identifier. */
	ID uuid.UUID
	/** @brief The set number in the pipeline layout. */
	Index uint32

	allocator *Allocator
	handle    metadata.DescriptorSetHandle
	// copy of the group at allocation time
	bindings []metadata.LayoutBinding
	released bool
}

func (s *Set) Handle() metadata.DescriptorSetHandle {
	return s.handle
}

func (s *Set) Bindings() []metadata.LayoutBinding {
	return s.bindings
}

func (s *Set) lookup(binding uint32) (metadata.LayoutBinding, error) {
	if s.released {
		return metadata.LayoutBinding{}, fmt.Errorf("%w: set %s was released", core.ErrInvalidBinding, s.ID)
	}
	for _, b := range s.bindings {
		if b.Binding == binding {
			return b, nil
		}
	}
	return metadata.LayoutBinding{}, fmt.Errorf("%w: set %d has no binding %d", core.ErrInvalidBinding, s.Index, binding)
}

// WriteBuffer points a buffer binding at the whole of buffer.
func (s *Set) WriteBuffer(binding uint32, buffer metadata.BufferHandle) error {
	b, err := s.lookup(binding)
	if err != nil {
		return err
	}
	if !b.Type.IsBuffer() {
		return fmt.Errorf("%w: binding %d.%d is %s, not a buffer", core.ErrDescriptorKindMismatch, s.Index, binding, b.Type)
	}
	return s.update(metadata.DescriptorWrite{
		Set:     s.handle,
		Binding: binding,
		Type:    b.Type,
		Buffer:  buffer,
	})
}

// WriteTexture points an image binding at the view and sampler of texture.
func (s *Set) WriteTexture(binding uint32, texture *metadata.Texture) error {
	b, err := s.lookup(binding)
	if err != nil {
		return err
	}
	if !b.Type.IsImage() {
		return fmt.Errorf("%w: binding %d.%d is %s, not an image", core.ErrDescriptorKindMismatch, s.Index, binding, b.Type)
	}
	return s.update(metadata.DescriptorWrite{
		Set:     s.handle,
		Binding: binding,
		Type:    b.Type,
		View:    texture.View,
		Sampler: texture.Sampler,
		Layout:  metadata.ImageLayoutShaderReadOnly,
	})
}

func (s *Set) update(w metadata.DescriptorWrite) error {
	if err := s.allocator.device.UpdateDescriptorSet(w); err != nil {
		err = fmt.Errorf("failed to update descriptor set %d binding %d: %w", s.Index, w.Binding, err)
		core.LogError("%s", err)
		return err
	}
	return nil
}

// Release returns the set to the pool. Releasing twice does nothing.
func (s *Set) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	delete(s.allocator.live, s.ID)
	if err := s.allocator.device.FreeDescriptorSet(s.allocator.pool, s.handle); err != nil {
		err = fmt.Errorf("failed to free descriptor set %s: %w", s.ID, err)
		core.LogError("%s", err)
		return err
	}
	return nil
}
