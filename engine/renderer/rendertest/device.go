// Package rendertest provides an in-memory device for renderer tests. It
// tracks every live object so tests can assert on leaks and on the order in
// which objects are created and destroyed.
package rendertest

import (
	"errors"
	"fmt"
	"image"

	"github.com/google/uuid"

	"github.com/spaghettifunk/magma/engine/containers"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

var ErrInjected = fmt.Errorf("%w: injected failure", core.ErrDevice)

type DescriptorSet struct {
	Pool   metadata.DescriptorPoolHandle
	Layout metadata.DescriptorSetLayoutHandle
	Writes map[uint32]metadata.DescriptorWrite
}

type Buffer struct {
	Usage metadata.BufferUsage
	Data  []byte
}

type descriptorPool struct {
	config metadata.DescriptorPoolConfig
	live   int
}

type swapchain struct {
	info     metadata.Swapchain
	acquired uint32
}

// Device implements every device interface of the renderer.
type Device struct {
	Capabilities  metadata.SurfaceCapabilities
	SurfaceFormat metadata.Format

	ShaderModules   *containers.Arena[[]uint32]
	SetLayouts      *containers.Arena[[]metadata.LayoutBinding]
	PipelineLayouts *containers.Arena[[]metadata.DescriptorSetLayoutHandle]
	Pipelines       *containers.Arena[metadata.GraphicsPipelineDesc]
	Pools           *containers.Arena[*descriptorPool]
	Sets            *containers.Arena[*DescriptorSet]
	Buffers         *containers.Arena[*Buffer]
	Swapchains      *containers.Arena[*swapchain]
	Images          *containers.Arena[metadata.Extent2D]
	Views           *containers.Arena[metadata.ImageHandle]
	Samplers        *containers.Arena[struct{}]
	Semaphores      *containers.Arena[struct{}]
	CommandPools    *containers.Arena[struct{}]
	CommandBuffers  *containers.Arena[*Recorder]

	// Calls lists create and destroy calls in order, e.g. "create pipeline".
	Calls []string

	// Errors returned by the next calls of the matching operation, front first.
	// A nil entry means success.
	ShaderModuleErrors   []error
	PipelineErrors       []error
	UpdateSetErrors      []error
	FreeSetErrors        []error
	AcquireErrors        []error
	BeginRenderingErrors []error
	PresentErrors        []error

	Submitted []*Recorder
	Presented []uint32
	IdleWaits int
}

func NewDevice() *Device {
	return &Device{
		Capabilities: metadata.SurfaceCapabilities{
			MinImageExtent: metadata.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: metadata.Extent2D{Width: 4096, Height: 4096},
			MinImageCount:  2,
			MaxImageCount:  3,
		},
		SurfaceFormat:   metadata.FormatB8G8R8A8Unorm,
		ShaderModules:   containers.NewArena[[]uint32](),
		SetLayouts:      containers.NewArena[[]metadata.LayoutBinding](),
		PipelineLayouts: containers.NewArena[[]metadata.DescriptorSetLayoutHandle](),
		Pipelines:       containers.NewArena[metadata.GraphicsPipelineDesc](),
		Pools:           containers.NewArena[*descriptorPool](),
		Sets:            containers.NewArena[*DescriptorSet](),
		Buffers:         containers.NewArena[*Buffer](),
		Swapchains:      containers.NewArena[*swapchain](),
		Images:          containers.NewArena[metadata.Extent2D](),
		Views:           containers.NewArena[metadata.ImageHandle](),
		Samplers:        containers.NewArena[struct{}](),
		Semaphores:      containers.NewArena[struct{}](),
		CommandPools:    containers.NewArena[struct{}](),
		CommandBuffers:  containers.NewArena[*Recorder](),
	}
}

func pop(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (d *Device) record(format string, args ...interface{}) {
	d.Calls = append(d.Calls, fmt.Sprintf(format, args...))
}

func missing(kind string) error {
	return fmt.Errorf("%w: unknown %s handle", core.ErrDevice, kind)
}

func (d *Device) CreateShaderModule(code []uint32) (metadata.ShaderModuleHandle, error) {
	if err := pop(&d.ShaderModuleErrors); err != nil {
		return metadata.ShaderModuleHandle{}, err
	}
	d.record("create shader module")
	return metadata.ShaderModuleHandle{Handle: d.ShaderModules.Insert(append([]uint32(nil), code...))}, nil
}

func (d *Device) DestroyShaderModule(module metadata.ShaderModuleHandle) {
	if _, ok := d.ShaderModules.Remove(module.Handle); ok {
		d.record("destroy shader module")
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []metadata.LayoutBinding) (metadata.DescriptorSetLayoutHandle, error) {
	d.record("create set layout")
	return metadata.DescriptorSetLayoutHandle{Handle: d.SetLayouts.Insert(append([]metadata.LayoutBinding(nil), bindings...))}, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout metadata.DescriptorSetLayoutHandle) {
	if _, ok := d.SetLayouts.Remove(layout.Handle); ok {
		d.record("destroy set layout")
	}
}

func (d *Device) CreatePipelineLayout(sets []metadata.DescriptorSetLayoutHandle) (metadata.PipelineLayoutHandle, error) {
	for _, s := range sets {
		if !d.SetLayouts.Contains(s.Handle) {
			return metadata.PipelineLayoutHandle{}, missing("descriptor set layout")
		}
	}
	d.record("create pipeline layout")
	return metadata.PipelineLayoutHandle{Handle: d.PipelineLayouts.Insert(append([]metadata.DescriptorSetLayoutHandle(nil), sets...))}, nil
}

func (d *Device) DestroyPipelineLayout(layout metadata.PipelineLayoutHandle) {
	if _, ok := d.PipelineLayouts.Remove(layout.Handle); ok {
		d.record("destroy pipeline layout")
	}
}

func (d *Device) CreateGraphicsPipeline(desc metadata.GraphicsPipelineDesc) (metadata.PipelineHandle, error) {
	if err := pop(&d.PipelineErrors); err != nil {
		return metadata.PipelineHandle{}, err
	}
	if !d.PipelineLayouts.Contains(desc.Layout.Handle) {
		return metadata.PipelineHandle{}, missing("pipeline layout")
	}
	for _, s := range desc.Stages {
		if !d.ShaderModules.Contains(s.Module.Handle) {
			return metadata.PipelineHandle{}, missing("shader module")
		}
	}
	d.record("create pipeline %s", desc.Name)
	return metadata.PipelineHandle{Handle: d.Pipelines.Insert(desc)}, nil
}

func (d *Device) DestroyPipeline(pipeline metadata.PipelineHandle) {
	if desc, ok := d.Pipelines.Remove(pipeline.Handle); ok {
		d.record("destroy pipeline %s", desc.Name)
	}
}

func (d *Device) CreateDescriptorPool(config metadata.DescriptorPoolConfig) (metadata.DescriptorPoolHandle, error) {
	d.record("create descriptor pool")
	return metadata.DescriptorPoolHandle{Handle: d.Pools.Insert(&descriptorPool{config: config})}, nil
}

func (d *Device) DestroyDescriptorPool(pool metadata.DescriptorPoolHandle) {
	if _, ok := d.Pools.Remove(pool.Handle); !ok {
		return
	}
	// destroying a pool frees every set allocated from it
	var owned []containers.Handle
	d.Sets.Each(func(h containers.Handle, s *DescriptorSet) bool {
		if s.Pool == pool {
			owned = append(owned, h)
		}
		return true
	})
	for _, h := range owned {
		d.Sets.Remove(h)
	}
	d.record("destroy descriptor pool")
}

func (d *Device) AllocateDescriptorSet(pool metadata.DescriptorPoolHandle, layout metadata.DescriptorSetLayoutHandle) (metadata.DescriptorSetHandle, error) {
	p, ok := d.Pools.Get(pool.Handle)
	if !ok {
		return metadata.DescriptorSetHandle{}, missing("descriptor pool")
	}
	if !d.SetLayouts.Contains(layout.Handle) {
		return metadata.DescriptorSetHandle{}, missing("descriptor set layout")
	}
	if p.config.MaxSets > 0 && uint32(p.live) >= p.config.MaxSets {
		return metadata.DescriptorSetHandle{}, fmt.Errorf("%w: descriptor pool exhausted", core.ErrDevice)
	}
	p.live++
	set := &DescriptorSet{Pool: pool, Layout: layout, Writes: make(map[uint32]metadata.DescriptorWrite)}
	return metadata.DescriptorSetHandle{Handle: d.Sets.Insert(set)}, nil
}

func (d *Device) FreeDescriptorSet(pool metadata.DescriptorPoolHandle, set metadata.DescriptorSetHandle) error {
	if err := pop(&d.FreeSetErrors); err != nil {
		return err
	}
	p, ok := d.Pools.Get(pool.Handle)
	if !ok {
		return missing("descriptor pool")
	}
	if _, ok := d.Sets.Remove(set.Handle); !ok {
		return missing("descriptor set")
	}
	p.live--
	return nil
}

func (d *Device) UpdateDescriptorSet(writes ...metadata.DescriptorWrite) error {
	if err := pop(&d.UpdateSetErrors); err != nil {
		return err
	}
	for _, w := range writes {
		set, ok := d.Sets.Get(w.Set.Handle)
		if !ok {
			return missing("descriptor set")
		}
		if w.Type.IsBuffer() && !d.Buffers.Contains(w.Buffer.Handle) {
			return missing("buffer")
		}
		if w.Type.IsImage() && (!d.Views.Contains(w.View.Handle) || !d.Samplers.Contains(w.Sampler.Handle)) {
			return missing("image view or sampler")
		}
		set.Writes[w.Binding] = w
	}
	return nil
}

func (d *Device) CreateBuffer(usage metadata.BufferUsage, data []byte) (metadata.BufferHandle, error) {
	if len(data) == 0 {
		return metadata.BufferHandle{}, fmt.Errorf("%w: zero sized buffer", core.ErrDevice)
	}
	return metadata.BufferHandle{Handle: d.Buffers.Insert(&Buffer{Usage: usage, Data: append([]byte(nil), data...)})}, nil
}

func (d *Device) DestroyBuffer(buffer metadata.BufferHandle) {
	d.Buffers.Remove(buffer.Handle)
}

// Buffer returns the contents of a live buffer.
func (d *Device) Buffer(buffer metadata.BufferHandle) (*Buffer, bool) {
	return d.Buffers.Get(buffer.Handle)
}

// Set returns a live descriptor set.
func (d *Device) Set(set metadata.DescriptorSetHandle) (*DescriptorSet, bool) {
	return d.Sets.Get(set.Handle)
}

func (d *Device) imageCount() uint32 {
	n := d.Capabilities.MinImageCount + 1
	if d.Capabilities.MaxImageCount > 0 && n > d.Capabilities.MaxImageCount {
		n = d.Capabilities.MaxImageCount
	}
	return n
}

func (d *Device) CreateSwapchain(desc metadata.SwapchainDesc) (metadata.Swapchain, error) {
	if !desc.Old.IsZero() && !d.Swapchains.Contains(desc.Old.Handle) {
		return metadata.Swapchain{}, missing("swapchain")
	}
	extent := desc.Extent
	if !d.Capabilities.CurrentExtent.IsZero() {
		extent = d.Capabilities.CurrentExtent
	}
	sc := &swapchain{info: metadata.Swapchain{Format: d.SurfaceFormat, Extent: extent}}
	for i := uint32(0); i < d.imageCount(); i++ {
		sc.info.Images = append(sc.info.Images, metadata.ImageHandle{Handle: d.Images.Insert(extent)})
	}
	sc.info.Handle = metadata.SwapchainHandle{Handle: d.Swapchains.Insert(sc)}
	d.record("create swapchain")
	return sc.info, nil
}

func (d *Device) DestroySwapchain(handle metadata.SwapchainHandle) {
	sc, ok := d.Swapchains.Remove(handle.Handle)
	if !ok {
		return
	}
	for _, img := range sc.info.Images {
		d.Images.Remove(img.Handle)
	}
	d.record("destroy swapchain")
}

func (d *Device) CreateImageView(img metadata.ImageHandle, format metadata.Format) (metadata.ImageViewHandle, error) {
	if !d.Images.Contains(img.Handle) {
		return metadata.ImageViewHandle{}, missing("image")
	}
	return metadata.ImageViewHandle{Handle: d.Views.Insert(img)}, nil
}

func (d *Device) DestroyImageView(view metadata.ImageViewHandle) {
	d.Views.Remove(view.Handle)
}

func (d *Device) CreateSemaphore() (metadata.SemaphoreHandle, error) {
	return metadata.SemaphoreHandle{Handle: d.Semaphores.Insert(struct{}{})}, nil
}

func (d *Device) DestroySemaphore(semaphore metadata.SemaphoreHandle) {
	d.Semaphores.Remove(semaphore.Handle)
}

func (d *Device) CreateCommandPool() (metadata.CommandPoolHandle, error) {
	return metadata.CommandPoolHandle{Handle: d.CommandPools.Insert(struct{}{})}, nil
}

func (d *Device) DestroyCommandPool(pool metadata.CommandPoolHandle) {
	d.CommandPools.Remove(pool.Handle)
}

func (d *Device) AllocateCommandBuffer(pool metadata.CommandPoolHandle) (metadata.CommandBufferHandle, error) {
	if !d.CommandPools.Contains(pool.Handle) {
		return metadata.CommandBufferHandle{}, missing("command pool")
	}
	return metadata.CommandBufferHandle{Handle: d.CommandBuffers.Insert(&Recorder{})}, nil
}

func (d *Device) AcquireNextImage(handle metadata.SwapchainHandle, signal metadata.SemaphoreHandle) (uint32, error) {
	sc, ok := d.Swapchains.Get(handle.Handle)
	if !ok {
		return 0, missing("swapchain")
	}
	if err := pop(&d.AcquireErrors); err != nil {
		return 0, err
	}
	idx := sc.acquired
	sc.acquired = (sc.acquired + 1) % uint32(len(sc.info.Images))
	return idx, nil
}

func (d *Device) ResetCommandBuffer(cmd metadata.CommandBufferHandle) error {
	r, ok := d.CommandBuffers.Get(cmd.Handle)
	if !ok {
		return missing("command buffer")
	}
	r.Commands = nil
	r.recording = false
	return nil
}

func (d *Device) BeginCommandBuffer(cmd metadata.CommandBufferHandle) (metadata.CommandRecorder, error) {
	r, ok := d.CommandBuffers.Get(cmd.Handle)
	if !ok {
		return nil, missing("command buffer")
	}
	if r.recording {
		return nil, fmt.Errorf("%w: command buffer already recording", core.ErrDevice)
	}
	r.recording = true
	r.beginErrors = &d.BeginRenderingErrors
	return r, nil
}

func (d *Device) EndCommandBuffer(cmd metadata.CommandBufferHandle) error {
	r, ok := d.CommandBuffers.Get(cmd.Handle)
	if !ok {
		return missing("command buffer")
	}
	if !r.recording {
		return errors.New("command buffer is not recording")
	}
	r.recording = false
	return nil
}

func (d *Device) Submit(cmd metadata.CommandBufferHandle, wait, signal metadata.SemaphoreHandle) error {
	r, ok := d.CommandBuffers.Get(cmd.Handle)
	if !ok {
		return missing("command buffer")
	}
	if !d.Semaphores.Contains(wait.Handle) || !d.Semaphores.Contains(signal.Handle) {
		return missing("semaphore")
	}
	d.Submitted = append(d.Submitted, r.snapshot())
	return nil
}

func (d *Device) Present(handle metadata.SwapchainHandle, index uint32, wait metadata.SemaphoreHandle) error {
	if !d.Swapchains.Contains(handle.Handle) {
		return missing("swapchain")
	}
	if err := pop(&d.PresentErrors); err != nil {
		return err
	}
	d.Presented = append(d.Presented, index)
	return nil
}

func (d *Device) WaitIdle() error {
	d.IdleWaits++
	return nil
}

func (d *Device) CreateTexture(name string, img *image.RGBA) (*metadata.Texture, error) {
	b := img.Bounds()
	extent := metadata.Extent2D{Width: uint32(b.Dx()), Height: uint32(b.Dy())}
	if extent.IsZero() {
		return nil, fmt.Errorf("%w: empty texture %s", core.ErrDevice, name)
	}
	handle := metadata.ImageHandle{Handle: d.Images.Insert(extent)}
	return &metadata.Texture{
		ID:      uuid.New(),
		Name:    name,
		Width:   extent.Width,
		Height:  extent.Height,
		Image:   handle,
		View:    metadata.ImageViewHandle{Handle: d.Views.Insert(handle)},
		Sampler: metadata.SamplerHandle{Handle: d.Samplers.Insert(struct{}{})},
	}, nil
}

func (d *Device) DestroyTexture(texture *metadata.Texture) {
	d.Samplers.Remove(texture.Sampler.Handle)
	d.Views.Remove(texture.View.Handle)
	d.Images.Remove(texture.Image.Handle)
}

// Texture creates a solid texture for tests.
func (d *Device) Texture(name string, width, height int) *metadata.Texture {
	t, err := d.CreateTexture(name, image.NewRGBA(image.Rect(0, 0, width, height)))
	if err != nil {
		panic(err)
	}
	return t
}
