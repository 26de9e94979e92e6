package vulkan

import (
	"fmt"
	"image"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/spaghettifunk/magma/engine/containers"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

// Window is the platform window the device presents to.
type Window interface {
	RequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}) (uintptr, error)
}

type imageView struct {
	handle vk.ImageView
	format vk.Format
	// created on first use as a render target
	framebuffer *VulkanFramebuffer
}

type descriptorSet struct {
	handle vk.DescriptorSet
	pool   metadata.DescriptorPoolHandle
}

type texelResource struct {
	view    vk.ImageView
	sampler vk.Sampler
}

/**
 * @brief The Vulkan implementation of the renderer device. Every object it
 * creates is addressed through a typed handle into one of its arenas.
 * A Device is not safe for concurrent use.
 */
type Device struct {
	context *VulkanContext
	debug   bool

	shaderModules   *containers.Arena[vk.ShaderModule]
	setLayouts      *containers.Arena[vk.DescriptorSetLayout]
	pipelineLayouts *containers.Arena[vk.PipelineLayout]
	pipelines       *containers.Arena[*VulkanPipeline]
	pools           *containers.Arena[vk.DescriptorPool]
	sets            *containers.Arena[*descriptorSet]
	buffers         *containers.Arena[*VulkanBuffer]
	swapchains      *containers.Arena[*VulkanSwapchain]
	images          *containers.Arena[*VulkanImage]
	views           *containers.Arena[*imageView]
	samplers        *containers.Arena[vk.Sampler]
	semaphores      *containers.Arena[vk.Semaphore]
	commandPools    *containers.Arena[vk.CommandPool]
	commandBuffers  *containers.Arena[*VulkanCommandBuffer]

	renderpasses map[renderpassKey]*VulkanRenderpass
}

func missing(kind string) error {
	return fmt.Errorf("%w: unknown %s handle", core.ErrDevice, kind)
}

// New creates the instance, the window surface and the logical device.
// Validation layers and the debug report callback are enabled with debug.
func New(window Window, appName string, debug bool) (*Device, error) {
	d := &Device{
		context:         &VulkanContext{Allocator: nil},
		debug:           debug,
		shaderModules:   containers.NewArena[vk.ShaderModule](),
		setLayouts:      containers.NewArena[vk.DescriptorSetLayout](),
		pipelineLayouts: containers.NewArena[vk.PipelineLayout](),
		pipelines:       containers.NewArena[*VulkanPipeline](),
		pools:           containers.NewArena[vk.DescriptorPool](),
		sets:            containers.NewArena[*descriptorSet](),
		buffers:         containers.NewArena[*VulkanBuffer](),
		swapchains:      containers.NewArena[*VulkanSwapchain](),
		images:          containers.NewArena[*VulkanImage](),
		views:           containers.NewArena[*imageView](),
		samplers:        containers.NewArena[vk.Sampler](),
		semaphores:      containers.NewArena[vk.Semaphore](),
		commandPools:    containers.NewArena[vk.CommandPool](),
		commandBuffers:  containers.NewArena[*VulkanCommandBuffer](),
		renderpasses:    make(map[renderpassKey]*VulkanRenderpass),
	}

	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("%w: GetInstanceProcAddress is nil", core.ErrDevice)
		core.LogError("%s", err)
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		err = fmt.Errorf("%w: failed to initialize vk: %s", core.ErrDevice, err)
		core.LogError("%s", err)
		return nil, err
	}

	if err := d.createInstance(window, appName); err != nil {
		return nil, err
	}

	if d.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := checkResult(vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, d.context.Allocator, &dbg), "vkCreateDebugReportCallback"); err != nil {
			d.Shutdown()
			return nil, err
		}
		d.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateWindowSurface(d.context.Instance)
	if err != nil {
		err = fmt.Errorf("%w: failed to create platform surface: %s", core.ErrDevice, err)
		core.LogError("%s", err)
		d.Shutdown()
		return nil, err
	}
	d.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(d.context); err != nil {
		core.LogError("Failed to create device!")
		d.Shutdown()
		return nil, err
	}

	core.LogInfo("Vulkan device initialized successfully.")
	return d, nil
}

func (d *Device) createInstance(window Window, appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Magma Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, window.RequiredInstanceExtensions()...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	if d.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogDebug("Required extensions:")
		for _, name := range requiredExtensions {
			core.LogDebug("%s", name)
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers should only be enabled on non-release builds.
	var requiredLayers []string
	if d.debug {
		core.LogInfo("Validation layers enabled. Enumerating...")
		requiredLayers = []string{"VK_LAYER_KHRONOS_validation"}

		var availableCount uint32
		if err := checkResult(vk.EnumerateInstanceLayerProperties(&availableCount, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
			return err
		}
		availableLayers := make([]vk.LayerProperties, availableCount)
		if err := checkResult(vk.EnumerateInstanceLayerProperties(&availableCount, availableLayers), "vkEnumerateInstanceLayerProperties"); err != nil {
			return err
		}

		// Verify all required layers are available.
		for _, required := range requiredLayers {
			core.LogDebug("Searching for layer: %s...", required)
			found := false
			for j := range availableLayers {
				availableLayers[j].Deref()
				end := FindFirstZeroInByteArray(availableLayers[j].LayerName[:])
				if required == vk.ToString(availableLayers[j].LayerName[:end+1]) {
					found = true
					break
				}
			}
			if !found {
				err := fmt.Errorf("%w: required validation layer is missing: %s", core.ErrDevice, required)
				core.LogError("%s", err)
				return err
			}
		}
		core.LogInfo("All required validation layers are present.")
	}

	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	var instance vk.Instance
	if err := lockPool.SafeCall(InstanceManagement, func() error {
		return checkResult(vk.CreateInstance(&createInfo, d.context.Allocator, &instance), "vkCreateInstance")
	}); err != nil {
		return err
	}
	d.context.Instance = instance
	if err := vk.InitInstance(d.context.Instance); err != nil {
		err = fmt.Errorf("%w: %s", core.ErrDevice, err)
		core.LogError("%s", err)
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

// Shutdown destroys what is still alive, then the device and the instance.
// Objects left behind by the renderer are reported as warnings.
func (d *Device) Shutdown() {
	if d.context.Device != nil && d.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(d.context.Device.LogicalDevice)
		d.destroyLeftovers()
		for key, rp := range d.renderpasses {
			rp.RenderpassDestroy(d.context)
			delete(d.renderpasses, key)
		}
		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(d.context)
	}

	if d.context.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(d.context.Instance, d.context.Surface, d.context.Allocator)
		d.context.Surface = vk.NullSurface
	}

	if d.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.context.Instance, d.context.debugMessenger, d.context.Allocator)
		d.context.debugMessenger = vk.NullDebugReportCallback
	}

	if d.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(d.context.Instance, d.context.Allocator)
		d.context.Instance = nil
	}
}

func leaked(kind string, n int) {
	if n > 0 {
		core.LogWarn("%d %s still alive on shutdown", n, kind)
	}
}

// destroyLeftovers releases objects in dependency order: users before what they use.
func (d *Device) destroyLeftovers() {
	leaked("command pools", d.commandPools.Len())
	d.commandPools.Each(func(h containers.Handle, _ vk.CommandPool) bool {
		d.DestroyCommandPool(metadata.CommandPoolHandle{Handle: h})
		return true
	})
	leaked("semaphores", d.semaphores.Len())
	d.semaphores.Each(func(h containers.Handle, _ vk.Semaphore) bool {
		d.DestroySemaphore(metadata.SemaphoreHandle{Handle: h})
		return true
	})
	leaked("pipelines", d.pipelines.Len())
	d.pipelines.Each(func(h containers.Handle, _ *VulkanPipeline) bool {
		d.DestroyPipeline(metadata.PipelineHandle{Handle: h})
		return true
	})
	leaked("pipeline layouts", d.pipelineLayouts.Len())
	d.pipelineLayouts.Each(func(h containers.Handle, _ vk.PipelineLayout) bool {
		d.DestroyPipelineLayout(metadata.PipelineLayoutHandle{Handle: h})
		return true
	})
	leaked("descriptor pools", d.pools.Len())
	d.pools.Each(func(h containers.Handle, _ vk.DescriptorPool) bool {
		d.DestroyDescriptorPool(metadata.DescriptorPoolHandle{Handle: h})
		return true
	})
	leaked("descriptor set layouts", d.setLayouts.Len())
	d.setLayouts.Each(func(h containers.Handle, _ vk.DescriptorSetLayout) bool {
		d.DestroyDescriptorSetLayout(metadata.DescriptorSetLayoutHandle{Handle: h})
		return true
	})
	leaked("shader modules", d.shaderModules.Len())
	d.shaderModules.Each(func(h containers.Handle, _ vk.ShaderModule) bool {
		d.DestroyShaderModule(metadata.ShaderModuleHandle{Handle: h})
		return true
	})
	leaked("buffers", d.buffers.Len())
	d.buffers.Each(func(h containers.Handle, _ *VulkanBuffer) bool {
		d.DestroyBuffer(metadata.BufferHandle{Handle: h})
		return true
	})
	leaked("image views", d.views.Len())
	d.views.Each(func(h containers.Handle, _ *imageView) bool {
		d.DestroyImageView(metadata.ImageViewHandle{Handle: h})
		return true
	})
	leaked("samplers", d.samplers.Len())
	d.samplers.Each(func(h containers.Handle, s vk.Sampler) bool {
		d.destroySampler(metadata.SamplerHandle{Handle: h})
		return true
	})
	leaked("swapchains", d.swapchains.Len())
	d.swapchains.Each(func(h containers.Handle, _ *VulkanSwapchain) bool {
		d.DestroySwapchain(metadata.SwapchainHandle{Handle: h})
		return true
	})
	// only texture images are left at this point
	leaked("images", d.images.Len())
	d.images.Each(func(h containers.Handle, img *VulkanImage) bool {
		img.ImageDestroy(d.context)
		d.images.Remove(h)
		return true
	})
}

// renderpass returns the cached pass for format, creating it on first use.
func (d *Device) renderpass(format vk.Format, clear bool) (*VulkanRenderpass, error) {
	key := renderpassKey{format: format, clear: clear}
	if rp, ok := d.renderpasses[key]; ok {
		return rp, nil
	}
	rp, err := RenderpassCreate(d.context, format, clear)
	if err != nil {
		return nil, err
	}
	d.renderpasses[key] = rp
	core.LogDebug("render pass created for %s (clear: %t)", FormatFromVulkan(format), clear)
	return rp, nil
}

// framebuffer returns the framebuffer of view, rebuilding it when extent changed.
func (d *Device) framebuffer(view *imageView, renderpass *VulkanRenderpass, extent metadata.Extent2D) (*VulkanFramebuffer, error) {
	if fb := view.framebuffer; fb != nil {
		if fb.Width == extent.Width && fb.Height == extent.Height {
			return fb, nil
		}
		fb.Destroy(d.context)
		view.framebuffer = nil
	}
	fb, err := FramebufferCreate(d.context, renderpass, extent.Width, extent.Height, view.handle)
	if err != nil {
		return nil, err
	}
	view.framebuffer = fb
	return fb, nil
}

func (d *Device) CreateShaderModule(code []uint32) (metadata.ShaderModuleHandle, error) {
	if len(code) == 0 {
		return metadata.ShaderModuleHandle{}, fmt.Errorf("%w: empty shader code", core.ErrDevice)
	}
	module, err := ShaderModuleCreate(d.context, code)
	if err != nil {
		return metadata.ShaderModuleHandle{}, err
	}
	return metadata.ShaderModuleHandle{Handle: d.shaderModules.Insert(module)}, nil
}

func (d *Device) DestroyShaderModule(module metadata.ShaderModuleHandle) {
	if m, ok := d.shaderModules.Remove(module.Handle); ok {
		ShaderModuleDestroy(d.context, m)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []metadata.LayoutBinding) (metadata.DescriptorSetLayoutHandle, error) {
	layout, err := DescriptorSetLayoutCreate(d.context, bindings)
	if err != nil {
		return metadata.DescriptorSetLayoutHandle{}, err
	}
	return metadata.DescriptorSetLayoutHandle{Handle: d.setLayouts.Insert(layout)}, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout metadata.DescriptorSetLayoutHandle) {
	if l, ok := d.setLayouts.Remove(layout.Handle); ok {
		DescriptorSetLayoutDestroy(d.context, l)
	}
}

func (d *Device) CreatePipelineLayout(sets []metadata.DescriptorSetLayoutHandle) (metadata.PipelineLayoutHandle, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		l, ok := d.setLayouts.Get(s.Handle)
		if !ok {
			return metadata.PipelineLayoutHandle{}, missing("descriptor set layout")
		}
		setLayouts[i] = l
	}
	layout, err := PipelineLayoutCreate(d.context, setLayouts)
	if err != nil {
		return metadata.PipelineLayoutHandle{}, err
	}
	return metadata.PipelineLayoutHandle{Handle: d.pipelineLayouts.Insert(layout)}, nil
}

func (d *Device) DestroyPipelineLayout(layout metadata.PipelineLayoutHandle) {
	if l, ok := d.pipelineLayouts.Remove(layout.Handle); ok {
		PipelineLayoutDestroy(d.context, l)
	}
}

// CreateGraphicsPipeline builds the pipeline against the clearing render pass
// of desc.ColorFormat. Viewport and scissor cover desc.Extent.
func (d *Device) CreateGraphicsPipeline(desc metadata.GraphicsPipelineDesc) (metadata.PipelineHandle, error) {
	layout, ok := d.pipelineLayouts.Get(desc.Layout.Handle)
	if !ok {
		return metadata.PipelineHandle{}, missing("pipeline layout")
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, s := range desc.Stages {
		module, ok := d.shaderModules.Get(s.Module.Handle)
		if !ok {
			return metadata.PipelineHandle{}, missing("shader module")
		}
		stages[i] = ShaderStageCreateInfo(vk.ShaderStageFlagBits(VulkanShaderStage(s.Stage)), module, s.EntryPoint)
	}

	attributes := make([]vk.VertexInputAttributeDescription, len(desc.Vertex.Attributes))
	for i, a := range desc.Vertex.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   VulkanFormat(a.Format),
			Offset:   a.Offset,
		}
	}

	renderpass, err := d.renderpass(VulkanFormat(desc.ColorFormat), true)
	if err != nil {
		return metadata.PipelineHandle{}, err
	}

	config := &VulkanPipelineConfig{
		Name:           desc.Name,
		Renderpass:     renderpass,
		Stride:         desc.Vertex.Stride,
		Attributes:     attributes,
		PipelineLayout: layout,
		Stages:         stages,
		Viewport: vk.Viewport{
			X:        0,
			Y:        0,
			Width:    float32(desc.Extent.Width),
			Height:   float32(desc.Extent.Height),
			MinDepth: 0.0,
			MaxDepth: 1.0,
		},
		Scissor: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		},
		LineWidth: desc.LineWidth,
	}
	p, err := NewGraphicsPipeline(d.context, config)
	if err != nil {
		return metadata.PipelineHandle{}, err
	}
	return metadata.PipelineHandle{Handle: d.pipelines.Insert(p)}, nil
}

func (d *Device) DestroyPipeline(pipeline metadata.PipelineHandle) {
	if p, ok := d.pipelines.Remove(pipeline.Handle); ok {
		p.Destroy(d.context)
	}
}

func (d *Device) CreateDescriptorPool(config metadata.DescriptorPoolConfig) (metadata.DescriptorPoolHandle, error) {
	pool, err := DescriptorPoolCreate(d.context, config)
	if err != nil {
		return metadata.DescriptorPoolHandle{}, err
	}
	return metadata.DescriptorPoolHandle{Handle: d.pools.Insert(pool)}, nil
}

// DestroyDescriptorPool also forgets every set allocated from the pool.
func (d *Device) DestroyDescriptorPool(pool metadata.DescriptorPoolHandle) {
	p, ok := d.pools.Remove(pool.Handle)
	if !ok {
		return
	}
	d.sets.Each(func(h containers.Handle, s *descriptorSet) bool {
		if s.pool == pool {
			d.sets.Remove(h)
		}
		return true
	})
	DescriptorPoolDestroy(d.context, p)
}

func (d *Device) AllocateDescriptorSet(pool metadata.DescriptorPoolHandle, layout metadata.DescriptorSetLayoutHandle) (metadata.DescriptorSetHandle, error) {
	p, ok := d.pools.Get(pool.Handle)
	if !ok {
		return metadata.DescriptorSetHandle{}, missing("descriptor pool")
	}
	l, ok := d.setLayouts.Get(layout.Handle)
	if !ok {
		return metadata.DescriptorSetHandle{}, missing("descriptor set layout")
	}
	set, err := DescriptorSetAllocate(d.context, p, l)
	if err != nil {
		return metadata.DescriptorSetHandle{}, err
	}
	return metadata.DescriptorSetHandle{Handle: d.sets.Insert(&descriptorSet{handle: set, pool: pool})}, nil
}

func (d *Device) FreeDescriptorSet(pool metadata.DescriptorPoolHandle, set metadata.DescriptorSetHandle) error {
	p, ok := d.pools.Get(pool.Handle)
	if !ok {
		return missing("descriptor pool")
	}
	s, ok := d.sets.Remove(set.Handle)
	if !ok {
		return missing("descriptor set")
	}
	return DescriptorSetFree(d.context, p, s.handle)
}

// UpdateDescriptorSet resolves every write before applying any of them.
func (d *Device) UpdateDescriptorSet(writes ...metadata.DescriptorWrite) error {
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := d.sets.Get(w.Set.Handle)
		if !ok {
			return missing("descriptor set")
		}
		kind, ok := VulkanDescriptorType(w.Type)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrUnsupportedDescriptorKind, w.Type)
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  kind,
		}

		switch {
		case w.Type.IsBuffer():
			buffer, ok := d.buffers.Get(w.Buffer.Handle)
			if !ok {
				return missing("buffer")
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buffer.Handle,
				Offset: 0,
				Range:  vk.DeviceSize(buffer.Size),
			}}
		case w.Type.IsImage() || w.Type == metadata.DescriptorTypeSampler:
			res, err := d.texel(w)
			if err != nil {
				return err
			}
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     res.sampler,
				ImageView:   res.view,
				ImageLayout: VulkanImageLayout(w.Layout),
			}}
		default:
			return fmt.Errorf("%w: cannot write %s bindings", core.ErrUnsupportedDescriptorKind, w.Type)
		}
		vkWrites = append(vkWrites, write)
	}
	DescriptorSetUpdate(d.context, vkWrites)
	return nil
}

// texel resolves the view and sampler of an image write. A plain sampler
// binding has no view and a sampled or storage image has no sampler.
func (d *Device) texel(w metadata.DescriptorWrite) (texelResource, error) {
	var res texelResource
	if w.Type != metadata.DescriptorTypeSampler {
		v, ok := d.views.Get(w.View.Handle)
		if !ok {
			return res, missing("image view")
		}
		res.view = v.handle
	}
	if w.Type == metadata.DescriptorTypeSampler || w.Type == metadata.DescriptorTypeCombinedImageSampler {
		s, ok := d.samplers.Get(w.Sampler.Handle)
		if !ok {
			return res, missing("sampler")
		}
		res.sampler = s
	}
	return res, nil
}

// CreateBuffer copies data into a new host visible, coherent buffer.
func (d *Device) CreateBuffer(usage metadata.BufferUsage, data []byte) (metadata.BufferHandle, error) {
	buffer, err := d.hostBuffer(VulkanBufferUsage(usage), data)
	if err != nil {
		return metadata.BufferHandle{}, err
	}
	return metadata.BufferHandle{Handle: d.buffers.Insert(buffer)}, nil
}

func (d *Device) hostBuffer(usage vk.BufferUsageFlags, data []byte) (*VulkanBuffer, error) {
	memoryFlags := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	buffer, err := BufferCreate(d.context, uint64(len(data)), usage, memoryFlags)
	if err != nil {
		return nil, err
	}
	if err := buffer.LoadData(d.context, data); err != nil {
		buffer.Destroy(d.context)
		return nil, err
	}
	return buffer, nil
}

func (d *Device) DestroyBuffer(buffer metadata.BufferHandle) {
	if b, ok := d.buffers.Remove(buffer.Handle); ok {
		b.Destroy(d.context)
	}
}

// CreateSwapchain creates a swapchain for the surface and registers its images.
func (d *Device) CreateSwapchain(desc metadata.SwapchainDesc) (metadata.Swapchain, error) {
	old := vk.NullSwapchain
	if !desc.Old.IsZero() {
		sc, ok := d.swapchains.Get(desc.Old.Handle)
		if !ok {
			return metadata.Swapchain{}, missing("swapchain")
		}
		old = sc.Handle
	}

	sc, err := createSwapchain(d.context, desc.Extent, old)
	if err != nil {
		return metadata.Swapchain{}, err
	}
	sc.imageHandles = make([]metadata.ImageHandle, len(sc.Images))
	for i, img := range sc.Images {
		sc.imageHandles[i] = metadata.ImageHandle{Handle: d.images.Insert(&VulkanImage{
			Handle: img,
			Format: sc.ImageFormat.Format,
			Width:  sc.Extent.Width,
			Height: sc.Extent.Height,
			Owned:  false,
		})}
	}

	return metadata.Swapchain{
		Handle: metadata.SwapchainHandle{Handle: d.swapchains.Insert(sc)},
		Format: FormatFromVulkan(sc.ImageFormat.Format),
		Extent: sc.Extent,
		Images: append([]metadata.ImageHandle(nil), sc.imageHandles...),
	}, nil
}

// DestroySwapchain invalidates the image handles of the swapchain as well.
func (d *Device) DestroySwapchain(swapchain metadata.SwapchainHandle) {
	sc, ok := d.swapchains.Remove(swapchain.Handle)
	if !ok {
		return
	}
	for _, img := range sc.imageHandles {
		d.images.Remove(img.Handle)
	}
	sc.imageHandles = nil
	sc.destroy(d.context)
}

// CreateImageView falls back to the image's own format when format has no
// Vulkan counterpart.
func (d *Device) CreateImageView(img metadata.ImageHandle, format metadata.Format) (metadata.ImageViewHandle, error) {
	image, ok := d.images.Get(img.Handle)
	if !ok {
		return metadata.ImageViewHandle{}, missing("image")
	}
	vkFormat := VulkanFormat(format)
	if vkFormat == vk.FormatUndefined {
		vkFormat = image.Format
	}
	view, err := ImageViewCreate(d.context, image.Handle, vkFormat)
	if err != nil {
		return metadata.ImageViewHandle{}, err
	}
	return metadata.ImageViewHandle{Handle: d.views.Insert(&imageView{handle: view, format: vkFormat})}, nil
}

func (d *Device) DestroyImageView(view metadata.ImageViewHandle) {
	v, ok := d.views.Remove(view.Handle)
	if !ok {
		return
	}
	if v.framebuffer != nil {
		v.framebuffer.Destroy(d.context)
		v.framebuffer = nil
	}
	lockPool.SafeCall(ImageManagement, func() error {
		vk.DestroyImageView(d.context.Device.LogicalDevice, v.handle, d.context.Allocator)
		return nil
	})
}

func (d *Device) CreateSemaphore() (metadata.SemaphoreHandle, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := lockPool.SafeCall(SynchronizationManagement, func() error {
		return checkResult(vk.CreateSemaphore(d.context.Device.LogicalDevice, &info, d.context.Allocator, &semaphore), "vkCreateSemaphore")
	}); err != nil {
		return metadata.SemaphoreHandle{}, err
	}
	return metadata.SemaphoreHandle{Handle: d.semaphores.Insert(semaphore)}, nil
}

func (d *Device) DestroySemaphore(semaphore metadata.SemaphoreHandle) {
	s, ok := d.semaphores.Remove(semaphore.Handle)
	if !ok {
		return
	}
	lockPool.SafeCall(SynchronizationManagement, func() error {
		vk.DestroySemaphore(d.context.Device.LogicalDevice, s, d.context.Allocator)
		return nil
	})
}

// CreateCommandPool creates a pool on the graphics family whose buffers can
// be reset one by one.
func (d *Device) CreateCommandPool() (metadata.CommandPoolHandle, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.context.Device.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := lockPool.SafeCall(CommandPoolManagement, func() error {
		return checkResult(vk.CreateCommandPool(d.context.Device.LogicalDevice, &info, d.context.Allocator, &pool), "vkCreateCommandPool")
	}); err != nil {
		return metadata.CommandPoolHandle{}, err
	}
	return metadata.CommandPoolHandle{Handle: d.commandPools.Insert(pool)}, nil
}

// DestroyCommandPool frees the buffers allocated from the pool with it.
func (d *Device) DestroyCommandPool(pool metadata.CommandPoolHandle) {
	p, ok := d.commandPools.Remove(pool.Handle)
	if !ok {
		return
	}
	d.commandBuffers.Each(func(h containers.Handle, cb *VulkanCommandBuffer) bool {
		if cb.Pool == p {
			d.commandBuffers.Remove(h)
		}
		return true
	})
	lockPool.SafeCall(CommandPoolManagement, func() error {
		vk.DestroyCommandPool(d.context.Device.LogicalDevice, p, d.context.Allocator)
		return nil
	})
}

func (d *Device) AllocateCommandBuffer(pool metadata.CommandPoolHandle) (metadata.CommandBufferHandle, error) {
	p, ok := d.commandPools.Get(pool.Handle)
	if !ok {
		return metadata.CommandBufferHandle{}, missing("command pool")
	}
	cb, err := NewVulkanCommandBuffer(d.context, p, true)
	if err != nil {
		return metadata.CommandBufferHandle{}, err
	}
	return metadata.CommandBufferHandle{Handle: d.commandBuffers.Insert(cb)}, nil
}

func (d *Device) AcquireNextImage(swapchain metadata.SwapchainHandle, signal metadata.SemaphoreHandle) (uint32, error) {
	sc, ok := d.swapchains.Get(swapchain.Handle)
	if !ok {
		return 0, missing("swapchain")
	}
	semaphore, ok := d.semaphores.Get(signal.Handle)
	if !ok {
		return 0, missing("semaphore")
	}
	return sc.acquireNextImage(d.context, semaphore)
}

func (d *Device) ResetCommandBuffer(cmd metadata.CommandBufferHandle) error {
	cb, ok := d.commandBuffers.Get(cmd.Handle)
	if !ok {
		return missing("command buffer")
	}
	return cb.Reset()
}

func (d *Device) BeginCommandBuffer(cmd metadata.CommandBufferHandle) (metadata.CommandRecorder, error) {
	cb, ok := d.commandBuffers.Get(cmd.Handle)
	if !ok {
		return nil, missing("command buffer")
	}
	if err := cb.Begin(false, false, false); err != nil {
		return nil, err
	}
	return &commandRecorder{device: d, cmd: cb}, nil
}

func (d *Device) EndCommandBuffer(cmd metadata.CommandBufferHandle) error {
	cb, ok := d.commandBuffers.Get(cmd.Handle)
	if !ok {
		return missing("command buffer")
	}
	return cb.End()
}

// Submit queues cmd on the graphics queue. The color output stage waits on
// wait, signal is raised once the commands completed.
func (d *Device) Submit(cmd metadata.CommandBufferHandle, wait, signal metadata.SemaphoreHandle) error {
	cb, ok := d.commandBuffers.Get(cmd.Handle)
	if !ok {
		return missing("command buffer")
	}
	waitSemaphore, ok := d.semaphores.Get(wait.Handle)
	if !ok {
		return missing("semaphore")
	}
	signalSemaphore, ok := d.semaphores.Get(signal.Handle)
	if !ok {
		return missing("semaphore")
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signalSemaphore},
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{waitSemaphore},
		// One frame is written to the image at a time.
		PWaitDstStageMask: []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
	}
	device := d.context.Device
	if err := lockPool.SafeQueueCall(device.GraphicsQueueIndex, func() error {
		return checkResult(vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence), "vkQueueSubmit")
	}); err != nil {
		return err
	}
	cb.UpdateSubmitted()
	return nil
}

func (d *Device) Present(swapchain metadata.SwapchainHandle, index uint32, wait metadata.SemaphoreHandle) error {
	sc, ok := d.swapchains.Get(swapchain.Handle)
	if !ok {
		return missing("swapchain")
	}
	semaphore, ok := d.semaphores.Get(wait.Handle)
	if !ok {
		return missing("semaphore")
	}
	return sc.present(d.context, semaphore, index)
}

func (d *Device) WaitIdle() error {
	return checkResult(vk.DeviceWaitIdle(d.context.Device.LogicalDevice), "vkDeviceWaitIdle")
}

// CreateTexture uploads img through a staging buffer into a device local
// R8G8B8A8 image, leaving it in shader read only layout with a view and a
// sampler.
func (d *Device) CreateTexture(name string, img *image.RGBA) (*metadata.Texture, error) {
	bounds := img.Bounds()
	width, height := uint32(bounds.Dx()), uint32(bounds.Dy())
	if width == 0 || height == 0 {
		err := fmt.Errorf("%w: texture `%s` has no pixels", core.ErrDevice, name)
		core.LogError("%s", err)
		return nil, err
	}

	staging, err := d.hostBuffer(vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), packPixels(img))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(d.context)

	format := vk.FormatR8g8b8a8Unorm
	texture, err := ImageCreate(
		d.context,
		width, height,
		format,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)|vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	)
	if err != nil {
		return nil, err
	}

	if err := d.upload(staging, texture); err != nil {
		texture.ImageDestroy(d.context)
		return nil, err
	}

	view, err := ImageViewCreate(d.context, texture.Handle, format)
	if err != nil {
		texture.ImageDestroy(d.context)
		return nil, err
	}
	sampler, err := SamplerCreate(d.context)
	if err != nil {
		lockPool.SafeCall(ImageManagement, func() error {
			vk.DestroyImageView(d.context.Device.LogicalDevice, view, d.context.Allocator)
			return nil
		})
		texture.ImageDestroy(d.context)
		return nil, err
	}

	core.LogDebug("texture `%s` uploaded (%dx%d)", name, width, height)
	return &metadata.Texture{
		ID:      uuid.New(),
		Name:    name,
		Width:   width,
		Height:  height,
		Image:   metadata.ImageHandle{Handle: d.images.Insert(texture)},
		View:    metadata.ImageViewHandle{Handle: d.views.Insert(&imageView{handle: view, format: format})},
		Sampler: metadata.SamplerHandle{Handle: d.samplers.Insert(sampler)},
	}, nil
}

// upload copies staging into texture with a single use command buffer.
func (d *Device) upload(staging *VulkanBuffer, texture *VulkanImage) error {
	device := d.context.Device
	cb, err := AllocateAndBeginSingleUse(d.context, device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	if err := recordImageBarrier(cb.Handle, texture.Handle, metadata.ImageLayoutUndefined, metadata.ImageLayoutTransferDst); err != nil {
		cb.Free(d.context)
		return err
	}

	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{
			Width:  texture.Width,
			Height: texture.Height,
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(cb.Handle, staging.Handle, texture.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

	if err := recordImageBarrier(cb.Handle, texture.Handle, metadata.ImageLayoutTransferDst, metadata.ImageLayoutShaderReadOnly); err != nil {
		cb.Free(d.context)
		return err
	}
	return cb.EndSingleUse(d.context, device.GraphicsQueueIndex, device.GraphicsQueue)
}

// packPixels returns the pixels of img without row padding.
func packPixels(img *image.RGBA) []byte {
	bounds := img.Bounds()
	rowBytes := bounds.Dx() * 4
	if img.Stride == rowBytes && len(img.Pix) == rowBytes*bounds.Dy() {
		return img.Pix
	}
	packed := make([]byte, 0, rowBytes*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		start := img.PixOffset(bounds.Min.X, y)
		packed = append(packed, img.Pix[start:start+rowBytes]...)
	}
	return packed
}

func (d *Device) DestroyTexture(texture *metadata.Texture) {
	if texture == nil {
		return
	}
	d.DestroyImageView(texture.View)
	d.destroySampler(texture.Sampler)
	if img, ok := d.images.Remove(texture.Image.Handle); ok {
		img.ImageDestroy(d.context)
	}
}

func (d *Device) destroySampler(sampler metadata.SamplerHandle) {
	s, ok := d.samplers.Remove(sampler.Handle)
	if !ok {
		return
	}
	lockPool.SafeCall(SamplerManagement, func() error {
		vk.DestroySampler(d.context.Device.LogicalDevice, s, d.context.Allocator)
		return nil
	})
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportInformationBit) != 0:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
