package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/magma/engine/core"
	emath "github.com/spaghettifunk/magma/engine/math"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Extent      metadata.Extent2D
	Images      []vk.Image

	// Handles of Images, owned by the swapchain.
	imageHandles []metadata.ImageHandle
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (VulkanSwapchainSupportInfo, error) {
	var supportInfo VulkanSwapchainSupportInfo
	// Surface capabilities
	if err := checkResult(vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities), "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return supportInfo, err
	}
	supportInfo.Capabilities.Deref()

	// Surface formats
	var formatCount uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return supportInfo, err
	}
	if formatCount != 0 {
		supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
		if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
			return supportInfo, err
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	// Present modes
	var presentModeCount uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return supportInfo, err
	}
	if presentModeCount != 0 {
		supportInfo.PresentModes = make([]vk.PresentMode, presentModeCount)
		if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, supportInfo.PresentModes), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
			return supportInfo, err
		}
	}
	return supportInfo, nil
}

// chooseSurfaceFormat prefers B8G8R8A8 unorm in the sRGB color space and
// falls back to the first format offered.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

func choosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	for _, mode := range modes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}
	// FIFO is always available.
	return vk.PresentModeFifo
}

// chooseExtent uses the surface's current extent when it reports one and
// otherwise clamps requested into the allowed range.
func chooseExtent(caps metadata.SurfaceCapabilities, requested metadata.Extent2D) metadata.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return metadata.Extent2D{
		Width:  emath.Clamp(requested.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: emath.Clamp(requested.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// chooseImageCount asks for one image more than the minimum, capped at the
// maximum when there is one.
func chooseImageCount(caps metadata.SurfaceCapabilities) uint32 {
	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}
	return imageCount
}

func createSwapchain(context *VulkanContext, requested metadata.Extent2D, old vk.Swapchain) (*VulkanSwapchain, error) {
	device := context.Device
	support, err := DeviceQuerySwapchainSupport(device.PhysicalDevice, context.Surface)
	if err != nil {
		return nil, err
	}
	if len(support.Formats) == 0 {
		err := fmt.Errorf("%w: surface offers no formats", core.ErrDevice)
		core.LogError("%s", err)
		return nil, err
	}

	caps := surfaceCapabilities(support.Capabilities)
	swapchain := &VulkanSwapchain{
		ImageFormat: chooseSurfaceFormat(support.Formats),
		Extent:      chooseExtent(caps, requested),
	}
	presentMode := choosePresentMode(support.PresentModes)
	imageCount := chooseImageCount(caps)

	// Swapchain create info
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         context.Surface,
		MinImageCount:   imageCount,
		ImageFormat:     swapchain.ImageFormat.Format,
		ImageColorSpace: swapchain.ImageFormat.ColorSpace,
		ImageExtent: vk.Extent2D{
			Width:  swapchain.Extent.Width,
			Height: swapchain.Extent.Height,
		},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	// Setup the queue family indices
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{device.GraphicsQueueIndex, device.PresentQueueIndex}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchainHandle vk.Swapchain
	if err := lockPool.SafeCall(SwapchainManagement, func() error {
		return checkResult(vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle), "vkCreateSwapchain")
	}); err != nil {
		return nil, err
	}
	swapchain.Handle = swapchainHandle

	// Images
	var count uint32
	if err := checkResult(vk.GetSwapchainImages(device.LogicalDevice, swapchain.Handle, &count, nil), "vkGetSwapchainImages"); err != nil {
		swapchain.destroy(context)
		return nil, err
	}
	swapchain.Images = make([]vk.Image, count)
	if err := checkResult(vk.GetSwapchainImages(device.LogicalDevice, swapchain.Handle, &count, swapchain.Images), "vkGetSwapchainImages"); err != nil {
		swapchain.destroy(context)
		return nil, err
	}

	core.LogInfo("Swapchain created successfully (%s, %d images, %s).", swapchain.Extent, count, FormatFromVulkan(swapchain.ImageFormat.Format))
	return swapchain, nil
}

// destroy releases the swapchain. The images belong to it and go with it.
func (vs *VulkanSwapchain) destroy(context *VulkanContext) {
	if vs.Handle == vk.NullSwapchain {
		return
	}
	lockPool.SafeCall(SwapchainManagement, func() error {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		return nil
	})
	vs.Handle = vk.NullSwapchain
	vs.Images = nil
}

// acquireNextImage reports a stale swapchain with core.ErrSwapchainOutOfDate.
// A suboptimal swapchain still delivers an image.
func (vs *VulkanSwapchain) acquireNextImage(context *VulkanContext, imageAvailable vk.Semaphore) (uint32, error) {
	var index uint32
	result := vk.AcquireNextImage(context.Device.LogicalDevice, vs.Handle, VULKAN_ACQUIRE_TIMEOUT, imageAvailable, vk.NullFence, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
		return index, nil
	case vk.ErrorOutOfDate:
		return 0, core.ErrSwapchainOutOfDate
	}
	return 0, checkResult(result, "vkAcquireNextImage")
}

// present gives the image back to the swapchain. Suboptimal counts as presented.
func (vs *VulkanSwapchain) present(context *VulkanContext, renderComplete vk.Semaphore, index uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderComplete},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{index},
	}

	var result vk.Result
	lockPool.SafeQueueCall(context.Device.PresentQueueIndex, func() error {
		result = vk.QueuePresent(context.Device.PresentQueue, &presentInfo)
		return nil
	})
	switch result {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.ErrorOutOfDate:
		return core.ErrSwapchainOutOfDate
	}
	return checkResult(result, "vkQueuePresent")
}
