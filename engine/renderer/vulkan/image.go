package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/magma/engine/core"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	Format vk.Format
	Width  uint32
	Height uint32
	// Swapchain images are owned by their swapchain and never destroyed here.
	Owned bool
}

// ImageCreate creates a 2D image with one mip level and binds fresh memory to it.
func ImageCreate(
	context *VulkanContext,
	width, height uint32,
	format vk.Format,
	tiling vk.ImageTiling,
	usage vk.ImageUsageFlags,
	memoryFlags vk.MemoryPropertyFlags,
) (*VulkanImage, error) {
	device := context.Device.LogicalDevice
	outImage := &VulkanImage{
		Format: format,
		Width:  width,
		Height: height,
		Owned:  true,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var handle vk.Image
	if err := lockPool.SafeCall(ImageManagement, func() error {
		return checkResult(vk.CreateImage(device, &imageCreateInfo, context.Allocator, &handle), "vkCreateImage")
	}); err != nil {
		return nil, err
	}
	outImage.Handle = handle

	// Query memory requirements.
	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, outImage.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, uint32(memoryFlags))
	if memoryType == -1 {
		outImage.ImageDestroy(context)
		err := fmt.Errorf("%w: required memory type not found for %dx%d image", core.ErrDevice, width, height)
		core.LogError("%s", err)
		return nil, err
	}

	// Allocate memory
	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if err := lockPool.SafeCall(MemoryManagement, func() error {
		return checkResult(vk.AllocateMemory(device, &memoryAllocateInfo, context.Allocator, &memory), "vkAllocateMemory")
	}); err != nil {
		outImage.ImageDestroy(context)
		return nil, err
	}
	outImage.Memory = memory

	// Bind the memory
	if err := checkResult(vk.BindImageMemory(device, outImage.Handle, outImage.Memory, 0), "vkBindImageMemory"); err != nil {
		outImage.ImageDestroy(context)
		return nil, err
	}
	return outImage, nil
}

func (vi *VulkanImage) ImageDestroy(context *VulkanContext) {
	if !vi.Owned {
		return
	}
	device := context.Device.LogicalDevice
	lockPool.SafeCall(ImageManagement, func() error {
		if vi.Handle != vk.NullImage {
			vk.DestroyImage(device, vi.Handle, context.Allocator)
			vi.Handle = vk.NullImage
		}
		return nil
	})
	lockPool.SafeCall(MemoryManagement, func() error {
		if vi.Memory != vk.NullDeviceMemory {
			vk.FreeMemory(device, vi.Memory, context.Allocator)
			vi.Memory = vk.NullDeviceMemory
		}
		return nil
	})
}

func ImageViewCreate(context *VulkanContext, image vk.Image, format vk.Format) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if err := lockPool.SafeCall(ImageManagement, func() error {
		return checkResult(vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view), "vkCreateImageView")
	}); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

// SamplerCreate creates the linear, clamp to edge sampler textures use.
func SamplerCreate(context *VulkanContext) (vk.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	if context.Device.SamplerAnisotropy {
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = context.Device.Properties.Limits.MaxSamplerAnisotropy
	}

	var sampler vk.Sampler
	if err := lockPool.SafeCall(SamplerManagement, func() error {
		return checkResult(vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &sampler), "vkCreateSampler")
	}); err != nil {
		return vk.NullSampler, err
	}
	return sampler, nil
}
