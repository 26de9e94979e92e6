package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

var formats = map[metadata.Format]vk.Format{
	metadata.FormatUndefined:          vk.FormatUndefined,
	metadata.FormatR32Uint:            vk.FormatR32Uint,
	metadata.FormatR32Sint:            vk.FormatR32Sint,
	metadata.FormatR32Sfloat:          vk.FormatR32Sfloat,
	metadata.FormatR32G32Uint:         vk.FormatR32g32Uint,
	metadata.FormatR32G32Sint:         vk.FormatR32g32Sint,
	metadata.FormatR32G32Sfloat:       vk.FormatR32g32Sfloat,
	metadata.FormatR32G32B32Uint:      vk.FormatR32g32b32Uint,
	metadata.FormatR32G32B32Sint:      vk.FormatR32g32b32Sint,
	metadata.FormatR32G32B32Sfloat:    vk.FormatR32g32b32Sfloat,
	metadata.FormatR32G32B32A32Uint:   vk.FormatR32g32b32a32Uint,
	metadata.FormatR32G32B32A32Sint:   vk.FormatR32g32b32a32Sint,
	metadata.FormatR32G32B32A32Sfloat: vk.FormatR32g32b32a32Sfloat,
	metadata.FormatB8G8R8A8Unorm:      vk.FormatB8g8r8a8Unorm,
	metadata.FormatB8G8R8A8Srgb:       vk.FormatB8g8r8a8Srgb,
	metadata.FormatR8G8B8A8Unorm:      vk.FormatR8g8b8a8Unorm,
	metadata.FormatR8G8B8A8Srgb:       vk.FormatR8g8b8a8Srgb,
}

func VulkanFormat(f metadata.Format) vk.Format {
	if v, ok := formats[f]; ok {
		return v
	}
	return vk.FormatUndefined
}

// FormatFromVulkan returns FormatUndefined for formats the renderer does not use.
func FormatFromVulkan(f vk.Format) metadata.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return metadata.FormatUndefined
}

func VulkanShaderStage(s metadata.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	if s&metadata.ShaderStageVertex != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if s&metadata.ShaderStageFragment != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return flags
}

var descriptorTypes = [...]vk.DescriptorType{
	metadata.DescriptorTypeSampler:              vk.DescriptorTypeSampler,
	metadata.DescriptorTypeCombinedImageSampler: vk.DescriptorTypeCombinedImageSampler,
	metadata.DescriptorTypeSampledImage:         vk.DescriptorTypeSampledImage,
	metadata.DescriptorTypeStorageImage:         vk.DescriptorTypeStorageImage,
	metadata.DescriptorTypeUniformTexelBuffer:   vk.DescriptorTypeUniformTexelBuffer,
	metadata.DescriptorTypeStorageTexelBuffer:   vk.DescriptorTypeStorageTexelBuffer,
	metadata.DescriptorTypeUniformBuffer:        vk.DescriptorTypeUniformBuffer,
	metadata.DescriptorTypeStorageBuffer:        vk.DescriptorTypeStorageBuffer,
	metadata.DescriptorTypeUniformBufferDynamic: vk.DescriptorTypeUniformBufferDynamic,
	metadata.DescriptorTypeStorageBufferDynamic: vk.DescriptorTypeStorageBufferDynamic,
	metadata.DescriptorTypeInputAttachment:      vk.DescriptorTypeInputAttachment,
}

func VulkanDescriptorType(t metadata.DescriptorType) (vk.DescriptorType, bool) {
	if t < 0 || int(t) >= len(descriptorTypes) {
		return 0, false
	}
	return descriptorTypes[t], true
}

var imageLayouts = [...]vk.ImageLayout{
	metadata.ImageLayoutUndefined:       vk.ImageLayoutUndefined,
	metadata.ImageLayoutTransferDst:     vk.ImageLayoutTransferDstOptimal,
	metadata.ImageLayoutColorAttachment: vk.ImageLayoutColorAttachmentOptimal,
	metadata.ImageLayoutShaderReadOnly:  vk.ImageLayoutShaderReadOnlyOptimal,
	metadata.ImageLayoutPresentSrc:      vk.ImageLayoutPresentSrc,
}

func VulkanImageLayout(l metadata.ImageLayout) vk.ImageLayout {
	if l < 0 || int(l) >= len(imageLayouts) {
		return vk.ImageLayoutUndefined
	}
	return imageLayouts[l]
}

func VulkanIndexType(t metadata.IndexType) vk.IndexType {
	if t == metadata.IndexTypeUint32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

var bufferUsages = map[metadata.BufferUsage]vk.BufferUsageFlagBits{
	metadata.BufferUsageVertex:  vk.BufferUsageVertexBufferBit,
	metadata.BufferUsageIndex:   vk.BufferUsageIndexBufferBit,
	metadata.BufferUsageUniform: vk.BufferUsageUniformBufferBit,
	metadata.BufferUsageStaging: vk.BufferUsageTransferSrcBit,
}

func VulkanBufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	return vk.BufferUsageFlags(bufferUsages[u])
}

// barrierMasks holds the access masks and stages of one supported transition.
type barrierMasks struct {
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
}

var transitionMasks = map[metadata.Transition]barrierMasks{
	metadata.TransitionUndefinedToTransferDst: {
		dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	},
	// The source stage matches the stage the acquire semaphore is waited on.
	metadata.TransitionUndefinedToColorAttachment: {
		dstAccess: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
	},
	metadata.TransitionTransferDstToShaderReadOnly: {
		srcAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
	},
	metadata.TransitionColorAttachmentToPresentSrc: {
		srcAccess: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
	},
}

func surfaceCapabilities(caps vk.SurfaceCapabilities) metadata.SurfaceCapabilities {
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return metadata.SurfaceCapabilities{
		CurrentExtent:  metadata.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinImageExtent: metadata.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxImageExtent: metadata.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
	}
}
