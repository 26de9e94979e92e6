package vulkan

import (
	vk "github.com/goki/vulkan"
)

// ShaderModuleCreate wraps SPIR-V words in a shader module.
func ShaderModuleCreate(context *VulkanContext, code []uint32) (vk.ShaderModule, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType: vk.StructureTypeShaderModuleCreateInfo,
		// The size is in bytes.
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}

	var module vk.ShaderModule
	if err := lockPool.SafeCall(ShaderManagement, func() error {
		return checkResult(vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &module), "vkCreateShaderModule")
	}); err != nil {
		return vk.NullShaderModule, err
	}
	return module, nil
}

func ShaderModuleDestroy(context *VulkanContext, module vk.ShaderModule) {
	lockPool.SafeCall(ShaderManagement, func() error {
		vk.DestroyShaderModule(context.Device.LogicalDevice, module, context.Allocator)
		return nil
	})
}

/**
 * @brief Builds the pipeline stage info of one module. An empty entry point
 * means "main".
 */
func ShaderStageCreateInfo(stage vk.ShaderStageFlagBits, module vk.ShaderModule, entryPoint string) vk.PipelineShaderStageCreateInfo {
	if entryPoint == "" {
		entryPoint = VULKAN_DEFAULT_ENTRY_POINT
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: module,
		PName:  VulkanSafeString(entryPoint),
	}
}
