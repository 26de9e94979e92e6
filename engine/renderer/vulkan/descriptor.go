package vulkan

import (
	"fmt"
	"sort"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

func DescriptorSetLayoutCreate(context *VulkanContext, bindings []metadata.LayoutBinding) (vk.DescriptorSetLayout, error) {
	if uint32(len(bindings)) > VULKAN_SHADER_MAX_BINDINGS {
		err := fmt.Errorf("%w: cannot have more than %d bindings in a set, got %d", core.ErrDevice, VULKAN_SHADER_MAX_BINDINGS, len(bindings))
		core.LogError("%s", err)
		return vk.NullDescriptorSetLayout, err
	}

	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		kind, ok := VulkanDescriptorType(b.Type)
		if !ok {
			return vk.NullDescriptorSetLayout, fmt.Errorf("%w: %s", core.ErrUnsupportedDescriptorKind, b.Type)
		}
		count := b.Count
		if count == 0 {
			count = 1
		}
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  kind,
			DescriptorCount: count,
			StageFlags:      VulkanShaderStage(b.Stages),
		}
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}

	var layout vk.DescriptorSetLayout
	if err := lockPool.SafeCall(ResourceManagement, func() error {
		return checkResult(vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout), "vkCreateDescriptorSetLayout")
	}); err != nil {
		return vk.NullDescriptorSetLayout, err
	}
	return layout, nil
}

func DescriptorSetLayoutDestroy(context *VulkanContext, layout vk.DescriptorSetLayout) {
	lockPool.SafeCall(ResourceManagement, func() error {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, layout, context.Allocator)
		return nil
	})
}

// DescriptorPoolCreate creates a pool whose sets can be freed one by one.
func DescriptorPoolCreate(context *VulkanContext, config metadata.DescriptorPoolConfig) (vk.DescriptorPool, error) {
	kinds := make([]metadata.DescriptorType, 0, len(config.Sizes))
	for kind := range config.Sizes {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var poolSizes []vk.DescriptorPoolSize
	for _, kind := range kinds {
		count := config.Sizes[kind]
		if count == 0 {
			continue
		}
		vkKind, ok := VulkanDescriptorType(kind)
		if !ok {
			return vk.NullDescriptorPool, fmt.Errorf("%w: %s", core.ErrUnsupportedDescriptorKind, kind)
		}
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vkKind,
			DescriptorCount: count,
		})
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       config.MaxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	if err := lockPool.SafeCall(ResourceManagement, func() error {
		return checkResult(vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool), "vkCreateDescriptorPool")
	}); err != nil {
		return vk.NullDescriptorPool, err
	}
	return pool, nil
}

func DescriptorPoolDestroy(context *VulkanContext, pool vk.DescriptorPool) {
	lockPool.SafeCall(ResourceManagement, func() error {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, pool, context.Allocator)
		return nil
	})
}

func DescriptorSetAllocate(context *VulkanContext, pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}

	sets := make([]vk.DescriptorSet, 1)
	if err := lockPool.SafeCall(ResourceManagement, func() error {
		return checkResult(vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocateInfo, &sets[0]), "vkAllocateDescriptorSets")
	}); err != nil {
		return vk.NullDescriptorSet, err
	}
	return sets[0], nil
}

func DescriptorSetFree(context *VulkanContext, pool vk.DescriptorPool, set vk.DescriptorSet) error {
	return lockPool.SafeCall(ResourceManagement, func() error {
		return checkResult(vk.FreeDescriptorSets(context.Device.LogicalDevice, pool, 1, &set), "vkFreeDescriptorSets")
	})
}

// DescriptorSetUpdate applies writes in a single call.
func DescriptorSetUpdate(context *VulkanContext, writes []vk.WriteDescriptorSet) {
	if len(writes) == 0 {
		return
	}
	lockPool.SafeCall(ResourceManagement, func() error {
		vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
		return nil
	})
}
