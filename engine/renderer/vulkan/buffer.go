package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/magma/engine/core"
)

/**
 * @brief A buffer and the memory bound to it.
 */
type VulkanBuffer struct {
	/** @brief The internal buffer handle. */
	Handle vk.Buffer
	/** @brief The memory backing the buffer. */
	Memory vk.DeviceMemory
	/** @brief The buffer size in bytes. */
	Size uint64
}

func BufferCreate(context *VulkanContext, size uint64, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	if size == 0 {
		err := fmt.Errorf("%w: zero sized buffer", core.ErrDevice)
		core.LogError("%s", err)
		return nil, err
	}
	device := context.Device.LogicalDevice
	buffer := &VulkanBuffer{Size: size}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var handle vk.Buffer
	if err := lockPool.SafeCall(BufferManagement, func() error {
		return checkResult(vk.CreateBuffer(device, &bufferInfo, context.Allocator, &handle), "vkCreateBuffer")
	}); err != nil {
		return nil, err
	}
	buffer.Handle = handle

	// Gather memory requirements.
	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer.Handle, &requirements)
	requirements.Deref()

	memoryIndex := context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(memoryFlags))
	if memoryIndex == -1 {
		buffer.Destroy(context)
		err := fmt.Errorf("%w: no memory type for buffer of %d bytes", core.ErrDevice, size)
		core.LogError("%s", err)
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if err := lockPool.SafeCall(MemoryManagement, func() error {
		return checkResult(vk.AllocateMemory(device, &allocateInfo, context.Allocator, &memory), "vkAllocateMemory")
	}); err != nil {
		buffer.Destroy(context)
		return nil, err
	}
	buffer.Memory = memory

	if err := checkResult(vk.BindBufferMemory(device, buffer.Handle, buffer.Memory, 0), "vkBindBufferMemory"); err != nil {
		buffer.Destroy(context)
		return nil, err
	}
	return buffer, nil
}

// LoadData copies data to the start of a host visible buffer.
func (vb *VulkanBuffer) LoadData(context *VulkanContext, data []byte) error {
	if uint64(len(data)) > vb.Size {
		err := fmt.Errorf("%w: %d bytes do not fit a buffer of %d", core.ErrDevice, len(data), vb.Size)
		core.LogError("%s", err)
		return err
	}
	var mapped unsafe.Pointer
	if err := checkResult(vk.MapMemory(context.Device.LogicalDevice, vb.Memory, 0, vk.DeviceSize(len(data)), 0, &mapped), "vkMapMemory"); err != nil {
		return err
	}
	copy(unsafe.Slice((*byte)(mapped), len(data)), data)
	vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
	return nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	lockPool.SafeCall(BufferManagement, func() error {
		if vb.Handle != vk.NullBuffer {
			vk.DestroyBuffer(device, vb.Handle, context.Allocator)
			vb.Handle = vk.NullBuffer
		}
		return nil
	})
	lockPool.SafeCall(MemoryManagement, func() error {
		if vb.Memory != vk.NullDeviceMemory {
			vk.FreeMemory(device, vb.Memory, context.Allocator)
			vb.Memory = vk.NullDeviceMemory
		}
		return nil
	})
	vb.Size = 0
}
