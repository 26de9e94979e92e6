package vulkan

import (
	vk "github.com/goki/vulkan"
)

// VulkanFramebuffer wraps a single image view. It is created the first time
// the view is rendered to and lives as long as the view.
type VulkanFramebuffer struct {
	Handle     vk.Framebuffer
	Attachment vk.ImageView
	Width      uint32
	Height     uint32
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width uint32, height uint32, attachment vk.ImageView) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		Attachment: attachment,
		Width:      width,
		Height:     height,
	}

	// Creation info
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: 1,
		PAttachments:    []vk.ImageView{attachment},
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if err := lockPool.SafeCall(RenderpassManagement, func() error {
		return checkResult(vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &pFramebuffer), "vkCreateFramebuffer")
	}); err != nil {
		return nil, err
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != vk.NullFramebuffer {
		lockPool.SafeCall(RenderpassManagement, func() error {
			vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
			return nil
		})
	}
	vfb.Handle = vk.NullFramebuffer
	vfb.Attachment = vk.NullImageView
	vfb.Width = 0
	vfb.Height = 0
}
