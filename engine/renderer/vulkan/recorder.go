package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

// recordImageBarrier records the layout change of a whole single mip color image.
func recordImageBarrier(commandBuffer vk.CommandBuffer, image vk.Image, from, to metadata.ImageLayout) error {
	transition, err := metadata.TransitionFor(from, to)
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	masks := transitionMasks[transition]

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           VulkanImageLayout(from),
		NewLayout:           VulkanImageLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SrcAccessMask:       masks.srcAccess,
		DstAccessMask:       masks.dstAccess,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	vk.CmdPipelineBarrier(commandBuffer, masks.srcStage, masks.dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return nil
}

// commandRecorder translates recorder calls into commands of one command
// buffer. Unknown handles are logged and the command is dropped.
type commandRecorder struct {
	device *Device
	cmd    *VulkanCommandBuffer
	// the pass opened by BeginRendering, nil outside of it
	renderpass *VulkanRenderpass
}

func (r *commandRecorder) ImageBarrier(image metadata.ImageHandle, from, to metadata.ImageLayout) error {
	img, ok := r.device.images.Get(image.Handle)
	if !ok {
		return missing("image")
	}
	return recordImageBarrier(r.cmd.Handle, img.Handle, from, to)
}

func (r *commandRecorder) BeginRendering(view metadata.ImageViewHandle, extent metadata.Extent2D, clear *metadata.Color) error {
	v, ok := r.device.views.Get(view.Handle)
	if !ok {
		return missing("image view")
	}
	renderpass, err := r.device.renderpass(v.format, clear != nil)
	if err != nil {
		return err
	}
	framebuffer, err := r.device.framebuffer(v, renderpass, extent)
	if err != nil {
		return err
	}

	var color metadata.Color
	if clear != nil {
		color = *clear
	}
	renderpass.RenderpassBegin(r.cmd, framebuffer, color)
	r.renderpass = renderpass
	return nil
}

func (r *commandRecorder) EndRendering() {
	if r.renderpass == nil {
		return
	}
	r.renderpass.RenderpassEnd(r.cmd)
	r.renderpass = nil
}

func (r *commandRecorder) BindPipeline(pipeline metadata.PipelineHandle) {
	p, ok := r.device.pipelines.Get(pipeline.Handle)
	if !ok {
		core.LogError("cannot bind pipeline: %s", missing("pipeline"))
		return
	}
	p.Bind(r.cmd, vk.PipelineBindPointGraphics)
}

func (r *commandRecorder) BindDescriptorSets(layout metadata.PipelineLayoutHandle, firstSet uint32, sets ...metadata.DescriptorSetHandle) {
	pipelineLayout, ok := r.device.pipelineLayouts.Get(layout.Handle)
	if !ok {
		core.LogError("cannot bind descriptor sets: %s", missing("pipeline layout"))
		return
	}
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		set, ok := r.device.sets.Get(s.Handle)
		if !ok {
			core.LogError("cannot bind descriptor sets: %s", missing("descriptor set"))
			return
		}
		handles[i] = set.handle
	}
	if len(handles) == 0 {
		return
	}
	vk.CmdBindDescriptorSets(r.cmd.Handle, vk.PipelineBindPointGraphics, pipelineLayout, firstSet, uint32(len(handles)), handles, 0, nil)
}

func (r *commandRecorder) BindVertexBuffer(buffer metadata.BufferHandle) {
	b, ok := r.device.buffers.Get(buffer.Handle)
	if !ok {
		core.LogError("cannot bind vertex buffer: %s", missing("buffer"))
		return
	}
	vk.CmdBindVertexBuffers(r.cmd.Handle, 0, 1, []vk.Buffer{b.Handle}, []vk.DeviceSize{0})
}

func (r *commandRecorder) BindIndexBuffer(buffer metadata.BufferHandle, indexType metadata.IndexType) {
	b, ok := r.device.buffers.Get(buffer.Handle)
	if !ok {
		core.LogError("cannot bind index buffer: %s", missing("buffer"))
		return
	}
	vk.CmdBindIndexBuffer(r.cmd.Handle, b.Handle, 0, VulkanIndexType(indexType))
}

func (r *commandRecorder) Draw(vertexCount uint32) {
	vk.CmdDraw(r.cmd.Handle, vertexCount, 1, 0, 0)
}

func (r *commandRecorder) DrawIndexed(indexCount uint32) {
	vk.CmdDrawIndexed(r.cmd.Handle, indexCount, 1, 0, 0, 0)
}
