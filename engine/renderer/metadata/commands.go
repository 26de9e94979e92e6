package metadata

// CommandRecorder records commands into one command buffer.
type CommandRecorder interface {
	// ImageBarrier transitions image between layouts. Unsupported pairs fail
	// with core.ErrUnsupportedTransition.
	ImageBarrier(image ImageHandle, from, to ImageLayout) error
	// BeginRendering starts rendering into view. A nil clear keeps the
	// previous contents.
	BeginRendering(view ImageViewHandle, extent Extent2D, clear *Color) error
	EndRendering()
	BindPipeline(pipeline PipelineHandle)
	BindDescriptorSets(layout PipelineLayoutHandle, firstSet uint32, sets ...DescriptorSetHandle)
	BindVertexBuffer(buffer BufferHandle)
	BindIndexBuffer(buffer BufferHandle, indexType IndexType)
	Draw(vertexCount uint32)
	DrawIndexed(indexCount uint32)
}
