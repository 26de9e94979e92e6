package metadata

// VertexAttribute is one reflected vertex shader input.
type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

// VertexLayout describes a single interleaved vertex binding.
type VertexLayout struct {
	Attributes []VertexAttribute
	Stride     uint32
}

type ShaderStageDesc struct {
	Stage      ShaderStage
	Module     ShaderModuleHandle
	EntryPoint string
}

// GraphicsPipelineDesc carries everything the device needs to build a
// pipeline. Fixed function state not listed here is constant: triangle list,
// no depth or stencil, no culling, fill mode, straight alpha blending.
type GraphicsPipelineDesc struct {
	Name        string
	Stages      []ShaderStageDesc
	Vertex      VertexLayout
	Layout      PipelineLayoutHandle
	ColorFormat Format
	Extent      Extent2D
	LineWidth   float32
}
