package metadata

import (
	"fmt"
	"strings"
)

/** @brief Shader stages available in the system. */
type ShaderStage uint32

const (
	ShaderStageVertex   ShaderStage = 0x00000001
	ShaderStageFragment ShaderStage = 0x00000010
)

func (s ShaderStage) String() string {
	var parts []string
	if s&ShaderStageVertex != 0 {
		parts = append(parts, "vertex")
	}
	if s&ShaderStageFragment != 0 {
		parts = append(parts, "fragment")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseShaderStage reads the stage names used in pipeline configuration files.
func ParseShaderStage(s string) (ShaderStage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vertex", "vert":
		return ShaderStageVertex, nil
	case "fragment", "frag":
		return ShaderStageFragment, nil
	}
	return 0, fmt.Errorf("unknown shader stage `%s`", s)
}

/** @brief Resource kinds a descriptor binding can hold. */
type DescriptorType int

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeUniformTexelBuffer
	DescriptorTypeStorageTexelBuffer
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
	DescriptorTypeUniformBufferDynamic
	DescriptorTypeStorageBufferDynamic
	DescriptorTypeInputAttachment
)

var descriptorTypeNames = [...]string{
	"sampler",
	"combined_image_sampler",
	"sampled_image",
	"storage_image",
	"uniform_texel_buffer",
	"storage_texel_buffer",
	"uniform_buffer",
	"storage_buffer",
	"uniform_buffer_dynamic",
	"storage_buffer_dynamic",
	"input_attachment",
}

func (d DescriptorType) String() string {
	if d >= 0 && int(d) < len(descriptorTypeNames) {
		return descriptorTypeNames[d]
	}
	return fmt.Sprintf("DescriptorType(%d)", int(d))
}

// IsBuffer reports whether the binding is written with a buffer range.
func (d DescriptorType) IsBuffer() bool {
	switch d {
	case DescriptorTypeUniformBuffer, DescriptorTypeStorageBuffer,
		DescriptorTypeUniformBufferDynamic, DescriptorTypeStorageBufferDynamic:
		return true
	}
	return false
}

// IsImage reports whether the binding is written with an image view and sampler.
func (d DescriptorType) IsImage() bool {
	switch d {
	case DescriptorTypeCombinedImageSampler, DescriptorTypeSampledImage, DescriptorTypeStorageImage:
		return true
	}
	return false
}

// LayoutBinding is one entry of a descriptor set layout.
type LayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// MaxDescriptorSets bounds the set numbers a pipeline may use. Devices
// guarantee at least 4 bound sets and common desktop parts stop at 32.
const MaxDescriptorSets = 32

// BindingGroup holds the bindings of one descriptor set, sorted by binding.
type BindingGroup struct {
	Set      uint32
	Bindings []LayoutBinding
}

// Find returns the binding with the given index.
func (g BindingGroup) Find(binding uint32) (LayoutBinding, bool) {
	for _, b := range g.Bindings {
		if b.Binding == binding {
			return b, true
		}
	}
	return LayoutBinding{}, false
}

// DescriptorPoolConfig bounds the shared descriptor pool.
type DescriptorPoolConfig struct {
	MaxSets uint32
	Sizes   map[DescriptorType]uint32
}

// DescriptorWrite updates one binding of a descriptor set. Buffer is used for
// buffer kinds, View and Sampler for image kinds.
type DescriptorWrite struct {
	Set     DescriptorSetHandle
	Binding uint32
	Type    DescriptorType
	Buffer  BufferHandle
	View    ImageViewHandle
	Sampler SamplerHandle
	Layout  ImageLayout
}
