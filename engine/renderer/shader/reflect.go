package shader

import (
	"fmt"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/spirv"
)

var scalarKinds = map[spirv.NumericKind]metadata.ScalarKind{
	spirv.NumericFloat: metadata.ScalarFloat,
	spirv.NumericSint:  metadata.ScalarSint,
	spirv.NumericUint:  metadata.ScalarUint,
}

// ReflectInputs derives the interleaved vertex layout from the inputs of a
// vertex shader. Attributes follow location order and are packed without
// padding. An input with no matching format is kept with FormatUndefined and
// takes no space.
func (u *Unit) ReflectInputs() (metadata.VertexLayout, error) {
	if err := u.compiled(); err != nil {
		return metadata.VertexLayout{}, err
	}
	if u.Stage != metadata.ShaderStageVertex {
		return metadata.VertexLayout{}, fmt.Errorf("%w: %s is a %s shader, vertex inputs need a vertex shader", core.ErrConfiguration, u.Path, u.Stage)
	}

	var layout metadata.VertexLayout
	for _, in := range u.module.Inputs() {
		format := metadata.FormatUndefined
		if kind, ok := scalarKinds[in.Type.Kind]; ok {
			format = metadata.AttributeFormat(kind, in.Type.Width, in.Type.Components)
		}
		if format == metadata.FormatUndefined {
			core.LogWarn("shader %s: input `%s` at location %d has no vertex format", u.Path, in.Name, in.Location)
		}
		layout.Attributes = append(layout.Attributes, metadata.VertexAttribute{
			Location: in.Location,
			Format:   format,
			Offset:   layout.Stride,
		})
		layout.Stride += format.Size()
	}
	return layout, nil
}

// descriptorKind translates every reflected kind. Kinds mapped to false have
// no binding the renderer can create.
func descriptorKind(t spirv.DescriptorType) (metadata.DescriptorType, bool) {
	switch t {
	case spirv.DescriptorTypeSampler:
		return metadata.DescriptorTypeSampler, true
	case spirv.DescriptorTypeCombinedImageSampler:
		return metadata.DescriptorTypeCombinedImageSampler, true
	case spirv.DescriptorTypeSampledImage:
		return metadata.DescriptorTypeSampledImage, true
	case spirv.DescriptorTypeStorageImage:
		return metadata.DescriptorTypeStorageImage, true
	case spirv.DescriptorTypeUniformTexelBuffer:
		return metadata.DescriptorTypeUniformTexelBuffer, true
	case spirv.DescriptorTypeStorageTexelBuffer:
		return metadata.DescriptorTypeStorageTexelBuffer, true
	case spirv.DescriptorTypeUniformBuffer:
		return metadata.DescriptorTypeUniformBuffer, true
	case spirv.DescriptorTypeStorageBuffer:
		return metadata.DescriptorTypeStorageBuffer, true
	case spirv.DescriptorTypeInputAttachment:
		return metadata.DescriptorTypeInputAttachment, true
	case spirv.DescriptorTypeUndefined, spirv.DescriptorTypeAccelerationStructure:
		return 0, false
	}
	return 0, false
}

// ReflectBindings groups the resource bindings of the unit by descriptor set.
// The result is indexed by set number: sets the shader does not use are
// present with no bindings.
func (u *Unit) ReflectBindings() ([]metadata.BindingGroup, error) {
	if err := u.compiled(); err != nil {
		return nil, err
	}

	var groups []metadata.BindingGroup
	for _, b := range u.module.DescriptorBindings() {
		kind, ok := descriptorKind(b.Type)
		if !ok {
			return nil, fmt.Errorf("%w: %s binding %d.%d (`%s`) is %s", core.ErrUnsupportedDescriptorKind, u.Path, b.Set, b.Binding, b.Name, b.Type)
		}
		if b.Set >= metadata.MaxDescriptorSets {
			return nil, fmt.Errorf("%w: %s binding %d.%d (`%s`) uses set %d, the limit is %d", core.ErrConfiguration, u.Path, b.Set, b.Binding, b.Name, b.Set, metadata.MaxDescriptorSets)
		}
		for uint32(len(groups)) <= b.Set {
			groups = append(groups, metadata.BindingGroup{Set: uint32(len(groups))})
		}
		g := &groups[b.Set]
		g.Bindings = append(g.Bindings, metadata.LayoutBinding{
			Binding: b.Binding,
			Type:    kind,
			Count:   b.Count,
			Stages:  u.Stage,
		})
	}
	return groups, nil
}
