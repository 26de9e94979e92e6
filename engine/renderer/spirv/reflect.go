package spirv

import (
	"cmp"
	"slices"
)

type NumericKind int

const (
	NumericOther NumericKind = iota
	NumericFloat
	NumericSint
	NumericUint
)

// NumericType describes a scalar or vector interface type.
type NumericType struct {
	Kind       NumericKind
	Width      uint32
	Components uint32
}

type InputVariable struct {
	ID       uint32
	Name     string
	Location uint32
	Type     NumericType
}

// Inputs returns the Input variables carrying a Location, sorted by location.
// Built-ins such as gl_VertexIndex are skipped.
func (m *Module) Inputs() []InputVariable {
	var inputs []InputVariable
	for _, v := range m.variables {
		if v.storage != StorageClassInput {
			continue
		}
		d := m.decorations[v.id]
		if d == nil || d.builtIn || d.location == nil {
			continue
		}
		inputs = append(inputs, InputVariable{
			ID:       v.id,
			Name:     m.names[v.id],
			Location: *d.location,
			Type:     m.numericType(m.pointee(v.typeID)),
		})
	}
	slices.SortStableFunc(inputs, func(a, b InputVariable) int {
		return cmp.Compare(a.Location, b.Location)
	})
	return inputs
}

func (m *Module) pointee(id uint32) uint32 {
	if t, ok := m.types[id]; ok && t.kind == kindPointer {
		return t.elem
	}
	return id
}

func (m *Module) numericType(id uint32) NumericType {
	t, ok := m.types[id]
	if !ok {
		return NumericType{}
	}
	switch t.kind {
	case kindFloat:
		return NumericType{Kind: NumericFloat, Width: t.width, Components: 1}
	case kindInt:
		k := NumericUint
		if t.signed {
			k = NumericSint
		}
		return NumericType{Kind: k, Width: t.width, Components: 1}
	case kindVector:
		elem := m.numericType(t.elem)
		if elem.Kind == NumericOther {
			return NumericType{}
		}
		elem.Components = t.count
		return elem
	}
	return NumericType{}
}

// DescriptorType is the reflected kind of a resource variable.
type DescriptorType int

const (
	DescriptorTypeUndefined DescriptorType = iota
	DescriptorTypeSampler
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeUniformTexelBuffer
	DescriptorTypeStorageTexelBuffer
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
	DescriptorTypeInputAttachment
	DescriptorTypeAccelerationStructure
)

var descriptorTypeNames = [...]string{
	"undefined",
	"sampler",
	"combined_image_sampler",
	"sampled_image",
	"storage_image",
	"uniform_texel_buffer",
	"storage_texel_buffer",
	"uniform_buffer",
	"storage_buffer",
	"input_attachment",
	"acceleration_structure",
}

func (d DescriptorType) String() string {
	if d >= 0 && int(d) < len(descriptorTypeNames) {
		return descriptorTypeNames[d]
	}
	return "unknown"
}

const (
	dimBuffer      = 5
	dimSubpassData = 6
)

type DescriptorBinding struct {
	ID      uint32
	Name    string
	Set     uint32
	Binding uint32
	Count   uint32
	Type    DescriptorType
}

// DescriptorBindings returns every resource variable decorated with a
// descriptor set and binding, ordered by set then binding.
func (m *Module) DescriptorBindings() []DescriptorBinding {
	var out []DescriptorBinding
	for _, v := range m.variables {
		switch v.storage {
		case StorageClassUniformConstant, StorageClassUniform, StorageClassStorageBuffer:
		default:
			continue
		}
		d := m.decorations[v.id]
		if d == nil || d.binding == nil {
			continue
		}
		var set uint32
		if d.set != nil {
			set = *d.set
		}
		typeID, count := m.unwrapArray(m.pointee(v.typeID))
		out = append(out, DescriptorBinding{
			ID:      v.id,
			Name:    m.names[v.id],
			Set:     set,
			Binding: *d.binding,
			Count:   count,
			Type:    m.descriptorType(v.storage, typeID),
		})
	}
	slices.SortStableFunc(out, func(a, b DescriptorBinding) int {
		if c := cmp.Compare(a.Set, b.Set); c != 0 {
			return c
		}
		return cmp.Compare(a.Binding, b.Binding)
	})
	return out
}

func (m *Module) unwrapArray(id uint32) (uint32, uint32) {
	t, ok := m.types[id]
	if !ok {
		return id, 1
	}
	switch t.kind {
	case kindArray:
		n, ok := m.constants[t.length]
		if !ok || n == 0 {
			n = 1
		}
		return t.elem, n
	case kindRuntimeArray:
		return t.elem, 1
	}
	return id, 1
}

func (m *Module) descriptorType(storage StorageClass, id uint32) DescriptorType {
	t, ok := m.types[id]
	if !ok {
		return DescriptorTypeUndefined
	}
	switch storage {
	case StorageClassStorageBuffer:
		return DescriptorTypeStorageBuffer
	case StorageClassUniform:
		if t.kind != kindStruct {
			return DescriptorTypeUndefined
		}
		if d := m.decorations[id]; d != nil && d.bufferBlock {
			return DescriptorTypeStorageBuffer
		}
		return DescriptorTypeUniformBuffer
	}

	switch t.kind {
	case kindSampler:
		return DescriptorTypeSampler
	case kindSampledImage:
		return DescriptorTypeCombinedImageSampler
	case kindAccelerationStructure:
		return DescriptorTypeAccelerationStructure
	case kindImage:
		switch {
		case t.dim == dimSubpassData:
			return DescriptorTypeInputAttachment
		case t.dim == dimBuffer && t.sampled == 2:
			return DescriptorTypeStorageTexelBuffer
		case t.dim == dimBuffer:
			return DescriptorTypeUniformTexelBuffer
		case t.sampled == 2:
			return DescriptorTypeStorageImage
		default:
			return DescriptorTypeSampledImage
		}
	}
	return DescriptorTypeUndefined
}
