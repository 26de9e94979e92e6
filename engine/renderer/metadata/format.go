package metadata

import "fmt"

/** @brief Pixel and vertex attribute formats understood by the renderer. */
type Format uint32

const (
	FormatUndefined Format = iota
	FormatR32Uint
	FormatR32Sint
	FormatR32Sfloat
	FormatR32G32Uint
	FormatR32G32Sint
	FormatR32G32Sfloat
	FormatR32G32B32Uint
	FormatR32G32B32Sint
	FormatR32G32B32Sfloat
	FormatR32G32B32A32Uint
	FormatR32G32B32A32Sint
	FormatR32G32B32A32Sfloat
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8Srgb
)

var formatNames = map[Format]string{
	FormatUndefined:          "UNDEFINED",
	FormatR32Uint:            "R32_UINT",
	FormatR32Sint:            "R32_SINT",
	FormatR32Sfloat:          "R32_SFLOAT",
	FormatR32G32Uint:         "R32G32_UINT",
	FormatR32G32Sint:         "R32G32_SINT",
	FormatR32G32Sfloat:       "R32G32_SFLOAT",
	FormatR32G32B32Uint:      "R32G32B32_UINT",
	FormatR32G32B32Sint:      "R32G32B32_SINT",
	FormatR32G32B32Sfloat:    "R32G32B32_SFLOAT",
	FormatR32G32B32A32Uint:   "R32G32B32A32_UINT",
	FormatR32G32B32A32Sint:   "R32G32B32A32_SINT",
	FormatR32G32B32A32Sfloat: "R32G32B32A32_SFLOAT",
	FormatB8G8R8A8Unorm:      "B8G8R8A8_UNORM",
	FormatB8G8R8A8Srgb:       "B8G8R8A8_SRGB",
	FormatR8G8B8A8Unorm:      "R8G8B8A8_UNORM",
	FormatR8G8B8A8Srgb:       "R8G8B8A8_SRGB",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

// Size returns the byte size of one element of the format. Undefined formats are zero sized.
func (f Format) Size() uint32 {
	switch f {
	case FormatR32Uint, FormatR32Sint, FormatR32Sfloat:
		return 4
	case FormatR32G32Uint, FormatR32G32Sint, FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Uint, FormatR32G32B32Sint, FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Uint, FormatR32G32B32A32Sint, FormatR32G32B32A32Sfloat:
		return 16
	case FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb, FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb:
		return 4
	default:
		return 0
	}
}

/** @brief Scalar component kinds of a vertex attribute. */
type ScalarKind int

const (
	ScalarFloat ScalarKind = iota
	ScalarSint
	ScalarUint
)

var attributeFormats = map[ScalarKind][5]Format{
	ScalarFloat: {FormatUndefined, FormatR32Sfloat, FormatR32G32Sfloat, FormatR32G32B32Sfloat, FormatR32G32B32A32Sfloat},
	ScalarSint:  {FormatUndefined, FormatR32Sint, FormatR32G32Sint, FormatR32G32B32Sint, FormatR32G32B32A32Sint},
	ScalarUint:  {FormatUndefined, FormatR32Uint, FormatR32G32Uint, FormatR32G32B32Uint, FormatR32G32B32A32Uint},
}

// AttributeFormat maps a 32-bit scalar or vector type to its vertex format.
// Other widths and component counts map to FormatUndefined.
func AttributeFormat(kind ScalarKind, width, components uint32) Format {
	if width != 32 || components < 1 || components > 4 {
		return FormatUndefined
	}
	table, ok := attributeFormats[kind]
	if !ok {
		return FormatUndefined
	}
	return table[components]
}
