package batch

import (
	"encoding/binary"
	"fmt"
	"math"

	emath "github.com/spaghettifunk/magma/engine/math"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

// Vertex is a 2D position with optional color and texture coordinate.
type Vertex struct {
	Position emath.Vec2
	Color    emath.Vec3
	TexCoord emath.Vec2

	hasColor    bool
	hasTexCoord bool
}

/** @brief The interleaved vertex layouts the batcher can emit. */
type VertexFormat int

const (
	// position vec2, color vec3
	PositionColor VertexFormat = iota
	// position vec2, uv vec2
	PositionTexCoord
	// position vec2, uv vec2, color vec3
	PositionTexCoordColor
)

var vertexFormatNames = [...]string{"position_color", "position_texcoord", "position_texcoord_color"}

func (f VertexFormat) String() string {
	if f >= 0 && int(f) < len(vertexFormatNames) {
		return vertexFormatNames[f]
	}
	return fmt.Sprintf("VertexFormat(%d)", int(f))
}

// Stride is the size in bytes of one encoded vertex.
func (f VertexFormat) Stride() uint32 {
	switch f {
	case PositionColor:
		return 20
	case PositionTexCoord:
		return 16
	case PositionTexCoordColor:
		return 28
	}
	return 0
}

func (f VertexFormat) needsColor() bool {
	return f == PositionColor || f == PositionTexCoordColor
}

func (f VertexFormat) needsTexCoord() bool {
	return f == PositionTexCoord || f == PositionTexCoordColor
}

// Layout returns the attribute layout of the format, for matching against a
// reflected vertex shader.
func (f VertexFormat) Layout() metadata.VertexLayout {
	var l metadata.VertexLayout
	add := func(format metadata.Format) {
		l.Attributes = append(l.Attributes, metadata.VertexAttribute{
			Location: uint32(len(l.Attributes)),
			Format:   format,
			Offset:   l.Stride,
		})
		l.Stride += format.Size()
	}
	add(metadata.FormatR32G32Sfloat)
	if f.needsTexCoord() {
		add(metadata.FormatR32G32Sfloat)
	}
	if f.needsColor() {
		add(metadata.FormatR32G32B32Sfloat)
	}
	return l
}

func (f VertexFormat) validate(v Vertex) error {
	if f.needsColor() && !v.hasColor {
		return fmt.Errorf("%s vertex without a color", f)
	}
	if f.needsTexCoord() && !v.hasTexCoord {
		return fmt.Errorf("%s vertex without a texture coordinate", f)
	}
	return nil
}

func appendFloat(dst []byte, values ...float32) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// encode appends v as little endian float32 in attribute order.
func (f VertexFormat) encode(dst []byte, v Vertex) []byte {
	dst = appendFloat(dst, v.Position.X, v.Position.Y)
	if f.needsTexCoord() {
		dst = appendFloat(dst, v.TexCoord.X, v.TexCoord.Y)
	}
	if f.needsColor() {
		dst = appendFloat(dst, v.Color.X, v.Color.Y, v.Color.Z)
	}
	return dst
}

/** @brief The primitive a builder's vertices are grouped into. */
type Topology int

const (
	// four vertices in top-left, top-right, bottom-right, bottom-left order
	Quad Topology = iota
	Triangle
)

func (t Topology) String() string {
	switch t {
	case Quad:
		return "quad"
	case Triangle:
		return "triangle"
	}
	return fmt.Sprintf("Topology(%d)", int(t))
}

// VertexCount is the number of vertices of one primitive.
func (t Topology) VertexCount() uint32 {
	if t == Quad {
		return 4
	}
	return 3
}

// IndexCount is the number of indices of one primitive.
func (t Topology) IndexCount() uint32 {
	if t == Quad {
		return 6
	}
	return 3
}

// Indices returns the indices of one primitive whose first vertex is offset.
func (t Topology) Indices(offset uint32) []uint32 {
	o := offset
	if t == Quad {
		return []uint32{o, o + 1, o + 3, o + 3, o + 1, o + 2}
	}
	return []uint32{o, o + 1, o + 2}
}
