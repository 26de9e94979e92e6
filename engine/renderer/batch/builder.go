package batch

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/magma/engine/core"
	emath "github.com/spaghettifunk/magma/engine/math"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

/**
 * @brief Collects the vertices of one logical draw. The first error sticks and
 * is returned by Build.
 */
type BufferBuilder struct {
	pipeline string
	format   VertexFormat
	topology Topology
	texture  *metadata.Texture

	vertices []Vertex
	current  *Vertex
	consumed bool
	err      error
}

func NewBufferBuilder(pipeline string, format VertexFormat, topology Topology) *BufferBuilder {
	return &BufferBuilder{
		pipeline: pipeline,
		format:   format,
		topology: topology,
	}
}

func (b *BufferBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *BufferBuilder) usable() bool {
	if b.consumed {
		b.fail(core.ErrBuilderConsumed)
		return false
	}
	return b.err == nil
}

// WithTexture binds texture for the whole draw.
func (b *BufferBuilder) WithTexture(texture *metadata.Texture) *BufferBuilder {
	if b.usable() {
		b.texture = texture
	}
	return b
}

// Begin starts a vertex at (x, y).
func (b *BufferBuilder) Begin(x, y float32) *BufferBuilder {
	if !b.usable() {
		return b
	}
	if b.current != nil {
		b.fail(fmt.Errorf("%w: vertex %d was not ended", core.ErrIncompletePrimitive, len(b.vertices)))
		return b
	}
	b.current = &Vertex{Position: emath.NewVec2(x, y)}
	return b
}

func (b *BufferBuilder) open(attribute string) bool {
	if !b.usable() {
		return false
	}
	if b.current == nil {
		b.fail(fmt.Errorf("%w: %s outside of Begin/End", core.ErrIncompletePrimitive, attribute))
		return false
	}
	return true
}

func (b *BufferBuilder) Color(r, g, bl float32) *BufferBuilder {
	if b.open("color") {
		b.current.Color = emath.NewVec3(r, g, bl)
		b.current.hasColor = true
	}
	return b
}

func (b *BufferBuilder) TexCoord(u, v float32) *BufferBuilder {
	if b.open("texture coordinate") {
		b.current.TexCoord = emath.NewVec2(u, v)
		b.current.hasTexCoord = true
	}
	return b
}

// End completes the current vertex.
func (b *BufferBuilder) End() *BufferBuilder {
	if !b.open("end") {
		return b
	}
	if err := b.format.validate(*b.current); err != nil {
		b.fail(fmt.Errorf("%w: vertex %d: %s", core.ErrIncompletePrimitive, len(b.vertices), err))
		return b
	}
	b.vertices = append(b.vertices, *b.current)
	b.current = nil
	return b
}

// Build hands the builder to batcher. The builder cannot be used afterwards.
func (b *BufferBuilder) Build(batcher *Batcher) error {
	if b.consumed {
		return core.ErrBuilderConsumed
	}
	if b.err != nil {
		return b.err
	}
	n := uint32(len(b.vertices))
	switch {
	case b.current != nil:
		return fmt.Errorf("%w: vertex %d was not ended", core.ErrIncompletePrimitive, n)
	case n == 0 || n%b.topology.VertexCount() != 0:
		return fmt.Errorf("%w: %d vertices for %s", core.ErrIncompletePrimitive, n, b.topology)
	}
	b.consumed = true
	batcher.push(b)
	return nil
}

// Err returns the first error recorded by the builder.
func (b *BufferBuilder) Err() error {
	return b.err
}

func (b *BufferBuilder) Len() int {
	return len(b.vertices)
}

func (b *BufferBuilder) Pipeline() string {
	return b.pipeline
}

func (b *BufferBuilder) Format() VertexFormat {
	return b.format
}

func (b *BufferBuilder) Topology() Topology {
	return b.topology
}

func (b *BufferBuilder) textureID() uuid.UUID {
	if b.texture == nil {
		return uuid.Nil
	}
	return b.texture.ID
}

// batchesWith reports whether two builders can share one draw.
func (b *BufferBuilder) batchesWith(other *BufferBuilder) bool {
	return b.format == other.format &&
		b.topology == other.topology &&
		b.pipeline == other.pipeline &&
		b.textureID() == other.textureID()
}
