// Package batch groups immediate mode draws into as few vertex and index
// buffers as the draw order allows.
package batch

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/descriptor"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/pipeline"
)

// uint16 indices address at most this many vertices.
const maxShortIndexVertices = 1 << 16

type Device interface {
	// CreateBuffer creates a host visible buffer holding a copy of data.
	CreateBuffer(usage metadata.BufferUsage, data []byte) (metadata.BufferHandle, error)
	DestroyBuffer(buffer metadata.BufferHandle)
}

type Pipelines interface {
	Find(name string) (*pipeline.Pipeline, error)
}

type Allocator interface {
	Allocate(layouts descriptor.Layouts, setIndex uint32) (*descriptor.Set, error)
}

// Run is a maximal sequence of adjacent builders that share one draw.
type Run []*BufferBuilder

// Partition splits queue into runs in a single pass. Equal builders that are
// not adjacent stay in separate runs so draw order is preserved.
func Partition(queue []*BufferBuilder) []Run {
	var runs []Run
	start := 0
	for i := 1; i <= len(queue); i++ {
		if i == len(queue) || !queue[start].batchesWith(queue[i]) {
			runs = append(runs, Run(queue[start:i]))
			start = i
		}
	}
	return runs
}

// Geometry is the encoded vertex and index data of a run.
type Geometry struct {
	Vertices    []byte
	Indices     []byte
	IndexType   metadata.IndexType
	VertexCount uint32
	IndexCount  uint32
}

// BuildRun concatenates the vertices of run and emits the indices of every
// primitive, offset by the vertices before it.
func BuildRun(run Run) Geometry {
	if len(run) == 0 {
		return Geometry{}
	}
	format := run[0].format
	topology := run[0].topology

	var g Geometry
	for _, b := range run {
		g.VertexCount += uint32(len(b.vertices))
	}
	g.IndexCount = g.VertexCount / topology.VertexCount() * topology.IndexCount()
	g.IndexType = metadata.IndexTypeUint16
	if g.VertexCount > maxShortIndexVertices {
		g.IndexType = metadata.IndexTypeUint32
	}

	g.Vertices = make([]byte, 0, g.VertexCount*format.Stride())
	g.Indices = make([]byte, 0, g.IndexCount*g.IndexType.Size())
	var offset uint32
	for _, b := range run {
		for _, v := range b.vertices {
			g.Vertices = format.encode(g.Vertices, v)
		}
		for i := 0; i < len(b.vertices); i += int(topology.VertexCount()) {
			for _, idx := range topology.Indices(offset) {
				if g.IndexType == metadata.IndexTypeUint16 {
					g.Indices = binary.LittleEndian.AppendUint16(g.Indices, uint16(idx))
				} else {
					g.Indices = binary.LittleEndian.AppendUint32(g.Indices, idx)
				}
			}
			offset += topology.VertexCount()
		}
	}
	return g
}

// Stats describes one draw issued by Flush.
type Stats struct {
	Pipeline  string
	Texture   uuid.UUID
	Builders  int
	Vertices  uint32
	Indices   uint32
	IndexType metadata.IndexType
}

type textureKey struct {
	pipeline string
	texture  uuid.UUID
}

type textureSet struct {
	set        *descriptor.Set
	generation uint64
}

/**
 * @brief Queues built geometry for the current frame and draws it on Flush.
 */
type Batcher struct {
	device    Device
	pipelines Pipelines
	allocator Allocator

	queue []*BufferBuilder
	// buffers drawn this frame, destroyed by Release
	inFlight []metadata.BufferHandle
	sets     map[textureKey]*textureSet
}

func NewBatcher(device Device, pipelines Pipelines, allocator Allocator) *Batcher {
	return &Batcher{
		device:    device,
		pipelines: pipelines,
		allocator: allocator,
		sets:      make(map[textureKey]*textureSet),
	}
}

func (b *Batcher) push(builder *BufferBuilder) {
	b.queue = append(b.queue, builder)
}

// Pending returns the number of queued builders.
func (b *Batcher) Pending() int {
	return len(b.queue)
}

// Flush uploads and draws every queued run, in queue order. The queue is
// empty afterwards, even on error.
func (b *Batcher) Flush(recorder metadata.CommandRecorder) ([]Stats, error) {
	queue := b.queue
	b.queue = nil

	runs := Partition(queue)
	stats := make([]Stats, 0, len(runs))
	for _, run := range runs {
		s, err := b.draw(recorder, run)
		if err != nil {
			return stats, err
		}
		stats = append(stats, s)
	}
	return stats, nil
}

func (b *Batcher) draw(recorder metadata.CommandRecorder, run Run) (Stats, error) {
	first := run[0]
	p, err := b.pipelines.Find(first.pipeline)
	if err != nil {
		core.LogError("batch draw: %s", err)
		return Stats{}, err
	}

	geometry := BuildRun(run)
	vertices, err := b.device.CreateBuffer(metadata.BufferUsageVertex, geometry.Vertices)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create vertex buffer: %w", err)
	}
	b.inFlight = append(b.inFlight, vertices)
	indices, err := b.device.CreateBuffer(metadata.BufferUsageIndex, geometry.Indices)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create index buffer: %w", err)
	}
	b.inFlight = append(b.inFlight, indices)

	if err := p.Bind(recorder); err != nil {
		return Stats{}, err
	}
	if first.texture != nil {
		set, err := b.textureSet(p, first.texture)
		if err != nil {
			return Stats{}, err
		}
		recorder.BindDescriptorSets(p.Layout(), 0, set.Handle())
	}
	recorder.BindVertexBuffer(vertices)
	recorder.BindIndexBuffer(indices, geometry.IndexType)
	recorder.DrawIndexed(geometry.IndexCount)

	return Stats{
		Pipeline:  p.Name,
		Texture:   first.textureID(),
		Builders:  len(run),
		Vertices:  geometry.VertexCount,
		Indices:   geometry.IndexCount,
		IndexType: geometry.IndexType,
	}, nil
}

// samplerBinding returns the first combined image sampler of set 0.
func samplerBinding(p *pipeline.Pipeline) (uint32, error) {
	groups := p.Groups()
	if len(groups) > 0 {
		for _, lb := range groups[0].Bindings {
			if lb.Type == metadata.DescriptorTypeCombinedImageSampler {
				return lb.Binding, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: pipeline `%s` has no sampler in set 0", core.ErrInvalidBinding, p.Name)
}

// textureSet returns the cached set binding texture for p, allocating a new
// one when p was recompiled since the set was written.
func (b *Batcher) textureSet(p *pipeline.Pipeline, texture *metadata.Texture) (*descriptor.Set, error) {
	key := textureKey{pipeline: p.Name, texture: texture.ID}
	if cached, ok := b.sets[key]; ok {
		if cached.generation == p.Generation() {
			return cached.set, nil
		}
		if err := cached.set.Release(); err != nil {
			return nil, err
		}
		delete(b.sets, key)
	}

	binding, err := samplerBinding(p)
	if err != nil {
		return nil, err
	}
	set, err := b.allocator.Allocate(p, 0)
	if err != nil {
		return nil, err
	}
	if err := set.WriteTexture(binding, texture); err != nil {
		if rerr := set.Release(); rerr != nil {
			core.LogWarn("failed to release texture set of `%s`: %s", p.Name, rerr)
		}
		return nil, err
	}
	b.sets[key] = &textureSet{set: set, generation: p.Generation()}
	return set, nil
}

// Invalidate drops the cached texture sets of the named pipeline.
func (b *Batcher) Invalidate(pipeline string) {
	for key, cached := range b.sets {
		if key.pipeline != pipeline {
			continue
		}
		if err := cached.set.Release(); err != nil {
			core.LogWarn("failed to release texture set of `%s`: %s", pipeline, err)
		}
		delete(b.sets, key)
	}
}

// ForgetTexture drops the cached sets of a texture that is being destroyed.
func (b *Batcher) ForgetTexture(texture *metadata.Texture) {
	for key, cached := range b.sets {
		if key.texture != texture.ID {
			continue
		}
		if err := cached.set.Release(); err != nil {
			core.LogWarn("failed to release texture set of %s: %s", texture.Name, err)
		}
		delete(b.sets, key)
	}
}

// Release destroys the buffers of the last flushed frame. The device must be
// idle.
func (b *Batcher) Release() {
	for _, buf := range b.inFlight {
		b.device.DestroyBuffer(buf)
	}
	b.inFlight = b.inFlight[:0]
}

func (b *Batcher) Destroy() {
	b.Release()
	b.queue = nil
	for key, cached := range b.sets {
		if err := cached.set.Release(); err != nil {
			core.LogWarn("failed to release texture set: %s", err)
		}
		delete(b.sets, key)
	}
}
