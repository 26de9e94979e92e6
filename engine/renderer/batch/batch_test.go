package batch

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/magma/engine/config"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/descriptor"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/pipeline"
	"github.com/spaghettifunk/magma/engine/renderer/rendertest"
)

var extent = metadata.Extent2D{Width: 640, Height: 480}

type fixture struct {
	device    *rendertest.Device
	registry  *pipeline.Registry
	allocator *descriptor.Allocator
	batcher   *Batcher
}

func pipelineConfig(name string) *config.PipelineConfig {
	return &config.PipelineConfig{
		Name: name,
		Shaders: []config.ShaderConfig{
			{Resource: name + ".vert", Stage: "vertex"},
			{Resource: name + ".frag", Stage: "fragment"},
		},
	}
}

func setup(t *testing.T) *fixture {
	t.Helper()
	device := rendertest.NewDevice()
	compiler := rendertest.NewCompiler()
	compiler.Set("colored.vert", rendertest.VertexShader().Input(0, metadata.ScalarFloat, 2).Input(1, metadata.ScalarFloat, 3))
	compiler.Set("colored.frag", rendertest.FragmentShader())
	compiler.Set("textured.vert", rendertest.VertexShader().Input(0, metadata.ScalarFloat, 2).Input(1, metadata.ScalarFloat, 2))
	compiler.Set("textured.frag", rendertest.FragmentShader().Sampler2D(0, 0, 1))

	registry := pipeline.NewRegistry(device, pipeline.WithCompiler(compiler))
	for _, name := range []string{"colored", "textured"} {
		_, err := registry.Upsert(pipelineConfig(name), metadata.FormatB8G8R8A8Unorm, extent)
		require.NoError(t, err)
	}
	allocator, err := descriptor.NewAllocator(device, metadata.DescriptorPoolConfig{MaxSets: 16})
	require.NoError(t, err)
	return &fixture{
		device:    device,
		registry:  registry,
		allocator: allocator,
		batcher:   NewBatcher(device, registry, allocator),
	}
}

func coloredQuad(x float32) *BufferBuilder {
	return NewBufferBuilder("colored", PositionColor, Quad).
		Begin(x, 0).Color(1, 0, 0).End().
		Begin(x+1, 0).Color(1, 0, 0).End().
		Begin(x+1, 1).Color(1, 0, 0).End().
		Begin(x, 1).Color(1, 0, 0).End()
}

func coloredTriangle() *BufferBuilder {
	return NewBufferBuilder("colored", PositionColor, Triangle).
		Begin(0, 0).Color(0, 1, 0).End().
		Begin(1, 0).Color(0, 1, 0).End().
		Begin(0, 1).Color(0, 1, 0).End()
}

func texturedQuad(texture *metadata.Texture) *BufferBuilder {
	return NewBufferBuilder("textured", PositionTexCoord, Quad).
		WithTexture(texture).
		Begin(0, 0).TexCoord(0, 0).End().
		Begin(1, 0).TexCoord(1, 0).End().
		Begin(1, 1).TexCoord(1, 1).End().
		Begin(0, 1).TexCoord(0, 1).End()
}

func TestTopologyIndices(t *testing.T) {
	assert.Equal(t, []uint32{4, 5, 7, 7, 5, 6}, Quad.Indices(4))
	assert.Equal(t, []uint32{3, 4, 5}, Triangle.Indices(3))
	assert.Equal(t, uint32(4), Quad.VertexCount())
	assert.Equal(t, uint32(6), Quad.IndexCount())
}

func TestVertexFormatLayout(t *testing.T) {
	for _, f := range []VertexFormat{PositionColor, PositionTexCoord, PositionTexCoordColor} {
		assert.Equal(t, f.Stride(), f.Layout().Stride, f.String())
	}
	assert.Equal(t, []metadata.VertexAttribute{
		{Location: 0, Format: metadata.FormatR32G32Sfloat, Offset: 0},
		{Location: 1, Format: metadata.FormatR32G32B32Sfloat, Offset: 8},
	}, PositionColor.Layout().Attributes)
}

func floats(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func TestVertexEncoding(t *testing.T) {
	b := NewBufferBuilder("p", PositionTexCoordColor, Triangle).
		Begin(1, 2).TexCoord(3, 4).Color(5, 6, 7).End().
		Begin(0, 0).TexCoord(0, 0).Color(0, 0, 0).End().
		Begin(0, 0).TexCoord(0, 0).Color(0, 0, 0).End()
	g := BuildRun(Run{b})
	require.Len(t, g.Vertices, 3*28)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7}, floats(g.Vertices[:28]))
}

func TestBuilderErrors(t *testing.T) {
	batcher := NewBatcher(nil, nil, nil)

	noColor := NewBufferBuilder("colored", PositionColor, Triangle).Begin(0, 0).End()
	assert.ErrorIs(t, noColor.Build(batcher), core.ErrIncompletePrimitive)

	short := NewBufferBuilder("colored", PositionColor, Quad).
		Begin(0, 0).Color(1, 1, 1).End().
		Begin(1, 0).Color(1, 1, 1).End()
	assert.ErrorIs(t, short.Build(batcher), core.ErrIncompletePrimitive)

	empty := NewBufferBuilder("colored", PositionColor, Quad)
	assert.ErrorIs(t, empty.Build(batcher), core.ErrIncompletePrimitive)

	outside := NewBufferBuilder("colored", PositionColor, Triangle).Color(1, 1, 1)
	assert.ErrorIs(t, outside.Err(), core.ErrIncompletePrimitive)

	open := NewBufferBuilder("colored", PositionColor, Triangle).Begin(0, 0).Begin(1, 1)
	assert.ErrorIs(t, open.Err(), core.ErrIncompletePrimitive)

	assert.Equal(t, 0, batcher.Pending())
}

func TestBuilderConsumed(t *testing.T) {
	batcher := NewBatcher(nil, nil, nil)
	b := coloredTriangle()
	require.NoError(t, b.Build(batcher))
	assert.Equal(t, 1, batcher.Pending())

	assert.ErrorIs(t, b.Build(batcher), core.ErrBuilderConsumed)
	b.Begin(0, 0)
	assert.ErrorIs(t, b.Err(), core.ErrBuilderConsumed)
	assert.Equal(t, 1, batcher.Pending())
}

func TestPartition(t *testing.T) {
	a1, a2, a3 := coloredQuad(0), coloredQuad(1), coloredQuad(2)
	tri := coloredTriangle()
	runs := Partition([]*BufferBuilder{a1, a2, tri, a3})
	require.Len(t, runs, 3)
	assert.Equal(t, Run{a1, a2}, runs[0])
	assert.Equal(t, Run{tri}, runs[1])
	assert.Equal(t, Run{a3}, runs[2])

	assert.Empty(t, Partition(nil))
}

func TestPartitionByTexture(t *testing.T) {
	device := rendertest.NewDevice()
	white, black := device.Texture("white", 1, 1), device.Texture("black", 1, 1)
	runs := Partition([]*BufferBuilder{texturedQuad(white), texturedQuad(white), texturedQuad(black)})
	require.Len(t, runs, 2)
	assert.Len(t, runs[0], 2)
}

func indices16(data []byte) []uint32 {
	out := make([]uint32, len(data)/2)
	for i := range out {
		out[i] = uint32(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

func TestBuildRunQuads(t *testing.T) {
	const k = 5
	run := make(Run, k)
	for i := range run {
		run[i] = coloredQuad(float32(i))
	}
	g := BuildRun(run)
	assert.Equal(t, uint32(4*k), g.VertexCount)
	assert.Equal(t, uint32(6*k), g.IndexCount)
	assert.Equal(t, metadata.IndexTypeUint16, g.IndexType)
	assert.Len(t, g.Vertices, 4*k*20)

	idx := indices16(g.Indices)
	require.Len(t, idx, 6*k)
	var highest uint32
	for _, i := range idx {
		highest = max(highest, i)
	}
	assert.Equal(t, uint32(4*k-1), highest)
	assert.Equal(t, []uint32{8, 9, 11, 11, 9, 10}, idx[12:18])
}

func TestBuildRunIndexWidth(t *testing.T) {
	big := func(quads int) Run {
		b := NewBufferBuilder("colored", PositionColor, Quad)
		for i := 0; i < quads*4; i++ {
			b.Begin(0, 0).Color(0, 0, 0).End()
		}
		return Run{b}
	}

	g := BuildRun(big(16384))
	assert.Equal(t, uint32(65536), g.VertexCount)
	assert.Equal(t, metadata.IndexTypeUint16, g.IndexType)
	idx := indices16(g.Indices)
	assert.Equal(t, []uint32{65532, 65533, 65535, 65535, 65533, 65534}, idx[len(idx)-6:], "last quad ends at the last addressable vertex")

	g = BuildRun(big(16385))
	assert.Equal(t, metadata.IndexTypeUint32, g.IndexType)
	assert.Len(t, g.Indices, 16385*6*4)
	last := binary.LittleEndian.Uint32(g.Indices[len(g.Indices)-4:])
	assert.Equal(t, uint32(65538), last)
}

func TestFlushBatches(t *testing.T) {
	f := setup(t)
	for _, b := range []*BufferBuilder{coloredQuad(0), coloredQuad(1), coloredTriangle(), coloredQuad(2)} {
		require.NoError(t, b.Build(f.batcher))
	}

	rec := &rendertest.Recorder{}
	stats, err := f.batcher.Flush(rec)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, Stats{Pipeline: "colored", Builders: 2, Vertices: 8, Indices: 12, IndexType: metadata.IndexTypeUint16}, stats[0])
	assert.Equal(t, uint32(3), stats[1].Indices)
	assert.Equal(t, 1, stats[2].Builders)

	assert.Equal(t, 3, rec.Count("draw indexed"))
	assert.Equal(t, 3, rec.Count("bind pipeline"))
	assert.Equal(t, 0, rec.Count("bind descriptor sets"))
	assert.Equal(t, []string{"bind pipeline", "bind vertex buffer", "bind index buffer", "draw indexed"}, rec.Names()[:4])
	assert.Equal(t, uint32(12), rec.Commands[3].Count)
	assert.Equal(t, 0, f.batcher.Pending())

	assert.Equal(t, 6, f.device.Buffers.Len())
	vb, ok := f.device.Buffer(rec.Commands[1].Buffer)
	require.True(t, ok)
	assert.Equal(t, metadata.BufferUsageVertex, vb.Usage)
	assert.Len(t, vb.Data, 8*20)

	f.batcher.Release()
	assert.Equal(t, 0, f.device.Buffers.Len())
}

func TestFlushMissingPipeline(t *testing.T) {
	f := setup(t)
	b := NewBufferBuilder("missing", PositionColor, Triangle).
		Begin(0, 0).Color(0, 0, 0).End().
		Begin(1, 0).Color(0, 0, 0).End().
		Begin(0, 1).Color(0, 0, 0).End()
	require.NoError(t, b.Build(f.batcher))

	_, err := f.batcher.Flush(&rendertest.Recorder{})
	assert.ErrorIs(t, err, core.ErrPipelineNotFound)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, 0, f.batcher.Pending())
}

func TestTextureSetCache(t *testing.T) {
	f := setup(t)
	atlas := f.device.Texture("atlas", 8, 8)

	flush := func() *rendertest.Recorder {
		require.NoError(t, texturedQuad(atlas).Build(f.batcher))
		require.NoError(t, texturedQuad(atlas).Build(f.batcher))
		rec := &rendertest.Recorder{}
		stats, err := f.batcher.Flush(rec)
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, atlas.ID, stats[0].Texture)
		f.batcher.Release()
		return rec
	}

	rec := flush()
	require.Equal(t, 1, rec.Count("bind descriptor sets"))
	bind := rec.Commands[1]
	assert.Equal(t, uint32(0), bind.FirstSet)
	require.Len(t, bind.Sets, 1)
	first := bind.Sets[0]
	set, ok := f.device.Set(first)
	require.True(t, ok)
	assert.Equal(t, atlas.View, set.Writes[0].View)
	assert.Equal(t, 1, f.allocator.Live())

	rec = flush()
	assert.Equal(t, first, rec.Commands[1].Sets[0], "cached set is reused")
	assert.Equal(t, 1, f.allocator.Live())

	textured, err := f.registry.Find("textured")
	require.NoError(t, err)
	require.NoError(t, textured.Compile(metadata.FormatB8G8R8A8Unorm, extent))
	rec = flush()
	assert.NotEqual(t, first, rec.Commands[1].Sets[0], "recompiled pipeline gets a new set")
	assert.Equal(t, textured.Layout(), rec.Commands[1].Layout)
	assert.Equal(t, 1, f.allocator.Live())

	f.batcher.Invalidate("textured")
	assert.Equal(t, 0, f.allocator.Live())
}

func TestTextureWriteFailure(t *testing.T) {
	f := setup(t)
	atlas := f.device.Texture("atlas", 8, 8)
	errFree := errors.New("free failed")
	f.device.UpdateSetErrors = []error{rendertest.ErrInjected}
	f.device.FreeSetErrors = []error{errFree}

	require.NoError(t, texturedQuad(atlas).Build(f.batcher))
	_, err := f.batcher.Flush(&rendertest.Recorder{})
	require.ErrorIs(t, err, rendertest.ErrInjected)
	assert.NotErrorIs(t, err, errFree, "the write failure is reported, not the release")
	assert.Equal(t, 0, f.allocator.Live())
	f.batcher.Release()

	// the next frame allocates a fresh set
	require.NoError(t, texturedQuad(atlas).Build(f.batcher))
	stats, err := f.batcher.Flush(&rendertest.Recorder{})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, f.allocator.Live())
}

func TestTextureWithoutSampler(t *testing.T) {
	f := setup(t)
	b := NewBufferBuilder("colored", PositionColor, Triangle).
		WithTexture(f.device.Texture("atlas", 1, 1)).
		Begin(0, 0).Color(0, 0, 0).End().
		Begin(1, 0).Color(0, 0, 0).End().
		Begin(0, 1).Color(0, 0, 0).End()
	require.NoError(t, b.Build(f.batcher))
	_, err := f.batcher.Flush(&rendertest.Recorder{})
	assert.ErrorIs(t, err, core.ErrInvalidBinding)
}

func TestDestroy(t *testing.T) {
	f := setup(t)
	atlas := f.device.Texture("atlas", 8, 8)
	require.NoError(t, texturedQuad(atlas).Build(f.batcher))
	_, err := f.batcher.Flush(&rendertest.Recorder{})
	require.NoError(t, err)

	f.batcher.ForgetTexture(atlas)
	assert.Equal(t, 0, f.allocator.Live())

	require.NoError(t, texturedQuad(atlas).Build(f.batcher))
	_, err = f.batcher.Flush(&rendertest.Recorder{})
	require.NoError(t, err)
	f.batcher.Destroy()
	assert.Equal(t, 0, f.allocator.Live())
	assert.Equal(t, 0, f.device.Buffers.Len())
}
