package renderer

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/magma/engine/config"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/batch"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/rendertest"
)

const coloredRecord = `name = "colored"

[[shaders]]
resource = "colored.vert"
stage = "vertex"

[[shaders]]
resource = "colored.frag"
stage = "fragment"
`

const texturedRecord = `name: textured
shaders:
  - resource: textured.vert
    stage: vertex
  - resource: textured.frag
    stage: fragment
`

type fixture struct {
	root     string
	device   *rendertest.Device
	surface  *rendertest.Surface
	compiler *rendertest.Compiler
	renderer *Renderer
}

func (f *fixture) shader(name string) string {
	return filepath.Join(f.root, "shaders", name)
}

func (f *fixture) writePipeline(t *testing.T, file, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "pipelines", file), []byte(content), 0o644))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pipelines"), 0o755))
	f := &fixture{
		root:     root,
		device:   rendertest.NewDevice(),
		surface:  rendertest.NewSurface(800, 600),
		compiler: rendertest.NewCompiler(),
	}
	f.compiler.Set(f.shader("colored.vert"), rendertest.VertexShader().Input(0, metadata.ScalarFloat, 2).Input(1, metadata.ScalarFloat, 3))
	f.compiler.Set(f.shader("colored.frag"), rendertest.FragmentShader())
	f.compiler.Set(f.shader("textured.vert"), rendertest.VertexShader().Input(0, metadata.ScalarFloat, 2).Input(1, metadata.ScalarFloat, 2))
	f.compiler.Set(f.shader("textured.frag"), rendertest.FragmentShader().Sampler2D(0, 0, 1))
	f.writePipeline(t, "colored.toml", coloredRecord)
	f.writePipeline(t, "textured.yaml", texturedRecord)
	return f
}

func (f *fixture) start(t *testing.T) *Renderer {
	t.Helper()
	cfg := config.Default()
	cfg.Assets.Root = f.root
	r, err := New(f.device, f.surface, cfg, WithCompiler(f.compiler))
	require.NoError(t, err)
	f.renderer = r
	return r
}

func quad(x float32) *batch.BufferBuilder {
	return batch.NewBufferBuilder("colored", batch.PositionColor, batch.Quad).
		Begin(x, 0).Color(1, 1, 1).End().
		Begin(x, 1).Color(1, 1, 1).End().
		Begin(x+1, 1).Color(1, 1, 1).End().
		Begin(x+1, 0).Color(1, 1, 1).End()
}

func TestNewLoadsPipelines(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)

	for _, name := range []string{"colored", "textured"} {
		p, err := r.FindPipeline(name)
		require.NoError(t, err, name)
		assert.False(t, p.Handle().IsZero())
		assert.Equal(t, metadata.Extent2D{Width: 800, Height: 600}, p.Extent())
	}
	_, err := r.FindPipeline("missing")
	assert.ErrorIs(t, err, core.ErrPipelineNotFound)
}

func TestNewRejectsBrokenRecords(t *testing.T) {
	f := newFixture(t)
	f.writePipeline(t, "broken.toml", "name = ")

	cfg := config.Default()
	cfg.Assets.Root = f.root
	_, err := New(f.device, f.surface, cfg, WithCompiler(f.compiler))
	require.ErrorIs(t, err, core.ErrConfiguration)
	assert.Equal(t, 0, f.device.Swapchains.Len())
	assert.Equal(t, 0, f.device.Pools.Len())
}

func TestNewKeepsGoingOnCompileErrors(t *testing.T) {
	f := newFixture(t)
	f.compiler.Fail(f.shader("textured.frag"), "syntax error")
	r := f.start(t)

	_, err := r.FindPipeline("colored")
	assert.NoError(t, err)
	_, err = r.FindPipeline("textured")
	assert.ErrorIs(t, err, core.ErrPipelineNotFound)
}

func TestFrame(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)

	ok, err := r.Begin()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.Clear(metadata.Color{G: 1, A: 1}))
	require.NoError(t, quad(0).Build(r.Batcher()))
	require.NoError(t, quad(1).Build(r.Batcher()))

	ok, err = r.End()
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, r.Stats(), 1)
	assert.Equal(t, 2, r.Stats()[0].Builders)
	require.Len(t, f.device.Submitted, 1)
	cmds := f.device.Submitted[0]
	assert.Equal(t, 1, cmds.Count("draw indexed"))
	assert.Equal(t, "barrier", cmds.Names()[len(cmds.Commands)-1])
	// per-frame buffers are gone once the device went idle
	assert.Equal(t, 0, f.device.Buffers.Len())
}

func TestReloadRecompiles(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)
	colored, err := r.FindPipeline("colored")
	require.NoError(t, err)
	before := colored.Handle()

	f.compiler.Fail(f.shader("colored.frag"), "unexpected token")
	err = r.Reload(true)
	require.ErrorIs(t, err, core.ErrCompilation)
	assert.False(t, core.IsFatal(err))
	assert.Equal(t, before, colored.Handle(), "failed compile keeps the previous pipeline")

	f.compiler.Set(f.shader("colored.frag"), rendertest.FragmentShader())
	f.compiler.Set(f.shader("lines.vert"), rendertest.VertexShader().Input(0, metadata.ScalarFloat, 2).Input(1, metadata.ScalarFloat, 3))
	f.writePipeline(t, "lines.json", `{"name": "lines", "line_width": 2, "shaders": [{"resource": "lines.vert", "stage": "vertex"}]}`)
	require.NoError(t, r.Reload(true))

	assert.NotEqual(t, before, colored.Handle())
	lines, err := r.FindPipeline("lines")
	require.NoError(t, err)
	assert.Equal(t, float32(2), lines.LineWidth())
	assert.Equal(t, 3, f.device.Pipelines.Len())
}

func TestResizeRebuildsSwapchainAndPipelines(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)
	old := r.Frame().Swapchain().Handle

	f.surface.Resize(1024, 768)
	ok, err := r.Begin()
	require.NoError(t, err)
	require.True(t, ok)
	_, err = r.End()
	require.NoError(t, err)

	want := metadata.Extent2D{Width: 1024, Height: 768}
	assert.NotEqual(t, old, r.Frame().Swapchain().Handle)
	assert.Equal(t, want, r.Frame().Extent())
	p, err := r.FindPipeline("textured")
	require.NoError(t, err)
	assert.Equal(t, want, p.Extent())
}

func TestOutOfDatePresentRecompilesPipelines(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)
	// the window changed size without a resize callback
	f.surface.Size = metadata.Extent2D{Width: 640, Height: 480}
	f.device.PresentErrors = []error{core.ErrSwapchainOutOfDate}

	_, err := r.Begin()
	require.NoError(t, err)
	ok, err := r.End()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.device.Presented)

	p, err := r.FindPipeline("colored")
	require.NoError(t, err)
	assert.Equal(t, f.surface.Size, p.Extent())
}

func TestAllocate(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)

	set, err := r.Allocate("textured", 0)
	require.NoError(t, err)
	require.NoError(t, set.WriteTexture(0, f.device.Texture("atlas", 2, 2)))

	_, err = r.Allocate("textured", 2)
	assert.ErrorIs(t, err, core.ErrInvalidSetIndex)
	_, err = r.Allocate("missing", 0)
	assert.ErrorIs(t, err, core.ErrPipelineNotFound)
}

func TestLoadTexture(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)
	path := filepath.Join(f.root, "logo.png")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, image.NewRGBA(image.Rect(0, 0, 3, 5))))
	require.NoError(t, file.Close())

	tex, err := r.LoadTexture(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), tex.Width)
	assert.Equal(t, uint32(5), tex.Height)

	again, err := r.LoadTexture(path)
	require.NoError(t, err)
	assert.Same(t, tex, again)

	r.DestroyTexture(tex)
	assert.False(t, f.device.Views.Contains(tex.View.Handle))

	_, err = r.LoadTexture(filepath.Join(f.root, "missing.png"))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)
	r := f.start(t)
	_, err := r.LoadTexture(writeTexture(t, f.root))
	require.NoError(t, err)
	_, err = r.Allocate("textured", 0)
	require.NoError(t, err)

	r.Shutdown()

	d := f.device
	for name, n := range map[string]int{
		"pipelines":        d.Pipelines.Len(),
		"pipeline layouts": d.PipelineLayouts.Len(),
		"set layouts":      d.SetLayouts.Len(),
		"shader modules":   d.ShaderModules.Len(),
		"pools":            d.Pools.Len(),
		"sets":             d.Sets.Len(),
		"swapchains":       d.Swapchains.Len(),
		"images":           d.Images.Len(),
		"views":            d.Views.Len(),
		"samplers":         d.Samplers.Len(),
		"semaphores":       d.Semaphores.Len(),
		"command pools":    d.CommandPools.Len(),
	} {
		assert.Zero(t, n, name)
	}
}

func writeTexture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "white.png")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, png.Encode(file, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	return path
}
