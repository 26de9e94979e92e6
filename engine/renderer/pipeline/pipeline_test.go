package pipeline

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/magma/engine/config"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/rendertest"
)

var extent = metadata.Extent2D{Width: 800, Height: 600}

const format = metadata.FormatB8G8R8A8Unorm

func coloredConfig() *config.PipelineConfig {
	return &config.PipelineConfig{
		Name: "colored",
		Shaders: []config.ShaderConfig{
			{Resource: "colored.frag", Stage: "fragment"},
			{Resource: "colored.vert", Stage: "vertex"},
		},
	}
}

func setup(t *testing.T) (*rendertest.Device, *rendertest.Compiler, *Pipeline) {
	t.Helper()
	device := rendertest.NewDevice()
	compiler := rendertest.NewCompiler()
	compiler.Set("shaders/colored.vert", rendertest.VertexShader().
		Input(0, metadata.ScalarFloat, 2).
		Input(1, metadata.ScalarFloat, 3).
		UniformBuffer(0, 0))
	compiler.Set("shaders/colored.frag", rendertest.FragmentShader().
		UniformBuffer(0, 0).
		Sampler2D(1, 0, 1))
	p, err := New(device, coloredConfig(), WithShaderDir("shaders"), WithCompiler(compiler))
	require.NoError(t, err)
	return device, compiler, p
}

func live(d *rendertest.Device) [4]int {
	return [4]int{d.Pipelines.Len(), d.PipelineLayouts.Len(), d.SetLayouts.Len(), d.ShaderModules.Len()}
}

func TestCompile(t *testing.T) {
	device, _, p := setup(t)
	assert.True(t, p.Handle().IsZero())
	require.NoError(t, p.Compile(format, extent))

	assert.Equal(t, [4]int{1, 1, 2, 2}, live(device))
	assert.Equal(t, uint64(1), p.Generation())
	assert.Equal(t, uint32(20), p.VertexLayout().Stride)

	assert.Equal(t, []metadata.BindingGroup{
		{Set: 0, Bindings: []metadata.LayoutBinding{
			{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Stages: metadata.ShaderStageVertex | metadata.ShaderStageFragment},
		}},
		{Set: 1, Bindings: []metadata.LayoutBinding{
			{Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1, Stages: metadata.ShaderStageFragment},
		}},
	}, p.Groups())

	desc, ok := device.Pipelines.Get(p.Handle().Handle)
	require.True(t, ok)
	assert.Equal(t, "colored", desc.Name)
	assert.Equal(t, format, desc.ColorFormat)
	assert.Equal(t, extent, desc.Extent)
	assert.Equal(t, float32(1), desc.LineWidth)
	assert.Equal(t, p.Layout(), desc.Layout)
	require.Len(t, desc.Stages, 2)
	assert.Equal(t, metadata.ShaderStageVertex, desc.Stages[0].Stage, "vertex stage first")
	assert.Equal(t, "main", desc.Stages[0].EntryPoint)
}

func lastIndex(calls []string, call string) int {
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i] == call {
			return i
		}
	}
	return -1
}

func TestRecompileReplacesObjects(t *testing.T) {
	device, _, p := setup(t)
	require.NoError(t, p.Compile(format, extent))
	first := p.Handle()
	firstLayout := p.Layout()

	bigger := metadata.Extent2D{Width: 1024, Height: 768}
	require.NoError(t, p.Compile(format, bigger))
	assert.NotEqual(t, first, p.Handle())
	assert.NotEqual(t, firstLayout, p.Layout())
	assert.Equal(t, [4]int{1, 1, 2, 2}, live(device))
	assert.Equal(t, bigger, p.Extent())
	assert.Equal(t, uint64(2), p.Generation())

	created := lastIndex(device.Calls, "create pipeline colored")
	destroyed := slices.Index(device.Calls, "destroy pipeline colored")
	require.Positive(t, destroyed)
	assert.Less(t, created, destroyed, "new pipeline exists before the old one goes")
	assert.Less(t, lastIndex(device.Calls, "create pipeline layout"), slices.Index(device.Calls, "destroy pipeline layout"))
}

func TestCreationFailureKeepsPrevious(t *testing.T) {
	device, _, p := setup(t)
	require.NoError(t, p.Compile(format, extent))
	before := p.Handle()
	layout := p.Layout()

	device.PipelineErrors = []error{rendertest.ErrInjected}
	err := p.Compile(format, metadata.Extent2D{Width: 10, Height: 10})
	assert.ErrorIs(t, err, core.ErrPipelineCreation)
	assert.ErrorIs(t, err, core.ErrDevice)
	assert.True(t, core.IsFatal(err))

	assert.Equal(t, before, p.Handle())
	assert.Equal(t, layout, p.Layout())
	assert.Equal(t, extent, p.Extent())
	assert.Equal(t, [4]int{1, 1, 2, 2}, live(device), "partial objects are released")
}

func TestCompilationFailureIsRecoverable(t *testing.T) {
	device, compiler, p := setup(t)
	require.NoError(t, p.Compile(format, extent))
	before := p.Handle()

	compiler.Fail("shaders/colored.frag", "colored.frag:3: error: 'x' undeclared")
	err := p.Compile(format, extent)
	assert.ErrorIs(t, err, core.ErrPipelineCreation)
	assert.ErrorIs(t, err, core.ErrCompilation)
	assert.False(t, core.IsFatal(err))
	var compileErr *core.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Contains(t, compileErr.Diagnostic, "undeclared")

	assert.Equal(t, before, p.Handle())
	assert.Equal(t, 1, device.Pipelines.Len())
}

func TestBindingMismatch(t *testing.T) {
	device := rendertest.NewDevice()
	compiler := rendertest.NewCompiler()
	compiler.Set("colored.vert", rendertest.VertexShader().UniformBuffer(0, 0))
	compiler.Set("colored.frag", rendertest.FragmentShader().Sampler2D(0, 0, 1))
	p, err := New(device, coloredConfig(), WithCompiler(compiler))
	require.NoError(t, err)

	err = p.Compile(format, extent)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.True(t, p.Handle().IsZero())
	assert.Equal(t, 0, device.Pipelines.Len())
	assert.Equal(t, 0, device.SetLayouts.Len())
}

func TestSetGapsBecomeEmptyGroups(t *testing.T) {
	device := rendertest.NewDevice()
	compiler := rendertest.NewCompiler()
	compiler.Set("colored.vert", rendertest.VertexShader().Input(0, metadata.ScalarFloat, 2))
	compiler.Set("colored.frag", rendertest.FragmentShader().Sampler2D(2, 0, 1))
	p, err := New(device, coloredConfig(), WithCompiler(compiler))
	require.NoError(t, err)
	require.NoError(t, p.Compile(format, extent))

	groups := p.Groups()
	require.Len(t, groups, 3)
	assert.Empty(t, groups[0].Bindings)
	assert.Empty(t, groups[1].Bindings)
	assert.Len(t, groups[2].Bindings, 1)
	assert.Equal(t, 3, device.SetLayouts.Len())

	_, ok := p.SetLayout(2)
	assert.True(t, ok)
	_, ok = p.SetLayout(3)
	assert.False(t, ok)
}

func TestMergeGroupsSetLimit(t *testing.T) {
	ubo := metadata.LayoutBinding{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Stages: metadata.ShaderStageVertex}
	_, err := mergeGroups([][]metadata.BindingGroup{{{Set: 1000, Bindings: []metadata.LayoutBinding{ubo}}}})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	merged, err := mergeGroups([][]metadata.BindingGroup{{{Set: 1, Bindings: []metadata.LayoutBinding{ubo}}}})
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Empty(t, merged[0].Bindings)
}

func TestLineWidth(t *testing.T) {
	compiler := rendertest.NewCompiler()
	cfg := coloredConfig()
	p, err := New(rendertest.NewDevice(), cfg, WithCompiler(compiler), WithDefaultLineWidth(3))
	require.NoError(t, err)
	assert.Equal(t, float32(3), p.LineWidth())

	cfg.LineWidth = 2
	p, err = New(rendertest.NewDevice(), cfg, WithCompiler(compiler), WithDefaultLineWidth(3))
	require.NoError(t, err)
	assert.Equal(t, float32(2), p.LineWidth())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(rendertest.NewDevice(), &config.PipelineConfig{
		Name:    "broken",
		Shaders: []config.ShaderConfig{{Resource: "a.frag", Stage: "fragment"}},
	})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestZeroExtent(t *testing.T) {
	device, _, p := setup(t)
	assert.ErrorIs(t, p.Compile(format, metadata.Extent2D{}), core.ErrConfiguration)
	assert.Equal(t, 0, device.ShaderModules.Len())
}

func TestBind(t *testing.T) {
	_, _, p := setup(t)
	rec := &rendertest.Recorder{}
	assert.ErrorIs(t, p.Bind(rec), core.ErrConfiguration)

	require.NoError(t, p.Compile(format, extent))
	require.NoError(t, p.Bind(rec))
	require.Len(t, rec.Commands, 1)
	assert.Equal(t, p.Handle(), rec.Commands[0].Pipeline)
}

func TestReconfigure(t *testing.T) {
	device, compiler, p := setup(t)
	require.NoError(t, p.Compile(format, extent))
	compiler.Set("shaders/plain.frag", rendertest.FragmentShader())

	cfg := coloredConfig()
	cfg.Shaders[0].Resource = "plain.frag"
	require.NoError(t, p.Reconfigure(cfg, format, extent))
	assert.Len(t, p.Groups(), 1)
	assert.Equal(t, [4]int{1, 1, 1, 2}, live(device))
	assert.Equal(t, cfg, p.Config())

	broken := coloredConfig()
	broken.Shaders[0].Resource = "missing.frag"
	assert.Error(t, p.Reconfigure(broken, format, extent))
	assert.Equal(t, cfg, p.Config())
	assert.Equal(t, [4]int{1, 1, 1, 2}, live(device))

	renamed := coloredConfig()
	renamed.Name = "other"
	assert.ErrorIs(t, p.Reconfigure(renamed, format, extent), core.ErrConfiguration)
}

func TestDestroy(t *testing.T) {
	device, _, p := setup(t)
	require.NoError(t, p.Compile(format, extent))
	p.Destroy()
	assert.Equal(t, [4]int{0, 0, 0, 0}, live(device))
	assert.True(t, p.Handle().IsZero())
}

func TestReconfigureAppliesLineWidth(t *testing.T) {
	device, _, p := setup(t)
	require.NoError(t, p.Compile(format, extent))

	cfg := coloredConfig()
	cfg.LineWidth = 3
	require.NoError(t, p.Reconfigure(cfg, format, extent))
	assert.Equal(t, float32(3), p.LineWidth())
	desc, ok := device.Pipelines.Get(p.Handle().Handle)
	require.True(t, ok)
	assert.Equal(t, float32(3), desc.LineWidth)

	// a failed reconfigure keeps the width of the live pipeline
	cfg = coloredConfig()
	cfg.LineWidth = 5
	device.PipelineErrors = []error{rendertest.ErrInjected}
	require.Error(t, p.Reconfigure(cfg, format, extent))
	assert.Equal(t, float32(3), p.LineWidth())
	desc, ok = device.Pipelines.Get(p.Handle().Handle)
	require.True(t, ok)
	assert.Equal(t, float32(3), desc.LineWidth)
}
