package shader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/rendertest"
)

func TestReflectInputsFromWGSL(t *testing.T) {
	device := rendertest.NewDevice()
	u := NewUnit(device, "testdata/colored.vert.wgsl", metadata.ShaderStageVertex)
	require.NoError(t, u.Compile())
	assert.False(t, u.Handle().IsZero())
	assert.Equal(t, "vs_main", u.EntryPoint())

	layout, err := u.ReflectInputs()
	require.NoError(t, err)
	assert.Equal(t, []metadata.VertexAttribute{
		{Location: 0, Format: metadata.FormatR32G32Sfloat, Offset: 0},
		{Location: 1, Format: metadata.FormatR32G32B32Sfloat, Offset: 8},
	}, layout.Attributes)
	assert.Equal(t, uint32(20), layout.Stride)
}

func compiled(t *testing.T, stage metadata.ShaderStage, b *rendertest.ShaderBuilder) (*Unit, *rendertest.Device) {
	t.Helper()
	device := rendertest.NewDevice()
	compiler := rendertest.NewCompiler()
	compiler.Set("shader", b)
	u := NewUnit(device, "shader", stage, WithCompiler(compiler))
	require.NoError(t, u.Compile())
	return u, device
}

func TestReflectInputsLayout(t *testing.T) {
	u, _ := compiled(t, metadata.ShaderStageVertex, rendertest.VertexShader().
		Input(2, metadata.ScalarUint, 1).
		BuiltInInput().
		Input(0, metadata.ScalarFloat, 2).
		Input(1, metadata.ScalarFloat, 4).
		Input(3, metadata.ScalarSint, 3))

	layout, err := u.ReflectInputs()
	require.NoError(t, err)
	require.Len(t, layout.Attributes, 4)

	var offset uint32
	for i, a := range layout.Attributes {
		assert.Equal(t, uint32(i), a.Location)
		assert.Equal(t, offset, a.Offset)
		offset += a.Format.Size()
	}
	assert.Equal(t, offset, layout.Stride)
	assert.Equal(t, uint32(8+16+4+12), layout.Stride)
	assert.Equal(t, metadata.FormatR32G32B32A32Sfloat, layout.Attributes[1].Format)
	assert.Equal(t, metadata.FormatR32Uint, layout.Attributes[2].Format)
	assert.Equal(t, metadata.FormatR32G32B32Sint, layout.Attributes[3].Format)
}

func TestReflectInputsNeedsVertexStage(t *testing.T) {
	u, _ := compiled(t, metadata.ShaderStageFragment, rendertest.FragmentShader())
	_, err := u.ReflectInputs()
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestReflectBeforeCompile(t *testing.T) {
	u := NewUnit(rendertest.NewDevice(), "shader", metadata.ShaderStageVertex, WithCompiler(rendertest.NewCompiler()))
	_, err := u.ReflectInputs()
	assert.ErrorIs(t, err, core.ErrConfiguration)
	_, err = u.ReflectBindings()
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestReflectBindings(t *testing.T) {
	u, _ := compiled(t, metadata.ShaderStageFragment, rendertest.FragmentShader().
		Sampler2D(2, 1, 4).
		UniformBuffer(0, 0).
		Sampler2D(2, 0, 1))

	groups, err := u.ReflectBindings()
	require.NoError(t, err)
	require.Len(t, groups, 3)
	for i, g := range groups {
		assert.Equal(t, uint32(i), g.Set)
	}
	assert.Equal(t, []metadata.LayoutBinding{
		{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Stages: metadata.ShaderStageFragment},
	}, groups[0].Bindings)
	assert.Empty(t, groups[1].Bindings)
	assert.Equal(t, []metadata.LayoutBinding{
		{Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1, Stages: metadata.ShaderStageFragment},
		{Binding: 1, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 4, Stages: metadata.ShaderStageFragment},
	}, groups[2].Bindings)
}

func TestReflectBindingsUnsupportedKind(t *testing.T) {
	u, _ := compiled(t, metadata.ShaderStageFragment, rendertest.FragmentShader().AccelerationStructure(0, 0))
	_, err := u.ReflectBindings()
	assert.ErrorIs(t, err, core.ErrUnsupportedDescriptorKind)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.True(t, core.IsFatal(err))
}

func TestReflectBindingsSetLimit(t *testing.T) {
	u, _ := compiled(t, metadata.ShaderStageVertex, rendertest.VertexShader().UniformBuffer(0xFFFFFFFF, 0))
	groups, err := u.ReflectBindings()
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Nil(t, groups)

	u, _ = compiled(t, metadata.ShaderStageVertex, rendertest.VertexShader().UniformBuffer(metadata.MaxDescriptorSets-1, 0))
	groups, err = u.ReflectBindings()
	require.NoError(t, err)
	assert.Len(t, groups, metadata.MaxDescriptorSets)
}

func TestCompileFailureKeepsPreviousModule(t *testing.T) {
	device := rendertest.NewDevice()
	compiler := rendertest.NewCompiler()
	compiler.Set("shader", rendertest.VertexShader().Input(0, metadata.ScalarFloat, 2))
	u := NewUnit(device, "shader", metadata.ShaderStageVertex, WithCompiler(compiler))
	require.NoError(t, u.Compile())
	first := u.Handle()
	code := u.Code()

	compiler.Fail("shader", "1:1: syntax error")
	err := u.Compile()
	var compileErr *core.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "1:1: syntax error", compileErr.Diagnostic)
	assert.ErrorIs(t, err, core.ErrCompilation)
	assert.False(t, core.IsFatal(err))

	assert.Equal(t, first, u.Handle())
	assert.Equal(t, code, u.Code())
	assert.Equal(t, 1, device.ShaderModules.Len())
}

func TestRecompileReplacesModule(t *testing.T) {
	u, device := compiled(t, metadata.ShaderStageVertex, rendertest.VertexShader())
	first := u.Handle()
	require.NoError(t, u.Compile())
	assert.NotEqual(t, first, u.Handle())
	assert.Equal(t, 1, device.ShaderModules.Len())
	assert.Equal(t, []string{"create shader module", "create shader module", "destroy shader module"}, device.Calls)

	u.Destroy()
	assert.True(t, u.Handle().IsZero())
	assert.Equal(t, 0, device.ShaderModules.Len())
}

func TestModuleCreationFailure(t *testing.T) {
	device := rendertest.NewDevice()
	compiler := rendertest.NewCompiler()
	compiler.Set("shader", rendertest.VertexShader())
	device.ShaderModuleErrors = []error{rendertest.ErrInjected}
	u := NewUnit(device, "shader", metadata.ShaderStageVertex, WithCompiler(compiler))
	err := u.Compile()
	assert.ErrorIs(t, err, core.ErrDevice)
	assert.True(t, core.IsFatal(err))
	assert.True(t, u.Handle().IsZero())
}

func TestStageMismatch(t *testing.T) {
	device := rendertest.NewDevice()
	compiler := rendertest.NewCompiler()
	compiler.Set("shader", rendertest.FragmentShader())
	u := NewUnit(device, "shader", metadata.ShaderStageVertex, WithCompiler(compiler))
	assert.ErrorIs(t, u.Compile(), core.ErrConfiguration)
	assert.Equal(t, 0, device.ShaderModules.Len())
}

func TestCompilerFor(t *testing.T) {
	assert.IsType(t, NagaCompiler{}, CompilerFor("shaders/quad.vert.wgsl"))
	assert.IsType(t, BinaryLoader{}, CompilerFor("shaders/quad.vert.SPV"))
	assert.IsType(t, &GLSLCompiler{}, CompilerFor("shaders/quad.vert"))
}

func TestMissingSource(t *testing.T) {
	for _, c := range []Compiler{NagaCompiler{}, BinaryLoader{}, &GLSLCompiler{}} {
		_, err := c.Compile(filepath.Join(t.TempDir(), "missing"), metadata.ShaderStageVertex)
		assert.ErrorIs(t, err, core.ErrConfiguration)
	}
}

func TestGLSLCompilerUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quad.vert")
	require.NoError(t, os.WriteFile(path, []byte("#version 450\nvoid main() {}\n"), 0o644))
	c := &GLSLCompiler{Command: "glslc-does-not-exist"}
	_, err := c.Compile(path, metadata.ShaderStageVertex)
	assert.ErrorIs(t, err, core.ErrCompilerUnavailable)
	assert.True(t, core.IsFatal(err))
}

func TestBinaryLoaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.spv")
	require.NoError(t, os.WriteFile(path, []byte("not spirv at all"), 0o644))
	_, err := BinaryLoader{}.Compile(path, metadata.ShaderStageVertex)
	assert.ErrorIs(t, err, core.ErrCompilation)
}

func TestNagaDiagnostics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wgsl")
	require.NoError(t, os.WriteFile(path, []byte("@vertex fn vs_main( -> {"), 0o644))
	_, err := NagaCompiler{}.Compile(path, metadata.ShaderStageVertex)
	var compileErr *core.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.NotEmpty(t, compileErr.Diagnostic)
}
