package shader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/rendertest"
)

func writeSource(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCacheServesUnchangedFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colored.vert")
	writeSource(t, path, "v1")
	compiler := rendertest.NewCompiler()
	compiler.Set(path, rendertest.VertexShader())
	cache := NewCache(compiler, 1)

	first, err := cache.Compile(path, metadata.ShaderStageVertex)
	require.NoError(t, err)
	second, err := cache.Compile(path, metadata.ShaderStageVertex)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, compiler.Calls[path])

	// callers may modify what they get back
	second[0] = 0
	third, err := cache.Compile(path, metadata.ShaderStageVertex)
	require.NoError(t, err)
	assert.Equal(t, first, third)

	writeSource(t, path, "version two")
	_, err = cache.Compile(path, metadata.ShaderStageVertex)
	require.NoError(t, err)
	assert.Equal(t, 2, compiler.Calls[path])
}

func TestCacheKeysOnStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.glsl")
	writeSource(t, path, "both")
	compiler := rendertest.NewCompiler()
	compiler.Set(path, rendertest.VertexShader())
	cache := NewCache(compiler, 1)

	_, err := cache.Compile(path, metadata.ShaderStageVertex)
	require.NoError(t, err)
	_, err = cache.Compile(path, metadata.ShaderStageFragment)
	require.NoError(t, err)
	assert.Equal(t, 2, compiler.Calls[path])
	assert.Equal(t, 2, cache.Len())
}

func TestCacheRemembersCompileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.frag")
	writeSource(t, path, "nope")
	compiler := rendertest.NewCompiler()
	compiler.Fail(path, "syntax error")
	cache := NewCache(compiler, 1)

	for i := 0; i < 2; i++ {
		_, err := cache.Compile(path, metadata.ShaderStageFragment)
		var compileErr *core.CompileError
		require.True(t, errors.As(err, &compileErr))
		assert.False(t, core.IsFatal(err))
	}
	assert.Equal(t, 1, compiler.Calls[path])

	compiler.Set(path, rendertest.FragmentShader())
	writeSource(t, path, "fixed now")
	_, err := cache.Compile(path, metadata.ShaderStageFragment)
	assert.NoError(t, err)
}

func TestCacheBypassesMissingFiles(t *testing.T) {
	compiler := rendertest.NewCompiler()
	compiler.Set("virtual.vert", rendertest.VertexShader())
	cache := NewCache(compiler, 1)

	for i := 0; i < 3; i++ {
		_, err := cache.Compile("virtual.vert", metadata.ShaderStageVertex)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, compiler.Calls["virtual.vert"])
	assert.Zero(t, cache.Len())
}

func TestWarm(t *testing.T) {
	dir := t.TempDir()
	compiler := rendertest.NewCompiler()
	var sources []Source
	for i := 0; i < 8; i++ {
		path := filepath.Join(dir, fmt.Sprintf("s%d.vert", i))
		writeSource(t, path, path)
		compiler.Set(path, rendertest.VertexShader())
		sources = append(sources, Source{Path: path, Stage: metadata.ShaderStageVertex})
	}
	broken := filepath.Join(dir, "broken.frag")
	writeSource(t, broken, "x")
	compiler.Fail(broken, "unexpected token")
	// duplicates are compiled once
	sources = append(sources, sources[0], Source{Path: broken, Stage: metadata.ShaderStageFragment})

	cache := NewCache(compiler, 4)
	err := cache.Warm(sources)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected token")
	assert.Equal(t, 9, cache.Len())

	for _, s := range sources[:8] {
		_, err := cache.Compile(s.Path, s.Stage)
		require.NoError(t, err)
		assert.Equal(t, 1, compiler.Calls[s.Path], s.Path)
	}

	cache.Forget()
	assert.Zero(t, cache.Len())
	assert.NoError(t, cache.Warm(nil))
}

func TestJobSystem(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)

	js, err := NewJobSystem(3, 0)
	require.NoError(t, err)
	var completed, failed atomic.Int32
	for i := 0; i < 20; i++ {
		js.Submit(JobTask{
			OnStart: func() error {
				if i%5 == 0 {
					return errors.New("boom")
				}
				return nil
			},
			OnComplete: func() { completed.Add(1) },
			OnFailure:  func(error) { failed.Add(1) },
		})
	}
	js.Shutdown()
	assert.Equal(t, int32(16), completed.Load())
	assert.Equal(t, int32(4), failed.Load())
}
