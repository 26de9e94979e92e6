package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/rendertest"
)

// layouts stands in for a compiled pipeline.
type layouts struct {
	groups  []metadata.BindingGroup
	handles []metadata.DescriptorSetLayoutHandle
}

func (l *layouts) Groups() []metadata.BindingGroup { return l.groups }

func (l *layouts) SetLayout(index uint32) (metadata.DescriptorSetLayoutHandle, bool) {
	if int(index) >= len(l.handles) {
		return metadata.DescriptorSetLayoutHandle{}, false
	}
	return l.handles[index], true
}

func setup(t *testing.T, maxSets uint32) (*rendertest.Device, *Allocator, *layouts) {
	t.Helper()
	device := rendertest.NewDevice()
	groups := []metadata.BindingGroup{
		{Set: 0, Bindings: []metadata.LayoutBinding{
			{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Stages: metadata.ShaderStageVertex},
		}},
		{Set: 1, Bindings: []metadata.LayoutBinding{
			{Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1, Stages: metadata.ShaderStageFragment},
		}},
	}
	l := &layouts{groups: groups}
	for _, g := range groups {
		h, err := device.CreateDescriptorSetLayout(g.Bindings)
		require.NoError(t, err)
		l.handles = append(l.handles, h)
	}
	a, err := NewAllocator(device, metadata.DescriptorPoolConfig{MaxSets: maxSets})
	require.NoError(t, err)
	return device, a, l
}

func TestAllocate(t *testing.T) {
	device, a, l := setup(t, 8)
	first, err := a.Allocate(l, 0)
	require.NoError(t, err)
	second, err := a.Allocate(l, 1)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, l.groups[1].Bindings, second.Bindings())
	assert.Equal(t, 2, a.Live())
	set, ok := device.Set(second.Handle())
	require.True(t, ok)
	assert.Equal(t, l.handles[1], set.Layout)
}

func TestAllocateInvalidSetIndex(t *testing.T) {
	_, a, l := setup(t, 8)
	_, err := a.Allocate(l, 2)
	assert.ErrorIs(t, err, core.ErrInvalidSetIndex)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Equal(t, 0, a.Live())
}

func TestBindingsAreCopied(t *testing.T) {
	_, a, l := setup(t, 8)
	s, err := a.Allocate(l, 0)
	require.NoError(t, err)
	l.groups[0].Bindings[0].Type = metadata.DescriptorTypeStorageBuffer
	assert.Equal(t, metadata.DescriptorTypeUniformBuffer, s.Bindings()[0].Type)
}

func TestWriteBuffer(t *testing.T) {
	device, a, l := setup(t, 8)
	s, err := a.Allocate(l, 0)
	require.NoError(t, err)
	buf, err := device.CreateBuffer(metadata.BufferUsageUniform, make([]byte, 64))
	require.NoError(t, err)

	require.NoError(t, s.WriteBuffer(0, buf))
	set, _ := device.Set(s.Handle())
	assert.Equal(t, buf, set.Writes[0].Buffer)
	assert.Equal(t, metadata.DescriptorTypeUniformBuffer, set.Writes[0].Type)

	assert.ErrorIs(t, s.WriteBuffer(3, buf), core.ErrInvalidBinding)
	tex := device.Texture("white", 1, 1)
	assert.ErrorIs(t, s.WriteTexture(0, tex), core.ErrDescriptorKindMismatch)
}

func TestWriteTexture(t *testing.T) {
	device, a, l := setup(t, 8)
	s, err := a.Allocate(l, 1)
	require.NoError(t, err)
	tex := device.Texture("atlas", 4, 4)

	require.NoError(t, s.WriteTexture(0, tex))
	set, _ := device.Set(s.Handle())
	w := set.Writes[0]
	assert.Equal(t, tex.View, w.View)
	assert.Equal(t, tex.Sampler, w.Sampler)
	assert.Equal(t, metadata.ImageLayoutShaderReadOnly, w.Layout)

	buf, err := device.CreateBuffer(metadata.BufferUsageUniform, make([]byte, 16))
	require.NoError(t, err)
	assert.ErrorIs(t, s.WriteBuffer(0, buf), core.ErrDescriptorKindMismatch)
}

func TestRelease(t *testing.T) {
	device, a, l := setup(t, 1)
	s, err := a.Allocate(l, 0)
	require.NoError(t, err)

	_, err = a.Allocate(l, 0)
	assert.ErrorIs(t, err, core.ErrDevice, "pool holds one set")

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())
	assert.Equal(t, 0, a.Live())
	assert.Equal(t, 0, device.Sets.Len())
	assert.ErrorIs(t, s.WriteBuffer(0, metadata.BufferHandle{}), core.ErrInvalidBinding)

	_, err = a.Allocate(l, 0)
	assert.NoError(t, err, "released sets return to the pool")
}

func TestDestroyWithOutstandingSets(t *testing.T) {
	device, a, l := setup(t, 8)
	s, err := a.Allocate(l, 0)
	require.NoError(t, err)

	a.Destroy()
	assert.Equal(t, 0, device.Pools.Len())
	assert.Equal(t, 0, device.Sets.Len())
	assert.NoError(t, s.Release())
}
