package frame

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/rendertest"
)

func setup(t *testing.T, opts ...Option) (*Controller, *rendertest.Device, *rendertest.Surface) {
	t.Helper()
	device := rendertest.NewDevice()
	surface := rendertest.NewSurface(800, 600)
	c, err := NewController(device, surface, opts...)
	require.NoError(t, err)
	return c, device, surface
}

func indexOf(calls []string, call string, nth int) int {
	for i, c := range calls {
		if c != call {
			continue
		}
		if nth == 0 {
			return i
		}
		nth--
	}
	return -1
}

func TestNewController(t *testing.T) {
	c, device, _ := setup(t)

	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, metadata.Extent2D{Width: 800, Height: 600}, c.Extent())
	assert.Equal(t, device.SurfaceFormat, c.Format())
	// min image count plus one, capped at the maximum
	assert.Len(t, c.Swapchain().Images, 3)
	assert.Len(t, c.Views(), 3)
	assert.Equal(t, uint64(1), c.Generation())
}

func TestFrameCycle(t *testing.T) {
	red := metadata.Color{R: 1, A: 1}
	c, device, _ := setup(t, WithClearColor(red))

	ok, err := c.Begin()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateRecording, c.State())

	ok, err = c.End()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateIdle, c.State())

	require.Len(t, device.Submitted, 1)
	cmds := device.Submitted[0]
	assert.Equal(t, []string{"barrier", "begin rendering", "end rendering", "barrier"}, cmds.Names())

	img := c.Swapchain().Images[0]
	assert.Equal(t, img, cmds.Commands[0].Image)
	assert.Equal(t, metadata.ImageLayoutUndefined, cmds.Commands[0].From)
	assert.Equal(t, metadata.ImageLayoutColorAttachment, cmds.Commands[0].To)
	assert.Equal(t, metadata.ImageLayoutPresentSrc, cmds.Commands[3].To)

	begin := cmds.Commands[1]
	assert.Equal(t, c.Views()[0], begin.View)
	assert.Equal(t, c.Extent(), begin.Extent)
	require.NotNil(t, begin.Clear)
	assert.Equal(t, red, *begin.Clear)

	assert.Equal(t, []uint32{0}, device.Presented)
}

func TestClear(t *testing.T) {
	c, device, _ := setup(t)
	blue := metadata.Color{B: 1, A: 1}

	assert.Error(t, c.Clear(blue), "no frame in flight")

	_, err := c.Begin()
	require.NoError(t, err)
	require.NoError(t, c.Clear(blue))
	assert.Error(t, c.Clear(blue))

	_, err = c.End()
	require.NoError(t, err)

	cmds := device.Submitted[0]
	assert.Equal(t, 1, cmds.Count("begin rendering"))
	assert.Equal(t, blue, *cmds.Commands[1].Clear)
}

func TestIdleWaitEveryFrame(t *testing.T) {
	c, device, _ := setup(t)
	done := 0
	c.frameDone = func() { done++ }
	before := device.IdleWaits

	for i := 0; i < 4; i++ {
		ok, err := c.Begin()
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = c.End()
		require.NoError(t, err)
		require.True(t, ok)
	}

	assert.Equal(t, before+4, device.IdleWaits)
	assert.Equal(t, 4, done)
	assert.Equal(t, []uint32{0, 1, 2, 0}, device.Presented)
}

func TestOutOfDateOnAcquire(t *testing.T) {
	c, device, surface := setup(t)
	old := c.Swapchain().Handle
	surface.Size = metadata.Extent2D{Width: 1024, Height: 768}
	device.AcquireErrors = []error{core.ErrSwapchainOutOfDate}

	ok, err := c.Begin()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateIdle, c.State())
	assert.NotEqual(t, old, c.Swapchain().Handle)
	assert.Equal(t, surface.Size, c.Extent())
	assert.Empty(t, device.Submitted)

	ok, err = c.Begin()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOutOfDateOnPresent(t *testing.T) {
	c, device, _ := setup(t)
	old := c.Swapchain().Handle
	device.PresentErrors = []error{fmt.Errorf("present: %w", core.ErrSwapchainOutOfDate)}

	_, err := c.Begin()
	require.NoError(t, err)
	ok, err := c.End()
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Len(t, device.Submitted, 1)
	assert.Empty(t, device.Presented)
	assert.NotEqual(t, old, c.Swapchain().Handle)
	assert.False(t, device.Swapchains.Contains(old.Handle))
	assert.Equal(t, 1, device.Swapchains.Len())
	assert.Equal(t, 3, device.Images.Len())
	assert.Equal(t, 3, device.Views.Len())
	assert.Equal(t, uint64(2), c.Generation())
	assert.Equal(t, StateIdle, c.State())
}

func TestPresentFailureIsFatal(t *testing.T) {
	c, device, _ := setup(t)
	device.PresentErrors = []error{rendertest.ErrInjected}

	_, err := c.Begin()
	require.NoError(t, err)
	ok, err := c.End()
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, core.IsFatal(err))
	assert.ErrorIs(t, err, core.ErrDevice)
}

func TestAcquireFailure(t *testing.T) {
	c, device, _ := setup(t)
	device.AcquireErrors = []error{rendertest.ErrInjected}

	ok, err := c.Begin()
	require.ErrorIs(t, err, rendertest.ErrInjected)
	assert.False(t, ok)
	assert.Equal(t, StateIdle, c.State())
}

func TestReloadCreatesBeforeDestroying(t *testing.T) {
	c, device, _ := setup(t)

	require.NoError(t, c.Reload())

	created := indexOf(device.Calls, "create swapchain", 1)
	destroyed := indexOf(device.Calls, "destroy swapchain", 0)
	require.NotEqual(t, -1, created)
	require.NotEqual(t, -1, destroyed)
	assert.Less(t, created, destroyed)
	assert.Equal(t, 1, device.Swapchains.Len())
	assert.Equal(t, 3, device.Views.Len())
}

func TestMinimizedSurface(t *testing.T) {
	c, device, surface := setup(t)
	surface.Size = metadata.Extent2D{}

	require.NoError(t, c.Reload())
	assert.Equal(t, StateInvalid, c.State())

	ok, err := c.Begin()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, device.Submitted)

	surface.Size = metadata.Extent2D{Width: 640, Height: 480}
	ok, err = c.Begin()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, surface.Size, c.Extent())
}

func TestSurfaceCurrentExtentWins(t *testing.T) {
	device := rendertest.NewDevice()
	device.Capabilities.CurrentExtent = metadata.Extent2D{Width: 1920, Height: 1080}
	c, err := NewController(device, rendertest.NewSurface(800, 600))
	require.NoError(t, err)

	assert.Equal(t, device.Capabilities.CurrentExtent, c.Extent())
}

func TestStateErrors(t *testing.T) {
	c, _, _ := setup(t)

	_, err := c.End()
	assert.Error(t, err)
	_, err = c.Recorder()
	assert.Error(t, err)

	_, err = c.Begin()
	require.NoError(t, err)
	_, err = c.Begin()
	assert.Error(t, err)
	assert.Error(t, c.Reload())
}

func TestFlush(t *testing.T) {
	var flushed int
	c, device, _ := setup(t, WithFlush(func(r metadata.CommandRecorder) error {
		flushed++
		r.Draw(3)
		return nil
	}))

	_, err := c.Begin()
	require.NoError(t, err)
	r, err := c.Recorder()
	require.NoError(t, err)
	r.Draw(6)
	_, err = c.End()
	require.NoError(t, err)

	assert.Equal(t, 1, flushed)
	assert.Equal(t, []string{"barrier", "begin rendering", "draw", "draw", "end rendering", "barrier"}, device.Submitted[0].Names())
	assert.Equal(t, uint32(6), device.Submitted[0].Commands[2].Count)
	assert.Equal(t, uint32(3), device.Submitted[0].Commands[3].Count)
}

func TestFlushFailureAbandonsFrame(t *testing.T) {
	boom := errors.New("boom")
	released := false
	c, device, _ := setup(t,
		WithFlush(func(metadata.CommandRecorder) error { return boom }),
		WithFrameDone(func() { released = true }),
	)

	_, err := c.Begin()
	require.NoError(t, err)
	ok, err := c.End()
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
	assert.Empty(t, device.Submitted)
	assert.Empty(t, device.Presented)
	assert.True(t, released)
	assert.Equal(t, StateIdle, c.State())

	// the command buffer can be recorded again
	c.flush = nil
	ok, err = c.Begin()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBeginRenderingFailureAbandonsFrame(t *testing.T) {
	released := 0
	c, device, _ := setup(t, WithFrameDone(func() { released++ }))
	device.BeginRenderingErrors = []error{rendertest.ErrInjected, rendertest.ErrInjected, rendertest.ErrInjected}

	clearFrame := func() error {
		return c.Clear(metadata.Color{A: 1})
	}
	recorder := func() error {
		_, err := c.Recorder()
		return err
	}
	end := func() error {
		_, err := c.End()
		return err
	}
	for i, step := range []func() error{clearFrame, recorder, end} {
		_, err := c.Begin()
		require.NoError(t, err, i)
		assert.ErrorIs(t, step(), rendertest.ErrInjected, i)
		assert.Equal(t, StateIdle, c.State(), i)
		assert.False(t, c.rendering, i)
	}
	assert.Empty(t, device.Submitted)
	assert.Empty(t, device.Presented)
	assert.Equal(t, 3, released)

	// the next frame goes through
	_, err := c.Begin()
	require.NoError(t, err)
	ok, err := c.End()
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, device.Submitted, 1)
	assert.Equal(t, []string{"barrier", "begin rendering", "end rendering", "barrier"}, device.Submitted[0].Names())
}

func TestDestroy(t *testing.T) {
	c, device, _ := setup(t)

	c.Destroy()

	assert.Equal(t, 0, device.Swapchains.Len())
	assert.Equal(t, 0, device.Images.Len())
	assert.Equal(t, 0, device.Views.Len())
	assert.Equal(t, 0, device.Semaphores.Len())
	assert.Equal(t, 0, device.CommandPools.Len())
	assert.Equal(t, StateInvalid, c.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "recording", StateRecording.String())
	assert.Equal(t, "State(9)", State(9).String())
}
