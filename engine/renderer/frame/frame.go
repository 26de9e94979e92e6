// Package frame drives the acquire, record, submit and present cycle of one
// frame at a time, rebuilding the swapchain when the surface changes.
package frame

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

type Device interface {
	CreateSwapchain(desc metadata.SwapchainDesc) (metadata.Swapchain, error)
	DestroySwapchain(swapchain metadata.SwapchainHandle)
	CreateImageView(image metadata.ImageHandle, format metadata.Format) (metadata.ImageViewHandle, error)
	DestroyImageView(view metadata.ImageViewHandle)
	CreateSemaphore() (metadata.SemaphoreHandle, error)
	DestroySemaphore(semaphore metadata.SemaphoreHandle)
	CreateCommandPool() (metadata.CommandPoolHandle, error)
	DestroyCommandPool(pool metadata.CommandPoolHandle)
	AllocateCommandBuffer(pool metadata.CommandPoolHandle) (metadata.CommandBufferHandle, error)

	// AcquireNextImage and Present report a stale swapchain with core.ErrSwapchainOutOfDate.
	AcquireNextImage(swapchain metadata.SwapchainHandle, signal metadata.SemaphoreHandle) (uint32, error)
	ResetCommandBuffer(cmd metadata.CommandBufferHandle) error
	BeginCommandBuffer(cmd metadata.CommandBufferHandle) (metadata.CommandRecorder, error)
	EndCommandBuffer(cmd metadata.CommandBufferHandle) error
	Submit(cmd metadata.CommandBufferHandle, wait, signal metadata.SemaphoreHandle) error
	Present(swapchain metadata.SwapchainHandle, index uint32, wait metadata.SemaphoreHandle) error
	WaitIdle() error
}

// Surface reports the current drawable size. A zero extent means the window
// is minimized and nothing can be presented.
type Surface interface {
	Extent() metadata.Extent2D
}

type State int

const (
	StateIdle State = iota
	StateRecording
	StateSubmitted
	StateInvalid
	StateRecreating
)

var stateNames = [...]string{"idle", "recording", "submitted", "invalid", "recreating"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// FlushFunc records queued draws before rendering ends.
type FlushFunc func(recorder metadata.CommandRecorder) error

type Option func(*Controller)

func WithClearColor(color metadata.Color) Option {
	return func(c *Controller) {
		c.clearColor = color
	}
}

// WithFlush registers the hook End calls while rendering is still open.
func WithFlush(fn FlushFunc) Option {
	return func(c *Controller) {
		c.flush = fn
	}
}

// WithFrameDone registers a hook called once the device is idle at the end
// of every frame.
func WithFrameDone(fn func()) Option {
	return func(c *Controller) {
		c.frameDone = fn
	}
}

/**
 * @brief Owns the swapchain, its views and the single command buffer frames are recorded into.
 */
type Controller struct {
	device  Device
	surface Surface

	swapchain metadata.Swapchain
	views     []metadata.ImageViewHandle
	// bumped every time the swapchain is replaced
	generation uint64

	pool           metadata.CommandPoolHandle
	cmd            metadata.CommandBufferHandle
	imageAvailable metadata.SemaphoreHandle
	renderFinished metadata.SemaphoreHandle

	state      State
	image      uint32
	recorder   metadata.CommandRecorder
	rendering  bool
	clearColor metadata.Color
	flush      FlushFunc
	frameDone  func()
}

func NewController(device Device, surface Surface, opts ...Option) (*Controller, error) {
	c := &Controller{
		device:     device,
		surface:    surface,
		clearColor: metadata.Color{A: 1},
		state:      StateInvalid,
	}
	for _, o := range opts {
		o(c)
	}

	var err error
	if c.pool, err = device.CreateCommandPool(); err != nil {
		return nil, c.failInit("command pool", err)
	}
	if c.cmd, err = device.AllocateCommandBuffer(c.pool); err != nil {
		return nil, c.failInit("command buffer", err)
	}
	if c.imageAvailable, err = device.CreateSemaphore(); err != nil {
		return nil, c.failInit("image available semaphore", err)
	}
	if c.renderFinished, err = device.CreateSemaphore(); err != nil {
		return nil, c.failInit("render finished semaphore", err)
	}
	if err := c.recreate(); err != nil {
		c.Destroy()
		return nil, err
	}
	return c, nil
}

func (c *Controller) failInit(what string, err error) error {
	c.Destroy()
	err = fmt.Errorf("failed to create %s: %w", what, err)
	core.LogError("%s", err)
	return err
}

// Begin acquires the next image and starts recording. It returns false when
// the frame has to be skipped: the swapchain was out of date and has been
// rebuilt, or the surface has no area.
func (c *Controller) Begin() (bool, error) {
	switch c.state {
	case StateIdle:
	case StateInvalid:
		if err := c.recreate(); err != nil {
			return false, err
		}
		if c.state != StateIdle {
			return false, nil
		}
	default:
		return false, fmt.Errorf("cannot begin a frame while %s", c.state)
	}

	image, err := c.device.AcquireNextImage(c.swapchain.Handle, c.imageAvailable)
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		core.LogDebug("swapchain out of date on acquire, skipping frame")
		c.state = StateInvalid
		return false, c.recreate()
	}
	if err != nil {
		err = fmt.Errorf("failed to acquire swapchain image: %w", err)
		core.LogError("%s", err)
		return false, err
	}
	c.image = image

	if err := c.device.ResetCommandBuffer(c.cmd); err != nil {
		return false, fmt.Errorf("failed to reset command buffer: %w", err)
	}
	recorder, err := c.device.BeginCommandBuffer(c.cmd)
	if err != nil {
		return false, fmt.Errorf("failed to begin command buffer: %w", err)
	}
	if err := recorder.ImageBarrier(c.swapchain.Images[image], metadata.ImageLayoutUndefined, metadata.ImageLayoutColorAttachment); err != nil {
		return false, err
	}
	c.recorder = recorder
	c.rendering = false
	c.state = StateRecording
	return true, nil
}

// Clear starts rendering into the acquired image, clearing it to color.
func (c *Controller) Clear(color metadata.Color) error {
	if c.state != StateRecording {
		return fmt.Errorf("cannot clear while %s", c.state)
	}
	if c.rendering {
		return errors.New("rendering already started for this frame")
	}
	return c.beginRendering(color)
}

// beginRendering abandons the frame when the render pass cannot be started.
func (c *Controller) beginRendering(color metadata.Color) error {
	if err := c.recorder.BeginRendering(c.views[c.image], c.swapchain.Extent, &color); err != nil {
		c.abandon()
		err = fmt.Errorf("failed to begin rendering: %w", err)
		core.LogError("%s", err)
		return err
	}
	c.rendering = true
	return nil
}

// Recorder returns the command buffer of the current frame with rendering
// started, for binding pipelines directly.
func (c *Controller) Recorder() (metadata.CommandRecorder, error) {
	if c.state != StateRecording {
		return nil, fmt.Errorf("no frame is being recorded (%s)", c.state)
	}
	if !c.rendering {
		if err := c.beginRendering(c.clearColor); err != nil {
			return nil, err
		}
	}
	return c.recorder, nil
}

// End flushes, submits and presents the frame, then waits for the device to
// go idle. It returns false when the frame was not presented because the
// swapchain went out of date; the swapchain is rebuilt before returning.
func (c *Controller) End() (bool, error) {
	if c.state != StateRecording {
		return false, fmt.Errorf("cannot end a frame while %s", c.state)
	}
	if !c.rendering {
		if err := c.beginRendering(c.clearColor); err != nil {
			return false, err
		}
	}
	if c.flush != nil {
		if err := c.flush(c.recorder); err != nil {
			c.abandon()
			return false, err
		}
	}
	c.recorder.EndRendering()
	c.rendering = false
	if err := c.recorder.ImageBarrier(c.swapchain.Images[c.image], metadata.ImageLayoutColorAttachment, metadata.ImageLayoutPresentSrc); err != nil {
		c.abandon()
		return false, err
	}
	c.recorder = nil
	if err := c.device.EndCommandBuffer(c.cmd); err != nil {
		c.state = StateIdle
		return false, fmt.Errorf("failed to end command buffer: %w", err)
	}
	if err := c.device.Submit(c.cmd, c.imageAvailable, c.renderFinished); err != nil {
		c.state = StateIdle
		err = fmt.Errorf("failed to submit frame: %w", err)
		core.LogError("%s", err)
		return false, err
	}
	c.state = StateSubmitted

	presented := true
	presentErr := c.device.Present(c.swapchain.Handle, c.image, c.renderFinished)
	if errors.Is(presentErr, core.ErrSwapchainOutOfDate) {
		core.LogDebug("swapchain out of date on present, frame dropped")
		presented = false
		presentErr = nil
	}

	if err := c.waitIdle(); err != nil {
		return false, err
	}
	if presentErr != nil {
		c.state = StateIdle
		err := fmt.Errorf("failed to present frame: %w", presentErr)
		core.LogError("%s", err)
		return false, err
	}
	if !presented {
		c.state = StateInvalid
		return false, c.recreate()
	}
	c.state = StateIdle
	return true, nil
}

// abandon closes a frame that failed while recording. Nothing is submitted.
func (c *Controller) abandon() {
	if c.rendering {
		c.recorder.EndRendering()
		c.rendering = false
	}
	c.recorder = nil
	if err := c.device.EndCommandBuffer(c.cmd); err != nil {
		core.LogWarn("failed to end abandoned command buffer: %s", err)
	}
	c.state = StateIdle
	if c.frameDone != nil {
		c.frameDone()
	}
}

func (c *Controller) waitIdle() error {
	if err := c.device.WaitIdle(); err != nil {
		c.state = StateIdle
		err = fmt.Errorf("failed to wait for device idle: %w", err)
		core.LogError("%s", err)
		return err
	}
	if c.frameDone != nil {
		c.frameDone()
	}
	return nil
}

// Reload rebuilds the swapchain and its views at the current surface size.
func (c *Controller) Reload() error {
	if c.state == StateRecording || c.state == StateSubmitted {
		return fmt.Errorf("cannot reload the swapchain while %s", c.state)
	}
	c.state = StateInvalid
	return c.recreate()
}

// recreate builds the new swapchain and views before destroying the old ones.
// A surface without area leaves the controller invalid until the next try.
func (c *Controller) recreate() error {
	extent := c.surface.Extent()
	if extent.IsZero() {
		core.LogDebug("surface has no area, swapchain recreation postponed")
		c.state = StateInvalid
		return nil
	}
	c.state = StateRecreating
	if err := c.device.WaitIdle(); err != nil {
		c.state = StateInvalid
		return fmt.Errorf("failed to wait for device idle: %w", err)
	}

	sc, err := c.device.CreateSwapchain(metadata.SwapchainDesc{Extent: extent, Old: c.swapchain.Handle})
	if err != nil {
		c.state = StateInvalid
		err = fmt.Errorf("failed to create swapchain: %w", err)
		core.LogError("%s", err)
		return err
	}
	views := make([]metadata.ImageViewHandle, 0, len(sc.Images))
	for _, img := range sc.Images {
		v, err := c.device.CreateImageView(img, sc.Format)
		if err != nil {
			for _, created := range views {
				c.device.DestroyImageView(created)
			}
			c.device.DestroySwapchain(sc.Handle)
			c.state = StateInvalid
			err = fmt.Errorf("failed to create swapchain image view: %w", err)
			core.LogError("%s", err)
			return err
		}
		views = append(views, v)
	}

	old := c.swapchain
	c.destroyViews()
	if !old.Handle.IsZero() {
		c.device.DestroySwapchain(old.Handle)
	}
	c.swapchain = sc
	c.views = views
	c.generation++
	c.state = StateIdle
	core.LogInfo("swapchain created: %s %s, %d images", sc.Format, sc.Extent, len(sc.Images))
	return nil
}

func (c *Controller) destroyViews() {
	for _, v := range c.views {
		c.device.DestroyImageView(v)
	}
	c.views = nil
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Swapchain() metadata.Swapchain {
	return c.swapchain
}

func (c *Controller) Views() []metadata.ImageViewHandle {
	return c.views
}

func (c *Controller) Extent() metadata.Extent2D {
	return c.swapchain.Extent
}

func (c *Controller) Format() metadata.Format {
	return c.swapchain.Format
}

// Generation changes every time the swapchain is replaced.
func (c *Controller) Generation() uint64 {
	return c.generation
}

func (c *Controller) ImageIndex() uint32 {
	return c.image
}

func (c *Controller) Destroy() {
	if err := c.device.WaitIdle(); err != nil {
		core.LogWarn("failed to wait for device idle on shutdown: %s", err)
	}
	c.destroyViews()
	if !c.swapchain.Handle.IsZero() {
		c.device.DestroySwapchain(c.swapchain.Handle)
		c.swapchain = metadata.Swapchain{}
	}
	if !c.renderFinished.IsZero() {
		c.device.DestroySemaphore(c.renderFinished)
		c.renderFinished = metadata.SemaphoreHandle{}
	}
	if !c.imageAvailable.IsZero() {
		c.device.DestroySemaphore(c.imageAvailable)
		c.imageAvailable = metadata.SemaphoreHandle{}
	}
	// the command buffer goes with its pool
	if !c.pool.IsZero() {
		c.device.DestroyCommandPool(c.pool)
		c.pool = metadata.CommandPoolHandle{}
		c.cmd = metadata.CommandBufferHandle{}
	}
	c.state = StateInvalid
}
