package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

/**
 * @brief The glfw window the renderer presents to. Window events are turned
 * into engine events on the bus given to New.
 */
type Platform struct {
	Window *glfw.Window

	events   *core.EventBus
	onResize []func(metadata.Extent2D)
}

func New(events *core.EventBus) *Platform {
	return &Platform{
		Window: nil,
		events: events,
	}
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		err = fmt.Errorf("%w: failed to initialize glfw: %s", core.ErrDevice, err)
		core.LogError("%s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		err := fmt.Errorf("%w: glfw reports no Vulkan loader", core.ErrDevice)
		core.LogError("%s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		err = fmt.Errorf("%w: failed to create window: %s", core.ErrDevice, err)
		core.LogError("%s", err)
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events. It returns false once the
// window has been asked to close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// WaitMessages blocks until a window event arrives, used while minimized.
func (p *Platform) WaitMessages() {
	glfw.WaitEvents()
}

// Wake unblocks WaitMessages. Safe from any goroutine.
func (p *Platform) Wake() {
	if p.Window != nil {
		glfw.PostEmptyEvent()
	}
}

func (p *Platform) GetAbsoluteTime() float64 {
	return glfw.GetTime()
}

// Extent returns the framebuffer size in pixels, zero when minimized.
func (p *Platform) Extent() metadata.Extent2D {
	if p.Window == nil {
		return metadata.Extent2D{}
	}
	w, h := p.Window.GetFramebufferSize()
	if w < 0 || h < 0 {
		return metadata.Extent2D{}
	}
	return metadata.Extent2D{Width: uint32(w), Height: uint32(h)}
}

func (p *Platform) OnResize(fn func(metadata.Extent2D)) {
	p.onResize = append(p.onResize, fn)
}

// RequiredInstanceExtensions lists the instance extensions glfw needs for surfaces.
func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateWindowSurface(instance interface{}) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if p.events == nil {
		return
	}
	switch action {
	case glfw.Press:
		p.events.Fire(core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, Data: core.KeyEvent{KeyCode: int(key)}})
		if key == glfw.KeyEscape {
			p.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		}
	case glfw.Release:
		p.events.Fire(core.EventContext{Type: core.EVENT_CODE_KEY_RELEASED, Data: core.KeyEvent{KeyCode: int(key)}})
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	extent := metadata.Extent2D{Width: uint32(width), Height: uint32(height)}
	for _, fn := range p.onResize {
		fn(extent)
	}
	if p.events != nil {
		p.events.Fire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: core.ResizeEvent{Width: extent.Width, Height: extent.Height}})
	}
}

func (p *Platform) closeCallback(w *glfw.Window) {
	if p.events != nil {
		p.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	}
}
