package engine

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/magma/engine/assets"
	"github.com/spaghettifunk/magma/engine/config"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/platform"
	"github.com/spaghettifunk/magma/engine/renderer"
	"github.com/spaghettifunk/magma/engine/renderer/vulkan"
	"github.com/spaghettifunk/magma/engine/screen"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// frames between two metric log lines
const metricsInterval = 120

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    bool
	isSuspended  bool

	config   *config.EngineConfig
	events   *core.EventBus
	platform *platform.Platform
	device   *vulkan.Device
	renderer *renderer.Renderer
	screens  *screen.Manager
	watcher  *assets.Watcher

	width    uint32
	height   uint32
	clock    *core.Clock
	metrics  *core.FrameMetrics
	lastTime float64
	frames   uint64
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = &ApplicationConfig{}
	}
	cfg, err := g.ApplicationConfig.load()
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	core.SetLogLevel(cfg.Log.Level)

	events := core.NewEventBus()
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		events:       events,
		platform:     platform.New(events),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		isRunning:    true,
		isSuspended:  false,
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	// register some events
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e.onResized)
	e.events.Register(core.EVENT_CODE_ASSET_CHANGED, e.onAssetChanged)

	window := e.config.Window
	if err := e.platform.Startup(window.Name, window.X, window.Y, window.Width, window.Height); err != nil {
		return err
	}

	device, err := vulkan.New(e.platform, window.Name, e.config.Renderer.Validation)
	if err != nil {
		return err
	}
	e.device = device

	r, err := renderer.New(device, e.platform, e.config)
	if err != nil {
		return err
	}
	e.renderer = r
	e.screens = screen.NewManager(r)

	if e.config.Reload.Enabled {
		if err := e.startWatcher(); err != nil {
			// the engine runs fine without hot reload
			core.LogWarn("hot reload disabled: %s", err)
		}
	}

	e.gameInstance.Renderer = r
	e.gameInstance.Screens = e.screens
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return fmt.Errorf("failed to initialize game: %w", err)
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized")
	return nil
}

func (e *Engine) startWatcher() error {
	debounce := time.Duration(e.config.Reload.DebounceMs) * time.Millisecond
	w, err := assets.NewWatcher(debounce)
	if err != nil {
		return err
	}
	if err := w.Watch(e.config.Assets.ShaderDir(), e.config.Assets.PipelineDir()); err != nil {
		w.Close()
		return err
	}
	e.watcher = w
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		if !e.platform.PumpMessages() {
			e.isRunning = false
		}
		e.pollAssets()
		e.events.Dispatch()
		if !e.isRunning {
			break
		}

		if e.isSuspended {
			// nothing can be presented, wait for the window to come back
			e.platform.WaitMessages()
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.platform.GetAbsoluteTime()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				return err
			}
		}

		if err := checkFrame(e.drawFrame(delta)); err != nil {
			return err
		}

		e.metrics.Update(e.platform.GetAbsoluteTime() - frameStartTime)
		e.frames++
		if e.frames%metricsInterval == 0 {
			fps, ms := e.metrics.Frame()
			core.LogDebug("%.0f fps, %.3f ms/frame, %d batches", fps, ms, len(e.renderer.Stats()))
		}

		e.lastTime = currentTime
	}
	return nil
}

// checkFrame drops recoverable frame errors and hands fatal ones back to Run,
// which returns so the caller can shut down.
func checkFrame(err error) error {
	if err == nil {
		return nil
	}
	if core.IsFatal(err) {
		core.LogError("Frame failed, shutting down: %s", err)
		return err
	}
	core.LogWarn("frame dropped: %s", err)
	return nil
}

// drawFrame renders the current screen. A skipped frame is not an error.
func (e *Engine) drawFrame(delta float64) error {
	ok, err := e.renderer.Begin()
	if err != nil || !ok {
		return err
	}
	renderErr := e.screens.Render(delta)
	if _, err := e.renderer.End(); err != nil {
		return err
	}
	return renderErr
}

// pollAssets turns watcher output into events for the render thread.
func (e *Engine) pollAssets() {
	if e.watcher == nil {
		return
	}
	for {
		select {
		case err := <-e.watcher.Errors():
			core.LogWarn("asset watcher: %s", err)
			continue
		default:
		}
		break
	}
	change, ok := e.watcher.Poll()
	if !ok {
		return
	}
	e.events.Fire(core.EventContext{
		Type: core.EVENT_CODE_ASSET_CHANGED,
		Data: core.AssetEvent{Paths: change.Paths, Recompile: change.NeedsRecompile()},
	})
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			core.LogWarn("failed to close asset watcher: %s", err)
		}
	}
	if e.screens != nil {
		e.screens.Destroy()
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogWarn("game shutdown failed: %s", err)
		}
	}
	if e.renderer != nil {
		e.renderer.Shutdown()
	}
	if e.device != nil {
		e.device.Shutdown()
	}
	return e.platform.Shutdown()
}

// Quit stops the loop after the current frame. Safe from any goroutine.
func (e *Engine) Quit() {
	e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	e.platform.Wake()
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	core.LogDebug("key %d pressed", ke.KeyCode)
	if e.gameInstance.FnOnKey != nil {
		if err := e.gameInstance.FnOnKey(ke.KeyCode); err != nil {
			core.LogError("%s", err)
		}
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	re, ok := context.Data.(core.ResizeEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	if re.Width == e.width && re.Height == e.height {
		return false
	}
	e.width, e.height = re.Width, re.Height
	core.LogDebug("Window resize: %d, %d", re.Width, re.Height)

	// Handle minimization
	if re.Width == 0 || re.Height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(re.Width, re.Height); err != nil {
			core.LogError("%s", err)
		}
	}
	return true
}

// onAssetChanged reloads the renderer. Compilation errors leave the previous
// pipelines in place, so they only cost a warning.
func (e *Engine) onAssetChanged(context core.EventContext) bool {
	ae, ok := context.Data.(core.AssetEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	core.LogInfo("%d asset files changed, reloading (recompile: %t)", len(ae.Paths), ae.Recompile)
	if err := e.renderer.Reload(ae.Recompile); err != nil {
		if core.IsFatal(err) {
			core.LogError("reload failed: %s", err)
			e.isRunning = false
		} else {
			core.LogWarn("reload kept previous pipelines: %s", err)
		}
	}
	return true
}
