package testbed

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/magma/engine"
	"github.com/spaghettifunk/magma/engine/config"
	"github.com/spaghettifunk/magma/engine/core"
	emath "github.com/spaghettifunk/magma/engine/math"
	"github.com/spaghettifunk/magma/engine/screen"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	overlay *overlay
	screens []screen.Handle
	current int
	elapsed float64
}

func NewTestGame() (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				ConfigPath: "assets/engine.toml",
				Override: func(cfg *config.EngineConfig) {
					if os.Getenv("MAGMA_DEBUG") != "" {
						cfg.Log.Level = core.DebugLevel
						cfg.Renderer.Validation = true
					}
				},
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnOnKey = tg.OnKey
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.Renderer == nil || g.Screens == nil {
		return fmt.Errorf("the engine is not yet initialized with a renderer")
	}
	state := g.State.(*gameState)
	extent := g.Renderer.Frame().Extent()
	state.width, state.height = extent.Width, extent.Height

	state.overlay = newOverlay(g.Renderer, filepath.Join("assets", "fonts", "mono.fnt"))

	shapes, err := g.Screens.Push(&shapesScreen{overlay: state.overlay})
	if err != nil {
		return err
	}
	textured, err := g.Screens.Push(&texturedScreen{
		overlay: state.overlay,
		path:    filepath.Join("assets", "textures", "checker.png"),
	})
	if err != nil {
		return err
	}
	state.screens = []screen.Handle{shapes, textured}
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.elapsed += deltaTime
	state.overlay.update(deltaTime, g.Renderer)
	return nil
}

func (g *TestGame) OnKey(keyCode int) error {
	state := g.State.(*gameState)
	switch glfw.Key(keyCode) {
	case glfw.KeySpace, glfw.KeyTab:
		state.current = (state.current + 1) % len(state.screens)
		return g.Screens.Switch(state.screens[state.current])
	case glfw.KeyR:
		// force a full rebuild, as if every shader had changed
		if err := g.Renderer.Reload(true); err != nil && core.IsFatal(err) {
			return err
		}
	case glfw.KeyF:
		state.overlay.visible = !state.overlay.visible
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	core.LogDebug("testbed resized to %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	if state.overlay != nil {
		state.overlay.destroy(g.Renderer)
	}
	return nil
}

// pulse maps t onto [lo, hi] with a period of two pi seconds.
func pulse(t float64, lo, hi float32) float32 {
	s := float32(math.Sin(t)*0.5 + 0.5)
	return lo + (hi-lo)*s
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

var white = emath.NewVec3(1, 1, 1)
