package engine

import (
	"github.com/spaghettifunk/magma/engine/renderer"
	"github.com/spaghettifunk/magma/engine/screen"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Set by the engine before FnInitialize runs.
	Renderer *renderer.Renderer
	Screens  *screen.Manager
	State    interface{}

	FnInitialize Initialize
	FnUpdate     Update
	FnOnResize   OnResize
	FnOnKey      OnKey
	FnShutdown   Shutdown
}

// Initialize pushes the screens of the game.
type Initialize func() error
type Update func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error

// OnKey receives glfw key codes as they are pressed.
type OnKey func(keyCode int) error
