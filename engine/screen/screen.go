// Package screen manages the screens a game switches between. Exactly one
// screen is current and rendered each frame.
package screen

import (
	"fmt"

	"github.com/spaghettifunk/magma/engine/containers"
	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer"
)

var ErrScreenNotFound = fmt.Errorf("%w: screen not found", core.ErrConfiguration)

type Screen interface {
	// Init runs once when the screen is pushed.
	Init(r *renderer.Renderer) error
	// OnClose runs when another screen replaces this one or it is removed.
	OnClose(r *renderer.Renderer)
	// Render queues the draws of one frame.
	Render(r *renderer.Renderer, deltaTime float64) error
}

type Handle struct{ containers.Handle }

type Manager struct {
	renderer *renderer.Renderer
	screens  *containers.Arena[Screen]
	current  Handle
}

func NewManager(r *renderer.Renderer) *Manager {
	return &Manager{
		renderer: r,
		screens:  containers.NewArena[Screen](),
	}
}

// Push initializes s and stores it. The first screen pushed becomes current.
func (m *Manager) Push(s Screen) (Handle, error) {
	if err := s.Init(m.renderer); err != nil {
		return Handle{}, fmt.Errorf("failed to initialize screen: %w", err)
	}
	h := Handle{m.screens.Insert(s)}
	if m.current.IsZero() {
		m.current = h
	}
	return h, nil
}

// Switch makes h current, closing the previous screen first.
func (m *Manager) Switch(h Handle) error {
	next, ok := m.screens.Get(h.Handle)
	if !ok {
		return ErrScreenNotFound
	}
	if h == m.current {
		return nil
	}
	if prev, ok := m.screens.Get(m.current.Handle); ok {
		prev.OnClose(m.renderer)
	}
	m.current = h
	core.LogDebug("switched to screen %T", next)
	return nil
}

func (m *Manager) Current() (Screen, bool) {
	return m.screens.Get(m.current.Handle)
}

func (m *Manager) CurrentHandle() Handle {
	return m.current
}

func (m *Manager) Get(h Handle) (Screen, bool) {
	return m.screens.Get(h.Handle)
}

// Remove drops the screen behind h. Removing the current screen closes it and
// leaves no screen current. The handle stops resolving afterwards.
func (m *Manager) Remove(h Handle) error {
	s, ok := m.screens.Remove(h.Handle)
	if !ok {
		return ErrScreenNotFound
	}
	if h == m.current {
		s.OnClose(m.renderer)
		m.current = Handle{}
	}
	return nil
}

func (m *Manager) Len() int {
	return m.screens.Len()
}

// Render renders the current screen, if any.
func (m *Manager) Render(deltaTime float64) error {
	s, ok := m.Current()
	if !ok {
		return nil
	}
	return s.Render(m.renderer, deltaTime)
}

// Destroy closes the current screen and forgets all of them.
func (m *Manager) Destroy() {
	if s, ok := m.Current(); ok {
		s.OnClose(m.renderer)
	}
	m.screens = containers.NewArena[Screen]()
	m.current = Handle{}
}
