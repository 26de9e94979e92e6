package screen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/magma/engine/renderer"
)

type fakeScreen struct {
	name     string
	initErr  error
	inits    int
	closes   int
	rendered []float64
}

func (s *fakeScreen) Init(*renderer.Renderer) error {
	s.inits++
	return s.initErr
}

func (s *fakeScreen) OnClose(*renderer.Renderer) {
	s.closes++
}

func (s *fakeScreen) Render(_ *renderer.Renderer, deltaTime float64) error {
	s.rendered = append(s.rendered, deltaTime)
	return nil
}

func TestPushMakesFirstCurrent(t *testing.T) {
	m := NewManager(nil)
	menu, game := &fakeScreen{name: "menu"}, &fakeScreen{name: "game"}

	hm, err := m.Push(menu)
	require.NoError(t, err)
	_, err = m.Push(game)
	require.NoError(t, err)

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Same(t, menu, cur)
	assert.Equal(t, hm, m.CurrentHandle())
	assert.Equal(t, 1, menu.inits)
	assert.Equal(t, 1, game.inits)
	assert.Equal(t, 2, m.Len())
}

func TestPushInitFailure(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Push(&fakeScreen{initErr: errors.New("no assets")})
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestSwitchClosesPrevious(t *testing.T) {
	m := NewManager(nil)
	menu, game := &fakeScreen{}, &fakeScreen{}
	_, err := m.Push(menu)
	require.NoError(t, err)
	hg, err := m.Push(game)
	require.NoError(t, err)

	require.NoError(t, m.Switch(hg))
	assert.Equal(t, 1, menu.closes)
	require.NoError(t, m.Switch(hg), "switching to the current screen is a no-op")
	assert.Equal(t, 0, game.closes)

	require.NoError(t, m.Render(0.016))
	assert.Equal(t, []float64{0.016}, game.rendered)
	assert.Empty(t, menu.rendered)
}

func TestRemovedHandleIsRejected(t *testing.T) {
	m := NewManager(nil)
	menu := &fakeScreen{}
	h, err := m.Push(menu)
	require.NoError(t, err)

	require.NoError(t, m.Remove(h))
	assert.Equal(t, 1, menu.closes)
	_, ok := m.Current()
	assert.False(t, ok)

	// the slot is reused with a new generation
	other, err := m.Push(&fakeScreen{})
	require.NoError(t, err)
	assert.Equal(t, h.Index(), other.Index())

	assert.ErrorIs(t, m.Switch(h), ErrScreenNotFound)
	assert.ErrorIs(t, m.Remove(h), ErrScreenNotFound)
	_, ok = m.Get(h)
	assert.False(t, ok)
	require.NoError(t, m.Render(1))
}

func TestDestroy(t *testing.T) {
	m := NewManager(nil)
	menu := &fakeScreen{}
	_, err := m.Push(menu)
	require.NoError(t, err)

	m.Destroy()
	assert.Equal(t, 1, menu.closes)
	assert.Equal(t, 0, m.Len())
	require.NoError(t, m.Render(1))
}
