package testbed

import (
	"fmt"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer"
	"github.com/spaghettifunk/magma/engine/renderer/text"
)

// overlay prints the frame statistics in the top left corner.
type overlay struct {
	font    *text.Font
	visible bool

	fps     float64
	draws   int
	refresh float64
}

// newOverlay loads the font at path. Without a font the overlay stays hidden.
func newOverlay(r *renderer.Renderer, path string) *overlay {
	o := &overlay{}
	if !fileExists(path) {
		core.LogWarn("no font at %s, text overlay disabled", path)
		return o
	}
	if _, err := r.FindPipeline(textPipeline); err != nil {
		core.LogWarn("text overlay disabled: %s", err)
		return o
	}
	f, err := text.Load(path, r)
	if err != nil {
		core.LogWarn("text overlay disabled: %s", err)
		return o
	}
	o.font = f
	o.visible = true
	return o
}

func (o *overlay) update(deltaTime float64, r *renderer.Renderer) {
	o.refresh -= deltaTime
	if o.refresh > 0 {
		return
	}
	o.refresh = 0.5
	if deltaTime > 0 {
		o.fps = 1 / deltaTime
	}
	o.draws = len(r.Stats())
}

func (o *overlay) draw(r *renderer.Renderer, title string) error {
	if o.font == nil || !o.visible {
		return nil
	}
	extent := r.Frame().Extent()
	if extent.Width == 0 || extent.Height == 0 {
		return nil
	}
	// font pixels to normalized device coordinates
	sx := 2 / float32(extent.Width)
	sy := 2 / float32(extent.Height)
	line := fmt.Sprintf("%s  FPS %.0f  DRAWS %d\nSPACE: NEXT  R: RELOAD  F: HIDE", title, o.fps, o.draws)
	return o.font.DrawScaled(r.Batcher(), textPipeline, line, -0.97, -0.97, 2*sx, 2*sy, white)
}

func (o *overlay) destroy(r *renderer.Renderer) {
	if o.font == nil {
		return
	}
	for _, t := range o.font.Textures() {
		r.DestroyTexture(t)
	}
	o.font = nil
}
