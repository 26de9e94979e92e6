package testbed

import (
	"math"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer"
	"github.com/spaghettifunk/magma/engine/renderer/batch"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

const (
	coloredPipeline  = "colored"
	texturedPipeline = "textured"
	textPipeline     = "text"
)

// shapesScreen draws a grid of colored quads and a spinning triangle.
type shapesScreen struct {
	overlay *overlay
	angle   float64
	time    float64
}

func (s *shapesScreen) Init(r *renderer.Renderer) error {
	_, err := r.FindPipeline(coloredPipeline)
	return err
}

func (s *shapesScreen) OnClose(r *renderer.Renderer) {}

func (s *shapesScreen) Render(r *renderer.Renderer, deltaTime float64) error {
	s.angle += deltaTime
	s.time += deltaTime

	if err := r.Clear(metadata.Color{R: 0.05, G: 0.05, B: 0.1, A: 1}); err != nil {
		return err
	}

	quads := batch.NewBufferBuilder(coloredPipeline, batch.PositionColor, batch.Quad)
	const cells = 4
	const size = 0.3
	for row := 0; row < cells; row++ {
		for col := 0; col < cells; col++ {
			x := -0.9 + float32(col)*0.35
			y := -0.6 + float32(row)*0.35
			red := float32(col) / cells
			blue := float32(row) / cells
			green := pulse(s.time+float64(row+col), 0.2, 0.8)
			quads.Begin(x, y).Color(red, green, blue).End()
			quads.Begin(x+size, y).Color(red, green, blue).End()
			quads.Begin(x+size, y+size).Color(red, green, blue).End()
			quads.Begin(x, y+size).Color(red, green, blue).End()
		}
	}
	if err := quads.Build(r.Batcher()); err != nil {
		return err
	}

	tri := batch.NewBufferBuilder(coloredPipeline, batch.PositionColor, batch.Triangle)
	cx, cy := float32(0.55), float32(0.0)
	for i := 0; i < 3; i++ {
		a := s.angle + float64(i)*2*math.Pi/3
		x := cx + 0.3*float32(math.Cos(a))
		y := cy + 0.3*float32(math.Sin(a))
		c := [3]float32{}
		c[i] = 1
		tri.Begin(x, y).Color(c[0], c[1], c[2]).End()
	}
	if err := tri.Build(r.Batcher()); err != nil {
		return err
	}

	return s.overlay.draw(r, "SHAPES")
}

// texturedScreen draws one texture twice with different coordinates.
type texturedScreen struct {
	overlay *overlay
	path    string
	texture *metadata.Texture
	time    float64
}

func (s *texturedScreen) Init(r *renderer.Renderer) error {
	if _, err := r.FindPipeline(texturedPipeline); err != nil {
		return err
	}
	t, err := r.LoadTexture(s.path)
	if err != nil {
		return err
	}
	s.texture = t
	return nil
}

func (s *texturedScreen) OnClose(r *renderer.Renderer) {
	core.LogDebug("leaving textured screen after %.1fs", s.time)
	s.time = 0
}

func (s *texturedScreen) Render(r *renderer.Renderer, deltaTime float64) error {
	s.time += deltaTime
	if err := r.Clear(metadata.Color{R: 0.1, G: 0.1, B: 0.1, A: 1}); err != nil {
		return err
	}

	// both quads share a texture and end up in one draw
	b := batch.NewBufferBuilder(texturedPipeline, batch.PositionTexCoord, batch.Quad).WithTexture(s.texture)
	b.Begin(-0.8, -0.6).TexCoord(0, 0).End()
	b.Begin(-0.1, -0.6).TexCoord(1, 0).End()
	b.Begin(-0.1, 0.1).TexCoord(1, 1).End()
	b.Begin(-0.8, 0.1).TexCoord(0, 1).End()

	// the second quad zooms in and out of the texture center
	inset := pulse(s.time, 0, 0.4)
	b.Begin(0.1, -0.6).TexCoord(inset, inset).End()
	b.Begin(0.8, -0.6).TexCoord(1-inset, inset).End()
	b.Begin(0.8, 0.1).TexCoord(1-inset, 1-inset).End()
	b.Begin(0.1, 0.1).TexCoord(inset, 1-inset).End()
	if err := b.Build(r.Batcher()); err != nil {
		return err
	}

	return s.overlay.draw(r, "TEXTURED")
}
