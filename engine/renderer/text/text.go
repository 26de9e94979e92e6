// Package text draws strings with AngelCode bitmap fonts.
package text

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/fzipp/bmfont"

	"github.com/spaghettifunk/magma/engine/core"
	emath "github.com/spaghettifunk/magma/engine/math"
	"github.com/spaghettifunk/magma/engine/renderer/batch"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

// Textures loads the page images of a font.
type Textures interface {
	LoadTexture(path string) (*metadata.Texture, error)
}

type Glyph struct {
	X, Y          int
	Width, Height int
	XOffset       int
	YOffset       int
	XAdvance      int
	Page          int
}

type kerningPair struct {
	first, second rune
}

/**
 * @brief A bitmap font with one texture per page.
 */
type Font struct {
	/** @brief The font face name. */
	Face string
	/** @brief The size the font was rendered at, in pixels. */
	Size int
	/** @brief The distance between two lines, in pixels. */
	LineHeight int
	/** @brief The distance from the top of a line to the baseline. */
	Base int

	scaleW, scaleH int
	glyphs         map[rune]Glyph
	kerning        map[kerningPair]int
	pages          map[int]*metadata.Texture
}

// Load reads the .fnt file at path and loads every page it references,
// relative to the file.
func Load(path string, textures Textures) (*Font, error) {
	bf, err := bmfont.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load font %s: %s", core.ErrConfiguration, path, err)
	}
	f := newFont(bf.Descriptor)
	dir := filepath.Dir(path)
	for _, page := range bf.Descriptor.Pages {
		tex, err := textures.LoadTexture(filepath.Join(dir, page.File))
		if err != nil {
			return nil, err
		}
		f.pages[page.ID] = tex
	}
	core.LogDebug("loaded font %s (%d glyphs, %d pages)", f.Face, len(f.glyphs), len(f.pages))
	return f, nil
}

func newFont(desc *bmfont.Descriptor) *Font {
	f := &Font{
		Face:       desc.Info.Face,
		Size:       desc.Info.Size,
		LineHeight: desc.Common.LineHeight,
		Base:       desc.Common.Base,
		scaleW:     desc.Common.ScaleW,
		scaleH:     desc.Common.ScaleH,
		glyphs:     make(map[rune]Glyph, len(desc.Chars)),
		kerning:    make(map[kerningPair]int, len(desc.Kerning)),
		pages:      make(map[int]*metadata.Texture, len(desc.Pages)),
	}
	for _, c := range desc.Chars {
		f.glyphs[c.ID] = Glyph{
			X:        c.X,
			Y:        c.Y,
			Width:    c.Width,
			Height:   c.Height,
			XOffset:  c.XOffset,
			YOffset:  c.YOffset,
			XAdvance: c.XAdvance,
			Page:     c.Page,
		}
	}
	for pair, k := range desc.Kerning {
		f.kerning[kerningPair{pair.First, pair.Second}] = k.Amount
	}
	return f
}

func (f *Font) Glyph(r rune) (Glyph, bool) {
	g, ok := f.glyphs[r]
	return g, ok
}

// Kerning returns the horizontal adjustment between first and second.
func (f *Font) Kerning(first, second rune) int {
	return f.kerning[kerningPair{first, second}]
}

func (f *Font) Page(id int) (*metadata.Texture, bool) {
	t, ok := f.pages[id]
	return t, ok
}

// Textures returns the page textures, ordered by page id.
func (f *Font) Textures() []*metadata.Texture {
	ids := make([]int, 0, len(f.pages))
	for id := range f.pages {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*metadata.Texture, len(ids))
	for i, id := range ids {
		out[i] = f.pages[id]
	}
	return out
}

// Measure returns the width of the widest line and the total height of text
// in font pixels.
func (f *Font) Measure(text string) (width, height int) {
	lines := 1
	x := 0
	var prev rune
	for _, r := range text {
		if r == '\n' {
			width = max(width, x)
			x = 0
			prev = 0
			lines++
			continue
		}
		g, ok := f.lookup(r)
		if !ok {
			continue
		}
		x += f.Kerning(prev, r) + g.XAdvance
		prev = r
	}
	return max(width, x), lines * f.LineHeight
}

// lookup falls back to '?' for characters the font does not have.
func (f *Font) lookup(r rune) (Glyph, bool) {
	if g, ok := f.glyphs[r]; ok {
		return g, true
	}
	g, ok := f.glyphs['?']
	return g, ok
}

// Draw queues text with its top left corner at x, y. Font pixels are scaled
// by scale in both directions.
func (f *Font) Draw(batcher *batch.Batcher, pipeline string, text string, x, y, scale float32, color emath.Vec3) error {
	return f.DrawScaled(batcher, pipeline, text, x, y, scale, scale, color)
}

// DrawScaled is Draw with separate horizontal and vertical scales, for
// targets whose coordinates are not square.
func (f *Font) DrawScaled(batcher *batch.Batcher, pipeline string, text string, x, y, sx, sy float32, color emath.Vec3) error {
	builders := make(map[int]*batch.BufferBuilder)
	var order []int

	penX, penY := x, y
	var prev rune
	for _, r := range text {
		if r == '\n' {
			penX = x
			penY += float32(f.LineHeight) * sy
			prev = 0
			continue
		}
		g, ok := f.lookup(r)
		if !ok {
			core.LogDebug("font %s has no glyph for %q", f.Face, r)
			continue
		}
		penX += float32(f.Kerning(prev, r)) * sx
		prev = r

		if g.Width > 0 && g.Height > 0 {
			b, ok := builders[g.Page]
			if !ok {
				tex, found := f.pages[g.Page]
				if !found {
					return fmt.Errorf("%w: font %s has no page %d", core.ErrConfiguration, f.Face, g.Page)
				}
				b = batch.NewBufferBuilder(pipeline, batch.PositionTexCoordColor, batch.Quad).WithTexture(tex)
				builders[g.Page] = b
				order = append(order, g.Page)
			}
			f.quad(b, g, penX, penY, sx, sy, color)
		}
		penX += float32(g.XAdvance) * sx
	}

	for _, page := range order {
		if err := builders[page].Build(batcher); err != nil {
			return err
		}
	}
	return nil
}

// quad emits the corners top left, bottom left, bottom right, top right.
func (f *Font) quad(b *batch.BufferBuilder, g Glyph, x, y, sx, sy float32, color emath.Vec3) {
	x0 := x + float32(g.XOffset)*sx
	y0 := y + float32(g.YOffset)*sy
	x1 := x0 + float32(g.Width)*sx
	y1 := y0 + float32(g.Height)*sy

	u0 := float32(g.X) / float32(f.scaleW)
	v0 := float32(g.Y) / float32(f.scaleH)
	u1 := float32(g.X+g.Width) / float32(f.scaleW)
	v1 := float32(g.Y+g.Height) / float32(f.scaleH)

	b.Begin(x0, y0).TexCoord(u0, v0).Color(color.X, color.Y, color.Z).End()
	b.Begin(x0, y1).TexCoord(u0, v1).Color(color.X, color.Y, color.Z).End()
	b.Begin(x1, y1).TexCoord(u1, v1).Color(color.X, color.Y, color.Z).End()
	b.Begin(x1, y0).TexCoord(u1, v0).Color(color.X, color.Y, color.Z).End()
}
