package rendertest

import "github.com/spaghettifunk/magma/engine/renderer/metadata"

// Surface is a window stand-in with a settable size.
type Surface struct {
	Size     metadata.Extent2D
	handlers []func(metadata.Extent2D)
}

func NewSurface(width, height uint32) *Surface {
	return &Surface{Size: metadata.Extent2D{Width: width, Height: height}}
}

func (s *Surface) Extent() metadata.Extent2D {
	return s.Size
}

func (s *Surface) OnResize(fn func(metadata.Extent2D)) {
	s.handlers = append(s.handlers, fn)
}

// Resize changes the size and notifies the resize handlers.
func (s *Surface) Resize(width, height uint32) {
	s.Size = metadata.Extent2D{Width: width, Height: height}
	for _, fn := range s.handlers {
		fn(s.Size)
	}
}
