package renderer

import (
	"image"

	"github.com/spaghettifunk/magma/engine/renderer/batch"
	"github.com/spaghettifunk/magma/engine/renderer/descriptor"
	"github.com/spaghettifunk/magma/engine/renderer/frame"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/pipeline"
)

// Device is everything the renderer needs from a graphics backend. The
// Vulkan backend implements it, so does the in-memory device tests use.
type Device interface {
	pipeline.Device
	descriptor.Device
	batch.Device
	frame.Device

	// CreateTexture uploads img and leaves it ready for sampling.
	CreateTexture(name string, img *image.RGBA) (*metadata.Texture, error)
	DestroyTexture(texture *metadata.Texture)
}

// Surface is the window the swapchain presents to.
type Surface interface {
	frame.Surface
	OnResize(fn func(metadata.Extent2D))
}
