package metadata

import (
	"fmt"

	"github.com/spaghettifunk/magma/engine/core"
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Color is a linear RGBA clear color.
type Color struct {
	R, G, B, A float32
}

type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutTransferDst
	ImageLayoutColorAttachment
	ImageLayoutShaderReadOnly
	ImageLayoutPresentSrc
)

var imageLayoutNames = [...]string{"undefined", "transfer_dst", "color_attachment", "shader_read_only", "present_src"}

func (l ImageLayout) String() string {
	if l >= 0 && int(l) < len(imageLayoutNames) {
		return imageLayoutNames[l]
	}
	return fmt.Sprintf("ImageLayout(%d)", int(l))
}

// Transition is one of the image layout changes the renderer records.
type Transition int

const (
	TransitionUndefinedToTransferDst Transition = iota
	TransitionUndefinedToColorAttachment
	TransitionTransferDstToShaderReadOnly
	TransitionColorAttachmentToPresentSrc
)

type layoutPair struct {
	from, to ImageLayout
}

var transitions = map[layoutPair]Transition{
	{ImageLayoutUndefined, ImageLayoutTransferDst}:      TransitionUndefinedToTransferDst,
	{ImageLayoutUndefined, ImageLayoutColorAttachment}:  TransitionUndefinedToColorAttachment,
	{ImageLayoutTransferDst, ImageLayoutShaderReadOnly}: TransitionTransferDstToShaderReadOnly,
	{ImageLayoutColorAttachment, ImageLayoutPresentSrc}: TransitionColorAttachmentToPresentSrc,
}

// TransitionFor validates a layout change. Only four pairs are supported.
func TransitionFor(from, to ImageLayout) (Transition, error) {
	t, ok := transitions[layoutPair{from, to}]
	if !ok {
		return 0, fmt.Errorf("%w: %s -> %s", core.ErrUnsupportedTransition, from, to)
	}
	return t, nil
}
