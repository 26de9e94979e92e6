package rendertest

import (
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

// Command is one recorded call. Only the fields relevant to Name are set.
type Command struct {
	Name      string
	Image     metadata.ImageHandle
	From, To  metadata.ImageLayout
	View      metadata.ImageViewHandle
	Extent    metadata.Extent2D
	Clear     *metadata.Color
	Pipeline  metadata.PipelineHandle
	Layout    metadata.PipelineLayoutHandle
	FirstSet  uint32
	Sets      []metadata.DescriptorSetHandle
	Buffer    metadata.BufferHandle
	IndexType metadata.IndexType
	Count     uint32
}

// Recorder implements metadata.CommandRecorder by appending to Commands.
type Recorder struct {
	Commands  []Command
	recording bool

	// shared with the device that owns the command buffer
	beginErrors *[]error
}

var _ metadata.CommandRecorder = (*Recorder)(nil)

func (r *Recorder) ImageBarrier(image metadata.ImageHandle, from, to metadata.ImageLayout) error {
	if _, err := metadata.TransitionFor(from, to); err != nil {
		return err
	}
	r.Commands = append(r.Commands, Command{Name: "barrier", Image: image, From: from, To: to})
	return nil
}

func (r *Recorder) BeginRendering(view metadata.ImageViewHandle, extent metadata.Extent2D, clear *metadata.Color) error {
	if r.beginErrors != nil {
		if err := pop(r.beginErrors); err != nil {
			return err
		}
	}
	r.Commands = append(r.Commands, Command{Name: "begin rendering", View: view, Extent: extent, Clear: clear})
	return nil
}

func (r *Recorder) EndRendering() {
	r.Commands = append(r.Commands, Command{Name: "end rendering"})
}

func (r *Recorder) BindPipeline(pipeline metadata.PipelineHandle) {
	r.Commands = append(r.Commands, Command{Name: "bind pipeline", Pipeline: pipeline})
}

func (r *Recorder) BindDescriptorSets(layout metadata.PipelineLayoutHandle, firstSet uint32, sets ...metadata.DescriptorSetHandle) {
	r.Commands = append(r.Commands, Command{Name: "bind descriptor sets", Layout: layout, FirstSet: firstSet, Sets: sets})
}

func (r *Recorder) BindVertexBuffer(buffer metadata.BufferHandle) {
	r.Commands = append(r.Commands, Command{Name: "bind vertex buffer", Buffer: buffer})
}

func (r *Recorder) BindIndexBuffer(buffer metadata.BufferHandle, indexType metadata.IndexType) {
	r.Commands = append(r.Commands, Command{Name: "bind index buffer", Buffer: buffer, IndexType: indexType})
}

func (r *Recorder) Draw(vertexCount uint32) {
	r.Commands = append(r.Commands, Command{Name: "draw", Count: vertexCount})
}

func (r *Recorder) DrawIndexed(indexCount uint32) {
	r.Commands = append(r.Commands, Command{Name: "draw indexed", Count: indexCount})
}

// Names lists the recorded command names in order.
func (r *Recorder) Names() []string {
	names := make([]string, len(r.Commands))
	for i, c := range r.Commands {
		names[i] = c.Name
	}
	return names
}

// Count returns how many commands named name were recorded.
func (r *Recorder) Count(name string) int {
	n := 0
	for _, c := range r.Commands {
		if c.Name == name {
			n++
		}
	}
	return n
}

func (r *Recorder) snapshot() *Recorder {
	return &Recorder{Commands: append([]Command(nil), r.Commands...)}
}
