package rendertest

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

const (
	opName          = 5
	opEntryPoint    = 15
	opTypeInt       = 21
	opTypeFloat     = 22
	opTypeVector    = 23
	opTypeImage     = 25
	opTypeSampled   = 27
	opTypeArray     = 28
	opTypeStruct    = 30
	opTypePointer   = 32
	opConstant      = 43
	opVariable      = 59
	opDecorate      = 71
	opTypeAccelKHR  = 5341
	decorBlock      = 2
	decorBuiltIn    = 11
	decorLocation   = 30
	decorBinding    = 33
	decorSet        = 34
	storageConstant = 0
	storageInput    = 1
	storageUniform  = 2
	storageBuffer   = 12
)

// ShaderBuilder assembles minimal SPIR-V modules carrying only the interface
// the renderer reflects.
type ShaderBuilder struct {
	model     uint32
	words     []uint32
	next      uint32
	scalars   map[metadata.ScalarKind]uint32
	vectors   map[[2]uint32]uint32
	iface     []uint32
	entryName string
}

func newShaderBuilder(model uint32) *ShaderBuilder {
	return &ShaderBuilder{
		model:     model,
		next:      1,
		scalars:   make(map[metadata.ScalarKind]uint32),
		vectors:   make(map[[2]uint32]uint32),
		entryName: "main",
	}
}

func VertexShader() *ShaderBuilder { return newShaderBuilder(0) }

func FragmentShader() *ShaderBuilder { return newShaderBuilder(4) }

func (b *ShaderBuilder) id() uint32 {
	b.next++
	return b.next - 1
}

func (b *ShaderBuilder) op(code uint32, operands ...uint32) {
	b.words = append(b.words, uint32(len(operands)+1)<<16|code)
	b.words = append(b.words, operands...)
}

func literal(s string) []uint32 {
	buf := append([]byte(s), 0)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out
}

func (b *ShaderBuilder) scalar(kind metadata.ScalarKind) uint32 {
	if id, ok := b.scalars[kind]; ok {
		return id
	}
	id := b.id()
	switch kind {
	case metadata.ScalarFloat:
		b.op(opTypeFloat, id, 32)
	case metadata.ScalarSint:
		b.op(opTypeInt, id, 32, 1)
	default:
		b.op(opTypeInt, id, 32, 0)
	}
	b.scalars[kind] = id
	return id
}

func (b *ShaderBuilder) vector(kind metadata.ScalarKind, components uint32) uint32 {
	elem := b.scalar(kind)
	if components == 1 {
		return elem
	}
	key := [2]uint32{elem, components}
	if id, ok := b.vectors[key]; ok {
		return id
	}
	id := b.id()
	b.op(opTypeVector, id, elem, components)
	b.vectors[key] = id
	return id
}

func (b *ShaderBuilder) variable(storage, typeID uint32, name string) uint32 {
	ptr := b.id()
	b.op(opTypePointer, ptr, storage, typeID)
	v := b.id()
	b.op(opVariable, ptr, v, storage)
	if name != "" {
		b.op(opName, append([]uint32{v}, literal(name)...)...)
	}
	return v
}

// EntryPoint renames the entry point, "main" by default.
func (b *ShaderBuilder) EntryPoint(name string) *ShaderBuilder {
	b.entryName = name
	return b
}

// Input declares a 32-bit vertex input.
func (b *ShaderBuilder) Input(location uint32, kind metadata.ScalarKind, components uint32) *ShaderBuilder {
	v := b.variable(storageInput, b.vector(kind, components), fmt.Sprintf("in%d", location))
	b.op(opDecorate, v, decorLocation, location)
	b.iface = append(b.iface, v)
	return b
}

// BuiltInInput declares an input such as gl_VertexIndex.
func (b *ShaderBuilder) BuiltInInput() *ShaderBuilder {
	v := b.variable(storageInput, b.scalar(metadata.ScalarSint), "gl_VertexIndex")
	b.op(opDecorate, v, decorBuiltIn, 42)
	b.iface = append(b.iface, v)
	return b
}

func (b *ShaderBuilder) bind(v, set, binding uint32) {
	b.op(opDecorate, v, decorSet, set)
	b.op(opDecorate, v, decorBinding, binding)
}

func (b *ShaderBuilder) UniformBuffer(set, binding uint32) *ShaderBuilder {
	st := b.id()
	b.op(opTypeStruct, st, b.scalar(metadata.ScalarFloat))
	b.op(opDecorate, st, decorBlock)
	b.bind(b.variable(storageUniform, st, "ubo"), set, binding)
	return b
}

func (b *ShaderBuilder) StorageBuffer(set, binding uint32) *ShaderBuilder {
	st := b.id()
	b.op(opTypeStruct, st, b.scalar(metadata.ScalarFloat))
	b.op(opDecorate, st, decorBlock)
	b.bind(b.variable(storageBuffer, st, "ssbo"), set, binding)
	return b
}

// Sampler2D declares a combined image sampler, an array when count > 1.
func (b *ShaderBuilder) Sampler2D(set, binding, count uint32) *ShaderBuilder {
	img := b.id()
	b.op(opTypeImage, img, b.scalar(metadata.ScalarFloat), 1, 0, 0, 0, 1, 0)
	sampled := b.id()
	b.op(opTypeSampled, sampled, img)
	t := sampled
	if count > 1 {
		n := b.id()
		b.op(opConstant, b.scalar(metadata.ScalarUint), n, count)
		t = b.id()
		b.op(opTypeArray, t, sampled, n)
	}
	b.bind(b.variable(storageConstant, t, "tex"), set, binding)
	return b
}

func (b *ShaderBuilder) AccelerationStructure(set, binding uint32) *ShaderBuilder {
	t := b.id()
	b.op(opTypeAccelKHR, t)
	b.bind(b.variable(storageConstant, t, "tlas"), set, binding)
	return b
}

// Words returns the finished module.
func (b *ShaderBuilder) Words() []uint32 {
	body := append([]uint32(nil), b.words...)
	entry := b.id()
	operands := append([]uint32{b.model, entry}, literal(b.entryName)...)
	operands = append(operands, b.iface...)
	ep := append([]uint32{uint32(len(operands)+1)<<16 | opEntryPoint}, operands...)

	out := []uint32{0x07230203, 0x00010300, 0, b.next, 0}
	out = append(out, ep...)
	return append(out, body...)
}

// Compiler serves prepared SPIR-V by path.
type Compiler struct {
	mu      sync.Mutex
	sources map[string][]uint32
	errors  map[string]error
	Calls   map[string]int
}

func NewCompiler() *Compiler {
	return &Compiler{
		sources: make(map[string][]uint32),
		errors:  make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// Set replaces the module served for path and clears any pending failure.
func (c *Compiler) Set(path string, b *ShaderBuilder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[path] = b.Words()
	delete(c.errors, path)
}

// Fail makes compilations of path report diagnostic until Set is called again.
func (c *Compiler) Fail(path, diagnostic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[path] = &core.CompileError{Path: path, Diagnostic: diagnostic}
}

func (c *Compiler) Compile(path string, stage metadata.ShaderStage) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls[path]++
	if err, ok := c.errors[path]; ok {
		return nil, err
	}
	words, ok := c.sources[path]
	if !ok {
		return nil, fmt.Errorf("%w: cannot read shader %s", core.ErrConfiguration, path)
	}
	return append([]uint32(nil), words...), nil
}
