// Package spirv reads the parts of a SPIR-V binary the renderer needs to
// derive vertex input and descriptor set layouts: names, decorations, types,
// global variables and entry points. Function bodies are skipped.
package spirv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const MagicNumber uint32 = 0x07230203

const headerWords = 5

var ErrInvalidModule = errors.New("invalid SPIR-V module")

type ExecutionModel uint32

const (
	ExecutionModelVertex   ExecutionModel = 0
	ExecutionModelFragment ExecutionModel = 4
)

type StorageClass uint32

const (
	StorageClassUniformConstant StorageClass = 0
	StorageClassInput           StorageClass = 1
	StorageClassUniform         StorageClass = 2
	StorageClassOutput          StorageClass = 3
	StorageClassStorageBuffer   StorageClass = 12
)

const (
	opName                         = 5
	opEntryPoint                   = 15
	opTypeVoid                     = 19
	opTypeBool                     = 20
	opTypeInt                      = 21
	opTypeFloat                    = 22
	opTypeVector                   = 23
	opTypeMatrix                   = 24
	opTypeImage                    = 25
	opTypeSampler                  = 26
	opTypeSampledImage             = 27
	opTypeArray                    = 28
	opTypeRuntimeArray             = 29
	opTypeStruct                   = 30
	opTypePointer                  = 32
	opConstant                     = 43
	opVariable                     = 59
	opDecorate                     = 71
	opTypeAccelerationStructureKHR = 5341
)

const (
	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationBuiltIn       = 11
	decorationLocation      = 30
	decorationBinding       = 33
	decorationDescriptorSet = 34
)

type typeKind int

const (
	kindOther typeKind = iota
	kindBool
	kindInt
	kindFloat
	kindVector
	kindMatrix
	kindImage
	kindSampler
	kindSampledImage
	kindArray
	kindRuntimeArray
	kindStruct
	kindPointer
	kindAccelerationStructure
)

type typeInfo struct {
	kind typeKind
	// int and float
	width  uint32
	signed bool
	// vector, matrix, array, pointer, sampled image
	elem  uint32
	count uint32
	// array length constant id
	length uint32
	// pointer
	storage StorageClass
	// image
	dim     uint32
	sampled uint32
}

type decorations struct {
	location    *uint32
	binding     *uint32
	set         *uint32
	builtIn     bool
	block       bool
	bufferBlock bool
}

type variable struct {
	id      uint32
	typeID  uint32
	storage StorageClass
}

type EntryPoint struct {
	Model     ExecutionModel
	Name      string
	Interface []uint32
}

// Module is a parsed SPIR-V binary.
type Module struct {
	Version     uint32
	Bound       uint32
	EntryPoints []EntryPoint

	names       map[uint32]string
	decorations map[uint32]*decorations
	types       map[uint32]*typeInfo
	constants   map[uint32]uint32
	variables   []variable
}

// Parse reads a binary as produced by a compiler. Both byte orders are
// accepted, the magic number decides which one is used.
func Parse(code []byte) (*Module, error) {
	words, err := Words(code)
	if err != nil {
		return nil, err
	}
	return ParseWords(words)
}

// Words splits a binary into host order words.
func Words(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: size %d is not a multiple of 4", ErrInvalidModule, len(code))
	}
	if len(code) < headerWords*4 {
		return nil, fmt.Errorf("%w: too short", ErrInvalidModule)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(code) != MagicNumber {
		if binary.BigEndian.Uint32(code) != MagicNumber {
			return nil, fmt.Errorf("%w: bad magic number %#08x", ErrInvalidModule, binary.LittleEndian.Uint32(code))
		}
		order = binary.BigEndian
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = order.Uint32(code[i*4:])
	}
	return words, nil
}

// ParseWords reads a binary already split into host order words.
func ParseWords(words []uint32) (*Module, error) {
	if len(words) < headerWords {
		return nil, fmt.Errorf("%w: too short", ErrInvalidModule)
	}
	if words[0] != MagicNumber {
		return nil, fmt.Errorf("%w: bad magic number %#08x", ErrInvalidModule, words[0])
	}
	m := &Module{
		Version:     words[1],
		Bound:       words[3],
		names:       make(map[uint32]string),
		decorations: make(map[uint32]*decorations),
		types:       make(map[uint32]*typeInfo),
		constants:   make(map[uint32]uint32),
	}

	for i := headerWords; i < len(words); {
		count := int(words[i] >> 16)
		op := words[i] & 0xffff
		if count == 0 || i+count > len(words) {
			return nil, fmt.Errorf("%w: truncated instruction %d at word %d", ErrInvalidModule, op, i)
		}
		if err := m.instruction(op, words[i+1:i+count]); err != nil {
			return nil, err
		}
		i += count
	}
	return m, nil
}

func (m *Module) instruction(op uint32, args []uint32) error {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%w: opcode %d needs %d operands, has %d", ErrInvalidModule, op, n, len(args))
		}
		return nil
	}

	switch op {
	case opName:
		if err := need(1); err != nil {
			return err
		}
		m.names[args[0]] = literalString(args[1:])
	case opEntryPoint:
		if err := need(3); err != nil {
			return err
		}
		name := literalString(args[2:])
		// the interface ids follow the nul terminated name
		skip := len(name)/4 + 1
		ep := EntryPoint{Model: ExecutionModel(args[0]), Name: name}
		if 2+skip < len(args) {
			ep.Interface = append([]uint32(nil), args[2+skip:]...)
		}
		m.EntryPoints = append(m.EntryPoints, ep)
	case opDecorate:
		if err := need(2); err != nil {
			return err
		}
		m.decorate(args[0], args[1], args[2:])
	case opTypeVoid:
		if err := need(1); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindOther}
	case opTypeBool:
		if err := need(1); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindBool}
	case opTypeInt:
		if err := need(3); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindInt, width: args[1], signed: args[2] == 1}
	case opTypeFloat:
		if err := need(2); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindFloat, width: args[1]}
	case opTypeVector, opTypeMatrix:
		if err := need(3); err != nil {
			return err
		}
		k := kindVector
		if op == opTypeMatrix {
			k = kindMatrix
		}
		m.types[args[0]] = &typeInfo{kind: k, elem: args[1], count: args[2]}
	case opTypeImage:
		if err := need(7); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindImage, elem: args[1], dim: args[2], sampled: args[6]}
	case opTypeSampler:
		if err := need(1); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindSampler}
	case opTypeSampledImage:
		if err := need(2); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindSampledImage, elem: args[1]}
	case opTypeArray:
		if err := need(3); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindArray, elem: args[1], length: args[2]}
	case opTypeRuntimeArray:
		if err := need(2); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindRuntimeArray, elem: args[1]}
	case opTypeStruct:
		if err := need(1); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindStruct}
	case opTypePointer:
		if err := need(3); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindPointer, storage: StorageClass(args[1]), elem: args[2]}
	case opTypeAccelerationStructureKHR:
		if err := need(1); err != nil {
			return err
		}
		m.types[args[0]] = &typeInfo{kind: kindAccelerationStructure}
	case opConstant:
		if err := need(3); err != nil {
			return err
		}
		m.constants[args[1]] = args[2]
	case opVariable:
		if err := need(3); err != nil {
			return err
		}
		m.variables = append(m.variables, variable{typeID: args[0], id: args[1], storage: StorageClass(args[2])})
	}
	return nil
}

func (m *Module) decorate(target, decoration uint32, operands []uint32) {
	d, ok := m.decorations[target]
	if !ok {
		d = &decorations{}
		m.decorations[target] = d
	}
	value := func() *uint32 {
		if len(operands) == 0 {
			return nil
		}
		v := operands[0]
		return &v
	}
	switch decoration {
	case decorationBlock:
		d.block = true
	case decorationBufferBlock:
		d.bufferBlock = true
	case decorationBuiltIn:
		d.builtIn = true
	case decorationLocation:
		d.location = value()
	case decorationBinding:
		d.binding = value()
	case decorationDescriptorSet:
		d.set = value()
	}
}

// ExecutionModel returns the model of the first entry point.
func (m *Module) ExecutionModel() (ExecutionModel, bool) {
	if len(m.EntryPoints) == 0 {
		return 0, false
	}
	return m.EntryPoints[0].Model, true
}

// Name returns the debug name of id, empty when the module carries none.
func (m *Module) Name(id uint32) string {
	return m.names[id]
}

func literalString(words []uint32) string {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(buf)
			}
			buf = append(buf, c)
		}
	}
	return string(buf)
}
