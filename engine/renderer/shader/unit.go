// Package shader compiles single shader stages into device modules and
// reflects their vertex inputs and resource bindings.
package shader

import (
	"fmt"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/spirv"
)

type Device interface {
	CreateShaderModule(code []uint32) (metadata.ShaderModuleHandle, error)
	DestroyShaderModule(module metadata.ShaderModuleHandle)
}

var stageModels = map[metadata.ShaderStage]spirv.ExecutionModel{
	metadata.ShaderStageVertex:   spirv.ExecutionModelVertex,
	metadata.ShaderStageFragment: spirv.ExecutionModelFragment,
}

/**
 * @brief A single shader stage loaded from a source file.
 */
type Unit struct {
	/** @brief The source file. Read again on every compilation. */
	Path string
	/** @brief The stage this unit is used for. */
	Stage metadata.ShaderStage

	device   Device
	compiler Compiler

	code       []uint32
	module     *spirv.Module
	handle     metadata.ShaderModuleHandle
	entryPoint string
}

type Option func(*Unit)

// WithCompiler overrides the backend picked from the file extension.
func WithCompiler(c Compiler) Option {
	return func(u *Unit) {
		u.compiler = c
	}
}

func NewUnit(device Device, path string, stage metadata.ShaderStage, opts ...Option) *Unit {
	u := &Unit{
		Path:   path,
		Stage:  stage,
		device: device,
	}
	for _, o := range opts {
		o(u)
	}
	if u.compiler == nil {
		u.compiler = CompilerFor(path)
	}
	return u
}

// Compile reads and compiles the source, then swaps in a new device module.
// On failure the previous module and binary stay in place.
func (u *Unit) Compile() error {
	code, err := u.compiler.Compile(u.Path, u.Stage)
	if err != nil {
		core.LogError("shader %s: %s", u.Path, err)
		return err
	}
	module, err := spirv.ParseWords(code)
	if err != nil {
		return &core.CompileError{Path: u.Path, Diagnostic: err.Error()}
	}

	entryPoint := "main"
	if model, ok := module.ExecutionModel(); ok {
		if model != stageModels[u.Stage] {
			return fmt.Errorf("%w: shader %s is not a %s shader", core.ErrConfiguration, u.Path, u.Stage)
		}
		entryPoint = module.EntryPoints[0].Name
	}

	handle, err := u.device.CreateShaderModule(code)
	if err != nil {
		err = fmt.Errorf("failed to create shader module for %s: %w", u.Path, err)
		core.LogError("%s", err)
		return err
	}
	if !u.handle.IsZero() {
		u.device.DestroyShaderModule(u.handle)
	}
	u.code = code
	u.module = module
	u.handle = handle
	u.entryPoint = entryPoint
	core.LogDebug("compiled %s shader %s (%d words)", u.Stage, u.Path, len(code))
	return nil
}

// Handle returns the device module, the zero handle before the first Compile.
func (u *Unit) Handle() metadata.ShaderModuleHandle {
	return u.handle
}

// Code returns the SPIR-V words of the last successful compilation.
func (u *Unit) Code() []uint32 {
	return u.code
}

func (u *Unit) EntryPoint() string {
	if u.entryPoint == "" {
		return "main"
	}
	return u.entryPoint
}

// StageDesc describes the unit for pipeline creation.
func (u *Unit) StageDesc() metadata.ShaderStageDesc {
	return metadata.ShaderStageDesc{Stage: u.Stage, Module: u.handle, EntryPoint: u.EntryPoint()}
}

func (u *Unit) Destroy() {
	if !u.handle.IsZero() {
		u.device.DestroyShaderModule(u.handle)
		u.handle = metadata.ShaderModuleHandle{}
	}
	u.code = nil
	u.module = nil
}

func (u *Unit) compiled() error {
	if u.module == nil {
		return fmt.Errorf("%w: shader %s has not been compiled", core.ErrConfiguration, u.Path)
	}
	return nil
}
