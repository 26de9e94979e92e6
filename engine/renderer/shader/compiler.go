package shader

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
	"github.com/spaghettifunk/magma/engine/renderer/spirv"
)

// Compiler turns the shader source at path into SPIR-V words.
type Compiler interface {
	Compile(path string, stage metadata.ShaderStage) ([]uint32, error)
}

// CompilerFor picks the backend from the file extension: WGSL goes through
// naga, precompiled SPIR-V is loaded as is and everything else is GLSL.
func CompilerFor(path string) Compiler {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wgsl":
		return NagaCompiler{}
	case ".spv":
		return BinaryLoader{}
	default:
		return &GLSLCompiler{}
	}
}

func readSource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read shader %s: %s", core.ErrConfiguration, path, err)
	}
	return data, nil
}

// BinaryLoader reads already compiled SPIR-V.
type BinaryLoader struct{}

func (BinaryLoader) Compile(path string, stage metadata.ShaderStage) ([]uint32, error) {
	data, err := readSource(path)
	if err != nil {
		return nil, err
	}
	words, err := spirv.Words(data)
	if err != nil {
		return nil, &core.CompileError{Path: path, Diagnostic: err.Error()}
	}
	return words, nil
}

// NagaCompiler compiles WGSL in process.
type NagaCompiler struct{}

func (NagaCompiler) Compile(path string, stage metadata.ShaderStage) ([]uint32, error) {
	data, err := readSource(path)
	if err != nil {
		return nil, err
	}
	code, err := naga.Compile(string(data))
	if err != nil {
		return nil, &core.CompileError{Path: path, Diagnostic: err.Error()}
	}
	words, err := spirv.Words(code)
	if err != nil {
		return nil, &core.CompileError{Path: path, Diagnostic: err.Error()}
	}
	return words, nil
}

var glslStages = map[metadata.ShaderStage]string{
	metadata.ShaderStageVertex:   "vert",
	metadata.ShaderStageFragment: "frag",
}

// GLSLCompiler runs glslc. The binary is looked up on PATH unless Command is set.
type GLSLCompiler struct {
	Command string
	// Extra arguments, e.g. include directories.
	Args []string
}

func (c *GLSLCompiler) Compile(path string, stage metadata.ShaderStage) ([]uint32, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: cannot read shader %s: %s", core.ErrConfiguration, path, err)
	}
	name, ok := glslStages[stage]
	if !ok {
		return nil, fmt.Errorf("%w: no glslc stage for %s", core.ErrConfiguration, stage)
	}

	command := c.Command
	if command == "" {
		command = "glslc"
	}
	bin, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrCompilerUnavailable, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrConfiguration, err)
	}
	args := append([]string{"-fshader-stage=" + name}, c.Args...)
	args = append(args, abs, "-o", "-")
	// relative -I directories resolve against the shader directory
	stdout, stderr, err := executeCmd(bin, withArgs(args...), withDir(filepath.Dir(abs)))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &core.CompileError{Path: path, Diagnostic: strings.TrimSpace(stderr)}
		}
		return nil, fmt.Errorf("%w: %s", core.ErrCompilerUnavailable, err)
	}
	words, err := spirv.Words(stdout)
	if err != nil {
		return nil, &core.CompileError{Path: path, Diagnostic: err.Error()}
	}
	return words, nil
}

type cmdOptions struct {
	args []string
	dir  string
}

type cmdOption func(*cmdOptions)

func withArgs(args ...string) cmdOption {
	return func(o *cmdOptions) {
		o.args = args
	}
}

func withDir(dir string) cmdOption {
	return func(o *cmdOptions) {
		o.dir = dir
	}
}

func executeCmd(command string, options ...cmdOption) ([]byte, string, error) {
	opts := &cmdOptions{}
	for _, o := range options {
		o(opts)
	}

	core.LogDebug("executing: %s %s", command, strings.Join(opts.args, " "))
	cmd := exec.Command(command, opts.args...)
	if opts.dir != "" {
		cmd.Dir = opts.dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, stderr.String(), fmt.Errorf("error executing %s: %w", command, err)
	}
	return stdout.Bytes(), stderr.String(), nil
}
