package core

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the renderer wraps one of these.
var (
	// ErrConfiguration marks missing or invalid pipeline, shader or engine settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrCompilation marks a shader that failed to compile. The previous pipeline stays usable.
	ErrCompilation = errors.New("shader compilation failed")
	// ErrDevice marks a failed device call. Always fatal.
	ErrDevice = errors.New("device error")
)

var (
	ErrCompilerUnavailable       = fmt.Errorf("%w: shader compiler unavailable", ErrConfiguration)
	ErrPipelineNotFound          = fmt.Errorf("%w: pipeline not found", ErrConfiguration)
	ErrInvalidSetIndex           = fmt.Errorf("%w: invalid descriptor set index", ErrConfiguration)
	ErrInvalidBinding            = fmt.Errorf("%w: invalid descriptor binding", ErrConfiguration)
	ErrDescriptorKindMismatch    = fmt.Errorf("%w: resource does not match descriptor kind", ErrConfiguration)
	ErrUnsupportedDescriptorKind = fmt.Errorf("%w: unsupported descriptor kind", ErrConfiguration)
	ErrUnsupportedTransition     = fmt.Errorf("%w: unsupported image layout transition", ErrConfiguration)
	ErrBuilderConsumed           = errors.New("buffer builder already built")
	ErrIncompletePrimitive       = errors.New("vertex count does not match topology")
	ErrPipelineCreation          = errors.New("pipeline creation failed")
	ErrSwapchainOutOfDate        = errors.New("swapchain out of date")
)

// CompileError carries the diagnostic text produced by a shader compiler.
type CompileError struct {
	Path       string
	Diagnostic string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("failed to compile %s: %s", e.Path, e.Diagnostic)
}

func (e *CompileError) Unwrap() error {
	return ErrCompilation
}

// IsFatal reports whether err leaves the engine without a valid rendering path.
// Compilation errors and out-of-date swapchains are recoverable, everything else is not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrCompilation) && !errors.Is(err, ErrSwapchainOutOfDate)
}
