//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Compiles every GLSL shader under assets/shaders to a .spv file next to it.
func (Build) Shaders() error {
	entries, err := os.ReadDir(shaderDir)
	if err != nil {
		return err
	}
	compiled := 0
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".vert" && ext != ".frag") {
			continue
		}
		src := filepath.Join(shaderDir, e.Name())
		out := src + ".spv"
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return err
		}
		compiled++
	}
	fmt.Printf("compiled %d shaders\n", compiled)
	return nil
}

// Builds the testbed binary into bin/.
func (Build) Engine() error {
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", binaryName()), "."), withStream()); err != nil {
		return err
	}
	return nil
}

func binaryName() string {
	if strings.HasSuffix(os.Getenv("GOOS"), "windows") {
		return "magma.exe"
	}
	return "magma"
}
