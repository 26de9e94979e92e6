package core

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogKeepsPercentInErrors(t *testing.T) {
	var buf bytes.Buffer
	l := getLogger()
	l.SetOutput(&buf)
	t.Cleanup(func() { l.SetOutput(os.Stderr) })

	err := errors.New("shaders/quad.vert: 100% of bindings unused, %d expected")
	LogError("%s", err)
	LogWarn("%s", err)

	out := buf.String()
	assert.Contains(t, out, "100% of bindings unused, %d expected")
	assert.NotContains(t, out, "%!")
}
