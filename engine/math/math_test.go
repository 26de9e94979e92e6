package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(10), Clamp(uint32(4), 10, 20))
	assert.Equal(t, uint32(20), Clamp(uint32(40), 10, 20))
	assert.Equal(t, float32(0.5), Clamp(float32(0.5), 0, 1))
}

func TestPixelToNDC(t *testing.T) {
	assert.Equal(t, NewVec2(-1, -1), PixelToNDC(NewVec2(0, 0), 800, 600))
	assert.Equal(t, NewVec2(1, 1), PixelToNDC(NewVec2(800, 600), 800, 600))
	assert.Equal(t, NewVec2(0, 0), PixelToNDC(NewVec2(400, 300), 800, 600))
	assert.Equal(t, Vec2{}, PixelToNDC(NewVec2(1, 1), 0, 600))
}

func TestRectCorners(t *testing.T) {
	c := NewRect(10, 20, 30, 40).Corners()
	assert.Equal(t, [4]Vec2{{10, 20}, {40, 20}, {40, 60}, {10, 60}}, c)
}
