package math

// NewVec2 creates and returns a new 2-element vector using the supplied values.
func NewVec2(x, y float32) Vec2 {
	return Vec2{X: x, Y: y}
}

func NewVec2Zero() Vec2 {
	return Vec2{}
}

func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

func (v Vec2) Scale(s float32) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// NewVec3 creates and returns a new 3-element vector using the supplied values.
func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func NewVec3One() Vec3 {
	return Vec3{X: 1, Y: 1, Z: 1}
}

func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

func NewRect(x, y, w, h float32) Rect {
	return Rect{Position: Vec2{X: x, Y: y}, Size: Vec2{X: w, Y: h}}
}

// Corners returns the corners of r in top-left, top-right, bottom-right, bottom-left order.
func (r Rect) Corners() [4]Vec2 {
	x0, y0 := r.Position.X, r.Position.Y
	x1, y1 := x0+r.Size.X, y0+r.Size.Y
	return [4]Vec2{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

// PixelToNDC maps a pixel position on a width x height target to Vulkan
// normalized device coordinates, where (-1,-1) is the top left corner.
func PixelToNDC(p Vec2, width, height uint32) Vec2 {
	if width == 0 || height == 0 {
		return Vec2{}
	}
	return Vec2{
		X: p.X/float32(width)*2 - 1,
		Y: p.Y/float32(height)*2 - 1,
	}
}
