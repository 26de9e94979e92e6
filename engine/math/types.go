package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

// Rect is an axis aligned rectangle with its origin at the top left corner.
type Rect struct {
	Position Vec2
	Size     Vec2
}
