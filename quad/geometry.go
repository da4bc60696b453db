// Package quad holds the geometry and per-frame transform of the rendered
// object.
package quad

import "github.com/go-gl/mathgl/mgl32"

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Two textured quads, the second half a unit behind the first.
var quadVertices = []Vertex{
	{Position: mgl32.Vec3{-0.5, -0.5, 0}, Color: mgl32.Vec3{0.5, 0.2323, 0.1}, TexCoord: mgl32.Vec2{0, 1}},
	{Position: mgl32.Vec3{0.5, -0.5, 0}, Color: mgl32.Vec3{0, 0.93, 0.223}, TexCoord: mgl32.Vec2{1, 1}},
	{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{0.2, 0.299, 0.89}, TexCoord: mgl32.Vec2{1, 0}},
	{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{0.232, 0.23, 0.01}, TexCoord: mgl32.Vec2{0, 0}},

	{Position: mgl32.Vec3{-0.5, -0.5, -0.5}, Color: mgl32.Vec3{0.5, 0.2323, 0.1}, TexCoord: mgl32.Vec2{0, 1}},
	{Position: mgl32.Vec3{0.5, -0.5, -0.5}, Color: mgl32.Vec3{0, 0.93, 0.223}, TexCoord: mgl32.Vec2{1, 1}},
	{Position: mgl32.Vec3{0.5, 0.5, -0.5}, Color: mgl32.Vec3{0.2, 0.299, 0.89}, TexCoord: mgl32.Vec2{1, 0}},
	{Position: mgl32.Vec3{-0.5, 0.5, -0.5}, Color: mgl32.Vec3{0.232, 0.23, 0.01}, TexCoord: mgl32.Vec2{0, 0}},
}

var quadIndices = []uint32{
	0, 1, 2, 2, 3, 0,
	4, 5, 6, 6, 7, 4,
}

// Quad returns a fresh copy of the default mesh.
func Quad() Mesh {
	return Mesh{
		Vertices: append([]Vertex(nil), quadVertices...),
		Indices:  append([]uint32(nil), quadIndices...),
	}
}
