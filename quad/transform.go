package quad

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// UniformBufferObject is the vertex shader's uniform block at binding 0.
type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

// vulkanClip converts OpenGL clip space to Vulkan's: Y points down and depth
// runs from 0 to 1.
var vulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// rotationPeriod is one full turn around Z, i.e. 90 degrees per second.
const rotationPeriod = 4.0

// Transform computes the uniforms after elapsed time for a target with the
// given aspect ratio.
func Transform(elapsed time.Duration, aspect float32) UniformBufferObject {
	if aspect <= 0 || math.IsNaN(float64(aspect)) || math.IsInf(float64(aspect), 0) {
		aspect = 1
	}

	// Wrap before converting so the angle keeps its precision in long runs.
	period := math.Mod(elapsed.Seconds(), rotationPeriod)
	angle := float32(period * math.Pi / 2)

	return UniformBufferObject{
		Model: mgl32.HomogRotate3DZ(angle),
		View:  mgl32.LookAtV(mgl32.Vec3{2, 2, 2}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}),
		Proj:  vulkanClip.Mul4(mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 10)),
	}
}

// AspectRatio of a width x height target. A zero height yields 1.
func AspectRatio(width, height int) float32 {
	if height == 0 {
		return 1
	}
	return float32(width) / float32(height)
}
