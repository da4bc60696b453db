// Package frame drives the acquire, submit and present cycle of a swapchain.
//
// A Scheduler owns a fixed set of frame slots, each with an image-available
// semaphore, a render-finished semaphore and an in-flight fence. Every call to
// DrawFrame waits on the current slot's fence, acquires an image, updates its
// uniforms, submits the pre-recorded command buffer for that image and presents
// it. When the surface reports it is stale, or the window was resized, the
// Scheduler waits for the device to go idle and rebuilds the whole swapchain
// generation at the latest requested size.
//
// The GPU side is reached only through the Device interface, so the state
// machine can run against any implementation of it.
package frame

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// NoTimeout blocks a wait until the resource is ready.
const NoTimeout = time.Duration(math.MaxInt64)

// DefaultFramesInFlight is the number of frame slots used when Options leaves
// FramesInFlight unset.
const DefaultFramesInFlight = 2

// Status is the outcome of an acquire or present call.
type Status int

const (
	StatusOK Status = iota
	StatusSuboptimal
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Extent is a size in pixels.
type Extent struct {
	Width  int
	Height int
}

// Empty reports whether the extent has no drawable area, as happens while a
// window is minimized.
func (e Extent) Empty() bool {
	return e.Width <= 0 || e.Height <= 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Generation describes one set of swapchain-dependent objects.
type Generation struct {
	ID         uuid.UUID
	Extent     Extent
	ImageCount int
}

// Fence is a CPU-observable completion signal for GPU work.
type Fence interface {
	// Wait blocks until the fence is signaled. A wait that exceeds timeout
	// returns an error wrapping ErrFenceTimeout.
	Wait(timeout time.Duration) error
	Reset() error
	Destroy()
}

// Semaphore orders queue operations on the GPU.
type Semaphore interface {
	Destroy()
}

// SyncFactory creates the synchronization primitives of the frame slots.
type SyncFactory interface {
	NewFence(signaled bool) (Fence, error)
	NewSemaphore() (Semaphore, error)
}

// Presenter is the queue-facing side of the swapchain.
type Presenter interface {
	// AcquireImage returns the index of the next image to render into. The
	// image is usable once signalOnReady is signaled.
	AcquireImage(timeout time.Duration, signalOnReady Semaphore) (int, Status, error)
	// SubmitFrame submits the pre-recorded command buffer for imageIndex.
	// Execution waits on waitOn at the color attachment output stage, and
	// signalOnDone and fence are signaled on completion.
	SubmitFrame(imageIndex int, waitOn, signalOnDone Semaphore, fence Fence) error
	PresentImage(imageIndex int, waitOn Semaphore) (Status, error)
}

// Rebuilder tears down and rebuilds every swapchain-dependent object.
type Rebuilder interface {
	RebuildSwapchainDependentObjects(width, height int) (Generation, error)
}

// UniformUpdater writes per-image uniform data before a submission.
type UniformUpdater interface {
	UpdateUniforms(imageIndex int) error
}

// Device is everything the Scheduler needs from the GPU.
type Device interface {
	SyncFactory
	Presenter
	Rebuilder
	UniformUpdater

	// WaitIdle blocks until all queued work on the device has completed.
	WaitIdle() error
}
