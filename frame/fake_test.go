package frame

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// fakeDevice models just enough of a GPU to check the ordering guarantees of
// the Scheduler: a submission stays pending until somebody waits on its
// fence, and a pending submission keeps its swapchain image busy.
type fakeDevice struct {
	surface    SurfaceExtents
	imageCount int
	// genImages is the image count of the generation built last.
	genImages int

	// acquire picks the image for the nth acquire call; nil means round robin.
	acquire func(n int) (int, Status)
	// present picks the status for the nth present call; nil means StatusOK.
	present func(n int) Status

	fences     []*fakeFence
	semaphores []*fakeSemaphore

	busy map[int]*fakeFence

	acquires   int
	submits    []int
	presents   []int
	uniforms   []int
	rebuilds   []Extent
	waitIdles  int
	violations []string
}

type fakeFence struct {
	dev       *fakeDevice
	id        int
	signaled  bool
	pending   []int
	waits     int
	destroyed bool
}

type fakeSemaphore struct {
	id        int
	destroyed bool
}

func newFakeDevice(imageCount int) *fakeDevice {
	return &fakeDevice{
		surface: SurfaceExtents{
			Current: Extent{Width: UndefinedSize, Height: UndefinedSize},
			Min:     Extent{Width: 1, Height: 1},
			Max:     Extent{Width: 4096, Height: 4096},
		},
		imageCount: imageCount,
		busy:       map[int]*fakeFence{},
	}
}

func (d *fakeDevice) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *fakeDevice) complete(f *fakeFence) {
	for _, image := range f.pending {
		if d.busy[image] == f {
			delete(d.busy, image)
		}
	}
	f.pending = nil
	f.signaled = true
}

func (f *fakeFence) Wait(timeout time.Duration) error {
	f.waits++
	if f.destroyed {
		f.dev.violate("wait on destroyed fence %d", f.id)
	}
	if f.signaled {
		return nil
	}
	if len(f.pending) == 0 {
		// Nothing will ever signal this fence.
		return errors.Wrapf(ErrFenceTimeout, "fence %d after %s", f.id, timeout)
	}
	f.dev.complete(f)
	return nil
}

func (f *fakeFence) Reset() error {
	if len(f.pending) > 0 {
		f.dev.violate("reset fence %d with pending work", f.id)
	}
	f.signaled = false
	return nil
}

func (f *fakeFence) Destroy() {
	f.destroyed = true
}

func (s *fakeSemaphore) Destroy() {
	s.destroyed = true
}

func (d *fakeDevice) NewFence(signaled bool) (Fence, error) {
	f := &fakeFence{dev: d, id: len(d.fences), signaled: signaled}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *fakeDevice) NewSemaphore() (Semaphore, error) {
	s := &fakeSemaphore{id: len(d.semaphores)}
	d.semaphores = append(d.semaphores, s)
	return s, nil
}

func (d *fakeDevice) AcquireImage(timeout time.Duration, signalOnReady Semaphore) (int, Status, error) {
	n := d.acquires
	d.acquires++
	if d.acquire != nil {
		image, status := d.acquire(n)
		return image, status, nil
	}
	return n % d.genImages, StatusOK, nil
}

func (d *fakeDevice) SubmitFrame(imageIndex int, waitOn, signalOnDone Semaphore, fence Fence) error {
	f := fence.(*fakeFence)
	if f.signaled {
		d.violate("submit image %d with signaled fence %d", imageIndex, f.id)
	}
	if other, ok := d.busy[imageIndex]; ok {
		d.violate("submit image %d while fence %d still renders into it", imageIndex, other.id)
	}
	f.pending = append(f.pending, imageIndex)
	d.busy[imageIndex] = f
	d.submits = append(d.submits, imageIndex)
	return nil
}

func (d *fakeDevice) PresentImage(imageIndex int, waitOn Semaphore) (Status, error) {
	n := len(d.presents)
	d.presents = append(d.presents, imageIndex)
	if d.present != nil {
		return d.present(n), nil
	}
	return StatusOK, nil
}

func (d *fakeDevice) RebuildSwapchainDependentObjects(width, height int) (Generation, error) {
	if len(d.busy) > 0 {
		d.violate("rebuild while %d images are still rendering", len(d.busy))
	}
	extent := ChooseExtent(d.surface, Extent{Width: width, Height: height})
	d.rebuilds = append(d.rebuilds, extent)
	d.genImages = d.imageCount
	return Generation{ID: uuid.New(), Extent: extent, ImageCount: d.imageCount}, nil
}

func (d *fakeDevice) UpdateUniforms(imageIndex int) error {
	if f, ok := d.busy[imageIndex]; ok {
		d.violate("uniforms of image %d written while fence %d still reads them", imageIndex, f.id)
	}
	d.uniforms = append(d.uniforms, imageIndex)
	return nil
}

func (d *fakeDevice) WaitIdle() error {
	d.waitIdles++
	for _, f := range d.fences {
		if len(f.pending) > 0 {
			d.complete(f)
		}
	}
	return nil
}
