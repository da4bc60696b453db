package frame

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/texturedquad/resource"
)

// Options configures a Scheduler.
type Options struct {
	// FramesInFlight is the number of frame slots. Zero means
	// DefaultFramesInFlight.
	FramesInFlight int
	// FenceTimeout bounds every fence wait. Zero means NoTimeout.
	FenceTimeout time.Duration
	// InitialExtent is the size of the first generation. Empty while the
	// window is minimized.
	InitialExtent Extent
	Logger        logrus.FieldLogger
}

type slot struct {
	imageAvailable Semaphore
	renderFinished Semaphore
	inFlight       Fence
}

// Scheduler drives the frame cycle. All methods except RequestResize must be
// called from the render goroutine.
type Scheduler struct {
	device  Device
	log     logrus.FieldLogger
	timeout time.Duration

	resize ResizeRequest

	slots   []slot
	current int

	// guards[i] holds the slot whose fence last covered a submission that
	// rendered into swapchain image i.
	guards     []resource.Handle[int]
	generation Generation
	stale      bool

	state State
	stats Stats
}

// NewScheduler creates the frame slots and builds the first swapchain
// generation at opts.InitialExtent. An empty extent defers that build like any
// other zero-area resize.
func NewScheduler(device Device, opts Options) (*Scheduler, error) {
	if opts.FramesInFlight < 0 {
		return nil, errors.Newf("frames in flight must be positive, got %d", opts.FramesInFlight)
	}
	if opts.FramesInFlight == 0 {
		opts.FramesInFlight = DefaultFramesInFlight
	}
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = NoTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	s := &Scheduler{
		device:  device,
		log:     opts.Logger,
		timeout: opts.FenceTimeout,
		state:   StateIdle,
	}

	for i := 0; i < opts.FramesInFlight; i++ {
		fs, err := newSlot(device)
		if err != nil {
			s.destroySlots()
			return nil, errors.Wrapf(err, "create frame slot %d", i)
		}
		s.slots = append(s.slots, fs)
	}

	if opts.InitialExtent.Empty() {
		// Minimized at startup: the first DrawFrame after a resize builds it.
		s.stale = true
		s.log.WithField("extent", opts.InitialExtent).Debug("deferring first swapchain generation")
		return s, nil
	}

	err := s.rebuild(opts.InitialExtent)
	if err != nil {
		s.destroySlots()
		return nil, err
	}

	return s, nil
}

func newSlot(device SyncFactory) (slot, error) {
	var fs slot
	var err error

	fs.imageAvailable, err = device.NewSemaphore()
	if err != nil {
		return fs, errors.Wrap(err, "image available semaphore")
	}

	fs.renderFinished, err = device.NewSemaphore()
	if err != nil {
		fs.imageAvailable.Destroy()
		return fs, errors.Wrap(err, "render finished semaphore")
	}

	// Created signaled so the first wait on every slot returns at once.
	fs.inFlight, err = device.NewFence(true)
	if err != nil {
		fs.renderFinished.Destroy()
		fs.imageAvailable.Destroy()
		return fs, errors.Wrap(err, "in flight fence")
	}

	return fs, nil
}

// RequestResize records a new window size to apply at the next frame
// boundary. Safe to call from any goroutine.
func (s *Scheduler) RequestResize(width, height int) {
	s.resize.Request(width, height)
}

// DrawFrame renders and presents one frame.
func (s *Scheduler) DrawFrame() error {
	if s.state == StateClosed {
		return ErrClosed
	}

	if s.stale {
		err := s.RecreateSwapchain()
		if err != nil {
			return err
		}
		if s.stale {
			s.stats.FramesSkipped++
			return nil
		}
	}

	fs := &s.slots[s.current]
	log := s.log.WithField("slot", s.current)

	s.state = StateAcquiring
	err := fs.inFlight.Wait(s.timeout)
	if err != nil {
		return errors.Wrapf(err, "wait for frame slot %d", s.current)
	}

	imageIndex, status, err := s.device.AcquireImage(s.timeout, fs.imageAvailable)
	if err != nil {
		return errors.Wrap(err, "acquire swapchain image")
	}
	if status == StatusOutOfDate {
		// Nothing was submitted, so the slot fence is still signaled and
		// the slot can be reused as is.
		log.Debug("swapchain out of date on acquire")
		s.stats.FramesSkipped++
		s.stale = true
		return s.RecreateSwapchain()
	}
	if imageIndex < 0 || imageIndex >= len(s.guards) {
		return errors.AssertionFailedf("acquired image %d outside swapchain of %d images", imageIndex, len(s.guards))
	}
	log = log.WithField("image", imageIndex)

	if guard, ok := s.guards[imageIndex].Get(); ok && guard != s.current {
		err = s.slots[guard].inFlight.Wait(s.timeout)
		if err != nil {
			return errors.Wrapf(err, "wait for image %d held by frame slot %d", imageIndex, guard)
		}
	}
	s.guards[imageIndex].Set(s.current)

	s.state = StateSubmitting
	err = s.device.UpdateUniforms(imageIndex)
	if err != nil {
		return errors.Wrapf(err, "update uniforms for image %d", imageIndex)
	}

	err = fs.inFlight.Reset()
	if err != nil {
		return errors.Wrapf(err, "reset fence of frame slot %d", s.current)
	}

	err = s.device.SubmitFrame(imageIndex, fs.imageAvailable, fs.renderFinished, fs.inFlight)
	if err != nil {
		return errors.Wrapf(err, "submit image %d", imageIndex)
	}

	s.state = StatePresenting
	status, err = s.device.PresentImage(imageIndex, fs.renderFinished)
	if err != nil {
		return errors.Wrapf(err, "present image %d", imageIndex)
	}
	s.stats.FramesPresented++

	if status != StatusOK || s.resize.Pending() {
		log.WithField("status", status).Debug("swapchain stale after present")
		s.stale = true
		err = s.RecreateSwapchain()
		if err != nil {
			return err
		}
	}

	s.current = (s.current + 1) % len(s.slots)
	s.state = StateIdle
	return nil
}

// RecreateSwapchain waits for the device to go idle, then replaces the
// current generation with one built at the latest requested size, or at the
// current size if no resize is pending. Frame slots are kept.
func (s *Scheduler) RecreateSwapchain() error {
	if s.state == StateClosed {
		return ErrClosed
	}
	s.state = StateRecreating

	err := s.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "wait for device idle")
	}

	extent := s.generation.Extent
	if requested, ok := s.resize.Take(); ok {
		extent = requested
	}

	if extent.Empty() {
		// Minimized: keep the old generation and try again next frame.
		s.resize.restore(extent)
		s.stale = true
		s.state = StateIdle
		s.log.WithField("extent", extent).Debug("deferring swapchain recreation")
		return nil
	}

	err = s.rebuild(extent)
	if err != nil {
		return err
	}
	s.stats.Recreations++
	s.state = StateIdle
	return nil
}

func (s *Scheduler) rebuild(extent Extent) error {
	gen, err := s.device.RebuildSwapchainDependentObjects(extent.Width, extent.Height)
	if err != nil {
		return errors.Wrapf(err, "rebuild swapchain at %s", extent)
	}
	if gen.ImageCount < 1 {
		return errors.AssertionFailedf("swapchain generation %s has no images", gen.ID)
	}

	s.generation = gen
	s.guards = make([]resource.Handle[int], gen.ImageCount)
	s.stale = false

	s.log.WithFields(logrus.Fields{
		"generation": gen.ID,
		"width":      gen.Extent.Width,
		"height":     gen.Extent.Height,
		"images":     gen.ImageCount,
	}).Info("swapchain generation built")
	return nil
}

// Close waits for the device to go idle and destroys the frame slots. The
// current generation belongs to the Device and is left alone.
func (s *Scheduler) Close() error {
	if s.state == StateClosed {
		return nil
	}

	err := s.device.WaitIdle()
	s.destroySlots()
	s.state = StateClosed
	if err != nil {
		return errors.Wrap(err, "wait for device idle")
	}
	return nil
}

func (s *Scheduler) destroySlots() {
	for _, fs := range s.slots {
		fs.inFlight.Destroy()
		fs.renderFinished.Destroy()
		fs.imageAvailable.Destroy()
	}
	s.slots = nil
}

func (s *Scheduler) State() State {
	return s.state
}

// CurrentSlot is the frame slot the next DrawFrame will use.
func (s *Scheduler) CurrentSlot() int {
	return s.current
}

func (s *Scheduler) FramesInFlight() int {
	return len(s.slots)
}

func (s *Scheduler) Generation() Generation {
	return s.generation
}

// Stale reports whether a recreation is pending.
func (s *Scheduler) Stale() bool {
	return s.stale
}

// Guard returns the frame slot whose fence guards swapchain image i.
func (s *Scheduler) Guard(image int) (int, bool) {
	if image < 0 || image >= len(s.guards) {
		return 0, false
	}
	return s.guards[image].Get()
}

// Fence returns the in-flight fence of a frame slot.
func (s *Scheduler) Fence(slot int) Fence {
	return s.slots[slot].inFlight
}

func (s *Scheduler) Stats() Stats {
	return s.stats
}
