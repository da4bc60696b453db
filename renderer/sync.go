package renderer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/texturedquad/frame"
)

type fence struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Fence
}

func (f *fence) Wait(timeout time.Duration) error {
	res, err := f.driver.WaitForFences(true, vulkanTimeout(timeout), f.handle)
	if res == core1_0.VKTimeout {
		return errors.Wrapf(frame.ErrFenceTimeout, "after %s", timeout)
	}
	return errors.Wrap(err, "wait for fence")
}

func (f *fence) Reset() error {
	_, err := f.driver.ResetFences(f.handle)
	return errors.Wrap(err, "reset fence")
}

func (f *fence) Destroy() {
	if f.handle.Initialized() {
		f.driver.DestroyFence(f.handle, nil)
		f.handle = core1_0.Fence{}
	}
}

type semaphore struct {
	driver core1_0.CoreDeviceDriver
	handle core1_0.Semaphore
}

func (s *semaphore) Destroy() {
	if s.handle.Initialized() {
		s.driver.DestroySemaphore(s.handle, nil)
		s.handle = core1_0.Semaphore{}
	}
}

func (r *Renderer) NewFence(signaled bool) (frame.Fence, error) {
	var info core1_0.FenceCreateInfo
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}

	handle, _, err := r.device.CreateFence(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	return &fence{driver: r.device, handle: handle}, nil
}

func (r *Renderer) NewSemaphore() (frame.Semaphore, error) {
	handle, _, err := r.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create semaphore")
	}
	return &semaphore{driver: r.device, handle: handle}, nil
}

func vulkanTimeout(timeout time.Duration) time.Duration {
	if timeout == frame.NoTimeout {
		return common.NoTimeout
	}
	return timeout
}

func asSemaphore(s frame.Semaphore) (core1_0.Semaphore, error) {
	concrete, ok := s.(*semaphore)
	if !ok {
		return core1_0.Semaphore{}, errors.AssertionFailedf("semaphore %T was not created by this renderer", s)
	}
	return concrete.handle, nil
}

func asFence(f frame.Fence) (core1_0.Fence, error) {
	concrete, ok := f.(*fence)
	if !ok {
		return core1_0.Fence{}, errors.AssertionFailedf("fence %T was not created by this renderer", f)
	}
	return concrete.handle, nil
}
