package renderer

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	khr_swapchain_driver "github.com/vkngwrapper/extensions/v3/khr_swapchain/loader"
	mock_swapchain "github.com/vkngwrapper/extensions/v3/khr_swapchain/mocks"
	"github.com/vkngwrapper/texturedquad/frame"
	"github.com/vkngwrapper/texturedquad/quad"
	"github.com/vkngwrapper/texturedquad/resource"
	"go.uber.org/mock/gomock"
)

const testImageCount = 3

type testRenderer struct {
	*Renderer
	vkDevice  core1_0.Device
	driver    *mocks1_0.MockCoreDeviceDriver
	loader    *mock_swapchain.MockLoader
	swapchain khr_swapchain.Swapchain
}

// newTestRenderer builds a Renderer around mock drivers with an 800x600
// generation of testImageCount images already in place.
func newTestRenderer(t *testing.T) *testRenderer {
	ctrl := gomock.NewController(t)
	logger, _ := test.NewNullLogger()

	device := mocks.NewDummyDevice(common.Vulkan1_0, []string{khr_swapchain.ExtensionName})
	driver := mocks1_0.NewMockCoreDeviceDriver(ctrl)
	swapchainLoader := mock_swapchain.NewMockLoader(ctrl)
	swapchain := khr_swapchain.NewDummySwapchain(device)
	queue := mocks.NewDummyQueue(device)
	pool := mocks.NewDummyCommandPool(device)

	gen := &generation{
		arena:  resource.NewArena(),
		extent: core1_0.Extent2D{Width: 800, Height: 600},
		format: core1_0.FormatB8G8R8A8SRGB,
	}
	gen.swapchain.Set(swapchain)
	for i := 0; i < testImageCount; i++ {
		gen.images = append(gen.images, mocks.NewDummyImage(device))
		gen.commandBuffers = append(gen.commandBuffers, mocks.NewDummyCommandBuffer(pool, device))

		uniform := &allocation[core1_0.Buffer]{}
		uniform.object.Set(mocks.NewDummyBuffer(device))
		uniform.memory.Set(mocks.NewDummyDeviceMemory(device, uniformBufferSize))
		gen.uniforms = append(gen.uniforms, uniform)
	}

	return &testRenderer{
		Renderer: &Renderer{
			log:           logger,
			device:        driver,
			swapchainExt:  khr_swapchain.CreateExtensionDriverFromLoader(swapchainLoader, device),
			graphicsQueue: queue,
			presentQueue:  queue,
			arena:         resource.NewArena(),
			gen:           gen,
		},
		vkDevice:  device,
		driver:    driver,
		loader:    swapchainLoader,
		swapchain: swapchain,
	}
}

func (tr *testRenderer) newSemaphore() (*semaphore, core1_0.Semaphore) {
	handle := mocks.NewDummySemaphore(tr.vkDevice)
	return &semaphore{driver: tr.driver, handle: handle}, handle
}

func (tr *testRenderer) newFence() (*fence, core1_0.Fence) {
	handle := mocks.NewDummyFence(tr.vkDevice)
	return &fence{driver: tr.driver, handle: handle}, handle
}

func TestAcquireImage(t *testing.T) {
	tests := []struct {
		name       string
		res        common.VkResult
		index      int
		wantIndex  int
		wantStatus frame.Status
		wantErr    error
		wantAnyErr bool
	}{
		{
			name:       "acquired",
			res:        core1_0.VKSuccess,
			index:      2,
			wantIndex:  2,
			wantStatus: frame.StatusOK,
		},
		{
			name:       "suboptimal",
			res:        khr_swapchain.VKSuboptimal,
			index:      1,
			wantIndex:  1,
			wantStatus: frame.StatusSuboptimal,
		},
		{
			name:       "out of date",
			res:        khr_swapchain.VKErrorOutOfDate,
			wantStatus: frame.StatusOutOfDate,
		},
		{
			name:    "timeout",
			res:     core1_0.VKTimeout,
			wantErr: frame.ErrFenceTimeout,
		},
		{
			name:    "not ready",
			res:     core1_0.VKNotReady,
			wantErr: frame.ErrFenceTimeout,
		},
		{
			name:       "device lost",
			res:        core1_0.VKErrorDeviceLost,
			wantAnyErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestRenderer(t)
			sem, handle := tr.newSemaphore()

			tr.loader.EXPECT().VkAcquireNextImageKHR(
				tr.vkDevice.Handle(),
				tr.swapchain.Handle(),
				loader.Uint64(5000000),
				handle.Handle(),
				loader.VkFence(unsafe.Pointer(nil)),
				gomock.Not(gomock.Nil()),
			).DoAndReturn(
				func(device loader.VkDevice, swapchain khr_swapchain_driver.VkSwapchainKHR, timeout loader.Uint64, semaphore loader.VkSemaphore, fence loader.VkFence, pImageIndex *loader.Uint32) (common.VkResult, error) {
					*pImageIndex = loader.Uint32(tc.index)
					return tc.res, tc.res.ToError()
				})

			index, status, err := tr.AcquireImage(5*time.Millisecond, sem)
			switch {
			case tc.wantErr != nil:
				require.ErrorIs(t, err, tc.wantErr)
			case tc.wantAnyErr:
				require.Error(t, err)
				require.False(t, errors.Is(err, frame.ErrFenceTimeout))
			default:
				require.NoError(t, err)
				require.Equal(t, tc.wantIndex, index)
				require.Equal(t, tc.wantStatus, status)
			}
		})
	}
}

func TestAcquireImageWithoutTimeout(t *testing.T) {
	tr := newTestRenderer(t)
	sem, handle := tr.newSemaphore()

	tr.loader.EXPECT().VkAcquireNextImageKHR(
		tr.vkDevice.Handle(),
		tr.swapchain.Handle(),
		loader.Uint64(^uint64(0)),
		handle.Handle(),
		loader.VkFence(unsafe.Pointer(nil)),
		gomock.Not(gomock.Nil()),
	).DoAndReturn(
		func(device loader.VkDevice, swapchain khr_swapchain_driver.VkSwapchainKHR, timeout loader.Uint64, semaphore loader.VkSemaphore, fence loader.VkFence, pImageIndex *loader.Uint32) (common.VkResult, error) {
			*pImageIndex = loader.Uint32(0)
			return core1_0.VKSuccess, nil
		})

	index, status, err := tr.AcquireImage(frame.NoTimeout, sem)
	require.NoError(t, err)
	require.Equal(t, 0, index)
	require.Equal(t, frame.StatusOK, status)
}

func TestAcquireImageWithoutGeneration(t *testing.T) {
	tr := newTestRenderer(t)
	tr.gen = nil
	sem, _ := tr.newSemaphore()

	_, _, err := tr.AcquireImage(frame.NoTimeout, sem)
	require.Error(t, err)
	require.True(t, errors.HasAssertionFailure(err))
}

func TestPresentImage(t *testing.T) {
	tests := []struct {
		name       string
		res        common.VkResult
		wantStatus frame.Status
		wantErr    bool
	}{
		{name: "presented", res: core1_0.VKSuccess, wantStatus: frame.StatusOK},
		{name: "suboptimal", res: khr_swapchain.VKSuboptimal, wantStatus: frame.StatusSuboptimal},
		{name: "out of date", res: khr_swapchain.VKErrorOutOfDate, wantStatus: frame.StatusOutOfDate},
		{name: "surface lost", res: khr_surface.VKErrorSurfaceLost, wantErr: true},
		{name: "device lost", res: core1_0.VKErrorDeviceLost, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestRenderer(t)
			sem, handle := tr.newSemaphore()

			tr.loader.EXPECT().VkQueuePresentKHR(
				tr.presentQueue.Handle(),
				gomock.Not(gomock.Nil()),
			).DoAndReturn(
				func(queue loader.VkQueue, pPresentInfo *khr_swapchain_driver.VkPresentInfoKHR) (common.VkResult, error) {
					val := reflect.ValueOf(*pPresentInfo)
					require.Equal(t, uint64(1), val.FieldByName("waitSemaphoreCount").Uint())
					require.Equal(t, uint64(1), val.FieldByName("swapchainCount").Uint())

					semaphorePtr := (*loader.VkSemaphore)(unsafe.Pointer(val.FieldByName("pWaitSemaphores").Elem().UnsafeAddr()))
					require.Equal(t, handle.Handle(), *semaphorePtr)

					swapchainPtr := (*khr_swapchain_driver.VkSwapchainKHR)(unsafe.Pointer(val.FieldByName("pSwapchains").Elem().UnsafeAddr()))
					require.Equal(t, tr.swapchain.Handle(), *swapchainPtr)

					imageIndexPtr := (*loader.Uint32)(unsafe.Pointer(val.FieldByName("pImageIndices").Elem().UnsafeAddr()))
					require.Equal(t, loader.Uint32(2), *imageIndexPtr)

					return tc.res, tc.res.ToError()
				})

			status, err := tr.PresentImage(2, sem)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, status)
		})
	}
}

func TestSubmitFrame(t *testing.T) {
	tr := newTestRenderer(t)
	wait, waitHandle := tr.newSemaphore()
	signal, signalHandle := tr.newSemaphore()
	inFlight, fenceHandle := tr.newFence()

	tr.driver.EXPECT().QueueSubmit(tr.graphicsQueue, gomock.Not(gomock.Nil()), gomock.Any()).DoAndReturn(
		func(queue core1_0.Queue, fence *core1_0.Fence, o ...core1_0.SubmitInfo) (common.VkResult, error) {
			require.Equal(t, fenceHandle, *fence)
			require.Len(t, o, 1)
			require.Equal(t, []core1_0.Semaphore{waitHandle}, o[0].WaitSemaphores)
			require.Equal(t, []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput}, o[0].WaitDstStageMask)
			require.Equal(t, []core1_0.CommandBuffer{tr.gen.commandBuffers[1]}, o[0].CommandBuffers)
			require.Equal(t, []core1_0.Semaphore{signalHandle}, o[0].SignalSemaphores)
			return core1_0.VKSuccess, nil
		})

	require.NoError(t, tr.SubmitFrame(1, wait, signal, inFlight))
}

func TestSubmitFrameRejectsBadArguments(t *testing.T) {
	tr := newTestRenderer(t)
	wait, _ := tr.newSemaphore()
	signal, _ := tr.newSemaphore()
	inFlight, _ := tr.newFence()

	err := tr.SubmitFrame(testImageCount, wait, signal, inFlight)
	require.True(t, errors.HasAssertionFailure(err))

	err = tr.SubmitFrame(-1, wait, signal, inFlight)
	require.True(t, errors.HasAssertionFailure(err))

	err = tr.SubmitFrame(0, foreignSemaphore{}, signal, inFlight)
	require.True(t, errors.HasAssertionFailure(err))

	err = tr.SubmitFrame(0, wait, signal, foreignFence{})
	require.True(t, errors.HasAssertionFailure(err))
}

func TestSubmitFrameReportsDeviceLoss(t *testing.T) {
	tr := newTestRenderer(t)
	wait, _ := tr.newSemaphore()
	signal, _ := tr.newSemaphore()
	inFlight, _ := tr.newFence()

	tr.driver.EXPECT().QueueSubmit(tr.graphicsQueue, gomock.Not(gomock.Nil()), gomock.Any()).
		Return(core1_0.VKErrorDeviceLost, core1_0.VKErrorDeviceLost.ToError())

	require.Error(t, tr.SubmitFrame(0, wait, signal, inFlight))
}

func TestUpdateUniforms(t *testing.T) {
	tr := newTestRenderer(t)
	memory := tr.gen.uniforms[1].memory.MustGet()

	buf := make([]byte, uniformBufferSize)
	tr.driver.EXPECT().MapMemory(memory, 0, uniformBufferSize, core1_0.MemoryMapFlags(0)).
		Return(unsafe.Pointer(&buf[0]), core1_0.VKSuccess, nil)
	tr.driver.EXPECT().UnmapMemory(memory)

	require.NoError(t, tr.UpdateUniforms(1))

	var got quad.UniformBufferObject
	require.NoError(t, binary.Read(bytes.NewReader(buf), common.ByteOrder, &got))

	want := quad.Transform(0, 800.0/600.0)
	require.Equal(t, want.View, got.View)
	require.Equal(t, want.Proj, got.Proj)
}

func TestUpdateUniformsOutOfRange(t *testing.T) {
	tr := newTestRenderer(t)
	err := tr.UpdateUniforms(testImageCount)
	require.True(t, errors.HasAssertionFailure(err))
}

func TestUpdateUniformsMapFailure(t *testing.T) {
	tr := newTestRenderer(t)
	memory := tr.gen.uniforms[0].memory.MustGet()

	tr.driver.EXPECT().MapMemory(memory, 0, uniformBufferSize, core1_0.MemoryMapFlags(0)).
		Return(unsafe.Pointer(nil), core1_0.VKErrorMemoryMapFailed, core1_0.VKErrorMemoryMapFailed.ToError())

	require.Error(t, tr.UpdateUniforms(0))
}

func TestWaitIdle(t *testing.T) {
	tr := newTestRenderer(t)

	tr.driver.EXPECT().DeviceWaitIdle().Return(core1_0.VKSuccess, nil)
	require.NoError(t, tr.WaitIdle())

	tr.driver.EXPECT().DeviceWaitIdle().Return(core1_0.VKErrorDeviceLost, core1_0.VKErrorDeviceLost.ToError())
	require.Error(t, tr.WaitIdle())
}

func TestCloseReleasesGenerationBeforeDevice(t *testing.T) {
	tr := newTestRenderer(t)

	var order []string
	tr.gen.arena.Defer("swapchain", func() { order = append(order, "swapchain") })
	tr.arena.Defer("device", func() { order = append(order, "device") })
	tr.driver.EXPECT().DeviceWaitIdle().Return(core1_0.VKSuccess, nil)

	require.NoError(t, tr.Close())
	require.Equal(t, []string{"swapchain", "device"}, order)
	require.Nil(t, tr.gen)
}
