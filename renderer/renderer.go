// Package renderer draws the textured quad with Vulkan through vkngwrapper.
//
// Renderer implements frame.Device: it creates the frame sync objects, owns
// the swapchain generation that frame.Scheduler asks it to rebuild, and
// submits and presents the command buffers recorded for each image.
package renderer

import (
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/texturedquad/config"
	"github.com/vkngwrapper/texturedquad/frame"
	"github.com/vkngwrapper/texturedquad/quad"
	"github.com/vkngwrapper/texturedquad/resource"
)

type shaderCode struct {
	vertex   []uint32
	fragment []uint32
}

type Renderer struct {
	log    logrus.FieldLogger
	cfg    config.Config
	window *sdl.Window

	global   core1_0.GlobalDriver
	instance core1_0.CoreInstanceDriver
	device   core1_0.CoreDeviceDriver

	debug        ext_debug_utils.ExtensionDriver
	surfaceExt   khr_surface.ExtensionDriver
	swapchainExt khr_swapchain.ExtensionDriver
	surface      resource.Handle[khr_surface.Surface]

	physicalDevice core1_0.PhysicalDevice
	families       queueFamilies
	graphicsQueue  core1_0.Queue
	presentQueue   core1_0.Queue

	commandPool         resource.Handle[core1_0.CommandPool]
	descriptorSetLayout resource.Handle[core1_0.DescriptorSetLayout]
	depthFormat         core1_0.Format
	shaders             shaderCode
	textureView         resource.Handle[core1_0.ImageView]
	sampler             resource.Handle[core1_0.Sampler]
	mesh                meshBuffers

	// arena holds objects that live as long as the device, gen those of the
	// current swapchain.
	arena *resource.Arena
	gen   *generation

	start time.Duration
}

var _ frame.Device = (*Renderer)(nil)

// New sets up everything that outlives a swapchain: instance, surface,
// device, texture, mesh and descriptor layout. The first swapchain is built
// by the first RebuildSwapchainDependentObjects call.
func New(window *sdl.Window, cfg config.Config, log logrus.FieldLogger) (*Renderer, error) {
	r := &Renderer{
		log:    log,
		cfg:    cfg,
		window: window,
		arena:  resource.NewArena(),
	}

	mesh := quad.Quad()
	if cfg.MeshPath != "" {
		var err error
		mesh, err = quad.LoadOBJ(cfg.MeshPath)
		if err != nil {
			return nil, err
		}
	}

	var err error
	r.shaders.vertex, err = readShader(filepath.Join(cfg.ShaderDir, "vert.spv"))
	if err != nil {
		return nil, err
	}
	r.shaders.fragment, err = readShader(filepath.Join(cfg.ShaderDir, "frag.spv"))
	if err != nil {
		return nil, err
	}

	steps := []func() error{
		r.createInstance,
		r.setupDebugMessenger,
		r.createSurface,
		r.pickPhysicalDevice,
		r.createLogicalDevice,
		r.createCommandPool,
		r.createDescriptorSetLayout,
		func() (err error) {
			r.depthFormat, err = r.findDepthFormat()
			return err
		},
		func() error { return r.createTexture(cfg.TexturePath) },
		r.createSampler,
		func() error { return r.createMeshBuffers(mesh) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			r.arena.Release()
			return nil, err
		}
	}

	properties, err := r.instance.GetPhysicalDeviceProperties(r.physicalDevice)
	if err == nil {
		r.log.WithFields(logrus.Fields{
			"device":   properties.DriverName,
			"vertices": len(mesh.Vertices),
			"indices":  len(mesh.Indices),
		}).Info("renderer ready")
	}

	r.start = hrtime.Now()
	return r, nil
}

func (r *Renderer) RebuildSwapchainDependentObjects(width, height int) (frame.Generation, error) {
	r.releaseGeneration()

	gen, err := r.buildGeneration(width, height)
	if err != nil {
		return frame.Generation{}, err
	}
	r.gen = gen
	return gen.describe(), nil
}

func (r *Renderer) releaseGeneration() {
	if r.gen == nil {
		return
	}
	r.log.WithField("generation", r.gen.id).Debugf("releasing %d objects", r.gen.arena.Len())
	r.gen.arena.Release()
	r.gen = nil
}

func (r *Renderer) currentGeneration() (*generation, error) {
	if r.gen == nil {
		return nil, errors.AssertionFailedf("no swapchain generation is built")
	}
	return r.gen, nil
}

func (r *Renderer) AcquireImage(timeout time.Duration, signalOnReady frame.Semaphore) (int, frame.Status, error) {
	gen, err := r.currentGeneration()
	if err != nil {
		return 0, frame.StatusOK, err
	}
	semaphore, err := asSemaphore(signalOnReady)
	if err != nil {
		return 0, frame.StatusOK, err
	}

	imageIndex, res, err := r.swapchainExt.AcquireNextImage(gen.swapchain.MustGet(), vulkanTimeout(timeout), &semaphore, nil)
	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return 0, frame.StatusOutOfDate, nil
	case err != nil:
		return 0, frame.StatusOK, errors.Wrap(err, "acquire next image")
	case res == core1_0.VKTimeout || res == core1_0.VKNotReady:
		// Nothing was acquired and signalOnReady will not fire.
		return 0, frame.StatusOK, errors.Wrapf(frame.ErrFenceTimeout, "acquire after %s", timeout)
	case res == khr_swapchain.VKSuboptimal:
		return imageIndex, frame.StatusSuboptimal, nil
	}
	return imageIndex, frame.StatusOK, nil
}

func (r *Renderer) SubmitFrame(imageIndex int, waitOn, signalOnDone frame.Semaphore, inFlight frame.Fence) error {
	gen, err := r.currentGeneration()
	if err != nil {
		return err
	}
	if imageIndex < 0 || imageIndex >= len(gen.commandBuffers) {
		return errors.AssertionFailedf("image index %d out of range [0, %d)", imageIndex, len(gen.commandBuffers))
	}

	wait, err := asSemaphore(waitOn)
	if err != nil {
		return err
	}
	signal, err := asSemaphore(signalOnDone)
	if err != nil {
		return err
	}
	fence, err := asFence(inFlight)
	if err != nil {
		return err
	}

	_, err = r.device.QueueSubmit(r.graphicsQueue, &fence,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{wait},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{gen.commandBuffers[imageIndex]},
			SignalSemaphores: []core1_0.Semaphore{signal},
		},
	)
	return errors.Wrap(err, "submit draw")
}

func (r *Renderer) PresentImage(imageIndex int, waitOn frame.Semaphore) (frame.Status, error) {
	gen, err := r.currentGeneration()
	if err != nil {
		return frame.StatusOK, err
	}
	wait, err := asSemaphore(waitOn)
	if err != nil {
		return frame.StatusOK, err
	}

	res, err := r.swapchainExt.QueuePresent(r.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{wait},
		Swapchains:     []khr_swapchain.Swapchain{gen.swapchain.MustGet()},
		ImageIndices:   []int{imageIndex},
	})
	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return frame.StatusOutOfDate, nil
	case err != nil:
		return frame.StatusOK, errors.Wrap(err, "present")
	case res == khr_swapchain.VKSuboptimal:
		return frame.StatusSuboptimal, nil
	}
	return frame.StatusOK, nil
}

// UpdateUniforms writes the transform for the time since New into the
// uniform buffer of imageIndex.
func (r *Renderer) UpdateUniforms(imageIndex int) error {
	gen, err := r.currentGeneration()
	if err != nil {
		return err
	}
	if imageIndex < 0 || imageIndex >= len(gen.uniforms) {
		return errors.AssertionFailedf("image index %d out of range [0, %d)", imageIndex, len(gen.uniforms))
	}

	ubo := quad.Transform(hrtime.Since(r.start), gen.aspect())
	err = writeData(r.device, gen.uniforms[imageIndex].memory.MustGet(), 0, &ubo)
	return errors.Wrapf(err, "write uniforms for image %d", imageIndex)
}

func (r *Renderer) WaitIdle() error {
	_, err := r.device.DeviceWaitIdle()
	return errors.Wrap(err, "wait for device idle")
}

// Close releases the current generation and then every long-lived object.
// The frame sync objects must already be destroyed.
func (r *Renderer) Close() error {
	var err error
	if r.device != nil {
		err = r.WaitIdle()
	}
	r.releaseGeneration()
	r.arena.Release()
	return err
}
