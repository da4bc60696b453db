package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
	"github.com/vkngwrapper/texturedquad/resource"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

var deviceExtensions = []string{khr_swapchain.ExtensionName}

type queueFamilies struct {
	graphics resource.Handle[int]
	present  resource.Handle[int]
}

func (q queueFamilies) complete() bool {
	return q.graphics.Valid() && q.present.Valid()
}

// unique lists the distinct family indices, graphics first.
func (q queueFamilies) unique() []int {
	families := []int{q.graphics.MustGet()}
	if q.present.MustGet() != families[0] {
		families = append(families, q.present.MustGet())
	}
	return families
}

func (r *Renderer) createInstance() error {
	var err error
	r.global, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "load vulkan")
	}

	info := core1_0.InstanceCreateInfo{
		ApplicationName:    "Textured Quad",
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	available, _, err := r.global.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range r.window.VulkanGetInstanceExtensions() {
		if _, ok := available[ext]; !ok {
			return errors.Newf("sdl requires missing instance extension %s", ext)
		}
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext)
	}

	if _, ok := available[khr_portability_enumeration.ExtensionName]; ok {
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		info.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if r.cfg.Validation {
		layers, _, err := r.global.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerate layers")
		}
		if _, ok := layers[validationLayer]; !ok {
			return errors.Newf("validation layer %s is not installed", validationLayer)
		}

		info.EnabledLayerNames = append(info.EnabledLayerNames, validationLayer)
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		info.Next = r.debugMessengerInfo()
	}

	instance, _, err := r.global.CreateInstance(nil, info)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}
	r.instance, err = r.global.BuildInstanceDriver(instance)
	if err != nil {
		return errors.Wrap(err, "build instance driver")
	}
	r.arena.Defer("instance", func() { r.instance.DestroyInstance(nil) })
	return nil
}

func (r *Renderer) debugMessengerInfo() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    r.logValidation,
	}
}

func (r *Renderer) logValidation(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	entry := r.log.WithField("type", msgType)
	if severity&ext_debug_utils.SeverityError != 0 {
		entry.Error(data.Message)
	} else {
		entry.Warn(data.Message)
	}
	return false
}

func (r *Renderer) setupDebugMessenger() error {
	if !r.cfg.Validation {
		return nil
	}

	r.debug = ext_debug_utils.CreateExtensionDriverFromCoreDriver(r.instance)
	messenger, _, err := r.debug.CreateDebugUtilsMessenger(nil, r.debugMessengerInfo())
	if err != nil {
		return errors.Wrap(err, "create debug messenger")
	}
	r.arena.Defer("debug messenger", func() { r.debug.DestroyDebugUtilsMessenger(messenger, nil) })
	return nil
}

func (r *Renderer) createSurface() error {
	r.surfaceExt = khr_surface.CreateExtensionDriverFromCoreDriver(r.instance)
	surface, err := vkng_sdl2.CreateSurface(r.instance.Instance(), r.surfaceExt, r.window)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}
	resource.Manage(r.arena, "surface", &r.surface, surface, func(s khr_surface.Surface) {
		r.surfaceExt.DestroySurface(s, nil)
	})
	return nil
}

func (r *Renderer) pickPhysicalDevice() error {
	devices, _, err := r.instance.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	for _, device := range devices {
		families, ok, err := r.deviceSuitable(device)
		if err != nil {
			return err
		}
		if ok {
			r.physicalDevice = device
			r.families = families
			return nil
		}
	}
	return errors.New("no GPU supports graphics, presentation and anisotropic sampling")
}

func (r *Renderer) deviceSuitable(device core1_0.PhysicalDevice) (queueFamilies, bool, error) {
	families, err := r.findQueueFamilies(device)
	if err != nil || !families.complete() {
		return families, false, err
	}

	extensions, _, err := r.instance.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return families, false, errors.Wrap(err, "enumerate device extensions")
	}
	for _, name := range deviceExtensions {
		if _, ok := extensions[name]; !ok {
			return families, false, nil
		}
	}

	support, err := r.querySwapchainSupport(device)
	if err != nil {
		return families, false, err
	}

	features := r.instance.GetPhysicalDeviceFeatures(device)
	return families, support.adequate() && features.SamplerAnisotropy, nil
}

func (r *Renderer) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilies, error) {
	var families queueFamilies
	for index, family := range r.instance.GetPhysicalDeviceQueueFamilyProperties(device) {
		if family.QueueFlags&core1_0.QueueGraphics != 0 && !families.graphics.Valid() {
			families.graphics.Set(index)
		}

		supported, _, err := r.surfaceExt.GetPhysicalDeviceSurfaceSupport(r.surface.MustGet(), device, index)
		if err != nil {
			return families, errors.Wrapf(err, "query present support of family %d", index)
		}
		if supported && !families.present.Valid() {
			families.present.Set(index)
		}

		if families.complete() {
			break
		}
	}
	return families, nil
}

// querySwapchainSupport reads the surface capabilities, formats and present
// modes, each through its own query.
func (r *Renderer) querySwapchainSupport(device core1_0.PhysicalDevice) (swapchainSupport, error) {
	var support swapchainSupport
	var err error
	surface := r.surface.MustGet()

	support.Capabilities, _, err = r.surfaceExt.GetPhysicalDeviceSurfaceCapabilities(surface, device)
	if err != nil {
		return support, errors.Wrap(err, "query surface capabilities")
	}

	support.Formats, _, err = r.surfaceExt.GetPhysicalDeviceSurfaceFormats(surface, device)
	if err != nil {
		return support, errors.Wrap(err, "query surface formats")
	}

	support.PresentModes, _, err = r.surfaceExt.GetPhysicalDeviceSurfacePresentModes(surface, device)
	return support, errors.Wrap(err, "query present modes")
}

func (r *Renderer) createLogicalDevice() error {
	var queueInfos []core1_0.DeviceQueueCreateInfo
	for _, family := range r.families.unique() {
		queueInfos = append(queueInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string(nil), deviceExtensions...)
	available, _, err := r.instance.EnumerateDeviceExtensionProperties(r.physicalDevice)
	if err != nil {
		return errors.Wrap(err, "enumerate device extensions")
	}
	if _, ok := available[khr_portability_subset.ExtensionName]; ok {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	device, _, err := r.instance.CreateDevice(r.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueInfos,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "create device")
	}
	r.device, err = r.instance.BuildDeviceDriver(device)
	if err != nil {
		return errors.Wrap(err, "build device driver")
	}
	r.arena.Defer("device", func() { r.device.DestroyDevice(nil) })

	r.graphicsQueue = r.device.GetQueue(r.families.graphics.MustGet(), 0)
	r.presentQueue = r.device.GetQueue(r.families.present.MustGet(), 0)
	r.swapchainExt = khr_swapchain.CreateExtensionDriverFromCoreDriver(r.device)
	return nil
}

func (r *Renderer) createCommandPool() error {
	pool, _, err := r.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: r.families.graphics.MustGet(),
	})
	if err != nil {
		return errors.Wrap(err, "create command pool")
	}
	resource.Manage(r.arena, "command pool", &r.commandPool, pool, func(p core1_0.CommandPool) {
		r.device.DestroyCommandPool(p, nil)
	})
	return nil
}

func (r *Renderer) createDescriptorSetLayout() error {
	layout, _, err := r.device.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				StageFlags:      core1_0.StageVertex,
			},
			{
				Binding:         1,
				DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,
				StageFlags:      core1_0.StageFragment,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor set layout")
	}
	resource.Manage(r.arena, "descriptor set layout", &r.descriptorSetLayout, layout, func(l core1_0.DescriptorSetLayout) {
		r.device.DestroyDescriptorSetLayout(l, nil)
	})
	return nil
}

func (r *Renderer) findSupportedFormat(candidates []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range candidates {
		props := r.instance.GetPhysicalDeviceFormatProperties(r.physicalDevice, format)
		if tiling == core1_0.ImageTilingLinear && props.LinearTilingFeatures&features == features {
			return format, nil
		}
		if tiling == core1_0.ImageTilingOptimal && props.OptimalTilingFeatures&features == features {
			return format, nil
		}
	}
	return 0, errors.Newf("no format supports tiling %s with features %s", tiling, features)
}

func (r *Renderer) findDepthFormat() (core1_0.Format, error) {
	return r.findSupportedFormat(
		[]core1_0.Format{core1_0.FormatD32SignedFloat, core1_0.FormatD32SignedFloatS8UnsignedInt, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt},
		core1_0.ImageTilingOptimal,
		core1_0.FormatFeatureDepthStencilAttachment)
}
