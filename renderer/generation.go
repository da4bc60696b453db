package renderer

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/texturedquad/frame"
	"github.com/vkngwrapper/texturedquad/quad"
	"github.com/vkngwrapper/texturedquad/resource"
)

var uniformBufferSize = int(unsafe.Sizeof(quad.UniformBufferObject{}))

// generation is every object whose lifetime is bound to one swapchain. All of
// it is released together through arena.
type generation struct {
	arena  *resource.Arena
	id     uuid.UUID
	extent core1_0.Extent2D
	format core1_0.Format

	swapchain      resource.Handle[khr_swapchain.Swapchain]
	images         []core1_0.Image
	views          []core1_0.ImageView
	depth          *allocation[core1_0.Image]
	depthView      resource.Handle[core1_0.ImageView]
	renderPass     resource.Handle[core1_0.RenderPass]
	pipelineLayout resource.Handle[core1_0.PipelineLayout]
	pipeline       resource.Handle[core1_0.Pipeline]
	framebuffers   []core1_0.Framebuffer
	uniforms       []*allocation[core1_0.Buffer]
	descriptorPool resource.Handle[core1_0.DescriptorPool]
	descriptorSets []core1_0.DescriptorSet
	commandBuffers []core1_0.CommandBuffer
}

func (g *generation) describe() frame.Generation {
	return frame.Generation{
		ID:         g.id,
		Extent:     frame.Extent{Width: g.extent.Width, Height: g.extent.Height},
		ImageCount: len(g.images),
	}
}

func (g *generation) aspect() float32 {
	return quad.AspectRatio(g.extent.Width, g.extent.Height)
}

// buildGeneration creates a swapchain sized for width x height, or for the
// surface's fixed extent if it has one, plus everything that depends on it.
func (r *Renderer) buildGeneration(width, height int) (*generation, error) {
	g := &generation{arena: resource.NewArena(), id: uuid.New()}

	steps := []struct {
		name  string
		build func(*generation) error
	}{
		{"swapchain", func(g *generation) error { return r.createSwapchain(g, width, height) }},
		{"image views", r.createImageViews},
		{"depth buffer", r.createDepthResources},
		{"render pass", r.createRenderPass},
		{"pipeline", r.createGraphicsPipeline},
		{"framebuffers", r.createFramebuffers},
		{"uniform buffers", r.createUniformBuffers},
		{"descriptor sets", r.createDescriptorSets},
		{"command buffers", r.createCommandBuffers},
	}

	for _, step := range steps {
		if err := step.build(g); err != nil {
			g.arena.Release()
			return nil, errors.Wrapf(err, "build %s", step.name)
		}
	}
	return g, nil
}

func (r *Renderer) createSwapchain(g *generation, width, height int) error {
	support, err := r.querySwapchainSupport(r.physicalDevice)
	if err != nil {
		return err
	}

	surfaceFormat, err := chooseSurfaceFormat(support.Formats)
	if err != nil {
		return err
	}
	presentMode := choosePresentMode(support.PresentModes, r.cfg.PresentMode)

	extent := frame.ChooseExtent(surfaceExtents(support.Capabilities), frame.Extent{Width: width, Height: height})
	if extent.Empty() {
		return errors.Newf("surface extent %s has no area", extent)
	}

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if families := r.families.unique(); len(families) > 1 {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = families
	}

	swapchain, _, err := r.swapchainExt.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: r.surface.MustGet(),

		MinImageCount:    chooseImageCount(support.Capabilities),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent2D(extent),
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	resource.Manage(g.arena, "swapchain", &g.swapchain, swapchain, func(s khr_swapchain.Swapchain) {
		r.swapchainExt.DestroySwapchain(s, nil)
	})

	g.extent = extent2D(extent)
	g.format = surfaceFormat.Format
	r.log.WithField("present mode", presentMode).Debug("swapchain created")
	return nil
}

func (r *Renderer) createImageViews(g *generation) error {
	images, _, err := r.swapchainExt.GetSwapchainImages(g.swapchain.MustGet())
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	if len(images) == 0 {
		return errors.New("swapchain has no images")
	}
	g.images = images

	g.arena.Defer("swapchain image views", func() {
		for _, view := range g.views {
			r.device.DestroyImageView(view, nil)
		}
		g.views = nil
	})
	for _, image := range images {
		view, err := r.createImageView(image, g.format, core1_0.ImageAspectColor)
		if err != nil {
			return err
		}
		g.views = append(g.views, view)
	}
	return nil
}

func (r *Renderer) createDepthResources(g *generation) error {
	var err error
	g.depth, err = r.createImage(g.arena, "depth", g.extent, r.depthFormat, core1_0.ImageUsageDepthStencilAttachment)
	if err != nil {
		return err
	}

	view, err := r.createImageView(g.depth.object.MustGet(), r.depthFormat, core1_0.ImageAspectDepth)
	if err != nil {
		return errors.Wrap(err, "depth")
	}
	resource.Manage(g.arena, "depth view", &g.depthView, view, func(v core1_0.ImageView) {
		r.device.DestroyImageView(v, nil)
	})
	return nil
}

func (r *Renderer) createRenderPass(g *generation) error {
	renderPass, _, err := r.device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         g.format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			{
				Format:         r.depthFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}
	resource.Manage(g.arena, "render pass", &g.renderPass, renderPass, func(p core1_0.RenderPass) {
		r.device.DestroyRenderPass(p, nil)
	})
	return nil
}

func (r *Renderer) createShaderModule(code []uint32) (core1_0.ShaderModule, error) {
	module, _, err := r.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{Code: code})
	return module, errors.Wrap(err, "create shader module")
}

func (r *Renderer) createGraphicsPipeline(g *generation) error {
	vertShader, err := r.createShaderModule(r.shaders.vertex)
	if err != nil {
		return errors.Wrap(err, "vertex")
	}
	defer r.device.DestroyShaderModule(vertShader, nil)

	fragShader, err := r.createShaderModule(r.shaders.fragment)
	if err != nil {
		return errors.Wrap(err, "fragment")
	}
	defer r.device.DestroyShaderModule(fragShader, nil)

	layout, _, err := r.device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{r.descriptorSetLayout.MustGet()},
	})
	if err != nil {
		return errors.Wrap(err, "create pipeline layout")
	}
	resource.Manage(g.arena, "pipeline layout", &g.pipelineLayout, layout, func(l core1_0.PipelineLayout) {
		r.device.DestroyPipelineLayout(l, nil)
	})

	pipelines, _, err := r.device.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{Stage: core1_0.StageVertex, Module: vertShader, Name: "main"},
				{Stage: core1_0.StageFragment, Module: fragShader, Name: "main"},
			},
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
				VertexBindingDescriptions:   vertexBindingDescriptions(),
				VertexAttributeDescriptions: vertexAttributeDescriptions(),
			},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology: core1_0.PrimitiveTopologyTriangleList,
			},
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: []core1_0.Viewport{
					{
						Width:    float32(g.extent.Width),
						Height:   float32(g.extent.Height),
						MinDepth: 0,
						MaxDepth: 1,
					},
				},
				Scissors: []core1_0.Rect2D{
					{Offset: core1_0.Offset2D{X: 0, Y: 0}, Extent: g.extent},
				},
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    core1_0.CullModeBack,
				FrontFace:   core1_0.FrontFaceCounterClockwise,
				LineWidth:   1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				RasterizationSamples: core1_0.Samples1,
				MinSampleShading:     1.0,
			},
			DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
				DepthTestEnable:  true,
				DepthWriteEnable: true,
				DepthCompareOp:   core1_0.CompareOpLess,
			},
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOp: core1_0.LogicOpCopy,
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
					},
				},
			},
			Layout:            layout,
			RenderPass:        g.renderPass.MustGet(),
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		return errors.Wrap(err, "create graphics pipeline")
	}
	resource.Manage(g.arena, "pipeline", &g.pipeline, pipelines[0], func(p core1_0.Pipeline) {
		r.device.DestroyPipeline(p, nil)
	})
	return nil
}

func (r *Renderer) createFramebuffers(g *generation) error {
	g.arena.Defer("framebuffers", func() {
		for _, framebuffer := range g.framebuffers {
			r.device.DestroyFramebuffer(framebuffer, nil)
		}
		g.framebuffers = nil
	})

	for _, view := range g.views {
		framebuffer, _, err := r.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  g.renderPass.MustGet(),
			Attachments: []core1_0.ImageView{view, g.depthView.MustGet()},
			Width:       g.extent.Width,
			Height:      g.extent.Height,
			Layers:      1,
		})
		if err != nil {
			return errors.Wrap(err, "create framebuffer")
		}
		g.framebuffers = append(g.framebuffers, framebuffer)
	}
	return nil
}

func (r *Renderer) createUniformBuffers(g *generation) error {
	for range g.images {
		buffer, err := r.createBuffer(g.arena, "uniform", uniformBufferSize, core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			return err
		}
		g.uniforms = append(g.uniforms, buffer)
	}
	return nil
}

func (r *Renderer) createDescriptorSets(g *generation) error {
	count := len(g.images)

	pool, _, err := r.device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: count,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{Type: core1_0.DescriptorTypeUniformBuffer, DescriptorCount: count},
			{Type: core1_0.DescriptorTypeCombinedImageSampler, DescriptorCount: count},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}
	// Sets allocated from the pool go away with it.
	resource.Manage(g.arena, "descriptor pool", &g.descriptorPool, pool, func(p core1_0.DescriptorPool) {
		r.device.DestroyDescriptorPool(p, nil)
		g.descriptorSets = nil
	})

	layouts := make([]core1_0.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = r.descriptorSetLayout.MustGet()
	}

	g.descriptorSets, _, err = r.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: pool,
		SetLayouts:     layouts,
	})
	if err != nil {
		return errors.Wrap(err, "allocate descriptor sets")
	}

	for i, set := range g.descriptorSets {
		err = r.device.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
			{
				DstSet:         set,
				DstBinding:     0,
				DescriptorType: core1_0.DescriptorTypeUniformBuffer,
				BufferInfo: []core1_0.DescriptorBufferInfo{
					{
						Buffer: g.uniforms[i].object.MustGet(),
						Offset: 0,
						Range:  uniformBufferSize,
					},
				},
			},
			{
				DstSet:         set,
				DstBinding:     1,
				DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,
				ImageInfo: []core1_0.DescriptorImageInfo{
					{
						ImageView:   r.textureView.MustGet(),
						Sampler:     r.sampler.MustGet(),
						ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
					},
				},
			},
		}, nil)
		if err != nil {
			return errors.Wrapf(err, "update descriptor set %d", i)
		}
	}
	return nil
}

// createCommandBuffers records one command buffer per swapchain image. They
// are replayed unchanged every frame until the generation is rebuilt.
func (r *Renderer) createCommandBuffers(g *generation) error {
	buffers, _, err := r.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        r.commandPool.MustGet(),
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: len(g.images),
	})
	if err != nil {
		return errors.Wrap(err, "allocate command buffers")
	}
	g.commandBuffers = buffers
	g.arena.Defer("command buffers", func() {
		r.device.FreeCommandBuffers(g.commandBuffers...)
		g.commandBuffers = nil
	})

	for i, buffer := range buffers {
		if err := r.recordCommandBuffer(g, i, buffer); err != nil {
			return errors.Wrapf(err, "record command buffer %d", i)
		}
	}
	return nil
}

func (r *Renderer) recordCommandBuffer(g *generation, imageIndex int, buffer core1_0.CommandBuffer) error {
	_, err := r.device.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return err
	}

	err = r.device.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  g.renderPass.MustGet(),
			Framebuffer: g.framebuffers[imageIndex],
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: g.extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{0, 0, 0, 1},
				core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
			},
		})
	if err != nil {
		return err
	}

	r.device.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, g.pipeline.MustGet())
	r.device.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{r.mesh.vertices.object.MustGet()}, []int{0})
	r.device.CmdBindIndexBuffer(buffer, r.mesh.indices.object.MustGet(), 0, core1_0.IndexTypeUInt32)
	r.device.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, g.pipelineLayout.MustGet(), 0, []core1_0.DescriptorSet{
		g.descriptorSets[imageIndex],
	}, nil)
	r.device.CmdDrawIndexed(buffer, r.mesh.indexCount, 1, 0, 0, 0)
	r.device.CmdEndRenderPass(buffer)

	_, err = r.device.EndCommandBuffer(buffer)
	return err
}
