package renderer

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/texturedquad/resource"
)

// allocation is a buffer or image together with its backing memory.
type allocation[T any] struct {
	object resource.Handle[T]
	memory resource.Handle[core1_0.DeviceMemory]
}

func (r *Renderer) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := r.instance.GetPhysicalDeviceMemoryProperties(r.physicalDevice)
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)
		if typeFilter&typeBit != 0 && memoryType.PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, errors.Newf("no memory type matches filter %#x with properties %s", typeFilter, properties)
}

func (r *Renderer) allocate(typeBits uint32, size int, properties core1_0.MemoryPropertyFlags) (core1_0.DeviceMemory, error) {
	memoryType, err := r.findMemoryType(typeBits, properties)
	if err != nil {
		return core1_0.DeviceMemory{}, err
	}

	memory, _, err := r.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryType,
	})
	return memory, errors.Wrap(err, "allocate memory")
}

// createBuffer registers the buffer and its memory in arena, so a partially
// built buffer is still released.
func (r *Renderer) createBuffer(arena *resource.Arena, name string, size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*allocation[core1_0.Buffer], error) {
	b := &allocation[core1_0.Buffer]{}

	buffer, _, err := r.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %s buffer", name)
	}
	resource.Manage(arena, name+" buffer", &b.object, buffer, func(buf core1_0.Buffer) {
		r.device.DestroyBuffer(buf, nil)
	})

	requirements := r.device.GetBufferMemoryRequirements(buffer)
	memory, err := r.allocate(requirements.MemoryTypeBits, requirements.Size, properties)
	if err != nil {
		return nil, errors.Wrapf(err, "%s buffer", name)
	}
	resource.Manage(arena, name+" buffer memory", &b.memory, memory, func(m core1_0.DeviceMemory) {
		r.device.FreeMemory(m, nil)
	})

	_, err = r.device.BindBufferMemory(buffer, memory, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "bind %s buffer memory", name)
	}
	return b, nil
}

func (r *Renderer) createImage(arena *resource.Arena, name string, extent core1_0.Extent2D, format core1_0.Format, usage core1_0.ImageUsageFlags) (*allocation[core1_0.Image], error) {
	img := &allocation[core1_0.Image]{}

	image, _, err := r.device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %s image", name)
	}
	resource.Manage(arena, name+" image", &img.object, image, func(i core1_0.Image) {
		r.device.DestroyImage(i, nil)
	})

	requirements := r.device.GetImageMemoryRequirements(image)
	memory, err := r.allocate(requirements.MemoryTypeBits, requirements.Size, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, errors.Wrapf(err, "%s image", name)
	}
	resource.Manage(arena, name+" image memory", &img.memory, memory, func(m core1_0.DeviceMemory) {
		r.device.FreeMemory(m, nil)
	})

	_, err = r.device.BindImageMemory(image, memory, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "bind %s image memory", name)
	}
	return img, nil
}

func (r *Renderer) createImageView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (core1_0.ImageView, error) {
	view, _, err := r.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	return view, errors.Wrap(err, "create image view")
}

// writeData copies the binary encoding of data into host-visible memory.
func writeData(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, data any) error {
	size := binary.Size(data)
	if size < 0 {
		return errors.AssertionFailedf("%T has no fixed-size encoding", data)
	}

	ptr, _, err := driver.MapMemory(memory, offset, size, 0)
	if err != nil {
		return errors.Wrap(err, "map memory")
	}
	defer driver.UnmapMemory(memory)

	buf := bytes.NewBuffer(make([]byte, 0, size))
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return errors.Wrap(err, "encode")
	}

	copy(unsafe.Slice((*byte)(ptr), size), buf.Bytes())
	return nil
}

// uploadBuffer creates a device-local buffer holding data, staged through a
// host-visible buffer that is gone when this returns.
func (r *Renderer) uploadBuffer(arena *resource.Arena, name string, usage core1_0.BufferUsageFlags, data any) (*allocation[core1_0.Buffer], error) {
	size := binary.Size(data)

	staging := resource.NewArena()
	defer staging.Release()

	src, err := r.createBuffer(staging, name+" staging", size, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}
	if err := writeData(r.device, src.memory.MustGet(), 0, data); err != nil {
		return nil, errors.Wrapf(err, "fill %s staging buffer", name)
	}

	dst, err := r.createBuffer(arena, name, size, core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	err = r.singleTimeCommands(func(cmd core1_0.CommandBuffer) error {
		return r.device.CmdCopyBuffer(cmd, src.object.MustGet(), dst.object.MustGet(), core1_0.BufferCopy{Size: size})
	})
	return dst, errors.Wrapf(err, "copy %s buffer", name)
}

// singleTimeCommands records a one-shot command buffer, submits it to the
// graphics queue and waits for the queue to drain.
func (r *Renderer) singleTimeCommands(record func(cmd core1_0.CommandBuffer) error) error {
	buffers, _, err := r.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        r.commandPool.MustGet(),
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return errors.Wrap(err, "allocate command buffer")
	}
	cmd := buffers[0]
	defer r.device.FreeCommandBuffers(cmd)

	_, err = r.device.BeginCommandBuffer(cmd, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "begin command buffer")
	}

	if err := record(cmd); err != nil {
		return err
	}

	_, err = r.device.EndCommandBuffer(cmd)
	if err != nil {
		return errors.Wrap(err, "end command buffer")
	}

	_, err = r.device.QueueSubmit(r.graphicsQueue, nil, core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{cmd},
	})
	if err != nil {
		return errors.Wrap(err, "submit")
	}

	_, err = r.device.QueueWaitIdle(r.graphicsQueue)
	return errors.Wrap(err, "wait for graphics queue")
}

func (r *Renderer) transitionImageLayout(cmd core1_0.CommandBuffer, image core1_0.Image, oldLayout, newLayout core1_0.ImageLayout) error {
	var srcStage, dstStage core1_0.PipelineStageFlags
	var srcAccess, dstAccess core1_0.AccessFlags

	switch {
	case oldLayout == core1_0.ImageLayoutUndefined && newLayout == core1_0.ImageLayoutTransferDstOptimal:
		dstAccess = core1_0.AccessTransferWrite
		srcStage = core1_0.PipelineStageTopOfPipe
		dstStage = core1_0.PipelineStageTransfer
	case oldLayout == core1_0.ImageLayoutTransferDstOptimal && newLayout == core1_0.ImageLayoutShaderReadOnlyOptimal:
		srcAccess = core1_0.AccessTransferWrite
		dstAccess = core1_0.AccessShaderRead
		srcStage = core1_0.PipelineStageTransfer
		dstStage = core1_0.PipelineStageFragmentShader
	default:
		return errors.AssertionFailedf("unsupported layout transition %s -> %s", oldLayout, newLayout)
	}

	return r.device.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: srcAccess,
			DstAccessMask: dstAccess,
		},
	})
}
