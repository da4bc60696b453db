package renderer

import (
	"image"

	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/texturedquad/resource"

	// Decoders beyond the png, jpeg and gif formats imaging registers.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const textureFormat = core1_0.FormatR8G8B8A8SRGB

// loadPixels decodes the image at path into tightly packed 8-bit RGBA rows.
// EXIF orientation is applied so photos come out upright.
func loadPixels(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "open texture %s", path)
	}

	pixels := imaging.Clone(img)
	if pixels.Rect.Empty() {
		return nil, errors.Newf("texture %s is empty", path)
	}
	return pixels, nil
}

func (r *Renderer) createTexture(path string) error {
	pixels, err := loadPixels(path)
	if err != nil {
		return err
	}
	extent := core1_0.Extent2D{Width: pixels.Rect.Dx(), Height: pixels.Rect.Dy()}

	staging := resource.NewArena()
	defer staging.Release()

	src, err := r.createBuffer(staging, "texture staging", len(pixels.Pix), core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return err
	}
	if err := writeData(r.device, src.memory.MustGet(), 0, pixels.Pix); err != nil {
		return errors.Wrap(err, "fill texture staging buffer")
	}

	texture, err := r.createImage(r.arena, "texture", extent, textureFormat, core1_0.ImageUsageTransferDst|core1_0.ImageUsageSampled)
	if err != nil {
		return err
	}
	textureImage := texture.object.MustGet()

	err = r.singleTimeCommands(func(cmd core1_0.CommandBuffer) error {
		if err := r.transitionImageLayout(cmd, textureImage, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal); err != nil {
			return err
		}

		err := r.device.CmdCopyBufferToImage(cmd, src.object.MustGet(), textureImage, core1_0.ImageLayoutTransferDstOptimal,
			core1_0.BufferImageCopy{
				ImageSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       0,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
				ImageExtent: core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
			},
		)
		if err != nil {
			return err
		}

		return r.transitionImageLayout(cmd, textureImage, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	})
	if err != nil {
		return errors.Wrap(err, "upload texture")
	}

	view, err := r.createImageView(textureImage, textureFormat, core1_0.ImageAspectColor)
	if err != nil {
		return errors.Wrap(err, "texture")
	}
	resource.Manage(r.arena, "texture view", &r.textureView, view, func(v core1_0.ImageView) {
		r.device.DestroyImageView(v, nil)
	})

	r.log.WithFields(logrus.Fields{
		"path":   path,
		"width":  extent.Width,
		"height": extent.Height,
	}).Debug("texture uploaded")
	return nil
}

func (r *Renderer) createSampler() error {
	properties, err := r.instance.GetPhysicalDeviceProperties(r.physicalDevice)
	if err != nil {
		return errors.Wrap(err, "query device properties")
	}

	sampler, _, err := r.device.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: true,
		MaxAnisotropy:    properties.Limits.MaxSamplerAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     0,
	})
	if err != nil {
		return errors.Wrap(err, "create sampler")
	}
	resource.Manage(r.arena, "sampler", &r.sampler, sampler, func(s core1_0.Sampler) {
		r.device.DestroySampler(s, nil)
	})
	return nil
}
