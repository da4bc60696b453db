package renderer

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/texturedquad/config"
	"github.com/vkngwrapper/texturedquad/frame"
)

const spirvMagic = 0x07230203

type swapchainSupport struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

func (s swapchainSupport) adequate() bool {
	return s.Capabilities != nil && len(s.Formats) > 0 && len(s.PresentModes) > 0
}

func chooseSurfaceFormat(available []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	if len(available) == 0 {
		return khr_surface.SurfaceFormat{}, errors.New("surface reports no formats")
	}

	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format, nil
		}
	}
	return available[0], nil
}

var presentModesByName = map[string]khr_surface.PresentMode{
	config.PresentMailbox:     khr_surface.PresentModeMailbox,
	config.PresentFIFO:        khr_surface.PresentModeFIFO,
	config.PresentFIFORelaxed: khr_surface.PresentModeFIFORelaxed,
	config.PresentImmediate:   khr_surface.PresentModeImmediate,
}

// choosePresentMode returns the preferred mode when the surface offers it and
// FIFO otherwise, which every surface must support.
func choosePresentMode(available []khr_surface.PresentMode, preferred string) khr_surface.PresentMode {
	want, known := presentModesByName[preferred]
	if known {
		for _, mode := range available {
			if mode == want {
				return mode
			}
		}
	}
	return khr_surface.PresentModeFIFO
}

// chooseImageCount asks for one image more than the minimum. A maximum of zero
// means unbounded.
func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	count := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && count > capabilities.MaxImageCount {
		count = capabilities.MaxImageCount
	}
	return count
}

func surfaceExtents(capabilities *khr_surface.SurfaceCapabilities) frame.SurfaceExtents {
	current := frame.Extent{Width: capabilities.CurrentExtent.Width, Height: capabilities.CurrentExtent.Height}
	if uint32(current.Width) == math.MaxUint32 {
		current = frame.Extent{Width: frame.UndefinedSize, Height: frame.UndefinedSize}
	}

	return frame.SurfaceExtents{
		Current: current,
		Min:     frame.Extent{Width: capabilities.MinImageExtent.Width, Height: capabilities.MinImageExtent.Height},
		Max:     frame.Extent{Width: capabilities.MaxImageExtent.Width, Height: capabilities.MaxImageExtent.Height},
	}
}

func extent2D(e frame.Extent) core1_0.Extent2D {
	return core1_0.Extent2D{Width: e.Width, Height: e.Height}
}

// shaderBytecode converts a SPIR-V binary into the word stream Vulkan expects.
func shaderBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("spir-v size %d is not a positive multiple of 4", len(b))
	}

	code := make([]uint32, len(b)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if code[0] != spirvMagic {
		return nil, errors.Newf("bad spir-v magic %#08x", code[0])
	}
	return code, nil
}

func readShader(path string) ([]uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read shader")
	}

	code, err := shaderBytecode(b)
	return code, errors.Wrapf(err, "shader %s", path)
}
