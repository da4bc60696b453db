package frame

// UndefinedSize in SurfaceExtents.Current means the surface lets the
// swapchain pick any size within Min and Max.
const UndefinedSize = -1

// SurfaceExtents are the size limits a presentation surface reports.
type SurfaceExtents struct {
	Current Extent
	Min     Extent
	Max     Extent
}

// ChooseExtent picks the swapchain size for a requested window size. A surface
// with a fixed current extent always wins; otherwise the request is clamped to
// the surface limits.
func ChooseExtent(surface SurfaceExtents, requested Extent) Extent {
	if surface.Current.Width != UndefinedSize {
		return surface.Current
	}

	return Extent{
		Width:  clamp(requested.Width, surface.Min.Width, surface.Max.Width),
		Height: clamp(requested.Height, surface.Min.Height, surface.Max.Height),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
