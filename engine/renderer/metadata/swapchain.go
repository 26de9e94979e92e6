package metadata

// SurfaceCapabilities is the subset of the presentation engine limits the
// frame controller needs.
type SurfaceCapabilities struct {
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
	MinImageCount  uint32
	// Zero means no limit.
	MaxImageCount uint32
}

type SwapchainDesc struct {
	Extent Extent2D
	// The swapchain being replaced, zero for the first one.
	Old SwapchainHandle
}

type Swapchain struct {
	Handle SwapchainHandle
	Format Format
	Extent Extent2D
	Images []ImageHandle
}
