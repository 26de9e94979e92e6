package vulkan

import (
	"image"
	"math"
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

func TestChooseExtent(t *testing.T) {
	caps := metadata.SurfaceCapabilities{
		CurrentExtent:  metadata.Extent2D{Width: 800, Height: 600},
		MinImageExtent: metadata.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: metadata.Extent2D{Width: 1920, Height: 1080},
	}
	assert.Equal(t, metadata.Extent2D{Width: 800, Height: 600}, chooseExtent(caps, metadata.Extent2D{Width: 1024, Height: 768}))

	caps.CurrentExtent = metadata.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32}
	assert.Equal(t, metadata.Extent2D{Width: 1024, Height: 768}, chooseExtent(caps, metadata.Extent2D{Width: 1024, Height: 768}))
	assert.Equal(t, metadata.Extent2D{Width: 1920, Height: 1}, chooseExtent(caps, metadata.Extent2D{Width: 4000, Height: 0}))
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), chooseImageCount(metadata.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3}))
	assert.Equal(t, uint32(2), chooseImageCount(metadata.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
	// no upper limit
	assert.Equal(t, uint32(4), chooseImageCount(metadata.SurfaceCapabilities{MinImageCount: 3}))
}

func TestChooseSurfaceFormat(t *testing.T) {
	preferred := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	other := vk.SurfaceFormat{Format: vk.FormatR8g8b8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}

	assert.Equal(t, preferred, chooseSurfaceFormat([]vk.SurfaceFormat{other, preferred}))
	assert.Equal(t, other, chooseSurfaceFormat([]vk.SurfaceFormat{other}))
}

func TestChoosePresentMode(t *testing.T) {
	assert.Equal(t, vk.PresentModeMailbox, choosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox}))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode([]vk.PresentMode{vk.PresentModeImmediate}))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(nil))
}

func TestFormatRoundTrip(t *testing.T) {
	for f := range formats {
		assert.Equal(t, f, FormatFromVulkan(VulkanFormat(f)), f.String())
	}
	assert.Equal(t, metadata.FormatUndefined, FormatFromVulkan(vk.FormatD32Sfloat))
	assert.Equal(t, vk.FormatUndefined, VulkanFormat(metadata.Format(999)))
}

func TestVulkanDescriptorType(t *testing.T) {
	kind, ok := VulkanDescriptorType(metadata.DescriptorTypeCombinedImageSampler)
	require.True(t, ok)
	assert.Equal(t, vk.DescriptorTypeCombinedImageSampler, kind)

	kind, ok = VulkanDescriptorType(metadata.DescriptorTypeInputAttachment)
	require.True(t, ok)
	assert.Equal(t, vk.DescriptorTypeInputAttachment, kind)

	_, ok = VulkanDescriptorType(metadata.DescriptorType(-1))
	assert.False(t, ok)
	_, ok = VulkanDescriptorType(metadata.DescriptorType(64))
	assert.False(t, ok)
}

func TestVulkanShaderStage(t *testing.T) {
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit), VulkanShaderStage(metadata.ShaderStageVertex))
	both := VulkanShaderStage(metadata.ShaderStageVertex | metadata.ShaderStageFragment)
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit)|vk.ShaderStageFlags(vk.ShaderStageFragmentBit), both)
	assert.Zero(t, VulkanShaderStage(0))
}

func TestEveryTransitionHasMasks(t *testing.T) {
	pairs := [][2]metadata.ImageLayout{
		{metadata.ImageLayoutUndefined, metadata.ImageLayoutTransferDst},
		{metadata.ImageLayoutUndefined, metadata.ImageLayoutColorAttachment},
		{metadata.ImageLayoutTransferDst, metadata.ImageLayoutShaderReadOnly},
		{metadata.ImageLayoutColorAttachment, metadata.ImageLayoutPresentSrc},
	}
	for _, p := range pairs {
		transition, err := metadata.TransitionFor(p[0], p[1])
		require.NoError(t, err)
		masks, ok := transitionMasks[transition]
		require.True(t, ok, "%s -> %s", p[0], p[1])
		assert.NotZero(t, masks.srcStage)
		assert.NotZero(t, masks.dstStage)
	}
	assert.Len(t, transitionMasks, len(pairs))
}

func TestVulkanImageLayout(t *testing.T) {
	assert.Equal(t, vk.ImageLayoutPresentSrc, VulkanImageLayout(metadata.ImageLayoutPresentSrc))
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, VulkanImageLayout(metadata.ImageLayoutShaderReadOnly))
	assert.Equal(t, vk.ImageLayoutUndefined, VulkanImageLayout(metadata.ImageLayout(42)))
}

func TestVulkanIndexAndBufferUsage(t *testing.T) {
	assert.Equal(t, vk.IndexTypeUint16, VulkanIndexType(metadata.IndexTypeUint16))
	assert.Equal(t, vk.IndexTypeUint32, VulkanIndexType(metadata.IndexTypeUint32))
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), VulkanBufferUsage(metadata.BufferUsageVertex))
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), VulkanBufferUsage(metadata.BufferUsageStaging))
}

func TestPackPixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	assert.Equal(t, img.Pix, packPixels(img))

	sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)
	packed := packPixels(sub)
	require.Len(t, packed, 2*2*4)
	// second pixel of the second row
	assert.Equal(t, img.Pix[img.PixOffset(1, 1):img.PixOffset(3, 1)], packed[:8])
	assert.Equal(t, img.Pix[img.PixOffset(1, 2):img.PixOffset(3, 2)], packed[8:])
}

func TestVulkanSafeString(t *testing.T) {
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))
	assert.Equal(t, 3, FindFirstZeroInByteArray([]byte{'a', 'b', 'c', 0, 0}))
}

func TestLockPoolSerialisesGroups(t *testing.T) {
	pool := NewVulkanLockPool()
	pool.SetQueueFamily(0)

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			pool.SafeCall(BufferManagement, func() error {
				counter++
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			pool.SafeQueueCall(0, func() error { return nil })
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)

	// different groups do not block each other
	err := pool.SafeCall(ImageManagement, func() error {
		return pool.SafeCall(MemoryManagement, func() error { return nil })
	})
	assert.NoError(t, err)
}

func TestCheckResult(t *testing.T) {
	assert.NoError(t, checkResult(vk.Success, "vkCreateFence"))

	err := checkResult(vk.ErrorOutOfDeviceMemory, "vkAllocateMemory of %d bytes", 64)
	require.ErrorIs(t, err, core.ErrDevice)
	assert.Contains(t, err.Error(), "vkAllocateMemory of 64 bytes")
	assert.Contains(t, err.Error(), "VK_ERROR_OUT_OF_DEVICE_MEMORY")
}
