package metadata

import "github.com/google/uuid"

/**
 * @brief Represents a texture uploaded to the device.
 */
type Texture struct {
	/** @brief The unique texture identifier. Batching compares textures by it. */
	ID uuid.UUID
	/** @brief The texture Name, usually the file it was loaded from. */
	Name string
	/** @brief The texture Width. */
	Width uint32
	/** @brief The texture Height. */
	Height uint32

	Image   ImageHandle
	View    ImageViewHandle
	Sampler SamplerHandle
}
