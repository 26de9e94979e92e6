package vulkan

import "math"

/**
 * @brief Timeout used when acquiring a swapchain image. The frame waits as
 * long as it takes.
 */
const VULKAN_ACQUIRE_TIMEOUT uint64 = math.MaxUint64

/**
 * @brief Timeout for single use uploads, in nanoseconds.
 */
const VULKAN_UPLOAD_TIMEOUT uint64 = 5 * 1000 * 1000 * 1000

/**
 * @brief Max number of bindings in a single descriptor set layout.
 */
const VULKAN_SHADER_MAX_BINDINGS uint32 = 32

/**
 * @brief Max number of descriptor sets a pipeline layout can reference.
 */
const VULKAN_SHADER_MAX_SETS uint32 = 8

/**
 * @brief Entry point used when a stage does not name one.
 */
const VULKAN_DEFAULT_ENTRY_POINT = "main"
