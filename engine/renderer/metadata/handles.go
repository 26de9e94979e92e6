package metadata

import "github.com/spaghettifunk/magma/engine/containers"

// Device objects are addressed by typed handles. The zero value of every
// handle means "not created".

type ShaderModuleHandle struct{ containers.Handle }

type DescriptorSetLayoutHandle struct{ containers.Handle }

type PipelineLayoutHandle struct{ containers.Handle }

type PipelineHandle struct{ containers.Handle }

type DescriptorPoolHandle struct{ containers.Handle }

type DescriptorSetHandle struct{ containers.Handle }

type BufferHandle struct{ containers.Handle }

type SwapchainHandle struct{ containers.Handle }

type ImageHandle struct{ containers.Handle }

type ImageViewHandle struct{ containers.Handle }

type SamplerHandle struct{ containers.Handle }

type CommandPoolHandle struct{ containers.Handle }

type CommandBufferHandle struct{ containers.Handle }

type SemaphoreHandle struct{ containers.Handle }
