// Package sdruntime wraps stable-diffusion.cpp for image-to-image generation.
//
// The package is built from small pieces:
//
//   - Atoms: pure helpers (ValidateParams, ValidatePrompt, RandomSeed, IsPNG)
//   - Molecules: ContextPool, which bounds how many model contexts exist
//   - Organism: Pipeline, the loaded model handle shared by all requests
//
// # Quick Start
//
//	pipe, err := sdruntime.NewPipeline(sdruntime.PipelineConfig{
//	    ModelPath:     "models/ghibli-diffusion-v1.safetensors",
//	    MaxConcurrent: 1,
//	})
//	if err != nil {
//	    log.Printf("model unavailable: %v", err)
//	}
//	defer pipe.Close(context.Background())
//
//	params := sdruntime.DefaultImg2ImgParams()
//	params.Prompt = "ghibli style, a quiet harbour town"
//	params.InitImage = prepared // *image.RGBA, 512x512
//
//	png, err := pipe.Generate(ctx, params)
//
// # Build Tags
//
//   - Stub mode (default): go build
//     Model files are checked for existence, then loading fails with
//     ErrModelLoadFailed, so NewPipeline never succeeds.
//
//   - Real mode: CGO_ENABLED=1 go build -tags sd
//     Links against libstable-diffusion. Set CGO_CFLAGS and CGO_LDFLAGS to
//     the header and library locations.
//
// # Devices
//
// DetectDevice picks CUDA when an NVIDIA GPU is visible (NVML when cgo is
// enabled, nvidia-smi otherwise) and falls back to CPU. CUDA runs use f16
// weights, CPU runs use f32.
//
// # Error Handling
//
// Failures wrap the sentinel errors in errors.go; use errors.Is:
//
//	if errors.Is(err, sdruntime.ErrAcquireTimeout) {
//	    // every context is busy
//	}
//
// # Thread Safety
//
// Pipeline and ContextPool are safe for concurrent use. At most
// MaxConcurrent generations run at once; further callers wait in Acquire.
package sdruntime
