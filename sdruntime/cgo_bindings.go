// Wrappers around the stable-diffusion.cpp C library.
//
// Without the "sd" build tag (or with "stub") the stub implementation is
// compiled: models are checked on disk and then rejected with
// ErrModelLoadFailed, so the service reports the model as unavailable.
//
// Building against the real library:
//
//	CGO_CFLAGS="-I/path/to/stable-diffusion.cpp" \
//	CGO_LDFLAGS="-L/path/to/stable-diffusion.cpp/build -lstable-diffusion" \
//	go build -tags sd

package sdruntime

import (
	"fmt"
	"os"
)

// LoadOptions controls how a model is loaded into a context.
type LoadOptions struct {
	Device  Device
	Threads int // CPU threads; <= 0 uses runtime.NumCPU()
}

// SDContext is an opaque handle to a loaded model.
type SDContext struct {
	id    uint64
	valid bool
}

// IsValid returns whether this context is valid and usable.
func (c *SDContext) IsValid() bool {
	return c != nil && c.valid
}

// GenerateResult holds one generated image.
type GenerateResult struct {
	ImageData []byte // PNG
	Width     int
	Height    int
	Seed      int64 // the seed actually used
}

// LoadModel loads a model file and returns a context for generation.
// The context must be freed with FreeContext.
//
// Errors wrap ErrModelNotFound when the file is missing and
// ErrModelLoadFailed when the library rejects it.
func LoadModel(modelPath string, opts LoadOptions) (*SDContext, error) {
	return loadModel(modelPath, opts)
}

// loadModel is swapped in tests that need contexts without the C library.
var loadModel = loadModelImpl

// checkModelFile verifies that modelPath names a readable regular file.
func checkModelFile(modelPath string) error {
	info, err := os.Stat(modelPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
	} else if err != nil {
		return fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, modelPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrModelLoadFailed, modelPath)
	}
	return nil
}

// Img2Img runs one image-to-image generation on ctx. The call blocks for
// the whole denoising loop and cannot be interrupted.
func Img2Img(ctx *SDContext, params Img2ImgParams) (*GenerateResult, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}
	return img2imgImpl(ctx, params)
}

// FreeContext releases a context. Nil or already-freed contexts are a no-op.
func FreeContext(ctx *SDContext) {
	freeContextImpl(ctx)
}

// GetBackendInfo describes the linked library, or the stub.
func GetBackendInfo() string {
	return getBackendInfoImpl()
}
