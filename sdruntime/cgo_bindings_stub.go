//go:build !sd || stub

package sdruntime

import "fmt"

// loadModelImpl checks the model file, then fails: there is no library to
// load it into.
func loadModelImpl(modelPath string, _ LoadOptions) (*SDContext, error) {
	if err := checkModelFile(modelPath); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: stable-diffusion.cpp library not linked (stub build); "+
		"build with CGO and the 'sd' tag to load %s", ErrModelLoadFailed, modelPath)
}

func img2imgImpl(ctx *SDContext, _ Img2ImgParams) (*GenerateResult, error) {
	if !ctx.IsValid() {
		return nil, fmt.Errorf("%w: context is nil or invalid", ErrGenerationFailed)
	}
	return nil, fmt.Errorf("%w: stable-diffusion.cpp library not available (stub mode). "+
		"Build with CGO and the 'sd' tag to enable image generation", ErrGenerationFailed)
}

func freeContextImpl(ctx *SDContext) {
	if ctx == nil {
		return
	}
	ctx.valid = false
}

func getBackendInfoImpl() string {
	return "stub (no stable-diffusion.cpp library linked)"
}
