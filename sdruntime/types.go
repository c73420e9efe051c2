package sdruntime

import (
	"fmt"
	"image"
)

// Img2ImgParams holds parameters for one image-to-image generation.
type Img2ImgParams struct {
	Prompt         string      // Required: style description
	NegativePrompt string      // Optional: what to steer away from
	InitImage      *image.RGBA // Required: source image, Width x Height
	Width          int         // Output width (128-2048, divisible by 8)
	Height         int         // Output height (128-2048, divisible by 8)
	Steps          int         // Denoising steps (1-100)
	CFGScale       float64     // Classifier-free guidance scale (1.0-30.0)
	Strength       float64     // How far to move from InitImage (0 < s <= 1)
	Seed           int64       // -1 for random
}

// Parameter validation limits
const (
	MinImageSize      = 128
	MaxImageSize      = 2048
	ImageSizeMultiple = 8

	MinSteps = 1
	MaxSteps = 100

	MinCFGScale = 1.0
	MaxCFGScale = 30.0

	MaxPromptLength = 1000
)

// Defaults used by DefaultImg2ImgParams.
const (
	DefaultImageSize = 512
	DefaultSteps     = 25
	DefaultCFGScale  = 7.5
	DefaultStrength  = 0.75
)

// DefaultImg2ImgParams returns params with default size, steps, guidance
// and strength and a random seed. Prompt and InitImage are left empty.
func DefaultImg2ImgParams() Img2ImgParams {
	return Img2ImgParams{
		Width:    DefaultImageSize,
		Height:   DefaultImageSize,
		Steps:    DefaultSteps,
		CFGScale: DefaultCFGScale,
		Strength: DefaultStrength,
		Seed:     -1,
	}
}

// ValidateParams validates generation parameters.
// This is a pure function with no side effects.
func ValidateParams(p Img2ImgParams) error {
	if err := ValidatePrompt(p.Prompt); err != nil {
		return err
	}
	if len(p.NegativePrompt) > MaxPromptLength {
		return fmt.Errorf("%w: negative prompt length %d exceeds maximum %d",
			ErrInvalidParams, len(p.NegativePrompt), MaxPromptLength)
	}

	if err := validateDimension("width", p.Width); err != nil {
		return err
	}
	if err := validateDimension("height", p.Height); err != nil {
		return err
	}

	if p.Steps < MinSteps || p.Steps > MaxSteps {
		return fmt.Errorf("%w: steps %d must be between %d and %d",
			ErrInvalidParams, p.Steps, MinSteps, MaxSteps)
	}
	if p.CFGScale < MinCFGScale || p.CFGScale > MaxCFGScale {
		return fmt.Errorf("%w: CFGScale %.2f must be between %.1f and %.1f",
			ErrInvalidParams, p.CFGScale, MinCFGScale, MaxCFGScale)
	}
	if p.Strength <= 0 || p.Strength > 1 {
		return fmt.Errorf("%w: strength %.2f must be in (0, 1]", ErrInvalidParams, p.Strength)
	}

	if p.InitImage == nil {
		return fmt.Errorf("%w: init image is required", ErrInvalidParams)
	}
	if b := p.InitImage.Bounds(); b.Dx() != p.Width || b.Dy() != p.Height {
		return fmt.Errorf("%w: init image is %dx%d, want %dx%d",
			ErrInvalidParams, b.Dx(), b.Dy(), p.Width, p.Height)
	}
	return nil
}

func validateDimension(name string, v int) error {
	if v < MinImageSize || v > MaxImageSize {
		return fmt.Errorf("%w: %s %d must be between %d and %d",
			ErrInvalidParams, name, v, MinImageSize, MaxImageSize)
	}
	if v%ImageSizeMultiple != 0 {
		return fmt.Errorf("%w: %s %d must be divisible by %d",
			ErrInvalidParams, name, v, ImageSizeMultiple)
	}
	return nil
}
