// Package imagegen provides remote image generation backends.
//
// openai_provider.go implements OpenAIProvider, which runs the stylization
// through the OpenAI image edit endpoint instead of a local model.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"

	"ghibli_backend/core"
	"ghibli_backend/sdruntime"
	"ghibli_backend/vision"
)

// BackendName identifies OpenAIProvider in logs and /health.
const BackendName = "openai"

// Provider errors
var (
	ErrMissingAPIKey  = errors.New("imagegen: OpenAI API key is required")
	ErrEmptyResponse  = errors.New("imagegen: OpenAI returned no image data")
	ErrInvalidPayload = errors.New("imagegen: OpenAI returned an undecodable image")
)

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (required)
	APIKey string

	// BaseURL is the API endpoint (default: https://api.openai.com/v1)
	BaseURL string

	// Model is the image model to use (default: dall-e-2)
	Model string

	// Timeout bounds one API call. Zero leaves the client default.
	Timeout time.Duration
}

// OpenAIProvider implements stylize.Pipeline on top of the OpenAI image
// edit API.
//
// Thread Safety: OpenAIProvider is safe for concurrent use.
// The underlying OpenAI client handles connection pooling.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider from explicit settings.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	model := cfg.Model
	if model == "" {
		model = openai.CreateImageModelDallE2
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// NewOpenAIProviderFromConfig creates a provider from the application config.
func NewOpenAIProviderFromConfig(cfg *core.Config) (*OpenAIProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}
	return NewOpenAIProvider(OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIImageModel,
		Timeout: cfg.SDTimeout,
	})
}

// Generate uploads the prepared image with the style prompt and returns the
// edited image as PNG bytes. The negative prompt has no API equivalent and
// is ignored.
func (p *OpenAIProvider) Generate(ctx context.Context, params sdruntime.Img2ImgParams) ([]byte, error) {
	if err := sdruntime.ValidatePrompt(params.Prompt); err != nil {
		return nil, err
	}
	if params.InitImage == nil {
		return nil, fmt.Errorf("%w: init image is required", sdruntime.ErrInvalidParams)
	}

	imageFile, err := writeTempPNG(params.InitImage, "ghibli-init-*.png")
	if err != nil {
		return nil, err
	}
	defer removeTemp(imageFile)

	// A fully transparent mask marks the whole picture as editable, so the
	// input does not need its own alpha channel.
	b := params.InitImage.Bounds()
	maskFile, err := writeTempPNG(image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy())), "ghibli-mask-*.png")
	if err != nil {
		return nil, err
	}
	defer removeTemp(maskFile)

	req := openai.ImageEditRequest{
		Image:          imageFile,
		Mask:           maskFile,
		Prompt:         params.Prompt,
		Model:          p.model,
		N:              1,
		Size:           editSize(params.Width),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	response, err := p.client.CreateEditImage(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: OpenAI image edit: %v", sdruntime.ErrGenerationFailed, err)
	}
	if len(response.Data) == 0 || response.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: %w", sdruntime.ErrGenerationFailed, ErrEmptyResponse)
	}

	data, err := base64.StdEncoding.DecodeString(response.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", sdruntime.ErrGenerationFailed, ErrInvalidPayload, err)
	}
	return data, nil
}

// Backend returns "openai".
func (p *OpenAIProvider) Backend() string {
	return BackendName
}

// Model returns the configured image model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// editSize picks the closest square size the edit endpoint accepts.
func editSize(width int) string {
	switch {
	case width <= 256:
		return openai.CreateImageSize256x256
	case width <= 512:
		return openai.CreateImageSize512x512
	default:
		return openai.CreateImageSize1024x1024
	}
}

// writeTempPNG encodes img into a temporary file rewound for reading.
func writeTempPNG(img image.Image, pattern string) (*os.File, error) {
	data, err := vision.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("imagegen: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		removeTemp(f)
		return nil, fmt.Errorf("imagegen: write temp file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		removeTemp(f)
		return nil, fmt.Errorf("imagegen: rewind temp file: %w", err)
	}
	return f, nil
}

func removeTemp(f *os.File) {
	f.Close()
	os.Remove(f.Name())
}
