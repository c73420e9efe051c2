package stylize

import (
	"context"
	"fmt"

	"ghibli_backend/sdruntime"
)

// Pipeline turns a prepared image into a stylized PNG. Implementations
// must be safe for concurrent use and bound their own concurrency.
type Pipeline interface {
	Generate(ctx context.Context, params sdruntime.Img2ImgParams) ([]byte, error)
	Backend() string
}

// UnavailablePipeline stands in for a model that failed to load. Every
// generation fails with ErrModelUnavailable.
type UnavailablePipeline struct {
	Cause error
}

// Generate always fails.
func (p *UnavailablePipeline) Generate(context.Context, sdruntime.Img2ImgParams) ([]byte, error) {
	if p.Cause == nil {
		return nil, ErrModelUnavailable
	}
	return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, p.Cause)
}

// Backend returns "unavailable".
func (p *UnavailablePipeline) Backend() string {
	return "unavailable"
}

// IsAvailable reports whether p can serve generations.
func IsAvailable(p Pipeline) bool {
	if p == nil {
		return false
	}
	_, unavailable := p.(*UnavailablePipeline)
	return !unavailable
}
