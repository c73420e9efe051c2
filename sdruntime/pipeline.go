package sdruntime

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BackendName identifies this package's generator to callers that can
// switch between backends.
const BackendName = "sdcpp"

// Pipeline defaults
const (
	DefaultMaxConcurrent  = 1
	DefaultTimeout        = 300 * time.Second
	DefaultAcquireTimeout = 120 * time.Second
)

// PipelineConfig configures NewPipeline.
type PipelineConfig struct {
	ModelPath      string
	Device         Device
	MaxConcurrent  int           // simultaneous generations (pool size)
	Threads        int           // CPU threads per context
	Timeout        time.Duration // one generation, excluding queueing
	AcquireTimeout time.Duration // waiting for a free context
	VerifyChecksum bool
}

// Pipeline is the loaded model handle. It is created once at startup and
// shared by all requests.
type Pipeline struct {
	cfg       PipelineConfig
	pool      *ContextPool
	closeOnce sync.Once
}

// NewPipeline verifies the model (optionally), creates the context pool and
// loads the first context so that a broken model fails here rather than on
// the first request.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.Device.Kind == "" {
		cfg.Device = Device{Kind: DeviceCPU}
	}

	if cfg.VerifyChecksum {
		if _, err := VerifyModelChecksum(cfg.ModelPath); err != nil {
			return nil, err
		}
	}

	pool, err := NewContextPool(cfg.MaxConcurrent, cfg.ModelPath, LoadOptions{
		Device:  cfg.Device,
		Threads: cfg.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context pool: %w", err)
	}

	p := &Pipeline{cfg: cfg, pool: pool}
	if err := p.Warmup(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Warmup loads one context and returns it to the pool.
func (p *Pipeline) Warmup(ctx context.Context) error {
	sc, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	p.pool.Release(sc)
	return nil
}

type generateOutcome struct {
	result *GenerateResult
	err    error
}

// Generate runs one img2img generation and returns PNG bytes.
//
// Waiting for a context is bounded by AcquireTimeout and the generation by
// Timeout. The C call cannot be interrupted: on timeout or cancellation the
// caller gets an error immediately while the generation finishes in the
// background and only then frees its pool slot.
func (p *Pipeline) Generate(ctx context.Context, params Img2ImgParams) ([]byte, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}
	if params.Seed < 0 {
		params.Seed = RandomSeed()
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	sc, err := p.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("acquire context: %w", err)
	}

	done := make(chan generateOutcome, 1)
	go func() {
		defer p.pool.Release(sc)
		res, err := Img2Img(sc, params)
		done <- generateOutcome{result: res, err: err}
	}()

	timer := time.NewTimer(p.cfg.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("generate image: %w", out.err)
		}
		if _, _, err := ValidateImageData(out.result.ImageData); err != nil {
			return nil, fmt.Errorf("%w: generated image validation failed: %v", ErrGenerationFailed, err)
		}
		return out.result.ImageData, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrGenerationTimeout, p.cfg.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Backend returns BackendName.
func (p *Pipeline) Backend() string {
	return BackendName
}

// Stats returns context pool occupancy.
func (p *Pipeline) Stats() PoolStats {
	return p.pool.Stats()
}

// Close frees the model contexts. Generations still running keep their
// context until they finish. Close is idempotent.
func (p *Pipeline) Close(_ context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		err = p.pool.Close()
	})
	return err
}
