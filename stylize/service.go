// Package stylize turns uploaded photos into Ghibli-style 512x512 PNGs.
//
// The Service owns the request-level flow: read the upload, prepare the
// image, run the injected Pipeline with fixed style settings, normalize
// the output and optionally publish it to the stall slot.
package stylize

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"go.uber.org/zap"

	"ghibli_backend/logging"
	"ghibli_backend/sdruntime"
	"ghibli_backend/stall"
	"ghibli_backend/vision"
)

// Fixed style settings. These are part of the service contract and are not
// configurable at runtime.
const (
	Prompt = "ghibli style, a beautiful young character with expressive eyes, " +
		"standing in a lush summer meadow, traditional hand-painted background, " +
		"soft watercolor textures, rolling green hills, quaint wooden houses, " +
		"fluffy white cumulus clouds, gentle sunlight, warm haze, whimsical atmosphere, " +
		"clean line art, high detail, masterpiece, by Hayao Miyazaki."

	NegativePrompt = "photorealistic, 3D render, CGI, digital painting, oil painting, " +
		"heavy outlines, blurry, soft, bad anatomy, extra limbs, distorted face, " +
		"messy lines, grainy, dark, moody, sharp shadows, high contrast, oversaturated."

	Strength      = 0.65
	GuidanceScale = 9.0
	ImageSize     = vision.TargetSize
)

// DefaultMaxUploadBytes bounds an upload when Config leaves it unset.
const DefaultMaxUploadBytes = 20 << 20

// Config tunes the Service.
type Config struct {
	MaxUploadBytes int64
	Steps          int
}

// Recorder receives one observation per stylization attempt.
type Recorder interface {
	RecordStylize(ctx context.Context, m logging.StylizeMetrics)
}

// Options are per-request switches.
type Options struct {
	// Stall publishes the result to the stall slot.
	Stall     bool
	RequestID string
}

// Result is a successful stylization.
type Result struct {
	PNG     []byte
	Backend string
	// StallEntry is set when the result was published to the slot.
	StallEntry *stall.Entry
}

// Service runs stylizations against a shared Pipeline.
type Service struct {
	cfg      Config
	pipeline Pipeline
	slot     *stall.Slot
	logger   *logging.Logger
	recorder Recorder
}

// NewService wires a Service. A nil pipeline is treated as a model that
// never loaded; a nil logger discards output.
func NewService(cfg Config, pipeline Pipeline, slot *stall.Slot, logger *logging.Logger) *Service {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Steps <= 0 {
		cfg.Steps = sdruntime.DefaultSteps
	}
	if pipeline == nil {
		pipeline = &UnavailablePipeline{}
	}
	if slot == nil {
		slot = stall.NewSlot()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{cfg: cfg, pipeline: pipeline, slot: slot, logger: logger}
}

// SetRecorder attaches a metrics recorder.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Slot returns the stall slot results are published to.
func (s *Service) Slot() *stall.Slot {
	return s.slot
}

// Backend names the active pipeline.
func (s *Service) Backend() string {
	return s.pipeline.Backend()
}

// ModelLoaded reports whether stylizations can succeed.
func (s *Service) ModelLoaded() bool {
	return IsAvailable(s.pipeline)
}

// MaxUploadBytes is the largest accepted upload.
func (s *Service) MaxUploadBytes() int64 {
	return s.cfg.MaxUploadBytes
}

// Stylize reads upload, runs it through the pipeline and returns the
// stylized PNG. Every returned error is an *Error.
func (s *Service) Stylize(ctx context.Context, upload io.Reader, opts Options) (*Result, error) {
	start := time.Now()
	m := logging.StylizeMetrics{
		RequestID: opts.RequestID,
		Backend:   s.pipeline.Backend(),
		Stall:     opts.Stall,
	}

	res, err := s.run(ctx, upload, opts, &m)
	m.Duration = time.Since(start)
	if err != nil {
		m.ErrorKind = string(err.Kind)
	}
	s.observe(ctx, m, err)

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, upload io.Reader, opts Options, m *logging.StylizeMetrics) (*Result, *Error) {
	if upload == nil {
		return nil, NewError(KindBadRequest, ErrMissingFile)
	}

	data, err := readLimited(upload, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	m.InputBytes = len(data)

	prepStart := time.Now()
	prepared, prepErr := vision.PrepareImage(data, ImageSize)
	if prepErr != nil {
		return nil, invalidImage(prepErr)
	}
	m.InputWidth, m.InputHeight = prepared.Source.X, prepared.Source.Y
	m.Prepare = time.Since(prepStart)

	out, genErr := s.pipeline.Generate(ctx, s.params(prepared.Image))
	if genErr != nil {
		return nil, classify(genErr)
	}

	out, normErr := vision.NormalizePNG(out, ImageSize)
	if normErr != nil {
		return nil, NewError(KindInternal, fmt.Errorf("invalid pipeline output: %w", normErr))
	}
	m.OutputBytes = len(out)

	res := &Result{PNG: out, Backend: s.pipeline.Backend()}
	if opts.Stall {
		entry, putErr := s.slot.Put(out)
		if putErr != nil {
			return nil, NewError(KindInternal, putErr)
		}
		res.StallEntry = &entry
	}
	return res, nil
}

func (s *Service) params(init *image.RGBA) sdruntime.Img2ImgParams {
	p := sdruntime.DefaultImg2ImgParams()
	p.Prompt = Prompt
	p.NegativePrompt = NegativePrompt
	p.InitImage = init
	p.Width = ImageSize
	p.Height = ImageSize
	p.Steps = s.cfg.Steps
	p.CFGScale = GuidanceScale
	p.Strength = Strength
	return p
}

func (s *Service) observe(ctx context.Context, m logging.StylizeMetrics, err *Error) {
	if s.recorder != nil {
		s.recorder.RecordStylize(ctx, m)
	}

	switch {
	case err == nil:
		s.logger.Info("stylization complete", logging.StylizeFields(m))
	case err.Kind == KindInternal || err.Kind == KindModelUnavailable:
		s.logger.Error("stylization failed", logging.StylizeFields(m), zap.Error(err))
	default:
		s.logger.Warn("stylization rejected", logging.StylizeFields(m), zap.Error(err))
	}
}

// readLimited reads at most limit bytes from r and fails if more remain.
func readLimited(r io.Reader, limit int64) ([]byte, *Error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, NewError(KindBadRequest, fmt.Errorf("read upload: %w", err))
	}
	if int64(len(data)) > limit {
		return nil, NewError(KindTooLarge, fmt.Errorf("%w (%d MB)", ErrUploadTooLarge, limit>>20))
	}
	return data, nil
}
