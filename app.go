package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"ghibli_backend/core"
	"ghibli_backend/imagegen"
	"ghibli_backend/logging"
	"ghibli_backend/metrics"
	"ghibli_backend/sdruntime"
	"ghibli_backend/server"
	"ghibli_backend/shutdown"
	"ghibli_backend/stall"
	"ghibli_backend/stylize"
	"ghibli_backend/webui"
)

// pipelineLoader builds the model handle. It never fails: a model that does
// not load comes back as an unavailable pipeline.
type pipelineLoader func(cfg *core.Config, logger *logging.Logger) (stylize.Pipeline, server.DeviceInfo)

// app holds the components built once at startup.
type app struct {
	logger   *logging.Logger
	manager  *shutdown.Manager
	pipeline stylize.Pipeline
	device   server.DeviceInfo
	service  *stylize.Service
	metrics  *metrics.Metrics
	server   *server.Server
}

func newApp(cfg *core.Config, logger *logging.Logger, manager *shutdown.Manager, load pipelineLoader) (*app, error) {
	pipeline, device := load(cfg, logger)

	m, err := metrics.New(nil)
	if err != nil {
		if c, ok := pipeline.(interface{ Close(context.Context) error }); ok {
			_ = c.Close(context.Background())
		}
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	if sp, ok := pipeline.(*sdruntime.Pipeline); ok {
		err := m.RegisterPoolGauges(func() (int64, int64) {
			st := sp.Stats()
			return int64(st.InUse), int64(st.MaxSize)
		})
		if err != nil {
			logger.Warn("Pool gauges unavailable", zap.Error(err))
		}
	}

	svc := stylize.NewService(stylize.Config{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Steps:          cfg.SDSteps,
	}, pipeline, stall.NewSlot(), logger.Named("stylize"))
	svc.SetRecorder(m)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = cfg.Addr()
	opts := []server.Option{
		server.WithMetrics(m),
		server.WithTracker(manager.Tracker()),
		server.WithDeviceInfo(device),
	}
	if cfg.UIEnabled {
		ui := webui.NewAssetHandler(webui.DefaultAssetConfig())
		opts = append(opts, server.WithUI(ui.Prefix(), ui))
	}
	srv := server.New(srvCfg, svc, logger, opts...)

	a := &app{
		logger:   logger,
		manager:  manager,
		pipeline: pipeline,
		device:   device,
		service:  svc,
		metrics:  m,
		server:   srv,
	}
	a.registerShutdown()
	return a, nil
}

func (a *app) registerShutdown() {
	a.manager.Register("http-server", shutdown.PriorityHTTPServer, a.server.Shutdown)
	if c, ok := a.pipeline.(interface{ Close(context.Context) error }); ok {
		a.manager.Register("pipeline", shutdown.PriorityPipeline, c.Close)
	}
	a.manager.Register("metrics", shutdown.PriorityMetrics, a.metrics.Shutdown)
	a.manager.Register("temp-files", shutdown.PriorityTempFiles,
		shutdown.CleanupTempFiles(a.logger, os.TempDir(), shutdown.TempFilePattern))
	a.manager.Register("logger", shutdown.PriorityLogger, func(context.Context) error {
		if err := a.logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
		}
		return nil
	})
	a.logger.Debug("Shutdown handlers registered", zap.Strings("handlers", a.manager.RegisteredHandlers()))
}

// abort releases everything newApp acquired when the server never started.
func (a *app) abort() {
	if err := a.manager.Shutdown(); err != nil {
		a.logger.Error("Cleanup after failed start finished with errors", zap.Error(err))
	}
}

// serve blocks until shutdown begins or the listener fails, then runs the
// ordered shutdown and returns the process exit code.
func (a *app) serve(ln net.Listener) int {
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(ln) }()

	exitCode := core.ExitCodeSuccess
	select {
	case <-a.manager.Context().Done():
	case err := <-errCh:
		if err != nil {
			a.logger.Error("HTTP server failed", zap.Error(err))
			exitCode = core.ExitCodeError
		}
	}

	if err := a.manager.Shutdown(); err != nil {
		a.logger.Error("Shutdown finished with errors", zap.Error(err))
		if exitCode == core.ExitCodeSuccess {
			exitCode = core.ExitCodeError
		}
	}
	if exitCode == core.ExitCodeSuccess {
		exitCode = a.manager.ExitCode()
	}
	a.logger.Info("Goodbye!", zap.String("exit", core.ExitCodeName(exitCode)))
	return exitCode
}

// loadPipeline creates the configured backend once.
func loadPipeline(cfg *core.Config, logger *logging.Logger) (stylize.Pipeline, server.DeviceInfo) {
	if cfg.ImageBackend == core.BackendOpenAI {
		device := server.DeviceInfo{Device: "remote"}
		p, err := imagegen.NewOpenAIProviderFromConfig(cfg)
		if err != nil {
			logger.Error("OpenAI image backend unavailable", zap.Error(err))
			return &stylize.UnavailablePipeline{Cause: err}, device
		}
		logger.Info("Using OpenAI image backend", zap.String("model", p.Model()))
		return p, device
	}

	dev, err := sdruntime.DetectDevice(cfg.SDDevice)
	if err != nil {
		logger.Error("No usable compute device", zap.String("preference", cfg.SDDevice), zap.Error(err))
		return &stylize.UnavailablePipeline{Cause: err}, server.DeviceInfo{}
	}
	device := server.DeviceInfo{Device: dev.String(), Precision: dev.Precision()}

	logger.Info("Loading model",
		zap.String("path", cfg.SDModelPath),
		zap.String("device", dev.String()),
		zap.String("precision", dev.Precision()),
		zap.String("runtime", sdruntime.GetBackendInfo()),
	)
	start := time.Now()
	p, err := sdruntime.NewPipeline(sdruntime.PipelineConfig{
		ModelPath:      cfg.SDModelPath,
		Device:         dev,
		MaxConcurrent:  cfg.SDMaxConcurrent,
		Timeout:        cfg.SDTimeout,
		AcquireTimeout: cfg.SDAcquireTimeout,
		VerifyChecksum: cfg.SDVerifyChecksum,
	})
	if err != nil {
		logger.Error("Model failed to load; stylization requests will fail until restart",
			zap.String("path", cfg.SDModelPath), zap.Error(err))
		return &stylize.UnavailablePipeline{Cause: err}, device
	}
	logger.Info("Model loaded", zap.Duration("took", time.Since(start)))
	return p, device
}
