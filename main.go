package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/kardianos/service"
	"go.uber.org/zap"

	"ghibli_backend/core"
	"ghibli_backend/core/validation"
	"ghibli_backend/logging"
	"ghibli_backend/shutdown"
)

func main() {
	serviceCmd := flag.String("service", "", "manage the OS service: install, uninstall, start, stop, restart, status, run")
	skipChecks := flag.Bool("skip-checks", false, "skip startup checks")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(core.VersionInfo())
		return
	}

	if *serviceCmd != "" {
		os.Exit(handleServiceCommand(*serviceCmd, os.Stdout))
	}
	if !service.Interactive() {
		os.Exit(runAsService())
	}
	os.Exit(runForeground(*skipChecks))
}

// runForeground runs the server until SIGINT or SIGTERM.
func runForeground(skipChecks bool) int {
	cfg, logger, code := bootstrap()
	if code != core.ExitCodeSuccess {
		return code
	}

	manager := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
	manager.Start()
	return start(cfg, logger, manager, startOptions{checks: !skipChecks, banner: os.Stdout})
}

// bootstrap loads .env, the configuration and the logger.
func bootstrap() (*core.Config, *logging.Logger, int) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		if code := core.GetErrorCode(err); code != "" {
			fmt.Fprintf(os.Stderr, "Configuration error [%s]: %v\n", code, err)
		} else {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		}
		return nil, nil, core.ExitCodeConfig
	}

	logger, err := logging.NewLogger(logging.Options{
		Development: cfg.DevMode,
		Level:       cfg.LogLevel,
		FilePath:    cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, nil, core.ExitCodeError
	}
	return cfg, logger, core.ExitCodeSuccess
}

type startOptions struct {
	checks bool
	// banner receives the startup banner and check progress; nil is silent.
	banner io.Writer
	// load builds the model handle; nil uses loadPipeline.
	load pipelineLoader
}

// start runs the startup checks, builds the app and serves until the
// manager's context is cancelled.
func start(cfg *core.Config, logger *logging.Logger, manager *shutdown.Manager, opts startOptions) int {
	if opts.checks {
		suite := validation.StartupSuite(cfg).WithShowProgress(opts.banner != nil)
		if opts.banner != nil {
			suite.WithOutput(opts.banner)
		}
		result := suite.Run()
		if !result.Success {
			logger.Error("Startup checks failed", zap.String("summary", result.Summary()), zap.Error(result.FirstError()))
			return core.ExitCodeConfig
		}
		logger.Info(result.Summary())
	}

	logConfig(logger, cfg)

	load := opts.load
	if load == nil {
		load = loadPipeline
	}
	a, err := newApp(cfg, logger, manager, load)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		_ = logger.Sync()
		return core.ExitCodeError
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		logger.Error("Failed to listen", zap.String("addr", cfg.Addr()), zap.Error(err))
		a.abort()
		return core.ExitCodeError
	}

	if opts.banner != nil {
		printBanner(opts.banner, cfg, a)
	}
	return a.serve(ln)
}

func logConfig(logger *logging.Logger, cfg *core.Config) {
	logger.Info("Configuration loaded",
		zap.String("version", core.VersionInfo()),
		zap.String("addr", cfg.Addr()),
		zap.String("backend", cfg.ImageBackend),
		zap.Int("max_upload_mb", cfg.MaxUploadMB),
		zap.String("sd_model_path", cfg.SDModelPath),
		zap.String("sd_device", cfg.SDDevice),
		zap.Int("sd_max_concurrent", cfg.SDMaxConcurrent),
		zap.Int("sd_steps", cfg.SDSteps),
		zap.Duration("sd_timeout", cfg.SDTimeout),
		zap.Duration("sd_acquire_timeout", cfg.SDAcquireTimeout),
		zap.String("openai_image_model", cfg.OpenAIImageModel),
		zap.Bool("openai_key_set", cfg.OpenAIAPIKey != ""),
		zap.Bool("dev_mode", cfg.DevMode),
	)
}

func printBanner(w io.Writer, cfg *core.Config, a *app) {
	title := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintln(w)
	title.Fprint(w, "  Ghibli Stylization Backend ")
	dim.Fprintln(w, core.Version)
	dim.Fprintf(w, "  listening on http://%s\n", cfg.Addr())
	dim.Fprintf(w, "  backend %s", a.service.Backend())
	if a.device.Device != "" {
		dim.Fprintf(w, " on %s", a.device.Device)
	}
	fmt.Fprintln(w)
	if cfg.UIEnabled {
		dim.Fprintf(w, "  browser client at http://%s/ui/ (?view=controller, ?view=display)\n", cfg.Addr())
	}
	if path := a.logger.LogFilePath(); path != "" {
		dim.Fprintf(w, "  logging to %s\n", path)
	}

	if a.service.ModelLoaded() {
		color.New(color.FgGreen).Fprintln(w, "  model loaded")
	} else {
		color.New(color.FgYellow).Fprintln(w, "  model NOT loaded: stylization requests will return 503")
	}
	fmt.Fprintln(w)
}
