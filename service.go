package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"

	"ghibli_backend/core"
	"ghibli_backend/logging"
	"ghibli_backend/shutdown"
)

const serviceStopTimeout = 60 * time.Second

// program adapts the server to the OS service manager.
type program struct {
	manager  *shutdown.Manager
	done     chan int
	stopping atomic.Bool
	// exit ends the process; nil uses os.Exit.
	exit func(int)
}

func (p *program) Start(s service.Service) error {
	cfg, logger, code := bootstrap()
	if code != core.ExitCodeSuccess {
		return fmt.Errorf("startup failed: %s", core.ExitCodeName(code))
	}

	p.manager = shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
	p.done = make(chan int, 1)
	go p.supervise(logger, func() int {
		return start(cfg, logger, p.manager, startOptions{checks: true})
	})
	return nil
}

// supervise runs the server and exits the process with its code when it
// stops without the service manager asking, so the manager sees the
// failure instead of a running service with no listener.
func (p *program) supervise(logger *logging.Logger, run func() int) {
	code := run()
	p.done <- code
	if code == core.ExitCodeSuccess || p.stopping.Load() {
		return
	}

	logger.Error("Server stopped unexpectedly, exiting", zap.String("exit", core.ExitCodeName(code)))
	_ = logger.Sync()
	exit := p.exit
	if exit == nil {
		exit = os.Exit
	}
	exit(code)
}

func (p *program) Stop(s service.Service) error {
	if p.manager == nil {
		return nil
	}
	p.stopping.Store(true)
	p.manager.Trigger()

	select {
	case <-p.done:
		return nil
	case <-time.After(serviceStopTimeout):
		return errors.New("timeout waiting for service to stop")
	}
}

func serviceConfig() *service.Config {
	cfg := &service.Config{
		Name:        "GhibliBackend",
		DisplayName: "Ghibli Stylization Backend",
		Description: "Turns uploaded photos into Ghibli-style images over HTTP",
		Arguments:   []string{"-service", "run"},
	}
	if exe, err := os.Executable(); err == nil {
		cfg.WorkingDirectory = filepath.Dir(exe)
	}
	return cfg
}

// runAsService hands control to the OS service manager.
func runAsService() int {
	s, err := service.New(&program{}, serviceConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create service: %v\n", err)
		return core.ExitCodeError
	}
	if err := s.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: service run failed: %v\n", err)
		return core.ExitCodeError
	}
	return core.ExitCodeSuccess
}

// handleServiceCommand runs one -service subcommand and returns the exit code.
func handleServiceCommand(cmd string, out io.Writer) int {
	switch cmd {
	case "help":
		printServiceUsage(out)
		return core.ExitCodeSuccess
	case "run":
		return runAsService()
	case "remove":
		cmd = "uninstall"
	case "install", "uninstall", "start", "stop", "restart", "status":
	default:
		fmt.Fprintf(out, "Unknown service command %q\n\n", cmd)
		printServiceUsage(out)
		return core.ExitCodeConfig
	}

	s, err := service.New(&program{}, serviceConfig())
	if err != nil {
		fmt.Fprintf(out, "Error: failed to create service: %v\n", err)
		return core.ExitCodeError
	}

	if cmd == "status" {
		status, err := s.Status()
		if err != nil {
			fmt.Fprintf(out, "Error: failed to get service status: %v\n", err)
			return core.ExitCodeError
		}
		fmt.Fprintf(out, "Service is %s\n", statusName(status))
		return core.ExitCodeSuccess
	}

	if err := service.Control(s, cmd); err != nil {
		fmt.Fprintf(out, "Error: %s failed: %v\n", cmd, err)
		return core.ExitCodeError
	}
	fmt.Fprintf(out, "Service %s succeeded\n", cmd)
	return core.ExitCodeSuccess
}

func statusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "in an unknown state"
	}
}

func printServiceUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: ghibli_backend -service <command>")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  install    Install as an OS service")
	fmt.Fprintln(out, "  uninstall  Remove the service (alias: remove)")
	fmt.Fprintln(out, "  start      Start the service")
	fmt.Fprintln(out, "  stop       Stop the service")
	fmt.Fprintln(out, "  restart    Restart the service")
	fmt.Fprintln(out, "  status     Show the service status")
	fmt.Fprintln(out, "  run        Run under the service manager")
	fmt.Fprintln(out, "  help       Show this help message")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Run without -service to start in the foreground.")
}
