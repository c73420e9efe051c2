package validation

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"ghibli_backend/core"
)

// MinFreeTempBytes is the free space below which the temp directory check
// warns. Multipart uploads spill to disk past 32 MB.
const MinFreeTempBytes int64 = 512 << 20

// StartupSuite returns the checks run before the server starts. The suite
// stops at the first failure.
func StartupSuite(cfg *core.Config) *Suite {
	s := NewSuite("Ghibli Backend Startup").
		WithFailFast(true).
		Add("Configuration", ConfigCheck(cfg)).
		Add("Listen Address", PortCheck(cfg.Addr())).
		Add("Temp Directory", TempDirCheck(os.TempDir())).
		Add("Temp Disk Space", DiskSpaceCheck(os.TempDir(), MinFreeTempBytes))
	if cfg.ImageBackend == core.BackendSDCPP {
		s.Add("Model Weights", ModelFileCheck(cfg.SDModelPath))
	}
	return s
}

// ConfigCheck re-validates cfg.
func ConfigCheck(cfg *core.Config) Check {
	return func() (StepStatus, string, error) {
		if err := cfg.Validate(); err != nil {
			return StepFailed, "", err
		}
		return StepPassed, fmt.Sprintf("backend %s, port %d", cfg.ImageBackend, cfg.Port), nil
	}
}

// PortCheck fails when addr cannot be bound.
func PortCheck(addr string) Check {
	return func() (StepStatus, string, error) {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return StepFailed, "", fmt.Errorf("cannot listen on %s: %w", addr, err)
		}
		ln.Close()
		return StepPassed, addr, nil
	}
}

// TempDirCheck fails when dir is not writable.
func TempDirCheck(dir string) Check {
	return func() (StepStatus, string, error) {
		f, err := os.CreateTemp(dir, "ghibli-check-*")
		if err != nil {
			return StepFailed, "", fmt.Errorf("temp directory %s is not writable: %w", dir, err)
		}
		name := f.Name()
		f.Close()
		os.Remove(name)
		return StepPassed, dir, nil
	}
}

// DiskSpaceCheck warns when dir has less than minFree bytes available.
func DiskSpaceCheck(dir string, minFree int64) Check {
	return func() (StepStatus, string, error) {
		_, free, err := DiskSpace(dir)
		if err != nil {
			return StepWarning, "could not determine free space", err
		}
		if free < minFree {
			return StepWarning, fmt.Sprintf("%s free", formatBytes(free)),
				fmt.Errorf("less than %s free in %s", formatBytes(minFree), dir)
		}
		return StepPassed, fmt.Sprintf("%s free", formatBytes(free)), nil
	}
}

// ModelFileCheck warns when the weights file is missing. The server still
// starts and answers stylization requests with 503.
func ModelFileCheck(path string) Check {
	return func() (StepStatus, string, error) {
		info, err := os.Stat(path)
		if err != nil {
			return StepWarning, "model will be unavailable", fmt.Errorf("model weights %s: %w", path, err)
		}
		if info.IsDir() {
			return StepWarning, "model will be unavailable", fmt.Errorf("model path %s is a directory", path)
		}
		return StepPassed, fmt.Sprintf("%s (%s)", filepath.Base(path), formatBytes(info.Size())), nil
	}
}

// DiskSpace returns total and free bytes of the filesystem holding path.
// A missing path is resolved to its nearest existing parent.
func DiskSpace(path string) (total, free int64, err error) {
	for {
		if _, statErr := os.Stat(path); statErr == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			return 0, 0, fmt.Errorf("no existing parent for %s", path)
		}
		path = parent
	}
	return getDiskSpace(path)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
