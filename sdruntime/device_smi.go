//go:build !cgo || !linux

package sdruntime

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// listGPUs shells out to nvidia-smi when NVML bindings are unavailable.
func listGPUs() ([]GPUInfo, error) {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path,
		"--query-gpu=index,name,memory.total,memory.free",
		"--format=csv,noheader,nounits")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("nvidia-smi failed: %w (stderr: %s)", err, stderr.String())
	}
	return parseNvidiaSMIOutput(stdout.String())
}
