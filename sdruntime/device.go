package sdruntime

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// DeviceKind names a compute backend.
type DeviceKind string

const (
	DeviceCPU  DeviceKind = "cpu"
	DeviceCUDA DeviceKind = "cuda"
)

// GPUInfo describes one visible NVIDIA GPU.
type GPUInfo struct {
	Index         int
	Name          string
	MemoryTotalMB uint64
	MemoryFreeMB  uint64
}

// Device is the compute target chosen at startup.
type Device struct {
	Kind DeviceKind
	GPU  *GPUInfo // nil on CPU
}

// Precision returns the weight type used on this device: f16 on an
// accelerator, f32 on CPU.
func (d Device) Precision() string {
	if d.Kind == DeviceCUDA {
		return "f16"
	}
	return "f32"
}

func (d Device) String() string {
	if d.GPU != nil {
		return fmt.Sprintf("%s:%d (%s)", d.Kind, d.GPU.Index, d.GPU.Name)
	}
	return string(d.Kind)
}

// lookupGPUs lists visible GPUs. Tests replace it.
var lookupGPUs = listGPUs

// DetectDevice resolves a preference of "auto", "cuda" or "cpu".
//
// "auto" selects the first GPU when one is visible and CPU otherwise; a
// failing GPU lookup counts as no GPU. "cuda" fails with ErrCUDANotAvailable when
// no GPU is visible.
func DetectDevice(preference string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(preference)) {
	case "cpu":
		return Device{Kind: DeviceCPU}, nil
	case "", "auto":
		gpus, err := lookupGPUs()
		if err != nil || len(gpus) == 0 {
			return Device{Kind: DeviceCPU}, nil
		}
		return Device{Kind: DeviceCUDA, GPU: &gpus[0]}, nil
	case "cuda":
		gpus, err := lookupGPUs()
		if err != nil {
			return Device{}, fmt.Errorf("%w: %v", ErrCUDANotAvailable, err)
		}
		if len(gpus) == 0 {
			return Device{}, fmt.Errorf("%w: no NVIDIA GPU found", ErrCUDANotAvailable)
		}
		return Device{Kind: DeviceCUDA, GPU: &gpus[0]}, nil
	default:
		return Device{}, fmt.Errorf("%w: unknown device %q", ErrInvalidParams, preference)
	}
}

// parseNvidiaSMIOutput parses
// "index, name, memory.total, memory.free" CSV rows (noheader, nounits).
func parseNvidiaSMIOutput(output string) ([]GPUInfo, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(output))
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	gpus := make([]GPUInfo, 0, len(records))
	for _, record := range records {
		if len(record) < 4 {
			return nil, fmt.Errorf("unexpected field count: got %d, expected 4", len(record))
		}
		index, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("failed to parse index: %w", err)
		}
		total, err := strconv.ParseUint(strings.TrimSpace(record[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse memory total: %w", err)
		}
		free, err := strconv.ParseUint(strings.TrimSpace(record[3]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse memory free: %w", err)
		}
		gpus = append(gpus, GPUInfo{
			Index:         index,
			Name:          strings.TrimSpace(record[1]),
			MemoryTotalMB: total,
			MemoryFreeMB:  free,
		})
	}
	return gpus, nil
}
