//go:build cgo && linux

package sdruntime

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// listGPUs queries NVML. Hosts without the NVIDIA driver fail at Init,
// which DetectDevice treats as "no GPU".
func listGPUs() ([]GPUInfo, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml init: %s", nvml.ErrorString(ret))
	}
	defer nvml.Shutdown()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml device count: %s", nvml.ErrorString(ret))
	}

	const mib = 1024 * 1024
	gpus := make([]GPUInfo, 0, count)
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			return nil, fmt.Errorf("nvml device %d: %s", i, nvml.ErrorString(ret))
		}
		name, ret := device.GetName()
		if ret != nvml.SUCCESS {
			return nil, fmt.Errorf("nvml device %d name: %s", i, nvml.ErrorString(ret))
		}
		mem, ret := device.GetMemoryInfo()
		if ret != nvml.SUCCESS {
			return nil, fmt.Errorf("nvml device %s memory: %s", name, nvml.ErrorString(ret))
		}
		gpus = append(gpus, GPUInfo{
			Index:         i,
			Name:          name,
			MemoryTotalMB: mem.Total / mib,
			MemoryFreeMB:  mem.Free / mib,
		})
	}
	return gpus, nil
}
