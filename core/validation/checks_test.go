package validation

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"

	"ghibli_backend/core"
)

func TestStartupSuite_StopsAtInvalidConfig(t *testing.T) {
	color.NoColor = true
	cfg := core.DefaultConfig()
	cfg.Port = 0

	var buf bytes.Buffer
	result := StartupSuite(cfg).WithOutput(&buf).Run()

	if result.Success || result.Failed != 1 {
		t.Fatalf("result = %+v, want one failure", result)
	}
	if result.Steps[0].Name != "Configuration" || result.Steps[0].Status != StepFailed {
		t.Errorf("first step = %+v", result.Steps[0])
	}
	for _, step := range result.Steps[1:] {
		if step.Status != StepSkipped {
			t.Errorf("step %s = %v, want skipped", step.Name, step.Status)
		}
	}
}

func TestConfigCheck(t *testing.T) {
	cfg := core.DefaultConfig()
	if status, _, err := ConfigCheck(cfg)(); status != StepPassed || err != nil {
		t.Errorf("default config: %v %v", status, err)
	}

	cfg.Port = 0
	if status, _, err := ConfigCheck(cfg)(); status != StepFailed || err == nil {
		t.Errorf("invalid port: %v %v", status, err)
	}
}

func TestPortCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	if status, _, _ := PortCheck(ln.Addr().String())(); status != StepFailed {
		t.Errorf("busy port status = %v, want failed", status)
	}
	if status, _, err := PortCheck("127.0.0.1:0")(); status != StepPassed {
		t.Errorf("free port status = %v (%v)", status, err)
	}
}

func TestTempDirCheck(t *testing.T) {
	dir := t.TempDir()
	if status, _, err := TempDirCheck(dir)(); status != StepPassed {
		t.Fatalf("status = %v (%v)", status, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("check left %d files behind", len(entries))
	}

	if status, _, _ := TempDirCheck(filepath.Join(dir, "missing"))(); status != StepFailed {
		t.Errorf("missing dir status = %v, want failed", status)
	}
}

func TestModelFileCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.safetensors")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want StepStatus
	}{
		{"present", path, StepPassed},
		{"missing", filepath.Join(dir, "nope.safetensors"), StepWarning},
		{"directory", dir, StepWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, _, _ := ModelFileCheck(tt.path)(); status != tt.want {
				t.Errorf("status = %v, want %v", status, tt.want)
			}
		})
	}
}

func TestDiskSpace(t *testing.T) {
	dir := t.TempDir()
	total, free, err := DiskSpace(filepath.Join(dir, "not", "yet", "created"))
	if err != nil {
		t.Fatalf("DiskSpace() error = %v", err)
	}
	if total <= 0 || free < 0 || free > total {
		t.Errorf("total=%d free=%d", total, free)
	}

	if status, _, _ := DiskSpaceCheck(dir, 1<<62)(); status != StepWarning {
		t.Errorf("huge requirement status = %v, want warning", status)
	}
	if status, _, _ := DiskSpaceCheck(dir, 0)(); status != StepPassed {
		t.Errorf("zero requirement status = %v, want passed", status)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		512:     "512 B",
		1024:    "1.00 KB",
		1536:    "1.50 KB",
		1 << 20: "1.00 MB",
		3 << 30: "3.00 GB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
