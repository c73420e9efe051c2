package sdruntime

import (
	"image"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// writeTestModel creates a small placeholder weights file.
func writeTestModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := os.WriteFile(path, []byte("not really weights"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

func validParams() Img2ImgParams {
	p := DefaultImg2ImgParams()
	p.Prompt = "ghibli style, a quiet harbour town"
	p.InitImage = image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	return p
}

var testContextCounter uint64

// useTestContexts makes LoadModel hand out contexts for any existing model
// file, standing in for the C library until the test ends.
func useTestContexts(t *testing.T) {
	t.Helper()
	prev := loadModel
	loadModel = func(modelPath string, _ LoadOptions) (*SDContext, error) {
		if err := checkModelFile(modelPath); err != nil {
			return nil, err
		}
		return &SDContext{id: atomic.AddUint64(&testContextCounter, 1), valid: true}, nil
	}
	t.Cleanup(func() { loadModel = prev })
}
