//go:build sd && cgo && !stub

package sdruntime

/*
#cgo LDFLAGS: -lstable-diffusion

#include <stdlib.h>
#include <stdint.h>
#include <stdbool.h>
#include "stable-diffusion.h"
*/
import "C"

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"
)

var sdContextCounter uint64

// contexts maps SDContext.id to the C handle.
var (
	contextsMu sync.Mutex
	contexts   = make(map[uint64]*C.sd_ctx_t)
)

func loadModelImpl(modelPath string, opts LoadOptions) (*SDContext, error) {
	if err := checkModelFile(modelPath); err != nil {
		return nil, err
	}

	cModelPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cModelPath))

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	var params C.sd_ctx_params_t
	C.sd_ctx_params_init(&params)
	params.model_path = cModelPath
	params.n_threads = C.int(threads)
	// img2img needs the VAE encoder, which is skipped in decode-only mode.
	params.vae_decode_only = C.bool(false)
	params.free_params_immediately = C.bool(false)
	if opts.Device.Precision() == "f16" {
		params.wtype = C.SD_TYPE_F16
	} else {
		params.wtype = C.SD_TYPE_F32
	}

	cCtx := C.new_sd_ctx(&params)
	if cCtx == nil {
		return nil, fmt.Errorf("%w: new_sd_ctx returned null for %s", ErrModelLoadFailed, modelPath)
	}

	id := atomic.AddUint64(&sdContextCounter, 1)
	contextsMu.Lock()
	contexts[id] = cCtx
	contextsMu.Unlock()

	return &SDContext{id: id, valid: true}, nil
}

func img2imgImpl(ctx *SDContext, p Img2ImgParams) (*GenerateResult, error) {
	if !ctx.IsValid() {
		return nil, fmt.Errorf("%w: context is nil or invalid", ErrGenerationFailed)
	}

	contextsMu.Lock()
	cCtx := contexts[ctx.id]
	contextsMu.Unlock()
	if cCtx == nil {
		return nil, fmt.Errorf("%w: no C context for handle %d", ErrGenerationFailed, ctx.id)
	}

	seed := p.Seed
	if seed < 0 {
		seed = RandomSeed()
	}

	cPrompt := C.CString(p.Prompt)
	defer C.free(unsafe.Pointer(cPrompt))
	cNegPrompt := C.CString(p.NegativePrompt)
	defer C.free(unsafe.Pointer(cNegPrompt))

	// The init image must live in C memory for the duration of the call.
	rgb := RGBPixels(p.InitImage)
	cPixels := C.CBytes(rgb)
	defer C.free(cPixels)

	var gen C.sd_img_gen_params_t
	C.sd_img_gen_params_init(&gen)
	gen.prompt = cPrompt
	gen.negative_prompt = cNegPrompt
	gen.init_image = C.sd_image_t{
		width:   C.uint32_t(p.Width),
		height:  C.uint32_t(p.Height),
		channel: 3,
		data:    (*C.uint8_t)(cPixels),
	}
	gen.width = C.int(p.Width)
	gen.height = C.int(p.Height)
	gen.strength = C.float(p.Strength)
	gen.seed = C.int64_t(seed)
	gen.batch_count = 1
	gen.sample_params.sample_steps = C.int(p.Steps)
	gen.sample_params.guidance.txt_cfg = C.float(p.CFGScale)

	out := C.generate_image(cCtx, &gen)
	if out == nil || out.data == nil {
		return nil, fmt.Errorf("%w: generate_image returned no image", ErrGenerationFailed)
	}
	defer func() {
		C.free(unsafe.Pointer(out.data))
		C.free(unsafe.Pointer(out))
	}()

	w, h, ch := int(out.width), int(out.height), int(out.channel)
	pixels := C.GoBytes(unsafe.Pointer(out.data), C.int(w*h*ch))

	pngData, err := EncodeToPNG(pixels, w, h, ch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	return &GenerateResult{ImageData: pngData, Width: w, Height: h, Seed: seed}, nil
}

func freeContextImpl(ctx *SDContext) {
	if ctx == nil {
		return
	}
	contextsMu.Lock()
	cCtx, ok := contexts[ctx.id]
	delete(contexts, ctx.id)
	contextsMu.Unlock()

	if ok && cCtx != nil {
		C.free_sd_ctx(cCtx)
	}
	ctx.valid = false
}

func getBackendInfoImpl() string {
	info := C.GoString(C.sd_get_system_info())
	return "stable-diffusion.cpp " + strings.TrimSpace(info)
}
