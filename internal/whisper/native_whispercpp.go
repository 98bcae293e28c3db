//go:build whispercpp

package whisper

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/whisper.cpp/build/src -L${SRCDIR}/../../third_party/whisper.cpp/build/ggml/src -Wl,-rpath,${SRCDIR}/../../third_party/whisper.cpp/build/src -Wl,-rpath,${SRCDIR}/../../third_party/whisper.cpp/build/ggml/src -lwhisper -lggml -lggml-base -lstdc++ -lm
#cgo darwin LDFLAGS: -framework Accelerate -framework Foundation -framework Metal -framework MetalKit

#include <stdlib.h>
#include "whisper.h"

void whisperGoProgress(struct whisper_context * ctx, struct whisper_state * state, int progress, void * user_data);
void whisperGoNewSegment(struct whisper_context * ctx, struct whisper_state * state, int n_new, void * user_data);
*/
import "C"

import (
	"runtime"
	"runtime/cgo"
	"unsafe"
)

func NativeAvailable() bool { return true }

type cgoContext struct {
	ctx *C.struct_whisper_context
}

func loadNative(modelPath string, p contextParams) (nativeContext, error) {
	cPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cPath))

	cParams := C.whisper_context_default_params()
	cParams.use_gpu = C.bool(p.useGPU)
	cParams.flash_attn = C.bool(p.flashAttn)
	cParams.gpu_device = C.int(p.gpuDevice)

	ctx := C.whisper_init_from_file_with_params(cPath, cParams)
	if ctx == nil {
		return nil, errNativeInit
	}
	return &cgoContext{ctx: ctx}, nil
}

func (c *cgoContext) free() {
	if c.ctx == nil {
		return
	}
	C.whisper_free(c.ctx)
	c.ctx = nil
}

func (c *cgoContext) segmentCount() int {
	return int(C.whisper_full_n_segments(c.ctx))
}

func (c *cgoContext) segment(i int) rawSegment {
	ci := C.int(i)
	return rawSegment{
		t0:   int64(C.whisper_full_get_segment_t0(c.ctx, ci)),
		t1:   int64(C.whisper_full_get_segment_t1(c.ctx, ci)),
		text: C.GoString(C.whisper_full_get_segment_text(c.ctx, ci)),
	}
}

func (c *cgoContext) full(p fullParams, samples []float32, box *callbackBox) int {
	params := C.whisper_full_default_params(C.WHISPER_SAMPLING_GREEDY)
	params.print_progress = C.bool(false)
	params.print_realtime = C.bool(false)
	params.print_timestamps = C.bool(false)
	params.print_special = C.bool(false)
	params.translate = C.bool(p.translate)
	params.n_threads = C.int(p.threads)

	// The engine reads the language string throughout whisper_full; it is freed only
	// after the call returns.
	if p.language != "" {
		cLang := C.CString(p.language)
		defer C.free(unsafe.Pointer(cLang))
		params.language = cLang
	}

	if box != nil {
		handle := cgo.NewHandle(box)
		defer handle.Delete()

		params.progress_callback = C.whisper_progress_callback(C.whisperGoProgress)
		params.progress_callback_user_data = unsafe.Pointer(&handle)
		params.new_segment_callback = C.whisper_new_segment_callback(C.whisperGoNewSegment)
		params.new_segment_callback_user_data = unsafe.Pointer(&handle)
	}

	ret := C.whisper_full(c.ctx, params, (*C.float)(unsafe.Pointer(&samples[0])), C.int(len(samples)))
	runtime.KeepAlive(samples)
	return int(ret)
}

//export whisperGoProgress
func whisperGoProgress(_ *C.struct_whisper_context, _ *C.struct_whisper_state, progress C.int, userData unsafe.Pointer) {
	if box, ok := boxFromHandle(userData); ok {
		box.progress(int(progress))
	}
}

//export whisperGoNewSegment
func whisperGoNewSegment(_ *C.struct_whisper_context, _ *C.struct_whisper_state, nNew C.int, userData unsafe.Pointer) {
	if box, ok := boxFromHandle(userData); ok {
		box.newSegments(int(nNew))
	}
}
