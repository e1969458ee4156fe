//go:build (linux || darwin) && cgo

package native

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

typedef int32_t (*rigz_invoke_fn)(const uint8_t*, size_t, uint8_t**, size_t*);
typedef void (*rigz_free_fn)(uint8_t*, size_t);
typedef int32_t (*rigz_initialize_fn)(const uint8_t*, size_t);

static void* rz_dlopen(const char* path) {
	return dlopen(path, RTLD_NOW | RTLD_LOCAL);
}

static const char* rz_dlerror(void) {
	return dlerror();
}

// Clear dlerror, call dlsym, and report a missing symbol as NULL.
static void* rz_dlsym(void* h, const char* name) {
	dlerror();
	void* p = dlsym(h, name);
	if (dlerror() != NULL) {
		return NULL;
	}
	return p;
}

static int32_t rz_invoke(void* fn, const uint8_t* req, size_t len, uint8_t** out, size_t* out_len) {
	return ((rigz_invoke_fn)fn)(req, len, out, out_len);
}

static void rz_free(void* fn, uint8_t* p, size_t len) {
	((rigz_free_fn)fn)(p, len);
}

static int32_t rz_initialize(void* fn, const uint8_t* cfg, size_t len) {
	return ((rigz_initialize_fn)fn)(cfg, len);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"rigz/pkg/abi"
)

type cLibrary struct {
	path   string
	handle unsafe.Pointer
	invoke unsafe.Pointer
	free   unsafe.Pointer
	init   unsafe.Pointer
}

func dlerr() string {
	if e := C.rz_dlerror(); e != nil {
		return C.GoString(e)
	}
	return "unknown dlerror"
}

func openLibrary(path string) (library, error) {
	cs := C.CString(path)
	defer C.free(unsafe.Pointer(cs))

	h := C.rz_dlopen(cs)
	if h == nil {
		return nil, fmt.Errorf("dlopen(%q) failed: %s", path, dlerr())
	}
	lib := &cLibrary{path: path, handle: h}
	lib.invoke = sym(h, "rigz_invoke")
	lib.free = sym(h, "rigz_free")
	lib.init = sym(h, "rigz_initialize")
	if lib.invoke == nil || lib.free == nil {
		return nil, fmt.Errorf("%s: rigz_invoke and rigz_free must be exported", path)
	}
	return lib, nil
}

func sym(h unsafe.Pointer, name string) unsafe.Pointer {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	return C.rz_dlsym(h, cs)
}

func (l *cLibrary) Path() string { return l.path }

func bytesPtr(b []byte) *C.uint8_t {
	if len(b) == 0 {
		return nil
	}
	return (*C.uint8_t)(unsafe.Pointer(&b[0]))
}

func (l *cLibrary) Invoke(req []byte) (*abi.Owned, int32) {
	var out *C.uint8_t
	var outLen C.size_t
	code := int32(C.rz_invoke(l.invoke, bytesPtr(req), C.size_t(len(req)), &out, &outLen))
	if out == nil {
		return nil, code
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(out)), int(outLen))
	return abi.NewOwned(data, func() { C.rz_free(l.free, out, outLen) }), code
}

func (l *cLibrary) Initialize(cfg []byte) (int32, bool) {
	if l.init == nil {
		return 0, false
	}
	return int32(C.rz_initialize(l.init, bytesPtr(cfg), C.size_t(len(cfg)))), true
}
