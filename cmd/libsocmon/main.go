// Command libsocmon builds the C shared library:
//
//	go build -buildmode=c-shared -o libsocmon.so ./cmd/libsocmon
//
// The exported functions are declared in socmon.h. Configuration is read
// from $SOCMON_CONFIG on first use.
package main

/*
#include <stdlib.h>
#include "socmon.h"
*/
import "C"

import (
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/ja7ad/socmon/pkg/config"
	"github.com/ja7ad/socmon/pkg/lifecycle"
	"github.com/ja7ad/socmon/pkg/sampler"
)

type cAllocator struct{}

func (cAllocator) calloc(size int) unsafe.Pointer { return C.calloc(1, C.size_t(size)) }
func (cAllocator) free(p unsafe.Pointer)          { C.free(p) }

var lib = sync.OnceValue(func() *registry {
	cfg, err := config.Load("")
	if err != nil {
		cfg = config.Default()
		cfg.Logger(os.Stderr).Error("config", "err", err)
	}
	log := cfg.Logger(os.Stderr)
	src, caps := cfg.Sources(log)
	mgr := lifecycle.New(src, caps,
		lifecycle.WithLogger(log),
		lifecycle.WithSamplerOptions(
			sampler.WithWindow(cfg.Window.Std()),
			sampler.WithSteps(cfg.Steps),
		),
	)
	return newRegistry(mgr, cAllocator{}, log)
})

//export sampler_new
func sampler_new() unsafe.Pointer { return lib().newSampler() }

//export sampler_get_metrics
func sampler_get_metrics(s unsafe.Pointer) *C.Metrics {
	return (*C.Metrics)(lib().sample(s, 0))
}

//export sampler_get_metrics_window
func sampler_get_metrics_window(s unsafe.Pointer, windowMs C.uint32_t) *C.Metrics {
	return (*C.Metrics)(lib().sample(s, time.Duration(windowMs)*time.Millisecond))
}

//export sampler_free
func sampler_free(s unsafe.Pointer) { lib().freeSampler(s) }

//export metrics_free
func metrics_free(m *C.Metrics) { lib().freeMetrics(unsafe.Pointer(m)) }

//export get_soc_info
func get_soc_info() *C.SocInfo { return (*C.SocInfo)(lib().socInfo()) }

//export soc_info_free
func soc_info_free(info *C.SocInfo) { lib().freeSocInfo(unsafe.Pointer(info)) }

func main() {}
