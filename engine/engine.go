// Package engine drives the QuickJS wasm artifact through wazero. It exposes
// the raw handle-level ABI: runtimes and contexts are opaque pointers into
// the wasm linear memory, values are 64-bit handles, and every acquired
// handle must be released exactly once with FreeValue.
//
// Higher-level marshalling, callback dispatch and error mapping live in the
// root package; nothing here interprets values beyond their Tag.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tetratelabs/wazero"
)

// Engine holds the compiled QuickJS module and the shared compilation cache.
// One Engine serves any number of Instances; each Instance gets its own
// wazero runtime and linear memory, so contexts created on different
// instances share nothing.
type Engine struct {
	cache    wazero.CompilationCache
	rtConfig wazero.RuntimeConfig
	wasm     []byte
}

// New validates and compiles the engine artifact. The compilation result is
// cached (in memory, or on disk with WithDiskCache) so per-Instance
// compilation is a cache hit.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error
	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	} else {
		cache = wazero.NewCompilationCache()
	}

	rtConfig := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithCompilationCache(cache)
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	wasm := cfg.wasm
	if wasm == nil {
		wasm = qjsWasm
	}

	// Compile once up front so a bad artifact is reported here, not on the
	// first Instance. The throwaway runtime populates the shared cache.
	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		rt.Close(ctx)
		cache.Close(ctx)
		return nil, fmt.Errorf("compile engine module: %w", err)
	}
	if err := validateABI(compiled); err != nil {
		rt.Close(ctx)
		cache.Close(ctx)
		return nil, err
	}
	if err := rt.Close(ctx); err != nil {
		cache.Close(ctx)
		return nil, fmt.Errorf("close compile runtime: %w", err)
	}

	return &Engine{
		cache:    cache,
		rtConfig: rtConfig,
		wasm:     wasm,
	}, nil
}

// Close releases the compilation cache. Instances already created stay
// usable; new ones must not be created afterwards.
func (e *Engine) Close() error {
	return e.cache.Close(context.Background())
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "qjs")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "qjs")
	}
	return filepath.Join(os.TempDir(), "qjs-cache")
}
