package engine

// Option configures the Engine at creation time.
type Option func(*config)

type config struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // max wasm pages per instance (64KB each), 0 = wazero default
	wasm             []byte // alternative artifact, nil = embedded
}

func defaultConfig() config {
	return config{}
}

// WithDiskCache enables a persistent compilation cache for faster startup.
// Optionally provide a custom directory; otherwise uses ~/.cache/qjs or
// XDG_CACHE_HOME/qjs.
func WithDiskCache(dir ...string) Option {
	return func(c *config) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit caps the wasm linear memory of each instance. Each page is
// 64KB. This bounds the whole engine heap; per-context script heap limits are
// set separately through SetMemoryLimit.
func WithMemoryLimit(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// WithWasm substitutes the embedded engine artifact, for alternative builds
// of the shim. The bytes must export the full ABI or New fails validation.
func WithWasm(wasm []byte) Option {
	return func(c *config) {
		c.wasm = wasm
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)
