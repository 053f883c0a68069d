package engine

import "sync"

// Shared engine for tests, avoiding repeated artifact compilation.
var (
	testEngine     *Engine
	testEngineOnce sync.Once
	testEngineErr  error
)

// GetTestEngine returns a shared engine for testing. The engine is created
// once and reused; tests skip when it cannot be created (for example when
// only the placeholder artifact is present).
func GetTestEngine() (*Engine, error) {
	testEngineOnce.Do(func() {
		testEngine, testEngineErr = New()
	})
	return testEngine, testEngineErr
}
