// Package bench measures the embedding overhead: engine compilation, context
// creation, evaluation, boundary marshalling, and host callback dispatch.
//
// Run with: go test -bench=. -benchtime=3x ./bench/
package bench

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/caffeineduck/qjs"
	"github.com/caffeineduck/qjs/engine"
	"github.com/caffeineduck/qjs/value"
)

func benchEngine(b *testing.B) *engine.Engine {
	b.Helper()
	eng, err := engine.GetTestEngine()
	if err != nil {
		b.Skipf("engine artifact unavailable: %v", err)
	}
	return eng
}

func benchContext(b *testing.B, opts ...qjs.Option) *qjs.Context {
	b.Helper()
	eng := benchEngine(b)
	ctx, err := qjs.New(append([]qjs.Option{qjs.WithEngine(eng)}, opts...)...)
	if err != nil {
		b.Fatalf("new context: %v", err)
	}
	b.Cleanup(func() { ctx.Close() })
	return ctx
}

// --- Cold start: fresh context per iteration ---

func BenchmarkColdStart(b *testing.B) {
	eng := benchEngine(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx, err := qjs.New(qjs.WithEngine(eng))
		if err != nil {
			b.Fatal(err)
		}
		ctx.Eval("1 + 1", "")
		ctx.Close()
	}
}

// --- Warm evaluation: shared context ---

func BenchmarkEvalArithmetic(b *testing.B) {
	ctx := benchContext(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ctx.Eval("6 * 7", ""); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvalComputation(b *testing.B) {
	ctx := benchContext(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ctx.Eval("let s = 0; for (let i = 0; i < 1000; i++) s += i*i; s", ""); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Boundary crossings ---

func BenchmarkMarshalObject(b *testing.B) {
	ctx := benchContext(b)
	obj := value.NewObject()
	obj.Set("name", value.String("bench"))
	obj.Set("xs", value.Array(value.Int(1), value.Int(2), value.Int(3)))
	obj.Set("when", value.Date(1724400000000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := ctx.SetGlobal("o", obj.Value()); err != nil {
			b.Fatal(err)
		}
		if _, err := ctx.GetGlobal("o"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHostCallback(b *testing.B) {
	ctx := benchContext(b)
	err := ctx.RegisterCallback("add", 2, func(this value.Value, args []value.Value) (value.Value, error) {
		return value.Int(args[0].Int() + args[1].Int()), nil
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ctx.Eval("add(40, 2)", ""); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Disk cache: simulates repeated CLI invocations ---

func TestDiskCacheBenefit(t *testing.T) {
	if _, err := engine.GetTestEngine(); err != nil {
		t.Skipf("engine artifact unavailable: %v", err)
	}

	cacheDir, err := os.MkdirTemp("", "qjs-bench-cache")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(cacheDir)

	var times []time.Duration
	for i := 0; i < 3; i++ {
		start := time.Now()

		eng, err := engine.New(engine.WithDiskCache(cacheDir))
		if err != nil {
			t.Fatal(err)
		}
		ctx, err := qjs.New(qjs.WithEngine(eng))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ctx.Eval("1 + 1", ""); err != nil {
			t.Fatal(err)
		}
		ctx.Close()
		eng.Close()

		times = append(times, time.Since(start))
	}

	for i, d := range times {
		label := "cached"
		if i == 0 {
			label = "compile"
		}
		fmt.Printf("Call %d (%s): %v\n", i+1, label, d)
	}
}
