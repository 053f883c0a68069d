package qjs

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/caffeineduck/qjs/engine"
	"github.com/caffeineduck/qjs/value"
)

func roundTrip(t *testing.T, v value.Value) value.Value {
	t.Helper()
	ctx, fake, err := newFakeContext()
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	defer ctx.Close()

	if err := ctx.SetGlobal("x", v); err != nil {
		t.Fatalf("set global: %v", err)
	}
	got, err := ctx.GetGlobal("x")
	if err != nil {
		t.Fatalf("get global: %v", err)
	}
	if len(fake.misuse) > 0 {
		t.Fatalf("handle misuse: %v", fake.misuse)
	}
	return got
}

func TestRoundTripScalars(t *testing.T) {
	cases := []struct {
		name string
		v    value.Value
	}{
		{"undefined", value.Undefined()},
		{"null", value.Null()},
		{"true", value.Bool(true)},
		{"false", value.Bool(false)},
		{"zero", value.Int(0)},
		{"negative", value.Int(-42)},
		{"float", value.Float(3.14159)},
		{"negative zero", value.Float(math.Copysign(0, -1))},
		{"nan", value.Float(math.NaN())},
		{"pos inf", value.Float(math.Inf(1))},
		{"neg inf", value.Float(math.Inf(-1))},
		{"empty string", value.String("")},
		{"string", value.String("héllo, wörld")},
		{"date", value.Date(1724400000000)},
		{"bytes", value.Bytes([]byte{0, 1, 2, 255})},
		{"empty bytes", value.Bytes([]byte{})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, tc.v)
			if !value.Equal(tc.v, got) {
				t.Errorf("round trip changed value: sent %s, got %s", tc.v, got)
			}
		})
	}
}

func TestRoundTripIntLimits(t *testing.T) {
	// Integers beyond 2^53 cross as BigInt so no digits are lost. The
	// numeric equality rule makes the comparison variant-blind.
	cases := []int64{
		math.MaxInt64,
		math.MinInt64,
		1<<53 + 1,
		-(1<<53 + 1),
		1 << 53,
		1<<53 - 1,
	}
	for _, i := range cases {
		got := roundTrip(t, value.Int(i))
		if !value.Equal(value.Int(i), got) {
			t.Errorf("int %d came back as %s", i, got)
		}
	}
}

func TestRoundTripBigInt(t *testing.T) {
	n, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	got := roundTrip(t, value.BigInt(n))
	if got.Kind() != value.KindBigInt {
		t.Fatalf("expected bigint, got %s", got.Kind())
	}
	if got.BigInt().Cmp(n) != 0 {
		t.Errorf("bigint changed: sent %s, got %s", n, got.BigInt())
	}
}

func TestRoundTripContainers(t *testing.T) {
	obj := value.NewObject()
	obj.Set("name", value.String("deep"))
	obj.Set("tags", value.Array(value.String("a"), value.String("b")))

	cases := []struct {
		name string
		v    value.Value
	}{
		{"empty array", value.Array()},
		{"array", value.Array(value.Int(1), value.Null(), value.String("x"))},
		{"nested array", value.Array(value.Array(value.Array(value.Int(1))))},
		{"empty object", value.NewObject().Value()},
		{"object", obj.Value()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, tc.v)
			if !value.Equal(tc.v, got) {
				t.Errorf("round trip changed value: sent %s, got %s", tc.v, got)
			}
		})
	}
}

func TestRoundTripObjectKeyOrder(t *testing.T) {
	obj := value.NewObject()
	obj.Set("zebra", value.Int(1))
	obj.Set("apple", value.Int(2))
	obj.Set("mango", value.Int(3))

	got := roundTrip(t, obj.Value())
	keys := got.Object().Keys()
	want := []string{"zebra", "apple", "mango"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: expected %q, got %q", i, want[i], keys[i])
		}
	}
}

func TestMarshalDepthLimit(t *testing.T) {
	// 10000 levels of nesting is far past the default limit.
	v := value.Int(1)
	for i := 0; i < 10000; i++ {
		v = value.Array(v)
	}

	ctx, _, err := newFakeContext()
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	defer ctx.Close()

	err = ctx.SetGlobal("deep", v)
	var de *DepthError
	if !errors.As(err, &de) {
		t.Fatalf("expected DepthError, got %v", err)
	}
	if de.Max != defaultMaxDepth {
		t.Errorf("expected limit %d, got %d", defaultMaxDepth, de.Max)
	}
}

func TestMarshalCyclicObject(t *testing.T) {
	o := value.NewObject()
	o.Set("self", o.Value())

	ctx, fake, err := newFakeContext()
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	defer ctx.Close()

	err = ctx.SetGlobal("cycle", o.Value())
	var de *DepthError
	if !errors.As(err, &de) {
		t.Fatalf("expected DepthError for cycle, got %v", err)
	}
	ctx.Close()
	if n := fake.LiveHandles(); n != 0 {
		t.Errorf("cycle rejection leaked %d handles", n)
	}
}

func TestUnmarshalDepthLimit(t *testing.T) {
	ctx, fake, err := newFakeContext()
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	defer ctx.Close()

	deep := fval{kind: engine.TagInt, i: 1}
	for i := 0; i < 10000; i++ {
		deep = fval{kind: engine.TagArray, arr: &farr{elems: []fval{deep}}}
	}
	fake.globals[ctx.jsctx].set("deep", deep)

	_, err = ctx.GetGlobal("deep")
	var de *DepthError
	if !errors.As(err, &de) {
		t.Fatalf("expected DepthError, got %v", err)
	}
}

func TestForgedFunctionReference(t *testing.T) {
	ctx, _, err := newFakeContext()
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	defer ctx.Close()

	err = ctx.SetGlobal("fn", value.Function(9999))
	var ce *value.ConversionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConversionError for forged reference, got %v", err)
	}
}

func TestHandleConservation(t *testing.T) {
	ctx, fake, err := newFakeContext()
	if err != nil {
		t.Fatalf("new context: %v", err)
	}

	obj := value.NewObject()
	obj.Set("xs", value.Array(value.Int(1), value.Int(2), value.Int(3)))
	obj.Set("when", value.Date(1724400000000))
	obj.Set("blob", value.Bytes([]byte("abc")))

	for i := 0; i < 10; i++ {
		if err := ctx.SetGlobal("o", obj.Value()); err != nil {
			t.Fatalf("set global: %v", err)
		}
		if _, err := ctx.GetGlobal("o"); err != nil {
			t.Fatalf("get global: %v", err)
		}
	}

	fn, err := ctx.Function("id", 1, func(this value.Value, args []value.Value) (value.Value, error) {
		return args[0], nil
	})
	if err != nil {
		t.Fatalf("function: %v", err)
	}
	if _, err := ctx.Call(fn, value.Undefined(), value.Int(7)); err != nil {
		t.Fatalf("call: %v", err)
	}

	if err := ctx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := fake.LiveHandles(); n != 0 {
		t.Errorf("%d handles still live after close", n)
	}
	if len(fake.misuse) > 0 {
		t.Errorf("handle misuse: %v", fake.misuse)
	}
}

func TestThrowingAccessorDuringUnmarshal(t *testing.T) {
	// An exception-tagged element stands in for a throwing getter or Proxy
	// trap reached mid-walk; the engine leaves the thrown value pending.
	ctx, fake, err := newFakeContext()
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	defer ctx.Close()

	fake.globals[ctx.jsctx].set("xs", fval{
		kind: engine.TagArray,
		arr:  &farr{elems: []fval{{kind: engine.TagException}}},
	})
	fake.pending = &fval{kind: engine.TagString, s: "getter boom"}

	_, err = ctx.GetGlobal("xs")
	var se *ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if se.Message != "getter boom" {
		t.Errorf("thrown value lost: %q", se.Message)
	}
	if fake.pending != nil {
		t.Error("pending exception leaked past the operation")
	}

	ctx.Close()
	if n := fake.LiveHandles(); n != 0 {
		t.Errorf("throwing walk leaked %d handles", n)
	}
}
