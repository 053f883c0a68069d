// Package value defines the host-side representation of every JavaScript
// value shape the bridge supports. Values are fully detached snapshots: an
// Array or Object holds plain Go data and owns no engine handle. The only
// exception is the Function kind, which carries an opaque reference id
// resolved by the owning Context.
package value

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
	KindFunction
	KindDate
	KindBigInt
	KindBytes
)

var kindNames = map[Kind]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBool:      "bool",
	KindInt:       "int",
	KindFloat:     "float",
	KindString:    "string",
	KindArray:     "array",
	KindObject:    "object",
	KindFunction:  "function",
	KindDate:      "date",
	KindBigInt:    "bigint",
	KindBytes:     "bytes",
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Value is a closed tagged union over the supported JavaScript value shapes.
// The zero Value is Undefined.
type Value struct {
	kind Kind
	b    bool
	i    int64 // Int payload, Date milliseconds, or Function ref id
	f    float64
	s    string
	arr  []Value
	obj  *Object
	big  *big.Int
	raw  []byte
}

// Undefined returns the undefined value.
func Undefined() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a 64-bit signed integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a 64-bit IEEE floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array value holding the given elements.
func Array(elems ...Value) Value {
	return Value{kind: KindArray, arr: elems}
}

// Date returns a date value from milliseconds since the Unix epoch.
func Date(millis int64) Value { return Value{kind: KindDate, i: millis} }

// Time returns a date value from a time.Time, truncated to milliseconds.
func Time(t time.Time) Value { return Date(t.UnixMilli()) }

// BigInt returns an arbitrary-precision integer value. A nil argument
// yields BigInt zero.
func BigInt(n *big.Int) Value {
	if n == nil {
		n = new(big.Int)
	}
	return Value{kind: KindBigInt, big: n}
}

// Bytes returns a raw byte sequence value.
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// Function returns a function reference value. Function values are normally
// minted by a Context when a script function crosses into the host or when a
// host callback is registered; a reference forged with an unknown id fails
// conversion when passed back to the engine.
func Function(id uint64) Value { return Value{kind: KindFunction, i: int64(id)} }

// Kind reports which variant the value holds.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether the value is undefined.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNullish reports whether the value is undefined or null.
func (v Value) IsNullish() bool { return v.kind == KindUndefined || v.kind == KindNull }

// Bool returns the boolean payload, or false for any other kind.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Int returns the integer payload, or 0 for any other kind.
func (v Value) Int() int64 {
	if v.kind != KindInt {
		return 0
	}
	return v.i
}

// Float returns the float payload, or 0 for any other kind.
func (v Value) Float() float64 {
	if v.kind != KindFloat {
		return 0
	}
	return v.f
}

// Str returns the string payload, or "" for any other kind.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// Elems returns the array elements, or nil for any other kind. The slice is
// shared, not copied.
func (v Value) Elems() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Object returns the object payload, or nil for any other kind.
func (v Value) Object() *Object {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// Millis returns the date payload in milliseconds since the epoch, or 0 for
// any other kind.
func (v Value) Millis() int64 {
	if v.kind != KindDate {
		return 0
	}
	return v.i
}

// BigInt returns the big integer payload, or nil for any other kind.
func (v Value) BigInt() *big.Int {
	if v.kind != KindBigInt {
		return nil
	}
	return v.big
}

// Bytes returns the raw byte payload, or nil for any other kind. The slice
// is shared, not copied.
func (v Value) Bytes() []byte {
	if v.kind != KindBytes {
		return nil
	}
	return v.raw
}

// FuncID returns the opaque function reference id, or 0 for any other kind.
func (v Value) FuncID() uint64 {
	if v.kind != KindFunction {
		return 0
	}
	return uint64(v.i)
}

// String renders the value for diagnostics. It is not a serialization
// format.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		parts := make([]string, 0, v.obj.Len())
		for _, k := range v.obj.Keys() {
			e, _ := v.obj.Get(k)
			parts = append(parts, k+": "+e.String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindFunction:
		return fmt.Sprintf("function(#%d)", uint64(v.i))
	case KindDate:
		return time.UnixMilli(v.i).UTC().Format(time.RFC3339Nano)
	case KindBigInt:
		return v.big.String() + "n"
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.raw))
	}
	return "unknown"
}

// Equal reports structural equality between two values.
//
// Numeric rule: Int, Float and BigInt values compare equal when numerically
// exactly equal, regardless of variant, and NaN equals NaN. This keeps the
// round-trip property intact for integers the engine stores as doubles.
// Objects compare by key set and per-key value; insertion order is not part
// of equality.
func Equal(a, b Value) bool {
	an, bn := a.isNumeric(), b.isNumeric()
	if an && bn {
		return numericEqual(a, b)
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		for _, k := range a.obj.Keys() {
			bv, ok := b.obj.Get(k)
			if !ok {
				return false
			}
			av, _ := a.obj.Get(k)
			if !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindFunction:
		return a.i == b.i
	case KindDate:
		return a.i == b.i
	case KindBytes:
		if len(a.raw) != len(b.raw) {
			return false
		}
		for i := range a.raw {
			if a.raw[i] != b.raw[i] {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) isNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat || v.kind == KindBigInt
}

func numericEqual(a, b Value) bool {
	aNaN := a.kind == KindFloat && math.IsNaN(a.f)
	bNaN := b.kind == KindFloat && math.IsNaN(b.f)
	if aNaN || bNaN {
		return aNaN && bNaN
	}
	return bigFloatOf(a).Cmp(bigFloatOf(b)) == 0
}

// bigFloatOf widens any numeric variant without precision loss. NaN must be
// handled by the caller; big.Float has no NaN.
func bigFloatOf(v Value) *big.Float {
	switch v.kind {
	case KindInt:
		return new(big.Float).SetInt64(v.i)
	case KindFloat:
		return new(big.Float).SetFloat64(v.f)
	case KindBigInt:
		return new(big.Float).SetInt(v.big)
	}
	return new(big.Float)
}
