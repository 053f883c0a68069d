package value

import (
	"fmt"
	"math"
	"math/big"
	"time"
)

// ConversionError reports a value that cannot be converted to the requested
// host type without loss.
type ConversionError struct {
	Value  string // rendering of the offending value
	Target string // requested host type or value shape
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s to %s", e.Value, e.Target)
}

func convErr(v Value, target string) error {
	return &ConversionError{Value: v.String(), Target: target}
}

// AsBool returns the boolean payload. No other variant coerces to bool.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, convErr(v, "bool")
	}
	return v.b, nil
}

// AsInt64 returns the value as an int64. Int converts directly; Float
// converts only when exactly representable; BigInt converts when it fits.
func (v Value) AsInt64() (int64, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindFloat:
		i := int64(v.f)
		if math.Trunc(v.f) != v.f || float64(i) != v.f || math.IsInf(v.f, 0) {
			return 0, convErr(v, "int64")
		}
		return i, nil
	case KindBigInt:
		if !v.big.IsInt64() {
			return 0, convErr(v, "int64")
		}
		return v.big.Int64(), nil
	}
	return 0, convErr(v, "int64")
}

// AsInt32 narrows to int32, failing when the value does not fit.
func (v Value) AsInt32() (int32, error) {
	i, err := v.AsInt64()
	if err != nil {
		return 0, err
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, convErr(v, "int32")
	}
	return int32(i), nil
}

// AsInt16 narrows to int16, failing when the value does not fit.
func (v Value) AsInt16() (int16, error) {
	i, err := v.AsInt64()
	if err != nil {
		return 0, err
	}
	if i < math.MinInt16 || i > math.MaxInt16 {
		return 0, convErr(v, "int16")
	}
	return int16(i), nil
}

// AsUint64 converts to uint64, failing for negatives and oversize values.
func (v Value) AsUint64() (uint64, error) {
	if v.kind == KindBigInt {
		if !v.big.IsUint64() {
			return 0, convErr(v, "uint64")
		}
		return v.big.Uint64(), nil
	}
	i, err := v.AsInt64()
	if err != nil {
		return 0, convErr(v, "uint64")
	}
	if i < 0 {
		return 0, convErr(v, "uint64")
	}
	return uint64(i), nil
}

// AsUint32 narrows to uint32, failing when the value does not fit.
func (v Value) AsUint32() (uint32, error) {
	u, err := v.AsUint64()
	if err != nil {
		return 0, err
	}
	if u > math.MaxUint32 {
		return 0, convErr(v, "uint32")
	}
	return uint32(u), nil
}

// AsFloat64 widens Int or BigInt to float64 when exactly representable and
// returns Float directly.
func (v Value) AsFloat64() (float64, error) {
	switch v.kind {
	case KindFloat:
		return v.f, nil
	case KindInt:
		// Exactness, not magnitude: 1<<60 converts, 1<<53+1 does not.
		f := float64(v.i)
		if new(big.Float).SetFloat64(f).Cmp(new(big.Float).SetInt64(v.i)) != 0 {
			return 0, convErr(v, "float64")
		}
		return f, nil
	case KindBigInt:
		f, acc := new(big.Float).SetInt(v.big).Float64()
		if acc != big.Exact {
			return 0, convErr(v, "float64")
		}
		return f, nil
	}
	return 0, convErr(v, "float64")
}

// AsString returns the string payload. No other variant coerces to string.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", convErr(v, "string")
	}
	return v.s, nil
}

// AsBytes returns the raw byte payload.
func (v Value) AsBytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, convErr(v, "bytes")
	}
	return v.raw, nil
}

// AsBigInt converts any integral value to an arbitrary-precision integer.
func (v Value) AsBigInt() (*big.Int, error) {
	switch v.kind {
	case KindBigInt:
		return v.big, nil
	case KindInt:
		return big.NewInt(v.i), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, convErr(v, "bigint")
		}
		n, acc := big.NewFloat(v.f).Int(nil)
		if acc != big.Exact {
			return nil, convErr(v, "bigint")
		}
		return n, nil
	}
	return nil, convErr(v, "bigint")
}

// AsTime returns the date payload as a time.Time in UTC.
func (v Value) AsTime() (time.Time, error) {
	if v.kind != KindDate {
		return time.Time{}, convErr(v, "time")
	}
	return time.UnixMilli(v.i).UTC(), nil
}
