package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Value is a sealed interface for a single field value in a row.
// Only Null, Int, Real, Text, Bool and Blob implement it, so every switch
// over a Value can enumerate the full set.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an absent value. Outer joins use it for the padded side.
type Null struct{}

func (Null) value() {}

// Int is a 64-bit integer value.
type Int int64

func (Int) value() {}

// Real is a floating point value.
type Real float64

func (Real) value() {}

// Text is a string value.
type Text string

func (Text) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Blob is an opaque byte value. Geometry fields travel as blobs (WKB or
// whatever the store hands back); reljoin never interprets them.
type Blob []byte

func (Blob) value() {}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal reports whether two values are equal. Null never equals anything,
// including another Null, matching SQL join semantics.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return false
	}
	switch x := a.(type) {
	case Int:
		switch y := b.(type) {
		case Int:
			return x == y
		case Real:
			i, ok := RealToInt(float64(y))
			return ok && i == int64(x)
		}
	case Real:
		switch y := b.(type) {
		case Real:
			return x == y
		case Int:
			i, ok := RealToInt(float64(x))
			return ok && i == int64(y)
		}
	case Text:
		y, ok := b.(Text)
		return ok && x == y
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Blob:
		y, ok := b.(Blob)
		return ok && bytes.Equal(x, y)
	}
	return false
}

// RealToInt returns f as an int64 when f is integral and inside the int64
// range. NaN and infinities are never integral.
func RealToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

// Key returns a string usable as a map key for equality lookups.
// Two values share a key exactly when Equal reports them equal: ints and
// integral reals in int64 range share a key so that 1 and 1.0 match.
// Null and NaN have no key; ok is false for them.
func Key(v Value) (key string, ok bool) {
	switch val := v.(type) {
	case nil, Null:
		return "", false
	case Int:
		return "n:" + strconv.FormatInt(int64(val), 10), true
	case Real:
		f := float64(val)
		if math.IsNaN(f) {
			return "", false
		}
		if i, ok := RealToInt(f); ok {
			return "n:" + strconv.FormatInt(i, 10), true
		}
		return "r:" + strconv.FormatFloat(f, 'g', -1, 64), true
	case Text:
		return "t:" + string(val), true
	case Bool:
		return "b:" + strconv.FormatBool(bool(val)), true
	case Blob:
		return "x:" + base64.StdEncoding.EncodeToString(val), true
	default:
		return "", false
	}
}

// String renders a value for human-readable output.
func String(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "NULL"
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Real:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Text:
		return string(val)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Blob:
		return fmt.Sprintf("<%d bytes>", len(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FromSQL converts a value scanned by database/sql into a Value.
func FromSQL(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(int64(val)), nil
	case int:
		return Int(int64(val)), nil
	case float64:
		return Real(val), nil
	case float32:
		return Real(float64(val)), nil
	case string:
		return Text(val), nil
	case []byte:
		return Blob(append([]byte(nil), val...)), nil
	case bool:
		return Bool(val), nil
	case time.Time:
		return Text(val.UTC().Format(time.RFC3339Nano)), nil
	default:
		return nil, fmt.Errorf("unsupported SQL value type: %T", v)
	}
}

// ToSQL converts a Value into a database/sql parameter.
func ToSQL(v Value) (any, error) {
	switch val := v.(type) {
	case nil, Null:
		return nil, nil
	case Int:
		return int64(val), nil
	case Real:
		return float64(val), nil
	case Text:
		return string(val), nil
	case Bool:
		return bool(val), nil
	case Blob:
		return []byte(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}

// FromGo converts plain Go values (as decoded from YAML or JSON) into a Value.
// Integral float64s become Int so that YAML "1" and JSON 1 agree.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case int:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(int64(val)), nil
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return Int(int64(val)), nil
		}
		return Real(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return Real(f), nil
	case string:
		return Text(val), nil
	case bool:
		return Bool(val), nil
	case []byte:
		return Blob(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// MarshalValue marshals a Value to plain JSON. Blobs are base64 strings.
// This is not canonical; use MarshalCanonical for hashing.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case Int:
		return json.Marshal(int64(val))
	case Real:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil, fmt.Errorf("non-finite real cannot be marshaled: %v", val)
		}
		return json.Marshal(float64(val))
	case Text:
		return json.Marshal(string(val))
	case Bool:
		return json.Marshal(bool(val))
	case Blob:
		return json.Marshal(base64.StdEncoding.EncodeToString(val))
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}
