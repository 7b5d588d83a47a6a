package ir

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	// Compile-time check that every variant implements Value.
	var _ Value = Null{}
	var _ Value = Int(0)
	var _ Value = Real(0)
	var _ Value = Text("")
	var _ Value = Bool(false)
	var _ Value = Blob(nil)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"equal ints", Int(1), Int(1), true},
		{"different ints", Int(1), Int(2), false},
		{"int and integral real", Int(1), Real(1), true},
		{"real and int", Real(2.5), Int(2), false},
		{"int above 2^53 and nearest real", Int(1<<53 + 1), Real(1 << 53), false},
		{"int above 2^53 and exact real", Int(1 << 60), Real(1 << 60), true},
		{"real past int64", Real(1e19), Int(math.MaxInt64), false},
		{"equal text", Text("x"), Text("x"), true},
		{"text vs int", Text("1"), Int(1), false},
		{"bools", Bool(true), Bool(true), true},
		{"blobs", Blob{1, 2}, Blob{1, 2}, true},
		{"different blobs", Blob{1, 2}, Blob{2, 1}, false},
		{"null never equals null", Null{}, Null{}, false},
		{"nil never equals", nil, Int(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestKey(t *testing.T) {
	k1, ok := Key(Int(7))
	require.True(t, ok)
	k2, ok := Key(Real(7))
	require.True(t, ok)
	assert.Equal(t, k1, k2, "ints and integral reals share keys")

	k3, ok := Key(Text("7"))
	require.True(t, ok)
	assert.NotEqual(t, k1, k3, "text never collides with numbers")

	_, ok = Key(Null{})
	assert.False(t, ok)
	_, ok = Key(nil)
	assert.False(t, ok)
	_, ok = Key(Real(math.NaN()))
	assert.False(t, ok)
}

func TestKeyAgreesWithEqual(t *testing.T) {
	values := []Value{
		Int(0), Real(0), Real(math.Copysign(0, -1)),
		Int(7), Real(7), Real(7.5),
		Int(1<<53 + 1), Real(1 << 53), Int(1 << 53),
		Int(1 << 60), Real(1 << 60),
		Int(math.MaxInt64), Real(1e19), Real(math.Inf(1)),
		Int(math.MinInt64), Real(math.MinInt64),
		Text("7"), Bool(true), Blob("7"),
	}

	for _, a := range values {
		for _, b := range values {
			ka, _ := Key(a)
			kb, _ := Key(b)
			assert.Equal(t, Equal(a, b), ka == kb, "%#v vs %#v", a, b)
		}
	}
}

func TestRealToInt(t *testing.T) {
	tests := []struct {
		in     float64
		want   int64
		wantOK bool
	}{
		{3, 3, true},
		{-2, -2, true},
		{3.5, 0, false},
		{math.MinInt64, math.MinInt64, true},
		{1 << 63, 0, false},
		{math.Inf(-1), 0, false},
		{math.NaN(), 0, false},
	}

	for _, tt := range tests {
		got, ok := RealToInt(tt.in)
		assert.Equal(t, tt.wantOK, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestFromSQL(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name  string
		input any
		want  Value
	}{
		{"nil", nil, Null{}},
		{"int64", int64(42), Int(42)},
		{"int32", int32(-3), Int(-3)},
		{"float64", 1.5, Real(1.5)},
		{"string", "hello", Text("hello")},
		{"bytes", []byte{0xde, 0xad}, Blob{0xde, 0xad}},
		{"bool", true, Bool(true)},
		{"time", ts, Text("2024-01-02T03:04:05Z")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromSQL(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FromSQL(struct{}{})
	assert.Error(t, err)
}

func TestFromSQLCopiesBytes(t *testing.T) {
	src := []byte{1, 2, 3}
	v, err := FromSQL(src)
	require.NoError(t, err)

	src[0] = 9
	assert.Equal(t, Blob{1, 2, 3}, v, "driver buffers may be reused; blobs must own their bytes")
}

func TestToSQL(t *testing.T) {
	tests := []struct {
		name  string
		input Value
		want  any
	}{
		{"null", Null{}, nil},
		{"nil", nil, nil},
		{"int", Int(5), int64(5)},
		{"real", Real(0.25), 0.25},
		{"text", Text("a"), "a"},
		{"bool", Bool(false), false},
		{"blob", Blob{1}, []byte{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToSQL(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGo(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  Value
	}{
		{"nil", nil, Null{}},
		{"int", 3, Int(3)},
		{"integral float", float64(4), Int(4)},
		{"fractional float", 4.5, Real(4.5)},
		{"string", "s", Text("s")},
		{"bool", true, Bool(true)},
		{"value passthrough", Text("v"), Text("v")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FromGo([]int{1})
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	assert.Equal(t, "NULL", String(Null{}))
	assert.Equal(t, "12", String(Int(12)))
	assert.Equal(t, "0.5", String(Real(0.5)))
	assert.Equal(t, "abc", String(Text("abc")))
	assert.Equal(t, "true", String(Bool(true)))
	assert.Equal(t, "<3 bytes>", String(Blob{1, 2, 3}))
}

func TestRecordJSONRoundTrip(t *testing.T) {
	rec := Record{"b.value": Text("v1"), "a.name": Text("x"), "a.id": Int(1), "b.note": Null{}}

	data, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a.id":1,"a.name":"x","b.note":null,"b.value":"v1"}`, string(data))

	var got Record
	require.NoError(t, got.UnmarshalJSON(data))
	assert.Equal(t, rec, got)
}

func TestRecordGet(t *testing.T) {
	rec := Record{"a": Int(1), "b": nil}
	assert.Equal(t, Int(1), rec.Get("a"))
	assert.Equal(t, Null{}, rec.Get("b"))
	assert.Equal(t, Null{}, rec.Get("missing"))
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 byte order but after it in
	// UTF-16 code unit order (surrogate 0xD83D < 0xFF61).
	rec := Record{"\uff61": Int(1), "\U0001F600": Int(2), "a": Int(3)}
	assert.Equal(t, []string{"a", "\U0001F600", "\uff61"}, rec.SortedKeys())
}
