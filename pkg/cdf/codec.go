package cdf

import (
	"encoding/binary"
	"fmt"
	"math"
)

var order = binary.BigEndian

// pad4 rounds n up to the next multiple of 4.
func pad4(n int64) int64 { return (n + 3) &^ 3 }

// valueLen returns the number of elements held by a Go value accepted by
// encodeValues.
func valueLen(v any) (int, error) {
	switch vv := v.(type) {
	case string:
		return len(vv), nil
	case []byte:
		return len(vv), nil
	case []int8:
		return len(vv), nil
	case []int16:
		return len(vv), nil
	case []int32:
		return len(vv), nil
	case []int64:
		return len(vv), nil
	case []int:
		return len(vv), nil
	case []float32:
		return len(vv), nil
	case []float64:
		return len(vv), nil
	}
	return 0, fmt.Errorf("%w: Go value of type %T", ErrType, v)
}

// encodeValues writes v into dst as big-endian elements of type t. dst must
// hold exactly valueLen(v) elements. Numeric slices convert to any numeric
// type; Char accepts only string or []byte.
func encodeValues(t Type, dst []byte, v any) error {
	n, err := valueLen(v)
	if err != nil {
		return err
	}
	if len(dst) != n*t.Size() {
		return fmt.Errorf("%w: %d elements into %d bytes of %s", ErrShape, n, len(dst), t)
	}

	if t == Char {
		switch vv := v.(type) {
		case string:
			copy(dst, vv)
		case []byte:
			copy(dst, vv)
		default:
			return fmt.Errorf("%w: %T for char data", ErrType, v)
		}
		return nil
	}

	switch vv := v.(type) {
	case string:
		return fmt.Errorf("%w: string for %s data", ErrType, t)
	case []byte:
		for i, x := range vv {
			putNumber(t, dst, i, float64(int8(x)), int64(int8(x)))
		}
	case []int8:
		for i, x := range vv {
			putNumber(t, dst, i, float64(x), int64(x))
		}
	case []int16:
		for i, x := range vv {
			putNumber(t, dst, i, float64(x), int64(x))
		}
	case []int32:
		for i, x := range vv {
			putNumber(t, dst, i, float64(x), int64(x))
		}
	case []int64:
		for i, x := range vv {
			putNumber(t, dst, i, float64(x), x)
		}
	case []int:
		for i, x := range vv {
			putNumber(t, dst, i, float64(x), int64(x))
		}
	case []float32:
		for i, x := range vv {
			putNumber(t, dst, i, float64(x), int64(x))
		}
	case []float64:
		for i, x := range vv {
			putNumber(t, dst, i, x, int64(x))
		}
	}
	return nil
}

// putNumber stores element i. Integer targets take the integer form so that
// 64-bit integer sources do not round-trip through float64.
func putNumber(t Type, dst []byte, i int, f float64, n int64) {
	switch t {
	case Byte:
		dst[i] = byte(int8(n))
	case Short:
		order.PutUint16(dst[i*2:], uint16(int16(n)))
	case Int:
		order.PutUint32(dst[i*4:], uint32(int32(n)))
	case Float:
		order.PutUint32(dst[i*4:], math.Float32bits(float32(f)))
	case Double:
		order.PutUint64(dst[i*8:], math.Float64bits(f))
	}
}

// decodeValues returns the natural Go slice for src: []int8, []byte (Char),
// []int16, []int32, []float32 or []float64. The result never aliases src.
func decodeValues(t Type, src []byte) any {
	n := len(src) / max(t.Size(), 1)
	switch t {
	case Byte:
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(src[i])
		}
		return out
	case Char:
		out := make([]byte, n)
		copy(out, src)
		return out
	case Short:
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(order.Uint16(src[i*2:]))
		}
		return out
	case Int:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(order.Uint32(src[i*4:]))
		}
		return out
	case Float:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(order.Uint32(src[i*4:]))
		}
		return out
	case Double:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(src[i*8:]))
		}
		return out
	}
	return nil
}

// decodeFloat64s converts numeric data of any type to float64.
func decodeFloat64s(t Type, src []byte) ([]float64, error) {
	if t.Kind() == KindText {
		return nil, fmt.Errorf("%w: char data is not numeric", ErrType)
	}
	n := len(src) / t.Size()
	out := make([]float64, n)
	for i := range out {
		switch t {
		case Byte:
			out[i] = float64(int8(src[i]))
		case Short:
			out[i] = float64(int16(order.Uint16(src[i*2:])))
		case Int:
			out[i] = float64(int32(order.Uint32(src[i*4:])))
		case Float:
			out[i] = float64(math.Float32frombits(order.Uint32(src[i*4:])))
		case Double:
			out[i] = math.Float64frombits(order.Uint64(src[i*8:]))
		}
	}
	return out, nil
}

// decodeInts converts integer data to int.
func decodeInts(t Type, src []byte) ([]int, error) {
	if t.Kind() != KindInteger {
		return nil, fmt.Errorf("%w: %s data is not integer", ErrType, t)
	}
	n := len(src) / t.Size()
	out := make([]int, n)
	for i := range out {
		switch t {
		case Byte:
			out[i] = int(int8(src[i]))
		case Short:
			out[i] = int(int16(order.Uint16(src[i*2:])))
		case Int:
			out[i] = int(int32(order.Uint32(src[i*4:])))
		}
	}
	return out, nil
}
