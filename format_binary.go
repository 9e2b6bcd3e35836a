package typecodec

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"
)

// sizeCache avoids the cost of reflection in `binary.Size` on every call.
// A negative size marks a type that is not fixed-size.
var sizeCache = xsync.NewMap[reflect.Type, int]()

type binaryFormat struct{}

// Binary returns a format for fixed-size types: numbers, bools, and arrays
// or structs composed of them, laid out in Order with no framing.
//
// Constraint: the registered type MUST NOT contain slices, maps, strings or
// pointers; such types fail with ErrNotFixedSize.
func Binary() Format[[]byte] { return binaryFormat{} }

func (binaryFormat) Name() string { return "binary" }

func (binaryFormat) Encode(v any) ([]byte, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil, ErrNilValue
	}
	size := fixedSize(rv)
	if size < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFixedSize, rv.Type())
	}
	buf := make([]byte, size)
	if _, err := binary.Encode(buf, Order, rv.Interface()); err != nil {
		return nil, err
	}
	return buf, nil
}

func (binaryFormat) Decode(in []byte, dst any) error {
	rv := reflect.ValueOf(dst).Elem()
	// Registered pointer types arrive as **T.
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		rv = rv.Elem()
	}
	size := fixedSize(rv)
	if size < 0 {
		return fmt.Errorf("%w: %s", ErrNotFixedSize, rv.Type())
	}
	if len(in) < size {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrTruncatedData, size, len(in))
	}
	n, err := binary.Decode(in, Order, rv.Addr().Interface())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTruncatedData, err)
	}
	return CheckBufferNotZeros(in[n:])
}

// fixedSize returns the encoded size of v's type, or -1 if it has none.
// The result is cached per type.
func fixedSize(v reflect.Value) int {
	t := v.Type()
	if size, ok := sizeCache.Load(t); ok {
		return size
	}
	size := binary.Size(v.Interface())
	sizeCache.Store(t, size)
	return size
}
