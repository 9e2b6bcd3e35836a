package typecodec

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"golang.org/x/exp/constraints"
)

// Order is the byte order of frames and of the Binary format.
var Order binary.ByteOrder = binary.BigEndian

const BUFFER_SIZE = 4096

var empty [BUFFER_SIZE]byte

// Roundup rounds n up to the nearest multiple of align, which must be a power of two.
func Roundup[T constraints.Integer](n, align T) T { return (n + (align - 1)) &^ (align - 1) }

// MAX_PADDING is the most trailing bytes a decoder tolerates after a value.
// Anything larger is considered a protocol error.
const MAX_PADDING = 1024

// CheckBufferNotZeros verifies that trailing bytes after a decoded value are
// all zero padding. Anything else means the value was not fully consumed.
func CheckBufferNotZeros(trailing []byte) error {
	if len(trailing) > MAX_PADDING {
		return fmt.Errorf("%w: %d trailing bytes exceed maximum padding of %d", ErrTrailingData, len(trailing), MAX_PADDING)
	}
	for i, b := range trailing {
		if b != 0 {
			return fmt.Errorf("%w: found non-zero byte 0x%02x at offset %d", ErrTrailingData, b, i)
		}
	}
	return nil
}

// acceptsNull reports whether a null payload is a valid value for dst, which
// points at the registered type. Only slices and maps have a usable nil.
func acceptsNull(dst any) bool {
	switch reflect.TypeOf(dst).Elem().Kind() {
	case reflect.Slice, reflect.Map:
		return true
	}
	return false
}

// nullPayload is the error formats return for a null that dst cannot hold.
func nullPayload(dst any) error {
	return fmt.Errorf("%w for %s", ErrNullPayload, reflect.TypeOf(dst).Elem())
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
