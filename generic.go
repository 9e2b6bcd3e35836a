package typecodec

import (
	"fmt"
	"io"
)

// sizedWriterTo is the part of BinaryCodec the marshal helpers need.
type sizedWriterTo interface {
	Size() int
	io.WriterTo
}

// sizedReaderFrom is the part of BinaryCodec the unmarshal helper needs.
type sizedReaderFrom interface {
	Size() int
	io.ReaderFrom
}

// MarshalBinaryGeneric implements encoding.BinaryMarshaler for any type that
// can report its size and stream itself.
func MarshalBinaryGeneric[T sizedWriterTo](v T) ([]byte, error) {
	expectedSize := v.Size()
	w := NewBytesWriter(make([]byte, expectedSize))
	n, err := v.WriteTo(w)
	if err != nil {
		return nil, err
	}
	if n < int64(expectedSize) {
		return nil, fmt.Errorf("%w: expected %d bytes, wrote %d", ErrTruncatedData, expectedSize, n)
	}
	return w.Bytes(), nil
}

// MarshalToGeneric implements MarshalTo on top of Size and WriteTo.
func MarshalToGeneric[T sizedWriterTo](v T, p []byte) (int, error) {
	size := v.Size()
	if len(p) < size {
		return 0, io.ErrShortWrite
	}
	n, err := v.WriteTo(NewBytesWriter(p[:size]))
	if err != nil {
		return int(n), err
	}
	if n < int64(size) {
		return int(n), io.ErrShortWrite
	}
	return int(n), nil
}

// UnmarshalBinaryGeneric adapts a stream-based ReadFrom to UnmarshalBinary.
// Bytes left after the value must be zero padding; anything else is rejected
// so that ambiguous or hostile payloads never parse.
func UnmarshalBinaryGeneric[T sizedReaderFrom](v T, data []byte) error {
	r := NewBytesReader(data)
	n, err := v.ReadFrom(r)
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: empty input", ErrTruncatedData)
		}
		return err
	}
	if n < int64(v.Size()) {
		return fmt.Errorf("%w: expected at least %d bytes, read %d", ErrTruncatedData, v.Size(), n)
	}
	return CheckBufferNotZeros(r.Remaining())
}
