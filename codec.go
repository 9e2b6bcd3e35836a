// Package typecodec serializes values held behind an interface and rebuilds
// them as the right concrete type without the reader naming that type.
//
// Every concrete type opts in by registering with a Kind. Registration gives
// the type a persistent TypeKey and stores a closure that decodes a payload
// into that exact type. Serialize emits an Envelope, the pair (key, payload);
// Deserialize looks the key up and runs the closure. Unknown keys are
// reported as errors and are never trusted.
//
// Registration belongs to startup. Call Freeze once it is done; from then on
// the table is read-only and every lookup is a lock-free read.
package typecodec

import (
	"encoding"
	"io"
)

// Format is the intermediate codec a Kind encodes payloads with. I is the
// intermediate representation, e.g. json.RawMessage or a yaml.Node tree.
// Implementations must be safe for concurrent use.
type Format[I any] interface {
	// Name identifies the format for diagnostics.
	Name() string
	// Encode converts v into the intermediate representation.
	Encode(v any) (I, error)
	// Decode fills dst, which is always a pointer to the registered type.
	// Values of the wrong shape must be rejected, not coerced.
	Decode(in I, dst any) error
}

// Sizer is an interface for types that can report their binary size.
// This is useful for pre-allocating buffers before encoding.
type Sizer interface {
	// Size returns the size of the type in bytes when binary encoded.
	Size() int
}

// Marshaler is the encoding half of the binary contract frames follow.
type Marshaler interface {
	encoding.BinaryMarshaler
	// io.WriterTo streams the value without building it in memory first.
	io.WriterTo

	// MarshalTo encodes into a pre-allocated buffer, returning
	// io.ErrShortWrite if the buffer is too small.
	MarshalTo(buf []byte) (int, error)
}

// Unmarshaler is the decoding half of the binary contract.
type Unmarshaler interface {
	encoding.BinaryUnmarshaler
	io.ReaderFrom
}

// BinaryCodec is a complete, self-sizing binary encoder/decoder.
type BinaryCodec interface {
	Sizer
	Marshaler
	Unmarshaler
}
