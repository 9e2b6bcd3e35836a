package typecodec

import (
	"errors"
	"fmt"
	"io"
)

// StreamOption configures an Encoder or Decoder.
type StreamOption func(*streamOptions)

type streamOptions struct {
	maxFrameSize int
	alignment    int
}

func newStreamOptions(opts []StreamOption) streamOptions {
	o := streamOptions{maxFrameSize: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMaxFrameSize sets the largest payload a Decoder accepts.
func WithMaxFrameSize(n int) StreamOption {
	return func(o *streamOptions) {
		if n > 0 {
			o.maxFrameSize = n
		}
	}
}

// WithAlignment pads every frame to a multiple of n bytes, which must be a
// power of two. Encoder and Decoder must agree on it.
func WithAlignment(n int) StreamOption {
	return func(o *streamOptions) { o.alignment = n }
}

// Encoder writes a stream of interface values as frames.
// An Encoder is not safe for concurrent use.
type Encoder[U any, I ~[]byte] struct {
	kind *Kind[U, I]
	w    *wireWriter
	opts streamOptions
}

// NewEncoder returns an Encoder writing to w. Writes are not buffered.
func NewEncoder[U any, I ~[]byte](k *Kind[U, I], w io.Writer, opts ...StreamOption) *Encoder[U, I] {
	return &Encoder[U, I]{kind: k, w: newWireWriter(w), opts: newStreamOptions(opts)}
}

// Encode writes v as one frame. A serialization error leaves the stream
// untouched; a write error is sticky and returned by every later call.
func (e *Encoder[U, I]) Encode(v U) error {
	if err := e.w.Err(); err != nil {
		return err
	}
	env, err := e.kind.Serialize(v)
	if err != nil {
		return err
	}
	e.w.WriteFrom(FrameOf(env))
	e.w.Align(e.opts.alignment)
	return e.w.Err()
}

// Count returns the number of bytes written so far.
func (e *Encoder[U, I]) Count() int64 { return e.w.Count() }

// Decoder reads a stream of frames written by an Encoder.
// A Decoder is not safe for concurrent use.
type Decoder[U any, I ~[]byte] struct {
	kind *Kind[U, I]
	r    *wireReader
	opts streamOptions
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder[U any, I ~[]byte](k *Kind[U, I], r io.Reader, opts ...StreamOption) *Decoder[U, I] {
	return &Decoder[U, I]{kind: k, r: newWireReader(r), opts: newStreamOptions(opts)}
}

// Decode reads the next value. It returns io.EOF at the end of the stream.
//
// Framing errors (truncation, oversized frames, bad padding, key 0) are sticky,
// since the stream can no longer be followed. A *DecodeError only concerns
// the current frame; the caller may log it and keep decoding.
func (d *Decoder[U, I]) Decode() (U, error) {
	var zero U
	var f Frame
	f.decode(d.r, d.opts.maxFrameSize)
	if d.opts.alignment > 1 {
		d.r.Skip(Roundup(d.r.Count(), int64(d.opts.alignment)) - d.r.Count())
	}
	if err := d.r.Err(); err != nil {
		return zero, err
	}
	if f.Key == 0 {
		d.r.setError(fmt.Errorf("%w: frame ending at offset %d", ErrReservedKey, d.r.Count()))
		return zero, d.r.Err()
	}
	return d.kind.Deserialize(FrameEnvelope[I](&f))
}

// Count returns the number of bytes consumed so far.
func (d *Decoder[U, I]) Count() int64 { return d.r.Count() }

// DecodeAll reads values until the end of the stream. Values that fail with
// a *DecodeError are passed to skip, if set, and decoding continues;
// otherwise the first error is returned.
func (d *Decoder[U, I]) DecodeAll(skip func(error)) ([]U, error) {
	var out []U
	for {
		v, err := d.Decode()
		switch {
		case err == nil:
			out = append(out, v)
		case err == io.EOF:
			return out, nil
		case skip != nil && isDecodeError(err):
			skip(err)
		default:
			return out, err
		}
	}
}

func isDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
