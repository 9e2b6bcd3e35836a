package typecodec

import (
	"fmt"
	"io"
	"math"
)

// FrameHeaderSize is the size of the key and length fields preceding a payload.
const FrameHeaderSize = 12

// DefaultMaxFrameSize bounds the payload length a reader accepts, so a
// corrupted or hostile length field cannot force a huge allocation.
const DefaultMaxFrameSize = 16 << 20

// Frame is the binary form of an envelope whose payload is bytes:
//
//	key     uint64, big-endian
//	length  uint32, big-endian
//	payload length bytes
type Frame struct {
	Key     TypeKey
	Payload []byte
}

// Statically assert that Frame implements BinaryCodec.
var _ BinaryCodec = (*Frame)(nil)

// FrameOf converts an envelope with a byte payload (json.RawMessage,
// cbor.RawMessage, []byte) to a frame. The payload is not copied.
func FrameOf[I ~[]byte](env Envelope[I]) *Frame {
	return &Frame{Key: env.Key, Payload: []byte(env.Payload)}
}

// FrameEnvelope converts a frame back to an envelope. The payload is not copied.
func FrameEnvelope[I ~[]byte](f *Frame) Envelope[I] {
	return Envelope[I]{Key: f.Key, Payload: I(f.Payload)}
}

// Size returns the encoded size of the frame.
func (f *Frame) Size() int { return FrameHeaderSize + len(f.Payload) }

// WriteTo implements io.WriterTo.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	if uint64(len(f.Payload)) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(f.Payload))
	}
	fw := newWireWriter(w)
	fw.WriteUint64(uint64(f.Key))
	fw.WriteUint32(uint32(len(f.Payload)))
	fw.WriteBytes(f.Payload)
	return fw.Result()
}

// ReadFrom implements io.ReaderFrom. It returns io.EOF when r is already at
// its end and io.ErrUnexpectedEOF when it ends inside the frame.
func (f *Frame) ReadFrom(r io.Reader) (int64, error) {
	wr := newWireReader(r)
	f.decode(wr, DefaultMaxFrameSize)
	return wr.Result()
}

// decode reads one frame from wr, leaving any error latched in wr.
func (f *Frame) decode(wr *wireReader, maxSize int) {
	var key uint64
	var length uint32

	wr.Begin()
	wr.ReadUint64(&key)
	wr.ReadUint32(&length)
	if wr.Err() != nil {
		return
	}
	if int64(length) > int64(maxSize) {
		wr.setError(fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, length, maxSize))
		return
	}
	payload := wr.ReadBytes(int(length))
	if wr.Err() != nil {
		return
	}
	if payload == nil {
		payload = []byte{}
	}
	f.Key, f.Payload = TypeKey(key), payload
}

func (f *Frame) MarshalBinary() ([]byte, error) {
	return MarshalBinaryGeneric(f)
}

func (f *Frame) MarshalTo(buf []byte) (int, error) {
	return MarshalToGeneric(f, buf)
}

func (f *Frame) UnmarshalBinary(data []byte) error {
	return UnmarshalBinaryGeneric(f, data)
}
