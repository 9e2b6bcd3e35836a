package typecodec

import (
	"fmt"
	"io"
)

// Frames is a batch of frames stored back to back. When Alignment is greater
// than one, every frame is padded with zeros to a multiple of it, so each
// frame starts on an aligned offset.
//
// Key 0 is reserved, so a zeroed header can never pass for a frame: a batch
// holding one fails with ErrReservedKey, on write and on read.
type Frames struct {
	Items     []*Frame
	Alignment int
}

// Statically ensure that Frames implements BinaryCodec.
var _ BinaryCodec = (*Frames)(nil)

func (l *Frames) Len() int { return len(l.Items) }

// Size returns the encoded size of the batch, padding included.
func (l *Frames) Size() int {
	total := 0
	for _, item := range l.Items {
		total += l.padded(item.Size())
	}
	return total
}

func (l *Frames) padded(n int) int {
	if l.Alignment > 1 {
		return Roundup(n, l.Alignment)
	}
	return n
}

// WriteTo writes every frame followed by its padding.
func (l *Frames) WriteTo(writer io.Writer) (int64, error) {
	w := newWireWriter(writer)
	for i, item := range l.Items {
		if item.Key == 0 {
			w.setError(fmt.Errorf("%w: item %d", ErrReservedKey, i))
			break
		}
		w.WriteFrom(item)
		w.Align(l.Alignment)
	}
	return w.Result()
}

// ReadFrom appends frames read from reader until it reports io.EOF at a
// frame boundary. EOF inside a frame or its padding is io.ErrUnexpectedEOF.
func (l *Frames) ReadFrom(reader io.Reader) (int64, error) {
	r := newWireReader(reader)
	for {
		item := new(Frame)
		item.decode(r, DefaultMaxFrameSize)
		if r.IsEOF() {
			return r.Count(), nil
		}
		if r.Err() != nil {
			return r.Result()
		}
		if item.Key == 0 {
			r.setError(fmt.Errorf("%w: frame at offset %d", ErrReservedKey, r.mark))
			return r.Result()
		}
		if l.Alignment > 1 {
			r.Skip(Roundup(r.Count(), int64(l.Alignment)) - r.Count())
			if r.Err() != nil {
				return r.Result()
			}
		}
		l.Items = append(l.Items, item)
	}
}

// --- Boilerplate implementations ---

func (l *Frames) MarshalBinary() ([]byte, error) {
	return MarshalBinaryGeneric(l)
}

func (l *Frames) UnmarshalBinary(data []byte) error {
	return UnmarshalBinaryGeneric(l, data)
}

func (l *Frames) MarshalTo(buf []byte) (int, error) {
	return MarshalToGeneric(l, buf)
}
