package typecodec

import (
	"encoding/binary"
	"io"
)

// wireWriter writes big-endian frame fields and tracks the first error.
// After an error, all subsequent writes become no-ops. It does not buffer;
// wrap slow writers in a bufio.Writer before handing them over.
type wireWriter struct {
	w     io.Writer
	count int64 // total bytes written
	err   error // first error encountered
	order binary.ByteOrder
}

func newWireWriter(w io.Writer) *wireWriter {
	return &wireWriter{w: w, order: Order}
}

// Write implements the io.Writer interface.
func (w *wireWriter) Write(buf []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.w.Write(buf)
	if n < 0 {
		n, err = 0, ErrInvalidWrite
	}
	w.count += int64(n)
	if err == nil && n < len(buf) {
		err = io.ErrShortWrite
	}
	w.setError(err)
	return n, w.err
}

// setError records the first non-nil error, preserving the root cause.
func (w *wireWriter) setError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

func (w *wireWriter) Count() int64 { return w.count }
func (w *wireWriter) Err() error   { return w.err }

// Result returns the final count and error state.
func (w *wireWriter) Result() (int64, error) {
	return w.count, w.err
}

// WriteFrom writes a value that knows how to stream itself.
func (w *wireWriter) WriteFrom(wt io.WriterTo) {
	if wt == nil || w.err != nil {
		return
	}
	n, err := wt.WriteTo(w.w)
	w.count += n
	w.setError(err)
}

func (w *wireWriter) WriteBytes(buf []byte) {
	if len(buf) == 0 || w.err != nil {
		return
	}
	_, _ = w.Write(buf)
}

func (w *wireWriter) WriteUint32(v uint32) {
	if w.err != nil {
		return
	}
	var buf [4]byte
	w.order.PutUint32(buf[:], v)
	_, _ = w.Write(buf[:])
}

func (w *wireWriter) WriteUint64(v uint64) {
	if w.err != nil {
		return
	}
	var buf [8]byte
	w.order.PutUint64(buf[:], v)
	_, _ = w.Write(buf[:])
}

// WriteZeros writes n zero bytes of padding.
func (w *wireWriter) WriteZeros(n int64) {
	for n > 0 && w.err == nil {
		chunk := min(n, BUFFER_SIZE)
		_, _ = w.Write(empty[:chunk])
		n -= chunk
	}
}

// Align pads with zeros until the count is a multiple of n.
func (w *wireWriter) Align(n int) {
	if n > 1 {
		w.WriteZeros(Roundup(w.count, int64(n)) - w.count)
	}
}

// wireReader is the reading counterpart of wireWriter.
type wireReader struct {
	r     io.Reader
	count int64 // total bytes read
	mark  int64 // count at the start of the current value
	err   error // first error encountered
	order binary.ByteOrder
}

func newWireReader(r io.Reader) *wireReader {
	return &wireReader{r: r, order: Order}
}

// Begin marks the start of a value for the EOF rule of readFull.
func (r *wireReader) Begin() { r.mark = r.count }

func (r *wireReader) Count() int64 { return r.count }
func (r *wireReader) Err() error   { return r.err }

// IsEOF reports a clean end of stream: nothing was read before EOF.
func (r *wireReader) IsEOF() bool { return r.err == io.EOF }

// Result returns the total bytes read and the final error state.
func (r *wireReader) Result() (int64, error) {
	return r.count, r.err
}

func (r *wireReader) setError(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// readFull fills buf. EOF before the first byte of the value is reported as
// io.EOF; EOF anywhere later is io.ErrUnexpectedEOF, since a partial value is
// different from a clean end of stream.
func (r *wireReader) readFull(buf []byte) bool {
	if r.err != nil {
		return false
	}
	n, err := io.ReadFull(r.r, buf)
	if err == io.EOF && r.count > r.mark {
		err = io.ErrUnexpectedEOF
	}
	r.count += int64(n)
	r.setError(err)
	return r.err == nil
}

func (r *wireReader) ReadUint32(dest *uint32) {
	var buf [4]byte
	if r.readFull(buf[:]) {
		*dest = r.order.Uint32(buf[:])
	}
}

func (r *wireReader) ReadUint64(dest *uint64) {
	var buf [8]byte
	if r.readFull(buf[:]) {
		*dest = r.order.Uint64(buf[:])
	}
}

// ReadBytes reads n bytes and returns a new byte slice.
func (r *wireReader) ReadBytes(n int) []byte {
	if n <= 0 || r.err != nil {
		return nil
	}
	buf := make([]byte, n)
	if !r.readFull(buf) {
		return nil
	}
	return buf
}

// Skip discards n bytes of padding, which must all be zero.
func (r *wireReader) Skip(n int64) {
	for n > 0 && r.err == nil {
		var buf [64]byte
		chunk := buf[:min(n, int64(len(buf)))]
		if !r.readFull(chunk) {
			return
		}
		r.setError(CheckBufferNotZeros(chunk))
		n -= int64(len(chunk))
	}
}
