package typecodec

import (
	"bytes"
	"encoding/json"
	"io"
)

type jsonFormat struct{}

var jsonNull = []byte("null")

// JSON returns the reference format: payloads are raw JSON documents.
// Decoding is strict; unknown object fields and trailing data are rejected,
// and so is null unless the registered type is a slice or map.
func JSON() Format[json.RawMessage] { return jsonFormat{} }

func (jsonFormat) Name() string { return "json" }

func (jsonFormat) Encode(v any) (json.RawMessage, error) {
	buf := bytesBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bytesBufPool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder terminates every value with a newline.
	return bytes.Clone(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

func (jsonFormat) Decode(in json.RawMessage, dst any) error {
	if bytes.Equal(bytes.TrimSpace(in), jsonNull) && !acceptsNull(dst) {
		return nullPayload(dst)
	}
	dec := json.NewDecoder(bytes.NewReader(in))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return ErrTruncatedData
		}
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return ErrTrailingData
	}
	return nil
}
