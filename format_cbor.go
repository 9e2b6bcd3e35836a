package typecodec

import "github.com/fxamacker/cbor/v2"

var (
	// cborEnc is deterministic: equal values always produce equal bytes.
	cborEnc = must(cbor.CanonicalEncOptions().EncMode())
	cborDec = must(cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode())
)

type cborFormat struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a format with canonical CBOR payloads (RFC 8949 core
// deterministic encoding). Duplicate map keys and unknown fields are rejected.
func CBOR() Format[cbor.RawMessage] { return cborFormat{enc: cborEnc, dec: cborDec} }

func (cborFormat) Name() string { return "cbor" }

func (c cborFormat) Encode(v any) (cbor.RawMessage, error) {
	b, err := c.enc.Marshal(v)
	if err != nil {
		return nil, err
	}
	return cbor.RawMessage(b), nil
}

func (c cborFormat) Decode(in cbor.RawMessage, dst any) error {
	// 0xf6 is null, 0xf7 undefined.
	if len(in) == 1 && (in[0] == 0xf6 || in[0] == 0xf7) && !acceptsNull(dst) {
		return nullPayload(dst)
	}
	return c.dec.Unmarshal(in, dst)
}
