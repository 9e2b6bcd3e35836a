package typecodec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Envelope is the unit of serialization: the concrete type's key and its
// payload in the kind's intermediate form. On the wire it is the two-element
// sequence [key, payload] in JSON, YAML and CBOR alike.
//
// An envelope is only meaningful against the kind that produced it, and only
// valid while that kind has an entry for Key.
type Envelope[I any] struct {
	Key     TypeKey
	Payload I
}

// MarshalJSON implements json.Marshaler.
func (e Envelope[I]) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{uint64(e.Key), e.Payload})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope[I]) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if len(parts) != 2 {
		return fmt.Errorf("%w: want 2 elements, got %d", ErrMalformedEnvelope, len(parts))
	}
	var key uint64
	if err := json.Unmarshal(parts[0], &key); err != nil {
		return fmt.Errorf("%w: key: %w", ErrMalformedEnvelope, err)
	}
	// Tree payloads keep numbers as json.Number so 64-bit integers survive.
	var payload I
	dec := json.NewDecoder(bytes.NewReader(parts[1]))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("%w: payload: %w", ErrMalformedEnvelope, err)
	}
	e.Key, e.Payload = TypeKey(key), payload
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (e Envelope[I]) MarshalCBOR() ([]byte, error) {
	return cborEnc.Marshal([2]any{uint64(e.Key), e.Payload})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (e *Envelope[I]) UnmarshalCBOR(data []byte) error {
	var parts []cbor.RawMessage
	if err := cborDec.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if len(parts) != 2 {
		return fmt.Errorf("%w: want 2 elements, got %d", ErrMalformedEnvelope, len(parts))
	}
	var key uint64
	if err := cborDec.Unmarshal(parts[0], &key); err != nil {
		return fmt.Errorf("%w: key: %w", ErrMalformedEnvelope, err)
	}
	var payload I
	if err := cborDec.Unmarshal(parts[1], &payload); err != nil {
		return fmt.Errorf("%w: payload: %w", ErrMalformedEnvelope, err)
	}
	e.Key, e.Payload = TypeKey(key), payload
	return nil
}

// MarshalYAML implements yaml.Marshaler. A json.RawMessage payload is
// embedded as YAML rather than as bytes.
func (e Envelope[I]) MarshalYAML() (any, error) {
	var payload any = e.Payload
	switch p := payload.(type) {
	case yaml.Node:
		payload = &p
	case json.RawMessage:
		var doc yaml.Node
		if err := yaml.Unmarshal(p, &doc); err != nil {
			return nil, fmt.Errorf("%w: payload: %w", ErrMalformedEnvelope, err)
		}
		if len(doc.Content) != 1 {
			return nil, fmt.Errorf("%w: payload: empty document", ErrMalformedEnvelope)
		}
		payload = doc.Content[0]
	}
	return []any{uint64(e.Key), payload}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Envelope[I]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: line %d: not a sequence", ErrMalformedEnvelope, node.Line)
	}
	if len(node.Content) != 2 {
		return fmt.Errorf("%w: want 2 elements, got %d", ErrMalformedEnvelope, len(node.Content))
	}
	var key uint64
	if err := node.Content[0].Decode(&key); err != nil {
		return fmt.Errorf("%w: key: %w", ErrMalformedEnvelope, err)
	}
	var payload I
	if raw, ok := any(&payload).(*json.RawMessage); ok {
		var tree any
		if err := node.Content[1].Decode(&tree); err != nil {
			return fmt.Errorf("%w: payload: %w", ErrMalformedEnvelope, err)
		}
		b, err := json.Marshal(tree)
		if err != nil {
			return fmt.Errorf("%w: payload: %w", ErrMalformedEnvelope, err)
		}
		*raw = b
	} else if err := node.Content[1].Decode(&payload); err != nil {
		return fmt.Errorf("%w: payload: %w", ErrMalformedEnvelope, err)
	}
	e.Key, e.Payload = TypeKey(key), payload
	return nil
}
