package typecodec

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKey indicates that an envelope carries a key with no entry in the kind's table.
	// This covers stale registries, corrupted data and hostile input alike.
	ErrUnknownKey = errors.New("typecodec: unknown type key")

	// ErrPayloadInvalid indicates that the format rejected the payload for the concrete type
	// the key resolved to (shape mismatch, truncated data, wrong scalar type).
	ErrPayloadInvalid = errors.New("typecodec: invalid payload")

	// ErrInternal indicates a registry self-consistency failure. It signals a bug, not bad input.
	ErrInternal = errors.New("typecodec: internal registry inconsistency")

	// ErrDuplicateKey indicates that two distinct concrete types were assigned the same key.
	ErrDuplicateKey = errors.New("typecodec: duplicate type key")

	// ErrDuplicateKind indicates that a kind name, or a default binding for an interface, is already taken.
	ErrDuplicateKind = errors.New("typecodec: duplicate kind")

	// ErrKeyspaceExhausted indicates that probing found no free key.
	ErrKeyspaceExhausted = errors.New("typecodec: key space exhausted while probing")

	// ErrFrozen indicates a registration attempt on a kind after Freeze.
	ErrFrozen = errors.New("typecodec: kind is frozen")

	// ErrNilFormat indicates that a kind was declared without a format.
	ErrNilFormat = errors.New("typecodec: kind declared with a nil format")

	// ErrNotInterface indicates that a kind was declared over a non-interface type.
	ErrNotInterface = errors.New("typecodec: kind type parameter is not an interface")

	// ErrNotConcrete indicates a registration of an interface type.
	ErrNotConcrete = errors.New("typecodec: registered type must be concrete")

	// ErrNotImplemented indicates a registration of a type that does not implement the kind's interface.
	ErrNotImplemented = errors.New("typecodec: type does not implement the kind interface")

	// ErrUnregistered indicates a Serialize call for a concrete type that was never registered.
	ErrUnregistered = errors.New("typecodec: type not registered")

	// ErrNilValue indicates a Serialize call with a nil interface value.
	ErrNilValue = errors.New("typecodec: cannot serialize nil value")

	// ErrEncode indicates that the format failed to encode a value.
	ErrEncode = errors.New("typecodec: encode failed")

	// ErrNullPayload indicates a null payload for a type whose zero value is not a valid
	// decoded value (anything but slices and maps, including nil pointers).
	ErrNullPayload = errors.New("typecodec: null payload")

	// ErrReservedKey indicates a use of key 0, which never identifies a type.
	ErrReservedKey = errors.New("typecodec: key 0 is reserved")

	// ErrMalformedEnvelope indicates a wire value that is not a [key, payload] pair.
	ErrMalformedEnvelope = errors.New("typecodec: malformed envelope")

	// ErrNoBinding indicates that no kind is bound to the interface type of a Value.
	ErrNoBinding = errors.New("typecodec: no kind bound to interface")

	// ErrNotFixedSize indicates a Binary format call on a type with variable-size fields.
	ErrNotFixedSize = errors.New("typecodec: type is not fixed-size")

	// ErrFrameTooLarge indicates a frame whose declared payload length exceeds the decoder's limit.
	ErrFrameTooLarge = errors.New("typecodec: frame exceeds maximum size")

	// ErrInvalidWrite indicates that an io.Writer returned an invalid (negative) count from Write.
	ErrInvalidWrite = errors.New("typecodec: writer returned invalid count from Write")

	// ErrTrailingData is returned when non-zero bytes are found after the expected end of
	// a binary value, indicating a parsing error or malformed data.
	ErrTrailingData = errors.New("typecodec: non-zero trailing data found after decoding")

	// ErrTruncatedData indicates that the data ended before all expected bytes were read.
	ErrTruncatedData = errors.New("typecodec: truncated data")
)

// DecodeError reports why an envelope could not be turned back into a value.
// Err is one of ErrUnknownKey, ErrPayloadInvalid or ErrInternal; Cause carries the
// format's own error when there is one.
type DecodeError struct {
	Kind  string
	Key   TypeKey
	Type  string // concrete type name, empty when the key is unknown
	Err   error
	Cause error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%v: kind %q key %d", e.Err, e.Kind, e.Key)
	if e.Type != "" {
		msg += " (" + e.Type + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// RegisterError reports a failed registration. Registration errors are meant to abort startup.
type RegisterError struct {
	Kind     string
	Type     string
	Key      TypeKey
	Existing string // type already holding Key, for ErrDuplicateKey
	Err      error
}

func (e *RegisterError) Error() string {
	if e.Existing != "" {
		return fmt.Sprintf("%v: kind %q key %d wanted by %s, held by %s", e.Err, e.Kind, e.Key, e.Type, e.Existing)
	}
	return fmt.Sprintf("%v: kind %q type %s", e.Err, e.Kind, e.Type)
}

func (e *RegisterError) Unwrap() error { return e.Err }
