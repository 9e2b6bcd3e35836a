package typecodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// binding is the type-erased view of a Kind that Value goes through.
type binding interface {
	serializeAny(v any) (any, error)
	deserializeJSON(data []byte) (any, error)
	deserializeYAML(node *yaml.Node) (any, error)
}

// bindings maps an interface type to its default kind.
var bindings = xsync.NewMap[reflect.Type, binding]()

// Bind makes k the default kind for its interface type, which lets Value[U]
// marshal itself. An interface can be bound once.
func (k *Kind[U, I]) Bind() error {
	existing, loaded := bindings.LoadOrStore(k.iface, k)
	if loaded && existing != binding(k) {
		return fmt.Errorf("%w: %s already bound", ErrDuplicateKind, k.iface)
	}
	k.log.Debug("kind bound", zap.String("interface", k.iface.String()))
	return nil
}

func (k *Kind[U, I]) serializeAny(v any) (any, error) {
	u, ok := v.(U)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a %s", ErrNotImplemented, v, k.iface)
	}
	return k.Serialize(u)
}

func (k *Kind[U, I]) deserializeJSON(data []byte) (any, error) {
	var env Envelope[I]
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return k.Deserialize(env)
}

func (k *Kind[U, I]) deserializeYAML(node *yaml.Node) (any, error) {
	var env Envelope[I]
	if err := node.Decode(&env); err != nil {
		return nil, err
	}
	return k.Deserialize(env)
}

func bindingFor[U any]() (binding, error) {
	iface := reflect.TypeFor[U]()
	b, ok := bindings.Load(iface)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBinding, iface)
	}
	return b, nil
}

// Value holds an interface value so it can sit in a struct field or slice and
// be marshaled through the kind bound to U. A nil V marshals as null.
//
//	type Scene struct {
//		Shapes []typecodec.Value[Shape] `json:"shapes"`
//	}
type Value[U any] struct {
	V U
}

// Of wraps v.
func Of[U any](v U) Value[U] { return Value[U]{V: v} }

// MarshalJSON implements json.Marshaler.
func (v Value[U]) MarshalJSON() ([]byte, error) {
	if any(v.V) == nil {
		return []byte("null"), nil
	}
	b, err := bindingFor[U]()
	if err != nil {
		return nil, err
	}
	env, err := b.serializeAny(v.V)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value[U]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero U
		v.V = zero
		return nil
	}
	b, err := bindingFor[U]()
	if err != nil {
		return err
	}
	out, err := b.deserializeJSON(data)
	if err != nil {
		return err
	}
	v.V = out.(U)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value[U]) MarshalYAML() (any, error) {
	if any(v.V) == nil {
		return nil, nil
	}
	b, err := bindingFor[U]()
	if err != nil {
		return nil, err
	}
	return b.serializeAny(v.V)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value[U]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		var zero U
		v.V = zero
		return nil
	}
	b, err := bindingFor[U]()
	if err != nil {
		return err
	}
	out, err := b.deserializeYAML(node)
	if err != nil {
		return err
	}
	v.V = out.(U)
	return nil
}
