package typecodec

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// kinds holds every kind name declared in the process. Names feed the key
// hash, so two kinds sharing a name would share a key space.
var kinds = xsync.NewMap[string, reflect.Type]()

// Kinds returns the names of all declared kinds, sorted.
func Kinds() []string {
	names := make([]string, 0, kinds.Size())
	kinds.Range(func(name string, _ reflect.Type) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

// Entry is one row of a kind's table.
type Entry[U, I any] struct {
	Key  TypeKey
	Type reflect.Type // identity of the registered concrete type
	Name string       // fully-qualified type name

	decode func(I) (U, error)
}

// Reconstruct decodes in into a fresh value of the entry's concrete type.
// A panic raised by the format is returned as an error.
func (e *Entry[U, I]) Reconstruct(in I) (u U, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero U
			u, err = zero, fmt.Errorf("format panicked: %v", r)
		}
	}()
	return e.decode(in)
}

// table is an immutable snapshot. Registration publishes a new one.
type table[U, I any] struct {
	byKey  map[TypeKey]*Entry[U, I]
	byType map[reflect.Type]*Entry[U, I]
}

func (t *table[U, I]) with(e *Entry[U, I]) *table[U, I] {
	next := &table[U, I]{
		byKey:  make(map[TypeKey]*Entry[U, I], len(t.byKey)+1),
		byType: make(map[reflect.Type]*Entry[U, I], len(t.byType)+1),
	}
	for k, v := range t.byKey {
		next.byKey[k] = v
	}
	for k, v := range t.byType {
		next.byType[k] = v
	}
	next.byKey[e.Key] = e
	next.byType[e.Type] = e
	return next
}

// Kind is a capability kind: an independent key space for the concrete
// types implementing the interface U, whose payloads are encoded as I.
type Kind[U, I any] struct {
	name   string
	iface  reflect.Type
	format Format[I]
	alloc  allocator
	log    *zap.Logger

	mu     sync.Mutex // serializes registration
	frozen atomic.Bool
	tab    atomic.Pointer[table[U, I]]
}

// KindOption configures a Kind.
type KindOption func(*kindOptions)

type kindOptions struct {
	logger    *zap.Logger
	policy    KeyPolicy
	collision CollisionPolicy
}

// WithLogger sets the logger registration events are reported to.
func WithLogger(l *zap.Logger) KindOption {
	return func(o *kindOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithKeyPolicy selects how keys are allocated. The default is KeyHash.
func WithKeyPolicy(p KeyPolicy) KindOption {
	return func(o *kindOptions) { o.policy = p }
}

// WithCollisionPolicy selects how hash collisions are resolved. The default
// is CollisionReject.
func WithCollisionPolicy(p CollisionPolicy) KindOption {
	return func(o *kindOptions) { o.collision = p }
}

// NewKind declares a kind named name for the interface type U.
// The name must be unique within the process.
func NewKind[U, I any](name string, format Format[I], opts ...KindOption) (*Kind[U, I], error) {
	iface := reflect.TypeFor[U]()
	if iface.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%w: %s", ErrNotInterface, iface)
	}
	if format == nil {
		return nil, ErrNilFormat
	}

	o := kindOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	if _, loaded := kinds.LoadOrStore(name, iface); loaded {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateKind, name)
	}

	k := &Kind[U, I]{
		name:   name,
		iface:  iface,
		format: format,
		alloc:  allocator{kind: name, policy: o.policy, collision: o.collision},
		log:    o.logger.With(zap.String("kind", name)),
	}
	k.tab.Store(&table[U, I]{
		byKey:  map[TypeKey]*Entry[U, I]{},
		byType: map[reflect.Type]*Entry[U, I]{},
	})
	k.log.Debug("kind declared", zap.String("interface", iface.String()), zap.String("format", format.Name()))
	return k, nil
}

// MustKind is like NewKind but panics on error.
func MustKind[U, I any](name string, format Format[I], opts ...KindOption) *Kind[U, I] {
	k, err := NewKind[U](name, format, opts...)
	if err != nil {
		panic(err)
	}
	return k
}

// Register adds T to k and returns its key. Registering the same type again
// returns the same key. T must be a concrete type implementing U.
func Register[T, U, I any](k *Kind[U, I]) (TypeKey, error) {
	return register[T](k, nil)
}

// RegisterAs is like Register but pins T to key. Pinned keys survive
// renames and rebuilds; they are never probed, so a taken key is an error.
func RegisterAs[T, U, I any](k *Kind[U, I], key TypeKey) (TypeKey, error) {
	return register[T](k, &key)
}

// MustRegister is like Register but panics on error. Registration failures
// are meant to abort startup.
func MustRegister[T, U, I any](k *Kind[U, I]) TypeKey {
	key, err := register[T](k, nil)
	if err != nil {
		panic(err)
	}
	return key
}

func register[T, U, I any](k *Kind[U, I], pinned *TypeKey) (TypeKey, error) {
	t := reflect.TypeFor[T]()
	name := typeName(t)
	if t.Kind() == reflect.Interface {
		return 0, &RegisterError{Kind: k.name, Type: name, Err: ErrNotConcrete}
	}
	if !t.Implements(k.iface) {
		return 0, &RegisterError{Kind: k.name, Type: name, Err: ErrNotImplemented}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	cur := k.tab.Load()
	if e, ok := cur.byType[t]; ok {
		if pinned != nil && *pinned != e.Key {
			return 0, &RegisterError{Kind: k.name, Type: name, Key: *pinned, Existing: fmt.Sprintf("itself under key %d", e.Key), Err: ErrDuplicateKey}
		}
		return e.Key, nil
	}
	if k.frozen.Load() {
		return 0, &RegisterError{Kind: k.name, Type: name, Err: ErrFrozen}
	}

	key, err := k.alloc.allocate(t, pinned, len(cur.byKey), func(key TypeKey) (reflect.Type, bool) {
		e, ok := cur.byKey[key]
		if !ok {
			return nil, false
		}
		return e.Type, true
	})
	if err != nil {
		k.log.Debug("registration rejected", zap.String("type", name), zap.Error(err))
		return 0, err
	}

	k.tab.Store(cur.with(&Entry[U, I]{
		Key:    key,
		Type:   t,
		Name:   name,
		decode: reconstruct[T, U](k.format),
	}))
	k.log.Debug("type registered", zap.String("type", name), zap.Uint64("key", uint64(key)), zap.Bool("pinned", pinned != nil))
	return key, nil
}

// reconstruct builds the closure stored in an entry: decode into a fresh T
// and convert it to the interface.
func reconstruct[T, U, I any](f Format[I]) func(I) (U, error) {
	isPtr := reflect.TypeFor[T]().Kind() == reflect.Pointer
	return func(in I) (U, error) {
		var zero U
		var v T
		if err := f.Decode(in, &v); err != nil {
			return zero, err
		}
		if isPtr && reflect.ValueOf(&v).Elem().IsNil() {
			return zero, fmt.Errorf("%w for %s", ErrNullPayload, reflect.TypeFor[T]())
		}
		u, ok := any(v).(U)
		if !ok {
			return zero, fmt.Errorf("%w: %T does not convert to %s", ErrInternal, v, reflect.TypeFor[U]())
		}
		return u, nil
	}
}

// Freeze ends the registration phase. Later registrations of new types fail
// with ErrFrozen; the table is never mutated again.
func (k *Kind[U, I]) Freeze() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.frozen.CompareAndSwap(false, true) {
		k.log.Debug("kind frozen", zap.Int("entries", len(k.tab.Load().byKey)))
	}
}

// Frozen reports whether Freeze was called.
func (k *Kind[U, I]) Frozen() bool { return k.frozen.Load() }

// Name returns the kind name.
func (k *Kind[U, I]) Name() string { return k.name }

// Format returns the intermediate format payloads are encoded with.
func (k *Kind[U, I]) Format() Format[I] { return k.format }

// Len returns the number of registered types.
func (k *Kind[U, I]) Len() int { return len(k.tab.Load().byKey) }

// Lookup returns the entry for key. It has no side effects.
func (k *Kind[U, I]) Lookup(key TypeKey) (*Entry[U, I], bool) {
	e, ok := k.tab.Load().byKey[key]
	return e, ok
}

// KeyFor returns the key of v's concrete type.
func (k *Kind[U, I]) KeyFor(v U) (TypeKey, bool) {
	if any(v) == nil {
		return 0, false
	}
	e, ok := k.tab.Load().byType[reflect.TypeOf(any(v))]
	if !ok {
		return 0, false
	}
	return e.Key, true
}

// KeyOf returns the key T was registered under in k.
func KeyOf[T, U, I any](k *Kind[U, I]) (TypeKey, bool) {
	e, ok := k.tab.Load().byType[reflect.TypeFor[T]()]
	if !ok {
		return 0, false
	}
	return e.Key, true
}

// Entries returns the table sorted by key. Useful to print keys before
// pinning them with RegisterAs.
func (k *Kind[U, I]) Entries() []*Entry[U, I] {
	tab := k.tab.Load()
	entries := make([]*Entry[U, I], 0, len(tab.byKey))
	for _, e := range tab.byKey {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *Entry[U, I]) int { return cmp.Compare(a.Key, b.Key) })
	return entries
}

// Serialize encodes v as an envelope carrying its concrete type's key.
// A nil value, typed nil pointers included, is ErrNilValue.
func (k *Kind[U, I]) Serialize(v U) (Envelope[I], error) {
	rv := any(v)
	if rv == nil {
		return Envelope[I]{}, ErrNilValue
	}
	if t := reflect.TypeOf(rv); t.Kind() == reflect.Pointer && reflect.ValueOf(rv).IsNil() {
		return Envelope[I]{}, fmt.Errorf("%w: nil %s", ErrNilValue, t)
	}
	e, ok := k.tab.Load().byType[reflect.TypeOf(rv)]
	if !ok {
		return Envelope[I]{}, fmt.Errorf("%w: kind %q type %s", ErrUnregistered, k.name, typeName(reflect.TypeOf(rv)))
	}
	payload, err := k.format.Encode(rv)
	if err != nil {
		return Envelope[I]{}, fmt.Errorf("%w: %s: %w", ErrEncode, e.Name, err)
	}
	return Envelope[I]{Key: e.Key, Payload: payload}, nil
}

// Deserialize rebuilds the value env was made from. Failures are returned as
// *DecodeError wrapping ErrUnknownKey, ErrPayloadInvalid or ErrInternal.
func (k *Kind[U, I]) Deserialize(env Envelope[I]) (U, error) {
	var zero U
	e, ok := k.Lookup(env.Key)
	if !ok {
		return zero, &DecodeError{Kind: k.name, Key: env.Key, Err: ErrUnknownKey}
	}
	if e.Key != env.Key || e.Type == nil || e.decode == nil {
		return zero, &DecodeError{Kind: k.name, Key: env.Key, Type: e.Name, Err: ErrInternal}
	}

	u, err := e.Reconstruct(env.Payload)
	if err != nil {
		if errors.Is(err, ErrInternal) {
			return zero, &DecodeError{Kind: k.name, Key: env.Key, Type: e.Name, Err: ErrInternal, Cause: err}
		}
		return zero, &DecodeError{Kind: k.name, Key: env.Key, Type: e.Name, Err: ErrPayloadInvalid, Cause: err}
	}
	if got := reflect.TypeOf(any(u)); got != e.Type {
		return zero, &DecodeError{Kind: k.name, Key: env.Key, Type: e.Name, Err: ErrInternal,
			Cause: fmt.Errorf("reconstructed %v", got)}
	}
	return u, nil
}

// SerializeAll serializes vs in order, stopping at the first failure.
func (k *Kind[U, I]) SerializeAll(vs []U) ([]Envelope[I], error) {
	out := make([]Envelope[I], len(vs))
	for i, v := range vs {
		env, err := k.Serialize(v)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = env
	}
	return out, nil
}

// DeserializeAll deserializes envs in order, stopping at the first failure.
func (k *Kind[U, I]) DeserializeAll(envs []Envelope[I]) ([]U, error) {
	out := make([]U, len(envs))
	for i, env := range envs {
		v, err := k.Deserialize(env)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
