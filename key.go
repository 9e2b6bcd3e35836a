package typecodec

import (
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// TypeKey identifies a concrete type within one Kind. The same number means
// nothing under another Kind. Key 0 is reserved and never allocated.
//
// Keys derived by KeyHash are stable across runs of the same build. They are
// not guaranteed across renames, package moves or rebuilds that change a
// type's fully-qualified name; pin keys with RegisterAs when that matters.
type TypeKey uint64

// KeyPolicy selects how keys are allocated for newly registered types.
type KeyPolicy uint8

const (
	// KeyHash derives the key from xxhash64 of the kind name and the
	// fully-qualified type name. Registration order does not matter.
	KeyHash KeyPolicy = iota
	// KeySequential hands out keys in registration order, starting at 1.
	// Only stable as long as every process registers in the same order.
	// Occupied slots, e.g. pinned keys, are always skipped.
	KeySequential
)

// CollisionPolicy decides what happens when a new type lands on an occupied key.
type CollisionPolicy uint8

const (
	// CollisionReject fails the registration with ErrDuplicateKey.
	CollisionReject CollisionPolicy = iota
	// CollisionProbe moves to the next free key. The outcome then depends on
	// registration order, which must be the same in every process.
	CollisionProbe
)

// maxProbe bounds linear probing.
const maxProbe = 1 << 16

// typeName returns the fully-qualified name used for hashing and diagnostics.
func typeName(t reflect.Type) string {
	if t.Kind() == reflect.Pointer && t.Name() == "" {
		return "*" + typeName(t.Elem())
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// hashKey derives the KeyHash key of a type under a kind name.
func hashKey(kind, name string) TypeKey {
	d := xxhash.New()
	_, _ = d.WriteString(kind)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(name)
	if sum := d.Sum64(); sum != 0 {
		return TypeKey(sum)
	}
	return 1
}

// allocator hands out keys against one table snapshot. It is used under the
// kind's registration lock and never sees concurrent mutation.
type allocator struct {
	kind      string
	policy    KeyPolicy
	collision CollisionPolicy
}

// allocate returns the key for t. taken reports which type already holds a key.
// A pinned key is used as is and never probes.
func (a allocator) allocate(t reflect.Type, pinned *TypeKey, seq int, taken func(TypeKey) (reflect.Type, bool)) (TypeKey, error) {
	name := typeName(t)

	var key TypeKey
	switch {
	case pinned != nil && *pinned == 0:
		return 0, &RegisterError{Kind: a.kind, Type: name, Err: ErrReservedKey}
	case pinned != nil:
		key = *pinned
	case a.policy == KeySequential:
		key = TypeKey(seq + 1)
	default:
		key = hashKey(a.kind, name)
	}

	for i := 0; i < maxProbe; i++ {
		holder, ok := taken(key)
		if !ok {
			return key, nil
		}
		if pinned != nil || (a.policy == KeyHash && a.collision == CollisionReject) {
			return 0, &RegisterError{Kind: a.kind, Type: name, Key: key, Existing: typeName(holder), Err: ErrDuplicateKey}
		}
		if key++; key == 0 {
			key = 1
		}
	}
	return 0, &RegisterError{Kind: a.kind, Type: name, Key: key, Err: ErrKeyspaceExhausted}
}
