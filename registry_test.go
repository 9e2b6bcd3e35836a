package typecodec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// --- Registry Test Suite ---

type RegistryTestSuite struct {
	suite.Suite
	kind *Kind[Describer, json.RawMessage]
}

// SetupTest declares a fresh JSON kind with the string and number holders.
func (s *RegistryTestSuite) SetupTest() {
	s.kind = newKind(s.T(), JSON())
	_, err := Register[StringHolder](s.kind)
	s.Require().NoError(err)
	_, err = Register[NumberHolder](s.kind)
	s.Require().NoError(err)
}

func (s *RegistryTestSuite) TestRoundTrip() {
	k1, ok := KeyOf[StringHolder](s.kind)
	s.Require().True(ok)
	k2, ok := KeyOf[NumberHolder](s.kind)
	s.Require().True(ok)
	s.Require().NotEqual(k1, k2)

	env, err := s.kind.Serialize(StringHolder("hi"))
	s.Require().NoError(err)
	s.Assert().Equal(k1, env.Key)
	s.Assert().JSONEq(`"hi"`, string(env.Payload))

	wire, err := json.Marshal(env)
	s.Require().NoError(err)
	s.Assert().Equal(fmt.Sprintf(`[%d,"hi"]`, uint64(k1)), string(wire))

	var back Envelope[json.RawMessage]
	s.Require().NoError(json.Unmarshal(wire, &back))
	v, err := s.kind.Deserialize(back)
	s.Require().NoError(err)
	s.Assert().Equal(StringHolder("hi"), v)

	env, err = s.kind.Serialize(NumberHolder(42))
	s.Require().NoError(err)
	wire, err = json.Marshal(env)
	s.Require().NoError(err)
	s.Assert().Equal(fmt.Sprintf(`[%d,42]`, uint64(k2)), string(wire))

	v, err = s.kind.Deserialize(env)
	s.Require().NoError(err)
	s.Assert().Equal(NumberHolder(42), v)
	s.Assert().Equal("number:42", v.Describe())
}

func (s *RegistryTestSuite) TestUnknownKey() {
	for _, key := range []TypeKey{999999, math.MaxUint64} {
		s.T().Run(fmt.Sprint(key), func(t *testing.T) {
			wire := fmt.Sprintf(`[%d,"hi"]`, uint64(key))
			var env Envelope[json.RawMessage]
			require.NoError(t, json.Unmarshal([]byte(wire), &env))
			require.Equal(t, key, env.Key)

			v, err := s.kind.Deserialize(env)
			require.Error(t, err)
			assert.Nil(t, v)
			assert.ErrorIs(t, err, ErrUnknownKey)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, key, de.Key)
			assert.Equal(t, s.kind.Name(), de.Kind)
			assert.Empty(t, de.Type)
		})
	}
}

func (s *RegistryTestSuite) TestPayloadMismatch() {
	k2, _ := KeyOf[NumberHolder](s.kind)
	env := Envelope[json.RawMessage]{Key: k2, Payload: json.RawMessage(`"not a number"`)}

	v, err := s.kind.Deserialize(env)
	s.Require().Error(err)
	s.Assert().Nil(v)
	s.Assert().ErrorIs(err, ErrPayloadInvalid)
	s.Assert().NotErrorIs(err, ErrUnknownKey)

	var de *DecodeError
	s.Require().ErrorAs(err, &de)
	s.Assert().Equal(typeName(reflect.TypeFor[NumberHolder]()), de.Type)
	s.Assert().NotNil(de.Cause)

	var typeErr *json.UnmarshalTypeError
	s.Assert().ErrorAs(err, &typeErr, "the format's own error stays reachable")

	s.T().Run("NumberWhereStringExpected", func(t *testing.T) {
		k1, _ := KeyOf[StringHolder](s.kind)
		_, err := s.kind.Deserialize(Envelope[json.RawMessage]{Key: k1, Payload: json.RawMessage(`42`)})
		assert.ErrorIs(t, err, ErrPayloadInvalid)
	})

	s.T().Run("EmptyPayload", func(t *testing.T) {
		_, err := s.kind.Deserialize(Envelope[json.RawMessage]{Key: k2})
		assert.ErrorIs(t, err, ErrPayloadInvalid)
		assert.ErrorIs(t, err, ErrTruncatedData)
	})

	s.T().Run("TrailingData", func(t *testing.T) {
		_, err := s.kind.Deserialize(Envelope[json.RawMessage]{Key: k2, Payload: json.RawMessage(`42 43`)})
		assert.ErrorIs(t, err, ErrPayloadInvalid)
		assert.ErrorIs(t, err, ErrTrailingData)
	})
}

func (s *RegistryTestSuite) TestIdempotentRegistration() {
	before, _ := KeyOf[StringHolder](s.kind)
	n := s.kind.Len()

	again, err := Register[StringHolder](s.kind)
	s.Require().NoError(err)
	s.Assert().Equal(before, again)
	s.Assert().Equal(n, s.kind.Len())

	// Still idempotent once frozen.
	s.kind.Freeze()
	again, err = Register[StringHolder](s.kind)
	s.Require().NoError(err)
	s.Assert().Equal(before, again)
}

func (s *RegistryTestSuite) TestFreeze() {
	s.Assert().False(s.kind.Frozen())
	s.kind.Freeze()
	s.kind.Freeze()
	s.Assert().True(s.kind.Frozen())

	_, err := Register[Point](s.kind)
	s.Require().ErrorIs(err, ErrFrozen)
	var re *RegisterError
	s.Require().ErrorAs(err, &re)
	s.Assert().Equal(s.kind.Name(), re.Kind)

	// Lookups keep working.
	env, err := s.kind.Serialize(StringHolder("still here"))
	s.Require().NoError(err)
	v, err := s.kind.Deserialize(env)
	s.Require().NoError(err)
	s.Assert().Equal(StringHolder("still here"), v)
}

func (s *RegistryTestSuite) TestSerializeErrors() {
	s.T().Run("Nil", func(t *testing.T) {
		_, err := s.kind.Serialize(nil)
		assert.ErrorIs(t, err, ErrNilValue)
	})
	s.T().Run("Unregistered", func(t *testing.T) {
		_, err := s.kind.Serialize(Point{X: 1})
		assert.ErrorIs(t, err, ErrUnregistered)
		assert.Contains(t, err.Error(), "Point")
	})
	s.T().Run("TypedNilPointer", func(t *testing.T) {
		_, err := s.kind.Serialize((*Labeled)(nil))
		assert.ErrorIs(t, err, ErrNilValue)
		assert.Contains(t, err.Error(), "Labeled")
	})
}

func (s *RegistryTestSuite) TestLookup() {
	k1, _ := KeyOf[StringHolder](s.kind)

	e, ok := s.kind.Lookup(k1)
	s.Require().True(ok)
	s.Assert().Equal(k1, e.Key)
	s.Assert().Equal(reflect.TypeFor[StringHolder](), e.Type)
	s.Assert().Equal("github.com/oy3o/typecodec.StringHolder", e.Name)

	v, err := e.Reconstruct(json.RawMessage(`"direct"`))
	s.Require().NoError(err)
	s.Assert().Equal(StringHolder("direct"), v)

	_, ok = s.kind.Lookup(k1 + 1)
	s.Assert().False(ok)

	key, ok := s.kind.KeyFor(StringHolder("x"))
	s.Assert().True(ok)
	s.Assert().Equal(k1, key)
	_, ok = s.kind.KeyFor(nil)
	s.Assert().False(ok)
	_, ok = s.kind.KeyFor(Point{})
	s.Assert().False(ok)
}

func (s *RegistryTestSuite) TestEntries() {
	_, err := Register[Point](s.kind)
	s.Require().NoError(err)

	entries := s.kind.Entries()
	s.Require().Len(entries, 3)
	for i := 1; i < len(entries); i++ {
		s.Assert().Less(entries[i-1].Key, entries[i].Key)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	s.Assert().ElementsMatch([]string{
		"github.com/oy3o/typecodec.StringHolder",
		"github.com/oy3o/typecodec.NumberHolder",
		"github.com/oy3o/typecodec.Point",
	}, names)
}

func (s *RegistryTestSuite) TestBatch() {
	in := []Describer{StringHolder("a"), NumberHolder(1), StringHolder("b")}
	envs, err := s.kind.SerializeAll(in)
	s.Require().NoError(err)
	s.Require().Len(envs, 3)

	out, err := s.kind.DeserializeAll(envs)
	s.Require().NoError(err)
	s.Assert().Equal(in, out)

	envs[1].Key = 7
	_, err = s.kind.DeserializeAll(envs)
	s.Require().ErrorIs(err, ErrUnknownKey)
	s.Assert().Contains(err.Error(), "item 1")

	_, err = s.kind.SerializeAll([]Describer{StringHolder("a"), Point{}})
	s.Require().ErrorIs(err, ErrUnregistered)
	s.Assert().Contains(err.Error(), "item 1")
}

// TestRegistry runs the RegistryTestSuite.
func TestRegistry(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

// --- Standalone Registry Tests ---

func TestNewKind_Errors(t *testing.T) {
	t.Run("NotInterface", func(t *testing.T) {
		_, err := NewKind[StringHolder]("not-an-interface", JSON())
		assert.ErrorIs(t, err, ErrNotInterface)
	})

	t.Run("NilFormat", func(t *testing.T) {
		_, err := NewKind[Describer, json.RawMessage]("nil-format", nil)
		assert.ErrorIs(t, err, ErrNilFormat)
	})

	t.Run("DuplicateName", func(t *testing.T) {
		k := newKind(t, JSON())
		_, err := NewKind[Describer](k.Name(), CBOR())
		assert.ErrorIs(t, err, ErrDuplicateKind)
		assert.Contains(t, Kinds(), k.Name())
	})

	t.Run("MustKindPanics", func(t *testing.T) {
		k := newKind(t, JSON())
		assert.Panics(t, func() { MustKind[Describer](k.Name(), JSON()) })
	})
}

func TestRegister_Errors(t *testing.T) {
	k := newKind(t, JSON())

	t.Run("NotImplemented", func(t *testing.T) {
		_, err := Register[notDescriber](k)
		assert.ErrorIs(t, err, ErrNotImplemented)
	})

	t.Run("PointerReceiverOnValue", func(t *testing.T) {
		_, err := Register[Labeled](k)
		assert.ErrorIs(t, err, ErrNotImplemented)
	})

	t.Run("NotConcrete", func(t *testing.T) {
		_, err := Register[Describer](k)
		assert.ErrorIs(t, err, ErrNotConcrete)
	})

	t.Run("MustRegisterPanics", func(t *testing.T) {
		assert.Panics(t, func() { MustRegister[notDescriber](k) })
	})

	assert.Zero(t, k.Len())
}

func TestKindIsolation(t *testing.T) {
	a := newKind(t, JSON())
	b := newKind(t, JSON())
	ka := MustRegister[StringHolder](a)
	kb := MustRegister[StringHolder](b)
	assert.NotEqual(t, ka, kb, "keys are scoped by kind name")

	env, err := a.Serialize(StringHolder("scoped"))
	require.NoError(t, err)

	_, err = b.Deserialize(env)
	assert.ErrorIs(t, err, ErrUnknownKey)

	v, err := a.Deserialize(env)
	require.NoError(t, err)
	assert.Equal(t, StringHolder("scoped"), v)
}

func TestKeyHash_Stable(t *testing.T) {
	k := newKind(t, JSON())
	key := MustRegister[StringHolder](k)
	assert.Equal(t, hashKey(k.Name(), "github.com/oy3o/typecodec.StringHolder"), key)

	// Registration order does not matter.
	a := newKind(t, JSON())
	b := newKind(t, JSON())
	MustRegister[StringHolder](a)
	MustRegister[NumberHolder](a)
	MustRegister[NumberHolder](b)
	MustRegister[StringHolder](b)
	ka, _ := KeyOf[NumberHolder](a)
	kb, _ := KeyOf[NumberHolder](b)
	assert.Equal(t, hashKey(a.Name(), "github.com/oy3o/typecodec.NumberHolder"), ka)
	assert.Equal(t, hashKey(b.Name(), "github.com/oy3o/typecodec.NumberHolder"), kb)
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "github.com/oy3o/typecodec.Point", typeName(reflect.TypeFor[Point]()))
	assert.Equal(t, "*github.com/oy3o/typecodec.Labeled", typeName(reflect.TypeFor[*Labeled]()))
	assert.Equal(t, "[]string", typeName(reflect.TypeFor[[]string]()))
	assert.Equal(t, "int", typeName(reflect.TypeFor[int]()))
}

func TestKeySequential(t *testing.T) {
	k := newKind(t, JSON(), WithKeyPolicy(KeySequential))
	assert.Equal(t, TypeKey(1), MustRegister[StringHolder](k))
	assert.Equal(t, TypeKey(2), MustRegister[NumberHolder](k))

	t.Run("SkipsPinnedSlots", func(t *testing.T) {
		k := newKind(t, JSON(), WithKeyPolicy(KeySequential))
		pinned, err := RegisterAs[Point](k, 2)
		require.NoError(t, err)
		assert.Equal(t, TypeKey(2), pinned)

		// Second slot is taken by Point.
		assert.Equal(t, TypeKey(3), MustRegister[StringHolder](k))
	})
}

func TestRegisterAs(t *testing.T) {
	k := newKind(t, JSON())

	key, err := RegisterAs[StringHolder](k, 100)
	require.NoError(t, err)
	assert.Equal(t, TypeKey(100), key)

	t.Run("SameKeyIsIdempotent", func(t *testing.T) {
		key, err := RegisterAs[StringHolder](k, 100)
		require.NoError(t, err)
		assert.Equal(t, TypeKey(100), key)
	})

	t.Run("DifferentKeyForSameType", func(t *testing.T) {
		_, err := RegisterAs[StringHolder](k, 101)
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("TakenKey", func(t *testing.T) {
		_, err := RegisterAs[NumberHolder](k, 100)
		require.ErrorIs(t, err, ErrDuplicateKey)

		var re *RegisterError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, TypeKey(100), re.Key)
		assert.Equal(t, "github.com/oy3o/typecodec.NumberHolder", re.Type)
		assert.Equal(t, "github.com/oy3o/typecodec.StringHolder", re.Existing)
	})

	t.Run("ZeroIsReserved", func(t *testing.T) {
		_, err := RegisterAs[NumberHolder](k, 0)
		require.ErrorIs(t, err, ErrReservedKey)
		_, ok := k.KeyFor(NumberHolder(0))
		assert.False(t, ok)
	})

	t.Run("PinnedKeyIsExact", func(t *testing.T) {
		probing := newKind(t, JSON(), WithCollisionPolicy(CollisionProbe))
		_, err := RegisterAs[StringHolder](probing, 5)
		require.NoError(t, err)
		_, err = RegisterAs[NumberHolder](probing, 5)
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})
}

func TestCollisionPolicy(t *testing.T) {
	// Occupy the hash key of StringHolder with another type to force a collision.
	collide := func(t *testing.T, opts ...KindOption) (*Kind[Describer, json.RawMessage], TypeKey) {
		k := newKind(t, JSON(), opts...)
		key := hashKey(k.Name(), typeName(reflect.TypeFor[StringHolder]()))
		_, err := RegisterAs[Point](k, key)
		require.NoError(t, err)
		return k, key
	}

	t.Run("Reject", func(t *testing.T) {
		k, key := collide(t)
		_, err := Register[StringHolder](k)
		require.ErrorIs(t, err, ErrDuplicateKey)
		assert.Contains(t, err.Error(), "Point")

		_, ok := KeyOf[StringHolder](k)
		assert.False(t, ok)
		e, _ := k.Lookup(key)
		assert.Equal(t, reflect.TypeFor[Point](), e.Type)
	})

	t.Run("NextFreeKey", func(t *testing.T) {
		k, key := collide(t, WithCollisionPolicy(CollisionProbe))
		got, err := Register[StringHolder](k)
		require.NoError(t, err)
		assert.Equal(t, key+1, got)

		env, err := k.Serialize(StringHolder("moved"))
		require.NoError(t, err)
		v, err := k.Deserialize(env)
		require.NoError(t, err)
		assert.Equal(t, StringHolder("moved"), v)
	})

	t.Run("Exhausted", func(t *testing.T) {
		alloc := allocator{kind: "exhausted", policy: KeyHash, collision: CollisionProbe}
		_, err := alloc.allocate(reflect.TypeFor[StringHolder](), nil, 0, func(TypeKey) (reflect.Type, bool) {
			return reflect.TypeFor[Point](), true
		})
		assert.ErrorIs(t, err, ErrKeyspaceExhausted)
	})
}

// panicFormat blows up on decode.
type panicFormat struct{}

func (panicFormat) Name() string                 { return "panic" }
func (panicFormat) Encode(v any) (string, error) { return fmt.Sprint(v), nil }
func (panicFormat) Decode(string, any) error     { panic("boom") }

func TestDeserialize_FormatPanic(t *testing.T) {
	k := newKind(t, Format[string](panicFormat{}))
	MustRegister[StringHolder](k)

	env, err := k.Serialize(StringHolder("x"))
	require.NoError(t, err)
	_, err = k.Deserialize(env)
	require.ErrorIs(t, err, ErrPayloadInvalid)
	assert.Contains(t, err.Error(), "boom")
}

func TestDeserialize_NilPointerResult(t *testing.T) {
	k := newKind(t, Format[string](noopFormat{}))
	MustRegister[*Labeled](k)

	env, err := k.Serialize(&Labeled{Name: "x"})
	require.NoError(t, err)
	_, err = k.Deserialize(env)
	require.ErrorIs(t, err, ErrPayloadInvalid)
	assert.ErrorIs(t, err, ErrNullPayload)
}

func TestDeserialize_Internal(t *testing.T) {
	k := newKind(t, JSON())
	key := MustRegister[StringHolder](k)

	// Corrupt the table: the entry claims NumberHolder but decodes a StringHolder.
	tab := k.tab.Load()
	bad := *tab.byKey[key]
	bad.Type = reflect.TypeFor[NumberHolder]()
	k.tab.Store(tab.with(&bad))

	env, err := k.Serialize(StringHolder("x"))
	require.NoError(t, err)
	_, err = k.Deserialize(env)
	require.ErrorIs(t, err, ErrInternal)
	assert.NotErrorIs(t, err, ErrPayloadInvalid)
}

func TestConcurrentRegistration(t *testing.T) {
	k := newKind(t, JSON())
	var wg sync.WaitGroup
	keys := make([]TypeKey, 32)
	for i := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				keys[i] = MustRegister[StringHolder](k)
			} else {
				keys[i] = MustRegister[NumberHolder](k)
			}
			// Lookups run concurrently with registration.
			_, _ = k.Serialize(StringHolder("x"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, k.Len())
	for i := 2; i < len(keys); i++ {
		assert.Equal(t, keys[i%2], keys[i])
	}
}

func TestRegistrationLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	k := newKind(t, JSON(), WithLogger(zap.New(core)))
	key := MustRegister[StringHolder](k)
	k.Freeze()
	_, err := Register[NumberHolder](k)
	require.Error(t, err)

	registered := logs.FilterMessage("type registered").All()
	require.Len(t, registered, 1)
	assert.Equal(t, k.Name(), registered[0].ContextMap()["kind"])
	assert.Equal(t, uint64(key), registered[0].ContextMap()["key"])
	assert.Equal(t, 1, logs.FilterMessage("kind frozen").Len())
	assert.Equal(t, 1, logs.FilterMessage("kind declared").Len())
}

func TestErrorMessages(t *testing.T) {
	de := &DecodeError{Kind: "k", Key: 7, Type: "T", Err: ErrPayloadInvalid, Cause: errors.New("bad")}
	assert.Equal(t, `typecodec: invalid payload: kind "k" key 7 (T): bad`, de.Error())

	re := &RegisterError{Kind: "k", Type: "A", Key: 7, Existing: "B", Err: ErrDuplicateKey}
	assert.Equal(t, `typecodec: duplicate type key: kind "k" key 7 wanted by A, held by B`, re.Error())
}
