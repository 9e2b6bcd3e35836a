package typecodec

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// --- Mocks and Helpers ---

// Describer is the interface most tests serialize through.
type Describer interface {
	Describe() string
}

// StringHolder wraps a text value and encodes as a bare string.
type StringHolder string

func (s StringHolder) Describe() string { return "string:" + string(s) }

// NumberHolder wraps a 64-bit integer and encodes as a bare number.
type NumberHolder int64

func (n NumberHolder) Describe() string { return fmt.Sprintf("number:%d", int64(n)) }

// Point is a fixed-size struct, usable with the Binary format.
type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

func (p Point) Describe() string { return fmt.Sprintf("point:%d,%d", p.X, p.Y) }

// Labeled implements Describer on its pointer.
type Labeled struct {
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

func (l *Labeled) Describe() string { return fmt.Sprintf("labeled:%s%v", l.Name, l.Tags) }

// notDescriber does not implement Describer.
type notDescriber struct{}

var kindSeq atomic.Int64

// newKind declares a fresh Describer kind with a name unique to the process.
func newKind[I any](t testing.TB, f Format[I], opts ...KindOption) *Kind[Describer, I] {
	t.Helper()
	k, err := NewKind[Describer](fmt.Sprintf("%s#%d", t.Name(), kindSeq.Add(1)), f, opts...)
	require.NoError(t, err)
	return k
}

// registerAll registers the four test types, skipping those the format cannot encode.
func registerAll[I any](t testing.TB, k *Kind[Describer, I]) {
	t.Helper()
	_, err := Register[StringHolder](k)
	require.NoError(t, err)
	_, err = Register[NumberHolder](k)
	require.NoError(t, err)
	_, err = Register[Point](k)
	require.NoError(t, err)
	_, err = Register[*Labeled](k)
	require.NoError(t, err)
}

// Counter is a narrow unsigned type for overflow and sign checks.
type Counter uint16

func (c Counter) Describe() string { return fmt.Sprintf("counter:%d", uint16(c)) }

// TagList is a slice type; null is a legitimate encoding of its nil value.
type TagList []string

func (l TagList) Describe() string { return fmt.Sprintf("tags:%v", []string(l)) }

// noopFormat accepts every payload and leaves the destination untouched.
type noopFormat struct{}

func (noopFormat) Name() string                 { return "noop" }
func (noopFormat) Encode(v any) (string, error) { return "", nil }
func (noopFormat) Decode(string, any) error     { return nil }
