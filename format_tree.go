package typecodec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

type treeFormat struct{}

// Tree returns a format whose payloads are in-memory JSON-like trees:
// map[string]any, []any, string, bool, int64, uint64, float64 and nil.
// Struct fields are named by their json tags. Trees parsed from JSON may carry
// json.Number in place of the numeric types.
//
// Decoding never converts between scalar kinds, so a string where a number is
// expected is an error. Numbers convert between integer and float types only
// when the value survives exactly; fractions, overflow and sign changes fail.
func Tree() Format[any] { return treeFormat{} }

func (treeFormat) Name() string { return "tree" }

func (treeFormat) Encode(v any) (any, error) {
	return toTree(reflect.ValueOf(v))
}

func (treeFormat) Decode(in any, dst any) error {
	if in == nil && !acceptsNull(dst) {
		return nullPayload(dst)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.DecodeHookFuncValue(exactNumber),
		Result:      dst,
		TagName:     "json",
		ErrorUnused: true,
		ZeroFields:  true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

var jsonNumberType = reflect.TypeFor[json.Number]()

// exactNumber guards numeric targets: it passes a number through only if the
// target can hold it exactly, and parses json.Number for the target's kind.
func exactNumber(from, to reflect.Value) (any, error) {
	data := from.Interface()
	if from.Type() == jsonNumberType {
		switch {
		case isNumeric(to.Kind()):
			return parseNumber(data.(json.Number), to)
		case to.Kind() == reflect.String:
			// json.Number is a string underneath; mapstructure would take it.
			return nil, fmt.Errorf("number %s cannot decode into %s", data, to.Type())
		}
		return data, nil
	}
	if !isNumeric(to.Kind()) {
		return data, nil
	}

	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return data, checkInt(from.Int(), to)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return data, checkUint(from.Uint(), to)
	case reflect.Float32, reflect.Float64:
		return data, checkFloat(from.Float(), to)
	}
	return data, nil
}

func parseNumber(n json.Number, to reflect.Value) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(string(n), 10, to.Type().Bits())
		if err != nil {
			return nil, fmt.Errorf("number %s does not fit %s", n, to.Type())
		}
		return i, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := strconv.ParseUint(string(n), 10, to.Type().Bits())
		if err != nil {
			return nil, fmt.Errorf("number %s does not fit %s", n, to.Type())
		}
		return u, nil
	default:
		f, err := strconv.ParseFloat(string(n), to.Type().Bits())
		if err != nil {
			return nil, fmt.Errorf("number %s does not fit %s", n, to.Type())
		}
		return f, nil
	}
}

func checkInt(i int64, to reflect.Value) error {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if to.OverflowInt(i) {
			return fmt.Errorf("%d overflows %s", i, to.Type())
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if i < 0 || to.OverflowUint(uint64(i)) {
			return fmt.Errorf("%d overflows %s", i, to.Type())
		}
	}
	return nil
}

func checkUint(u uint64, to reflect.Value) error {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if u > math.MaxInt64 || to.OverflowInt(int64(u)) {
			return fmt.Errorf("%d overflows %s", u, to.Type())
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if to.OverflowUint(u) {
			return fmt.Errorf("%d overflows %s", u, to.Type())
		}
	}
	return nil
}

func checkFloat(f float64, to reflect.Value) error {
	switch to.Kind() {
	case reflect.Float32, reflect.Float64:
		if to.OverflowFloat(f) {
			return fmt.Errorf("%g overflows %s", f, to.Type())
		}
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return fmt.Errorf("%g is not an integer", f)
	}
	// 2^63 and 2^64 are exact in float64; anything at or above is out of range.
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if f < math.MinInt64 || f >= math.MaxInt64 || to.OverflowInt(int64(f)) {
			return fmt.Errorf("%g overflows %s", f, to.Type())
		}
	default:
		if f < 0 || f >= math.MaxUint64 || to.OverflowUint(uint64(f)) {
			return fmt.Errorf("%g overflows %s", f, to.Type())
		}
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func toTree(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return toTree(v.Elem())
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			item, err := toTree(v.Index(i))
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("tree: unsupported map key type %s", v.Type().Key())
		}
		if v.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			item, err := toTree(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", iter.Key().String(), err)
			}
			out[iter.Key().String()] = item
		}
		return out, nil
	case reflect.Struct:
		var flat map[string]any
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &flat, TagName: "json"})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(v.Interface()); err != nil {
			return nil, err
		}
		return toTree(reflect.ValueOf(flat))
	default:
		return nil, fmt.Errorf("tree: unsupported kind %s", v.Kind())
	}
}
