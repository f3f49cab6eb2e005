package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// MaxArgKeyLength bounds the serialized argument part of a key. Longer
// arguments are replaced by an xxhash digest so keys stay short.
const MaxArgKeyLength = 96

// KeySerializer builds the cache key of a query descriptor from its endpoint
// name and argument. Equal descriptors must produce equal keys.
type KeySerializer interface {
	SerializeKey(endpoint string, arg any) string
}

type defaultKeySerializer struct {
	maxArgLen int
}

// NewDefaultKeySerializer creates the reflection based serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{maxArgLen: MaxArgKeyLength}
}

// SerializeKey returns endpoint alone for argument-less queries (nil or an
// empty struct), and endpoint::arg otherwise.
func (s *defaultKeySerializer) SerializeKey(endpoint string, arg any) string {
	if isVoid(arg) {
		return endpoint
	}

	serialized := s.serializeValue(reflect.ValueOf(arg))
	if len(serialized) > s.maxArgLen {
		serialized = "xxh:" + strconv.FormatUint(xxhash.Sum64String(serialized), 16)
	}
	return endpoint + KeySeparator + serialized
}

func isVoid(arg any) bool {
	if arg == nil {
		return true
	}
	rt := reflect.TypeOf(arg)
	return rt.Kind() == reflect.Struct && rt.NumField() == 0
}

func (s *defaultKeySerializer) serializeValue(rv reflect.Value) string {
	if !rv.IsValid() {
		return "nil"
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem())

	case reflect.String:
		return rv.String()

	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)

	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)

	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return "slice" + s.serializeElems(rv)

	case reflect.Array:
		return "array" + s.serializeElems(rv)

	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)

	case reflect.Struct:
		return s.serializeStruct(rv)

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		// Only stable within one process.
		return fmt.Sprintf("%s:%#x", rv.Kind(), rv.Pointer())
	}

	return s.jsonFallback(rv)
}

func (s *defaultKeySerializer) serializeElems(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = s.serializeValue(rv.Index(i))
	}
	return fmt.Sprintf("[%d]:{%s}", len(parts), strings.Join(parts, ","))
}

func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	type pair struct{ k, v string }

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, pair{
			k: s.serializeValue(iter.Key()),
			v: s.serializeValue(iter.Value()),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}
	return fmt.Sprintf("map[%d]:{%s}", len(parts), strings.Join(parts, ","))
}

func (s *defaultKeySerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serializeValue(rv.Field(i)))
	}
	return "struct:{" + strings.Join(parts, ",") + "}"
}

func (s *defaultKeySerializer) jsonFallback(rv reflect.Value) string {
	if !rv.CanInterface() {
		return "opaque:" + rv.Type().String()
	}
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return "opaque:" + rv.Type().String()
	}
	return "json:" + string(data)
}
