package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// KeySerializer builds a cache key from a prefix and arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(prefix string, args ...any) string
}

// canonicalKeySerializer renders scalars as plain text and everything else
// through CanonicalJSON, so filter objects produce the same key whatever
// their field or insertion order.
type canonicalKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &canonicalKeySerializer{}
}

// SerializeKey joins prefix and the serialized args with KeySeparator.
func (s *canonicalKeySerializer) SerializeKey(prefix string, args ...any) string {
	if len(args) == 0 {
		return prefix
	}

	parts := make([]string, 0, len(args)+1)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	for _, arg := range args {
		parts = append(parts, s.serializeValue(arg))
	}

	return strings.Join(parts, KeySeparator)
}

func (s *canonicalKeySerializer) serializeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%v", v)
	}

	return CanonicalJSON(v)
}

// CanonicalJSON is the single serialization used wherever a key is derived
// from a filter object. Object keys are sorted lexicographically at every
// depth, absent values stay absent and numbers keep their literal form.
// A nil value serializes as "{}".
func CanonicalJSON(v any) string {
	if v == nil {
		return "{}"
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return string(raw)
	}
	if generic == nil {
		return "{}"
	}

	// encoding/json writes map keys in sorted order.
	sorted, err := json.Marshal(generic)
	if err != nil {
		return string(raw)
	}
	return string(sorted)
}

// FilterNames returns the top level keys of a filter object as they appear
// in its canonical form, sorted.
func FilterNames(v any) []string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(CanonicalJSON(v)), &m); err != nil {
		return nil
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
