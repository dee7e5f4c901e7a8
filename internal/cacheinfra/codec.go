package cacheinfra

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes v with msgpack. Struct fields follow their json tags so
// cached payloads keep the same field names as the API responses.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode[T any](data []byte) (T, error) {
	var out T
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
