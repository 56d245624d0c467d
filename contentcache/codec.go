package contentcache

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Cached payloads are canonical msgpack bytes rather than live Go values.
// Struct field order is fixed, so recomputing a payload from identical store
// state yields byte-identical output, and decoding on every read hands each
// caller its own copy instead of a shared mutable value.

func encodePayload(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache payload: %w", err)
	}
	return data, nil
}

func decodePayload[T any](data []byte) (T, error) {
	var v T
	if err := msgpack.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("decode cache payload: %w", err)
	}
	return v, nil
}
