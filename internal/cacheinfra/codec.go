package cacheinfra

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec encodes cached query results as msgpack. Every read decodes a
// fresh copy, so nothing handed out by the cache aliases the stored bytes.
type MsgpackCodec struct{}

// Marshal encodes v.
func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal decodes data into v, which must be a pointer.
func (MsgpackCodec) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("msgpack decode %T: %w", v, err)
	}
	return nil
}
