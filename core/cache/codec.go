package cache

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zlib"
)

// Payload layout: frame byte, then (possibly compressed) kind byte and body.
// Payloads without a known frame byte are legacy untagged JSON.
const (
	frameRaw        byte = 0x01
	frameCompressed byte = 0x02

	kindStructured byte = 's'
	kindOpaque     byte = 'o'

	maxKeyLength = 200
	keyKeepBytes = 100
)

// encode serializes v. []byte and encoding.BinaryMarshaler values are stored
// opaque; everything else is JSON.
func encode(v any, threshold int) (payload []byte, compressed bool, err error) {
	var body []byte
	switch x := v.(type) {
	case []byte:
		body = append([]byte{kindOpaque}, x...)
	case encoding.BinaryMarshaler:
		b, err := x.MarshalBinary()
		if err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrSerialization, err)
		}
		body = append([]byte{kindOpaque}, b...)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrSerialization, err)
		}
		body = append([]byte{kindStructured}, b...)
	}

	if len(body) <= threshold {
		return append([]byte{frameRaw}, body...), false, nil
	}

	var buf bytes.Buffer
	buf.WriteByte(frameCompressed)
	zw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if _, err := zw.Write(body); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return buf.Bytes(), true, nil
}

// decode reverses encode into dst, which must be a non-nil pointer.
func decode(payload []byte, dst any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrSerialization)
	}

	var body []byte
	switch payload[0] {
	case frameRaw:
		body = payload[1:]
	case frameCompressed:
		zr, err := zlib.NewReader(bytes.NewReader(payload[1:]))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSerialization, err)
		}
		defer zr.Close()
		body, err = io.ReadAll(zr)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSerialization, err)
		}
	default:
		return decodeJSON(payload, dst)
	}

	if len(body) == 0 {
		return fmt.Errorf("%w: missing kind byte", ErrSerialization)
	}

	switch body[0] {
	case kindStructured:
		return decodeJSON(body[1:], dst)
	case kindOpaque:
		return decodeOpaque(body[1:], dst)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrSerialization, body[0])
	}
}

func decodeJSON(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return nil
}

func decodeOpaque(data []byte, dst any) error {
	switch d := dst.(type) {
	case *[]byte:
		*d = bytes.Clone(data)
		return nil
	case encoding.BinaryUnmarshaler:
		if err := d.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("%w: %w", ErrSerialization, err)
		}
		return nil
	case *any:
		*d = bytes.Clone(data)
		return nil
	default:
		return fmt.Errorf("%w: cannot decode opaque value into %T", ErrSerialization, dst)
	}
}

// normalizeKey shortens keys longer than 200 bytes to their first 100 bytes
// plus a hash of the full key.
func normalizeKey(key string) string {
	if len(key) <= maxKeyLength {
		return key
	}
	return fmt.Sprintf("%s_%016x", key[:keyKeepBytes], xxhash.Sum64String(key))
}

// StoreKey returns the store key of key at level l.
func StoreKey(l Level, key string) string {
	return l.Prefix() + ":" + normalizeKey(key)
}

func metaKey(storeKey string) string {
	return storeKey + ":meta"
}
