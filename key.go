package memcache

import (
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Key identifies an item in the cache. The wire key sent to a server is
// derived from Key through KeyEncoder, which lets callers route on one
// string (RoutingKey) while storing/encoding another (Key).
type Key struct {
	// Key is the logical cache key.
	Key string

	// RoutingKey, when set, is hashed to pick the server instead of Key.
	// Useful for co-locating related keys on the same server.
	RoutingKey string

	// IsUnicode marks a key containing non-ASCII characters, which must be
	// encoded (base64 over a binary digest) before being put on the wire.
	IsUnicode bool
}

// HashKey returns the string used for server selection.
func (k Key) HashKey() string {
	if k.RoutingKey != "" {
		return k.RoutingKey
	}
	return k.Key
}

// IsAscii reports whether Key contains only printable, non-whitespace ASCII
// bytes and therefore can be sent as-is on the wire.
func IsAscii(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c == 0x7f || c > 0x7e {
			return false
		}
	}
	return true
}

// KeyEncoder turns a logical Key into the bytes written on the wire and
// reports whether the resulting key must be marked with the base64 flag.
type KeyEncoder func(key Key) (wireKey string, base64Encoded bool, err error)

// DefaultKeyEncoder passes ASCII keys through unchanged. Binary or unicode
// keys are digested with BLAKE2b (18-byte digest, matching memcached's
// historical key-length headroom) and base64-encoded, since raw unicode
// bytes risk colliding with the protocol's whitespace-delimited wire format.
func DefaultKeyEncoder(key Key) (string, bool, error) {
	if !key.IsUnicode && IsAscii(key.Key) {
		return key.Key, false, nil
	}

	digest, err := blake2b.New(18, nil)
	if err != nil {
		return "", false, err
	}
	if _, err := digest.Write([]byte(key.Key)); err != nil {
		return "", false, err
	}
	sum := digest.Sum(nil)
	return base64.StdEncoding.EncodeToString(sum), true, nil
}

// IdentityKeyEncoder sends Key.Key verbatim, without the ASCII check or
// binary fallback. It is mainly useful in tests against a ConnectionMock
// where the wire key must match byte-for-byte.
func IdentityKeyEncoder(key Key) (string, bool, error) {
	return key.Key, strings.ContainsAny(key.Key, " \t\r\n"), nil
}
