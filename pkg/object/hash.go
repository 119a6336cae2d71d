package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashSize is the number of raw bytes in an object id.
const HashSize = sha1.Size

// ZeroHash is the all-zeros id used on the wire to mean "no object".
const ZeroHash Hash = "0000000000000000000000000000000000000000"

// HashBytes computes the raw SHA-1 of data and returns it as a lowercase
// hex-encoded Hash.
func HashBytes(data []byte) Hash {
	sum := sha1.Sum(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the SHA-1 of the envelope "type len\0content".
func HashObject(objType ObjectType, data []byte) Hash {
	h := sha1.New()
	h.Write(envelopeHeader(objType, len(data)))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// ParseHash validates a 40-character hex id and returns it lowercased.
func ParseHash(s string) (Hash, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2*HashSize {
		return "", fmt.Errorf("parse hash %q: length %d, expected %d", s, len(s), 2*HashSize)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("parse hash %q: %w", s, err)
	}
	return Hash(s), nil
}

// HashFromRaw converts a raw 20-byte digest into a Hash.
func HashFromRaw(raw []byte) (Hash, error) {
	if len(raw) != HashSize {
		return "", fmt.Errorf("raw hash has %d bytes, expected %d", len(raw), HashSize)
	}
	return Hash(hex.EncodeToString(raw)), nil
}

// Raw returns the 20-byte binary form of h.
func (h Hash) Raw() ([]byte, error) {
	if len(h) != 2*HashSize {
		return nil, fmt.Errorf("hash %q: length %d, expected %d", string(h), len(h), 2*HashSize)
	}
	raw, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("hash %q: %w", string(h), err)
	}
	return raw, nil
}

// IsZero reports whether h is empty or the all-zeros id.
func (h Hash) IsZero() bool {
	return h == "" || h == ZeroHash
}

// Short returns the first 7 hex characters of h.
func (h Hash) Short() string {
	if len(h) < 7 {
		return string(h)
	}
	return string(h[:7])
}

func envelopeHeader(objType ObjectType, size int) []byte {
	return []byte(fmt.Sprintf("%s %d\x00", objType, size))
}
