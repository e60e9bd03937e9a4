package domain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// HashSize is the length in bytes of a property content hash.
const HashSize = 32

// Hash is the 32-byte content hash identifying a property. It is the sole key
// linking ledger state to the off-chain metadata store, so every caller must
// derive it the same way (see HashProperty).
type Hash [HashSize]byte

// HashProperty derives the content hash of a property from its descriptive
// fields: the Keccak-256 digest of the location string packed with the area as
// a 32-byte big-endian integer. The packing matches the marketplace front-end,
// so the same (location, area) pair always yields the same hash regardless of
// which component computes it.
func HashProperty(location string, area uint64) Hash {
	buf := make([]byte, 0, len(location)+32)
	buf = append(buf, location...)

	var areaWord [32]byte
	binary.BigEndian.PutUint64(areaWord[24:], area)
	buf = append(buf, areaWord[:]...)

	h := sha3.NewLegacyKeccak256()
	h.Write(buf)

	var out Hash
	h.Sum(out[:0])
	return out
}

// ParseHash parses a hex-encoded property hash, with or without the "0x"
// prefix. It is the only place callers' input hashes enter the domain.
func ParseHash(s string) (Hash, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(trimmed) != HashSize*2 {
		return Hash{}, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidHash, HashSize*2, len(trimmed))
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is the all-zero value, which is never a
// valid property identifier.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
