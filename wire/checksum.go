package wire

import (
	"encoding/binary"

	sha256 "github.com/minio/sha256-simd"
)

// Checksum computes the Bitcoin message checksum: the first four bytes
// of SHA256(SHA256(payload)), read as a little-endian uint32. An empty
// payload is permitted and yields EmptyPayloadChecksum.
//
// github.com/minio/sha256-simd is a drop-in, SIMD-accelerated
// implementation of crypto/sha256's API; since every payload on a busy
// channel is double-hashed, the accelerated implementation pays for
// itself immediately.
func Checksum(payload []byte) uint32 {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return binary.LittleEndian.Uint32(second[:4])
}
