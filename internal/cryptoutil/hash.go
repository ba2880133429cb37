package cryptoutil

import "crypto/sha256"

// Hash256 returns the SHA-256 digest of data.
func Hash256(data []byte) [32]byte {
	return sha256.Sum256(data)
}
