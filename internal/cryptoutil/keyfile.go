package cryptoutil

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"os"
)

// PrivateKeySize is the wire size of a marshalled PrivateKey: modulus then
// exponent, both RSABytes wide, big-endian.
const PrivateKeySize = RSABytes * 2

// Marshal serialises a PrivateKey the same way PublicKey.Marshal does, so
// the two halves of a keypair round-trip through identical framing.
func (p PrivateKey) Marshal() []byte {
	buf := make([]byte, PrivateKeySize)
	p.N.FillBytes(buf[:RSABytes])
	p.D.FillBytes(buf[RSABytes:])
	return buf
}

// UnmarshalPrivateKey parses the buffer produced by PrivateKey.Marshal.
func UnmarshalPrivateKey(buf []byte) (PrivateKey, error) {
	if len(buf) != PrivateKeySize {
		return PrivateKey{}, fmt.Errorf("cryptoutil: private key must be %d bytes, got %d", PrivateKeySize, len(buf))
	}
	return PrivateKey{
		N: new(big.Int).SetBytes(buf[:RSABytes]),
		D: new(big.Int).SetBytes(buf[RSABytes:]),
	}, nil
}

// HashPassword derives the AES key a user's password unlocks their key
// material with: a SHA-256 digest of the entered password. AesKey is 128
// bits wide, so only the leading half of the digest is kept.
func HashPassword(password string) AesKey {
	sum := sha256.Sum256([]byte(password))
	var k AesKey
	copy(k[:], sum[:16])
	return k
}

// lock prefixes a fresh random IV to the AES-CBC ciphertext of data under
// pw, so unlocking only ever needs the password, never a side-channel IV.
func lock(pw AesKey, data []byte) ([]byte, error) {
	iv, err := NewIV()
	if err != nil {
		return nil, err
	}
	ct, err := EncryptCBC(pw, iv, data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, IVSize+len(ct))
	copy(out, iv[:])
	copy(out[IVSize:], ct)
	return out, nil
}

func unlock(pw AesKey, locked []byte) ([]byte, error) {
	if len(locked) < IVSize {
		return nil, fmt.Errorf("cryptoutil: locked data truncated")
	}
	var iv [IVSize]byte
	copy(iv[:], locked[:IVSize])
	pt, err := DecryptCBC(pw, iv, locked[IVSize:])
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: wrong password or corrupt key file: %w", err)
	}
	return pt, nil
}

// LockPrivateKey encrypts a private key's marshalled bytes under a
// password-derived key. Several named users can each unlock the same key
// material independently by re-locking it under their own password (see
// the server's add-user setup flow).
func LockPrivateKey(pw AesKey, key PrivateKey) ([]byte, error) {
	return lock(pw, key.Marshal())
}

// UnlockPrivateKey inverts LockPrivateKey.
func UnlockPrivateKey(pw AesKey, locked []byte) (PrivateKey, error) {
	pt, err := unlock(pw, locked)
	if err != nil {
		return PrivateKey{}, err
	}
	return UnmarshalPrivateKey(pt)
}

// LockData and UnlockData secure an arbitrary secret the same way, used
// to store the database password alongside the server's two keypairs.
func LockData(pw AesKey, data []byte) ([]byte, error) {
	return lock(pw, data)
}

func UnlockData(pw AesKey, locked []byte) ([]byte, error) {
	return unlock(pw, locked)
}

// WritePublicKey writes a public key to disk in the clear: public keys
// never need a password to read.
func WritePublicKey(path string, key PublicKey) error {
	return os.WriteFile(path, key.Marshal(), 0o644)
}

// ReadPublicKey inverts WritePublicKey.
func ReadPublicKey(path string) (PublicKey, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return PublicKey{}, fmt.Errorf("cryptoutil: read public key %s: %w", path, err)
	}
	return UnmarshalPublicKey(buf)
}

// WriteLocked and ReadLocked persist password-locked material (a locked
// private key or locked database password) to a single file.
func WriteLocked(path string, locked []byte) error {
	return os.WriteFile(path, locked, 0o600)
}

func ReadLocked(path string) ([]byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: read locked file %s: %w", path, err)
	}
	return buf, nil
}
