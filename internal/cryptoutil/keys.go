// Package cryptoutil implements the handful of cryptographic capabilities
// the handshake and message codec consume: RSA-2048 key exchange and
// signing, AES-128-CBC session encryption, SHA-256 hashing and a CSPRNG.
// The wrappers are thin and deliberately size-preserving so every RSA
// wire field stays exactly 2048 bits regardless of which of the two RSA
// keypairs a given frame carries.
package cryptoutil

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RSABits is the modulus size every peer key must carry.
const RSABits = 2048

// RSABytes is the byte length of every RSA-sized wire field.
const RSABytes = RSABits / 8

// PublicKey is the public half of an RSA-2048 keypair, stored as raw
// modulus/exponent so it can be framed byte-for-byte as the "Key" message
// payload (see protocol.TagKey).
type PublicKey struct {
	N *big.Int
	E *big.Int
}

// PrivateKey is the private half.
type PrivateKey struct {
	N *big.Int
	D *big.Int
}

// KeyPair is an RSA-2048 keypair used for session-key exchange.
type KeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// SignatureKeyPair is a distinct RSA-2048 keypair used only to sign
// handshake step 4; kept as its own type so a signature key can never be
// accidentally used for encryption or vice versa.
type SignatureKeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// AesKey is the 128-bit symmetric key every live connection owns exactly
// one of.
type AesKey [16]byte

// GenerateKeyPair produces a fresh RSA-2048 encryption keypair using the
// process CSPRNG.
func GenerateKeyPair() (KeyPair, error) {
	n, e, d, err := generateRawRSA()
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		Public:  PublicKey{N: n, E: e},
		Private: PrivateKey{N: n, D: d},
	}, nil
}

// GenerateSignatureKeyPair produces a fresh RSA-2048 signature keypair.
func GenerateSignatureKeyPair() (SignatureKeyPair, error) {
	n, e, d, err := generateRawRSA()
	if err != nil {
		return SignatureKeyPair{}, err
	}
	return SignatureKeyPair{
		Public:  PublicKey{N: n, E: e},
		Private: PrivateKey{N: n, D: d},
	}, nil
}

// GenerateAESKey produces a fresh 128-bit session key via the CSPRNG.
func GenerateAESKey() (AesKey, error) {
	var k AesKey
	if _, err := rand.Read(k[:]); err != nil {
		return AesKey{}, fmt.Errorf("cryptoutil: generate aes key: %w", err)
	}
	return k, nil
}

// Marshal serialises a PublicKey into the fixed-width buffer carried in a
// "Key" protocol frame: modulus then exponent, both RSABytes wide,
// big-endian.
func (p PublicKey) Marshal() []byte {
	buf := make([]byte, RSABytes*2)
	p.N.FillBytes(buf[:RSABytes])
	p.E.FillBytes(buf[RSABytes:])
	return buf
}

// PublicKeySize is the wire size of a marshalled PublicKey.
const PublicKeySize = RSABytes * 2

// UnmarshalPublicKey parses the fixed-width buffer produced by Marshal.
func UnmarshalPublicKey(buf []byte) (PublicKey, error) {
	if len(buf) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("cryptoutil: public key must be %d bytes, got %d", PublicKeySize, len(buf))
	}
	return PublicKey{
		N: new(big.Int).SetBytes(buf[:RSABytes]),
		E: new(big.Int).SetBytes(buf[RSABytes:]),
	}, nil
}
