package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// IVSize is the width of the random IV field carried in an encrypted
// message frame. AES-CBC itself needs a block-sized (16-byte) IV;
// ExpandIV deterministically widens the 8 wire-carried random bytes into
// that block by zero-extending them, so the wire format stays the
// narrower 64 bits while the cipher still gets a full-width IV.
const IVSize = 8

// ExpandIV widens an 8-byte wire IV into the 16-byte IV crypto/cipher's
// CBC mode requires.
func ExpandIV(iv [IVSize]byte) [aes.BlockSize]byte {
	var full [aes.BlockSize]byte
	copy(full[:IVSize], iv[:])
	return full
}

// NewIV draws a fresh random 8-byte IV from the CSPRNG.
func NewIV() ([IVSize]byte, error) {
	var iv [IVSize]byte
	if _, err := rand.Read(iv[:]); err != nil {
		return iv, fmt.Errorf("cryptoutil: generate iv: %w", err)
	}
	return iv, nil
}

// pad applies PKCS#7 padding to a multiple of aes.BlockSize, the
// ciphertext-block granularity every AES-tagged frame carries.
func pad(data []byte) []byte {
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoutil: ciphertext not block-aligned")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, fmt.Errorf("cryptoutil: invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("cryptoutil: invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// EncryptCBC pads plaintext to a block multiple and encrypts it under key
// with AES-128-CBC, using iv expanded via ExpandIV.
func EncryptCBC(key AesKey, iv [IVSize]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	full := ExpandIV(iv)
	padded := pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, full[:]).CryptBlocks(out, padded)
	return out, nil
}

// DecryptCBC inverts EncryptCBC, removing the PKCS#7 padding on success.
func DecryptCBC(key AesKey, iv [IVSize]byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoutil: ciphertext not block-aligned")
	}
	full := ExpandIV(iv)
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, full[:]).CryptBlocks(out, ciphertext)
	return unpad(out)
}

// EncryptFixed encrypts plaintext zero-padded to a block multiple,
// producing ciphertext of exactly as many bytes as an AES frame declares
// for the plaintext length: a block-aligned plaintext gains no extra
// block. The message frame records the true length, so DecryptFixed can
// strip the zero tail without in-band padding bytes.
func EncryptFixed(key AesKey, iv [IVSize]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	padded := plaintext
	if rem := len(plaintext) % aes.BlockSize; rem != 0 {
		padded = make([]byte, len(plaintext)+aes.BlockSize-rem)
		copy(padded, plaintext)
	}
	full := ExpandIV(iv)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, full[:]).CryptBlocks(out, padded)
	return out, nil
}

// DecryptFixed inverts EncryptFixed given the original plaintext length.
func DecryptFixed(key AesKey, iv [IVSize]byte, ciphertext []byte, length int) ([]byte, error) {
	if length < 0 || length > len(ciphertext) {
		return nil, fmt.Errorf("cryptoutil: declared length %d outside ciphertext of %d bytes", length, len(ciphertext))
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoutil: ciphertext not block-aligned")
	}
	if len(ciphertext) == 0 {
		return nil, nil
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	full := ExpandIV(iv)
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, full[:]).CryptBlocks(out, ciphertext)
	return out[:length], nil
}
