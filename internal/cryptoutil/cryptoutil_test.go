package cryptoutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKeyPair(t *testing.T) KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func mustSigKeyPair(t *testing.T) SignatureKeyPair {
	t.Helper()
	kp, err := GenerateSignatureKeyPair()
	require.NoError(t, err)
	return kp
}

func TestPublicKeyRoundTripsThroughWireFormat(t *testing.T) {
	kp := mustKeyPair(t)
	buf := kp.Public.Marshal()
	require.Len(t, buf, PublicKeySize)

	got, err := UnmarshalPublicKey(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, kp.Public.N.Cmp(got.N))
	assert.Equal(t, 0, kp.Public.E.Cmp(got.E))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	kp := mustKeyPair(t)

	block := make([]byte, RSABytes)
	block[len(block)-1] = 0x42
	block[0] = 0x01

	ct, err := Encrypt(kp.Public, block)
	require.NoError(t, err)
	assert.NotEqual(t, block, ct)

	pt, err := Decrypt(kp.Private, ct)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(block, pt))
}

func TestSignOpenRoundTrip(t *testing.T) {
	sig := mustSigKeyPair(t)

	block := make([]byte, RSABytes)
	block[10] = 0x99

	signed, err := Sign(sig, block)
	require.NoError(t, err)

	opened, err := Open(sig, signed)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(block, opened))
}

func TestSignThenEncryptLayering(t *testing.T) {
	// Mirrors handshake step 4: the server signs the response with its
	// signature key, then encrypts the signed block under the client's
	// encryption public key, both transforms preserving the block size.
	sig := mustSigKeyPair(t)
	client := mustKeyPair(t)

	response := make([]byte, RSABytes)
	response[5] = 0xAB

	// As in the handshake, re-roll the block until its signature sits
	// below the client's modulus, since Encrypt rejects larger values.
	var signed []byte
	for attempt := 0; ; attempt++ {
		require.Less(t, attempt, 32, "no signature fitted the client modulus")
		response[RSABytes-1] = byte(attempt)
		var err error
		signed, err = Sign(sig, response)
		require.NoError(t, err)
		if FitsModulus(signed, client.Public) {
			break
		}
	}

	wire, err := Encrypt(client.Public, signed)
	require.NoError(t, err)

	roundTrippedSigned, err := Decrypt(client.Private, wire)
	require.NoError(t, err)

	recovered, err := Open(sig, roundTrippedSigned)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(response, recovered))
}

func TestEncryptRejectsWrongBlockSize(t *testing.T) {
	kp := mustKeyPair(t)
	_, err := Encrypt(kp.Public, []byte("too short"))
	assert.Error(t, err)
}

func TestAESCBCRoundTrip(t *testing.T) {
	key, err := GenerateAESKey()
	require.NoError(t, err)
	iv, err := NewIV()
	require.NoError(t, err)

	plaintext := []byte("session token payload, not block aligned")

	ct, err := EncryptCBC(key, iv, plaintext)
	require.NoError(t, err)
	assert.Equal(t, 0, len(ct)%16)

	pt, err := DecryptCBC(key, iv, ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestEncryptFixedKeepsBlockAlignedSize(t *testing.T) {
	key, err := GenerateAESKey()
	require.NoError(t, err)
	iv, err := NewIV()
	require.NoError(t, err)

	for _, size := range []int{0, 1, 15, 16, 17, 32, 4096} {
		plaintext := make([]byte, size)
		for i := range plaintext {
			plaintext[i] = byte(i)
		}

		ct, err := EncryptFixed(key, iv, plaintext)
		require.NoError(t, err)
		want := size
		if size%16 != 0 {
			want = size + 16 - size%16
		}
		assert.Len(t, ct, want, "size %d", size)

		pt, err := DecryptFixed(key, iv, ct, size)
		require.NoError(t, err)
		if size == 0 {
			assert.Empty(t, pt)
		} else {
			assert.Equal(t, plaintext, pt)
		}
	}
}

func TestDecryptFixedRejectsLengthBeyondCiphertext(t *testing.T) {
	key, _ := GenerateAESKey()
	iv, _ := NewIV()
	ct, err := EncryptFixed(key, iv, []byte("short"))
	require.NoError(t, err)

	_, err = DecryptFixed(key, iv, ct, len(ct)+1)
	assert.Error(t, err)
}

func TestAESCBCRejectsUnalignedCiphertext(t *testing.T) {
	key, _ := GenerateAESKey()
	iv, _ := NewIV()
	_, err := DecryptCBC(key, iv, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestAESCBCDifferentIVsProduceDifferentCiphertext(t *testing.T) {
	key, _ := GenerateAESKey()
	ivA, _ := NewIV()
	ivB, _ := NewIV()
	plaintext := []byte("identical plaintext")

	ctA, err := EncryptCBC(key, ivA, plaintext)
	require.NoError(t, err)
	ctB, err := EncryptCBC(key, ivB, plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, ctA, ctB)
}

func TestHash256Deterministic(t *testing.T) {
	a := Hash256([]byte("token-material"))
	b := Hash256([]byte("token-material"))
	assert.Equal(t, a, b)

	c := Hash256([]byte("different"))
	assert.NotEqual(t, a, c)
}
