package cryptoutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrivateKeyRoundTripsThroughWireFormat(t *testing.T) {
	kp := mustKeyPair(t)
	buf := kp.Private.Marshal()
	require.Len(t, buf, PrivateKeySize)

	got, err := UnmarshalPrivateKey(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, kp.Private.N.Cmp(got.N))
	assert.Equal(t, 0, kp.Private.D.Cmp(got.D))
}

func TestHashPasswordIsStableAndDistinguishesInputs(t *testing.T) {
	a := HashPassword("correct horse battery staple")
	b := HashPassword("correct horse battery staple")
	assert.Equal(t, a, b)

	c := HashPassword("different password")
	assert.NotEqual(t, a, c)
}

func TestLockUnlockPrivateKeyRoundTrip(t *testing.T) {
	kp := mustKeyPair(t)
	pw := HashPassword("hunter2")

	locked, err := LockPrivateKey(pw, kp.Private)
	require.NoError(t, err)

	got, err := UnlockPrivateKey(pw, locked)
	require.NoError(t, err)
	assert.Equal(t, 0, kp.Private.N.Cmp(got.N))
	assert.Equal(t, 0, kp.Private.D.Cmp(got.D))
}

func TestUnlockPrivateKeyRejectsWrongPassword(t *testing.T) {
	kp := mustKeyPair(t)
	locked, err := LockPrivateKey(HashPassword("right"), kp.Private)
	require.NoError(t, err)

	_, err = UnlockPrivateKey(HashPassword("wrong"), locked)
	assert.Error(t, err)
}

func TestLockUnlockDataRoundTrip(t *testing.T) {
	pw := HashPassword("db-password-unlock-key")
	secret := []byte("s3cr3t-database-password")

	locked, err := LockData(pw, secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, locked)

	got, err := UnlockData(pw, locked)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestWriteReadPublicKeyRoundTrip(t *testing.T) {
	kp := mustKeyPair(t)
	path := filepath.Join(t.TempDir(), "server_key.pub")

	require.NoError(t, WritePublicKey(path, kp.Public))

	got, err := ReadPublicKey(path)
	require.NoError(t, err)
	assert.Equal(t, 0, kp.Public.N.Cmp(got.N))
	assert.Equal(t, 0, kp.Public.E.Cmp(got.E))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, kp.Public.Marshal(), raw)
}

func TestWriteReadLockedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server_key_root.pri")
	kp := mustKeyPair(t)
	pw := HashPassword("root-password")

	locked, err := LockPrivateKey(pw, kp.Private)
	require.NoError(t, err)
	require.NoError(t, WriteLocked(path, locked))

	raw, err := ReadLocked(path)
	require.NoError(t, err)

	got, err := UnlockPrivateKey(pw, raw)
	require.NoError(t, err)
	assert.Equal(t, 0, kp.Private.D.Cmp(got.D))
}

func TestMultipleUsersUnlockSameKeyUnderDifferentPasswords(t *testing.T) {
	kp := mustKeyPair(t)

	rootLocked, err := LockPrivateKey(HashPassword("root-pw"), kp.Private)
	require.NoError(t, err)
	aliceLocked, err := LockPrivateKey(HashPassword("alice-pw"), kp.Private)
	require.NoError(t, err)

	rootGot, err := UnlockPrivateKey(HashPassword("root-pw"), rootLocked)
	require.NoError(t, err)
	aliceGot, err := UnlockPrivateKey(HashPassword("alice-pw"), aliceLocked)
	require.NoError(t, err)

	assert.Equal(t, 0, rootGot.D.Cmp(aliceGot.D))
	assert.Equal(t, 0, rootGot.N.Cmp(aliceGot.N))
}
