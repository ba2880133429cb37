package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/drawserver/internal/cryptoutil"
)

func chunks(data []byte) [][]byte {
	var out [][]byte
	for i := 0; i < len(data); i += ChunkSize {
		end := i + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[i:end])
	}
	return out
}

func TestMessageEncodeIsChunkPadded(t *testing.T) {
	msg, err := NewMessage(TagRaw, []byte("hello, drawing server"))
	require.NoError(t, err)

	stream := msg.Encode()
	assert.Equal(t, 0, len(stream)%ChunkSize)
	assert.Equal(t, byte(TagRaw), stream[0])
}

func TestMessageRoundTripThroughDecoder(t *testing.T) {
	payload := []byte("search query payload")
	msg, err := NewMessage(TagRaw, payload)
	require.NoError(t, err)

	dec := NewDecoder(false)
	var status DecodeStatus
	for _, c := range chunks(msg.Encode()) {
		status, err = dec.Feed(c)
		require.NoError(t, err)
	}
	require.Equal(t, Decoded, status)

	got, err := dec.Message()
	require.NoError(t, err)
	assert.Equal(t, TagRaw, got.Tag)
	assert.Equal(t, payload, got.Payload)
}

func TestKeyMessageRejectsWrongSize(t *testing.T) {
	_, err := NewMessage(TagKey, []byte("too short"))
	assert.Error(t, err)
}

func TestKeyMessageAcceptsExactPublicKeySize(t *testing.T) {
	buf := make([]byte, cryptoutil.PublicKeySize)
	msg, err := NewMessage(TagKey, buf)
	require.NoError(t, err)
	assert.Equal(t, TagKey, msg.Tag)
}

func TestEncryptedMessageRoundTripThroughDecoder(t *testing.T) {
	key, err := cryptoutil.GenerateAESKey()
	require.NoError(t, err)

	plaintext := []byte("session token handshake payload")
	em, err := NewEncryptedMessage(plaintext, key)
	require.NoError(t, err)

	dec := NewDecoder(true)
	var status DecodeStatus
	for _, c := range chunks(em.Encode()) {
		status, err = dec.Feed(c)
		require.NoError(t, err)
	}
	require.Equal(t, Decoded, status)

	got, err := dec.EncryptedMessage()
	require.NoError(t, err)
	assert.Equal(t, em.IV, got.IV)

	recovered, err := got.Decrypt(key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestEncryptedMessageBlockAlignedPayloadRoundTrips(t *testing.T) {
	key, err := cryptoutil.GenerateAESKey()
	require.NoError(t, err)

	plaintext := make([]byte, 32)
	for i := range plaintext {
		plaintext[i] = byte(i * 7)
	}
	em, err := NewEncryptedMessage(plaintext, key)
	require.NoError(t, err)
	assert.Len(t, em.Ciphertext, 32, "an aligned payload gains no extra block")

	dec := NewDecoder(true)
	var status DecodeStatus
	for _, c := range chunks(em.Encode()) {
		status, err = dec.Feed(c)
		require.NoError(t, err)
	}
	require.Equal(t, Decoded, status)

	got, err := dec.EncryptedMessage()
	require.NoError(t, err)
	recovered, err := got.Decrypt(key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestDecoderRejectsMismatchedProtocol(t *testing.T) {
	msg, err := NewMessage(TagRaw, []byte("plain"))
	require.NoError(t, err)

	dec := NewDecoder(true)
	_, err = dec.Feed(msg.Encode()[:ChunkSize])
	assert.Error(t, err)
}

func TestDecoderRejectsUnknownTag(t *testing.T) {
	dec := NewDecoder(false)
	chunk := make([]byte, ChunkSize)
	chunk[0] = 0x7F

	_, err := dec.Feed(chunk)
	assert.Error(t, err)
}

func TestDecoderRejectsOversizedDeclaredLength(t *testing.T) {
	dec := NewDecoder(false)
	chunk := make([]byte, ChunkSize)
	chunk[0] = byte(TagRaw)
	putUint24(chunk[1:4], MaxMessageLength+1)

	_, err := dec.Feed(chunk)
	assert.Error(t, err)
}

func TestDecoderHandlesSplitAcrossManyChunks(t *testing.T) {
	payload := make([]byte, ChunkSize*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}
	msg, err := NewMessage(TagRaw, payload)
	require.NoError(t, err)

	stream := msg.Encode()
	dec := NewDecoder(false)
	var status DecodeStatus
	for i := 0; i < len(stream); i += ChunkSize {
		status, err = dec.Feed(stream[i : i+ChunkSize])
		require.NoError(t, err)
	}
	assert.Equal(t, Decoded, status)

	got, err := dec.Message()
	require.NoError(t, err)
	assert.Equal(t, payload, got.Payload)
}

func TestEncryptedDecoderAcceptsDisconnectFrameWithoutIV(t *testing.T) {
	msg, err := NewMessage(TagDisconnect, []byte{byte(DisconnectHeartbeatTimeout)})
	require.NoError(t, err)

	dec := NewDecoder(true)
	var status DecodeStatus
	for _, c := range chunks(msg.Encode()) {
		status, err = dec.Feed(c)
		require.NoError(t, err)
	}
	require.Equal(t, Decoded, status)
	assert.Equal(t, TagDisconnect, dec.Tag())
	assert.Equal(t, []byte{byte(DisconnectHeartbeatTimeout)}, dec.PlainPayload())

	_, err = dec.EncryptedMessage()
	assert.Error(t, err, "a Disconnect frame never carries ciphertext or an IV")
}

func TestEncryptedDecoderAcceptsHeartbeatFrame(t *testing.T) {
	msg, err := NewMessage(TagHeartbeat, []byte{0})
	require.NoError(t, err)

	dec := NewDecoder(true)
	status, err := dec.Feed(msg.Encode()[:ChunkSize])
	require.NoError(t, err)
	require.Equal(t, Decoded, status)
	assert.Equal(t, TagHeartbeat, dec.Tag())
}
