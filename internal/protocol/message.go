// Package protocol implements the wire framing every socket in this server
// speaks: a four-byte header (one-byte tag, three-byte little-endian
// payload length) followed by a payload padded up to a multiple of
// ChunkSize, so partial TCP reads can be folded back together one chunk
// at a time.
package protocol

import (
	"fmt"

	"github.com/ocx/drawserver/internal/cryptoutil"
)

// Tag identifies the payload a frame carries. The assignment below is
// fixed; both peers must agree on it.
type Tag uint8

const (
	TagKey Tag = iota
	TagRSA
	TagAES
	TagRaw
	TagHeartbeat
	TagConnectionResponse
	TagDisconnect
)

func (t Tag) String() string {
	switch t {
	case TagKey:
		return "Key"
	case TagRSA:
		return "RSA"
	case TagAES:
		return "AES"
	case TagRaw:
		return "Raw"
	case TagHeartbeat:
		return "Heartbeat"
	case TagConnectionResponse:
		return "ConnectionResponse"
	case TagDisconnect:
		return "Disconnect"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

const (
	// HeaderSize is the tag byte plus the 3-byte little-endian length field.
	HeaderSize = 4
	// ChunkSize is the unit every frame's data stream is padded to, and the
	// unit a socket reads from the wire one at a time while decoding.
	ChunkSize = 128
	// AESChunkSize is the block size AES-CBC ciphertext is padded to inside
	// an encrypted frame, ahead of the outer ChunkSize padding.
	AESChunkSize = 16
	// MaxMessageLength bounds a single frame's payload size.
	MaxMessageLength = 65532
)

// DisconnectCode explains why a connection was torn down.
type DisconnectCode uint8

const (
	DisconnectNormal DisconnectCode = iota
	DisconnectAuthTimeout
	DisconnectAuthFailed
	DisconnectProtocolError
	DisconnectHeartbeatTimeout
)

func (c DisconnectCode) String() string {
	switch c {
	case DisconnectNormal:
		return "client exit"
	case DisconnectAuthTimeout:
		return "auth timeout"
	case DisconnectAuthFailed:
		return "auth failed"
	case DisconnectProtocolError:
		return "protocol error"
	case DisconnectHeartbeatTimeout:
		return "heartbeat timeout"
	default:
		return fmt.Sprintf("DisconnectCode(%d)", uint8(c))
	}
}

// ConnectionResponseCode reports the outcome of the handshake's final
// step back to the client.
type ConnectionResponseCode uint8

const (
	ConnectionAccepted ConnectionResponseCode = iota
	ConnectionRejected
)

// paddedSize rounds size up to the next multiple of unit.
func paddedSize(size, unit int) int {
	if size%unit == 0 {
		return size
	}
	return (size/unit + 1) * unit
}

// FixedPayloadSize reports the exact payload size a tag must carry, and
// whether that tag is fixed-size at all (Raw and AES frames are bounded
// only by MaxMessageLength).
func FixedPayloadSize(tag Tag) (size int, fixed bool) {
	switch tag {
	case TagKey:
		return cryptoutil.PublicKeySize, true
	case TagRSA:
		return cryptoutil.RSABytes, true
	case TagConnectionResponse:
		return 1, true
	case TagDisconnect:
		return 1, true
	case TagHeartbeat:
		return 1, true
	default:
		return 0, false
	}
}

// Message is a single decoded plaintext frame: Key, RSA, Raw, Heartbeat,
// ConnectionResponse or Disconnect. AES frames are represented by
// EncryptedMessage instead, since they carry an extra IV field and a
// differently padded payload.
type Message struct {
	Tag     Tag
	Payload []byte
}

// NewMessage validates payload against tag's size contract and wraps it.
func NewMessage(tag Tag, payload []byte) (Message, error) {
	if tag == TagAES {
		return Message{}, fmt.Errorf("protocol: use NewEncryptedMessage for AES frames")
	}
	if len(payload) > MaxMessageLength {
		return Message{}, fmt.Errorf("protocol: payload of %d bytes exceeds MaxMessageLength", len(payload))
	}
	if size, fixed := FixedPayloadSize(tag); fixed && len(payload) != size {
		return Message{}, fmt.Errorf("protocol: tag %s requires payload of exactly %d bytes, got %d", tag, size, len(payload))
	}
	return Message{Tag: tag, Payload: payload}, nil
}

// Encode renders the frame's data stream: header plus payload, padded to
// a multiple of ChunkSize.
func (m Message) Encode() []byte {
	used := HeaderSize + len(m.Payload)
	buf := make([]byte, paddedSize(used, ChunkSize))
	buf[0] = byte(m.Tag)
	putUint24(buf[1:4], uint32(len(m.Payload)))
	copy(buf[HeaderSize:], m.Payload)
	return buf
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func uint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// EncryptedMessage is an AES-tagged frame: header, 8-byte IV, then
// ciphertext padded to AESChunkSize ahead of the outer ChunkSize padding.
type EncryptedMessage struct {
	IV         [cryptoutil.IVSize]byte
	Ciphertext []byte
	// plaintextLength is the unpadded length the caller asked to encrypt,
	// carried in the header's length field. The padded ciphertext length
	// is recomputed from it on decode.
	plaintextLength int
}

// NewEncryptedMessage encrypts plaintext under key with a fresh random IV.
func NewEncryptedMessage(plaintext []byte, key cryptoutil.AesKey) (EncryptedMessage, error) {
	if len(plaintext) > MaxMessageLength {
		return EncryptedMessage{}, fmt.Errorf("protocol: plaintext of %d bytes exceeds MaxMessageLength", len(plaintext))
	}
	iv, err := cryptoutil.NewIV()
	if err != nil {
		return EncryptedMessage{}, err
	}
	ct, err := cryptoutil.EncryptFixed(key, iv, plaintext)
	if err != nil {
		return EncryptedMessage{}, err
	}
	return EncryptedMessage{IV: iv, Ciphertext: ct, plaintextLength: len(plaintext)}, nil
}

// Decrypt recovers the plaintext using key, trimming the zero tail the
// block padding added.
func (m EncryptedMessage) Decrypt(key cryptoutil.AesKey) ([]byte, error) {
	return cryptoutil.DecryptFixed(key, m.IV, m.Ciphertext, m.plaintextLength)
}

// Encode renders the frame's data stream: header (carrying the
// *plaintext* length), the IV, then the AES-chunk-padded ciphertext, all
// padded again to a ChunkSize multiple.
func (m EncryptedMessage) Encode() []byte {
	used := HeaderSize + cryptoutil.IVSize + len(m.Ciphertext)
	buf := make([]byte, paddedSize(used, ChunkSize))
	buf[0] = byte(TagAES)
	putUint24(buf[1:4], uint32(m.plaintextLength))
	copy(buf[HeaderSize:HeaderSize+cryptoutil.IVSize], m.IV[:])
	copy(buf[HeaderSize+cryptoutil.IVSize:], m.Ciphertext)
	return buf
}
