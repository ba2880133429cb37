package protocol

import "fmt"

// DecodeStatus mirrors the three-state result of feeding a chunk into a
// Decoder: the frame isn't finished (Decoding), it completed (Decoded), or
// the header it read was malformed (DecodeError).
type DecodeStatus int

const (
	Decoded DecodeStatus = iota
	Decoding
	DecodeError
)

// decoderState tracks whether Feed has consumed a header yet, so a
// caller can push chunks into the same Decoder across several socket
// reads.
type decoderState int

const (
	stateAwaitingHeader decoderState = iota
	stateReadingBody
)

// Decoder incrementally reassembles a single frame from a stream of
// fixed-size chunks: the socket feeds 128-byte reads in one at a time
// until the frame completes or a protocol violation is detected.
type Decoder struct {
	state     decoderState
	tag       Tag
	want      int
	plainLen  int
	encrypted bool
	iv        [8]byte
	ivRead    bool
	body      []byte
}

// NewDecoder returns a fresh decoder. encrypted tells the decoder whether
// it must additionally expect and strip an 8-byte IV after the header,
// i.e. whether the caller is receiving session traffic or a plaintext
// handshake frame.
func NewDecoder(encrypted bool) *Decoder {
	return &Decoder{encrypted: encrypted}
}

// Reset clears the decoder so it can be reused for the next frame.
func (d *Decoder) Reset() {
	*d = Decoder{encrypted: d.encrypted}
}

// Feed consumes one chunk (expected to be exactly ChunkSize bytes, as
// TCPSocket always reads) and advances the decode state machine.
func (d *Decoder) Feed(chunk []byte) (DecodeStatus, error) {
	offset := 0

	if d.state == stateAwaitingHeader {
		if len(chunk) < HeaderSize {
			return DecodeError, fmt.Errorf("protocol: chunk shorter than header")
		}
		tag := Tag(chunk[0])
		length := int(uint24(chunk[1:4]))
		offset = HeaderSize

		if tag > TagDisconnect {
			return DecodeError, fmt.Errorf("protocol: unknown tag %d", uint8(tag))
		}
		if d.encrypted {
			switch tag {
			case TagAES, TagHeartbeat, TagDisconnect:
			default:
				return DecodeError, fmt.Errorf("protocol: expected AES, Heartbeat or Disconnect frame, got %s", tag)
			}
		} else if tag == TagAES {
			return DecodeError, fmt.Errorf("protocol: unexpected AES frame on plaintext decoder")
		}

		if length > MaxMessageLength {
			return DecodeError, fmt.Errorf("protocol: declared length %d exceeds MaxMessageLength", length)
		}
		if size, fixed := FixedPayloadSize(tag); fixed && length != size {
			return DecodeError, fmt.Errorf("protocol: tag %s requires length %d, got %d", tag, size, length)
		}

		d.tag = tag
		d.plainLen = length

		// Only AES frames carry an IV and AES-chunk-padded ciphertext.
		// Heartbeat and Disconnect frames take the plain decode path even
		// on an encrypted-mode decoder.
		if d.encrypted && tag == TagAES {
			if len(chunk) < offset+8 {
				return DecodeError, fmt.Errorf("protocol: chunk too short for IV")
			}
			copy(d.iv[:], chunk[offset:offset+8])
			offset += 8
			d.ivRead = true
			d.want = paddedSize(length, AESChunkSize)
		} else {
			d.want = length
		}

		d.body = make([]byte, 0, d.want)
		d.state = stateReadingBody
	}

	remaining := d.want - len(d.body)
	available := len(chunk) - offset
	take := remaining
	if available < take {
		take = available
	}
	if take > 0 {
		d.body = append(d.body, chunk[offset:offset+take]...)
	}

	if len(d.body) >= d.want {
		return Decoded, nil
	}
	return Decoding, nil
}

// Message returns the decoded plaintext frame. Valid only after Feed
// returned Decoded and the decoder was constructed with encrypted=false.
func (d *Decoder) Message() (Message, error) {
	if d.encrypted {
		return Message{}, fmt.Errorf("protocol: decoder configured for encrypted frames")
	}
	return Message{Tag: d.tag, Payload: d.body}, nil
}

// EncryptedMessage returns the decoded ciphertext frame. Valid only after
// Feed returned Decoded with tag AES and the decoder was constructed with
// encrypted=true; Heartbeat and Disconnect frames never carry an IV (see
// PlainPayload).
func (d *Decoder) EncryptedMessage() (EncryptedMessage, error) {
	if !d.encrypted {
		return EncryptedMessage{}, fmt.Errorf("protocol: decoder not configured for encrypted frames")
	}
	if d.tag != TagAES {
		return EncryptedMessage{}, fmt.Errorf("protocol: decoded frame is tag %s, not AES", d.tag)
	}
	return EncryptedMessage{IV: d.iv, Ciphertext: d.body, plaintextLength: d.plainLen}, nil
}

// PlainPayload returns the decoded body for a Heartbeat or Disconnect
// frame decoded on an encrypted-mode decoder, which carries neither an IV
// nor ciphertext (see Feed's AES-only IV handling above).
func (d *Decoder) PlainPayload() []byte { return d.body }

// Tag reports the tag read from the header once Feed has consumed it.
func (d *Decoder) Tag() Tag { return d.tag }
