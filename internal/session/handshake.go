package session

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ocx/drawserver/internal/cryptoutil"
	"github.com/ocx/drawserver/internal/protocol"
	"github.com/ocx/drawserver/internal/wire"
)

// handshakeChallengeWidth is the width of the low-order portion of the
// RSA block the client's challenge is allowed to occupy; every
// higher-order byte of the decrypted block must be zero.
const handshakeChallengeWidth = 8

// handshakeResponseWidth is the size of the signed step-4 bundle:
// challenge echo (8) + server nonce (4) + session key (16) + session
// token (8), occupying the low-order end of the RSA block.
const handshakeResponseWidth = 36

// HandshakeTimeout bounds how long Accept may take end to end before the
// supervising server forcibly closes the socket.
const HandshakeTimeout = 60 * time.Second

// rejectAndClose sends a rejected ConnectionResponse best-effort and
// closes the connection, used on every handshake failure path.
func rejectAndClose(conn *wire.Conn) {
	msg, err := protocol.NewMessage(protocol.TagConnectionResponse, []byte{byte(protocol.ConnectionRejected)})
	if err == nil {
		conn.Send(msg.Encode())
	}
	conn.Close()
}

// Handshake performs the four server-driven steps of the mutual
// authentication protocol (the fifth, client-driven step is
// Authenticator.TryAuthenticate, polled by Manager.Tick) against conn.
type Handshake struct {
	ServerKey       cryptoutil.KeyPair
	ServerSignature cryptoutil.SignatureKeyPair
}

// Run executes steps 1-4 and returns a Connection parked in
// PhaseAwaitingAuth, or an error if the client failed to complete them.
// The caller is expected to run Run inside its own goroutine bounded by
// HandshakeTimeout.
func (h Handshake) Run(conn *wire.Conn) (*Connection, error) {
	// Step 1: receive the client's public key.
	clientKeyDec := protocol.NewDecoder(false)
	res, status := conn.WaitFor(clientKeyDec)
	if res != wire.Success || status != protocol.Decoded {
		rejectAndClose(conn)
		return nil, fmt.Errorf("session: failed to receive client key")
	}
	clientKeyMsg, err := clientKeyDec.Message()
	if err != nil || clientKeyMsg.Tag != protocol.TagKey {
		rejectAndClose(conn)
		return nil, fmt.Errorf("session: expected key message")
	}
	clientPub, err := cryptoutil.UnmarshalPublicKey(clientKeyMsg.Payload)
	if err != nil {
		rejectAndClose(conn)
		return nil, fmt.Errorf("session: malformed client public key: %w", err)
	}

	// Step 2: send the server's public key.
	serverKeyMsg, err := protocol.NewMessage(protocol.TagKey, h.ServerKey.Public.Marshal())
	if err != nil {
		rejectAndClose(conn)
		return nil, err
	}
	if conn.Send(serverKeyMsg.Encode()) != wire.Success {
		rejectAndClose(conn)
		return nil, fmt.Errorf("session: failed to send server key")
	}

	// Step 3: receive the client's RSA-encrypted challenge.
	challengeDec := protocol.NewDecoder(false)
	res, status = conn.WaitFor(challengeDec)
	if res != wire.Success || status != protocol.Decoded {
		rejectAndClose(conn)
		return nil, fmt.Errorf("session: failed to receive challenge")
	}
	challengeMsg, err := challengeDec.Message()
	if err != nil || challengeMsg.Tag != protocol.TagRSA {
		rejectAndClose(conn)
		return nil, fmt.Errorf("session: expected rsa message")
	}

	decryptedChallenge, err := cryptoutil.Decrypt(h.ServerKey.Private, challengeMsg.Payload)
	if err != nil {
		rejectAndClose(conn)
		return nil, fmt.Errorf("session: failed to decrypt challenge: %w", err)
	}
	highOrder := decryptedChallenge[:len(decryptedChallenge)-handshakeChallengeWidth]
	for _, b := range highOrder {
		if b != 0 {
			rejectAndClose(conn)
			return nil, fmt.Errorf("session: challenge has non-zero high-order bytes")
		}
	}
	challengeLow := decryptedChallenge[len(decryptedChallenge)-handshakeChallengeWidth:]

	// Step 4: sign and encrypt the response: challenge echo, server nonce,
	// session key and session token, packed into the low-order bytes of
	// the block so the plaintext value always sits below both moduli. The
	// signature itself is uniform below the signing modulus and may still
	// exceed the client's; rolling fresh session material re-rolls it
	// until it fits.
	var (
		sessionKey   cryptoutil.AesKey
		sessionToken uint64
		authNonce    uint32
		signed       []byte
	)
	for attempt := 0; ; attempt++ {
		if attempt == 32 {
			rejectAndClose(conn)
			return nil, fmt.Errorf("session: could not produce a signature below the client modulus")
		}
		sessionKey, err = cryptoutil.GenerateAESKey()
		if err != nil {
			rejectAndClose(conn)
			return nil, err
		}
		sessionToken, err = randomUint64()
		if err != nil {
			rejectAndClose(conn)
			return nil, err
		}
		authNonce, err = randomUint32()
		if err != nil {
			rejectAndClose(conn)
			return nil, err
		}

		response := make([]byte, cryptoutil.RSABytes)
		base := cryptoutil.RSABytes - handshakeResponseWidth
		copy(response[base:base+8], challengeLow)
		binary.LittleEndian.PutUint32(response[base+8:base+12], authNonce)
		copy(response[base+12:base+28], sessionKey[:])
		binary.LittleEndian.PutUint64(response[base+28:base+36], sessionToken)

		signed, err = cryptoutil.Sign(h.ServerSignature, response)
		if err != nil {
			rejectAndClose(conn)
			return nil, err
		}
		if cryptoutil.FitsModulus(signed, clientPub) {
			break
		}
	}

	wireBlock, err := cryptoutil.Encrypt(clientPub, signed)
	if err != nil {
		rejectAndClose(conn)
		return nil, err
	}

	responseMsg, err := protocol.NewMessage(protocol.TagRSA, wireBlock)
	if err != nil {
		rejectAndClose(conn)
		return nil, err
	}
	if conn.Send(responseMsg.Encode()) != wire.Success {
		rejectAndClose(conn)
		return nil, fmt.Errorf("session: failed to send handshake response")
	}

	return &Connection{
		Conn:            conn,
		Phase:           PhaseAwaitingAuth,
		ClientPublicKey: clientPub,
		SessionKey:      sessionKey,
		SessionToken:    sessionToken,
		AuthNonce:       authNonce,
		AcceptedAt:      time.Now(),
	}, nil
}
