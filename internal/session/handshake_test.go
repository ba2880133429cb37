package session

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/drawserver/internal/cryptoutil"
	"github.com/ocx/drawserver/internal/protocol"
	"github.com/ocx/drawserver/internal/wire"
)

func listenLoopback(t *testing.T) (*wire.ListenSocket, string) {
	t.Helper()
	ls := wire.NewListenSocket()
	require.Equal(t, wire.Success, ls.Bind(0, "127.0.0.1"))
	require.Equal(t, wire.Success, ls.Listen())
	return ls, ls.Addr()
}

func TestHandshakeRunCompletesFourSteps(t *testing.T) {
	ls, _ := listenLoopback(t)
	defer ls.Close()
	addr := ls.Addr()

	serverKey, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	serverSig, err := cryptoutil.GenerateSignatureKeyPair()
	require.NoError(t, err)

	clientKey, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	clientDone := make(chan *Connection, 1)
	go func() {
		client, res := wire.Dial(addr)
		require.Equal(t, wire.Success, res)

		// Step 1: send client public key.
		keyMsg, err := protocol.NewMessage(protocol.TagKey, clientKey.Public.Marshal())
		require.NoError(t, err)
		require.Equal(t, wire.Success, client.Send(keyMsg.Encode()))

		// Step 2: receive server public key.
		dec := protocol.NewDecoder(false)
		res, status := client.WaitFor(dec)
		require.Equal(t, wire.Success, res)
		require.Equal(t, protocol.Decoded, status)
		serverKeyMsg, err := dec.Message()
		require.NoError(t, err)
		serverPub, err := cryptoutil.UnmarshalPublicKey(serverKeyMsg.Payload)
		require.NoError(t, err)

		// Step 3: send RSA-encrypted challenge (low 8 bytes only).
		challenge := make([]byte, cryptoutil.RSABytes)
		binary.LittleEndian.PutUint64(challenge[len(challenge)-8:], 0xDEADBEEFCAFED00D)
		encryptedChallenge, err := cryptoutil.Encrypt(serverPub, challenge)
		require.NoError(t, err)
		challengeMsg, err := protocol.NewMessage(protocol.TagRSA, encryptedChallenge)
		require.NoError(t, err)
		require.Equal(t, wire.Success, client.Send(challengeMsg.Encode()))

		// Step 4: receive signed, encrypted response.
		respDec := protocol.NewDecoder(false)
		res, status = client.WaitFor(respDec)
		require.Equal(t, wire.Success, res)
		require.Equal(t, protocol.Decoded, status)
		respMsg, err := respDec.Message()
		require.NoError(t, err)

		signed, err := cryptoutil.Decrypt(clientKey.Private, respMsg.Payload)
		require.NoError(t, err)
		response, err := cryptoutil.Open(serverSig, signed)
		require.NoError(t, err)

		base := len(response) - 36
		assert.Equal(t, challenge[len(challenge)-8:], response[base:base+8])

		conn := &Connection{Conn: client}
		clientDone <- conn
	}()

	var serverConn *wire.Conn
	for i := 0; i < 200; i++ {
		c, res := ls.TryAccept()
		if res == wire.Success {
			serverConn = c
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, serverConn)

	hs := Handshake{ServerKey: serverKey, ServerSignature: serverSig}
	result, err := hs.Run(serverConn)
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitingAuth, result.Phase)

	<-clientDone
}
