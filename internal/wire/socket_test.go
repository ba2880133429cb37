package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/drawserver/internal/protocol"
)

func TestBindListenAcceptRoundTrip(t *testing.T) {
	ls := NewListenSocket()
	require.Equal(t, Success, ls.Bind(0, "127.0.0.1"))
	require.Equal(t, Success, ls.Listen())
	defer ls.Close()

	addr := ls.ln.Addr().String()

	clientDone := make(chan *Conn, 1)
	go func() {
		var client *Conn
		for i := 0; i < 50; i++ {
			c, res := Dial(addr)
			if res == Success {
				client = c
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		clientDone <- client
	}()

	var server *Conn
	for i := 0; i < 200; i++ {
		conn, res := ls.TryAccept()
		if res == Success {
			server = conn
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, server)
	assert.True(t, server.Connected())

	client := <-clientDone
	require.NotNil(t, client)
	defer client.Close()
	defer server.Close()
}

func TestSendReceivePlaintextMessage(t *testing.T) {
	ls := NewListenSocket()
	require.Equal(t, Success, ls.Bind(0, "127.0.0.1"))
	require.Equal(t, Success, ls.Listen())
	defer ls.Close()

	addr := ls.ln.Addr().String()

	client, res := Dial(addr)
	require.Equal(t, Success, res)
	defer client.Close()

	var server *Conn
	for i := 0; i < 200; i++ {
		conn, r := ls.TryAccept()
		if r == Success {
			server = conn
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, server)
	defer server.Close()

	msg, err := protocol.NewMessage(protocol.TagRaw, []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, Success, client.Send(msg.Encode()))

	dec := protocol.NewDecoder(false)
	res2, status := server.WaitFor(dec)
	require.Equal(t, Success, res2)
	require.Equal(t, protocol.Decoded, status)

	got, err := dec.Message()
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got.Payload)
}

func TestHeartbeatMarksWaitingUntilReplyClearsIt(t *testing.T) {
	ls := NewListenSocket()
	require.Equal(t, Success, ls.Bind(0, "127.0.0.1"))
	require.Equal(t, Success, ls.Listen())
	defer ls.Close()

	addr := ls.ln.Addr().String()
	client, res := Dial(addr)
	require.Equal(t, Success, res)
	defer client.Close()

	var server *Conn
	for i := 0; i < 200; i++ {
		conn, r := ls.TryAccept()
		if r == Success {
			server = conn
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, server)
	defer server.Close()

	require.Equal(t, Success, server.Heartbeat())
	assert.True(t, server.Waiting())

	dec := protocol.NewDecoder(false)
	res2, status := client.WaitFor(dec)
	require.Equal(t, Success, res2)
	require.Equal(t, protocol.Decoded, status)
	got, err := dec.Message()
	require.NoError(t, err)
	assert.Equal(t, protocol.TagHeartbeat, got.Tag)

	reply, err := protocol.NewMessage(protocol.TagHeartbeat, []byte{0})
	require.NoError(t, err)
	require.Equal(t, Success, client.Send(reply.Encode()))

	serverDec := protocol.NewDecoder(false)
	res3, status3 := server.WaitFor(serverDec)
	require.Equal(t, Success, res3)
	require.Equal(t, protocol.Decoded, status3)
	assert.False(t, server.Waiting())
}

func TestConnectionDeclaredDeadAfterHeartbeatTimeout(t *testing.T) {
	ls := NewListenSocket()
	require.Equal(t, Success, ls.Bind(0, "127.0.0.1"))
	require.Equal(t, Success, ls.Listen())
	defer ls.Close()

	addr := ls.ln.Addr().String()
	client, res := Dial(addr)
	require.Equal(t, Success, res)
	defer client.Close()

	var server *Conn
	for i := 0; i < 200; i++ {
		conn, r := ls.TryAccept()
		if r == Success {
			server = conn
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, server)
	defer server.Close()

	server.SetConnectionTimeout(10 * time.Millisecond)
	require.Equal(t, Success, server.Heartbeat())

	time.Sleep(30 * time.Millisecond)

	dec := protocol.NewDecoder(false)
	res2, _ := server.Receive(dec)
	assert.Equal(t, ErrSocketDead, res2)
	assert.True(t, server.Dead())
}

func TestReceiveReportsDisconnectedForDisconnectFrame(t *testing.T) {
	ls := NewListenSocket()
	require.Equal(t, Success, ls.Bind(0, "127.0.0.1"))
	require.Equal(t, Success, ls.Listen())
	defer ls.Close()

	addr := ls.ln.Addr().String()
	client, res := Dial(addr)
	require.Equal(t, Success, res)
	defer client.Close()

	var server *Conn
	for i := 0; i < 200; i++ {
		conn, r := ls.TryAccept()
		if r == Success {
			server = conn
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, server)
	defer server.Close()

	msg, err := protocol.NewMessage(protocol.TagDisconnect, []byte{byte(protocol.DisconnectNormal)})
	require.NoError(t, err)
	require.Equal(t, Success, client.Send(msg.Encode()))

	dec := protocol.NewDecoder(true)
	res2, status := server.WaitFor(dec)
	assert.Equal(t, Disconnected, res2)
	assert.Equal(t, protocol.Decoded, status)
	assert.Equal(t, protocol.TagDisconnect, dec.Tag())
	assert.Equal(t, []byte{byte(protocol.DisconnectNormal)}, dec.PlainPayload())
}
