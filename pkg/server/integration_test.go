package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/udpchat/pkg/database"
	"github.com/aeolun/udpchat/pkg/protocol"
)

// startTestServer serves on an ephemeral loopback port until the test ends
func startTestServer(t *testing.T, config ServerConfig) (*Server, net.Addr) {
	t.Helper()
	config.Address = "127.0.0.1"
	config.Port = 0

	conn, err := Listen(context.Background(), config)
	require.NoError(t, err)

	srv, err := NewServer(config, NewPacketOutbox(conn), zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, conn) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
		srv.Close()
	})
	return srv, conn.LocalAddr()
}

// testClient is a raw UDP peer speaking the wire protocol
type testClient struct {
	t    *testing.T
	conn net.Conn
}

func dialTestClient(t *testing.T, addr net.Addr) *testClient {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(message string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(protocol.MakeDataPacket(message)))
	require.NoError(c.t, err)
}

func (c *testClient) receive() protocol.Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, protocol.MaxPacketSize)
	n, err := c.conn.Read(buf)
	require.NoError(c.t, err)

	pkt, err := protocol.DecodeDatagram(buf[:n])
	require.NoError(c.t, err)
	return protocol.DecodeMessage(pkt.Body)
}

func (c *testClient) expectSilence() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	buf := make([]byte, protocol.MaxPacketSize)
	_, err := c.conn.Read(buf)
	require.Error(c.t, err, "expected no datagram")
}

// list round-trips a request_users_list; the reply also proves every earlier
// datagram from this client has been handled
func (c *testClient) list() []string {
	c.t.Helper()
	c.send(protocol.RequestUsersListMessage())
	msg := c.receive()
	require.Equal(c.t, protocol.VerbResponseUsersList, msg.Verb)
	return msg.Names()
}

func TestIntegrationChat(t *testing.T) {
	_, addr := startTestServer(t, DefaultConfig())

	alice := dialTestClient(t, addr)
	bob := dialTestClient(t, addr)

	alice.send(protocol.JoinMessage("alice"))
	assert.Equal(t, []string{"alice"}, alice.list())
	bob.send(protocol.JoinMessage("bob"))
	assert.Equal(t, []string{"alice", "bob"}, bob.list())

	alice.send(protocol.SendMessage([]string{"bob"}, "hello there"))
	msg := bob.receive()
	assert.Equal(t, protocol.VerbForwardMessage, msg.Verb)
	assert.Equal(t, "1,alice", msg.Arg)
	assert.Equal(t, "hello there", msg.Text)

	bob.send(protocol.DisconnectMessage("bob"))
	assert.Equal(t, []string{"alice"}, alice.list())

	alice.send(protocol.SendMessage([]string{"bob"}, "still there?"))
	alice.list()
	bob.expectSilence()
}

func TestIntegrationDuplicateName(t *testing.T) {
	_, addr := startTestServer(t, DefaultConfig())

	first := dialTestClient(t, addr)
	second := dialTestClient(t, addr)

	first.send(protocol.JoinMessage("alice"))
	first.list()
	second.send(protocol.JoinMessage("alice"))

	assert.Equal(t, protocol.VerbErrUsernameUnavailable, second.receive().Verb)
}

func TestIntegrationServerFull(t *testing.T) {
	config := DefaultConfig()
	config.MaxClients = 2
	_, addr := startTestServer(t, config)

	for _, name := range []string{"a", "b"} {
		c := dialTestClient(t, addr)
		c.send(protocol.JoinMessage(name))
		c.list()
	}

	late := dialTestClient(t, addr)
	late.send(protocol.JoinMessage("c"))
	assert.Equal(t, protocol.VerbErrServerFull, late.receive().Verb)
}

func TestIntegrationCorruptDatagramIgnored(t *testing.T) {
	_, addr := startTestServer(t, DefaultConfig())

	c := dialTestClient(t, addr)
	_, err := c.conn.Write([]byte("data|0|join 5 alice|12345"))
	require.NoError(t, err)

	assert.Empty(t, c.list())
}

func TestIntegrationJournal(t *testing.T) {
	config := DefaultConfig()
	config.JournalPath = filepath.Join(t.TempDir(), "journal.db")
	_, addr := startTestServer(t, config)

	alice := dialTestClient(t, addr)
	bob := dialTestClient(t, addr)
	alice.send(protocol.JoinMessage("alice"))
	alice.list()
	bob.send(protocol.JoinMessage("bob"))
	bob.list()

	alice.send(protocol.SendMessage([]string{"bob", "ghost"}, "logged"))
	bob.receive()
	alice.list()

	journal, err := database.OpenJournal(config.JournalPath, zerolog.Nop())
	require.NoError(t, err)
	defer journal.Close()

	routes, err := journal.RecentRoutes(5)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "alice", routes[0].Sender)
	assert.Equal(t, []database.Delivery{
		{Recipient: "bob", Delivered: true},
		{Recipient: "ghost", Delivered: false},
	}, routes[0].Deliveries)
}
