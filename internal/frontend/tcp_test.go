package frontend

import (
	"context"
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/layer"
	"github.com/jroosing/resolverd/internal/worker"
)

func TestTCPFrameRoundTrip(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	payload := []byte{0xAA, 0xBB, 0xCC}
	go func() {
		ok := writeTCPMessage(client, payload)
		assert.True(t, ok)
	}()

	msg, ok := readTCPMessage(srv)
	require.True(t, ok)
	assert.Equal(t, payload, msg)
}

func TestReadTCPMessageOversized(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	go func() {
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(tcpMaxMessageSize+1))
		client.Write(lenBuf)
	}()

	_, ok := readTCPMessage(srv)
	assert.False(t, ok)
}

func TestWriteTCPMessageTooLarge(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	ok := writeTCPMessage(client, make([]byte, tcpMaxMessageSize+1))
	assert.False(t, ok)
}

func TestTCPFrontendResolveOverTCP(t *testing.T) {
	w := worker.New(layer.New(staticAnswerStage{}), nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	f := &TCPFrontend{Workers: []*worker.Worker{w}}

	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	query := testQuery(t, "example.com.", uint16(dns.TypeA))
	resp, ok := f.resolveOverTCP(ctx, srv, query, w)
	require.True(t, ok)

	parsed, err := dns.ParsePacket(resp)
	require.NoError(t, err)
	assert.Equal(t, uint16(99), parsed.Header.ID)
}

func TestTCPFrontendConnLimiting(t *testing.T) {
	f := &TCPFrontend{connPerIP: map[string]int{}}
	for range tcpMaxConnectionsPerIP {
		assert.True(t, f.tryAcquireConn("10.0.0.1"))
	}
	assert.False(t, f.tryAcquireConn("10.0.0.1"))

	f.releaseConn("10.0.0.1")
	assert.True(t, f.tryAcquireConn("10.0.0.1"))
}

func TestRemoteIPString(t *testing.T) {
	assert.Equal(t, "192.0.2.1", remoteIPString(&net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 53}))
	assert.Equal(t, "", remoteIPString(nil))
}
