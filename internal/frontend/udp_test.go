package frontend

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/layer"
	"github.com/jroosing/resolverd/internal/worker"
)

type staticAnswerStage struct{}

func (staticAnswerStage) Name() string { return "static" }
func (staticAnswerStage) LayerBegin(req *layer.Request) layer.State {
	req.Answer = dns.Packet{
		Header:    dns.Header{ID: req.Query.Header.ID, Flags: 1 << 15},
		Questions: req.Query.Questions,
	}
	return layer.StateDone
}

func testQuery(t *testing.T, name string, qtype uint16) []byte {
	t.Helper()
	pkt := dns.Packet{
		Header:    dns.Header{ID: 99, Flags: dns.RDFlag},
		Questions: []dns.Question{{Name: name, Type: qtype, Class: uint16(dns.ClassIN)}},
	}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	return b
}

func TestUDPFrontendRoundTrip(t *testing.T) {
	udpAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	serverConn, err := net.ListenUDP("udp", udpAddr)
	require.NoError(t, err)
	defer serverConn.Close()

	w := worker.New(layer.New(staticAnswerStage{}), nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	f := &UDPFrontend{Workers: []*worker.Worker{w}, WorkersPerSocket: 2}

	pktCh := make(chan udpPacket, 4)
	go f.workerLoop(ctx, serverConn, pktCh, w)

	client, err := net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	query := testQuery(t, "example.com.", uint16(dns.TypeA))
	buf := make([]byte, len(query))
	copy(buf, query)
	bufPtr := &buf
	pktCh <- udpPacket{bufPtr: bufPtr, n: len(query), peer: client.LocalAddr().(*net.UDPAddr)}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp := make([]byte, 512)
	n, err := client.Read(resp)
	require.NoError(t, err)

	parsed, err := dns.ParsePacket(resp[:n])
	require.NoError(t, err)
	assert.Equal(t, uint16(99), parsed.Header.ID)
}

func TestRcodeOf(t *testing.T) {
	msg := []byte{0x00, 0x63, 0x81, 0x83} // flags low byte 0x83 -> rcode 3 (NXDOMAIN)
	assert.Equal(t, uint16(dns.RCodeNXDomain), rcodeOf(msg))
	assert.Equal(t, uint16(0), rcodeOf([]byte{0x00}))
}

func TestNetipAddrFromUDPAddr(t *testing.T) {
	ip, ok := netipAddrFromUDPAddr(&net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 53})
	require.True(t, ok)
	assert.Equal(t, "192.0.2.1", ip.String())

	_, ok = netipAddrFromUDPAddr(nil)
	assert.False(t, ok)
}

func TestListenUDPReusePort(t *testing.T) {
	conn, err := listenUDPReusePort("127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	assert.NotNil(t, conn.LocalAddr())
}
