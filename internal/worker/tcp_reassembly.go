package worker

import (
	"encoding/binary"

	"github.com/jroosing/resolverd/internal/rerrors"
)

// msgSize reads the 16-bit network-order length prefix a TCP DNS message is
// framed with. Returns ErrMsgSize if msg is too short to contain one.
func msgSize(msg []byte) (uint16, error) {
	if len(msg) < 2 {
		return 0, rerrors.ErrMsgSize
	}
	return binary.BigEndian.Uint16(msg[0:2]), nil
}

// tcpAssembler reassembles a stream of arbitrary-sized chunks into whole,
// length-prefixed DNS messages. One assembler is owned per TCP connection.
type tcpAssembler struct {
	buf            []byte
	bytesRemaining int
	maxSize        int
}

// newTCPAssembler returns an assembler that refuses to buffer more than
// maxSize bytes for a single message (fatal: caller should close the
// connection when Feed returns ErrMsgSize).
func newTCPAssembler(maxSize int) *tcpAssembler {
	return &tcpAssembler{maxSize: maxSize}
}

// Feed appends chunk to the assembler and returns any whole messages now
// available (without their length prefix), draining them from internal
// state. A chunk that exactly completes exactly one message when the
// assembler was previously empty is returned via a zero-copy view into
// chunk itself; any other case routes through the internal buffer.
func (a *tcpAssembler) Feed(chunk []byte) ([][]byte, error) {
	var out [][]byte

	if len(a.buf) == 0 && a.bytesRemaining == 0 {
		size, err := msgSize(chunk)
		if err == nil && len(chunk) == int(size)+2 {
			out = append(out, chunk[2:])
			return out, nil
		}
	}

	a.buf = append(a.buf, chunk...)
	if len(a.buf) > a.maxSize {
		return out, rerrors.ErrMsgSize
	}

	for {
		size, err := msgSize(a.buf)
		if err != nil {
			return out, nil
		}
		total := int(size) + 2
		if len(a.buf) < total {
			a.bytesRemaining = total - len(a.buf)
			return out, nil
		}
		out = append(out, a.buf[2:total])
		a.buf = a.buf[total:]
		a.bytesRemaining = 0
	}
}
