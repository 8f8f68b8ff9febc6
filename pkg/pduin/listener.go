// Package pduin receives decoded CSBK PDUs from an external DMR PHY
// decoder (e.g. a dsd-fme-style process) over a UDP socket and feeds
// them to a dispatch.Loop. The wire format is a one-bit-per-byte CSBK
// payload (matching pkg/bitstream's representation) prefixed with a
// small fixed header carrying the flags the dispatch loop needs.
package pduin

import (
	"context"
	"encoding/binary"
	"net"
	"time"

	"github.com/hamradio-go/dmr-trunkctl/pkg/dispatch"
	"github.com/hamradio-go/dmr-trunkctl/pkg/logger"
)

// headerLen is the fixed prefix: 1 byte CRCOK, 1 byte
// IrrecoverableErrors, 1 byte SyncType, 2 bytes big-endian bit count.
const headerLen = 5

// Listener receives length-prefixed CSBK PDU frames over UDP and
// drives a dispatch.Loop with them, one at a time, mirroring the
// teacher's single-goroutine-per-packet UDP receive loop.
type Listener struct {
	addr string
	loop *dispatch.Loop
	log  *logger.Logger
	conn *net.UDPConn
}

// New creates a Listener bound to addr (e.g. "127.0.0.1:9910") that
// feeds decoded PDUs into loop.
func New(addr string, loop *dispatch.Loop, log *logger.Logger) *Listener {
	return &Listener{addr: addr, loop: loop, log: log.WithComponent("pduin")}
}

// Run resolves and listens on the configured UDP address until ctx is
// cancelled. Each datagram is decoded and handed to the dispatch loop
// synchronously in the receiving goroutine, preserving per-CSBK
// ordering: two CSBKs in flight at once would race on sitemodel state.
func (l *Listener) Run(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", l.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	l.conn = conn
	defer conn.Close()

	l.log.Info("PDU listener started", logger.String("addr", conn.LocalAddr().String()))

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			l.log.Warn("PDU read failed", logger.Error(err))
			continue
		}

		pdu, ok := decode(buf[:n])
		if !ok {
			l.log.Debug("malformed PDU frame, dropping", logger.Int("size", n))
			continue
		}

		out := l.loop.Process(ctx, pdu, time.Now())
		if out.Reason != "" {
			l.log.Debug("PDU rejected", logger.String("reason", out.Reason))
		}
	}
}

func decode(frame []byte) (dispatch.PDU, bool) {
	if len(frame) < headerLen {
		return dispatch.PDU{}, false
	}
	crcOK := frame[0] != 0
	irrecoverable := int(frame[1])
	syncType := frame[2]
	bitCount := int(binary.BigEndian.Uint16(frame[3:5]))
	bits := frame[headerLen:]
	if len(bits) < bitCount {
		return dispatch.PDU{}, false
	}
	return dispatch.PDU{
		Bits:                bits[:bitCount],
		CRCOK:               crcOK,
		IrrecoverableErrors: irrecoverable,
		SyncType:            syncType,
	}, true
}

// Close releases the listener's socket, if bound.
func (l *Listener) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}
