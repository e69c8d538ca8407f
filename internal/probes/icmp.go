package probes

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/user/pingcheck/internal/model"
)

var echoPayload = []byte("pingcheck-echo-payload-0123456789")

// ICMPPinger sends ICMPv4 echo requests over a raw socket. It needs
// CAP_NET_RAW (or root) on most systems; without it every probe reports
// ProbeFailed.
type ICMPPinger struct {
	count  int
	id     uint16
	listen func() (net.PacketConn, error)
}

// NewICMPPinger creates a raw-socket ping probe sending count echo requests.
func NewICMPPinger(count int) *ICMPPinger {
	if count <= 0 {
		count = DefaultEchoCount
	}
	return &ICMPPinger{
		count: count,
		id:    uint16(os.Getpid() & 0xffff),
		listen: func() (net.PacketConn, error) {
			return net.ListenPacket("ip4:icmp", "0.0.0.0")
		},
	}
}

// Reach sends the echo requests one after another, waiting up to timeout
// for each reply.
func (p *ICMPPinger) Reach(ctx context.Context, host string, timeout time.Duration) Reply {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return Reply{State: model.ProbeFailed, Err: err}
	}
	if len(ips) == 0 {
		return Reply{State: model.ProbeFailed, Err: fmt.Errorf("no IPv4 address for %s", host)}
	}
	dst := ips[0]

	conn, err := p.listen()
	if err != nil {
		return Reply{State: model.ProbeFailed, Err: fmt.Errorf("open icmp socket: %w", err)}
	}
	defer conn.Close()

	reply := Reply{State: model.NoResponse}
	for seq := 1; seq <= p.count; seq++ {
		if ctx.Err() != nil {
			break
		}

		packet, err := encodeEcho(p.id, uint16(seq), echoPayload)
		if err != nil {
			return Reply{State: model.ProbeFailed, Err: err}
		}

		start := time.Now()
		if _, err := conn.WriteTo(packet, &net.IPAddr{IP: dst}); err != nil {
			return Reply{State: model.ProbeFailed, Err: fmt.Errorf("send echo: %w", err)}
		}

		if rtt, ok := p.awaitReply(conn, dst, uint16(seq), start, timeout); ok {
			reply = Reply{State: model.Responding, LatencyMs: ms(rtt)}
		}
	}

	return reply
}

func (p *ICMPPinger) awaitReply(conn net.PacketConn, dst net.IP, seq uint16, start time.Time, timeout time.Duration) (time.Duration, bool) {
	if err := conn.SetReadDeadline(start.Add(timeout)); err != nil {
		return 0, false
	}

	buf := make([]byte, 1500)
	for {
		// Any read error, including the deadline, ends the wait.
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, false
		}

		src, ok := from.(*net.IPAddr)
		if !ok || !src.IP.Equal(dst) {
			continue
		}
		if isEchoReply(buf[:n], p.id, seq) {
			return time.Since(start), true
		}
	}
}

// encodeEcho serializes an ICMPv4 echo request with checksum.
func encodeEcho(id, seq uint16, payload []byte) ([]byte, error) {
	return encodeICMP(layers.ICMPv4TypeEchoRequest, id, seq, payload)
}

func encodeICMP(typ uint8, id, seq uint16, payload []byte) ([]byte, error) {
	msg := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(typ, 0),
		Id:       id,
		Seq:      seq,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, msg, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("encode icmp: %w", err)
	}
	return buf.Bytes(), nil
}

// isEchoReply reports whether data is the echo reply for (id, seq).
func isEchoReply(data []byte, id, seq uint16) bool {
	packet := gopacket.NewPacket(data, layers.LayerTypeICMPv4, gopacket.Default)
	msg, ok := packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	if !ok {
		return false
	}
	return msg.TypeCode.Type() == layers.ICMPv4TypeEchoReply && msg.Id == id && msg.Seq == seq
}
