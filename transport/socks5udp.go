// This file adapts the teacher's SOCKS5 server (socks/socks.go) into a
// SOCKS5 *client* that performs UDP_ASSOCIATE against a locally configured
// relay, per spec.md §6's SSU2Proxy option. A configured proxy lets SSU2's
// outbound UDP traffic transit a local SOCKS5 relay instead of a raw
// socket, for operators on networks that only permit proxied egress.
// Grounded on socks.go's handshake/request byte layout (doHandshake,
// readConnect, sendReply) read in reverse: the same RFC 1928 wire bytes,
// produced by a client instead of parsed by a server.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

const socks5NoAuth = 0x00
const socks5VersionByte = 0x05
const cmdUDPAssociate = 0x03

// SOCKS5UDPConn is a net.PacketConn that tunnels UDP datagrams through a
// SOCKS5 relay's UDP-associate session, per RFC 1928 §7. SSU2's outbound
// transport uses this in place of a raw *net.UDPConn when config.Options's
// SSU2Proxy is set.
type SOCKS5UDPConn struct {
	ctrl     net.Conn // the TCP control connection; closing it ends the UDP association
	udp      *net.UDPConn
	relayUDP *net.UDPAddr // the relay's BND.ADDR/BND.PORT for this association
}

// DialSOCKS5UDPAssociate connects to a SOCKS5 relay at proxyAddr and
// negotiates a UDP association, returning a PacketConn whose Read/Write
// methods transparently add/strip the SOCKS5 UDP request header.
func DialSOCKS5UDPAssociate(proxyAddr string) (*SOCKS5UDPConn, error) {
	ctrl, err := net.DialTimeout("tcp", proxyAddr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("transport: dial socks5 proxy: %w", err)
	}
	_ = ctrl.SetDeadline(time.Now().Add(10 * time.Second))

	if err := socks5HandshakeNoAuth(ctrl); err != nil {
		ctrl.Close()
		return nil, err
	}

	relayAddr, err := socks5UDPAssociate(ctrl)
	if err != nil {
		ctrl.Close()
		return nil, err
	}

	udp, err := net.DialUDP("udp", nil, relayAddr)
	if err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("transport: dial socks5 relay udp endpoint: %w", err)
	}
	_ = ctrl.SetDeadline(time.Time{})

	return &SOCKS5UDPConn{ctrl: ctrl, udp: udp, relayUDP: relayAddr}, nil
}

// socks5HandshakeNoAuth performs the VER/NMETHODS/METHODS exchange,
// offering only the no-auth method (0x00), mirroring what socks.go's
// doHandshake accepts when a client offers it.
func socks5HandshakeNoAuth(conn net.Conn) error {
	if _, err := conn.Write([]byte{socks5VersionByte, 1, socks5NoAuth}); err != nil {
		return fmt.Errorf("transport: socks5 handshake write: %w", err)
	}
	var reply [2]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		return fmt.Errorf("transport: socks5 handshake read: %w", err)
	}
	if reply[0] != socks5VersionByte || reply[1] != socks5NoAuth {
		return fmt.Errorf("transport: socks5 relay rejected no-auth method (got %d, %d)", reply[0], reply[1])
	}
	return nil
}

// socks5UDPAssociate sends a UDP_ASSOCIATE request (DST.ADDR/DST.PORT
// 0.0.0.0:0, meaning "any") and parses the relay's BND.ADDR/BND.PORT reply,
// the endpoint subsequent UDP datagrams must be addressed to.
func socks5UDPAssociate(conn net.Conn) (*net.UDPAddr, error) {
	req := []byte{socks5VersionByte, cmdUDPAssociate, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("transport: socks5 udp associate write: %w", err)
	}

	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, fmt.Errorf("transport: socks5 udp associate read header: %w", err)
	}
	if hdr[0] != socks5VersionByte {
		return nil, fmt.Errorf("transport: bad socks5 reply version: %d", hdr[0])
	}
	if hdr[1] != 0x00 {
		return nil, fmt.Errorf("transport: socks5 udp associate failed, reply code %d", hdr[1])
	}

	var ip net.IP
	switch hdr[3] {
	case 0x01:
		var addr [4]byte
		if _, err := io.ReadFull(conn, addr[:]); err != nil {
			return nil, err
		}
		ip = net.IP(addr[:])
	case 0x03:
		var lenBuf [1]byte
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return nil, err
		}
		domain := make([]byte, lenBuf[0])
		if _, err := io.ReadFull(conn, domain); err != nil {
			return nil, err
		}
		resolved, err := net.ResolveIPAddr("ip", string(domain))
		if err != nil {
			return nil, fmt.Errorf("transport: resolve socks5 relay bnd.addr: %w", err)
		}
		ip = resolved.IP
	case 0x04:
		var addr [16]byte
		if _, err := io.ReadFull(conn, addr[:]); err != nil {
			return nil, err
		}
		ip = net.IP(addr[:])
	default:
		return nil, fmt.Errorf("transport: unknown socks5 bnd.addr type %d", hdr[3])
	}

	var portBuf [2]byte
	if _, err := io.ReadFull(conn, portBuf[:]); err != nil {
		return nil, err
	}
	port := binary.BigEndian.Uint16(portBuf[:])
	return &net.UDPAddr{IP: ip, Port: int(port)}, nil
}

// udpHeaderFor builds the SOCKS5 UDP request header (RSV(2)=0, FRAG(1)=0,
// ATYP=IPv4 or IPv6, DST.ADDR, DST.PORT) prefixed to every outbound
// datagram, per RFC 1928 §7.
func udpHeaderFor(addr *net.UDPAddr) []byte {
	ip4 := addr.IP.To4()
	if ip4 != nil {
		hdr := make([]byte, 0, 10)
		hdr = append(hdr, 0, 0, 0, 0x01)
		hdr = append(hdr, ip4...)
		hdr = binary.BigEndian.AppendUint16(hdr, uint16(addr.Port))
		return hdr
	}
	ip16 := addr.IP.To16()
	hdr := make([]byte, 0, 22)
	hdr = append(hdr, 0, 0, 0, 0x04)
	hdr = append(hdr, ip16...)
	hdr = binary.BigEndian.AppendUint16(hdr, uint16(addr.Port))
	return hdr
}

// WriteTo implements net.PacketConn, wrapping p in the SOCKS5 UDP header
// before sending it to the relay's associated UDP endpoint.
func (c *SOCKS5UDPConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	dst, ok := addr.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", addr.String())
		if err != nil {
			return 0, fmt.Errorf("transport: resolve socks5 udp target: %w", err)
		}
		dst = resolved
	}
	datagram := append(udpHeaderFor(dst), p...)
	if _, err := c.udp.WriteToUDP(datagram, c.relayUDP); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadFrom implements net.PacketConn, stripping the SOCKS5 UDP header and
// reporting the original DST.ADDR as the sender (the relay forwards the
// remote peer's reply as if it came from the original destination).
func (c *SOCKS5UDPConn) ReadFrom(p []byte) (int, net.Addr, error) {
	buf := make([]byte, len(p)+22)
	n, _, err := c.udp.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}
	if n < 4 {
		return 0, nil, fmt.Errorf("transport: short socks5 udp datagram (%d bytes)", n)
	}
	atyp := buf[3]
	pos := 4
	var from net.UDPAddr
	switch atyp {
	case 0x01:
		if n < pos+4+2 {
			return 0, nil, fmt.Errorf("transport: truncated ipv4 socks5 udp header")
		}
		from.IP = net.IP(buf[pos : pos+4])
		pos += 4
	case 0x04:
		if n < pos+16+2 {
			return 0, nil, fmt.Errorf("transport: truncated ipv6 socks5 udp header")
		}
		from.IP = net.IP(buf[pos : pos+16])
		pos += 16
	default:
		return 0, nil, fmt.Errorf("transport: unsupported socks5 udp reply atyp %d", atyp)
	}
	from.Port = int(binary.BigEndian.Uint16(buf[pos : pos+2]))
	pos += 2
	copied := copy(p, buf[pos:n])
	return copied, &from, nil
}

// Close tears down both the UDP association and its controlling TCP
// connection (ending the association per RFC 1928 §7).
func (c *SOCKS5UDPConn) Close() error {
	udpErr := c.udp.Close()
	ctrlErr := c.ctrl.Close()
	if udpErr != nil {
		return udpErr
	}
	return ctrlErr
}

// LocalAddr implements net.PacketConn.
func (c *SOCKS5UDPConn) LocalAddr() net.Addr { return c.udp.LocalAddr() }

// SetDeadline implements net.PacketConn.
func (c *SOCKS5UDPConn) SetDeadline(t time.Time) error { return c.udp.SetDeadline(t) }

// SetReadDeadline implements net.PacketConn.
func (c *SOCKS5UDPConn) SetReadDeadline(t time.Time) error { return c.udp.SetReadDeadline(t) }

// SetWriteDeadline implements net.PacketConn.
func (c *SOCKS5UDPConn) SetWriteDeadline(t time.Time) error { return c.udp.SetWriteDeadline(t) }
