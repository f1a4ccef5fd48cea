// Package ntcp2 implements the NTCP2 TCP transport: a Noise XK handshake
// identical in spirit to SSU2's but framed as length-prefixed TCP records
// instead of UDP packets, with frame-level AEAD once established. Grounded
// on the teacher's link.Link (link/link.go) for the dial-then-handshake
// connection shape — this package keeps its two-phase
// Handshake-then-steady-state structure and its deadline-scoped handshake
// phase, replacing Tor's VERSIONS/CERTS/NETINFO link negotiation with
// NTCP2's SessionRequest/SessionCreated/SessionConfirmed messages.
package ntcp2

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/internal/rlog"
	"github.com/go-i2p/i2p-router-core/transport"
)

var log = rlog.For("ntcp2")

// HandshakeTimeout bounds the Noise handshake once the TCP connection is
// up; the dial itself has a separate 10s timeout.
const HandshakeTimeout = 15 * time.Second

// FrameLengthSize is NTCP2's 2-byte big-endian record length prefix.
const FrameLengthSize = 2

// MaxFrameSize bounds a single NTCP2 record.
const MaxFrameSize = 65535

// Session is an established NTCP2 connection.
type Session struct {
	*transport.Session

	conn   net.Conn
	reader *bufio.Reader

	sendKey, recvKey [32]byte
	sendCounter      uint64
	recvCounter      uint64
}

// Connect dials addr, runs the client-side Noise XK handshake against the
// peer's known static key, and returns an established Session.
func Connect(addr string, peer identity.Hash, peerStatic [32]byte, localStatic cryptoutil.X25519KeyPair) (*Session, error) {
	log.WithField("addr", addr).Info("dialing ntcp2 peer")
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ntcp2: dial: %w", err)
	}
	_ = conn.SetDeadline(time.Now().Add(HandshakeTimeout))

	start := time.Now()
	sendKey, recvKey, err := clientHandshake(conn, peerStatic, localStatic)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ntcp2: handshake: %w", err)
	}

	_ = conn.SetDeadline(time.Time{})
	sess := &Session{
		Session: transport.NewSession(peer),
		conn:    conn,
		reader:  bufio.NewReader(conn),
		sendKey: sendKey,
		recvKey: recvKey,
	}
	sess.RecordHandshakeElapsed(start)
	log.WithField("addr", addr).Info("ntcp2 handshake complete")
	return sess, nil
}

// RecordHandshakeElapsed exposes the embedded transport.Session's timing
// classification under an ntcp2-flavored name for callers that don't want
// to reach into the embedded type directly.
func (s *Session) RecordHandshakeElapsed(start time.Time) {
	s.Session.RecordHandshakeDuration(time.Since(start))
}

// Accept runs the server-side Noise XK handshake over an already-accepted
// TCP connection, using localStatic as the pre-known responder key the
// remote's RouterInfo advertises.
func Accept(conn net.Conn, localStatic cryptoutil.X25519KeyPair) (*Session, identity.Hash, error) {
	_ = conn.SetDeadline(time.Now().Add(HandshakeTimeout))
	start := time.Now()
	sendKey, recvKey, remoteStatic, err := serverHandshake(conn, localStatic)
	if err != nil {
		_ = conn.Close()
		return nil, identity.Hash{}, fmt.Errorf("ntcp2: handshake: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})
	peer := identity.Hash(sha256.Sum256(remoteStatic[:]))
	sess := &Session{
		Session: transport.NewSession(peer),
		conn:    conn,
		reader:  bufio.NewReader(conn),
		sendKey: recvKey,
		recvKey: sendKey,
	}
	sess.RecordHandshakeElapsed(start)
	return sess, peer, nil
}

func serverHandshake(conn net.Conn, localStatic cryptoutil.X25519KeyPair) (sendKey, recvKey [32]byte, remoteStatic [32]byte, err error) {
	noise := cryptoutil.InitNoiseXK(localStatic.Public)

	req, err := readFrame(conn)
	if err != nil {
		return sendKey, recvKey, remoteStatic, err
	}
	if len(req) < 32 {
		return sendKey, recvKey, remoteStatic, fmt.Errorf("ntcp2: SessionRequest too short")
	}
	var clientEphem [32]byte
	copy(clientEphem[:], req[:32])
	noise.MixHash(clientEphem[:])
	es, err := cryptoutil.X25519Agree(localStatic.Private, clientEphem)
	if err != nil {
		return sendKey, recvKey, remoteStatic, err
	}
	if err := noise.MixKey(es[:]); err != nil {
		return sendKey, recvKey, remoteStatic, err
	}
	if _, err := noise.DecryptAndHash(req[32:]); err != nil {
		return sendKey, recvKey, remoteStatic, fmt.Errorf("ntcp2: SessionRequest AEAD failed: %w", err)
	}

	ephem, err := cryptoutil.GenerateX25519()
	if err != nil {
		return sendKey, recvKey, remoteStatic, err
	}
	noise.MixHash(ephem.Public[:])
	ee, err := cryptoutil.X25519Agree(ephem.Private, clientEphem)
	if err != nil {
		return sendKey, recvKey, remoteStatic, err
	}
	if err := noise.MixKey(ee[:]); err != nil {
		return sendKey, recvKey, remoteStatic, err
	}
	sealed, err := noise.EncryptAndHash(nil)
	if err != nil {
		return sendKey, recvKey, remoteStatic, err
	}
	if err := writeFrame(conn, append(ephem.Public[:], sealed...)); err != nil {
		return sendKey, recvKey, remoteStatic, err
	}

	confirmed, err := readFrame(conn)
	if err != nil {
		return sendKey, recvKey, remoteStatic, err
	}
	pt1, err := noise.DecryptAndHash(confirmed[:48])
	if err != nil {
		return sendKey, recvKey, remoteStatic, fmt.Errorf("ntcp2: SessionConfirmed part1 AEAD failed: %w", err)
	}
	copy(remoteStatic[:], pt1)
	se, err := cryptoutil.X25519Agree(localStatic.Private, remoteStatic)
	if err != nil {
		return sendKey, recvKey, remoteStatic, err
	}
	if err := noise.MixKey(se[:]); err != nil {
		return sendKey, recvKey, remoteStatic, err
	}
	if _, err := noise.DecryptAndHash(confirmed[48:]); err != nil {
		return sendKey, recvKey, remoteStatic, fmt.Errorf("ntcp2: SessionConfirmed part2 AEAD failed: %w", err)
	}

	k1, k2 := noise.Split()
	return k1, k2, remoteStatic, nil
}

func clientHandshake(conn net.Conn, peerStatic [32]byte, localStatic cryptoutil.X25519KeyPair) (sendKey, recvKey [32]byte, err error) {
	noise := cryptoutil.InitNoiseXK(peerStatic)
	ephem, err := cryptoutil.GenerateX25519()
	if err != nil {
		return sendKey, recvKey, err
	}
	noise.MixHash(ephem.Public[:])
	es, err := cryptoutil.X25519Agree(ephem.Private, peerStatic)
	if err != nil {
		return sendKey, recvKey, err
	}
	if err := noise.MixKey(es[:]); err != nil {
		return sendKey, recvKey, err
	}
	sealed, err := noise.EncryptAndHash(nil)
	if err != nil {
		return sendKey, recvKey, err
	}
	if err := writeFrame(conn, append(ephem.Public[:], sealed...)); err != nil {
		return sendKey, recvKey, err
	}

	resp, err := readFrame(conn)
	if err != nil {
		return sendKey, recvKey, err
	}
	if len(resp) < 32 {
		return sendKey, recvKey, fmt.Errorf("ntcp2: SessionCreated too short")
	}
	var serverEphem [32]byte
	copy(serverEphem[:], resp[:32])
	noise.MixHash(serverEphem[:])
	ee, err := cryptoutil.X25519Agree(ephem.Private, serverEphem)
	if err != nil {
		return sendKey, recvKey, err
	}
	if err := noise.MixKey(ee[:]); err != nil {
		return sendKey, recvKey, err
	}
	if _, err := noise.DecryptAndHash(resp[32:]); err != nil {
		return sendKey, recvKey, fmt.Errorf("ntcp2: SessionCreated AEAD failed: %w", err)
	}

	part1, err := noise.EncryptAndHash(localStatic.Public[:])
	if err != nil {
		return sendKey, recvKey, err
	}
	se, err := cryptoutil.X25519Agree(localStatic.Private, peerStatic)
	if err != nil {
		return sendKey, recvKey, err
	}
	if err := noise.MixKey(se[:]); err != nil {
		return sendKey, recvKey, err
	}
	part2, err := noise.EncryptAndHash(nil)
	if err != nil {
		return sendKey, recvKey, err
	}
	if err := writeFrame(conn, append(part1, part2...)); err != nil {
		return sendKey, recvKey, err
	}

	k1, k2 := noise.Split()
	return k1, k2, nil
}

func writeFrame(conn net.Conn, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("ntcp2: frame too large (%d bytes)", len(payload))
	}
	header := make([]byte, FrameLengthSize)
	binary.BigEndian.PutUint16(header, uint16(len(payload)))
	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("ntcp2: write frame header: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("ntcp2: write frame body: %w", err)
	}
	return nil
}

func readFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, FrameLengthSize)
	if _, err := readFull(conn, header); err != nil {
		return nil, fmt.Errorf("ntcp2: read frame header: %w", err)
	}
	n := binary.BigEndian.Uint16(header)
	body := make([]byte, n)
	if _, err := readFull(conn, body); err != nil {
		return nil, fmt.Errorf("ntcp2: read frame body: %w", err)
	}
	return body, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// SendFrame seals payload under the data-phase send key at the current
// counter and writes it as a length-prefixed record.
func (s *Session) SendFrame(payload []byte) error {
	nonce := counterNonce(s.sendCounter)
	ct, err := cryptoutil.SealChaCha20Poly1305(s.sendKey[:], nonce[:], nil, payload)
	if err != nil {
		return fmt.Errorf("ntcp2: seal frame: %w", err)
	}
	s.sendCounter++
	s.RecordSent(len(ct))
	return writeFrame(s.conn, ct)
}

// ReceiveFrame reads and opens the next data-phase record.
func (s *Session) ReceiveFrame() ([]byte, error) {
	ct, err := readFrame(s.conn)
	if err != nil {
		return nil, err
	}
	nonce := counterNonce(s.recvCounter)
	pt, err := cryptoutil.OpenChaCha20Poly1305(s.recvKey[:], nonce[:], nil, ct)
	if err != nil {
		return nil, fmt.Errorf("ntcp2: open frame: %w", err)
	}
	s.recvCounter++
	s.RecordReceived(len(ct))
	return pt, nil
}

// Close closes the underlying TCP connection.
func (s *Session) Close() error { return s.conn.Close() }

// counterNonce builds the 12-byte little-endian-at-offset-4 nonce for a
// 64-bit frame counter, the same construction as cryptoutil's
// nonceFromCounter, repeated here because that helper is unexported.
func counterNonce(n uint64) [12]byte {
	var nonce [12]byte
	nonce[4] = byte(n)
	nonce[5] = byte(n >> 8)
	nonce[6] = byte(n >> 16)
	nonce[7] = byte(n >> 24)
	nonce[8] = byte(n >> 32)
	nonce[9] = byte(n >> 40)
	nonce[10] = byte(n >> 48)
	nonce[11] = byte(n >> 56)
	return nonce
}
