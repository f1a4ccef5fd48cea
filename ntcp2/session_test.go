package ntcp2

import (
	"net"
	"testing"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
	"github.com/go-i2p/i2p-router-core/identity"
)

func TestClientServerHandshakeAndFrameRoundTrip(t *testing.T) {
	serverStatic, err := cryptoutil.GenerateX25519()
	if err != nil {
		t.Fatal(err)
	}
	clientStatic, err := cryptoutil.GenerateX25519()
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	serverDone := make(chan *Session, 1)
	serverErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		sess, _, err := Accept(conn, *serverStatic)
		if err != nil {
			serverErr <- err
			return
		}
		serverDone <- sess
	}()

	peer := identity.Hash(serverStatic.Public)
	clientSess, err := Connect(ln.Addr().String(), peer, serverStatic.Public, *clientStatic)
	if err != nil {
		t.Fatalf("client Connect: %v", err)
	}
	defer clientSess.Close()

	var serverSess *Session
	select {
	case serverSess = <-serverDone:
	case err := <-serverErr:
		t.Fatalf("server handshake failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server handshake")
	}
	defer serverSess.Close()

	if err := clientSess.SendFrame([]byte("hello i2p")); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	got, err := serverSess.ReceiveFrame()
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if string(got) != "hello i2p" {
		t.Fatalf("got %q", got)
	}
}
