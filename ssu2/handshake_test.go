package ssu2

import (
	"bytes"
	"testing"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
)

func TestHandshakeRoundTripDerivesMatchingDataKeys(t *testing.T) {
	serverStatic, err := cryptoutil.GenerateX25519()
	if err != nil {
		t.Fatal(err)
	}
	clientStatic, err := cryptoutil.GenerateX25519()
	if err != nil {
		t.Fatal(err)
	}

	client, err := NewClientHandshake(serverStatic.Public, *clientStatic)
	if err != nil {
		t.Fatal(err)
	}
	server := NewServerHandshake(*serverStatic)

	dtBlock := DateTimeBlock(1700000000).Encode()
	clientEphem, sealed1, err := client.SessionRequestPayload(dtBlock)
	if err != nil {
		t.Fatalf("SessionRequestPayload: %v", err)
	}

	gotBlocks, err := server.ConsumeSessionRequest(clientEphem, sealed1)
	if err != nil {
		t.Fatalf("ConsumeSessionRequest: %v", err)
	}
	if !bytes.Equal(gotBlocks, dtBlock) {
		t.Fatal("server did not recover client's DateTime block")
	}

	serverEphem, sealed2, err := server.SessionCreatedPayload(AddressBlock([]byte{1, 2, 3, 4}, 12345).Encode())
	if err != nil {
		t.Fatalf("SessionCreatedPayload: %v", err)
	}
	addrBlockBytes, err := client.ConsumeSessionCreated(serverEphem, sealed2)
	if err != nil {
		t.Fatalf("ConsumeSessionCreated: %v", err)
	}
	if len(addrBlockBytes) == 0 {
		t.Fatal("expected non-empty address block bytes")
	}

	part1, err := client.SessionConfirmedPart1()
	if err != nil {
		t.Fatalf("SessionConfirmedPart1: %v", err)
	}
	if err := client.MixSessionConfirmedSE(); err != nil {
		t.Fatalf("client se mix: %v", err)
	}
	if err := server.ConsumeSessionConfirmedPart1(part1); err != nil {
		t.Fatalf("ConsumeSessionConfirmedPart1: %v", err)
	}
	if server.RemoteStatic != client.LocalStatic.Public {
		t.Fatal("server did not recover client's static key")
	}

	if err := client.Finish(); err != nil {
		t.Fatalf("client Finish: %v", err)
	}
	if err := server.Finish(); err != nil {
		t.Fatalf("server Finish: %v", err)
	}

	if client.SendKey != server.RecvKey || client.RecvKey != server.SendKey {
		t.Fatal("client/server data-phase keys did not cross-match")
	}
}

func TestCheckClockSkewRejectsBeyondThreshold(t *testing.T) {
	reject, adjust := CheckClockSkew(61*time.Second, false)
	if !reject || adjust {
		t.Fatalf("expected reject without adjust, got reject=%v adjust=%v", reject, adjust)
	}
	reject, adjust = CheckClockSkew(20*time.Second, true)
	if reject || !adjust {
		t.Fatalf("expected adjust without reject when clock-sync enabled, got reject=%v adjust=%v", reject, adjust)
	}
	reject, adjust = CheckClockSkew(5*time.Second, false)
	if reject || adjust {
		t.Fatalf("expected neither for small skew, got reject=%v adjust=%v", reject, adjust)
	}
}
