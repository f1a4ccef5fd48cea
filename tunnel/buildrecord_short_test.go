package tunnel

import (
	"testing"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
	"github.com/go-i2p/i2p-router-core/identity"
)

type testHop struct {
	staticPriv [32]byte
	staticPub  [32]byte
	hash       identity.Hash
}

func newTestHop(t *testing.T, seed byte) *testHop {
	t.Helper()
	kp, err := cryptoutil.GenerateX25519()
	if err != nil {
		t.Fatal(err)
	}
	th := &testHop{staticPriv: kp.Private, staticPub: kp.Public}
	th.hash[0] = seed
	return th
}

func TestShortTunnelBuildThreeHops(t *testing.T) {
	h1 := newTestHop(t, 1)
	h2 := newTestHop(t, 2)
	h3 := newTestHop(t, 3)

	plan := &BuildPlan{RequestTime: time.Now(), Expiration: 10 * time.Minute, SendMsgID: 0xABCD}

	hop1 := &HopConfig{PeerHash: h1.hash, PeerStaticKey: h1.staticPub, ReceiveTunnel: 100, NextTunnel: 200, NextIdent: h2.hash, IsGateway: true}
	hop2 := &HopConfig{PeerHash: h2.hash, PeerStaticKey: h2.staticPub, ReceiveTunnel: 200, NextTunnel: 300, NextIdent: h3.hash}
	hop3 := &HopConfig{PeerHash: h3.hash, PeerStaticKey: h3.staticPub, ReceiveTunnel: 300, NextTunnel: 0, IsEndpoint: true}

	hops := []*HopConfig{hop1, hop2, hop3}
	records := make([][]byte, 3)
	for i, hop := range hops {
		rec, err := BuildShortRecord(hop, plan, byte(i))
		if err != nil {
			t.Fatalf("hop %d: build: %v", i, err)
		}
		if len(rec) != ShortRecordSize {
			t.Fatalf("hop %d: record is %d bytes, want %d", i, len(rec), ShortRecordSize)
		}
		records[i] = rec
	}

	priv := [][32]byte{h1.staticPriv, h2.staticPriv, h3.staticPriv}
	decoded := make([]*DecodedShortRecord, 3)
	for i, rec := range records {
		d, err := DecryptShortRecord(priv[i], rec[16:], byte(i))
		if err != nil {
			t.Fatalf("hop %d: decrypt: %v", i, err)
		}
		decoded[i] = d
		if d.ReceiveTunnel == 0 {
			t.Fatalf("hop %d: receive-tunnel-id must not be 0", i)
		}
	}

	if decoded[0].NextTunnel != decoded[1].ReceiveTunnel {
		t.Fatalf("hop0 next (%d) != hop1 receive (%d)", decoded[0].NextTunnel, decoded[1].ReceiveTunnel)
	}
	if decoded[1].NextTunnel != decoded[2].ReceiveTunnel {
		t.Fatalf("hop1 next (%d) != hop2 receive (%d)", decoded[1].NextTunnel, decoded[2].ReceiveTunnel)
	}

	seen := map[[32]byte]bool{}
	for i, d := range decoded {
		for _, k := range [][32]byte{d.ReplyKey, d.LayerKey, d.IVKey} {
			if seen[k] {
				t.Fatalf("hop %d: key collision across hops", i)
			}
			seen[k] = true
		}
	}

	for i, hop := range hops {
		resp, err := BuildShortResponse(hop.ReplyKey, AcceptOK, byte(i), 16)
		if err != nil {
			t.Fatalf("hop %d: build response: %v", i, err)
		}
		code, err := ParseShortResponse(hop, resp, byte(i))
		if err != nil {
			t.Fatalf("hop %d: parse response: %v", i, err)
		}
		if code != AcceptOK {
			t.Fatalf("hop %d: expected accept, got %d", i, code)
		}
	}
}

func TestShortTunnelBuildRejectCode(t *testing.T) {
	h1 := newTestHop(t, 9)
	plan := &BuildPlan{RequestTime: time.Now(), Expiration: time.Minute}
	hop := &HopConfig{PeerHash: h1.hash, PeerStaticKey: h1.staticPub, ReceiveTunnel: 1, IsGateway: true, IsEndpoint: true}
	if _, err := BuildShortRecord(hop, plan, 0); err != nil {
		t.Fatal(err)
	}
	resp, err := BuildShortResponse(hop.ReplyKey, AcceptBandwidthReject, 0, 16)
	if err != nil {
		t.Fatal(err)
	}
	code, err := ParseShortResponse(hop, resp, 0)
	if err != nil {
		t.Fatal(err)
	}
	if code != AcceptBandwidthReject {
		t.Fatalf("expected bandwidth reject, got %d", code)
	}
}
