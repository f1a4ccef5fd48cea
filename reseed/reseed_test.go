package reseed

import (
	"archive/zip"
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"testing"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/routerinfo"
)

func buildSignedRouterInfoWire(t *testing.T) []byte {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	encKey := make([]byte, 256)
	sigKey := make([]byte, 128)
	copy(sigKey[128-32:], pub)
	raw := make([]byte, 0, 391)
	raw = append(raw, encKey...)
	raw = append(raw, sigKey...)
	raw = append(raw, 5, 0, 4, 0, 7, 0, 4) // KEY cert, EdDSA25519, ECIES-X25519
	id, _, err := identity.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	keys := &identity.PrivateKeys{Identity: id, SigningPrivateKey: priv, EncryptionPrivateKey: make([]byte, 256)}

	l := routerinfo.NewLocalRouterInfo(keys, 2, "0.9.65")
	l.SetCapabilities(routerinfo.Capabilities{BandwidthTier: 'L', Reachable: true})
	var staticKey, introKey [32]byte
	l.AddSSU2Address("203.0.113.5", 12345, staticKey, introKey)

	_, wire, err := l.Sign(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return wire
}

// buildSU3Bundle wraps a zip archive of routerInfo-*.dat entries in a
// minimal SU3 container, matching extractContent's expected layout.
func buildSU3Bundle(t *testing.T, entries [][]byte) []byte {
	t.Helper()
	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	for i, e := range entries {
		w, err := zw.Create(routerInfoEntryName(i))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	content := zipBuf.Bytes()

	header := make([]byte, 40)
	copy(header[0:8], su3Magic[:])
	binary.BigEndian.PutUint16(header[10:12], 0) // signature type, unused by ParseBundle
	binary.BigEndian.PutUint16(header[12:14], 0) // signature length: no trailing signature in this test bundle
	header[15] = 0                                // version length
	header[17] = 0                                // signer ID length
	binary.BigEndian.PutUint64(header[18:26], uint64(len(content)))
	header[27] = 0 // file type: zip
	header[29] = ContentTypeReseed

	return append(header, content...)
}

func routerInfoEntryName(i int) string {
	names := []string{"routerInfo-AAAA.dat", "routerInfo-BBBB.dat", "routerInfo-CCCC.dat"}
	if i < len(names) {
		return names[i]
	}
	return "routerInfo-extra.dat"
}

func TestParseBundleExtractsRouterInfos(t *testing.T) {
	wire1 := buildSignedRouterInfoWire(t)
	wire2 := buildSignedRouterInfoWire(t)
	bundle := buildSU3Bundle(t, [][]byte{wire1, wire2})

	got, err := ParseBundle(bundle, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 router infos, got %d", len(got))
	}
}

func TestParseBundleSkipsNonRouterInfoEntriesAndBadMagic(t *testing.T) {
	wire := buildSignedRouterInfoWire(t)
	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	w, _ := zw.Create("routerInfo-AAAA.dat")
	w.Write(wire)
	w2, _ := zw.Create("README.txt")
	w2.Write([]byte("not a router info"))
	zw.Close()
	content := zipBuf.Bytes()

	header := make([]byte, 40)
	copy(header[0:8], su3Magic[:])
	binary.BigEndian.PutUint64(header[18:26], uint64(len(content)))
	header[29] = ContentTypeReseed
	bundle := append(header, content...)

	got, err := ParseBundle(bundle, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 router info (README skipped), got %d", len(got))
	}
}

func TestExtractContentRejectsBadMagic(t *testing.T) {
	bad := make([]byte, 40)
	if _, err := extractContent(bad); err == nil {
		t.Fatal("expected error for bad SU3 magic")
	}
}
