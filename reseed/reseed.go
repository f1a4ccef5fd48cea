// Package reseed fetches a bundle of RouterInfo descriptors from an
// HTTPS reseed server and splits it into individual descriptor buffers
// for netdb.Store.Reseed (spec.md §4.10's "MinKnownRouters reseed
// fallback", the SPEC_FULL.md addition naming this package directly).
// It is grounded on the teacher's descriptor package
// (descriptor/descriptor.go) for the fetch-then-parse shape, generalized
// from Tor's single-relay plaintext descriptor fetch to I2P's SU3
// -wrapped batch-of-descriptors bundle.
//
// Bundle authentication (the SU3 container's own DSA/RSA signature over
// its content) is out of scope here: the external collaborator dialing
// the reseed server already authenticates the HTTPS channel against a
// pinned certificate, per spec.md's reseed Non-goals. This package only
// understands enough of the SU3 header to separate the content from its
// trailer and hand the content (a ZIP archive of routerInfo-*.dat files,
// per the format reseed servers actually publish) to archive/zip.
package reseed

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-i2p/i2p-router-core/routerinfo"
)

// su3Magic is the fixed 8-byte prefix of every SU3 container.
var su3Magic = [8]byte{'I', '2', 'P', 's', 'u', '3', 0x00, 0x00}

// su3Header mirrors the fixed-size fields of an SU3 container, per the
// public I2P SU3 file format (the variable-length version/signer-ID/
// content/signature fields follow it in the byte stream).
type su3Header struct {
	SignatureType   uint16
	SignatureLength uint16
	VersionLength   byte
	SignerIDLength  byte
	ContentLength   uint64
	FileType        byte
	ContentType     byte
}

// ContentTypeReseed is the SU3 content-type byte reseed bundles carry.
const ContentTypeReseed = 3

// FetchTimeout bounds the HTTPS GET, matching the teacher's
// descriptor.FetchDescriptor's 10s directory-fetch timeout scaled up for
// a multi-megabyte bundle rather than a single descriptor.
const FetchTimeout = 60 * time.Second

// MaxBundleSize caps the downloaded body, mirroring
// descriptor.FetchDescriptor's abuse-resistant body limit.
const MaxBundleSize = 32 << 20

// FetchBundle downloads the SU3 bundle at url (an https:// reseed
// endpoint) and returns it unparsed; callers pass the result to
// ParseBundle. Split out so tests can exercise ParseBundle without
// network access.
func FetchBundle(url string) ([]byte, error) {
	client := &http.Client{Timeout: FetchTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("reseed: fetch bundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reseed: fetch bundle: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBundleSize))
	if err != nil {
		return nil, fmt.Errorf("reseed: read bundle body: %w", err)
	}
	return body, nil
}

// ParseBundle decodes an SU3 container and returns every individual
// RouterInfo it contains. expectedNetID is forwarded to routerinfo.Parse
// for each entry; malformed entries are skipped rather than aborting the
// whole batch, so one bad descriptor doesn't waste an otherwise-good
// bundle (spec.md §4.10's reseed fallback only needs enough routers to
// clear MinKnownRouters, not every entry to parse).
func ParseBundle(data []byte, expectedNetID int) ([]*routerinfo.RouterInfo, error) {
	content, err := extractContent(data)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("reseed: bundle content is not a zip archive: %w", err)
	}

	var out []*routerinfo.RouterInfo
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "routerInfo-") || !strings.HasSuffix(f.Name, ".dat") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		raw, err := io.ReadAll(io.LimitReader(rc, routerinfo.MaxDescriptorSize))
		rc.Close()
		if err != nil {
			continue
		}
		ri, err := routerinfo.Parse(raw, expectedNetID)
		if err != nil {
			continue
		}
		out = append(out, ri)
	}
	return out, nil
}

// Fetch downloads and decodes a bundle from url in one call, the shape
// netdb.Store.Reseed expects as its fetch collaborator.
func Fetch(url string, expectedNetID int) ([]*routerinfo.RouterInfo, error) {
	bundle, err := FetchBundle(url)
	if err != nil {
		return nil, err
	}
	return ParseBundle(bundle, expectedNetID)
}

// extractContent validates the SU3 magic/header and slices out the
// content region, per the fixed 40-byte fixed header followed by
// version, signer ID, content, then signature.
func extractContent(data []byte) ([]byte, error) {
	const fixedHeaderLen = 40
	if len(data) < fixedHeaderLen {
		return nil, fmt.Errorf("reseed: bundle shorter than SU3 header")
	}
	if !bytes.Equal(data[0:8], su3Magic[:]) {
		return nil, fmt.Errorf("reseed: bad SU3 magic")
	}

	h := su3Header{
		SignatureType:   binary.BigEndian.Uint16(data[10:12]),
		SignatureLength: binary.BigEndian.Uint16(data[12:14]),
		VersionLength:   data[15],
		SignerIDLength:  data[17],
		ContentLength:   binary.BigEndian.Uint64(data[18:26]),
		FileType:        data[27],
		ContentType:     data[29],
	}
	if h.ContentType != ContentTypeReseed {
		return nil, fmt.Errorf("reseed: unexpected SU3 content type %d", h.ContentType)
	}

	pos := fixedHeaderLen + int(h.VersionLength) + int(h.SignerIDLength)
	end := pos + int(h.ContentLength)
	if end > len(data) {
		return nil, fmt.Errorf("reseed: content region extends past bundle end")
	}
	return data[pos:end], nil
}
