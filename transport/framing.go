// Package transport implements the Cache.ContentTracker RPC service:
// UpdateLocations and GetLocations over a length-prefixed, CBOR-encoded
// wire format. CBOR's field-tagged maps let a newer peer add fields
// without breaking an older one still decoding the same stream, the same
// way a line-oriented bus protocol lets peers ignore command fields they
// don't understand.
package transport

import (
	"encoding/binary"
	"io"

	"trackerd/trackererr"
)

// maxFrameBytes bounds a single frame so a corrupted length prefix can't
// make a reader allocate unboundedly.
const maxFrameBytes = 16 << 20

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameBytes {
		return trackererr.New(trackererr.Corrupted, "frame too large: %d bytes", len(payload))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return nil, trackererr.New(trackererr.Corrupted, "frame too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
