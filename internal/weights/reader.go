// Package weights reads Darknet .weights files.
//
// The format is a small integer header followed by a flat run of
// little-endian float32 values, one block per layer in config-declaration
// order. Nothing in the stream is self-describing: the reader hands out
// exactly as many floats as the caller asks for, and any disagreement
// between the config and the byte count shows up as a short read.
package weights

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// HeaderLayout selects how the file header is decoded.
type HeaderLayout int

const (
	// LayoutModern is the post-v2 header: int32 major/minor/revision
	// followed by a "seen" image counter of version-dependent width.
	LayoutModern HeaderLayout = iota

	// LayoutLegacy is the v2-era header: four int32 values, 16 bytes flat.
	LayoutLegacy
)

// String returns a human-readable layout name.
func (l HeaderLayout) String() string {
	switch l {
	case LayoutModern:
		return "modern"
	case LayoutLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// Header is the decoded weight-file header.
type Header struct {
	Major    int32
	Minor    int32
	Revision int32
	Seen     int64 // Images seen during training.
	SeenSize int   // Width of the on-disk seen field: 4 or 8 bytes.
}

// Size returns the header's on-disk size in bytes.
func (h Header) Size() int64 {
	return 12 + int64(h.SeenSize)
}

// seenIs64Bit implements the historical width rule: the seen counter grew
// from 4 to 8 bytes across format revisions without an explicit tag, so
// the width is inferred from the version numbers. The numeric bounds
// guard against old files whose first bytes are not version fields at
// all. Reproduced exactly; do not "fix".
func seenIs64Bit(major, minor int32) bool {
	return major*10+minor >= 2 && major < 1000 && minor < 1000
}

// Reader is a sequential cursor over a weight stream. It never seeks
// backward; desynchronization with the layer declarations is fatal.
type Reader struct {
	r        io.Reader
	closer   io.Closer
	header   Header
	consumed int64 // Bytes consumed, header included.
	floats   int64 // float32 scalars handed out via ReadFloats.
}

// Open opens a weight file and decodes its header.
//
//nolint:gosec // G304: path comes from trusted caller, not user input.
func Open(path string, layout HeaderLayout) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	r, err := NewReader(f, layout)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader decodes the header from r and returns a cursor positioned at
// the first layer's weights.
func NewReader(r io.Reader, layout HeaderLayout) (*Reader, error) {
	wr := &Reader{r: r}
	if err := wr.readHeader(layout); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return wr, nil
}

func (r *Reader) readHeader(layout HeaderLayout) error {
	var h Header
	if err := binary.Read(r.r, binary.LittleEndian, &h.Major); err != nil {
		return fmt.Errorf("read major: %w", err)
	}
	if err := binary.Read(r.r, binary.LittleEndian, &h.Minor); err != nil {
		return fmt.Errorf("read minor: %w", err)
	}
	if err := binary.Read(r.r, binary.LittleEndian, &h.Revision); err != nil {
		return fmt.Errorf("read revision: %w", err)
	}

	switch layout {
	case LayoutLegacy:
		// Fourth int32 is the seen counter.
		var seen int32
		if err := binary.Read(r.r, binary.LittleEndian, &seen); err != nil {
			return fmt.Errorf("read seen: %w", err)
		}
		h.Seen = int64(seen)
		h.SeenSize = 4

	case LayoutModern:
		if seenIs64Bit(h.Major, h.Minor) {
			var seen int64
			if err := binary.Read(r.r, binary.LittleEndian, &seen); err != nil {
				return fmt.Errorf("read seen: %w", err)
			}
			h.Seen = seen
			h.SeenSize = 8
		} else {
			var seen int32
			if err := binary.Read(r.r, binary.LittleEndian, &seen); err != nil {
				return fmt.Errorf("read seen: %w", err)
			}
			h.Seen = int64(seen)
			h.SeenSize = 4
		}

	default:
		return fmt.Errorf("unknown header layout %d", layout)
	}

	r.header = h
	r.consumed = h.Size()
	return nil
}

// Header returns the decoded file header.
func (r *Reader) Header() Header {
	return r.header
}

// ReadFloats reads exactly n little-endian float32 values.
// A short read means the declarations and the byte stream are out of
// sync; there is no recovery.
func (r *Reader) ReadFloats(n int) ([]float32, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative float count %d", n)
	}
	buf := make([]byte, n*4)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("read %d floats at offset %d: %w", n, r.consumed, err)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	r.consumed += int64(n) * 4
	r.floats += int64(n)
	return out, nil
}

// Consumed returns the total bytes consumed so far, header included.
func (r *Reader) Consumed() int64 {
	return r.consumed
}

// FloatsRead returns the number of float32 scalars handed out.
func (r *Reader) FloatsRead() int64 {
	return r.floats
}

// Trailing drains the rest of the stream and returns the number of
// unread bytes. Some export tools pad the file, so leftover bytes are
// reported to the caller as a count rather than failing the conversion.
func (r *Reader) Trailing() (int64, error) {
	n, err := io.Copy(io.Discard, r.r)
	if err != nil {
		return n, fmt.Errorf("drain trailing bytes: %w", err)
	}
	return n, nil
}

// Close releases the underlying file, if the reader owns one.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
