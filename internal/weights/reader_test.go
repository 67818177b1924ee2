package weights

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// writeHeader builds a synthetic modern header.
func writeHeader(t *testing.T, buf *bytes.Buffer, major, minor, revision int32, seen int64, seenSize int) {
	t.Helper()
	for _, v := range []int32{major, minor, revision} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("write header field: %v", err)
		}
	}
	switch seenSize {
	case 4:
		if err := binary.Write(buf, binary.LittleEndian, int32(seen)); err != nil {
			t.Fatalf("write seen: %v", err)
		}
	case 8:
		if err := binary.Write(buf, binary.LittleEndian, seen); err != nil {
			t.Fatalf("write seen: %v", err)
		}
	default:
		t.Fatalf("bad seen size %d", seenSize)
	}
}

func writeFloats(t *testing.T, buf *bytes.Buffer, vals ...float32) {
	t.Helper()
	for _, v := range vals {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("write float: %v", err)
		}
	}
}

func TestHeaderVersionBranch(t *testing.T) {
	tests := []struct {
		name         string
		major, minor int32
		wantSeenSize int
	}{
		{"old 0.1 uses 4-byte seen", 0, 1, 4},
		{"2.0 uses 8-byte seen", 2, 0, 8},
		{"0.2 uses 8-byte seen", 0, 2, 8},
		{"garbage major falls back to 4-byte seen", 1000, 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			writeHeader(t, buf, tt.major, tt.minor, 0, 12345, tt.wantSeenSize)

			r, err := NewReader(bytes.NewReader(buf.Bytes()), LayoutModern)
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}

			h := r.Header()
			if h.SeenSize != tt.wantSeenSize {
				t.Errorf("SeenSize = %d, want %d", h.SeenSize, tt.wantSeenSize)
			}
			if h.Seen != 12345 {
				t.Errorf("Seen = %d, want 12345", h.Seen)
			}
			if h.Major != tt.major || h.Minor != tt.minor {
				t.Errorf("Major/Minor = %d/%d, want %d/%d", h.Major, h.Minor, tt.major, tt.minor)
			}
			if r.Consumed() != 12+int64(tt.wantSeenSize) {
				t.Errorf("Consumed = %d, want %d", r.Consumed(), 12+tt.wantSeenSize)
			}
		})
	}
}

func TestLegacyHeaderIsSixteenBytes(t *testing.T) {
	buf := new(bytes.Buffer)
	// Legacy layout ignores the version heuristic even for versions that
	// would select a wide counter.
	writeHeader(t, buf, 0, 2, 0, 777, 4)
	writeFloats(t, buf, 1.0)

	r, err := NewReader(bytes.NewReader(buf.Bytes()), LayoutLegacy)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if r.Header().SeenSize != 4 {
		t.Errorf("SeenSize = %d, want 4", r.Header().SeenSize)
	}
	if r.Header().Seen != 777 {
		t.Errorf("Seen = %d, want 777", r.Header().Seen)
	}
	if r.Consumed() != 16 {
		t.Errorf("Consumed = %d, want 16", r.Consumed())
	}

	vals, err := r.ReadFloats(1)
	if err != nil {
		t.Fatalf("ReadFloats failed: %v", err)
	}
	if vals[0] != 1.0 {
		t.Errorf("first float = %v, want 1.0", vals[0])
	}
}

func TestByteCountConservation(t *testing.T) {
	buf := new(bytes.Buffer)
	writeHeader(t, buf, 0, 2, 0, 0, 8)

	// Two "layers": 3 floats then 5 floats, no padding.
	writeFloats(t, buf, 1, 2, 3)
	writeFloats(t, buf, 4, 5, 6, 7, 8)
	total := int64(buf.Len())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), LayoutModern)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	if _, err := r.ReadFloats(3); err != nil {
		t.Fatalf("ReadFloats(3): %v", err)
	}
	if _, err := r.ReadFloats(5); err != nil {
		t.Fatalf("ReadFloats(5): %v", err)
	}

	if r.Consumed() != total {
		t.Errorf("Consumed = %d, want %d", r.Consumed(), total)
	}
	if r.FloatsRead() != 8 {
		t.Errorf("FloatsRead = %d, want 8", r.FloatsRead())
	}

	trailing, err := r.Trailing()
	if err != nil {
		t.Fatalf("Trailing failed: %v", err)
	}
	if trailing != 0 {
		t.Errorf("trailing = %d, want 0", trailing)
	}
}

func TestTrailingBytesReported(t *testing.T) {
	buf := new(bytes.Buffer)
	writeHeader(t, buf, 0, 1, 0, 0, 4)
	writeFloats(t, buf, 1, 2, 3, 4)

	r, err := NewReader(bytes.NewReader(buf.Bytes()), LayoutModern)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if _, err := r.ReadFloats(2); err != nil {
		t.Fatalf("ReadFloats(2): %v", err)
	}

	trailing, err := r.Trailing()
	if err != nil {
		t.Fatalf("Trailing failed: %v", err)
	}
	if trailing != 8 {
		t.Errorf("trailing = %d, want 8", trailing)
	}
}

func TestShortReadIsFatal(t *testing.T) {
	buf := new(bytes.Buffer)
	writeHeader(t, buf, 0, 1, 0, 0, 4)
	writeFloats(t, buf, 1, 2)

	r, err := NewReader(bytes.NewReader(buf.Bytes()), LayoutModern)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if _, err := r.ReadFloats(3); err == nil {
		t.Fatal("expected error reading past end of stream")
	}
}

func TestHeaderTruncated(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, int32(0)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewReader(bytes.NewReader(buf.Bytes()), LayoutModern); err == nil {
		t.Fatal("expected error for truncated header")
	}
}
