//go:build linux

package pmu

import (
	"encoding/binary"
	"testing"
)

// encodeGroupRead builds a synthetic PERF_FORMAT_GROUP|PERF_FORMAT_ID buffer:
// u64 nr, then nr * (u64 value, u64 id), matching what the kernel returns
// from a single read() on a group leader fd.
func encodeGroupRead(pairs [][2]uint64) []byte {
	buf := make([]byte, 8+16*len(pairs))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(pairs)))
	off := 8
	for _, p := range pairs {
		binary.LittleEndian.PutUint64(buf[off:off+8], p[0])
		binary.LittleEndian.PutUint64(buf[off+8:off+16], p[1])
		off += 16
	}
	return buf
}

func TestParseGroupRead_MapsValuesByID(t *testing.T) {
	byID := map[uint64]*Slot{
		100: {Name: "render-busy"},
		101: {Name: "render-wait"},
	}
	buf := encodeGroupRead([][2]uint64{
		{5_000_000, 100},
		{1_000, 101},
	})

	values, err := parseGroupRead(buf, len(buf), byID)
	if err != nil {
		t.Fatalf("parseGroupRead() error = %v", err)
	}
	if values["render-busy"] != 5_000_000 {
		t.Errorf("render-busy = %d, want 5000000", values["render-busy"])
	}
	if values["render-wait"] != 1_000 {
		t.Errorf("render-wait = %d, want 1000", values["render-wait"])
	}
}

func TestParseGroupRead_UnknownIDIsSkipped(t *testing.T) {
	byID := map[uint64]*Slot{100: {Name: "render-busy"}}
	buf := encodeGroupRead([][2]uint64{
		{5_000_000, 100},
		{999, 777}, // id not in byID, e.g. a slot this Group never opened
	})

	values, err := parseGroupRead(buf, len(buf), byID)
	if err != nil {
		t.Fatalf("parseGroupRead() error = %v", err)
	}
	if len(values) != 1 {
		t.Fatalf("len(values) = %d, want 1 (unknown id dropped)", len(values))
	}
}

func TestParseGroupRead_SingleLeaderNoSiblings(t *testing.T) {
	// The minimal real-world case: a leader read before any follower has
	// joined. Still 24 bytes (nr + one value/id pair), never the bare
	// 16-byte PERF_FORMAT_ID pair a naive reader might expect.
	byID := map[uint64]*Slot{42: {Name: "actual-frequency"}}
	buf := encodeGroupRead([][2]uint64{{1500, 42}})

	if len(buf) != 24 {
		t.Fatalf("encoded leader-only buffer = %d bytes, want 24", len(buf))
	}

	values, err := parseGroupRead(buf, len(buf), byID)
	if err != nil {
		t.Fatalf("parseGroupRead() error = %v", err)
	}
	if values["actual-frequency"] != 1500 {
		t.Errorf("actual-frequency = %d, want 1500", values["actual-frequency"])
	}
}

func TestParseGroupRead_ShortBufferIsError(t *testing.T) {
	buf := make([]byte, 4) // shorter than the 8-byte nr field alone
	if _, err := parseGroupRead(buf, len(buf), nil); err == nil {
		t.Fatal("parseGroupRead() error = nil, want error on short buffer")
	}
}

func TestParseGroupRead_TruncatedTrailingPairIsIgnored(t *testing.T) {
	byID := map[uint64]*Slot{100: {Name: "render-busy"}}
	full := encodeGroupRead([][2]uint64{{5_000_000, 100}, {1_000, 101}})
	// Simulate a read() that reports fewer bytes than the buffer holds
	// (n < len(buf)): only the first pair should be decoded.
	n := 8 + 16

	values, err := parseGroupRead(full, n, byID)
	if err != nil {
		t.Fatalf("parseGroupRead() error = %v", err)
	}
	if len(values) != 1 || values["render-busy"] != 5_000_000 {
		t.Errorf("values = %+v, want only render-busy=5000000 from the first pair", values)
	}
}
