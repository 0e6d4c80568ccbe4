package main

import (
	"bytes"
	"testing"
)

func TestInterleaveRoundTrip(t *testing.T) {
	lanes := [][]byte{
		[]byte("abc"),
		[]byte("def"),
		[]byte("ghi"),
		[]byte("jkl"),
	}
	packed := interleave(lanes, 64)
	if len(packed) != 64*4 {
		t.Fatalf("packed length = %d, want 256", len(packed))
	}
	for l, lane := range lanes {
		got := deinterleave(packed, 4, 64, l)
		want := make([]byte, 64)
		copy(want, lane)
		if !bytes.Equal(got, want) {
			t.Fatalf("lane %d = %q, want %q", l, got[:4], want[:4])
		}
	}
}

func TestInterleaveLayout(t *testing.T) {
	// Byte i of lane l must land at i*lanes + l, matching vloadN.
	packed := interleave([][]byte{{0x11, 0x12}, {0x21, 0x22}}, 2)
	want := []byte{0x11, 0x21, 0x12, 0x22}
	if !bytes.Equal(packed, want) {
		t.Fatalf("packed = %v, want %v", packed, want)
	}
}

func TestInterleaveSingleLane(t *testing.T) {
	packed := interleave([][]byte{[]byte("abc")}, 64)
	if len(packed) != 64 {
		t.Fatalf("packed length = %d, want 64", len(packed))
	}
	if string(packed[:3]) != "abc" {
		t.Fatalf("scalar interleave mangled input: %q", packed[:3])
	}
}

func TestLaneInputsCoverWidestVector(t *testing.T) {
	if len(testLaneInputs) < 4 {
		t.Fatalf("need at least 4 lane inputs, have %d", len(testLaneInputs))
	}
	for _, in := range testLaneInputs {
		if len(in) != len(testDigestInput) {
			t.Fatalf("lane input %q length differs from %q", in, testDigestInput)
		}
	}
}
