package main

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

func TestEncodeNonceRoundTrip(t *testing.T) {
	cases := []uint64{
		0,
		1,
		31,
		32,
		7712,
		1 << 20,
		(1 << 50) - 1, // ten 5-bit digits exactly
	}
	for _, n := range cases {
		enc := encodeNonce(n)
		if got := decodeNonce(enc); got != n {
			t.Fatalf("decodeNonce(encodeNonce(%d)) = %d", n, got)
		}
	}
}

func TestEncodeNonceAlphabet(t *testing.T) {
	for _, n := range []uint64{0, 12345, ^uint64(0)} {
		enc := encodeNonce(n)
		for i, c := range enc {
			if c < 0x30 || c > 0x4f {
				t.Fatalf("encodeNonce(%d)[%d] = %#x outside [0x30, 0x4f]", n, i, c)
			}
		}
	}
}

func TestEncodeNonceDigits(t *testing.T) {
	// 5 bits per byte, little-endian: N=1 sets only the first byte.
	enc := encodeNonce(1)
	if enc[0] != 0x31 {
		t.Fatalf("encodeNonce(1)[0] = %#x, want 0x31", enc[0])
	}
	for i := 1; i < nonceLen; i++ {
		if enc[i] != 0x30 {
			t.Fatalf("encodeNonce(1)[%d] = %#x, want 0x30", i, enc[i])
		}
	}
	// N=32 carries into the second byte.
	enc = encodeNonce(32)
	if enc[0] != 0x30 || enc[1] != 0x31 {
		t.Fatalf("encodeNonce(32) = %v, want first two bytes 0x30 0x31", enc)
	}
}

func TestScoreDigestKnownAnswer(t *testing.T) {
	digest, err := hex.DecodeString(testDigestHex)
	if err != nil {
		t.Fatal(err)
	}
	if got := scoreDigest(digest); got != testScoreValue {
		t.Fatalf("scoreDigest = %#x, want %#x", got, uint64(testScoreValue))
	}
	if got := scoreDigest(digest); got != 205024940494593 {
		t.Fatalf("scoreDigest = %d, want 205024940494593", got)
	}
}

func TestScoreDigestFormula(t *testing.T) {
	d := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0xff, 0xff}
	want := uint64(0x01)<<40 + uint64(0x02)<<32 + uint64(0x03)<<24 +
		uint64(0x04)<<16 + uint64(0x05)<<8 + uint64(0x06)
	if got := scoreDigest(d); got != want {
		t.Fatalf("scoreDigest = %d, want %d", got, want)
	}
}

func TestHostDigestKnownAnswer(t *testing.T) {
	sum := sha256Sum([]byte(testDigestInput))
	if got := hex.EncodeToString(sum[:]); got != testDigestHex {
		t.Fatalf("sha256(%q) = %s, want %s", testDigestInput, got, testDigestHex)
	}
}

func TestBuildPreimageLayout(t *testing.T) {
	address, err := parseAddress("k5ztameslf")
	if err != nil {
		t.Fatal(err)
	}
	prevBlock, err := parseShortHash("000000000cad")
	if err != nil {
		t.Fatal(err)
	}
	prefix := [prefixLen]byte{'a', 'a'}

	pre := buildPreimage(address, prevBlock, prefix, 7712)
	if len(pre) != 34 {
		t.Fatalf("preimage length = %d, want 34", len(pre))
	}
	if got := string(pre[:10]); got != "k5ztameslf" {
		t.Fatalf("preimage address segment = %q", got)
	}
	if got := string(pre[10:22]); got != "000000000cad" {
		t.Fatalf("preimage block segment = %q", got)
	}
	if got := string(pre[22:24]); got != "aa" {
		t.Fatalf("preimage prefix segment = %q", got)
	}
	enc := encodeNonce(7712)
	if !bytes.Equal(pre[24:], enc[:]) {
		t.Fatalf("preimage nonce segment = %v, want %v", pre[24:], enc)
	}
}

func TestSolutionPreimageMatchesBuildPreimage(t *testing.T) {
	address, _ := parseAddress("k5ztameslf")
	prevBlock, _ := parseShortHash("000000000cad")
	prefix := [prefixLen]byte{'Q', '7'}

	var sol [solutionLen]byte
	copy(sol[:prefixLen], prefix[:])
	enc := encodeNonce(987654)
	copy(sol[prefixLen:], enc[:])

	a := buildPreimage(address, prevBlock, prefix, 987654)
	b := solutionPreimage(address, prevBlock, sol)
	if a != b {
		t.Fatalf("preimages differ:\n%v\n%v", a, b)
	}
}

// findTestSolution brute-forces a nonce whose score beats the given work.
// Meant for generous thresholds only.
func findTestSolution(t *testing.T, address [addressLen]byte, tgt target, prefix [prefixLen]byte) [solutionLen]byte {
	t.Helper()
	for n := uint64(0); n < 1<<22; n++ {
		pre := buildPreimage(address, tgt.prevBlock, prefix, n)
		sum := sha256Sum(pre[:])
		if scoreDigest(sum[:scoreBytes]) < tgt.work {
			var sol [solutionLen]byte
			copy(sol[:prefixLen], prefix[:])
			enc := encodeNonce(n)
			copy(sol[prefixLen:], enc[:])
			return sol
		}
	}
	t.Fatal("no solution found under generous work threshold")
	return [solutionLen]byte{}
}

func TestVerifySolution(t *testing.T) {
	address, _ := parseAddress("k5ztameslf")
	prevBlock, _ := parseShortHash("000000000cad")
	prefix := [prefixLen]byte{'a', 'a'}

	// Work of 2^44 accepts one hash in ~16, so the search ends quickly.
	tgt := target{work: 1 << 44, prevBlock: prevBlock}
	sol := findTestSolution(t, address, tgt, prefix)

	if !verifySolution(address, tgt, sol) {
		t.Fatal("verifySolution rejected a known good solution")
	}

	// work = 0 accepts nothing: no score is strictly below zero.
	if verifySolution(address, target{work: 0, prevBlock: prevBlock}, sol) {
		t.Fatal("verifySolution accepted under work = 0")
	}
}

func TestParseAddress(t *testing.T) {
	if _, err := parseAddress("k5ztameslf"); err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}
	for _, bad := range []string{"", "short", "waytoolongaddress"} {
		if _, err := parseAddress(bad); err == nil {
			t.Fatalf("parseAddress(%q) succeeded", bad)
		}
	}
}

func TestParseShortHash(t *testing.T) {
	if _, err := parseShortHash("000000000cad"); err != nil {
		t.Fatalf("valid short hash rejected: %v", err)
	}
	for _, bad := range []string{"", "abc", "0123456789abcdef"} {
		if _, err := parseShortHash(bad); err == nil {
			t.Fatalf("parseShortHash(%q) succeeded", bad)
		}
	}
}

func TestWorkerPrefix(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		p, err := workerPrefix(i)
		if err != nil {
			t.Fatalf("workerPrefix(%d): %v", i, err)
		}
		s := string(p[:])
		if seen[s] {
			t.Fatalf("duplicate prefix %q at worker %d", s, i)
		}
		seen[s] = true
		for _, c := range p {
			if !strings.ContainsRune(prefixAlphabet, rune(c)) {
				t.Fatalf("prefix byte %q outside alphabet", c)
			}
		}
	}
	if _, err := workerPrefix(-1); err == nil {
		t.Fatal("negative worker index accepted")
	}
	if _, err := workerPrefix(62 * 62); err == nil {
		t.Fatal("out of range worker index accepted")
	}
}
