package main

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/robvanmieghem/go-opencl/cl"
)

// Known-answer vector: SHA-256("abc") and the score of its leading six bytes.
const (
	testDigestInput = "abc"
	testDigestHex   = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	testScoreValue  = 0xba7816bf8f01
)

// testLaneInputs feeds one distinct short string per SIMD lane so vector
// builds are checked lane by lane, not just on lane zero.
var testLaneInputs = []string{"abc", "def", "ghi", "jkl"}

// interleave packs per-lane byte streams the way vloadN reads them: byte i
// of lane l lands at position i*lanes + l.
func interleave(lanes [][]byte, frameLen int) []byte {
	out := make([]byte, frameLen*len(lanes))
	for l, lane := range lanes {
		for i := 0; i < frameLen && i < len(lane); i++ {
			out[i*len(lanes)+l] = lane[i]
		}
	}
	return out
}

// deinterleave extracts lane l from an interleaved buffer.
func deinterleave(data []byte, lanes, frameLen, lane int) []byte {
	out := make([]byte, frameLen)
	for i := 0; i < frameLen; i++ {
		out[i] = data[i*lanes+lane]
	}
	return out
}

// runSelfTests verifies the compiled program against known answers: the
// digest kernel must reproduce SHA-256("abc") (and the host digest of every
// lane input), and the score kernel must derive 0xba7816bf8f01 from it.
// A failure means the device or the build is untrustworthy.
func (r *clRunner) runSelfTests() error {
	if err := r.testDigestKernel(); err != nil {
		return err
	}
	return r.testScoreKernel()
}

func (r *clRunner) testDigestKernel() error {
	kernel, err := r.program.CreateKernel("test_digest")
	if err != nil {
		return fmt.Errorf("create test_digest kernel: %w", err)
	}
	defer kernel.Release()

	lanes := make([][]byte, r.vectorSize)
	for l := range lanes {
		lanes[l] = []byte(testLaneInputs[l])
	}
	input := interleave(lanes, 64)
	output := make([]byte, 32*r.vectorSize)

	inBuf, err := r.ctx.CreateEmptyBuffer(cl.MemReadOnly, len(input))
	if err != nil {
		return fmt.Errorf("create test input buffer: %w", err)
	}
	defer inBuf.Release()
	outBuf, err := r.ctx.CreateEmptyBuffer(cl.MemWriteOnly, len(output))
	if err != nil {
		return fmt.Errorf("create test output buffer: %w", err)
	}
	defer outBuf.Release()

	if _, err := r.queue.EnqueueWriteBufferByte(inBuf, true, 0, input, nil); err != nil {
		return fmt.Errorf("write test input: %w", err)
	}
	if err := kernel.SetArgBuffer(0, inBuf); err != nil {
		return err
	}
	if err := kernel.SetArgUint32(1, uint32(len(testDigestInput))); err != nil {
		return err
	}
	if err := kernel.SetArgBuffer(2, outBuf); err != nil {
		return err
	}
	if _, err := r.queue.EnqueueNDRangeKernel(kernel, nil, []int{1}, nil, nil); err != nil {
		return fmt.Errorf("enqueue test_digest: %w", err)
	}
	if _, err := r.queue.EnqueueReadBufferByte(outBuf, true, 0, output, nil); err != nil {
		return fmt.Errorf("read test_digest output: %w", err)
	}

	for l, lane := range lanes {
		got := deinterleave(output, r.vectorSize, 32, l)
		want := sha256Sum(lane)
		if !bytes.Equal(got, want[:]) {
			return fmt.Errorf("test_digest lane %d (%q): got %s, want %s",
				l, lane, hex.EncodeToString(got), hex.EncodeToString(want[:]))
		}
	}

	// Lane 0 is additionally pinned to the published FIPS vector so a broken
	// host backend cannot mask a broken kernel.
	got := hex.EncodeToString(deinterleave(output, r.vectorSize, 32, 0))
	if got != testDigestHex {
		return fmt.Errorf("test_digest known answer: got %s, want %s", got, testDigestHex)
	}
	return nil
}

func (r *clRunner) testScoreKernel() error {
	kernel, err := r.program.CreateKernel("test_score")
	if err != nil {
		return fmt.Errorf("create test_score kernel: %w", err)
	}
	defer kernel.Release()

	digest, err := hex.DecodeString(testDigestHex)
	if err != nil {
		return err
	}
	lanes := make([][]byte, r.vectorSize)
	for l := range lanes {
		lanes[l] = digest
	}
	input := interleave(lanes, 32)
	output := make([]byte, 8*r.vectorSize)

	inBuf, err := r.ctx.CreateEmptyBuffer(cl.MemReadOnly, len(input))
	if err != nil {
		return fmt.Errorf("create score input buffer: %w", err)
	}
	defer inBuf.Release()
	outBuf, err := r.ctx.CreateEmptyBuffer(cl.MemWriteOnly, len(output))
	if err != nil {
		return fmt.Errorf("create score output buffer: %w", err)
	}
	defer outBuf.Release()

	if _, err := r.queue.EnqueueWriteBufferByte(inBuf, true, 0, input, nil); err != nil {
		return fmt.Errorf("write score input: %w", err)
	}
	if err := kernel.SetArgBuffer(0, inBuf); err != nil {
		return err
	}
	if err := kernel.SetArgBuffer(1, outBuf); err != nil {
		return err
	}
	if _, err := r.queue.EnqueueNDRangeKernel(kernel, nil, []int{1}, nil, nil); err != nil {
		return fmt.Errorf("enqueue test_score: %w", err)
	}
	if _, err := r.queue.EnqueueReadBufferByte(outBuf, true, 0, output, nil); err != nil {
		return fmt.Errorf("read test_score output: %w", err)
	}

	for l := 0; l < r.vectorSize; l++ {
		got := binary.LittleEndian.Uint64(output[8*l:])
		if got != testScoreValue {
			return fmt.Errorf("test_score lane %d: got %#x, want %#x", l, got, uint64(testScoreValue))
		}
	}
	if want := scoreDigest(digest[:scoreBytes]); want != testScoreValue {
		return fmt.Errorf("host score derivation: got %#x, want %#x", want, uint64(testScoreValue))
	}
	return nil
}
