package main

// sha256Sum is the host-side digest used for kernel self-tests and for
// verifying GPU-reported solutions before submission. The backend is picked
// at build time; see hash_sha256_simd.go and hash_sha256_noavx.go.
type sha256SumFunc func([]byte) [32]byte

var sha256Sum sha256SumFunc
