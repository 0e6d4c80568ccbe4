package main

import "time"

const (
	defaultNodeURL = "https://krist.ceriat.net/ws/start"

	defaultVectorSize = 1

	// Reconnect backoff bounds. The delay doubles from min to max and
	// resets once a hello frame arrives, so a flapping node is retried
	// forever without hammering it.
	defaultReconnectMinDelay = time.Second
	defaultReconnectMaxDelay = 60 * time.Second

	defaultStatsInterval = 10 * time.Second

	// Negotiation is a single small POST; anything slower than this is a
	// dead node.
	negotiationTimeout = 30 * time.Second

	wsWriteTimeout = 30 * time.Second

	// Cap on concurrent kernel builds at startup. Building is CPU-bound in
	// the vendor compiler, so a rig with many devices compiles in waves.
	maxConcurrentBuilds = 4
)

// Process exit codes.
const (
	exitOK       = 0
	exitUsage    = 1
	exitOpenCL   = 2
	exitInternal = 3
	exitNetwork  = 4
)
