package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

// fileConfig mirrors kristforge.toml. Every field is optional; zero values
// fall back to the compiled-in defaults and CLI flags override everything.
type fileConfig struct {
	Node                     string `toml:"node"`
	VectorSize               int    `toml:"vector_size"`
	Worksize                 int    `toml:"worksize"`
	AutoReconnect            *bool  `toml:"auto_reconnect"`
	ReconnectMinDelaySeconds int    `toml:"reconnect_min_delay_seconds"`
	ReconnectMaxDelaySeconds int    `toml:"reconnect_max_delay_seconds"`
	StatsIntervalSeconds     int    `toml:"stats_interval_seconds"`
	LogLevel                 string `toml:"log_level"`
	Verbose                  bool   `toml:"verbose"`
}

var configExample = []byte(`# kristforge miner configuration. All keys optional; flags override.

# HTTP endpoint used to negotiate the node's WebSocket URL.
# node = "https://krist.ceriat.net/ws/start"

# SIMD lanes per work-item: 1, 2 or 4.
# vector_size = 1

# Work-items per kernel launch. 0 picks a per-device default.
# worksize = 0

# auto_reconnect = true
# reconnect_min_delay_seconds = 1
# reconnect_max_delay_seconds = 60

# stats_interval_seconds = 10

# log_level = "info"
# verbose = false
`)

// config is the resolved runtime configuration.
type config struct {
	Node              string
	VectorSize        int
	Worksize          int
	AutoReconnect     bool
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	StatsInterval     time.Duration
	LogLevel          string
	Verbose           bool
}

func defaultConfig() config {
	return config{
		Node:              defaultNodeURL,
		VectorSize:        defaultVectorSize,
		AutoReconnect:     true,
		ReconnectMinDelay: defaultReconnectMinDelay,
		ReconnectMaxDelay: defaultReconnectMaxDelay,
		StatsInterval:     defaultStatsInterval,
		LogLevel:          "info",
	}
}

// loadConfig reads the TOML file when present. A missing file is not an
// error: defaults apply and an example is dropped beside the expected path
// so there is something to edit.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		writeExampleConfig(path + ".example")
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Node != "" {
		cfg.Node = fc.Node
	}
	if fc.VectorSize != 0 {
		cfg.VectorSize = fc.VectorSize
	}
	if fc.Worksize != 0 {
		cfg.Worksize = fc.Worksize
	}
	if fc.AutoReconnect != nil {
		cfg.AutoReconnect = *fc.AutoReconnect
	}
	if fc.ReconnectMinDelaySeconds > 0 {
		cfg.ReconnectMinDelay = time.Duration(fc.ReconnectMinDelaySeconds) * time.Second
	}
	if fc.ReconnectMaxDelaySeconds > 0 {
		cfg.ReconnectMaxDelay = time.Duration(fc.ReconnectMaxDelaySeconds) * time.Second
	}
	if fc.StatsIntervalSeconds > 0 {
		cfg.StatsInterval = time.Duration(fc.StatsIntervalSeconds) * time.Second
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	cfg.Verbose = cfg.Verbose || fc.Verbose

	return cfg, nil
}

func writeExampleConfig(path string) {
	if _, err := os.Stat(path); err == nil {
		return
	}
	if err := os.WriteFile(path, configExample, 0o644); err != nil {
		logger.Debug("write example config", "path", path, "error", err)
	}
}

// runtimeOverrides carries the CLI flags that shadow file values. Zero
// values mean "not set on the command line".
type runtimeOverrides struct {
	node          string
	vectorSize    int
	worksize      int
	noReconnect   bool
	statsInterval time.Duration
	verbose       bool
}

func applyRuntimeOverrides(cfg *config, o runtimeOverrides) {
	if o.node != "" {
		cfg.Node = o.node
	}
	if o.vectorSize != 0 {
		cfg.VectorSize = o.vectorSize
	}
	if o.worksize != 0 {
		cfg.Worksize = o.worksize
	}
	if o.noReconnect {
		cfg.AutoReconnect = false
	}
	if o.statsInterval > 0 {
		cfg.StatsInterval = o.statsInterval
	}
	if o.verbose {
		cfg.Verbose = true
	}
}

func validateConfig(cfg config) error {
	if cfg.Node == "" {
		return fmt.Errorf("node URL must not be empty")
	}
	switch cfg.VectorSize {
	case 1, 2, 4:
	default:
		return fmt.Errorf("vector size must be 1, 2 or 4, got %d", cfg.VectorSize)
	}
	if cfg.Worksize < 0 {
		return fmt.Errorf("worksize must not be negative")
	}
	if cfg.ReconnectMinDelay <= 0 || cfg.ReconnectMaxDelay < cfg.ReconnectMinDelay {
		return fmt.Errorf("reconnect delays must satisfy 0 < min <= max")
	}
	if _, ok := parseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	return nil
}
