package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/remeh/sizedwaitgroup"
)

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

type intList []int

func (s *intList) String() string {
	parts := make([]string, len(*s))
	for i, n := range *s {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func (s *intList) Set(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("not a number: %q", v)
	}
	*s = append(*s, n)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	defer logger.Stop()

	var deviceIDs stringList
	var deviceNums intList

	allDevicesFlag := flag.Bool("all-devices", false, "mine on every compatible device")
	bestDeviceFlag := flag.Bool("best-device", false, "mine on the highest scoring device (default)")
	flag.Var(&deviceIDs, "device", "mine on the device with this platform:index id (repeatable)")
	flag.Var(&deviceNums, "device-num", "mine on the device with this listing number (repeatable)")
	listDevicesFlag := flag.Bool("list-devices", false, "list compatible devices and exit")
	nodeFlag := flag.String("node", "", "websocket negotiation endpoint (default "+defaultNodeURL+")")
	verboseFlag := flag.Bool("verbose", false, "debug logging plus raw websocket frames")
	vectorSizeFlag := flag.Int("vector-size", 0, "SIMD lanes per work-item: 1, 2 or 4")
	worksizeFlag := flag.Int("worksize", 0, "work-items per kernel launch (0 = per-device default)")
	testsOnlyFlag := flag.Bool("tests-only", false, "run kernel self-tests and exit")
	configFlag := flag.String("config", "kristforge.toml", "path to config file")
	noReconnectFlag := flag.Bool("no-reconnect", false, "exit instead of reconnecting on node loss")
	statsIntervalFlag := flag.Duration("stats-interval", 0, "interval between stats log lines")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <address>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "An OpenCL accelerated Krist miner. <address> is the 10-character\naddress block rewards are credited to.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *listDevicesFlag {
		entries, err := listCompatibleDevices()
		if err != nil {
			fmt.Fprintln(os.Stderr, "kristforge:", err)
			return exitOpenCL
		}
		printDeviceList(entries)
		return exitOK
	}

	if flag.NArg() != 1 {
		flag.Usage()
		return exitUsage
	}
	address, err := parseAddress(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "kristforge:", err)
		return exitUsage
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kristforge:", err)
		return exitUsage
	}
	applyRuntimeOverrides(&cfg, runtimeOverrides{
		node:          *nodeFlag,
		vectorSize:    *vectorSizeFlag,
		worksize:      *worksizeFlag,
		noReconnect:   *noReconnectFlag,
		statsInterval: *statsIntervalFlag,
		verbose:       *verboseFlag,
	})
	if err := validateConfig(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "kristforge:", err)
		return exitUsage
	}

	level, _ := parseLogLevel(cfg.LogLevel)
	if cfg.Verbose {
		verboseLogging = true
		level = logLevelDebug
	}
	logger.setLevel(level)

	entries, err := listCompatibleDevices()
	if err != nil {
		logger.Error("device enumeration failed", "error", err)
		return exitOpenCL
	}
	if len(entries) == 0 {
		logger.Error("no compatible OpenCL devices available")
		return exitOpenCL
	}
	selected, err := selectDevices(entries, deviceSelection{
		all:  *allDevicesFlag,
		best: *bestDeviceFlag,
		ids:  deviceIDs,
		nums: deviceNums,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "kristforge:", err)
		return exitUsage
	}

	logger.Info("starting kristforge",
		"address", string(address[:]),
		"devices", len(selected),
		"vector_size", cfg.VectorSize,
		"sha256", sha256ImplementationName(),
	)

	runners, code := buildRunners(selected, address, cfg)
	if code != exitOK {
		return code
	}
	if *testsOnlyFlag {
		for _, r := range runners {
			r.release()
		}
		logger.Info("self-tests passed", "devices", len(runners))
		return exitOK
	}

	return mine(address, cfg, selected, runners)
}

// buildRunners compiles the kernel and runs self-tests on every selected
// device, a few devices at a time. All failures are reported before the
// process gives up.
func buildRunners(selected []*clDeviceEntry, address [addressLen]byte, cfg config) ([]*clRunner, int) {
	runners := make([]*clRunner, len(selected))
	buildErrs := make([]error, len(selected))
	testErrs := make([]error, len(selected))

	swg := sizedwaitgroup.New(maxConcurrentBuilds)
	for i, entry := range selected {
		swg.Add()
		go func(i int, entry *clDeviceEntry) {
			defer swg.Done()
			prefix, err := workerPrefix(i)
			if err != nil {
				buildErrs[i] = err
				return
			}
			logger.Info("preparing device", "device", entry.name(), "id", entry.id(), "prefix", string(prefix[:]))
			r, err := newCLRunner(entry, address, prefix, cfg.VectorSize, cfg.Worksize)
			if err != nil {
				buildErrs[i] = err
				return
			}
			if err := r.runSelfTests(); err != nil {
				testErrs[i] = err
				r.release()
				return
			}
			logger.Info("device ready", "device", entry.name(), "worksize", r.worksize)
			runners[i] = r
		}(i, entry)
	}
	swg.Wait()

	code := exitOK
	for i := range selected {
		if buildErrs[i] != nil {
			logger.Error("device setup failed", "device", selected[i].name(), "error", buildErrs[i])
			code = exitOpenCL
		}
		if testErrs[i] != nil {
			logger.Error("device self-test failed", "device", selected[i].name(), "error", testErrs[i])
			if code == exitOK {
				code = exitInternal
			}
		}
	}
	if code != exitOK {
		for _, r := range runners {
			if r != nil {
				r.release()
			}
		}
		return nil, code
	}
	return runners, exitOK
}

// mine runs the full pipeline: device workers, the node client and the stats
// reporter, then blocks until a signal, a network failure without reconnect,
// or the death of the last worker.
func mine(address [addressLen]byte, cfg config, selected []*clDeviceEntry, runners []*clRunner) int {
	broker := newSubmissionBroker()
	state := newMiningState(address, broker.put)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := newNodeClient(cfg.Node, state, broker, cfg.AutoReconnect, cfg.ReconnectMinDelay, cfg.ReconnectMaxDelay)
	netErr := make(chan error, 1)
	go func() { netErr <- client.run(ctx) }()

	go newStatsReporter(state, cfg.StatsInterval).run(ctx)

	var wg sync.WaitGroup
	var live atomic.Int32
	live.Store(int32(len(runners)))
	allDead := make(chan struct{})
	var workerFailed atomic.Bool

	for i, r := range runners {
		prefix, _ := workerPrefix(i)
		w := newDeviceWorker(selected[i].name(), prefix, state, r)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.run(); err != nil {
				// The process keeps mining on the remaining devices and only
				// gives up once the last one is gone.
				logger.Error("worker died", "device", w.name, "error", err)
				workerFailed.Store(true)
			}
			if live.Add(-1) == 0 {
				close(allDead)
			}
		}()
	}

	code := exitOK
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", "signal")
	case err := <-netErr:
		if err != nil {
			logger.Error("node link failed", "error", err)
			code = exitNetwork
		}
	case <-allDead:
		if workerFailed.Load() {
			logger.Error("all workers died")
			code = exitOpenCL
		}
	}

	cancel()
	state.stop()
	broker.close()
	wg.Wait()

	logger.Info("stopped", "total_hashes", state.hashes(), "blocks_solved", state.solved())
	return code
}
