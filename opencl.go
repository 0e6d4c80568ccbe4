package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/robvanmieghem/go-opencl/cl"
)

// clDeviceEntry is one usable compute device, addressable either by its flat
// listing index or by a stable "platform:device" id.
type clDeviceEntry struct {
	index         int
	platformIndex int
	deviceIndex   int
	platformName  string
	device        *cl.Device
}

func (e *clDeviceEntry) id() string {
	return strconv.Itoa(e.platformIndex) + ":" + strconv.Itoa(e.deviceIndex)
}

func (e *clDeviceEntry) name() string {
	return strings.TrimSpace(e.device.Name())
}

// score ranks devices for --best-device: clock frequency times compute
// units, the same heuristic the node-side tooling has always used.
func (e *clDeviceEntry) score() int {
	return e.device.MaxClockFrequency() * e.device.MaxComputeUnits()
}

func deviceCompatible(d *cl.Device) bool {
	return d.Type() == cl.DeviceTypeGPU
}

// listCompatibleDevices enumerates every GPU-type device across all OpenCL
// platforms, in a stable order.
func listCompatibleDevices() ([]*clDeviceEntry, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("enumerate opencl platforms: %w", err)
	}

	var entries []*clDeviceEntry
	for pi, platform := range platforms {
		devices, err := platform.GetDevices(cl.DeviceTypeAll)
		if err != nil {
			logger.Warn("skipping opencl platform", "platform", platform.Name(), "error", err)
			continue
		}
		for di, device := range devices {
			if !deviceCompatible(device) {
				continue
			}
			entries = append(entries, &clDeviceEntry{
				index:         len(entries),
				platformIndex: pi,
				deviceIndex:   di,
				platformName:  strings.TrimSpace(platform.Name()),
				device:        device,
			})
		}
	}
	return entries, nil
}

func bestDevice(entries []*clDeviceEntry) *clDeviceEntry {
	var best *clDeviceEntry
	for _, e := range entries {
		if best == nil || e.score() > best.score() {
			best = e
		}
	}
	return best
}

// deviceSelection mirrors the device selection flags. With nothing set, the
// best-scoring device is used.
type deviceSelection struct {
	all  bool
	best bool
	ids  []string
	nums []int
}

func (sel deviceSelection) empty() bool {
	return !sel.all && !sel.best && len(sel.ids) == 0 && len(sel.nums) == 0
}

// selectDevices resolves the selection flags against the enumerated devices.
// Unknown ids and out-of-range indices are reported as usage errors.
func selectDevices(entries []*clDeviceEntry, sel deviceSelection) ([]*clDeviceEntry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no compatible OpenCL devices available")
	}
	if sel.all {
		return entries, nil
	}
	if sel.empty() || sel.best {
		return []*clDeviceEntry{bestDevice(entries)}, nil
	}

	byID := make(map[string]*clDeviceEntry, len(entries))
	for _, e := range entries {
		byID[e.id()] = e
	}

	picked := make(map[int]*clDeviceEntry)
	for _, id := range sel.ids {
		e, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown device id %q (see --list-devices)", id)
		}
		picked[e.index] = e
	}
	for _, n := range sel.nums {
		if n < 0 || n >= len(entries) {
			return nil, fmt.Errorf("device number %d out of range (0-%d)", n, len(entries)-1)
		}
		picked[n] = entries[n]
	}

	out := make([]*clDeviceEntry, 0, len(picked))
	for _, e := range picked {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out, nil
}

// printDeviceList renders --list-devices output.
func printDeviceList(entries []*clDeviceEntry) {
	if len(entries) == 0 {
		fmt.Println("No compatible OpenCL devices found.")
		return
	}
	fmt.Printf("Found %d compatible OpenCL device(s):\n\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  [%d] %s (id %s)\n", e.index, e.name(), e.id())
		fmt.Printf("      Platform: %s\n", e.platformName)
		fmt.Printf("      Vendor: %s\n", strings.TrimSpace(e.device.Vendor()))
		fmt.Printf("      Compute units: %d, max clock: %d MHz, score: %d\n",
			e.device.MaxComputeUnits(), e.device.MaxClockFrequency(), e.score())
		fmt.Printf("      Max work-group size: %d\n\n", e.device.MaxWorkGroupSize())
	}
}
