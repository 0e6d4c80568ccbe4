package main

import (
	"strings"
	"testing"
)

func fakeEntries(n int) []*clDeviceEntry {
	entries := make([]*clDeviceEntry, n)
	for i := range entries {
		entries[i] = &clDeviceEntry{index: i, platformIndex: 0, deviceIndex: i}
	}
	return entries
}

func TestSelectDevicesAll(t *testing.T) {
	entries := fakeEntries(3)
	got, err := selectDevices(entries, deviceSelection{all: true})
	if err != nil {
		t.Fatalf("selectDevices: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("selected %d devices, want 3", len(got))
	}
}

func TestSelectDevicesByID(t *testing.T) {
	entries := fakeEntries(3)
	got, err := selectDevices(entries, deviceSelection{ids: []string{"0:2", "0:0"}})
	if err != nil {
		t.Fatalf("selectDevices: %v", err)
	}
	if len(got) != 2 || got[0].index != 0 || got[1].index != 2 {
		t.Fatalf("selected %v", got)
	}
}

func TestSelectDevicesByNum(t *testing.T) {
	entries := fakeEntries(4)
	got, err := selectDevices(entries, deviceSelection{nums: []int{1, 1, 3}})
	if err != nil {
		t.Fatalf("selectDevices: %v", err)
	}
	// Duplicates collapse; order follows the listing.
	if len(got) != 2 || got[0].index != 1 || got[1].index != 3 {
		t.Fatalf("selected %v", got)
	}
}

func TestSelectDevicesUnknownID(t *testing.T) {
	_, err := selectDevices(fakeEntries(2), deviceSelection{ids: []string{"7:7"}})
	if err == nil || !strings.Contains(err.Error(), "unknown device id") {
		t.Fatalf("err = %v", err)
	}
}

func TestSelectDevicesNumOutOfRange(t *testing.T) {
	_, err := selectDevices(fakeEntries(2), deviceSelection{nums: []int{2}})
	if err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("err = %v", err)
	}
}

func TestSelectDevicesNone(t *testing.T) {
	if _, err := selectDevices(nil, deviceSelection{all: true}); err == nil {
		t.Fatal("empty device list accepted")
	}
}

func TestDeviceSelectionEmpty(t *testing.T) {
	if !(deviceSelection{}).empty() {
		t.Fatal("zero selection not empty")
	}
	if (deviceSelection{all: true}).empty() {
		t.Fatal("all selection reported empty")
	}
	if (deviceSelection{nums: []int{0}}).empty() {
		t.Fatal("nums selection reported empty")
	}
}

func TestBuildOptions(t *testing.T) {
	tests := []struct {
		extensions string
		vectorSize int
		want       string
	}{
		{extensions: "", vectorSize: 1, want: "-DVECSIZE=1"},
		{extensions: "", vectorSize: 2, want: "-DVECSIZE=2 -DVEC2"},
		{extensions: "", vectorSize: 4, want: "-DVECSIZE=4 -DVEC4"},
		{
			extensions: "cl_khr_fp64 cl_amd_media_ops cl_amd_printf",
			vectorSize: 1,
			want:       "-DVECSIZE=1 -DBITALIGN",
		},
		{
			extensions: "cl_amd_media_ops",
			vectorSize: 4,
			want:       "-DVECSIZE=4 -DVEC4 -DBITALIGN",
		},
	}
	for _, tt := range tests {
		if got := buildOptions(tt.extensions, tt.vectorSize); got != tt.want {
			t.Fatalf("buildOptions(%q, %d) = %q, want %q", tt.extensions, tt.vectorSize, got, tt.want)
		}
	}
}
