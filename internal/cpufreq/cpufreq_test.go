// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cpufreq

import (
	"errors"
	"fmt"
	"os/exec"
	"testing"
)

func TestParseFreq(t *testing.T) {
	tests := []struct {
		input    string
		expected uint64
	}{
		{"800000", 800_000_000}, // bare integer is kHz
		{"1", 1000},
		{"900MHz", 900_000_000},
		{"900mhz", 900_000_000},
		{"2.5GHz", 2_500_000_000},
		{"2.5 GHz", 2_500_000_000},
		{"1400000kHz", 1_400_000_000},
		{"100Hz", 100},
		{"0", 0},
	}
	for _, tt := range tests {
		got, err := ParseFreq(tt.input)
		if err != nil {
			t.Errorf("ParseFreq(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseFreq(%q) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}

func TestParseFreqErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"fast",
		"1.5",      // decimals need a unit
		"-1GHz",
		"GHz",
		"1THz",
		"99999999999999999999999",
		"99999999999999999999999GHz",
	} {
		if _, err := ParseFreq(input); !errors.Is(err, ErrInvalidFrequencyValue) {
			t.Errorf("ParseFreq(%q) error = %v, want ErrInvalidFrequencyValue", input, err)
		}
	}
}

func TestFormatFreq(t *testing.T) {
	tests := []struct {
		input    uint64
		expected string
	}{
		{2_500_000_000, "2.5GHz"},
		{3_000_000_000, "3GHz"},
		{900_000_000, "900MHz"},
		{800_000, "800kHz"},
		{100, "100Hz"},
		{0, "0Hz"},
	}
	for _, tt := range tests {
		if got := FormatFreq(tt.input); got != tt.expected {
			t.Errorf("FormatFreq(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, hz := range []uint64{800_000_000, 2_500_000_000, 1_000} {
		parsed, err := ParseFreq(FormatFreq(hz))
		if err != nil || parsed != hz {
			t.Errorf("round trip of %d: got %d, %v", hz, parsed, err)
		}
	}
}

// fakeTarget serves canned sysfs files and MSR reads.
type fakeTarget struct {
	files     map[string]string
	registers map[uint64]uint64
}

func (f *fakeTarget) RunCommand(cmd *exec.Cmd, timeout int) (string, string, int, error) {
	if cmd.Args[0] == "rdmsr" {
		var reg uint64
		fmt.Sscanf(cmd.Args[3], "0x%x", &reg)
		if val, ok := f.registers[reg]; ok {
			return fmt.Sprintf("%x\n", val), "", 0, nil
		}
	}
	return "", "no such register", 1, nil
}
func (f *fakeTarget) ReadFile(path string) (string, error) {
	if data, ok := f.files[path]; ok {
		return data, nil
	}
	return "", fmt.Errorf("open %s: no such file or directory", path)
}
func (f *fakeTarget) WriteFile(path string, data string) error {
	f.files[path] = data
	return nil
}
func (f *fakeTarget) CanConnect() bool           { return true }
func (f *fakeTarget) IsSuperUser() bool          { return true }
func (f *fakeTarget) GetVendor() (string, error) { return "GenuineIntel", nil }
func (f *fakeTarget) GetFamily() (string, error) { return "6", nil }
func (f *fakeTarget) GetModel() (string, error)  { return "143", nil }
func (f *fakeTarget) GetName() string            { return "testhost" }
func (f *fakeTarget) Close() error               { return nil }

func TestResolveFreq(t *testing.T) {
	tgt := &fakeTarget{
		files: map[string]string{
			"/sys/devices/system/cpu/cpu0/cpufreq/cpuinfo_min_freq": "800000\n",
			"/sys/devices/system/cpu/cpu0/cpufreq/cpuinfo_max_freq": "3500000\n",
			"/sys/devices/system/cpu/cpu0/cpufreq/base_frequency":   "2100000\n",
		},
		// max efficiency ratio 8 in bits 47:40, base ratio 21 in 15:8
		registers: map[uint64]uint64{0xCE: 8<<40 | 21<<8},
	}
	c := New(tgt)

	tests := []struct {
		value    string
		expected uint64
	}{
		{"min", 800_000_000},
		{"lfm", 800_000_000},
		{"eff", 800_000_000},
		{"base", 2_100_000_000},
		{"hfm", 2_100_000_000},
		{"max", 3_500_000_000},
		{"900MHz", 900_000_000},
	}
	for _, tt := range tests {
		got, err := c.ResolveFreq(tt.value, 0)
		if err != nil {
			t.Errorf("ResolveFreq(%q) failed: %v", tt.value, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ResolveFreq(%q) = %d, want %d", tt.value, got, tt.expected)
		}
	}
}

func TestBaseFreqMSRFallback(t *testing.T) {
	// no base_frequency attribute, only MSR_PLATFORM_INFO
	tgt := &fakeTarget{
		files:     map[string]string{},
		registers: map[uint64]uint64{0xCE: 8<<40 | 21<<8},
	}
	c := New(tgt)

	hz, err := c.BaseFreq(0)
	if err != nil {
		t.Fatalf("BaseFreq failed: %v", err)
	}
	if hz != 2_100_000_000 {
		t.Errorf("BaseFreq = %d, want 2100000000", hz)
	}
}

func TestResolveUncoreFreq(t *testing.T) {
	tgt := &fakeTarget{
		files: map[string]string{
			"/sys/devices/system/cpu/intel_uncore_frequency/package_01_die_00/initial_min_freq_khz": "1200000\n",
			"/sys/devices/system/cpu/intel_uncore_frequency/package_01_die_00/initial_max_freq_khz": "2400000\n",
		},
	}
	c := New(tgt)

	hz, err := c.ResolveUncoreFreq("min", 1, 0)
	if err != nil || hz != 1_200_000_000 {
		t.Errorf("ResolveUncoreFreq(min) = %d, %v, want 1200000000", hz, err)
	}
	hz, err = c.ResolveUncoreFreq("max", 1, 0)
	if err != nil || hz != 2_400_000_000 {
		t.Errorf("ResolveUncoreFreq(max) = %d, %v, want 2400000000", hz, err)
	}
	hz, err = c.ResolveUncoreFreq("1.8GHz", 1, 0)
	if err != nil || hz != 1_800_000_000 {
		t.Errorf("ResolveUncoreFreq(1.8GHz) = %d, %v, want 1800000000", hz, err)
	}
}
