/*
Package cpufreq parses and formats CPU frequency values and resolves the
named frequency specifiers (min, eff, base, max) against the hardware
limits of a target host.
*/
package cpufreq

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"pepc/internal/msr"
	"pepc/internal/target"
)

// ErrInvalidFrequencyValue indicates that a frequency value could not be
// parsed or does not name a known specifier.
var ErrInvalidFrequencyValue = errors.New("invalid frequency value")

const sysfsCPUFreq = "/sys/devices/system/cpu/cpu%d/cpufreq/%s"

// uncoreDir is the intel_uncore_frequency sysfs directory of one
// package/die pair.
const uncoreDir = "/sys/devices/system/cpu/intel_uncore_frequency/package_%02d_die_%02d/%s"

// busClockHz is the bus clock used to convert MSR frequency ratios.
// 100 MHz on every platform with HWP.
const busClockHz = 100_000_000

// ParseFreq parses a frequency value into Hz. A bare integer is taken to
// be in kHz, matching the cpufreq sysfs convention. A Hz, kHz, MHz, or
// GHz suffix (case-insensitive) selects the unit explicitly and allows a
// decimal number, e.g. "2.5GHz".
func ParseFreq(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidFrequencyValue)
	}

	multiplier := uint64(0)
	number := value
	lower := strings.ToLower(value)
	switch {
	case strings.HasSuffix(lower, "ghz"):
		multiplier, number = 1_000_000_000, value[:len(value)-3]
	case strings.HasSuffix(lower, "mhz"):
		multiplier, number = 1_000_000, value[:len(value)-3]
	case strings.HasSuffix(lower, "khz"):
		multiplier, number = 1_000, value[:len(value)-3]
	case strings.HasSuffix(lower, "hz"):
		multiplier, number = 1, value[:len(value)-2]
	}
	number = strings.TrimSpace(number)

	if multiplier == 0 {
		// no unit, bare kHz integer
		khz, err := strconv.ParseUint(number, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFrequencyValue, value)
		}
		if khz > math.MaxUint64/1000 {
			return 0, fmt.Errorf("%w: %q is too large", ErrInvalidFrequencyValue, value)
		}
		return khz * 1000, nil
	}

	num, err := strconv.ParseFloat(number, 64)
	if err != nil || num < 0 || math.IsInf(num, 0) || math.IsNaN(num) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrequencyValue, value)
	}
	hz := num * float64(multiplier)
	if hz > math.MaxUint64 {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidFrequencyValue, value)
	}
	return uint64(math.Round(hz)), nil
}

// FormatFreq formats a frequency in Hz with the largest unit that keeps
// the number exact, e.g. 2500000000 -> "2.5GHz".
func FormatFreq(hz uint64) string {
	switch {
	case hz >= 1_000_000_000 && hz%1_000_000 == 0:
		return trimZeros(float64(hz)/1e9) + "GHz"
	case hz >= 1_000_000 && hz%1000 == 0:
		return trimZeros(float64(hz)/1e6) + "MHz"
	case hz >= 1000 && hz%1000 == 0:
		return trimZeros(float64(hz)/1e3) + "kHz"
	default:
		return strconv.FormatUint(hz, 10) + "Hz"
	}
}

func trimZeros(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CPUFreq resolves frequency specifiers and reads frequency limits on one
// target host.
type CPUFreq struct {
	t target.Target
	m *msr.MSR
}

// New returns a CPUFreq accessor for the given target.
func New(t target.Target) *CPUFreq {
	return &CPUFreq{t: t, m: msr.New(t)}
}

// ReadAttr reads a cpufreq sysfs attribute of a CPU and returns its value
// in Hz (the attribute itself is in kHz).
func (c *CPUFreq) ReadAttr(cpu int, attr string) (uint64, error) {
	data, err := c.t.ReadFile(fmt.Sprintf(sysfsCPUFreq, cpu, attr))
	if err != nil {
		return 0, err
	}
	khz, err := strconv.ParseUint(strings.TrimSpace(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected value in cpufreq attribute %s of CPU%d: %q", attr, cpu, data)
	}
	return khz * 1000, nil
}

// MinFreq returns the minimum supported frequency of a CPU.
func (c *CPUFreq) MinFreq(cpu int) (uint64, error) {
	return c.ReadAttr(cpu, "cpuinfo_min_freq")
}

// MaxFreq returns the maximum supported frequency of a CPU.
func (c *CPUFreq) MaxFreq(cpu int) (uint64, error) {
	return c.ReadAttr(cpu, "cpuinfo_max_freq")
}

// BaseFreq returns the base (guaranteed) frequency of a CPU. The
// base_frequency attribute exists only with the intel_pstate driver, so
// MSR_PLATFORM_INFO is the fallback.
func (c *CPUFreq) BaseFreq(cpu int) (uint64, error) {
	hz, err := c.ReadAttr(cpu, "base_frequency")
	if err == nil {
		return hz, nil
	}
	ratio, err := c.m.ReadBits(cpu, msr.PlatformInfo, 15, 8)
	if err != nil {
		return 0, err
	}
	return ratio * busClockHz, nil
}

// EfficiencyFreq returns the maximum efficiency frequency of a CPU, from
// the MSR_PLATFORM_INFO maximum efficiency ratio.
func (c *CPUFreq) EfficiencyFreq(cpu int) (uint64, error) {
	ratio, err := c.m.ReadBits(cpu, msr.PlatformInfo, 47, 40)
	if err != nil {
		return 0, err
	}
	return ratio * busClockHz, nil
}

// ResolveFreq turns a user-supplied frequency value into Hz. Named
// specifiers resolve against the given CPU: "min"/"lfm" is the lowest
// supported frequency, "eff" the maximum efficiency frequency,
// "base"/"hfm" the base frequency, and "max" the highest supported
// frequency. Anything else is parsed with ParseFreq.
func (c *CPUFreq) ResolveFreq(value string, cpu int) (uint64, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "min", "lfm":
		return c.MinFreq(cpu)
	case "eff":
		return c.EfficiencyFreq(cpu)
	case "base", "hfm":
		return c.BaseFreq(cpu)
	case "max":
		return c.MaxFreq(cpu)
	default:
		return ParseFreq(value)
	}
}

// ReadUncoreAttr reads an intel_uncore_frequency attribute of a
// package/die pair and returns its value in Hz.
func (c *CPUFreq) ReadUncoreAttr(pkg, die int, attr string) (uint64, error) {
	data, err := c.t.ReadFile(fmt.Sprintf(uncoreDir, pkg, die, attr))
	if err != nil {
		return 0, err
	}
	khz, err := strconv.ParseUint(strings.TrimSpace(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected value in uncore attribute %s of package %d die %d: %q",
			attr, pkg, die, data)
	}
	return khz * 1000, nil
}

// ResolveUncoreFreq turns a user-supplied uncore frequency value into Hz.
// "min" and "max" resolve to the initial uncore limits of the given
// package/die pair.
func (c *CPUFreq) ResolveUncoreFreq(value string, pkg, die int) (uint64, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "min":
		return c.ReadUncoreAttr(pkg, die, "initial_min_freq_khz")
	case "max":
		return c.ReadUncoreAttr(pkg, die, "initial_max_freq_khz")
	default:
		return ParseFreq(value)
	}
}
