/*
Package msr reads and writes model-specific registers on a target host
through the rdmsr and wrmsr utilities from the msr-tools package. Using
the utilities instead of /dev/cpu/X/msr keeps the access path identical
for local and remote targets.
*/
package msr

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"pepc/internal/target"
)

// Registers used by the property backends.
const (
	// PlatformInfo holds the base and maximum efficiency frequency ratios.
	PlatformInfo = 0xCE
	// PkgCstConfigControl holds the package C-state limit and the C1
	// demotion and undemotion enable bits.
	PkgCstConfigControl = 0xE2
	// EnergyPerfBias holds the energy/performance bias hint.
	EnergyPerfBias = 0x1B0
	// PowerCtl holds the C1E autopromotion and C-state prewake bits.
	PowerCtl = 0x1FC
	// UncoreRatioLimit holds the minimum and maximum uncore frequency
	// ratios.
	UncoreRatioLimit = 0x620
	// PmEnable holds the hardware P-states enable bit.
	PmEnable = 0x770
	// HwpRequest holds the energy/performance preference.
	HwpRequest = 0x774
)

// ErrRegisterLocked indicates that a register is locked by the BIOS and
// cannot be modified until the next reset.
var ErrRegisterLocked = errors.New("register is locked by the BIOS")

// ErrReadFailed indicates that a register could not be read, typically
// because the msr kernel module is not loaded or the register does not
// exist on this CPU model.
var ErrReadFailed = errors.New("failed to read MSR")

// MSR provides register access on one target host.
type MSR struct {
	t target.Target
}

// New returns an MSR accessor for the given target.
func New(t target.Target) *MSR {
	return &MSR{t: t}
}

// Read returns the value of a register on the given CPU.
func (m *MSR) Read(cpu int, reg uint64) (uint64, error) {
	cmd := exec.Command("rdmsr", "-p", strconv.Itoa(cpu), fmt.Sprintf("%#x", reg))
	stdout, stderr, exitCode, err := m.t.RunCommand(cmd, 0)
	if err != nil {
		return 0, fmt.Errorf("%w %#x on CPU%d: %v", ErrReadFailed, reg, cpu, err)
	}
	if exitCode != 0 {
		return 0, fmt.Errorf("%w %#x on CPU%d: %s", ErrReadFailed, reg, cpu, strings.TrimSpace(stderr))
	}
	val, err := strconv.ParseUint(strings.TrimSpace(stdout), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %#x on CPU%d: unexpected rdmsr output %q", ErrReadFailed, reg, cpu, stdout)
	}
	return val, nil
}

// Write sets the value of a register on the given CPU.
func (m *MSR) Write(cpu int, reg uint64, val uint64) error {
	slog.Debug("writing MSR", slog.String("reg", fmt.Sprintf("%#x", reg)),
		slog.Int("cpu", cpu), slog.String("val", fmt.Sprintf("%#x", val)))
	cmd := exec.Command("wrmsr", "-p", strconv.Itoa(cpu), fmt.Sprintf("%#x", reg), fmt.Sprintf("%#x", val))
	_, stderr, exitCode, err := m.t.RunCommand(cmd, 0)
	if err != nil {
		return fmt.Errorf("failed to write MSR %#x on CPU%d: %v", reg, cpu, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("failed to write MSR %#x on CPU%d: %s", reg, cpu, strings.TrimSpace(stderr))
	}
	return nil
}

// ReadBits returns the value of the bit range [high:low] of a register
// on the given CPU.
func (m *MSR) ReadBits(cpu int, reg uint64, high, low uint) (uint64, error) {
	val, err := m.Read(cpu, reg)
	if err != nil {
		return 0, err
	}
	return Bits(val, high, low), nil
}

// WriteBits sets the bit range [high:low] of a register on the given CPU
// to val, preserving all other bits. If lockBit is non-negative and set
// in the current register value, the write is refused with
// ErrRegisterLocked.
func (m *MSR) WriteBits(cpu int, reg uint64, high, low uint, val uint64, lockBit int) error {
	if val > maxValue(high, low) {
		return fmt.Errorf("value %#x does not fit in bits [%d:%d] of MSR %#x", val, high, low, reg)
	}
	current, err := m.Read(cpu, reg)
	if err != nil {
		return err
	}
	if lockBit >= 0 && current&(1<<uint(lockBit)) != 0 {
		return fmt.Errorf("%w: MSR %#x on CPU%d", ErrRegisterLocked, reg, cpu)
	}
	updated := SetBits(current, high, low, val)
	if updated == current {
		return nil
	}
	return m.Write(cpu, reg, updated)
}

// IsLocked reports whether the given lock bit is set in a register on
// the given CPU.
func (m *MSR) IsLocked(cpu int, reg uint64, lockBit int) (bool, error) {
	if lockBit < 0 {
		return false, nil
	}
	val, err := m.Read(cpu, reg)
	if err != nil {
		return false, err
	}
	return val&(1<<uint(lockBit)) != 0, nil
}

// Bits extracts the bit range [high:low] from val.
func Bits(val uint64, high, low uint) uint64 {
	return (val >> low) & maxValue(high, low)
}

// SetBits returns val with the bit range [high:low] replaced by bits.
func SetBits(val uint64, high, low uint, bits uint64) uint64 {
	mask := maxValue(high, low) << low
	return (val &^ mask) | (bits << low)
}

// maxValue returns the largest value that fits in bits [high:low].
func maxValue(high, low uint) uint64 {
	if high-low >= 63 {
		return ^uint64(0)
	}
	return 1<<(high-low+1) - 1
}
