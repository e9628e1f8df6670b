// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package props

import (
	"fmt"
	"strconv"
	"strings"

	"pepc/internal/cpufreq"
)

const (
	noTurboPath = "/sys/devices/system/cpu/intel_pstate/no_turbo"
	boostPath   = "/sys/devices/system/cpu/cpufreq/boost"
)

// Value is the result of reading a property from one unit. Locked is set
// when the backing register is locked by the BIOS: the value is valid
// but cannot be changed.
type Value struct {
	Value  string
	Locked bool
}

// Get reads a property from one unit.
func (m *Mgr) Get(desc *Descriptor, unit Unit) (Value, error) {
	if err := m.checkSupported(desc, unit); err != nil {
		return Value{}, err
	}

	switch acc := desc.Access.(type) {
	case MSRBitfield:
		bits, err := m.msr.ReadBits(unit.CPU, acc.Addr, acc.High, acc.Low)
		if err != nil {
			return Value{}, err
		}
		locked, err := m.msr.IsLocked(unit.CPU, acc.Addr, acc.LockBit)
		if err != nil {
			return Value{}, err
		}
		str, err := m.formatMSRValue(desc, bits)
		if err != nil {
			return Value{}, err
		}
		return Value{Value: str, Locked: locked}, nil

	case KernelAttr:
		path := fmt.Sprintf(acc.PathTemplate, unit.ID)
		data, err := m.t.ReadFile(path)
		if err != nil {
			return Value{}, fmt.Errorf("failed to get %s for %s: %w", desc.Name, unit, err)
		}
		data = strings.TrimSpace(data)
		if desc.Kind == KindFreq {
			khz, err := strconv.ParseUint(data, 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("unexpected value in %s: %q", path, data)
			}
			return Value{Value: cpufreq.FormatFreq(khz * 1000)}, nil
		}
		return Value{Value: data}, nil

	case UncoreAttr:
		hz, err := m.freq.ReadUncoreAttr(unit.ID, unit.Die, acc.Attr)
		if err != nil {
			return Value{}, fmt.Errorf("failed to get %s for %s: %w", desc.Name, unit, err)
		}
		return Value{Value: cpufreq.FormatFreq(hz)}, nil

	default:
		on, err := m.getTurbo()
		if err != nil {
			return Value{}, err
		}
		return Value{Value: onOff(on)}, nil
	}
}

// Set writes a property on one unit.
func (m *Mgr) Set(desc *Descriptor, unit Unit, value string) error {
	if err := m.checkSupported(desc, unit); err != nil {
		return err
	}

	switch acc := desc.Access.(type) {
	case MSRBitfield:
		bits, err := m.parseMSRValue(desc, value)
		if err != nil {
			return err
		}
		return m.msr.WriteBits(unit.CPU, acc.Addr, acc.High, acc.Low, bits, acc.LockBit)

	case KernelAttr:
		return m.setKernelAttr(desc, acc, unit, value)

	case UncoreAttr:
		hz, err := m.freq.ResolveUncoreFreq(value, unit.ID, unit.Die)
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/sys/devices/system/cpu/intel_uncore_frequency/package_%02d_die_%02d/%s",
			unit.ID, unit.Die, acc.Attr)
		if err := m.t.WriteFile(path, strconv.FormatUint(hz/1000, 10)); err != nil {
			return fmt.Errorf("failed to set %s for %s: %w", desc.Name, unit, err)
		}
		return nil

	default:
		on, err := parseOnOff(desc.Name, value)
		if err != nil {
			return err
		}
		return m.setTurbo(on)
	}
}

func (m *Mgr) setKernelAttr(desc *Descriptor, acc KernelAttr, unit Unit, value string) error {
	switch desc.Kind {
	case KindFreq:
		hz, err := m.freq.ResolveFreq(value, unit.CPU)
		if err != nil {
			return err
		}
		value = strconv.FormatUint(hz/1000, 10)
	case KindGovernor:
		if err := m.checkGovernor(unit.CPU, value); err != nil {
			return err
		}
	}
	path := fmt.Sprintf(acc.PathTemplate, unit.ID)
	if err := m.t.WriteFile(path, value); err != nil {
		return fmt.Errorf("failed to set %s for %s: %w", desc.Name, unit, err)
	}
	return nil
}

func (m *Mgr) checkGovernor(cpu int, governor string) error {
	path := fmt.Sprintf(cpufreqAttr+"scaling_available_governors", cpu)
	data, err := m.t.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to get available governors of CPU%d: %w", cpu, err)
	}
	available := strings.Fields(data)
	for _, name := range available {
		if name == governor {
			return nil
		}
	}
	return fmt.Errorf("bad governor %q, available governors are: %s",
		governor, strings.Join(available, ", "))
}

func (m *Mgr) formatMSRValue(desc *Descriptor, bits uint64) (string, error) {
	switch desc.Kind {
	case KindOnOff:
		return onOff(bits != 0), nil
	case KindPkgCstateLimit:
		model, err := m.t.GetModel()
		if err != nil {
			return "", err
		}
		return pkgCstateLimitName(model, bits), nil
	case KindEPB:
		return formatPolicyOrUint(bits, epbPolicies), nil
	case KindEPP:
		return formatPolicyOrUint(bits, eppPolicies), nil
	default:
		return strconv.FormatUint(bits, 10), nil
	}
}

func (m *Mgr) parseMSRValue(desc *Descriptor, value string) (uint64, error) {
	switch desc.Kind {
	case KindOnOff:
		on, err := parseOnOff(desc.Name, value)
		if err != nil {
			return 0, err
		}
		if on {
			return 1, nil
		}
		return 0, nil
	case KindPkgCstateLimit:
		model, err := m.t.GetModel()
		if err != nil {
			return 0, err
		}
		return pkgCstateLimitCode(model, value)
	case KindEPB:
		return parsePolicyOrUint(value, epbPolicies, 15)
	case KindEPP:
		return parsePolicyOrUint(value, eppPolicies, 255)
	default:
		return 0, fmt.Errorf("property %s cannot be set", desc.Name)
	}
}

// getTurbo reads the turbo state from whichever control file the cpufreq
// driver provides: intel_pstate exposes an inverted no_turbo knob,
// acpi-cpufreq a boost knob.
func (m *Mgr) getTurbo() (bool, error) {
	if data, err := m.t.ReadFile(noTurboPath); err == nil {
		return strings.TrimSpace(data) == "0", nil
	}
	if data, err := m.t.ReadFile(boostPath); err == nil {
		return strings.TrimSpace(data) == "1", nil
	}
	return false, fmt.Errorf("turbo is %w: no turbo control file found", ErrUnsupportedHardware)
}

func (m *Mgr) setTurbo(on bool) error {
	if _, err := m.t.ReadFile(noTurboPath); err == nil {
		value := "1"
		if on {
			value = "0"
		}
		return m.t.WriteFile(noTurboPath, value)
	}
	if _, err := m.t.ReadFile(boostPath); err == nil {
		value := "0"
		if on {
			value = "1"
		}
		return m.t.WriteFile(boostPath, value)
	}
	return fmt.Errorf("turbo is %w: no turbo control file found", ErrUnsupportedHardware)
}

func parseOnOff(name string, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("bad value %q for %s, expected \"on\" or \"off\"", value, name)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
