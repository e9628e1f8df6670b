/*
Package cpuidle enumerates and toggles the requestable idle states (C1,
C1E, C6, ...) of logical CPUs through the Linux cpuidle sysfs interface.
*/
package cpuidle

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pepc/internal/rangelist"
	"pepc/internal/target"
)

const statePath = "/sys/devices/system/cpu/cpu%d/cpuidle/state%d/%s"

// ErrNoCStates indicates that the kernel exposes no cpuidle states,
// typically because the cpuidle driver is disabled.
var ErrNoCStates = errors.New("no C-states supported")

// State is one requestable idle state of one CPU.
type State struct {
	Index       int    `yaml:"index"`
	Name        string `yaml:"name"`
	Desc        string `yaml:"description"`
	Disabled    bool   `yaml:"disabled"`
	LatencyUs   uint64 `yaml:"latency_us"`
	ResidencyUs uint64 `yaml:"residency_us"`
	Usage       uint64 `yaml:"usage"`
	TimeUs      uint64 `yaml:"time_us"`
}

// CPUIdle reads and modifies idle states on one target host.
type CPUIdle struct {
	t target.Target
}

// New returns a cpuidle accessor for the given target.
func New(t target.Target) *CPUIdle {
	return &CPUIdle{t: t}
}

// States returns the idle states of a CPU in index order.
func (c *CPUIdle) States(cpu int) ([]State, error) {
	var states []State
	for index := 0; ; index++ {
		name, err := c.readAttr(cpu, index, "name")
		if err != nil {
			if index == 0 {
				return nil, fmt.Errorf("%w on CPU%d", ErrNoCStates, cpu)
			}
			break
		}
		state := State{Index: index, Name: name}
		if state.Desc, err = c.readAttr(cpu, index, "desc"); err != nil {
			return nil, err
		}
		disable, err := c.readAttr(cpu, index, "disable")
		if err != nil {
			return nil, err
		}
		state.Disabled = disable == "1"
		if state.LatencyUs, err = c.readUintAttr(cpu, index, "latency"); err != nil {
			return nil, err
		}
		if state.ResidencyUs, err = c.readUintAttr(cpu, index, "residency"); err != nil {
			return nil, err
		}
		if state.Usage, err = c.readUintAttr(cpu, index, "usage"); err != nil {
			return nil, err
		}
		if state.TimeUs, err = c.readUintAttr(cpu, index, "time"); err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}

// FindStates returns the idle states of a CPU matching list: "all", or a
// comma-separated mix of state names (case-insensitive, e.g. "C1,C6")
// and state indices.
func (c *CPUIdle) FindStates(cpu int, list string) ([]State, error) {
	states, err := c.States(cpu)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(strings.TrimSpace(list), rangelist.All) {
		return states, nil
	}

	var matched []State
	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, fmt.Errorf("bad C-state list %q: %w", list, rangelist.ErrEmpty)
		}
		found := false
		for _, state := range states {
			if strings.EqualFold(state.Name, token) || strconv.Itoa(state.Index) == token {
				matched = append(matched, state)
				found = true
				break
			}
		}
		if !found {
			names := make([]string, len(states))
			for i, state := range states {
				names[i] = state.Name
			}
			return nil, fmt.Errorf("C-state %q not found on CPU%d, available C-states are: %s",
				token, cpu, strings.Join(names, ", "))
		}
	}
	return matched, nil
}

// SetDisabled enables or disables one idle state of one CPU.
func (c *CPUIdle) SetDisabled(cpu int, index int, disabled bool) error {
	value := "0"
	if disabled {
		value = "1"
	}
	path := fmt.Sprintf(statePath, cpu, index, "disable")
	if err := c.t.WriteFile(path, value); err != nil {
		return fmt.Errorf("failed to set C-state %d of CPU%d: %w", index, cpu, err)
	}
	return nil
}

func (c *CPUIdle) readAttr(cpu, index int, attr string) (string, error) {
	data, err := c.t.ReadFile(fmt.Sprintf(statePath, cpu, index, attr))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(data), nil
}

func (c *CPUIdle) readUintAttr(cpu, index int, attr string) (uint64, error) {
	data, err := c.readAttr(cpu, index, attr)
	if err != nil {
		return 0, err
	}
	val, err := strconv.ParseUint(data, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected value in cpuidle attribute %s of CPU%d state %d: %q",
			attr, cpu, index, data)
	}
	return val, nil
}
