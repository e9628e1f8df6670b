/*
Package cpuonline brings logical CPUs online and takes them offline
through the Linux CPU hotplug sysfs interface.
*/
package cpuonline

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"strings"

	"pepc/internal/target"
)

const onlinePath = "/sys/devices/system/cpu/cpu%d/online"

// Onl performs CPU hotplug operations on one target host.
type Onl struct {
	t target.Target
}

// New returns a hotplug accessor for the given target.
func New(t target.Target) *Onl {
	return &Onl{t: t}
}

// IsOnline reports whether a CPU is online. CPU0 has no hotplug control
// file on most systems and is reported online.
func (o *Onl) IsOnline(cpu int) (bool, error) {
	data, err := o.t.ReadFile(fmt.Sprintf(onlinePath, cpu))
	if err != nil {
		if cpu == 0 {
			return true, nil
		}
		return false, fmt.Errorf("failed to get online state of CPU%d: %w", cpu, err)
	}
	return strings.TrimSpace(data) == "1", nil
}

// Online brings a CPU online. Bringing an online CPU online is a no-op.
func (o *Onl) Online(cpu int) error {
	return o.setState(cpu, true)
}

// Offline takes a CPU offline. Taking an offline CPU offline is a no-op.
// CPU0 cannot be taken offline.
func (o *Onl) Offline(cpu int) error {
	if cpu == 0 {
		return fmt.Errorf("CPU0 cannot be taken offline")
	}
	return o.setState(cpu, false)
}

func (o *Onl) setState(cpu int, online bool) error {
	current, err := o.IsOnline(cpu)
	if err != nil {
		return err
	}
	if current == online {
		slog.Debug("CPU already in requested state", slog.Int("cpu", cpu), slog.Bool("online", online))
		return nil
	}
	value := "0"
	verb := "offline"
	if online {
		value = "1"
		verb = "online"
	}
	slog.Debug("changing CPU state", slog.Int("cpu", cpu), slog.String("state", verb))
	if err := o.t.WriteFile(fmt.Sprintf(onlinePath, cpu), value); err != nil {
		return fmt.Errorf("failed to %s CPU%d: %w", verb, cpu, err)
	}
	return nil
}
