// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package common

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pepc/internal/cpuinfo"
	"pepc/internal/props"
	"pepc/internal/rangelist"
)

// ProbeValue is the flag value meaning "print the current value instead
// of setting one". It is the NoOptDefVal of the property flags, so a
// bare --epb probes while --epb=6 sets.
const ProbeValue = "current"

// PropValue is one property reading in YAML output.
type PropValue struct {
	Property string `yaml:"property"`
	Value    string `yaml:"value"`
	Unit     string `yaml:"unit"`
	Locked   bool   `yaml:"locked,omitempty"`
}

// CollectProperty reads a property over a selection and returns one
// PropValue per resolved unit. When lenient is true, hardware that does
// not implement the property is reported as "not supported" instead of
// failing, which is what the info commands want.
func (a *AppContext) CollectProperty(name string, sel cpuinfo.Selection, lenient bool) ([]PropValue, error) {
	desc, err := props.Lookup(name)
	if err != nil {
		return nil, err
	}
	mgr := props.New(a.Target, a.Topology)
	units, err := mgr.Resolve(desc, sel)
	if err != nil {
		return nil, err
	}

	var values []PropValue
	for _, unit := range units {
		val, err := mgr.Get(desc, unit)
		if err != nil {
			if lenient {
				slog.Debug("property not readable", slog.String("property", name),
					slog.String("unit", unit.String()), slog.String("error", err.Error()))
				values = append(values, PropValue{Property: name, Value: "not supported", Unit: unit.String()})
				continue
			}
			return nil, err
		}
		values = append(values, PropValue{Property: name, Value: val.Value, Unit: unit.String(), Locked: val.Locked})
	}
	return values, nil
}

// GetProperty reads a property over a selection and prints one line per
// distinct value, naming the units that share it.
func (a *AppContext) GetProperty(name string, sel cpuinfo.Selection, yamlOut bool, lenient bool) error {
	values, err := a.CollectProperty(name, sel, lenient)
	if err != nil {
		return err
	}
	if yamlOut {
		return PrintYAML(values)
	}
	a.PrintPropValues(values)
	return nil
}

// PrintPropValues prints property readings, grouping units that share a
// value.
func (a *AppContext) PrintPropValues(values []PropValue) {
	printGrouped(a.Colors, values)
}

// AddPropertyFlags registers one probe-style flag per property name on a
// command and returns the flag value storage. A bare flag probes the
// current value, a flag with a value sets it.
func AddPropertyFlags(cmd *cobra.Command, names []string) map[string]*string {
	values := make(map[string]*string, len(names))
	for _, name := range names {
		value := new(string)
		values[name] = value
		usage := fmt.Sprintf("get or set %s, bare flag prints the current value", name)
		cmd.Flags().StringVar(value, name, "", usage)
		cmd.Flags().Lookup(name).NoOptDefVal = ProbeValue
	}
	return values
}

// RunPropertyFlags probes or sets the given property flags in the
// literal order they appear on the command line.
func (a *AppContext) RunPropertyFlags(cmd *cobra.Command, sel cpuinfo.Selection, values map[string]*string, names []string) error {
	order := FlagOrder(os.Args, names...)
	if len(order) == 0 {
		return fmt.Errorf("nothing to do, give at least one property flag")
	}
	done := map[string]bool{}
	for _, name := range order {
		if done[name] || !cmd.Flags().Changed(name) {
			continue
		}
		done[name] = true
		value := *values[name]
		if value == ProbeValue {
			if err := a.GetProperty(name, sel, false, false); err != nil {
				return err
			}
			continue
		}
		if err := a.SetProperty(name, value, sel); err != nil {
			return err
		}
	}
	return nil
}

// SetProperty writes a property over a selection and prints a
// confirmation.
func (a *AppContext) SetProperty(name string, value string, sel cpuinfo.Selection) error {
	desc, err := props.Lookup(name)
	if err != nil {
		return err
	}
	mgr := props.New(a.Target, a.Topology)
	units, err := mgr.Resolve(desc, sel)
	if err != nil {
		return err
	}
	for _, unit := range units {
		if err := mgr.Set(desc, unit, value); err != nil {
			return err
		}
	}
	fmt.Printf("%s: set to %s for %s\n", name, value, unitNames(units))
	return nil
}

// printGrouped prints one line per distinct value, e.g.
// "c1-demotion: on for CPUs 0-3,6".
func printGrouped(colors Colors, values []PropValue) {
	type group struct {
		value  string
		locked bool
		units  []string
	}
	var groups []*group
	for _, val := range values {
		found := false
		for _, g := range groups {
			if g.value == val.Value && g.locked == val.Locked {
				g.units = append(g.units, val.Unit)
				found = true
				break
			}
		}
		if !found {
			groups = append(groups, &group{value: val.Value, locked: val.Locked, units: []string{val.Unit}})
		}
	}
	for _, g := range groups {
		locked := ""
		if g.locked {
			locked = colors.Yellow + " (locked)" + colors.Reset
		}
		name := values[0].Property
		if len(g.units) == 1 && g.units[0] == "all CPUs" {
			fmt.Printf("%s%s%s: %s%s\n", colors.Bold, name, colors.Reset, g.value, locked)
			continue
		}
		fmt.Printf("%s%s%s: %s%s for %s\n",
			colors.Bold, name, colors.Reset, g.value, locked, joinUnits(g.units))
	}
}

// joinUnits compacts unit names, turning "CPU0, CPU1, CPU2" into
// "CPUs 0-2" when every unit is a plain CPU.
func joinUnits(units []string) string {
	var cpus []int
	for _, unit := range units {
		var cpu int
		if _, err := fmt.Sscanf(unit, "CPU%d", &cpu); err != nil || fmt.Sprintf("CPU%d", cpu) != unit {
			return strings.Join(units, ", ")
		}
		cpus = append(cpus, cpu)
	}
	if len(cpus) == 1 {
		return units[0]
	}
	return "CPUs " + rangelist.Rangify(cpus)
}

func unitNames(units []props.Unit) string {
	names := make([]string, len(units))
	for i, unit := range units {
		names[i] = unit.String()
	}
	return joinUnits(names)
}
