// Package cstates implements the cstates command: inspecting and
// configuring CPU idle states.
package cstates

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pepc/internal/common"
	"pepc/internal/cpuidle"
	"pepc/internal/rangelist"
)

const cmdName = "cstates"

// Cmd is the cstates command group.
var Cmd = &cobra.Command{
	Use:     cmdName,
	Short:   "Inspect and configure CPU idle states",
	GroupID: "primary",
}

var (
	infoSelFlags common.SelectionFlags
	setSelFlags  common.SelectionFlags
	flagYAML     bool
	flagCstates  string
	flagEnable   []string
	flagDisable  []string
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show C-state details for the selected CPUs",
	RunE:  runInfo,
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Enable and disable C-states on the selected CPUs",
	Long: "Enable and disable C-states on the selected CPUs. The --enable and --disable\n" +
		"operations are applied in the order they are given on the command line.",
	RunE: runSet,
}

func init() {
	infoSelFlags.Add(infoCmd.Flags())
	infoCmd.Flags().StringVar(&flagCstates, "cstates", rangelist.All,
		"list of C-states to show, e.g. \"C1,C6\" or \"all\"")
	infoCmd.Flags().BoolVar(&flagYAML, "yaml", false, "print in YAML format")
	setSelFlags.Add(setCmd.Flags())
	setCmd.Flags().StringArrayVar(&flagEnable, "enable", nil,
		"C-states to enable, e.g. \"C1,C6\" or \"all\", may be given multiple times")
	setCmd.Flags().StringArrayVar(&flagDisable, "disable", nil,
		"C-states to disable, e.g. \"C6\" or \"all\", may be given multiple times")
	Cmd.AddCommand(infoCmd)
	Cmd.AddCommand(setCmd)
	Cmd.AddCommand(configCmd)
}

type cpuCstates struct {
	CPU    int             `yaml:"cpu"`
	States []cpuidle.State `yaml:"cstates"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	appContext := common.AppContextFromCmd(cmd)

	cpus, err := appContext.Topology.SelectCPUs(infoSelFlags.Selection(), rangelist.All)
	if err != nil {
		return err
	}
	idle := cpuidle.New(appContext.Target)
	var infos []cpuCstates
	for _, cpu := range cpus {
		states, err := idle.FindStates(cpu, flagCstates)
		if err != nil {
			return err
		}
		infos = append(infos, cpuCstates{CPU: cpu, States: states})
	}
	if flagYAML {
		return common.PrintYAML(infos)
	}

	colors := appContext.Colors
	for _, info := range infos {
		fmt.Printf("%sCPU%d%s:\n", colors.Bold, info.CPU, colors.Reset)
		for _, state := range info.States {
			status := "enabled"
			if state.Disabled {
				status = colors.Yellow + "disabled" + colors.Reset
			}
			fmt.Printf("  %s: %s, latency: %dus, residency: %dus, usage: %d, time: %dus\n",
				state.Name, status, state.LatencyUs, state.ResidencyUs, state.Usage, state.TimeUs)
			fmt.Printf("    %s\n", state.Desc)
		}
	}
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	appContext := common.AppContextFromCmd(cmd)

	if len(flagEnable) == 0 && len(flagDisable) == 0 {
		return fmt.Errorf("nothing to do, use --enable and/or --disable")
	}
	cpus, err := appContext.Topology.SelectCPUs(setSelFlags.Selection(), rangelist.All)
	if err != nil {
		return err
	}
	idle := cpuidle.New(appContext.Target)

	// apply in the literal order the flags were given
	enableIdx, disableIdx := 0, 0
	for _, op := range common.FlagOrder(os.Args, "enable", "disable") {
		var list string
		disable := op == "disable"
		if disable {
			list = flagDisable[disableIdx]
			disableIdx++
		} else {
			list = flagEnable[enableIdx]
			enableIdx++
		}
		for _, cpu := range cpus {
			states, err := idle.FindStates(cpu, list)
			if err != nil {
				return err
			}
			for _, state := range states {
				if err := idle.SetDisabled(cpu, state.Index, disable); err != nil {
					return err
				}
			}
		}
		verb := "Enabled"
		if disable {
			verb = "Disabled"
		}
		fmt.Printf("%s %s on CPUs %s\n", verb, list, rangelist.Rangify(cpus))
	}
	return nil
}
