// Package cpuhotplug implements the cpu-hotplug command: listing,
// onlining, and offlining logical CPUs.
package cpuhotplug

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"pepc/internal/common"
	"pepc/internal/cpuonline"
	"pepc/internal/rangelist"
)

const cmdName = "cpu-hotplug"

// Cmd is the cpu-hotplug command group.
var Cmd = &cobra.Command{
	Use:     cmdName,
	Short:   "Bring CPUs online and offline",
	GroupID: "primary",
}

var (
	flagYAML       bool
	flagOnlineCPUs string
	flagSiblings   bool
	selFlags       common.SelectionFlags
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "List online and offline CPUs",
	RunE:  runInfo,
}

var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "Bring CPUs online",
	RunE:  runOnline,
}

var offlineCmd = &cobra.Command{
	Use:   "offline",
	Short: "Take CPUs offline",
	RunE:  runOffline,
}

func init() {
	infoCmd.Flags().BoolVar(&flagYAML, "yaml", false, "print in YAML format")
	onlineCmd.Flags().StringVar(&flagOnlineCPUs, "cpus", "", "list of CPUs to online, e.g. \"1-4,7\" or \"all\"")
	cobra.CheckErr(onlineCmd.MarkFlagRequired("cpus"))
	selFlags.Add(offlineCmd.Flags())
	offlineCmd.Flags().BoolVar(&flagSiblings, "siblings", false,
		"offline all but the first sibling of every core in the selection (disables hyper-threading)")
	Cmd.AddCommand(infoCmd)
	Cmd.AddCommand(onlineCmd)
	Cmd.AddCommand(offlineCmd)
}

type hotplugInfo struct {
	Online  string `yaml:"online"`
	Offline string `yaml:"offline"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	appContext := common.AppContextFromCmd(cmd)
	topology := appContext.Topology

	info := hotplugInfo{
		Online:  rangelist.Rangify(topology.OnlineCPUs()),
		Offline: rangelist.Rangify(topology.OfflineCPUs()),
	}
	if flagYAML {
		return common.PrintYAML(info)
	}
	colors := appContext.Colors
	fmt.Printf("%sOnline CPUs%s: %s\n", colors.Bold, colors.Reset, info.Online)
	offline := info.Offline
	if offline == "" {
		offline = "none"
	}
	fmt.Printf("%sOffline CPUs%s: %s\n", colors.Bold, colors.Reset, offline)
	return nil
}

func runOnline(cmd *cobra.Command, args []string) error {
	appContext := common.AppContextFromCmd(cmd)
	topology := appContext.Topology

	cpus, err := rangelist.Expand(flagOnlineCPUs, topology.AllCPUs())
	if err != nil {
		return fmt.Errorf("bad CPU list %q: %w", flagOnlineCPUs, err)
	}
	onl := cpuonline.New(appContext.Target)
	var onlined []int
	for _, cpu := range cpus {
		online, err := onl.IsOnline(cpu)
		if err != nil {
			return err
		}
		if online {
			continue
		}
		if err := onl.Online(cpu); err != nil {
			return err
		}
		onlined = append(onlined, cpu)
	}
	if len(onlined) == 0 {
		fmt.Println("No CPUs to online")
		return nil
	}
	fmt.Printf("Onlined CPUs %s\n", rangelist.Rangify(onlined))
	return nil
}

func runOffline(cmd *cobra.Command, args []string) error {
	appContext := common.AppContextFromCmd(cmd)
	topology := appContext.Topology

	sel := selFlags.Selection()
	if sel.IsEmpty() {
		return fmt.Errorf("no CPUs selected, use --cpus, --cores, or --packages")
	}
	cpus, err := topology.SelectCPUs(sel, "")
	if err != nil {
		return err
	}
	if flagSiblings {
		cpus = topology.SiblingsToOffline(cpus)
		if len(cpus) == 0 {
			fmt.Println("No sibling CPUs to offline")
			return nil
		}
	}

	onl := cpuonline.New(appContext.Target)
	var offlined []int
	for _, cpu := range cpus {
		if cpu == 0 {
			slog.Warn("CPU0 cannot be taken offline, skipping")
			continue
		}
		if err := onl.Offline(cpu); err != nil {
			return err
		}
		offlined = append(offlined, cpu)
	}
	if len(offlined) == 0 {
		fmt.Println("No CPUs to offline")
		return nil
	}
	fmt.Printf("Offlined CPUs %s\n", rangelist.Rangify(offlined))
	return nil
}
