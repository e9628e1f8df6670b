// Package pstates implements the pstates command: inspecting and
// configuring CPU and uncore frequency, the scaling governor, turbo, and
// the energy/performance hints.
package pstates

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"github.com/spf13/cobra"

	"pepc/internal/common"
)

const cmdName = "pstates"

// infoProps are the properties 'pstates info' reports, in display order.
var infoProps = []string{
	"min-freq",
	"max-freq",
	"governor",
	"turbo",
	"epb",
	"epp",
}

// uncoreProps are the properties 'pstates info --uncore' reports.
var uncoreProps = []string{
	"min-uncore-freq",
	"max-uncore-freq",
}

// Cmd is the pstates command group.
var Cmd = &cobra.Command{
	Use:     cmdName,
	Short:   "Inspect and configure CPU and uncore P-states",
	GroupID: "primary",
}

var (
	infoSelFlags common.SelectionFlags
	flagYAML     bool
	flagUncore   bool
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show P-state details for the selected CPUs",
	RunE:  runInfo,
}

func init() {
	infoSelFlags.Add(infoCmd.Flags())
	infoCmd.Flags().BoolVar(&flagUncore, "uncore", false, "show per-package uncore frequency info instead")
	infoCmd.Flags().BoolVar(&flagYAML, "yaml", false, "print in YAML format")
	Cmd.AddCommand(infoCmd)
	Cmd.AddCommand(setCmd)
	Cmd.AddCommand(configCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	appContext := common.AppContextFromCmd(cmd)
	sel := infoSelFlags.Selection()

	names := infoProps
	if flagUncore {
		names = uncoreProps
	}
	var all []common.PropValue
	for _, name := range names {
		values, err := appContext.CollectProperty(name, sel, true)
		if err != nil {
			return err
		}
		if flagYAML {
			all = append(all, values...)
			continue
		}
		appContext.PrintPropValues(values)
	}
	if flagYAML {
		return common.PrintYAML(all)
	}
	return nil
}
