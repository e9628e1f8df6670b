// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cstates

import (
	"github.com/spf13/cobra"

	"pepc/internal/common"
)

// configProps are the MSR-backed C-state knobs, each mapped to a flag of
// the same name.
var configProps = []string{
	"pkg-cstate-limit",
	"c1-demotion",
	"c1-undemotion",
	"c1e-autopromote",
	"cstate-prewake",
}

var (
	configSelFlags   common.SelectionFlags
	configFlagValues map[string]*string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get and set the MSR-backed C-state knobs",
	Long: "Get and set the MSR-backed C-state knobs. A bare flag prints the current\n" +
		"value, a flag with a value sets it, e.g. --c1-demotion prints and\n" +
		"--c1-demotion=on sets. Multiple knobs are applied in the order given.",
	RunE: runConfig,
}

func init() {
	configSelFlags.Add(configCmd.Flags())
	configFlagValues = common.AddPropertyFlags(configCmd, configProps)
}

func runConfig(cmd *cobra.Command, args []string) error {
	appContext := common.AppContextFromCmd(cmd)
	return appContext.RunPropertyFlags(cmd, configSelFlags.Selection(), configFlagValues, configProps)
}
