// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package pstates

import (
	"github.com/spf13/cobra"

	"pepc/internal/common"
)

// configProps are the P-state knobs, each mapped to a flag of the same
// name.
var configProps = []string{
	"governor",
	"turbo",
	"epb",
	"epp",
}

var (
	configSelFlags   common.SelectionFlags
	configFlagValues map[string]*string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get and set the P-state knobs",
	Long: "Get and set the scaling governor, turbo, EPB, and EPP. A bare flag\n" +
		"prints the current value, a flag with a value sets it, e.g. --epb prints\n" +
		"and --epb=6 sets. Multiple knobs are applied in the order given.",
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
