// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package pstates

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pepc/internal/common"
)

// setProps are the frequency limit properties, each mapped to a flag of
// the same name. The uncore limits are package scope and accept only
// --packages.
var setProps = []string{
	"min-freq",
	"max-freq",
	"min-uncore-freq",
	"max-uncore-freq",
}

var (
	setSelFlags   common.SelectionFlags
	setFlagValues = map[string]*string{}
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Set CPU and uncore frequency limits",
	Long: "Set CPU and uncore frequency limits. Values accept Hz/kHz/MHz/GHz\n" +
		"suffixes (a bare integer is kHz) and the named specifiers \"min\" (lfm),\n" +
		"\"eff\", \"base\" (hfm), and \"max\". Multiple limits are applied in the\n" +
		"order given on the command line.",
	RunE: runPstatesSet,
}

func init() {
	setSelFlags.Add(setCmd.Flags())
	for _, name := range setProps {
		value := new(string)
		setFlagValues[name] = value
		setCmd.Flags().StringVar(value, name, "", "frequency value for "+name)
	}
}

func runPstatesSet(cmd *cobra.Command, args []string) error {
	appContext := common.AppContextFromCmd(cmd)
	sel := setSelFlags.Selection()

	order := common.FlagOrder(os.Args, setProps...)
	if len(order) == 0 {
		return fmt.Errorf("nothing to do, give at least one frequency flag")
	}
	done := map[string]bool{}
	for _, name := range order {
		if done[name] || !cmd.Flags().Changed(name) {
			continue
		}
		done[name] = true
		if err := appContext.SetProperty(name, *setFlagValues[name], sel); err != nil {
			return err
		}
	}
	return nil
}
