// Package aspm implements the aspm command: inspecting and setting the
// PCI Express Active State Power Management policy.
package aspm

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	aspmlib "pepc/internal/aspm"
	"pepc/internal/common"
)

const cmdName = "aspm"

// Cmd is the aspm command group.
var Cmd = &cobra.Command{
	Use:     cmdName,
	Short:   "Inspect and set the PCI ASPM policy",
	GroupID: "primary",
}

var (
	flagYAML   bool
	flagPolicy string
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the current and available ASPM policies",
	RunE:  runInfo,
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Select an ASPM policy",
	RunE:  runSet,
}

func init() {
	infoCmd.Flags().BoolVar(&flagYAML, "yaml", false, "print in YAML format")
	setCmd.Flags().StringVar(&flagPolicy, "policy", "", "ASPM policy to select, e.g. \"powersave\"")
	cobra.CheckErr(setCmd.MarkFlagRequired("policy"))
	Cmd.AddCommand(infoCmd)
	Cmd.AddCommand(setCmd)
}

type aspmInfo struct {
	Policy   string   `yaml:"policy"`
	Policies []string `yaml:"available_policies"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	appContext := common.AppContextFromCmd(cmd)
	a := aspmlib.New(appContext.Target)

	policy, err := a.Policy()
	if err != nil {
		return err
	}
	policies, err := a.Policies()
	if err != nil {
		return err
	}
	if flagYAML {
		return common.PrintYAML(aspmInfo{Policy: policy, Policies: policies})
	}
	colors := appContext.Colors
	fmt.Printf("%sASPM policy%s: %s\n", colors.Bold, colors.Reset, policy)
	fmt.Printf("%sAvailable policies%s: %s\n", colors.Bold, colors.Reset, strings.Join(policies, ", "))
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	appContext := common.AppContextFromCmd(cmd)
	a := aspmlib.New(appContext.Target)

	if err := a.SetPolicy(flagPolicy); err != nil {
		return err
	}
	fmt.Printf("ASPM policy: set to %s\n", flagPolicy)
	return nil
}
