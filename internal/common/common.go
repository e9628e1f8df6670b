/*
Package common holds the plumbing shared by the pepc subcommands: the
application context, the CPU selection flags, command-line flag order
recovery, and output helpers.
*/
package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"

	"pepc/internal/cpuinfo"
	"pepc/internal/target"
)

// AppName is the name of the application.
const AppName = "pepc"

// AppContext carries the state shared by all subcommands of one
// invocation: the target host, its topology snapshot, and the output
// options. It is stored in the root command's context and doubles as its
// own context key.
type AppContext struct {
	Target   target.Target
	Topology *cpuinfo.Topology
	Colors   Colors
}

// AppContextFromCmd retrieves the application context set up by the root
// command.
func AppContextFromCmd(cmd *cobra.Command) AppContext {
	return cmd.Parent().Context().Value(AppContext{}).(AppContext)
}

// SelectionFlags are the --cpus/--cores/--packages flags shared by the
// commands that operate on a CPU selection.
type SelectionFlags struct {
	CPUs     string
	Cores    string
	Packages string
}

// Add registers the selection flags on a flag set.
func (f *SelectionFlags) Add(flags *pflag.FlagSet) {
	flags.StringVar(&f.CPUs, "cpus", "", "list of CPUs, e.g. \"1-4,7\" or \"all\"")
	flags.StringVar(&f.Cores, "cores", "", "list of cores, e.g. \"0-3\" or \"all\"")
	flags.StringVar(&f.Packages, "packages", "", "list of packages, e.g. \"0,1\" or \"all\"")
}

// Selection returns the flag values as a topology selection.
func (f *SelectionFlags) Selection() cpuinfo.Selection {
	return cpuinfo.Selection{CPUs: f.CPUs, Cores: f.Cores, Packages: f.Packages}
}

// FlagOrder returns, in command-line order, every occurrence of the
// named flags in args. Cobra does not preserve the relative order of
// different flags, but operations like enabling and disabling C-states
// must apply in the literal order the user gave them.
func FlagOrder(args []string, names ...string) []string {
	var order []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		name := strings.TrimPrefix(arg, "--")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		for _, want := range names {
			if name == want {
				order = append(order, name)
				break
			}
		}
	}
	return order
}

// PrintYAML writes v to stdout as YAML.
func PrintYAML(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to render YAML output: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

// Colors holds the ANSI escape sequences used in human-readable output.
// All fields are empty when output is not a terminal.
type Colors struct {
	Bold   string
	Yellow string
	Reset  string
}

// NewColors returns the color set for stdout. force enables colors even
// when stdout is not a terminal.
func NewColors(force bool) Colors {
	if !force && !term.IsTerminal(int(os.Stdout.Fd())) {
		return Colors{}
	}
	return Colors{
		Bold:   "\033[1m",
		Yellow: "\033[33m",
		Reset:  "\033[0m",
	}
}
