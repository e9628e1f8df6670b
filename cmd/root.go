// Package cmd provides the command line interface for the application.
package cmd

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"pepc/cmd/aspm"
	"pepc/cmd/cpuhotplug"
	"pepc/cmd/cstates"
	"pepc/cmd/pstates"
	"pepc/internal/common"
	"pepc/internal/cpuinfo"
	"pepc/internal/target"

	"github.com/spf13/cobra"
)

var gVersion = "9.9.9" // overwritten by ldflags in Makefile

var examples = []string{
	fmt.Sprintf("  Show C-state information for all CPUs:          $ %s cstates info", common.AppName),
	fmt.Sprintf("  Disable C6 on CPUs 0-3:                         $ %s cstates set --disable C6 --cpus 0-3", common.AppName),
	fmt.Sprintf("  Limit CPU frequency on a remote host:           $ %s -H 192.168.1.2 pstates set --max-freq 2GHz", common.AppName),
	fmt.Sprintf("  Disable hyper-threading (offline all siblings): $ %s cpu-hotplug offline --cpus all --siblings", common.AppName),
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:               common.AppName,
	Short:             common.AppName,
	Long:              fmt.Sprintf(`%s is a utility for configuring power, energy, and performance settings of Linux systems: CPU hotplug, C-states, P-states, and PCI ASPM.`, common.AppName),
	Example:           strings.Join(examples, "\n"),
	PersistentPreRunE: initializeApplication, // will only be run if command has a 'Run' function
	PersistentPostRun: terminateApplication,  // ...
	Version:           gVersion,
}

var (
	// target
	flagHost     string
	flagUsername string
	flagPrivKey  string
	flagTimeout  int
	// output
	flagQuiet      bool
	flagDebug      bool
	flagForceColor bool
)

const (
	flagHostName       = "host"
	flagUsernameName   = "username"
	flagPrivKeyName    = "priv-key"
	flagTimeoutName    = "timeout"
	flagQuietName      = "quiet"
	flagDebugName      = "debug"
	flagForceColorName = "force-color"
)

func init() {
	rootCmd.SetUsageTemplate(`Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command] [flags]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}
`)
	rootCmd.SetHelpCommand(&cobra.Command{}) // block the help command
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.AddGroup([]*cobra.Group{{ID: "primary", Title: "Commands:"}}...)
	rootCmd.AddCommand(cpuhotplug.Cmd)
	rootCmd.AddCommand(cstates.Cmd)
	rootCmd.AddCommand(pstates.Cmd)
	rootCmd.AddCommand(aspm.Cmd)
	// Global (persistent) flags
	rootCmd.PersistentFlags().StringVarP(&flagHost, flagHostName, "H", "", "hostname or IP address of the system to configure, default is the local system")
	rootCmd.PersistentFlags().StringVarP(&flagUsername, flagUsernameName, "U", "root", "user name for connecting to the remote system")
	rootCmd.PersistentFlags().StringVarP(&flagPrivKey, flagPrivKeyName, "K", "", "private key for connecting to the remote system")
	rootCmd.PersistentFlags().IntVarP(&flagTimeout, flagTimeoutName, "T", target.DefaultConnectTimeout, "SSH connect timeout in seconds")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, flagQuietName, "q", false, "print only errors")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, flagDebugName, "d", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagForceColor, flagForceColorName, false, "colorize output even when not connected to a terminal")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.EnableCommandSorting = false
	cobra.EnableCaseInsensitive = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initializeApplication(cmd *cobra.Command, args []string) error {
	var logOpts slog.HandlerOptions
	switch {
	case flagDebug:
		logOpts.Level = slog.LevelDebug
		logOpts.AddSource = true
	case flagQuiet:
		logOpts.Level = slog.LevelError
	default:
		logOpts.Level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &logOpts)))
	slog.Debug("starting up", slog.String("app", common.AppName), slog.String("version", gVersion),
		slog.Int("PID", os.Getpid()), slog.String("arguments", strings.Join(os.Args, " ")))

	tgt, err := newTarget()
	if err != nil {
		return err
	}
	if !tgt.IsSuperUser() {
		slog.Warn("not running as root, configuration changes will likely fail",
			slog.String("target", tgt.GetName()))
	}
	topology, err := cpuinfo.Discover(tgt)
	if err != nil {
		tgt.Close()
		return err
	}
	// set app context
	cmd.Parent().SetContext(
		context.WithValue(
			context.Background(),
			common.AppContext{},
			common.AppContext{
				Target:   tgt,
				Topology: topology,
				Colors:   common.NewColors(flagForceColor),
			},
		),
	)
	return nil
}

func newTarget() (target.Target, error) {
	if flagHost == "" {
		return target.NewLocalTarget(), nil
	}
	tgt := target.NewRemoteTarget(flagHost, flagUsername, flagPrivKey, flagTimeout)
	if !tgt.CanConnect() {
		tgt.Close()
		return nil, fmt.Errorf("%w: cannot connect to %s as user %s", target.ErrConnection, flagHost, flagUsername)
	}
	return tgt, nil
}

// terminateApplication closes the target connection.
func terminateApplication(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	if cmd.Parent() != nil {
		ctx = cmd.Parent().Context()
	}
	if ctx == nil {
		return
	}
	if appContext, ok := ctx.Value(common.AppContext{}).(common.AppContext); ok {
		if appContext.Target != nil {
			if err := appContext.Target.Close(); err != nil {
				slog.Error("error closing target connection", slog.String("error", err.Error()))
			}
		}
	}
}
