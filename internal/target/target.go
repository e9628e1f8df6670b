/*
Package target provides a way to interact with local and remote systems.

A Target runs commands and reads and writes files either directly on the
local machine or on a remote host over SSH. One SSH connection is
established per invocation and reused for every operation until Close.
*/
package target

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrConnection indicates that the target could not be reached: an
// authentication failure, an unreachable host, or a timeout. It is fatal
// for the whole invocation and never retried.
var ErrConnection = errors.New("connection error")

// Target represents a machine where commands can be run and files can be
// read and written. Implementations are LocalTarget and RemoteTarget.
type Target interface {
	// RunCommand runs the specified command on the target. The timeout,
	// in seconds, bounds the whole operation; zero means no timeout.
	// It returns the standard output, standard error, exit code, and any
	// error that occurred.
	RunCommand(cmd *exec.Cmd, timeout int) (stdout string, stderr string, exitCode int, err error)

	// ReadFile returns the content of the file at the given path on the
	// target.
	ReadFile(path string) (string, error)

	// WriteFile writes data to the file at the given path on the target,
	// replacing its content.
	WriteFile(path string, data string) error

	// CanConnect checks if a connection can be established with the target.
	CanConnect() bool

	// IsSuperUser checks if commands run as the superuser on the target.
	IsSuperUser() bool

	// GetVendor returns the CPU vendor identifier of the target, e.g.
	// "GenuineIntel".
	GetVendor() (vendor string, err error)

	// GetFamily returns the CPU family of the target.
	GetFamily() (family string, err error)

	// GetModel returns the CPU model of the target.
	GetModel() (model string, err error)

	// GetName returns the name of the target system, used in messages.
	GetName() (name string)

	// Close releases resources held by the target, in particular the SSH
	// connection of a RemoteTarget. Safe to call more than once.
	Close() error
}

func runLocalCommandWithTimeout(cmd *exec.Cmd, timeout int) (stdout string, stderr string, exitCode int, err error) {
	slog.Debug("running local command", slog.String("cmd", cmd.String()), slog.Int("timeout", timeout))
	if timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
		defer cancel()
		commandWithContext := exec.CommandContext(ctx, cmd.Path, cmd.Args[1:]...)
		commandWithContext.Env = cmd.Env
		cmd = commandWithContext
	}
	var outbuf, errbuf strings.Builder
	cmd.Stdout = &outbuf
	cmd.Stderr = &errbuf
	err = cmd.Run()
	stdout = outbuf.String()
	stderr = errbuf.String()
	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		}
	}
	return
}

func getVendor(t Target) (vendor string, err error) {
	cmd := exec.Command("bash", "-c", "lscpu | grep -i \"^Vendor ID:\" | awk '{print $NF}'")
	vendor, _, _, err = t.RunCommand(cmd, 0)
	if err != nil {
		return
	}
	vendor = strings.TrimSpace(vendor)
	return
}

func getFamily(t Target) (family string, err error) {
	cmd := exec.Command("bash", "-c", "lscpu | grep -i \"^CPU family:\" | awk '{print $NF}'")
	family, _, _, err = t.RunCommand(cmd, 0)
	if err != nil {
		return
	}
	family = strings.TrimSpace(family)
	return
}

func getModel(t Target) (model string, err error) {
	cmd := exec.Command("bash", "-c", "lscpu | grep -i \"^Model:\" | awk '{print $NF}'")
	model, _, _, err = t.RunCommand(cmd, 0)
	if err != nil {
		return
	}
	model = strings.TrimSpace(model)
	return
}

// shellQuote single-quotes a string for safe interpolation into a shell
// command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func readFileError(path string, stderr string, exitCode int) error {
	detail := strings.TrimSpace(stderr)
	if detail == "" {
		detail = fmt.Sprintf("exit code %d", exitCode)
	}
	return fmt.Errorf("failed to read %s: %s", path, detail)
}
