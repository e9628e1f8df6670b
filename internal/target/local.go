// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package target

import (
	"os"
	"os/exec"
)

// LocalTarget runs commands and file operations directly on the machine
// the tool is running on.
type LocalTarget struct {
	host   string
	vendor string
	family string
	model  string
}

// NewLocalTarget creates a new LocalTarget.
func NewLocalTarget() *LocalTarget {
	hostName, err := os.Hostname()
	if err != nil {
		hostName = "localhost"
	}
	return &LocalTarget{
		host: hostName,
	}
}

// RunCommand executes the given command with a timeout and returns the
// standard output, standard error, exit code, and any error that occurred.
func (t *LocalTarget) RunCommand(cmd *exec.Cmd, timeout int) (stdout string, stderr string, exitCode int, err error) {
	return runLocalCommandWithTimeout(cmd, timeout)
}

func (t *LocalTarget) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *LocalTarget) WriteFile(path string, data string) error {
	return os.WriteFile(path, []byte(data), 0644) // #nosec G306
}

// CanConnect always succeeds for the local machine.
func (t *LocalTarget) CanConnect() bool {
	return true
}

func (t *LocalTarget) IsSuperUser() bool {
	return os.Geteuid() == 0
}

func (t *LocalTarget) GetVendor() (vendor string, err error) {
	if t.vendor == "" {
		t.vendor, err = getVendor(t)
	}
	return t.vendor, err
}

func (t *LocalTarget) GetFamily() (family string, err error) {
	if t.family == "" {
		t.family, err = getFamily(t)
	}
	return t.family, err
}

func (t *LocalTarget) GetModel() (model string, err error) {
	if t.model == "" {
		t.model, err = getModel(t)
	}
	return t.model, err
}

// GetName returns the host name of the local machine.
func (t *LocalTarget) GetName() (name string) {
	return t.host
}

// Close is a no-op for a local target.
func (t *LocalTarget) Close() error {
	return nil
}
