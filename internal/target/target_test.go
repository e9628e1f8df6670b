// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package target

import (
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestLocalReadWriteFile(t *testing.T) {
	tgt := NewLocalTarget()
	path := filepath.Join(t.TempDir(), "online")

	if err := tgt.WriteFile(path, "1\n"); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := tgt.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if data != "1\n" {
		t.Errorf("ReadFile = %q, want %q", data, "1\n")
	}
}

func TestLocalRunCommand(t *testing.T) {
	tgt := NewLocalTarget()
	stdout, _, exitCode, err := tgt.RunCommand(exec.Command("echo", "hello"), 5)
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if exitCode != 0 {
		t.Errorf("exit code = %d, want 0", exitCode)
	}
	if strings.TrimSpace(stdout) != "hello" {
		t.Errorf("stdout = %q, want %q", stdout, "hello")
	}
}

func TestQuoteArg(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "simple"},
		{"", "''"},
		{"two words", "'two words'"},
		{"a'b", `'a'\''b'`},
		{"$PATH", "'$PATH'"},
		{"/sys/devices/system/cpu/cpu0/online", "/sys/devices/system/cpu/cpu0/online"},
	}
	for _, tt := range tests {
		if got := quoteArg(tt.input); got != tt.expected {
			t.Errorf("quoteArg(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestPrepareLocalCommand(t *testing.T) {
	tgt := NewRemoteTarget("server1", "elaine", "/home/elaine/.ssh/id_rsa", 8)
	local := tgt.prepareLocalCommand(exec.Command("cat", "/proc/cpuinfo"))

	if filepath.Base(local.Args[0]) != "ssh" {
		t.Fatalf("command = %q, want ssh", local.Args[0])
	}
	if !slices.Contains(local.Args, "elaine@server1") {
		t.Errorf("ssh args missing destination: %v", local.Args)
	}
	if !slices.Contains(local.Args, "ConnectTimeout=8") {
		t.Errorf("ssh args missing connect timeout: %v", local.Args)
	}
	if !slices.Contains(local.Args, "/home/elaine/.ssh/id_rsa") {
		t.Errorf("ssh args missing private key: %v", local.Args)
	}
	// the remote command follows the "--" separator
	sep := slices.Index(local.Args, "--")
	if sep < 0 || !slices.Equal(local.Args[sep+1:], []string{"cat", "/proc/cpuinfo"}) {
		t.Errorf("remote command malformed: %v", local.Args)
	}
}

func TestRemoteTargetDefaults(t *testing.T) {
	tgt := NewRemoteTarget("server1", "", "", 0)
	if tgt.user != "root" {
		t.Errorf("default user = %q, want root", tgt.user)
	}
	if tgt.timeout != DefaultConnectTimeout {
		t.Errorf("default timeout = %d, want %d", tgt.timeout, DefaultConnectTimeout)
	}
}
