// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package target

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
)

// DefaultConnectTimeout is the SSH connect timeout, in seconds, used when
// the user does not specify one.
const DefaultConnectTimeout = 8

// sshConnectionExitCode is returned by the ssh client when the connection
// itself failed, as opposed to the remote command failing.
const sshConnectionExitCode = 255

// defaultKeyNames are the private key file names searched under ~/.ssh
// when no key is given explicitly.
var defaultKeyNames = []string{"id_rsa", "id_ecdsa", "id_ed25519"}

// RemoteTarget runs commands and file operations on a remote host through
// the system ssh client. A ControlMaster connection is established on
// first use and shared by all subsequent operations.
type RemoteTarget struct {
	host    string
	user    string
	key     string
	timeout int // connect timeout in seconds
	vendor  string
	family  string
	model   string
}

// NewRemoteTarget creates a new RemoteTarget. If key is empty, the
// standard private key locations under the invoking user's ~/.ssh are
// searched. A non-positive timeout selects DefaultConnectTimeout.
func NewRemoteTarget(host string, userName string, key string, timeout int) *RemoteTarget {
	if userName == "" {
		userName = "root"
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	if key == "" {
		key = findDefaultKey()
	}
	return &RemoteTarget{
		host:    host,
		user:    userName,
		key:     key,
		timeout: timeout,
	}
}

func findDefaultKey() string {
	usr, err := user.Current()
	if err != nil {
		return ""
	}
	for _, name := range defaultKeyNames {
		path := filepath.Join(usr.HomeDir, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (t *RemoteTarget) RunCommand(cmd *exec.Cmd, timeout int) (stdout string, stderr string, exitCode int, err error) {
	localCommand := t.prepareLocalCommand(cmd)
	stdout, stderr, exitCode, err = runLocalCommandWithTimeout(localCommand, timeout)
	if err != nil && exitCode == sshConnectionExitCode {
		err = fmt.Errorf("%w: %s: %s", ErrConnection, t.host, strings.TrimSpace(stderr))
	}
	return
}

func (t *RemoteTarget) ReadFile(path string) (string, error) {
	cmd := exec.Command("cat", path)
	stdout, stderr, exitCode, err := t.RunCommand(cmd, 0)
	if err != nil {
		return "", err
	}
	if exitCode != 0 {
		return "", readFileError(path, stderr, exitCode)
	}
	return stdout, nil
}

func (t *RemoteTarget) WriteFile(path string, data string) error {
	script := fmt.Sprintf("printf '%%s' %s > %s", shellQuote(data), shellQuote(path))
	cmd := exec.Command("sh", "-c", script)
	_, stderr, exitCode, err := t.RunCommand(cmd, 0)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", exitCode)
		}
		return fmt.Errorf("failed to write %s: %s", path, detail)
	}
	return nil
}

// CanConnect checks that the SSH connection can be established. This also
// starts the ControlMaster that later operations reuse.
func (t *RemoteTarget) CanConnect() bool {
	cmd := exec.Command("exit", "0")
	_, _, _, err := t.RunCommand(cmd, t.timeout)
	return err == nil
}

func (t *RemoteTarget) IsSuperUser() bool {
	return t.user == "root"
}

func (t *RemoteTarget) GetVendor() (vendor string, err error) {
	if t.vendor == "" {
		t.vendor, err = getVendor(t)
	}
	return t.vendor, err
}

func (t *RemoteTarget) GetFamily() (family string, err error) {
	if t.family == "" {
		t.family, err = getFamily(t)
	}
	return t.family, err
}

func (t *RemoteTarget) GetModel() (model string, err error) {
	if t.model == "" {
		t.model, err = getModel(t)
	}
	return t.model, err
}

// GetName returns the remote host name.
func (t *RemoteTarget) GetName() (name string) {
	return t.host
}

// Close terminates the shared ControlMaster connection, if one was
// established. Errors are logged, not returned, since there is nothing
// useful the caller can do with them at exit.
func (t *RemoteTarget) Close() error {
	args := t.prepareSSHFlags()
	args = append(args, "-O", "exit", t.destination())
	cmd := exec.Command("ssh", args...)
	stdout, stderr, exitCode, err := runLocalCommandWithTimeout(cmd, t.timeout)
	if err != nil {
		slog.Debug("closing ssh connection", slog.String("host", t.host),
			slog.String("stdout", stdout), slog.String("stderr", stderr), slog.Int("exitCode", exitCode))
	}
	return nil
}

func (t *RemoteTarget) destination() string {
	return t.user + "@" + t.host
}

func (t *RemoteTarget) controlPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("pepc-control-%%h-%%p-%%r-%d", os.Getpid()))
}

func (t *RemoteTarget) prepareSSHFlags() (flags []string) {
	flags = []string{
		"-o",
		"UserKnownHostsFile=/dev/null",
		"-o",
		"StrictHostKeyChecking=no",
		"-o",
		fmt.Sprintf("ConnectTimeout=%d", t.timeout),
		"-o",
		"BatchMode=yes",
		"-o",
		"LogLevel=ERROR",
		"-o",
		"ControlPath=" + t.controlPath(),
		"-o",
		"ControlMaster=auto",
		"-o",
		"ControlPersist=1m",
	}
	if t.key != "" {
		flags = append(flags,
			"-o",
			"PreferredAuthentications=publickey",
			"-o",
			"PasswordAuthentication=no",
			"-i",
			t.key,
		)
	}
	return
}

// prepareLocalCommand wraps a command into an ssh client invocation. The
// remote shell re-parses the command line, so each argument is quoted to
// preserve the local argument boundaries.
func (t *RemoteTarget) prepareLocalCommand(cmd *exec.Cmd) *exec.Cmd {
	args := t.prepareSSHFlags()
	args = append(args, t.destination(), "--")
	for _, arg := range cmd.Args {
		args = append(args, quoteArg(arg))
	}
	return exec.Command("ssh", args...)
}

func quoteArg(arg string) string {
	if arg == "" {
		return "''"
	}
	if strings.ContainsAny(arg, " \t\n\"'\\$&|;<>()*?[]#~%{}") {
		return shellQuote(arg)
	}
	return arg
}
