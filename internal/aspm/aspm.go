/*
Package aspm reads and sets the PCI Express Active State Power Management
policy through the pcie_aspm kernel module parameters.
*/
package aspm

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"strings"

	"pepc/internal/target"
)

const policyPath = "/sys/module/pcie_aspm/parameters/policy"

// ErrNotSupported indicates that the kernel does not expose the ASPM
// policy, e.g. pcie_aspm is disabled.
var ErrNotSupported = errors.New("PCI ASPM is not supported")

// ASPM reads and modifies the ASPM policy on one target host.
type ASPM struct {
	t target.Target
}

// New returns an ASPM accessor for the given target.
func New(t target.Target) *ASPM {
	return &ASPM{t: t}
}

// Policy returns the currently selected ASPM policy. The kernel marks
// the current policy with brackets, e.g. "default performance [powersave]".
func (a *ASPM) Policy() (string, error) {
	policies, err := a.read()
	if err != nil {
		return "", err
	}
	for _, policy := range policies {
		if strings.HasPrefix(policy, "[") && strings.HasSuffix(policy, "]") {
			return strings.Trim(policy, "[]"), nil
		}
	}
	return "", fmt.Errorf("no current policy marked in %s", policyPath)
}

// Policies returns all available ASPM policies.
func (a *ASPM) Policies() ([]string, error) {
	policies, err := a.read()
	if err != nil {
		return nil, err
	}
	for i, policy := range policies {
		policies[i] = strings.Trim(policy, "[]")
	}
	return policies, nil
}

// SetPolicy selects an ASPM policy. The name must be one of the policies
// the kernel offers.
func (a *ASPM) SetPolicy(name string) error {
	policies, err := a.Policies()
	if err != nil {
		return err
	}
	found := false
	for _, policy := range policies {
		if policy == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("bad ASPM policy %q, available policies are: %s",
			name, strings.Join(policies, ", "))
	}
	if err := a.t.WriteFile(policyPath, name); err != nil {
		return fmt.Errorf("failed to set ASPM policy to %q: %w", name, err)
	}
	return nil
}

func (a *ASPM) read() ([]string, error) {
	data, err := a.t.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSupported, err)
	}
	policies := strings.Fields(data)
	if len(policies) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNotSupported, policyPath)
	}
	return policies, nil
}
