// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package props

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

func sortedStrings(s []string) []string {
	slices.Sort(s)
	return s
}

// pkgCstateLimits maps MSR_PKG_CST_CONFIG_CONTROL limit codes to package
// C-state names. The encoding varies by CPU model; defaultPkgCstateLimits
// covers client platforms, pkgCstateLimitsByModel overrides it for server
// models that use the denser server encoding.
var defaultPkgCstateLimits = map[uint64]string{
	0: "PC0",
	1: "PC2",
	2: "PC3",
	3: "PC6",
	4: "PC7",
	5: "PC7S",
	6: "PC8",
	7: "PC9",
	8: "PC10",
}

// Server encoding, used by Xeon models (Sapphire Rapids 143, Emerald
// Rapids 207, Ice Lake 106/108, Skylake/Cascade Lake 85).
var serverPkgCstateLimits = map[uint64]string{
	0: "PC0",
	1: "PC2",
	2: "PC6N",
	3: "PC6R",
	7: "unlimited",
}

var pkgCstateLimitsByModel = map[string]map[uint64]string{
	"85":  serverPkgCstateLimits,
	"106": serverPkgCstateLimits,
	"108": serverPkgCstateLimits,
	"143": serverPkgCstateLimits,
	"207": serverPkgCstateLimits,
}

func pkgCstateLimits(model string) map[uint64]string {
	if limits, ok := pkgCstateLimitsByModel[model]; ok {
		return limits
	}
	return defaultPkgCstateLimits
}

func pkgCstateLimitName(model string, code uint64) string {
	if name, ok := pkgCstateLimits(model)[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown (%d)", code)
}

func pkgCstateLimitCode(model string, name string) (uint64, error) {
	limits := pkgCstateLimits(model)
	for code, limitName := range limits {
		if strings.EqualFold(limitName, name) {
			return code, nil
		}
	}
	names := make([]string, 0, len(limits))
	for code := uint64(0); code < 16; code++ {
		if limitName, ok := limits[code]; ok {
			names = append(names, limitName)
		}
	}
	return 0, fmt.Errorf("bad package C-state limit %q, supported limits are: %s",
		name, strings.Join(names, ", "))
}

// epbPolicies are the named energy/performance bias values.
var epbPolicies = map[string]uint64{
	"performance":         0,
	"balance-performance": 4,
	"normal":              6,
	"balance-power":       8,
	"power":               15,
}

// eppPolicies are the named energy/performance preference values.
var eppPolicies = map[string]uint64{
	"performance":         0,
	"balance-performance": 128,
	"balance-power":       192,
	"power":               255,
}

// parsePolicyOrUint parses a value that is either a named policy or an
// integer in [0, max].
func parsePolicyOrUint(value string, policies map[string]uint64, max uint64) (uint64, error) {
	if num, ok := policies[strings.ToLower(value)]; ok {
		return num, nil
	}
	num, err := strconv.ParseUint(value, 10, 64)
	if err != nil || num > max {
		names := make([]string, 0, len(policies))
		for name := range policies {
			names = append(names, name)
		}
		return 0, fmt.Errorf("bad value %q, expected an integer 0-%d or one of: %s",
			value, max, strings.Join(sortedStrings(names), ", "))
	}
	return num, nil
}

// formatPolicyOrUint renders an integer value, annotated with the policy
// name when one matches, e.g. "6 (normal)".
func formatPolicyOrUint(num uint64, policies map[string]uint64) string {
	for name, policyNum := range policies {
		if policyNum == num {
			return fmt.Sprintf("%d (%s)", num, name)
		}
	}
	return strconv.FormatUint(num, 10)
}
