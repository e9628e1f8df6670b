/*
Package props implements the property registry: the static table of
power-management knobs (package C-state limit, C1 demotion, EPB, EPP,
frequency limits, turbo, ...), the scope resolver that maps a CPU
selection to the units a property applies to, and the get/set machinery
that reads and writes properties through MSRs and kernel sysfs
attributes.
*/
package props

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"

	"pepc/internal/cpufreq"
	"pepc/internal/cpuinfo"
	"pepc/internal/msr"
	"pepc/internal/target"
)

// ErrScopeMismatch indicates that a property was given a selection
// narrower than its scope, e.g. --cpus with a package-scoped property
// that cannot be applied per CPU.
var ErrScopeMismatch = errors.New("selection does not match property scope")

// ErrUnsupportedHardware indicates that the target hardware does not
// support a property: wrong CPU vendor, or a missing feature such as HWP.
var ErrUnsupportedHardware = errors.New("not supported on this hardware")

// Scope is the granularity a property applies at.
type Scope int

const (
	ScopeCPU Scope = iota
	ScopePackage
	ScopeGlobal
)

func (s Scope) String() string {
	switch s {
	case ScopeCPU:
		return "CPU"
	case ScopePackage:
		return "package"
	default:
		return "global"
	}
}

// Kind is the value domain of a property, it selects the parse/format
// rules.
type Kind int

const (
	KindOnOff Kind = iota
	KindPkgCstateLimit
	KindEPB
	KindEPP
	KindGovernor
	KindFreq
	KindTurbo
)

// MSRBitfield locates a property in a bit range of a model-specific
// register. LockBit is the BIOS lock bit of the register, -1 when the
// register has none.
type MSRBitfield struct {
	Addr      uint64
	High, Low uint
	LockBit   int
}

// KernelAttr locates a property in a sysfs attribute. The path template
// takes the unit number (CPU or package).
type KernelAttr struct {
	PathTemplate string
}

// UncoreAttr locates a property in an intel_uncore_frequency attribute,
// parameterized by package and die.
type UncoreAttr struct {
	Attr string
}

type access interface{ isAccess() }

func (MSRBitfield) isAccess() {}
func (KernelAttr) isAccess()  {}
func (UncoreAttr) isAccess()  {}

// Descriptor describes one property.
type Descriptor struct {
	Name   string
	Scope  Scope
	Kind   Kind
	Access access

	// Strict package-scoped properties reject --cpus and --cores;
	// non-strict ones warn and apply to the whole unit.
	Strict bool

	// IntelOnly properties fail with ErrUnsupportedHardware on other
	// vendors. NeedsHWP additionally requires hardware P-states to be
	// enabled.
	IntelOnly bool
	NeedsHWP  bool
}

const cpufreqAttr = "/sys/devices/system/cpu/cpu%d/cpufreq/"

// registry is the static property table.
var registry = map[string]*Descriptor{
	"pkg-cstate-limit": {
		Name:      "pkg-cstate-limit",
		Scope:     ScopePackage,
		Kind:      KindPkgCstateLimit,
		Access:    MSRBitfield{Addr: msr.PkgCstConfigControl, High: 2, Low: 0, LockBit: 15},
		IntelOnly: true,
	},
	"c1-demotion": {
		Name:      "c1-demotion",
		Scope:     ScopeCPU,
		Kind:      KindOnOff,
		Access:    MSRBitfield{Addr: msr.PkgCstConfigControl, High: 26, Low: 26, LockBit: -1},
		IntelOnly: true,
	},
	"c1-undemotion": {
		Name:      "c1-undemotion",
		Scope:     ScopeCPU,
		Kind:      KindOnOff,
		Access:    MSRBitfield{Addr: msr.PkgCstConfigControl, High: 28, Low: 28, LockBit: -1},
		IntelOnly: true,
	},
	"c1e-autopromote": {
		Name:      "c1e-autopromote",
		Scope:     ScopePackage,
		Kind:      KindOnOff,
		Access:    MSRBitfield{Addr: msr.PowerCtl, High: 1, Low: 1, LockBit: -1},
		IntelOnly: true,
	},
	"cstate-prewake": {
		Name:      "cstate-prewake",
		Scope:     ScopePackage,
		Kind:      KindOnOff,
		Access:    MSRBitfield{Addr: msr.PowerCtl, High: 30, Low: 30, LockBit: -1},
		IntelOnly: true,
	},
	"epb": {
		Name:      "epb",
		Scope:     ScopeCPU,
		Kind:      KindEPB,
		Access:    MSRBitfield{Addr: msr.EnergyPerfBias, High: 3, Low: 0, LockBit: -1},
		IntelOnly: true,
	},
	"epp": {
		Name:      "epp",
		Scope:     ScopeCPU,
		Kind:      KindEPP,
		Access:    MSRBitfield{Addr: msr.HwpRequest, High: 31, Low: 24, LockBit: -1},
		IntelOnly: true,
		NeedsHWP:  true,
	},
	"governor": {
		Name:   "governor",
		Scope:  ScopeCPU,
		Kind:   KindGovernor,
		Access: KernelAttr{PathTemplate: cpufreqAttr + "scaling_governor"},
	},
	"min-freq": {
		Name:   "min-freq",
		Scope:  ScopeCPU,
		Kind:   KindFreq,
		Access: KernelAttr{PathTemplate: cpufreqAttr + "scaling_min_freq"},
	},
	"max-freq": {
		Name:   "max-freq",
		Scope:  ScopeCPU,
		Kind:   KindFreq,
		Access: KernelAttr{PathTemplate: cpufreqAttr + "scaling_max_freq"},
	},
	"min-uncore-freq": {
		Name:   "min-uncore-freq",
		Scope:  ScopePackage,
		Kind:   KindFreq,
		Access: UncoreAttr{Attr: "min_freq_khz"},
		Strict: true,
	},
	"max-uncore-freq": {
		Name:   "max-uncore-freq",
		Scope:  ScopePackage,
		Kind:   KindFreq,
		Access: UncoreAttr{Attr: "max_freq_khz"},
		Strict: true,
	},
	"turbo": {
		Name:  "turbo",
		Scope: ScopeGlobal,
		Kind:  KindTurbo,
	},
}

// Lookup returns the descriptor of a property.
func Lookup(name string) (*Descriptor, error) {
	desc, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown property %q", name)
	}
	return desc, nil
}

// Unit is one hardware unit a property operation applies to: one CPU,
// one package/die pair, or the whole system. CPU is a representative
// online CPU used for MSR access regardless of scope.
type Unit struct {
	Scope Scope
	ID    int
	Die   int
	CPU   int
}

// String names the unit in messages, e.g. "CPU4" or "package 1".
func (u Unit) String() string {
	switch u.Scope {
	case ScopeCPU:
		return fmt.Sprintf("CPU%d", u.ID)
	case ScopePackage:
		return fmt.Sprintf("package %d", u.ID)
	default:
		return "all CPUs"
	}
}

// Mgr performs property operations on one target host.
type Mgr struct {
	t        target.Target
	topology *cpuinfo.Topology
	msr      *msr.MSR
	freq     *cpufreq.CPUFreq
}

// New returns a property manager for the given target and topology
// snapshot.
func New(t target.Target, topology *cpuinfo.Topology) *Mgr {
	return &Mgr{
		t:        t,
		topology: topology,
		msr:      msr.New(t),
		freq:     cpufreq.New(t),
	}
}

// Resolve maps a selection to the units the property applies to, in
// first-encounter order of the selected CPUs. An empty selection means
// all online CPUs. Resolving the same selection twice yields the same
// units.
func (m *Mgr) Resolve(desc *Descriptor, sel cpuinfo.Selection) ([]Unit, error) {
	if desc.Scope == ScopePackage && desc.Strict && (sel.CPUs != "" || sel.Cores != "") {
		return nil, fmt.Errorf("%w: %s is %s scope, use --packages",
			ErrScopeMismatch, desc.Name, desc.Scope)
	}

	cpus, err := m.topology.SelectCPUs(sel, "all")
	if err != nil {
		return nil, err
	}

	switch desc.Scope {
	case ScopeCPU:
		units := make([]Unit, len(cpus))
		for i, cpu := range cpus {
			units[i] = Unit{Scope: ScopeCPU, ID: cpu, CPU: cpu}
		}
		return units, nil

	case ScopePackage:
		if !desc.Strict && (sel.CPUs != "" || sel.Cores != "") {
			slog.Warn("property has package scope, it will be applied to whole packages",
				slog.String("property", desc.Name))
		}
		seen := mapset.NewThreadUnsafeSet[int]()
		var units []Unit
		for _, cpu := range cpus {
			pkg, err := m.topology.CPUToPackage(cpu)
			if err != nil {
				return nil, err
			}
			if !seen.Add(pkg) {
				continue
			}
			if _, ok := desc.Access.(UncoreAttr); ok {
				dies, err := m.topology.Dies(pkg)
				if err != nil {
					return nil, err
				}
				for _, die := range dies {
					units = append(units, Unit{Scope: ScopePackage, ID: pkg, Die: die, CPU: cpu})
				}
			} else {
				units = append(units, Unit{Scope: ScopePackage, ID: pkg, CPU: cpu})
			}
		}
		return units, nil

	default:
		if !sel.IsEmpty() {
			slog.Warn("property is global, the selection is ignored",
				slog.String("property", desc.Name))
		}
		return []Unit{{Scope: ScopeGlobal, CPU: cpus[0]}}, nil
	}
}

// checkSupported verifies the hardware gates of a property on the unit's
// representative CPU.
func (m *Mgr) checkSupported(desc *Descriptor, unit Unit) error {
	if !desc.IntelOnly {
		return nil
	}
	vendor, err := m.t.GetVendor()
	if err != nil {
		return err
	}
	if vendor != "GenuineIntel" {
		return fmt.Errorf("%s is %w: requires an Intel CPU, %s has vendor %s",
			desc.Name, ErrUnsupportedHardware, m.t.GetName(), vendor)
	}
	// The MSR layouts in the registry are defined for family 6 only.
	family, err := m.t.GetFamily()
	if err != nil {
		return err
	}
	if family != "6" {
		return fmt.Errorf("%s is %w: requires CPU family 6, %s has family %s",
			desc.Name, ErrUnsupportedHardware, m.t.GetName(), family)
	}
	if desc.NeedsHWP {
		enabled, err := m.msr.ReadBits(unit.CPU, msr.PmEnable, 0, 0)
		if err != nil {
			return err
		}
		if enabled == 0 {
			return fmt.Errorf("%s is %w: hardware P-states (HWP) are disabled",
				desc.Name, ErrUnsupportedHardware)
		}
	}
	return nil
}
