/*
Package cpuinfo builds a point-in-time model of the CPU topology of a
target host: packages, dies, cores, logical CPUs, and their online state.

A Topology is immutable once discovered. CPU hotplug operations invalidate
it; callers re-run Discover to observe the new state.
*/
package cpuinfo

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"pepc/internal/rangelist"
	"pepc/internal/target"
)

// ErrTopologyRead indicates that the topology data source was absent or
// malformed. It is fatal for the whole command, every other operation
// depends on the topology.
var ErrTopologyRead = errors.New("failed to read CPU topology")

// CPU is one logical CPU. Core, package, and die numbers are only known
// for online CPUs; Linux does not report topology for offline ones.
type CPU struct {
	ID        int
	CoreID    int
	PackageID int
	DieID     int
	Online    bool
}

// Core is a physical core and the logical CPUs it hosts. CPUIDs is in
// discovery order; the first entry is the primary sibling.
type Core struct {
	ID        int
	PackageID int
	CPUIDs    []int
}

// Package is a CPU package (socket).
type Package struct {
	ID      int
	CoreIDs []int
	DieIDs  []int
}

// Topology is an immutable snapshot of the CPU topology of one host.
type Topology struct {
	hostName string
	cpus     []CPU // discovery order
	cores    map[int]*Core
	packages map[int]*Package
}

// Selection names the CPUs, cores, and packages a command was asked to
// operate on. Each field uses the rangelist syntax; empty means "not
// given".
type Selection struct {
	CPUs     string
	Cores    string
	Packages string
}

// IsEmpty reports whether no explicit selection was made.
func (s Selection) IsEmpty() bool {
	return s.CPUs == "" && s.Cores == "" && s.Packages == ""
}

// Discover reads the CPU topology from the target host and returns an
// immutable snapshot of it.
func Discover(t target.Target) (*Topology, error) {
	cmd := exec.Command("lscpu", "--all", "-p=socket,die,core,cpu,online")
	stdout, stderr, exitCode, err := t.RunCommand(cmd, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTopologyRead, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%w: lscpu exit code %d: %s", ErrTopologyRead, exitCode, strings.TrimSpace(stderr))
	}
	topology, err := parseLscpu(stdout)
	if err != nil {
		return nil, err
	}
	topology.hostName = t.GetName()
	slog.Debug("discovered topology", slog.String("host", topology.hostName),
		slog.Int("cpus", len(topology.cpus)), slog.Int("cores", len(topology.cores)),
		slog.Int("packages", len(topology.packages)))
	return topology, nil
}

// parseLscpu parses 'lscpu --all -p=socket,die,core,cpu,online' output.
// Each non-comment line is socket,die,core,cpu,online, e.g. "1,1,9,61,Y".
// For offline CPUs only the cpu and online fields are populated.
func parseLscpu(output string) (*Topology, error) {
	topology := &Topology{
		cores:    make(map[int]*Core),
		packages: make(map[int]*Package),
	}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 5 {
			return nil, fmt.Errorf("%w: unexpected lscpu line %q", ErrTopologyRead, line)
		}
		cpuID, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("%w: bad CPU number in line %q", ErrTopologyRead, line)
		}
		if fields[4] != "Y" {
			topology.cpus = append(topology.cpus, CPU{ID: cpuID})
			continue
		}
		pkgID, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: bad package number in line %q", ErrTopologyRead, line)
		}
		// the die field is empty on kernels that do not report dies
		dieID := 0
		if fields[1] != "" {
			dieID, err = strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("%w: bad die number in line %q", ErrTopologyRead, line)
			}
		}
		coreID, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%w: bad core number in line %q", ErrTopologyRead, line)
		}
		topology.cpus = append(topology.cpus, CPU{
			ID:        cpuID,
			CoreID:    coreID,
			PackageID: pkgID,
			DieID:     dieID,
			Online:    true,
		})
		core, ok := topology.cores[coreID]
		if !ok {
			core = &Core{ID: coreID, PackageID: pkgID}
			topology.cores[coreID] = core
		}
		core.CPUIDs = append(core.CPUIDs, cpuID)
		pkg, ok := topology.packages[pkgID]
		if !ok {
			pkg = &Package{ID: pkgID}
			topology.packages[pkgID] = pkg
		}
		if !slices.Contains(pkg.CoreIDs, coreID) {
			pkg.CoreIDs = append(pkg.CoreIDs, coreID)
		}
		if !slices.Contains(pkg.DieIDs, dieID) {
			pkg.DieIDs = append(pkg.DieIDs, dieID)
		}
	}
	if len(topology.cpus) == 0 {
		return nil, fmt.Errorf("%w: no CPUs found", ErrTopologyRead)
	}
	return topology, nil
}

// HostName returns the name of the host the snapshot was taken from.
func (tp *Topology) HostName() string {
	return tp.hostName
}

// OnlineCPUs returns the online CPU numbers in ascending order.
func (tp *Topology) OnlineCPUs() []int {
	var cpus []int
	for _, cpu := range tp.cpus {
		if cpu.Online {
			cpus = append(cpus, cpu.ID)
		}
	}
	slices.Sort(cpus)
	return cpus
}

// OfflineCPUs returns the offline CPU numbers in ascending order.
func (tp *Topology) OfflineCPUs() []int {
	var cpus []int
	for _, cpu := range tp.cpus {
		if !cpu.Online {
			cpus = append(cpus, cpu.ID)
		}
	}
	slices.Sort(cpus)
	return cpus
}

// AllCPUs returns every known CPU number, online or not, ascending.
func (tp *Topology) AllCPUs() []int {
	var cpus []int
	for _, cpu := range tp.cpus {
		cpus = append(cpus, cpu.ID)
	}
	slices.Sort(cpus)
	return cpus
}

// Cores returns the numbers of cores with at least one online CPU,
// ascending.
func (tp *Topology) Cores() []int {
	cores := make([]int, 0, len(tp.cores))
	for id := range tp.cores {
		cores = append(cores, id)
	}
	slices.Sort(cores)
	return cores
}

// Packages returns the numbers of packages with at least one online CPU,
// ascending.
func (tp *Topology) Packages() []int {
	pkgs := make([]int, 0, len(tp.packages))
	for id := range tp.packages {
		pkgs = append(pkgs, id)
	}
	slices.Sort(pkgs)
	return pkgs
}

// Dies returns the die numbers of the given package, ascending.
func (tp *Topology) Dies(pkg int) ([]int, error) {
	p, ok := tp.packages[pkg]
	if !ok {
		return nil, fmt.Errorf("package %d is not available on %s", pkg, tp.hostName)
	}
	dies := slices.Clone(p.DieIDs)
	slices.Sort(dies)
	return dies, nil
}

// Siblings returns the online CPUs of the given core, in discovery order.
func (tp *Topology) Siblings(core int) ([]int, error) {
	c, ok := tp.cores[core]
	if !ok {
		return nil, fmt.Errorf("core %d is not available on %s", core, tp.hostName)
	}
	return slices.Clone(c.CPUIDs), nil
}

// CPUToCore returns the core number of an online CPU.
func (tp *Topology) CPUToCore(cpuID int) (int, error) {
	for _, cpu := range tp.cpus {
		if cpu.ID == cpuID && cpu.Online {
			return cpu.CoreID, nil
		}
	}
	return 0, fmt.Errorf("CPU%d is not available on %s, available CPUs are: %s",
		cpuID, tp.hostName, rangelist.Rangify(tp.OnlineCPUs()))
}

// CPUToPackage returns the package number of an online CPU.
func (tp *Topology) CPUToPackage(cpuID int) (int, error) {
	for _, cpu := range tp.cpus {
		if cpu.ID == cpuID && cpu.Online {
			return cpu.PackageID, nil
		}
	}
	return 0, fmt.Errorf("CPU%d is not available on %s, available CPUs are: %s",
		cpuID, tp.hostName, rangelist.Rangify(tp.OnlineCPUs()))
}

// CoresToCPUs returns the online CPUs belonging to the given cores, in
// the order the cores were given.
func (tp *Topology) CoresToCPUs(cores []int) ([]int, error) {
	var cpus []int
	for _, core := range cores {
		siblings, err := tp.Siblings(core)
		if err != nil {
			return nil, err
		}
		cpus = append(cpus, siblings...)
	}
	return cpus, nil
}

// PackagesToCPUs returns the online CPUs belonging to the given packages,
// in the order the packages were given.
func (tp *Topology) PackagesToCPUs(pkgs []int) ([]int, error) {
	var cpus []int
	for _, pkgID := range pkgs {
		pkg, ok := tp.packages[pkgID]
		if !ok {
			return nil, fmt.Errorf("package %d is not available on %s, available packages are: %s",
				pkgID, tp.hostName, rangelist.Rangify(tp.Packages()))
		}
		cores := slices.Clone(pkg.CoreIDs)
		slices.Sort(cores)
		pkgCPUs, err := tp.CoresToCPUs(cores)
		if err != nil {
			return nil, err
		}
		cpus = append(cpus, pkgCPUs...)
	}
	return cpus, nil
}

// ParseCPUs expands and validates a CPU range list against the online
// CPUs of the snapshot.
func (tp *Topology) ParseCPUs(list string) ([]int, error) {
	cpus, err := rangelist.Expand(list, tp.OnlineCPUs())
	if err != nil {
		return nil, fmt.Errorf("bad CPU list %q: %w", list, err)
	}
	return cpus, nil
}

// ParseCores expands and validates a core range list.
func (tp *Topology) ParseCores(list string) ([]int, error) {
	cores, err := rangelist.Expand(list, tp.Cores())
	if err != nil {
		return nil, fmt.Errorf("bad core list %q: %w", list, err)
	}
	return cores, nil
}

// ParsePackages expands and validates a package range list.
func (tp *Topology) ParsePackages(list string) ([]int, error) {
	pkgs, err := rangelist.Expand(list, tp.Packages())
	if err != nil {
		return nil, fmt.Errorf("bad package list %q: %w", list, err)
	}
	return pkgs, nil
}

// SelectCPUs resolves a Selection into a deduplicated, order-preserving
// list of online CPU numbers. CPUs named directly come first, then CPUs
// of the named cores, then CPUs of the named packages. If the selection
// is empty, defaultCPUs (a range list or "all") is used instead.
func (tp *Topology) SelectCPUs(sel Selection, defaultCPUs string) ([]int, error) {
	var cpus []int
	if sel.CPUs != "" {
		nums, err := tp.ParseCPUs(sel.CPUs)
		if err != nil {
			return nil, err
		}
		cpus = append(cpus, nums...)
	}
	if sel.Cores != "" {
		cores, err := tp.ParseCores(sel.Cores)
		if err != nil {
			return nil, err
		}
		nums, err := tp.CoresToCPUs(cores)
		if err != nil {
			return nil, err
		}
		cpus = append(cpus, nums...)
	}
	if sel.Packages != "" {
		pkgs, err := tp.ParsePackages(sel.Packages)
		if err != nil {
			return nil, err
		}
		nums, err := tp.PackagesToCPUs(pkgs)
		if err != nil {
			return nil, err
		}
		cpus = append(cpus, nums...)
	}
	if len(cpus) == 0 {
		if defaultCPUs == "" {
			return nil, nil
		}
		return tp.ParseCPUs(defaultCPUs)
	}
	seen := mapset.NewThreadUnsafeSet[int]()
	var deduped []int
	for _, cpu := range cpus {
		if seen.Add(cpu) {
			deduped = append(deduped, cpu)
		}
	}
	return deduped, nil
}

// SiblingsToOffline computes the CPUs to take offline so that every core
// touched by the selection keeps its lowest numbered online CPU. Only
// selected CPUs are offlined: a non-first sibling the user did not name
// stays online even when its core is touched.
func (tp *Topology) SiblingsToOffline(selectedCPUs []int) []int {
	selected := mapset.NewThreadUnsafeSet(selectedCPUs...)
	touched := mapset.NewThreadUnsafeSet[int]()
	for _, cpuID := range selectedCPUs {
		for _, cpu := range tp.cpus {
			if cpu.ID == cpuID && cpu.Online {
				touched.Add(cpu.CoreID)
			}
		}
	}
	cores := touched.ToSlice()
	slices.Sort(cores)

	var toOffline []int
	for _, coreID := range cores {
		siblings := slices.Clone(tp.cores[coreID].CPUIDs)
		slices.Sort(siblings)
		// the lowest numbered online sibling survives regardless of the
		// selection
		for _, cpuID := range siblings[1:] {
			if selected.Contains(cpuID) {
				toOffline = append(toOffline, cpuID)
			}
		}
	}
	return toOffline
}
