// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package props

import (
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pepc/internal/cpuinfo"
	"pepc/internal/msr"
)

// Two packages, one die each, two hyper-threaded cores per package.
const lscpuOutput = `# socket,die,core,cpu,online
0,0,0,0,Y
0,0,0,1,Y
0,0,1,2,Y
0,0,1,3,Y
1,1,2,4,Y
1,1,2,5,Y
1,1,3,6,Y
1,1,3,7,Y
`

// fakeTarget emulates lscpu, rdmsr, wrmsr, and sysfs files.
type fakeTarget struct {
	vendor    string
	family    string
	model     string
	registers map[uint64]uint64
	files     map[string]string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		vendor:    "GenuineIntel",
		family:    "6",
		model:     "143",
		registers: map[uint64]uint64{},
		files:     map[string]string{},
	}
}

func (f *fakeTarget) RunCommand(cmd *exec.Cmd, timeout int) (string, string, int, error) {
	switch cmd.Args[0] {
	case "lscpu":
		return lscpuOutput, "", 0, nil
	case "rdmsr":
		var reg uint64
		fmt.Sscanf(cmd.Args[3], "0x%x", &reg)
		val, ok := f.registers[reg]
		if !ok {
			return "", "rdmsr: cannot read MSR\n", 1, nil
		}
		return fmt.Sprintf("%x\n", val), "", 0, nil
	case "wrmsr":
		var reg, val uint64
		fmt.Sscanf(cmd.Args[3], "0x%x", &reg)
		fmt.Sscanf(cmd.Args[4], "0x%x", &val)
		f.registers[reg] = val
		return "", "", 0, nil
	}
	return "", "", 127, nil
}
func (f *fakeTarget) ReadFile(path string) (string, error) {
	if data, ok := f.files[path]; ok {
		return data, nil
	}
	return "", fmt.Errorf("open %s: no such file or directory", path)
}
func (f *fakeTarget) WriteFile(path string, data string) error {
	f.files[path] = data
	return nil
}
func (f *fakeTarget) CanConnect() bool           { return true }
func (f *fakeTarget) IsSuperUser() bool          { return true }
func (f *fakeTarget) GetVendor() (string, error) { return f.vendor, nil }
func (f *fakeTarget) GetFamily() (string, error) { return f.family, nil }
func (f *fakeTarget) GetModel() (string, error)  { return f.model, nil }
func (f *fakeTarget) GetName() string            { return "testhost" }
func (f *fakeTarget) Close() error               { return nil }

func newMgr(t *testing.T, tgt *fakeTarget) *Mgr {
	t.Helper()
	topology, err := cpuinfo.Discover(tgt)
	require.NoError(t, err)
	return New(tgt, topology)
}

func mustLookup(t *testing.T, name string) *Descriptor {
	t.Helper()
	desc, err := Lookup(name)
	require.NoError(t, err)
	return desc
}

func TestResolveCPUScope(t *testing.T) {
	m := newMgr(t, newFakeTarget())
	desc := mustLookup(t, "c1-demotion")

	units, err := m.Resolve(desc, cpuinfo.Selection{CPUs: "5,1-2"})
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, Unit{Scope: ScopeCPU, ID: 5, CPU: 5}, units[0])
	assert.Equal(t, Unit{Scope: ScopeCPU, ID: 1, CPU: 1}, units[1])
	assert.Equal(t, Unit{Scope: ScopeCPU, ID: 2, CPU: 2}, units[2])
}

func TestResolvePackageScope(t *testing.T) {
	m := newMgr(t, newFakeTarget())
	desc := mustLookup(t, "c1e-autopromote")

	// CPUs 6 and 2 resolve to packages 1 and 0, first-encounter order,
	// deduplicated.
	units, err := m.Resolve(desc, cpuinfo.Selection{CPUs: "6,2,7"})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, Unit{Scope: ScopePackage, ID: 1, CPU: 6}, units[0])
	assert.Equal(t, Unit{Scope: ScopePackage, ID: 0, CPU: 2}, units[1])
}

func TestResolveIsIdempotent(t *testing.T) {
	m := newMgr(t, newFakeTarget())
	desc := mustLookup(t, "pkg-cstate-limit")
	sel := cpuinfo.Selection{Packages: "0,1"}

	first, err := m.Resolve(desc, sel)
	require.NoError(t, err)
	second, err := m.Resolve(desc, sel)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveGlobalScope(t *testing.T) {
	m := newMgr(t, newFakeTarget())
	desc := mustLookup(t, "turbo")

	units, err := m.Resolve(desc, cpuinfo.Selection{})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, ScopeGlobal, units[0].Scope)
}

func TestResolveStrictScopeMismatch(t *testing.T) {
	m := newMgr(t, newFakeTarget())
	desc := mustLookup(t, "min-uncore-freq")

	_, err := m.Resolve(desc, cpuinfo.Selection{CPUs: "0-3"})
	assert.ErrorIs(t, err, ErrScopeMismatch)
	_, err = m.Resolve(desc, cpuinfo.Selection{Cores: "0"})
	assert.ErrorIs(t, err, ErrScopeMismatch)

	// --packages is the right granularity
	units, err := m.Resolve(desc, cpuinfo.Selection{Packages: "1"})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, 1, units[0].ID)
	assert.Equal(t, 1, units[0].Die)
}

func TestOnOffProperty(t *testing.T) {
	tgt := newFakeTarget()
	tgt.registers[msr.PkgCstConfigControl] = 0x1e008402
	m := newMgr(t, tgt)
	desc := mustLookup(t, "c1-demotion")
	unit := Unit{Scope: ScopeCPU, ID: 0, CPU: 0}

	val, err := m.Get(desc, unit)
	require.NoError(t, err)
	assert.Equal(t, "off", val.Value)

	require.NoError(t, m.Set(desc, unit, "on"))
	// bit 26 set, everything else preserved
	assert.Equal(t, uint64(0x1e008402|1<<26), tgt.registers[msr.PkgCstConfigControl])

	val, err = m.Get(desc, unit)
	require.NoError(t, err)
	assert.Equal(t, "on", val.Value)

	err = m.Set(desc, unit, "maybe")
	assert.ErrorContains(t, err, "expected \"on\" or \"off\"")
}

func TestPkgCstateLimitLocked(t *testing.T) {
	tgt := newFakeTarget()
	// limit code 2, lock bit 15 set
	tgt.registers[msr.PkgCstConfigControl] = 0x2 | 1<<15
	m := newMgr(t, tgt)
	desc := mustLookup(t, "pkg-cstate-limit")
	unit := Unit{Scope: ScopePackage, ID: 0, CPU: 0}

	// probing a locked register works and reports the lock
	val, err := m.Get(desc, unit)
	require.NoError(t, err)
	assert.Equal(t, "PC6N", val.Value) // server encoding for model 143
	assert.True(t, val.Locked)

	// setting fails
	err = m.Set(desc, unit, "PC2")
	assert.ErrorIs(t, err, msr.ErrRegisterLocked)
	assert.Equal(t, uint64(0x2|1<<15), tgt.registers[msr.PkgCstConfigControl])
}

func TestPkgCstateLimitSet(t *testing.T) {
	tgt := newFakeTarget()
	tgt.registers[msr.PkgCstConfigControl] = 0x1e000407
	m := newMgr(t, tgt)
	desc := mustLookup(t, "pkg-cstate-limit")
	unit := Unit{Scope: ScopePackage, ID: 0, CPU: 0}

	require.NoError(t, m.Set(desc, unit, "pc2"))
	assert.Equal(t, uint64(0x1e000401), tgt.registers[msr.PkgCstConfigControl])

	err := m.Set(desc, unit, "PC11")
	assert.ErrorContains(t, err, "bad package C-state limit")
}

func TestEPBPolicies(t *testing.T) {
	tgt := newFakeTarget()
	tgt.registers[msr.EnergyPerfBias] = 6
	m := newMgr(t, tgt)
	desc := mustLookup(t, "epb")
	unit := Unit{Scope: ScopeCPU, ID: 0, CPU: 0}

	val, err := m.Get(desc, unit)
	require.NoError(t, err)
	assert.Equal(t, "6 (normal)", val.Value)

	require.NoError(t, m.Set(desc, unit, "performance"))
	assert.Equal(t, uint64(0), tgt.registers[msr.EnergyPerfBias])

	require.NoError(t, m.Set(desc, unit, "15"))
	assert.Equal(t, uint64(15), tgt.registers[msr.EnergyPerfBias])

	err = m.Set(desc, unit, "16")
	assert.ErrorContains(t, err, "bad value")
}

func TestEPPRequiresHWP(t *testing.T) {
	tgt := newFakeTarget()
	tgt.registers[msr.PmEnable] = 0
	tgt.registers[msr.HwpRequest] = 128 << 24
	m := newMgr(t, tgt)
	desc := mustLookup(t, "epp")
	unit := Unit{Scope: ScopeCPU, ID: 0, CPU: 0}

	_, err := m.Get(desc, unit)
	assert.ErrorIs(t, err, ErrUnsupportedHardware)

	tgt.registers[msr.PmEnable] = 1
	val, err := m.Get(desc, unit)
	require.NoError(t, err)
	assert.Equal(t, "128 (balance-performance)", val.Value)

	require.NoError(t, m.Set(desc, unit, "power"))
	assert.Equal(t, uint64(255)<<24, tgt.registers[msr.HwpRequest])
}

func TestMSRPropertiesAreIntelOnly(t *testing.T) {
	tgt := newFakeTarget()
	tgt.vendor = "AuthenticAMD"
	tgt.registers[msr.PowerCtl] = 0
	m := newMgr(t, tgt)
	unit := Unit{Scope: ScopePackage, ID: 0, CPU: 0}

	_, err := m.Get(mustLookup(t, "c1e-autopromote"), unit)
	assert.ErrorIs(t, err, ErrUnsupportedHardware)
	err = m.Set(mustLookup(t, "cstate-prewake"), unit, "on")
	assert.ErrorIs(t, err, ErrUnsupportedHardware)
}

func TestMSRPropertiesRequireFamily6(t *testing.T) {
	tgt := newFakeTarget()
	tgt.family = "15"
	tgt.registers[msr.EnergyPerfBias] = 6
	m := newMgr(t, tgt)
	unit := Unit{Scope: ScopeCPU, ID: 0, CPU: 0}

	_, err := m.Get(mustLookup(t, "epb"), unit)
	assert.ErrorIs(t, err, ErrUnsupportedHardware)
	err = m.Set(mustLookup(t, "epb"), unit, "normal")
	assert.ErrorIs(t, err, ErrUnsupportedHardware)
	// the register must not have been touched
	assert.Equal(t, uint64(6), tgt.registers[msr.EnergyPerfBias])

	// sysfs-backed properties have no family gate
	tgt.files["/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor"] = "powersave\n"
	val, err := m.Get(mustLookup(t, "governor"), unit)
	require.NoError(t, err)
	assert.Equal(t, "powersave", val.Value)
}

func TestGovernor(t *testing.T) {
	tgt := newFakeTarget()
	tgt.files["/sys/devices/system/cpu/cpu2/cpufreq/scaling_governor"] = "powersave\n"
	tgt.files["/sys/devices/system/cpu/cpu2/cpufreq/scaling_available_governors"] = "performance powersave\n"
	m := newMgr(t, tgt)
	desc := mustLookup(t, "governor")
	unit := Unit{Scope: ScopeCPU, ID: 2, CPU: 2}

	val, err := m.Get(desc, unit)
	require.NoError(t, err)
	assert.Equal(t, "powersave", val.Value)

	require.NoError(t, m.Set(desc, unit, "performance"))
	assert.Equal(t, "performance", tgt.files["/sys/devices/system/cpu/cpu2/cpufreq/scaling_governor"])

	err = m.Set(desc, unit, "ondemand")
	assert.ErrorContains(t, err, "bad governor")
}

func TestFreqProperty(t *testing.T) {
	tgt := newFakeTarget()
	tgt.files["/sys/devices/system/cpu/cpu0/cpufreq/scaling_min_freq"] = "800000\n"
	m := newMgr(t, tgt)
	desc := mustLookup(t, "min-freq")
	unit := Unit{Scope: ScopeCPU, ID: 0, CPU: 0}

	val, err := m.Get(desc, unit)
	require.NoError(t, err)
	assert.Equal(t, "800MHz", val.Value)

	// 900MHz is written to sysfs in kHz
	require.NoError(t, m.Set(desc, unit, "900MHz"))
	assert.Equal(t, "900000", tgt.files["/sys/devices/system/cpu/cpu0/cpufreq/scaling_min_freq"])
}

func TestUncoreFreqProperty(t *testing.T) {
	tgt := newFakeTarget()
	dir := "/sys/devices/system/cpu/intel_uncore_frequency/package_01_die_01/"
	tgt.files[dir+"max_freq_khz"] = "2400000\n"
	tgt.files[dir+"initial_max_freq_khz"] = "2400000\n"
	m := newMgr(t, tgt)
	desc := mustLookup(t, "max-uncore-freq")
	unit := Unit{Scope: ScopePackage, ID: 1, Die: 1, CPU: 4}

	val, err := m.Get(desc, unit)
	require.NoError(t, err)
	assert.Equal(t, "2.4GHz", val.Value)

	require.NoError(t, m.Set(desc, unit, "1.8GHz"))
	assert.Equal(t, "1800000", tgt.files[dir+"max_freq_khz"])
}

func TestTurbo(t *testing.T) {
	tgt := newFakeTarget()
	tgt.files["/sys/devices/system/cpu/intel_pstate/no_turbo"] = "0\n"
	m := newMgr(t, tgt)
	desc := mustLookup(t, "turbo")
	unit := Unit{Scope: ScopeGlobal, CPU: 0}

	val, err := m.Get(desc, unit)
	require.NoError(t, err)
	assert.Equal(t, "on", val.Value)

	// intel_pstate's knob is inverted
	require.NoError(t, m.Set(desc, unit, "off"))
	assert.Equal(t, "1", tgt.files["/sys/devices/system/cpu/intel_pstate/no_turbo"])
}

func TestTurboBoostFallback(t *testing.T) {
	tgt := newFakeTarget()
	tgt.files["/sys/devices/system/cpu/cpufreq/boost"] = "1\n"
	m := newMgr(t, tgt)
	desc := mustLookup(t, "turbo")
	unit := Unit{Scope: ScopeGlobal, CPU: 0}

	val, err := m.Get(desc, unit)
	require.NoError(t, err)
	assert.Equal(t, "on", val.Value)

	require.NoError(t, m.Set(desc, unit, "off"))
	assert.Equal(t, "0", tgt.files["/sys/devices/system/cpu/cpufreq/boost"])
}

func TestTurboUnsupported(t *testing.T) {
	m := newMgr(t, newFakeTarget())
	desc := mustLookup(t, "turbo")
	unit := Unit{Scope: ScopeGlobal, CPU: 0}

	_, err := m.Get(desc, unit)
	assert.ErrorIs(t, err, ErrUnsupportedHardware)
}
