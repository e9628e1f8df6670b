// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cpuidle

import (
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	files map[string]string
}

func (f *fakeTarget) RunCommand(cmd *exec.Cmd, timeout int) (string, string, int, error) {
	return "", "", 0, nil
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
func (f *fakeTarget) GetVendor() (string, error) { return "GenuineIntel", nil }
func (f *fakeTarget) GetFamily() (string, error) { return "6", nil }
func (f *fakeTarget) GetModel() (string, error)  { return "143", nil }
func (f *fakeTarget) GetName() string            { return "testhost" }
func (f *fakeTarget) Close() error               { return nil }

func newFakeStates() *fakeTarget {
	files := map[string]string{}
	states := []struct {
		name, desc, disable, latency, residency string
	}{
		{"POLL", "CPUIDLE CORE POLL IDLE", "0", "0", "0"},
		{"C1", "MWAIT 0x00", "0", "2", "2"},
		{"C1E", "MWAIT 0x01", "0", "10", "20"},
		{"C6", "MWAIT 0x20", "1", "170", "600"},
	}
	for i, s := range states {
		prefix := fmt.Sprintf("/sys/devices/system/cpu/cpu0/cpuidle/state%d/", i)
		files[prefix+"name"] = s.name + "\n"
		files[prefix+"desc"] = s.desc + "\n"
		files[prefix+"disable"] = s.disable + "\n"
		files[prefix+"latency"] = s.latency + "\n"
		files[prefix+"residency"] = s.residency + "\n"
		files[prefix+"usage"] = "100\n"
		files[prefix+"time"] = "5000\n"
	}
	return &fakeTarget{files: files}
}

func TestStates(t *testing.T) {
	c := New(newFakeStates())

	states, err := c.States(0)
	require.NoError(t, err)
	require.Len(t, states, 4)

	assert.Equal(t, "C1E", states[2].Name)
	assert.Equal(t, "MWAIT 0x01", states[2].Desc)
	assert.Equal(t, uint64(10), states[2].LatencyUs)
	assert.Equal(t, uint64(20), states[2].ResidencyUs)
	assert.False(t, states[2].Disabled)
	assert.True(t, states[3].Disabled)
}

func TestStatesUnsupported(t *testing.T) {
	c := New(&fakeTarget{files: map[string]string{}})

	_, err := c.States(0)
	assert.ErrorIs(t, err, ErrNoCStates)
}

func TestFindStates(t *testing.T) {
	c := New(newFakeStates())

	states, err := c.FindStates(0, "all")
	require.NoError(t, err)
	assert.Len(t, states, 4)

	// names are case-insensitive, indices work too, order is preserved
	states, err = c.FindStates(0, "c6,C1,2")
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, "C6", states[0].Name)
	assert.Equal(t, "C1", states[1].Name)
	assert.Equal(t, "C1E", states[2].Name)

	_, err = c.FindStates(0, "C7")
	assert.ErrorContains(t, err, "not found")
	_, err = c.FindStates(0, "C1,,C6")
	assert.Error(t, err)
}

func TestSetDisabled(t *testing.T) {
	tgt := newFakeStates()
	c := New(tgt)

	require.NoError(t, c.SetDisabled(0, 3, false))
	assert.Equal(t, "0", tgt.files["/sys/devices/system/cpu/cpu0/cpuidle/state3/disable"])

	require.NoError(t, c.SetDisabled(0, 1, true))
	assert.Equal(t, "1", tgt.files["/sys/devices/system/cpu/cpu0/cpuidle/state1/disable"])
}
