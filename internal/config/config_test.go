package config

import (
	"os"
	"reflect"
	"testing"
)

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	var c Config
	c.applyDefaults()

	if c.Server.Port != "9000" {
		t.Errorf("Port = %q, want 9000", c.Server.Port)
	}
	if c.Node.Role != "client" {
		t.Errorf("Role = %q, want client", c.Node.Role)
	}
	if c.Cache.Capacity != 10_000 {
		t.Errorf("Capacity = %d, want 10000", c.Cache.Capacity)
	}
	if c.Cache.ReaperPeriodMs != int(c.Cache.WheelTickMillis) {
		t.Errorf("ReaperPeriodMs = %d, want to default to WheelTickMillis %d", c.Cache.ReaperPeriodMs, c.Cache.WheelTickMillis)
	}
	if c.Ring.VirtualNodes != 128 {
		t.Errorf("VirtualNodes = %d, want 128", c.Ring.VirtualNodes)
	}
	if c.Bootstrap.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", c.Bootstrap.ListenAddr)
	}
}

func TestApplyDefaultsDoesNotOverwriteSetValues(t *testing.T) {
	c := Config{Cache: CacheConfig{Capacity: 42}}
	c.applyDefaults()
	if c.Cache.Capacity != 42 {
		t.Errorf("Capacity = %d, want 42 (should not be overwritten)", c.Cache.Capacity)
	}
}

func TestApplyEnvOverridesReadsKnownVars(t *testing.T) {
	for k, v := range map[string]string{
		"PORT":             "9999",
		"ROLE":             "primary",
		"MASTER_IPS":       "10.0.0.1:9000, 10.0.0.2:9000",
		"CACHE_CAPACITY":   "500",
		"RING_VIRTUAL_NODES": "64",
	} {
		os.Setenv(k, v)
		defer os.Unsetenv(k)
	}

	var c Config
	c.applyEnvOverrides()

	if c.Server.Port != "9999" {
		t.Errorf("Port = %q, want 9999", c.Server.Port)
	}
	if c.Node.Role != "primary" {
		t.Errorf("Role = %q, want primary", c.Node.Role)
	}
	want := []string{"10.0.0.1:9000", "10.0.0.2:9000"}
	if !reflect.DeepEqual(c.Node.MasterIPs, want) {
		t.Errorf("MasterIPs = %v, want %v", c.Node.MasterIPs, want)
	}
	if c.Cache.Capacity != 500 {
		t.Errorf("Capacity = %d, want 500", c.Cache.Capacity)
	}
	if c.Ring.VirtualNodes != 64 {
		t.Errorf("VirtualNodes = %d, want 64", c.Ring.VirtualNodes)
	}
}

func TestSplitHostList(t *testing.T) {
	cases := map[string][]string{
		"a:1,b:2":      {"a:1", "b:2"},
		"a:1 b:2":      {"a:1", "b:2"},
		" a:1 , b:2 ":  {"a:1", "b:2"},
		"":             {},
		"single:1":     {"single:1"},
	}
	for in, want := range cases {
		got := splitHostList(in)
		if len(got) != len(want) {
			t.Errorf("splitHostList(%q) = %v, want %v", in, got, want)
			continue
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("splitHostList(%q) = %v, want %v", in, got, want)
				break
			}
		}
	}
}
