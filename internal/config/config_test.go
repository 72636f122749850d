package config

import "testing"

func TestEnvOverridesAppliesKnownVars(t *testing.T) {
	t.Setenv("TMPDIR", "/scratch")
	t.Setenv("DISTCCD_PATH", "/opt/bin")
	t.Setenv("DISTCCD_PRINCIPAL", "builder@EXAMPLE.COM")
	t.Setenv("DISTCC_TCP_DEFER_ACCEPT", "1")

	c := Defaults()
	c.EnvOverrides()

	if c.TempBase != "/scratch" {
		t.Errorf("TempBase = %q", c.TempBase)
	}
	if c.PATH != "/opt/bin" {
		t.Errorf("PATH = %q", c.PATH)
	}
	if !c.RequireAuth || c.Principal != "builder@EXAMPLE.COM" {
		t.Errorf("RequireAuth/Principal not set from env")
	}
	if !c.DeferAccept {
		t.Errorf("DeferAccept not set from env")
	}
}

func TestDefaultsMatchHistoricalValues(t *testing.T) {
	c := Defaults()
	if c.Port != 3632 {
		t.Errorf("Port = %d, want 3632", c.Port)
	}
	if c.MaxWorkers != 4 || c.MaxRequests != 50 {
		t.Errorf("unexpected worker defaults: %+v", c)
	}
}
