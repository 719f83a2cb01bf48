package config

import "testing"

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	fn()
}

func TestLoadRequiresParty(t *testing.T) {
	withEnv(t, map[string]string{"PARTY": ""}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected error when PARTY is unset")
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	withEnv(t, map[string]string{"PARTY": "party_a"}, func() {
		c, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if c.PortLowerBound != 49152 || c.PortUpperBound != 65535 {
			t.Fatalf("unexpected port bounds: %d-%d", c.PortLowerBound, c.PortUpperBound)
		}
		if c.NetworkScheme != SchemeSocket {
			t.Fatalf("expected default socket scheme, got %s", c.NetworkScheme)
		}
		if c.MaxJobLimit != 50 {
			t.Fatalf("expected default max job limit 50, got %d", c.MaxJobLimit)
		}
	})
}

func TestLoadRejectsBadBounds(t *testing.T) {
	withEnv(t, map[string]string{"PARTY": "party_a", "PORT_LOWER_BOUND": "100", "PORT_UPPER_BOUND": "50"}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected error for inverted port bounds")
		}
	})
}

func TestLoadRejectsUnknownScheme(t *testing.T) {
	withEnv(t, map[string]string{"PARTY": "party_a", "NETWORK_SCHEME": "carrier-pigeon"}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected error for unknown network scheme")
		}
	})
}
