package netdesc

import (
	"testing"

	"petnet-coordinator/internal/config"
)

func TestSocketDescriptorIsDeterministic(t *testing.T) {
	addrs := ConfigAddress{"party_a": "host-a", "party_b": "host-b"}
	b := NewBuilder(config.SchemeSocket, 49152, 65535, addrs)

	d1, err := b.Build([]string{"party_a", "party_b"}, "j_1.x.y")
	if err != nil {
		t.Fatalf("build 1: %v", err)
	}
	d2, err := b.Build([]string{"party_a", "party_b"}, "j_1.x.y")
	if err != nil {
		t.Fatalf("build 2: %v", err)
	}
	if d1.Parties["party_a"].Address[0] != d2.Parties["party_a"].Address[0] {
		t.Fatalf("expected identical address across builds: %v vs %v", d1.Parties["party_a"], d2.Parties["party_a"])
	}
}

func TestDerivePortMatchesKnownVector(t *testing.T) {
	addrs := ConfigAddress{"party_a": "127.0.0.1", "party_b": "127.0.0.2"}
	b := NewBuilder(config.SchemeSocket, 49152, 65535, addrs)

	if got := b.derivePort("test_network_config", "party_a"); got != 49702 {
		t.Fatalf("party_a: got %d, want 49702", got)
	}
	if got := b.derivePort("test_network_config", "party_b"); got != 60082 {
		t.Fatalf("party_b: got %d, want 60082", got)
	}

	d, err := b.Build([]string{"party_a", "party_b"}, "test_network_config")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if d.Parties["party_a"].Address[0] != "127.0.0.1:49702" {
		t.Fatalf("party_a address: %v", d.Parties["party_a"])
	}
	if d.Parties["party_b"].Address[0] != "127.0.0.2:60082" {
		t.Fatalf("party_b address: %v", d.Parties["party_b"])
	}
}

func TestSocketPortWithinBounds(t *testing.T) {
	addrs := ConfigAddress{"party_a": "host-a"}
	lb, ub := 49152, 65535
	b := NewBuilder(config.SchemeSocket, lb, ub, addrs)

	for i := 0; i < 50; i++ {
		passphrase := "j_" + string(rune('a'+i)) + ".x.y"
		d, err := b.Build([]string{"party_a"}, passphrase)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		port := b.derivePort(passphrase, "party_a")
		if port < lb || port >= ub {
			t.Fatalf("port %d out of bounds [%d,%d)", port, lb, ub)
		}
		_ = d
	}
}

func TestAgentModeUsesSharedTopic(t *testing.T) {
	addrs := ConfigAddress{"party_a": "https://agent.party-a.example"}
	b := NewBuilder(config.SchemeAgent, 0, 0, addrs)

	d, err := b.Build([]string{"party_a"}, "j_1.x.y")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if d.SharedTopic != "j_1.x.y" {
		t.Fatalf("expected shared_topic to equal passphrase, got %s", d.SharedTopic)
	}
	if d.Parties["party_a"].Address[0] != "https://agent.party-a.example" {
		t.Fatalf("unexpected agent address: %v", d.Parties["party_a"])
	}
}

func TestUnknownPartyErrors(t *testing.T) {
	addrs := ConfigAddress{}
	b := NewBuilder(config.SchemeSocket, 49152, 65535, addrs)
	if _, err := b.Build([]string{"missing"}, "p"); err == nil {
		t.Fatal("expected error for unconfigured party")
	}
}

func TestPassphraseFormat(t *testing.T) {
	got := Passphrase("j_1", "ops.psi", "PSIOperator")
	want := "j_1.ops.psi.PSIOperator"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
