// Package config loads process configuration from the environment once at
// startup, replacing module-level singletons with an explicit struct that
// is passed by constructor injection to every component that needs it.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// NetworkScheme selects how the network descriptor builder shapes transport
// config for operators.
type NetworkScheme string

const (
	SchemeSocket NetworkScheme = "socket"
	SchemeAgent  NetworkScheme = "agent"
)

// Config holds every environment-derived setting this service needs.
type Config struct {
	// Party is this deployment's identity; it owns the vertices tagged with
	// this name in every mission DAG.
	Party string

	// DBURI is the sqlite DSN (file path, optionally with query params).
	DBURI string

	// PartyConfigFile points at the JSON document describing sibling
	// parties: base URL, extra headers, and petnet agent URLs.
	PartyConfigFile string

	// SafeWorkDir is the sandbox root that the safe-workdir rewrite rule
	// (§6) rewrites existing-path arguments into.
	SafeWorkDir string

	// NetworkScheme picks socket vs. agent mode for the network descriptor
	// builder (C4).
	NetworkScheme NetworkScheme

	// PortLowerBound / PortUpperBound bound the deterministic port
	// derivation in socket mode. Upper bound is exclusive.
	PortLowerBound int
	PortUpperBound int

	// MaxJobLimit caps the number of concurrently RUNNING jobs this party
	// will accept via submit. Setting it to 1 reproduces the source's
	// stricter "no parallel jobs" variant (see DESIGN.md).
	MaxJobLimit int

	// Secret is the HS256 signing key for inbound JWTs on the external and
	// peer HTTP surface.
	Secret string

	// JWTToken is the bearer token this party presents on outbound peer
	// calls (C3).
	JWTToken string

	// NodeKey derives the local envelope-encryption key used to protect
	// the peer bearer token at rest (internal/secrets).
	NodeKey string

	// MissionDir is the directory of YAML mission templates loaded at
	// startup (internal/missionloader).
	MissionDir string

	// ListenAddr is the local HTTP surface's bind address.
	ListenAddr string

	// LocalAPIAddr is the base URL Task Executor subprocesses use to report
	// task status back to this party's own Job Manager HTTP surface.
	LocalAPIAddr string
}

// Load reads every setting from the environment, applying defaults where a
// value is left unset.
func Load() (*Config, error) {
	c := &Config{
		Party:           os.Getenv("PARTY"),
		DBURI:           getenvDefault("PLATFORM_DB_URI", "coordinator.db"),
		PartyConfigFile: os.Getenv("CONFIG_FILE"),
		SafeWorkDir:     getenvDefault("SAFE_WORK_DIR", os.TempDir()),
		NetworkScheme:   NetworkScheme(getenvDefault("NETWORK_SCHEME", string(SchemeSocket))),
		Secret:          os.Getenv("SECRET"),
		JWTToken:        os.Getenv("JWT_TOKEN"),
		NodeKey:         os.Getenv("COORDINATOR_NODE_KEY"),
		MissionDir:      getenvDefault("MISSION_DIR", "missions"),
		ListenAddr:      getenvDefault("LISTEN_ADDR", ":8080"),
		LocalAPIAddr:    getenvDefault("LOCAL_API_ADDR", "http://127.0.0.1:8080"),
	}
	if c.Party == "" {
		return nil, fmt.Errorf("PARTY is required")
	}
	var err error
	if c.PortLowerBound, err = getenvInt("PORT_LOWER_BOUND", 49152); err != nil {
		return nil, err
	}
	if c.PortUpperBound, err = getenvInt("PORT_UPPER_BOUND", 65535); err != nil {
		return nil, err
	}
	if c.PortUpperBound <= c.PortLowerBound {
		return nil, fmt.Errorf("PORT_UPPER_BOUND must be greater than PORT_LOWER_BOUND")
	}
	if c.MaxJobLimit, err = getenvInt("MAX_JOB_LIMIT", 50); err != nil {
		return nil, err
	}
	if c.NetworkScheme != SchemeSocket && c.NetworkScheme != SchemeAgent {
		return nil, fmt.Errorf("NETWORK_SCHEME must be %q or %q, got %q", SchemeSocket, SchemeAgent, c.NetworkScheme)
	}
	return c, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
