// Package netdesc is the Network descriptor builder (C4): deterministic
// generation of per-task transport config from a party-address config file,
// keyed by a passphrase derived from job_id.class_path.class_name.
package netdesc

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"petnet-coordinator/internal/config"
)

// PartyAddress resolves a party name to its reachable host:port or agent URL.
type PartyAddress interface {
	// HostPort returns the socket-mode base host for party, without port.
	HostPort(party string) (string, error)
	// AgentURL returns the agent-mode transport URL for party.
	AgentURL(party string) (string, error)
}

// Descriptor is the network descriptor handed to an operator's configmap.
type Descriptor struct {
	NetworkMode   string                  `json:"network_mode"`
	NetworkScheme string                  `json:"network_scheme"`
	SharedTopic   string                  `json:"shared_topic,omitempty"`
	Parties       map[string]PartyAddrSet `json:"parties"`
}

// PartyAddrSet is one party's set of reachable addresses.
type PartyAddrSet struct {
	Address []string `json:"address"`
}

// Builder produces deterministic Descriptors for a set of joining parties.
type Builder struct {
	scheme config.NetworkScheme
	lb, ub int
	addrs  PartyAddress
}

func NewBuilder(scheme config.NetworkScheme, lb, ub int, addrs PartyAddress) *Builder {
	return &Builder{scheme: scheme, lb: lb, ub: ub, addrs: addrs}
}

// Build returns the descriptor for joinParties under passphrase. Every party
// independently computes the same descriptor for the same
// (job_id, class_path, class_name) tuple because the only inputs are the
// passphrase, the party list, and this party's own config.
func (b *Builder) Build(joinParties []string, passphrase string) (*Descriptor, error) {
	switch b.scheme {
	case config.SchemeAgent:
		d := &Descriptor{
			NetworkMode:   "petnet",
			NetworkScheme: "agent",
			SharedTopic:   passphrase,
			Parties:       make(map[string]PartyAddrSet, len(joinParties)),
		}
		for _, p := range joinParties {
			url, err := b.addrs.AgentURL(p)
			if err != nil {
				return nil, err
			}
			d.Parties[p] = PartyAddrSet{Address: []string{url}}
		}
		return d, nil
	case config.SchemeSocket:
		d := &Descriptor{
			NetworkMode:   "petnet",
			NetworkScheme: "socket",
			Parties:       make(map[string]PartyAddrSet, len(joinParties)),
		}
		for _, p := range joinParties {
			host, err := b.addrs.HostPort(p)
			if err != nil {
				return nil, err
			}
			port := b.derivePort(passphrase, p)
			d.Parties[p] = PartyAddrSet{Address: []string{fmt.Sprintf("%s:%d", host, port)}}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("netdesc: unknown network scheme %q", b.scheme)
	}
}

// derivePort computes port = lb + SHA256(passphrase + "." + party) mod (ub - lb),
// treating the full 256-bit digest as the modulus input (not a truncated
// prefix), so results match across any implementation of this formula.
func (b *Builder) derivePort(passphrase, party string) int {
	sum := sha256.Sum256([]byte(passphrase + "." + party))
	span := b.ub - b.lb
	if span <= 0 {
		return b.lb
	}
	n := new(big.Int).SetBytes(sum[:])
	m := new(big.Int).Mod(n, big.NewInt(int64(span)))
	return b.lb + int(m.Int64())
}

// Passphrase derives the deterministic passphrase for a task invocation.
func Passphrase(jobID, classPath, className string) string {
	return jobID + "." + classPath + "." + className
}
