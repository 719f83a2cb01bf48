package netdesc

import (
	"fmt"
	"net/url"
)

// ConfigAddress resolves party addresses from a simple name->address map,
// matching the shape of the party-address JSON file's "address" field (a
// base URL for agent mode, or a bare host for socket mode).
type ConfigAddress map[string]string

func (c ConfigAddress) HostPort(party string) (string, error) {
	addr, ok := c[party]
	if !ok {
		return "", fmt.Errorf("netdesc: no address configured for party %q", party)
	}
	u, err := url.Parse(addr)
	if err == nil && u.Hostname() != "" {
		return u.Hostname(), nil
	}
	return addr, nil
}

func (c ConfigAddress) AgentURL(party string) (string, error) {
	addr, ok := c[party]
	if !ok {
		return "", fmt.Errorf("netdesc: no address configured for party %q", party)
	}
	return addr, nil
}
