package peer

import (
	"encoding/json"
	"fmt"
	"os"
)

// PartyEntry is one row of the party-address file: {address, headers?, petnet?}.
type PartyEntry struct {
	Address string            `json:"address"`
	Headers map[string]string `json:"headers,omitempty"`
	Petnet  []struct {
		URL string `json:"url"`
	} `json:"petnet,omitempty"`
}

// PartyConfig maps party name to its PartyEntry, loaded once from a JSON
// file at startup.
type PartyConfig map[string]PartyEntry

// LoadPartyConfig reads the party-address document from path.
func LoadPartyConfig(path string) (PartyConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read party config %s: %w", path, err)
	}
	var cfg PartyConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse party config %s: %w", path, err)
	}
	return cfg, nil
}
