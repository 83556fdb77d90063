package domain

import (
	"sort"
	"strings"
)

// Venue routes used when resolving a payout account.
const (
	VenueRouteChainID    = "chain-id"
	VenueRouteNamePrefix = "name-prefix"
	VenueRouteOther      = "other"
)

// VenueDirectory resolves the payout account a venue is paid into.
// Accounts are keyed by a stable chain identifier. The display-name prefix
// table is a fallback for venues that have no chain id yet; prefix matching is
// fragile and every hit is reported so it can be replaced by a chain id.
type VenueDirectory struct {
	accounts map[string]string
	prefixes []venuePrefix
}

type venuePrefix struct {
	prefix string
	chain  string
}

// NewVenueDirectory builds a directory from chain->account and chain->name prefixes.
func NewVenueDirectory(accounts map[string]string, prefixes map[string][]string) *VenueDirectory {
	d := &VenueDirectory{accounts: make(map[string]string, len(accounts))}
	for chain, account := range accounts {
		chain = strings.ToLower(strings.TrimSpace(chain))
		account = strings.TrimSpace(account)
		if chain == "" || account == "" {
			continue
		}
		d.accounts[chain] = account
	}
	for chain, list := range prefixes {
		chain = strings.ToLower(strings.TrimSpace(chain))
		for _, p := range list {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" {
				continue
			}
			d.prefixes = append(d.prefixes, venuePrefix{prefix: p, chain: chain})
		}
	}
	// Longest prefix wins; ties break on chain name so resolution is deterministic.
	sort.Slice(d.prefixes, func(i, j int) bool {
		if len(d.prefixes[i].prefix) != len(d.prefixes[j].prefix) {
			return len(d.prefixes[i].prefix) > len(d.prefixes[j].prefix)
		}
		return d.prefixes[i].chain < d.prefixes[j].chain
	})
	return d
}

// Resolve returns the payout account for a venue and the route that produced it.
func (d *VenueDirectory) Resolve(chainID *string, displayName string) (account, route string, err error) {
	if chainID != nil {
		key := strings.ToLower(strings.TrimSpace(*chainID))
		if acc, ok := d.accounts[key]; ok && key != "" {
			return acc, VenueRouteChainID, nil
		}
	}

	name := strings.ToLower(strings.TrimSpace(displayName))
	if name != "" {
		for _, p := range d.prefixes {
			if !strings.HasPrefix(name, p.prefix) {
				continue
			}
			if acc, ok := d.accounts[p.chain]; ok {
				return acc, VenueRouteNamePrefix, nil
			}
		}
	}

	if acc, ok := d.accounts[OtherVenueChain]; ok {
		return acc, VenueRouteOther, nil
	}
	return "", "", NewPrecondition(ReasonVenueUnresolved, displayName)
}
