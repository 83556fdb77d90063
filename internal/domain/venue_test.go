package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDirectory() *VenueDirectory {
	return NewVenueDirectory(
		map[string]string{
			"CGV":     "088-111-0001",
			"lotte":   "088-222-0002",
			"megabox": "088-333-0003",
			"other":   "088-999-0009",
		},
		map[string][]string{
			"cgv":     {"CGV"},
			"lotte":   {"롯데시네마", "Lotte Cinema"},
			"megabox": {"메가박스", "Megabox"},
		},
	)
}

func TestVenueDirectoryResolve(t *testing.T) {
	d := testDirectory()
	chain := "megabox"
	unknownChain := "indie"

	cases := []struct {
		name    string
		chainID *string
		display string
		account string
		route   string
	}{
		{name: "chain_id_wins", chainID: &chain, display: "CGV Yongsan", account: "088-333-0003", route: VenueRouteChainID},
		{name: "prefix_case_insensitive", display: "cgv Gangnam", account: "088-111-0001", route: VenueRouteNamePrefix},
		{name: "prefix_korean", display: "롯데시네마 월드타워", account: "088-222-0002", route: VenueRouteNamePrefix},
		{name: "prefix_english", display: "MEGABOX COEX", account: "088-333-0003", route: VenueRouteNamePrefix},
		{name: "unknown_chain_id_falls_back", chainID: &unknownChain, display: "Lotte Cinema Busan", account: "088-222-0002", route: VenueRouteNamePrefix},
		{name: "not_a_prefix", display: "Seoul CGV Annex", account: "088-999-0009", route: VenueRouteOther},
		{name: "empty_name", display: "  ", account: "088-999-0009", route: VenueRouteOther},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			account, route, err := d.Resolve(tc.chainID, tc.display)
			require.NoError(t, err)
			assert.Equal(t, tc.account, account)
			assert.Equal(t, tc.route, route)
		})
	}
}

func TestVenueDirectoryUnresolvedWithoutOther(t *testing.T) {
	d := NewVenueDirectory(map[string]string{"cgv": "088-111-0001"}, map[string][]string{"cgv": {"CGV"}})

	_, _, err := d.Resolve(nil, "Independent Hall")
	require.Error(t, err)

	var pre *PreconditionError
	require.True(t, errors.As(err, &pre))
	assert.Equal(t, ReasonVenueUnresolved, pre.Reason)
}

func TestVenueDirectoryPrefixWithoutAccount(t *testing.T) {
	d := NewVenueDirectory(map[string]string{"other": "088-999-0009"}, map[string][]string{"cgv": {"CGV"}})

	account, route, err := d.Resolve(nil, "CGV Yongsan")
	require.NoError(t, err)
	assert.Equal(t, "088-999-0009", account)
	assert.Equal(t, VenueRouteOther, route)
}
