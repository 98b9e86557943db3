// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package routeplanner

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/wavelink/pkg/commons"
)

func TestNewBalancingParsing(t *testing.T) {
	tests := []struct {
		name    string
		cidrs   []string
		wantErr bool
	}{
		{"v4 block", []string{"192.0.2.0/24"}, false},
		{"bare v4 gets /32", []string{"192.0.2.5"}, false},
		{"v6 block", []string{"2001:db8::/64"}, false},
		{"bare v6 gets /128", []string{"2001:db8::1"}, false},
		{"mixed", []string{"192.0.2.0/24", "2001:db8::/48"}, false},
		{"garbage", []string{"not-an-ip"}, true},
		{"empty", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBalancing(commons.NewNopLogger(), tt.cidrs)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNextAddressStaysInBlock(t *testing.T) {
	p, err := NewBalancing(commons.NewNopLogger(), []string{"192.0.2.0/24"})
	require.NoError(t, err)

	block := netip.MustParsePrefix("192.0.2.0/24")
	for i := 0; i < 100; i++ {
		ip := p.NextAddress()
		require.NotNil(t, ip)
		addr, ok := netip.AddrFromSlice(ip)
		require.True(t, ok)
		assert.True(t, block.Contains(addr.Unmap()), "%s escaped %s", addr, block)
	}
}

func TestNextAddressRotatesBlocks(t *testing.T) {
	p, err := NewBalancing(commons.NewNopLogger(), []string{"192.0.2.0/24", "198.51.100.0/24"})
	require.NoError(t, err)

	seenBlocks := map[string]bool{}
	for i := 0; i < 10; i++ {
		addr, _ := netip.AddrFromSlice(p.NextAddress())
		for _, block := range []string{"192.0.2.0/24", "198.51.100.0/24"} {
			if netip.MustParsePrefix(block).Contains(addr.Unmap()) {
				seenBlocks[block] = true
			}
		}
	}
	assert.Len(t, seenBlocks, 2, "rotation must visit every block")
}

func TestFailingAddressesSkippedAndFreed(t *testing.T) {
	p, err := NewBalancing(commons.NewNopLogger(), []string{"192.0.2.0/30"})
	require.NoError(t, err)

	first, _ := netip.AddrFromSlice(p.NextAddress())
	p.MarkFailed(first.Unmap().String())

	status := p.Status()
	require.NotNil(t, status)
	assert.Len(t, status.Details.FailingAddresses, 1)

	p.FreeAddress(first.Unmap().String())
	assert.Empty(t, p.Status().Details.FailingAddresses)

	p.MarkFailed("192.0.2.1")
	p.MarkFailed("192.0.2.2")
	p.FreeAll()
	assert.Empty(t, p.Status().Details.FailingAddresses)
}

func TestStatusSchema(t *testing.T) {
	p, err := NewBalancing(commons.NewNopLogger(), []string{"192.0.2.0/24", "2001:db8::/64"})
	require.NoError(t, err)

	status := p.Status()
	require.NotNil(t, status)
	assert.Equal(t, "BalancingIpRoutePlanner", status.Class)
	require.Len(t, status.Details.IPBlocks, 2)
	assert.Equal(t, "Inet4Address", status.Details.IPBlocks[0].Type)
	assert.Equal(t, "Inet6Address", status.Details.IPBlocks[1].Type)
}

func TestDisabledPlanner(t *testing.T) {
	var p Planner = Disabled{}
	assert.Nil(t, p.NextAddress())
	assert.Nil(t, p.Status())
}
