// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package routeplanner balances upstream fetches across a pool of local
// IP addresses parsed from configured CIDR blocks.
package routeplanner

import (
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/rapidaai/wavelink/pkg/commons"
)

// Planner hands out local bind addresses for outbound source fetches.
type Planner interface {
	// NextAddress returns the next address, or nil when planning is off.
	NextAddress() net.IP
	// MarkFailed records an address that produced upstream failures.
	MarkFailed(address string)
	// FreeAddress clears one failing address.
	FreeAddress(address string)
	// FreeAll clears the failing set.
	FreeAll()
	// Status renders the REST status payload.
	Status() *Status
}

// Status mirrors the Lavalink routeplanner status schema.
type Status struct {
	Class   string   `json:"class"`
	Details *Details `json:"details"`
}

type Details struct {
	IPBlocks         []IPBlock        `json:"ipBlocks"`
	FailingAddresses []FailingAddress `json:"failingAddresses"`
}

type IPBlock struct {
	Type string `json:"type"`
	Size string `json:"size"`
}

type FailingAddress struct {
	Address     string `json:"failingAddress"`
	Timestamp   int64  `json:"failingTimestamp"`
	FailingTime string `json:"failingTime"`
}

// Disabled is the nil planner used when no CIDRs are configured.
type Disabled struct{}

func (Disabled) NextAddress() net.IP     { return nil }
func (Disabled) MarkFailed(string)       {}
func (Disabled) FreeAddress(string)      {}
func (Disabled) FreeAll()                {}
func (Disabled) Status() *Status         { return nil }

// Balancing rotates across all configured blocks, stepping through each
// block with a randomised stride so bans do not burn contiguous ranges.
type Balancing struct {
	logger commons.Logger
	blocks []netip.Prefix

	mu         sync.Mutex
	blockIndex int
	ipIndices  []uint64
	failing    map[string]time.Time
}

// NewBalancing parses CIDRs; bare addresses get /32 or /128 appended.
func NewBalancing(logger commons.Logger, cidrs []string) (*Balancing, error) {
	if len(cidrs) == 0 {
		return nil, fmt.Errorf("routeplanner requires at least one CIDR")
	}
	p := &Balancing{
		logger:  logger,
		failing: make(map[string]time.Time),
	}
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			addr, aerr := netip.ParseAddr(cidr)
			if aerr != nil {
				return nil, fmt.Errorf("invalid CIDR or IP %q for route planner: %w", cidr, err)
			}
			bits := 32
			if addr.Is6() {
				bits = 128
			}
			prefix = netip.PrefixFrom(addr, bits)
		}
		p.blocks = append(p.blocks, prefix.Masked())
		p.ipIndices = append(p.ipIndices, 0)
	}
	return p, nil
}

func (p *Balancing) NextAddress() net.IP {
	p.mu.Lock()
	defer p.mu.Unlock()

	for range p.blocks {
		blockIdx := p.blockIndex % len(p.blocks)
		p.blockIndex++
		block := p.blocks[blockIdx]

		sizeBits := block.Addr().BitLen() - block.Bits()
		stride := uint64(1)
		if sizeBits > 7 {
			stride = uint64(rand.Intn(10) + 10)
		}
		p.ipIndices[blockIdx] += stride

		addr := offsetAddr(block, p.ipIndices[blockIdx])
		if _, bad := p.failing[addr.String()]; bad {
			continue
		}
		return addr.AsSlice()
	}
	// Every candidate is failing; hand out the first block's base.
	return p.blocks[0].Addr().AsSlice()
}

// offsetAddr adds offset (mod block size) to the block base address.
func offsetAddr(block netip.Prefix, offset uint64) netip.Addr {
	hostBits := block.Addr().BitLen() - block.Bits()
	if hostBits < 64 {
		offset &= (1 << uint(hostBits)) - 1
	}

	raw := block.Addr().As16()
	carry := offset
	for i := 15; i >= 0 && carry > 0; i-- {
		sum := uint64(raw[i]) + (carry & 0xFF)
		raw[i] = byte(sum)
		carry = (carry >> 8) + (sum >> 8)
	}
	addr := netip.AddrFrom16(raw)
	if block.Addr().Is4() {
		return addr.Unmap()
	}
	return addr
}

func (p *Balancing) MarkFailed(address string) {
	p.mu.Lock()
	p.failing[address] = time.Now()
	p.mu.Unlock()
	p.logger.Warnf("routeplanner: marked %s failing", address)
}

func (p *Balancing) FreeAddress(address string) {
	p.mu.Lock()
	delete(p.failing, address)
	p.mu.Unlock()
}

func (p *Balancing) FreeAll() {
	p.mu.Lock()
	p.failing = make(map[string]time.Time)
	p.mu.Unlock()
}

func (p *Balancing) Status() *Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	details := &Details{}
	for _, block := range p.blocks {
		typ := "Inet4Address"
		if block.Addr().Is6() {
			typ = "Inet6Address"
		}
		details.IPBlocks = append(details.IPBlocks, IPBlock{Type: typ, Size: block.String()})
	}
	for addr, when := range p.failing {
		details.FailingAddresses = append(details.FailingAddresses, FailingAddress{
			Address:     addr,
			Timestamp:   when.UnixMilli(),
			FailingTime: when.Format(time.RFC1123),
		})
	}
	return &Status{Class: "BalancingIpRoutePlanner", Details: details}
}
