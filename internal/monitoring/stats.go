// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package monitoring renders the Lavalink stats op from live sessions and
// host metrics.
package monitoring

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gopsproc "github.com/shirou/gopsutil/v3/process"

	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/internal/session"
)

// Collector samples host + process load between stats ticks.
type Collector struct {
	startTime time.Time
	registry  *session.Registry
	statsEvery int
	proc      *gopsproc.Process
}

func NewCollector(registry *session.Registry, statsIntervalSec int) *Collector {
	proc, _ := gopsproc.NewProcess(int32(os.Getpid()))
	return &Collector{
		startTime:  time.Now(),
		registry:   registry,
		statsEvery: statsIntervalSec,
		proc:       proc,
	}
}

// Collect builds one stats payload. When forSession is non-nil the frame
// stats block is included, computed as the per-interval delta of that
// session's actively playing players.
func (c *Collector) Collect(forSession *session.Session) protocol.Stats {
	totalPlayers := 0
	playingPlayers := 0
	for _, s := range c.registry.All() {
		players := s.Players()
		totalPlayers += len(players)
		for _, p := range players {
			if p.IsPlaying() {
				playingPlayers++
			}
		}
	}

	var frameStats *protocol.FrameStats
	if forSession != nil {
		currentSent := forSession.TotalSentHistorical.Load()
		currentNulled := forSession.TotalNulledHistorical.Load()
		playerCount := 0
		for _, p := range forSession.Players() {
			if p.IsPlaying() {
				playerCount++
				sent, nulled := p.FrameCounters()
				currentSent += sent
				currentNulled += nulled
			}
		}

		lastSent := forSession.LastStatsSent.Swap(currentSent)
		lastNulled := forSession.LastStatsNulled.Swap(currentNulled)

		if playerCount != 0 && (lastSent != 0 || lastNulled != 0) {
			sent := int(currentSent - lastSent)
			nulled := int(currentNulled - lastNulled)
			expectedPerPlayer := c.statsEvery * 50
			deficit := playerCount*expectedPerPlayer - (sent + nulled)
			frameStats = &protocol.FrameStats{
				Sent:    sent / playerCount,
				Nulled:  nulled / playerCount,
				Deficit: deficit / playerCount,
			}
		}
	}

	memory := protocol.Memory{}
	if vm, err := mem.VirtualMemory(); err == nil {
		memory.Free = vm.Available
		memory.Reservable = vm.Total
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	memory.Used = ms.Sys
	memory.Allocated = ms.Sys

	cpuStats := protocol.CPU{Cores: runtime.NumCPU()}
	if loads, err := cpu.Percent(0, false); err == nil && len(loads) > 0 {
		cpuStats.SystemLoad = loads[0] / 100
	}
	if c.proc != nil {
		if pct, err := c.proc.CPUPercent(); err == nil {
			cpuStats.LavalinkLoad = clampLoad(pct / 100 / float64(cpuStats.Cores))
		}
	}

	return protocol.Stats{
		Op:             protocol.OpStats,
		Players:        totalPlayers,
		PlayingPlayers: playingPlayers,
		Uptime:         uint64(time.Since(c.startTime).Milliseconds()),
		Memory:         memory,
		CPU:            cpuStats,
		FrameStats:     frameStats,
	}
}

func clampLoad(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
