package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// SystemStats 主机资源快照
type SystemStats struct {
	CPUUsage      float64
	CPUCount      int
	MemoryUsage   uint64
	MemoryTotal   uint64
	MemoryPercent float64
	InboundBytes  uint64
	OutboundBytes uint64
	LastUpdate    time.Time
	mu            sync.RWMutex
}

// 全局系统统计实例
var GlobalSystemStats = &SystemStats{}

// Snapshot 返回不含锁的副本
func (s *SystemStats) Snapshot() *SystemStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &SystemStats{
		CPUUsage:      s.CPUUsage,
		CPUCount:      s.CPUCount,
		MemoryUsage:   s.MemoryUsage,
		MemoryTotal:   s.MemoryTotal,
		MemoryPercent: s.MemoryPercent,
		InboundBytes:  s.InboundBytes,
		OutboundBytes: s.OutboundBytes,
		LastUpdate:    s.LastUpdate,
	}
}

// StartSystemStatsUpdater 定时采集系统资源直到 ctx 结束
func StartSystemStatsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		GlobalSystemStats.update()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *SystemStats) update() {
	// CPU 使用率
	cpuUsage := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuUsage = pct[0]
	}
	cpuCount, _ := cpu.Counts(true)

	// 内存
	var memUsed, memTotal uint64
	var memPercent float64
	if vmem, err := mem.VirtualMemory(); err == nil && vmem != nil {
		memUsed, memTotal, memPercent = vmem.Used, vmem.Total, vmem.UsedPercent
	}

	// 网络流量
	var totalIn, totalOut uint64
	if counters, err := net.IOCounters(false); err == nil {
		for _, c := range counters {
			totalIn += c.BytesRecv
			totalOut += c.BytesSent
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.CPUUsage = cpuUsage
	s.CPUCount = cpuCount
	s.MemoryUsage = memUsed
	s.MemoryTotal = memTotal
	s.MemoryPercent = memPercent
	s.InboundBytes = totalIn
	s.OutboundBytes = totalOut
	s.LastUpdate = time.Now()
}
