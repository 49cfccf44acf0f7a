package monitor

import (
	"sync"
	"time"
)

// FPSClock 统计会话内的帧数与帧率，推流开始时 Reset
type FPSClock struct {
	mu     sync.Mutex
	now    func() time.Time
	start  time.Time
	last   time.Time
	frames uint64
	inst   float64 // 最近两帧间隔换算的瞬时帧率
}

// 全局帧率时钟
var Clock = NewFPSClock()

func NewFPSClock() *FPSClock {
	c := &FPSClock{now: time.Now}
	c.Reset()
	return c
}

func (c *FPSClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = c.now()
	c.last = time.Time{}
	c.frames = 0
	c.inst = 0
}

// Tick 记录一帧，返回瞬时帧率
func (c *FPSClock) Tick() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !c.last.IsZero() {
		if d := now.Sub(c.last); d > 0 {
			c.inst = float64(time.Second) / float64(d)
		}
	}
	c.last = now
	c.frames++
	return c.inst
}

// FPS 自 Reset 起的平均帧率
func (c *FPSClock) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := c.now().Sub(c.start)
	if c.frames == 0 || elapsed <= 0 {
		return 0
	}
	return float64(c.frames) / elapsed.Seconds()
}

func (c *FPSClock) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}
