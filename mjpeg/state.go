package mjpeg

import (
	"sync"
	"time"
)

// State 服务所处状态
type State int

const (
	Disconnected State = iota
	ConnectedIdle
	Streaming
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectedIdle:
		return "connected_idle"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// MarshalText 让 JSON 输出状态名
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status 对外可见的运行状态快照
type Status struct {
	State       State     `json:"state"`
	Addr        string    `json:"addr"`
	ClientAddr  string    `json:"client_addr,omitempty"`
	Path        string    `json:"path,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	FramesSent  uint64    `json:"frames_sent"`  // 当前连接
	BytesSent   uint64    `json:"bytes_sent"`   // 当前连接
	Sessions    uint64    `json:"sessions"`     // 进入推流状态的连接数
	TotalFrames uint64    `json:"total_frames"` // 累计
}

// statusBox 由循环写入、监控读取
type statusBox struct {
	mu sync.RWMutex
	st Status
}

func (b *statusBox) load() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.st
}

func (b *statusBox) update(fn func(st *Status)) {
	b.mu.Lock()
	fn(&b.st)
	b.mu.Unlock()
}
