package monitor

import (
	"sync"
	"time"
)

// Session 一次推流会话（GET 成功到 teardown）
type Session struct {
	Client    string
	Path      string
	StartedAt time.Time
	EndedAt   time.Time
	Frames    uint64
	AvgFPS    float64
}

// Duration 会话时长，未结束时计算到当前
func (s Session) Duration() time.Duration {
	end := s.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartedAt)
}

// SessionLog 记录当前会话和最近结束的会话
type SessionLog struct {
	mu      sync.RWMutex
	limit   int
	active  *Session
	history []Session // 最新的在前
}

// 全局会话记录
var Sessions = NewSessionLog(20)

func NewSessionLog(limit int) *SessionLog {
	if limit <= 0 {
		limit = 1
	}
	return &SessionLog{limit: limit}
}

// Begin 开始新会话，上一条未结束的会话按当前时间结束
func (l *SessionLog) Begin(client, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if l.active != nil {
		l.finish(now, l.active.Frames, l.active.AvgFPS)
	}
	l.active = &Session{Client: client, Path: path, StartedAt: now}
}

// End 结束当前会话并写入历史
func (l *SessionLog) End(frames uint64, avgFPS float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == nil {
		return
	}
	l.finish(time.Now(), frames, avgFPS)
}

func (l *SessionLog) finish(at time.Time, frames uint64, avgFPS float64) {
	s := *l.active
	s.EndedAt = at
	s.Frames = frames
	s.AvgFPS = avgFPS
	l.active = nil

	l.history = append([]Session{s}, l.history...)
	if len(l.history) > l.limit {
		l.history = l.history[:l.limit]
	}
}

// Active 返回当前会话的副本
func (l *SessionLog) Active() (Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.active == nil {
		return Session{}, false
	}
	return *l.active, true
}

func (l *SessionLog) Recent() []Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Session(nil), l.history...)
}
