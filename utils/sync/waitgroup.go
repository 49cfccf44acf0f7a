package tsync

import (
	"runtime/debug"
	"sync"

	"github.com/qist/camgate/logger"
)

// WaitGroup 的 Go 会捕获 panic，避免后台任务拖垮推流进程
type WaitGroup struct {
	sync.WaitGroup
	panics int64
	mu     sync.Mutex
}

func (wg *WaitGroup) Go(f func()) {
	wg.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				wg.mu.Lock()
				wg.panics++
				wg.mu.Unlock()
				logger.LogPrintf("[WaitGroup.Go] goroutine panic: %v\n%s", r, debug.Stack())
			}
			wg.Done()
		}()

		f()
	}()
}

// Panics 已捕获的 panic 次数
func (wg *WaitGroup) Panics() int64 {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.panics
}
