package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qist/camgate/config"
	"github.com/qist/camgate/config/load"
)

const baseConfig = `
server:
  port: 9100
  quality: 70
source:
  type: pattern
log:
  enabled: false
`

type recorder struct {
	applied   chan [2]int
	restarted chan int
}

func newRecorder() *recorder {
	return &recorder{applied: make(chan [2]int, 4), restarted: make(chan int, 4)}
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		Apply: func(old, cur *config.Config) {
			r.applied <- [2]int{old.Server.Quality, cur.Server.Quality}
		},
		Restart: func(cur *config.Config) {
			r.restarted <- cur.Server.Port
		},
	}
}

// rewrite 写入新内容并把修改时间推后，保证 ModTime 单调递增
func rewrite(t *testing.T, path, body string, offset time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("写配置文件失败: %v", err)
	}
	mt := time.Now().Add(offset)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatalf("修改时间失败: %v", err)
	}
}

func setup(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(baseConfig), 0o644); err != nil {
		t.Fatalf("写配置文件失败: %v", err)
	}
	if err := load.LoadConfig(path); err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	return path
}

func TestReloadDispatch(t *testing.T) {
	path := setup(t)
	rec := newRecorder()
	w := New(path, rec.hooks())

	// 未修改的文件不触发
	w.Reload()
	select {
	case <-rec.applied:
		t.Fatal("文件未修改却触发了 Apply")
	default:
	}

	rewrite(t, path, `
server:
  port: 9100
  quality: 40
source:
  type: pattern
log:
  enabled: false
`, time.Second)
	w.Reload()
	select {
	case q := <-rec.applied:
		if q != [2]int{70, 40} {
			t.Fatalf("Apply 参数 %v", q)
		}
	default:
		t.Fatal("质量修改应走 Apply")
	}

	rewrite(t, path, `
server:
  port: 9200
  quality: 40
source:
  type: pattern
log:
  enabled: false
`, 2*time.Second)
	w.Reload()
	select {
	case port := <-rec.restarted:
		if port != 9200 {
			t.Fatalf("Restart 端口 %d", port)
		}
	default:
		t.Fatal("端口修改应走 Restart")
	}

	config.CfgMu.RLock()
	port := config.Cfg.Server.Port
	config.CfgMu.RUnlock()
	if port != 9200 {
		t.Fatalf("全局配置未更新: %d", port)
	}
}

func TestReloadInvalidKeepsConfig(t *testing.T) {
	path := setup(t)
	rec := newRecorder()
	w := New(path, rec.hooks())

	rewrite(t, path, "server:\n  quality: 500\n", time.Second)
	w.Reload()

	select {
	case <-rec.applied:
		t.Fatal("无效配置不应被应用")
	case <-rec.restarted:
		t.Fatal("无效配置不应触发重启")
	default:
	}
	config.CfgMu.RLock()
	q := config.Cfg.Server.Quality
	config.CfgMu.RUnlock()
	if q != 70 {
		t.Fatalf("无效配置覆盖了全局配置: %d", q)
	}
}

func TestRunPicksUpWrites(t *testing.T) {
	path := setup(t)
	rec := newRecorder()
	w := New(path, rec.hooks())
	w.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// 等待监听建立后再写入
	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, `
server:
  port: 9100
  quality: 55
source:
  type: pattern
log:
  enabled: false
`, time.Second)

	select {
	case q := <-rec.applied:
		if q[1] != 55 {
			t.Fatalf("Apply 新质量 %d", q[1])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("等待文件变更事件超时")
	}
}
