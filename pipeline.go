package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/qist/camgate/config"
	"github.com/qist/camgate/logger"
	"github.com/qist/camgate/mjpeg"
	"github.com/qist/camgate/monitor"
	"github.com/qist/camgate/netif"
	"github.com/qist/camgate/source"
	tsync "github.com/qist/camgate/utils/sync"
)

// pipeline 推流服务 + 帧源，配置变更时整体重建
type pipeline struct {
	parent context.Context
	client *http.Client

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      tsync.WaitGroup
	srv     *mjpeg.Server
	sources *source.Set
	quality *source.Quality
}

func newPipeline(parent context.Context, client *http.Client) *pipeline {
	return &pipeline{parent: parent, client: client}
}

// selectInterface 指定网卡名时按名称取地址，否则使用固定地址
func selectInterface(cfg *config.Config) (mjpeg.NetworkInterface, error) {
	if cfg.Server.Interface != "" {
		return netif.ByName(cfg.Server.Interface), nil
	}
	return netif.ParseStatic(cfg.Server.Address)
}

func (p *pipeline) start(cfg *config.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startLocked(cfg)
}

func (p *pipeline) startLocked(cfg *config.Config) error {
	nif, err := selectInterface(cfg)
	if err != nil {
		return err
	}
	srv, err := mjpeg.New(nif, cfg.Server.Port, mjpeg.Options{
		Boundary:      cfg.Server.Boundary,
		ServerName:    cfg.Server.ServerName,
		AcceptTimeout: cfg.Server.AcceptTimeout,
		SendTimeout:   cfg.Server.SendTimeout,
		PollTimeout:   cfg.Server.PollTimeout,
		ReadChunk:     cfg.Server.ReadChunk,
	})
	if err != nil {
		return fmt.Errorf("创建推流服务失败: %w", err)
	}

	ctx, cancel := context.WithCancel(p.parent)
	set, err := source.FromConfig(ctx, cfg, p.client)
	if err != nil {
		cancel()
		return fmt.Errorf("创建帧源失败: %w", err)
	}
	quality := source.NewQuality(countFrames(set.Frame), cfg.Server.Quality)

	srv.RegisterSetupCallback(func(path string) {
		monitor.Clock.Reset()
		monitor.Sessions.Begin(srv.Status().ClientAddr, path)
		logger.LogPrintf("🎬 Opening %s", path)
	})
	srv.RegisterTeardownCallback(func(path string) {
		monitor.Sessions.End(monitor.Clock.Frames(), monitor.Clock.FPS())
		logger.LogPrintf("🛑 Closing %s", path)
	})
	monitor.SetStream(srv)
	monitor.SetCounters(func() map[string]uint64 {
		m := set.Stats()
		m["background_panics"] = uint64(p.wg.Panics())
		return m
	})

	p.srv, p.sources, p.quality, p.cancel = srv, set, quality, cancel
	defaultQuality := cfg.Server.Quality
	p.wg.Go(func() {
		defer set.Close()
		if err := srv.Stream(ctx, quality.Frame, defaultQuality); err != nil {
			logger.Debugf("推流循环退出: %v", err)
		}
	})
	return nil
}

func (p *pipeline) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *pipeline) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.wg.Wait()
	p.srv, p.sources, p.quality = nil, nil, nil
}

// restart 供配置监听在推流相关配置变化时调用
func (p *pipeline) restart(cfg *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	if p.parent.Err() != nil {
		return
	}
	if err := p.startLocked(cfg); err != nil {
		logger.LogPrintf("❌ 重启推流服务失败: %v", err)
		return
	}
	logger.LogPrintf("✅ 推流服务已按新配置重启")
}

// apply 在线修改质量和帧率上限
func (p *pipeline) apply(old, cur *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.srv == nil {
		return
	}
	if old.Server.Quality != cur.Server.Quality {
		p.quality.Set(cur.Server.Quality)
		logger.LogPrintf("🔧 JPEG 质量: %d -> %d", old.Server.Quality, cur.Server.Quality)
	}
	if old.Server.MaxFPS != cur.Server.MaxFPS {
		p.sources.Throttle.SetFPS(cur.Server.MaxFPS)
		logger.LogPrintf("🔧 帧率上限: %.1f -> %.1f", old.Server.MaxFPS, cur.Server.MaxFPS)
	}
}

// countFrames 每取到一帧计一次时钟，调试日志输出帧率
func countFrames(src mjpeg.FrameSource) mjpeg.FrameSource {
	return func(path string) (mjpeg.Frame, error) {
		f, err := src(path)
		if err != nil {
			return nil, err
		}
		monitor.Clock.Tick()
		logger.Debugf("📷 %s %.2f fps", path, monitor.Clock.FPS())
		return f, nil
	}
}
