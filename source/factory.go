package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/qist/camgate/config"
	"github.com/qist/camgate/logger"
	"github.com/qist/camgate/mjpeg"
)

// Set 由配置构建的全部帧源，Close 释放后台连接
type Set struct {
	Router   *Router
	Throttle *Throttle
	closers  []io.Closer
	counters map[string]func() uint64
}

// FromConfig 按配置构建帧源，rtsp 源会立即在后台开始连接
func FromConfig(ctx context.Context, cfg *config.Config, client *http.Client) (*Set, error) {
	set := &Set{counters: make(map[string]func() uint64)}
	fallback, err := set.build(ctx, "default", cfg.Source.SourceConfig, client)
	if err != nil {
		return nil, err
	}
	set.Router = NewRouter(fallback)

	paths := make([]string, 0, len(cfg.Source.Routes))
	for p := range cfg.Source.Routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		src, err := set.build(ctx, p, cfg.Source.Routes[p], client)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("路由 %s: %w", p, err)
		}
		set.Router.Handle(p, src)
	}

	set.Throttle = NewThrottle(ctx, set.Router.Frame, cfg.Server.MaxFPS)
	set.counters["throttle_waits"] = func() uint64 { return uint64(set.Throttle.Waited()) }
	return set, nil
}

func (s *Set) build(ctx context.Context, name string, sc config.SourceConfig, client *http.Client) (mjpeg.FrameSource, error) {
	switch sc.Type {
	case config.SourcePattern, "":
		p := NewPattern(sc.Width, sc.Height, sc.Label)
		s.counters["pattern_frames "+name] = p.Frames
		return p.Frame, nil
	case config.SourceDir:
		return NewDir(sc.Dir).Frame, nil
	case config.SourceSnapshot:
		return NewSnapshot(ctx, sc.URL, client).Frame, nil
	case config.SourceRTSP:
		r := NewRTSP(sc.URL)
		r.Start(ctx)
		s.closers = append(s.closers, r)
		s.counters["rtsp_received "+name] = r.Received
		return r.Frame, nil
	default:
		return nil, fmt.Errorf("未知的帧源类型: %q", sc.Type)
	}
}

// Frame 推流使用的入口：限速后按路径分发
func (s *Set) Frame(path string) (mjpeg.Frame, error) {
	return s.Throttle.Frame(path)
}

// Stats 各帧源的计数，供状态页展示
func (s *Set) Stats() map[string]uint64 {
	m := make(map[string]uint64, len(s.counters))
	for k, fn := range s.counters {
		m[k] = fn()
	}
	return m
}

func (s *Set) Close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			logger.LogPrintf("❌ 关闭帧源失败: %v", err)
		}
	}
	s.closers = nil
}
