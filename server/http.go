package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/libp2p/go-reuseport"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qist/camgate/logger"
	"github.com/qist/camgate/monitor"
)

// NewMux 管理端路由：状态页、prometheus 指标、pprof
func NewMux(monitorPath string) *http.ServeMux {
	if monitorPath == "" {
		monitorPath = "/status"
	}
	mux := http.NewServeMux()
	mux.Handle(monitorPath, SecurityHeaders(http.HandlerFunc(monitor.HandleMonitor)))
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Listen 优先从 tableflip 继承监听，Windows 等无升级器时走 SO_REUSEPORT
func Listen(addr string, upg *tableflip.Upgrader) (net.Listener, error) {
	if upg != nil {
		return upg.Listen("tcp", addr)
	}
	if reuseport.Available() {
		return reuseport.Listen("tcp", addr)
	}
	return net.Listen("tcp", addr)
}

// StartHTTPServer 在 ln 上提供管理接口，ctx 结束后优雅关闭
func StartHTTPServer(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.LogPrintf("🚀 启动管理服务 http://%s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.LogPrintf("❌ 管理服务关闭失败: %v", err)
		return err
	}
	logger.LogPrintf("✅ 管理服务已关闭")
	return nil
}
