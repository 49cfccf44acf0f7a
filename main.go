package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/cloudflare/tableflip"
	"golang.org/x/sync/errgroup"

	"github.com/qist/camgate/config"
	"github.com/qist/camgate/config/load"
	"github.com/qist/camgate/config/watch"
	"github.com/qist/camgate/logger"
	"github.com/qist/camgate/monitor"
	"github.com/qist/camgate/server"
	httpclient "github.com/qist/camgate/utils/http"
)

func main() {
	flag.Parse()

	if *config.VersionFlag {
		fmt.Println("程序版本:", config.Version)
		return
	}

	// -------------------------
	// 初始化 tableflip Upgrader（仅非 Windows 平台）
	// -------------------------
	var upg *tableflip.Upgrader
	var err error
	isWindows := runtime.GOOS == "windows"
	if !isWindows {
		upg, err = tableflip.New(tableflip.Options{})
		if err != nil {
			log.Fatalf("无法创建升级器: %v", err)
		}
		defer upg.Stop()
	}

	// -------------------------
	// 配置文件加载
	// -------------------------
	configFilePath, err := load.EnsureConfigFile(*config.ConfigFilePath)
	if err != nil {
		log.Fatalf("确保配置文件失败: %v", err)
	}
	*config.ConfigFilePath = configFilePath
	fmt.Println("使用配置文件:", configFilePath)
	if err := load.LoadConfig(configFilePath); err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	config.CfgMu.RLock()
	cfg := config.Cfg
	config.CfgMu.RUnlock()

	config.ServerCtx, config.Cancel = context.WithCancel(context.Background())
	defer config.Cancel()

	g, ctx := errgroup.WithContext(config.ServerCtx)

	// -------------------------
	// 推流服务
	// -------------------------
	client := httpclient.NewHTTPClient(&cfg, nil)
	p := newPipeline(ctx, client)
	if err := p.start(&cfg); err != nil {
		log.Fatalf("启动推流服务失败: %v", err)
	}
	defer p.stop()

	// -------------------------
	// 配置热加载
	// -------------------------
	w := watch.New(configFilePath, watch.Hooks{
		Apply:   p.apply,
		Restart: p.restart,
	})
	g.Go(func() error {
		if err := w.Run(ctx); err != nil {
			logger.LogPrintf("❌ 配置文件监听失败，热加载不可用: %v", err)
		}
		return nil
	})

	// -------------------------
	// 管理接口 & 系统统计
	// -------------------------
	if cfg.Monitor.Enabled {
		ln, err := server.Listen(cfg.Monitor.Listen, upg)
		if err != nil {
			log.Fatalf("监听管理端口失败: %v", err)
		}
		mux := server.NewMux(cfg.Monitor.Path)
		g.Go(func() error { return server.StartHTTPServer(ctx, ln, mux) })
		g.Go(func() error {
			monitor.StartSystemStatsUpdater(ctx, 10*time.Second)
			return nil
		})
	}

	// -------------------------
	// 捕获系统信号：INT/TERM 退出，HUP 热升级
	// -------------------------
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(sigChan)

		var exit <-chan struct{}
		if upg != nil {
			exit = upg.Exit()
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-exit:
				logger.LogPrintf("🔁 新进程已就绪，旧进程退出")
				config.Cancel()
				return nil
			case sig := <-sigChan:
				if sig == syscall.SIGHUP {
					if upg == nil {
						continue
					}
					logger.LogPrintf("🔁 收到 SIGHUP，开始热升级")
					if err := upg.Upgrade(); err != nil {
						logger.LogPrintf("❌ 热升级失败: %v", err)
					}
					continue
				}
				fmt.Println("收到退出信号，开始优雅退出")
				config.Cancel()
				return nil
			}
		}
	})

	// -------------------------
	// tableflip 准备完成（仅非 Windows）
	// -------------------------
	if upg != nil {
		if err := upg.Ready(); err != nil {
			log.Fatalf("升级器准备失败: %v", err)
		}
	}

	if err := g.Wait(); err != nil {
		logger.LogPrintf("❌ 服务异常退出: %v", err)
	}
	fmt.Println("优雅退出完成")
}
