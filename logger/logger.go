// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Enabled    bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Debug      bool // 输出帧级别的调试日志
}

var logger = struct {
	sync.RWMutex
	enabled bool
	debug   bool
	output  io.Writer
}{
	enabled: false,
	output:  io.Discard,
}

func LogPrintf(format string, v ...interface{}) {
	logger.RLock()
	defer logger.RUnlock()
	if logger.enabled && logger.output != nil {
		fmt.Fprintf(logger.output, time.Now().Format("2006/01/02 15:04:05 ")+format+"\n", v...)
	}
}

// Debugf 仅在 debug 打开时输出
func Debugf(format string, v ...interface{}) {
	logger.RLock()
	defer logger.RUnlock()
	if logger.enabled && logger.debug && logger.output != nil {
		fmt.Fprintf(logger.output, time.Now().Format("2006/01/02 15:04:05 ")+"[debug] "+format+"\n", v...)
	}
}

func SetupLogger(cfg LogConfig) {
	logger.Lock()
	defer logger.Unlock()

	// 旧的滚动文件需要关闭，否则文件句柄泄漏
	if lj, ok := logger.output.(*lumberjack.Logger); ok {
		_ = lj.Close()
	}

	logger.debug = cfg.Debug
	if !cfg.Enabled {
		logger.enabled = false
		logger.output = io.Discard
		return
	}

	logger.enabled = true
	if cfg.File == "" {
		logger.output = os.Stdout
	} else {
		logger.output = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}
}

// SetOutput 直接指定输出，主要给测试使用
func SetOutput(w io.Writer, debug bool) {
	logger.Lock()
	defer logger.Unlock()
	logger.enabled = w != nil
	logger.debug = debug
	if w == nil {
		w = io.Discard
	}
	logger.output = w
}
