package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogPrintfDisabled(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, false)
	SetupLogger(LogConfig{Enabled: false})
	LogPrintf("不应该输出 %d", 1)
	if buf.Len() != 0 {
		t.Errorf("日志关闭时仍有输出: %q", buf.String())
	}
}

func TestDebugfGate(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, false)
	Debugf("frame %d", 1)
	if buf.Len() != 0 {
		t.Errorf("debug 关闭时仍有输出: %q", buf.String())
	}

	SetOutput(&buf, true)
	Debugf("frame %d", 2)
	if !strings.Contains(buf.String(), "[debug] frame 2") {
		t.Errorf("debug 输出不正确: %q", buf.String())
	}
	SetOutput(nil, false)
}

func TestLogStreamRequest(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, false)
	defer SetOutput(nil, false)

	LogStreamRequest("", "GET", "/", "HTTP/1.0", 200)
	if !strings.HasSuffix(buf.String(), "[-] GET / HTTP/1.0 200\n") {
		t.Errorf("请求日志格式不正确: %q", buf.String())
	}
}

func TestSetupLoggerFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "camgate.log")
	SetupLogger(LogConfig{Enabled: true, File: file, MaxSizeMB: 1})
	LogPrintf("写入文件 %s", "ok")
	// 关闭滚动文件句柄
	SetupLogger(LogConfig{Enabled: false})

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(data), "写入文件 ok") {
		t.Errorf("日志文件内容不正确: %q", data)
	}
}
