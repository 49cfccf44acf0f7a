package monitor

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/qist/camgate/config"
	"github.com/qist/camgate/mjpeg"
)

// StatusProvider 推流服务的状态来源
type StatusProvider interface {
	Status() mjpeg.Status
}

var stream atomic.Pointer[StatusProvider]

// SetStream 注册当前推流服务，重启后需重新注册
func SetStream(p StatusProvider) {
	if p == nil {
		stream.Store(nil)
		return
	}
	stream.Store(&p)
}

var counters atomic.Pointer[func() map[string]uint64]

// SetCounters 注册额外计数（帧源、后台任务），nil 表示清除
func SetCounters(fn func() map[string]uint64) {
	if fn == nil {
		counters.Store(nil)
		return
	}
	counters.Store(&fn)
}

// 页面数据结构
type StatusData struct {
	Timestamp   time.Time
	Uptime      time.Duration
	Version     string
	Goroutines  int
	HeapAlloc   uint64
	Stream      mjpeg.Status
	FPS         float64
	Active      *Session
	Sessions    []Session
	System      *SystemStats
	Counters    map[string]uint64
	ClientIP    string
	MonitorPath string
}

// HTTP 处理入口
func HandleMonitor(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("server", "camgate")
	if r.Header.Get("Accept") == "application/json" || r.URL.Query().Get("format") == "json" {
		handleJSONRequest(w, r)
		return
	}
	handleHTMLRequest(w, r)
}

func handleJSONRequest(w http.ResponseWriter, r *http.Request) {
	data := prepareStatusData(r)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

var statusTemplate = template.Must(template.New("status").Funcs(template.FuncMap{
	"FormatBytes":    FormatBytes,
	"FormatDuration": FormatDuration,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>camgate 状态监控</title>
<style>
body { font-family: 'Segoe UI', sans-serif; max-width:1000px; margin:20px auto; background:#121212; color:#e0e0e0; }
.header { background:#1f1f1f; padding:20px; border-radius:10px; margin-bottom:20px; }
.header h1 { margin:0; }
.card { background:#1f1f1f; padding:15px; border-radius:8px; margin-bottom:20px; }
.card h3 { margin-top:0; }
.table { width:100%; border-collapse:collapse; }
.table th, .table td { border:1px solid #333; padding:8px; text-align:left; }
.table tr:nth-child(even) { background:#181818; }
.state-streaming { color:#4CAF50; font-weight:bold; }
.state-connected_idle { color:#ff9800; font-weight:bold; }
.state-disconnected { color:#9E9E9E; font-weight:bold; }
</style>
</head>
<body>
<div class="header">
<h1>camgate 状态监控</h1>
<p>更新时间: {{.Timestamp.Format "2006-01-02 15:04:05"}}</p>
</div>

<div class="card">
<h3>推流</h3>
<ul>
<li><strong>状态:</strong> <span class="state-{{.Stream.State}}">{{.Stream.State}}</span></li>
<li><strong>监听地址:</strong> {{.Stream.Addr}}</li>
{{if .Stream.ClientAddr}}<li><strong>客户端:</strong> {{.Stream.ClientAddr}}</li>{{end}}
{{if .Stream.Path}}<li><strong>路径:</strong> {{.Stream.Path}}</li>{{end}}
<li><strong>当前连接:</strong> {{.Stream.FramesSent}} 帧 / {{FormatBytes .Stream.BytesSent}}</li>
<li><strong>帧率:</strong> {{printf "%.2f" .FPS}} fps</li>
<li><strong>累计:</strong> {{.Stream.Sessions}} 次推流 / {{.Stream.TotalFrames}} 帧</li>
</ul>
</div>

<div class="card">
<h3>系统</h3>
<ul>
<li><strong>版本:</strong> {{.Version}}</li>
<li><strong>运行时间:</strong> {{FormatDuration .Uptime}}</li>
<li><strong>Goroutines:</strong> {{.Goroutines}}</li>
<li><strong>堆内存:</strong> {{FormatBytes .HeapAlloc}}</li>
{{with .System}}
<li><strong>CPU 使用率:</strong> {{printf "%.2f%%" .CPUUsage}} ({{.CPUCount}} 核)</li>
<li><strong>内存使用:</strong> {{FormatBytes .MemoryUsage}} / {{FormatBytes .MemoryTotal}}</li>
<li><strong>网络流量:</strong> 入 {{FormatBytes .InboundBytes}} / 出 {{FormatBytes .OutboundBytes}}</li>
{{end}}
<li><strong>客户端IP:</strong> {{.ClientIP}}</li>
</ul>
</div>

{{if .Counters}}
<div class="card">
<h3>计数</h3>
<table class="table">
{{range $name, $v := .Counters}}<tr><td>{{$name}}</td><td>{{$v}}</td></tr>
{{end}}
</table>
</div>
{{end}}

<div class="card">
<h3>最近会话</h3>
<table class="table">
<tr><th>客户端</th><th>路径</th><th>开始</th><th>时长</th><th>帧数</th><th>平均帧率</th></tr>
{{with .Active}}
<tr><td>{{.Client}}</td><td>{{.Path}}</td><td>{{.StartedAt.Format "15:04:05"}}</td><td>{{FormatDuration .Duration}}</td><td>-</td><td>-</td></tr>
{{end}}
{{range .Sessions}}
<tr><td>{{.Client}}</td><td>{{.Path}}</td><td>{{.StartedAt.Format "15:04:05"}}</td><td>{{FormatDuration .Duration}}</td><td>{{.Frames}}</td><td>{{printf "%.2f" .AvgFPS}}</td></tr>
{{end}}
</table>
</div>
</body>
</html>
`))

func handleHTMLRequest(w http.ResponseWriter, r *http.Request) {
	data := prepareStatusData(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func FormatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatDuration 按天/小时/分/秒输出
func FormatDuration(d time.Duration) string {
	total := int64(d.Seconds())
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%d天", days)
	}
	if hours > 0 {
		fmt.Fprintf(&b, "%d小时", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%d分", minutes)
	}
	fmt.Fprintf(&b, "%d秒", seconds)
	return b.String()
}

func prepareStatusData(r *http.Request) StatusData {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var st mjpeg.Status
	if p := stream.Load(); p != nil {
		st = (*p).Status()
	}

	var fps float64
	var active *Session
	if s, ok := Sessions.Active(); ok {
		active = &s
		fps = Clock.FPS()
	}

	var extra map[string]uint64
	if fn := counters.Load(); fn != nil {
		extra = (*fn)()
	}

	config.CfgMu.RLock()
	monitorPath := config.Cfg.Monitor.Path
	config.CfgMu.RUnlock()

	return StatusData{
		Timestamp:   time.Now(),
		Uptime:      time.Since(config.StartTime),
		Version:     config.Version,
		Goroutines:  runtime.NumGoroutine(),
		HeapAlloc:   memStats.HeapAlloc,
		Stream:      st,
		FPS:         fps,
		Active:      active,
		Sessions:    Sessions.Recent(),
		System:      GlobalSystemStats.Snapshot(),
		Counters:    extra,
		ClientIP:    GetClientIP(r),
		MonitorPath: monitorPath,
	}
}

func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xr := r.Header.Get("X-Real-IP"); xr != "" {
		return xr
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
