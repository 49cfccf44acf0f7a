package config

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ConfigFilePath *string
	VersionFlag    *bool
	ServerCtx      context.Context
	Cancel         context.CancelFunc
	LogConfigMutex sync.Mutex
	Cfg            Config
	CfgMu          sync.RWMutex
	StartTime      time.Time // 程序启动时间
)

func init() {
	ConfigFilePath = flag.String("config", "config.yaml", "YAML配置文件路径")
	VersionFlag = flag.Bool("version", false, "显示程序版本")
	ServerCtx, Cancel = context.WithCancel(context.Background())
	StartTime = time.Now()
}

// 帧源类型
const (
	SourcePattern  = "pattern"  // gg 绘制的测试图
	SourceDir      = "dir"      // 目录中的 JPEG 文件
	SourceSnapshot = "snapshot" // 上游 HTTP 快照
	SourceRTSP     = "rtsp"     // RTSP MJPEG 摄像头
)

// Config 主配置结构
type Config struct {
	Server struct {
		Interface     string        `yaml:"interface"`      // 网卡名称，留空则使用 address
		Address       string        `yaml:"address"`        // 固定监听地址
		Port          int           `yaml:"port"`           // 流端口，默认 8080
		Boundary      string        `yaml:"boundary"`       // multipart 分隔符
		ServerName    string        `yaml:"server_name"`    // Server 响应头
		Quality       int           `yaml:"quality"`        // JPEG 质量 1-100
		MaxFPS        float64       `yaml:"max_fps"`        // 帧率上限，0 表示不限制
		AcceptTimeout time.Duration `yaml:"accept_timeout"` // 等待连接超时
		SendTimeout   time.Duration `yaml:"send_timeout"`   // 发送超时
		PollTimeout   time.Duration `yaml:"poll_timeout"`   // 请求轮询超时
		ReadChunk     int           `yaml:"read_chunk"`     // 单次读取字节数
	} `yaml:"server"`

	Source struct {
		SourceConfig `yaml:",inline"`
		Routes       map[string]SourceConfig `yaml:"routes"` // 按请求路径选择帧源
	} `yaml:"source"`

	Log struct {
		Enabled    bool   `yaml:"enabled"`    // 启用日志
		File       string `yaml:"file"`       // 日志文件
		MaxSizeMB  int    `yaml:"maxsize"`    // 日志文件最大大小
		MaxBackups int    `yaml:"maxbackups"` // 最大备份数量
		MaxAgeDays int    `yaml:"maxage"`     // 最大保留天数
		Compress   bool   `yaml:"compress"`   // 启用压缩
		Debug      bool   `yaml:"debug"`      // 帧级别调试日志
	} `yaml:"log"`

	HTTP struct {
		Timeout               time.Duration `yaml:"timeout"`                 // 整体请求超时
		ConnectTimeout        time.Duration `yaml:"connect_timeout"`         // TCP连接超时
		KeepAlive             time.Duration `yaml:"keepalive"`               // TCP保活
		ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"` // 等响应头超时
		IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout"`       // 空闲连接超时
		MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host"` // 每个主机的最大空闲连接数
		InsecureSkipVerify    *bool         `yaml:"insecure_skip_verify"`    // 是否跳过TLS验证
	} `yaml:"http"`

	Monitor struct {
		Enabled bool   `yaml:"enabled"` // 启用管理端口
		Listen  string `yaml:"listen"`  // 管理端口地址
		Path    string `yaml:"path"`    // 监控路径
	} `yaml:"monitor"`

	Reload int `yaml:"reload"` // 配置文件变更防抖秒数
}

// SourceConfig 单个帧源配置
type SourceConfig struct {
	Type   string `yaml:"type"`   // pattern/dir/snapshot/rtsp
	Width  int    `yaml:"width"`  // pattern 宽度
	Height int    `yaml:"height"` // pattern 高度
	Label  string `yaml:"label"`  // pattern 上显示的文字
	Dir    string `yaml:"dir"`    // dir 源目录
	URL    string `yaml:"url"`    // snapshot/rtsp 地址
}

func ptr[T any](v T) *T {
	return &v
}

func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Boundary == "" {
		c.Server.Boundary = "OpenMVCamMJPEG"
	}
	if c.Server.ServerName == "" {
		c.Server.ServerName = "OpenMV Cam"
	}
	if c.Server.Quality == 0 {
		c.Server.Quality = 70
	}
	if c.Server.AcceptTimeout <= 0 {
		c.Server.AcceptTimeout = 5 * time.Second
	}
	if c.Server.SendTimeout <= 0 {
		c.Server.SendTimeout = 5 * time.Second
	}
	if c.Server.PollTimeout <= 0 {
		c.Server.PollTimeout = 10 * time.Millisecond
	}
	if c.Server.ReadChunk <= 0 {
		c.Server.ReadChunk = 1400
	}

	if c.Source.Type == "" {
		c.Source.Type = SourcePattern
	}
	if c.Source.Width <= 0 {
		c.Source.Width = 640
	}
	if c.Source.Height <= 0 {
		c.Source.Height = 480
	}
	for path, route := range c.Source.Routes {
		if route.Width <= 0 {
			route.Width = c.Source.Width
		}
		if route.Height <= 0 {
			route.Height = c.Source.Height
		}
		c.Source.Routes[path] = route
	}

	// HTTP 默认值，仅 snapshot 源使用
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 3 * time.Second
	}
	if c.HTTP.ConnectTimeout == 0 {
		c.HTTP.ConnectTimeout = 2 * time.Second
	}
	if c.HTTP.KeepAlive == 0 {
		c.HTTP.KeepAlive = 10 * time.Second
	}
	if c.HTTP.ResponseHeaderTimeout == 0 {
		c.HTTP.ResponseHeaderTimeout = 2 * time.Second
	}
	if c.HTTP.IdleConnTimeout == 0 {
		c.HTTP.IdleConnTimeout = 30 * time.Second
	}
	if c.HTTP.MaxIdleConnsPerHost == 0 {
		c.HTTP.MaxIdleConnsPerHost = 2
	}
	if c.HTTP.InsecureSkipVerify == nil {
		c.HTTP.InsecureSkipVerify = ptr(false)
	}

	if c.Monitor.Listen == "" {
		c.Monitor.Listen = "127.0.0.1:6060"
	}
	if c.Monitor.Path == "" {
		c.Monitor.Path = "/status"
	}
	if c.Reload <= 0 {
		c.Reload = 1
	}
}

// Validate 校验配置，需在 SetDefaults 之后调用
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("端口超出范围: %d", c.Server.Port))
	}
	if c.Server.Quality < 1 || c.Server.Quality > 100 {
		errs = append(errs, fmt.Errorf("JPEG 质量必须在 1-100 之间: %d", c.Server.Quality))
	}
	if c.Server.MaxFPS < 0 {
		errs = append(errs, fmt.Errorf("max_fps 不能为负数: %v", c.Server.MaxFPS))
	}
	if strings.ContainsAny(c.Server.Boundary, "\r\n ") {
		errs = append(errs, fmt.Errorf("boundary 含有非法字符: %q", c.Server.Boundary))
	}
	if err := c.Source.SourceConfig.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}
	for path, route := range c.Source.Routes {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, fmt.Errorf("路由必须以 / 开头: %q", path))
		}
		if err := route.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("source.routes[%s]: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// Validate 校验单个帧源
func (s SourceConfig) Validate() error {
	switch s.Type {
	case SourcePattern:
		return nil
	case SourceDir:
		if s.Dir == "" {
			return errors.New("dir 源需要配置 dir")
		}
	case SourceSnapshot, SourceRTSP:
		if s.URL == "" {
			return fmt.Errorf("%s 源需要配置 url", s.Type)
		}
	default:
		return fmt.Errorf("未知的帧源类型: %q", s.Type)
	}
	return nil
}

// StreamKey 判断两份配置是否需要重启流服务
func (c *Config) StreamKey() string {
	return fmt.Sprintf("%s|%s|%d|%s|%s|%v|%v|%v|%d|%+v|%v",
		c.Server.Interface, c.Server.Address, c.Server.Port, c.Server.Boundary, c.Server.ServerName,
		c.Server.AcceptTimeout, c.Server.SendTimeout, c.Server.PollTimeout, c.Server.ReadChunk,
		c.Source.SourceConfig, routesKey(c.Source.Routes))
}

func routesKey(routes map[string]SourceConfig) string {
	if len(routes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(routes))
	for k := range routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%+v;", k, routes[k])
	}
	return b.String()
}
