package mjpeg

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/qist/camgate/logger"
)

const (
	DefaultPort       = 8080
	DefaultBoundary   = "OpenMVCamMJPEG"
	DefaultServerName = "OpenMV Cam"

	defaultAcceptTimeout = 5 * time.Second
	defaultSendTimeout   = 5 * time.Second
	defaultPollTimeout   = 10 * time.Millisecond
	defaultReadChunk     = 1400
)

// NetworkInterface 提供当前网卡地址（类似 ifconfig 的第一项）
type NetworkInterface interface {
	IfConfig() (net.IP, error)
}

// Frame 一帧图像，可按质量编码为 JPEG
type Frame interface {
	JPEG(quality int) ([]byte, error)
}

// FrameSource 按请求路径返回下一帧，在推流循环里同步调用
type FrameSource func(path string) (Frame, error)

// Options 可选参数，零值使用默认值
type Options struct {
	Boundary      string
	ServerName    string
	AcceptTimeout time.Duration
	SendTimeout   time.Duration
	PollTimeout   time.Duration
	ReadChunk     int
}

func (o *Options) setDefaults() {
	if o.Boundary == "" {
		o.Boundary = DefaultBoundary
	}
	if o.ServerName == "" {
		o.ServerName = DefaultServerName
	}
	if o.AcceptTimeout <= 0 {
		o.AcceptTimeout = defaultAcceptTimeout
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = defaultSendTimeout
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = defaultPollTimeout
	}
	if o.ReadChunk <= 0 {
		o.ReadChunk = defaultReadChunk
	}
}

// Server 单客户端 MJPEG 推流服务，Stream 只能在一个 goroutine 中运行
type Server struct {
	addr string
	opts Options

	conn       net.Conn
	clientAddr net.Addr
	path       string
	playing    bool

	onSetup    func(path string)
	onTeardown func(path string)

	buf    []byte
	status statusBox
}

// New 根据网卡当前地址和端口创建服务，port 为 0 时使用 8080，
// opts 可省略，只取第一个
func New(nif NetworkInterface, port int, opts ...Options) (*Server, error) {
	if nif == nil {
		return nil, errors.New("mjpeg: nil network interface")
	}
	if port == 0 {
		port = DefaultPort
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("mjpeg: invalid port %d", port)
	}
	ip, err := nif.IfConfig()
	if err != nil {
		return nil, fmt.Errorf("获取网卡地址失败: %w", err)
	}
	host := ""
	if ip != nil {
		host = ip.String()
	}
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	o.setDefaults()

	s := &Server{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		opts: o,
		buf:  make([]byte, o.ReadChunk),
	}
	s.status.update(func(st *Status) { st.Addr = s.addr })
	logger.LogPrintf("IP Address:Port %s\nRunning...", s.addr)
	return s, nil
}

// Addr 监听地址 host:port
func (s *Server) Addr() string {
	return s.addr
}

// Boundary multipart 分隔符
func (s *Server) Boundary() string {
	return s.opts.Boundary
}

// RegisterSetupCallback 在 GET 请求被接受、响应头发出后调用
func (s *Server) RegisterSetupCallback(cb func(path string)) {
	s.onSetup = cb
}

// RegisterTeardownCallback 在推流中的连接关闭时调用，每个连接最多一次
func (s *Server) RegisterTeardownCallback(cb func(path string)) {
	s.onTeardown = cb
}

// State 可在其他 goroutine 中调用
func (s *Server) State() State {
	return s.status.load().State
}

// Status 可在其他 goroutine 中调用
func (s *Server) Status() Status {
	return s.status.load()
}

// Stream 运行推流循环，直到 ctx 取消；循环内的错误只会关闭当前连接
func (s *Server) Stream(ctx context.Context, src FrameSource, quality int) error {
	if src == nil {
		return errors.New("mjpeg: nil frame source")
	}
	defer func() {
		if s.conn != nil || s.playing {
			teardowns.WithLabelValues("shutdown").Inc()
		}
		s.teardown()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.step(ctx, src, quality); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			reason := "io"
			if errors.Is(err, errFrameSource) {
				reason = "source"
			}
			teardowns.WithLabelValues(reason).Inc()
			logger.Debugf("🔌 连接关闭 %s: %v", s.clientString(), err)
			s.teardown()
		}
	}
}

// step 执行一轮循环，返回非 nil 时调用方负责 teardown
func (s *Server) step(ctx context.Context, src FrameSource, quality int) error {
	if !s.ensureConnection(ctx) {
		return nil
	}

	if err := s.poll(); err != nil {
		return err
	}

	if s.playing {
		return s.sendFrame(src, quality)
	}
	return nil
}

// poll 以短超时读取一次，读到数据就解析
func (s *Server) poll() error {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.PollTimeout)); err != nil {
		return ioFailure(err)
	}
	n, err := s.conn.Read(s.buf)
	switch cerr := classifyRead(n, err); {
	case cerr == nil:
		return s.parseRequest(s.buf[:n])
	case errors.Is(cerr, ErrPollTimeout):
		return nil
	default:
		return cerr
	}
}

// teardown 关闭连接并复位推流状态，可重复调用
func (s *Server) teardown() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
		s.clientAddr = nil
	}
	wasPlaying := s.playing
	path := s.path
	s.playing = false
	s.path = ""

	s.status.update(func(st *Status) {
		st.State = Disconnected
		st.ClientAddr = ""
		st.Path = ""
		st.FramesSent = 0
		st.BytesSent = 0
		st.ConnectedAt = time.Time{}
	})

	if wasPlaying {
		streamingGauge.Set(0)
		if s.onTeardown != nil {
			s.onTeardown(path)
		}
	}
}

func (s *Server) clientString() string {
	if s.clientAddr == nil {
		return "-"
	}
	return s.clientAddr.String()
}
