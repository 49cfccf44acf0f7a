package mjpeg

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type staticIF net.IP

func (s staticIF) IfConfig() (net.IP, error) { return net.IP(s), nil }

type rawFrame []byte

func (f rawFrame) JPEG(quality int) ([]byte, error) { return f, nil }

// callbackRecorder 记录回调调用，回调在推流 goroutine 中执行
type callbackRecorder struct {
	mu        sync.Mutex
	setups    []string
	teardowns []string
	teardown  chan string
}

func newRecorder() *callbackRecorder {
	return &callbackRecorder{teardown: make(chan string, 16)}
}

func (r *callbackRecorder) onSetup(path string) {
	r.mu.Lock()
	r.setups = append(r.setups, path)
	r.mu.Unlock()
}

func (r *callbackRecorder) onTeardown(path string) {
	r.mu.Lock()
	r.teardowns = append(r.teardowns, path)
	r.mu.Unlock()
	r.teardown <- path
}

func (r *callbackRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.setups), len(r.teardowns)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("获取空闲端口失败: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func testOptions() Options {
	return Options{
		Boundary:      "TestBoundary",
		AcceptTimeout: 2 * time.Second,
		SendTimeout:   time.Second,
		PollTimeout:   5 * time.Millisecond,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(staticIF(net.IPv4(127, 0, 0, 1)), freePort(t), testOptions())
	if err != nil {
		t.Fatalf("创建服务失败: %v", err)
	}
	return s
}

type runner struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// wait 等待推流循环退出
func (r *runner) wait(d time.Duration) bool {
	select {
	case <-r.done:
		return true
	case <-time.After(d):
		return false
	}
}

// runServer 在后台运行推流循环，测试结束时取消
func runServer(t *testing.T, s *Server, src FrameSource) *runner {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{cancel: cancel, done: make(chan struct{})}
	go func() {
		r.err = s.Stream(ctx, src, 70)
		close(r.done)
	}()
	t.Cleanup(func() {
		r.cancel()
		if !r.wait(3 * time.Second) {
			t.Errorf("推流循环未退出")
		}
	})
	return r
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		c, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = c.SetDeadline(time.Now().Add(5 * time.Second))
			return c
		}
		if time.Now().After(deadline) {
			t.Fatalf("连接 %s 失败: %v", addr, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitState(t *testing.T, s *Server, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("状态未变为 %s，当前 %s", want, s.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readHeader 读取到空行为止的响应头
func readHeader(t *testing.T, r *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("读取响应头失败: %v (已读 %q)", err, lines)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

// readPart 读取一个 multipart 分段，返回 JPEG 数据
func readPart(t *testing.T, r *bufio.Reader, boundary string) []byte {
	t.Helper()
	if line, err := r.ReadString('\n'); err != nil || line != "\r\n" {
		t.Fatalf("分段前缺少空行: %q %v", line, err)
	}
	header := readHeader(t, r)
	if len(header) != 3 {
		t.Fatalf("分段头错误: %q", header)
	}
	if header[0] != "--"+boundary {
		t.Errorf("boundary 行错误: %q", header[0])
	}
	if header[1] != "Content-Type: image/jpeg" {
		t.Errorf("Content-Type 错误: %q", header[1])
	}
	n, err := strconv.Atoi(strings.TrimPrefix(header[2], "Content-Length:"))
	if err != nil {
		t.Fatalf("Content-Length 错误: %q", header[2])
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("读取 JPEG 数据失败: %v", err)
	}
	return buf
}

func expectResponse(t *testing.T, c net.Conn, want string) {
	t.Helper()
	buf := make([]byte, len(want))
	if _, err := io.ReadFull(c, buf); err != nil {
		t.Fatalf("读取响应失败: %v", err)
	}
	if string(buf) != want {
		t.Fatalf("响应 = %q, want %q", buf, want)
	}
}

func TestStreamSession(t *testing.T) {
	s := newTestServer(t)
	rec := newRecorder()
	s.RegisterSetupCallback(rec.onSetup)
	s.RegisterTeardownCallback(rec.onTeardown)

	jpeg := rawFrame("\xff\xd8fake-jpeg-payload\xff\xd9")
	var mu sync.Mutex
	var paths []string
	src := func(path string) (Frame, error) {
		mu.Lock()
		paths = append(paths, path)
		mu.Unlock()
		return jpeg, nil
	}
	runServer(t, s, src)

	// 两次完整会话，第二个客户端在第一个断开后可以重新连接
	for round := 0; round < 2; round++ {
		c := dial(t, s.Addr())
		r := bufio.NewReader(c)
		if _, err := c.Write([]byte("GET / HTTP/1.0\r\n\r\n")); err != nil {
			t.Fatalf("发送请求失败: %v", err)
		}

		header := readHeader(t, r)
		want := []string{
			"HTTP/1.0 200 OK",
			"Server: OpenMV Cam",
			"Content-Type: multipart/x-mixed-replace;boundary=TestBoundary",
			"Connection: close",
			"Cache-Control: no-cache, no-store, must-revalidate",
			"Pragma: no-cache",
			"Expires: 0",
		}
		if strings.Join(header, "\n") != strings.Join(want, "\n") {
			t.Fatalf("响应头错误:\n%s", strings.Join(header, "\n"))
		}

		if got := readPart(t, r, "TestBoundary"); string(got) != string(jpeg) {
			t.Errorf("JPEG 数据不一致: %q", got)
		}
		waitState(t, s, Streaming)
		if st := s.Status(); st.Path != "/" || st.FramesSent == 0 {
			t.Errorf("状态快照错误: %+v", st)
		}

		c.Close()
		select {
		case p := <-rec.teardown:
			if p != "/" {
				t.Errorf("teardown 路径 = %q", p)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("teardown 回调未触发")
		}
		waitState(t, s, Disconnected)

		setups, teardowns := rec.counts()
		if setups != round+1 || teardowns != round+1 {
			t.Errorf("第 %d 轮回调次数 setup=%d teardown=%d", round, setups, teardowns)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, p := range paths {
		if p != "/" {
			t.Errorf("帧源收到的路径 = %q", p)
		}
	}
}

func TestDisconnectMidFrame(t *testing.T) {
	s := newTestServer(t)
	rec := newRecorder()
	s.RegisterSetupCallback(rec.onSetup)
	s.RegisterTeardownCallback(rec.onTeardown)

	// 远大于套接字缓冲区，客户端断开时服务端一定还在写
	big := make(rawFrame, 8<<20)
	runServer(t, s, func(string) (Frame, error) { return big, nil })

	c := dial(t, s.Addr())
	r := bufio.NewReader(c)
	if _, err := c.Write([]byte("GET /m HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("发送请求失败: %v", err)
	}
	readHeader(t, r)
	if line, err := r.ReadString('\n'); err != nil || line != "\r\n" {
		t.Fatalf("分段前缺少空行: %q %v", line, err)
	}
	if part := readHeader(t, r); len(part) != 3 || part[2] != "Content-Length:"+strconv.Itoa(len(big)) {
		t.Fatalf("分段头错误: %q", part)
	}
	// 只读到分段头就断开
	c.Close()

	select {
	case p := <-rec.teardown:
		if p != "/m" {
			t.Errorf("teardown 路径 = %q", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("写失败后 teardown 回调未触发")
	}
	waitState(t, s, Disconnected)
	if _, teardowns := rec.counts(); teardowns != 1 {
		t.Errorf("teardown 次数 = %d", teardowns)
	}

	// 之后的客户端可以重新连接并开始推流
	c2 := dial(t, s.Addr())
	defer c2.Close()
	if _, err := c2.Write([]byte("GET /m HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("发送请求失败: %v", err)
	}
	if header := readHeader(t, bufio.NewReader(c2)); header[0] != "HTTP/1.0 200 OK" {
		t.Fatalf("重连响应 %q", header[0])
	}
	waitState(t, s, Streaming)
	if setups, teardowns := rec.counts(); setups != 2 || teardowns != 1 {
		t.Errorf("回调次数 setup=%d teardown=%d", setups, teardowns)
	}
}

func TestMalformedRequestsKeepConnection(t *testing.T) {
	s := newTestServer(t)
	rec := newRecorder()
	s.RegisterSetupCallback(rec.onSetup)
	s.RegisterTeardownCallback(rec.onTeardown)
	runServer(t, s, func(string) (Frame, error) { return rawFrame("x"), nil })

	c := dial(t, s.Addr())
	defer c.Close()

	for _, req := range []string{"GARBAGE\r\n\r\n", "GET /a HTTP/9.9\r\n\r\n"} {
		if _, err := c.Write([]byte(req)); err != nil {
			t.Fatalf("发送失败: %v", err)
		}
		expectResponse(t, c, "HTTP/1.0 400 Bad Request\r\n\r\n")
		if st := s.State(); st != ConnectedIdle {
			t.Fatalf("400 后状态应保持 connected_idle，当前 %s", st)
		}
	}

	if _, err := c.Write([]byte("DELETE /a HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	expectResponse(t, c, "HTTP/1.0 501 Not Implemented\r\n\r\n")
	if st := s.State(); st != ConnectedIdle {
		t.Fatalf("501 后状态应保持 connected_idle，当前 %s", st)
	}

	if _, err := c.Write([]byte("GET http://cam:8080/snapshot/cam1/ HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	r := bufio.NewReader(c)
	if header := readHeader(t, r); header[0] != "HTTP/1.0 200 OK" {
		t.Fatalf("状态行错误: %q", header[0])
	}
	readPart(t, r, "TestBoundary")
	waitState(t, s, Streaming)
	if p := s.Status().Path; p != "/snapshot/cam1" {
		t.Errorf("路径 = %q", p)
	}
	if setups, teardowns := rec.counts(); setups != 1 || teardowns != 0 {
		t.Errorf("回调次数 setup=%d teardown=%d", setups, teardowns)
	}
}

func TestIdleDisconnectNoTeardownCallback(t *testing.T) {
	s := newTestServer(t)
	rec := newRecorder()
	s.RegisterTeardownCallback(rec.onTeardown)
	runServer(t, s, func(string) (Frame, error) { return rawFrame("x"), nil })

	c := dial(t, s.Addr())
	waitState(t, s, ConnectedIdle)
	c.Close()
	waitState(t, s, Disconnected)

	// 下一个客户端仍然可以连上
	c2 := dial(t, s.Addr())
	defer c2.Close()
	waitState(t, s, ConnectedIdle)

	if _, teardowns := rec.counts(); teardowns != 0 {
		t.Errorf("未推流的连接不应触发 teardown，实际 %d 次", teardowns)
	}
}

func TestFrameSourceErrorTearsDown(t *testing.T) {
	s := newTestServer(t)
	rec := newRecorder()
	s.RegisterTeardownCallback(rec.onTeardown)
	runServer(t, s, func(string) (Frame, error) { return nil, errors.New("sensor busy") })

	c := dial(t, s.Addr())
	defer c.Close()
	if _, err := c.Write([]byte("GET /cam HTTP/1.0\r\n\r\n")); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	select {
	case p := <-rec.teardown:
		if p != "/cam" {
			t.Errorf("teardown 路径 = %q", p)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("帧源出错后未 teardown")
	}

	// 服务端已关闭连接，读到响应头后应是 EOF
	r := bufio.NewReader(c)
	readHeader(t, r)
	if _, err := io.ReadAll(r); err != nil {
		t.Errorf("期望连接被正常关闭: %v", err)
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	s := newTestServer(t)
	rec := newRecorder()
	s.RegisterTeardownCallback(rec.onTeardown)
	r := runServer(t, s, func(string) (Frame, error) { return rawFrame("x"), nil })

	c := dial(t, s.Addr())
	defer c.Close()
	if _, err := c.Write([]byte("GET /x HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	waitState(t, s, Streaming)

	r.cancel()
	if !r.wait(3 * time.Second) {
		t.Fatalf("取消后推流循环未退出")
	}
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("Stream 返回 %v", r.err)
	}
	if _, teardowns := rec.counts(); teardowns != 1 {
		t.Errorf("取消时应触发一次 teardown，实际 %d 次", teardowns)
	}
	if s.State() != Disconnected {
		t.Errorf("取消后状态 %s", s.State())
	}
}

func TestTeardownIdempotent(t *testing.T) {
	s := newTestServer(t)
	calls := 0
	s.RegisterTeardownCallback(func(string) { calls++ })

	s.teardown()
	if calls != 0 {
		t.Fatalf("未连接时 teardown 不应触发回调")
	}

	s.playing = true
	s.path = "/p"
	s.teardown()
	s.teardown()
	if calls != 1 {
		t.Errorf("teardown 回调次数 = %d", calls)
	}
	if s.playing || s.path != "" {
		t.Errorf("teardown 后状态未复位: playing=%v path=%q", s.playing, s.path)
	}
}

func TestEnsureConnectionTimeout(t *testing.T) {
	s := newTestServer(t)
	s.opts.AcceptTimeout = 50 * time.Millisecond
	start := time.Now()
	if s.ensureConnection(context.Background()) {
		t.Fatalf("没有客户端时不应建立连接")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("accept 超时过长: %v", elapsed)
	}

	// 端口被占用时同样静默失败
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		t.Skipf("无法占用端口: %v", err)
	}
	defer ln.Close()
	if s.ensureConnection(context.Background()) {
		t.Errorf("端口被占用时不应建立连接")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, 0, Options{}); err == nil {
		t.Errorf("nil 网卡应返回错误")
	}
	if _, err := New(staticIF(net.IPv4(127, 0, 0, 1)), 70000, Options{}); err == nil {
		t.Errorf("非法端口应返回错误")
	}
	s, err := New(staticIF(net.IPv4(10, 0, 0, 2)), 0, Options{})
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if s.Addr() != "10.0.0.2:8080" || s.Boundary() != DefaultBoundary {
		t.Errorf("默认值错误: %s %s", s.Addr(), s.Boundary())
	}

	// 省略 Options 时使用全部默认值
	s, err = New(staticIF(net.IPv4(10, 0, 0, 3)), 9000)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if s.Boundary() != DefaultBoundary || s.opts.ServerName != DefaultServerName ||
		s.opts.PollTimeout != defaultPollTimeout || len(s.buf) != defaultReadChunk {
		t.Errorf("省略 Options 的默认值错误: %+v", s.opts)
	}
}
