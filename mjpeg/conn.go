package mjpeg

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/libp2p/go-reuseport"
	"github.com/qist/camgate/logger"
)

type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// ensureConnection 没有连接时尝试 accept 一次，已连接时直接返回 true
func (s *Server) ensureConnection(ctx context.Context) bool {
	if s.conn != nil {
		return true
	}
	conn, err := s.acceptOnce(ctx)
	if err != nil {
		logger.Debugf("⏳ %v", err)
		return false
	}

	s.conn = conn
	s.clientAddr = conn.RemoteAddr()
	connectionsAccepted.Inc()
	logger.LogPrintf("🔗 客户端已连接: %s", s.clientAddr)

	now := time.Now()
	s.status.update(func(st *Status) {
		st.State = ConnectedIdle
		st.ClientAddr = s.clientAddr.String()
		st.ConnectedAt = now
	})
	return true
}

// acceptOnce 每次新建监听，最多等待 AcceptTimeout，结束后监听一定关闭
func (s *Server) acceptOnce(ctx context.Context) (net.Conn, error) {
	ln, err := s.listen(ctx)
	if err != nil {
		// 监听失败同样占用一个 accept 周期，避免空转
		t := time.NewTimer(s.opts.AcceptTimeout)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		return nil, fmt.Errorf("%w: listen %s: %v", ErrConnectionSetup, s.addr, err)
	}
	defer ln.Close()

	// ctx 取消时立即结束阻塞的 Accept
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	if dl, ok := ln.(deadlineListener); ok {
		if err := dl.SetDeadline(time.Now().Add(s.opts.AcceptTimeout)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionSetup, err)
		}
	}

	conn, err := ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("%w: accept: %v", ErrConnectionSetup, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// listen 监听每轮都会重建，平台支持时开启端口复用
func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	if reuseport.Available() {
		return reuseport.Listen("tcp", s.addr)
	}
	lc := net.ListenConfig{Control: reuseAddrControl}
	return lc.Listen(ctx, "tcp", s.addr)
}
