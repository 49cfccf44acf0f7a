package mjpeg

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

var (
	// ErrPollTimeout 轮询窗口内没有数据，不算错误
	ErrPollTimeout = errors.New("mjpeg: poll timeout")
	// ErrConnectionSetup bind/listen/accept 失败，下一轮重试
	ErrConnectionSetup = errors.New("mjpeg: connection setup failed")
	// ErrMalformedRequest 请求行无法解析，返回 400
	ErrMalformedRequest = errors.New("mjpeg: malformed request")
	// ErrUnsupportedMethod 非 GET 方法，返回 501
	ErrUnsupportedMethod = errors.New("mjpeg: unsupported method")
	// ErrIOFailure 收发错误或对端断开，关闭当前连接
	ErrIOFailure = errors.New("mjpeg: io failure")
)

// isTimeout 读超时和 EAGAIN 都视为本轮没有数据
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// classifyRead 把一次读取的结果归类
func classifyRead(n int, err error) error {
	if n > 0 {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return ioFailure(io.EOF)
	}
	if isTimeout(err) {
		return ErrPollTimeout
	}
	return ioFailure(err)
}

type ioError struct {
	err error
}

func (e *ioError) Error() string { return ErrIOFailure.Error() + ": " + e.err.Error() }

func (e *ioError) Unwrap() []error { return []error{ErrIOFailure, e.err} }

func ioFailure(err error) error {
	if err == nil || errors.Is(err, ErrIOFailure) {
		return err
	}
	return &ioError{err: err}
}
