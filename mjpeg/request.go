package mjpeg

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/qist/camgate/logger"
)

// 去掉绝对 URL 中的 scheme://host[:port] 前缀
var urlPrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://[a-zA-Z0-9\-.]+(:\d+)?/?`)

// RequestLine 解析后的请求行
type RequestLine struct {
	Method  string
	Path    string
	Version string
}

// ParseRequestLine 只解析数据中的第一行，其余请求头忽略。
// 返回的 RequestLine 在 URL 解析成功后即带有 Path，即使随后版本校验失败。
func ParseRequestLine(data []byte) (RequestLine, error) {
	var rl RequestLine
	if !utf8.Valid(data) {
		return rl, fmt.Errorf("%w: invalid utf-8", ErrMalformedRequest)
	}
	text := string(data)
	if text == "" {
		return rl, fmt.Errorf("%w: empty request", ErrMalformedRequest)
	}
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSuffix(line, "\r")

	fields := strings.Split(line, " ")
	if len(fields) < 2 || fields[1] == "" {
		return rl, fmt.Errorf("%w: missing url in %q", ErrMalformedRequest, line)
	}
	rl.Method = fields[0]
	rl.Path = normalizePath(fields[1])

	if len(fields) < 3 {
		return rl, fmt.Errorf("%w: missing http version in %q", ErrMalformedRequest, line)
	}
	rl.Version = fields[2]
	if rl.Version != "HTTP/1.0" && rl.Version != "HTTP/1.1" {
		return rl, fmt.Errorf("%w: unsupported version %q", ErrMalformedRequest, rl.Version)
	}
	if rl.Method != "GET" {
		return rl, fmt.Errorf("%w: %s", ErrUnsupportedMethod, rl.Method)
	}
	return rl, nil
}

func normalizePath(raw string) string {
	p := urlPrefix.ReplaceAllString(raw, "/")
	if p != "/" && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

// parseRequest 处理一次读取到的数据并回复，返回的错误只可能是发送失败
func (s *Server) parseRequest(data []byte) error {
	rl, err := ParseRequestLine(data)
	if rl.Path != "" {
		s.path = rl.Path
	}

	status := 200
	switch {
	case err == nil:
	case errors.Is(err, ErrUnsupportedMethod):
		status = 501
	default:
		status = 400
	}
	requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	logger.LogStreamRequest(s.clientString(), rl.Method, rl.Path, rl.Version, status)

	switch status {
	case 501:
		return s.sendResponse(501, "Not Implemented", "")
	case 400:
		logger.Debugf("⚠️ 请求无法解析: %v", err)
		return s.sendResponse(400, "Bad Request", "")
	}

	s.playing = true
	if err := s.sendResponse(200, "OK", s.streamHeaders()); err != nil {
		return err
	}
	streamingGauge.Set(1)
	s.status.update(func(st *Status) {
		st.State = Streaming
		st.Path = s.path
		st.Sessions++
	})
	logger.LogPrintf("▶️ 开始推流 %s -> %s", s.path, s.clientString())
	if s.onSetup != nil {
		s.onSetup(s.path)
	}
	return nil
}

func (s *Server) streamHeaders() string {
	return "Server: " + s.opts.ServerName + "\r\n" +
		"Content-Type: multipart/x-mixed-replace;boundary=" + s.opts.Boundary + "\r\n" +
		"Connection: close\r\n" +
		"Cache-Control: no-cache, no-store, must-revalidate\r\n" +
		"Pragma: no-cache\r\n" +
		"Expires: 0\r\n"
}

func (s *Server) sendResponse(code int, name, extra string) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.SendTimeout)); err != nil {
		return ioFailure(err)
	}
	if _, err := fmt.Fprintf(s.conn, "HTTP/1.0 %d %s\r\n%s\r\n", code, name, extra); err != nil {
		return ioFailure(err)
	}
	return nil
}
