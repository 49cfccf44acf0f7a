package mjpeg

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/qist/camgate/logger"
)

var errFrameSource = errors.New("mjpeg: frame source failed")

// partHeader 每一帧前的 multipart 头
func partHeader(boundary string, size int) []byte {
	return []byte("\r\n--" + boundary + "\r\n" +
		"Content-Type: image/jpeg\r\n" +
		"Content-Length:" + strconv.Itoa(size) + "\r\n\r\n")
}

// sendFrame 取一帧编码后分两次写出（头和 JPEG 数据），不拼接拷贝
func (s *Server) sendFrame(src FrameSource, quality int) error {
	start := time.Now()
	frame, err := src(s.path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errFrameSource, s.path, err)
	}
	if frame == nil {
		return fmt.Errorf("%w: %s: nil frame", errFrameSource, s.path)
	}
	img, err := frame.JPEG(quality)
	if err != nil {
		return fmt.Errorf("%w: jpeg encode: %v", errFrameSource, err)
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.SendTimeout)); err != nil {
		return ioFailure(err)
	}
	if _, err := s.conn.Write(partHeader(s.opts.Boundary, len(img))); err != nil {
		return ioFailure(err)
	}
	if _, err := s.conn.Write(img); err != nil {
		return ioFailure(err)
	}

	framesSent.Inc()
	bytesSent.Add(float64(len(img)))
	frameDuration.Observe(time.Since(start).Seconds())
	s.status.update(func(st *Status) {
		st.FramesSent++
		st.TotalFrames++
		st.BytesSent += uint64(len(img))
	})
	logger.Debugf("🖼️ %s 帧 %d 字节", s.path, len(img))
	return nil
}
