// Package source 提供推流使用的帧源。
//
// 每个帧源都是 mjpeg.FrameSource：按请求路径返回一帧，
// 在推流循环中同步调用，因此实现不能长时间阻塞。
package source

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"

	"github.com/qist/camgate/utils/buffer"
)

var (
	ErrNoFrame = errors.New("暂无可用帧")
	ErrClosed  = errors.New("帧源已关闭")
)

// Image 未压缩的图像，按需编码
type Image struct {
	image.Image
}

func (i Image) JPEG(quality int) ([]byte, error) {
	if i.Image == nil {
		return nil, ErrNoFrame
	}
	buf := buffer.GetBuffer()
	defer buffer.PutBuffer(buf)
	if err := jpeg.Encode(buf, i.Image, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Encoded 已经是 JPEG 的数据，质量参数不生效
type Encoded []byte

func (e Encoded) JPEG(int) ([]byte, error) {
	if len(e) == 0 {
		return nil, ErrNoFrame
	}
	return e, nil
}

func clampQuality(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	}
	return q
}

// isJPEG 检查 SOI 标记
func isJPEG(b []byte) bool {
	return len(b) > 3 && b[0] == 0xff && b[1] == 0xd8
}
