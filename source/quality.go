package source

import (
	"sync/atomic"

	"github.com/qist/camgate/mjpeg"
)

// Quality 用运行时可修改的质量覆盖 Stream 传入的值，0 表示沿用调用方的质量
type Quality struct {
	src     mjpeg.FrameSource
	quality atomic.Int32
}

func NewQuality(src mjpeg.FrameSource, quality int) *Quality {
	q := &Quality{src: src}
	q.Set(quality)
	return q
}

func (q *Quality) Set(quality int) {
	if quality > 0 {
		quality = clampQuality(quality)
	}
	q.quality.Store(int32(quality))
}

func (q *Quality) Get() int { return int(q.quality.Load()) }

func (q *Quality) Frame(path string) (mjpeg.Frame, error) {
	f, err := q.src(path)
	if err != nil || f == nil {
		return f, err
	}
	return overrideFrame{Frame: f, quality: q.Get()}, nil
}

type overrideFrame struct {
	mjpeg.Frame
	quality int
}

func (f overrideFrame) JPEG(quality int) ([]byte, error) {
	if f.quality > 0 {
		quality = f.quality
	}
	return f.Frame.JPEG(quality)
}
