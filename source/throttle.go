package source

import (
	"context"
	"sync/atomic"

	"github.com/qist/camgate/mjpeg"
	"golang.org/x/time/rate"
)

// Throttle 限制取帧频率，fps 为 0 时不限制，可在运行中调整
type Throttle struct {
	ctx     context.Context
	src     mjpeg.FrameSource
	limiter *rate.Limiter
	waited  atomic.Int64
}

func NewThrottle(ctx context.Context, src mjpeg.FrameSource, fps float64) *Throttle {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &Throttle{ctx: ctx, src: src, limiter: rate.NewLimiter(rate.Inf, 1)}
	t.SetFPS(fps)
	return t
}

func (t *Throttle) SetFPS(fps float64) {
	limit := rate.Inf
	if fps > 0 {
		limit = rate.Limit(fps)
	}
	if t.limiter.Limit() != limit {
		t.limiter.SetLimit(limit)
	}
}

func (t *Throttle) FPS() float64 {
	l := t.limiter.Limit()
	if l == rate.Inf {
		return 0
	}
	return float64(l)
}

func (t *Throttle) Frame(path string) (mjpeg.Frame, error) {
	if t.limiter.Limit() != rate.Inf {
		if t.limiter.Tokens() < 1 {
			t.waited.Add(1)
		}
		if err := t.limiter.Wait(t.ctx); err != nil {
			return nil, err
		}
	}
	return t.src(path)
}

// Waited 因限速而等待的次数
func (t *Throttle) Waited() int64 {
	return t.waited.Load()
}
