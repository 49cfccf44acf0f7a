package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtpmjpeg"
	"github.com/pion/rtp"

	"github.com/qist/camgate/logger"
	"github.com/qist/camgate/mjpeg"
	tsync "github.com/qist/camgate/utils/sync"
)

const (
	rtspFirstFrameWait = 2 * time.Second
	rtspRetryMin       = time.Second
	rtspRetryMax       = 30 * time.Second
)

// RTSP 从 MJPEG 编码的 RTSP 摄像头持续接收，只保留最新一帧
type RTSP struct {
	URL string

	mu     sync.Mutex
	latest []byte
	seq    uint64        // 已保存的帧序号
	sent   uint64        // Frame 最近返回的序号
	notify chan struct{} // 每保存一帧关闭并替换
	wait   time.Duration

	closed    chan struct{}
	closeOnce sync.Once

	received atomic.Uint64
	cancel   context.CancelFunc
	wg       tsync.WaitGroup
}

func NewRTSP(rawURL string) *RTSP {
	return &RTSP{
		URL:    rawURL,
		notify: make(chan struct{}),
		wait:   rtspFirstFrameWait,
		closed: make(chan struct{}),
	}
}

// Start 在后台连接并自动重连，直到 ctx 取消或 Close
func (r *RTSP) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Go(func() { r.run(ctx) })
}

func (r *RTSP) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return nil
}

func (r *RTSP) run(ctx context.Context) {
	retry := rtspRetryMin
	for {
		err := r.session(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.LogPrintf("⚠️ RTSP 源 %s 断开: %v，%v 后重连", r.URL, err, retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
		retry *= 2
		if retry > rtspRetryMax {
			retry = rtspRetryMax
		}
	}
}

func (r *RTSP) session(ctx context.Context) error {
	u, err := base.ParseURL(r.URL)
	if err != nil {
		return fmt.Errorf("解析RTSP地址失败: %w", err)
	}

	transport := gortsplib.TransportTCP
	client := &gortsplib.Client{Transport: &transport}
	if err := client.Start(u.Scheme, u.Host); err != nil {
		return fmt.Errorf("RTSP握手失败: %w", err)
	}
	defer client.Close()

	desc, _, err := client.Describe(u)
	if err != nil {
		return fmt.Errorf("DESCRIBE失败: %w", err)
	}

	var forma *format.MJPEG
	medi := desc.FindFormat(&forma)
	if medi == nil {
		return errors.New("未发现 MJPEG 视频流")
	}
	dec, err := forma.CreateDecoder()
	if err != nil {
		return fmt.Errorf("创建 MJPEG 解码器失败: %w", err)
	}

	if _, err := client.Setup(desc.BaseURL, medi, 0, 0); err != nil {
		return fmt.Errorf("SETUP失败: %w", err)
	}

	client.OnPacketRTP(medi, forma, func(pkt *rtp.Packet) {
		img, err := dec.Decode(pkt)
		if err != nil {
			if !errors.Is(err, rtpmjpeg.ErrMorePacketsNeeded) && !errors.Is(err, rtpmjpeg.ErrNonStartingPacketAndNoPrevious) {
				logger.Debugf("RTSP MJPEG 解码失败: %v", err)
			}
			return
		}
		r.store(img)
	})

	if _, err := client.Play(nil); err != nil {
		return fmt.Errorf("PLAY失败: %w", err)
	}
	logger.LogPrintf("📡 RTSP 源已连接: %s", r.URL)

	errCh := make(chan error, 1)
	go func() { errCh <- client.Wait() }()
	select {
	case <-ctx.Done():
		client.Close()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (r *RTSP) store(img []byte) {
	r.mu.Lock()
	r.latest = img
	r.seq++
	close(r.notify)
	r.notify = make(chan struct{})
	r.mu.Unlock()
	r.received.Add(1)
}

// Frame 等待比上次返回更新的一帧，最多等待 2 秒；
// 摄像头停顿超时后重发最后一帧，一帧都没有时返回 ErrNoFrame
func (r *RTSP) Frame(string) (mjpeg.Frame, error) {
	timer := time.NewTimer(r.wait)
	defer timer.Stop()
	for {
		r.mu.Lock()
		if r.seq > r.sent {
			r.sent = r.seq
			img := r.latest
			r.mu.Unlock()
			return Encoded(img), nil
		}
		notify := r.notify
		r.mu.Unlock()

		select {
		case <-notify:
		case <-r.closed:
			return nil, fmt.Errorf("%w: %s", ErrClosed, r.URL)
		case <-timer.C:
			r.mu.Lock()
			img := r.latest
			r.mu.Unlock()
			if img == nil {
				return nil, fmt.Errorf("%w: %s", ErrNoFrame, r.URL)
			}
			return Encoded(img), nil
		}
	}
}

// Received 已接收的完整帧数
func (r *RTSP) Received() uint64 {
	return r.received.Load()
}
