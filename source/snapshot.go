package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/qist/camgate/mjpeg"
)

// 单帧大小上限
const maxSnapshotBytes = 16 << 20

// Snapshot 每帧从上游 HTTP 地址拉取一张 JPEG，URL 中的 {path} 替换为请求路径
type Snapshot struct {
	URL    string
	Client *http.Client
	ctx    context.Context
}

func NewSnapshot(ctx context.Context, rawURL string, client *http.Client) *Snapshot {
	if client == nil {
		client = http.DefaultClient
	}
	return &Snapshot{URL: rawURL, Client: client, ctx: ctx}
}

func (s *Snapshot) Frame(path string) (mjpeg.Frame, error) {
	target := strings.ReplaceAll(s.URL, "{path}", strings.TrimPrefix(path, "/"))
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("创建快照请求失败: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("拉取快照失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("快照返回状态码 %d: %s", resp.StatusCode, target)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes+1))
	if err != nil {
		return nil, fmt.Errorf("读取快照失败: %w", err)
	}
	if len(data) > maxSnapshotBytes {
		return nil, fmt.Errorf("快照超过 %d 字节", maxSnapshotBytes)
	}
	if !isJPEG(data) {
		return nil, fmt.Errorf("快照不是 JPEG: %s", resp.Header.Get("Content-Type"))
	}
	return Encoded(data), nil
}
