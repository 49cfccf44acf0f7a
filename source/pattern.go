package source

import (
	"fmt"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/qist/camgate/mjpeg"
)

var barColors = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

// Pattern 用 gg 绘制的彩条测试图，带路径、时间和帧号
type Pattern struct {
	Width  int
	Height int
	Label  string

	mu    sync.Mutex
	dc    *gg.Context
	frame uint64
	now   func() time.Time
}

func NewPattern(width, height int, label string) *Pattern {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &Pattern{
		Width:  width,
		Height: height,
		Label:  label,
		dc:     gg.NewContext(width, height),
		now:    time.Now,
	}
}

// Frame 返回的图像在下一次调用前有效
func (p *Pattern) Frame(path string) (mjpeg.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frame++
	dc := p.dc
	w, h := float64(p.Width), float64(p.Height)

	barW := w / float64(len(barColors))
	for i, c := range barColors {
		dc.SetColor(c)
		dc.DrawRectangle(float64(i)*barW, 0, math.Ceil(barW), h*0.7)
		dc.Fill()
	}
	dc.SetRGB(0.08, 0.08, 0.08)
	dc.DrawRectangle(0, h*0.7, w, h*0.3)
	dc.Fill()

	// 滚动的竖线用来观察卡顿
	x := math.Mod(float64(p.frame)*4, w)
	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(3)
	dc.DrawLine(x, 0, x, h*0.7)
	dc.Stroke()

	lines := []string{
		p.now().Format("2006-01-02 15:04:05.000"),
		fmt.Sprintf("%s  #%d", path, p.frame),
	}
	if p.Label != "" {
		lines = append([]string{p.Label}, lines...)
	}
	lineH := h * 0.3 / float64(len(lines)+1)
	for i, s := range lines {
		dc.DrawStringAnchored(s, w/2, h*0.7+lineH*float64(i+1), 0.5, 0.5)
	}
	return Image{dc.Image()}, nil
}

// Frames 已生成的帧数
func (p *Pattern) Frames() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}
