package source

import (
	"sort"
	"strings"

	"github.com/qist/camgate/mjpeg"
)

// Router 按请求路径选择帧源：先精确匹配，再按最长路径前缀，最后使用默认源。
// 命中路由时前缀会被去掉，帧源收到剩余部分（至少为 "/"），与 http.StripPrefix 相同。
type Router struct {
	routes   map[string]mjpeg.FrameSource
	prefixes []string
	fallback mjpeg.FrameSource
}

func NewRouter(fallback mjpeg.FrameSource) *Router {
	return &Router{routes: make(map[string]mjpeg.FrameSource), fallback: fallback}
}

// Handle 注册路由，path 末尾的 / 会被去掉（根路径除外）
func (r *Router) Handle(path string, src mjpeg.FrameSource) {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if _, ok := r.routes[path]; !ok {
		r.prefixes = append(r.prefixes, path)
		sort.Slice(r.prefixes, func(i, j int) bool { return len(r.prefixes[i]) > len(r.prefixes[j]) })
	}
	r.routes[path] = src
}

// Lookup 返回路径对应的帧源及交给它的路径，没有匹配时返回默认源
func (r *Router) Lookup(path string) (mjpeg.FrameSource, string) {
	if src, ok := r.routes[path]; ok {
		if path == "/" {
			return src, path
		}
		return src, "/"
	}
	for _, p := range r.prefixes {
		if p != "/" && strings.HasPrefix(path, p+"/") {
			return r.routes[p], path[len(p):]
		}
	}
	return r.fallback, path
}

func (r *Router) Frame(path string) (mjpeg.Frame, error) {
	src, rest := r.Lookup(path)
	if src == nil {
		return nil, ErrNoFrame
	}
	return src(rest)
}
