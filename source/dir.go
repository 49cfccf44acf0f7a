package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/qist/camgate/mjpeg"
)

// Dir 从目录读取 JPEG 文件。
// 路径对应目录时按文件名顺序循环播放，对应文件（可省略 .jpg 后缀）时重复发送该文件。
type Dir struct {
	Root string

	mu   sync.Mutex
	next map[string]int
}

func NewDir(root string) *Dir {
	return &Dir{Root: root, next: make(map[string]int)}
}

func (d *Dir) Frame(path string) (mjpeg.Frame, error) {
	target, err := d.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		target, err = d.nextFile(target)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, err
	}
	if !isJPEG(data) {
		return nil, fmt.Errorf("不是 JPEG 文件: %s", target)
	}
	return Encoded(data), nil
}

// resolve 将请求路径限制在 Root 之内
func (d *Dir) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	target := filepath.Join(d.Root, clean)
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}
	for _, ext := range []string{".jpg", ".jpeg"} {
		if _, err := os.Stat(target + ext); err == nil {
			return target + ext, nil
		}
	}
	return "", fmt.Errorf("%w: %s", fs.ErrNotExist, path)
}

func (d *Dir) nextFile(dir string) (string, error) {
	files, err := listJPEG(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: %s", errEmptyDir, dir)
	}

	d.mu.Lock()
	if d.next == nil {
		d.next = make(map[string]int)
	}
	i := d.next[dir] % len(files)
	d.next[dir] = i + 1
	d.mu.Unlock()
	return filepath.Join(dir, files[i]), nil
}

var errEmptyDir = errors.New("目录中没有 JPEG 文件")

func listJPEG(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
