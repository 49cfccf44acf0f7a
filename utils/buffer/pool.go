package buffer

import (
	"bytes"
	"sync"
)

// 超过该容量的缓冲不回收，避免偶发的大帧长期占用内存
const maxPooledSize = 4 << 20

var pool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// GetBuffer 取一个已清空的缓冲
func GetBuffer() *bytes.Buffer {
	buf := pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledSize {
		return
	}
	pool.Put(buf)
}
